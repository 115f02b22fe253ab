// Package pegabot is the client for the Pegabot scoring API.
package pegabot

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teranos/pegabatch/errors"
	"github.com/teranos/pegabatch/internal/httpclient"
)

const (
	// DefaultBaseURL is the public API endpoint
	DefaultBaseURL = "https://api.pegabot.com.br"

	defaultTimeout    = 60 * time.Second
	defaultRPS        = 2.0
	defaultMaxRetries = 3
)

// Config holds client configuration
type Config struct {
	BaseURL           string
	APIKey            string             // sent as a bearer token when set
	Timeout           time.Duration      // 0 = 60s
	RequestsPerSecond float64            // client-side pacing; 0 = 2, < 0 = unlimited
	MaxRetries        int                // attempts for transport failures; 0 = 3
	RetryDelay        time.Duration      // base backoff; 0 = 1s
	BlockPrivateIP    bool               // SSRF protection for the API host
	Logger            *zap.SugaredLogger // nil = nop logger
}

// Client calls GET <base>/botometer for one identifier at a time.
type Client struct {
	baseURL    string
	httpClient *httpclient.SaferClient
	limiter    *rate.Limiter
	config     Config
	logger     *zap.SugaredLogger
}

// NewClient creates a client with defaults applied.
func NewClient(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}
	if config.RequestsPerSecond == 0 {
		config.RequestsPerSecond = defaultRPS
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = defaultMaxRetries
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = time.Second
	}

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	limit := rate.Inf
	if config.RequestsPerSecond > 0 {
		limit = rate.Limit(config.RequestsPerSecond)
	}

	return &Client{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		httpClient: httpclient.NewSaferClient(config.Timeout, httpclient.Options{
			AllowPrivate: !config.BlockPrivateIP,
		}),
		limiter: rate.NewLimiter(limit, 1),
		config:  config,
		logger:  logger,
	}
}

// SetHTTPClient allows overriding the HTTP client for testing
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = httpclient.WrapClient(client)
}

// Analyze scores one identifier. Failures are returned as *Error; context
// cancellation is returned unclassified so callers can tell it apart.
func (c *Client) Analyze(ctx context.Context, identifier string) (*Payload, error) {
	var lastErr *Error

	for attempt := 0; attempt < c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(attempt) * c.config.RetryDelay
			c.logger.Debugw("Retrying Pegabot request",
				"identifier", identifier, "attempt", attempt, "delay", delay)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, errors.Wrap(err, "waiting for request slot")
		}

		payload, err := c.fetch(ctx, identifier)
		if err == nil {
			if attempt > 0 {
				c.logger.Infow("Request succeeded after retries", "identifier", identifier, "attempts", attempt+1)
			}
			return payload, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		var apiErr *Error
		if !errors.As(err, &apiErr) {
			return nil, err
		}
		lastErr = apiErr

		c.logger.Warnw("Pegabot API error",
			"attempt", attempt+1, "max_retries", c.config.MaxRetries,
			"identifier", identifier, "reason", apiErr.Reason, "error", apiErr)

		if !isRetryable(apiErr) {
			return nil, apiErr
		}
	}

	return nil, lastErr
}

func (c *Client) fetch(ctx context.Context, identifier string) (*Payload, error) {
	q := url.Values{}
	q.Set("socialnetwork", "twitter")
	q.Set("search_for", "profile")
	q.Set("limit", "1")
	q.Set("profile", identifier)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/botometer?"+q.Encode(), nil)
	if err != nil {
		return nil, &Error{Reason: Malformed, Message: "invalid request URL", cause: err}
	}
	req.Header.Set("Accept", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Reason: Transport, Message: err.Error(), cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Reason: Transport, Status: resp.StatusCode, Message: "failed to read response", cause: err}
	}

	var envelope struct {
		Payload
		Error any    `json:"error"`
		Msg   string `json:"msg"`
	}
	decodeErr := json.Unmarshal(body, &envelope)

	if resp.StatusCode != http.StatusOK {
		reason := classifyStatus(resp.StatusCode)
		msg := envelope.Msg
		if decodeErr != nil || msg == "" {
			msg = strings.TrimSpace(string(body))
		}
		return nil, &Error{Reason: classifyMessage(msg, reason), Status: resp.StatusCode, Message: msg}
	}

	if decodeErr != nil {
		return nil, &Error{Reason: Malformed, Status: resp.StatusCode, Message: "failed to unmarshal response", cause: decodeErr}
	}

	// The API answers 200 with {"error": true, "msg": "..."} for unknown handles
	if isTruthy(envelope.Error) || len(envelope.Profiles) == 0 {
		msg := envelope.Msg
		if msg == "" {
			if s, ok := envelope.Error.(string); ok {
				msg = s
			}
		}
		fallback := Malformed
		if isTruthy(envelope.Error) {
			fallback = NotFound
		}
		return nil, &Error{Reason: classifyMessage(msg, fallback), Status: resp.StatusCode, Message: msg}
	}

	payload := envelope.Payload
	return &payload, nil
}

func isTruthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case float64:
		return x != 0
	default:
		return true
	}
}

// isRetryable reports whether an error is worth retrying (network-related)
func isRetryable(e *Error) bool {
	if e.Reason != Transport {
		return false
	}
	if e.Status >= 500 {
		return true
	}
	if e.cause == nil {
		return false
	}

	var netErr net.Error
	if errors.As(e.cause, &netErr) && netErr.Timeout() {
		return true
	}
	var errno syscall.Errno
	if errors.As(e.cause, &errno) {
		switch errno {
		case syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.ETIMEDOUT:
			return true
		}
	}

	errStr := strings.ToLower(e.cause.Error())
	for _, s := range []string{"connection reset by peer", "connection refused", "timeout", "temporary failure", "eof"} {
		if strings.Contains(errStr, s) {
			return true
		}
	}
	return false
}
