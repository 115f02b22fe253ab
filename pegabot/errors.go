package pegabot

import (
	"fmt"
	"net/http"
	"strings"
)

// Reason classifies why an identifier did not resolve.
type Reason string

const (
	NotFound      Reason = "not_found"
	Forbidden     Reason = "forbidden"
	QuotaExceeded Reason = "quota_exceeded"
	Transport     Reason = "transport"
	Malformed     Reason = "malformed"
)

// Error is a classified enrichment failure. Message is the API's own
// explanation when it sent one.
type Error struct {
	Reason  Reason
	Status  int
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s (status %d): %s", e.Reason, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Detail is the text shown to users after the handle in a line error.
func (e *Error) Detail() string {
	if e.Message != "" {
		return e.Message
	}
	return reasonText[e.Reason]
}

var reasonText = map[Reason]string{
	NotFound:      "perfil não encontrado",
	Forbidden:     "perfil suspenso ou protegido",
	QuotaExceeded: "limite de requisições excedido",
	Transport:     "falha de comunicação com a API",
	Malformed:     "resposta inválida da API",
}

// classifyStatus maps a non-200 status to a reason.
func classifyStatus(status int) Reason {
	switch {
	case status == http.StatusNotFound:
		return NotFound
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return Forbidden
	case status == http.StatusTooManyRequests:
		return QuotaExceeded
	case status >= 500:
		return Transport
	default:
		return Malformed
	}
}

// classifyMessage refines a reason from the API's error text.
func classifyMessage(msg string, fallback Reason) Reason {
	m := strings.ToLower(msg)
	switch {
	case containsAny(m, "not found", "não encontrado", "does not exist", "doesn't exist", "user not"):
		return NotFound
	case containsAny(m, "suspended", "suspenso", "forbidden", "protected", "unauthorized", "not authorized"):
		return Forbidden
	case containsAny(m, "rate limit", "limit exceeded", "too many requests"):
		return QuotaExceeded
	}
	return fallback
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
