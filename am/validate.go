package am

import (
	"net/url"
	"strings"

	"github.com/teranos/pegabatch/errors"
)

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	// Ticker interval: the daemon needs a positive period
	if c.Pulse.TickerInterval <= 0 {
		return errors.Newf("pulse.ticker_interval must be > 0, got %s", c.Pulse.TickerInterval)
	}

	if c.Quota.Threshold < 0 {
		return errors.Newf("quota.threshold must be >= 0, got %d", c.Quota.Threshold)
	}
	if c.Quota.DefaultCooldown <= 0 {
		return errors.Newf("quota.default_cooldown must be > 0, got %s", c.Quota.DefaultCooldown)
	}
	switch strings.ToLower(c.Quota.ResetUnit) {
	case "", "minutes", "seconds":
	default:
		return errors.Newf("quota.reset_unit must be minutes or seconds, got %q", c.Quota.ResetUnit)
	}
	if c.Quota.WindowCalls < 0 {
		return errors.Newf("quota.window_calls must be >= 0, got %d", c.Quota.WindowCalls)
	}
	if c.Quota.WindowCalls > 0 && c.Quota.Window <= 0 {
		return errors.Newf("quota.window must be > 0 when quota.window_calls is set, got %s", c.Quota.Window)
	}

	// Cache TTL: 0 = never expire, negative = invalid
	if c.Cache.TTL < 0 {
		return errors.Newf("cache.ttl must be >= 0, got %s", c.Cache.TTL)
	}

	if c.Pegabot.BaseURL == "" {
		return errors.New("pegabot.base_url cannot be empty")
	}
	if u, err := url.Parse(c.Pegabot.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return errors.Newf("pegabot.base_url must be an absolute URL, got %q", c.Pegabot.BaseURL)
	}
	if c.Pegabot.Timeout <= 0 {
		return errors.Newf("pegabot.timeout must be > 0, got %s", c.Pegabot.Timeout)
	}
	if c.Pegabot.MaxRetries < 0 {
		return errors.Newf("pegabot.max_retries must be >= 0, got %d", c.Pegabot.MaxRetries)
	}

	if c.Inbox.Dir == "" || c.Inbox.WorkDir == "" || c.Inbox.OutDir == "" {
		return errors.New("inbox.dir, inbox.work_dir and inbox.out_dir are required")
	}

	// Mail settings only matter when enabled
	if c.Mail.Enabled {
		if c.Mail.Host == "" {
			return errors.New("mail.host cannot be empty when mail is enabled")
		}
		if c.Mail.From == "" {
			return errors.New("mail.from cannot be empty when mail is enabled")
		}
		if c.Mail.Port <= 0 || c.Mail.Port > 65535 {
			return errors.Newf("mail.port must be between 1 and 65535, got %d", c.Mail.Port)
		}
	}

	return nil
}
