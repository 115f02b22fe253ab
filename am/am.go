// Package am ("as-is configuration") loads pegabatch settings from TOML files
// and PEGABATCH_* environment variables.
package am

import "time"

// Config represents the pegabatch configuration
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Pulse    PulseConfig    `mapstructure:"pulse"`
	Quota    QuotaConfig    `mapstructure:"quota"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Pegabot  PegabotConfig  `mapstructure:"pegabot"`
	Inbox    InboxConfig    `mapstructure:"inbox"`
	Mail     MailConfig     `mapstructure:"mail"`
	Server   ServerConfig   `mapstructure:"server"`
}

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// PulseConfig configures the pass scheduler
type PulseConfig struct {
	TickerInterval time.Duration `mapstructure:"ticker_interval"` // time between passes (default: 1m)
}

// QuotaConfig configures preemptive suspension
type QuotaConfig struct {
	Threshold       int           `mapstructure:"threshold"`        // suspend when remaining <= threshold (default: 10)
	DefaultCooldown time.Duration `mapstructure:"default_cooldown"` // used when the API gives no reset time (default: 15m)
	ResetUnit       string        `mapstructure:"reset_unit"`       // unit of rate_limit.toReset: minutes or seconds
	WindowCalls     int           `mapstructure:"window_calls"`     // local sliding-window estimate, 0 = disabled
	Window          time.Duration `mapstructure:"window"`           // sliding window length (default: 15m)
}

// CacheConfig configures the response cache
type CacheConfig struct {
	TTL time.Duration `mapstructure:"ttl"` // 0 = entries never expire
}

// PegabotConfig configures the scoring API client
type PegabotConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	APIKey            string        `mapstructure:"api_key"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"` // negative = unlimited
	MaxRetries        int           `mapstructure:"max_retries"`
	BlockPrivateIP    bool          `mapstructure:"block_private_ip"`
}

// InboxConfig configures upload intake and result output
type InboxConfig struct {
	Dir            string   `mapstructure:"dir"`
	WorkDir        string   `mapstructure:"work_dir"`
	OutDir         string   `mapstructure:"out_dir"`
	Watch          bool     `mapstructure:"watch"`
	Ignore         []string `mapstructure:"ignore"` // doublestar globs skipped by intake
	ArchiveResults bool     `mapstructure:"archive_results"`
}

// MailConfig configures owner notifications
type MailConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	FileHost string `mapstructure:"file_host"` // prefix of download links in results mail
}

// ServerConfig configures the read-only status server
type ServerConfig struct {
	Addr     string `mapstructure:"addr"`      // empty = disabled
	LogTheme string `mapstructure:"log_theme"` // gruvbox, everforest
}

// File system constants
const (
	DefaultDirPermissions  = 0755
	DefaultFilePermissions = 0644
)
