package am

import (
	"fmt"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override: PEGABATCH_QUOTA_THRESHOLD.
const EnvPrefix = "PEGABATCH"

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "pegabatch.db")

	v.SetDefault("pulse.ticker_interval", "1m")

	v.SetDefault("quota.threshold", 10)
	v.SetDefault("quota.default_cooldown", "15m")
	v.SetDefault("quota.reset_unit", "minutes")
	v.SetDefault("quota.window_calls", 0)
	v.SetDefault("quota.window", "15m")

	v.SetDefault("cache.ttl", "0s")

	v.SetDefault("pegabot.base_url", "https://backend.pegabot.com.br")
	v.SetDefault("pegabot.api_key", "")
	v.SetDefault("pegabot.timeout", "60s")
	v.SetDefault("pegabot.requests_per_second", 2.0)
	v.SetDefault("pegabot.max_retries", 3)
	v.SetDefault("pegabot.block_private_ip", false)

	v.SetDefault("inbox.dir", "data/in")
	v.SetDefault("inbox.work_dir", "data/tmp")
	v.SetDefault("inbox.out_dir", "data/out")
	v.SetDefault("inbox.watch", true)
	v.SetDefault("inbox.ignore", []string{"~$*", ".DS_Store"})
	v.SetDefault("inbox.archive_results", true)

	v.SetDefault("mail.enabled", false)
	v.SetDefault("mail.host", "")
	v.SetDefault("mail.port", 587)
	v.SetDefault("mail.username", "")
	v.SetDefault("mail.password", "")
	v.SetDefault("mail.from", "")
	v.SetDefault("mail.file_host", "")

	v.SetDefault("server.addr", "")
	v.SetDefault("server.log_theme", "everforest")
}

// BindSensitiveEnvVars explicitly binds sensitive configuration to environment variables
func BindSensitiveEnvVars(v *viper.Viper) {
	v.BindEnv("pegabot.api_key", EnvPrefix+"_PEGABOT_API_KEY")
	v.BindEnv("mail.password", EnvPrefix+"_MAIL_PASSWORD")
	v.BindEnv("database.path", EnvPrefix+"_DATABASE_PATH")
}

// GetDatabasePath returns the configured database path
func (c *Config) GetDatabasePath() string {
	if c.Database.Path == "" {
		return "pegabatch.db"
	}
	return c.Database.Path
}

// GetServerLogTheme returns the log theme (default: everforest)
func (c *Config) GetServerLogTheme() string {
	if c.Server.LogTheme == "" {
		return "everforest"
	}
	return c.Server.LogTheme
}

// String returns a string representation of the config without secrets
func (c *Config) String() string {
	return fmt.Sprintf("Config{Database: %s, Pulse: {Interval: %s}, Quota: {Threshold: %d, Cooldown: %s}, Pegabot: %s}",
		c.Database.Path, c.Pulse.TickerInterval, c.Quota.Threshold, c.Quota.DefaultCooldown, c.Pegabot.BaseURL)
}
