package am

import (
	"github.com/spf13/viper"
)

// Built-in command names, in the order they are scheduled when no explicit
// order is configured.
var builtinCommandOrder = []string{"work", "collect", "deposit"}

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "autoboat.db")
	v.SetDefault("database.keep_cycles", 5000)

	v.SetDefault("gateway.prefix", "")
	v.SetDefault("gateway.max_sends_per_minute", 20)
	v.SetDefault("gateway.silent", false)
	v.SetDefault("gateway.max_reconnect_attempts", 10)

	v.SetDefault("timing.startup_countdown_seconds", 5)
	v.SetDefault("timing.max_idle_sleep_seconds", 60)
	v.SetDefault("timing.unknown_cooldown_retry_seconds", 600)

	// min(5s * 2^(n-1), 300s)
	v.SetDefault("dispatch.backoff_initial_seconds", 5.0)
	v.SetDefault("dispatch.backoff_factor", 2.0)
	v.SetDefault("dispatch.backoff_max_seconds", 300.0)
	v.SetDefault("dispatch.max_fires_per_minute", 6)

	v.SetDefault("correlate.inbox_size", 64)
	v.SetDefault("correlate.bot_authors", []string{})
	v.SetDefault("correlate.require_mention", "")
	v.SetDefault("correlate.self_author", "")
	v.SetDefault("correlate.cooldown_patterns", []string{
		`(?i)wait (?:(?P<h>\d+)h )?(?:(?P<m>\d+)m )?(?P<s>\d+)s`,
		`(?i)try again in (?P<m>\d+) minutes?`,
	})

	v.SetDefault("commands.work.command", "work")
	v.SetDefault("commands.work.enabled", true)
	v.SetDefault("commands.work.cooldown_minutes", 5)
	v.SetDefault("commands.work.response_wait_seconds", 5)
	v.SetDefault("commands.work.follow_up", "deposit")
	v.SetDefault("commands.work.follow_up_wait_seconds", 2)

	v.SetDefault("commands.collect.command", "collect")
	v.SetDefault("commands.collect.enabled", false)
	v.SetDefault("commands.collect.cooldown_minutes", 60)
	v.SetDefault("commands.collect.response_wait_seconds", 5)
	v.SetDefault("commands.collect.follow_up", "deposit")
	v.SetDefault("commands.collect.follow_up_wait_seconds", 2)

	v.SetDefault("commands.deposit.command", "deposit all")
	v.SetDefault("commands.deposit.enabled", true)
	v.SetDefault("commands.deposit.follow_up_only", true)
	v.SetDefault("commands.deposit.response_wait_seconds", 5)

	v.SetDefault("log.json", false)
	v.SetDefault("log.theme", "everforest")
}

// BindSensitiveEnvVars explicitly binds sensitive configuration to environment variables
func BindSensitiveEnvVars(v *viper.Viper) {
	// TOKEN matches the .env convention of older setups
	_ = v.BindEnv("gateway.token", "AUTOBOAT_GATEWAY_TOKEN", "TOKEN")
	_ = v.BindEnv("gateway.url", "AUTOBOAT_GATEWAY_URL")
	_ = v.BindEnv("database.path", "AUTOBOAT_DATABASE_PATH")
}

// GetDatabasePath returns the configured database path
func (c *Config) GetDatabasePath() string {
	if c.Database.Path == "" {
		return "autoboat.db"
	}
	return c.Database.Path
}

// GetLogTheme returns the log theme (default: everforest)
func (c *Config) GetLogTheme() string {
	if c.Log.Theme == "" {
		return "everforest"
	}
	return c.Log.Theme
}
