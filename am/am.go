// Package am loads, validates, and watches autoboat configuration.
//
// Sources merge in precedence order (lowest first):
//
//	built-in defaults < /etc/autoboat/config.toml < ~/.autoboat/am.toml
//	< project am.toml (found by walking up from the working directory)
//	< AUTOBOAT_* environment variables < explicit --config path
package am

import "time"

// Config represents the autoboat configuration
type Config struct {
	Database  DatabaseConfig           `mapstructure:"database" toml:"database"`
	Gateway   GatewayConfig            `mapstructure:"gateway" toml:"gateway"`
	Timing    TimingConfig             `mapstructure:"timing" toml:"timing"`
	Dispatch  DispatchConfig           `mapstructure:"dispatch" toml:"dispatch"`
	Correlate CorrelateConfig          `mapstructure:"correlate" toml:"correlate"`
	Commands  map[string]CommandConfig `mapstructure:"commands" toml:"commands"`
	Log       LogConfig                `mapstructure:"log" toml:"log"`
}

// DatabaseConfig configures the SQLite state store
type DatabaseConfig struct {
	Path       string `mapstructure:"path" toml:"path"`
	KeepCycles int    `mapstructure:"keep_cycles" toml:"keep_cycles"` // cycle log rows retained (0 = unlimited)
}

// GatewayConfig configures the chat bridge connection
type GatewayConfig struct {
	URL                  string   `mapstructure:"url" toml:"url"`
	Endpoints            []string `mapstructure:"endpoints" toml:"endpoints"` // rotated on reconnect; url is tried first
	Token                string   `mapstructure:"token" toml:"token"`
	TokenFile            string   `mapstructure:"token_file" toml:"token_file"` // file with a TOKEN=... line
	ChannelID            string   `mapstructure:"channel_id" toml:"channel_id"`
	Prefix               string   `mapstructure:"prefix" toml:"prefix"` // "/" selects slash-command invocations
	MaxSendsPerMinute    int      `mapstructure:"max_sends_per_minute" toml:"max_sends_per_minute"`
	Silent               bool     `mapstructure:"silent" toml:"silent"`
	MaxReconnectAttempts int      `mapstructure:"max_reconnect_attempts" toml:"max_reconnect_attempts"` // 0 = unlimited
}

// TimingConfig configures the run loop's timing envelope
type TimingConfig struct {
	StartupCountdownSeconds     int `mapstructure:"startup_countdown_seconds" toml:"startup_countdown_seconds"`
	MaxIdleSleepSeconds         int `mapstructure:"max_idle_sleep_seconds" toml:"max_idle_sleep_seconds"`
	UnknownCooldownRetrySeconds int `mapstructure:"unknown_cooldown_retry_seconds" toml:"unknown_cooldown_retry_seconds"`
}

// DispatchConfig configures failure backoff and the global fire budget
type DispatchConfig struct {
	BackoffInitialSeconds float64 `mapstructure:"backoff_initial_seconds" toml:"backoff_initial_seconds"`
	BackoffFactor         float64 `mapstructure:"backoff_factor" toml:"backoff_factor"`
	BackoffMaxSeconds     float64 `mapstructure:"backoff_max_seconds" toml:"backoff_max_seconds"`
	MaxFiresPerMinute     int     `mapstructure:"max_fires_per_minute" toml:"max_fires_per_minute"` // 0 = unlimited
}

// CorrelateConfig configures reply matching
type CorrelateConfig struct {
	InboxSize        int      `mapstructure:"inbox_size" toml:"inbox_size"`
	BotAuthors       []string `mapstructure:"bot_authors" toml:"bot_authors"` // empty = any author
	CooldownPatterns []string `mapstructure:"cooldown_patterns" toml:"cooldown_patterns"`
	RequireMention   string   `mapstructure:"require_mention" toml:"require_mention"` // reply must contain this text
	SelfAuthor       string   `mapstructure:"self_author" toml:"self_author"`         // our own echoed sends are ignored
}

// CommandConfig configures one bot command
type CommandConfig struct {
	Command             string   `mapstructure:"command" toml:"command"`
	Enabled             *bool    `mapstructure:"enabled" toml:"enabled,omitempty"` // nil = enabled
	CooldownMinutes     float64  `mapstructure:"cooldown_minutes" toml:"cooldown_minutes"`
	CooldownSeconds     int      `mapstructure:"cooldown_seconds" toml:"cooldown_seconds"` // added to cooldown_minutes
	ResponseWaitSeconds float64  `mapstructure:"response_wait_seconds" toml:"response_wait_seconds"`
	FollowUp            string   `mapstructure:"follow_up" toml:"follow_up"`
	FollowUpWaitSeconds float64  `mapstructure:"follow_up_wait_seconds" toml:"follow_up_wait_seconds"`
	FollowUpOnly        bool     `mapstructure:"follow_up_only" toml:"follow_up_only"` // never scheduled on its own
	MatchPatterns       []string `mapstructure:"match_patterns" toml:"match_patterns"`
	SlashCommandID      string   `mapstructure:"slash_command_id" toml:"slash_command_id"` // slash mode: resolve by ID instead of name
	Order               *int     `mapstructure:"order" toml:"order,omitempty"`
}

// LogConfig configures console output
type LogConfig struct {
	JSON  bool   `mapstructure:"json" toml:"json"`
	Theme string `mapstructure:"theme" toml:"theme"` // gruvbox, everforest
}

// IsEnabled reports whether the command participates in scheduling
func (c CommandConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// Cooldown returns the configured cooldown; 0 means unknown
func (c CommandConfig) Cooldown() time.Duration {
	return seconds(c.CooldownMinutes*60) + time.Duration(c.CooldownSeconds)*time.Second
}

// ResponseWait returns how long to wait for the bot's reply
func (c CommandConfig) ResponseWait() time.Duration {
	return seconds(c.ResponseWaitSeconds)
}

// FollowUpDelay returns the pause before the follow-up command is sent
func (c CommandConfig) FollowUpDelay() time.Duration {
	return seconds(c.FollowUpWaitSeconds)
}

// StartupCountdown returns the delay before the run loop begins
func (t TimingConfig) StartupCountdown() time.Duration {
	return time.Duration(t.StartupCountdownSeconds) * time.Second
}

// MaxIdleSleep caps a single idle sleep so wall-clock steps are noticed
func (t TimingConfig) MaxIdleSleep() time.Duration {
	return time.Duration(t.MaxIdleSleepSeconds) * time.Second
}

// UnknownCooldownRetry is the wait after firing a command whose cooldown is unknown
func (t TimingConfig) UnknownCooldownRetry() time.Duration {
	return time.Duration(t.UnknownCooldownRetrySeconds) * time.Second
}

// BackoffInitial returns the first error backoff
func (d DispatchConfig) BackoffInitial() time.Duration { return seconds(d.BackoffInitialSeconds) }

// BackoffMax returns the backoff ceiling
func (d DispatchConfig) BackoffMax() time.Duration { return seconds(d.BackoffMaxSeconds) }

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// File system constants
const (
	DefaultDirPermissions  = 0755
	DefaultFilePermissions = 0644
	SecretFilePermissions  = 0600 // written configs may contain the gateway token
)
