package am

import (
	"regexp"

	"github.com/teranos/autoboat/errors"
)

var validThemes = map[string]bool{"": true, "everforest": true, "gruvbox": true}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	// Database: keep_cycles 0 = keep everything, negative = invalid
	if c.Database.KeepCycles < 0 {
		return errors.NewInvalidConfigError("database.keep_cycles must be >= 0, got %d", c.Database.KeepCycles)
	}

	// Timing: 0 countdown skips it, but the idle cap must be positive
	if c.Timing.StartupCountdownSeconds < 0 {
		return errors.NewInvalidConfigError("timing.startup_countdown_seconds must be >= 0, got %d", c.Timing.StartupCountdownSeconds)
	}
	if c.Timing.MaxIdleSleepSeconds <= 0 {
		return errors.NewInvalidConfigError("timing.max_idle_sleep_seconds must be > 0, got %d", c.Timing.MaxIdleSleepSeconds)
	}
	if c.Timing.UnknownCooldownRetrySeconds < 0 {
		return errors.NewInvalidConfigError("timing.unknown_cooldown_retry_seconds must be >= 0, got %d", c.Timing.UnknownCooldownRetrySeconds)
	}

	if c.Dispatch.BackoffInitialSeconds <= 0 {
		return errors.NewInvalidConfigError("dispatch.backoff_initial_seconds must be > 0, got %g", c.Dispatch.BackoffInitialSeconds)
	}
	if c.Dispatch.BackoffFactor < 1 {
		return errors.NewInvalidConfigError("dispatch.backoff_factor must be >= 1, got %g", c.Dispatch.BackoffFactor)
	}
	if c.Dispatch.BackoffMaxSeconds < c.Dispatch.BackoffInitialSeconds {
		return errors.NewInvalidConfigError("dispatch.backoff_max_seconds (%g) must be >= backoff_initial_seconds (%g)",
			c.Dispatch.BackoffMaxSeconds, c.Dispatch.BackoffInitialSeconds)
	}

	// Limits: 0 = unlimited, negative = invalid
	if c.Dispatch.MaxFiresPerMinute < 0 {
		return errors.NewInvalidConfigError("dispatch.max_fires_per_minute must be >= 0, got %d", c.Dispatch.MaxFiresPerMinute)
	}
	if c.Gateway.MaxSendsPerMinute < 0 {
		return errors.NewInvalidConfigError("gateway.max_sends_per_minute must be >= 0, got %d", c.Gateway.MaxSendsPerMinute)
	}
	if c.Gateway.MaxReconnectAttempts < 0 {
		return errors.NewInvalidConfigError("gateway.max_reconnect_attempts must be >= 0, got %d", c.Gateway.MaxReconnectAttempts)
	}

	if c.Correlate.InboxSize <= 0 {
		return errors.NewInvalidConfigError("correlate.inbox_size must be > 0, got %d", c.Correlate.InboxSize)
	}
	for _, p := range c.Correlate.CooldownPatterns {
		if _, err := regexp.Compile(p); err != nil {
			return errors.Mark(errors.Wrapf(err, "correlate.cooldown_patterns: %q", p), errors.ErrInvalidConfig)
		}
	}

	if !validThemes[c.Log.Theme] {
		return errors.NewInvalidConfigError("log.theme must be everforest or gruvbox, got %q", c.Log.Theme)
	}

	return c.validateCommands()
}

func (c *Config) validateCommands() error {
	orders := make(map[int]string)
	scheduled := 0

	for _, name := range sortedCommandNames(c.Commands) {
		cmd := c.Commands[name]
		key := "commands." + name

		if cmd.CooldownMinutes < 0 || cmd.CooldownSeconds < 0 {
			return errors.NewInvalidConfigError("%s: cooldown must be >= 0", key)
		}
		if cmd.ResponseWaitSeconds < 0 {
			return errors.NewInvalidConfigError("%s.response_wait_seconds must be >= 0, got %g", key, cmd.ResponseWaitSeconds)
		}
		if cmd.FollowUpWaitSeconds < 0 {
			return errors.NewInvalidConfigError("%s.follow_up_wait_seconds must be >= 0, got %g", key, cmd.FollowUpWaitSeconds)
		}
		for _, p := range cmd.MatchPatterns {
			if _, err := regexp.Compile(p); err != nil {
				return errors.Mark(errors.Wrapf(err, "%s.match_patterns: %q", key, p), errors.ErrInvalidConfig)
			}
		}

		if cmd.FollowUp != "" {
			if cmd.FollowUp == name {
				return errors.NewInvalidConfigError("%s.follow_up cannot reference itself", key)
			}
			if _, ok := c.Commands[cmd.FollowUp]; !ok {
				return errors.WithHintf(
					errors.NewInvalidConfigError("%s.follow_up references unknown command %q", key, cmd.FollowUp),
					"define [commands.%s] or remove follow_up", cmd.FollowUp)
			}
		}

		if cmd.Order != nil {
			if other, dup := orders[*cmd.Order]; dup {
				return errors.NewInvalidConfigError("%s.order %d duplicates commands.%s.order", key, *cmd.Order, other)
			}
			orders[*cmd.Order] = name
		}

		if !cmd.IsEnabled() {
			continue
		}
		if cmd.Command == "" {
			return errors.NewInvalidConfigError("%s.command cannot be empty when enabled", key)
		}
		// The reply window is open-ended on both sides; zero width can never match
		if cmd.ResponseWaitSeconds <= 0 {
			return errors.WithHintf(
				errors.NewInvalidConfigError("%s.response_wait_seconds must be > 0 when enabled, got %g", key, cmd.ResponseWaitSeconds),
				"set %s.response_wait_seconds (5 suits most bots)", key)
		}
		if !cmd.FollowUpOnly {
			scheduled++
		}
	}

	if scheduled == 0 {
		return errors.WithHint(
			errors.NewInvalidConfigError("no enabled commands to schedule"),
			"enable at least one command that is not follow_up_only")
	}
	return nil
}
