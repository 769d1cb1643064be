// Package schedule tracks per-command cooldowns and decides which bot command
// is due next.
//
// A CommandSpec is the static description of a command loaded from
// configuration. A CommandState is its durable runtime record. The Scheduler
// owns both in memory; the Store persists states to SQLite and the CycleStore
// keeps a log of every dispatch cycle.
package schedule

import "time"

// DefaultUnknownCooldownRetry is how long a command with an unknown cooldown
// waits after firing before it is tried again.
const DefaultUnknownCooldownRetry = 10 * time.Minute

// CommandSpec describes one bot command. Immutable once handed to the Scheduler.
type CommandSpec struct {
	Name          string
	Invocation    string        // text sent to the channel
	Enabled       bool
	Cooldown      time.Duration // 0 = unknown
	ResponseWait  time.Duration
	FollowUp      string        // command fired after a matched reply, if any
	FollowUpDelay time.Duration
	FollowUpOnly  bool // only ever fired as another command's follow-up
	MatchPatterns []string
	SlashID       string
	Order         int
}

// Scheduled reports whether NextDue may pick this command on its own
func (s CommandSpec) Scheduled() bool {
	return s.Enabled && !s.FollowUpOnly
}

// CommandState is the durable runtime record of a command
type CommandState struct {
	Name                string
	LastFiredAt         *time.Time
	LastSucceededAt     *time.Time
	ConsecutiveFailures int
	LearnedCooldown     time.Duration // 0 = none learned
}

// Clone returns a deep copy so callers never share timestamp pointers
func (s CommandState) Clone() CommandState {
	out := s
	if s.LastFiredAt != nil {
		t := *s.LastFiredAt
		out.LastFiredAt = &t
	}
	if s.LastSucceededAt != nil {
		t := *s.LastSucceededAt
		out.LastSucceededAt = &t
	}
	return out
}

// Equal compares two states by value
func (s CommandState) Equal(o CommandState) bool {
	return s.Name == o.Name &&
		timePtrEqual(s.LastFiredAt, o.LastFiredAt) &&
		timePtrEqual(s.LastSucceededAt, o.LastSucceededAt) &&
		s.ConsecutiveFailures == o.ConsecutiveFailures &&
		s.LearnedCooldown == o.LearnedCooldown
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

// Status is a read-only view of a command for the CLI and observers
type Status struct {
	Spec      CommandSpec
	State     CommandState
	NextDueAt time.Time
	Cooldown  time.Duration // effective cooldown for the next cycle
	Due       bool
}
