package schedule

import (
	"time"

	"github.com/google/uuid"
)

// Outcome is how a dispatch cycle settled
type Outcome string

const (
	OutcomeMatched     Outcome = "matched"
	OutcomeTimedOut    Outcome = "timed_out"
	OutcomeSendFailed  Outcome = "send_failed"
	OutcomeInterrupted Outcome = "interrupted"
)

// Valid reports whether o is one of the known outcomes
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeMatched, OutcomeTimedOut, OutcomeSendFailed, OutcomeInterrupted:
		return true
	}
	return false
}

// Cycle records one fire, await and settle of a command.
type Cycle struct {
	ID              string
	Command         string
	Outcome         Outcome
	Attempt         int // consecutive failures before this cycle
	FiredAt         time.Time
	SettledAt       *time.Time
	DurationMS      *int64
	ReplyExcerpt    *string
	LearnedCooldown time.Duration
	ErrorMessage    *string
	FollowUpOf      *string // parent cycle ID when fired as a follow-up
}

// NewCycleID returns a fresh cycle identifier
func NewCycleID() string {
	return uuid.NewString()
}

// Settle fills in the settle time and duration
func (c *Cycle) Settle(outcome Outcome, at time.Time) {
	c.Outcome = outcome
	c.SettledAt = &at
	ms := at.Sub(c.FiredAt).Milliseconds()
	c.DurationMS = &ms
}
