// Package correlate matches inbound chat messages to the command that was
// just fired.
//
// Chat replies carry no request identifier, so correlation is temporal and
// content based: an event resolves the pending action only if it arrived
// strictly after the fire and strictly before the deadline, and the
// Classifier accepts it. This is a best-effort heuristic. A bot reply that
// arrives late is lost, and an unrelated message that happens to match
// inside the window is accepted.
//
// Exactly one PendingAction may be armed at a time. Events that arrive while
// nothing is armed, or that the Classifier rejects, are dropped without
// side effects.
package correlate

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/teranos/autoboat/errors"
	"github.com/teranos/autoboat/logger"
	"github.com/teranos/autoboat/pulse/schedule"
	"github.com/teranos/autoboat/transport"
)

// DefaultInboxSize bounds the buffer between the transport and the correlator
const DefaultInboxSize = 64

// PendingAction is a fired but not yet acknowledged invocation
type PendingAction struct {
	ID       string // cycle ID
	Command  schedule.CommandSpec
	FiredAt  time.Time
	Deadline time.Time
}

// NewPendingAction builds the pending action for a fire at firedAt
func NewPendingAction(id string, cmd schedule.CommandSpec, firedAt time.Time) PendingAction {
	return PendingAction{
		ID:       id,
		Command:  cmd,
		FiredAt:  firedAt,
		Deadline: firedAt.Add(cmd.ResponseWait),
	}
}

// Accepts reports whether t lies strictly inside the action's window
func (p PendingAction) Accepts(t time.Time) bool {
	return t.After(p.FiredAt) && t.Before(p.Deadline)
}

// Outcome is how a pending action resolved
type Outcome int

const (
	Matched Outcome = iota
	TimedOut
	Interrupted // the caller's context ended first
)

func (o Outcome) String() string {
	switch o {
	case Matched:
		return "matched"
	case TimedOut:
		return "timed_out"
	default:
		return "interrupted"
	}
}

// Result is the resolution of a pending action
type Result struct {
	Outcome Outcome
	Event   *transport.InboundEvent // set when Matched
}

// Correlator owns the inbox and the single pending-action slot
type Correlator struct {
	clock      clockwork.Clock
	classifier Classifier
	inbox      chan transport.InboundEvent
	log        *zap.SugaredLogger
	onDrop     func(transport.InboundEvent)
	verbosity  int

	mu      sync.Mutex
	pending *PendingAction
	gen     uint64 // bumped on every arm and resolve

	dropped atomic.Int64
}

// Option configures a Correlator
type Option func(*Correlator)

// WithInboxSize sets the inbox capacity
func WithInboxSize(n int) Option {
	return func(c *Correlator) {
		if n > 0 {
			c.inbox = make(chan transport.InboundEvent, n)
		}
	}
}

// WithDropHandler is called for every event evicted from a full inbox
func WithDropHandler(f func(transport.InboundEvent)) Option {
	return func(c *Correlator) { c.onDrop = f }
}

// WithVerbosity enables per-event debug output at -vv
func WithVerbosity(v int) Option {
	return func(c *Correlator) { c.verbosity = v }
}

// New creates a correlator
func New(clock clockwork.Clock, classifier Classifier, opts ...Option) *Correlator {
	c := &Correlator{
		clock:      clock,
		classifier: classifier,
		inbox:      make(chan transport.InboundEvent, DefaultInboxSize),
		log:        logger.AddReplySymbol(logger.ComponentLogger("pulse.correlate")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run pumps events into the inbox until ctx ends or events is closed.
// A full inbox drops its oldest event so the newest replies survive.
func (c *Correlator) Run(ctx context.Context, events <-chan transport.InboundEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			c.deliver(ev)
		}
	}
}

func (c *Correlator) deliver(ev transport.InboundEvent) {
	for {
		select {
		case c.inbox <- ev:
			return
		default:
		}
		select {
		case old := <-c.inbox:
			c.dropped.Add(1)
			c.log.Warnw("Inbox full, dropping oldest event",
				"event_id", old.ID,
				logger.FieldAuthor, old.Author)
			if c.onDrop != nil {
				c.onDrop(old)
			}
		default:
		}
	}
}

// Dropped returns how many events were evicted from a full inbox
func (c *Correlator) Dropped() int64 {
	return c.dropped.Load()
}

// Arm installs p in the single slot. Fails with ErrPendingBusy if another
// action is outstanding.
func (c *Correlator) Arm(p PendingAction) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending != nil {
		return errors.Mark(
			errors.Newf("cannot arm %s: %s still pending", p.Command.Name, c.pending.Command.Name),
			errors.ErrPendingBusy)
	}
	cp := p
	c.pending = &cp
	c.gen++
	return nil
}

// Sent moves the armed action's deadline to sentAt + ResponseWait once the
// invocation has actually gone out, so time spent queued behind a send-rate
// limiter is not taken from the reply window. The window still opens at the
// arm time.
func (c *Correlator) Sent(p PendingAction, sentAt time.Time) (PendingAction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil || c.pending.ID != p.ID {
		return p, errors.Newf("sent %s: action is not armed", p.Command.Name)
	}
	if deadline := sentAt.Add(p.Command.ResponseWait); deadline.After(c.pending.Deadline) {
		c.pending.Deadline = deadline
	}
	return *c.pending, nil
}

// Pending returns the armed action, if any
func (c *Correlator) Pending() (PendingAction, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return PendingAction{}, false
	}
	return *c.pending, true
}

// Await blocks until p resolves. p must be the armed action. The slot is
// cleared on return whatever the outcome.
func (c *Correlator) Await(ctx context.Context, p PendingAction) (Result, error) {
	gen, err := c.claim(p)
	if err != nil {
		return Result{}, err
	}
	defer c.resolve(gen)

	timer := c.clock.NewTimer(p.Deadline.Sub(c.clock.Now()))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return Result{Outcome: Interrupted}, nil

		case <-timer.Chan():
			// Events already queued may still fall inside the window
			for {
				select {
				case ev := <-c.inbox:
					if c.matches(p, ev) {
						return Result{Outcome: Matched, Event: &ev}, nil
					}
					continue
				default:
				}
				return Result{Outcome: TimedOut}, nil
			}

		case ev := <-c.inbox:
			if c.matches(p, ev) {
				return Result{Outcome: Matched, Event: &ev}, nil
			}
		}
	}
}

func (c *Correlator) matches(p PendingAction, ev transport.InboundEvent) bool {
	if !p.Accepts(ev.ArrivedAt) {
		if logger.ShouldOutput(c.verbosity, logger.OutputInbound) {
			c.log.Debugw("Event outside reply window",
				"event_id", ev.ID,
				logger.FieldCommand, p.Command.Name)
		}
		return false
	}
	verdict := c.classifier.Classify(p.Command, ev)
	if logger.ShouldOutput(c.verbosity, logger.OutputInbound) {
		c.log.Debugw("Event classified",
			"event_id", ev.ID,
			logger.FieldAuthor, ev.Author,
			logger.FieldCommand, p.Command.Name,
			"verdict", verdict.String())
	}
	return verdict == Match
}

// claim checks that p is the armed action and returns its generation
func (c *Correlator) claim(p PendingAction) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil || c.pending.ID != p.ID {
		return 0, errors.Newf("await %s: action is not armed", p.Command.Name)
	}
	return c.gen, nil
}

// resolve clears the slot if it still holds generation gen
func (c *Correlator) resolve(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen == gen {
		c.pending = nil
		c.gen++
	}
}

// Disarm clears the slot without awaiting (send failed after arming)
func (c *Correlator) Disarm(p PendingAction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending != nil && c.pending.ID == p.ID {
		c.pending = nil
		c.gen++
	}
}
