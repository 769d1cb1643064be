package dispatch

import (
	"time"

	"go.uber.org/zap"

	"github.com/teranos/autoboat/errors"
	"github.com/teranos/autoboat/internal/util"
	"github.com/teranos/autoboat/logger"
)

// EventKind names a dispatcher transition
type EventKind string

const (
	EventCountdown       EventKind = "countdown"
	EventStarted         EventKind = "started"
	EventIdle            EventKind = "idle"
	EventFired           EventKind = "fired"
	EventMatched         EventKind = "matched"
	EventTimedOut        EventKind = "timed_out"
	EventInterrupted     EventKind = "interrupted"
	EventSendFailed      EventKind = "send_failed"
	EventBackoff         EventKind = "backoff"
	EventCooldownLearned EventKind = "cooldown_learned"
	EventFollowUpSkipped EventKind = "follow_up_skipped"
	EventPersistFailed   EventKind = "persist_failed"
	EventReloaded        EventKind = "reloaded"
	EventStopped         EventKind = "stopped"
)

// Event is emitted as data for every transition. The dispatcher itself never
// writes to the console.
type Event struct {
	Kind     EventKind
	State    State
	Command  string
	CycleID  string
	At       time.Time
	Attempt  int           // consecutive failures after this event
	Backoff  time.Duration // backoff and timed_out
	Cooldown time.Duration // cooldown_learned, fired
	Wait     time.Duration // idle and countdown
	Count    int           // reloaded: states removed
	Payload  string        // matched reply content
	Err      error
	ErrorCtx *ErrorContext
}

// Observer receives dispatcher events. Observe is called on the dispatcher
// goroutine and must not block.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(Event)

// Observe calls f(ev)
func (f ObserverFunc) Observe(ev Event) { f(ev) }

// Observers fans one event out to several observers in order
type Observers []Observer

// Observe delivers ev to every observer
func (o Observers) Observe(ev Event) {
	for _, obs := range o {
		if obs != nil {
			obs.Observe(ev)
		}
	}
}

// LogObserver writes events to the structured log, filtered by verbosity
type LogObserver struct {
	log       *zap.SugaredLogger
	reply     *zap.SugaredLogger
	verbosity int
}

// NewLogObserver creates a LogObserver on the pulse.dispatch component logger
func NewLogObserver(verbosity int) *LogObserver {
	base := logger.ComponentLogger("pulse.dispatch")
	return &LogObserver{
		log:       logger.AddPulseSymbol(base),
		reply:     logger.AddReplySymbol(base),
		verbosity: verbosity,
	}
}

// Observe logs ev
func (o *LogObserver) Observe(ev Event) {
	switch ev.Kind {
	case EventCountdown:
		o.log.Infow("Starting soon", logger.FieldNextIn, ev.Wait.String())

	case EventStarted:
		logger.PulseOpenInfow("Dispatcher started")

	case EventStopped:
		logger.PulseCloseInfow("Dispatcher stopped")

	case EventIdle:
		if logger.ShouldOutput(o.verbosity, logger.OutputSchedule) {
			o.log.Infow("Nothing due", logger.FieldNextIn, ev.Wait.String())
		}

	case EventFired:
		if logger.ShouldOutput(o.verbosity, logger.OutputFires) {
			o.log.Infow("Fired",
				logger.FieldCommand, ev.Command,
				logger.FieldCycleID, ev.CycleID,
				logger.FieldAttempt, ev.Attempt,
			)
		}

	case EventMatched:
		if logger.ShouldOutput(o.verbosity, logger.OutputReplies) {
			o.reply.Infow("Reply matched",
				logger.FieldCommand, ev.Command,
				logger.FieldCycleID, ev.CycleID,
				"reply", util.Excerpt(ev.Payload, 80),
			)
		}

	case EventCooldownLearned:
		if logger.ShouldOutput(o.verbosity, logger.OutputSchedule) {
			o.log.Infow("Cooldown learned from reply",
				logger.FieldCommand, ev.Command,
				logger.FieldCooldown, ev.Cooldown.String(),
			)
		}

	case EventTimedOut:
		o.log.Warnw("No reply before deadline",
			logger.FieldCommand, ev.Command,
			logger.FieldCycleID, ev.CycleID,
			logger.FieldFailures, ev.Attempt,
			logger.FieldBackoffMS, ev.Backoff.Milliseconds(),
		)

	case EventInterrupted:
		o.log.Infow("Reply wait interrupted by shutdown",
			logger.FieldCommand, ev.Command,
			logger.FieldCycleID, ev.CycleID,
		)

	case EventSendFailed:
		fields := []interface{}{
			logger.FieldCommand, ev.Command,
			logger.FieldFailures, ev.Attempt,
			logger.FieldError, ev.Err,
		}
		if ev.ErrorCtx != nil {
			fields = append(fields, "code", string(ev.ErrorCtx.Code))
		}
		if hints := errors.GetAllHints(ev.Err); len(hints) > 0 {
			fields = append(fields, "hint", hints[0])
		}
		o.log.Warnw("Send failed", fields...)

	case EventBackoff:
		o.log.Infow("Backing off",
			logger.FieldCommand, ev.Command,
			logger.FieldBackoffMS, ev.Backoff.Milliseconds(),
		)

	case EventFollowUpSkipped:
		if logger.ShouldOutput(o.verbosity, logger.OutputSchedule) {
			o.log.Infow("Follow-up not due, skipped", logger.FieldCommand, ev.Command)
		}

	case EventPersistFailed:
		logger.AddDBSymbol(o.log).Errorw("State not persisted, memory stays authoritative",
			logger.FieldCommand, ev.Command,
			logger.FieldError, ev.Err,
		)

	case EventReloaded:
		if logger.ShouldOutput(o.verbosity, logger.OutputConfig) {
			logger.AddAMSymbol(o.log).Infow("Commands reloaded", logger.FieldCount, ev.Count)
		}
	}
}
