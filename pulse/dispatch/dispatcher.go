// Package dispatch runs the automation loop: ask the scheduler what is due,
// fire it through the transport, let the correlator wait for the bot's reply,
// settle the outcome into the scheduler and the store, repeat.
//
// Commands are strictly serialized. One PendingAction exists at a time and it
// is a field of the Dispatcher, handed to the correlator for the wait.
package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/teranos/autoboat/errors"
	"github.com/teranos/autoboat/internal/util"
	"github.com/teranos/autoboat/logger"
	"github.com/teranos/autoboat/pulse/budget"
	"github.com/teranos/autoboat/pulse/correlate"
	"github.com/teranos/autoboat/pulse/schedule"
	"github.com/teranos/autoboat/transport"
)

// DefaultMaxIdleSleep caps one idle sleep so wall-clock steps are noticed
const DefaultMaxIdleSleep = 60 * time.Second

// replyExcerptLen bounds the reply text kept in the cycle log
const replyExcerptLen = 200

// State is the dispatcher's position in its cycle
type State int

const (
	StateIdle State = iota
	StateFiring
	StateAwaitingResponse
	StateSettling
	StateErrorBackoff
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFiring:
		return "firing"
	case StateAwaitingResponse:
		return "awaiting_response"
	case StateSettling:
		return "settling"
	case StateErrorBackoff:
		return "error_backoff"
	default:
		return "unknown"
	}
}

// Dispatcher owns the control loop. It is the only writer of the Scheduler
// and the Store while running.
type Dispatcher struct {
	clock     clockwork.Clock
	sched     *schedule.Scheduler
	transport transport.Transport
	corr      *correlate.Correlator

	store      *schedule.Store
	cycles     *schedule.CycleStore
	extractor  correlate.CooldownExtractor
	budget     *budget.Limiter
	observer   Observer
	policy     Policy
	maxIdle    time.Duration
	countdown  time.Duration
	keepCycles int
	log        *zap.SugaredLogger

	reloads chan []schedule.CommandSpec

	mu      sync.Mutex
	state   State
	pending *correlate.PendingAction
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithStore persists command states after every settled cycle
func WithStore(s *schedule.Store) Option {
	return func(d *Dispatcher) { d.store = s }
}

// WithCycleStore records every cycle in the cycle log
func WithCycleStore(s *schedule.CycleStore) Option {
	return func(d *Dispatcher) { d.cycles = s }
}

// WithKeepCycles bounds the cycle log; 0 keeps everything
func WithKeepCycles(n int) Option {
	return func(d *Dispatcher) { d.keepCycles = n }
}

// WithCooldownExtractor reads authoritative cooldowns out of matched replies
func WithCooldownExtractor(e correlate.CooldownExtractor) Option {
	return func(d *Dispatcher) { d.extractor = e }
}

// WithBudget caps fires per minute across all commands
func WithBudget(b *budget.Limiter) Option {
	return func(d *Dispatcher) {
		if b != nil {
			d.budget = b
		}
	}
}

// WithObserver receives every transition as an Event
func WithObserver(o Observer) Option {
	return func(d *Dispatcher) { d.observer = o }
}

// WithPolicy sets the failure backoff
func WithPolicy(p Policy) Option {
	return func(d *Dispatcher) { d.policy = p }
}

// WithMaxIdleSleep caps a single idle sleep
func WithMaxIdleSleep(max time.Duration) Option {
	return func(d *Dispatcher) {
		if max > 0 {
			d.maxIdle = max
		}
	}
}

// WithStartupCountdown delays the first cycle
func WithStartupCountdown(c time.Duration) Option {
	return func(d *Dispatcher) { d.countdown = c }
}

// New creates a dispatcher. The correlator must be running (Correlator.Run)
// on the transport's events before Run is called.
func New(clock clockwork.Clock, sched *schedule.Scheduler, tr transport.Transport, corr *correlate.Correlator, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		clock:     clock,
		sched:     sched,
		transport: tr,
		corr:      corr,
		budget:    budget.NewLimiterWithClock(0, clock),
		policy:    DefaultPolicy(),
		maxIdle:   DefaultMaxIdleSleep,
		log:       logger.AddPulseSymbol(logger.ComponentLogger("pulse.dispatch")),
		reloads:   make(chan []schedule.CommandSpec, 1),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// State returns the current state
func (d *Dispatcher) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Pending returns the outstanding action, if any
func (d *Dispatcher) Pending() (correlate.PendingAction, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending == nil {
		return correlate.PendingAction{}, false
	}
	return *d.pending, true
}

// Reload hands a new command set to the loop. It is applied between cycles,
// never during one. Only the latest unapplied set is kept.
func (d *Dispatcher) Reload(specs []schedule.CommandSpec) {
	for {
		select {
		case d.reloads <- specs:
			return
		default:
		}
		select {
		case <-d.reloads:
		default:
		}
	}
}

// Run loops until ctx is cancelled. Shutdown is honoured between states and
// while sleeping or awaiting a reply, never in the middle of a send. Returns
// nil on shutdown, or an error if the transport was closed underneath it.
func (d *Dispatcher) Run(ctx context.Context) error {
	if !d.runCountdown(ctx) {
		return nil
	}
	d.emit(Event{Kind: EventStarted})
	defer d.emit(Event{Kind: EventStopped})

	for {
		select {
		case <-ctx.Done():
			return nil
		case specs := <-d.reloads:
			d.applyReload(ctx, specs)
		default:
		}

		name, ok := d.sched.NextDue(d.clock.Now())
		if !ok {
			d.idle(ctx)
			continue
		}
		if err := d.runCycle(ctx, name, ""); err != nil {
			return err
		}
	}
}

func (d *Dispatcher) runCountdown(ctx context.Context) bool {
	remaining := d.countdown
	for remaining > 0 {
		d.emit(Event{Kind: EventCountdown, Wait: remaining})
		step := min(remaining, time.Second)
		select {
		case <-ctx.Done():
			return false
		case <-d.clock.After(step):
		}
		remaining -= step
	}
	return ctx.Err() == nil
}

func (d *Dispatcher) idle(ctx context.Context) {
	wait := d.maxIdle
	if at, ok := d.sched.NextWake(); ok {
		wait = util.ClampDuration(at.Sub(d.clock.Now()), 0, d.maxIdle)
	}
	d.emit(Event{Kind: EventIdle, Wait: wait})

	select {
	case <-ctx.Done():
	case <-d.clock.After(wait):
	case specs := <-d.reloads:
		d.applyReload(ctx, specs)
	}
}

// runCycle fires name and carries the cycle through settling. A matched
// cycle may chain into its follow-up; follow-ups do not chain further.
func (d *Dispatcher) runCycle(ctx context.Context, name, parentID string) error {
	spec, ok := d.sched.Spec(name)
	if !ok || !spec.Enabled {
		return nil
	}

	d.setState(StateFiring)
	if err := d.budget.Wait(ctx); err != nil {
		// Shutdown before anything was sent
		d.setState(StateIdle)
		return nil
	}

	cycle := &schedule.Cycle{
		ID:      schedule.NewCycleID(),
		Command: name,
		Attempt: d.sched.Failures(name),
		FiredAt: d.clock.Now(),
	}
	if parentID != "" {
		cycle.FollowUpOf = util.Ptr(parentID)
	}

	// Armed before sending so a fast reply cannot slip past
	pending := correlate.NewPendingAction(cycle.ID, spec, cycle.FiredAt)
	if err := d.corr.Arm(pending); err != nil {
		d.setState(StateIdle)
		return errors.Wrapf(err, "arming %s", name)
	}

	if err := d.transport.Send(context.WithoutCancel(ctx), spec.Invocation); err != nil {
		d.corr.Disarm(pending)
		return d.sendFailed(ctx, cycle, err)
	}

	// The transport may have waited on its own rate limiter; cooldown and
	// reply window both run from when the invocation actually left.
	if sentAt := d.clock.Now(); sentAt.After(cycle.FiredAt) {
		cycle.FiredAt = sentAt
		stamped, err := d.corr.Sent(pending, sentAt)
		if err != nil {
			return errors.Wrapf(err, "stamping send of %s", name)
		}
		pending = stamped
	}

	d.mu.Lock()
	d.pending = &pending
	d.state = StateAwaitingResponse
	d.mu.Unlock()
	d.emit(Event{
		Kind:     EventFired,
		Command:  name,
		CycleID:  cycle.ID,
		At:       cycle.FiredAt,
		Attempt:  cycle.Attempt,
		Cooldown: d.sched.EffectiveCooldown(name),
	})

	res, err := d.corr.Await(ctx, pending)

	d.mu.Lock()
	d.pending = nil
	d.state = StateSettling
	d.mu.Unlock()
	if err != nil {
		return errors.Wrapf(err, "awaiting reply to %s", name)
	}

	outcome := d.settle(ctx, spec, cycle, res)
	d.setState(StateIdle)

	if outcome == correlate.Matched && spec.FollowUp != "" && parentID == "" {
		return d.followUp(ctx, spec, cycle.ID)
	}
	return nil
}

// sendFailed handles ErrorBackoff. LastFiredAt is not advanced: nothing was sent.
func (d *Dispatcher) sendFailed(ctx context.Context, cycle *schedule.Cycle, err error) error {
	name := cycle.Command
	failures := d.sched.RecordFailed(name)
	backoff := Backoff(d.policy, failures)
	ec := ClassifyError("fire", err)

	cycle.ErrorMessage = util.Ptr(err.Error())
	cycle.Settle(schedule.OutcomeSendFailed, d.clock.Now())
	d.persist(ctx, name)
	d.record(ctx, cycle)

	d.emit(Event{Kind: EventSendFailed, Command: name, CycleID: cycle.ID, Attempt: failures, Err: err, ErrorCtx: &ec})

	if ec.Code == ErrorCodeClosed {
		d.setState(StateIdle)
		return errors.Wrapf(err, "sending %s", name)
	}

	d.setState(StateErrorBackoff)
	d.emit(Event{Kind: EventBackoff, Command: name, Attempt: failures, Backoff: backoff})
	select {
	case <-ctx.Done():
	case <-d.clock.After(backoff):
	}
	d.setState(StateIdle)
	return nil
}

// settle applies the outcome of an awaited cycle. Every outcome advances
// LastFiredAt to the fire time because the invocation did reach the channel.
func (d *Dispatcher) settle(ctx context.Context, spec schedule.CommandSpec, cycle *schedule.Cycle, res correlate.Result) correlate.Outcome {
	name := spec.Name
	now := d.clock.Now()

	switch res.Outcome {
	case correlate.Matched:
		learned := d.learnedCooldown(cycle, res.Event)
		d.sched.RecordCooldownLearned(name, learned)
		d.sched.RecordFired(name, cycle.FiredAt)
		d.sched.RecordSucceeded(name, now)

		cycle.LearnedCooldown = learned
		cycle.ReplyExcerpt = util.Ptr(util.Excerpt(res.Event.Content, replyExcerptLen))
		cycle.Settle(schedule.OutcomeMatched, now)

		d.emit(Event{Kind: EventMatched, Command: name, CycleID: cycle.ID, Payload: res.Event.Content})
		if learned > 0 {
			d.emit(Event{Kind: EventCooldownLearned, Command: name, CycleID: cycle.ID, Cooldown: learned})
		}

	case correlate.TimedOut:
		d.sched.RecordCooldownLearned(name, 0)
		d.sched.RecordFired(name, cycle.FiredAt)
		failures := d.sched.RecordFailed(name)
		backoff := Backoff(d.policy, failures)
		d.sched.Hold(name, now.Add(backoff))

		err := errors.Mark(errors.Newf("no reply to %s within %s", name, spec.ResponseWait), errors.ErrCorrelationTimeout)
		ec := ClassifyError("await", err)
		cycle.ErrorMessage = util.Ptr(err.Error())
		cycle.Settle(schedule.OutcomeTimedOut, now)

		d.emit(Event{
			Kind:     EventTimedOut,
			Command:  name,
			CycleID:  cycle.ID,
			Attempt:  failures,
			Backoff:  backoff,
			Err:      err,
			ErrorCtx: &ec,
		})

	default:
		// Shutdown during the wait is not the command's fault
		d.sched.RecordFired(name, cycle.FiredAt)
		cycle.Settle(schedule.OutcomeInterrupted, now)
		d.emit(Event{Kind: EventInterrupted, Command: name, CycleID: cycle.ID})
	}

	d.persist(ctx, name)
	d.record(ctx, cycle)
	return res.Outcome
}

// learnedCooldown converts a cooldown stated in the reply into one measured
// from the fire time, which is what the scheduler adds it to.
func (d *Dispatcher) learnedCooldown(cycle *schedule.Cycle, ev *transport.InboundEvent) time.Duration {
	if d.extractor == nil || ev == nil {
		return 0
	}
	remaining, ok := d.extractor.ExtractCooldown(ev.Content)
	if !ok || remaining <= 0 {
		return 0
	}
	if lag := ev.ArrivedAt.Sub(cycle.FiredAt); lag > 0 {
		remaining += lag
	}
	return remaining
}

func (d *Dispatcher) followUp(ctx context.Context, parent schedule.CommandSpec, parentID string) error {
	if parent.FollowUpDelay > 0 {
		select {
		case <-ctx.Done():
			return nil
		case <-d.clock.After(parent.FollowUpDelay):
		}
	}
	if ctx.Err() != nil {
		return nil
	}
	if !d.sched.IsDue(parent.FollowUp, d.clock.Now()) {
		d.emit(Event{Kind: EventFollowUpSkipped, Command: parent.FollowUp, CycleID: parentID})
		return nil
	}
	return d.runCycle(ctx, parent.FollowUp, parentID)
}

// persist writes every state. A failure keeps memory authoritative; the next
// settle writes the full snapshot again.
func (d *Dispatcher) persist(ctx context.Context, name string) {
	if d.store == nil {
		return
	}
	if err := d.store.Save(context.WithoutCancel(ctx), d.sched.Snapshot()); err != nil {
		ec := ClassifyError("persist", err)
		d.emit(Event{Kind: EventPersistFailed, Command: name, Err: err, ErrorCtx: &ec})
	}
}

func (d *Dispatcher) record(ctx context.Context, cycle *schedule.Cycle) {
	if d.cycles == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	if err := d.cycles.Record(ctx, cycle); err != nil {
		ec := ClassifyError("record", err)
		d.emit(Event{Kind: EventPersistFailed, Command: cycle.Command, CycleID: cycle.ID, Err: err, ErrorCtx: &ec})
		return
	}
	if d.keepCycles > 0 {
		if _, err := d.cycles.CleanupOld(ctx, d.keepCycles); err != nil {
			d.log.Warnw("Cycle log cleanup failed", logger.FieldError, err)
		}
	}
}

func (d *Dispatcher) applyReload(ctx context.Context, specs []schedule.CommandSpec) {
	removed := d.sched.Reconcile(specs)
	if d.store != nil {
		for _, name := range removed {
			if err := d.store.Delete(context.WithoutCancel(ctx), name); err != nil {
				ec := ClassifyError("persist", err)
				d.emit(Event{Kind: EventPersistFailed, Command: name, Err: err, ErrorCtx: &ec})
			}
		}
	}
	d.emit(Event{Kind: EventReloaded, Count: len(removed)})
}

func (d *Dispatcher) setState(s State) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
}

func (d *Dispatcher) emit(ev Event) {
	if d.observer == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = d.clock.Now()
	}
	ev.State = d.State()
	d.observer.Observe(ev)
}
