package schedule

import (
	"sort"
	"sync"
	"time"
)

// Scheduler holds every command's spec and state and answers "what is due".
//
// The dispatcher is the only writer. Reads from the CLI or observers go
// through Snapshot and Statuses, which return copies.
type Scheduler struct {
	mu           sync.RWMutex
	specs        map[string]CommandSpec
	order        []string // enabled commands, configuration order
	states       map[string]*CommandState
	holds        map[string]time.Time // in-memory failure backoff, not persisted
	unknownRetry time.Duration
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithUnknownCooldownRetry sets the wait after firing a command whose cooldown is unknown
func WithUnknownCooldownRetry(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.unknownRetry = d
		}
	}
}

// NewScheduler creates a scheduler seeded with persisted states.
// Call Reconcile with the configured specs before use.
func NewScheduler(states map[string]CommandState, opts ...Option) *Scheduler {
	s := &Scheduler{
		specs:        make(map[string]CommandSpec),
		states:       make(map[string]*CommandState, len(states)),
		holds:        make(map[string]time.Time),
		unknownRetry: DefaultUnknownCooldownRetry,
	}
	for name, st := range states {
		c := st.Clone()
		c.Name = name
		s.states[name] = &c
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Reconcile applies a (re)loaded configuration. New commands get fresh state,
// durable timestamps of surviving commands are kept, and the states of
// disabled or removed commands are dropped. Returns the dropped names so the
// caller can delete them from the Store.
func (s *Scheduler) Reconcile(specs []CommandSpec) (removed []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.specs = make(map[string]CommandSpec, len(specs))
	enabled := make([]CommandSpec, 0, len(specs))
	for _, spec := range specs {
		s.specs[spec.Name] = spec
		if spec.Enabled {
			enabled = append(enabled, spec)
		}
	}

	sort.SliceStable(enabled, func(i, j int) bool {
		if enabled[i].Order != enabled[j].Order {
			return enabled[i].Order < enabled[j].Order
		}
		return enabled[i].Name < enabled[j].Name
	})

	s.order = s.order[:0]
	keep := make(map[string]bool, len(enabled))
	for _, spec := range enabled {
		s.order = append(s.order, spec.Name)
		keep[spec.Name] = true
		if _, ok := s.states[spec.Name]; !ok {
			s.states[spec.Name] = &CommandState{Name: spec.Name}
		}
	}

	for name := range s.states {
		if !keep[name] {
			delete(s.states, name)
			delete(s.holds, name)
			removed = append(removed, name)
		}
	}
	sort.Strings(removed)
	return removed
}

// Spec returns the command definition for name, including disabled commands
func (s *Scheduler) Spec(name string) (CommandSpec, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	spec, ok := s.specs[name]
	return spec, ok
}

// NextDue returns the enabled, scheduled command with the earliest
// NextDueAt <= now. Ties go to configuration order.
func (s *Scheduler) NextDue(now time.Time) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best string
	var bestAt time.Time
	found := false
	for _, name := range s.order {
		if !s.specs[name].Scheduled() {
			continue
		}
		at := s.nextDueAtLocked(name)
		if at.After(now) {
			continue
		}
		if !found || at.Before(bestAt) {
			best, bestAt, found = name, at, true
		}
	}
	return best, found
}

// IsDue reports whether name is enabled and its cooldown has expired,
// whether or not it is scheduled on its own.
func (s *Scheduler) IsDue(name string, now time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.states[name]; !ok {
		return false
	}
	return !s.nextDueAtLocked(name).After(now)
}

// NextWake returns the earliest NextDueAt across scheduled commands.
// A zero time means a command is due right away.
func (s *Scheduler) NextWake() (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var earliest time.Time
	found := false
	for _, name := range s.order {
		if !s.specs[name].Scheduled() {
			continue
		}
		at := s.nextDueAtLocked(name)
		if !found || at.Before(earliest) {
			earliest, found = at, true
		}
	}
	return earliest, found
}

// NextDueAt returns when name becomes due. Zero means due now (never fired).
func (s *Scheduler) NextDueAt(name string) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.states[name]; !ok {
		return time.Time{}, false
	}
	return s.nextDueAtLocked(name), true
}

// RecordFired sets LastFiredAt = now, which moves NextDueAt to now + cooldown.
// Calling it twice with the same now yields the same NextDueAt.
func (s *Scheduler) RecordFired(name string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.states[name]; ok {
		t := now
		st.LastFiredAt = &t
	}
}

// RecordCooldownLearned overrides the configured cooldown for the cycle being
// settled. Zero clears a previously learned value.
func (s *Scheduler) RecordCooldownLearned(name string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.states[name]; ok {
		if d < 0 {
			d = 0
		}
		st.LearnedCooldown = d
	}
}

// RecordSucceeded marks a matched reply and resets the failure streak
func (s *Scheduler) RecordSucceeded(name string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.states[name]; ok {
		t := now
		st.LastSucceededAt = &t
		st.ConsecutiveFailures = 0
	}
	delete(s.holds, name)
}

// Hold keeps name from becoming due before until, on top of its cooldown.
// Cleared by RecordSucceeded and Reconcile removal.
func (s *Scheduler) Hold(name string, until time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.states[name]; ok {
		s.holds[name] = until
	}
}

// RecordFailed extends the failure streak and returns its new length
func (s *Scheduler) RecordFailed(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.states[name]; ok {
		st.ConsecutiveFailures++
		return st.ConsecutiveFailures
	}
	return 0
}

// Failures returns the current failure streak for name
func (s *Scheduler) Failures(name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.states[name]; ok {
		return st.ConsecutiveFailures
	}
	return 0
}

// State returns a copy of name's state
func (s *Scheduler) State(name string) (CommandState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[name]
	if !ok {
		return CommandState{}, false
	}
	return st.Clone(), true
}

// Snapshot returns a copy of every state, keyed by name
func (s *Scheduler) Snapshot() map[string]CommandState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]CommandState, len(s.states))
	for name, st := range s.states {
		out[name] = st.Clone()
	}
	return out
}

// Statuses lists enabled commands in configuration order
func (s *Scheduler) Statuses(now time.Time) []Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Status, 0, len(s.order))
	for _, name := range s.order {
		at := s.nextDueAtLocked(name)
		out = append(out, Status{
			Spec:      s.specs[name],
			State:     s.states[name].Clone(),
			NextDueAt: at,
			Cooldown:  s.cooldownLocked(name),
			Due:       !at.After(now),
		})
	}
	return out
}

// EffectiveCooldown returns the cooldown the next fire of name will use
func (s *Scheduler) EffectiveCooldown(name string) time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cooldownLocked(name)
}

func (s *Scheduler) nextDueAtLocked(name string) time.Time {
	st := s.states[name]
	var at time.Time
	if st != nil && st.LastFiredAt != nil {
		at = st.LastFiredAt.Add(s.cooldownLocked(name))
	}
	if hold, ok := s.holds[name]; ok && hold.After(at) {
		at = hold
	}
	return at
}

// cooldownLocked: learned > configured > (follow-up only: none) > unknown retry
func (s *Scheduler) cooldownLocked(name string) time.Duration {
	if st := s.states[name]; st != nil && st.LearnedCooldown > 0 {
		return st.LearnedCooldown
	}
	spec := s.specs[name]
	if spec.Cooldown > 0 {
		return spec.Cooldown
	}
	if spec.FollowUpOnly {
		return 0
	}
	return s.unknownRetry
}
