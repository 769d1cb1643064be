package transport

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/teranos/autoboat/errors"
)

// Responder decides how the simulated bot answers an invocation.
// ok=false means no reply at all.
type Responder func(text string) (reply string, delay time.Duration, ok bool)

// AutoReply answers every invocation after delay. format receives the
// invocation text as its only argument.
func AutoReply(format string, delay time.Duration) Responder {
	return func(text string) (string, time.Duration, bool) {
		return fmt.Sprintf(format, text), delay, true
	}
}

// Loopback is an in-memory Transport. Sends are recorded, and a Responder
// can answer them as if a bot were in the channel.
type Loopback struct {
	clock     clockwork.Clock
	events    chan InboundEvent
	author    string
	channelID string

	mu        sync.Mutex
	responder Responder
	sent      []string
	failSends int
	seq       int
	closed    bool
	done      chan struct{}
}

// LoopbackOption configures a Loopback
type LoopbackOption func(*Loopback)

// WithResponder installs a simulated bot
func WithResponder(r Responder) LoopbackOption {
	return func(l *Loopback) { l.responder = r }
}

// WithBotAuthor sets the author stamped on simulated replies
func WithBotAuthor(author string) LoopbackOption {
	return func(l *Loopback) { l.author = author }
}

// NewLoopback creates an in-memory transport
func NewLoopback(clock clockwork.Clock, opts ...LoopbackOption) *Loopback {
	l := &Loopback{
		clock:     clock,
		events:    make(chan InboundEvent, 64),
		author:    "loopback-bot",
		channelID: "loopback",
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Send records text and schedules the responder's reply, if any
func (l *Loopback) Send(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return errors.Mark(errors.New("loopback transport closed"), errors.ErrClosed)
	}
	if l.failSends > 0 {
		l.failSends--
		l.mu.Unlock()
		return errors.NewTransportError("loopback: simulated send failure for %q", text)
	}
	l.sent = append(l.sent, text)
	responder := l.responder
	l.mu.Unlock()

	if responder == nil {
		return nil
	}
	reply, delay, ok := responder(text)
	if !ok {
		return nil
	}
	l.clock.AfterFunc(delay, func() { l.Inject(reply, l.author) })
	return nil
}

// Events returns the inbound stream
func (l *Loopback) Events() <-chan InboundEvent {
	return l.events
}

// Inject delivers a message as if someone posted it now.
// Dropped silently after Close.
func (l *Loopback) Inject(content, author string) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.seq++
	ev := InboundEvent{
		ID:        strconv.Itoa(l.seq),
		ArrivedAt: l.clock.Now(),
		Content:   content,
		Author:    author,
		ChannelID: l.channelID,
	}
	l.mu.Unlock()

	select {
	case l.events <- ev:
	case <-l.done:
	}
}

// FailSends makes the next n sends fail with a transport error
func (l *Loopback) FailSends(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failSends = n
}

// Sent returns every successfully sent text, oldest first
func (l *Loopback) Sent() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.sent...)
}

// Close stops delivery. Pending simulated replies are discarded.
func (l *Loopback) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.closed {
		l.closed = true
		close(l.done)
	}
	return nil
}
