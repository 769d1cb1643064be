package transport

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/autoboat/errors"
)

func TestLoopback_SendAndReply(t *testing.T) {
	clock := clockwork.NewFakeClock()
	lb := NewLoopback(clock, WithResponder(AutoReply("ok: %s", 2*time.Second)), WithBotAuthor("EconomyBot"))
	defer lb.Close()

	require.NoError(t, lb.Send(context.Background(), "pls work"))
	assert.Equal(t, []string{"pls work"}, lb.Sent())

	require.NoError(t, clock.BlockUntilContext(context.Background(), 1))
	clock.Advance(2 * time.Second)

	select {
	case ev := <-lb.Events():
		assert.Equal(t, "ok: pls work", ev.Content)
		assert.Equal(t, "EconomyBot", ev.Author)
		assert.Equal(t, clock.Now(), ev.ArrivedAt)
		assert.Equal(t, "1", ev.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("no simulated reply")
	}
}

func TestLoopback_FailSends(t *testing.T) {
	lb := NewLoopback(clockwork.NewFakeClock())
	defer lb.Close()

	lb.FailSends(1)
	err := lb.Send(context.Background(), "work")
	require.Error(t, err)
	assert.True(t, errors.IsTransportError(err))

	assert.NoError(t, lb.Send(context.Background(), "work"))
	assert.Equal(t, []string{"work"}, lb.Sent())
}

func TestLoopback_Closed(t *testing.T) {
	lb := NewLoopback(clockwork.NewFakeClock())
	require.NoError(t, lb.Close())
	require.NoError(t, lb.Close())

	err := lb.Send(context.Background(), "work")
	assert.True(t, errors.Is(err, errors.ErrClosed))

	lb.Inject("late", "bot") // must not block
}

func TestLoopback_CancelledContext(t *testing.T) {
	lb := NewLoopback(clockwork.NewFakeClock())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, lb.Send(ctx, "work"), context.Canceled)
	assert.Empty(t, lb.Sent())
}
