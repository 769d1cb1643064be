// Package transport defines the boundary between the dispatcher and the chat
// platform: an outbound send and a live stream of inbound messages.
//
// The core never looks at the platform's wire protocol. The gateway
// subpackage speaks a small JSON bridge protocol over a websocket; Loopback
// is an in-memory transport for dry runs and tests.
package transport

import (
	"context"
	"time"
)

// InboundEvent is one message seen in the channel
type InboundEvent struct {
	ID        string
	ArrivedAt time.Time // stamped by the transport on receipt
	Content   string
	Author    string
	ChannelID string
}

// Transport sends invocations and delivers inbound messages.
//
// Events returns a live subscription: the same channel for the lifetime of
// the transport. It is not restartable and is only closed when the
// transport shuts down.
type Transport interface {
	Send(ctx context.Context, text string) error
	Events() <-chan InboundEvent
}
