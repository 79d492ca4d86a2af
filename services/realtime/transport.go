package realtime

import (
	"context"
	"errors"
)

var (
	// ErrHandshakeFailed is returned when a channel never reports SUBSCRIBED.
	ErrHandshakeFailed = errors.New("realtime handshake failed")
	// ErrChannelClosed is returned for operations on a disconnected channel.
	ErrChannelClosed = errors.New("realtime channel closed")
)

// Status is the subscription lifecycle reported by a transport.
type Status string

const (
	StatusSubscribed   Status = "SUBSCRIBED"
	StatusClosed       Status = "CLOSED"
	StatusChannelError Status = "CHANNEL_ERROR"
	StatusTimedOut     Status = "TIMED_OUT"
)

// ChannelHandlers receives events from one open transport channel.
type ChannelHandlers struct {
	OnBroadcast    func(payload []byte)
	OnPresenceSync func(members []string)
	OnStatus       func(status Status, err error)
}

// Transport opens named broadcast channels on a managed realtime service.
type Transport interface {
	// Open joins the channel and returns once the handshake reports
	// SUBSCRIBED. Later lifecycle changes arrive through h.OnStatus.
	Open(ctx context.Context, name, token string, h ChannelHandlers) (TransportChannel, error)
}

// TransportChannel is one joined channel.
type TransportChannel interface {
	Broadcast(ctx context.Context, payload []byte) error
	Close() error
}
