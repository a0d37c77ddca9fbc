package agentcore

import (
	"context"
	"crypto/tls"
	"io"

	"github.com/agentwire/remotecore/channel"
)

// StackEventKind enumerates the upward events v4 layers fire once their
// own phase completes. A layer fires at most one event; NetworkLayer
// fires none.
type StackEventKind int

const (
	EventACKComplete StackEventKind = iota
	EventHandshakeCompleted
	EventHeadersReceived
	EventChannelOpen
	EventClosed
)

func (k StackEventKind) String() string {
	switch k {
	case EventACKComplete:
		return "ACKComplete"
	case EventHandshakeCompleted:
		return "HandshakeCompleted"
	case EventHeadersReceived:
		return "ReceiveHeaders"
	case EventChannelOpen:
		return "ChannelOpen"
	case EventClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// StackEvent is the payload a layer hands upward through the stack.
type StackEvent struct {
	Kind     StackEventKind
	Headers  map[string]string    // set on EventHeadersReceived
	TLSInfo  string               // set on EventHandshakeCompleted (negotiated cipher suite name, for logs)
	TLSState *tls.ConnectionState // set on EventHandshakeCompleted
	CloseErr error                // set on EventClosed
}

// StackEventHandler receives events as each layer completes negotiation.
type StackEventHandler func(StackEvent)

// Layer is one duplex stage of the v4 pipeline (spec.md §4.8). Negotiate
// drives this layer's own handshake to completion over conn, firing at
// most one event through onEvent, then returns the (possibly wrapped,
// e.g. by TLS) stream for the next layer to build on.
type Layer interface {
	Negotiate(ctx context.Context, conn io.ReadWriteCloser, onEvent StackEventHandler) (io.ReadWriteCloser, error)
}

// ProtocolStack composes the v4 layers in order and hands the final
// stream to a channel.Builder. Each layer is owned by exactly one stack
// and is dropped when the stack is dropped (spec.md §3 "Protocol-stack
// layer").
type ProtocolStack struct {
	layers  []Layer
	builder channel.Builder
}

// NewProtocolStack builds a stack from ordered layers plus the terminal
// channel builder (the "channel application" stage, §4.8 step 6).
func NewProtocolStack(builder channel.Builder, layers ...Layer) *ProtocolStack {
	return &ProtocolStack{layers: layers, builder: builder}
}

// Negotiate runs every layer in order over raw, firing events as each
// completes, then hands the final stream to the channel builder.
// Application bytes never flow before every layer has finished
// negotiating (spec.md §4.8 "application bytes are not forwarded before
// the headers layer has completed").
func (s *ProtocolStack) Negotiate(ctx context.Context, raw io.ReadWriteCloser, onEvent StackEventHandler) (channel.Conn, error) {
	return s.NegotiateChannel(ctx, raw, onEvent, nil)
}

// NegotiateChannel is Negotiate plus a beforeBuild hook run after every
// layer has completed but before the channel builder consumes the
// stream, letting a caller's BEFORE_CHANNEL listener veto the connection
// while it is still possible to refuse it (spec.md §4.5 BEFORE_CHANNEL
// runs before the channel is built).
func (s *ProtocolStack) NegotiateChannel(ctx context.Context, raw io.ReadWriteCloser, onEvent StackEventHandler, beforeBuild func() error) (channel.Conn, error) {
	conn := raw
	for _, layer := range s.layers {
		next, err := layer.Negotiate(ctx, conn, onEvent)
		if err != nil {
			return nil, err
		}
		conn = next
	}
	if beforeBuild != nil {
		if err := beforeBuild(); err != nil {
			return nil, err
		}
	}
	ch, err := s.builder.Build(ctx, conn)
	if err != nil {
		return nil, Unreachablef(err, "building application channel")
	}
	if onEvent != nil {
		onEvent(StackEvent{Kind: EventChannelOpen})
	}
	return ch, nil
}
