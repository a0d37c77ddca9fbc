// Package channel defines the external collaborator the connection core
// hands raw framed bytes to once a handshake completes. The core itself
// never multiplexes RPC frames, serializes commands, or caches file
// transfers — it only knows how to obtain a Conn from a Builder and how
// to observe its lifecycle, grounded on the ChannelConn/ChannelEndpoint
// split the reference tunnel client uses to separate transport plumbing
// from the object that actually interprets the bytes.
package channel

import (
	"context"
	"io"
)

// Conn is a virtual open bidirectional stream produced once a handshake's
// connection-headers layer completes. It composes io.ReadWriteCloser with
// a write-side half-close, the way a real multiplexed RPC channel would
// need to signal end-of-stream without tearing down the read side.
type Conn interface {
	io.ReadWriteCloser

	// CloseWrite shuts down the write half only; the read half remains
	// active until Close.
	CloseWrite() error
}

// Builder constructs a Conn from the raw framed transport surfaced by the
// connection core at the AFTER_CHANNEL transition (spec.md §3's
// "channel_builder" field). It is consumed exactly once per connection
// attempt.
type Builder interface {
	// Build wraps raw in whatever upper-layer channel object the caller
	// provides (an RPC multiplexer, a test double, ...). Build must not
	// block past ctx's deadline/cancellation.
	Build(ctx context.Context, raw io.ReadWriteCloser) (Conn, error)
}
