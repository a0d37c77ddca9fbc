package channel

import (
	"context"
	"io"
	"net"
)

// LoopbackBuilder is a Builder test double: it ignores the raw transport
// handed to it by the connection core and instead returns one end of an
// in-memory net.Pipe, exercising the BEFORE_CHANNEL/AFTER_CHANNEL
// transitions without a real RPC multiplexer. The other end is available
// via Peer after Build has run once.
type LoopbackBuilder struct {
	peer net.Conn
}

// Build implements Builder. The raw transport is closed immediately since
// the loopback conn replaces it entirely; callers that need to assert on
// raw traffic should read from it before calling Build.
func (b *LoopbackBuilder) Build(ctx context.Context, raw io.ReadWriteCloser) (Conn, error) {
	raw.Close()
	local, peer := net.Pipe()
	b.peer = peer
	return &pipeConn{Conn: local}, nil
}

// Peer returns the far end of the pipe handed back by the most recent
// Build call, or nil if Build has not run yet.
func (b *LoopbackBuilder) Peer() net.Conn {
	return b.peer
}

// pipeConn adapts a net.Conn (net.Pipe has no half-close) into Conn by
// treating CloseWrite as a full Close, the same fallback BasicConn uses
// for streams without half-close support.
type pipeConn struct {
	net.Conn
}

func (p *pipeConn) CloseWrite() error {
	return p.Close()
}
