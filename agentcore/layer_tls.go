package agentcore

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"time"
)

// noAddr is a placeholder net.Addr for streams that aren't backed by a
// real socket (for example the agentcore/channel loopback test double),
// so crypto/tls's net.Conn requirement can still be satisfied.
type noAddr struct{}

func (noAddr) Network() string { return "agentcore" }
func (noAddr) String() string  { return "agentcore" }

// deadlineConn adapts an arbitrary io.ReadWriteCloser into a net.Conn
// with no-op deadlines, so crypto/tls can wrap it. Deadlines set through
// this adapter have no effect.
type deadlineConn struct {
	io.ReadWriteCloser
}

func (deadlineConn) LocalAddr() net.Addr                { return noAddr{} }
func (deadlineConn) RemoteAddr() net.Addr               { return noAddr{} }
func (deadlineConn) SetDeadline(time.Time) error         { return nil }
func (deadlineConn) SetReadDeadline(time.Time) error     { return nil }
func (deadlineConn) SetWriteDeadline(time.Time) error    { return nil }

func asNetConn(conn io.ReadWriteCloser) net.Conn {
	if nc, ok := conn.(net.Conn); ok {
		return nc
	}
	return deadlineConn{ReadWriteCloser: conn}
}

// TLSLayer wraps the incremental TLS handshake as a stack layer. Server
// side may be configured to want or need client certificates; either
// way the layer fires HandshakeCompleted once the handshake finishes
// (spec.md §4.8 step 4).
type TLSLayer struct {
	Config   *tls.Config
	IsServer bool
}

func (l TLSLayer) Negotiate(ctx context.Context, conn io.ReadWriteCloser, onEvent StackEventHandler) (io.ReadWriteCloser, error) {
	nc := asNetConn(conn)

	var tconn *tls.Conn
	if l.IsServer {
		tconn = tls.Server(nc, l.Config)
	} else {
		tconn = tls.Client(nc, l.Config)
	}
	if err := tconn.HandshakeContext(ctx); err != nil {
		return nil, AuthenticationFailuref(err, "TLS handshake failed")
	}
	if onEvent != nil {
		state := tconn.ConnectionState()
		onEvent(StackEvent{Kind: EventHandshakeCompleted, TLSInfo: tls.CipherSuiteName(state.CipherSuite), TLSState: &state})
	}
	return tconn, nil
}
