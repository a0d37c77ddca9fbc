package agentcore

import (
	"bytes"
	"context"
	"io"
)

// ackMagic is the fixed byte sequence both sides exchange immediately
// after the protocol marker to confirm wire compatibility before any
// more expensive negotiation begins (spec.md §4.8 step 3).
var ackMagic = []byte{0x4a, 0x4e, 0x4c, 0x50, 0x34}

// ACKLayer exchanges ackMagic in both directions; a mismatch on either
// side is a protocol refusal.
type ACKLayer struct{}

func (ACKLayer) Negotiate(ctx context.Context, conn io.ReadWriteCloser, onEvent StackEventHandler) (io.ReadWriteCloser, error) {
	errCh := make(chan error, 1)
	go func() {
		_, err := conn.Write(ackMagic)
		errCh <- err
	}()

	got := make([]byte, len(ackMagic))
	if _, err := io.ReadFull(conn, got); err != nil {
		<-errCh
		return nil, Unreachablef(err, "reading ACK sequence")
	}
	if err := <-errCh; err != nil {
		return nil, Unreachablef(err, "writing ACK sequence")
	}
	if !bytes.Equal(got, ackMagic) {
		return nil, ProtocolRefusalf(nil, "ACK mismatch")
	}
	if onEvent != nil {
		onEvent(StackEvent{Kind: EventACKComplete})
	}
	return conn, nil
}
