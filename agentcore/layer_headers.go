package agentcore

import (
	"context"
	"io"
)

// HeadersLayer exchanges a length-prefixed key-value property map in
// both directions — the last negotiation step before raw application
// bytes flow (spec.md §4.8 step 5). Refuse is returned as a
// ProtocolRefusal, mirroring the ConnectionRefusalException the step
// describes.
type HeadersLayer struct {
	// Local is sent to the peer as-is.
	Local map[string]string
	// Refuse, if non-nil, is consulted against the peer's headers and
	// may veto the connection (for example the server-side secret check
	// of spec.md §4.8 "enforces secret check using the client database").
	Refuse func(peerHeaders map[string]string) error
}

func (l HeadersLayer) Negotiate(ctx context.Context, conn io.ReadWriteCloser, onEvent StackEventHandler) (io.ReadWriteCloser, error) {
	errCh := make(chan error, 1)
	go func() {
		errCh <- writeHeaderMap(conn, l.Local)
	}()

	peer, err := readHeaderMap(conn)
	if err != nil {
		<-errCh
		return nil, Unreachablef(err, "reading v4 headers")
	}
	if err := <-errCh; err != nil {
		return nil, Unreachablef(err, "writing v4 headers")
	}

	if l.Refuse != nil {
		if err := l.Refuse(peer); err != nil {
			return nil, err
		}
	}
	if onEvent != nil {
		onEvent(StackEvent{Kind: EventHeadersReceived, Headers: peer})
	}
	return conn, nil
}

// writeHeaderMap/readHeaderMap are the v4 analog of wire.go's
// WriteHeaderLines/ReadHeaderLines, but length-prefixed per spec.md
// §4.8 ("length-prefixed key-value pairs") instead of newline-delimited,
// since v4 frames carry binary TLS-wrapped bytes rather than plaintext
// lines.
func writeHeaderMap(w io.Writer, headers map[string]string) error {
	var count [2]byte
	n := len(headers)
	count[0] = byte(n >> 8)
	count[1] = byte(n)
	if _, err := w.Write(count[:]); err != nil {
		return err
	}
	for k, v := range headers {
		if err := WriteUTF(w, k); err != nil {
			return err
		}
		if err := WriteUTF(w, v); err != nil {
			return err
		}
	}
	return nil
}

func readHeaderMap(r io.Reader) (map[string]string, error) {
	var count [2]byte
	if _, err := io.ReadFull(r, count[:]); err != nil {
		return nil, err
	}
	n := int(count[0])<<8 | int(count[1])
	headers := make(map[string]string, n)
	for i := 0; i < n; i++ {
		k, err := ReadUTF(r)
		if err != nil {
			return nil, err
		}
		v, err := ReadUTF(r)
		if err != nil {
			return nil, err
		}
		headers[k] = v
	}
	return headers, nil
}
