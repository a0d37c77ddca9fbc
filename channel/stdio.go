package channel

import (
	"context"
	"io"
	"os"
)

// StdioBuilder is the Builder a standalone CLI binary wires in: once
// the connection core hands off a negotiated byte stream, it is simply
// bridged to the process's stdin/stdout, the simplest possible "upper
// channel object" (spec.md §6's external collaborator, left out of
// scope for the core itself).
type StdioBuilder struct{}

func (StdioBuilder) Build(ctx context.Context, raw io.ReadWriteCloser) (Conn, error) {
	go func() {
		io.Copy(os.Stdout, raw)
	}()
	go func() {
		io.Copy(raw, os.Stdin)
		if cw, ok := raw.(interface{ CloseWrite() error }); ok {
			cw.CloseWrite()
		}
	}()
	return NewBasicConn(raw, nil, "stdio"), nil
}
