package agentcore

import (
	"context"
	"io"
)

// NetworkLayer is the identity stage of the stack (spec.md §4.8 step 1):
// net.Conn needs no NIO/BIO split here, so it just passes conn through.
type NetworkLayer struct{}

func (NetworkLayer) Negotiate(ctx context.Context, conn io.ReadWriteCloser, onEvent StackEventHandler) (io.ReadWriteCloser, error) {
	return conn, nil
}
