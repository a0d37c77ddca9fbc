package channel

import (
	"fmt"
	"io"
	"sync/atomic"
)

var nextConnID int32

// allocConnID allocates a unique Conn ID, for logging purposes — mirrors
// the reference tunnel client's per-connection ID allocator used to
// disambiguate concurrent connections in logs.
func allocConnID() int32 {
	return atomic.AddInt32(&nextConnID, 1)
}

// BasicConn is a minimal Conn wrapping an underlying io.ReadWriteCloser
// that does not itself support half-close (most raw sockets do; a test
// double built over io.Pipe or net.Pipe does not), plus byte counters for
// connection-statistics logging.
type BasicConn struct {
	id              int32
	name            string
	raw             io.ReadWriteCloser
	numBytesRead    int64
	numBytesWritten int64
	closeWrite      func() error
}

// NewBasicConn wraps raw as a Conn. closeWrite may be nil if the
// underlying stream has no half-close support, in which case CloseWrite
// closes the whole stream.
func NewBasicConn(raw io.ReadWriteCloser, closeWrite func() error, namef string, args ...interface{}) *BasicConn {
	id := allocConnID()
	return &BasicConn{
		id:         id,
		name:       fmt.Sprintf("[%d]", id) + fmt.Sprintf(namef, args...),
		raw:        raw,
		closeWrite: closeWrite,
	}
}

func (c *BasicConn) Read(p []byte) (int, error) {
	n, err := c.raw.Read(p)
	atomic.AddInt64(&c.numBytesRead, int64(n))
	return n, err
}

func (c *BasicConn) Write(p []byte) (int, error) {
	n, err := c.raw.Write(p)
	atomic.AddInt64(&c.numBytesWritten, int64(n))
	return n, err
}

func (c *BasicConn) Close() error {
	return c.raw.Close()
}

func (c *BasicConn) CloseWrite() error {
	if c.closeWrite != nil {
		return c.closeWrite()
	}
	return c.raw.Close()
}

// NumBytesRead returns the number of bytes read so far.
func (c *BasicConn) NumBytesRead() int64 {
	return atomic.LoadInt64(&c.numBytesRead)
}

// NumBytesWritten returns the number of bytes written so far.
func (c *BasicConn) NumBytesWritten() int64 {
	return atomic.LoadInt64(&c.numBytesWritten)
}

func (c *BasicConn) String() string {
	return c.name
}
