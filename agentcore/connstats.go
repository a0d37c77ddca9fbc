package agentcore

import (
	"fmt"
	"sync/atomic"
)

// ConnStats tracks both currently-open and total-ever connection-attempt
// counts for the connector that owns it.
type ConnStats struct {
	count int32
	open  int32
}

// New adds one to the total attempt count.
func (c *ConnStats) New() int32 {
	return atomic.AddInt32(&c.count, 1)
}

// Open adds one to the current open-attempt count.
func (c *ConnStats) Open() {
	atomic.AddInt32(&c.open, 1)
}

// Close subtracts one from the current open-attempt count.
func (c *ConnStats) Close() {
	atomic.AddInt32(&c.open, -1)
}

func (c *ConnStats) String() string {
	return fmt.Sprintf("[%d/%d]", atomic.LoadInt32(&c.open), atomic.LoadInt32(&c.count))
}
