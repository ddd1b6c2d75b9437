package duel

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Clock supplies the non-decreasing logical time stamped on sessions and challenges.
type Clock interface {
	Now() int64
}

// Transferer schedules a value transfer. It must not block, and the service
// never observes whether the transfer succeeds.
type Transferer interface {
	Transfer(to string, amount decimal.Decimal)
}

// Call carries the host-supplied context of a state-changing call.
type Call struct {
	Caller  string          // authenticated account
	Deposit decimal.Decimal // attached value
}

// MonotonicClock returns wall-clock nanoseconds, never going backwards.
type MonotonicClock struct {
	mu   sync.Mutex
	last int64
}

func (c *MonotonicClock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if now := time.Now().UnixNano(); now > c.last {
		c.last = now
	}
	return c.last
}
