package oplog

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Clock issues strictly increasing ULID timestamps for one replica.
//
// A timestamp carries the wall-clock millisecond in its high bits, so
// events from different replicas interleave roughly by real time. When the
// wall clock stalls or goes backwards the clock keeps counting up from the
// last issued value. Observe seeds the clock after a restart so that new
// events always sort after every event already in the local log.
//
// Clock is safe for concurrent use.
type Clock struct {
	mu      sync.Mutex
	now     func() time.Time
	entropy io.Reader
	last    ulid.ULID
}

// NewClock returns a clock reading time from now and randomness from
// entropy. nil arguments select time.Now and ulid.DefaultEntropy.
func NewClock(now func() time.Time, entropy io.Reader) *Clock {
	if now == nil {
		now = time.Now
	}
	if entropy == nil {
		entropy = ulid.DefaultEntropy()
	}
	return &Clock{now: now, entropy: entropy}
}

// Next returns the next timestamp.
func (c *Clock) Next() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	id, err := ulid.New(ulid.Timestamp(c.now()), c.entropy)
	if err != nil || id.Compare(c.last) <= 0 {
		id = increment(c.last)
	}
	c.last = id
	return id.String()
}

// Observe advances the clock past ts if ts is newer than anything issued.
func (c *Clock) Observe(ts string) error {
	id, err := ulid.ParseStrict(ts)
	if err != nil {
		return fmt.Errorf("observe %q: %w", ts, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if id.Compare(c.last) > 0 {
		c.last = id
	}
	return nil
}

// Last returns the most recently issued or observed timestamp, or "".
func (c *Clock) Last() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == (ulid.ULID{}) {
		return ""
	}
	return c.last.String()
}

// increment returns id + 1 as a 128-bit big-endian integer.
func increment(id ulid.ULID) ulid.ULID {
	for i := len(id) - 1; i >= 0; i-- {
		id[i]++
		if id[i] != 0 {
			break
		}
	}
	return id
}
