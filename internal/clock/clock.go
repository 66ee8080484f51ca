// Package clock provides the time source used to stamp identities, profiles,
// records, and grants.
//
// All timestamping goes through the Clock interface so that tests (and the
// conformance harness) can substitute a deterministic source. Production code
// uses System; nothing in the repository calls time.Now directly.
package clock

import (
	"sync"
	"time"
)

// Clock is the time source injected into every store.
type Clock interface {
	// Now returns the current time in UTC.
	Now() time.Time
}

// System is the wall-clock implementation used in production.
type System struct{}

// NewSystem creates a wall-clock time source.
func NewSystem() *System {
	return &System{}
}

// Now returns the current wall-clock time in UTC.
func (*System) Now() time.Time {
	return time.Now().UTC()
}

// Fixed is a deterministic clock for tests.
//
// It starts at a caller-chosen instant and only moves when Advance is called.
// This keeps createdAt/updatedAt values and grant-expiry comparisons exactly
// reproducible across runs.
//
// Thread-safety: all methods are safe for concurrent use via internal mutex.
type Fixed struct {
	mu  sync.Mutex
	now time.Time
}

// NewFixed creates a deterministic clock pinned at start.
func NewFixed(start time.Time) *Fixed {
	return &Fixed{now: start.UTC()}
}

// Now returns the pinned instant.
func (c *Fixed) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d and returns the new instant.
// A negative d is allowed but never used by the tests; the clock does not
// guard against it because expiry evaluation is a pure comparison.
func (c *Fixed) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// Set pins the clock to a specific instant.
func (c *Fixed) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t.UTC()
}
