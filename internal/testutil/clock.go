// Package testutil holds deterministic helpers shared by package tests.
package testutil

import (
	"encoding/hex"
	"strings"
	"sync"
	"time"
)

// Clock is a settable time source for tests. Its Now method fits the
// Now hooks of the CLI options.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock creates a clock frozen at t.
func NewClock(t time.Time) *Clock {
	return &Clock{now: t}
}

// Now returns the current time of the clock.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// SeedHex returns a 64 character hex seed made of the byte b repeated.
func SeedHex(b byte) string {
	return strings.Repeat(hex.EncodeToString([]byte{b}), 32)
}
