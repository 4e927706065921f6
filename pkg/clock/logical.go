// Package clock provides a logical clock for change detection.
package clock

import "sync/atomic"

// Logical is a counter that only moves forward. The zero value starts at 0.
type Logical struct {
	v atomic.Uint64
}

// Now returns the current tick.
func (c *Logical) Now() uint64 {
	return c.v.Load()
}

// Tick advances the clock and returns the new tick.
func (c *Logical) Tick() uint64 {
	return c.v.Add(1)
}
