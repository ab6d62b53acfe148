// Package softclock implements the Slave's disciplined virtual clock:
// a monotonic-driven, frequency-adjustable clock that never reads the
// host wall clock after construction.
package softclock

import (
	"math"
	"sync"
	"time"
)

// DefaultMaxRate is the default symmetric bound on rate adjustment:
// ±100% frequency trim.
const DefaultMaxRate = 1.0

// Clock is the Slave's software clock.
//
// Invariant: Now() == initWall + manualOffset + (mono_now - initMono) * (1 + rate).
// Reads and step/rate writes race from the controller and any external
// reader, so all state is read and written under mu; Now() never
// blocks for long since it only takes a read lock over arithmetic.
type Clock struct {
	mu sync.RWMutex

	initWall     time.Time
	initMono     time.Time
	rate         float64
	manualOffset time.Duration

	maxRate float64
}

// New creates a software clock rooted at the current host time with
// zero rate adjustment and zero manual offset.
func New(maxRate float64) *Clock {
	if maxRate <= 0 {
		maxRate = DefaultMaxRate
	}
	now := time.Now()
	return &Clock{initWall: now, initMono: now, maxRate: maxRate}
}

// Now returns the current software clock time.
func (c *Clock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	elapsed := time.Since(c.initMono)
	adjusted := time.Duration(float64(elapsed) * (1 + c.rate))
	return c.initWall.Add(c.manualOffset).Add(adjusted)
}

// RateAdjustment returns the currently applied frequency trim.
func (c *Clock) RateAdjustment() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rate
}

// SetRateAdjustment clamps r to [-maxRate, +maxRate] and stores it.
// It first folds the time elapsed at the old rate into initWall and
// restarts initMono, so Now() stays continuous across the change and
// the new rate only applies from this point on.
func (c *Clock) SetRateAdjustment(r float64) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	r = math.Max(-c.maxRate, math.Min(c.maxRate, r))
	now := time.Now()
	elapsed := now.Sub(c.initMono)
	c.initWall = c.initWall.Add(time.Duration(float64(elapsed) * (1 + c.rate)))
	c.initMono = now
	c.rate = r
	return r
}

// SetTimeOffset applies an instantaneous step by adding delta to the
// accumulated manual offset. This is the only operation permitted to
// cause a discontinuity in Now(); callers (the sync controller) are
// responsible for resetting the PID controller immediately afterward.
func (c *Clock) SetTimeOffset(delta time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.manualOffset += delta
}

// MaxRate returns the configured symmetric rate bound.
func (c *Clock) MaxRate() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.maxRate
}
