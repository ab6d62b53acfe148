// Package masterclock implements the Master's reference timeline: a
// monotonic-driven timestamp source with a settable epoch and
// incremental offset adjustments.
package masterclock

import (
	"strings"
	"sync"
	"time"
)

const referenceLayout = "2006-01-02 15:04:05"

// Clock is the Master's reference time source.
//
// Invariant: Now() == initWall + (time.Now() - initMono) + offset.
// The host wall clock is sampled only at construction or a
// SetReferenceTime call; after that Now() advances by the monotonic
// delta since initMono, which is why Now() never observes a backward
// jump from the host wall clock.
type Clock struct {
	mu sync.RWMutex

	initWall time.Time
	initMono time.Time
	offset   time.Duration

	customTimeSet bool
}

// New creates a Master time source rooted at the current host time.
func New() *Clock {
	now := time.Now()
	return &Clock{initWall: now, initMono: now}
}

// Now returns the Master's current reference time.
func (c *Clock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now()
}

func (c *Clock) now() time.Time {
	elapsed := time.Since(c.initMono)
	return c.initWall.Add(elapsed).Add(c.offset)
}

// SetReferenceTime parses "YYYY-MM-DD HH:MM:SS" as local wall time and
// rebases the clock so Now() returns that instant immediately. It
// zeros the accumulated offset and marks the clock as custom-set. On a
// parse failure it leaves all state untouched and returns false.
func (c *Clock) SetReferenceTime(s string) bool {
	t, err := time.ParseInLocation(referenceLayout, strings.TrimSpace(s), time.Local)
	if err != nil {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.initWall = t
	c.initMono = time.Now()
	c.offset = 0
	c.customTimeSet = true
	return true
}

// AdjustReferenceTime adds delta to the accumulated offset and returns
// the resulting Now().
func (c *Clock) AdjustReferenceTime(delta time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offset += delta
	return c.now()
}

// CustomTimeSet reports whether SetReferenceTime has ever succeeded.
func (c *Clock) CustomTimeSet() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.customTimeSet
}

// Format renders Now() using a Go time layout string. Callers wanting
// strftime-style patterns should translate via FormatStrftime.
func (c *Clock) Format(layout string) string {
	return c.Now().Format(layout)
}

// strftimeTable covers the subset of strftime directives the wire
// protocol's reference-time format actually needs.
var strftimeTable = map[byte]string{
	'Y': "2006",
	'm': "01",
	'd': "02",
	'H': "15",
	'M': "04",
	'S': "05",
	'y': "06",
	'b': "Jan",
	'B': "January",
	'a': "Mon",
	'A': "Monday",
	'p': "PM",
	'Z': "MST",
}

// FormatStrftime renders Now() using a strftime-style pattern
// (e.g. "%Y-%m-%d %H:%M:%S").
func (c *Clock) FormatStrftime(pattern string) string {
	var layout strings.Builder
	for i := 0; i < len(pattern); i++ {
		if pattern[i] == '%' && i+1 < len(pattern) {
			if repl, ok := strftimeTable[pattern[i+1]]; ok {
				layout.WriteString(repl)
				i++
				continue
			}
		}
		layout.WriteByte(pattern[i])
	}
	return c.Now().Format(layout.String())
}
