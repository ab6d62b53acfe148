// Package sample implements the offset/delay computation and best-of-round
// selection that sits between the Slave's UDP requester and its PID
// controller.
package sample

import "sort"

// Sample is one successful four-timestamp exchange.
type Sample struct {
	Sequence       uint16
	T1, T2, T3, T4 float64
	Offset         float64
	Delay          float64
}

// New computes offset and delay from the four exchange timestamps.
// Delay is clamped to zero: measurement noise can otherwise yield a
// negative value, which is never physically meaningful.
func New(seq uint16, t1, t2, t3, t4 float64) Sample {
	offset := ((t2 - t1) + (t3 - t4)) / 2
	delay := (t4 - t1) - (t3 - t2)
	if delay < 0 {
		delay = 0
	}
	return Sample{
		Sequence: seq,
		T1:       t1,
		T2:       t2,
		T3:       t3,
		T4:       t4,
		Offset:   offset,
		Delay:    delay,
	}
}

// Round is an ordered batch of up to N_ROUND samples gathered within
// one synchronization cycle.
type Round struct {
	Samples []Sample
}

// Add appends a successfully decoded sample to the round.
func (r *Round) Add(s Sample) {
	r.Samples = append(r.Samples, s)
}

// Len reports how many successful exchanges the round collected.
func (r *Round) Len() int {
	return len(r.Samples)
}

// Best returns the sample with minimum delay, which the controller
// treats as the round's representative measurement. The second return
// value is false when the round collected no successful exchanges.
func (r *Round) Best() (Sample, bool) {
	if len(r.Samples) == 0 {
		return Sample{}, false
	}

	best := r.Samples[0]
	for _, s := range r.Samples[1:] {
		if s.Delay < best.Delay {
			best = s
		}
	}
	return best, true
}

// SortedByDelay returns the round's samples ordered by ascending delay,
// leaving the round itself untouched. Useful for diagnostics and tests
// that want to inspect more than just the winner.
func (r *Round) SortedByDelay() []Sample {
	out := make([]Sample, len(r.Samples))
	copy(out, r.Samples)
	sort.Slice(out, func(i, j int) bool { return out[i].Delay < out[j].Delay })
	return out
}
