package sample

import "testing"

func TestNewComputesOffsetAndDelay(t *testing.T) {
	s := New(1, 0, 1, 2, 3)

	wantOffset := ((1.0 - 0) + (2.0 - 3.0)) / 2
	if s.Offset != wantOffset {
		t.Errorf("got offset %v, want %v", s.Offset, wantOffset)
	}

	wantDelay := (3.0 - 0) - (2.0 - 1.0)
	if s.Delay != wantDelay {
		t.Errorf("got delay %v, want %v", s.Delay, wantDelay)
	}
}

func TestNewClampsNegativeDelayToZero(t *testing.T) {
	s := New(1, 0, 1, 5, 2.5) // (2.5 - 0) - (5 - 1) = -1.5

	if s.Delay != 0 {
		t.Errorf("got delay %v, want 0 after clamp", s.Delay)
	}
}

func TestRoundBestSelectsMinimumDelay(t *testing.T) {
	r := &Round{}
	r.Add(New(1, 0, 1, 1, 3))  // delay = 3 - 0 = 3
	r.Add(New(2, 0, 1, 1, 2))  // delay = 2
	r.Add(New(3, 0, 1, 1, 10)) // delay = 10

	best, ok := r.Best()
	if !ok {
		t.Fatal("expected a best sample")
	}
	if best.Sequence != 2 {
		t.Errorf("got best sequence %d, want 2", best.Sequence)
	}
}

func TestRoundBestEmpty(t *testing.T) {
	r := &Round{}
	_, ok := r.Best()
	if ok {
		t.Error("expected ok=false for an empty round")
	}
}

func TestRoundSortedByDelayDoesNotMutate(t *testing.T) {
	r := &Round{}
	r.Add(New(1, 0, 1, 1, 5))
	r.Add(New(2, 0, 1, 1, 2))

	sorted := r.SortedByDelay()
	if sorted[0].Sequence != 2 {
		t.Errorf("got first sequence %d, want 2", sorted[0].Sequence)
	}
	if r.Samples[0].Sequence != 1 {
		t.Error("SortedByDelay must not mutate the round's own slice order")
	}
}
