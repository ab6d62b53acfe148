package masterclock

import (
	"testing"
	"time"
)

func TestNewClockIsNotCustomSet(t *testing.T) {
	c := New()
	if c.CustomTimeSet() {
		t.Error("new clock should not report a custom time")
	}
}

func TestSetReferenceTimeRebasesClock(t *testing.T) {
	c := New()

	ok := c.SetReferenceTime("2020-01-01 00:00:00")
	if !ok {
		t.Fatal("expected SetReferenceTime to succeed")
	}
	if !c.CustomTimeSet() {
		t.Error("expected CustomTimeSet to be true after a successful set")
	}

	now := c.Now()
	if now.Year() != 2020 {
		t.Errorf("got year %d, want 2020", now.Year())
	}
}

func TestSetReferenceTimeRejectsBadInput(t *testing.T) {
	c := New()
	ok := c.SetReferenceTime("not-a-time")
	if ok {
		t.Error("expected SetReferenceTime to fail on malformed input")
	}
	if c.CustomTimeSet() {
		t.Error("a failed SetReferenceTime must not mark the clock custom-set")
	}
}

func TestAdjustReferenceTimeAccumulates(t *testing.T) {
	c := New()
	c.SetReferenceTime("2020-01-01 00:00:00")

	c.AdjustReferenceTime(time.Hour)
	now := c.AdjustReferenceTime(time.Hour)

	if now.Hour() != 2 {
		t.Errorf("got hour %d, want 2", now.Hour())
	}
}

func TestFormatStrftime(t *testing.T) {
	c := New()
	c.SetReferenceTime("2020-03-04 05:06:07")

	got := c.FormatStrftime("%Y-%m-%d %H:%M:%S")
	want := "2020-03-04 05:06:07"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
