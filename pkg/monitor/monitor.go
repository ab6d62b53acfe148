// Package monitor accumulates the Slave's offset/delay history,
// derives summary performance metrics, and fans events out to
// observers such as a chart, a log sink, or a websocket push handler.
package monitor

import (
	"math"
	"sync"
	"time"
)

// DefaultHistoryLimit bounds the ring buffer of recorded samples.
const DefaultHistoryLimit = 1000

// DefaultSyncThreshold is the |offset| below which a recorded sample
// counts as a successful sync for SyncSuccessRate purposes.
const DefaultSyncThreshold = 0.001

// State is one of the sync controller's FSM states, mirrored here so
// the monitor can render it without importing the controller package.
type State int

const (
	Idle State = iota
	Syncing
	Synced
	LargeOffset
	Error
	MasterOffline
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Syncing:
		return "SYNCING"
	case Synced:
		return "SYNCED"
	case LargeOffset:
		return "LARGE_OFFSET"
	case Error:
		return "ERROR"
	case MasterOffline:
		return "MASTER_OFFLINE"
	default:
		return "UNKNOWN"
	}
}

// Record is one entry in the bounded offset/delay history.
type Record struct {
	Time   time.Time
	Offset float64
	Delay  float64
}

// EventKind tags the variant held by an Event.
type EventKind int

const (
	EventSample EventKind = iota
	EventStateChange
	EventError
)

// Event is the tagged variant notified to observers: a Sample, a
// StateChange, or an Error, never more than one populated at a time.
type Event struct {
	Kind EventKind

	Sample Record

	OldState State
	NewState State

	ErrorKind   string
	ErrorDetail string
}

// Observer receives monitor events synchronously from the controller's
// goroutine; implementations must not block.
type Observer interface {
	Notify(Event)
}

// Metrics is the monitor's derived performance summary, refreshed on
// every recorded sample.
type Metrics struct {
	AccuracyMs      float64
	StabilityMs     float64
	PrecisionMs     float64
	AvgDelayMs      float64
	SyncSuccessRate float64
	LastUpdate      time.Time
}

// Monitor accumulates history and notifies observers. All exported
// methods are goroutine-safe; observers receive copies and may read
// a Snapshot concurrently with new samples arriving.
type Monitor struct {
	mu sync.Mutex

	limit         int
	syncThreshold float64
	history       []Record

	state State

	observers []Observer

	totalAttempts int
	successCount  int
}

// New creates a Monitor with the given bounded history size and the
// |offset| threshold a sample must clear to count as successful for
// SyncSuccessRate. limit<=0 uses DefaultHistoryLimit; syncThreshold<=0
// uses DefaultSyncThreshold.
func New(limit int, syncThreshold float64) *Monitor {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if syncThreshold <= 0 {
		syncThreshold = DefaultSyncThreshold
	}
	return &Monitor{limit: limit, syncThreshold: syncThreshold, state: Idle}
}

// Subscribe registers an observer to receive future events.
func (m *Monitor) Subscribe(o Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, o)
}

// Unsubscribe removes a previously registered observer, if present.
func (m *Monitor) Unsubscribe(o Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, obs := range m.observers {
		if obs == o {
			m.observers = append(m.observers[:i], m.observers[i+1:]...)
			return
		}
	}
}

// RecordSample appends a new (time, offset, delay) triple to the
// bounded history, evicting the oldest entry first once full, and
// notifies observers.
func (m *Monitor) RecordSample(t time.Time, offset, delay float64) {
	m.mu.Lock()
	m.totalAttempts++
	if math.Abs(offset) < m.syncThreshold {
		m.successCount++
	}
	rec := Record{Time: t, Offset: offset, Delay: delay}
	m.history = append(m.history, rec)
	if len(m.history) > m.limit {
		m.history = m.history[len(m.history)-m.limit:]
	}
	observers := append([]Observer(nil), m.observers...)
	m.mu.Unlock()

	notify(observers, Event{Kind: EventSample, Sample: rec})
}

// RecordFailure counts a failed cycle against the sync success rate
// without adding a history entry.
func (m *Monitor) RecordFailure() {
	m.mu.Lock()
	m.totalAttempts++
	m.mu.Unlock()
}

// SetState transitions the monitor's tracked state and notifies
// observers of the change. It is a no-op, including no notification,
// when newState equals the current state.
func (m *Monitor) SetState(newState State) {
	m.mu.Lock()
	old := m.state
	if old == newState {
		m.mu.Unlock()
		return
	}
	m.state = newState
	observers := append([]Observer(nil), m.observers...)
	m.mu.Unlock()

	notify(observers, Event{Kind: EventStateChange, OldState: old, NewState: newState})
}

// State returns the monitor's currently tracked sync state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// NotifyError reports a non-fatal error to observers without altering
// history or state.
func (m *Monitor) NotifyError(kind, detail string) {
	m.mu.Lock()
	observers := append([]Observer(nil), m.observers...)
	m.mu.Unlock()

	notify(observers, Event{Kind: EventError, ErrorKind: kind, ErrorDetail: detail})
}

func notify(observers []Observer, ev Event) {
	for _, o := range observers {
		o.Notify(ev)
	}
}

// Snapshot is a point-in-time, detached copy of the monitor's state
// suitable for rendering or serialization without holding the lock.
type Snapshot struct {
	State   State    `json:"state"`
	History []Record `json:"history"`
	Metrics Metrics  `json:"metrics"`
}

// Snapshot returns a copy of the current history, state, and derived
// metrics.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	history := make([]Record, len(m.history))
	copy(history, m.history)

	return Snapshot{
		State:   m.state,
		History: history,
		Metrics: m.metrics(),
	}
}

// metrics derives the performance summary from the current history
// under the caller's lock.
func (m *Monitor) metrics() Metrics {
	if len(m.history) == 0 {
		return Metrics{}
	}

	var sumOffsetMs, sumDelayMs, sumSqOffsetMs, maxAbsOffsetMs float64
	for _, r := range m.history {
		offsetMs := r.Offset * 1000
		sumOffsetMs += offsetMs
		sumSqOffsetMs += offsetMs * offsetMs
		sumDelayMs += r.Delay * 1000
		if abs := math.Abs(offsetMs); abs > maxAbsOffsetMs {
			maxAbsOffsetMs = abs
		}
	}
	n := float64(len(m.history))
	meanOffsetMs := sumOffsetMs / n
	variance := sumSqOffsetMs/n - meanOffsetMs*meanOffsetMs
	if variance < 0 {
		variance = 0
	}

	successRate := 0.0
	if m.totalAttempts > 0 {
		successRate = float64(m.successCount) / float64(m.totalAttempts) * 100
	}

	last := m.history[len(m.history)-1]
	return Metrics{
		AccuracyMs:      math.Abs(last.Offset * 1000),
		StabilityMs:     math.Sqrt(variance),
		PrecisionMs:     maxAbsOffsetMs,
		AvgDelayMs:      sumDelayMs / n,
		SyncSuccessRate: successRate,
		LastUpdate:      last.Time,
	}
}
