// Package syncctl drives the Slave's periodic synchronization cycle: it
// runs a round of exchanges, picks the best sample, applies it as a
// step or a PID-driven slew, and tracks the resulting FSM state.
package syncctl

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clocksync/clocksync/internal/metrics"
	"github.com/clocksync/clocksync/pkg/monitor"
	"github.com/clocksync/clocksync/pkg/pid"
	"github.com/clocksync/clocksync/pkg/requester"
	"github.com/clocksync/clocksync/pkg/sample"
	"github.com/clocksync/clocksync/pkg/softclock"
)

// Defaults mirror the fixed thresholds the controller's FSM is built on.
const (
	DefaultSyncThreshold        = 0.001
	DefaultLargeOffset          = 5.0
	DefaultMasterOfflineTimeout = 15 * time.Second
	DefaultSyncInterval         = 5 * time.Second
	DefaultRoundsPerSync        = 6
	DefaultConsecutiveFailLimit = 3
)

// Config bundles the controller's tunables, set once at construction.
type Config struct {
	SyncThreshold        float64
	LargeOffset          float64
	MasterOfflineTimeout time.Duration
	SyncInterval         time.Duration
	RoundsPerSync        int
	ConsecutiveFailLimit int
}

// DefaultConfig returns the canonical threshold values.
func DefaultConfig() Config {
	return Config{
		SyncThreshold:        DefaultSyncThreshold,
		LargeOffset:          DefaultLargeOffset,
		MasterOfflineTimeout: DefaultMasterOfflineTimeout,
		SyncInterval:         DefaultSyncInterval,
		RoundsPerSync:        DefaultRoundsPerSync,
		ConsecutiveFailLimit: DefaultConsecutiveFailLimit,
	}
}

// Controller is the Slave's periodic synchronization driver. One
// background goroutine runs the cycle loop; Start/Stop are safe to
// call from any goroutine.
type Controller struct {
	cfg Config

	req   *requester.Requester
	clock *softclock.Clock
	pid   *pid.Controller
	mon   *monitor.Monitor
	log   *zap.Logger
	mtrcs *metrics.Registry

	mu               sync.Mutex
	state            monitor.State
	consecutiveFails int
	lastReplyAt      time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Controller wiring together the requester, software
// clock, PID controller, and monitor it will drive. mtrcs may be nil,
// in which case no metrics are recorded.
func New(cfg Config, req *requester.Requester, clock *softclock.Clock, pidCtl *pid.Controller, mon *monitor.Monitor, mtrcs *metrics.Registry, log *zap.Logger) *Controller {
	return &Controller{
		cfg:   cfg,
		req:   req,
		clock: clock,
		pid:   pidCtl,
		mon:   mon,
		mtrcs: mtrcs,
		log:   log,
		state: monitor.Idle,
	}
}

// Start transitions IDLE→SYNCING and launches the background cycle
// loop. Calling Start while already running is a no-op.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.lastReplyAt = time.Now()
	c.mu.Unlock()

	c.setState(monitor.Syncing)

	c.wg.Add(1)
	go c.run(runCtx)
}

// Stop cancels the background loop and waits for it to exit. An
// in-flight receive unblocks at its own deadline, so Stop returns
// promptly but not necessarily instantly.
func (c *Controller) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	c.wg.Wait()
	c.setState(monitor.Idle)
}

func (c *Controller) run(ctx context.Context) {
	defer c.wg.Done()

	c.runCycle(ctx)

	ticker := time.NewTicker(c.cfg.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.runCycle(ctx)
		}
	}
}

// runCycle performs one full round algorithm: up to RoundsPerSync
// exchanges, best-sample selection, offset application, and monitor
// notification. Cycle N completes in full before cycle N+1 begins
// because cycles run one after another on the single loop goroutine; a
// tick that arrives mid-cycle is only handled after this call returns.
func (c *Controller) runCycle(ctx context.Context) {
	roundID := uuid.New().String()
	round := &sample.Round{}

	for i := 0; i < c.cfg.RoundsPerSync; i++ {
		if ctx.Err() != nil {
			return
		}
		s, err := c.req.Exchange()
		if err != nil {
			c.log.Debug("exchange failed", zap.String("round_id", roundID), zap.Error(err))
			continue
		}
		round.Add(s)
	}

	if round.Len() == 0 {
		c.onRoundEmpty()
		return
	}

	best, _ := round.Best()

	c.mu.Lock()
	c.consecutiveFails = 0
	c.lastReplyAt = time.Now()
	c.mu.Unlock()

	c.log.Debug("round completed", zap.String("round_id", roundID), zap.Int("samples", round.Len()),
		zap.Float64("offset", best.Offset), zap.Float64("delay", best.Delay))

	c.applyOffset(best.Offset)
	c.mon.RecordSample(time.Now(), best.Offset, best.Delay)
	if c.mtrcs != nil {
		c.mtrcs.OffsetSeconds.Observe(math.Abs(best.Offset))
		c.mtrcs.DelaySeconds.Observe(best.Delay)
	}
	c.transitionOnOffset(best.Offset)
}

// applyOffset implements the step-vs-slew decision: offsets whose
// magnitude reaches LargeOffset (ties go to step) are corrected by an
// instantaneous step followed by a PID reset; smaller offsets are
// corrected by a frequency slew computed from the PID controller.
func (c *Controller) applyOffset(offset float64) {
	if math.Abs(offset) >= c.cfg.LargeOffset {
		c.clock.SetTimeOffset(time.Duration(offset * float64(time.Second)))
		c.pid.Reset()
		c.clock.SetRateAdjustment(0)
		return
	}

	rate := c.pid.Update(offset, c.clock.Now())
	c.clock.SetRateAdjustment(rate)
}

func (c *Controller) transitionOnOffset(offset float64) {
	abs := math.Abs(offset)
	switch {
	case abs >= c.cfg.LargeOffset:
		c.setState(monitor.LargeOffset)
	case abs <= c.cfg.SyncThreshold:
		c.setState(monitor.Synced)
	default:
		c.setState(monitor.Syncing)
	}
}

func (c *Controller) onRoundEmpty() {
	c.mon.RecordFailure()
	c.mon.NotifyError("RoundEmpty", "all exchanges in the round failed")
	if c.mtrcs != nil {
		c.mtrcs.RoundEmpty.Inc()
	}

	c.mu.Lock()
	c.consecutiveFails++
	fails := c.consecutiveFails
	sinceLastReply := time.Since(c.lastReplyAt)
	c.mu.Unlock()

	if fails < c.cfg.ConsecutiveFailLimit {
		return
	}
	prev := c.State()
	if (prev == monitor.Error || prev == monitor.MasterOffline) && sinceLastReply >= c.cfg.MasterOfflineTimeout {
		c.setState(monitor.MasterOffline)
		return
	}
	c.setState(monitor.Error)
}

func (c *Controller) setState(s monitor.State) {
	c.mu.Lock()
	old := c.state
	c.state = s
	c.mu.Unlock()
	c.mon.SetState(s)
	if c.mtrcs != nil && old != s {
		c.mtrcs.StateTransitions.WithLabelValues(old.String(), s.String()).Inc()
	}
}

// State returns the controller's current FSM state.
func (c *Controller) State() monitor.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
