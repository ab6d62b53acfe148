// Package pid implements the frequency-correction controller that
// drives the Slave's software clock rate toward zero offset.
package pid

import (
	"math"
	"sync"
	"time"
)

// Defaults mirror the classic PLL/FLL discipline loop gains, reworked
// into a canonical PID with explicit saturation and a large-offset
// integral reset.
const (
	DefaultKp = 0.8
	DefaultKi = 0.5
	DefaultKd = 0.1

	DefaultIntegralMin = -1.0
	DefaultIntegralMax = 1.0

	DefaultLargeOffsetReset = time.Second // seconds, as a duration
	DefaultMaxRate          = 1.0
)

// Config bundles the controller's tunable knobs, set once at
// construction from the loaded configuration and never mutated.
type Config struct {
	Kp, Ki, Kd         float64
	IntegralMin        float64
	IntegralMax        float64
	LargeOffsetReset   float64 // seconds
	MaxRate            float64
}

// DefaultConfig returns the canonical gain and saturation defaults.
func DefaultConfig() Config {
	return Config{
		Kp:               DefaultKp,
		Ki:               DefaultKi,
		Kd:               DefaultKd,
		IntegralMin:      DefaultIntegralMin,
		IntegralMax:      DefaultIntegralMax,
		LargeOffsetReset: DefaultLargeOffsetReset.Seconds(),
		MaxRate:          DefaultMaxRate,
	}
}

// Controller is a PID frequency controller with integral saturation
// and a large-offset guard.
//
// Between a Reset and the next Update, lastTime is undefined and the
// derivative term is skipped on that next sample — lastSet tracks
// whether lastTime actually holds a value, since the zero time.Time
// is itself a valid-looking instant.
type Controller struct {
	mu sync.Mutex

	cfg Config

	integral  float64
	lastError float64
	lastTime  time.Time
	lastSet   bool
}

// New creates a PID controller with the given configuration.
func New(cfg Config) *Controller {
	return &Controller{cfg: cfg}
}

// Reset clears the integral, last-error, and last-time state. The PID
// state after Reset matches a freshly constructed Controller.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.integral = 0
	c.lastError = 0
	c.lastTime = time.Time{}
	c.lastSet = false
}

// Update feeds a new offset sample at time t and returns the clamped
// rate correction. On the first call after construction or a Reset
// there is no prior sample to difference against, so the integral and
// derivative terms are skipped and only the proportional term fires.
func (c *Controller) Update(errVal float64, t time.Time) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.lastSet {
		c.lastSet = true
		c.lastTime = t
		c.lastError = errVal
		return clamp(c.cfg.Kp*errVal, c.cfg.MaxRate)
	}

	dt := t.Sub(c.lastTime).Seconds()

	if math.Abs(errVal) > c.cfg.LargeOffsetReset {
		c.integral = 0
	}

	c.integral = clampRange(c.integral+errVal*dt, c.cfg.IntegralMin, c.cfg.IntegralMax)

	var derivative float64
	if dt > 0 {
		derivative = (errVal - c.lastError) / dt
	}

	rate := c.cfg.Kp*errVal + c.cfg.Ki*c.integral + c.cfg.Kd*derivative
	rate = clamp(rate, c.cfg.MaxRate)

	c.lastError = errVal
	c.lastTime = t

	return rate
}

func clamp(v, bound float64) float64 {
	return math.Max(-bound, math.Min(bound, v))
}

func clampRange(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
