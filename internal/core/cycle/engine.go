// Package cycle paces the read, control, solve and write phases. The interval
// adapts to the slowest bridge but never grows past MaxCycleTimeFactor times
// the configured cycle time.
package cycle

import (
	"fmt"
	"time"

	"github.com/berfenger/frostems/internal/core/domain"
	"github.com/berfenger/frostems/internal/core/port"
	"go.uber.org/zap"
)

const (
	DefaultCycleTime   = time.Second
	MaxCycleTimeFactor = 3
	Resolution         = 100 * time.Millisecond
)

// Executor runs one complete cycle.
type Executor interface {
	Execute() error
}

type Engine struct {
	configured time.Duration
	actual     time.Duration
	executor   Executor
	bridges    []port.Bridge
	now        func() time.Time
	iteration  uint64
	logger     *zap.Logger
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

func NewEngine(cycleTime time.Duration, executor Executor, bridges []port.Bridge, logger *zap.Logger, opts ...Option) *Engine {
	if cycleTime <= 0 {
		cycleTime = DefaultCycleTime
	}
	e := &Engine{
		configured: cycleTime,
		actual:     cycleTime,
		executor:   executor,
		bridges:    bridges,
		now:        time.Now,
		logger:     logger.With(zap.String("component", "cycle")),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) ConfiguredCycleTime() time.Duration {
	return e.configured
}

func (e *Engine) ActualCycleTime() time.Duration {
	return e.actual
}

// Iterate runs a single cycle and computes the interval until the next one.
// Failures of the executor are logged and returned in the stats, never raised.
func (e *Engine) Iterate() domain.CycleStats {
	e.iteration++
	start := e.now()
	err := e.execute()
	required := e.now().Sub(start)
	if err != nil {
		e.logger.Error("cycle@iterate execute failed", zap.Uint64("iteration", e.iteration), zap.Error(err))
	}

	maxBridge := e.maxBridgeTime()
	next := AdaptCycleTime(e.configured, maxBridge)
	if next != e.actual {
		e.logger.Info("cycle@iterate cycle time changed",
			zap.Duration("from", e.actual), zap.Duration("to", next), zap.Duration("maxBridge", maxBridge))
	}
	e.actual = next

	e.logger.Debug("cycle@iterate done", zap.Uint64("iteration", e.iteration),
		zap.Duration("required", required), zap.Duration("actual", e.actual))

	return domain.CycleStats{
		Iteration:    e.iteration,
		Start:        start,
		RequiredTime: required,
		MaxBridge:    maxBridge,
		ActualCycle:  e.actual,
		Err:          err,
	}
}

// NextDelay is the time left until the cycle after stats should start.
func (e *Engine) NextDelay(stats domain.CycleStats) time.Duration {
	d := stats.Start.Add(stats.ActualCycle).Sub(e.now())
	if d < 0 {
		return 0
	}
	return d
}

func (e *Engine) execute() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cycle executor panic: %v", r)
		}
	}()
	return e.executor.Execute()
}

func (e *Engine) maxBridgeTime() time.Duration {
	var max time.Duration
	for _, b := range e.bridges {
		if d := b.RequiredCycleTime(); d > max {
			max = d
		}
	}
	return max
}

// AdaptCycleTime raises the cycle time to the bridge requirement rounded up to
// Resolution, capped at MaxCycleTimeFactor times the configured value. A
// requirement within the configured time resets it to the configured value.
func AdaptCycleTime(configured, maxBridge time.Duration) time.Duration {
	rounded := RoundUp(maxBridge, Resolution)
	if rounded <= configured {
		return configured
	}
	return min(rounded, MaxCycleTimeFactor*configured)
}

func RoundUp(d, resolution time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return ((d + resolution - 1) / resolution) * resolution
}
