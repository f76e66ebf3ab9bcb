// Package bridge connects devices to the cycle engine. Every bridge runs a
// worker goroutine that polls its device and writes setpoints, so the cycle
// only touches committed snapshots.
package bridge

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/berfenger/frostems/internal/core/domain"
	"github.com/berfenger/frostems/internal/core/port"
	"github.com/berfenger/frostems/internal/util"
	"go.uber.org/zap"
)

// number of I/O rounds RequiredCycleTime looks back on
const timingWindow = 10

// Device is the blocking side of a bridge. It is only called from the worker.
type Device interface {
	Open() error
	Read() (domain.Measurements, error)
	Write(setpoints map[domain.InverterId]domain.Setpoint) error
	Close() error
}

type Options struct {
	PollInterval time.Duration
	Timeout      time.Duration
}

type Bridge struct {
	id      string
	essIds  []string
	device  Device
	opts    Options
	pending chan map[domain.InverterId]domain.Setpoint

	mu        sync.RWMutex
	snapshot  domain.Measurements
	durations []time.Duration
	opened    bool

	logger *zap.Logger
}

func New(id string, essIds []string, device Device, opts Options, logger *zap.Logger) *Bridge {
	return &Bridge{
		id:      id,
		essIds:  essIds,
		device:  device,
		opts:    opts,
		pending: make(chan map[domain.InverterId]domain.Setpoint, 1),
		logger:  logger.With(zap.String("component", "bridge"), zap.String("bridge", id)),
	}
}

func (b *Bridge) Id() string {
	return b.id
}

func (b *Bridge) EssIds() []string {
	return b.essIds
}

// Snapshot returns the last committed measurements.
func (b *Bridge) Snapshot() domain.Measurements {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.snapshot
}

// RequiredCycleTime is the slowest of the last poll and write rounds.
func (b *Bridge) RequiredCycleTime() time.Duration {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var res time.Duration
	for _, d := range b.durations {
		res = max(res, d)
	}
	return res
}

// ApplySetpoints queues the setpoints for the worker. A write that has not
// started yet is replaced.
func (b *Bridge) ApplySetpoints(setpoints map[domain.InverterId]domain.Setpoint) error {
	for id := range setpoints {
		if !slices.Contains(b.essIds, id.EssId) {
			return fmt.Errorf("bridge %s: unknown ess %q", b.id, id.EssId)
		}
	}
	for {
		select {
		case b.pending <- setpoints:
			return nil
		default:
		}
		// drop the stale write
		select {
		case <-b.pending:
		default:
		}
	}
}

// Start runs the worker until ctx is cancelled.
func (b *Bridge) Start(ctx context.Context) error {
	b.logger.Info("bridge@start", zap.Strings("ess", b.essIds), zap.Duration("poll", b.opts.PollInterval))

	ticker := time.NewTicker(b.opts.PollInterval)
	defer ticker.Stop()

	b.poll()
	for {
		select {
		case <-ctx.Done():
			b.logger.Info("bridge@stop")
			return nil
		case <-ticker.C:
			b.poll()
		case setpoints := <-b.pending:
			b.write(setpoints)
		}
	}
}

func (b *Bridge) Close() error {
	b.mu.Lock()
	opened := b.opened
	b.opened = false
	b.mu.Unlock()
	if !opened {
		return nil
	}
	return b.device.Close()
}

func (b *Bridge) ensureOpen() bool {
	b.mu.RLock()
	opened := b.opened
	b.mu.RUnlock()
	if opened {
		return true
	}
	if err := util.RunErrWithTimeout(b.opts.Timeout, b.device.Open); err != nil {
		b.logger.Warn("bridge@open failed", zap.Error(err))
		return false
	}
	b.mu.Lock()
	b.opened = true
	b.mu.Unlock()
	b.logger.Info("bridge@open connected")
	return true
}

func (b *Bridge) poll() {
	if !b.ensureOpen() {
		return
	}
	start := time.Now()
	m, err := util.RunWithTimeout(b.opts.Timeout, b.device.Read)
	b.record(time.Since(start))
	if err != nil {
		// reconnect on the next round, the last snapshot stays in place
		b.logger.Warn("bridge@poll read failed", zap.Error(err))
		b.reset()
		return
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	b.mu.Lock()
	b.snapshot = m
	b.mu.Unlock()
}

func (b *Bridge) write(setpoints map[domain.InverterId]domain.Setpoint) {
	if !b.ensureOpen() {
		return
	}
	start := time.Now()
	err := util.RunErrWithTimeout(b.opts.Timeout, func() error {
		return b.device.Write(setpoints)
	})
	b.record(time.Since(start))
	if err != nil {
		b.logger.Warn("bridge@write failed", zap.Error(err))
		b.reset()
		return
	}
	b.logger.Debug("bridge@write done", zap.Int("setpoints", len(setpoints)))
}

func (b *Bridge) reset() {
	if err := b.Close(); err != nil {
		b.logger.Debug("bridge@reset close failed", zap.Error(err))
	}
}

func (b *Bridge) record(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.durations = append(b.durations, d)
	if len(b.durations) > timingWindow {
		b.durations = b.durations[len(b.durations)-timingWindow:]
	}
}

// ensure interface compliance
var _ port.DeviceBridge = (*Bridge)(nil)
