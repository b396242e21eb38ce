package engine

import (
	"context"
	"sync"
	"time"

	"github.com/MRamiBalles/ChernOS/internal/platform/logger"
	"github.com/MRamiBalles/ChernOS/internal/platform/metrics"
)

// DefaultFrameRate is the reference tick cadence in frames per second.
const DefaultFrameRate = 60

// MaxFrameDelta caps dt after a stall so one frame cannot jump the simulation.
const MaxFrameDelta = 250 * time.Millisecond

type command struct {
	fn   func(*Engine)
	done chan struct{}
}

// Ticker manages the frame loop heartbeat.
// It owns the only goroutine allowed to touch the Engine: ticks and operator
// commands are interleaved on it and never overlap.
type Ticker struct {
	engine    *Engine
	logger    *logger.Logger
	metrics   *metrics.Collector
	frameRate int
	commands  chan command
	stopChan  chan struct{}
	stopOnce  sync.Once
}

// NewTicker creates a frame driver for an engine. frameRate <= 0 means DefaultFrameRate.
func NewTicker(e *Engine, frameRate int, log *logger.Logger, m *metrics.Collector) *Ticker {
	if frameRate <= 0 {
		frameRate = DefaultFrameRate
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Ticker{
		engine:    e,
		logger:    log.Named("ticker"),
		metrics:   m,
		frameRate: frameRate,
		commands:  make(chan command),
		stopChan:  make(chan struct{}),
	}
}

// FrameRate returns the configured cadence.
func (t *Ticker) FrameRate() int {
	return t.frameRate
}

// Start runs the frame loop until ctx ends or Stop is called. Call in a goroutine.
func (t *Ticker) Start(ctx context.Context) {
	t.logger.Info("Engine ticker started", "frame_rate", t.frameRate)
	t.engine.Announce(t.frameRate)

	ticker := time.NewTicker(time.Second / time.Duration(t.frameRate))
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			t.logger.Info("Engine ticker stopped by context")
			return
		case <-t.stopChan:
			t.logger.Info("Engine ticker stopped manually")
			return
		case cmd := <-t.commands:
			cmd.fn(t.engine)
			close(cmd.done)
		case now := <-ticker.C:
			t.tick(now.Sub(last))
			last = now
		}
	}
}

// Stop gracefully stops the ticker. Safe to call more than once.
func (t *Ticker) Stop() {
	t.stopOnce.Do(func() { close(t.stopChan) })
}

// Exec runs fn on the ticker goroutine between two frames and waits for it.
// fn must not call Exec itself.
func (t *Ticker) Exec(ctx context.Context, fn func(*Engine)) error {
	cmd := command{fn: fn, done: make(chan struct{})}

	select {
	case t.commands <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	case <-t.stopChan:
		return ErrTickerStopped
	}

	select {
	case <-cmd.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// tick processes a single frame of at most MaxFrameDelta.
func (t *Ticker) tick(dt time.Duration) {
	dt = min(dt, MaxFrameDelta)
	start := time.Now()
	t.engine.Tick(dt.Seconds())
	if t.metrics != nil {
		t.metrics.RecordTick(time.Since(start))
	}
}
