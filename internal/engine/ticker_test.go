package engine

import (
	"context"
	"errors"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MRamiBalles/ChernOS/internal/events"
	"github.com/MRamiBalles/ChernOS/internal/platform/metrics"
)

func TestTickerRunsFramesAndCommands(t *testing.T) {
	m := metrics.New()
	e := NewEngine(events.NewBus(nil, nil), nil, m, Options{Seed: 7})
	tk := NewTicker(e, 200, nil, m)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go tk.Start(ctx)
	defer tk.Stop()

	var frames uint64
	for frames < 3 {
		if err := tk.Exec(ctx, func(e *Engine) { frames = e.Snapshot().Frame }); err != nil {
			t.Fatalf("Exec: %v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}

	var overdrive bool
	err := tk.Exec(ctx, func(e *Engine) {
		_ = e.ToggleOverdrive()
		overdrive = e.Reactor().OverdriveEnabled
	})
	if err != nil || !overdrive {
		t.Errorf("Expected overdrive toggled on the ticker goroutine, got %v / %v", overdrive, err)
	}
	if atomic.LoadInt64(&m.TickCount) == 0 {
		t.Error("Expected ticks recorded in metrics")
	}
}

func TestExecAfterStop(t *testing.T) {
	e := NewEngine(events.NewBus(nil, nil), nil, nil, Options{Seed: 8})
	tk := NewTicker(e, 0, nil, nil)
	if tk.FrameRate() != DefaultFrameRate {
		t.Errorf("Expected default frame rate, got %d", tk.FrameRate())
	}

	tk.Stop()
	tk.Stop()

	err := tk.Exec(context.Background(), func(*Engine) {})
	if !errors.Is(err, ErrTickerStopped) {
		t.Errorf("Expected ErrTickerStopped, got %v", err)
	}
}

func TestExecHonoursContext(t *testing.T) {
	e := NewEngine(events.NewBus(nil, nil), nil, nil, Options{Seed: 9})
	tk := NewTicker(e, 60, nil, nil) // never started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := tk.Exec(ctx, func(*Engine) {}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}

func TestTickCapsStalledFrames(t *testing.T) {
	stalled := NewEngine(events.NewBus(nil, nil), nil, nil, Options{Seed: 10})
	NewTicker(stalled, 60, nil, nil).tick(5 * time.Second)

	capped := NewEngine(events.NewBus(nil, nil), nil, nil, Options{Seed: 10})
	capped.Tick(MaxFrameDelta.Seconds())

	if got, want := stalled.Snapshot(), capped.Snapshot(); !reflect.DeepEqual(got, want) {
		t.Errorf("A 5s frame should integrate as %v:\n got  %+v\n want %+v", MaxFrameDelta, got.Reactor, want.Reactor)
	}

	short := NewEngine(events.NewBus(nil, nil), nil, nil, Options{Seed: 10})
	NewTicker(short, 60, nil, nil).tick(10 * time.Millisecond)
	direct := NewEngine(events.NewBus(nil, nil), nil, nil, Options{Seed: 10})
	direct.Tick(0.01)
	if !reflect.DeepEqual(short.Snapshot(), direct.Snapshot()) {
		t.Error("Frames under the cap must pass through unchanged")
	}
}
