package console

import (
	"context"
	"strings"
	"testing"

	"github.com/gdamore/tcell/v2"

	"github.com/MRamiBalles/ChernOS/internal/domain/reactor"
	"github.com/MRamiBalles/ChernOS/internal/engine"
	"github.com/MRamiBalles/ChernOS/internal/events"
	"github.com/MRamiBalles/ChernOS/internal/terminal"
	"github.com/MRamiBalles/ChernOS/internal/theme"
)

type recordingRunner struct {
	lines []string
}

func (r *recordingRunner) Run(_ context.Context, line string) ([]string, error) {
	r.lines = append(r.lines, line)
	if line == "launch" {
		return nil, terminal.ErrInvalidCommand
	}
	return []string{"ok: " + line}, nil
}

func newSimScreen(t *testing.T) tcell.SimulationScreen {
	t.Helper()
	screen := tcell.NewSimulationScreen("UTF-8")
	if err := screen.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	screen.SetSize(80, 30)
	t.Cleanup(screen.Fini)
	return screen
}

func screenText(s tcell.SimulationScreen) string {
	w, h := s.Size()
	var b strings.Builder
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, _, _, _ := s.GetContent(x, y)
			if r == 0 {
				r = ' '
			}
			b.WriteRune(r)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func typeLine(c *Console, line string) {
	ctx := context.Background()
	for _, r := range line {
		c.HandleEvent(ctx, tcell.NewEventKey(tcell.KeyRune, r, tcell.ModNone))
	}
	c.HandleEvent(ctx, tcell.NewEventKey(tcell.KeyEnter, 0, tcell.ModNone))
}

func TestDrawShowsBusState(t *testing.T) {
	screen := newSimScreen(t)
	bus := events.NewBus(nil, nil)
	c := New(screen, bus, &recordingRunner{}, nil)
	c.Attach()

	state := *reactor.NewState()
	state.Temperature = 987
	state.MeltdownStage = reactor.StageOverheat
	bus.Emit(events.ReactorUpdatePayload{State: state, CrisisMode: "DANGER"})
	bus.LogLine("Fault injected: sensor (sim)")

	c.Draw()
	text := screenText(screen)

	for _, want := range []string{"mode=DANGER", "stage=1", "987.00C", "CORE-1", "Fault injected: sensor", terminal.Banner} {
		if !strings.Contains(text, want) {
			t.Errorf("Screen missing %q:\n%s", want, text)
		}
	}
}

func TestCommandLineAndHistory(t *testing.T) {
	screen := newSimScreen(t)
	runner := &recordingRunner{}
	c := New(screen, events.NewBus(nil, nil), runner, nil)

	typeLine(c, "net scan")
	typeLine(c, "launch")
	typeLine(c, "   ")

	if len(runner.lines) != 2 || runner.lines[0] != "net scan" {
		t.Fatalf("Unexpected commands %v", runner.lines)
	}
	if c.Input() != "" {
		t.Errorf("Expected an empty prompt, got %q", c.Input())
	}

	c.Draw()
	text := screenText(screen)
	for _, want := range []string{"> net scan", "ok: net scan", "error: invalid command"} {
		if !strings.Contains(text, want) {
			t.Errorf("Screen missing %q", want)
		}
	}

	ctx := context.Background()
	c.HandleEvent(ctx, tcell.NewEventKey(tcell.KeyUp, 0, tcell.ModNone))
	if c.Input() != "launch" {
		t.Errorf("Up: expected launch, got %q", c.Input())
	}
	c.HandleEvent(ctx, tcell.NewEventKey(tcell.KeyUp, 0, tcell.ModNone))
	if c.Input() != "net scan" {
		t.Errorf("Up: expected net scan, got %q", c.Input())
	}
	c.HandleEvent(ctx, tcell.NewEventKey(tcell.KeyBackspace2, 0, tcell.ModNone))
	if c.Input() != "net sca" {
		t.Errorf("Backspace: got %q", c.Input())
	}
}

func TestNightHotkeyAndQuit(t *testing.T) {
	runner := &recordingRunner{}
	c := New(newSimScreen(t), events.NewBus(nil, nil), runner, nil)
	ctx := context.Background()

	if !c.HandleEvent(ctx, tcell.NewEventKey(tcell.KeyF9, 0, tcell.ModNone)) {
		t.Fatal("F9 should not quit")
	}
	if len(runner.lines) != 1 || runner.lines[0] != "theme night" {
		t.Errorf("Expected theme night, got %v", runner.lines)
	}
	if c.HandleEvent(ctx, tcell.NewEventKey(tcell.KeyEscape, 0, tcell.ModNone)) {
		t.Error("Escape should quit")
	}
}

func TestPaletteFollowsTheme(t *testing.T) {
	screen := newSimScreen(t)
	c := New(screen, events.NewBus(nil, nil), &recordingRunner{}, nil)
	c.SetPalette(theme.Redline.Palette())
	c.Draw()

	_, _, style, _ := screen.GetContent(0, 0)
	fg, bg, _ := style.Decompose()
	if fg != tcell.GetColor("#fb7185") || bg != tcell.GetColor("#050009") {
		t.Errorf("Unexpected colours fg=%v bg=%v", fg, bg)
	}
}

// A command typed in the console runs on the engine goroutine and its
// log line comes back through the bus.
func TestConsoleWithTicker(t *testing.T) {
	screen := newSimScreen(t)
	bus := events.NewBus(nil, nil)
	e := engine.NewEngine(bus, nil, nil, engine.Options{Seed: 1})
	ticker := engine.NewTicker(e, 60, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ticker.Start(ctx)
	defer ticker.Stop()

	c := New(screen, bus, terminal.New(ticker, nil, nil, nil), nil)
	c.Attach()

	typeLine(c, "simulate ghost")
	c.Draw()
	text := screenText(screen)
	if !strings.Contains(text, "term: simulate ghost") {
		t.Errorf("Expected the command echoed into the log:\n%s", text)
	}
	if !strings.Contains(text, "simulate: fault 'ghost' injected (sim).") {
		t.Errorf("Expected the command output:\n%s", text)
	}
}
