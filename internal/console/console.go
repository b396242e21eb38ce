// Package console renders the control room in a terminal with tcell.
package console

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/MRamiBalles/ChernOS/internal/domain/network"
	"github.com/MRamiBalles/ChernOS/internal/domain/reactor"
	"github.com/MRamiBalles/ChernOS/internal/events"
	"github.com/MRamiBalles/ChernOS/internal/platform/logger"
	"github.com/MRamiBalles/ChernOS/internal/terminal"
	"github.com/MRamiBalles/ChernOS/internal/theme"
)

const (
	maxLogLines    = 200
	maxOutputLines = 300
	commandTimeout = 5 * time.Second
	frameInterval  = 33 * time.Millisecond // ~30 FPS
	prompt         = "OP> "
)

// CommandRunner executes terminal command lines. *terminal.Interpreter implements it.
type CommandRunner interface {
	Run(ctx context.Context, line string) ([]string, error)
}

// Console is the operator display: gauges, network table, log and command line.
type Console struct {
	screen tcell.Screen
	runner CommandRunner
	bus    *events.Bus
	logger *logger.Logger

	mu          sync.Mutex
	reactor     reactor.State
	crisisMode  string
	containment reactor.Containment
	net         network.State
	logLines    []string
	output      []string
	palette     theme.Palette

	// UI goroutine only
	input   []rune
	history *terminal.History
}

// New creates a console drawing on screen. The screen must already be initialized.
func New(screen tcell.Screen, bus *events.Bus, runner CommandRunner, log *logger.Logger) *Console {
	if log == nil {
		log = logger.NewNop()
	}
	return &Console{
		screen:      screen,
		runner:      runner,
		bus:         bus,
		logger:      log.Named("console"),
		reactor:     *reactor.NewState(),
		crisisMode:  "SAFE",
		containment: *reactor.NewContainment(),
		net:         network.NewState().Clone(),
		output:      []string{terminal.Banner, terminal.Hint},
		palette:     theme.Green.Palette(),
		history:     terminal.NewHistory(0),
	}
}

// Attach subscribes the console to the display events.
func (c *Console) Attach() (detach func()) {
	return c.bus.SubscribeTypes(c.handle,
		events.EventTypeReactorUpdate,
		events.EventTypeContainmentUpdate,
		events.EventTypeNetUpdate,
		events.EventTypeLogAppend,
	)
}

func (c *Console) handle(e events.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch p := e.Payload.(type) {
	case events.ReactorUpdatePayload:
		c.reactor = p.State
		c.crisisMode = p.CrisisMode
	case events.ContainmentUpdatePayload:
		c.containment = p.Containment
	case events.NetUpdatePayload:
		c.net = p.State
	case events.LogAppendPayload:
		c.logLines = appendCapped(c.logLines, maxLogLines, p.Line)
	}
	return nil
}

// SetPalette switches the display colours. Wire it to theme.Controller.OnChange.
func (c *Console) SetPalette(p theme.Palette) {
	c.mu.Lock()
	c.palette = p
	c.mu.Unlock()
}

func appendCapped(lines []string, limit int, add ...string) []string {
	lines = append(lines, add...)
	if over := len(lines) - limit; over > 0 {
		lines = append(lines[:0:0], lines[over:]...)
	}
	return lines
}

// Run polls input and redraws until the operator quits or ctx ends.
func (c *Console) Run(ctx context.Context) {
	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	eventChan := make(chan tcell.Event, 100)
	go func() {
		for {
			ev := c.screen.PollEvent()
			if ev == nil {
				return // screen finalized
			}
			eventChan <- ev
		}
	}()

	c.Draw()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-eventChan:
			if !c.HandleEvent(ctx, ev) {
				return
			}
		case <-ticker.C:
			c.Draw()
		}
	}
}

// HandleEvent processes one input event and reports whether to keep running.
func (c *Console) HandleEvent(ctx context.Context, ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		switch ev.Key() {
		case tcell.KeyEscape, tcell.KeyCtrlC:
			return false
		case tcell.KeyEnter:
			line := string(c.input)
			c.input = c.input[:0]
			c.submit(ctx, line)
		case tcell.KeyUp:
			if cmd, ok := c.history.Up(); ok {
				c.input = []rune(cmd)
			}
		case tcell.KeyDown:
			if cmd, ok := c.history.Down(); ok {
				c.input = []rune(cmd)
			}
		case tcell.KeyBackspace, tcell.KeyBackspace2:
			if len(c.input) > 0 {
				c.input = c.input[:len(c.input)-1]
			}
		case tcell.KeyF9:
			// Night shift hotkey
			c.exec(ctx, "theme "+string(theme.Night))
		case tcell.KeyRune:
			c.input = append(c.input, ev.Rune())
		}
	case *tcell.EventResize:
		c.screen.Sync()
	}
	return true
}

func (c *Console) submit(ctx context.Context, line string) {
	cmd := strings.TrimSpace(line)
	if cmd == "" {
		return
	}
	c.history.Push(cmd)
	c.print("> " + cmd)
	c.exec(ctx, cmd)
}

// exec runs a command without holding c.mu; the runner waits on the engine
// goroutine, which in turn delivers events to c.handle.
func (c *Console) exec(ctx context.Context, cmd string) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	lines, err := c.runner.Run(ctx, cmd)
	if err != nil {
		c.logger.Debug("Command failed", "command", cmd, "error", err)
	}
	if err != nil && len(lines) == 0 {
		lines = []string{"error: " + err.Error()}
	}
	c.print(lines...)
}

func (c *Console) print(lines ...string) {
	c.mu.Lock()
	c.output = appendCapped(c.output, maxOutputLines, lines...)
	c.mu.Unlock()
}

// Input returns the current command line.
func (c *Console) Input() string {
	return string(c.input)
}

// Draw renders one frame.
func (c *Console) Draw() {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.screen
	base := tcell.StyleDefault.
		Foreground(tcell.GetColor(c.palette.Accent)).
		Background(tcell.GetColor(c.palette.Background))
	dim := base.Dim(true)
	alert := base.Foreground(tcell.ColorRed).Bold(true)

	s.SetStyle(base)
	s.Clear()
	w, h := s.Size()

	r := c.reactor
	header := fmt.Sprintf("ChernOS 2.0 :: REACTOR CONTROL   mode=%s   stage=%d %s", c.crisisMode, int(r.MeltdownStage), r.MeltdownStage)
	headerStyle := base.Bold(true)
	if r.MeltdownStage > reactor.StageStable {
		headerStyle = alert
	}
	drawText(s, 0, 0, w, headerStyle, header)

	row := 2
	gauge := func(label string, value, limit float64, unit string) {
		drawGauge(s, row, w, base, label, value, limit, unit)
		row++
	}
	gauge("TEMP ", r.Temperature, 2000, "C")
	gauge("PRESS", r.Pressure, 10, "MPa")
	gauge("RAD  ", r.Radiation, 5, "mSv/h")
	gauge("CI   ", r.CrisisIndex, reactor.MaxCrisisIndex, "/10")
	gauge("SEC  ", c.containment.SecondaryIntegrity, reactor.MaxIntegrity, "%")

	drawText(s, 0, row, w, base, fmt.Sprintf("SG=%d/%d  OVERDRIVE=%s  LATCH a=%s b=%s g=%s",
		r.SafeguardCharges, reactor.MaxSafeguardCharges, onOff(r.OverdriveEnabled),
		onOff(c.containment.AlphaThermalLatch), onOff(c.containment.BetaPressureLatch), onOff(c.containment.GammaFieldLatch)))
	row += 2

	drawText(s, 0, row, w, base.Bold(true), fmt.Sprintf("NET mode=%s throttle=%d", c.net.Mode, c.net.ThrottleLevel))
	row++
	for _, n := range c.net.Nodes {
		style := base
		if !n.Active {
			style = dim
		}
		drawText(s, 0, row, w, style, fmt.Sprintf("  %-10s %7.1fms %6.2f%%", n.ID, n.LatencyMs, n.LossPercent))
		row++
	}
	row++

	// The rest is split between the log and the terminal output.
	promptRow := h - 1
	space := promptRow - row
	if space > 0 {
		logRows := space / 2
		drawTail(s, row, logRows, w, dim, c.logLines)
		drawTail(s, row+logRows, space-logRows, w, base, c.output)
	}

	drawText(s, 0, promptRow, w, base.Bold(true), prompt+string(c.input))
	s.ShowCursor(min(len(prompt)+len(c.input), w-1), promptRow)
	s.Show()
}

func onOff(b bool) string {
	if b {
		return "ON"
	}
	return "off"
}

func drawText(s tcell.Screen, x, y, maxWidth int, style tcell.Style, text string) {
	for _, ch := range text {
		if x >= maxWidth {
			return
		}
		s.SetContent(x, y, ch, nil, style)
		x++
	}
}

// drawTail draws the last rows lines of a buffer.
func drawTail(s tcell.Screen, y, rows, w int, style tcell.Style, lines []string) {
	if rows <= 0 {
		return
	}
	start := max(0, len(lines)-rows)
	for i, line := range lines[start:] {
		drawText(s, 0, y+i, w, style, line)
	}
}

func drawGauge(s tcell.Screen, y, w int, style tcell.Style, label string, value, limit float64, unit string) {
	const barWidth = 30
	frac := 0.0
	if limit > 0 {
		frac = math.Min(1, math.Max(0, value/limit))
	}
	filled := int(math.Round(frac * barWidth))
	bar := strings.Repeat("█", filled) + strings.Repeat("·", barWidth-filled)
	drawText(s, 0, y, w, style, fmt.Sprintf("%s [%s] %.2f%s", label, bar, value, unit))
}
