// Package drill runs scripted operator drills against a headless engine.
//
// A drill is a list of terminal commands scheduled on frame numbers plus a set
// of checks evaluated once the last frame has run. Drills use a fixed seed, so
// a given drill always produces the same log.
package drill

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/MRamiBalles/ChernOS/internal/engine"
	"github.com/MRamiBalles/ChernOS/internal/events"
	"github.com/MRamiBalles/ChernOS/internal/platform/logger"
	"github.com/MRamiBalles/ChernOS/internal/platform/metrics"
	"github.com/MRamiBalles/ChernOS/internal/terminal"
)

const (
	DefaultSeed      = 1986
	DefaultFrameRate = 60
)

// Step schedules one terminal command before the given frame is ticked.
type Step struct {
	Frame   int
	Command string
}

// Check inspects the outcome of a drill and returns an error describing what
// went wrong.
type Check struct {
	Name string
	Fn   func(Outcome) error
}

// Drill is a scripted scenario.
type Drill struct {
	Name        string
	Description string
	Frames      int
	Options     engine.Options // Seed is overridden by the runner
	Steps       []Step
	Checks      []Check
}

// Outcome is everything a drill produced.
type Outcome struct {
	Final    engine.Snapshot
	Log      []string // operator log lines, oldest first
	Output   []string // terminal output lines, oldest first
	Errors   []error  // command errors, in order
	Rejected int64
}

// LogContains reports whether any log line contains s.
func (o Outcome) LogContains(s string) bool {
	return containsLine(o.Log, s)
}

// OutputContains reports whether any terminal output line contains s.
func (o Outcome) OutputContains(s string) bool {
	return containsLine(o.Output, s)
}

func containsLine(lines []string, s string) bool {
	for _, l := range lines {
		if strings.Contains(l, s) {
			return true
		}
	}
	return false
}

// Result is the verdict of one drill run.
type Result struct {
	Drill    string
	Passed   bool
	Failures []string
	Outcome  Outcome
	Elapsed  time.Duration
}

// Runner executes drills.
type Runner struct {
	Seed      uint64
	FrameRate int
	logger    *logger.Logger
}

// NewRunner creates a runner with the default seed and frame rate.
func NewRunner(log *logger.Logger) *Runner {
	if log == nil {
		log = logger.NewNop()
	}
	return &Runner{Seed: DefaultSeed, FrameRate: DefaultFrameRate, logger: log.Named("drill")}
}

// direct runs engine functions inline; a drill owns its engine exclusively.
type direct struct{ e *engine.Engine }

func (d direct) Exec(ctx context.Context, fn func(*engine.Engine)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fn(d.e)
	return nil
}

// Run executes one drill. Unknown commands in the script fail the drill.
func (r *Runner) Run(ctx context.Context, d Drill) Result {
	start := time.Now()
	res := Result{Drill: d.Name}

	m := metrics.New()
	bus := events.NewBus(r.logger, m)

	var out Outcome
	bus.SubscribeTypes(func(e events.Event) error {
		out.Log = append(out.Log, e.Payload.(events.LogAppendPayload).Line)
		return nil
	}, events.EventTypeLogAppend)

	opts := d.Options
	opts.Seed = r.Seed
	opts.Rand = nil
	e := engine.NewEngine(bus, r.logger, m, opts)
	term := terminal.New(direct{e}, nil, m, r.logger)

	frameRate := r.FrameRate
	if frameRate <= 0 {
		frameRate = DefaultFrameRate
	}
	dt := 1.0 / float64(frameRate)

	steps := slices.Clone(d.Steps)
	slices.SortStableFunc(steps, func(a, b Step) int { return cmp.Compare(a.Frame, b.Frame) })

	next := 0
	for frame := 0; frame < d.Frames; frame++ {
		if err := ctx.Err(); err != nil {
			res.Failures = append(res.Failures, fmt.Sprintf("aborted at frame %d: %v", frame, err))
			break
		}
		for next < len(steps) && steps[next].Frame <= frame {
			step := steps[next]
			next++
			lines, err := term.Run(ctx, step.Command)
			out.Output = append(out.Output, lines...)
			if err != nil {
				out.Errors = append(out.Errors, err)
				if errors.Is(err, terminal.ErrInvalidCommand) {
					res.Failures = append(res.Failures, fmt.Sprintf("frame %d: %q is not a valid command", step.Frame, step.Command))
				}
			}
		}
		e.Tick(dt)
	}

	out.Final = e.Snapshot()
	out.Rejected = atomic.LoadInt64(&m.CommandsRejected)
	res.Outcome = out

	for _, c := range d.Checks {
		if err := c.Fn(out); err != nil {
			res.Failures = append(res.Failures, fmt.Sprintf("%s: %v", c.Name, err))
		}
	}
	res.Passed = len(res.Failures) == 0
	res.Elapsed = time.Since(start)

	verdict := "PASSED"
	if !res.Passed {
		verdict = "FAILED"
	}
	r.logger.Event("DRILL_"+verdict, "DRILL", d.Name)
	return res
}

// RunAll executes drills in order.
func (r *Runner) RunAll(ctx context.Context, drills []Drill) []Result {
	results := make([]Result, 0, len(drills))
	for _, d := range drills {
		results = append(results, r.Run(ctx, d))
	}
	return results
}

// Every schedules cmds on each frame in [from, to).
func Every(from, to int, cmds ...string) []Step {
	var steps []Step
	for f := from; f < to; f++ {
		for _, c := range cmds {
			steps = append(steps, Step{Frame: f, Command: c})
		}
	}
	return steps
}
