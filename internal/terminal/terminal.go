// Package terminal interprets operator commands typed into the control room terminal.
package terminal

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/MRamiBalles/ChernOS/internal/domain/reactor"
	"github.com/MRamiBalles/ChernOS/internal/engine"
	"github.com/MRamiBalles/ChernOS/internal/events"
	"github.com/MRamiBalles/ChernOS/internal/plugins"
	"github.com/MRamiBalles/ChernOS/internal/platform/logger"
	"github.com/MRamiBalles/ChernOS/internal/platform/metrics"
	"github.com/MRamiBalles/ChernOS/internal/theme"
)

// ErrInvalidCommand is returned for unknown commands and bad arguments.
// The simulation is never touched when it is returned.
var ErrInvalidCommand = errors.New("terminal: invalid command")

const (
	Banner = "ChernOS Operator Terminal Mk II"
	Hint   = `Type "help" for commands.`

	helpText = "commands: help, status, containment status, simulate <sensor|pump|pressure|ghost>, " +
		"overdrive, autofault <on|off>, latch <alpha|beta|gamma> <on|off>, audio test <id>, " +
		"theme <green|amber|redline|blackchamber|night>, net status, net scan, net trace <node>, " +
		"net throttle <0|1|2>, plugins"
	unknownText = `Unknown command – try "help".`
)

// Executor runs a function against the engine on its owning goroutine.
// *engine.Ticker implements it.
type Executor interface {
	Exec(ctx context.Context, fn func(*engine.Engine)) error
}

// PluginLister reports loaded plugins. *plugins.Host implements it.
type PluginLister interface {
	Plugins() []plugins.Info
}

// Interpreter parses and runs terminal commands.
type Interpreter struct {
	exec    Executor
	plugins PluginLister
	metrics *metrics.Collector
	logger  *logger.Logger
}

// New creates an interpreter. lister and m may be nil.
func New(exec Executor, lister PluginLister, m *metrics.Collector, log *logger.Logger) *Interpreter {
	if log == nil {
		log = logger.NewNop()
	}
	return &Interpreter{exec: exec, plugins: lister, metrics: m, logger: log.Named("terminal")}
}

// Run executes one command line and returns the lines to print.
// Errors wrap ErrInvalidCommand or engine.ErrRejectedOperation; the output
// lines explain them to the operator either way. Blank input does nothing.
func (in *Interpreter) Run(ctx context.Context, raw string) ([]string, error) {
	cmd := strings.TrimSpace(raw)
	if cmd == "" {
		return nil, nil
	}

	var (
		out    []string
		cmdErr error
	)
	err := in.exec.Exec(ctx, func(e *engine.Engine) {
		e.Bus().LogLine("term: " + cmd)
		out, cmdErr = in.dispatch(e, cmd)
	})
	if err != nil {
		return nil, err
	}

	in.record(cmd, cmdErr)
	return out, cmdErr
}

func (in *Interpreter) record(cmd string, err error) {
	outcome := metrics.CommandOK
	switch {
	case errors.Is(err, ErrInvalidCommand):
		outcome = metrics.CommandInvalid
	case errors.Is(err, engine.ErrRejectedOperation):
		outcome = metrics.CommandRejected
	}
	if in.metrics != nil {
		in.metrics.RecordCommand(outcome)
	}
	if err != nil {
		in.logger.Debug("command refused", "command", cmd, "error", err)
	}
}

func invalid(line string) ([]string, error) {
	return []string{line}, fmt.Errorf("%w: %s", ErrInvalidCommand, line)
}

// dispatch runs on the engine goroutine.
func (in *Interpreter) dispatch(e *engine.Engine, cmd string) ([]string, error) {
	lower := strings.ToLower(cmd)
	fields := strings.Fields(lower)

	switch {
	case lower == "help":
		return []string{helpText}, nil

	case lower == "status":
		r := e.Reactor()
		return []string{fmt.Sprintf("reactor: T=%dC P=%.2fMPa rad=%.2fmSv/h sg=%d stage=%d crisis=%.1f/10",
			int(math.Round(r.Temperature)), r.Pressure, r.Radiation, r.SafeguardCharges,
			int(r.MeltdownStage), r.CrisisIndex)}, nil

	case lower == "containment status":
		c := e.Containment()
		return []string{fmt.Sprintf("containment: alpha=%t betaLatched=%t gamma=%t secondary=%.1f%%",
			c.AlphaThermalLatch, c.BetaPressureLatch, c.GammaFieldLatch, c.SecondaryIntegrity)}, nil

	case fields[0] == "simulate":
		return in.simulate(e, fields)

	case lower == "overdrive":
		if err := e.ToggleOverdrive(); err != nil {
			return []string{fmt.Sprintf("overdrive: locked, meltdown stage %d in progress.", int(e.Reactor().MeltdownStage))}, err
		}
		state := "disabled"
		if e.Reactor().OverdriveEnabled {
			state = "enabled"
		}
		return []string{"overdrive: " + state + " (sim)."}, nil

	case fields[0] == "autofault":
		on, ok := onOff(fields, 1)
		if !ok || len(fields) != 2 {
			return invalid("autofault: use on|off")
		}
		e.SetAutoFaults(on)
		return []string{"autofault: " + fields[1]}, nil

	case fields[0] == "latch":
		if len(fields) != 3 {
			return invalid("latch: use latch <alpha|beta|gamma> <on|off>")
		}
		l, ok := reactor.ParseLatch(fields[1])
		on, onOK := onOff(fields, 2)
		if !ok || !onOK {
			return invalid("latch: use latch <alpha|beta|gamma> <on|off>")
		}
		e.SetLatch(l, on)
		return []string{fmt.Sprintf("latch %s: %s", l, fields[2])}, nil

	case fields[0] == "audio":
		if len(fields) < 2 || fields[1] != "test" {
			return invalid(unknownText)
		}
		id := argTail(cmd, 2)
		if id == "" {
			id = "test"
		}
		e.Bus().Emit(events.AudioPlayPayload{ID: id})
		return []string{fmt.Sprintf("audio test: playing id=%s (sim tone).", id)}, nil

	case fields[0] == "theme":
		if len(fields) != 2 {
			return invalid("theme: use green|amber|redline|blackchamber|night")
		}
		n, ok := theme.Parse(fields[1])
		if !ok {
			return invalid("theme: use green|amber|redline|blackchamber|night")
		}
		e.Bus().Emit(events.ThemeSetPayload{Theme: string(n)})
		return []string{"theme set: " + string(n)}, nil

	case fields[0] == "net":
		return in.net(e, cmd, fields)

	case lower == "plugins":
		return in.listPlugins(), nil
	}

	return invalid(unknownText)
}

func (in *Interpreter) simulate(e *engine.Engine, fields []string) ([]string, error) {
	const usage = "simulate: expected one of sensor|pump|pressure|ghost"
	if len(fields) != 2 {
		return invalid(usage)
	}
	kind, ok := reactor.ParseFaultKind(fields[1])
	if !ok {
		return invalid(usage)
	}
	if err := e.InjectFault(kind); err != nil {
		return []string{usage}, fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}
	return []string{fmt.Sprintf("simulate: fault '%s' injected (sim).", kind)}, nil
}

func (in *Interpreter) net(e *engine.Engine, cmd string, fields []string) ([]string, error) {
	if len(fields) < 2 {
		return invalid(unknownText)
	}
	switch fields[1] {
	case "status":
		return []string{e.NetStatus()}, nil
	case "scan":
		ids := e.NetScan()
		list := strings.Join(ids, ", ")
		if list == "" {
			list = "no nodes online"
		}
		return []string{"net scan: " + list}, nil
	case "trace":
		node := argTail(cmd, 2)
		if node == "" {
			return invalid("net trace: missing node id.")
		}
		return []string{e.NetTrace(node)}, nil
	case "throttle":
		if len(fields) != 3 {
			return invalid("net throttle: expected integer 0–2.")
		}
		n, err := strconv.Atoi(fields[2])
		if err != nil {
			return invalid("net throttle: expected integer 0–2.")
		}
		return []string{e.NetThrottle(n)}, nil
	}
	return invalid(unknownText)
}

func (in *Interpreter) listPlugins() []string {
	if in.plugins == nil {
		return []string{"plugins: none loaded"}
	}
	ps := in.plugins.Plugins()
	if len(ps) == 0 {
		return []string{"plugins: none loaded"}
	}
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, fmt.Sprintf("plugin %s: %s v%s", p.ID, p.Name, p.Version))
	}
	return out
}

func onOff(fields []string, i int) (bool, bool) {
	if i >= len(fields) {
		return false, false
	}
	switch fields[i] {
	case "on":
		return true, true
	case "off":
		return false, true
	}
	return false, false
}

// argTail joins the words of cmd from index i on, keeping the operator's casing.
func argTail(cmd string, i int) string {
	words := strings.Fields(cmd)
	if i >= len(words) {
		return ""
	}
	return strings.Join(words[i:], " ")
}
