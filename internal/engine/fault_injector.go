package engine

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/MRamiBalles/ChernOS/internal/domain/reactor"
	"github.com/MRamiBalles/ChernOS/internal/events"
	"github.com/MRamiBalles/ChernOS/internal/platform/logger"
	"github.com/MRamiBalles/ChernOS/internal/platform/metrics"
)

// Fault sources reported on reactor:fault events.
const (
	SourceOperator = "operator"
	SourceAuto     = "auto"
)

// DefaultAutoFaultRate is the expected number of autonomous faults per second.
const DefaultAutoFaultRate = 0.02

// FaultInjector applies one-shot perturbations from the fault catalog.
// In autonomous mode it also rolls for a random fault every tick.
type FaultInjector struct {
	bus     *events.Bus
	logger  *logger.Logger
	metrics *metrics.Collector
	rng     *rand.Rand
	reactor *reactor.State

	autonomous bool
	rate       float64 // Faults per second while autonomous
}

// NewFaultInjector creates an injector acting on the engine-owned reactor state.
func NewFaultInjector(bus *events.Bus, log *logger.Logger, m *metrics.Collector, rng *rand.Rand, r *reactor.State) *FaultInjector {
	return &FaultInjector{
		bus:     bus,
		logger:  log,
		metrics: m,
		rng:     rng,
		reactor: r,
		rate:    DefaultAutoFaultRate,
	}
}

// Inject applies a fault. Unknown kinds leave the state untouched.
func (fi *FaultInjector) Inject(kind reactor.FaultKind, source string) error {
	r := fi.reactor
	switch kind {
	case reactor.FaultSensor:
		r.Temperature += 120 + fi.rng.Float64()*80
	case reactor.FaultPump:
		r.Pressure += 1.6
	case reactor.FaultPressure:
		r.Pressure += 2.5
		r.Radiation += 0.3
	case reactor.FaultGhost:
		r.Radiation += 1.2
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFault, string(kind))
	}

	label, effect, _ := strings.Cut(kind.Description(), ": ")
	fi.bus.Logf("FAULT (%s): %s (sim).", label, effect)
	fi.bus.Emit(events.FaultPayload{Kind: kind, Source: source})

	if fi.metrics != nil {
		fi.metrics.RecordFault()
	}
	fi.logger.Event("FAULT_INJECTED", source, string(kind))
	return nil
}

// RandomKind picks a fault uniformly from the catalog.
func (fi *FaultInjector) RandomKind() reactor.FaultKind {
	return reactor.FaultCatalog[fi.rng.IntN(len(reactor.FaultCatalog))]
}

// SetAutonomous toggles random fault injection on ticks.
func (fi *FaultInjector) SetAutonomous(on bool) {
	fi.autonomous = on
}

// Autonomous reports whether random injection is on.
func (fi *FaultInjector) Autonomous() bool {
	return fi.autonomous
}

// SetRate changes the autonomous fault rate. Non-positive rates are ignored.
func (fi *FaultInjector) SetRate(perSecond float64) {
	if perSecond > 0 {
		fi.rate = perSecond
	}
}

// OnTick injects a random fault with probability rate*dt while autonomous.
func (fi *FaultInjector) OnTick(dt float64) {
	if !fi.autonomous {
		return
	}
	if fi.rng.Float64() < fi.rate*dt {
		_ = fi.Inject(fi.RandomKind(), SourceAuto)
	}
}
