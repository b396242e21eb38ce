package engine

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/MRamiBalles/ChernOS/internal/domain/network"
	"github.com/MRamiBalles/ChernOS/internal/domain/reactor"
	"github.com/MRamiBalles/ChernOS/internal/domain/rules"
	"github.com/MRamiBalles/ChernOS/internal/events"
	"github.com/MRamiBalles/ChernOS/internal/platform/logger"
	"github.com/MRamiBalles/ChernOS/internal/platform/metrics"
)

// Options configures a new Engine.
type Options struct {
	// Seed for the random source. Zero picks a time-based seed.
	Seed uint64
	// Rand overrides the random source entirely. Tests use this.
	Rand *rand.Rand

	AutoFaults    bool
	AutoFaultRate float64 // Faults per second; zero keeps the default

	NetworkMode network.Mode

	// Containment latches applied at start-up.
	AlphaLatch bool
	BetaLatch  bool
	GammaLatch bool
}

// Snapshot is a copy of the whole simulation state, safe to hand out.
type Snapshot struct {
	Reactor     reactor.State       `json:"reactor"`
	Containment reactor.Containment `json:"containment"`
	Network     network.State       `json:"network"`
	CrisisMode  string              `json:"crisis_mode"`
	AutoFaults  bool                `json:"auto_faults"`
	Frame       uint64              `json:"frame"`
}

// Engine is the central orchestrator that owns the simulation state and
// drives the sub-systems once per frame.
type Engine struct {
	bus     *events.Bus
	logger  *logger.Logger
	metrics *metrics.Collector
	rng     *rand.Rand

	// State
	reactor     *reactor.State
	containment *reactor.Containment
	net         *network.State
	frame       uint64

	// Sub-systems
	reactorSystem     *ReactorSystem
	containmentSystem *ContainmentSystem
	networkSystem     *NetworkSystem
	faultInjector     *FaultInjector
}

// NewEngine initializes the simulation at its start-up values.
// metrics may be nil.
func NewEngine(bus *events.Bus, log *logger.Logger, m *metrics.Collector, opts Options) *Engine {
	if log == nil {
		log = logger.NewNop()
	}
	log = log.Named("engine")

	rng := opts.Rand
	if rng == nil {
		seed := opts.Seed
		if seed == 0 {
			seed = uint64(time.Now().UnixNano())
		}
		rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}

	r := reactor.NewState()
	c := reactor.NewContainment()
	c.AlphaThermalLatch = opts.AlphaLatch
	c.BetaPressureLatch = opts.BetaLatch
	c.GammaFieldLatch = opts.GammaLatch

	net := network.NewState()
	if opts.NetworkMode != "" {
		net.Mode = opts.NetworkMode
	}

	e := &Engine{
		bus:         bus,
		logger:      log,
		metrics:     m,
		rng:         rng,
		reactor:     r,
		containment: c,
		net:         net,

		reactorSystem:     NewReactorSystem(bus, log, m, rng, r, c),
		containmentSystem: NewContainmentSystem(bus, log, rng, r, c),
		networkSystem:     NewNetworkSystem(bus, log, rng, net),
		faultInjector:     NewFaultInjector(bus, log, m, rng, r),
	}

	e.faultInjector.SetAutonomous(opts.AutoFaults)
	e.faultInjector.SetRate(opts.AutoFaultRate)

	return e
}

// Tick advances the simulation by dt seconds. Non-finite or negative values
// are treated as a zero-length frame.
func (e *Engine) Tick(dt float64) {
	if math.IsNaN(dt) || math.IsInf(dt, 0) || dt < 0 {
		dt = 0
	}
	e.frame++

	e.reactorSystem.OnTick(dt)
	e.containmentSystem.OnTick(dt)
	e.networkSystem.OnTick(dt)
	e.faultInjector.OnTick(dt)
}

// Announce logs the start-up banner on the bus.
func (e *Engine) Announce(frameRate int) {
	e.bus.Logf("Core simulation engine (ChernOS 2.0) started @ ~%dHz.", frameRate)
	e.logger.Info("Core simulation engine started", "frame_rate", frameRate)
}

// Snapshot returns a copy of the current state.
func (e *Engine) Snapshot() Snapshot {
	return Snapshot{
		Reactor:     *e.reactor,
		Containment: *e.containment,
		Network:     e.net.Clone(),
		CrisisMode:  rules.CrisisMode(e.reactor.CrisisIndex),
		AutoFaults:  e.faultInjector.Autonomous(),
		Frame:       e.frame,
	}
}

// Reactor returns a copy of the reactor state.
func (e *Engine) Reactor() reactor.State {
	return *e.reactor
}

// Containment returns a copy of the containment state.
func (e *Engine) Containment() reactor.Containment {
	return *e.containment
}

// Network returns a copy of the network state.
func (e *Engine) Network() network.State {
	return e.net.Clone()
}

// ToggleOverdrive flips overdrive, or returns ErrRejectedOperation mid-meltdown.
func (e *Engine) ToggleOverdrive() error {
	return e.reactorSystem.ToggleOverdrive()
}

// InjectFault applies an operator fault from the catalog.
func (e *Engine) InjectFault(kind reactor.FaultKind) error {
	return e.faultInjector.Inject(kind, SourceOperator)
}

// SetAutoFaults toggles autonomous fault injection.
func (e *Engine) SetAutoFaults(on bool) {
	e.faultInjector.SetAutonomous(on)
	state := "disabled"
	if on {
		state = "enabled"
	}
	e.bus.Logf("Autonomous fault injection %s (sim).", state)
}

// SetLatch switches one containment latch.
func (e *Engine) SetLatch(l reactor.Latch, on bool) {
	e.containmentSystem.SetLatch(l, on)
}

// NetThrottle sets the network congestion level and returns the diagnostic line.
func (e *Engine) NetThrottle(level int) string {
	return e.networkSystem.Throttle(level)
}

// NetTrace traces a route to the named node.
func (e *Engine) NetTrace(id string) string {
	return e.networkSystem.Trace(id)
}

// NetScan lists the active network nodes.
func (e *Engine) NetScan() []string {
	return e.networkSystem.Scan()
}

// NetStatus summarizes the network.
func (e *Engine) NetStatus() string {
	return e.networkSystem.Status()
}

// Bus exposes the event bus for display subscribers.
func (e *Engine) Bus() *events.Bus {
	return e.bus
}
