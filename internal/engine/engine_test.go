package engine

import (
	"errors"
	"math"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/MRamiBalles/ChernOS/internal/domain/network"
	"github.com/MRamiBalles/ChernOS/internal/domain/reactor"
	"github.com/MRamiBalles/ChernOS/internal/events"
	"github.com/MRamiBalles/ChernOS/internal/platform/logger"
	"github.com/MRamiBalles/ChernOS/internal/platform/metrics"
)

const frame = 1.0 / 60

type recorder struct {
	events []events.Event
}

func (r *recorder) handle(e events.Event) error {
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) count(t events.EventType) int {
	n := 0
	for _, e := range r.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

func (r *recorder) lines() []string {
	var out []string
	for _, e := range r.events {
		if p, ok := e.Payload.(events.LogAppendPayload); ok {
			out = append(out, p.Line)
		}
	}
	return out
}

func newTestEngine(t *testing.T, seed uint64) (*Engine, *recorder) {
	t.Helper()
	bus := events.NewBus(logger.NewNop(), nil)
	rec := &recorder{}
	bus.Subscribe(rec.handle)
	e := NewEngine(bus, logger.NewNop(), metrics.New(), Options{
		Rand: rand.New(rand.NewPCG(seed, seed+1)),
	})
	return e, rec
}

func TestStartupState(t *testing.T) {
	e, _ := newTestEngine(t, 1)
	r := e.Reactor()

	if r.Temperature != 320 || r.Pressure != 1.3 || r.Radiation != 0.14 {
		t.Errorf("Unexpected start-up readings %+v", r)
	}
	if r.SafeguardCharges != 3 || r.MeltdownStage != reactor.StageStable || r.CrisisIndex != 0.2 {
		t.Errorf("Unexpected start-up state %+v", r)
	}
	if e.Containment().SecondaryIntegrity != 100 {
		t.Errorf("Expected full integrity, got %v", e.Containment().SecondaryIntegrity)
	}
}

func TestTickPublishesEveryUpdate(t *testing.T) {
	e, rec := newTestEngine(t, 2)
	e.Tick(frame)

	for _, typ := range []events.EventType{
		events.EventTypeReactorUpdate,
		events.EventTypeContainmentUpdate,
		events.EventTypeNetUpdate,
	} {
		if rec.count(typ) != 1 {
			t.Errorf("Expected one %s event, got %d", typ, rec.count(typ))
		}
	}
}

func TestInvariantsHoldUnderStress(t *testing.T) {
	e, _ := newTestEngine(t, 3)
	e.SetAutoFaults(true)
	e.faultInjector.SetRate(0.5)
	_ = e.ToggleOverdrive()

	prev := e.Reactor().MeltdownStage
	for i := 0; i < 40000; i++ {
		if i%50 == 0 {
			_ = e.InjectFault(reactor.FaultSensor)
			_ = e.InjectFault(reactor.FaultPressure)
		}
		e.Tick(0.1)

		r := e.Reactor()
		c := e.Containment()
		if c.SecondaryIntegrity < 0 || c.SecondaryIntegrity > 100 {
			t.Fatalf("Tick %d: integrity out of range: %v", i, c.SecondaryIntegrity)
		}
		if r.CrisisIndex < 0 || r.CrisisIndex > 10 {
			t.Fatalf("Tick %d: crisis index out of range: %v", i, r.CrisisIndex)
		}
		if r.MeltdownStage < prev || r.MeltdownStage > prev+1 {
			t.Fatalf("Tick %d: stage jumped from %d to %d", i, prev, r.MeltdownStage)
		}
		if r.SafeguardCharges < 0 || r.SafeguardCharges > reactor.MaxSafeguardCharges {
			t.Fatalf("Tick %d: safeguard charges out of range: %d", i, r.SafeguardCharges)
		}
		prev = r.MeltdownStage
	}

	if prev == reactor.StageStable {
		t.Errorf("Expected the stress run to start a meltdown chain")
	}
}

func TestToggleOverdrive(t *testing.T) {
	e, rec := newTestEngine(t, 4)

	if err := e.ToggleOverdrive(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !e.Reactor().OverdriveEnabled {
		t.Error("Expected overdrive enabled")
	}
	lines := rec.lines()
	if len(lines) == 0 || !strings.HasSuffix(lines[len(lines)-1], "Overdrive enabled (sim exaggeration).") {
		t.Errorf("Unexpected log lines %v", lines)
	}
}

func TestOverdriveRejectedMidMeltdown(t *testing.T) {
	e, rec := newTestEngine(t, 5)
	e.reactor.MeltdownStage = reactor.StagePressureRunaway

	err := e.ToggleOverdrive()
	if !errors.Is(err, ErrRejectedOperation) {
		t.Fatalf("Expected ErrRejectedOperation, got %v", err)
	}
	if e.Reactor().OverdriveEnabled {
		t.Error("Overdrive must stay unchanged mid-meltdown")
	}
	if rec.count(events.EventTypeOperationRejected) != 1 {
		t.Errorf("Expected an operation:rejected event")
	}
}

func TestGhostFaultAddsExactRadiation(t *testing.T) {
	e, rec := newTestEngine(t, 6)
	before := e.Reactor().Radiation

	if err := e.InjectFault(reactor.FaultGhost); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if got := e.Reactor().Radiation - before; math.Abs(got-1.2) > 1e-12 {
		t.Errorf("Expected +1.2 radiation, got %+v", got)
	}
	if rec.count(events.EventTypeReactorFault) != 1 {
		t.Error("Expected a reactor:fault event")
	}
	lines := rec.lines()
	if !strings.HasSuffix(lines[len(lines)-1], "FAULT (ghost radiation event): anomalous flux (sim).") {
		t.Errorf("Unexpected log line %q", lines[len(lines)-1])
	}
}

func TestFaultCatalogEffects(t *testing.T) {
	e, _ := newTestEngine(t, 7)

	base := e.Reactor()
	_ = e.InjectFault(reactor.FaultPump)
	if got := e.Reactor().Pressure - base.Pressure; math.Abs(got-1.6) > 1e-9 {
		t.Errorf("Expected pump +1.6 pressure, got %v", got)
	}

	base = e.Reactor()
	_ = e.InjectFault(reactor.FaultPressure)
	after := e.Reactor()
	if math.Abs(after.Pressure-base.Pressure-2.5) > 1e-9 || math.Abs(after.Radiation-base.Radiation-0.3) > 1e-9 {
		t.Errorf("Unexpected pressure fault effect: %+v -> %+v", base, after)
	}

	base = e.Reactor()
	_ = e.InjectFault(reactor.FaultSensor)
	if d := e.Reactor().Temperature - base.Temperature; d < 120 || d > 200 {
		t.Errorf("Expected sensor spike in [120,200], got %v", d)
	}
}

func TestUnknownFaultLeavesStateUntouched(t *testing.T) {
	e, rec := newTestEngine(t, 8)
	before := e.Reactor()

	err := e.InjectFault("meteor")
	if !errors.Is(err, ErrUnknownFault) {
		t.Fatalf("Expected ErrUnknownFault, got %v", err)
	}
	if e.Reactor() != before {
		t.Error("State changed on unknown fault")
	}
	if len(rec.events) != 0 {
		t.Errorf("Expected no events, got %d", len(rec.events))
	}
}

func TestNetThrottleClamps(t *testing.T) {
	e, _ := newTestEngine(t, 9)

	msg := e.NetThrottle(3)
	if n := e.Network(); n.ThrottleLevel != 2 || n.Mode != network.ModeDegraded {
		t.Errorf("Expected level 2 degraded, got %d %s", n.ThrottleLevel, n.Mode)
	}
	if msg != "net throttle 2: heavy congestion, packet drops increased (sim)." {
		t.Errorf("Unexpected message %q", msg)
	}

	msg = e.NetThrottle(-1)
	if n := e.Network(); n.ThrottleLevel != 0 || n.Mode != network.ModeOnline {
		t.Errorf("Expected level 0 online, got %d %s", n.ThrottleLevel, n.Mode)
	}
	if msg != "net throttle 0: baseline path, mode=online (sim)." {
		t.Errorf("Unexpected message %q", msg)
	}

	if e.NetThrottle(1) != "net throttle 1: mild congestion, mode=degraded (sim)." {
		t.Error("Unexpected level 1 message")
	}
}

func TestSensorFaultsTriggerSingleSafeguard(t *testing.T) {
	e, rec := newTestEngine(t, 10)

	var before float64
	for i := 0; i < 100 && rec.count(events.EventTypeSafeguardInserted) == 0; i++ {
		if err := e.InjectFault(reactor.FaultSensor); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		before = e.Reactor().Temperature
		e.Tick(frame)
	}

	if n := rec.count(events.EventTypeSafeguardInserted); n != 1 {
		t.Fatalf("Expected exactly one safeguard insertion, got %d", n)
	}
	if rec.count(events.EventTypeReactorStage) != 0 {
		t.Error("No stage transition may happen before the insertion")
	}

	r := e.Reactor()
	if r.SafeguardCharges != 2 {
		t.Errorf("Expected 2 charges left, got %d", r.SafeguardCharges)
	}
	if r.MeltdownStage != reactor.StageStable {
		t.Errorf("Expected stage 0, got %d", r.MeltdownStage)
	}
	// One frame of drift on top of the 280 drop
	if d := before - r.Temperature; math.Abs(d-280) > 1 {
		t.Errorf("Expected temperature drop of ~280, got %v", d)
	}
}

func TestAftermathFollowsLowIntegrity(t *testing.T) {
	e, rec := newTestEngine(t, 11)
	e.reactor.MeltdownStage = reactor.StageCoreDestabilization
	e.reactor.Temperature = 1800
	e.reactor.SafeguardCharges = 0
	e.containment.SecondaryIntegrity = 15

	e.Tick(frame)
	if got := e.Reactor().MeltdownStage; got != reactor.StageAftermath {
		t.Fatalf("Expected aftermath, got %s", got)
	}
	if rec.count(events.EventTypeReactorStage) != 1 {
		t.Error("Expected one reactor:stage event")
	}

	prev := e.Reactor().Temperature
	for i := 0; i < 600; i++ {
		e.Tick(frame)
		cur := e.Reactor().Temperature
		if cur > prev {
			t.Fatalf("Tick %d: temperature rose in aftermath %v -> %v", i, prev, cur)
		}
		prev = cur
	}
	if e.Reactor().MeltdownStage != reactor.StageAftermath {
		t.Error("Aftermath must be terminal")
	}
}

func TestContainmentIntegrity(t *testing.T) {
	e, _ := newTestEngine(t, 12)

	e.containment.SecondaryIntegrity = 90
	e.containmentSystem.OnTick(10)
	if got := e.Containment().SecondaryIntegrity; math.Abs(got-90.05) > 1e-9 {
		t.Errorf("Expected heal to 90.05, got %v", got)
	}

	e.reactor.MeltdownStage = reactor.StagePressureRunaway
	e.containment.SecondaryIntegrity = 50
	e.containmentSystem.OnTick(10)
	if got := e.Containment().SecondaryIntegrity; math.Abs(got-49.6) > 1e-9 {
		t.Errorf("Expected decay to 49.6, got %v", got)
	}

	e.containment.SecondaryIntegrity = 0.1
	e.containmentSystem.OnTick(1000)
	if got := e.Containment().SecondaryIntegrity; got != 0 {
		t.Errorf("Expected clamp at 0, got %v", got)
	}
}

func TestSafeguardRecharge(t *testing.T) {
	e, rec := newTestEngine(t, 13)
	e.reactor.SafeguardCharges = 0

	// 0.001 * 1000 makes the roll certain
	e.containmentSystem.OnTick(1000)
	if got := e.Reactor().SafeguardCharges; got != 1 {
		t.Errorf("Expected one recharge, got %d", got)
	}
	lines := rec.lines()
	if len(lines) == 0 || !strings.HasSuffix(lines[0], "Safeguard bank recharged (sim).") {
		t.Errorf("Unexpected log lines %v", lines)
	}

	e.reactor.SafeguardCharges = reactor.MaxSafeguardCharges
	e.containmentSystem.OnTick(1000)
	if got := e.Reactor().SafeguardCharges; got != reactor.MaxSafeguardCharges {
		t.Errorf("Charges must not exceed %d, got %d", reactor.MaxSafeguardCharges, got)
	}
}

func TestLatchesDampDrives(t *testing.T) {
	e, _ := newTestEngine(t, 14)
	e.SetLatch(reactor.LatchBeta, true)

	if !e.Containment().BetaPressureLatch {
		t.Fatal("Expected beta latch closed")
	}
	if e.Containment().AlphaThermalLatch || e.Containment().GammaFieldLatch {
		t.Error("Only the beta latch should change")
	}

	e.SetLatch(reactor.LatchBeta, false)
	if e.Containment().BetaPressureLatch {
		t.Error("Expected beta latch open")
	}
}

func TestNetTrace(t *testing.T) {
	e, _ := newTestEngine(t, 15)

	msg := e.NetTrace("core-1")
	if !strings.HasPrefix(msg, "net trace CORE-1: hops=") || !strings.HasSuffix(msg, "latency=12.0ms, loss=0.10% (sim).") {
		t.Errorf("Unexpected trace %q", msg)
	}
	for i := 0; i < 50; i++ {
		msg := e.NetTrace("FLOW-A")
		hops := msg[strings.Index(msg, "hops=")+5 : strings.Index(msg, ",")]
		if hops < "3" || hops > "6" || len(hops) != 1 {
			t.Fatalf("Hops out of range in %q", msg)
		}
	}

	if got := e.NetTrace("reactor-9"); got != "net trace: node 'reactor-9' not found (sim)." {
		t.Errorf("Unexpected missing-node message %q", got)
	}
}

func TestNetScanAndStatus(t *testing.T) {
	e, rec := newTestEngine(t, 16)

	ids := e.NetScan()
	want := []string{"CORE-1", "FLOW-A", "SHIELD-X", "DIAG-NET", "OPS-TOWER"}
	if strings.Join(ids, ",") != strings.Join(want, ",") {
		t.Errorf("Expected %v, got %v", want, ids)
	}
	lines := rec.lines()
	if !strings.HasSuffix(lines[0], "net scan: CORE-1, FLOW-A, SHIELD-X, DIAG-NET, OPS-TOWER (sim).") {
		t.Errorf("Unexpected scan line %q", lines[0])
	}

	if got := e.NetStatus(); got != "net status: mode=online, throttle=0, avgLatency=15.0ms, avgLoss=0.22%" {
		t.Errorf("Unexpected status %q", got)
	}

	e.net.Nodes[0].Active = false
	if ids := e.NetScan(); len(ids) != 4 || ids[0] != "FLOW-A" {
		t.Errorf("Expected inactive node skipped, got %v", ids)
	}
}

func TestNetworkJitterBounds(t *testing.T) {
	e, _ := newTestEngine(t, 17)
	e.NetThrottle(2)

	for i := 0; i < 5000; i++ {
		e.networkSystem.OnTick(frame)
		for _, n := range e.Network().Nodes {
			if n.LatencyMs < network.MinLatencyMs || n.LossPercent < 0 {
				t.Fatalf("Node %s out of bounds: %+v", n.ID, n)
			}
		}
	}
}

func TestOfflineModePinsNodes(t *testing.T) {
	bus := events.NewBus(nil, nil)
	e := NewEngine(bus, nil, nil, Options{Seed: 18, NetworkMode: network.ModeOffline})
	e.Tick(frame)

	for _, n := range e.Network().Nodes {
		if n.LatencyMs != 0 || n.LossPercent != 100 {
			t.Errorf("Expected offline node pinned, got %+v", n)
		}
	}
}

func TestTickIgnoresInvalidDelta(t *testing.T) {
	e, _ := newTestEngine(t, 19)
	before := e.Reactor().Temperature

	e.Tick(math.NaN())
	e.Tick(-5)
	e.Tick(math.Inf(1))

	if got := e.Reactor().Temperature; got != before {
		t.Errorf("Expected no drift on invalid dt, got %v -> %v", before, got)
	}
	if e.Snapshot().Frame != 3 {
		t.Errorf("Expected frame counter 3, got %d", e.Snapshot().Frame)
	}
}

func TestAutonomousFaults(t *testing.T) {
	e, rec := newTestEngine(t, 20)
	e.faultInjector.SetRate(100)

	e.Tick(1)
	if rec.count(events.EventTypeReactorFault) != 0 {
		t.Fatal("No faults expected while autonomous mode is off")
	}

	e.SetAutoFaults(true)
	for i := 0; i < 10; i++ {
		e.Tick(1)
	}
	if got := rec.count(events.EventTypeReactorFault); got != 10 {
		t.Errorf("Expected 10 auto faults, got %d", got)
	}
	for _, ev := range rec.events {
		if p, ok := ev.Payload.(events.FaultPayload); ok && p.Source != SourceAuto {
			t.Errorf("Expected source %q, got %q", SourceAuto, p.Source)
		}
	}
	if !e.Snapshot().AutoFaults {
		t.Error("Snapshot should report autonomous mode")
	}
}

func TestSeededEnginesAreDeterministic(t *testing.T) {
	a := NewEngine(events.NewBus(nil, nil), nil, nil, Options{Seed: 42})
	b := NewEngine(events.NewBus(nil, nil), nil, nil, Options{Seed: 42})

	for i := 0; i < 500; i++ {
		a.Tick(frame)
		b.Tick(frame)
	}
	if a.Reactor() != b.Reactor() {
		t.Errorf("Expected identical runs, got %+v vs %+v", a.Reactor(), b.Reactor())
	}
}
