package engine

import (
	"fmt"
	"math/rand/v2"

	"github.com/MRamiBalles/ChernOS/internal/domain/reactor"
	"github.com/MRamiBalles/ChernOS/internal/domain/rules"
	"github.com/MRamiBalles/ChernOS/internal/events"
	"github.com/MRamiBalles/ChernOS/internal/platform/logger"
	"github.com/MRamiBalles/ChernOS/internal/platform/metrics"
)

// stageLogLines are the operator log texts for entering each meltdown stage.
var stageLogLines = map[reactor.MeltdownStage]string{
	reactor.StageOverheat:            "overheat initiated",
	reactor.StagePressureRunaway:     "pressure runaway",
	reactor.StageContainmentBreach:   "containment breach (visual)",
	reactor.StageCoreDestabilization: "core destabilization",
	reactor.StageAftermath:           "reactor collapse aftermath mode",
}

// ReactorSystem integrates the core readings and drives the meltdown stage machine.
type ReactorSystem struct {
	bus         *events.Bus
	logger      *logger.Logger
	metrics     *metrics.Collector
	rng         *rand.Rand
	reactor     *reactor.State
	containment *reactor.Containment
}

// NewReactorSystem creates the reactor dynamics over engine-owned state.
func NewReactorSystem(bus *events.Bus, log *logger.Logger, m *metrics.Collector, rng *rand.Rand,
	r *reactor.State, c *reactor.Containment) *ReactorSystem {
	return &ReactorSystem{
		bus:         bus,
		logger:      log,
		metrics:     m,
		rng:         rng,
		reactor:     r,
		containment: c,
	}
}

// OnTick advances the reactor by dt seconds.
func (rs *ReactorSystem) OnTick(dt float64) {
	r := rs.reactor

	rates := rules.Rates{
		Temperature: (rs.rng.Float64() - 0.5) * 3,
		Pressure:    (rs.rng.Float64() - 0.5) * 0.03,
		Radiation:   (rs.rng.Float64() - 0.5) * 0.02,
	}
	rates = rates.Add(rules.DriveRates(*r))
	rates = rules.Damp(rates, *rs.containment)

	// Terms of the stage the tick started in; a transition takes effect next tick.
	rates = rates.Add(rules.StageRates(r.MeltdownStage))

	if r.MeltdownStage == reactor.StageStable {
		rs.maybeInsertSafeguard()
	}
	if next := rules.NextStage(*r, *rs.containment); next != r.MeltdownStage {
		rs.transition(next)
	}

	r.Temperature = rules.Integrate(r.Temperature, rates.Temperature, dt, reactor.TemperatureFloor)
	r.Pressure = rules.Integrate(r.Pressure, rates.Pressure, dt, reactor.PressureFloor)
	r.Radiation = rules.Integrate(r.Radiation, rates.Radiation, dt, reactor.RadiationFloor)
	r.CrisisIndex = rules.CrisisIndex(*r, *rs.containment)

	rs.bus.Emit(events.ReactorUpdatePayload{State: *r, CrisisMode: rules.CrisisMode(r.CrisisIndex)})
}

// maybeInsertSafeguard spends one safeguard charge once the core runs too hot.
func (rs *ReactorSystem) maybeInsertSafeguard() {
	r := rs.reactor
	if r.Temperature <= rules.SafeguardTriggerTemp || r.SafeguardCharges <= 0 {
		return
	}

	r.SafeguardCharges--
	r.Temperature -= rules.SafeguardTempDrop
	r.Pressure -= rules.SafeguardPressDrop
	r.Radiation -= rules.SafeguardRadDrop

	if rs.metrics != nil {
		rs.metrics.RecordSafeguard()
	}
	rs.bus.LogLine("AUTO-SG: staged insertion + coolant surge (sim).")
	rs.bus.Emit(events.SafeguardInsertedPayload{ChargesLeft: r.SafeguardCharges, Temperature: r.Temperature})
	rs.logger.Event("SAFEGUARD_INSERTED", "ENGINE", fmt.Sprintf("charges left: %d", r.SafeguardCharges))
}

func (rs *ReactorSystem) transition(next reactor.MeltdownStage) {
	prev := rs.reactor.MeltdownStage
	rs.reactor.MeltdownStage = next

	if rs.metrics != nil {
		rs.metrics.RecordStageTransition()
	}
	rs.bus.Logf("MELTDOWN STAGE %d: %s (sim).", int(next), stageLogLines[next])
	rs.bus.Emit(events.ReactorStagePayload{From: prev, To: next})
	rs.logger.Event("MELTDOWN_STAGE", "ENGINE", fmt.Sprintf("%s -> %s", prev, next))
}

// ToggleOverdrive flips the overdrive flag. Once a meltdown chain has started
// the flag is locked and the request is rejected.
func (rs *ReactorSystem) ToggleOverdrive() error {
	r := rs.reactor
	if r.MeltdownStage > reactor.StageStable {
		rs.bus.LogLine("Overdrive locked: meltdown chain already in progress (sim).")
		rs.bus.Emit(events.OperationRejectedPayload{
			Operation: "overdrive",
			Reason:    "meltdown chain already in progress",
		})
		return fmt.Errorf("overdrive at stage %d: %w", int(r.MeltdownStage), ErrRejectedOperation)
	}

	r.OverdriveEnabled = !r.OverdriveEnabled
	state := "disabled"
	if r.OverdriveEnabled {
		state = "enabled"
	}
	rs.bus.Logf("Overdrive %s (sim exaggeration).", state)
	return nil
}
