// Package rules contains the pure calculation logic for the reactor mechanics.
// This package is PURE and must NOT import any infrastructure packages.
package rules

import (
	"math"

	"github.com/MRamiBalles/ChernOS/internal/domain/reactor"
)

// CrisisIndex summarizes overall risk as a 0-10 display scalar.
// It is a pure function of the reactor and containment state.
func CrisisIndex(r reactor.State, c reactor.Containment) float64 {
	ci := 0.0
	ci += math.Max(0, (r.Temperature-350)/100)
	ci += math.Max(0, (r.Pressure-2.0)*1.5)
	ci += r.Radiation * 0.8
	ci += float64(r.MeltdownStage) * 0.7
	ci += (reactor.MaxIntegrity - c.SecondaryIntegrity) / 40

	// Rounded to one decimal, as displayed
	ci = math.Round(ci*10) / 10
	return math.Min(reactor.MaxCrisisIndex, math.Max(0, ci))
}

// CrisisMode buckets the crisis index into the operator-facing mode label.
func CrisisMode(ci float64) string {
	switch {
	case ci < 3:
		return "SAFE"
	case ci < 6:
		return "ELEVATED"
	case ci < 8.5:
		return "CRITICAL"
	}
	return "REDLINE"
}

// Rates is a set of per-second rates of change for the three core readings.
type Rates struct {
	Temperature float64
	Pressure    float64
	Radiation   float64
}

// Add sums two rate sets.
func (r Rates) Add(o Rates) Rates {
	return Rates{
		Temperature: r.Temperature + o.Temperature,
		Pressure:    r.Pressure + o.Pressure,
		Radiation:   r.Radiation + o.Radiation,
	}
}

// Overdrive drive coefficients.
const (
	NominalDrive   = 0.9
	OverdriveDrive = 1.2
)

// DriveRates computes the deterministic drive terms from the current state.
func DriveRates(r reactor.State) Rates {
	drive := NominalDrive
	if r.OverdriveEnabled {
		drive = OverdriveDrive
	}
	return Rates{
		Temperature: (drive - NominalDrive) * 8,
		Pressure:    (r.Temperature - 300) / 2600,
		Radiation:   math.Max(0, r.Temperature-450) / 7000,
	}
}

// Damp applies the containment latch gains to a rate set.
func Damp(rates Rates, c reactor.Containment) Rates {
	if c.AlphaThermalLatch {
		rates.Temperature *= 0.8
	}
	if c.BetaPressureLatch {
		rates.Pressure *= 0.5
	}
	if c.GammaFieldLatch {
		rates.Radiation *= 0.7
	}
	return rates
}

// StageRates are the fixed additive terms each meltdown stage contributes.
// Stages 1-4 escalate; the aftermath reverses every term.
func StageRates(stage reactor.MeltdownStage) Rates {
	switch stage {
	case reactor.StageOverheat:
		return Rates{Temperature: 12, Pressure: 0.08, Radiation: 0.1}
	case reactor.StagePressureRunaway:
		return Rates{Temperature: 18, Pressure: 0.03, Radiation: 0.2}
	case reactor.StageContainmentBreach:
		return Rates{Temperature: 22, Pressure: -0.04, Radiation: 0.35}
	case reactor.StageCoreDestabilization:
		return Rates{Temperature: 10, Pressure: -0.1, Radiation: 0.2}
	case reactor.StageAftermath:
		return Rates{Temperature: -14, Pressure: -0.15, Radiation: -0.25}
	}
	return Rates{}
}

// Safeguard insertion thresholds and effects.
const (
	SafeguardTriggerTemp = 1250.0
	SafeguardTempDrop    = 280.0
	SafeguardPressDrop   = 0.9
	SafeguardRadDrop     = 0.2
)

// NextStage evaluates the transition guard for the current stage and returns
// the stage the reactor should move to. It never skips a stage.
func NextStage(r reactor.State, c reactor.Containment) reactor.MeltdownStage {
	switch r.MeltdownStage {
	case reactor.StageStable:
		if r.Temperature > 1350 && r.Pressure > 5.0 && r.SafeguardCharges == 0 {
			return reactor.StageOverheat
		}
	case reactor.StageOverheat:
		if r.Temperature > 1450 {
			return reactor.StagePressureRunaway
		}
	case reactor.StagePressureRunaway:
		if r.Radiation > 1.7 {
			return reactor.StageContainmentBreach
		}
	case reactor.StageContainmentBreach:
		if c.SecondaryIntegrity < 50 {
			return reactor.StageCoreDestabilization
		}
	case reactor.StageCoreDestabilization:
		if c.SecondaryIntegrity < 20 {
			return reactor.StageAftermath
		}
	}
	return r.MeltdownStage
}

// Integrate advances a value by rate*dt, never dropping below floor.
func Integrate(value, rate, dt, floor float64) float64 {
	return math.Max(floor, value+rate*dt)
}
