// Package reactor defines the core state of the simulated reactor and its containment.
// This package is PURE and must NOT import any infrastructure packages (network, events, platform).
package reactor

import "strings"

// MeltdownStage is the discrete escalation level of the reactor.
type MeltdownStage int

const (
	StageStable              MeltdownStage = 0
	StageOverheat            MeltdownStage = 1
	StagePressureRunaway     MeltdownStage = 2
	StageContainmentBreach   MeltdownStage = 3
	StageCoreDestabilization MeltdownStage = 4
	StageAftermath           MeltdownStage = 5 // Terminal
)

func (s MeltdownStage) String() string {
	switch s {
	case StageStable:
		return "STABLE"
	case StageOverheat:
		return "OVERHEAT"
	case StagePressureRunaway:
		return "PRESSURE_RUNAWAY"
	case StageContainmentBreach:
		return "CONTAINMENT_BREACH"
	case StageCoreDestabilization:
		return "CORE_DESTABILIZATION"
	case StageAftermath:
		return "AFTERMATH"
	}
	return "UNKNOWN"
}

// Terminal reports whether no transition leaves this stage.
func (s MeltdownStage) Terminal() bool {
	return s >= StageAftermath
}

// Physical floors applied at integration time.
const (
	TemperatureFloor = 260.0
	PressureFloor    = 0.9
	RadiationFloor   = 0.05

	MaxSafeguardCharges = 3
	MaxCrisisIndex      = 10.0
	MaxIntegrity        = 100.0
)

// State is the mutable reactor core state. Owned by the engine.
type State struct {
	Temperature      float64       `json:"temperature"`
	Pressure         float64       `json:"pressure"`
	Radiation        float64       `json:"radiation"`
	SafeguardCharges int           `json:"safeguard_charges"`
	MeltdownStage    MeltdownStage `json:"meltdown_stage"`
	CrisisIndex      float64       `json:"crisis_index"` // Derived every tick, 0-10
	OverdriveEnabled bool          `json:"overdrive_enabled"`
}

// NewState returns the reactor at its fixed start-up values.
func NewState() *State {
	return &State{
		Temperature:      320,
		Pressure:         1.3,
		Radiation:        0.14,
		SafeguardCharges: MaxSafeguardCharges,
		MeltdownStage:    StageStable,
		CrisisIndex:      0.2,
		OverdriveEnabled: false,
	}
}

// Containment holds the containment latches and the secondary integrity.
// The latches are control gains: nothing in the engine sets them automatically.
type Containment struct {
	AlphaThermalLatch  bool    `json:"alpha_thermal_latch"`
	BetaPressureLatch  bool    `json:"beta_pressure_latch"`
	GammaFieldLatch    bool    `json:"gamma_field_latch"`
	SecondaryIntegrity float64 `json:"secondary_integrity"` // 0-100
}

// NewContainment returns containment at full integrity with all latches open.
func NewContainment() *Containment {
	return &Containment{SecondaryIntegrity: MaxIntegrity}
}

// Latch names one of the three containment control gains.
type Latch string

const (
	LatchAlpha Latch = "alpha" // Thermal buffer
	LatchBeta  Latch = "beta"  // Pressure latch
	LatchGamma Latch = "gamma" // Gamma field
)

// ParseLatch resolves a latch name case-insensitively.
func ParseLatch(name string) (Latch, bool) {
	switch Latch(strings.ToLower(strings.TrimSpace(name))) {
	case LatchAlpha:
		return LatchAlpha, true
	case LatchBeta:
		return LatchBeta, true
	case LatchGamma:
		return LatchGamma, true
	}
	return "", false
}

// Set switches the named latch.
func (c *Containment) Set(l Latch, on bool) {
	switch l {
	case LatchAlpha:
		c.AlphaThermalLatch = on
	case LatchBeta:
		c.BetaPressureLatch = on
	case LatchGamma:
		c.GammaFieldLatch = on
	}
}
