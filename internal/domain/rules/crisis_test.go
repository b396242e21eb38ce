package rules

import (
	"math"
	"testing"

	"github.com/MRamiBalles/ChernOS/internal/domain/reactor"
)

func TestCrisisIndexAtStartup(t *testing.T) {
	r := reactor.NewState()
	c := reactor.NewContainment()

	// 320C contributes nothing, 1.3 MPa nothing, 0.14*0.8 = 0.112 -> 0.1
	if ci := CrisisIndex(*r, *c); ci != 0.1 {
		t.Errorf("Expected crisis index 0.1 at startup, got %v", ci)
	}
}

func TestCrisisIndexClampsToTen(t *testing.T) {
	r := reactor.State{
		Temperature:   3000,
		Pressure:      12,
		Radiation:     5,
		MeltdownStage: reactor.StageAftermath,
	}
	c := reactor.Containment{SecondaryIntegrity: 0}

	if ci := CrisisIndex(r, c); ci != reactor.MaxCrisisIndex {
		t.Errorf("Expected crisis index clamped to 10, got %v", ci)
	}
}

func TestCrisisIndexWeights(t *testing.T) {
	// 1.0 + 1.5 + 0.8 + 0.7 + 0.5
	r := reactor.State{
		Temperature:   450,
		Pressure:      3.0,
		Radiation:     1.0,
		MeltdownStage: reactor.StageOverheat,
	}
	c := reactor.Containment{SecondaryIntegrity: 80}

	if ci := CrisisIndex(r, c); math.Abs(ci-4.5) > 1e-9 {
		t.Errorf("Expected crisis index 4.5, got %v", ci)
	}
}

func TestCrisisMode(t *testing.T) {
	cases := []struct {
		ci   float64
		want string
	}{
		{0, "SAFE"},
		{2.9, "SAFE"},
		{3, "ELEVATED"},
		{6, "CRITICAL"},
		{8.4, "CRITICAL"},
		{8.5, "REDLINE"},
		{10, "REDLINE"},
	}
	for _, tc := range cases {
		if got := CrisisMode(tc.ci); got != tc.want {
			t.Errorf("CrisisMode(%v) = %s, want %s", tc.ci, got, tc.want)
		}
	}
}

func TestDriveRatesOverdrive(t *testing.T) {
	r := reactor.NewState()
	if got := DriveRates(*r).Temperature; got != 0 {
		t.Errorf("Expected no temperature drive at nominal, got %v", got)
	}

	r.OverdriveEnabled = true
	if got := DriveRates(*r).Temperature; math.Abs(got-2.4) > 1e-9 {
		t.Errorf("Expected overdrive temperature drive 2.4, got %v", got)
	}
}

func TestDampAppliesOnlyClosedLatches(t *testing.T) {
	in := Rates{Temperature: 10, Pressure: 1, Radiation: 1}

	out := Damp(in, reactor.Containment{BetaPressureLatch: true})
	if out.Temperature != 10 || out.Pressure != 0.5 || out.Radiation != 1 {
		t.Errorf("Unexpected damping result %+v", out)
	}

	out = Damp(in, reactor.Containment{AlphaThermalLatch: true, GammaFieldLatch: true})
	if out.Temperature != 8 || math.Abs(out.Radiation-0.7) > 1e-9 {
		t.Errorf("Unexpected damping result %+v", out)
	}
}

func TestAftermathReversesEveryTerm(t *testing.T) {
	rates := StageRates(reactor.StageAftermath)
	if rates.Temperature >= 0 || rates.Pressure >= 0 || rates.Radiation >= 0 {
		t.Errorf("Expected all aftermath terms negative, got %+v", rates)
	}
}

func TestNextStageNeverSkips(t *testing.T) {
	// Everything past every threshold at once
	r := reactor.State{Temperature: 5000, Pressure: 20, Radiation: 9}
	c := reactor.Containment{SecondaryIntegrity: 0}

	for stage := reactor.StageStable; stage < reactor.StageAftermath; stage++ {
		r.MeltdownStage = stage
		if next := NextStage(r, c); next != stage+1 {
			t.Errorf("From %s expected %s, got %s", stage, stage+1, next)
		}
	}

	r.MeltdownStage = reactor.StageAftermath
	if next := NextStage(r, c); next != reactor.StageAftermath {
		t.Errorf("Aftermath must be terminal, got %s", next)
	}
}

func TestNextStageRequiresSpentSafeguards(t *testing.T) {
	r := reactor.State{Temperature: 1400, Pressure: 6, SafeguardCharges: 1}
	if next := NextStage(r, *reactor.NewContainment()); next != reactor.StageStable {
		t.Errorf("Expected no overheat with charges remaining, got %s", next)
	}
}

func TestIntegrateFloors(t *testing.T) {
	if got := Integrate(261, -100, 1, reactor.TemperatureFloor); got != reactor.TemperatureFloor {
		t.Errorf("Expected floor %v, got %v", reactor.TemperatureFloor, got)
	}
	if got := Integrate(1, 2, 0.5, 0); got != 2 {
		t.Errorf("Expected 2, got %v", got)
	}
}
