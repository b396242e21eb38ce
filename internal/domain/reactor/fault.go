package reactor

import "strings"

// FaultKind identifies a one-shot perturbation from the fault catalog.
type FaultKind string

const (
	FaultSensor   FaultKind = "sensor"   // Sensor misread: temperature spike
	FaultPump     FaultKind = "pump"     // Coolant pump irregularity: pressure surge
	FaultPressure FaultKind = "pressure" // Pressure spike with leakage
	FaultGhost    FaultKind = "ghost"    // Ghost radiation event
)

// FaultCatalog is the fixed, ordered set of injectable faults.
var FaultCatalog = []FaultKind{FaultSensor, FaultPump, FaultPressure, FaultGhost}

// ParseFaultKind resolves a catalog entry case-insensitively.
func ParseFaultKind(s string) (FaultKind, bool) {
	k := FaultKind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range FaultCatalog {
		if k == known {
			return k, true
		}
	}
	return "", false
}

// Description is the operator-facing text for a fault.
func (k FaultKind) Description() string {
	switch k {
	case FaultSensor:
		return "sensor misread: temp spike visualized"
	case FaultPump:
		return "coolant pump irregularity: pressure surge"
	case FaultPressure:
		return "pressure spike: coupling strain + leakage"
	case FaultGhost:
		return "ghost radiation event: anomalous flux"
	}
	return "unknown fault"
}
