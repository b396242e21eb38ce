package drill

import (
	"fmt"
	"strings"

	"github.com/MRamiBalles/ChernOS/internal/domain/reactor"
	"github.com/MRamiBalles/ChernOS/internal/engine"
)

// Catalog returns the built-in drills in run order.
func Catalog() []Drill {
	return []Drill{
		{
			Name:        "cold-start",
			Description: "Idle reactor stays stable with all safeguards charged",
			Frames:      600,
			Checks: []Check{
				stageIs(reactor.StageStable),
				chargesAtLeast(reactor.MaxSafeguardCharges),
				{Name: "temperature near start-up", Fn: func(o Outcome) error {
					if t := o.Final.Reactor.Temperature; t < 250 || t > 400 {
						return fmt.Errorf("temperature drifted to %.1f", t)
					}
					return nil
				}},
			},
		},
		{
			Name:        "safeguard-insertion",
			Description: "Sensor faults push the core past the trigger and a safeguard fires",
			Frames:      60,
			Steps:       Every(0, 1, "simulate sensor", "simulate sensor", "simulate sensor", "simulate sensor",
				"simulate sensor", "simulate sensor", "simulate sensor", "simulate sensor"),
			Checks: []Check{
				logContains("AUTO-SG"),
				stageIs(reactor.StageStable),
				{Name: "charges spent", Fn: func(o Outcome) error {
					if o.Final.Reactor.SafeguardCharges >= reactor.MaxSafeguardCharges {
						return fmt.Errorf("no safeguard charge spent")
					}
					return nil
				}},
			},
		},
		{
			Name:        "meltdown-chain",
			Description: "Repeated faults start a meltdown and lock overdrive",
			Frames:      120,
			Steps: append(Every(0, 30, "simulate sensor", "simulate pump"),
				Step{Frame: 100, Command: "overdrive"}),
			Checks: []Check{
				logContains("MELTDOWN STAGE 1"),
				logContains("Overdrive locked"),
				{Name: "meltdown in progress", Fn: func(o Outcome) error {
					if o.Final.Reactor.MeltdownStage == reactor.StageStable {
						return fmt.Errorf("reactor still stable")
					}
					return nil
				}},
				{Name: "overdrive rejected", Fn: func(o Outcome) error {
					if o.Rejected != 1 || o.Final.Reactor.OverdriveEnabled {
						return fmt.Errorf("rejected=%d overdrive=%t", o.Rejected, o.Final.Reactor.OverdriveEnabled)
					}
					return nil
				}},
			},
		},
		{
			Name:        "latch-damping",
			Description: "All containment latches engage on command",
			Frames:      30,
			Steps: []Step{
				{Frame: 0, Command: "latch alpha on"},
				{Frame: 0, Command: "latch beta on"},
				{Frame: 0, Command: "latch gamma on"},
				{Frame: 10, Command: "containment status"},
			},
			Checks: []Check{
				outputContains("containment: alpha=true betaLatched=true gamma=true"),
				{Name: "latches engaged", Fn: func(o Outcome) error {
					c := o.Final.Containment
					if !c.AlphaThermalLatch || !c.BetaPressureLatch || !c.GammaFieldLatch {
						return fmt.Errorf("latches %+v", c)
					}
					return nil
				}},
			},
		},
		{
			Name:        "net-congestion",
			Description: "Throttling congests the links and trace reaches a node",
			Frames:      120,
			Steps: []Step{
				{Frame: 0, Command: "net throttle 2"},
				{Frame: 60, Command: "net trace flow-a"},
				{Frame: 61, Command: "net status"},
			},
			Checks: []Check{
				outputContains("net trace FLOW-A:"),
				outputContains("throttle=2"),
				{Name: "throttle applied", Fn: func(o Outcome) error {
					if o.Final.Network.ThrottleLevel != 2 {
						return fmt.Errorf("throttle level %d", o.Final.Network.ThrottleLevel)
					}
					return nil
				}},
			},
		},
		{
			Name:        "autonomous-faults",
			Description: "Autonomous mode injects faults without operator input",
			Frames:      600,
			Options:     engine.Options{AutoFaults: true, AutoFaultRate: 5},
			Checks: []Check{
				logContains("FAULT ("),
				{Name: "auto flag", Fn: func(o Outcome) error {
					if !o.Final.AutoFaults {
						return fmt.Errorf("autonomous faults off")
					}
					return nil
				}},
			},
		},
	}
}

// Find looks a drill up by name, case-insensitively.
func Find(name string) (Drill, bool) {
	for _, d := range Catalog() {
		if strings.EqualFold(d.Name, name) {
			return d, true
		}
	}
	return Drill{}, false
}

func stageIs(want reactor.MeltdownStage) Check {
	return Check{Name: "stage " + want.String(), Fn: func(o Outcome) error {
		if got := o.Final.Reactor.MeltdownStage; got != want {
			return fmt.Errorf("stage is %s", got)
		}
		return nil
	}}
}

func chargesAtLeast(n int) Check {
	return Check{Name: "safeguard charges", Fn: func(o Outcome) error {
		if got := o.Final.Reactor.SafeguardCharges; got < n {
			return fmt.Errorf("%d charges left, want at least %d", got, n)
		}
		return nil
	}}
}

func logContains(s string) Check {
	return Check{Name: fmt.Sprintf("log has %q", s), Fn: func(o Outcome) error {
		if !o.LogContains(s) {
			return fmt.Errorf("no log line contains %q", s)
		}
		return nil
	}}
}

func outputContains(s string) Check {
	return Check{Name: fmt.Sprintf("output has %q", s), Fn: func(o Outcome) error {
		if !o.OutputContains(s) {
			return fmt.Errorf("no output line contains %q", s)
		}
		return nil
	}}
}
