package engine

import (
	"math"
	"math/rand/v2"

	"github.com/MRamiBalles/ChernOS/internal/domain/reactor"
	"github.com/MRamiBalles/ChernOS/internal/events"
	"github.com/MRamiBalles/ChernOS/internal/platform/logger"
)

// Containment tuning.
const (
	rechargeChancePerSecond = 0.001
	integrityDecayPerStage  = 0.02
	integrityHealPerSecond  = 0.005
)

// ContainmentSystem manages secondary integrity and the safeguard bank recharge.
type ContainmentSystem struct {
	bus         *events.Bus
	logger      *logger.Logger
	rng         *rand.Rand
	reactor     *reactor.State
	containment *reactor.Containment
}

// NewContainmentSystem creates the containment dynamics over engine-owned state.
func NewContainmentSystem(bus *events.Bus, log *logger.Logger, rng *rand.Rand,
	r *reactor.State, c *reactor.Containment) *ContainmentSystem {
	return &ContainmentSystem{
		bus:         bus,
		logger:      log,
		rng:         rng,
		reactor:     r,
		containment: c,
	}
}

// OnTick advances containment by dt seconds.
func (cs *ContainmentSystem) OnTick(dt float64) {
	r := cs.reactor
	c := cs.containment

	if r.SafeguardCharges < reactor.MaxSafeguardCharges && cs.rng.Float64() < rechargeChancePerSecond*dt {
		r.SafeguardCharges++
		cs.bus.LogLine("Safeguard bank recharged (sim).")
		cs.logger.Event("SAFEGUARD_RECHARGED", "ENGINE", "safeguard bank recharged")
	}

	if r.MeltdownStage > reactor.StageStable {
		c.SecondaryIntegrity -= integrityDecayPerStage * dt * float64(r.MeltdownStage)
	} else {
		c.SecondaryIntegrity += integrityHealPerSecond * dt
	}
	c.SecondaryIntegrity = math.Min(reactor.MaxIntegrity, math.Max(0, c.SecondaryIntegrity))

	cs.bus.Emit(events.ContainmentUpdatePayload{Containment: *c})
}

// SetLatch switches a containment latch. Latches are configuration inputs;
// no rule in the engine changes them on its own.
func (cs *ContainmentSystem) SetLatch(l reactor.Latch, on bool) {
	cs.containment.Set(l, on)
	state := "open"
	if on {
		state = "closed"
	}
	cs.bus.Logf("Containment latch %s %s (sim).", l, state)
	cs.bus.Emit(events.ContainmentUpdatePayload{Containment: *cs.containment})
}
