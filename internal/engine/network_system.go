package engine

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strings"

	"github.com/MRamiBalles/ChernOS/internal/domain/network"
	"github.com/MRamiBalles/ChernOS/internal/events"
	"github.com/MRamiBalles/ChernOS/internal/platform/logger"
)

// throttleMessages are the diagnostics returned by NetThrottle per level.
var throttleMessages = [...]string{
	"net throttle 0: baseline path, mode=online (sim).",
	"net throttle 1: mild congestion, mode=degraded (sim).",
	"net throttle 2: heavy congestion, packet drops increased (sim).",
}

// NetworkSystem simulates link quality between plant stations.
type NetworkSystem struct {
	bus    *events.Bus
	logger *logger.Logger
	rng    *rand.Rand
	net    *network.State
}

// NewNetworkSystem creates the network simulator over engine-owned state.
func NewNetworkSystem(bus *events.Bus, log *logger.Logger, rng *rand.Rand, net *network.State) *NetworkSystem {
	return &NetworkSystem{
		bus:    bus,
		logger: log,
		rng:    rng,
		net:    net,
	}
}

// baseJitter is the latency jitter amplitude in ms for the current conditions.
func (ns *NetworkSystem) baseJitter() float64 {
	if ns.net.Mode == network.ModeOffline {
		return 0
	}
	switch ns.net.ThrottleLevel {
	case 2:
		return 8
	case 1:
		return 4
	}
	return 2
}

// OnTick jitters every active node and publishes the network state.
func (ns *NetworkSystem) OnTick(dt float64) {
	net := ns.net
	jitter := ns.baseJitter()
	lossScale := 0.3 * float64(1+net.ThrottleLevel)

	for i := range net.Nodes {
		node := &net.Nodes[i]
		if !node.Active {
			continue
		}
		node.LatencyMs = math.Max(network.MinLatencyMs, node.LatencyMs+(ns.rng.Float64()-0.5)*jitter)
		node.LossPercent = math.Max(0, node.LossPercent+(ns.rng.Float64()-0.5)*lossScale)
	}

	if net.Mode == network.ModeOffline {
		for i := range net.Nodes {
			net.Nodes[i].LatencyMs = 0
			net.Nodes[i].LossPercent = 100
		}
	}

	ns.bus.Emit(events.NetUpdatePayload{State: net.Clone()})
}

// Throttle sets the congestion level, clamped to [0,2], and returns the diagnostic line.
func (ns *NetworkSystem) Throttle(level int) string {
	level = network.ClampThrottle(level)
	ns.net.ThrottleLevel = level
	if level == network.MinThrottle {
		ns.net.Mode = network.ModeOnline
	} else {
		ns.net.Mode = network.ModeDegraded
	}

	msg := throttleMessages[level]
	ns.bus.LogLine(msg)
	ns.bus.Emit(events.NetUpdatePayload{State: ns.net.Clone()})
	return msg
}

// Trace reports a simulated route to one node.
func (ns *NetworkSystem) Trace(id string) string {
	node, ok := ns.net.Find(id)
	var msg string
	if !ok {
		msg = fmt.Sprintf("net trace: node '%s' not found (sim).", id)
	} else {
		hops := 3 + int(math.Round(ns.rng.Float64()*3))
		msg = fmt.Sprintf("net trace %s: hops=%d, latency=%.1fms, loss=%.2f%% (sim).",
			node.ID, hops, node.LatencyMs, node.LossPercent)
	}
	ns.bus.LogLine(msg)
	return msg
}

// Scan lists the active nodes in topology order.
func (ns *NetworkSystem) Scan() []string {
	ids := ns.net.ActiveIDs()
	list := strings.Join(ids, ", ")
	if list == "" {
		list = "no nodes online"
	}
	ns.bus.Logf("net scan: %s (sim).", list)
	return ids
}

// Status summarizes mode, throttle and average link quality.
func (ns *NetworkSystem) Status() string {
	lat, loss := ns.net.Averages()
	return fmt.Sprintf("net status: mode=%s, throttle=%d, avgLatency=%.1fms, avgLoss=%.2f%%",
		ns.net.Mode, ns.net.ThrottleLevel, lat, loss)
}
