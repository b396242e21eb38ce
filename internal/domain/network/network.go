// Package network defines the simulated plant network topology.
// This package is PURE and must NOT import any infrastructure packages.
package network

import "strings"

// Mode is the overall link condition of the plant network.
type Mode string

const (
	ModeOnline   Mode = "online"
	ModeDegraded Mode = "degraded"
	ModeOffline  Mode = "offline"
)

// ParseMode resolves a mode name, defaulting to online.
func ParseMode(s string) Mode {
	switch Mode(strings.ToLower(s)) {
	case ModeDegraded:
		return ModeDegraded
	case ModeOffline:
		return ModeOffline
	}
	return ModeOnline
}

// Throttle bounds.
const (
	MinThrottle = 0
	MaxThrottle = 2

	MinLatencyMs = 5.0
)

// Node is one named station on the plant network.
type Node struct {
	ID          string  `json:"id"`
	LatencyMs   float64 `json:"latency_ms"`
	LossPercent float64 `json:"loss_percent"`
	Active      bool    `json:"active"`
}

// State is the whole simulated network.
type State struct {
	Mode          Mode   `json:"mode"`
	ThrottleLevel int    `json:"throttle_level"` // 0 = baseline, 1/2 = congested
	Nodes         []Node `json:"nodes"`
}

// NewState returns the five-node plant network in online mode.
func NewState() *State {
	return &State{
		Mode:          ModeOnline,
		ThrottleLevel: MinThrottle,
		Nodes: []Node{
			{ID: "CORE-1", LatencyMs: 12, LossPercent: 0.1, Active: true},
			{ID: "FLOW-A", LatencyMs: 15, LossPercent: 0.2, Active: true},
			{ID: "SHIELD-X", LatencyMs: 18, LossPercent: 0.3, Active: true},
			{ID: "DIAG-NET", LatencyMs: 10, LossPercent: 0.1, Active: true},
			{ID: "OPS-TOWER", LatencyMs: 20, LossPercent: 0.4, Active: true},
		},
	}
}

// Find looks a node up by id, ignoring case.
func (s *State) Find(id string) (*Node, bool) {
	for i := range s.Nodes {
		if strings.EqualFold(s.Nodes[i].ID, id) {
			return &s.Nodes[i], true
		}
	}
	return nil, false
}

// ActiveIDs returns the ids of active nodes in topology order.
func (s *State) ActiveIDs() []string {
	ids := make([]string, 0, len(s.Nodes))
	for _, n := range s.Nodes {
		if n.Active {
			ids = append(ids, n.ID)
		}
	}
	return ids
}

// Averages returns mean latency (ms) and mean loss (%) over all nodes.
func (s *State) Averages() (latency float64, loss float64) {
	if len(s.Nodes) == 0 {
		return 0, 0
	}
	for _, n := range s.Nodes {
		latency += n.LatencyMs
		loss += n.LossPercent
	}
	count := float64(len(s.Nodes))
	return latency / count, loss / count
}

// Clone returns a deep copy safe to hand to subscribers.
func (s *State) Clone() State {
	c := *s
	c.Nodes = append([]Node(nil), s.Nodes...)
	return c
}

// ClampThrottle bounds a requested throttle level to [0,2].
func ClampThrottle(level int) int {
	if level < MinThrottle {
		return MinThrottle
	}
	if level > MaxThrottle {
		return MaxThrottle
	}
	return level
}
