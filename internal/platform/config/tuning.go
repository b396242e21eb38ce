package config

import "time"

// HubConfig tunes the WebSocket hub. Zero fields are taken from the profile.
type HubConfig struct {
	Profile           string `json:"profile"`
	SendBuffer        int    `json:"send_buffer"`
	BroadcastBuffer   int    `json:"broadcast_buffer"`
	CommandIntervalMs int    `json:"command_interval_ms"`
}

// HubTuning holds resolved hub parameters.
type HubTuning struct {
	// Channel buffer sizes
	ClientSendBuffer       int
	BroadcastChannelBuffer int

	// Rate limiting: minimum spacing between terminal commands per client
	CommandInterval time.Duration
}

// DefaultTuning returns sensible defaults for a control room with a few displays.
func DefaultTuning() HubTuning {
	return HubTuning{
		ClientSendBuffer:       256, // ~4s of reactor updates at 60Hz
		BroadcastChannelBuffer: 1024,
		CommandInterval:        100 * time.Millisecond,
	}
}

// StressTuning returns aggressive settings for the fault-storm load generator.
func StressTuning() HubTuning {
	return HubTuning{
		ClientSendBuffer:       1024,
		BroadcastChannelBuffer: 4096,
		CommandInterval:        10 * time.Millisecond,
	}
}

// LowResourceTuning returns minimal settings for development.
func LowResourceTuning() HubTuning {
	return HubTuning{
		ClientSendBuffer:       64,
		BroadcastChannelBuffer: 256,
		CommandInterval:        250 * time.Millisecond,
	}
}

// Tuning resolves the profile and applies explicit overrides.
func (h HubConfig) Tuning() HubTuning {
	var t HubTuning
	switch h.Profile {
	case "stress":
		t = StressTuning()
	case "low":
		t = LowResourceTuning()
	default:
		t = DefaultTuning()
	}

	if h.SendBuffer > 0 {
		t.ClientSendBuffer = h.SendBuffer
	}
	if h.BroadcastBuffer > 0 {
		t.BroadcastChannelBuffer = h.BroadcastBuffer
	}
	if h.CommandIntervalMs > 0 {
		t.CommandInterval = time.Duration(h.CommandIntervalMs) * time.Millisecond
	}
	return t
}
