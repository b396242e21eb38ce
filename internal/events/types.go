// Package events provides the in-process message bus of the control room.
// Every event is one of a closed set of typed payloads; subscribers switch on
// the payload type instead of decoding loose maps.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/MRamiBalles/ChernOS/internal/domain/network"
	"github.com/MRamiBalles/ChernOS/internal/domain/reactor"
)

// EventType is the wire name of a bus event.
type EventType string

const (
	EventTypeReactorUpdate     EventType = "reactor:update"
	EventTypeReactorStage      EventType = "reactor:stage"
	EventTypeReactorFault      EventType = "reactor:fault"
	EventTypeSafeguardInserted EventType = "safeguard:inserted"
	EventTypeContainmentUpdate EventType = "containment:update"
	EventTypeNetUpdate         EventType = "net:update"
	EventTypeLogAppend         EventType = "log:append"
	EventTypeAudioPlay         EventType = "audio:play"
	EventTypeAudioStop         EventType = "audio:stop"
	EventTypeThemeSet          EventType = "theme:set"
	EventTypePluginRegister    EventType = "plugin:register"
	EventTypeOperationRejected EventType = "operation:rejected"
)

// AllTypes lists every event type the bus carries.
var AllTypes = []EventType{
	EventTypeReactorUpdate,
	EventTypeReactorStage,
	EventTypeReactorFault,
	EventTypeSafeguardInserted,
	EventTypeContainmentUpdate,
	EventTypeNetUpdate,
	EventTypeLogAppend,
	EventTypeAudioPlay,
	EventTypeAudioStop,
	EventTypeThemeSet,
	EventTypePluginRegister,
	EventTypeOperationRejected,
}

// Payload is implemented by every event body. The set is closed: only the
// structs in this file implement it.
type Payload interface {
	EventType() EventType
	sealed()
}

// Event is one published bus message.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	Payload   Payload   `json:"payload"`
}

// New wraps a payload into an event with a fresh id and the current time.
func New(p Payload) Event {
	return Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Type:      p.EventType(),
		Payload:   p,
	}
}

// ReactorUpdatePayload carries the full reactor snapshot after a tick.
type ReactorUpdatePayload struct {
	reactor.State
	CrisisMode string `json:"crisis_mode"`
}

// ReactorStagePayload reports a meltdown stage transition.
type ReactorStagePayload struct {
	From reactor.MeltdownStage `json:"from"`
	To   reactor.MeltdownStage `json:"to"`
}

// FaultPayload reports an injected fault.
type FaultPayload struct {
	Kind   reactor.FaultKind `json:"kind"`
	Source string            `json:"source"` // "operator" or "auto"
}

// SafeguardInsertedPayload reports an automatic safeguard insertion.
type SafeguardInsertedPayload struct {
	ChargesLeft int     `json:"charges_left"`
	Temperature float64 `json:"temperature"`
}

// ContainmentUpdatePayload carries the containment snapshot after a tick.
type ContainmentUpdatePayload struct {
	reactor.Containment
}

// NetUpdatePayload carries a copy of the network state.
type NetUpdatePayload struct {
	network.State
}

// LogAppendPayload is one operator log line, already timestamped.
type LogAppendPayload struct {
	Line string `json:"line"`
}

// AudioPlayPayload asks the audio subsystem to start a sound.
type AudioPlayPayload struct {
	ID string `json:"id"`
}

// AudioStopPayload asks the audio subsystem to stop a sound.
type AudioStopPayload struct {
	ID string `json:"id"`
}

// ThemeSetPayload selects a colour theme.
type ThemeSetPayload struct {
	Theme string `json:"theme"`
}

// PluginRegisteredPayload announces a loaded plugin.
type PluginRegisteredPayload struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Version string `json:"version"`
}

// OperationRejectedPayload reports an operator action refused by the engine.
type OperationRejectedPayload struct {
	Operation string `json:"operation"`
	Reason    string `json:"reason"`
}

func (ReactorUpdatePayload) EventType() EventType { return EventTypeReactorUpdate }
func (ReactorStagePayload) EventType() EventType { return EventTypeReactorStage }
func (FaultPayload) EventType() EventType { return EventTypeReactorFault }
func (SafeguardInsertedPayload) EventType() EventType { return EventTypeSafeguardInserted }
func (ContainmentUpdatePayload) EventType() EventType { return EventTypeContainmentUpdate }
func (NetUpdatePayload) EventType() EventType { return EventTypeNetUpdate }
func (LogAppendPayload) EventType() EventType { return EventTypeLogAppend }
func (AudioPlayPayload) EventType() EventType { return EventTypeAudioPlay }
func (AudioStopPayload) EventType() EventType { return EventTypeAudioStop }
func (ThemeSetPayload) EventType() EventType { return EventTypeThemeSet }
func (PluginRegisteredPayload) EventType() EventType { return EventTypePluginRegister }
func (OperationRejectedPayload) EventType() EventType { return EventTypeOperationRejected }

func (ReactorUpdatePayload) sealed() {}
func (ReactorStagePayload) sealed() {}
func (FaultPayload) sealed() {}
func (SafeguardInsertedPayload) sealed() {}
func (ContainmentUpdatePayload) sealed() {}
func (NetUpdatePayload) sealed() {}
func (LogAppendPayload) sealed() {}
func (AudioPlayPayload) sealed() {}
func (AudioStopPayload) sealed() {}
func (ThemeSetPayload) sealed() {}
func (PluginRegisteredPayload) sealed() {}
func (OperationRejectedPayload) sealed() {}
