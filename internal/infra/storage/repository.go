// Package storage provides the persistence layer for the control room.
// Only cosmetic preferences and the operator log journal are persisted;
// simulation state always starts fresh.
package storage

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/MRamiBalles/ChernOS/internal/events"
)

// PreferencesKey is the storage key of the preference blob.
const PreferencesKey = "chernos-2.0-state"

// ErrCorruptPreferences is returned alongside defaults when the stored blob cannot be decoded.
var ErrCorruptPreferences = errors.New("storage: corrupt preference blob")

// Profile is an operator identity shown in the console header.
type Profile struct {
	Name string `json:"name"`
	Rank string `json:"rank"`
}

// Profiles holds the known operator profiles and the active one.
type Profiles struct {
	Active string             `json:"active"`
	ByID   map[string]Profile `json:"byId"`
}

// Soundscape holds the mixer levels, each in [0,1].
type Soundscape struct {
	Master float64 `json:"master"`
	Hum    float64 `json:"hum"`
	Alarms float64 `json:"alarms"`
	Music  float64 `json:"music"`
}

// Preferences is the cosmetic preference blob. It deliberately has no
// simulation fields.
type Preferences struct {
	Theme      string     `json:"theme"`
	Profiles   Profiles   `json:"profiles"`
	Soundscape Soundscape `json:"soundscape"`
}

// DefaultPreferences returns a fresh copy of the defaults.
func DefaultPreferences() Preferences {
	return Preferences{
		Theme: "green",
		Profiles: Profiles{
			Active: "default",
			ByID: map[string]Profile{
				"default": {Name: "ANON", Rank: "TECHNICIAN"},
			},
		},
		Soundscape: Soundscape{
			Master: 0.7,
			Hum:    0.5,
			Alarms: 0.7,
			Music:  0.4,
		},
	}
}

// ActiveProfile returns the active profile, or the default one if it is missing.
func (p Preferences) ActiveProfile() Profile {
	if prof, ok := p.Profiles.ByID[p.Profiles.Active]; ok {
		return prof
	}
	return DefaultPreferences().Profiles.ByID["default"]
}

// EncodePreferences serializes the blob.
func EncodePreferences(p Preferences) ([]byte, error) {
	return json.Marshal(p)
}

// DecodePreferences merges a stored blob over the defaults. Fields missing
// from the blob keep their default; unknown fields are dropped. A blob that
// does not decode yields the defaults and ErrCorruptPreferences.
func DecodePreferences(raw []byte) (Preferences, error) {
	prefs := DefaultPreferences()
	if len(raw) == 0 {
		return prefs, nil
	}
	if err := json.Unmarshal(raw, &prefs); err != nil {
		return DefaultPreferences(), errors.Join(ErrCorruptPreferences, err)
	}
	return prefs, nil
}

// PreferenceRepository stores the preference blob.
type PreferenceRepository interface {
	// Load returns usable preferences even when it also returns an error.
	Load(ctx context.Context) (Preferences, error)

	// Save replaces the stored blob.
	Save(ctx context.Context, prefs Preferences) error
}

// JournalRepository stores operator log lines.
type JournalRepository interface {
	// AppendLine adds a line to the journal.
	AppendLine(ctx context.Context, entry events.JournalEntry) error

	// Recent returns up to limit lines, newest first.
	Recent(ctx context.Context, limit int) ([]events.JournalEntry, error)
}
