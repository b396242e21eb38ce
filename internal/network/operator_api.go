package network

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/MRamiBalles/ChernOS/internal/engine"
	"github.com/MRamiBalles/ChernOS/internal/events"
	"github.com/MRamiBalles/ChernOS/internal/infra/storage"
	"github.com/MRamiBalles/ChernOS/internal/platform/logger"
	"github.com/MRamiBalles/ChernOS/internal/terminal"
	"github.com/MRamiBalles/ChernOS/internal/theme"
)

// ThemeSource reports the theme currently shown. *theme.Controller implements it.
type ThemeSource interface {
	Current() theme.Name
}

// OperatorAPI serves the REST surface of the control room.
type OperatorAPI struct {
	exec   terminal.Executor
	runner CommandRunner
	hub    *Hub
	themes ThemeSource
	prefs  storage.PreferenceRepository
	logger *logger.Logger

	// OnPreferences runs after preferences were saved through the API.
	OnPreferences func(storage.Preferences)
}

// NewOperatorAPI creates the handler set. hub, themes and prefs may be nil.
func NewOperatorAPI(exec terminal.Executor, runner CommandRunner, hub *Hub, themes ThemeSource,
	prefs storage.PreferenceRepository, log *logger.Logger) *OperatorAPI {
	if log == nil {
		log = logger.NewNop()
	}
	return &OperatorAPI{
		exec:   exec,
		runner: runner,
		hub:    hub,
		themes: themes,
		prefs:  prefs,
		logger: log.Named("api"),
	}
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	engine.Snapshot
	Theme       string `json:"theme,omitempty"`
	Clients     int    `json:"clients"`
	GeneratedAt string `json:"generated_at"`
}

// CommandResponse is the body returned by the command endpoints.
type CommandResponse struct {
	Command string   `json:"command"`
	Lines   []string `json:"lines"`
	Error   string   `json:"error,omitempty"`
}

// HandleStatus returns a snapshot of the simulation.
// GET /api/status
func (a *OperatorAPI) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var snap engine.Snapshot
	if err := a.exec.Exec(r.Context(), func(e *engine.Engine) { snap = e.Snapshot() }); err != nil {
		jsonError(w, err.Error(), statusFor(err))
		return
	}

	resp := StatusResponse{Snapshot: snap, GeneratedAt: time.Now().Format(time.RFC3339)}
	if a.themes != nil {
		resp.Theme = string(a.themes.Current())
	}
	if a.hub != nil {
		resp.Clients = a.hub.ClientCount()
	}
	jsonSuccess(w, resp)
}

// HandleCommand runs a terminal command line.
// POST /api/command {"command": "net scan"}
func (a *OperatorAPI) HandleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	a.run(w, r.Context(), req.Command)
}

// HandleFault injects a fault from the catalog.
// POST /api/fault {"kind": "ghost"}
func (a *OperatorAPI) HandleFault(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Kind string `json:"kind"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Kind == "" {
		jsonError(w, "Missing fault kind", http.StatusBadRequest)
		return
	}
	a.run(w, r.Context(), "simulate "+req.Kind)
}

// HandleOverdrive toggles overdrive.
// POST /api/overdrive
func (a *OperatorAPI) HandleOverdrive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	a.run(w, r.Context(), "overdrive")
}

func (a *OperatorAPI) run(w http.ResponseWriter, ctx context.Context, line string) {
	lines, err := a.runner.Run(ctx, line)
	resp := CommandResponse{Command: line, Lines: lines}
	if err != nil {
		resp.Error = err.Error()
		writeJSON(w, statusFor(err), resp)
		return
	}
	jsonSuccess(w, resp)
}

// HandlePreferences reads or updates the cosmetic preferences. A PUT body is
// merged over the stored preferences.
// GET|PUT /api/preferences
func (a *OperatorAPI) HandlePreferences(w http.ResponseWriter, r *http.Request) {
	if a.prefs == nil {
		jsonError(w, "Preferences are not persisted", http.StatusNotFound)
		return
	}

	current, err := a.prefs.Load(r.Context())
	if err != nil && !errors.Is(err, storage.ErrCorruptPreferences) {
		jsonError(w, "Failed to load preferences", http.StatusInternalServerError)
		return
	}

	switch r.Method {
	case http.MethodGet:
		jsonSuccess(w, current)

	case http.MethodPut:
		next := current
		if err := json.NewDecoder(r.Body).Decode(&next); err != nil {
			jsonError(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if msg := validatePreferences(next); msg != "" {
			jsonError(w, msg, http.StatusBadRequest)
			return
		}
		if err := a.prefs.Save(r.Context(), next); err != nil {
			a.logger.Error("Failed to save preferences", "error", err)
			jsonError(w, "Failed to save preferences", http.StatusInternalServerError)
			return
		}

		if next.Theme != current.Theme {
			err := a.exec.Exec(r.Context(), func(e *engine.Engine) {
				e.Bus().Emit(events.ThemeSetPayload{Theme: next.Theme})
			})
			if err != nil {
				a.logger.Warn("Theme change not applied", "error", err)
			}
		}
		if a.OnPreferences != nil {
			a.OnPreferences(next)
		}
		a.logger.Event("PREFERENCES_SAVED", "API", "theme="+next.Theme)
		jsonSuccess(w, next)

	default:
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func validatePreferences(p storage.Preferences) string {
	if _, ok := theme.Parse(p.Theme); !ok {
		return "Unknown theme"
	}
	for _, v := range []float64{p.Soundscape.Master, p.Soundscape.Hum, p.Soundscape.Alarms, p.Soundscape.Music} {
		if v < 0 || v > 1 {
			return "Soundscape levels must be within [0,1]"
		}
	}
	return ""
}

// RegisterRoutes sets up the operator API routes.
func (a *OperatorAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/status", a.HandleStatus)
	mux.HandleFunc("/api/command", a.HandleCommand)
	mux.HandleFunc("/api/fault", a.HandleFault)
	mux.HandleFunc("/api/overdrive", a.HandleOverdrive)
	mux.HandleFunc("/api/preferences", a.HandlePreferences)
}

// statusFor maps command errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, terminal.ErrInvalidCommand):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrRejectedOperation):
		return http.StatusConflict
	case errors.Is(err, engine.ErrTickerStopped),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// jsonError sends an error response.
func jsonError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}

// jsonSuccess sends a success response.
func jsonSuccess(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, data)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
