package network

import (
	"net/http"
	"strconv"
	"time"

	"github.com/MRamiBalles/ChernOS/internal/events"
	"github.com/MRamiBalles/ChernOS/internal/infra/storage"
	"github.com/MRamiBalles/ChernOS/internal/platform/logger"
)

const (
	defaultJournalPage = 100
	maxJournalPage     = 1000
)

// JournalHandler serves the operator log.
type JournalHandler struct {
	journal *events.Journal
	repo    storage.JournalRepository
	logger  *logger.Logger
}

// NewJournalHandler creates the handler. repo may be nil, in which case only
// the in-memory journal is served.
func NewJournalHandler(j *events.Journal, repo storage.JournalRepository, log *logger.Logger) *JournalHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &JournalHandler{journal: j, repo: repo, logger: log.Named("journal-api")}
}

// JournalResponse is the body of GET /api/journal.
type JournalResponse struct {
	Source      string                `json:"source"`
	Total       int                   `json:"total"`
	GeneratedAt string                `json:"generated_at"`
	Lines       []events.JournalEntry `json:"lines"`
}

// HandleJournal returns recent log lines, newest first.
// GET /api/journal?limit=N&source=memory|archive
// order=asc replays the in-memory lines oldest first instead.
func (jh *JournalHandler) HandleJournal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := defaultJournalPage
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			jsonError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxJournalPage)
	}

	source := r.URL.Query().Get("source")
	ascending := r.URL.Query().Get("order") == "asc"
	if ascending && source == "archive" {
		jsonError(w, "order=asc is only supported for the memory source", http.StatusBadRequest)
		return
	}

	var lines []events.JournalEntry
	switch source {
	case "", "memory":
		source = "memory"
		if ascending {
			lines = jh.journal.Replay()
			lines = lines[max(0, len(lines)-limit):]
		} else {
			lines = jh.journal.Recent(limit)
		}
	case "archive":
		if jh.repo == nil {
			jsonError(w, "No journal archive configured", http.StatusNotFound)
			return
		}
		var err error
		lines, err = jh.repo.Recent(r.Context(), limit)
		if err != nil {
			jh.logger.Error("Failed to read journal archive", "error", err)
			jsonError(w, "Failed to read journal archive", http.StatusInternalServerError)
			return
		}
	default:
		jsonError(w, "source must be memory or archive", http.StatusBadRequest)
		return
	}
	if lines == nil {
		lines = []events.JournalEntry{}
	}

	jsonSuccess(w, JournalResponse{
		Source:      source,
		Total:       len(lines),
		GeneratedAt: time.Now().Format(time.RFC3339),
		Lines:       lines,
	})
}

// RegisterRoutes sets up the journal route.
func (jh *JournalHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/journal", jh.HandleJournal)
}
