package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MRamiBalles/ChernOS/internal/platform/logger"
	"github.com/MRamiBalles/ChernOS/internal/platform/metrics"
)

// DefaultJournalLimit is how many operator log lines stay in memory.
const DefaultJournalLimit = 400

var errQueueFull = errors.New("events: journal queue full")

// JournalEntry is one operator log line as kept by the journal.
type JournalEntry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Line      string    `json:"line"`
}

// LinePersister defines how a journal line is durably stored.
type LinePersister interface {
	AppendLine(ctx context.Context, entry JournalEntry) error
}

// Journal is the bounded in-memory operator log.
// Lines are written through to an optional persister on a background goroutine
// so that publishing never waits on storage.
type Journal struct {
	mu      sync.RWMutex
	entries []JournalEntry // oldest first
	limit   int
	closed  bool

	persister LinePersister
	queue     chan JournalEntry
	done      chan struct{}
	logger    *logger.Logger
	metrics   *metrics.Collector
}

// NewJournal creates a journal holding up to limit lines. persister may be nil.
func NewJournal(persister LinePersister, limit int, log *logger.Logger, m *metrics.Collector) *Journal {
	if limit <= 0 {
		limit = DefaultJournalLimit
	}
	if log == nil {
		log = logger.NewNop()
	}
	j := &Journal{
		entries:   make([]JournalEntry, 0, limit),
		limit:     limit,
		persister: persister,
		logger:    log.Named("journal"),
		metrics:   m,
		done:      make(chan struct{}),
	}
	if persister != nil {
		j.queue = make(chan JournalEntry, 256)
		go j.persistLoop()
	} else {
		close(j.done)
	}
	return j
}

// Attach subscribes the journal to log:append events on a bus.
func (j *Journal) Attach(bus *Bus) (detach func()) {
	return bus.SubscribeTypes(func(e Event) error {
		if p, ok := e.Payload.(LogAppendPayload); ok {
			j.Append(JournalEntry{ID: e.ID, Timestamp: e.Timestamp, Line: p.Line})
		}
		return nil
	}, EventTypeLogAppend)
}

// Append adds a line, evicting the oldest beyond the limit.
func (j *Journal) Append(entry JournalEntry) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if len(j.entries) == j.limit {
		copy(j.entries, j.entries[1:])
		j.entries = j.entries[:len(j.entries)-1]
	}
	j.entries = append(j.entries, entry)

	if j.queue == nil || j.closed {
		return
	}
	select {
	case j.queue <- entry:
	default:
		j.logger.Warn("journal queue full, line not persisted", "line", entry.Line)
		if j.metrics != nil {
			j.metrics.RecordJournalWrite(errQueueFull)
		}
	}
}

// Recent returns up to n lines, newest first. n <= 0 returns everything.
func (j *Journal) Recent(n int) []JournalEntry {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if n <= 0 || n > len(j.entries) {
		n = len(j.entries)
	}
	out := make([]JournalEntry, 0, n)
	for i := len(j.entries) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, j.entries[i])
	}
	return out
}

// Replay returns every kept line in publication order.
func (j *Journal) Replay() []JournalEntry {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return append([]JournalEntry(nil), j.entries...)
}

// Close stops accepting writes and waits until queued lines are persisted.
func (j *Journal) Close() {
	j.mu.Lock()
	if !j.closed {
		j.closed = true
		if j.queue != nil {
			close(j.queue)
		}
	}
	j.mu.Unlock()
	<-j.done
}

func (j *Journal) persistLoop() {
	defer close(j.done)
	for entry := range j.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := j.persister.AppendLine(ctx, entry)
		cancel()
		if err != nil {
			j.logger.Error("failed to persist journal line", "error", err)
		}
		if j.metrics != nil {
			j.metrics.RecordJournalWrite(err)
		}
	}
}
