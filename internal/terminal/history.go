package terminal

// DefaultHistoryLimit caps the number of remembered commands.
const DefaultHistoryLimit = 200

// History recalls previously entered commands, newest first.
// It is not safe for concurrent use; each console owns one.
type History struct {
	entries []string // newest first
	index   int      // -1 means "not browsing"
	limit   int
}

// NewHistory creates an empty history. A limit <= 0 uses DefaultHistoryLimit.
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &History{index: -1, limit: limit}
}

// Push records a command and stops browsing.
func (h *History) Push(cmd string) {
	h.index = -1
	if cmd == "" {
		return
	}
	h.entries = append([]string{cmd}, h.entries...)
	if len(h.entries) > h.limit {
		h.entries = h.entries[:h.limit]
	}
}

// Up moves to the next older command. It stays on the oldest one.
func (h *History) Up() (string, bool) {
	if len(h.entries) == 0 {
		return "", false
	}
	h.index = min(len(h.entries)-1, h.index+1)
	return h.entries[h.index], true
}

// Down moves to the next newer command. Past the newest it returns an empty line.
func (h *History) Down() (string, bool) {
	if len(h.entries) == 0 {
		return "", false
	}
	if h.index <= 0 {
		h.index = -1
		return "", true
	}
	h.index--
	return h.entries[h.index], true
}

// Entries returns the commands, newest first.
func (h *History) Entries() []string {
	return append([]string(nil), h.entries...)
}
