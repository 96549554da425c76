package ledger

// DefaultHistoryMax bounds the durable cross-restart history
const DefaultHistoryMax = 500

// History is the durable record of completed requests across restarts.
// Cancelled and pending entries are session-local and never merged here.
type History struct {
	entries []Entry
	seen    map[string]bool
	max     int
}

// NewHistory creates an empty history bounded to max entries (0 means the
// default)
func NewHistory(max int) *History {
	if max <= 0 {
		max = DefaultHistoryMax
	}
	return &History{
		seen: make(map[string]bool),
		max:  max,
	}
}

// Add merges one completed entry; cancelled or pending entries and duplicate
// ids are ignored
func (h *History) Add(e Entry) {
	if e.Status != StatusCompleted || h.seen[e.ID] {
		return
	}
	h.entries = append(h.entries, e)
	h.seen[e.ID] = true
	h.trim()
}

// Merge adds every completed entry from a session snapshot
func (h *History) Merge(entries []Entry) {
	for _, e := range entries {
		h.Add(e)
	}
}

// Entries returns a copy in merge order, oldest first
func (h *History) Entries() []Entry {
	out := make([]Entry, len(h.entries))
	copy(out, h.entries)
	return out
}

// Len returns the number of entries
func (h *History) Len() int {
	return len(h.entries)
}

// Load replaces the history from a persisted snapshot, dropping anything
// that is not completed
func (h *History) Load(entries []Entry) {
	h.entries = nil
	h.seen = make(map[string]bool)
	h.Merge(entries)
}

func (h *History) trim() {
	if len(h.entries) <= h.max {
		return
	}
	drop := len(h.entries) - h.max
	for _, e := range h.entries[:drop] {
		delete(h.seen, e.ID)
	}
	h.entries = append([]Entry(nil), h.entries[drop:]...)
}
