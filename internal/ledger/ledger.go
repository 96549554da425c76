// Package ledger records the lifecycle of every request the mediator accepts.
// The session ledger is volatile and bounded; completed entries are merged
// into a separate durable history that survives restarts.
package ledger

import (
	"time"

	"github.com/iambrandonn/parley/internal/protocol"
)

// Status is an entry's lifecycle state
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Entry is the mutable record of one request's lifecycle
type Entry struct {
	ID          string     `json:"id"`
	Prompt      string     `json:"prompt"`
	Context     string     `json:"context,omitempty"`
	Response    string     `json:"response,omitempty"`
	Status      Status     `json:"status"`
	Attachments []string   `json:"attachments,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
	// ViaQueue marks entries answered from the pre-answer queue rather
	// than live interaction
	ViaQueue bool `json:"via_queue,omitempty"`
}

// DefaultMaxEntries bounds the session ledger; oldest terminal entries are trimmed
const DefaultMaxEntries = 200

// Ledger keeps the ordered entry list and an id index. Every mutation updates
// both in the same step so they never disagree. Not internally synchronized:
// owned by the mediator, accessed under its lock.
type Ledger struct {
	entries []*Entry
	index   map[string]*Entry
	max     int
}

// New creates an empty ledger bounded to max entries (0 means the default)
func New(max int) *Ledger {
	if max <= 0 {
		max = DefaultMaxEntries
	}
	return &Ledger{
		index: make(map[string]*Entry),
		max:   max,
	}
}

// Append records a new pending entry for an accepted request
func (l *Ledger) Append(id, prompt, context string) *Entry {
	e := &Entry{
		ID:        id,
		Prompt:    prompt,
		Context:   context,
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	l.entries = append(l.entries, e)
	l.index[id] = e
	l.trim()
	return e
}

// Get returns the entry for id, or nil
func (l *Ledger) Get(id string) *Entry {
	return l.index[id]
}

// Complete marks a pending entry completed. Returns false if the entry is
// missing or already terminal; terminal states are never left.
func (l *Ledger) Complete(id, response string, attachments []string, viaQueue bool) bool {
	e := l.index[id]
	if e == nil || e.Status != StatusPending {
		return false
	}
	now := time.Now().UTC()
	e.Status = StatusCompleted
	e.Response = response
	e.Attachments = attachments
	e.ResolvedAt = &now
	e.ViaQueue = viaQueue
	return true
}

// Cancel marks a pending entry cancelled with a sentinel message
func (l *Ledger) Cancel(id, message string) bool {
	e := l.index[id]
	if e == nil || e.Status != StatusPending {
		return false
	}
	now := time.Now().UTC()
	e.Status = StatusCancelled
	e.Response = message
	e.ResolvedAt = &now
	return true
}

// Entries returns a copy of all entries in arrival order
func (l *Ledger) Entries() []Entry {
	out := make([]Entry, len(l.entries))
	for i, e := range l.entries {
		out[i] = *e
	}
	return out
}

// Len returns the number of entries
func (l *Ledger) Len() int {
	return len(l.entries)
}

// Clear drops every entry (operator-initiated)
func (l *Ledger) Clear() {
	l.entries = nil
	l.index = make(map[string]*Entry)
}

// Load replaces the ledger's contents from a persisted snapshot. Any entry
// still pending belonged to a waiter in a previous process whose resolution
// callback no longer exists, so it is reclassified cancelled.
func (l *Ledger) Load(entries []Entry) {
	l.entries = nil
	l.index = make(map[string]*Entry)
	for i := range entries {
		e := entries[i]
		if e.Status == StatusPending {
			now := time.Now().UTC()
			e.Status = StatusCancelled
			e.Response = protocol.SentinelRestartInterrupt
			e.ResolvedAt = &now
		}
		copied := e
		l.entries = append(l.entries, &copied)
		l.index[copied.ID] = &copied
	}
	l.trim()
}

// trim drops the oldest terminal entries once the bound is exceeded. Pending
// entries are never trimmed: a live waiter's record must outlast the waiter,
// so the ledger may temporarily exceed its bound while many requests are in
// flight.
func (l *Ledger) trim() {
	excess := len(l.entries) - l.max
	if excess <= 0 {
		return
	}
	kept := make([]*Entry, 0, l.max)
	for _, e := range l.entries {
		if excess > 0 && e.Status != StatusPending {
			excess--
			delete(l.index, e.ID)
			continue
		}
		kept = append(kept, e)
	}
	l.entries = kept
}
