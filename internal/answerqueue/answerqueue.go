// Package answerqueue holds human-authored answers staged ahead of demand.
// Items are consumed strictly FIFO, each at most once.
package answerqueue

import "github.com/google/uuid"

// Item is one pre-authored answer
type Item struct {
	ID          string   `json:"id"`
	Text        string   `json:"text"`
	Attachments []string `json:"attachments,omitempty"`
}

// State is the queue's persistable form
type State struct {
	Enabled bool   `json:"enabled"`
	Paused  bool   `json:"paused"`
	Items   []Item `json:"items"`
}

// Queue is not internally synchronized: it is owned by the mediator and every
// access happens under the mediator's lock.
type Queue struct {
	items   []Item
	enabled bool
	paused  bool
}

// New creates an empty queue
func New() *Queue {
	return &Queue{}
}

// Push appends an answer to the tail
func (q *Queue) Push(text string, attachments []string) Item {
	item := Item{
		ID:          uuid.New().String(),
		Text:        text,
		Attachments: attachments,
	}
	q.items = append(q.items, item)
	return item
}

// Consumable reports whether the head item may satisfy a request right now
func (q *Queue) Consumable() bool {
	return q.enabled && !q.paused && len(q.items) > 0
}

// Consume pops the head item if the queue is consumable. The pop and the
// caller's use of the item form one atomic step under the mediator's lock, so
// an item is never half consumed.
func (q *Queue) Consume() (Item, bool) {
	if !q.Consumable() {
		return Item{}, false
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item, true
}

// SetEnabled toggles auto-consumption
func (q *Queue) SetEnabled(enabled bool) { q.enabled = enabled }

// SetPaused toggles the independent pause flag
func (q *Queue) SetPaused(paused bool) { q.paused = paused }

func (q *Queue) Enabled() bool { return q.enabled }
func (q *Queue) Paused() bool  { return q.paused }
func (q *Queue) Len() int      { return len(q.items) }

// Snapshot returns a deep copy of the queue's state
func (q *Queue) Snapshot() State {
	items := make([]Item, len(q.items))
	copy(items, q.items)
	return State{Enabled: q.enabled, Paused: q.paused, Items: items}
}

// Restore replaces the queue's contents from a persisted state
func (q *Queue) Restore(s State) {
	q.enabled = s.Enabled
	q.paused = s.Paused
	q.items = make([]Item, len(s.Items))
	copy(q.items, s.Items)
}
