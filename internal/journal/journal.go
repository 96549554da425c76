// Package journal persists engine state through a debounced snapshot writer.
// Bursts of mutation coalesce into one flush; a flush always serializes the
// state as it is at flush time, not as it was when the flush was scheduled.
package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/iambrandonn/parley/internal/answerqueue"
	"github.com/iambrandonn/parley/internal/ledger"
	"github.com/iambrandonn/parley/internal/storage"
)

// DefaultDebounce is the delay between the first mutation and its flush
const DefaultDebounce = 500 * time.Millisecond

// Snapshot is everything the engine persists
type Snapshot struct {
	AnswerQueue answerqueue.State `json:"answer_queue"`
	Session     []ledger.Entry    `json:"session"`
	History     []ledger.Entry    `json:"history"`
}

// SnapshotFunc captures the engine's current state. It is called outside the
// journal's lock and may itself take the mediator's lock.
type SnapshotFunc func() Snapshot

// Journal owns the deferred and immediate flush paths. A dirty flag makes
// redundant flushes cheap no-ops.
type Journal struct {
	store    storage.Store
	snapshot SnapshotFunc
	debounce time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	timer  *time.Timer
	dirty  bool
	closed bool
}

// New creates a journal writing to store. debounce <= 0 uses the default.
func New(store storage.Store, snapshot SnapshotFunc, debounce time.Duration, logger *slog.Logger) *Journal {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Journal{
		store:    store,
		snapshot: snapshot,
		debounce: debounce,
		logger:   logger,
	}
}

// MarkDirty notes a mutation and schedules a deferred flush. Safe to call
// while holding the mediator's lock.
func (j *Journal) MarkDirty() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return
	}
	j.dirty = true
	if j.timer == nil {
		j.timer = time.AfterFunc(j.debounce, j.flushDeferred)
	}
}

// Flush writes the current state synchronously. Used during teardown, where
// an asynchronous flush cannot be guaranteed to complete before exit.
func (j *Journal) Flush() error {
	j.mu.Lock()
	if j.timer != nil {
		j.timer.Stop()
		j.timer = nil
	}
	if !j.dirty {
		j.mu.Unlock()
		return nil
	}
	j.dirty = false
	j.mu.Unlock()

	return j.write()
}

// Close stops the deferred timer and performs a final synchronous flush
func (j *Journal) Close() error {
	err := j.Flush()

	j.mu.Lock()
	j.closed = true
	if j.timer != nil {
		j.timer.Stop()
		j.timer = nil
	}
	j.mu.Unlock()

	return err
}

func (j *Journal) flushDeferred() {
	j.mu.Lock()
	j.timer = nil
	if j.closed || !j.dirty {
		j.mu.Unlock()
		return
	}
	j.dirty = false
	j.mu.Unlock()

	// A failed flush must not corrupt in-memory state; the next successful
	// flush supersedes it
	if err := j.write(); err != nil {
		j.logger.Warn("deferred flush failed", "error", err)
	}
}

func (j *Journal) write() error {
	snap := j.snapshot()

	sections := []struct {
		key string
		val any
	}{
		{storage.KeyAnswerQueue, snap.AnswerQueue},
		{storage.KeySession, snap.Session},
		{storage.KeyHistory, snap.History},
	}

	var errs []error
	for _, s := range sections {
		data, err := json.Marshal(s.val)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to marshal %s: %w", s.key, err))
			continue
		}
		if err := j.store.Put(s.key, data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Load reads a persisted snapshot from store. Missing keys yield empty
// sections, so a first run starts clean.
func Load(store storage.Store, logger *slog.Logger) Snapshot {
	var snap Snapshot

	load := func(key string, v any) {
		data, err := store.Get(key)
		if err != nil {
			if !errors.Is(err, storage.ErrNotFound) {
				logger.Warn("failed to load persisted state", "key", key, "error", err)
			}
			return
		}
		if err := json.Unmarshal(data, v); err != nil {
			logger.Warn("failed to decode persisted state", "key", key, "error", err)
		}
	}

	load(storage.KeyAnswerQueue, &snap.AnswerQueue)
	load(storage.KeySession, &snap.Session)
	load(storage.KeyHistory, &snap.History)
	return snap
}
