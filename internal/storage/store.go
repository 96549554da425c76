// Package storage persists the engine's state as opaque key-value blobs.
// Blobs are read once at startup and written on debounce or teardown; the
// engine never depends on storage for correctness while running.
package storage

import "errors"

// Keys under which the engine persists its blobs
const (
	KeyAnswerQueue = "answer_queue"
	KeySession     = "session"
	KeyHistory     = "history"
)

// ErrNotFound is returned by Get for a key that has never been written
var ErrNotFound = errors.New("storage: key not found")

// Store reads and writes opaque blobs by key
type Store interface {
	Get(key string) ([]byte, error)
	Put(key string, data []byte) error
	Close() error
}
