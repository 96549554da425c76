// Package eventlog maintains the append-only audit trail of mediation
// activity as an NDJSON file.
package eventlog

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/iambrandonn/parley/internal/ndjson"
)

// Event types recorded in the audit log
const (
	TypeRequestAccepted  = "request.accepted"
	TypeRequestActivated = "request.activated"
	TypeRequestCompleted = "request.completed"
	TypeRequestCancelled = "request.cancelled"
	TypeAnswerQueued     = "answer.queued"
	TypeQueueConsumed    = "queue.consumed"
	TypeBacklogDepth     = "backlog.depth"
)

// Event is a single audit log record
type Event struct {
	Type       string    `json:"type"`
	RequestID  string    `json:"request_id,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	Depth      int       `json:"depth,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// EventLog appends audit events to an NDJSON file
type EventLog struct {
	file    *os.File
	encoder *ndjson.Encoder
	logger  *slog.Logger
	mu      sync.Mutex
}

// Open opens (or creates) the audit log at logPath for appending
func Open(logPath string, logger *slog.Logger) (*EventLog, error) {
	dir := filepath.Dir(logPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	return &EventLog{
		file:    file,
		encoder: ndjson.NewEncoder(file, logger),
		logger:  logger,
	}, nil
}

// Record appends an event, stamping OccurredAt if unset. Append failures are
// logged but never surfaced: the audit trail must not disturb mediation.
func (l *EventLog) Record(evt Event) {
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.encoder.Encode(evt); err != nil {
		l.logger.Warn("failed to append audit event",
			"type", evt.Type,
			"error", err)
	}
}

// Close closes the audit log file
func (l *EventLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

// Read decodes all events from r, stopping at the first malformed line
func Read(r io.Reader, logger *slog.Logger) ([]Event, error) {
	decoder := ndjson.NewDecoder(r, logger)

	var events []Event
	for {
		var evt Event
		if err := decoder.Decode(&evt); err != nil {
			if err == io.EOF {
				return events, nil
			}
			return events, err
		}
		events = append(events, evt)
	}
}
