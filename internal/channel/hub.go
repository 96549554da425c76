// Package channel fans engine notifications out to every connected endpoint
// (the local console plus zero or more remote websocket clients) and routes
// operator resolutions back to the mediator. Every endpoint receives the same
// notifications in the same order.
package channel

import (
	"log/slog"
	"sync"

	"github.com/iambrandonn/parley/internal/answerqueue"
	"github.com/iambrandonn/parley/internal/protocol"
)

// Endpoint is one notification sink
type Endpoint interface {
	Name() string
	Deliver(protocol.Notification)
}

// Resolver accepts operator actions routed back from an endpoint. The
// mediator implements it.
type Resolver interface {
	Resolve(id, answer string, attachments []string) bool
	ResolveMulti(id string, answers []protocol.SubAnswer, cancelled bool) bool
	CancelActive() bool
	EnqueueAnswer(text string, attachments []string) answerqueue.Item
	SetQueueEnabled(enabled bool)
	SetQueuePaused(paused bool)
}

// Hub buffers notifications and delivers them from a single pump goroutine,
// so delivery order is identical across endpoints and the mediator never
// blocks on a slow one.
type Hub struct {
	logger *slog.Logger

	mu        sync.Mutex
	endpoints []Endpoint

	ch   chan protocol.Notification
	done chan struct{}

	closeOnce sync.Once
}

const hubBuffer = 256

// NewHub creates a hub and starts its pump
func NewHub(logger *slog.Logger) *Hub {
	h := &Hub{
		logger: logger,
		ch:     make(chan protocol.Notification, hubBuffer),
		done:   make(chan struct{}),
	}
	go h.pump()
	return h
}

// Register adds an endpoint to the fan-out set
func (h *Hub) Register(ep Endpoint) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.endpoints = append(h.endpoints, ep)
	h.logger.Info("channel endpoint registered", "endpoint", ep.Name())
}

// Unregister removes an endpoint
func (h *Hub) Unregister(ep Endpoint) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, e := range h.endpoints {
		if e == ep {
			h.endpoints = append(h.endpoints[:i], h.endpoints[i+1:]...)
			h.logger.Info("channel endpoint unregistered", "endpoint", ep.Name())
			return
		}
	}
}

// Notify enqueues a notification for delivery. Never blocks; if the buffer is
// full the notification is dropped with a warning.
func (h *Hub) Notify(n protocol.Notification) {
	select {
	case h.ch <- n:
	case <-h.done:
	default:
		h.logger.Warn("notification dropped, hub buffer full", "kind", n.Kind)
	}
}

// Close stops the pump. Notifications already buffered are discarded.
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		close(h.done)
	})
}

func (h *Hub) pump() {
	for {
		select {
		case <-h.done:
			return
		case n := <-h.ch:
			h.mu.Lock()
			targets := append([]Endpoint(nil), h.endpoints...)
			h.mu.Unlock()
			for _, ep := range targets {
				ep.Deliver(n)
			}
		}
	}
}
