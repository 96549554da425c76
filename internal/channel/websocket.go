package channel

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/iambrandonn/parley/internal/protocol"
)

var upgrader = websocket.Upgrader{
	// The engine binds to loopback; channel authentication is the remote
	// client's concern
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Server upgrades HTTP connections into remote channel endpoints. Each
// connection receives the hub's notifications and may send resolutions back.
type Server struct {
	hub      *Hub
	resolver Resolver
	logger   *slog.Logger
}

// NewServer creates a websocket channel server
func NewServer(hub *Hub, resolver Resolver, logger *slog.Logger) *Server {
	return &Server{
		hub:      hub,
		resolver: resolver,
		logger:   logger,
	}
}

// ServeHTTP upgrades the connection and runs its read loop until the client
// disconnects
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("failed to upgrade websocket", "error", err)
		return
	}

	ep := &wsEndpoint{
		conn:   conn,
		name:   fmt.Sprintf("remote:%s", conn.RemoteAddr()),
		logger: s.logger,
	}
	s.hub.Register(ep)
	defer func() {
		s.hub.Unregister(ep)
		conn.Close()
	}()

	for {
		var res protocol.Resolution
		if err := conn.ReadJSON(&res); err != nil {
			s.logger.Info("websocket client disconnected", "endpoint", ep.name, "error", err)
			return
		}
		s.dispatch(res)
	}
}

func (s *Server) dispatch(res protocol.Resolution) {
	switch res.Kind {
	case protocol.ResolutionAnswer:
		s.resolver.Resolve(res.RequestID, res.Answer, res.Attachments)
	case protocol.ResolutionAnswerMulti:
		s.resolver.ResolveMulti(res.RequestID, res.SubAnswers, res.Cancelled)
	case protocol.ResolutionCancelActive:
		s.resolver.CancelActive()
	case protocol.ResolutionQueueAnswer:
		s.resolver.EnqueueAnswer(res.Answer, res.Attachments)
	case protocol.ResolutionQueuePause:
		s.resolver.SetQueuePaused(true)
	case protocol.ResolutionQueueResume:
		s.resolver.SetQueuePaused(false)
	default:
		s.logger.Warn("unknown resolution kind", "kind", res.Kind)
	}
}

// wsEndpoint wraps one websocket connection. Writes are serialized; gorilla
// connections do not allow concurrent writers.
type wsEndpoint struct {
	conn   *websocket.Conn
	name   string
	logger *slog.Logger
	mu     sync.Mutex
}

func (e *wsEndpoint) Name() string {
	return e.name
}

func (e *wsEndpoint) Deliver(n protocol.Notification) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.conn.WriteJSON(n); err != nil {
		e.logger.Warn("failed to deliver notification", "endpoint", e.name, "error", err)
	}
}
