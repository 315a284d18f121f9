package groundlink

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/relabs-gnc/rocketgnc/internal/estimator"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// telemetryStream fans the latest attitude snapshot out to every
// connected operator websocket client.
type telemetryStream struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

func newTelemetryStream() *telemetryStream {
	return &telemetryStream{clients: make(map[*websocket.Conn]struct{})}
}

func (s *telemetryStream) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.clients[conn] = struct{}{}
	s.mu.Unlock()

	// Drain reads until the client disconnects; we never expect inbound
	// telemetry frames on this socket.
	go func() {
		defer s.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *telemetryStream) drop(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.clients, conn)
	s.mu.Unlock()
	conn.Close()
}

func (s *telemetryStream) broadcast(att estimator.Attitude) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.clients {
		if err := conn.WriteJSON(att); err != nil {
			conn.Close()
			delete(s.clients, conn)
		}
	}
}
