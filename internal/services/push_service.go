package services

import (
	"encoding/json"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// StatusUpdate is the frame pushed to connected wallets when one of their
// requests changes state.
type StatusUpdate struct {
	Type      string      `json:"type"` // "mint_request" or "redeem_request"
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

type pushConn struct {
	conn *websocket.Conn
	mu   sync.Mutex // websocket writes are not concurrency-safe
}

func (c *pushConn) writeJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteJSON(v)
}

// PushService fans request status changes out to websocket subscribers,
// keyed by lowercase EVM address. A wallet may hold several connections
// (multiple tabs); a failed write drops only that connection.
type PushService struct {
	mu          sync.RWMutex
	connections map[string][]*pushConn
}

// NewPushService creates a new PushService instance
func NewPushService() *PushService {
	return &PushService{
		connections: make(map[string][]*pushConn),
	}
}

// Register adds a websocket connection for an address and returns the
// unregister function the handler defers.
func (s *PushService) Register(evmAddress string, conn *websocket.Conn) func() {
	key := strings.ToLower(evmAddress)
	pc := &pushConn{conn: conn}

	s.mu.Lock()
	s.connections[key] = append(s.connections[key], pc)
	count := len(s.connections[key])
	s.mu.Unlock()

	log.Printf("📡 [Push] Connection registered for %s (%d active)", key, count)

	return func() {
		s.remove(key, pc)
	}
}

func (s *PushService) remove(key string, pc *pushConn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conns := s.connections[key]
	for i, c := range conns {
		if c == pc {
			s.connections[key] = append(conns[:i], conns[i+1:]...)
			break
		}
	}
	if len(s.connections[key]) == 0 {
		delete(s.connections, key)
	}
}

// PushStatusUpdate sends a status frame to every connection of an address.
// Best-effort: the database record is the source of truth and clients
// re-fetch on reconnect, so delivery failures only close the dead socket.
func (s *PushService) PushStatusUpdate(evmAddress, kind string, payload interface{}) {
	key := strings.ToLower(evmAddress)

	s.mu.RLock()
	conns := make([]*pushConn, len(s.connections[key]))
	copy(conns, s.connections[key])
	s.mu.RUnlock()

	if len(conns) == 0 {
		return
	}

	update := &StatusUpdate{
		Type:      kind,
		Data:      payload,
		Timestamp: time.Now().UTC(),
	}

	for _, pc := range conns {
		if err := pc.writeJSON(update); err != nil {
			log.Printf("⚠️ [Push] Write to %s failed, dropping connection: %v", key, err)
			pc.conn.Close()
			s.remove(key, pc)
		}
	}
}

// ConnectionCount returns the number of active connections, for health output
func (s *PushService) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0
	for _, conns := range s.connections {
		total += len(conns)
	}
	return total
}

// CloseAll shuts down every connection, used on server shutdown
func (s *PushService) CloseAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, conns := range s.connections {
		for _, pc := range conns {
			data, _ := json.Marshal(map[string]string{"type": "server_shutdown"})
			pc.mu.Lock()
			pc.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, string(data)))
			pc.conn.Close()
			pc.mu.Unlock()
		}
		delete(s.connections, key)
	}
}
