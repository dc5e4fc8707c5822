package ws

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"crm-notification-service/pkg/notifier"

	"github.com/gorilla/websocket"
)

// Connection wraps websocket.Conn with metadata
type Connection struct {
	Conn   *websocket.Conn
	UserID string

	lastSeen atomic.Int64 // unix nanos, written from the connection's reader goroutine
}

// Touch records activity on the connection. Safe to call from the reader
// goroutine without the manager lock.
func (c *Connection) Touch() {
	c.lastSeen.Store(time.Now().UnixNano())
}

// LastSeen reports the last observed activity on the connection.
func (c *Connection) LastSeen() time.Time {
	return time.Unix(0, c.lastSeen.Load())
}

// Manager is the injected connection registry for the in-app channel.
// Populated on connect, pruned on disconnect or write failure.
type Manager struct {
	mu          sync.RWMutex
	connections map[string]map[*Connection]struct{} // userID -> set of connections
}

func NewManager() *Manager {
	return &Manager{
		connections: make(map[string]map[*Connection]struct{}),
	}
}

// Add registers a connection for a user
func (m *Manager) Add(userID string, conn *websocket.Conn) *Connection {
	c := &Connection{Conn: conn, UserID: userID}
	c.Touch()

	m.mu.Lock()
	if _, ok := m.connections[userID]; !ok {
		m.connections[userID] = make(map[*Connection]struct{})
	}
	m.connections[userID][c] = struct{}{}
	total := len(m.connections[userID])
	m.mu.Unlock()

	log.Printf("WS connected: %s (total=%d)", userID, total)
	return c
}

// Remove disconnects and removes a connection
func (m *Manager) Remove(c *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if conns, ok := m.connections[c.UserID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(m.connections, c.UserID)
		}
	}
	_ = c.Conn.Close()
	log.Printf("WS disconnected: %s", c.UserID)
}

// ConnectionCount reports how many sessions a user currently has.
func (m *Manager) ConnectionCount(userID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections[userID])
}

// PushToUser sends the payload to all of a user's connected sessions.
// At-most-once, no acknowledgment.
func (m *Manager) PushToUser(userID string, p *notifier.Payload) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if conns, ok := m.connections[userID]; ok {
		for c := range conns {
			if err := c.Conn.WriteJSON(p); err != nil {
				log.Printf("failed WS send to %s: %v", userID, err)
				go m.Remove(c)
			}
		}
	}
}

// Broadcast sends to all users
func (m *Manager) Broadcast(message interface{}) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, conns := range m.connections {
		for c := range conns {
			if err := c.Conn.WriteJSON(message); err != nil {
				log.Printf("failed WS broadcast: %v", err)
				go m.Remove(c)
			}
		}
	}
}

// Heartbeat pings all connections periodically to keep them alive
func (m *Manager) Heartbeat(interval time.Duration) {
	ticker := time.NewTicker(interval)
	for range ticker.C {
		m.mu.RLock()
		for _, conns := range m.connections {
			for c := range conns {
				if time.Since(c.LastSeen()) > 2*interval {
					go m.Remove(c)
					continue
				}
				_ = c.Conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(time.Second))
			}
		}
		m.mu.RUnlock()
	}
}
