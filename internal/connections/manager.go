package connections

import (
	"sort"
	"sync"

	"github.com/deepgram/chorus/internal/config"
	"github.com/gorilla/websocket"
)

// Manager tracks the live session stream connections and the keepalive
// settings they are dialed with.
type Manager struct {
	mu          sync.RWMutex
	connections sync.Map // *websocket.Conn -> session id
	timeouts    config.StreamTimeouts
}

// NewManager creates a new connection manager with the specified timeouts
func NewManager(timeouts config.StreamTimeouts) *Manager {
	return &Manager{
		timeouts: timeouts,
	}
}

// AddConnection registers a stream connection for sessionID
func (m *Manager) AddConnection(sessionID string, conn *websocket.Conn) {
	m.connections.Store(conn, sessionID)
}

// RemoveConnection removes a stream connection
func (m *Manager) RemoveConnection(conn *websocket.Conn) {
	m.connections.Delete(conn)
}

// GetConnectionCount returns the current number of active connections
func (m *Manager) GetConnectionCount() int {
	count := 0
	m.connections.Range(func(key, value interface{}) bool {
		count++
		return true
	})
	return count
}

// hasConnection checks if a specific connection exists
func (m *Manager) hasConnection(conn *websocket.Conn) bool {
	_, exists := m.connections.Load(conn)
	return exists
}

// Sessions returns the sorted ids of sessions with a live stream
func (m *Manager) Sessions() []string {
	seen := make(map[string]struct{})
	m.connections.Range(func(key, value interface{}) bool {
		seen[value.(string)] = struct{}{}
		return true
	})

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// GetTimeouts returns the current timeout configuration
func (m *Manager) GetTimeouts() config.StreamTimeouts {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.timeouts
}

// setTimeouts updates the timeout configuration for connections dialed afterwards
func (m *Manager) setTimeouts(timeouts config.StreamTimeouts) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeouts = timeouts
}
