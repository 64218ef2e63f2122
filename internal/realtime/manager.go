// Package realtime serves chat over WebSocket connections.
package realtime

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// Conn is the part of a WebSocket connection the manager needs.
type Conn interface {
	Close(code websocket.StatusCode, reason string) error
}

// ConnectionManager tracks open chat sockets per owner (identity or client)
// and conversation. A newer socket for the same conversation replaces the
// older one.
type ConnectionManager struct {
	mu     sync.RWMutex
	active map[string]map[string]Conn
}

// NewConnectionManager creates a new connection manager.
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		active: make(map[string]map[string]Conn),
	}
}

// GetActive returns the active connection for an owner and conversation.
func (m *ConnectionManager) GetActive(owner, sessionID string) Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if sessions, ok := m.active[owner]; ok {
		return sessions[sessionID]
	}
	return nil
}

// Register adds a connection, closing any connection it replaces. The close
// handshake runs after the lock is released.
func (m *ConnectionManager) Register(owner, sessionID string, conn Conn) {
	m.mu.Lock()
	if _, exists := m.active[owner]; !exists {
		m.active[owner] = make(map[string]Conn)
	}
	existing, replaced := m.active[owner][sessionID]
	m.active[owner][sessionID] = conn
	m.mu.Unlock()

	if replaced && existing != conn {
		_ = existing.Close(websocket.StatusNormalClosure, "conversation replaced")
	}
	slog.Info("Chat socket registered", "owner", owner, "session_id", sessionID)
}

// Unregister removes a connection if it is still the current one.
func (m *ConnectionManager) Unregister(owner, sessionID string, conn Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sessions, ok := m.active[owner]; ok {
		if current, exists := sessions[sessionID]; exists && current == conn {
			delete(sessions, sessionID)
			if len(sessions) == 0 {
				delete(m.active, owner)
			}
			slog.Info("Chat socket unregistered", "owner", owner, "session_id", sessionID)
		}
	}
}

// CloseOwner terminates every socket of an owner, e.g. after sign-out.
func (m *ConnectionManager) CloseOwner(owner string) {
	m.mu.Lock()
	sessions, ok := m.active[owner]
	delete(m.active, owner)
	m.mu.Unlock()

	if !ok {
		return
	}
	for sid, conn := range sessions {
		_ = conn.Close(websocket.StatusNormalClosure, "signed out")
		slog.Info("Chat socket closed", "owner", owner, "session_id", sid)
	}
}

// Count returns the number of open sockets.
func (m *ConnectionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, sessions := range m.active {
		n += len(sessions)
	}
	return n
}
