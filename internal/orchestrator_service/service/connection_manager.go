package service

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ConnectionManager manages the WebSocket connection of each session.
// It is the concrete push channel: delivery is at-most-once and a send to a
// session without a live connection is simply reported as dropped.
type ConnectionManager struct {
	connections  map[string]*websocket.Conn
	writeTimeout time.Duration
	mu           sync.Mutex
}

// NewConnectionManager creates a new ConnectionManager. writeTimeout bounds
// each push attempt; zero means no deadline.
func NewConnectionManager(writeTimeout time.Duration) *ConnectionManager {
	return &ConnectionManager{
		connections:  make(map[string]*websocket.Conn),
		writeTimeout: writeTimeout,
	}
}

// Add registers a new connection for a session, replacing any previous one.
func (m *ConnectionManager) Add(sessionID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.connections[sessionID]; ok {
		old.Close()
	}
	m.connections[sessionID] = conn
}

// Remove drops the connection for a session.
func (m *ConnectionManager) Remove(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if conn, ok := m.connections[sessionID]; ok {
		conn.Close()
		delete(m.connections, sessionID)
	}
}

// SendMessage sends a text message to a session. It returns false when the
// session has no connection or the write fails; a failed connection is
// removed so later sends fail fast.
func (m *ConnectionManager) SendMessage(sessionID string, message []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.connections[sessionID]
	if !ok {
		return false
	}

	if m.writeTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(m.writeTimeout))
	}
	if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
		conn.Close()
		delete(m.connections, sessionID)
		return false
	}
	return true
}
