package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"alert-engine/internal/logging"
	"alert-engine/internal/models"
)

const maxConnectionsPerRecipient = 10

// WebSocketManager tracks open WebSocket connections per recipient.
type WebSocketManager struct {
	connections map[string]map[*websocket.Conn]bool // recipientID -> set of connections
	mutex       sync.Mutex
	logger      *logging.Logger
}

// NewWebSocketManager constructs an empty manager.
func NewWebSocketManager(logger *logging.Logger) *WebSocketManager {
	return &WebSocketManager{
		connections: make(map[string]map[*websocket.Conn]bool),
		logger:      logger,
	}
}

// AddConnection registers a WebSocket connection for a recipient.
func (m *WebSocketManager) AddConnection(recipientID string, conn *websocket.Conn) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if _, exists := m.connections[recipientID]; !exists {
		m.connections[recipientID] = make(map[*websocket.Conn]bool)
	}
	if len(m.connections[recipientID]) >= maxConnectionsPerRecipient {
		m.logger.Warnf("Max connections reached for recipient %s", recipientID)
		return
	}
	m.connections[recipientID][conn] = true
	m.logger.Infof("Added WebSocket connection for recipient %s (total: %d)", recipientID, len(m.connections[recipientID]))
}

// RemoveConnection unregisters a WebSocket connection for a recipient.
func (m *WebSocketManager) RemoveConnection(recipientID string, conn *websocket.Conn) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if conns, exists := m.connections[recipientID]; exists {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(m.connections, recipientID)
		}
		m.logger.Infof("Removed WebSocket connection for recipient %s (remaining: %d)", recipientID, len(conns))
	}
}

// SendToRecipient writes a message to every open connection of the recipient
// and reports how many connections received it.
func (m *WebSocketManager) SendToRecipient(recipientID string, message []byte) int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	sent := 0
	if conns, exists := m.connections[recipientID]; exists {
		for conn := range conns {
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				m.logger.Errorf("Failed to send WebSocket message to recipient %s: %v", recipientID, err)
				delete(conns, conn)
				continue
			}
			sent++
		}
		if len(conns) == 0 {
			delete(m.connections, recipientID)
		}
	}
	return sent
}

// InAppSender delivers the in_app channel over the WebSocket manager.
type InAppSender struct {
	manager *WebSocketManager
}

// NewInApp builds the in_app channel adapter.
func NewInApp(manager *WebSocketManager) *InAppSender {
	return &InAppSender{manager: manager}
}

func (s *InAppSender) Channel() models.Channel { return models.ChannelInApp }

func (s *InAppSender) Send(_ context.Context, msg Message) error {
	payload := []byte(fmt.Sprintf("%s: %s", msg.Alert.Level, Body(msg.Alert)))
	if s.manager.SendToRecipient(msg.Recipient.ID, payload) == 0 {
		// No open connection right now; the retry manager may catch the
		// recipient online later.
		return fmt.Errorf("recipient %s has no active in-app connection", msg.Recipient.ID)
	}
	return nil
}
