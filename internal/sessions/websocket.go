package sessions

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"peerprep-matching/internal/storage"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// TODO: Implement proper origin checking for production
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// WSManager fans match lifecycle events out to connected browsers. Events
// travel over Redis pub/sub per user, so a socket is optional: clients that
// never connect still see every state change through check_state polling.
type WSManager struct {
	storage     *storage.Storage
	connections map[string]*wsConn // userID -> connection
	mu          sync.RWMutex
}

func NewWSManager(storage *storage.Storage) *WSManager {
	return &WSManager{
		storage:     storage,
		connections: make(map[string]*wsConn),
	}
}

// wsConn serializes writes to the underlying connection. The event forwarder
// and the ping loop both write, and gorilla/websocket allows only one
// concurrent writer.
type wsConn struct {
	*websocket.Conn
	writeMu sync.Mutex
}

func (c *wsConn) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.Conn.WriteJSON(v)
}

func (c *wsConn) ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.WriteMessage(websocket.PingMessage, nil)
}

type WSMessage struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// HandleMatchingSocket upgrades the connection and forwards the user's match
// events until either side disconnects.
func (wm *WSManager) HandleMatchingSocket(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		http.Error(w, "userID required", http.StatusBadRequest)
		return
	}

	raw, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WS] WebSocket upgrade failed for user %s: %v", userID, err)
		return
	}
	conn := &wsConn{Conn: raw}
	defer conn.Close()

	wm.mu.Lock()
	if existing, ok := wm.connections[userID]; ok {
		existing.Close()
	}
	wm.connections[userID] = conn
	total := len(wm.connections)
	wm.mu.Unlock()
	log.Printf("[WS] User %s connected, total connections: %d", userID, total)

	defer func() {
		wm.mu.Lock()
		if wm.connections[userID] == conn {
			delete(wm.connections, userID)
		}
		wm.mu.Unlock()
		log.Printf("[WS] User %s disconnected", userID)
	}()

	pubsub := wm.storage.Redis.SubscribeToUserEvents(r.Context(), userID)
	defer pubsub.Close()

	go wm.forwardEvents(userID, pubsub, conn)
	wm.keepAlive(userID, conn)
}

func (wm *WSManager) forwardEvents(userID string, pubsub *storage.RedisSubscriber, conn *wsConn) {
	for {
		msg, err := pubsub.ReceiveMessage(context.Background())
		if err != nil {
			log.Printf("[WS] Pub/sub receive ended for user %s: %v", userID, err)
			return
		}

		var payload struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
			log.Printf("[WS] Malformed event for user %s: %v", userID, err)
			continue
		}

		wsMsg := WSMessage{
			Type:      payload.Type,
			Data:      json.RawMessage(msg.Payload),
			Timestamp: time.Now().UTC(),
		}
		if err := conn.writeJSON(wsMsg); err != nil {
			log.Printf("[WS] Failed to forward %s event to user %s: %v", payload.Type, userID, err)
			return
		}
	}
}

func (wm *WSManager) keepAlive(userID string, conn *wsConn) {
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("[WS] Unexpected close for user %s: %v", userID, err)
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := conn.ping(); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// ConnectedUsers returns the ids of users with an open socket.
func (wm *WSManager) ConnectedUsers() []string {
	wm.mu.RLock()
	defer wm.mu.RUnlock()

	users := make([]string, 0, len(wm.connections))
	for userID := range wm.connections {
		users = append(users, userID)
	}
	return users
}
