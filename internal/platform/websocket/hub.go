// Package websocket pushes live queue boards to connected browsers. Clients
// join a topic when they connect and receive each payload published to it.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 64
)

// Event is the envelope passed between publishers, the hub and the redis
// bridge. Browsers only receive Data.
type Event struct {
	Type      string          `json:"type"`
	Topic     string          `json:"topic"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
	Origin    string          `json:"origin,omitempty"`
}

// NewEvent marshals payload into an Event for topic.
func NewEvent(topic, typ string, payload interface{}) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: typ, Topic: topic, Timestamp: time.Now().UTC(), Data: data}, nil
}

// EventPublisher is implemented by Hub and RedisBridge.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// Client is one browser connection.
type Client struct {
	ID     string
	UserID string
	Topic  string
	Send   chan []byte
}

// Hub tracks connected clients by topic.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
	logger  zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		logger:  logger.With().Str("component", "websocket").Logger(),
	}
}

// Register subscribes client to its topic.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.Topic] == nil {
		h.clients[client.Topic] = make(map[*Client]struct{})
	}
	h.clients[client.Topic][client] = struct{}{}
}

// Unregister removes client and closes its Send channel. Calling it twice is
// a no-op.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subscribers, ok := h.clients[client.Topic]
	if !ok {
		return
	}
	if _, ok := subscribers[client]; !ok {
		return
	}
	delete(subscribers, client)
	if len(subscribers) == 0 {
		delete(h.clients, client.Topic)
	}
	close(client.Send)
}

// Broadcast delivers the event payload to every client on its topic. Slow
// clients whose buffer is full miss the update.
func (h *Hub) Broadcast(event Event) {
	if len(event.Data) == 0 {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[event.Topic] {
		select {
		case client.Send <- event.Data:
		default:
			h.logger.Warn().Str("client_id", client.ID).Str("topic", event.Topic).Msg("send buffer full, dropping update")
		}
	}
}

// Publish implements EventPublisher for a single instance.
func (h *Hub) Publish(_ context.Context, event Event) error {
	h.Broadcast(event)
	return nil
}

// ClientCount returns the number of clients across all topics.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, subscribers := range h.clients {
		n += len(subscribers)
	}
	return n
}

// TopicCount returns the number of clients on topic.
func (h *Hub) TopicCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[topic])
}

var upgrader = gorillawebsocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// HandlerConfig configures a WebSocketHandler.
type HandlerConfig struct {
	// Topic every connection on this endpoint joins.
	Topic string
	// Authenticate resolves the ?token= query parameter to a user id. Nil
	// accepts anonymous connections.
	Authenticate func(token string) (string, error)
	// Initial, when set, produces the first frame sent after connecting.
	Initial func(ctx context.Context) (interface{}, error)
}

// WebSocketHandler upgrades HTTP requests and pumps hub messages to them.
type WebSocketHandler struct {
	hub    *Hub
	cfg    HandlerConfig
	wg     sync.WaitGroup
	logger zerolog.Logger
}

func NewWebSocketHandler(hub *Hub, cfg HandlerConfig) *WebSocketHandler {
	return &WebSocketHandler{hub: hub, cfg: cfg, logger: hub.logger}
}

// HandleConnect authenticates, upgrades and registers the connection.
func (wsh *WebSocketHandler) HandleConnect(c echo.Context) error {
	var userID string
	if wsh.cfg.Authenticate != nil {
		token := c.QueryParam("token")
		if token == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing token")
		}
		id, err := wsh.cfg.Authenticate(token)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
		}
		userID = id
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client := &Client{
		ID:     uuid.New().String(),
		UserID: userID,
		Topic:  wsh.cfg.Topic,
		Send:   make(chan []byte, sendBuffer),
	}

	if wsh.cfg.Initial != nil {
		payload, err := wsh.cfg.Initial(c.Request().Context())
		if err != nil {
			wsh.logger.Error().Err(err).Msg("build initial frame")
		} else if data, err := json.Marshal(payload); err == nil {
			client.Send <- data
		}
	}

	wsh.hub.Register(client)
	wsh.logger.Info().Str("client_id", client.ID).Str("user_id", userID).Str("topic", client.Topic).Msg("client connected")

	wsh.wg.Add(2)
	go wsh.writePump(client, ws)
	go wsh.readPump(client, ws)

	return nil
}

// Wait blocks until every connection's pumps have exited.
func (wsh *WebSocketHandler) Wait() {
	wsh.wg.Wait()
}

// readPump drains inbound frames so pongs and close frames are processed.
func (wsh *WebSocketHandler) readPump(client *Client, ws *gorillawebsocket.Conn) {
	defer func() {
		wsh.hub.Unregister(client)
		ws.Close()
		wsh.logger.Info().Str("client_id", client.ID).Msg("client disconnected")
		wsh.wg.Done()
	}()

	ws.SetReadLimit(4096)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (wsh *WebSocketHandler) writePump(client *Client, ws *gorillawebsocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
		wsh.wg.Done()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = ws.WriteMessage(gorillawebsocket.CloseMessage, []byte{})
				return
			}
			if err := ws.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(gorillawebsocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
