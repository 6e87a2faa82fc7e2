// Package feed pushes live console updates to dashboard clients over
// WebSockets. Clients subscribe to topics; record events and rendered
// analytics snapshots are broadcast to their subscribers. The hub retains
// the latest snapshot per view so a late-joining dashboard paints
// immediately instead of waiting for the next refresh cycle.
package feed

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

	"github.com/clinsight/clinsight/internal/platform/auth"
)

const (
	// TopicRecords carries record.created events from the ingestion gateway.
	TopicRecords = "records"
	// TopicAnalytics carries the clinician dashboard snapshots.
	TopicAnalytics = "analytics"
	// TopicAdminAnalytics carries the admin-only metric views (ROC,
	// confusion). Subscription is subject to the hub's topic gate.
	TopicAdminAnalytics = "analytics.admin"
)

// Event is a single message pushed to subscribed clients.
type Event struct {
	Type      string          `json:"type"`
	Topic     string          `json:"topic"`
	View      string          `json:"view,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ClientMessage is an inbound subscription command from a client.
type ClientMessage struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

// Conn abstracts a WebSocket connection for testability.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Client is a single connected dashboard.
type Client struct {
	ID     string
	UserID string
	Topics []string
	Send   chan []byte
	conn   Conn
}

// TopicGate authorizes a subscription. A nil gate allows every topic; a
// gate that cannot decide must return false.
type TopicGate func(userID, topic string) bool

type retainedSnapshot struct {
	topic string
	data  []byte
}

// Hub tracks connected clients, their topic subscriptions, and the retained
// snapshot per view. All operations are safe for concurrent use.
type Hub struct {
	mu            sync.RWMutex
	clients       map[string]map[*Client]struct{} // topic -> subscribers
	all           map[*Client]struct{}
	retained      map[string]retainedSnapshot // view -> last rendered snapshot
	gate          TopicGate
	subscribeHook func(topic string)
	logger        zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients:  make(map[string]map[*Client]struct{}),
		all:      make(map[*Client]struct{}),
		retained: make(map[string]retainedSnapshot),
		logger:   logger,
	}
}

// SetTopicGate installs the subscription authorizer. Set before serving
// connections.
func (h *Hub) SetTopicGate(gate TopicGate) { h.gate = gate }

// SetSubscribeHook registers a callback fired whenever a topic gains its
// first subscriber. Set before serving connections.
func (h *Hub) SetSubscribeHook(hook func(topic string)) { h.subscribeHook = hook }

func (h *Hub) allowed(client *Client, topic string) bool {
	if h.gate == nil {
		return true
	}
	return h.gate(client.UserID, topic)
}

// Register adds a client and subscribes it to its initial topics, subject
// to the topic gate.
func (h *Hub) Register(client *Client) {
	initial := client.Topics
	client.Topics = nil

	h.mu.Lock()
	h.all[client] = struct{}{}
	h.mu.Unlock()

	if len(initial) > 0 {
		h.Subscribe(client, initial)
	}
}

// Unregister removes a client from all subscriptions and closes its Send
// channel.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[client]; !ok {
		return
	}

	for _, topic := range client.Topics {
		if subscribers, ok := h.clients[topic]; ok {
			delete(subscribers, client)
			if len(subscribers) == 0 {
				delete(h.clients, topic)
			}
		}
	}

	delete(h.all, client)
	close(client.Send)
}

// Subscribe adds topics to a registered client. Gated topics the client is
// not authorized for are silently dropped. Subscribing replays the topic's
// retained snapshots so the client does not start blank.
func (h *Hub) Subscribe(client *Client, topics []string) {
	var firstSubscriber []string

	h.mu.Lock()
	for _, topic := range topics {
		if !h.allowed(client, topic) {
			h.logger.Warn().Str("client", client.ID).Str("topic", topic).
				Msg("feed: subscription denied")
			continue
		}

		if h.clients[topic] == nil {
			h.clients[topic] = make(map[*Client]struct{})
		}
		if len(h.clients[topic]) == 0 {
			firstSubscriber = append(firstSubscriber, topic)
		}
		h.clients[topic][client] = struct{}{}
		client.Topics = append(client.Topics, topic)

		for _, snap := range h.retained {
			if snap.topic != topic {
				continue
			}
			select {
			case client.Send <- snap.data:
			default:
			}
		}
	}
	hook := h.subscribeHook
	h.mu.Unlock()

	if hook != nil {
		for _, topic := range firstSubscriber {
			hook(topic)
		}
	}
}

// Unsubscribe removes topics from a registered client.
func (h *Hub) Unsubscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	removeSet := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		removeSet[t] = struct{}{}
	}

	for _, topic := range topics {
		if subscribers, ok := h.clients[topic]; ok {
			delete(subscribers, client)
			if len(subscribers) == 0 {
				delete(h.clients, topic)
			}
		}
	}

	remaining := make([]string, 0, len(client.Topics))
	for _, t := range client.Topics {
		if _, rm := removeSet[t]; !rm {
			remaining = append(remaining, t)
		}
	}
	client.Topics = remaining
}

// ProcessMessage dispatches an inbound client command.
func (h *Hub) ProcessMessage(client *Client, msg ClientMessage) {
	switch msg.Action {
	case "subscribe":
		h.Subscribe(client, msg.Topics)
	case "unsubscribe":
		h.Unsubscribe(client, msg.Topics)
	}
}

// Broadcast sends an event to all clients subscribed to the given topic.
func (h *Hub) Broadcast(topic string, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Msg("feed: failed to marshal event")
		return
	}
	h.broadcastRaw(topic, data)
}

func (h *Hub) broadcastRaw(topic string, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	subscribers, ok := h.clients[topic]
	if !ok {
		return
	}
	for client := range subscribers {
		select {
		case client.Send <- data:
		default:
			// Client buffer full; skip to avoid blocking.
		}
	}
}

// Publish broadcasts the event to subscribers of its topic.
func (h *Hub) Publish(_ context.Context, event Event) error {
	h.Broadcast(event.Topic, event)
	return nil
}

// RetainSnapshot stores the rendered snapshot for a view and broadcasts it.
// Returns the marshaled event so the caller can track what was retained.
func (h *Hub) RetainSnapshot(view string, event Event) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	h.retained[view] = retainedSnapshot{topic: event.Topic, data: data}
	h.mu.Unlock()

	h.broadcastRaw(event.Topic, data)
	return data, nil
}

// DropSnapshot removes the retained snapshot for a view, but only if it is
// still the exact snapshot the caller rendered. A handle released after a
// newer render must not destroy the newer snapshot.
func (h *Hub) DropSnapshot(view string, rendered []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if current, ok := h.retained[view]; ok && string(current.data) == string(rendered) {
		delete(h.retained, view)
	}
}

// Snapshot returns the retained snapshot for a view, if any.
func (h *Hub) Snapshot(view string) ([]byte, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	snap, ok := h.retained[view]
	return snap.data, ok
}

// ClientCount returns the total number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

// TopicCount returns the number of clients subscribed to a topic.
func (h *Hub) TopicCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[topic])
}

// ---------------------------------------------------------------------------
// Echo handler
// ---------------------------------------------------------------------------

var upgrader = gorillawebsocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins; tighten in production.
	},
}

// Handler upgrades HTTP connections and routes client messages to the hub.
type Handler struct {
	hub *Hub
}

func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

func (wh *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/ws", wh.HandleConnect)
}

func (wh *Handler) HandleConnect(c echo.Context) error {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client := &Client{
		ID:     uuid.New().String(),
		UserID: auth.UserIDFromContext(c.Request().Context()),
		Topics: []string{},
		Send:   make(chan []byte, 256),
		conn:   &gorillaConnAdapter{ws},
	}

	wh.hub.Register(client)

	go wh.writePump(client, ws)
	go wh.readPump(client, ws)

	return nil
}

func (wh *Handler) readPump(client *Client, ws *gorillawebsocket.Conn) {
	defer func() {
		wh.hub.Unregister(client)
		ws.Close()
	}()

	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue // Ignore malformed messages.
		}

		wh.hub.ProcessMessage(client, msg)
	}
}

func (wh *Handler) writePump(client *Client, ws *gorillawebsocket.Conn) {
	defer ws.Close()

	for message := range client.Send {
		if err := ws.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
			break
		}
	}
}

type gorillaConnAdapter struct {
	conn *gorillawebsocket.Conn
}

func (a *gorillaConnAdapter) ReadMessage() (int, []byte, error) {
	return a.conn.ReadMessage()
}

func (a *gorillaConnAdapter) WriteMessage(messageType int, data []byte) error {
	return a.conn.WriteMessage(messageType, data)
}

func (a *gorillaConnAdapter) Close() error {
	return a.conn.Close()
}
