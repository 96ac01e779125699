package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dukerupert/streakforge/internal/metrics"
)

// Message is a change notification for one user's data. Clients treat it as
// a signal to refetch; Seq increases by one per message for that user.
type Message struct {
	Type   string         `json:"type"`
	Entity string         `json:"entity"`
	Action string         `json:"action"`
	ID     string         `json:"id,omitempty"`
	UserID string         `json:"user_id"`
	Seq    uint64         `json:"seq"`
	Extra  map[string]any `json:"extra,omitempty"`
}

// NewMessage creates a Message with the Type field derived from entity and action.
func NewMessage(entity, action, id string, extra map[string]any) Message {
	return Message{
		Type:   fmt.Sprintf("%s_%s", entity, action),
		Entity: entity,
		Action: action,
		ID:     id,
		Extra:  extra,
	}
}

// Hub routes messages to the websocket clients and in-process subscribers of
// the user they concern.
type Hub struct {
	mu        sync.RWMutex
	clients   map[string]map[*Client]struct{}
	subs      map[string]map[uint64]func(Message)
	seq       map[string]uint64
	nextSubID uint64
	logger    *slog.Logger
}

// NewHub creates a new Hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		subs:    make(map[string]map[uint64]func(Message)),
		seq:     make(map[string]uint64),
		logger:  logger,
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	set, ok := h.clients[c.userID]
	if !ok {
		set = make(map[*Client]struct{})
		h.clients[c.userID] = set
	}
	set[c] = struct{}{}
	h.mu.Unlock()
	metrics.WSClients.Inc()
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set := h.clients[c.userID]
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.userID)
	}
	close(c.send)
	metrics.WSClients.Dec()
}

// Subscribe calls fn for every message published for userID, or for every
// user when userID is empty. fn runs on the publisher's goroutine and must
// not block. The returned func cancels the subscription.
func (h *Hub) Subscribe(userID string, fn func(Message)) (cancel func()) {
	h.mu.Lock()
	h.nextSubID++
	id := h.nextSubID
	set, ok := h.subs[userID]
	if !ok {
		set = make(map[uint64]func(Message))
		h.subs[userID] = set
	}
	set[id] = fn
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[userID], id)
			if len(h.subs[userID]) == 0 {
				delete(h.subs, userID)
			}
			h.mu.Unlock()
		})
	}
}

// Publish stamps msg with userID and the next sequence number, then delivers
// it. Clients whose buffer is full miss the message. Subscribers are called
// after the hub lock is released.
func (h *Hub) Publish(userID string, msg Message) {
	h.mu.Lock()
	h.seq[userID]++
	msg.UserID = userID
	msg.Seq = h.seq[userID]

	data, err := json.Marshal(msg)
	if err != nil {
		h.mu.Unlock()
		h.logger.Error("marshal publish", "error", err)
		return
	}
	for c := range h.clients[userID] {
		select {
		case c.send <- data:
		default:
			h.logger.Debug("client buffer full, dropping message", "user_id", userID, "type", msg.Type)
		}
	}

	var fns []func(Message)
	for _, fn := range h.subs[userID] {
		fns = append(fns, fn)
	}
	if userID != "" {
		for _, fn := range h.subs[""] {
			fns = append(fns, fn)
		}
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(msg)
	}
}

// CloseSession disconnects every client opened under the given session.
func (h *Hub) CloseSession(sessionID int64) {
	if sessionID == 0 {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, set := range h.clients {
		for c := range set {
			if c.sessionID == sessionID && c.cancel != nil {
				c.cancel()
			}
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.clients {
		n += len(set)
	}
	return n
}

// UserClientCount returns the number of connected clients for one user.
func (h *Hub) UserClientCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}
