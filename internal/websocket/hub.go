package websocket

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"sync"

	"github.com/johndosdos/huddle/internal/model"
)

type Registration struct {
	Client *Client
	Done   chan struct{}
}

// Hub owns the set of live connections and their room subscriptions. It
// implements chat.Transport.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	rooms   map[string]map[string]*Client

	Register   chan Registration
	Unregister chan *Client
	done       chan struct{}
}

// NewHub returns a new instance of Hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		rooms:      make(map[string]map[string]*Client),
		Register:   make(chan Registration),
		Unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run manages client registration until ctx is cancelled, then closes every
// remaining connection.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case reg := <-h.Register:
			h.mu.Lock()
			h.clients[reg.Client.ID] = reg.Client
			h.mu.Unlock()
			reg.Client.hub = h
			close(reg.Done)

		case client := <-h.Unregister:
			h.remove(client)

		case <-ctx.Done():
			log.Printf("context cancelled: %v", ctx.Err())
			h.mu.Lock()
			for id, client := range h.clients {
				delete(h.clients, id)
				close(client.send)
			}
			h.rooms = make(map[string]map[string]*Client)
			h.mu.Unlock()
			return
		}
	}
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Len returns the number of live connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	delete(h.clients, client.ID)
	for room, members := range h.rooms {
		delete(members, client.ID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	close(client.send)
}

// Emit pushes event to a single connection.
func (h *Hub) Emit(connID, event string, payload any) {
	env, ok := envelope(event, payload)
	if !ok {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if client, ok := h.clients[connID]; ok {
		h.deliver(client, env)
	}
}

// EmitRoom pushes event to every connection subscribed to room except
// exceptConnID.
func (h *Hub) EmitRoom(room, event string, payload any, exceptConnID string) {
	env, ok := envelope(event, payload)
	if !ok {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, client := range h.rooms[room] {
		if id == exceptConnID {
			continue
		}
		h.deliver(client, env)
	}
}

// EmitAll pushes event to every live connection.
func (h *Hub) EmitAll(event string, payload any) {
	env, ok := envelope(event, payload)
	if !ok {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		h.deliver(client, env)
	}
}

// Subscribe adds connID to room. Unknown connections are ignored.
func (h *Hub) Subscribe(connID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[connID]
	if !ok {
		return
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[string]*Client)
		h.rooms[room] = members
	}
	members[connID] = client
}

// Unsubscribe removes connID from room.
func (h *Hub) Unsubscribe(connID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// deliver must be called with h.mu held. A slow client misses the push
// rather than stalling the sender.
func (h *Hub) deliver(client *Client, env model.Envelope) {
	select {
	case client.send <- env:
	default:
		slog.Warn("skipping payload - channel full or client slow",
			"conn_id", client.ID,
			"event", env.Event)
	}
}

func envelope(event string, payload any) (model.Envelope, bool) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("failed to encode payload",
			"event", event,
			"error", err)
		return model.Envelope{}, false
	}
	return model.Envelope{Event: event, Data: data}, true
}
