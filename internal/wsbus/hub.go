// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

// Package wsbus implements the client registry and room/event fan-out
// used by the WebSocket egress and ingress (spec §4.6/§6), grounded on
// the session/room bookkeeping pattern in
// petervdpas-goop2/internal/call/manager.go and on
// original_source/Server/src/egress/websocket.rs for the event
// envelope semantics.
package wsbus

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
)

// Envelope is the `{event, payload}` JSON frame exchanged with every
// client, matching the socket.io-style event names enumerated in spec
// §6.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Client wraps one accepted WebSocket connection with a serializing
// write mutex, since *websocket.Conn forbids concurrent writers.
type Client struct {
	ID   string
	conn *websocket.Conn
	mu   sync.Mutex
	room string
}

// NewClient wraps conn for id, initially unassigned to any room.
func NewClient(id string, conn *websocket.Conn) *Client {
	return &Client{ID: id, conn: conn}
}

// Send marshals payload under event and writes it as one text frame.
func (c *Client) Send(event string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	env := Envelope{Event: event, Payload: body}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(env)
}

// ReadJSON blocks for the next text frame and unmarshals it into v.
// Reads are not mutex-guarded since gorilla/websocket permits exactly
// one reader goroutine per connection.
func (c *Client) ReadJSON(v any) error {
	return c.conn.ReadJSON(v)
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Hub tracks every connected client and its room (stream_id)
// assignment, broadcasting frames to every client subscribed to a
// given room.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	rooms   map[string]map[string]struct{} // room -> set of client IDs
	log     *slog.Logger
}

// New returns an empty Hub.
func New(log *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		rooms:   make(map[string]map[string]struct{}),
		log:     log,
	}
}

// Register adds c to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.ID] = c
}

// Unregister removes c from the hub and every room it joined.
func (h *Hub) Unregister(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[clientID]; ok {
		if c.room != "" {
			if members, ok := h.rooms[c.room]; ok {
				delete(members, clientID)
				if len(members) == 0 {
					delete(h.rooms, c.room)
				}
			}
		}
		delete(h.clients, clientID)
	}
}

// Join subscribes clientID to room, leaving any previously joined room.
func (h *Hub) Join(clientID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[clientID]
	if !ok {
		return
	}
	if c.room != "" {
		if members, ok := h.rooms[c.room]; ok {
			delete(members, clientID)
		}
	}
	c.room = room
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[string]struct{})
	}
	h.rooms[room][clientID] = struct{}{}
}

// Broadcast sends event/payload to every client currently in room.
func (h *Hub) Broadcast(room, event string, payload any) {
	h.mu.RLock()
	members := h.rooms[room]
	targets := make([]*Client, 0, len(members))
	for id := range members {
		if c, ok := h.clients[id]; ok {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if err := c.Send(event, payload); err != nil {
			h.log.Warn("websocket send failed", "client", c.ID, "room", room, "err", err)
		}
	}
}

// BroadcastAll sends event/payload to every connected client regardless
// of room, used for global frame fan-out when no per-stream room
// filtering is configured.
func (h *Hub) BroadcastAll(event string, payload any) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if err := c.Send(event, payload); err != nil {
			h.log.Warn("websocket broadcast failed", "client", c.ID, "err", err)
		}
	}
}

// SendTo delivers event/payload to exactly one client, used for
// point-to-point WebRTC signaling (spec §6 webrtc_answer/webrtc_ice_candidate).
func (h *Hub) SendTo(clientID, event string, payload any) error {
	h.mu.RLock()
	c, ok := h.clients[clientID]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("wsbus: client %s not connected", clientID)
	}
	return c.Send(event, payload)
}

// ClientCount returns the number of currently registered clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
