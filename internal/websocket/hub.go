// Brewline - Coffee Chat Marketplace Messaging Engine
// Copyright 2026 Brewline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/brewline/brewline

// Package websocket implements the realtime fan-out layer: one authenticated
// connection per user, thread-scoped rooms, and best-effort delivery of
// committed messaging events. The socket path never persists anything on its
// own; durable writes always go through the coordinator, which notifies the
// hub after commit.
package websocket

import (
	"context"
	"sort"
	"sync"

	"github.com/brewline/brewline/internal/config"
	"github.com/brewline/brewline/internal/logging"
	"github.com/brewline/brewline/internal/metrics"
	"github.com/brewline/brewline/internal/models"
)

// Outbound event types.
const (
	EventNewMessage    = "new-message"
	EventThreadRead    = "thread-read"
	EventTyping        = "user-typing"
	EventTypingStopped = "user-typing-stopped"
	EventThreadJoined  = "thread-joined"
	EventPong          = "pong"
	EventError         = "error"
)

// Inbound event types.
const (
	EventJoinThread  = "join-thread"
	EventLeaveThread = "leave-thread"
	EventStartTyping = "typing"
	EventStopTyping  = "typing-stopped"
	EventMarkRead    = "mark-read"
	EventPing        = "ping"
)

// Event is the websocket wire envelope, both directions.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// ThreadEventData is the payload of room-scoped presence events.
type ThreadEventData struct {
	ThreadID string `json:"threadId"`
	UserID   string `json:"userId,omitempty"`
}

// roomEvent is an event addressed to a thread room. exclude suppresses echo
// to the originating client (typing indicators).
type roomEvent struct {
	threadID string
	event    Event
	exclude  uint64
}

// Hub maintains the set of authenticated clients and their room memberships.
//
// One connection slot per user: a second connection for the same user id
// supersedes the first, which is closed. Room joins are idempotent.
type Hub struct {
	cfg config.WebsocketConfig

	clients map[string]*Client              // by user id, last connection wins
	rooms   map[string]map[*Client]struct{} // by thread id

	broadcast chan roomEvent

	Register   chan *Client
	Unregister chan *Client

	mu sync.RWMutex
}

// NewHub creates a hub with the given websocket tuning.
func NewHub(cfg config.WebsocketConfig) *Hub {
	return &Hub{
		cfg:        cfg,
		clients:    make(map[string]*Client),
		rooms:      make(map[string]map[*Client]struct{}),
		broadcast:  make(chan roomEvent, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
	}
}

// RunWithContext runs the hub event loop until the context is canceled,
// then closes every client and returns ctx.Err(). Designed for supervised
// operation.
//
// Selection is priority ordered so behavior stays predictable when multiple
// channels are ready: shutdown first, then client lifecycle, then broadcasts.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		// Priority 1: shutdown (non-blocking check).
		select {
		case <-ctx.Done():
			h.shutdown()
			return ctx.Err()
		default:
		}

		// Priority 2: lifecycle events (non-blocking check).
		select {
		case client := <-h.Register:
			h.register(client)
			continue
		case client := <-h.Unregister:
			h.unregister(client)
			continue
		default:
		}

		// Priority 3: broadcasts, or block for whatever comes first.
		select {
		case <-ctx.Done():
			h.shutdown()
			return ctx.Err()
		case client := <-h.Register:
			h.register(client)
		case client := <-h.Unregister:
			h.unregister(client)
		case ev := <-h.broadcast:
			h.deliverToRoom(ev)
		}
	}
}

func (*Hub) String() string { return "websocket-hub" }

// register installs the client as its user's single connection slot. An
// existing connection for the same user is superseded and closed.
func (h *Hub) register(client *Client) {
	h.mu.Lock()
	if prev, ok := h.clients[client.userID]; ok {
		h.dropLocked(prev)
		logging.Info().Str("user_id", client.userID).Msg("websocket connection superseded")
	}
	h.clients[client.userID] = client
	total := len(h.clients)
	h.mu.Unlock()

	metrics.WSConnections.Set(float64(total))
	logging.Info().
		Str("user_id", client.userID).
		Int("total_clients", total).
		Msg("websocket client connected")
}

// unregister removes the client if it still owns its user's slot. A client
// superseded by a newer connection was already dropped and must not evict
// its successor.
func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	if current, ok := h.clients[client.userID]; ok && current == client {
		h.dropLocked(client)
	}
	total := len(h.clients)
	h.mu.Unlock()

	metrics.WSConnections.Set(float64(total))
	logging.Info().
		Str("user_id", client.userID).
		Int("total_clients", total).
		Msg("websocket client disconnected")
}

// dropLocked removes a client from the slot map and every room, then closes
// its send channel. Caller holds h.mu.
func (h *Hub) dropLocked(client *Client) {
	if current, ok := h.clients[client.userID]; ok && current == client {
		delete(h.clients, client.userID)
	}
	for threadID, members := range h.rooms {
		if _, ok := members[client]; ok {
			delete(members, client)
			if len(members) == 0 {
				delete(h.rooms, threadID)
			}
		}
	}
	metrics.WSRoomMembers.Set(float64(h.roomMembersLocked()))
	client.closeSend()
}

func (h *Hub) roomMembersLocked() int {
	n := 0
	for _, members := range h.rooms {
		n += len(members)
	}
	return n
}

// join adds the client to a thread room. Idempotent: joining a room the
// client already belongs to changes nothing.
func (h *Hub) join(client *Client, threadID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[threadID]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[threadID] = members
	}
	if _, ok := members[client]; ok {
		return
	}
	members[client] = struct{}{}
	metrics.WSRoomMembers.Set(float64(h.roomMembersLocked()))
}

// leave removes the client from a thread room. Idempotent.
func (h *Hub) leave(client *Client, threadID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[threadID]
	if !ok {
		return
	}
	if _, ok := members[client]; !ok {
		return
	}
	delete(members, client)
	if len(members) == 0 {
		delete(h.rooms, threadID)
	}
	metrics.WSRoomMembers.Set(float64(h.roomMembersLocked()))
}

// RoomMembers returns the user ids currently joined to a thread room,
// sorted. Diagnostics only.
func (h *Hub) RoomMembers(threadID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var ids []string
	for client := range h.rooms[threadID] {
		ids = append(ids, client.userID)
	}
	sort.Strings(ids)
	return ids
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// deliverToRoom pushes an event to every room member in deterministic order.
// A member whose send buffer is full is dropped from the hub entirely; a
// client that slow has a dead or wedged connection.
func (h *Hub) deliverToRoom(ev roomEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members := h.rooms[ev.threadID]
	if len(members) == 0 {
		return
	}

	// Sort by client id so delivery order is reproducible.
	clients := make([]*Client, 0, len(members))
	for client := range members {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	var toDrop []*Client
	for _, client := range clients {
		if ev.exclude != 0 && client.id == ev.exclude {
			continue
		}
		if client.trySend(ev.event) {
			metrics.WSEventsDelivered.WithLabelValues(ev.event.Type).Inc()
		} else {
			metrics.WSEventsDropped.WithLabelValues(ev.event.Type).Inc()
			toDrop = append(toDrop, client)
		}
	}

	for _, client := range toDrop {
		logging.Warn().
			Str("user_id", client.userID).
			Str("event", ev.event.Type).
			Msg("send buffer full, dropping websocket client")
		h.dropLocked(client)
	}
}

// shutdown closes every client in id order and clears all state.
func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})
	for _, client := range clients {
		client.closeSend()
	}

	closed := len(clients)
	h.clients = make(map[string]*Client)
	h.rooms = make(map[string]map[*Client]struct{})
	metrics.WSConnections.Set(0)
	metrics.WSRoomMembers.Set(0)

	logging.Info().
		Str("component", "websocket-hub").
		Int("clients_closed", closed).
		Msg("websocket hub stopped")
}

// enqueue hands a room event to the hub loop without blocking the caller.
// The coordinator's commit path must never stall on a slow fan-out.
func (h *Hub) enqueue(ev roomEvent) {
	select {
	case h.broadcast <- ev:
	default:
		metrics.WSEventsDropped.WithLabelValues(ev.event.Type).Inc()
		logging.Warn().
			Str("event", ev.event.Type).
			Str("thread_id", ev.threadID).
			Msg("broadcast channel full, dropping event")
	}
}

// MessageCreated announces a committed message to its thread room.
// Implements the coordinator's event sink.
func (h *Hub) MessageCreated(view *models.MessageView) {
	h.enqueue(roomEvent{
		threadID: view.ThreadID,
		event:    Event{Type: EventNewMessage, Data: view},
	})
}

// ThreadRead announces a committed read acknowledgement to the thread room.
// Implements the coordinator's event sink.
func (h *Hub) ThreadRead(threadID, userID string) {
	h.enqueue(roomEvent{
		threadID: threadID,
		event: Event{
			Type: EventThreadRead,
			Data: ThreadEventData{ThreadID: threadID, UserID: userID},
		},
	})
}

// broadcastTyping relays a typing indicator to the room, excluding the
// typist. Ephemeral: never persisted, dropped freely under pressure.
func (h *Hub) broadcastTyping(from *Client, threadID string, stopped bool) {
	eventType := EventTyping
	if stopped {
		eventType = EventTypingStopped
	}
	h.enqueue(roomEvent{
		threadID: threadID,
		exclude:  from.id,
		event: Event{
			Type: eventType,
			Data: ThreadEventData{ThreadID: threadID, UserID: from.userID},
		},
	})
}
