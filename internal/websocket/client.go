// Brewline - Coffee Chat Marketplace Messaging Engine
// Copyright 2026 Brewline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/brewline/brewline

package websocket

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/brewline/brewline/internal/identity"
	"github.com/brewline/brewline/internal/logging"
)

// clientIDCounter assigns monotonically increasing client ids, used for
// deterministic broadcast ordering and typing-echo exclusion.
var clientIDCounter atomic.Uint64

// ParticipantChecker gates room joins on thread membership.
type ParticipantChecker interface {
	IsParticipant(ctx context.Context, userID, threadID string) (bool, error)
}

// ReadMarker acknowledges a thread as read through the durable write path.
// The socket never mutates read state itself; the resulting thread-read
// event arrives via the coordinator's post-commit sink.
type ReadMarker interface {
	MarkThreadRead(ctx context.Context, actor *identity.Subject, threadID string) error
}

// Client is the middleman between one websocket connection and the hub.
type Client struct {
	id      uint64
	userID  string
	subject *identity.Subject

	hub  *Hub
	conn *websocket.Conn
	send chan Event

	// sendMu guards send against the hub closing it while the read pump is
	// still alive: a superseded connection's pump may try to reply after the
	// successor claimed the slot.
	sendMu     sync.Mutex
	sendClosed bool

	checker ParticipantChecker
	reader  ReadMarker
}

// NewClient creates a client for an authenticated connection.
func NewClient(hub *Hub, conn *websocket.Conn, subject *identity.Subject, checker ParticipantChecker, reader ReadMarker) *Client {
	return &Client{
		id:      clientIDCounter.Add(1),
		userID:  subject.UserID,
		subject: subject,
		hub:     hub,
		conn:    conn,
		send:    make(chan Event, hub.cfg.SendBuffer),
		checker: checker,
		reader:  reader,
	}
}

// ID returns the client's unique identifier.
func (c *Client) ID() uint64 {
	return c.id
}

// Start begins the read and write pumps.
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}

// inboundEvent is the shape of client-originated events. All current inbound
// types carry at most a thread id.
type inboundEvent struct {
	Type string `json:"type"`
	Data struct {
		ThreadID string `json:"threadId"`
	} `json:"data"`
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister <- c
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(c.hub.cfg.MaxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(c.hub.cfg.PongWait)); err != nil {
		logging.Error().Err(err).Msg("failed to set read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.hub.cfg.PongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Warn().Err(err).Str("user_id", c.userID).Msg("unexpected websocket close")
			}
			break
		}
		var ev inboundEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			logging.Debug().Err(err).Str("user_id", c.userID).Msg("discarding malformed websocket frame")
			continue
		}
		c.handleInbound(&ev)
	}
}

func (c *Client) handleInbound(ev *inboundEvent) {
	ctx := context.Background()

	switch ev.Type {
	case EventPing:
		c.reply(Event{Type: EventPong})

	case EventJoinThread:
		ok, err := c.checker.IsParticipant(ctx, c.userID, ev.Data.ThreadID)
		if err != nil {
			logging.Error().Err(err).Str("thread_id", ev.Data.ThreadID).Msg("participant check failed")
			c.reply(Event{Type: EventError, Data: map[string]string{"message": "join failed"}})
			return
		}
		if !ok {
			c.reply(Event{Type: EventError, Data: map[string]string{"message": "not a participant"}})
			return
		}
		c.hub.join(c, ev.Data.ThreadID)
		c.reply(Event{Type: EventThreadJoined, Data: ThreadEventData{ThreadID: ev.Data.ThreadID}})

	case EventLeaveThread:
		c.hub.leave(c, ev.Data.ThreadID)

	case EventStartTyping:
		if c.inRoom(ev.Data.ThreadID) {
			c.hub.broadcastTyping(c, ev.Data.ThreadID, false)
		}

	case EventStopTyping:
		if c.inRoom(ev.Data.ThreadID) {
			c.hub.broadcastTyping(c, ev.Data.ThreadID, true)
		}

	case EventMarkRead:
		// Delegate to the coordinator; the thread-read event fans out only
		// after the commit succeeds.
		if err := c.reader.MarkThreadRead(ctx, c.subject, ev.Data.ThreadID); err != nil {
			logging.Warn().Err(err).
				Str("user_id", c.userID).
				Str("thread_id", ev.Data.ThreadID).
				Msg("mark-read over websocket failed")
			c.reply(Event{Type: EventError, Data: map[string]string{"message": "mark-read failed"}})
		}

	default:
		logging.Debug().Str("type", ev.Type).Msg("ignoring unknown websocket event")
	}
}

// inRoom reports whether the client has joined the thread room.
func (c *Client) inRoom(threadID string) bool {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	_, ok := c.hub.rooms[threadID][c]
	return ok
}

// trySend queues an event for delivery. Reports false when the buffer is
// full or the client has already been dropped by the hub; it never panics on
// a dropped client.
func (c *Client) trySend(ev Event) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.sendClosed {
		return false
	}
	select {
	case c.send <- ev:
		return true
	default:
		return false
	}
}

// closeSend closes the send channel exactly once. Only the hub calls this;
// the read pump may still be running when it happens.
func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.sendClosed {
		return
	}
	c.sendClosed = true
	close(c.send)
}

// reply queues an event to this client only, dropping it if the buffer is
// full or the client was already dropped.
func (c *Client) reply(ev Event) {
	c.trySend(ev)
}

func (c *Client) writePump() {
	pingPeriod := (c.hub.cfg.PongWait * 9) / 10
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteWait)); err != nil {
				logging.Error().Err(err).Msg("failed to set write deadline")
				return
			}
			if !ok {
				// The hub closed the channel.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			raw, err := json.Marshal(event)
			if err != nil {
				logging.Error().Err(err).Str("type", event.Type).Msg("failed to encode websocket event")
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				logging.Error().Err(err).Msg("failed to write websocket event")
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
