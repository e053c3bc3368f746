package websocket

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"time"

	"github.com/coder/websocket"

	"github.com/johndosdos/huddle/internal/chat"
	"github.com/johndosdos/huddle/internal/model"
)

const (
	rateLimitWarning = "You are sending messages too quickly. Slow down."
	ackTimeout       = time.Second
)

// ReadMessage reads envelopes from the websocket stream and hands them to
// router until the connection ends. It then unregisters the client and
// announces the disconnect.
func (c *Client) ReadMessage(ctx context.Context, router *chat.Router) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	defer func() {
		select {
		case c.hub.Unregister <- c:
		case <-c.hub.Done():
		}
		router.Disconnect(context.WithoutCancel(ctx), c.ID)
		c.conn.CloseNow()
	}()

	go c.keepalive(ctx)

	for {
		msgType, p, err := c.conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure &&
				status != websocket.StatusGoingAway &&
				status != -1 {
				log.Printf("%v", err)
			}
			return
		}

		// The protocol only uses text frames.
		if msgType != websocket.MessageText {
			continue
		}

		var env model.Envelope
		if err := json.Unmarshal(p, &env); err != nil {
			slog.DebugContext(ctx, "failed to process payload from client",
				"error", err,
				"conn_id", c.ID)
			continue
		}

		if env.Event == "" || env.Event == model.EventAck {
			continue
		}

		req := chat.NewRequest(env.Event, env.Data, c.responder(env.Ack))
		if !c.allow(env.Event) {
			c.warnRateLimited()
			req.Reply(model.StatusAck{OK: false})
			continue
		}

		router.Dispatch(ctx, c.ID, req)
	}
}

// responder returns nil when the sender did not ask for an acknowledgment.
func (c *Client) responder(ack int64) func(any) {
	if ack == 0 {
		return nil
	}
	return func(v any) {
		data, err := json.Marshal(v)
		if err != nil {
			slog.Error("failed to encode ack", "error", err, "conn_id", c.ID)
			return
		}
		env := model.Envelope{Event: model.EventAck, Ack: ack, Data: data}

		c.hub.mu.RLock()
		defer c.hub.mu.RUnlock()
		if _, ok := c.hub.clients[c.ID]; !ok {
			return
		}

		// Block up to ackTimeout for room in the buffer.
		timer := time.NewTimer(ackTimeout)
		defer timer.Stop()
		select {
		case c.send <- env:
		case <-timer.C:
			slog.Warn("dropping ack - client not draining its channel",
				"conn_id", c.ID,
				"ack", ack)
		}
	}
}

func (c *Client) allow(event string) bool {
	switch event {
	case model.EventRoomMessage, model.EventPrivateMessage:
		return c.messageLim.Allow()
	case model.EventTyping:
		return c.typingLim.Allow()
	case model.EventJoin, model.EventJoinRoom:
		return c.joinLim.Allow()
	default:
		return true
	}
}

// warnRateLimited tells the sender it is being throttled, at most once per
// refill interval.
func (c *Client) warnRateLimited() {
	now := time.Now()
	if now.Sub(c.timeWarned) < c.warnEvery {
		return
	}
	c.timeWarned = now
	c.hub.Emit(c.ID, model.EventSystemMessage, model.SystemNotice{Text: rateLimitWarning})
}
