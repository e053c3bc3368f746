package websocket

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/johndosdos/huddle/internal/model"
)

const (
	sendBuffer   = 64
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
	maxFrameSize = 64 << 10
)

type Client struct {
	ID         string
	conn       *websocket.Conn
	hub        *Hub
	send       chan model.Envelope
	messageLim *rate.Limiter
	typingLim  *rate.Limiter
	joinLim    *rate.Limiter
	timeWarned time.Time // last rate limit warning; one warning per window
	warnEvery  time.Duration
}

// NewClient wraps conn under a fresh connection id. Limiters are unlimited
// until SetMessageLimiter, SetTypingLimiter and SetJoinLimiter are called.
func NewClient(conn *websocket.Conn) *Client {
	if conn != nil {
		conn.SetReadLimit(maxFrameSize)
	}
	return &Client{
		ID:         uuid.NewString(),
		conn:       conn,
		send:       make(chan model.Envelope, sendBuffer),
		messageLim: rate.NewLimiter(rate.Inf, 0),
		typingLim:  rate.NewLimiter(rate.Inf, 0),
		joinLim:    rate.NewLimiter(rate.Inf, 0),
	}
}

func (c *Client) SetMessageLimiter(requests int, window time.Duration) {
	l := rate.NewLimiter(rate.Every(window/time.Duration(requests)), requests)
	c.messageLim = l
	c.warnEvery = window / time.Duration(requests)
}

func (c *Client) SetTypingLimiter(requests int, window time.Duration) {
	l := rate.NewLimiter(rate.Every(window/time.Duration(requests)), requests)
	c.typingLim = l
}

// SetJoinLimiter throttles join and joinRoom, each of which pushes presence
// to every connection.
func (c *Client) SetJoinLimiter(requests int, window time.Duration) {
	l := rate.NewLimiter(rate.Every(window/time.Duration(requests)), requests)
	c.joinLim = l
}

// WriteMessage drains the send channel onto the websocket stream.
func (c *Client) WriteMessage(ctx context.Context) {
	for {
		select {
		case env, ok := <-c.send:
			// The hub closed the channel: unregistered or shutting down.
			if !ok {
				c.conn.Close(websocket.StatusNormalClosure, "channel closed")
				return
			}

			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(writeCtx, c.conn, env)
			cancel()
			if err != nil {
				slog.WarnContext(ctx, "failed to write payload",
					"error", err,
					"event", env.Event,
					"conn_id", c.ID)
				c.conn.CloseNow()
				return
			}

		case <-ctx.Done():
			c.conn.Close(websocket.StatusGoingAway, "context cancelled")
			return
		}
	}
}

// keepalive pings the peer until ctx ends or a pong is missed. Intermediaries
// drop connections that stay silent for too long.
func (c *Client) keepalive(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					slog.DebugContext(ctx, "ping failed",
						"error", err,
						"conn_id", c.ID)
				}
				c.conn.CloseNow()
				return
			}
		}
	}
}
