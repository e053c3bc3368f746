// Package testutil starts an in-process server and dials it like a browser
// would.
package testutil

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"

	"github.com/johndosdos/huddle/internal/chat"
	"github.com/johndosdos/huddle/internal/config"
	"github.com/johndosdos/huddle/internal/handler"
	"github.com/johndosdos/huddle/internal/model"
	ws "github.com/johndosdos/huddle/internal/websocket"
)

// Server is a running hub, router and HTTP server.
type Server struct {
	*httptest.Server
	Hub    *ws.Hub
	Router *chat.Router
}

// NewServer starts a server with the websocket and REST routes mounted.
// Everything is torn down when the test ends.
func NewServer(t *testing.T, opts handler.WsOptions) *Server {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())

	hub := ws.NewHub()
	go hub.Run(ctx)
	router := chat.NewRouter(hub)

	r := chi.NewRouter()
	r.Get("/ws", handler.ServeWs(hub, router, opts))
	r.Get("/api/private/{a}/{b}", handler.ServePrivateHistory(router))
	r.Get("/api/rooms", handler.ServeRooms(router))
	r.Get("/api/rooms/{room}/history", handler.ServeRoomHistory(router))
	r.Get("/api/presence", handler.ServePresence(router))

	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		cancel()
		<-hub.Done()
		srv.Close()
	})

	return &Server{Server: srv, Hub: hub, Router: router}
}

// DefaultLimits leaves room for any test's traffic.
func DefaultLimits() handler.WsOptions {
	return handler.WsOptions{
		MessageRate: config.Limit{Requests: 1000, Window: time.Second},
		TypingRate:  config.Limit{Requests: 1000, Window: time.Second},
		JoinRate:    config.Limit{Requests: 1000, Window: time.Second},
	}
}

// Conn is a websocket client speaking the envelope protocol.
type Conn struct {
	t    *testing.T
	conn *websocket.Conn
	ack  int64
}

// Dial opens a websocket to srv.
func (s *Server) Dial(t *testing.T) *Conn {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("websocket.Dial() error = %+v", err)
	}
	t.Cleanup(func() { conn.CloseNow() })

	return &Conn{t: t, conn: conn}
}

// Send writes event without asking for an acknowledgment.
func (c *Conn) Send(event string, data any) {
	c.t.Helper()
	c.write(model.Envelope{Event: event, Data: c.marshal(data)})
}

// Request writes event with a fresh ack id and waits for the matching ack,
// decoding it into out. Pushes read while waiting are returned.
func (c *Conn) Request(event string, data, out any) []model.Envelope {
	c.t.Helper()

	c.ack++
	id := c.ack
	c.write(model.Envelope{Event: event, Ack: id, Data: c.marshal(data)})

	var pushes []model.Envelope
	for {
		env := c.Next()
		if env.Event == model.EventAck && env.Ack == id {
			if out != nil {
				if err := json.Unmarshal(env.Data, out); err != nil {
					c.t.Fatalf("json.Unmarshal() error = %+v", err)
				}
			}
			return pushes
		}
		pushes = append(pushes, env)
	}
}

// Next reads one envelope, failing the test after a timeout.
func (c *Conn) Next() model.Envelope {
	c.t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var env model.Envelope
	if err := wsjson.Read(ctx, c.conn, &env); err != nil {
		c.t.Fatalf("wsjson.Read() error = %+v", err)
	}
	return env
}

// Expect reads until an envelope for event arrives and decodes it into out.
func (c *Conn) Expect(event string, out any) {
	c.t.Helper()

	for {
		env := c.Next()
		if env.Event != event {
			continue
		}
		if out != nil {
			if err := json.Unmarshal(env.Data, out); err != nil {
				c.t.Fatalf("json.Unmarshal() error = %+v", err)
			}
		}
		return
	}
}

// Close ends the connection normally.
func (c *Conn) Close() {
	c.conn.Close(websocket.StatusNormalClosure, "")
}

func (c *Conn) write(env model.Envelope) {
	c.t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := wsjson.Write(ctx, c.conn, env); err != nil {
		c.t.Fatalf("wsjson.Write() error = %+v", err)
	}
}

func (c *Conn) marshal(data any) json.RawMessage {
	c.t.Helper()

	if data == nil {
		return nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		c.t.Fatalf("json.Marshal() error = %+v", err)
	}
	return b
}
