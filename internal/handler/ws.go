package handler

import (
	"log"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/johndosdos/huddle/internal/chat"
	"github.com/johndosdos/huddle/internal/config"
	ws "github.com/johndosdos/huddle/internal/websocket"
)

// WsOptions configures the websocket upgrade and per-connection limits.
type WsOptions struct {
	OriginPatterns []string
	MessageRate    config.Limit
	TypingRate     config.Limit
	JoinRate       config.Limit
}

// ServeWs handles the client's websocket connection upgrade.
func ServeWs(h *ws.Hub, router *chat.Router, opts WsOptions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: opts.OriginPatterns,
		})
		if err != nil {
			log.Printf("failed to upgrade connection to websocket: %v", err)
			return
		}

		c := ws.NewClient(conn)
		if opts.MessageRate.Requests > 0 && opts.MessageRate.Window > 0 {
			c.SetMessageLimiter(opts.MessageRate.Requests, opts.MessageRate.Window)
		}
		if opts.TypingRate.Requests > 0 && opts.TypingRate.Window > 0 {
			c.SetTypingLimiter(opts.TypingRate.Requests, opts.TypingRate.Window)
		}
		if opts.JoinRate.Requests > 0 && opts.JoinRate.Window > 0 {
			c.SetJoinLimiter(opts.JoinRate.Requests, opts.JoinRate.Window)
		}

		reg := ws.Registration{
			Client: c,
			Done:   make(chan struct{}),
		}

		select {
		case h.Register <- reg:
		case <-h.Done():
			conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		}

		// Wait for registration to complete
		select {
		case <-reg.Done:
		case <-time.After(5 * time.Second):
			conn.Close(websocket.StatusTryAgainLater, "registration timed out")
			return
		}

		// We block on c.ReadMessage() because the request context will be canceled as soon
		// we return from the ServeWs() handler.
		go c.WriteMessage(ctx)
		c.ReadMessage(ctx, router)
	}
}
