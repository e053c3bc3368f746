// Package chat tracks who is online, keeps room and private message logs,
// and routes connection events to the right recipients.
package chat

import (
	"context"
	"html"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/johndosdos/huddle/internal/model"
)

const maxCleanPasses = 4

type sanitizer interface {
	Sanitize(s string) string
}

// Router dispatches connection events. Each store it owns is locked
// independently, so events for unrelated rooms do not serialize on a single
// lock.
type Router struct {
	registry  *Registry
	rooms     *RoomStore
	private   *PrivateStore
	presence  *Presence
	transport Transport
	sanitizer sanitizer
	now       func() time.Time
	ids       idGen
}

// NewRouter returns a Router with empty stores that emits through t.
func NewRouter(t Transport) *Router {
	reg := NewRegistry()
	return &Router{
		registry:  reg,
		rooms:     NewRoomStore(),
		private:   NewPrivateStore(),
		presence:  NewPresence(reg),
		transport: t,
		sanitizer: bluemonday.StrictPolicy(),
		now:       time.Now,
	}
}

// Registry returns the identity registry.
func (r *Router) Registry() *Registry { return r.registry }

// Rooms returns the room store.
func (r *Router) Rooms() *RoomStore { return r.rooms }

// Private returns the private conversation store.
func (r *Router) Private() *PrivateStore { return r.private }

// Presence returns the presence broadcaster.
func (r *Router) Presence() *Presence { return r.presence }

// Dispatch runs the handler for req on behalf of connID. A request that the
// handler leaves unanswered is settled with {ok: false}.
func (r *Router) Dispatch(ctx context.Context, connID string, req *Request) {
	defer req.settle()
	defer func() {
		if rec := recover(); rec != nil {
			slog.ErrorContext(ctx, "recovered from panic in event handler",
				"event", req.Event,
				"conn_id", connID,
				"panic", rec)
		}
	}()

	switch req.Event {
	case model.EventJoin:
		r.join(ctx, connID, req)
	case model.EventJoinRoom:
		r.switchRoom(ctx, connID, req)
	case model.EventRoomMessage:
		r.roomMessage(connID, req)
	case model.EventPrivateMessage:
		r.privateMessage(connID, req)
	case model.EventTyping:
		r.typing(connID, req)
	case model.EventMarkSeen:
		r.markSeen(connID, req)
	default:
		slog.DebugContext(ctx, "ignoring unknown event",
			"event", req.Event,
			"conn_id", connID)
	}
}

// Disconnect forgets connID and tells everyone it left. Calling it for a
// connection that never joined, or twice, does nothing.
func (r *Router) Disconnect(ctx context.Context, connID string) {
	profile, ok := r.registry.Remove(connID)
	if !ok {
		return
	}
	r.transport.Unsubscribe(connID, profile.CurrentRoom)

	r.presence.BroadcastTo(r.transport)
	r.transport.EmitAll(model.EventSystemMessage, model.SystemNotice{
		Text: profile.DisplayName + " left",
	})

	slog.InfoContext(ctx, "user left", "username", profile.DisplayName, "conn_id", connID)
}

func (r *Router) join(ctx context.Context, connID string, req *Request) {
	var payload model.JoinRequest
	// A missing or malformed payload still joins, under a placeholder name.
	_ = req.decode(&payload)

	name := r.clean(payload.Username)
	if name == "" {
		name = placeholderName(connID)
	}
	avatar := r.clean(payload.Avatar)

	if prev, ok := r.registry.Lookup(connID); ok {
		r.transport.Unsubscribe(connID, prev.CurrentRoom)
	}

	profile, evicted := r.registry.Join(connID, name, avatar)
	if evicted != nil {
		r.transport.Unsubscribe(evicted.ConnID, evicted.CurrentRoom)
		slog.InfoContext(ctx, "display name taken over by a newer connection",
			"username", name,
			"old_conn_id", evicted.ConnID,
			"conn_id", connID)
	}
	if !r.subscribe(connID, profile.CurrentRoom) {
		return
	}

	r.presence.BroadcastTo(r.transport)
	req.Reply(model.HistoryAck{
		OK:      true,
		History: r.rooms.RecentHistory(profile.CurrentRoom, HistoryLimit),
	})
	r.transport.EmitRoom(profile.CurrentRoom, model.EventSystemMessage, model.SystemNotice{
		Text: name + " joined " + profile.CurrentRoom,
	}, "")

	slog.InfoContext(ctx, "user joined", "username", name, "conn_id", connID)
}

func (r *Router) switchRoom(ctx context.Context, connID string, req *Request) {
	prev, ok := r.registry.Lookup(connID)
	if !ok {
		return
	}

	var room string
	if !req.decode(&room) {
		return
	}
	room = r.clean(room)
	if room == "" {
		return
	}

	history, ok := r.rooms.SwitchRoom(r.registry, connID, room)
	if !ok {
		return
	}
	r.transport.Unsubscribe(connID, prev.CurrentRoom)
	if !r.subscribe(connID, room) {
		return
	}

	req.Reply(model.HistoryAck{OK: true, History: history})
	r.transport.EmitRoom(room, model.EventSystemMessage, model.SystemNotice{
		Text: prev.DisplayName + " joined " + room,
	}, "")
	r.presence.BroadcastTo(r.transport)

	slog.DebugContext(ctx, "user switched room",
		"username", prev.DisplayName,
		"from", prev.CurrentRoom,
		"to", room)
}

func (r *Router) roomMessage(connID string, req *Request) {
	sender, ok := r.registry.Lookup(connID)
	if !ok {
		return
	}

	var payload model.RoomMessageRequest
	if !req.decode(&payload) {
		return
	}
	text, fileURL := r.clean(payload.Text), cleanURL(payload.FileURL)
	if text == "" && fileURL == "" {
		return
	}

	now := r.now()
	msg := model.Message{
		ID:        r.ids.next(now),
		From:      sender.DisplayName,
		Avatar:    sender.Avatar,
		Room:      sender.CurrentRoom,
		Text:      text,
		FileURL:   fileURL,
		Timestamp: now.UnixMilli(),
	}

	r.rooms.Append(msg.Room, msg)
	r.transport.EmitRoom(msg.Room, model.EventMessage, msg, "")
	req.Reply(model.StatusAck{OK: true})
}

func (r *Router) privateMessage(connID string, req *Request) {
	sender, ok := r.registry.Lookup(connID)
	if !ok {
		return
	}

	var payload model.PrivateMessageRequest
	if !req.decode(&payload) {
		return
	}
	to := r.clean(payload.To)
	text, fileURL := r.clean(payload.Text), cleanURL(payload.FileURL)
	if to == "" || (text == "" && fileURL == "") {
		return
	}

	now := r.now()
	msg := model.Message{
		ID:        r.ids.next(now),
		From:      sender.DisplayName,
		To:        to,
		Avatar:    sender.Avatar,
		Text:      text,
		FileURL:   fileURL,
		Timestamp: now.UnixMilli(),
	}

	r.private.Append(sender.DisplayName, to, msg)

	// An offline recipient finds the message in history later.
	if peer, ok := r.registry.LookupByName(to); ok && peer != connID {
		r.transport.Emit(peer, model.EventPrivateMessage, msg)
	}
	r.transport.Emit(connID, model.EventPrivateMessage, msg)
	req.Reply(model.StatusAck{OK: true})
}

func (r *Router) typing(connID string, req *Request) {
	sender, ok := r.registry.Lookup(connID)
	if !ok {
		return
	}

	var payload model.TypingRequest
	if !req.decode(&payload) {
		return
	}

	switch payload.Type {
	case "room":
		r.transport.EmitRoom(sender.CurrentRoom, model.EventTyping,
			model.TypingNotice{User: sender.DisplayName}, connID)
		req.Reply(model.StatusAck{OK: true})
	case "private":
		peer, ok := r.registry.LookupByName(r.clean(payload.To))
		if !ok || peer == connID {
			return
		}
		r.transport.Emit(peer, model.EventTyping,
			model.TypingNotice{User: sender.DisplayName, Private: true})
		req.Reply(model.StatusAck{OK: true})
	}
}

func (r *Router) markSeen(connID string, req *Request) {
	owner, ok := r.registry.Lookup(connID)
	if !ok {
		return
	}

	var payload model.MarkSeenRequest
	if !req.decode(&payload) {
		return
	}
	peer := r.clean(payload.ConvWith)
	if peer == "" || payload.MessageID == "" {
		return
	}

	msg, ok := r.private.MarkSeen(owner.DisplayName, peer, payload.MessageID)
	if !ok {
		return
	}

	if senderConn, ok := r.registry.LookupByName(msg.From); ok {
		r.transport.Emit(senderConn, model.EventMessageSeen, model.SeenNotice{
			MessageID: msg.ID,
			By:        owner.DisplayName,
		})
	}
	req.Reply(model.StatusAck{OK: true})
}

// subscribe puts connID in room, then re-checks the registry. A connection
// evicted or moved by a concurrent join is taken back out and false is
// returned.
func (r *Router) subscribe(connID, room string) bool {
	r.transport.Subscribe(connID, room)

	if p, ok := r.registry.Lookup(connID); !ok || p.CurrentRoom != room {
		r.transport.Unsubscribe(connID, room)
		return false
	}
	return true
}

// clean strips markup and surrounding whitespace from user supplied text.
// Characters such as & < ' survive unescaped; entity-encoded markup is
// stripped once decoded.
func (r *Router) clean(s string) string {
	for range maxCleanPasses {
		out := html.UnescapeString(r.sanitizer.Sanitize(s))
		if out == s {
			break
		}
		s = out
	}
	return strings.TrimSpace(s)
}

// cleanURL accepts site-relative paths and http(s) URLs only.
func cleanURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "http", "https":
		if u.Host == "" {
			return ""
		}
	case "":
		if !strings.HasPrefix(u.Path, "/") || u.Host != "" {
			return ""
		}
	default:
		return ""
	}
	return u.String()
}
