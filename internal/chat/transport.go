package chat

import (
	"encoding/json"
	"sync"

	"github.com/johndosdos/huddle/internal/model"
)

// Transport delivers pushes to live connections and tracks which room each
// connection is subscribed to. Emitting to a connection that is gone must be
// a silent no-op.
type Transport interface {
	Emit(connID, event string, payload any)
	EmitRoom(room, event string, payload any, exceptConnID string)
	EmitAll(event string, payload any)
	Subscribe(connID, room string)
	Unsubscribe(connID, room string)
}

// Request is one incoming event. Its reply callback runs at most once.
type Request struct {
	Event string
	Data  json.RawMessage

	once    sync.Once
	respond func(any)
}

// NewRequest wraps an incoming event. respond may be nil when the sender did
// not ask for an acknowledgment.
func NewRequest(event string, data json.RawMessage, respond func(any)) *Request {
	return &Request{Event: event, Data: data, respond: respond}
}

// Reply answers the request. Calls after the first are dropped.
func (r *Request) Reply(v any) {
	r.once.Do(func() {
		if r.respond != nil {
			r.respond(v)
		}
	})
}

// settle answers {ok: false} unless the request was already answered.
func (r *Request) settle() {
	r.Reply(model.StatusAck{OK: false})
}

func (r *Request) decode(v any) bool {
	if len(r.Data) == 0 {
		return false
	}
	return json.Unmarshal(r.Data, v) == nil
}
