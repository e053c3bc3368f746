package websocket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johndosdos/huddle/internal/model"
)

func startHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	h := NewHub()
	go h.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-h.Done()
	})
	return h, cancel
}

func register(t *testing.T, h *Hub) *Client {
	t.Helper()
	c := NewClient(nil)
	reg := Registration{Client: c, Done: make(chan struct{})}
	h.Register <- reg
	<-reg.Done
	return c
}

func receive(t *testing.T, c *Client) model.Envelope {
	t.Helper()
	select {
	case env := <-c.send:
		return env
	case <-time.After(time.Second):
		t.Fatalf("no envelope for %s", c.ID)
		return model.Envelope{}
	}
}

func assertEmpty(t *testing.T, c *Client) {
	t.Helper()
	select {
	case env := <-c.send:
		t.Fatalf("unexpected envelope %q for %s", env.Event, c.ID)
	default:
	}
}

func TestHubEmit(t *testing.T) {
	h, _ := startHub(t)
	a, b := register(t, h), register(t, h)
	assert.Equal(t, 2, h.Len())

	h.Emit(a.ID, model.EventSystemMessage, model.SystemNotice{Text: "hi"})
	env := receive(t, a)
	assert.Equal(t, model.EventSystemMessage, env.Event)
	assert.JSONEq(t, `{"text":"hi"}`, string(env.Data))
	assertEmpty(t, b)

	// Unknown connections are a silent no-op.
	h.Emit("gone", model.EventSystemMessage, model.SystemNotice{Text: "hi"})

	h.EmitAll(model.EventPresence, []model.PresenceEntry{})
	assert.Equal(t, model.EventPresence, receive(t, a).Event)
	assert.Equal(t, model.EventPresence, receive(t, b).Event)
}

func TestHubRooms(t *testing.T) {
	h, _ := startHub(t)
	a, b, c := register(t, h), register(t, h), register(t, h)

	h.Subscribe(a.ID, "general")
	h.Subscribe(b.ID, "general")
	h.Subscribe(c.ID, "dev")
	h.Subscribe("unknown", "general")

	h.EmitRoom("general", model.EventTyping, model.TypingNotice{User: "a"}, a.ID)
	assertEmpty(t, a)
	assert.Equal(t, model.EventTyping, receive(t, b).Event)
	assertEmpty(t, c)

	h.Unsubscribe(b.ID, "general")
	h.EmitRoom("general", model.EventMessage, model.Message{ID: "1"}, "")
	assert.Equal(t, model.EventMessage, receive(t, a).Event)
	assertEmpty(t, b)
}

func TestHubUnregisterClosesSend(t *testing.T) {
	h, _ := startHub(t)
	a := register(t, h)
	h.Subscribe(a.ID, "general")

	h.Unregister <- a

	select {
	case _, ok := <-a.send:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("send channel not closed")
	}
	assert.Equal(t, 0, h.Len())

	// Emitting after removal must not panic on the closed channel.
	h.EmitRoom("general", model.EventMessage, model.Message{}, "")
	h.Emit(a.ID, model.EventMessage, model.Message{})
}

func TestHubRunCancelClosesAll(t *testing.T) {
	h, cancel := startHub(t)
	a, b := register(t, h), register(t, h)

	cancel()
	<-h.Done()

	for _, c := range []*Client{a, b} {
		_, ok := <-c.send
		assert.False(t, ok)
	}
	assert.Equal(t, 0, h.Len())
}

func TestHubDropsWhenBufferFull(t *testing.T) {
	h, _ := startHub(t)
	a := register(t, h)

	for range sendBuffer + 10 {
		h.Emit(a.ID, model.EventMessage, model.Message{})
	}
	assert.Len(t, a.send, sendBuffer)
}

func TestEnvelopeRejectsUnencodable(t *testing.T) {
	_, ok := envelope(model.EventMessage, make(chan int))
	assert.False(t, ok)

	env, ok := envelope(model.EventMessageSeen, model.SeenNotice{MessageID: "1", By: "Bob"})
	require.True(t, ok)

	var got model.SeenNotice
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, "Bob", got.By)
}

func TestClientAllow(t *testing.T) {
	c := NewClient(nil)
	c.SetMessageLimiter(2, time.Minute)
	c.SetTypingLimiter(1, time.Minute)

	assert.True(t, c.allow(model.EventRoomMessage))
	assert.True(t, c.allow(model.EventPrivateMessage))
	assert.False(t, c.allow(model.EventRoomMessage), "message bucket shared by room and private")

	assert.True(t, c.allow(model.EventTyping))
	assert.False(t, c.allow(model.EventTyping))

	// Joins are unlimited until a join limiter is set.
	for range 10 {
		assert.True(t, c.allow(model.EventJoin))
	}

	c.SetJoinLimiter(2, time.Minute)
	assert.True(t, c.allow(model.EventJoin))
	assert.True(t, c.allow(model.EventJoinRoom))
	assert.False(t, c.allow(model.EventJoinRoom), "join and joinRoom share one bucket")
}

func TestResponderWaitsForBufferSpace(t *testing.T) {
	h, _ := startHub(t)
	c := register(t, h)

	for range sendBuffer {
		h.Emit(c.ID, model.EventMessage, model.Message{})
	}
	require.Len(t, c.send, sendBuffer)

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.responder(7)(model.StatusAck{OK: true})
	}()

	// Free one slot while the responder is waiting.
	time.Sleep(50 * time.Millisecond)
	<-c.send

	select {
	case <-done:
	case <-time.After(2 * ackTimeout):
		t.Fatal("responder did not return")
	}

	var last model.Envelope
	for len(c.send) > 0 {
		last = <-c.send
	}
	assert.Equal(t, model.EventAck, last.Event)
	assert.Equal(t, int64(7), last.Ack)
	assert.JSONEq(t, `{"ok":true}`, string(last.Data))
}

func TestResponderSkipsUnregisteredClient(t *testing.T) {
	h, _ := startHub(t)
	c := register(t, h)
	h.Unregister <- c

	// The channel is closed; replying must neither panic nor block.
	assert.Eventually(t, func() bool { return h.Len() == 0 }, time.Second, 5*time.Millisecond)
	c.responder(1)(model.StatusAck{OK: true})
}
