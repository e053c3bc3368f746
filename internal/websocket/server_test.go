package websocket_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johndosdos/huddle/internal/config"
	"github.com/johndosdos/huddle/internal/handler"
	"github.com/johndosdos/huddle/internal/model"
	"github.com/johndosdos/huddle/internal/testutil"
)

func join(t *testing.T, c *testutil.Conn, name string) model.HistoryAck {
	t.Helper()
	var ack model.HistoryAck
	c.Request(model.EventJoin, model.JoinRequest{Username: name}, &ack)
	require.True(t, ack.OK)
	return ack
}

func TestRoomAndPrivateDelivery(t *testing.T) {
	srv := testutil.NewServer(t, testutil.DefaultLimits())
	alice, bob := srv.Dial(t), srv.Dial(t)

	join(t, alice, "Alice")
	join(t, bob, "Bob")

	var status model.StatusAck
	pushes := alice.Request(model.EventRoomMessage, model.RoomMessageRequest{Text: "hello"}, &status)
	assert.True(t, status.OK)

	var sawOwn bool
	for _, env := range pushes {
		if env.Event == model.EventMessage {
			sawOwn = true
		}
	}
	assert.True(t, sawOwn, "sender receives its own room message")

	var msg model.Message
	bob.Expect(model.EventMessage, &msg)
	assert.Equal(t, "Alice", msg.From)
	assert.Equal(t, "hello", msg.Text)
	assert.Equal(t, "general", msg.Room)

	var echo model.Message
	alice.Request(model.EventPrivateMessage, model.PrivateMessageRequest{To: "Bob", Text: "psst"}, &status)
	assert.True(t, status.OK)

	var delivered model.Message
	bob.Expect(model.EventPrivateMessage, &delivered)
	alice.Expect(model.EventPrivateMessage, &echo)
	assert.Equal(t, delivered.ID, echo.ID)
	assert.Equal(t, "Bob", delivered.To)

	history := srv.Router.Private().FullHistory("Bob", "Alice")
	require.Len(t, history, 1)
	assert.Equal(t, delivered.ID, history[0].ID)
}

func TestUnjoinedConnectionIsIgnored(t *testing.T) {
	srv := testutil.NewServer(t, testutil.DefaultLimits())
	c := srv.Dial(t)

	var status model.StatusAck
	c.Request(model.EventRoomMessage, model.RoomMessageRequest{Text: "hi"}, &status)
	assert.False(t, status.OK)

	c.Request("nonsense", nil, &status)
	assert.False(t, status.OK)

	assert.Empty(t, srv.Router.Rooms().RecentHistory("general", 0))
}

func TestRateLimitWarns(t *testing.T) {
	srv := testutil.NewServer(t, handler.WsOptions{
		MessageRate: config.Limit{Requests: 1, Window: time.Minute},
	})
	c := srv.Dial(t)
	join(t, c, "Alice")

	var status model.StatusAck
	c.Request(model.EventRoomMessage, model.RoomMessageRequest{Text: "one"}, &status)
	assert.True(t, status.OK)

	pushes := c.Request(model.EventRoomMessage, model.RoomMessageRequest{Text: "two"}, &status)
	assert.False(t, status.OK)

	var warned bool
	for _, env := range pushes {
		if env.Event == model.EventSystemMessage && strings.Contains(string(env.Data), "too quickly") {
			warned = true
		}
	}
	assert.True(t, warned)
	assert.Len(t, srv.Router.Rooms().RecentHistory("general", 0), 1)
}

func TestDisconnectAnnouncesLeave(t *testing.T) {
	srv := testutil.NewServer(t, testutil.DefaultLimits())
	alice, bob := srv.Dial(t), srv.Dial(t)
	join(t, alice, "Alice")
	join(t, bob, "Bob")

	alice.Close()

	for {
		var notice model.SystemNotice
		bob.Expect(model.EventSystemMessage, &notice)
		if notice.Text == "Alice left" {
			break
		}
	}

	assert.Eventually(t, func() bool { return srv.Hub.Len() == 1 }, time.Second, 10*time.Millisecond)
	list := srv.Router.Presence().CurrentList()
	require.Len(t, list, 1)
	assert.Equal(t, "Bob", list[0].Username)
}

func TestJoinRateLimited(t *testing.T) {
	srv := testutil.NewServer(t, handler.WsOptions{
		JoinRate: config.Limit{Requests: 1, Window: time.Minute},
	})
	c := srv.Dial(t)
	join(t, c, "Alice")

	var ack model.HistoryAck
	c.Request(model.EventJoinRoom, "dev", &ack)
	assert.False(t, ack.OK)

	p, ok := srv.Router.Registry().Lookup(onlyConn(t, srv))
	require.True(t, ok)
	assert.Equal(t, "general", p.CurrentRoom)
}

func onlyConn(t *testing.T, srv *testutil.Server) string {
	t.Helper()
	list := srv.Router.Registry().List()
	require.Len(t, list, 1)
	return list[0].ConnID
}
