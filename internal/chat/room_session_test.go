package chat

import (
	"context"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
)

func newTestRoomHub(bus *fakeBus, membership *fakeMembership) *RoomHub {
	return NewRoomHub(bus, membership, NewRegistry(), nil, nil)
}

func frame(t string, fields map[string]interface{}) []byte {
	m := map[string]interface{}{"type": t}
	for k, v := range fields {
		m[k] = v
	}
	b, _ := json.Marshal(m)
	return b
}

func TestRoomSession_Join_Publishes_Join_Event(t *testing.T) {
	req := require.New(t)
	bus := &fakeBus{}
	membership := newFakeMembership()
	hub := newTestRoomHub(bus, membership)
	conn := &fakeConn{}
	session := NewRoomSession(hub, conn, "u1", "alice")
	session.Connect()

	// When the user joins a room with the wire-contract type string
	session.HandleFrame(context.Background(), frame("join", map[string]interface{}{"roomId": "r1"}))

	// Then membership is recorded and a join event is published
	in, _ := membership.Contains(context.Background(), "r1", "u1")
	req.True(in)

	pubs := bus.Published()
	req.Len(pubs, 1)
	req.Equal("room:r1:events", pubs[0].channel)

	var event RoomEvent
	req.NoError(json.Unmarshal(pubs[0].payload, &event))
	req.Equal("join", event.Type)
	req.Equal("u1", event.UserID)
	req.Equal("alice", event.Username)
	req.NotZero(event.Timestamp)
}

func TestRoomSession_Join_Same_Room_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	bus := &fakeBus{}
	hub := newTestRoomHub(bus, newFakeMembership())
	session := NewRoomSession(hub, &fakeConn{}, "u1", "alice")
	session.Connect()

	session.HandleFrame(context.Background(), frame("join", map[string]interface{}{"roomId": "r1"}))
	session.HandleFrame(context.Background(), frame("join", map[string]interface{}{"roomId": "r1"}))

	// Then only one join event was published
	req.Len(bus.Published(), 1)
}

func TestRoomSession_Join_Reregisters_When_Store_Disagrees(t *testing.T) {
	req := require.New(t)
	bus := &fakeBus{}
	membership := newFakeMembership()
	hub := newTestRoomHub(bus, membership)
	session := NewRoomSession(hub, &fakeConn{}, "u1", "alice")
	session.Connect()
	session.HandleFrame(context.Background(), frame("join", map[string]interface{}{"roomId": "r1"}))

	// Given the member set lost the user (e.g. external cleanup)
	req.NoError(membership.Remove(context.Background(), "r1", "u1"))

	// When the user joins the same room again
	session.HandleFrame(context.Background(), frame("join", map[string]interface{}{"roomId": "r1"}))

	// Then membership is restored and a second join event goes out
	in, _ := membership.Contains(context.Background(), "r1", "u1")
	req.True(in)
	req.Len(bus.Published(), 2)
}

func TestRoomSession_Join_Another_Room_Switches(t *testing.T) {
	req := require.New(t)
	bus := &fakeBus{}
	membership := newFakeMembership()
	hub := newTestRoomHub(bus, membership)
	session := NewRoomSession(hub, &fakeConn{}, "u1", "alice")
	session.Connect()

	session.HandleFrame(context.Background(), frame("join", map[string]interface{}{"roomId": "r1"}))
	session.HandleFrame(context.Background(), frame("join", map[string]interface{}{"roomId": "r2"}))

	// Then the user left r1 and joined r2
	inOld, _ := membership.Contains(context.Background(), "r1", "u1")
	inNew, _ := membership.Contains(context.Background(), "r2", "u1")
	req.False(inOld)
	req.True(inNew)

	// And events fired in order: joined r1, left r1, joined r2
	pubs := bus.Published()
	req.Len(pubs, 3)
	req.Equal("room:r1:events", pubs[0].channel)
	req.Equal("room:r1:events", pubs[1].channel)
	req.Equal("room:r2:events", pubs[2].channel)

	var left RoomEvent
	req.NoError(json.Unmarshal(pubs[1].payload, &left))
	req.Equal("leave", left.Type)
}

func TestRoomSession_Leave_For_Unheld_Room_Is_Dropped(t *testing.T) {
	req := require.New(t)
	bus := &fakeBus{}
	hub := newTestRoomHub(bus, newFakeMembership())
	conn := &fakeConn{}
	session := NewRoomSession(hub, conn, "u1", "alice")
	session.Connect()
	session.HandleFrame(context.Background(), frame("join", map[string]interface{}{"roomId": "r1"}))

	// When leaving a room the user is not in
	session.HandleFrame(context.Background(), frame("leave", map[string]interface{}{"roomId": "r2"}))

	// Then the frame is dropped silently: no leave event, no reply
	req.Len(bus.Published(), 1)
	req.Empty(conn.Frames())
}

func TestRoomSession_Leave_Verifies_Membership_Store(t *testing.T) {
	req := require.New(t)
	bus := &fakeBus{}
	membership := newFakeMembership()
	hub := newTestRoomHub(bus, membership)
	conn := &fakeConn{}
	session := NewRoomSession(hub, conn, "u1", "alice")
	session.Connect()
	session.HandleFrame(context.Background(), frame("join", map[string]interface{}{"roomId": "r1"}))

	// Given the member set lost the user while the local claim survived
	req.NoError(membership.Remove(context.Background(), "r1", "u1"))

	// When the user leaves
	session.HandleFrame(context.Background(), frame("leave", map[string]interface{}{"roomId": "r1"}))

	// Then no leave event is published
	req.Len(bus.Published(), 1)
	req.Empty(conn.Frames())
}

func TestRoomSession_Leave_Removes_Registry_Entry(t *testing.T) {
	req := require.New(t)
	bus := &fakeBus{}
	membership := newFakeMembership()
	hub := newTestRoomHub(bus, membership)
	conn := &fakeConn{}
	session := NewRoomSession(hub, conn, "u1", "alice")
	session.Connect()
	session.HandleFrame(context.Background(), frame("join", map[string]interface{}{"roomId": "r1"}))

	session.HandleFrame(context.Background(), frame("leave", map[string]interface{}{"roomId": "r1"}))

	// Then the connection is gone from the registry
	_, ok := hub.Registry().Get("u1")
	req.False(ok)

	// And a fresh join restores it without closing the live connection
	session.HandleFrame(context.Background(), frame("join", map[string]interface{}{"roomId": "r1"}))
	got, ok := hub.Registry().Get("u1")
	req.True(ok)
	req.Same(conn, got)
}

func TestRoomSession_Message_Without_Room_Is_Dropped(t *testing.T) {
	req := require.New(t)
	bus := &fakeBus{}
	hub := newTestRoomHub(bus, newFakeMembership())
	conn := &fakeConn{}
	session := NewRoomSession(hub, conn, "u1", "alice")
	session.Connect()

	session.HandleFrame(context.Background(), frame("message", map[string]interface{}{"text": "hi"}))

	req.Empty(bus.Published())
	req.Empty(conn.Frames())
}

func TestRoomSession_Message_Verifies_Membership_Store(t *testing.T) {
	req := require.New(t)
	bus := &fakeBus{}
	membership := newFakeMembership()
	hub := newTestRoomHub(bus, membership)
	conn := &fakeConn{}
	session := NewRoomSession(hub, conn, "u1", "alice")
	session.Connect()
	session.HandleFrame(context.Background(), frame("join", map[string]interface{}{"roomId": "r1"}))

	// Given the member set lost the user
	req.NoError(membership.Remove(context.Background(), "r1", "u1"))

	// When they send a message
	session.HandleFrame(context.Background(), frame("message", map[string]interface{}{"text": "hi"}))

	// Then nothing is published beyond the original join
	req.Len(bus.Published(), 1)
	req.Empty(conn.Frames())
}

func TestRoomSession_Message_Validates_Text(t *testing.T) {
	req := require.New(t)
	bus := &fakeBus{}
	hub := newTestRoomHub(bus, newFakeMembership())
	conn := &fakeConn{}
	session := NewRoomSession(hub, conn, "u1", "alice")
	session.Connect()
	session.HandleFrame(context.Background(), frame("join", map[string]interface{}{"roomId": "r1"}))

	// Blank text is rejected
	session.HandleFrame(context.Background(), frame("message", map[string]interface{}{"text": "   "}))
	// Oversized text is rejected
	session.HandleFrame(context.Background(), frame("message", map[string]interface{}{"text": strings.Repeat("a", maxMessageLen+1)}))

	// Only the join event went out
	req.Len(bus.Published(), 1)
	frames := conn.Frames()
	req.Len(frames, 2)
	req.Contains(string(frames[0]), KeyEmptyMessage)
	req.Contains(string(frames[1]), KeyMessageTooLong)
}

func TestRoomSession_Message_Publishes_To_Room_Channel(t *testing.T) {
	req := require.New(t)
	bus := &fakeBus{}
	hub := newTestRoomHub(bus, newFakeMembership())
	session := NewRoomSession(hub, &fakeConn{}, "u1", "alice")
	session.Connect()
	session.HandleFrame(context.Background(), frame("join", map[string]interface{}{"roomId": "r1"}))

	session.HandleFrame(context.Background(), frame("message", map[string]interface{}{"text": "hello"}))

	pubs := bus.Published()
	req.Len(pubs, 2)
	req.Equal("room:r1:messages", pubs[1].channel)

	var msg RoomChatMessage
	req.NoError(json.Unmarshal(pubs[1].payload, &msg))
	req.Equal("message", msg.Type)
	req.Equal("u1", msg.SenderID)
	req.Equal("alice", msg.SenderName)
	req.Equal("hello", msg.Text)
}

func TestRoomSession_Unknown_Frame_Type_Is_Dropped(t *testing.T) {
	req := require.New(t)
	bus := &fakeBus{}
	hub := newTestRoomHub(bus, newFakeMembership())
	conn := &fakeConn{}
	session := NewRoomSession(hub, conn, "u1", "alice")
	session.Connect()

	session.HandleFrame(context.Background(), frame("shout", map[string]interface{}{"roomId": "r1"}))
	session.HandleFrame(context.Background(), []byte("not json"))

	// Connection stays usable, nothing was published or replied
	req.Empty(bus.Published())
	req.Empty(conn.Frames())
}

func TestRoomSession_Disconnect_Leaves_Current_Room(t *testing.T) {
	req := require.New(t)
	bus := &fakeBus{}
	membership := newFakeMembership()
	hub := newTestRoomHub(bus, membership)
	conn := &fakeConn{}
	session := NewRoomSession(hub, conn, "u1", "alice")
	session.Connect()
	session.HandleFrame(context.Background(), frame("join", map[string]interface{}{"roomId": "r1"}))

	session.Disconnect(context.Background())

	in, _ := membership.Contains(context.Background(), "r1", "u1")
	req.False(in)
	_, ok := hub.Registry().Get("u1")
	req.False(ok)

	pubs := bus.Published()
	req.Len(pubs, 2)
	var event RoomEvent
	req.NoError(json.Unmarshal(pubs[1].payload, &event))
	req.Equal("leave", event.Type)
}

func TestRoomHub_Dispatch_Delivers_To_Local_Members_Only(t *testing.T) {
	req := require.New(t)
	bus := &fakeBus{loopback: true}
	membership := newFakeMembership()
	hub := newTestRoomHub(bus, membership)
	_, err := hub.Subscribe(context.Background())
	req.NoError(err)

	// Given two local members and one member on another instance
	local1 := &fakeConn{}
	local2 := &fakeConn{}
	s1 := NewRoomSession(hub, local1, "u1", "alice")
	s2 := NewRoomSession(hub, local2, "u2", "bob")
	s1.Connect()
	s2.Connect()
	s1.HandleFrame(context.Background(), frame("join", map[string]interface{}{"roomId": "r1"}))
	s2.HandleFrame(context.Background(), frame("join", map[string]interface{}{"roomId": "r1"}))
	req.NoError(membership.Add(context.Background(), "r1", "remote-user"))

	// When a message is published
	s1.HandleFrame(context.Background(), frame("message", map[string]interface{}{"text": "hello"}))

	// Then both local members received it, sender included
	last1 := local1.Frames()[len(local1.Frames())-1]
	last2 := local2.Frames()[len(local2.Frames())-1]
	req.Contains(string(last1), "hello")
	req.Contains(string(last2), "hello")
}
