package chat

import (
	"Wavecast/internal/api/dto"
	"Wavecast/internal/pkg/consts"
	"Wavecast/internal/service"
	"context"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
)

// fakeConvService 只实现网关用到的查询，其余方法不会被调用
type fakeConvService struct {
	participants map[uint64][]string
	pages        []*dto.ConversationListDTO
}

func (f *fakeConvService) ParticipantIDs(_ context.Context, convID uint64) ([]string, error) {
	return f.participants[convID], nil
}

func (f *fakeConvService) ListConversations(_ context.Context, _ string, page, _ int) (*dto.ConversationListDTO, error) {
	if page < len(f.pages) {
		return f.pages[page], nil
	}
	return &dto.ConversationListDTO{}, nil
}

func (f *fakeConvService) CreateConversation(context.Context, dto.ParticipantInfo, *dto.CreateConversationReq) (*dto.ConversationDTO, error) {
	panic("not used")
}
func (f *fakeConvService) GetConversation(context.Context, string, uint64) (*dto.ConversationDTO, error) {
	panic("not used")
}
func (f *fakeConvService) UpdateConversation(context.Context, string, uint64, *dto.UpdateConversationReq) (*dto.ConversationDTO, error) {
	panic("not used")
}
func (f *fakeConvService) AddParticipant(context.Context, string, uint64, dto.ParticipantInfo) (*dto.ConversationDTO, error) {
	panic("not used")
}
func (f *fakeConvService) RemoveParticipant(context.Context, string, uint64, string) error {
	panic("not used")
}
func (f *fakeConvService) LeaveConversation(context.Context, string, uint64) error {
	panic("not used")
}

type fakeMsgService struct {
	sendResult *dto.SendMessageResult
	sendErr    error

	markReadCalls    []string // 实际收到的 messageId 实参
	markReadResolved string   // messageId 为空时解析出的最新消息
	markReadIDs      []string
	markReadErr      error
}

func (f *fakeMsgService) SendMessage(_ context.Context, _ dto.ParticipantInfo, _ uint64, _, _ string, _ []string, _ string) (*dto.SendMessageResult, error) {
	return f.sendResult, f.sendErr
}

func (f *fakeMsgService) MarkRead(_ context.Context, _ string, _ uint64, messageID string) (string, []string, error) {
	f.markReadCalls = append(f.markReadCalls, messageID)
	if f.markReadErr != nil {
		return "", nil, f.markReadErr
	}
	resolved := messageID
	if resolved == "" {
		resolved = f.markReadResolved
	}
	return resolved, f.markReadIDs, nil
}

func (f *fakeMsgService) GetMessages(context.Context, string, uint64, string, int) ([]*dto.DmMessageDTO, error) {
	panic("not used")
}
func (f *fakeMsgService) EditMessage(context.Context, string, uint64, string, string) (*dto.DmMessageDTO, error) {
	panic("not used")
}
func (f *fakeMsgService) DeleteMessage(context.Context, string, uint64, string) error {
	panic("not used")
}
func (f *fakeMsgService) UnreadCount(context.Context, string, uint64) (int64, error) {
	panic("not used")
}

func newTestDmHub(bus *fakeBus, msgSvc service.DmMessageService, convSvc service.ConversationService) *DmHub {
	registry := NewRegistry()
	presence := NewPresenceBroadcaster(registry, convSvc)
	return NewDmHub(bus, registry, msgSvc, convSvc, presence)
}

func TestDmSession_Send_Publishes_Envelope_With_Recipients(t *testing.T) {
	req := require.New(t)
	bus := &fakeBus{}
	msgSvc := &fakeMsgService{
		sendResult: &dto.SendMessageResult{
			Message: &dto.DmMessageDTO{
				ID:             "m1",
				ConversationID: 7,
				SenderID:       "u1",
				Text:           "hello",
				CreatedAt:      time.Now(),
			},
			ParticipantIDs: []string{"u1", "u2"},
		},
	}
	hub := newTestDmHub(bus, msgSvc, &fakeConvService{})
	session := NewDmSession(hub, &fakeConn{}, "u1", "alice")

	session.HandleFrame(context.Background(), frame(DmFrameSendMessage, map[string]interface{}{
		"conversationId": 7,
		"text":           "hello",
	}))

	pubs := bus.Published()
	req.Len(pubs, 1)
	req.Equal("dm:7:messages", pubs[0].channel)

	var env DmEnvelope
	req.NoError(json.Unmarshal(pubs[0].payload, &env))
	req.Equal(consts.DmEventNewMessage, env.Type)
	req.Equal([]string{"u1", "u2"}, env.RecipientIDs)
	req.Equal("m1", env.Message.ID)
}

func TestDmSession_Send_Failure_Reports_To_Sender_Only(t *testing.T) {
	req := require.New(t)
	bus := &fakeBus{}
	msgSvc := &fakeMsgService{sendErr: service.ErrNotParticipant}
	hub := newTestDmHub(bus, msgSvc, &fakeConvService{})
	conn := &fakeConn{}
	session := NewDmSession(hub, conn, "u1", "alice")

	session.HandleFrame(context.Background(), frame(DmFrameSendMessage, map[string]interface{}{
		"conversationId": 7,
		"text":           "hello",
	}))

	// Nothing was published to the bus
	req.Empty(bus.Published())

	// And the sender got a send_failed frame carrying the error key and a readable message
	frames := conn.Frames()
	req.Len(frames, 1)
	req.Contains(string(frames[0]), consts.DmEventSendFailed)
	req.Contains(string(frames[0]), "res_err_not_participant")
	req.Contains(string(frames[0]), service.ErrNotParticipant.Error())
}

func TestDmSession_Unknown_Frame_Type_Is_Dropped(t *testing.T) {
	req := require.New(t)
	bus := &fakeBus{}
	hub := newTestDmHub(bus, &fakeMsgService{}, &fakeConvService{})
	conn := &fakeConn{}
	session := NewDmSession(hub, conn, "u1", "alice")

	session.HandleFrame(context.Background(), frame("dm:wave", map[string]interface{}{"conversationId": 7}))
	session.HandleFrame(context.Background(), []byte("not json"))

	// Connection stays usable, nothing was published or replied
	req.Empty(bus.Published())
	req.Empty(conn.Frames())
}

func TestDmSession_Typing_Excludes_Sender(t *testing.T) {
	req := require.New(t)
	bus := &fakeBus{}
	convSvc := &fakeConvService{participants: map[uint64][]string{7: {"u1", "u2", "u3"}}}
	hub := newTestDmHub(bus, &fakeMsgService{}, convSvc)
	session := NewDmSession(hub, &fakeConn{}, "u1", "alice")

	session.HandleFrame(context.Background(), frame(DmFrameTypingStart, map[string]interface{}{
		"conversationId": 7,
	}))

	pubs := bus.Published()
	req.Len(pubs, 1)
	req.Equal("dm:7:events", pubs[0].channel)

	var env DmEnvelope
	req.NoError(json.Unmarshal(pubs[0].payload, &env))
	req.Equal(consts.DmEventUserTyping, env.Type)
	req.Equal([]string{"u2", "u3"}, env.RecipientIDs)
	req.Equal("u1", env.UserID)
}

func TestDmSession_Typing_Requires_Membership(t *testing.T) {
	req := require.New(t)
	bus := &fakeBus{}
	convSvc := &fakeConvService{participants: map[uint64][]string{7: {"u2", "u3"}}}
	hub := newTestDmHub(bus, &fakeMsgService{}, convSvc)
	session := NewDmSession(hub, &fakeConn{}, "u1", "alice")

	session.HandleFrame(context.Background(), frame(DmFrameTypingStart, map[string]interface{}{
		"conversationId": 7,
	}))

	req.Empty(bus.Published())
}

func TestDmSession_MarkRead_Broadcasts_Receipt(t *testing.T) {
	req := require.New(t)
	bus := &fakeBus{}
	msgSvc := &fakeMsgService{markReadIDs: []string{"u1", "u2"}}
	hub := newTestDmHub(bus, msgSvc, &fakeConvService{})
	session := NewDmSession(hub, &fakeConn{}, "u1", "alice")

	session.HandleFrame(context.Background(), frame(DmFrameMarkRead, map[string]interface{}{
		"conversationId": 7,
		"messageId":      "m9",
	}))

	pubs := bus.Published()
	req.Len(pubs, 1)

	var env DmEnvelope
	req.NoError(json.Unmarshal(pubs[0].payload, &env))
	req.Equal(consts.DmEventReadReceipt, env.Type)
	req.Equal([]string{"u2"}, env.RecipientIDs)
	req.Equal("m9", env.MessageID)
}

func TestDmSession_MarkRead_Without_MessageID_Uses_Latest(t *testing.T) {
	req := require.New(t)
	bus := &fakeBus{}
	msgSvc := &fakeMsgService{markReadResolved: "m42", markReadIDs: []string{"u1", "u2"}}
	hub := newTestDmHub(bus, msgSvc, &fakeConvService{})
	session := NewDmSession(hub, &fakeConn{}, "u1", "alice")

	// When marking read with no explicit messageId
	session.HandleFrame(context.Background(), frame(DmFrameMarkRead, map[string]interface{}{
		"conversationId": 7,
	}))

	// Then the frame still reaches the service with an empty id
	req.Equal([]string{""}, msgSvc.markReadCalls)

	// And the receipt carries the resolved latest message id
	pubs := bus.Published()
	req.Len(pubs, 1)
	var env DmEnvelope
	req.NoError(json.Unmarshal(pubs[0].payload, &env))
	req.Equal(consts.DmEventReadReceipt, env.Type)
	req.Equal("m42", env.MessageID)
}

func TestDmSession_MarkRead_Empty_Conversation_Publishes_Nothing(t *testing.T) {
	req := require.New(t)
	bus := &fakeBus{}
	msgSvc := &fakeMsgService{markReadIDs: []string{"u1", "u2"}}
	hub := newTestDmHub(bus, msgSvc, &fakeConvService{})
	conn := &fakeConn{}
	session := NewDmSession(hub, conn, "u1", "alice")

	// Given no messages exist, the service resolves to an empty id
	session.HandleFrame(context.Background(), frame(DmFrameMarkRead, map[string]interface{}{
		"conversationId": 7,
	}))

	req.Len(msgSvc.markReadCalls, 1)
	req.Empty(bus.Published())
	req.Empty(conn.Frames())
}

func TestDmHub_Dispatch_Strips_Recipient_Hints(t *testing.T) {
	req := require.New(t)
	bus := &fakeBus{loopback: true}
	convSvc := &fakeConvService{participants: map[uint64][]string{7: {"u1", "u2"}}}
	msgSvc := &fakeMsgService{
		sendResult: &dto.SendMessageResult{
			Message:        &dto.DmMessageDTO{ID: "m1", ConversationID: 7, SenderID: "u1", Text: "hi"},
			ParticipantIDs: []string{"u1", "u2"},
		},
	}
	hub := newTestDmHub(bus, msgSvc, convSvc)
	_, err := hub.Subscribe(context.Background())
	req.NoError(err)

	// u2 is connected locally, u1 sends from this instance too
	sender := &fakeConn{}
	receiver := &fakeConn{}
	hub.Registry().Register("u1", sender)
	hub.Registry().Register("u2", receiver)

	session := NewDmSession(hub, sender, "u1", "alice")
	session.HandleFrame(context.Background(), frame(DmFrameSendMessage, map[string]interface{}{
		"conversationId": 7,
		"text":           "hi",
	}))

	// Both sides got the event, with the routing hint removed
	for _, conn := range []*fakeConn{sender, receiver} {
		frames := conn.Frames()
		req.Len(frames, 1)
		req.Contains(string(frames[0]), consts.DmEventNewMessage)
		req.NotContains(string(frames[0]), "recipientIds")
	}
}

func TestStripRecipients_Removes_Hint_And_Keeps_Payload(t *testing.T) {
	req := require.New(t)

	payload := []byte(`{"type":"dm:new_message","conversationId":7,"recipientIds":["a","b"],"messageId":"m1"}`)
	recipients, clean, err := StripRecipients(payload)

	req.NoError(err)
	req.Equal([]string{"a", "b"}, recipients)
	req.NotContains(string(clean), "recipientIds")
	req.Contains(string(clean), `"messageId"`)
}
