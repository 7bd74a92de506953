package chat

import (
	"Wavecast/internal/api/dto"
	"Wavecast/internal/pkg/consts"
	"Wavecast/internal/pkg/redis"
	"Wavecast/internal/service"
	"context"
	log "log/slog"
	"time"

	json "github.com/goccy/go-json"
)

// DmHub 私信网关的共享依赖
type DmHub struct {
	bus         redis.Bus
	registry    *Registry
	msgService  service.DmMessageService
	convService service.ConversationService
	presence    *PresenceBroadcaster
}

func NewDmHub(bus redis.Bus, registry *Registry, msgService service.DmMessageService, convService service.ConversationService, presence *PresenceBroadcaster) *DmHub {
	return &DmHub{
		bus:         bus,
		registry:    registry,
		msgService:  msgService,
		convService: convService,
		presence:    presence,
	}
}

func (s *DmHub) Registry() *Registry {
	return s.registry
}

// Subscribe 订阅全部私信频道，每个进程启动时调用一次
func (s *DmHub) Subscribe(ctx context.Context) (func() error, error) {
	closer, err := s.bus.PSubscribe(ctx, s.dispatch, consts.DmEventsPattern, consts.DmMessagesPattern)
	if err != nil {
		return nil, err
	}
	return closer.Close, nil
}

// dispatch 剥掉路由提示后把事件投递给本进程内的接收者
func (s *DmHub) dispatch(_, channel string, payload []byte) {
	if !IsDmChannel(channel) {
		return
	}
	recipients, clean, err := StripRecipients(payload)
	if err != nil {
		log.Error("Failed to decode dm envelope", "channel", channel, "error", err)
		return
	}
	for _, userID := range recipients {
		conn, ok := s.registry.Get(userID)
		if !ok {
			continue
		}
		if err := conn.WriteMessage(clean); err != nil {
			log.Warn("Failed to deliver dm payload", "channel", channel, "user_id", userID, "error", err)
		}
	}
}

// publish 带路由提示发布私信事件
func (s *DmHub) publish(ctx context.Context, channel string, env *DmEnvelope) {
	payload, _ := json.Marshal(env)
	if err := s.bus.Publish(ctx, channel, payload); err != nil {
		log.Error("Failed to publish dm event", "channel", channel, "event", env.Type, "error", err)
	}
}

// DmSession 一条私信 WebSocket 连接的会话状态
type DmSession struct {
	hub      *DmHub
	conn     Conn
	userID   string
	username string
}

func NewDmSession(hub *DmHub, conn Conn, userID, username string) *DmSession {
	return &DmSession{hub: hub, conn: conn, userID: userID, username: username}
}

// Connect 登记连接并广播上线
func (s *DmSession) Connect(ctx context.Context) {
	if old := s.hub.registry.Register(s.userID, s.conn); old != nil {
		_ = old.Close()
	}
	s.hub.presence.Online(ctx, s.userID, s.username)
	log.Info("DM connection established", "user_id", s.userID, "connections", s.hub.registry.Count())
}

// Disconnect 注销连接；只有自己仍是登记连接时才广播下线，
// 避免重连竞态把新连接标成离线
func (s *DmSession) Disconnect(ctx context.Context) {
	if s.hub.registry.Unregister(s.userID, s.conn) {
		s.hub.presence.Offline(ctx, s.userID, s.username)
	}
	log.Info("DM connection closed", "user_id", s.userID)
}

// HandleFrame 处理一帧入站消息；解析失败或未知类型丢弃并记日志，连接保持
func (s *DmSession) HandleFrame(ctx context.Context, raw []byte) {
	var frame DmFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		log.Warn("Dropped unparseable dm frame", "user_id", s.userID, "error", err)
		return
	}

	switch frame.Type {
	case DmFrameSendMessage:
		s.handleSend(ctx, &frame)
	case DmFrameTypingStart:
		s.handleTyping(ctx, frame.ConversationID, consts.DmEventUserTyping)
	case DmFrameTypingStop:
		s.handleTyping(ctx, frame.ConversationID, consts.DmEventUserStoppedTyping)
	case DmFrameMarkRead:
		s.handleMarkRead(ctx, &frame)
	default:
		log.Warn("Dropped unknown dm frame type", "type", frame.Type, "user_id", s.userID)
	}
}

func (s *DmSession) handleSend(ctx context.Context, frame *DmFrame) {
	sender := dto.ParticipantInfo{UserID: s.userID, Username: s.username}
	result, err := s.hub.msgService.SendMessage(ctx, sender, frame.ConversationID, frame.MessageType, frame.Text, frame.ImageURLs, frame.ReplyTo)
	if err != nil {
		log.Warn("DM send rejected", "conversation_id", frame.ConversationID, "user_id", s.userID, "error", err)
		s.sendFailed(frame.ConversationID, err)
		return
	}

	// 发信人也在接收者里，作为发送成功的回执帧
	s.hub.publish(ctx, consts.DmMessagesChannel(frame.ConversationID), &DmEnvelope{
		Type:           consts.DmEventNewMessage,
		ConversationID: frame.ConversationID,
		RecipientIDs:   result.ParticipantIDs,
		Message:        result.Message,
	})
}

func (s *DmSession) handleTyping(ctx context.Context, convID uint64, eventType string) {
	if convID == 0 {
		return
	}
	recipients, err := s.recipientsExcludingSelf(ctx, convID)
	if err != nil || len(recipients) == 0 {
		return
	}
	s.hub.publish(ctx, consts.DmEventsChannel(convID), &DmEnvelope{
		Type:           eventType,
		ConversationID: convID,
		RecipientIDs:   recipients,
		UserID:         s.userID,
		Username:       s.username,
		Timestamp:      time.Now().UnixMilli(),
	})
}

// handleMarkRead 推进已读指针并广播回执；
// 不带 messageId 时由服务端解析为会话最新一条消息
func (s *DmSession) handleMarkRead(ctx context.Context, frame *DmFrame) {
	if frame.ConversationID == 0 {
		log.Warn("Dropped mark_read frame without conversationId", "user_id", s.userID)
		return
	}
	messageID, participants, err := s.hub.msgService.MarkRead(ctx, s.userID, frame.ConversationID, frame.MessageID)
	if err != nil {
		log.Warn("DM mark_read rejected", "conversation_id", frame.ConversationID, "user_id", s.userID, "error", err)
		return
	}
	// 空会话没有可指的消息，标记成功但无需回执
	if messageID == "" {
		return
	}
	recipients := exclude(participants, s.userID)
	if len(recipients) == 0 {
		return
	}
	s.hub.publish(ctx, consts.DmEventsChannel(frame.ConversationID), &DmEnvelope{
		Type:           consts.DmEventReadReceipt,
		ConversationID: frame.ConversationID,
		RecipientIDs:   recipients,
		UserID:         s.userID,
		MessageID:      messageID,
		Timestamp:      time.Now().UnixMilli(),
	})
}

// recipientsExcludingSelf 取会话成员并剔除发信人；自己不是成员时返回空
func (s *DmSession) recipientsExcludingSelf(ctx context.Context, convID uint64) ([]string, error) {
	ids, err := s.hub.convService.ParticipantIDs(ctx, convID)
	if err != nil {
		return nil, err
	}
	member := false
	for _, id := range ids {
		if id == s.userID {
			member = true
			break
		}
	}
	if !member {
		return nil, nil
	}
	return exclude(ids, s.userID), nil
}

// sendFailed 直接回推给发信人，不走总线；带错误键和可读文案
func (s *DmSession) sendFailed(convID uint64, cause error) {
	b, _ := json.Marshal(map[string]interface{}{
		"type":           consts.DmEventSendFailed,
		"conversationId": convID,
		"key":            service.KeyFor(cause),
		"message":        cause.Error(),
	})
	if err := s.conn.WriteMessage(b); err != nil {
		log.Warn("Failed to send dm error frame", "user_id", s.userID, "error", err)
	}
}

func exclude(ids []string, userID string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != userID {
			out = append(out, id)
		}
	}
	return out
}
