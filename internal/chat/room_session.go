package chat

import (
	"Wavecast/internal/pkg/consts"
	"Wavecast/internal/pkg/mongo"
	"Wavecast/internal/pkg/redis"
	"context"
	log "log/slog"
	"strings"
	"time"
	"unicode/utf8"

	json "github.com/goccy/go-json"
)

const maxMessageLen = 2000 // 文本消息字符数上限

// 房间协议校验错误的 i18n 键
const (
	KeyEmptyMessage   = "res_err_empty_message"
	KeyMessageTooLong = "res_err_message_too_long"
)

// ActivitySink 聊天活跃度旁路上报，失败不影响主链路
type ActivitySink interface {
	RecordRoomMessage(roomID, senderID string)
}

// RoomHub 房间网关的共享依赖，所有房间连接复用一份
type RoomHub struct {
	bus        redis.Bus
	membership MembershipStore
	registry   *Registry
	msgRepo    mongo.RoomMessageRepo
	activity   ActivitySink
}

func NewRoomHub(bus redis.Bus, membership MembershipStore, registry *Registry, msgRepo mongo.RoomMessageRepo, activity ActivitySink) *RoomHub {
	return &RoomHub{
		bus:        bus,
		membership: membership,
		registry:   registry,
		msgRepo:    msgRepo,
		activity:   activity,
	}
}

func (s *RoomHub) Registry() *Registry {
	return s.registry
}

// Subscribe 订阅全部房间频道，每个进程启动时调用一次
func (s *RoomHub) Subscribe(ctx context.Context) (func() error, error) {
	closer, err := s.bus.PSubscribe(ctx, s.dispatch, consts.RoomEventsPattern, consts.RoomMessagesPattern)
	if err != nil {
		return nil, err
	}
	return closer.Close, nil
}

// dispatch 把总线上的房间事件投递给本进程内的房间成员
func (s *RoomHub) dispatch(_, channel string, payload []byte) {
	roomID := RoomIDFromChannel(channel)
	if roomID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	members, err := s.membership.Members(ctx, roomID)
	if err != nil {
		log.Error("Failed to load room members for dispatch", "room_id", roomID, "error", err)
		return
	}
	for _, userID := range members {
		conn, ok := s.registry.Get(userID)
		if !ok {
			continue
		}
		if err := conn.WriteMessage(payload); err != nil {
			// 单个连接写失败不影响其他接收者
			log.Warn("Failed to deliver room payload", "room_id", roomID, "user_id", userID, "error", err)
		}
	}
}

// RoomSession 一条房间 WebSocket 连接的会话状态，同一时刻最多身处一个房间
type RoomSession struct {
	hub      *RoomHub
	conn     Conn
	userID   string
	username string

	currentRoom string
}

func NewRoomSession(hub *RoomHub, conn Conn, userID, username string) *RoomSession {
	return &RoomSession{hub: hub, conn: conn, userID: userID, username: username}
}

// Connect 登记连接；同一用户的旧连接被顶下线
func (s *RoomSession) Connect() {
	if old := s.hub.registry.Register(s.userID, s.conn); old != nil {
		_ = old.Close()
	}
	log.Info("Room connection established", "user_id", s.userID, "connections", s.hub.registry.Count())
}

// HandleFrame 处理一帧入站消息；解析失败或未知类型按恶意输入处理，
// 丢弃并记日志，连接保持
func (s *RoomSession) HandleFrame(ctx context.Context, raw []byte) {
	var frame RoomFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		log.Warn("Dropped unparseable room frame", "user_id", s.userID, "error", err)
		return
	}

	switch frame.Type {
	case RoomTypeJoin:
		s.handleJoin(ctx, frame.RoomID)
	case RoomTypeLeave:
		s.handleLeave(ctx, frame.RoomID)
	case RoomTypeMessage:
		s.handleMessage(ctx, frame.Text)
	default:
		log.Warn("Dropped unknown room frame type", "type", frame.Type, "user_id", s.userID)
	}
}

// handleJoin 加入房间；重复加入同一房间且成员集确认在场时为幂等空操作，
// 成员集不一致（如被清理任务移除）则重新登记，加入另一房间视为切换
func (s *RoomSession) handleJoin(ctx context.Context, roomID string) {
	if roomID == "" {
		log.Warn("Dropped join frame without roomId", "user_id", s.userID)
		return
	}
	if s.currentRoom == roomID {
		in, err := s.hub.membership.Contains(ctx, roomID, s.userID)
		if err != nil {
			log.Error("Failed to verify room membership", "room_id", roomID, "user_id", s.userID, "error", err)
			return
		}
		if in {
			return
		}
	} else if s.currentRoom != "" {
		if err := s.leaveRoom(ctx, s.currentRoom); err != nil {
			log.Error("Failed to leave previous room", "room_id", s.currentRoom, "user_id", s.userID, "error", err)
		}
	}

	if err := s.hub.membership.Add(ctx, roomID, s.userID); err != nil {
		log.Error("Failed to join room", "room_id", roomID, "user_id", s.userID, "error", err)
		s.sendError("res_err_internal_server")
		return
	}
	// 显式退出会摘掉注册表条目，重新进房要补回来；
	// 同一连接重复登记时 Swap 会返回自己，不能误关
	if old := s.hub.registry.Register(s.userID, s.conn); old != nil && old != s.conn {
		_ = old.Close()
	}
	s.currentRoom = roomID
	s.publishEvent(ctx, roomID, RoomTypeJoin)
}

// handleLeave 退出房间；本地声明与成员集都必须确认在场，
// 越权操作静默丢弃，只记日志
func (s *RoomSession) handleLeave(ctx context.Context, roomID string) {
	if roomID == "" || s.currentRoom != roomID {
		log.Warn("Dropped leave for a room the connection does not hold", "room_id", roomID, "user_id", s.userID)
		return
	}
	in, err := s.hub.membership.Contains(ctx, roomID, s.userID)
	if err != nil {
		log.Error("Failed to verify room membership", "room_id", roomID, "user_id", s.userID, "error", err)
		return
	}
	if !in {
		// 成员集已不含此人，本地声明作废，不再发布离开事件
		log.Warn("Dropped leave, membership store no longer lists user", "room_id", roomID, "user_id", s.userID)
		s.currentRoom = ""
		return
	}
	if err := s.leaveRoom(ctx, roomID); err != nil {
		log.Error("Failed to leave room", "room_id", roomID, "user_id", s.userID, "error", err)
		return
	}
	s.hub.registry.Unregister(s.userID, s.conn)
}

func (s *RoomSession) handleMessage(ctx context.Context, text string) {
	if s.currentRoom == "" {
		log.Warn("Dropped message frame without a room", "user_id", s.userID)
		return
	}
	in, err := s.hub.membership.Contains(ctx, s.currentRoom, s.userID)
	if err != nil {
		log.Error("Failed to verify room membership", "room_id", s.currentRoom, "user_id", s.userID, "error", err)
		return
	}
	if !in {
		log.Warn("Dropped message, membership store no longer lists user", "room_id", s.currentRoom, "user_id", s.userID)
		s.currentRoom = ""
		return
	}
	text = strings.TrimSpace(text)
	if text == "" {
		s.sendError(KeyEmptyMessage)
		return
	}
	if utf8.RuneCountInString(text) > maxMessageLen {
		s.sendError(KeyMessageTooLong)
		return
	}

	msg := RoomChatMessage{
		Type:       RoomTypeMessage,
		RoomID:     s.currentRoom,
		SenderID:   s.userID,
		SenderName: s.username,
		Text:       text,
		Timestamp:  time.Now().UnixMilli(),
	}
	payload, _ := json.Marshal(msg)
	if err := s.hub.bus.Publish(ctx, RoomMessagesChannel(s.currentRoom), payload); err != nil {
		log.Error("Failed to publish room message", "room_id", s.currentRoom, "error", err)
		s.sendError("res_err_internal_server")
		return
	}

	// 落库与活跃度上报在旁路进行，不阻塞收发
	go s.persist(msg)
}

func (s *RoomSession) persist(msg RoomChatMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if s.hub.activity != nil {
		s.hub.activity.RecordRoomMessage(msg.RoomID, msg.SenderID)
	}
	if s.hub.msgRepo == nil {
		return
	}
	if err := s.hub.msgRepo.SaveMessage(ctx, &mongo.RoomMessage{
		RoomID:     msg.RoomID,
		SenderID:   msg.SenderID,
		SenderName: msg.SenderName,
		Text:       msg.Text,
		Timestamp:  msg.Timestamp,
	}); err != nil {
		log.Error("Failed to persist room message", "room_id", msg.RoomID, "error", err)
	}
}

// Disconnect 连接断开等价于退出当前房间
func (s *RoomSession) Disconnect(ctx context.Context) {
	if s.currentRoom != "" {
		if err := s.leaveRoom(ctx, s.currentRoom); err != nil {
			log.Error("Failed to leave room on disconnect", "room_id", s.currentRoom, "user_id", s.userID, "error", err)
		}
	}
	s.hub.registry.Unregister(s.userID, s.conn)
	log.Info("Room connection closed", "user_id", s.userID)
}

func (s *RoomSession) leaveRoom(ctx context.Context, roomID string) error {
	if err := s.hub.membership.Remove(ctx, roomID, s.userID); err != nil {
		return err
	}
	s.currentRoom = ""
	s.publishEvent(ctx, roomID, RoomTypeLeave)
	return nil
}

func (s *RoomSession) publishEvent(ctx context.Context, roomID, eventType string) {
	payload, _ := json.Marshal(RoomEvent{
		Type:      eventType,
		RoomID:    roomID,
		UserID:    s.userID,
		Username:  s.username,
		Timestamp: time.Now().UnixMilli(),
	})
	if err := s.hub.bus.Publish(ctx, RoomEventsChannel(roomID), payload); err != nil {
		log.Error("Failed to publish room event", "room_id", roomID, "event", eventType, "error", err)
	}
}

func (s *RoomSession) sendError(key string) {
	if err := s.conn.WriteMessage(NewErrorFrame(key)); err != nil {
		log.Warn("Failed to send error frame", "user_id", s.userID, "error", err)
	}
}
