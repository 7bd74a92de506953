package service

import (
	"Wavecast/internal/api/dto"
	"Wavecast/internal/pkg/consts"
	"Wavecast/internal/pkg/mongo"
	"Wavecast/internal/pkg/redis"
	"Wavecast/internal/repository"
	"context"
	"errors"
	log "log/slog"
	"strings"
	"time"
	"unicode/utf8"

	json "github.com/goccy/go-json"
	"github.com/jinzhu/copier"
	mongodrv "go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

// maxDmTextLen 私信文本字符数上限
const maxDmTextLen = 2000

type DmMessageService interface {
	SendMessage(ctx context.Context, sender dto.ParticipantInfo, convID uint64, msgType, text string, imageURLs []string, replyTo string) (*dto.SendMessageResult, error)
	GetMessages(ctx context.Context, userID string, convID uint64, before string, limit int) ([]*dto.DmMessageDTO, error)
	EditMessage(ctx context.Context, userID string, convID uint64, messageID, text string) (*dto.DmMessageDTO, error)
	DeleteMessage(ctx context.Context, userID string, convID uint64, messageID string) error
	// MarkRead 推进已读指针，返回实际指向的消息和会话成员供网关广播回执。
	// messageID 为空时取会话最新一条；空会话不报错，返回空 ID
	MarkRead(ctx context.Context, userID string, convID uint64, messageID string) (string, []string, error)
	UnreadCount(ctx context.Context, userID string, convID uint64) (int64, error)
}

type dmMessageServiceImpl struct {
	convRepo repository.ConversationRepo
	msgRepo  mongo.DmMessageRepo
	bus      redis.Bus
}

func NewDmMessageService(convRepo repository.ConversationRepo, msgRepo mongo.DmMessageRepo, bus redis.Bus) DmMessageService {
	return &dmMessageServiceImpl{convRepo: convRepo, msgRepo: msgRepo, bus: bus}
}

// SendMessage 校验、落库并刷新会话快照；投递由网关负责
func (s *dmMessageServiceImpl) SendMessage(ctx context.Context, sender dto.ParticipantInfo, convID uint64, msgType, text string, imageURLs []string, replyTo string) (*dto.SendMessageResult, error) {
	ids, err := s.requireParticipant(ctx, convID, sender.UserID)
	if err != nil {
		return nil, err
	}

	if msgType == "" {
		msgType = mongo.DmMessageTypeText
	}
	text = strings.TrimSpace(text)
	switch msgType {
	case mongo.DmMessageTypeText:
		if text == "" {
			return nil, ErrInvalidInput
		}
	case mongo.DmMessageTypeImage:
		if len(imageURLs) == 0 {
			return nil, ErrInvalidInput
		}
	default:
		return nil, ErrInvalidInput
	}
	if utf8.RuneCountInString(text) > maxDmTextLen {
		return nil, ErrInvalidInput
	}

	now := time.Now()
	msg := &mongo.DmMessage{
		ConversationID: convID,
		SenderID:       sender.UserID,
		SenderUsername: sender.Username,
		Type:           msgType,
		Text:           text,
		ImageURLs:      imageURLs,
		ReplyTo:        replyTo,
		ReadBy:         []mongo.ReadReceipt{{UserID: sender.UserID, ReadAt: now}},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.msgRepo.SaveMessage(ctx, msg); err != nil {
		log.Error("Failed to save dm message", "conversation_id", convID, "error", err)
		return nil, UnExpectedError
	}

	if err := s.convRepo.UpdateLastMessage(ctx, convID, msg.ID, sender.UserID, sender.Username, text, now); err != nil {
		log.Error("Failed to refresh last message snapshot", "conversation_id", convID, "error", err)
	}
	// 发信人自己的已读指针直接推到新消息
	if err := s.convRepo.UpdateLastRead(ctx, convID, sender.UserID, msg.ID); err != nil {
		log.Error("Failed to advance sender read pointer", "conversation_id", convID, "error", err)
	}

	return &dto.SendMessageResult{
		Message:        s.toDTO(msg),
		ParticipantIDs: ids,
	}, nil
}

func (s *dmMessageServiceImpl) GetMessages(ctx context.Context, userID string, convID uint64, before string, limit int) ([]*dto.DmMessageDTO, error) {
	if _, err := s.requireParticipant(ctx, convID, userID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	msgs, err := s.msgRepo.GetMessages(ctx, convID, before, limit)
	if err != nil {
		if errors.Is(err, mongo.ErrInvalidObjectID) {
			return nil, ErrInvalidInput
		}
		log.Error("Failed to load dm messages", "conversation_id", convID, "error", err)
		return nil, UnExpectedError
	}

	out := make([]*dto.DmMessageDTO, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, s.toDTO(m))
	}
	return out, nil
}

// EditMessage 只有发信人能编辑，且仅限文本消息
func (s *dmMessageServiceImpl) EditMessage(ctx context.Context, userID string, convID uint64, messageID, text string) (*dto.DmMessageDTO, error) {
	ids, err := s.requireParticipant(ctx, convID, userID)
	if err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" || utf8.RuneCountInString(text) > maxDmTextLen {
		return nil, ErrInvalidInput
	}

	msg, err := s.loadMessage(ctx, convID, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != userID {
		return nil, ErrForbidden
	}
	if msg.Type != mongo.DmMessageTypeText {
		return nil, ErrInvalidInput
	}

	if err := s.msgRepo.UpdateText(ctx, convID, messageID, text); err != nil {
		log.Error("Failed to edit dm message", "message_id", messageID, "error", err)
		return nil, UnExpectedError
	}
	msg.Text = text
	msg.UpdatedAt = time.Now()

	// 编辑的是最后一条消息时同步刷新列表快照
	s.refreshSnapshotIfLast(ctx, convID, messageID, msg.SenderID, msg.SenderUsername, text, msg.CreatedAt)

	out := s.toDTO(msg)
	s.publishMessageEvent(ctx, convID, consts.DmEventMessageEdited, ids, messageID, out)
	return out, nil
}

// DeleteMessage 软删除：保留占位，正文清空
func (s *dmMessageServiceImpl) DeleteMessage(ctx context.Context, userID string, convID uint64, messageID string) error {
	ids, err := s.requireParticipant(ctx, convID, userID)
	if err != nil {
		return err
	}
	msg, err := s.loadMessage(ctx, convID, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID != userID {
		return ErrForbidden
	}

	if err := s.msgRepo.SoftDelete(ctx, convID, messageID); err != nil {
		log.Error("Failed to delete dm message", "message_id", messageID, "error", err)
		return UnExpectedError
	}
	s.refreshSnapshotIfLast(ctx, convID, messageID, msg.SenderID, msg.SenderUsername, "", msg.CreatedAt)

	s.publishMessageEvent(ctx, convID, consts.DmEventMessageDeleted, ids, messageID, nil)
	return nil
}

func (s *dmMessageServiceImpl) MarkRead(ctx context.Context, userID string, convID uint64, messageID string) (string, []string, error) {
	ids, err := s.requireParticipant(ctx, convID, userID)
	if err != nil {
		return "", nil, err
	}
	if messageID == "" {
		latest, err := s.msgRepo.LatestMessage(ctx, convID)
		if err != nil {
			log.Error("Failed to find latest message", "conversation_id", convID, "error", err)
			return "", nil, UnExpectedError
		}
		if latest == nil {
			return "", ids, nil
		}
		messageID = latest.ID
	} else if _, err := s.loadMessage(ctx, convID, messageID); err != nil {
		return "", nil, err
	}
	if err := s.convRepo.UpdateLastRead(ctx, convID, userID, messageID); err != nil {
		log.Error("Failed to advance read pointer", "conversation_id", convID, "user_id", userID, "error", err)
		return "", nil, UnExpectedError
	}
	return messageID, ids, nil
}

// UnreadCount 基于已读指针统计他人发送的未读消息数
func (s *dmMessageServiceImpl) UnreadCount(ctx context.Context, userID string, convID uint64) (int64, error) {
	conv, err := s.convRepo.Get(ctx, convID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrConversationGone
		}
		return 0, UnExpectedError
	}

	lastRead := ""
	found := false
	for i := range conv.Participants {
		if conv.Participants[i].UserID == userID {
			lastRead = conv.Participants[i].LastReadMessageID
			found = true
			break
		}
	}
	if !found {
		return 0, ErrNotParticipant
	}

	count, err := s.msgRepo.CountUnread(ctx, convID, lastRead, userID)
	if err != nil {
		log.Error("Failed to count unread", "conversation_id", convID, "user_id", userID, "error", err)
		return 0, UnExpectedError
	}
	return count, nil
}

// requireParticipant 校验成员身份并返回全体成员 ID
func (s *dmMessageServiceImpl) requireParticipant(ctx context.Context, convID uint64, userID string) ([]string, error) {
	if convID == 0 {
		return nil, ErrInvalidInput
	}
	ids, err := s.convRepo.ParticipantIDs(ctx, convID)
	if err != nil {
		log.Error("Failed to load participants", "conversation_id", convID, "error", err)
		return nil, UnExpectedError
	}
	if len(ids) == 0 {
		return nil, ErrConversationGone
	}
	for _, id := range ids {
		if id == userID {
			return ids, nil
		}
	}
	return nil, ErrNotParticipant
}

func (s *dmMessageServiceImpl) loadMessage(ctx context.Context, convID uint64, messageID string) (*mongo.DmMessage, error) {
	msg, err := s.msgRepo.GetMessage(ctx, convID, messageID)
	if err != nil {
		if errors.Is(err, mongo.ErrInvalidObjectID) {
			return nil, ErrInvalidInput
		}
		if errors.Is(err, mongodrv.ErrNoDocuments) {
			return nil, ErrMessageGone
		}
		log.Error("Failed to load dm message", "message_id", messageID, "error", err)
		return nil, UnExpectedError
	}
	if msg.IsDeleted {
		return nil, ErrMessageGone
	}
	return msg, nil
}

func (s *dmMessageServiceImpl) refreshSnapshotIfLast(ctx context.Context, convID uint64, messageID, senderID, senderName, text string, createdAt time.Time) {
	conv, err := s.convRepo.Get(ctx, convID)
	if err != nil || conv.LastMessageID != messageID {
		return
	}
	if err := s.convRepo.UpdateLastMessage(ctx, convID, messageID, senderID, senderName, text, createdAt); err != nil {
		log.Error("Failed to refresh last message snapshot", "conversation_id", convID, "error", err)
	}
}

// publishMessageEvent 消息变更事件，推给会话全体成员
func (s *dmMessageServiceImpl) publishMessageEvent(ctx context.Context, convID uint64, eventType string, recipients []string, messageID string, msg *dto.DmMessageDTO) {
	payload, _ := json.Marshal(map[string]interface{}{
		"type":           eventType,
		"conversationId": convID,
		"recipientIds":   recipients,
		"messageId":      messageID,
		"message":        msg,
	})
	if err := s.bus.Publish(ctx, consts.DmEventsChannel(convID), payload); err != nil {
		log.Error("Failed to publish message event", "conversation_id", convID, "event", eventType, "error", err)
	}
}

func (s *dmMessageServiceImpl) toDTO(msg *mongo.DmMessage) *dto.DmMessageDTO {
	out := &dto.DmMessageDTO{}
	if err := copier.Copy(out, msg); err != nil {
		log.Error("Failed to map dm message", "message_id", msg.ID, "error", err)
	}
	return out
}
