package repository

import (
	"Wavecast/internal/model"
	"context"
	"time"

	"gorm.io/gorm"
)

// LeaveOutcome 退出会话的结果
type LeaveOutcome struct {
	ConversationDeleted bool   // dm 退出或群成员清空时整会话级联删除
	NewOwnerID          string // 群主转让时为新群主，未转让为空
}

type ConversationRepo interface {
	Create(ctx context.Context, conv *model.Conversation) error
	Get(ctx context.Context, convID uint64) (*model.Conversation, error)
	// FindExistingDM 查找两人之间已存在的 dm 会话，不存在返回 (nil, nil)
	FindExistingDM(ctx context.Context, userA, userB string) (*model.Conversation, error)
	ListByUser(ctx context.Context, userID string, page, limit int) ([]*model.Conversation, int64, error)
	Update(ctx context.Context, convID uint64, updates map[string]interface{}) error

	AddParticipant(ctx context.Context, p *model.ConversationParticipant) error
	RemoveParticipant(ctx context.Context, convID uint64, userID string) error
	ParticipantIDs(ctx context.Context, convID uint64) ([]string, error)

	UpdateLastRead(ctx context.Context, convID uint64, userID string, messageID string) error
	UpdateLastMessage(ctx context.Context, convID uint64, messageID, senderID, senderName, text string, at time.Time) error

	// Leave 事务内退出会话，负责 dm 级联删除与群主转让
	Leave(ctx context.Context, convID uint64, userID string) (*LeaveOutcome, error)
}

type conversationRepoImpl struct {
	db *gorm.DB
}

func NewConversationRepo(db *gorm.DB) ConversationRepo {
	return &conversationRepoImpl{db: db}
}

// Create 开启事务创建会话及初始成员
func (s *conversationRepoImpl) Create(ctx context.Context, conv *model.Conversation) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(conv).Error
	})
}

// Get 根据会话 ID 获取会话，成员按入群时间升序装配
func (s *conversationRepoImpl) Get(ctx context.Context, convID uint64) (*model.Conversation, error) {
	var conv model.Conversation
	err := s.db.WithContext(ctx).
		Preload("Participants", func(db *gorm.DB) *gorm.DB {
			return db.Order("joined_at ASC, id ASC")
		}).
		First(&conv, convID).Error
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (s *conversationRepoImpl) FindExistingDM(ctx context.Context, userA, userB string) (*model.Conversation, error) {
	var convID uint64
	err := s.db.WithContext(ctx).Table("conversations c").
		Select("c.id").
		Joins("JOIN conversation_participants p1 ON p1.conversation_id = c.id AND p1.user_id = ?", userA).
		Joins("JOIN conversation_participants p2 ON p2.conversation_id = c.id AND p2.user_id = ?", userB).
		Where("c.type = ?", model.ConversationTypeDM).
		Limit(1).
		Scan(&convID).Error
	if err != nil {
		return nil, err
	}
	if convID == 0 {
		return nil, nil
	}
	return s.Get(ctx, convID)
}

func (s *conversationRepoImpl) ListByUser(ctx context.Context, userID string, page, limit int) ([]*model.Conversation, int64, error) {
	sub := s.db.WithContext(ctx).Model(&model.ConversationParticipant{}).
		Select("conversation_id").
		Where("user_id = ?", userID)

	var total int64
	if err := s.db.WithContext(ctx).Model(&model.Conversation{}).
		Where("id IN (?)", sub).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var convs []*model.Conversation
	err := s.db.WithContext(ctx).
		Preload("Participants", func(db *gorm.DB) *gorm.DB {
			return db.Order("joined_at ASC, id ASC")
		}).
		Where("id IN (?)", sub).
		Order("updated_at DESC").
		Offset(page * limit).
		Limit(limit).
		Find(&convs).Error
	if err != nil {
		return nil, 0, err
	}
	return convs, total, nil
}

func (s *conversationRepoImpl) Update(ctx context.Context, convID uint64, updates map[string]interface{}) error {
	return s.db.WithContext(ctx).Model(&model.Conversation{}).
		Where("id = ?", convID).
		Updates(updates).Error
}

func (s *conversationRepoImpl) AddParticipant(ctx context.Context, p *model.ConversationParticipant) error {
	return s.db.WithContext(ctx).Create(p).Error
}

func (s *conversationRepoImpl) RemoveParticipant(ctx context.Context, convID uint64, userID string) error {
	return s.db.WithContext(ctx).
		Where("conversation_id = ? AND user_id = ?", convID, userID).
		Delete(&model.ConversationParticipant{}).Error
}

func (s *conversationRepoImpl) ParticipantIDs(ctx context.Context, convID uint64) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&model.ConversationParticipant{}).
		Where("conversation_id = ?", convID).
		Order("joined_at ASC, id ASC").
		Pluck("user_id", &ids).Error
	return ids, err
}

// UpdateLastRead 更新成员的已读指针（已读回执）
func (s *conversationRepoImpl) UpdateLastRead(ctx context.Context, convID uint64, userID string, messageID string) error {
	return s.db.WithContext(ctx).Model(&model.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id = ?", convID, userID).
		Update("last_read_message_id", messageID).Error
}

// UpdateLastMessage 刷新会话的最后一条消息快照，顺带把 updated_at 顶到最新
func (s *conversationRepoImpl) UpdateLastMessage(ctx context.Context, convID uint64, messageID, senderID, senderName, text string, at time.Time) error {
	if len(text) > 100 {
		text = text[:100]
	}
	return s.db.WithContext(ctx).Model(&model.Conversation{}).
		Where("id = ?", convID).
		Updates(map[string]interface{}{
			"last_message_id":          messageID,
			"last_message_sender_id":   senderID,
			"last_message_sender_name": senderName,
			"last_message_text":        text,
			"last_message_at":          at,
		}).Error
}

// Leave 事务内退出；保证任意时刻群内恰有一个 owner
func (s *conversationRepoImpl) Leave(ctx context.Context, convID uint64, userID string) (*LeaveOutcome, error) {
	outcome := &LeaveOutcome{}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var conv model.Conversation
		if err := tx.First(&conv, convID).Error; err != nil {
			return err
		}

		var parts []model.ConversationParticipant
		if err := tx.Where("conversation_id = ?", convID).
			Order("joined_at ASC, id ASC").
			Find(&parts).Error; err != nil {
			return err
		}

		var leaving *model.ConversationParticipant
		remaining := make([]model.ConversationParticipant, 0, len(parts))
		for i := range parts {
			if parts[i].UserID == userID {
				leaving = &parts[i]
			} else {
				remaining = append(remaining, parts[i])
			}
		}
		if leaving == nil {
			return gorm.ErrRecordNotFound
		}

		// dm 会话任意一方退出即整体删除；群成员清空同理
		if conv.Type == model.ConversationTypeDM || len(remaining) == 0 {
			if err := tx.Where("conversation_id = ?", convID).
				Delete(&model.ConversationParticipant{}).Error; err != nil {
				return err
			}
			if err := tx.Delete(&model.Conversation{}, convID).Error; err != nil {
				return err
			}
			outcome.ConversationDeleted = true
			return nil
		}

		if err := tx.Delete(&model.ConversationParticipant{}, leaving.ID).Error; err != nil {
			return err
		}

		if !model.HasOwner(remaining) {
			newOwner := model.PickNewOwner(remaining)
			if err := tx.Model(&model.ConversationParticipant{}).
				Where("id = ?", newOwner.ID).
				Update("role", model.RoleOwner).Error; err != nil {
				return err
			}
			outcome.NewOwnerID = newOwner.UserID
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}
