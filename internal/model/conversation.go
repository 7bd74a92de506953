package model

import "time"

// 会话类型
const (
	ConversationTypeDM    = "dm"
	ConversationTypeGroup = "group"
)

// 成员角色
const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// MaxGroupParticipants 群会话成员上限（含创建者）
const MaxGroupParticipants = 50

// Conversation 会话主表
// LastMessage* 为冗余快照，专供会话列表页，避免每行回查 MongoDB
type Conversation struct {
	ID                    uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Type                  string    `gorm:"not null;type:varchar(8);index" json:"type"` // dm / group
	Name                  *string   `gorm:"type:varchar(100)" json:"name"`
	AvatarURL             *string   `gorm:"type:varchar(2048)" json:"avatarUrl"`
	CreatedBy             string    `gorm:"not null;type:varchar(36)" json:"createdBy"`
	LastMessageID         string    `gorm:"type:varchar(24)" json:"lastMessageId"`
	LastMessageSenderID   string    `gorm:"type:varchar(36)" json:"lastMessageSenderId"`
	LastMessageSenderName string    `gorm:"type:varchar(50)" json:"lastMessageSenderName"`
	LastMessageText       string    `gorm:"type:varchar(100)" json:"lastMessageText"` // 预览截断到 100 字符
	LastMessageAt         time.Time `gorm:"index" json:"lastMessageAt"`
	CreatedAt             time.Time `json:"createdAt"`
	UpdatedAt             time.Time `json:"updatedAt"`

	Participants []ConversationParticipant `gorm:"foreignKey:ConversationID;references:ID" json:"participants"`
}

func (Conversation) TableName() string { return "conversations" }

// ConversationParticipant 会话成员表
type ConversationParticipant struct {
	ID                uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ConversationID    uint64    `gorm:"uniqueIndex:idx_conv_user" json:"conversationId"`
	UserID            string    `gorm:"uniqueIndex:idx_conv_user;index;type:varchar(36)" json:"userId"`
	Username          string    `gorm:"not null;type:varchar(50)" json:"username"`
	DisplayName       *string   `gorm:"type:varchar(50)" json:"displayName"`
	ProfilePicture    *string   `gorm:"type:varchar(2048)" json:"profilePicture"`
	Role              string    `gorm:"not null;type:varchar(8);default:member" json:"role"`
	JoinedAt          time.Time `json:"joinedAt"`
	LastReadMessageID string    `gorm:"type:varchar(24)" json:"lastReadMessageId"` // 空串表示从未读过
	IsMuted           bool      `gorm:"not null;default:false" json:"isMuted"`
}

func (ConversationParticipant) TableName() string { return "conversation_participants" }

// PickNewOwner 在 owner 离开后挑选新群主：优先 admin，否则最早入群的成员。
// 调用方保证 parts 非空且其中没有 owner。
func PickNewOwner(parts []ConversationParticipant) *ConversationParticipant {
	var candidate *ConversationParticipant
	for i := range parts {
		p := &parts[i]
		if p.Role == RoleAdmin {
			return p
		}
		if candidate == nil || p.JoinedAt.Before(candidate.JoinedAt) {
			candidate = p
		}
	}
	return candidate
}

// HasOwner 判断成员列表中是否仍有群主
func HasOwner(parts []ConversationParticipant) bool {
	for i := range parts {
		if parts[i].Role == RoleOwner {
			return true
		}
	}
	return false
}
