package dto

import "time"

// ParticipantInfo 创建会话/拉人时由调用方带入的用户快照
type ParticipantInfo struct {
	UserID         string  `json:"userId" binding:"required,max=36"`
	Username       string  `json:"username" binding:"required,max=50"`
	DisplayName    *string `json:"displayName" binding:"omitempty,max=50"`
	ProfilePicture *string `json:"profilePicture" binding:"omitempty,max=2048"`
}

// CreateConversationReq 创建会话请求体
type CreateConversationReq struct {
	Type         string            `json:"type" binding:"required,oneof=dm group"`
	Name         string            `json:"name" binding:"omitempty,max=100"`
	Participants []ParticipantInfo `json:"participants" binding:"required,min=1,dive"`
}

// UpdateConversationReq 群会话信息更新
type UpdateConversationReq struct {
	Name      *string `json:"name" binding:"omitempty,max=100"`
	AvatarURL *string `json:"avatarUrl" binding:"omitempty,max=2048"`
}

// AddParticipantReq 群会话拉人
type AddParticipantReq struct {
	Participant ParticipantInfo `json:"participant" binding:"required"`
}

// ParticipantDTO 会话成员
type ParticipantDTO struct {
	UserID            string    `json:"userId"`
	Username          string    `json:"username"`
	DisplayName       *string   `json:"displayName"`
	ProfilePicture    *string   `json:"profilePicture"`
	Role              string    `json:"role"` // owner / admin / member
	JoinedAt          time.Time `json:"joinedAt"`
	LastReadMessageID string    `json:"lastReadMessageId,omitempty"`
	IsMuted           bool      `json:"isMuted"`
}

// LastMessageDTO 会话列表用的最后一条消息快照
type LastMessageDTO struct {
	MessageID      string    `json:"messageId"`
	SenderID       string    `json:"senderId"`
	SenderUsername string    `json:"senderUsername"`
	Text           string    `json:"text"`
	CreatedAt      time.Time `json:"createdAt"`
}

// ConversationDTO 会话明细/列表项
type ConversationDTO struct {
	ID           uint64           `json:"id"`
	Type         string           `json:"type"` // dm / group
	Name         *string          `json:"name"`
	AvatarURL    *string          `json:"avatarUrl"`
	CreatedBy    string           `json:"createdBy"`
	Participants []ParticipantDTO `json:"participants"`
	LastMessage  *LastMessageDTO  `json:"lastMessage"`
	CreatedAt    time.Time        `json:"createdAt"`
	UpdatedAt    time.Time        `json:"updatedAt"`
}

// PageQuery 分页查询参数
type PageQuery struct {
	Page     int `form:"page" binding:"omitempty,min=0"`
	PageSize int `form:"page_size" binding:"omitempty,min=1,max=100"`
}

// ListMeta 分页元数据
type ListMeta struct {
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
	Total    int64 `json:"total"`
}

// ConversationListDTO 分页会话列表
type ConversationListDTO struct {
	Conversations []*ConversationDTO `json:"conversations"`
	Meta          ListMeta           `json:"meta"`
}
