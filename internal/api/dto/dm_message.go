package dto

import "time"

// DmMessageDTO 私信明细，既是 REST 响应也是推送帧里的 message 载荷
type DmMessageDTO struct {
	ID             string    `json:"id"`
	ConversationID uint64    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	SenderUsername string    `json:"senderUsername"`
	Type           string    `json:"type"`
	Text           string    `json:"text"`
	ImageURLs      []string  `json:"imageUrls,omitempty"`
	ReplyTo        string    `json:"replyTo,omitempty"`
	IsDeleted      bool      `json:"isDeleted"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// SendMessageResult 发送结果：消息本体 + 本次需要投递的接收者集合
type SendMessageResult struct {
	Message        *DmMessageDTO
	ParticipantIDs []string
}

// EditMessageReq 编辑消息请求体
type EditMessageReq struct {
	Text string `json:"text" binding:"required,max=2000"`
}
