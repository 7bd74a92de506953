package mongo

import (
	"time"
)

// 消息类型
const (
	DmMessageTypeText   = "text"
	DmMessageTypeImage  = "image"
	DmMessageTypeSystem = "system"
)

// ReadReceipt 单用户已读记录
type ReadReceipt struct {
	UserID string    `bson:"user_id" json:"userId"`
	ReadAt time.Time `bson:"read_at" json:"readAt"`
}

// DmMessage MongoDB 私信明细模型
type DmMessage struct {
	ID             string        `bson:"_id,omitempty" json:"id"`               // MongoDB ObjectID 的 hex 表示
	ConversationID uint64        `bson:"conversation_id" json:"conversationId"` // 关联 MySQL 的会话 ID
	SenderID       string        `bson:"sender_id" json:"senderId"`
	SenderUsername string        `bson:"sender_username" json:"senderUsername"`
	Type           string        `bson:"type" json:"type"` // text / image / system
	Text           string        `bson:"text" json:"text"` // 软删除后清空
	ImageURLs      []string      `bson:"image_urls,omitempty" json:"imageUrls,omitempty"`
	ReplyTo        string        `bson:"reply_to,omitempty" json:"replyTo,omitempty"` // 被回复消息 ID
	IsDeleted      bool          `bson:"is_deleted" json:"isDeleted"`
	ReadBy         []ReadReceipt `bson:"read_by" json:"readBy"`
	CreatedAt      time.Time     `bson:"created_at" json:"createdAt"`
	UpdatedAt      time.Time     `bson:"updated_at" json:"updatedAt"`
}
