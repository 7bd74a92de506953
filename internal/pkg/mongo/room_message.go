package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
)

// RoomMessage 公屏聊天消息归档模型
// 实时投递不依赖该表，写入失败只记日志
type RoomMessage struct {
	ID         string    `bson:"_id,omitempty" json:"id"`
	RoomID     string    `bson:"room_id" json:"roomId"`
	SenderID   string    `bson:"sender_id" json:"senderId"`
	SenderName string    `bson:"sender_name" json:"senderName"`
	Text       string    `bson:"text" json:"text"`
	Timestamp  int64     `bson:"timestamp" json:"timestamp"` // 毫秒，与推送帧一致
	CreatedAt  time.Time `bson:"created_at" json:"createdAt"`
}

type RoomMessageRepo interface {
	SaveMessage(ctx context.Context, msg *RoomMessage) error
}

type roomMessageRepoImpl struct {
	col *mongo.Collection
}

func NewRoomMessageRepo(db *mongo.Database) RoomMessageRepo {
	return &roomMessageRepoImpl{
		col: db.Collection("room_messages"),
	}
}

func (s *roomMessageRepoImpl) SaveMessage(ctx context.Context, msg *RoomMessage) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now()
	}
	_, err := s.col.InsertOne(ctx, msg)
	return err
}

func now() time.Time {
	return time.Now()
}
