package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var ErrInvalidObjectID = errors.New("invalid object id")

type DmMessageRepo interface {
	SaveMessage(ctx context.Context, msg *DmMessage) error
	GetMessage(ctx context.Context, convID uint64, messageID string) (*DmMessage, error)
	// GetMessages 游标分页：before 为空拉最新一页，否则拉比 before 更旧的消息。
	// 返回按时间升序排列。
	GetMessages(ctx context.Context, convID uint64, before string, limit int) ([]*DmMessage, error)
	LatestMessage(ctx context.Context, convID uint64) (*DmMessage, error)
	UpdateText(ctx context.Context, convID uint64, messageID string, text string) error
	SoftDelete(ctx context.Context, convID uint64, messageID string) error
	// CountUnread 统计未读：他人发送、未删除、且 _id 大于 afterID（afterID 为空则统计全部）
	CountUnread(ctx context.Context, convID uint64, afterID string, userID string) (int64, error)
	DeleteByConversation(ctx context.Context, convID uint64) error
}

type dmMessageRepoImpl struct {
	col *mongo.Collection
}

func NewDmMessageRepo(db *mongo.Database) DmMessageRepo {
	return &dmMessageRepoImpl{
		col: db.Collection("dm_messages"),
	}
}

// SaveMessage 将消息存入 MongoDB，并回填生成的 ObjectID
func (s *dmMessageRepoImpl) SaveMessage(ctx context.Context, msg *DmMessage) error {
	res, err := s.col.InsertOne(ctx, msg)
	if err != nil {
		return err
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		msg.ID = oid.Hex()
	}
	return nil
}

func (s *dmMessageRepoImpl) GetMessage(ctx context.Context, convID uint64, messageID string) (*DmMessage, error) {
	oid, err := primitive.ObjectIDFromHex(messageID)
	if err != nil {
		return nil, ErrInvalidObjectID
	}

	var msg DmMessage
	filter := bson.M{"_id": oid, "conversation_id": convID}
	if err := s.col.FindOne(ctx, filter).Decode(&msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (s *dmMessageRepoImpl) GetMessages(ctx context.Context, convID uint64, before string, limit int) ([]*DmMessage, error) {
	filter := bson.M{"conversation_id": convID}

	if before != "" {
		oid, err := primitive.ObjectIDFromHex(before)
		if err != nil {
			return nil, ErrInvalidObjectID
		}
		filter["_id"] = bson.M{"$lt": oid}
	}

	// 降序取一页，再反转为时间升序返回
	findOptions := options.Find().
		SetSort(bson.D{{Key: "_id", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := s.col.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	var messages []*DmMessage
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, err
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

// LatestMessage 获取会话中最新一条消息；会话为空时返回 (nil, nil)
func (s *dmMessageRepoImpl) LatestMessage(ctx context.Context, convID uint64) (*DmMessage, error) {
	var msg DmMessage
	filter := bson.M{"conversation_id": convID}
	findOptions := options.FindOne().SetSort(bson.D{{Key: "_id", Value: -1}})

	err := s.col.FindOne(ctx, filter, findOptions).Decode(&msg)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &msg, nil
}

func (s *dmMessageRepoImpl) UpdateText(ctx context.Context, convID uint64, messageID string, text string) error {
	oid, err := primitive.ObjectIDFromHex(messageID)
	if err != nil {
		return ErrInvalidObjectID
	}

	filter := bson.M{"_id": oid, "conversation_id": convID}
	update := bson.M{"$set": bson.M{"text": text, "updated_at": now()}}
	_, err = s.col.UpdateOne(ctx, filter, update)
	return err
}

// SoftDelete 软删除：清空正文并打标记，不做物理删除
func (s *dmMessageRepoImpl) SoftDelete(ctx context.Context, convID uint64, messageID string) error {
	oid, err := primitive.ObjectIDFromHex(messageID)
	if err != nil {
		return ErrInvalidObjectID
	}

	filter := bson.M{"_id": oid, "conversation_id": convID}
	update := bson.M{"$set": bson.M{"is_deleted": true, "text": "", "updated_at": now()}}
	_, err = s.col.UpdateOne(ctx, filter, update)
	return err
}

func (s *dmMessageRepoImpl) CountUnread(ctx context.Context, convID uint64, afterID string, userID string) (int64, error) {
	filter := bson.M{
		"conversation_id": convID,
		"sender_id":       bson.M{"$ne": userID},
		"is_deleted":      false,
	}

	if afterID != "" {
		oid, err := primitive.ObjectIDFromHex(afterID)
		if err != nil {
			return 0, ErrInvalidObjectID
		}
		filter["_id"] = bson.M{"$gt": oid}
	}

	return s.col.CountDocuments(ctx, filter)
}

func (s *dmMessageRepoImpl) DeleteByConversation(ctx context.Context, convID uint64) error {
	_, err := s.col.DeleteMany(ctx, bson.M{"conversation_id": convID})
	return err
}
