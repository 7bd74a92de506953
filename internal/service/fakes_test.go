package service

import (
	"Wavecast/internal/model"
	"Wavecast/internal/pkg/mongo"
	"Wavecast/internal/pkg/redis"
	"Wavecast/internal/repository"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	mongodrv "go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

type published struct {
	channel string
	payload []byte
}

type fakeBus struct {
	mu        sync.Mutex
	published []published
}

func (f *fakeBus) Publish(_ context.Context, channel string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, published{channel: channel, payload: payload})
	return nil
}

func (f *fakeBus) PSubscribe(context.Context, redis.MessageHandler, ...string) (io.Closer, error) {
	return io.NopCloser(nil), nil
}

func (f *fakeBus) Published() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]published, len(f.published))
	copy(out, f.published)
	return out
}

// fakeConvRepo 内存版会话存储，语义与 gorm 实现保持一致
type fakeConvRepo struct {
	mu     sync.Mutex
	nextID uint64
	convs  map[uint64]*model.Conversation
}

func newFakeConvRepo() *fakeConvRepo {
	return &fakeConvRepo{convs: make(map[uint64]*model.Conversation)}
}

var _ repository.ConversationRepo = (*fakeConvRepo)(nil)

func (f *fakeConvRepo) Create(_ context.Context, conv *model.Conversation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	conv.ID = f.nextID
	for i := range conv.Participants {
		conv.Participants[i].ConversationID = conv.ID
		conv.Participants[i].ID = uint64(i + 1)
	}
	now := time.Now()
	conv.CreatedAt = now
	conv.UpdatedAt = now
	f.convs[conv.ID] = conv
	return nil
}

func (f *fakeConvRepo) Get(_ context.Context, convID uint64) (*model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv, ok := f.convs[convID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	sort.SliceStable(conv.Participants, func(i, j int) bool {
		return conv.Participants[i].JoinedAt.Before(conv.Participants[j].JoinedAt)
	})
	return conv, nil
}

func (f *fakeConvRepo) FindExistingDM(_ context.Context, userA, userB string) (*model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, conv := range f.convs {
		if conv.Type != model.ConversationTypeDM {
			continue
		}
		foundA, foundB := false, false
		for i := range conv.Participants {
			switch conv.Participants[i].UserID {
			case userA:
				foundA = true
			case userB:
				foundB = true
			}
		}
		if foundA && foundB {
			return conv, nil
		}
	}
	return nil, nil
}

func (f *fakeConvRepo) ListByUser(_ context.Context, userID string, page, limit int) ([]*model.Conversation, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []*model.Conversation
	for _, conv := range f.convs {
		for i := range conv.Participants {
			if conv.Participants[i].UserID == userID {
				all = append(all, conv)
				break
			}
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	total := int64(len(all))
	start := page * limit
	if start >= len(all) {
		return nil, total, nil
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

func (f *fakeConvRepo) Update(_ context.Context, convID uint64, updates map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv, ok := f.convs[convID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if v, ok := updates["name"]; ok {
		name := v.(string)
		conv.Name = &name
	}
	if v, ok := updates["avatar_url"]; ok {
		avatar := v.(string)
		conv.AvatarURL = &avatar
	}
	conv.UpdatedAt = time.Now()
	return nil
}

func (f *fakeConvRepo) AddParticipant(_ context.Context, p *model.ConversationParticipant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv, ok := f.convs[p.ConversationID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	p.ID = uint64(len(conv.Participants) + 1)
	conv.Participants = append(conv.Participants, *p)
	return nil
}

func (f *fakeConvRepo) RemoveParticipant(_ context.Context, convID uint64, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv, ok := f.convs[convID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	out := conv.Participants[:0]
	for _, p := range conv.Participants {
		if p.UserID != userID {
			out = append(out, p)
		}
	}
	conv.Participants = out
	return nil
}

func (f *fakeConvRepo) ParticipantIDs(_ context.Context, convID uint64) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv, ok := f.convs[convID]
	if !ok {
		return nil, nil
	}
	ids := make([]string, 0, len(conv.Participants))
	for i := range conv.Participants {
		ids = append(ids, conv.Participants[i].UserID)
	}
	return ids, nil
}

func (f *fakeConvRepo) UpdateLastRead(_ context.Context, convID uint64, userID string, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv, ok := f.convs[convID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	for i := range conv.Participants {
		if conv.Participants[i].UserID == userID {
			conv.Participants[i].LastReadMessageID = messageID
		}
	}
	return nil
}

func (f *fakeConvRepo) UpdateLastMessage(_ context.Context, convID uint64, messageID, senderID, senderName, text string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv, ok := f.convs[convID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if len(text) > 100 {
		text = text[:100]
	}
	conv.LastMessageID = messageID
	conv.LastMessageSenderID = senderID
	conv.LastMessageSenderName = senderName
	conv.LastMessageText = text
	conv.LastMessageAt = at
	conv.UpdatedAt = at
	return nil
}

func (f *fakeConvRepo) Leave(_ context.Context, convID uint64, userID string) (*repository.LeaveOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv, ok := f.convs[convID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}

	var leaving *model.ConversationParticipant
	remaining := make([]model.ConversationParticipant, 0, len(conv.Participants))
	for i := range conv.Participants {
		if conv.Participants[i].UserID == userID {
			leaving = &conv.Participants[i]
		} else {
			remaining = append(remaining, conv.Participants[i])
		}
	}
	if leaving == nil {
		return nil, gorm.ErrRecordNotFound
	}

	outcome := &repository.LeaveOutcome{}
	if conv.Type == model.ConversationTypeDM || len(remaining) == 0 {
		delete(f.convs, convID)
		outcome.ConversationDeleted = true
		return outcome, nil
	}

	conv.Participants = remaining
	if !model.HasOwner(remaining) {
		newOwner := model.PickNewOwner(conv.Participants)
		newOwner.Role = model.RoleOwner
		outcome.NewOwnerID = newOwner.UserID
	}
	return outcome, nil
}

// fakeDmMsgRepo 内存版消息存储，ID 按写入顺序单调递增
type fakeDmMsgRepo struct {
	mu                   sync.Mutex
	nextSeq              int
	msgs                 map[string]*mongo.DmMessage
	deletedConversations []uint64
}

func newFakeDmMsgRepo() *fakeDmMsgRepo {
	return &fakeDmMsgRepo{msgs: make(map[string]*mongo.DmMessage)}
}

var _ mongo.DmMessageRepo = (*fakeDmMsgRepo)(nil)

func (f *fakeDmMsgRepo) SaveMessage(_ context.Context, msg *mongo.DmMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextSeq++
	msg.ID = fmt.Sprintf("%024x", f.nextSeq)
	f.msgs[msg.ID] = msg
	return nil
}

func (f *fakeDmMsgRepo) GetMessage(_ context.Context, convID uint64, messageID string) (*mongo.DmMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, ok := f.msgs[messageID]
	if !ok || msg.ConversationID != convID {
		return nil, mongodrv.ErrNoDocuments
	}
	return msg, nil
}

func (f *fakeDmMsgRepo) GetMessages(_ context.Context, convID uint64, before string, limit int) ([]*mongo.DmMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*mongo.DmMessage
	for _, msg := range f.msgs {
		if msg.ConversationID != convID {
			continue
		}
		if before != "" && msg.ID >= before {
			continue
		}
		out = append(out, msg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (f *fakeDmMsgRepo) LatestMessage(_ context.Context, convID uint64) (*mongo.DmMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *mongo.DmMessage
	for _, msg := range f.msgs {
		if msg.ConversationID != convID {
			continue
		}
		if latest == nil || msg.ID > latest.ID {
			latest = msg
		}
	}
	return latest, nil
}

func (f *fakeDmMsgRepo) UpdateText(_ context.Context, convID uint64, messageID string, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, ok := f.msgs[messageID]
	if !ok || msg.ConversationID != convID {
		return mongodrv.ErrNoDocuments
	}
	msg.Text = text
	msg.UpdatedAt = time.Now()
	return nil
}

func (f *fakeDmMsgRepo) SoftDelete(_ context.Context, convID uint64, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, ok := f.msgs[messageID]
	if !ok || msg.ConversationID != convID {
		return mongodrv.ErrNoDocuments
	}
	msg.IsDeleted = true
	msg.Text = ""
	return nil
}

func (f *fakeDmMsgRepo) CountUnread(_ context.Context, convID uint64, afterID string, userID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for _, msg := range f.msgs {
		if msg.ConversationID != convID || msg.SenderID == userID || msg.IsDeleted {
			continue
		}
		if afterID != "" && msg.ID <= afterID {
			continue
		}
		count++
	}
	return count, nil
}

func (f *fakeDmMsgRepo) DeleteByConversation(_ context.Context, convID uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletedConversations = append(f.deletedConversations, convID)
	for id, msg := range f.msgs {
		if msg.ConversationID == convID {
			delete(f.msgs, id)
		}
	}
	return nil
}
