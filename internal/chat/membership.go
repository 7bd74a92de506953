package chat

import (
	"Wavecast/internal/pkg/consts"
	"Wavecast/internal/pkg/redis"
	"context"
)

// MembershipStore 房间成员集合，跨实例共享。
// 真值在 Redis，进程本地不缓存：成员判定永远以集合为准。
type MembershipStore interface {
	Add(ctx context.Context, roomID, userID string) error
	Remove(ctx context.Context, roomID, userID string) error
	Contains(ctx context.Context, roomID, userID string) (bool, error)
	Members(ctx context.Context, roomID string) ([]string, error)
	Count(ctx context.Context, roomID string) (int64, error)
}

type redisMembershipStore struct{}

func NewMembershipStore() MembershipStore {
	return &redisMembershipStore{}
}

func roomMembersKey(roomID string) string {
	return consts.RoomMembersPrefix + roomID + consts.RoomMembersSuffix
}

func (s *redisMembershipStore) Add(ctx context.Context, roomID, userID string) error {
	return redis.SAdd(ctx, roomMembersKey(roomID), userID)
}

func (s *redisMembershipStore) Remove(ctx context.Context, roomID, userID string) error {
	return redis.SRem(ctx, roomMembersKey(roomID), userID)
}

func (s *redisMembershipStore) Contains(ctx context.Context, roomID, userID string) (bool, error) {
	return redis.SIsMember(ctx, roomMembersKey(roomID), userID)
}

func (s *redisMembershipStore) Members(ctx context.Context, roomID string) ([]string, error) {
	return redis.SMembers(ctx, roomMembersKey(roomID))
}

func (s *redisMembershipStore) Count(ctx context.Context, roomID string) (int64, error) {
	return redis.SCard(ctx, roomMembersKey(roomID))
}
