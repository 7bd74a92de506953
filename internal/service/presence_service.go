package service

import (
	"Wavecast/internal/api/dto"
	"Wavecast/internal/pkg/consts"
	"Wavecast/internal/pkg/redis"
	"context"
	log "log/slog"
	"strconv"
)

// maxPresenceBatch 单次批量查询的用户数上限
const maxPresenceBatch = 100

type PresenceService interface {
	// GetPresence 批量查询在线状态，结果顺序与入参一致
	GetPresence(ctx context.Context, userIDs []string) ([]*dto.PresenceDTO, error)
}

type presenceServiceImpl struct{}

func NewPresenceService() PresenceService {
	return &presenceServiceImpl{}
}

func (s *presenceServiceImpl) GetPresence(ctx context.Context, userIDs []string) ([]*dto.PresenceDTO, error) {
	if len(userIDs) == 0 {
		return nil, ErrInvalidInput
	}
	if len(userIDs) > maxPresenceBatch {
		return nil, ErrInvalidInput
	}

	members := make([]interface{}, len(userIDs))
	lastSeenKeys := make([]string, len(userIDs))
	for i, id := range userIDs {
		members[i] = id
		lastSeenKeys[i] = consts.DmLastSeenPrefix + id + consts.DmLastSeenSuffix
	}

	// 一次 pipeline 同时拿在线集合命中与最后在线时间
	pipe := redis.GetRdbClient().Pipeline()
	onlineCmd := pipe.SMIsMember(ctx, consts.DmOnlineUsersKey, members...)
	lastSeenCmd := pipe.MGet(ctx, lastSeenKeys...)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Error("Failed to query presence", "error", err)
		return nil, UnExpectedError
	}

	online := onlineCmd.Val()
	lastSeen := lastSeenCmd.Val()

	out := make([]*dto.PresenceDTO, len(userIDs))
	for i, id := range userIDs {
		p := &dto.PresenceDTO{UserID: id}
		if i < len(online) {
			p.Online = online[i]
		}
		if !p.Online && i < len(lastSeen) {
			if str, ok := lastSeen[i].(string); ok {
				if ms, err := strconv.ParseInt(str, 10, 64); err == nil {
					p.LastSeen = ms
				}
			}
		}
		out[i] = p
	}
	return out, nil
}
