package chat

import (
	"Wavecast/internal/pkg/consts"
	"Wavecast/internal/pkg/redis"
	"Wavecast/internal/service"
	"context"
	log "log/slog"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
)

// presencePageSize 计算联系人时分页拉取会话列表的页大小
const presencePageSize = 100

// lastSeenTTL 最后在线时间的保留期，到期后按从未在线处理
const lastSeenTTL = 30 * 24 * time.Hour

// PresenceBroadcaster 在线状态广播。
// 全局真值（在线集合、最后在线时间）写 Redis；上线/下线通知
// 只投递给本进程内在线的联系人，不走总线——每个实例都会对
// 自己挂着的连接做同样的计算，全网合起来恰好覆盖所有人。
type PresenceBroadcaster struct {
	registry    *Registry
	convService service.ConversationService
}

func NewPresenceBroadcaster(registry *Registry, convService service.ConversationService) *PresenceBroadcaster {
	return &PresenceBroadcaster{registry: registry, convService: convService}
}

func (s *PresenceBroadcaster) Online(ctx context.Context, userID, username string) {
	if err := redis.SAdd(ctx, consts.DmOnlineUsersKey, userID); err != nil {
		log.Error("Failed to mark user online", "user_id", userID, "error", err)
	}
	s.broadcast(ctx, userID, map[string]interface{}{
		"type":      consts.DmEventUserOnline,
		"userId":    userID,
		"username":  username,
		"timestamp": time.Now().UnixMilli(),
	})
}

func (s *PresenceBroadcaster) Offline(ctx context.Context, userID, username string) {
	now := time.Now().UnixMilli()
	if err := redis.SRem(ctx, consts.DmOnlineUsersKey, userID); err != nil {
		log.Error("Failed to mark user offline", "user_id", userID, "error", err)
	}
	if err := redis.SetWithExpiration(ctx, lastSeenKey(userID), strconv.FormatInt(now, 10), lastSeenTTL); err != nil {
		log.Error("Failed to record last seen", "user_id", userID, "error", err)
	}
	s.broadcast(ctx, userID, map[string]interface{}{
		"type":     consts.DmEventUserOffline,
		"userId":   userID,
		"username": username,
		"lastSeen": now,
	})
}

// broadcast 把通知投递给本进程内在线的联系人
func (s *PresenceBroadcaster) broadcast(ctx context.Context, userID string, frame map[string]interface{}) {
	payload, _ := json.Marshal(frame)
	for _, contact := range s.contacts(ctx, userID) {
		conn, ok := s.registry.Get(contact)
		if !ok {
			continue
		}
		if err := conn.WriteMessage(payload); err != nil {
			log.Warn("Failed to deliver presence frame", "user_id", contact, "error", err)
		}
	}
}

// contacts 收集与该用户同处任一会话的全部用户，分页遍历去重
func (s *PresenceBroadcaster) contacts(ctx context.Context, userID string) []string {
	seen := make(map[string]struct{})
	var out []string

	for page := 0; ; page++ {
		list, err := s.convService.ListConversations(ctx, userID, page, presencePageSize)
		if err != nil {
			log.Error("Failed to list conversations for presence", "user_id", userID, "error", err)
			break
		}
		for _, conv := range list.Conversations {
			for _, p := range conv.Participants {
				if p.UserID == userID {
					continue
				}
				if _, ok := seen[p.UserID]; ok {
					continue
				}
				seen[p.UserID] = struct{}{}
				out = append(out, p.UserID)
			}
		}
		if len(list.Conversations) < presencePageSize {
			break
		}
	}
	return out
}

func lastSeenKey(userID string) string {
	return consts.DmLastSeenPrefix + userID + consts.DmLastSeenSuffix
}
