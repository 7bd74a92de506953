package job

import (
	"Wavecast/internal/pkg/consts"
	"Wavecast/internal/pkg/redis"
	"context"
	log "log/slog"
	"strconv"
	"strings"
	"time"
)

// AudienceSnapshotJob 周期性把各房间成员数快照到计数键，
// 供房间列表页读人气数据，省掉实时 SCARD
type AudienceSnapshotJob struct{}

func NewAudienceSnapshotJob() *AudienceSnapshotJob {
	return &AudienceSnapshotJob{}
}

func (s *AudienceSnapshotJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pattern := consts.RoomMembersPrefix + "*" + consts.RoomMembersSuffix
	keys, err := redis.ScanKeys(ctx, pattern)
	if err != nil {
		log.Error("Failed to scan room member sets", "error", err)
		return
	}

	snapped := 0
	for _, key := range keys {
		roomID := roomIDFromMembersKey(key)
		if roomID == "" {
			continue
		}
		count, err := redis.SCard(ctx, key)
		if err != nil {
			log.Error("Failed to count room members", "room_id", roomID, "error", err)
			continue
		}
		// 空房间直接清掉快照，避免残留零值键
		if count == 0 {
			if err := redis.DeleteKey(ctx, consts.RoomAudienceKey+roomID); err != nil {
				log.Error("Failed to clear audience snapshot", "room_id", roomID, "error", err)
			}
			continue
		}
		if err := redis.SetValue(ctx, consts.RoomAudienceKey+roomID, strconv.FormatInt(count, 10)); err != nil {
			log.Error("Failed to snapshot audience count", "room_id", roomID, "error", err)
			continue
		}
		snapped++
	}
	log.Info("Audience snapshot finished", "rooms", snapped)
}

func roomIDFromMembersKey(key string) string {
	rest, ok := strings.CutPrefix(key, consts.RoomMembersPrefix)
	if !ok {
		return ""
	}
	id, ok := strings.CutSuffix(rest, consts.RoomMembersSuffix)
	if !ok {
		return ""
	}
	return id
}
