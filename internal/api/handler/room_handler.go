package handler

import (
	"Wavecast/internal/pkg/consts"
	"Wavecast/internal/pkg/redis"
	"Wavecast/internal/pkg/response"
	"Wavecast/internal/service"
	"strconv"

	"github.com/gin-gonic/gin"
)

type RoomHandler struct{}

func NewRoomHandler() *RoomHandler {
	return &RoomHandler{}
}

// GetAudienceCount 读取定时任务快照的房间人气数
func (s *RoomHandler) GetAudienceCount(c *gin.Context) {
	roomID := c.Param("room_id")
	if roomID == "" {
		response.Error(c, service.ErrInvalidInput)
		return
	}

	value, err := redis.GetValue(c.Request.Context(), consts.RoomAudienceKey+roomID)
	if err != nil {
		response.Error(c, service.UnExpectedError)
		return
	}

	count := int64(0)
	if value != "" {
		count, _ = strconv.ParseInt(value, 10, 64)
	}
	response.Success(c, gin.H{"roomId": roomID, "count": count})
}
