package handler

import (
	"Wavecast/internal/pkg/response"
	"Wavecast/internal/service"
	"strings"

	"github.com/gin-gonic/gin"
)

type PresenceHandler struct {
	presenceSvc service.PresenceService
}

func NewPresenceHandler(presenceSvc service.PresenceService) *PresenceHandler {
	return &PresenceHandler{presenceSvc: presenceSvc}
}

// GetPresence 批量查询在线状态，user_ids 逗号分隔
func (s *PresenceHandler) GetPresence(c *gin.Context) {
	raw := c.Query("user_ids")
	if raw == "" {
		response.Error(c, service.ErrInvalidInput)
		return
	}

	var userIDs []string
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			userIDs = append(userIDs, id)
		}
	}

	list, err := s.presenceSvc.GetPresence(c.Request.Context(), userIDs)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, list)
}
