package handler

import (
	"Wavecast/internal/api/dto"
	"Wavecast/internal/pkg/response"
	"Wavecast/internal/service"
	"strconv"

	"github.com/gin-gonic/gin"
)

type DmMessageHandler struct {
	msgSvc service.DmMessageService
}

func NewDmMessageHandler(msgSvc service.DmMessageService) *DmMessageHandler {
	return &DmMessageHandler{msgSvc: msgSvc}
}

// GetMessages 拉取历史消息，before 为上一页最早一条的 ID
func (s *DmMessageHandler) GetMessages(c *gin.Context) {
	userID := c.GetString("user_id")
	convID, err := parseConversationID(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	before := c.Query("before")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	msgs, err := s.msgSvc.GetMessages(c.Request.Context(), userID, convID, before, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, msgs)
}

func (s *DmMessageHandler) EditMessage(c *gin.Context) {
	userID := c.GetString("user_id")
	convID, err := parseConversationID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	messageID := c.Param("message_id")

	var req dto.EditMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, err)
		return
	}

	msg, err := s.msgSvc.EditMessage(c.Request.Context(), userID, convID, messageID, req.Text)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, msg)
}

func (s *DmMessageHandler) DeleteMessage(c *gin.Context) {
	userID := c.GetString("user_id")
	convID, err := parseConversationID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	messageID := c.Param("message_id")

	if err := s.msgSvc.DeleteMessage(c.Request.Context(), userID, convID, messageID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

func (s *DmMessageHandler) GetUnreadCount(c *gin.Context) {
	userID := c.GetString("user_id")
	convID, err := parseConversationID(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	count, err := s.msgSvc.UnreadCount(c.Request.Context(), userID, convID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"count": count})
}
