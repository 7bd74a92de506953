package handler

import (
	"Wavecast/internal/api/dto"
	"Wavecast/internal/pkg/response"
	"Wavecast/internal/service"
	"strconv"

	"github.com/gin-gonic/gin"
)

type ConversationHandler struct {
	convSvc service.ConversationService
}

func NewConversationHandler(convSvc service.ConversationService) *ConversationHandler {
	return &ConversationHandler{convSvc: convSvc}
}

func (s *ConversationHandler) CreateConversation(c *gin.Context) {
	creator := dto.ParticipantInfo{
		UserID:   c.GetString("user_id"),
		Username: c.GetString("username"),
	}

	var req dto.CreateConversationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, err)
		return
	}

	conv, err := s.convSvc.CreateConversation(c.Request.Context(), creator, &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, conv)
}

func (s *ConversationHandler) ListConversations(c *gin.Context) {
	userID := c.GetString("user_id")

	var query dto.PageQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, err)
		return
	}

	list, err := s.convSvc.ListConversations(c.Request.Context(), userID, query.Page, query.PageSize)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, list)
}

func (s *ConversationHandler) GetConversation(c *gin.Context) {
	userID := c.GetString("user_id")
	convID, err := parseConversationID(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	conv, err := s.convSvc.GetConversation(c.Request.Context(), userID, convID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, conv)
}

func (s *ConversationHandler) UpdateConversation(c *gin.Context) {
	userID := c.GetString("user_id")
	convID, err := parseConversationID(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	var req dto.UpdateConversationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, err)
		return
	}

	conv, err := s.convSvc.UpdateConversation(c.Request.Context(), userID, convID, &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, conv)
}

func (s *ConversationHandler) AddParticipant(c *gin.Context) {
	userID := c.GetString("user_id")
	convID, err := parseConversationID(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	var req dto.AddParticipantReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, err)
		return
	}

	conv, err := s.convSvc.AddParticipant(c.Request.Context(), userID, convID, req.Participant)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, conv)
}

func (s *ConversationHandler) RemoveParticipant(c *gin.Context) {
	userID := c.GetString("user_id")
	convID, err := parseConversationID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	targetID := c.Param("user_id")

	if err := s.convSvc.RemoveParticipant(c.Request.Context(), userID, convID, targetID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

func (s *ConversationHandler) LeaveConversation(c *gin.Context) {
	userID := c.GetString("user_id")
	convID, err := parseConversationID(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	if err := s.convSvc.LeaveConversation(c.Request.Context(), userID, convID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

func parseConversationID(c *gin.Context) (uint64, error) {
	convID, err := strconv.ParseUint(c.Param("conversation_id"), 10, 64)
	if err != nil {
		return 0, service.ErrInvalidInput
	}
	return convID, nil
}
