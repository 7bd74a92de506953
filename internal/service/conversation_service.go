package service

import (
	"Wavecast/internal/api/dto"
	"Wavecast/internal/model"
	"Wavecast/internal/pkg/consts"
	"Wavecast/internal/pkg/mongo"
	"Wavecast/internal/pkg/redis"
	"Wavecast/internal/repository"
	"context"
	"errors"
	log "log/slog"
	"time"

	json "github.com/goccy/go-json"
	"github.com/jinzhu/copier"
	"gorm.io/gorm"
)

type ConversationService interface {
	CreateConversation(ctx context.Context, creator dto.ParticipantInfo, req *dto.CreateConversationReq) (*dto.ConversationDTO, error)
	GetConversation(ctx context.Context, userID string, convID uint64) (*dto.ConversationDTO, error)
	ListConversations(ctx context.Context, userID string, page, limit int) (*dto.ConversationListDTO, error)
	UpdateConversation(ctx context.Context, userID string, convID uint64, req *dto.UpdateConversationReq) (*dto.ConversationDTO, error)
	AddParticipant(ctx context.Context, operatorID string, convID uint64, p dto.ParticipantInfo) (*dto.ConversationDTO, error)
	RemoveParticipant(ctx context.Context, operatorID string, convID uint64, targetID string) error
	LeaveConversation(ctx context.Context, userID string, convID uint64) error
	// ParticipantIDs 供网关做成员判定与路由
	ParticipantIDs(ctx context.Context, convID uint64) ([]string, error)
}

type conversationServiceImpl struct {
	repo    repository.ConversationRepo
	msgRepo mongo.DmMessageRepo
	bus     redis.Bus
}

func NewConversationService(repo repository.ConversationRepo, msgRepo mongo.DmMessageRepo, bus redis.Bus) ConversationService {
	return &conversationServiceImpl{repo: repo, msgRepo: msgRepo, bus: bus}
}

// CreateConversation 创建会话。dm 会话做去重：两人之间已有 dm 直接复用
func (s *conversationServiceImpl) CreateConversation(ctx context.Context, creator dto.ParticipantInfo, req *dto.CreateConversationReq) (*dto.ConversationDTO, error) {
	switch req.Type {
	case model.ConversationTypeDM:
		return s.createDM(ctx, creator, req)
	case model.ConversationTypeGroup:
		return s.createGroup(ctx, creator, req)
	default:
		return nil, ErrInvalidInput
	}
}

func (s *conversationServiceImpl) createDM(ctx context.Context, creator dto.ParticipantInfo, req *dto.CreateConversationReq) (*dto.ConversationDTO, error) {
	if len(req.Participants) != 1 {
		return nil, ErrInvalidInput
	}
	other := req.Participants[0]
	if other.UserID == creator.UserID {
		return nil, ErrCannotMessageSelf
	}

	existing, err := s.repo.FindExistingDM(ctx, creator.UserID, other.UserID)
	if err != nil {
		log.Error("Failed to look up existing dm", "error", err)
		return nil, UnExpectedError
	}
	if existing != nil {
		return s.toDTO(existing), nil
	}

	now := time.Now()
	conv := &model.Conversation{
		Type:      model.ConversationTypeDM,
		CreatedBy: creator.UserID,
		Participants: []model.ConversationParticipant{
			newParticipant(creator, model.RoleMember, now),
			newParticipant(other, model.RoleMember, now),
		},
	}
	if err := s.repo.Create(ctx, conv); err != nil {
		log.Error("Failed to create dm conversation", "error", err)
		return nil, UnExpectedError
	}

	out := s.toDTO(conv)
	s.publishUpdated(ctx, conv.ID, participantIDs(conv.Participants), out, false)
	return out, nil
}

func (s *conversationServiceImpl) createGroup(ctx context.Context, creator dto.ParticipantInfo, req *dto.CreateConversationReq) (*dto.ConversationDTO, error) {
	// 去重后的成员总数含创建者不得超上限
	seen := map[string]struct{}{creator.UserID: {}}
	now := time.Now()
	parts := []model.ConversationParticipant{newParticipant(creator, model.RoleOwner, now)}
	for _, p := range req.Participants {
		if _, ok := seen[p.UserID]; ok {
			continue
		}
		seen[p.UserID] = struct{}{}
		parts = append(parts, newParticipant(p, model.RoleMember, now))
	}
	if len(parts) > model.MaxGroupParticipants {
		return nil, ErrTooManyParticipants
	}

	conv := &model.Conversation{
		Type:         model.ConversationTypeGroup,
		CreatedBy:    creator.UserID,
		Participants: parts,
	}
	if req.Name != "" {
		conv.Name = &req.Name
	}
	if err := s.repo.Create(ctx, conv); err != nil {
		log.Error("Failed to create group conversation", "error", err)
		return nil, UnExpectedError
	}

	out := s.toDTO(conv)
	s.publishUpdated(ctx, conv.ID, participantIDs(conv.Participants), out, false)
	return out, nil
}

func (s *conversationServiceImpl) GetConversation(ctx context.Context, userID string, convID uint64) (*dto.ConversationDTO, error) {
	conv, err := s.loadAsParticipant(ctx, userID, convID)
	if err != nil {
		return nil, err
	}
	return s.toDTO(conv), nil
}

func (s *conversationServiceImpl) ListConversations(ctx context.Context, userID string, page, limit int) (*dto.ConversationListDTO, error) {
	if page < 0 {
		page = 0
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	convs, total, err := s.repo.ListByUser(ctx, userID, page, limit)
	if err != nil {
		log.Error("Failed to list conversations", "user_id", userID, "error", err)
		return nil, UnExpectedError
	}

	items := make([]*dto.ConversationDTO, 0, len(convs))
	for _, conv := range convs {
		items = append(items, s.toDTO(conv))
	}
	return &dto.ConversationListDTO{
		Conversations: items,
		Meta:          dto.ListMeta{Page: page, PageSize: limit, Total: total},
	}, nil
}

// UpdateConversation 更新群名片；dm 会话没有可编辑信息
func (s *conversationServiceImpl) UpdateConversation(ctx context.Context, userID string, convID uint64, req *dto.UpdateConversationReq) (*dto.ConversationDTO, error) {
	conv, err := s.loadAsParticipant(ctx, userID, convID)
	if err != nil {
		return nil, err
	}
	if conv.Type != model.ConversationTypeGroup {
		return nil, ErrForbidden
	}
	if !hasRole(conv.Participants, userID, model.RoleOwner, model.RoleAdmin) {
		return nil, ErrInsufficientRole
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.AvatarURL != nil {
		updates["avatar_url"] = *req.AvatarURL
	}
	if len(updates) == 0 {
		return s.toDTO(conv), nil
	}
	if err := s.repo.Update(ctx, convID, updates); err != nil {
		log.Error("Failed to update conversation", "conversation_id", convID, "error", err)
		return nil, UnExpectedError
	}

	conv, err = s.repo.Get(ctx, convID)
	if err != nil {
		return nil, UnExpectedError
	}
	out := s.toDTO(conv)
	s.publishUpdated(ctx, convID, participantIDs(conv.Participants), out, false)
	return out, nil
}

// AddParticipant 群会话拉人；重复拉入视为幂等
func (s *conversationServiceImpl) AddParticipant(ctx context.Context, operatorID string, convID uint64, p dto.ParticipantInfo) (*dto.ConversationDTO, error) {
	conv, err := s.loadAsParticipant(ctx, operatorID, convID)
	if err != nil {
		return nil, err
	}
	if conv.Type != model.ConversationTypeGroup {
		return nil, ErrForbidden
	}
	if !hasRole(conv.Participants, operatorID, model.RoleOwner, model.RoleAdmin) {
		return nil, ErrInsufficientRole
	}
	for i := range conv.Participants {
		if conv.Participants[i].UserID == p.UserID {
			return s.toDTO(conv), nil
		}
	}
	if len(conv.Participants) >= model.MaxGroupParticipants {
		return nil, ErrTooManyParticipants
	}

	np := newParticipant(p, model.RoleMember, time.Now())
	np.ConversationID = convID
	if err := s.repo.AddParticipant(ctx, &np); err != nil {
		log.Error("Failed to add participant", "conversation_id", convID, "user_id", p.UserID, "error", err)
		return nil, UnExpectedError
	}

	conv, err = s.repo.Get(ctx, convID)
	if err != nil {
		return nil, UnExpectedError
	}
	out := s.toDTO(conv)
	s.publishUpdated(ctx, convID, participantIDs(conv.Participants), out, false)
	return out, nil
}

// RemoveParticipant 群会话踢人。群主可踢任何人，管理员只能踢普通成员；
// 踢自己请走退出流程
func (s *conversationServiceImpl) RemoveParticipant(ctx context.Context, operatorID string, convID uint64, targetID string) error {
	if operatorID == targetID {
		return ErrInvalidInput
	}
	conv, err := s.loadAsParticipant(ctx, operatorID, convID)
	if err != nil {
		return err
	}
	if conv.Type != model.ConversationTypeGroup {
		return ErrForbidden
	}

	var operator, target *model.ConversationParticipant
	for i := range conv.Participants {
		switch conv.Participants[i].UserID {
		case operatorID:
			operator = &conv.Participants[i]
		case targetID:
			target = &conv.Participants[i]
		}
	}
	if target == nil {
		return ErrNotParticipant
	}
	switch operator.Role {
	case model.RoleOwner:
	case model.RoleAdmin:
		if target.Role != model.RoleMember {
			return ErrInsufficientRole
		}
	default:
		return ErrInsufficientRole
	}

	if err := s.repo.RemoveParticipant(ctx, convID, targetID); err != nil {
		log.Error("Failed to remove participant", "conversation_id", convID, "user_id", targetID, "error", err)
		return UnExpectedError
	}

	conv, err = s.repo.Get(ctx, convID)
	if err != nil {
		return UnExpectedError
	}
	// 被踢者也要收到通知，才能把会话从列表里摘掉
	recipients := append(participantIDs(conv.Participants), targetID)
	s.publishUpdated(ctx, convID, recipients, s.toDTO(conv), false)
	return nil
}

// LeaveConversation 退出会话。dm 任意一方退出即删除整个会话及其消息；
// 群主退出时自动转让
func (s *conversationServiceImpl) LeaveConversation(ctx context.Context, userID string, convID uint64) error {
	// 退出前先拿成员集合，会话删除后就查不到了
	ids, err := s.repo.ParticipantIDs(ctx, convID)
	if err != nil {
		log.Error("Failed to load participants before leave", "conversation_id", convID, "error", err)
		return UnExpectedError
	}

	outcome, err := s.repo.Leave(ctx, convID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrConversationGone
		}
		log.Error("Failed to leave conversation", "conversation_id", convID, "user_id", userID, "error", err)
		return UnExpectedError
	}

	if outcome.ConversationDeleted {
		// 消息级联清理失败不回滚退出本身，留给补偿任务
		if err := s.msgRepo.DeleteByConversation(ctx, convID); err != nil {
			log.Error("Failed to cascade delete dm messages", "conversation_id", convID, "error", err)
		}
		s.publishUpdated(ctx, convID, ids, nil, true)
		return nil
	}
	if outcome.NewOwnerID != "" {
		log.Info("Conversation ownership transferred", "conversation_id", convID, "new_owner", outcome.NewOwnerID)
	}

	conv, err := s.repo.Get(ctx, convID)
	if err != nil {
		return UnExpectedError
	}
	recipients := append(participantIDs(conv.Participants), userID)
	s.publishUpdated(ctx, convID, recipients, s.toDTO(conv), false)
	return nil
}

func (s *conversationServiceImpl) ParticipantIDs(ctx context.Context, convID uint64) ([]string, error) {
	ids, err := s.repo.ParticipantIDs(ctx, convID)
	if err != nil {
		return nil, UnExpectedError
	}
	return ids, nil
}

// loadAsParticipant 加载会话并校验调用方是成员
func (s *conversationServiceImpl) loadAsParticipant(ctx context.Context, userID string, convID uint64) (*model.Conversation, error) {
	conv, err := s.repo.Get(ctx, convID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConversationGone
		}
		log.Error("Failed to load conversation", "conversation_id", convID, "error", err)
		return nil, UnExpectedError
	}
	for i := range conv.Participants {
		if conv.Participants[i].UserID == userID {
			return conv, nil
		}
	}
	return nil, ErrNotParticipant
}

// publishUpdated 把会话变更推给所有相关在线用户
func (s *conversationServiceImpl) publishUpdated(ctx context.Context, convID uint64, recipients []string, conv *dto.ConversationDTO, deleted bool) {
	payload, _ := json.Marshal(map[string]interface{}{
		"type":           consts.DmEventConversationUpdated,
		"conversationId": convID,
		"recipientIds":   recipients,
		"conversation":   conv,
		"deleted":        deleted,
	})
	if err := s.bus.Publish(ctx, consts.DmEventsChannel(convID), payload); err != nil {
		log.Error("Failed to publish conversation update", "conversation_id", convID, "error", err)
	}
}

func (s *conversationServiceImpl) toDTO(conv *model.Conversation) *dto.ConversationDTO {
	out := &dto.ConversationDTO{}
	if err := copier.Copy(out, conv); err != nil {
		log.Error("Failed to map conversation", "conversation_id", conv.ID, "error", err)
	}
	if conv.LastMessageID != "" {
		out.LastMessage = &dto.LastMessageDTO{
			MessageID:      conv.LastMessageID,
			SenderID:       conv.LastMessageSenderID,
			SenderUsername: conv.LastMessageSenderName,
			Text:           conv.LastMessageText,
			CreatedAt:      conv.LastMessageAt,
		}
	}
	return out
}

func newParticipant(p dto.ParticipantInfo, role string, joinedAt time.Time) model.ConversationParticipant {
	return model.ConversationParticipant{
		UserID:         p.UserID,
		Username:       p.Username,
		DisplayName:    p.DisplayName,
		ProfilePicture: p.ProfilePicture,
		Role:           role,
		JoinedAt:       joinedAt,
	}
}

func participantIDs(parts []model.ConversationParticipant) []string {
	ids := make([]string, 0, len(parts))
	for i := range parts {
		ids = append(ids, parts[i].UserID)
	}
	return ids
}

func hasRole(parts []model.ConversationParticipant, userID string, roles ...string) bool {
	for i := range parts {
		if parts[i].UserID != userID {
			continue
		}
		for _, r := range roles {
			if parts[i].Role == r {
				return true
			}
		}
		return false
	}
	return false
}
