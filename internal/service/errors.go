package service

import (
	"errors"
)

const (
	BadRequest          = 400
	Unauthorized        = 401
	Forbidden           = 403
	NotFound            = 404
	InternalServerError = 500
)

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrInvalidPayload      = errors.New("invalid payload")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrForbidden           = errors.New("forbidden")
	ErrConversationGone    = errors.New("conversation not found")
	ErrNotParticipant      = errors.New("not a participant of this conversation")
	ErrMessageGone         = errors.New("message not found")
	ErrTooManyParticipants = errors.New("too many participants")
	ErrCannotMessageSelf   = errors.New("cannot message yourself")
	ErrInsufficientRole    = errors.New("insufficient role")
	UnExpectedError        = errors.New("internal server error")
)

var ErrorMap = map[error]int{
	ErrInvalidInput:        BadRequest,
	ErrInvalidPayload:      BadRequest,
	ErrUnauthorized:        Unauthorized,
	ErrForbidden:           Forbidden,
	ErrConversationGone:    NotFound,
	ErrNotParticipant:      Forbidden,
	ErrMessageGone:         NotFound,
	ErrTooManyParticipants: BadRequest,
	ErrCannotMessageSelf:   BadRequest,
	ErrInsufficientRole:    Forbidden,
	UnExpectedError:        InternalServerError,
}

// ErrorKeyMap 业务错误到 i18n key 的映射，客户端据此做本地化文案
var ErrorKeyMap = map[error]string{
	ErrInvalidInput:        "res_err_invalid_input",
	ErrInvalidPayload:      "res_err_invalid_payload",
	ErrUnauthorized:        "res_err_unauthorized",
	ErrForbidden:           "res_err_forbidden",
	ErrConversationGone:    "res_err_conversation_not_found",
	ErrNotParticipant:      "res_err_not_participant",
	ErrMessageGone:         "res_err_dm_message_not_found",
	ErrTooManyParticipants: "res_err_too_many_participants",
	ErrCannotMessageSelf:   "res_err_cannot_message_self",
	ErrInsufficientRole:    "res_err_insufficient_role",
	UnExpectedError:        "res_err_internal_server",
}

// KeyFor 返回错误对应的 i18n key，未登记的错误一律按系统异常处理
func KeyFor(err error) string {
	if key, ok := ErrorKeyMap[err]; ok {
		return key
	}
	return ErrorKeyMap[UnExpectedError]
}
