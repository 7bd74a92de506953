package consts

import "strconv"

// 推送给私信客户端的事件类型，网关与业务服务共用
const (
	DmEventNewMessage          = "dm:new_message"
	DmEventMessageEdited       = "dm:message_edited"
	DmEventMessageDeleted      = "dm:message_deleted"
	DmEventUserTyping          = "dm:user_typing"
	DmEventUserStoppedTyping   = "dm:user_stopped_typing"
	DmEventReadReceipt         = "dm:read_receipt"
	DmEventUserOnline          = "dm:user_online"
	DmEventUserOffline         = "dm:user_offline"
	DmEventConversationUpdated = "dm:conversation_updated"
	DmEventSendFailed          = "dm:send_failed"
)

func DmEventsChannel(convID uint64) string {
	return DmChannelPrefix + strconv.FormatUint(convID, 10) + DmEventsSuffix
}

func DmMessagesChannel(convID uint64) string {
	return DmChannelPrefix + strconv.FormatUint(convID, 10) + DmMessagesSuffix
}
