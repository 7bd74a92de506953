package consts

// 房间与私信的 Pub/Sub 频道命名是跨进程的线上契约，多实例按模式订阅，不可随意变更
const (
	RoomChannelPrefix   = "room:"
	RoomEventsSuffix    = ":events"
	RoomMessagesSuffix  = ":messages"
	DmChannelPrefix     = "dm:"
	DmEventsSuffix      = ":events"
	DmMessagesSuffix    = ":messages"
	RoomEventsPattern   = "room:*:events"
	RoomMessagesPattern = "room:*:messages"
	DmEventsPattern     = "dm:*:events"
	DmMessagesPattern   = "dm:*:messages"
)

const (
	RoomMembersPrefix = "room:"
	RoomMembersSuffix = ":members"
	RoomAudienceKey   = "room:audience:count:"
	DmOnlineUsersKey  = "dm:online_users"
	DmLastSeenPrefix  = "dm:user:"
	DmLastSeenSuffix  = ":last_seen"
)
