package chat

import (
	"Wavecast/internal/pkg/consts"
	"strings"

	json "github.com/goccy/go-json"
)

// 房间帧类型，入站指令与出站事件共用同一组字符串，
// 已有客户端依赖这组字面量，不可改动
const (
	RoomTypeJoin    = "join"
	RoomTypeLeave   = "leave"
	RoomTypeMessage = "message"
	RoomTypeError   = "error"
)

// RoomFrame 房间连接上的入站帧，type 决定哪些字段有效
type RoomFrame struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
	Text   string `json:"text"`
}

// RoomEvent 成员进出事件，发布在 room:<id>:events 上
type RoomEvent struct {
	Type      string `json:"type"`
	RoomID    string `json:"roomId"`
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	Timestamp int64  `json:"timestamp"` // 毫秒
}

// RoomChatMessage 聊天消息，发布在 room:<id>:messages 上
type RoomChatMessage struct {
	Type       string `json:"type"`
	RoomID     string `json:"roomId"`
	SenderID   string `json:"senderId"`
	SenderName string `json:"senderName"`
	Text       string `json:"text"`
	Timestamp  int64  `json:"timestamp"` // 毫秒
}

// ErrorFrame 回推给单个客户端的错误帧
type ErrorFrame struct {
	Type string `json:"type"`
	Key  string `json:"key"`
}

func NewErrorFrame(key string) []byte {
	b, _ := json.Marshal(ErrorFrame{Type: RoomTypeError, Key: key})
	return b
}

func RoomEventsChannel(roomID string) string {
	return consts.RoomChannelPrefix + roomID + consts.RoomEventsSuffix
}

func RoomMessagesChannel(roomID string) string {
	return consts.RoomChannelPrefix + roomID + consts.RoomMessagesSuffix
}

// RoomIDFromChannel 从频道名还原房间 ID，非房间频道返回空串
func RoomIDFromChannel(channel string) string {
	rest, ok := strings.CutPrefix(channel, consts.RoomChannelPrefix)
	if !ok {
		return ""
	}
	if id, ok := strings.CutSuffix(rest, consts.RoomEventsSuffix); ok {
		return id
	}
	if id, ok := strings.CutSuffix(rest, consts.RoomMessagesSuffix); ok {
		return id
	}
	return ""
}
