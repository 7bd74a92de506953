package chat

import (
	"Wavecast/internal/api/dto"
	"Wavecast/internal/pkg/consts"
	"strings"

	json "github.com/goccy/go-json"
)

// 私信连接的入站帧类型
const (
	DmFrameSendMessage = "dm:send_message"
	DmFrameTypingStart = "dm:typing_start"
	DmFrameTypingStop  = "dm:typing_stop"
	DmFrameMarkRead    = "dm:mark_read"
)

// DmFrame 私信连接上的入站帧
type DmFrame struct {
	Type           string   `json:"type"`
	ConversationID uint64   `json:"conversationId"`
	MessageType    string   `json:"messageType"` // 缺省为 text
	Text           string   `json:"text"`
	ImageURLs      []string `json:"imageUrls"`
	ReplyTo        string   `json:"replyTo"`
	MessageID      string   `json:"messageId"` // mark_read 用
}

// DmEnvelope 发布到总线上的私信事件信封。
// recipientIds 只是路由提示，投递前必须剥掉，不能泄露给客户端。
type DmEnvelope struct {
	Type           string            `json:"type"`
	ConversationID uint64            `json:"conversationId"`
	RecipientIDs   []string          `json:"recipientIds"`
	Message        *dto.DmMessageDTO `json:"message,omitempty"`
	UserID         string            `json:"userId,omitempty"`
	Username       string            `json:"username,omitempty"`
	MessageID      string            `json:"messageId,omitempty"`
	Timestamp      int64             `json:"timestamp,omitempty"` // 毫秒
}

// IsDmChannel 判断频道名是否属于私信命名空间
func IsDmChannel(channel string) bool {
	rest, ok := strings.CutPrefix(channel, consts.DmChannelPrefix)
	if !ok {
		return false
	}
	return strings.HasSuffix(rest, consts.DmEventsSuffix) || strings.HasSuffix(rest, consts.DmMessagesSuffix)
}

// StripRecipients 剥离信封里的路由提示，返回接收者集合与净化后的载荷
func StripRecipients(payload []byte) ([]string, []byte, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, nil, err
	}
	var recipients []string
	if v, ok := raw["recipientIds"]; ok {
		if err := json.Unmarshal(v, &recipients); err != nil {
			return nil, nil, err
		}
		delete(raw, "recipientIds")
	}
	clean, err := json.Marshal(raw)
	if err != nil {
		return nil, nil, err
	}
	return recipients, clean, nil
}
