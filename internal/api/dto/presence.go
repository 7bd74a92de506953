package dto

// PresenceDTO 用户在线状态
type PresenceDTO struct {
	UserID   string `json:"userId"`
	Online   bool   `json:"online"`
	LastSeen int64  `json:"lastSeen,omitempty"` // 毫秒时间戳，0 表示从未在线
}
