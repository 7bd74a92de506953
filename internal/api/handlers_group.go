package api

import "Wavecast/internal/api/handler"

// HandlersGroup 封装了所有已初始化的 Handler 实例
type HandlersGroup struct {
	ConversationHandler *handler.ConversationHandler
	DmMessageHandler    *handler.DmMessageHandler
	PresenceHandler     *handler.PresenceHandler
	RoomHandler         *handler.RoomHandler
	RoomWsHandler       *handler.RoomWsHandler
	DmWsHandler         *handler.DmWsHandler
}
