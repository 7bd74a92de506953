package handler

import (
	"Wavecast/internal/chat"
	log "log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// RoomWsHandler 房间公屏聊天的 WebSocket 入口
type RoomWsHandler struct {
	hub *chat.RoomHub
}

func NewRoomWsHandler(hub *chat.RoomHub) *RoomWsHandler {
	return &RoomWsHandler{hub: hub}
}

// Connect 升级连接并进入读循环；鉴权由 AuthMiddleware 完成
func (s *RoomWsHandler) Connect(c *gin.Context) {
	userID := c.GetString("user_id")
	username := c.GetString("username")

	wsConn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WS 协议升级失败", "err", err)
		return
	}

	conn := chat.NewConn(wsConn)
	session := chat.NewRoomSession(s.hub, conn, userID, username)
	session.Connect()

	serveSession(wsConn, conn, userID, session.HandleFrame, session.Disconnect)
}
