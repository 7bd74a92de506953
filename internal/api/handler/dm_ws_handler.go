package handler

import (
	"Wavecast/internal/chat"
	log "log/slog"

	"github.com/gin-gonic/gin"
)

// DmWsHandler 私信的 WebSocket 入口
type DmWsHandler struct {
	hub *chat.DmHub
}

func NewDmWsHandler(hub *chat.DmHub) *DmWsHandler {
	return &DmWsHandler{hub: hub}
}

func (s *DmWsHandler) Connect(c *gin.Context) {
	userID := c.GetString("user_id")
	username := c.GetString("username")

	wsConn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WS 协议升级失败", "err", err)
		return
	}

	conn := chat.NewConn(wsConn)
	session := chat.NewDmSession(s.hub, conn, userID, username)
	session.Connect(c.Request.Context())

	serveSession(wsConn, conn, userID, session.HandleFrame, session.Disconnect)
}
