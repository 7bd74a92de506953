package handler

import (
	"Wavecast/internal/chat"
	"context"
	log "log/slog"
	"time"

	"github.com/gorilla/websocket"
)

// serveSession 驱动一条 WebSocket 连接：读循环 + 心跳，
// 连接退出时统一走 disconnect 清理
func serveSession(wsConn *websocket.Conn, conn chat.Conn, userID string, handle func(ctx context.Context, raw []byte), disconnect func(ctx context.Context)) {
	wsConn.SetReadLimit(chat.MaxFrameSize)
	_ = wsConn.SetReadDeadline(time.Now().Add(chat.PongWait))
	wsConn.SetPongHandler(func(string) error {
		return wsConn.SetReadDeadline(time.Now().Add(chat.PongWait))
	})

	done := make(chan struct{})
	defer close(done)

	// 心跳：客户端超时未回 Pong 时读循环会因 deadline 退出
	go func() {
		ticker := time.NewTicker(chat.PingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.Ping(); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		disconnect(ctx)
		_ = conn.Close()
	}()

	for {
		_, raw, err := wsConn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("WS 连接异常断开", "user_id", userID, "err", err)
			}
			return
		}
		handle(context.Background(), raw)
	}
}
