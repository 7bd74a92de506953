package chat

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second // 单次写超时
	// PingPeriod 心跳间隔，PongWait 必须大于它
	PingPeriod = 30 * time.Second
	PongWait   = 75 * time.Second
	// MaxFrameSize 入站帧上限，超限直接断开
	MaxFrameSize = 8192
)

// Conn 对底层 WebSocket 连接的最小抽象，方便测试替换
type Conn interface {
	WriteMessage(payload []byte) error
	Ping() error
	Close() error
}

// wsConn 包装 gorilla 连接；gorilla 不允许并发写，这里统一加锁
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func NewConn(conn *websocket.Conn) Conn {
	return &wsConn{conn: conn}
}

func (s *wsConn) WriteMessage(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

func (s *wsConn) Ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.PingMessage, nil)
}

func (s *wsConn) Close() error {
	return s.conn.Close()
}
