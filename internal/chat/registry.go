package chat

import "sync"

// Registry 进程本地的 用户ID -> 活跃连接 注册表。
// 同一用户重连时新连接覆盖旧连接；注销采用"持有者比较"语义：
// 只有当前登记的连接才允许把自己摘掉，避免旧连接的延迟关闭
// 把重连后的新连接误删。
type Registry struct {
	conns sync.Map // userID string -> Conn
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register 登记连接，返回被顶掉的旧连接（无则为 nil），由调用方负责关闭
func (s *Registry) Register(userID string, conn Conn) Conn {
	old, loaded := s.conns.Swap(userID, conn)
	if !loaded {
		return nil
	}
	return old.(Conn)
}

// Unregister 仅当登记的仍是 conn 本身时才删除，返回是否删除成功
func (s *Registry) Unregister(userID string, conn Conn) bool {
	return s.conns.CompareAndDelete(userID, conn)
}

func (s *Registry) Get(userID string) (Conn, bool) {
	v, ok := s.conns.Load(userID)
	if !ok {
		return nil, false
	}
	return v.(Conn), true
}

// Range 遍历所有在线连接，f 返回 false 时停止
func (s *Registry) Range(f func(userID string, conn Conn) bool) {
	s.conns.Range(func(k, v any) bool {
		return f(k.(string), v.(Conn))
	})
}

func (s *Registry) Count() int {
	n := 0
	s.conns.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
