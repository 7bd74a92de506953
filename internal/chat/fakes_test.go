package chat

import (
	"Wavecast/internal/pkg/redis"
	"context"
	"errors"
	"io"
	"sync"

	goredis "github.com/redis/go-redis/v9"
)

// 测试不依赖真实 Redis：全局客户端指向不可达地址，
// 相关调用快速失败并走日志分支
func init() {
	redis.Rdb = goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:1"})
}

// fakeConn 记录写入的帧，可注入写失败
type fakeConn struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
	failed bool
}

func (f *fakeConn) WriteMessage(payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failed {
		return errors.New("write failed")
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	f.frames = append(f.frames, cp)
	return nil
}

func (f *fakeConn) Ping() error { return nil }

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) Frames() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.frames))
	copy(out, f.frames)
	return out
}

type published struct {
	channel string
	payload []byte
}

// fakeBus 记录发布；loopback 打开时直接把消息回放给订阅回调，
// 模拟单实例下的总线闭环
type fakeBus struct {
	mu        sync.Mutex
	published []published
	handler   redis.MessageHandler
	loopback  bool
}

func (f *fakeBus) Publish(_ context.Context, channel string, payload []byte) error {
	f.mu.Lock()
	f.published = append(f.published, published{channel: channel, payload: payload})
	handler := f.handler
	loopback := f.loopback
	f.mu.Unlock()

	if loopback && handler != nil {
		handler("", channel, payload)
	}
	return nil
}

func (f *fakeBus) PSubscribe(_ context.Context, handler redis.MessageHandler, _ ...string) (io.Closer, error) {
	f.mu.Lock()
	f.handler = handler
	f.mu.Unlock()
	return io.NopCloser(nil), nil
}

func (f *fakeBus) Published() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]published, len(f.published))
	copy(out, f.published)
	return out
}

// fakeMembership 内存版房间成员集合
type fakeMembership struct {
	mu    sync.Mutex
	rooms map[string]map[string]struct{}
}

func newFakeMembership() *fakeMembership {
	return &fakeMembership{rooms: make(map[string]map[string]struct{})}
}

func (f *fakeMembership) Add(_ context.Context, roomID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rooms[roomID] == nil {
		f.rooms[roomID] = make(map[string]struct{})
	}
	f.rooms[roomID][userID] = struct{}{}
	return nil
}

func (f *fakeMembership) Remove(_ context.Context, roomID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rooms[roomID], userID)
	return nil
}

func (f *fakeMembership) Contains(_ context.Context, roomID, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.rooms[roomID][userID]
	return ok, nil
}

func (f *fakeMembership) Members(_ context.Context, roomID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for id := range f.rooms[roomID] {
		out = append(out, id)
	}
	return out, nil
}

func (f *fakeMembership) Count(_ context.Context, roomID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.rooms[roomID])), nil
}
