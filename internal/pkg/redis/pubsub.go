package redis

import (
	"context"
	"io"
	log "log/slog"

	"github.com/redis/go-redis/v9"
)

// MessageHandler 订阅回调；同一命名空间下所有匹配频道复用同一个回调
type MessageHandler func(pattern, channel string, payload []byte)

// Bus 进程间 Pub/Sub 总线抽象
// 投递语义为 at-least-once：载荷必须自描述（携带类型与接收者提示），
// 消费侧需按消息 ID 幂等
type Bus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	// PSubscribe 按通配模式订阅，进程启动时每个命名空间只订阅一次
	PSubscribe(ctx context.Context, handler MessageHandler, patterns ...string) (io.Closer, error)
}

type redisBus struct {
	rdb *redis.Client
}

func NewBus(rdb *redis.Client) Bus {
	return &redisBus{rdb: rdb}
}

func (s *redisBus) Publish(ctx context.Context, channel string, payload []byte) error {
	return s.rdb.Publish(ctx, channel, payload).Err()
}

func (s *redisBus) PSubscribe(ctx context.Context, handler MessageHandler, patterns ...string) (io.Closer, error) {
	pubsub := s.rdb.PSubscribe(ctx, patterns...)

	// 确认订阅建立后再返回，避免启动早期丢消息
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	go func() {
		for msg := range pubsub.Channel() {
			handler(msg.Pattern, msg.Channel, []byte(msg.Payload))
		}
		log.Info("Redis 订阅通道已关闭", "patterns", patterns)
	}()

	return pubsub, nil
}
