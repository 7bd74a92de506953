package kafka

import (
	"Wavecast/internal/api/config"
	log "log/slog"
	"time"

	"github.com/IBM/sarama"
	json "github.com/goccy/go-json"
)

// ActivityEvent 聊天活跃度事件，供下游热度统计消费
type ActivityEvent struct {
	RoomID    string `json:"room_id"`
	SenderID  string `json:"sender_id"`
	Timestamp int64  `json:"timestamp"` // 毫秒
}

// ActivityProducer 异步上报房间聊天活跃度。
// 纯旁路链路：发送失败只记日志，绝不反压聊天主链路。
type ActivityProducer struct {
	producer sarama.AsyncProducer
	topic    string
}

func newSaramaConfig(kafkaCfg config.KafkaConfig) *sarama.Config {
	c := sarama.NewConfig()

	if kafkaCfg.Sasl.Enable {
		c.Net.SASL.Enable = true
		c.Net.SASL.Mechanism = sarama.SASLTypePlaintext
		c.Net.SASL.User = kafkaCfg.Sasl.Username
		c.Net.SASL.Password = kafkaCfg.Sasl.Password
	}

	c.Producer.RequiredAcks = sarama.WaitForLocal
	c.Producer.Compression = sarama.CompressionSnappy
	c.Producer.Flush.Frequency = 500 * time.Millisecond
	c.Producer.Return.Errors = true

	return c
}

func NewActivityProducer(cfg *config.Config) (*ActivityProducer, error) {
	producer, err := sarama.NewAsyncProducer(cfg.Kafka.Brokers, newSaramaConfig(cfg.Kafka))
	if err != nil {
		return nil, err
	}

	p := &ActivityProducer{
		producer: producer,
		topic:    cfg.Kafka.ActivityTopic,
	}
	go p.drainErrors()
	return p, nil
}

func (s *ActivityProducer) drainErrors() {
	for err := range s.producer.Errors() {
		log.Error("Failed to publish activity event", "error", err)
	}
}

// RecordRoomMessage 按房间分区上报一条消息活跃度
func (s *ActivityProducer) RecordRoomMessage(roomID, senderID string) {
	payload, err := json.Marshal(ActivityEvent{
		RoomID:    roomID,
		SenderID:  senderID,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		return
	}
	s.producer.Input() <- &sarama.ProducerMessage{
		Topic: s.topic,
		Key:   sarama.StringEncoder(roomID),
		Value: sarama.ByteEncoder(payload),
	}
}

func (s *ActivityProducer) Close() error {
	return s.producer.Close()
}
