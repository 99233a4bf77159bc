package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"GraphMind/internal/models"

	"github.com/segmentio/kafka-go"
)

// DefaultLogTopic 是任务生命周期日志的默认主题。
const DefaultLogTopic = "agent_task_logs"

// LogPublisher 封装了向 Kafka 发送任务生命周期日志的逻辑。
// 日志流是纯观测性的：发送失败只记录，不影响编排流程。
type LogPublisher struct {
	writer *kafka.Writer
}

// NewLogPublisher 创建一个新的 LogPublisher 实例。
func NewLogPublisher(brokers []string, topic string) *LogPublisher {
	if topic == "" {
		topic = DefaultLogTopic
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		BatchTimeout:           10 * time.Millisecond,
		BatchSize:              100,
		AllowAutoTopicCreation: true,
	}
	return &LogPublisher{writer: writer}
}

// LogTaskProgress 将 TaskLogEntry 序列化为 JSON 并发送到 Kafka。
// 使用会话ID作为消息 key，保证同一会话的事件有序。
func (p *LogPublisher) LogTaskProgress(ctx context.Context, entry *models.TaskLogEntry) error {
	jsonData, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal log entry: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(entry.SessionID),
		Value: jsonData,
	})
	if err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}

	return nil
}

// Close 关闭底层的 writer 连接。
func (p *LogPublisher) Close() error {
	return p.writer.Close()
}
