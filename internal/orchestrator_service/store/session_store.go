package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"GraphMind/internal/models"

	"github.com/go-redis/redis/v8"
)

const maxStoredTurns = 100 // 每个会话最多保留的消息条数

// SessionStore 把会话历史与标题保存在 Redis 中。
// 历史是一个 JSON 消息列表，超出上限时裁剪最旧的消息。
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSessionStore 创建一个会话存储。ttl 为 0 时会话永不过期。
func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, ttl: ttl}
}

func historyKey(sessionID string) string {
	return fmt.Sprintf("session:%s:history", sessionID)
}

func titleKey(sessionID string) string {
	return fmt.Sprintf("session:%s:title", sessionID)
}

// AppendTurn 把一轮问答追加到会话历史的末尾。
func (s *SessionStore) AppendTurn(ctx context.Context, sessionID, question, answer string) error {
	messages := []models.ConversationMessage{
		{Role: "user", Content: question},
		{Role: "assistant", Content: answer},
	}

	key := historyKey(sessionID)
	for _, msg := range messages {
		data, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("序列化会话消息失败: %w", err)
		}
		if err := s.client.RPush(ctx, key, data).Err(); err != nil {
			return fmt.Errorf("写入会话历史失败: %w", err)
		}
	}

	// 只保留最近的消息，并刷新过期时间。
	if err := s.client.LTrim(ctx, key, -maxStoredTurns, -1).Err(); err != nil {
		return fmt.Errorf("裁剪会话历史失败: %w", err)
	}
	if s.ttl > 0 {
		if err := s.client.Expire(ctx, key, s.ttl).Err(); err != nil {
			return fmt.Errorf("刷新会话历史过期时间失败: %w", err)
		}
	}
	return nil
}

// History 按时间顺序返回会话的全部已存消息。
func (s *SessionStore) History(ctx context.Context, sessionID string) ([]models.ConversationMessage, error) {
	vals, err := s.client.LRange(ctx, historyKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("读取会话历史失败: %w", err)
	}

	messages := make([]models.ConversationMessage, 0, len(vals))
	for _, v := range vals {
		var msg models.ConversationMessage
		if err := json.Unmarshal([]byte(v), &msg); err != nil {
			// 跳过无法解析的历史条目，不让单条脏数据拖垮整个会话。
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// SetTitle 保存会话标题。已有标题不会被覆盖。
func (s *SessionStore) SetTitle(ctx context.Context, sessionID, title string) error {
	if title == "" {
		return nil
	}
	ok, err := s.client.SetNX(ctx, titleKey(sessionID), title, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("保存会话标题失败: %w", err)
	}
	if !ok {
		return nil
	}
	return nil
}

// Title 返回会话标题，不存在时返回空字符串。
func (s *SessionStore) Title(ctx context.Context, sessionID string) (string, error) {
	title, err := s.client.Get(ctx, titleKey(sessionID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("读取会话标题失败: %w", err)
	}
	return title, nil
}
