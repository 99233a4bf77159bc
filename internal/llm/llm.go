package llm

import (
	"context"
	"fmt"
	"time"

	"GraphMind/internal/config"
	"GraphMind/internal/models"
	"GraphMind/pkg/circuitbreaker"
)

// LLM 定义了所有补全服务客户端必须实现的通用接口。
// 编排服务对提供商没有任何结构性要求：给定提示词，返回生成文本即可。
type LLM interface {
	GenerateContent(ctx context.Context, req *models.GenerateContentRequest) (*models.GenerateContentResponse, error)
}

// NewClient 是一个工厂函数，根据提供的配置创建并返回一个实现了 LLM 接口的客户端。
func NewClient(ctx context.Context, cfg config.LLMConfig) (LLM, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAI(cfg.OpenAI.Model, cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL)
	case "gemini":
		return NewGemini(ctx, cfg.Gemini.Model, cfg.Gemini.APIKey)
	case "ollama":
		return NewOllama(cfg.Ollama.Model, cfg.Ollama.BaseURL)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}

// CompleteText 是一个便捷封装：把单条提示词作为用户内容发送，返回纯文本结果。
func CompleteText(ctx context.Context, client LLM, prompt string) (string, error) {
	resp, err := client.GenerateContent(ctx, &models.GenerateContentRequest{
		Contents: []models.Content{{Role: models.SpeakerUser, Text: prompt}},
	})
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

// breakerClient 用熔断器包装底层客户端，保护对外部补全服务的调用。
type breakerClient struct {
	inner   LLM
	breaker circuitbreaker.CircuitBreaker
}

// WithBreaker 根据配置为客户端套上熔断器。未启用时原样返回。
func WithBreaker(client LLM, cfg config.BreakerConfig) (LLM, error) {
	if !cfg.Enabled {
		return client, nil
	}
	timeout, err := time.ParseDuration(cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid breaker timeout duration: %w", err)
	}
	return &breakerClient{
		inner:   client,
		breaker: circuitbreaker.New(cfg.FailureThreshold, cfg.SuccessThreshold, timeout),
	}, nil
}

func (b *breakerClient) GenerateContent(ctx context.Context, req *models.GenerateContentRequest) (*models.GenerateContentResponse, error) {
	res, err := b.breaker.Execute(func() (interface{}, error) {
		return b.inner.GenerateContent(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return res.(*models.GenerateContentResponse), nil
}
