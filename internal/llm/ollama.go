package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"GraphMind/internal/models"

	olla "github.com/ollama/ollama/api"
)

// Ollama 是一个用于本地 Ollama 服务的 LLM 客户端。
type Ollama struct {
	client *olla.Client // Ollama 客户端实例。
	model  string       // 要使用的模型名称。
}

// NewOllama 创建一个新的 Ollama 客户端。
//
// 参数:
//
//	model: 要使用的模型名称。
//	baseURL: Ollama 服务的基准 URL。如果为空，则默认为 "http://localhost:11434"。
func NewOllama(model, baseURL string) (*Ollama, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}

	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	// 本地推理可能较慢，使用较长的超时时间。
	hc := &http.Client{
		Timeout: 120 * time.Second,
	}

	return &Ollama{client: olla.NewClient(parsedURL, hc), model: model}, nil
}

// GenerateContent 使用 Ollama API 生成内容。
func (o *Ollama) GenerateContent(ctx context.Context, req *models.GenerateContentRequest) (*models.GenerateContentResponse, error) {
	prompt := o.toOllamaPrompt(req)

	var result *olla.GenerateResponse
	stream := false

	err := o.client.Generate(ctx, &olla.GenerateRequest{
		Model:  o.model,
		Prompt: prompt,
		Stream: &stream,
	}, func(resp olla.GenerateResponse) error {
		result = &resp
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama generate failed: %w", err)
	}
	if result == nil {
		return nil, fmt.Errorf("ollama returned no response")
	}

	return &models.GenerateContentResponse{
		Contents: []models.Content{{Role: models.SpeakerAssistant, Text: result.Response}},
	}, nil
}

// toOllamaPrompt 将内部请求拼接为单个提示词。
// Ollama 的 generate 接口只接受一段文本，角色信息以前缀形式保留。
func (o *Ollama) toOllamaPrompt(req *models.GenerateContentRequest) string {
	var sb strings.Builder
	for _, content := range req.Contents {
		if content.Text == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(string(content.Role))
		sb.WriteString(": ")
		sb.WriteString(content.Text)
	}
	return sb.String()
}
