package llm

import (
	"context"
	"fmt"

	"GraphMind/internal/models"

	openai "github.com/meguminnnnnnnnn/go-openai"
)

// OpenAI 是一个用于 OpenAI API 的 LLM 客户端。
type OpenAI struct {
	client *openai.Client // OpenAI 客户端实例。
	model  string         // 要使用的模型名称。
}

// NewOpenAI 创建一个新的 OpenAI 客户端。
// baseURL 不为空时指向兼容 OpenAI 协议的自建服务。
func NewOpenAI(model, apiKey, baseURL string) (*OpenAI, error) {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	client := openai.NewClientWithConfig(cfg)
	return &OpenAI{
		client: client,
		model:  model,
	}, nil
}

// GenerateContent 使用 OpenAI API 生成内容。
func (o *OpenAI) GenerateContent(ctx context.Context, req *models.GenerateContentRequest) (*models.GenerateContentResponse, error) {
	openaiReq := o.toOpenAIRequest(req)

	resp, err := o.client.CreateChatCompletion(ctx, openaiReq)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat completion: %w", err)
	}

	return o.toGenerateContentResponse(&resp), nil
}

// toOpenAIRequest 将我们的内部请求格式转换为 OpenAI 格式。
func (o *OpenAI) toOpenAIRequest(req *models.GenerateContentRequest) openai.ChatCompletionRequest {
	var messages []openai.ChatCompletionMessage
	for _, content := range req.Contents {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    string(content.Role),
			Content: content.Text,
		})
	}

	return openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: messages,
	}
}

// toGenerateContentResponse 将 OpenAI 响应转换为我们的内部格式。
func (o *OpenAI) toGenerateContentResponse(resp *openai.ChatCompletionResponse) *models.GenerateContentResponse {
	var contents []models.Content
	for _, choice := range resp.Choices {
		contents = append(contents, models.Content{
			Role: models.SpeakerAssistant,
			Text: choice.Message.Content,
		})
	}
	return &models.GenerateContentResponse{Contents: contents}
}
