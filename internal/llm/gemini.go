package llm

import (
	"context"
	"fmt"

	"GraphMind/internal/models"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Gemini 是一个实现了 LLM 接口的结构体，用于与 Gemini API 交互。
type Gemini struct {
	model *genai.GenerativeModel // Gemini 生成模型实例。
}

// NewGemini 创建一个新的 Gemini 客户端。
//
// 参数:
//
//	ctx: 上下文，用于控制客户端的生命周期。
//	model: 要使用的 Gemini 模型名称。
//	apiKey: Gemini API 密钥。
func NewGemini(ctx context.Context, model, apiKey string) (*Gemini, error) {
	// 使用 API 密钥创建 GenAI 客户端。
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}

	return &Gemini{
		model: client.GenerativeModel(model),
	}, nil
}

// GenerateContent 向 Gemini API 发送请求并返回响应。
func (g *Gemini) GenerateContent(ctx context.Context, req *models.GenerateContentRequest) (*models.GenerateContentResponse, error) {
	parts := g.toGenaiParts(req)
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty generate content request")
	}

	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}

	return g.toGenerateContentResponse(resp), nil
}

// toGenaiParts 将内部内容格式转换为 GenAI 部分。
func (g *Gemini) toGenaiParts(req *models.GenerateContentRequest) []genai.Part {
	var parts []genai.Part
	for _, content := range req.Contents {
		if content.Text == "" {
			continue
		}
		parts = append(parts, genai.Text(content.Text))
	}
	return parts
}

// toGenerateContentResponse 将 GenAI 响应转换为我们的内部格式。
func (g *Gemini) toGenerateContentResponse(resp *genai.GenerateContentResponse) *models.GenerateContentResponse {
	var contents []models.Content
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				contents = append(contents, models.Content{
					Role: models.SpeakerAssistant,
					Text: string(text),
				})
			}
		}
	}
	return &models.GenerateContentResponse{Contents: contents}
}
