package agent

import (
	"context"

	"GraphMind/internal/llm"
)

// LLMResponder 是自由文本知识响应者，直接用补全服务回答问题。
type LLMResponder struct {
	id     string
	client llm.LLM
}

// NewLLMResponder 创建一个自由文本响应者。
func NewLLMResponder(id string, client llm.LLM) *LLMResponder {
	return &LLMResponder{id: id, client: client}
}

// ID 返回响应者标识。
func (r *LLMResponder) ID() string {
	return r.id
}

// Respond 把输入原样交给补全服务并返回生成文本。
func (r *LLMResponder) Respond(ctx context.Context, input string) (*Result, error) {
	text, err := llm.CompleteText(ctx, r.client, input)
	if err != nil {
		return nil, err
	}
	return &Result{Text: text}, nil
}
