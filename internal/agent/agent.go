package agent

import (
	"context"

	"GraphMind/internal/models"
)

// Result 是响应者一次执行的完整输出。
// 图谱类响应者会同时带回本次检索的结构化子图，
// 子图随结果返回而不是写入共享槽位，保证不会泄漏到别的任务上。
type Result struct {
	Text  string                 // 文本答案，可以为空（空答案是合法结果而非错误）
	Graph *models.RetrievedGraph // 检索子图，非图谱类响应者为 nil
}

// Responder 是所有专家响应者必须实现的接口。
// 执行引擎按任务串行调用 Respond，input 是任务描述加上前序任务上下文。
type Responder interface {
	// ID 返回响应者的唯一标识，与 AgentDescriptor.ID 对应。
	ID() string
	// Respond 针对输入生成回答。返回错误时该任务被标记为失败，
	// 但编排会继续执行后续任务。
	Respond(ctx context.Context, input string) (*Result, error)
}
