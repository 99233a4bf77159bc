package agent

import (
	"context"

	"GraphMind/internal/retrieval"
)

// GraphResponder 是知识图谱响应者，通过检索服务回答问题，
// 并把支撑答案的子图随结果一并返回，供溯源记录使用。
type GraphResponder struct {
	id        string
	retriever retrieval.Service
}

// NewGraphResponder 创建一个图谱响应者。
func NewGraphResponder(id string, retriever retrieval.Service) *GraphResponder {
	return &GraphResponder{id: id, retriever: retriever}
}

// ID 返回响应者标识。
func (r *GraphResponder) ID() string {
	return r.id
}

// Respond 执行一次图谱检索。检索失败作为任务失败上报；
// 检索成功但答案为空仍视为成功完成。
func (r *GraphResponder) Respond(ctx context.Context, input string) (*Result, error) {
	graph, err := r.retriever.Search(ctx, input)
	if err != nil {
		return nil, err
	}
	return &Result{Text: graph.Answer, Graph: graph}, nil
}
