package models

import (
	"time"
)

// RunRecord 是一次完整查询运行的归档记录。
// 它在响应返回给调用方之后生成，交给溯源记录器与运行归档库，
// 其成败不影响调用方已经拿到的答案。
type RunRecord struct {
	ID             string    `json:"id" bson:"_id"`                        // 运行唯一ID (UUID)
	SessionID      string    `json:"sessionId" bson:"session_id"`         // 会话ID
	Question       string    `json:"question" bson:"question"`            // 用户问题
	Answer         string    `json:"answer" bson:"answer"`                // 最终答案
	Tasks          []*Task   `json:"tasks" bson:"tasks"`                  // 按原始顺序排列的任务（含终态与子图）
	AgentsUsed     []string  `json:"agentsUsed" bson:"agents_used"`       // 按任务顺序列出的响应者ID
	Sources        []string  `json:"sources,omitempty" bson:"sources"`    // 来源引用（可为空）
	Model          string    `json:"model" bson:"model"`                  // 使用的补全模型
	ProcessingTime float64   `json:"processingTime" bson:"processing_time"` // 处理耗时（秒）
	IsMultiAgent   bool      `json:"isMultiAgent" bson:"is_multi_agent"`  // 是否为多响应者运行
	SubmittedAt    time.Time `json:"submittedAt" bson:"submitted_at"`     // 记录生成时间
}
