package models

import (
	"time"
)

// TaskStatus 定义了任务的几种可能状态。
// 状态迁移严格遵循 pending -> running -> completed/failed，终态不再变化。
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// Terminal 判断任务是否已到达终态。
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// Task 是规划器产出的最小执行单元，由执行引擎按序推进。
type Task struct {
	ID          string     `json:"id"`          // 计划内唯一的任务ID (例如: "task_1")
	Description string     `json:"description"` // 发送给响应者的任务描述
	Agent       string     `json:"agent"`       // 负责该任务的响应者ID
	Status      TaskStatus `json:"status"`      // 当前状态
	Result      string     `json:"result"`      // 完成后的文本结果；失败时为错误文本

	CreatedAt   time.Time  `json:"createdAt"`             // 任务创建时间
	StartedAt   *time.Time `json:"startedAt,omitempty"`   // 开始执行时间
	CompletedAt *time.Time `json:"completedAt,omitempty"` // 到达终态时间

	// ActualInput 记录实际发送给响应者的完整输入（描述 + 前序任务上下文），用于审计。
	ActualInput string `json:"actualInput,omitempty"`

	// RetrievedGraph 是图谱类响应者返回的结构化子图，随任务一并进入溯源记录。
	RetrievedGraph *RetrievedGraph `json:"retrievedGraph,omitempty"`
}

// Plan 是一次查询的完整分解结果。计划本身创建后不可变，
// 但其中的 Task 会在执行过程中被执行引擎原地推进状态。
type Plan struct {
	OriginalQuery string    `json:"originalQuery"` // 用户的原始查询
	Analysis      string    `json:"analysis"`      // 规划器对查询的分析
	Strategy      string    `json:"strategy"`      // 总体执行策略
	Tasks         []*Task   `json:"tasks"`         // 有序任务列表
	CreatedAt     time.Time `json:"createdAt"`     // 计划创建时间
}
