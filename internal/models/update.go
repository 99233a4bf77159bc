package models

// TaskView 是面向前端展示的任务快照，由状态广播器从 Task 投影而来。
// 时间戳使用毫秒级 epoch，进度固定取 0/50/100 三档。
type TaskView struct {
	ID         string          `json:"id"`
	AgentID    string          `json:"agentId"`
	AgentName  string          `json:"agentName"`
	AgentColor string          `json:"agentColor"`
	Task       string          `json:"task"`
	Status     TaskStatus      `json:"status"`
	StartTime  *int64          `json:"startTime,omitempty"`
	EndTime    *int64          `json:"endTime,omitempty"`
	Result     string          `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	Progress   int             `json:"progress"`
	Input      string          `json:"input,omitempty"`
	GraphData  *RetrievedGraph `json:"graphData,omitempty"`
}

// MultiTaskUpdate 是推送到会话通道的任务快照消息。
type MultiTaskUpdate struct {
	Type      string     `json:"type"` // 固定为 "multi_task_update"
	SessionID string     `json:"sessionId"`
	Tasks     []TaskView `json:"tasks"`
}

// SessionTitleUpdate 是会话标题变化的单次通知。
type SessionTitleUpdate struct {
	Type      string `json:"type"` // 固定为 "session_title_update"
	SessionID string `json:"sessionId"`
	Title     string `json:"title"`
}

// 推送消息的类型常量。
const (
	UpdateTypeMultiTask    = "multi_task_update"
	UpdateTypeSessionTitle = "session_title_update"
)

// ConversationMessage 表示会话历史中的一轮对话。
type ConversationMessage struct {
	Role    string `json:"role"`    // "user" 或 "assistant"
	Content string `json:"content"` // 该轮对话的文本内容
}

// QueryRequest 是查询提交入口的请求体。
type QueryRequest struct {
	Message             string                `json:"message" binding:"required"`
	SessionID           string                `json:"sessionId" binding:"required"`
	Agents              []AgentDescriptor     `json:"agents,omitempty"`              // 非空时整体替换注册表中的描述符
	ConversationHistory []ConversationMessage `json:"conversationHistory,omitempty"` // 为空时从会话存储读取
}

// MultiAgentResponse 是一次查询的权威返回结果。
// 无论中间环节如何降级，调用方总能收到一个结构完整的响应。
type MultiAgentResponse struct {
	Query            string     `json:"query"`            // 原始查询
	Response         string     `json:"response"`         // 最终综合答案
	AgentsUsed       []string   `json:"agentsUsed"`       // 按任务顺序列出的响应者ID（允许重复）
	ProcessingTime   float64    `json:"processingTime"`   // 处理耗时（秒）
	SynthesisApplied bool       `json:"synthesisApplied"` // 是否执行了综合步骤
	AgentTasks       []TaskView `json:"agentTasks"`       // 完整的任务明细
	TotalTime        int64      `json:"totalTime"`        // 处理耗时（毫秒）
	SessionTitle     string     `json:"sessionTitle,omitempty"`
}
