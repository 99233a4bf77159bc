package models

import (
	"time"
)

// ErrorInfo 存储了关于错误的结构化信息。
type ErrorInfo struct {
	Message    string `json:"message"`
	Type       string `json:"type,omitempty"`        // 错误的类型，例如 "planning_error", "audit_error"
	StatusCode int    `json:"status_code,omitempty"` // 相关的HTTP状态码
}

// RequestInfo 存储了关于 HTTP 请求的上下文信息。
type RequestInfo struct {
	Method     string `json:"method"`
	Path       string `json:"path"`
	RemoteAddr string `json:"remote_addr"`
	UserAgent  string `json:"user_agent"`
}

// TaskLogStatus 定义了任务生命周期日志的事件类型。
type TaskLogStatus string

const (
	StatusPlanning      TaskLogStatus = "planning"       // 正在规划
	StatusPlanReady     TaskLogStatus = "plan_ready"     // 规划完成
	StatusTaskStarted   TaskLogStatus = "task_started"   // 任务开始执行
	StatusTaskCompleted TaskLogStatus = "task_completed" // 任务成功完成
	StatusTaskFailed    TaskLogStatus = "task_failed"    // 任务执行失败
	StatusSynthesizing  TaskLogStatus = "synthesizing"   // 正在综合结果
	StatusRunFinished   TaskLogStatus = "run_finished"   // 本次运行结束
)

// TaskLogEntry 是发往 Kafka 日志流的任务生命周期事件。
type TaskLogEntry struct {
	SessionID string        `json:"session_id"`        // 会话ID，用作消息 key 保证同会话有序
	TaskID    string        `json:"task_id,omitempty"` // 相关任务ID，运行级事件为空
	Agent     string        `json:"agent,omitempty"`   // 相关响应者ID
	Status    TaskLogStatus `json:"status"`            // 事件类型
	Message   string        `json:"message"`           // 人类可读描述
	Timestamp time.Time     `json:"timestamp"`         // 事件时间
}
