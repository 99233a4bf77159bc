package service

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"GraphMind/internal/agent"
	"GraphMind/internal/models"
)

// 规划器伪任务的固定展示属性。
const (
	plannerTaskID = "supervisor_plan"
	plannerColor  = "#607D8B"

	// maxErrorLength 限制推送到前端的错误文本长度。
	maxErrorLength = 500
)

// planDetails 把计划渲染为前端展示用的 Markdown 文本。
func planDetails(plan *models.Plan) string {
	var sb strings.Builder
	sb.WriteString("**Query Analysis**: " + plan.Analysis + "\n\n")
	sb.WriteString("**Strategy**: " + plan.Strategy + "\n\n")
	sb.WriteString("**Task Breakdown**:")
	for i, t := range plan.Tasks {
		sb.WriteString(fmt.Sprintf("\n%d. %s: %s", i+1, t.Agent, t.Description))
	}
	return sb.String()
}

// plannerView 构造描述规划环节本身的伪任务快照。
func plannerView(plan *models.Plan, planningDone bool) models.TaskView {
	status := models.TaskStatusRunning
	result := ""
	progress := 50
	if planningDone {
		status = models.TaskStatusCompleted
		result = planDetails(plan)
		progress = 100
	}
	return models.TaskView{
		ID:         plannerTaskID,
		AgentID:    "planner",
		AgentName:  "Planner",
		AgentColor: plannerColor,
		Task:       "Planning and coordinating task execution",
		Status:     status,
		Result:     result,
		Progress:   progress,
		Input:      plan.OriginalQuery,
	}
}

// taskView 把一个执行任务投影为展示快照。
// 进度固定三档：pending=0, running=50, completed=100；失败任务的
// 错误文本被截断后放入 Error 字段。
func taskView(t *models.Task, registry *agent.Registry) models.TaskView {
	view := models.TaskView{
		ID:         t.ID,
		AgentID:    t.Agent,
		AgentName:  agentDisplayName(t.Agent, registry),
		AgentColor: agentColor(t.Agent, registry),
		Task:       t.Description,
		Status:     t.Status,
		Input:      t.ActualInput,
		GraphData:  t.RetrievedGraph,
	}
	if view.Input == "" {
		view.Input = t.Description
	}

	switch t.Status {
	case models.TaskStatusCompleted:
		view.Progress = 100
		view.Result = t.Result
	case models.TaskStatusRunning:
		view.Progress = 50
	case models.TaskStatusFailed:
		view.Error = truncate(t.Result, maxErrorLength)
	}

	view.StartTime = toEpochMillis(t.StartedAt)
	view.EndTime = toEpochMillis(t.CompletedAt)
	return view
}

// buildTaskViews 构造一次完整的任务快照列表：规划伪任务在前，
// 执行任务按计划顺序排列。
func buildTaskViews(plan *models.Plan, planningDone bool, registry *agent.Registry) []models.TaskView {
	views := make([]models.TaskView, 0, len(plan.Tasks)+1)
	views = append(views, plannerView(plan, planningDone))
	for _, t := range plan.Tasks {
		views = append(views, taskView(t, registry))
	}
	return views
}

func agentDisplayName(agentID string, registry *agent.Registry) string {
	if d, ok := registry.Descriptor(agentID); ok && d.Name != "" {
		return d.Name
	}
	words := strings.Split(agentID, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func agentColor(agentID string, registry *agent.Registry) string {
	if d, ok := registry.Descriptor(agentID); ok && d.Color != "" {
		return d.Color
	}
	return "#757575"
}

func toEpochMillis(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}

// truncate 在不超过 max 字节处截断并加省略号。
// 截断点落在多字节字符中间时向前回退到字符边界，保证输出是合法 UTF-8。
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
