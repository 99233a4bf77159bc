package service

import (
	"context"
	"fmt"
	"time"

	"GraphMind/internal/agent"
	"GraphMind/internal/models"
	"GraphMind/pkg/logger"

	"github.com/google/uuid"
)

// planModel 是执行引擎对规划器的依赖。具体实现 (*Planner) 的所有方法
// 都在内部降级，但接口保留错误返回：规划彻底失败时整次查询降级。
type planModel interface {
	CreatePlan(ctx context.Context, query string, history []models.ConversationMessage) (*models.Plan, error)
	GenerateTitle(ctx context.Context, query string) string
	Synthesize(ctx context.Context, tasks []*models.Task, query string) string
}

// taskLogPublisher 把任务生命周期事件发往日志流，失败只记录。
type taskLogPublisher interface {
	LogTaskProgress(ctx context.Context, entry *models.TaskLogEntry) error
}

// RunSink 在响应计算完成之后消费运行记录（溯源落库、归档、会话存储）。
// 所有 sink 在独立协程中执行，其成败与调用方拿到的答案完全无关。
type RunSink func(ctx context.Context, record *models.RunRecord, response *models.MultiAgentResponse)

// Orchestrator 是任务编排的执行引擎：按计划顺序串行推进每个任务，
// 把前序结果作为上下文传给后续任务，并在每次状态迁移后广播快照。
type Orchestrator struct {
	planner      planModel
	registry     *agent.Registry
	broadcaster  *StatusBroadcaster
	logPublisher taskLogPublisher // 可以为 nil，表示不接日志流
	sinks        []RunSink
	model        string // 记录到运行归档中的补全模型名称
	sinkTimeout  time.Duration
	logger       *logger.Logger
}

// NewOrchestrator 创建一个执行引擎。logPublisher 传 nil 时关闭日志流。
func NewOrchestrator(planner planModel, registry *agent.Registry, broadcaster *StatusBroadcaster, logPublisher taskLogPublisher, model string, log *logger.Logger) *Orchestrator {
	return &Orchestrator{
		planner:      planner,
		registry:     registry,
		broadcaster:  broadcaster,
		logPublisher: logPublisher,
		model:        model,
		sinkTimeout:  30 * time.Second,
		logger:       log,
	}
}

// AddRunSink 注册一个运行记录消费者。
func (o *Orchestrator) AddRunSink(sink RunSink) {
	o.sinks = append(o.sinks, sink)
}

// ProcessQuery 处理一次完整查询。无论中间环节如何失败，
// 返回值总是一个结构完整的响应对象。
func (o *Orchestrator) ProcessQuery(ctx context.Context, query, sessionID string, history []models.ConversationMessage) *models.MultiAgentResponse {
	start := time.Now()
	runLogger := logger.New("orchestrator", sessionID)
	runLogger.WithPayload(map[string]interface{}{"query_len": len(query)}).Info("Starting multi-agent processing")

	o.logProgress(ctx, sessionID, "", "", models.StatusPlanning, "Analyzing query and planning tasks")

	plan, err := o.planner.CreatePlan(ctx, query, history)
	if err != nil {
		// 规划连降级路径都失败了：返回携带错误文本的降级响应。
		runLogger.WithError(models.ErrorInfo{Message: err.Error(), Type: "planning_error"}).Error("Planning failed beyond fallback")
		elapsed := time.Since(start)
		return &models.MultiAgentResponse{
			Query:            query,
			Response:         fmt.Sprintf("I apologize, but I encountered an error while processing your request: %s", err.Error()),
			AgentsUsed:       []string{},
			ProcessingTime:   elapsed.Seconds(),
			SynthesisApplied: false,
			AgentTasks:       []models.TaskView{},
			TotalTime:        elapsed.Milliseconds(),
		}
	}

	o.logProgress(ctx, sessionID, "", "", models.StatusPlanReady, fmt.Sprintf("Plan ready with %d tasks", len(plan.Tasks)))
	o.broadcaster.PublishPlanDetails(sessionID, plan)
	o.broadcaster.PublishTasks(sessionID, plan, true)

	for _, task := range plan.Tasks {
		o.runTask(ctx, sessionID, plan, task, runLogger)
	}

	o.logProgress(ctx, sessionID, "", "", models.StatusSynthesizing, "All tasks finished, synthesizing results")
	answer := o.planner.Synthesize(ctx, plan.Tasks, query)

	title := o.planner.GenerateTitle(ctx, query)
	o.broadcaster.PublishTitle(sessionID, title)

	elapsed := time.Since(start)
	agentsUsed := make([]string, 0, len(plan.Tasks))
	for _, t := range plan.Tasks {
		agentsUsed = append(agentsUsed, t.Agent)
	}

	response := &models.MultiAgentResponse{
		Query:            query,
		Response:         answer,
		AgentsUsed:       agentsUsed,
		ProcessingTime:   elapsed.Seconds(),
		SynthesisApplied: true,
		AgentTasks:       buildTaskViews(plan, true, o.registry),
		TotalTime:        elapsed.Milliseconds(),
		SessionTitle:     title,
	}

	o.logProgress(ctx, sessionID, "", "", models.StatusRunFinished, fmt.Sprintf("Run finished in %.2fs", elapsed.Seconds()))
	runLogger.WithPayload(map[string]interface{}{"seconds": elapsed.Seconds()}).Info("Multi-agent processing completed")

	o.dispatchRun(sessionID, query, plan, response)
	return response
}

// runTask 推进单个任务走完 pending -> running -> completed/failed，
// 每次迁移后都广播一次完整快照。单个任务失败不会中断计划。
func (o *Orchestrator) runTask(ctx context.Context, sessionID string, plan *models.Plan, task *models.Task, runLogger *logger.Logger) {
	now := time.Now()
	task.Status = models.TaskStatusRunning
	task.StartedAt = &now
	o.broadcaster.PublishTasks(sessionID, plan, true)
	o.logProgress(ctx, sessionID, task.ID, task.Agent, models.StatusTaskStarted, task.Description)

	result, err := o.executeTask(ctx, task, plan.Tasks)
	done := time.Now()
	task.CompletedAt = &done

	if err != nil {
		task.Status = models.TaskStatusFailed
		task.Result = fmt.Sprintf("Task failed: %s", err.Error())
		runLogger.WithError(models.ErrorInfo{Message: err.Error(), Type: "task_error"}).WithPayload(map[string]interface{}{"task_id": task.ID}).Error("Task failed")
		o.logProgress(ctx, sessionID, task.ID, task.Agent, models.StatusTaskFailed, err.Error())
	} else {
		// 空结果是合法答案：照常标记为完成。
		task.Status = models.TaskStatusCompleted
		task.Result = result.Text
		task.RetrievedGraph = result.Graph
		o.logProgress(ctx, sessionID, task.ID, task.Agent, models.StatusTaskCompleted, fmt.Sprintf("%d characters", len(result.Text)))
	}

	o.broadcaster.PublishTasks(sessionID, plan, true)
}

// executeTask 把所有已完成任务的结果拼入上下文后调用响应者。
// 拼出的完整输入原样记录在 ActualInput 上供审计使用。
func (o *Orchestrator) executeTask(ctx context.Context, task *models.Task, allTasks []*models.Task) (*agent.Result, error) {
	var contextBlock string
	for _, prev := range allTasks {
		if prev.ID == task.ID || prev.Status != models.TaskStatusCompleted {
			continue
		}
		contextBlock += fmt.Sprintf("\n\nPrevious result from %s: %s", prev.Agent, prev.Result)
	}

	input := task.Description
	if contextBlock != "" {
		input += "\n\nContext from previous tasks:" + contextBlock
	}
	task.ActualInput = input

	responder, ok := o.registry.Responder(task.Agent)
	if !ok {
		return nil, fmt.Errorf("agent %s not found", task.Agent)
	}

	return responder.Respond(ctx, input)
}

// dispatchRun 构造运行记录并异步交给所有 sink。
// sink 使用独立的超时上下文，不受请求上下文取消的影响。
func (o *Orchestrator) dispatchRun(sessionID, query string, plan *models.Plan, response *models.MultiAgentResponse) {
	if len(o.sinks) == 0 {
		return
	}

	record := &models.RunRecord{
		ID:             uuid.NewString(),
		SessionID:      sessionID,
		Question:       query,
		Answer:         response.Response,
		Tasks:          plan.Tasks,
		AgentsUsed:     response.AgentsUsed,
		Model:          o.model,
		ProcessingTime: response.ProcessingTime,
		IsMultiAgent:   len(plan.Tasks) > 1,
		SubmittedAt:    time.Now(),
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), o.sinkTimeout)
		defer cancel()
		for _, sink := range o.sinks {
			sink(ctx, record, response)
		}
	}()
}

// logProgress 向日志流发送一条生命周期事件，失败只记录。
func (o *Orchestrator) logProgress(ctx context.Context, sessionID, taskID, agentID string, status models.TaskLogStatus, message string) {
	if o.logPublisher == nil {
		return
	}
	entry := &models.TaskLogEntry{
		SessionID: sessionID,
		TaskID:    taskID,
		Agent:     agentID,
		Status:    status,
		Message:   message,
		Timestamp: time.Now(),
	}
	if err := o.logPublisher.LogTaskProgress(ctx, entry); err != nil {
		o.logger.WithError(models.ErrorInfo{Message: err.Error()}).Warn("Failed to publish task log entry")
	}
}
