package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"GraphMind/internal/agent"
	"GraphMind/internal/models"
	"GraphMind/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedPlanner 返回预先给定的计划与综合结果。
type scriptedPlanner struct {
	plan       *models.Plan
	planErr    error
	title      string
	synthesis  string
	synthTasks []*models.Task
}

func (s *scriptedPlanner) CreatePlan(ctx context.Context, query string, history []models.ConversationMessage) (*models.Plan, error) {
	if s.planErr != nil {
		return nil, s.planErr
	}
	return s.plan, nil
}

func (s *scriptedPlanner) GenerateTitle(ctx context.Context, query string) string {
	return s.title
}

func (s *scriptedPlanner) Synthesize(ctx context.Context, tasks []*models.Task, query string) string {
	s.synthTasks = tasks
	return s.synthesis
}

// fakeResponder 执行一个脚本函数并记录收到的输入。
type fakeResponder struct {
	id     string
	fn     func(input string) (*agent.Result, error)
	mu     sync.Mutex
	inputs []string
}

func (f *fakeResponder) ID() string { return f.id }

func (f *fakeResponder) Respond(ctx context.Context, input string) (*agent.Result, error) {
	f.mu.Lock()
	f.inputs = append(f.inputs, input)
	f.mu.Unlock()
	return f.fn(input)
}

// nullChannel 吞掉所有推送。
type nullChannel struct{}

func (nullChannel) SendMessage(sessionID string, message []byte) bool { return true }

func newPlan(tasks ...*models.Task) *models.Plan {
	return &models.Plan{
		OriginalQuery: "test query",
		Analysis:      "analysis",
		Strategy:      "strategy",
		Tasks:         tasks,
		CreatedAt:     time.Now(),
	}
}

func newTask(id, agentID, description string) *models.Task {
	return &models.Task{
		ID:          id,
		Agent:       agentID,
		Description: description,
		Status:      models.TaskStatusPending,
		CreatedAt:   time.Now(),
	}
}

func newTestOrchestrator(planner planModel, responders ...*fakeResponder) (*Orchestrator, *agent.Registry) {
	reg := agent.NewRegistry()
	reg.ReplaceDescriptors(models.DefaultAgents())
	for _, r := range responders {
		reg.RegisterResponder(r)
	}
	log := logger.New("test", "")
	broadcaster := NewStatusBroadcaster(nullChannel{}, reg, 16, log)
	return NewOrchestrator(planner, reg, broadcaster, nil, "test-model", log), reg
}

func TestProcessQueryRespondersUsedMatchesTasks(t *testing.T) {
	graph := &fakeResponder{id: "graph_agent", fn: func(string) (*agent.Result, error) {
		return &agent.Result{Text: "graph answer"}, nil
	}}
	llm := &fakeResponder{id: "llm_agent", fn: func(string) (*agent.Result, error) {
		return &agent.Result{Text: "llm answer"}, nil
	}}
	planner := &scriptedPlanner{
		plan: newPlan(
			newTask("task_1", "graph_agent", "look up entity"),
			newTask("task_2", "llm_agent", "summarize"),
		),
		title:     "Entity Lookup",
		synthesis: "final answer",
	}
	o, _ := newTestOrchestrator(planner, graph, llm)

	resp := o.ProcessQuery(context.Background(), "test query", "session-1", nil)

	assert.Equal(t, []string{"graph_agent", "llm_agent"}, resp.AgentsUsed)
	assert.Equal(t, "final answer", resp.Response)
	assert.True(t, resp.SynthesisApplied)
	assert.Equal(t, "Entity Lookup", resp.SessionTitle)
	// 规划伪任务 + 两个执行任务
	assert.Len(t, resp.AgentTasks, 3)
}

func TestActualInputAccumulatesPriorResults(t *testing.T) {
	first := &fakeResponder{id: "graph_agent", fn: func(string) (*agent.Result, error) {
		return &agent.Result{Text: "first result"}, nil
	}}
	second := &fakeResponder{id: "llm_agent", fn: func(string) (*agent.Result, error) {
		return &agent.Result{Text: "second result"}, nil
	}}
	plan := newPlan(
		newTask("task_1", "graph_agent", "gather facts"),
		newTask("task_2", "llm_agent", "write summary"),
	)
	o, _ := newTestOrchestrator(&scriptedPlanner{plan: plan}, first, second)

	o.ProcessQuery(context.Background(), "test query", "session-1", nil)

	// 第一个任务没有上下文，输入就是描述本身。
	assert.Equal(t, "gather facts", plan.Tasks[0].ActualInput)

	input := plan.Tasks[1].ActualInput
	assert.True(t, len(input) > 0)
	assert.Contains(t, input, "write summary")
	assert.Contains(t, input, "Context from previous tasks:")
	assert.Contains(t, input, "Previous result from graph_agent: first result")

	require.Len(t, second.inputs, 1)
	assert.Equal(t, input, second.inputs[0])
}

func TestFailingResponderDoesNotAbortPlan(t *testing.T) {
	failing := &fakeResponder{id: "graph_agent", fn: func(string) (*agent.Result, error) {
		return nil, errors.New("retrieval exploded")
	}}
	succeeding := &fakeResponder{id: "llm_agent", fn: func(string) (*agent.Result, error) {
		return &agent.Result{Text: "still fine"}, nil
	}}
	plan := newPlan(
		newTask("task_1", "graph_agent", "gather facts"),
		newTask("task_2", "llm_agent", "write summary"),
	)
	o, _ := newTestOrchestrator(&scriptedPlanner{plan: plan, synthesis: "answer"}, failing, succeeding)

	resp := o.ProcessQuery(context.Background(), "test query", "session-1", nil)

	assert.Equal(t, models.TaskStatusFailed, plan.Tasks[0].Status)
	assert.Contains(t, plan.Tasks[0].Result, "retrieval exploded")
	assert.Equal(t, models.TaskStatusCompleted, plan.Tasks[1].Status)
	assert.Equal(t, []string{"graph_agent", "llm_agent"}, resp.AgentsUsed)

	// 失败任务的结果不进入后续任务的上下文。
	assert.NotContains(t, plan.Tasks[1].ActualInput, "retrieval exploded")
}

func TestEmptyResultIsASuccessfulCompletion(t *testing.T) {
	quiet := &fakeResponder{id: "llm_agent", fn: func(string) (*agent.Result, error) {
		return &agent.Result{Text: ""}, nil
	}}
	plan := newPlan(newTask("task_1", "llm_agent", "say nothing"))
	o, _ := newTestOrchestrator(&scriptedPlanner{plan: plan}, quiet)

	o.ProcessQuery(context.Background(), "test query", "session-1", nil)

	assert.Equal(t, models.TaskStatusCompleted, plan.Tasks[0].Status)
	assert.Equal(t, "", plan.Tasks[0].Result)
}

func TestUnknownAgentFailsTaskAndContinues(t *testing.T) {
	known := &fakeResponder{id: "llm_agent", fn: func(string) (*agent.Result, error) {
		return &agent.Result{Text: "done"}, nil
	}}
	plan := newPlan(
		newTask("task_1", "missing_agent", "impossible"),
		newTask("task_2", "llm_agent", "possible"),
	)
	o, _ := newTestOrchestrator(&scriptedPlanner{plan: plan}, known)

	o.ProcessQuery(context.Background(), "test query", "session-1", nil)

	assert.Equal(t, models.TaskStatusFailed, plan.Tasks[0].Status)
	assert.Contains(t, plan.Tasks[0].Result, "missing_agent")
	assert.Equal(t, models.TaskStatusCompleted, plan.Tasks[1].Status)
}

func TestDegradedResponseOnPlanningFailure(t *testing.T) {
	planner := &scriptedPlanner{planErr: errors.New("planner unreachable")}
	o, _ := newTestOrchestrator(planner)

	resp := o.ProcessQuery(context.Background(), "test query", "session-1", nil)

	assert.Contains(t, resp.Response, "planner unreachable")
	assert.False(t, resp.SynthesisApplied)
	assert.Empty(t, resp.AgentsUsed)
	assert.Empty(t, resp.AgentTasks)
	assert.Equal(t, "test query", resp.Query)
}

func TestRunSinksReceiveFinishedRecord(t *testing.T) {
	responder := &fakeResponder{id: "llm_agent", fn: func(string) (*agent.Result, error) {
		return &agent.Result{Text: "done"}, nil
	}}
	plan := newPlan(
		newTask("task_1", "llm_agent", "step one"),
		newTask("task_2", "llm_agent", "step two"),
	)
	o, _ := newTestOrchestrator(&scriptedPlanner{plan: plan, synthesis: "final"}, responder)

	records := make(chan *models.RunRecord, 1)
	o.AddRunSink(func(ctx context.Context, record *models.RunRecord, response *models.MultiAgentResponse) {
		records <- record
	})

	o.ProcessQuery(context.Background(), "test query", "session-1", nil)

	select {
	case record := <-records:
		assert.Equal(t, "session-1", record.SessionID)
		assert.Equal(t, "test query", record.Question)
		assert.Equal(t, "final", record.Answer)
		assert.True(t, record.IsMultiAgent)
		assert.Len(t, record.Tasks, 2)
		assert.NotEmpty(t, record.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("run sink was never invoked")
	}
}

func TestSynthesisSeesFinalTaskStates(t *testing.T) {
	responder := &fakeResponder{id: "llm_agent", fn: func(input string) (*agent.Result, error) {
		if len(input) == 0 {
			return nil, fmt.Errorf("empty input")
		}
		return &agent.Result{Text: "ok"}, nil
	}}
	plan := newPlan(newTask("task_1", "llm_agent", "do work"))
	planner := &scriptedPlanner{plan: plan, synthesis: "answer"}
	o, _ := newTestOrchestrator(planner, responder)

	o.ProcessQuery(context.Background(), "test query", "session-1", nil)

	require.Len(t, planner.synthTasks, 1)
	assert.True(t, planner.synthTasks[0].Status.Terminal())
}
