package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"GraphMind/internal/agent"
	"GraphMind/internal/models"
	"GraphMind/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLLM 按脚本返回补全结果，并记录收到的提示词。
type fakeLLM struct {
	replies []string
	errs    []error
	prompts []string
}

func (f *fakeLLM) GenerateContent(ctx context.Context, req *models.GenerateContentRequest) (*models.GenerateContentResponse, error) {
	prompt := ""
	if len(req.Contents) > 0 {
		prompt = req.Contents[0].Text
	}
	f.prompts = append(f.prompts, prompt)

	i := len(f.prompts) - 1
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	reply := ""
	if i < len(f.replies) {
		reply = f.replies[i]
	} else if len(f.replies) > 0 {
		reply = f.replies[len(f.replies)-1]
	}
	return &models.GenerateContentResponse{
		Contents: []models.Content{{Role: models.SpeakerAssistant, Text: reply}},
	}, nil
}

func newTestRegistry() *agent.Registry {
	reg := agent.NewRegistry()
	reg.ReplaceDescriptors(models.DefaultAgents())
	return reg
}

func newTestPlanner(llmClient *fakeLLM, reg *agent.Registry) *Planner {
	return NewPlanner(llmClient, reg, 5, logger.New("test", ""))
}

func TestCreatePlanParsesModelReply(t *testing.T) {
	reply := "```json\n" + `{
		"analysis": "two-step question",
		"strategy": "graph first, then summarize",
		"tasks": [
			{"id": "task_1", "description": "Look up the entity", "agent": "graph_agent"},
			{"id": "task_2", "description": "Summarize findings", "agent": "llm_agent"}
		]
	}` + "\n```"
	p := newTestPlanner(&fakeLLM{replies: []string{reply}}, newTestRegistry())

	plan, err := p.CreatePlan(context.Background(), "who founded the company?", nil)
	require.NoError(t, err)
	require.Len(t, plan.Tasks, 2)

	assert.Equal(t, "two-step question", plan.Analysis)
	assert.Equal(t, "graph_agent", plan.Tasks[0].Agent)
	assert.Equal(t, "llm_agent", plan.Tasks[1].Agent)
	for _, task := range plan.Tasks {
		assert.Equal(t, models.TaskStatusPending, task.Status)
	}
}

func TestCreatePlanFallsBackOnMalformedReply(t *testing.T) {
	p := newTestPlanner(&fakeLLM{replies: []string{"sorry, no JSON today"}}, newTestRegistry())

	plan, err := p.CreatePlan(context.Background(), "what is the capital of France?", nil)
	require.NoError(t, err)
	require.Len(t, plan.Tasks, 1)

	assert.True(t, strings.HasPrefix(plan.Tasks[0].Description, "Handle query: "))
	assert.Equal(t, DefaultResponderID, plan.Tasks[0].Agent)
}

func TestCreatePlanFallsBackOnModelError(t *testing.T) {
	p := newTestPlanner(&fakeLLM{errs: []error{errors.New("provider down")}}, newTestRegistry())

	plan, err := p.CreatePlan(context.Background(), "hello", nil)
	require.NoError(t, err)
	require.Len(t, plan.Tasks, 1)
	assert.Equal(t, "Handle query: hello", plan.Tasks[0].Description)
}

func TestCreatePlanFallbackWithoutDefaultResponder(t *testing.T) {
	reg := agent.NewRegistry()
	reg.ReplaceDescriptors([]models.AgentDescriptor{
		{ID: "graph_agent", Name: "Graph Agent", Enabled: true, Priority: 6},
	})
	p := newTestPlanner(&fakeLLM{replies: []string{"not json"}}, reg)

	plan, err := p.CreatePlan(context.Background(), "query", nil)
	require.NoError(t, err)
	require.Len(t, plan.Tasks, 1)
	assert.Equal(t, "graph_agent", plan.Tasks[0].Agent)
}

func TestCreatePlanFallbackWithNoAgentsEnabled(t *testing.T) {
	p := newTestPlanner(&fakeLLM{replies: []string{"not json"}}, agent.NewRegistry())

	plan, err := p.CreatePlan(context.Background(), "query", nil)
	require.NoError(t, err)
	require.Len(t, plan.Tasks, 1)
	assert.Equal(t, DefaultResponderID, plan.Tasks[0].Agent)
}

func TestPlanningPromptCarriesExplicitDataPairs(t *testing.T) {
	p := newTestPlanner(&fakeLLM{}, newTestRegistry())

	prompt := p.buildPlanningPrompt("x=5, what is x?", nil, p.registry.EnabledDescriptors())
	assert.Contains(t, prompt, "x=5")
	assert.Contains(t, prompt, "Original data from user query")
}

func TestPlanningPromptUsesRecentHistoryOnly(t *testing.T) {
	p := newTestPlanner(&fakeLLM{}, newTestRegistry())

	history := []models.ConversationMessage{
		{Role: "user", Content: "oldest message"},
		{Role: "assistant", Content: "old reply"},
		{Role: "user", Content: "turn three"},
		{Role: "assistant", Content: "turn four"},
		{Role: "user", Content: "turn five"},
		{Role: "assistant", Content: "turn six"},
		{Role: "user", Content: "newest message"},
	}
	prompt := p.buildPlanningPrompt("follow-up", history, p.registry.EnabledDescriptors())

	assert.Contains(t, prompt, "newest message")
	assert.Contains(t, prompt, "turn three")
	assert.NotContains(t, prompt, "oldest message")
}

func TestGenerateTitleTrimsAndTruncates(t *testing.T) {
	long := `"` + strings.Repeat("a", 60) + `"`
	p := newTestPlanner(&fakeLLM{replies: []string{long}}, newTestRegistry())

	title := p.GenerateTitle(context.Background(), "query")
	assert.Len(t, title, 50)
	assert.True(t, strings.HasSuffix(title, "..."))
	assert.False(t, strings.Contains(title, `"`))
}

func TestGenerateTitleTruncatesOnRuneBoundary(t *testing.T) {
	p := newTestPlanner(&fakeLLM{replies: []string{strings.Repeat("汉", 20)}}, newTestRegistry())

	title := p.GenerateTitle(context.Background(), "query")
	assert.True(t, utf8.ValidString(title))
	assert.Equal(t, strings.Repeat("汉", 15)+"...", title)
}

func TestGenerateTitleFallsBackToQueryWords(t *testing.T) {
	p := newTestPlanner(&fakeLLM{errs: []error{errors.New("down")}}, newTestRegistry())

	title := p.GenerateTitle(context.Background(), "one two three four five six seven eight")
	assert.Equal(t, "one two three four five six...", title)
}

func TestSynthesizeApologyWhenNothingCompleted(t *testing.T) {
	p := newTestPlanner(&fakeLLM{}, newTestRegistry())

	tasks := []*models.Task{
		{ID: "task_1", Agent: "llm_agent", Status: models.TaskStatusFailed, Result: "Task failed: boom"},
		{ID: "task_2", Agent: "graph_agent", Status: models.TaskStatusFailed, Result: "Task failed: boom"},
	}
	answer := p.Synthesize(context.Background(), tasks, "query")
	assert.Equal(t, NoResultsApology, answer)
}

func TestSynthesizeFallsBackToConcatenation(t *testing.T) {
	p := newTestPlanner(&fakeLLM{errs: []error{errors.New("down")}}, newTestRegistry())

	tasks := []*models.Task{
		{ID: "task_1", Agent: "graph_agent", Status: models.TaskStatusCompleted, Result: "graph says A"},
		{ID: "task_2", Agent: "llm_agent", Status: models.TaskStatusCompleted, Result: "llm says B"},
	}
	answer := p.Synthesize(context.Background(), tasks, "query")
	assert.Equal(t, "**Graph Agent**: graph says A\n\n**LLM Agent**: llm says B", answer)
}

func TestSynthesizeUsesModelAnswer(t *testing.T) {
	llmClient := &fakeLLM{replies: []string{"  combined answer  "}}
	p := newTestPlanner(llmClient, newTestRegistry())

	tasks := []*models.Task{
		{ID: "task_1", Agent: "llm_agent", Status: models.TaskStatusCompleted, Result: "partial"},
	}
	answer := p.Synthesize(context.Background(), tasks, "query")
	assert.Equal(t, "combined answer", answer)

	require.Len(t, llmClient.prompts, 1)
	assert.Contains(t, llmClient.prompts[0], "**LLM Agent**: partial")
}
