package audit

import (
	"context"
	"errors"
	"strings"
	"testing"

	"GraphMind/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// executedQuery 记录一条发给溯源库的语句及其参数。
type executedQuery struct {
	query  string
	params map[string]interface{}
}

// fakeRunner 捕获全部写入，并可按语句内容注入失败。
type fakeRunner struct {
	queries []executedQuery
	failOn  func(query string) error
}

func (f *fakeRunner) Run(ctx context.Context, query string, params map[string]interface{}) error {
	if f.failOn != nil {
		if err := f.failOn(query); err != nil {
			return err
		}
	}
	f.queries = append(f.queries, executedQuery{query: query, params: params})
	return nil
}

func (f *fakeRunner) count(substr string) int {
	n := 0
	for _, q := range f.queries {
		if strings.Contains(q.query, substr) {
			n++
		}
	}
	return n
}

func (f *fakeRunner) find(substr string) []executedQuery {
	var out []executedQuery
	for _, q := range f.queries {
		if strings.Contains(q.query, substr) {
			out = append(out, q)
		}
	}
	return out
}

func twoTaskRecord() *models.RunRecord {
	return &models.RunRecord{
		ID:         "run-1",
		SessionID:  "session-1",
		Question:   "who founded the company?",
		Answer:     "the founder",
		AgentsUsed: []string{"graph_agent", "graph_agent"},
		Model:      "test-model",
		Tasks: []*models.Task{
			{ID: "task_1", Agent: "graph_agent", Status: models.TaskStatusCompleted, Result: "r1", ActualInput: "in1"},
			{ID: "task_2", Agent: "graph_agent", Status: models.TaskStatusCompleted, Result: "r2", ActualInput: "in2"},
		},
	}
}

func TestRecordGroupsTasksByAgentType(t *testing.T) {
	runner := &fakeRunner{}
	graphID := NewRecorder(runner).Record(context.Background(), twoTaskRecord())
	require.NotEmpty(t, graphID)

	// 同一响应者的两个任务只产生一个 Agent 节点，但两对 Task/Result。
	assert.Equal(t, 1, runner.count("CREATE (a:Agent"))
	assert.Equal(t, 2, runner.count("CREATE (t:Task"))
	assert.Equal(t, 2, runner.count("CREATE (r:Result"))
	assert.Equal(t, 2, runner.count("[:PRODUCED]"))
	assert.Equal(t, 2, runner.count("[:ASSIGNED]"))
	assert.Equal(t, 1, runner.count("[:USE_AGENT]"))
	assert.Equal(t, 1, runner.count("[:ASKED"))
	assert.Equal(t, 1, runner.count("[:TRIGGERED]"))
}

func TestRecordLinksCrossAgentDependencies(t *testing.T) {
	record := twoTaskRecord()
	record.Tasks[1].Agent = "llm_agent"

	runner := &fakeRunner{}
	require.NotEmpty(t, NewRecorder(runner).Record(context.Background(), record))

	// 只有后位任务连向其他响应者的结果；同响应者之间不连。
	deps := runner.find("[:USED_INPUT_FROM]")
	require.Len(t, deps, 1)
	assert.Contains(t, deps[0].params["agent_id"], "llm_agent")
}

func TestRecordTwiceProducesDisjointFragments(t *testing.T) {
	runner := &fakeRunner{}
	recorder := NewRecorder(runner)

	first := recorder.Record(context.Background(), twoTaskRecord())
	second := recorder.Record(context.Background(), twoTaskRecord())

	require.NotEmpty(t, first)
	require.NotEmpty(t, second)
	assert.NotEqual(t, first, second)

	// 两次记录的任务节点标识互不重叠。
	seen := make(map[interface{}]bool)
	for _, q := range runner.find("CREATE (t:Task") {
		id := q.params["task_id"]
		assert.False(t, seen[id])
		seen[id] = true
	}
}

func TestRecordReturnsEmptyWithoutRunner(t *testing.T) {
	assert.Empty(t, NewRecorder(nil).Record(context.Background(), twoTaskRecord()))
}

func TestRecordReturnsEmptyOnEarlyFailure(t *testing.T) {
	runner := &fakeRunner{failOn: func(query string) error {
		if strings.Contains(query, "CREATE (q:Question") {
			return errors.New("store unreachable")
		}
		return nil
	}}
	assert.Empty(t, NewRecorder(runner).Record(context.Background(), twoTaskRecord()))
}

func graphRecord(graph *models.RetrievedGraph) *models.RunRecord {
	record := twoTaskRecord()
	record.Tasks[0].RetrievedGraph = graph
	return record
}

func TestRetrievedNodesAreDeduplicated(t *testing.T) {
	graph := &models.RetrievedGraph{
		Query:  "founder",
		Answer: "found it",
		Nodes: []models.GraphNode{
			{ElementID: "n1", Labels: []string{"Entity"}, Properties: map[string]any{"name": "Ada"}},
			{ElementID: "n1", Labels: []string{"Entity"}, Properties: map[string]any{"name": "Ada"}},
			{ElementID: "n2", Labels: []string{"Chunk"}, Properties: map[string]any{"text": "chunk"}},
		},
	}
	runner := &fakeRunner{}
	require.NotEmpty(t, NewRecorder(runner).Record(context.Background(), graphRecord(graph)))

	assert.Equal(t, 1, runner.count("CREATE (g:GraphRetrieval"))
	assert.Equal(t, 1, runner.count("[:USING_GRAPHRAG]"))
	// 外部标识相同的节点只落一次。
	assert.Equal(t, 2, runner.count("[:RETRIEVED_ENTITY]"))
}

func TestSupplementaryNodesReuseDeduplicationMap(t *testing.T) {
	graph := &models.RetrievedGraph{
		Nodes: []models.GraphNode{
			{ElementID: "n1", Labels: []string{"Entity"}},
		},
		EntityNodes: []models.GraphNode{
			{ElementID: "n1", Labels: []string{"Entity"}}, // 主检索集里已有
			{ElementID: "n3", Labels: []string{"Entity"}},
		},
	}
	runner := &fakeRunner{}
	require.NotEmpty(t, NewRecorder(runner).Record(context.Background(), graphRecord(graph)))

	assert.Equal(t, 1, runner.count("[:RETRIEVED_ENTITY]"))
	assert.Equal(t, 1, runner.count("[:RETRIEVED_ADDITIONAL]"))
}

func TestRelationshipWithMissingEndpointIsDropped(t *testing.T) {
	graph := &models.RetrievedGraph{
		Nodes: []models.GraphNode{
			{ElementID: "n1", Labels: []string{"Entity"}},
			{ElementID: "n2", Labels: []string{"Entity"}},
		},
		Relationships: []models.GraphRelationship{
			{ElementID: "r1", Type: "KNOWS", StartElementID: "n1", EndElementID: "n2"},
			{ElementID: "r2", Type: "KNOWS", StartElementID: "n1", EndElementID: "never_seen"},
		},
	}
	runner := &fakeRunner{}
	require.NotEmpty(t, NewRecorder(runner).Record(context.Background(), graphRecord(graph)))

	// 端点缺失的关系静默丢弃，不产生写入也不让记录失败。
	assert.Equal(t, 1, runner.count("CREATE (start)-[:KNOWS"))
}

func TestNodeCreationFallsBackToEntity(t *testing.T) {
	graph := &models.RetrievedGraph{
		Nodes: []models.GraphNode{
			{ElementID: "n1", Labels: []string{"Weird Label"}, Properties: map[string]any{"k": "v"}},
		},
	}
	runner := &fakeRunner{failOn: func(query string) error {
		if strings.Contains(query, "`Weird Label`") {
			return errors.New("illegal label")
		}
		return nil
	}}
	require.NotEmpty(t, NewRecorder(runner).Record(context.Background(), graphRecord(graph)))

	fallbacks := runner.find("original_labels")
	require.Len(t, fallbacks, 1)
	assert.Equal(t, "Weird Label", fallbacks[0].params["original_labels"])
	assert.Equal(t, 1, runner.count("[:RETRIEVED_ENTITY]"))
}

func TestEmbeddingPropertiesAreNulled(t *testing.T) {
	graph := &models.RetrievedGraph{
		Nodes: []models.GraphNode{
			{ElementID: "n1", Labels: []string{"Chunk"}, Properties: map[string]any{
				"text":      "hello",
				"embedding": []float64{0.1, 0.2},
			}},
		},
	}
	runner := &fakeRunner{}
	require.NotEmpty(t, NewRecorder(runner).Record(context.Background(), graphRecord(graph)))

	nodes := runner.find("CREATE (e:Chunk")
	require.Len(t, nodes, 1)
	props, ok := nodes[0].params["props"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "hello", props["text"])
	assert.Nil(t, props["embedding"])
}

func TestWebSourceGetsParsedDomain(t *testing.T) {
	record := twoTaskRecord()
	record.Sources = []string{
		"Source: https://example.com/articles/1",
		"a plain citation",
	}
	runner := &fakeRunner{}
	require.NotEmpty(t, NewRecorder(runner).Record(context.Background(), record))

	web := runner.find("Source:WebSource")
	require.Len(t, web, 1)
	assert.Equal(t, "example.com", web[0].params["domain"])

	plain := runner.find("CREATE (s:Source {")
	require.Len(t, plain, 1)
	assert.Equal(t, "a plain citation", plain[0].params["content"])

	assert.Equal(t, 2, runner.count("[:SOURCED_FROM]"))
}

func TestLabelExpression(t *testing.T) {
	assert.Equal(t, "Entity", labelExpression(nil))
	assert.Equal(t, "Chunk:Document", labelExpression([]string{"Chunk", "Document"}))
	assert.Equal(t, "`My Label`", labelExpression([]string{"My Label"}))
	assert.Equal(t, "Clean", labelExpression([]string{"Cle`an"}))
}
