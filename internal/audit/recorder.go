package audit

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"GraphMind/internal/models"
	"GraphMind/pkg/logger"

	"github.com/google/uuid"
)

// anchorUserEmail 是溯源图中固定的 User 锚点节点标识。
const anchorUserEmail = "audit@graphmind.local"

// Runner 是溯源库的最小写入接口，由 Neo4j 客户端实现。
// 每条 Cypher 独立执行，整次记录不包一个大事务：
// 审计链路接受至少一次、非原子的写入语义。
type Runner interface {
	Run(ctx context.Context, query string, params map[string]interface{}) error
}

// Recorder 把一次完整运行写成一张去重后的溯源图。
// 记录是严格尽力而为的：任何失败只记录日志并返回空串，
// 已提交的部分写入不回滚。
type Recorder struct {
	runner Runner
	logger *logger.Logger
}

// NewRecorder 创建溯源记录器。runner 传 nil 表示审计库未配置，
// 此时 Record 直接返回空串。
func NewRecorder(runner Runner) *Recorder {
	return &Recorder{
		runner: runner,
		logger: logger.New("audit", ""),
	}
}

// Record 把运行记录写入溯源库，返回本次溯源图的根标识。
// 审计库不可用或写入中途出错时返回空串，绝不影响调用方。
func (r *Recorder) Record(ctx context.Context, record *models.RunRecord) string {
	if r.runner == nil {
		r.logger.Warn("Audit database not available - skipping provenance record")
		return ""
	}

	questionID := uuid.NewString()
	timestamp := time.Now().Format(time.RFC3339)
	runLogger := logger.New("audit", record.SessionID)

	if err := r.createQuestion(ctx, questionID, timestamp, record); err != nil {
		runLogger.WithError(models.ErrorInfo{Message: err.Error(), Type: "audit_error"}).Error("Failed to record question node")
		return ""
	}

	orchestratorID := fmt.Sprintf("orchestrator_%s", questionID)
	if err := r.createOrchestrator(ctx, questionID, orchestratorID, timestamp); err != nil {
		runLogger.WithError(models.ErrorInfo{Message: err.Error(), Type: "audit_error"}).Error("Failed to record orchestrator node")
		return ""
	}

	handles, err := r.createAgentsAndTasks(ctx, questionID, orchestratorID, record.Tasks, timestamp)
	if err != nil {
		runLogger.WithError(models.ErrorInfo{Message: err.Error(), Type: "audit_error"}).Error("Failed to record agents and tasks")
		return ""
	}

	if len(record.Sources) > 0 {
		r.createSources(ctx, questionID, record.Sources, timestamp, runLogger)
	}

	for idx, task := range record.Tasks {
		if task.RetrievedGraph == nil {
			continue
		}
		r.createRetrieval(ctx, questionID, idx, task, handles, timestamp, runLogger)
	}

	runLogger.WithPayload(map[string]interface{}{"question_id": questionID}).Info("Provenance graph recorded")
	return questionID
}

// createQuestion 写入 Question 节点并从固定的 User 锚点连 ASKED 边。
func (r *Recorder) createQuestion(ctx context.Context, questionID, timestamp string, record *models.RunRecord) error {
	return r.runner.Run(ctx, `
		MERGE (u:User {email: $email})
		WITH u
		CREATE (q:Question {
			id: $question_id,
			text: $question,
			timestamp: $timestamp,
			response: $response,
			model: $model,
			processing_time: $processing_time,
			is_multi_agent: $is_multi_agent,
			agents_count: $agents_count,
			sources_count: $sources_count
		})
		CREATE (u)-[:ASKED {askedDate: $timestamp}]->(q)
	`, map[string]interface{}{
		"email":           anchorUserEmail,
		"question_id":     questionID,
		"question":        record.Question,
		"timestamp":       timestamp,
		"response":        record.Answer,
		"model":           record.Model,
		"processing_time": record.ProcessingTime,
		"is_multi_agent":  record.IsMultiAgent,
		"agents_count":    len(record.AgentsUsed),
		"sources_count":   len(record.Sources),
	})
}

func (r *Recorder) createOrchestrator(ctx context.Context, questionID, orchestratorID, timestamp string) error {
	return r.runner.Run(ctx, `
		MATCH (q:Question {id: $question_id})
		CREATE (o:Orchestrator {
			id: $orchestrator_id,
			type: "Multi-Agent Orchestrator",
			timestamp: $timestamp
		})
		CREATE (q)-[:TRIGGERED]->(o)
	`, map[string]interface{}{
		"question_id":     questionID,
		"orchestrator_id": orchestratorID,
		"timestamp":       timestamp,
	})
}

// resultHandles 记录 "<响应者>_<任务序号>" 到 Result 节点标识的映射，
// 并保留创建顺序，供检索子图归属解析时按序回退。
type resultHandles struct {
	keys []string
	ids  map[string]string
}

func newResultHandles() *resultHandles {
	return &resultHandles{ids: make(map[string]string)}
}

func (h *resultHandles) add(agentName string, taskIndex int, resultID string) {
	key := fmt.Sprintf("%s_%d", agentName, taskIndex)
	h.keys = append(h.keys, key)
	h.ids[key] = resultID
}

// agentOf 去掉句柄末尾的任务序号，还原响应者名称。
func (h *resultHandles) agentOf(key string) string {
	if i := strings.LastIndex(key, "_"); i >= 0 {
		return key[:i]
	}
	return key
}

// createAgentsAndTasks 按响应者类型分组创建 Agent 节点（同一类型只建一个），
// 再按原始顺序为每个任务建 Task/Result 对，最后补跨任务依赖边。
func (r *Recorder) createAgentsAndTasks(ctx context.Context, questionID, orchestratorID string, tasks []*models.Task, timestamp string) (*resultHandles, error) {
	agentIDs := make(map[string]string)
	agentTaskCounts := make(map[string]int)
	agentOrder := make([]string, 0, len(tasks))

	for _, task := range tasks {
		agentName := task.Agent
		if agentName == "" {
			agentName = "Unknown"
		}
		if _, seen := agentIDs[agentName]; !seen {
			agentIDs[agentName] = fmt.Sprintf("%s_%s", strings.ReplaceAll(strings.ToLower(agentName), " ", "_"), questionID)
			agentOrder = append(agentOrder, agentName)
		}
		agentTaskCounts[agentName]++
	}

	for _, agentName := range agentOrder {
		if err := r.runner.Run(ctx, `
			CREATE (a:Agent {
				id: $agent_id,
				name: $agent_name,
				type: $agent_type,
				timestamp: $timestamp,
				task_count: $task_count
			})
		`, map[string]interface{}{
			"agent_id":   agentIDs[agentName],
			"agent_name": agentName,
			"agent_type": agentName,
			"timestamp":  timestamp,
			"task_count": agentTaskCounts[agentName],
		}); err != nil {
			return nil, err
		}

		if err := r.runner.Run(ctx, `
			MATCH (o:Orchestrator {id: $orchestrator_id})
			MATCH (a:Agent {id: $agent_id})
			CREATE (o)-[:USE_AGENT]->(a)
		`, map[string]interface{}{
			"orchestrator_id": orchestratorID,
			"agent_id":        agentIDs[agentName],
		}); err != nil {
			return nil, err
		}
	}

	handles := newResultHandles()

	for i, task := range tasks {
		agentName := task.Agent
		if agentName == "" {
			agentName = "Unknown"
		}

		taskID := fmt.Sprintf("task_%s_%d", questionID, i)
		if err := r.runner.Run(ctx, `
			CREATE (t:Task {
				id: $task_id,
				description: $task_description,
				input: $task_input,
				status: $status,
				timestamp: $timestamp,
				order: $order
			})
		`, map[string]interface{}{
			"task_id":          taskID,
			"task_description": task.Description,
			"task_input":       task.ActualInput,
			"status":           string(task.Status),
			"timestamp":        timestamp,
			"order":            i,
		}); err != nil {
			return nil, err
		}

		resultID := fmt.Sprintf("result_%s_%d", questionID, i)
		if err := r.runner.Run(ctx, `
			CREATE (r:Result {
				id: $result_id,
				content: $task_result,
				agent_name: $agent_name,
				timestamp: $timestamp,
				order: $order
			})
		`, map[string]interface{}{
			"result_id":   resultID,
			"task_result": task.Result,
			"agent_name":  agentName,
			"timestamp":   timestamp,
			"order":       i,
		}); err != nil {
			return nil, err
		}

		if err := r.runner.Run(ctx, `
			MATCH (t:Task {id: $task_id})
			MATCH (r:Result {id: $result_id})
			CREATE (t)-[:PRODUCED]->(r)
		`, map[string]interface{}{"task_id": taskID, "result_id": resultID}); err != nil {
			return nil, err
		}

		if err := r.runner.Run(ctx, `
			MATCH (a:Agent {id: $agent_id})
			MATCH (t:Task {id: $task_id})
			CREATE (a)-[:ASSIGNED]->(t)
		`, map[string]interface{}{"agent_id": agentIDs[agentName], "task_id": taskID}); err != nil {
			return nil, err
		}

		handles.add(agentName, i, resultID)
	}

	// 跨任务依赖边：对每个非首位任务，连到所有其他响应者已产出的结果。
	// 这是刻意的过度近似，记录的是"可用的上下文"而非"实际用到的上下文"。
	for i, task := range tasks {
		if i == 0 {
			continue
		}
		agentName := task.Agent
		if agentName == "" {
			agentName = "Unknown"
		}

		for _, key := range handles.keys {
			if handles.agentOf(key) == agentName {
				continue
			}
			if err := r.runner.Run(ctx, `
				MATCH (a:Agent {id: $agent_id})
				MATCH (r:Result {id: $prev_result_id})
				CREATE (a)-[:USED_INPUT_FROM]->(r)
			`, map[string]interface{}{
				"agent_id":       agentIDs[agentName],
				"prev_result_id": handles.ids[key],
			}); err != nil {
				return nil, err
			}
		}
	}

	return handles, nil
}

// resolveResult 确定一个检索子图归属于哪个 Result 节点：
// 先按任务序号精确匹配，再按响应者名称前缀匹配，
// 最后退到最近创建的句柄。该回退链是继承下来的启发式行为，
// 在响应者命名有歧义时可能归属错位。
func (h *resultHandles) resolveResult(taskIndex int, agentName string) string {
	suffix := fmt.Sprintf("_%d", taskIndex)
	for _, key := range h.keys {
		if strings.HasSuffix(key, suffix) {
			return h.ids[key]
		}
	}
	if agentName != "" {
		for _, key := range h.keys {
			if strings.HasPrefix(key, agentName) {
				return h.ids[key]
			}
		}
	}
	if len(h.keys) > 0 {
		return h.ids[h.keys[len(h.keys)-1]]
	}
	return ""
}

// createRetrieval 为一个检索子图写入 GraphRetrieval 节点、
// 去重后的节点集、补充节点集以及可解析端点的关系。
// 单个节点或关系的失败不会中断整批写入。
func (r *Recorder) createRetrieval(ctx context.Context, questionID string, taskIndex int, task *models.Task, handles *resultHandles, timestamp string, runLogger *logger.Logger) {
	graph := task.RetrievedGraph
	graphragID := fmt.Sprintf("graphrag_%s_%d", questionID, taskIndex)

	if err := r.runner.Run(ctx, `
		CREATE (g:GraphRetrieval {
			id: $graphrag_id,
			timestamp: $timestamp,
			query: $query,
			answer: $answer,
			executed_cypher: $executed_cypher,
			retrieved_nodes_count: $nodes_count,
			retrieved_relationships_count: $relationships_count
		})
	`, map[string]interface{}{
		"graphrag_id":         graphragID,
		"timestamp":           timestamp,
		"query":               graph.Query,
		"answer":              graph.Answer,
		"executed_cypher":     graph.ExecutedCypher,
		"nodes_count":         len(graph.Nodes),
		"relationships_count": len(graph.Relationships),
	}); err != nil {
		runLogger.WithError(models.ErrorInfo{Message: err.Error(), Type: "audit_error"}).Error("Failed to create retrieval node")
		return
	}

	if resultID := handles.resolveResult(taskIndex, task.Agent); resultID != "" {
		if err := r.runner.Run(ctx, `
			MATCH (r:Result {id: $result_id})
			MATCH (g:GraphRetrieval {id: $graphrag_id})
			CREATE (r)-[:USING_GRAPHRAG]->(g)
		`, map[string]interface{}{"result_id": resultID, "graphrag_id": graphragID}); err != nil {
			runLogger.WithError(models.ErrorInfo{Message: err.Error(), Type: "audit_error"}).Warn("Failed to link retrieval to result")
		}
	}

	// 去重表以检索库上报的外部标识为键，作用域限定在本次检索。
	entityMap := make(map[string]string)

	for i, node := range graph.Nodes {
		auditID := fmt.Sprintf("entity_%s_%d", graphragID, i)
		r.materializeNode(ctx, graphragID, node, auditID, "RETRIEVED_ENTITY", timestamp, entityMap, runLogger)
	}

	// 补充节点列表复用同一张去重表，避免主检索集被重复计数。
	supplements := []struct {
		name  string
		nodes []models.GraphNode
	}{
		{"entity_nodes", graph.EntityNodes},
		{"chunk_nodes", graph.ChunkNodes},
		{"document_nodes", graph.DocumentNodes},
	}
	for _, sup := range supplements {
		for i, node := range sup.nodes {
			auditID := fmt.Sprintf("additional_%s_%s_%d", sup.name, graphragID, i)
			r.materializeNode(ctx, graphragID, node, auditID, "RETRIEVED_ADDITIONAL", timestamp, entityMap, runLogger)
		}
	}

	r.materializeRelationships(ctx, graph.Relationships, entityMap, timestamp, runLogger)
}

// materializeNode 在审计库中落一个检索节点。外部标识已在去重表中时跳过。
// 按原始标签集建失败时，退回建一个把标签记成字符串属性的 Entity 节点。
func (r *Recorder) materializeNode(ctx context.Context, graphragID string, node models.GraphNode, auditID, edgeType, timestamp string, entityMap map[string]string, runLogger *logger.Logger) {
	elementID := node.ElementID
	if elementID == "" {
		elementID = auditID
	}
	if _, exists := entityMap[elementID]; exists {
		return
	}

	props := map[string]interface{}{
		"audit_id":            auditID,
		"original_element_id": elementID,
		"timestamp":           timestamp,
	}
	for key, value := range node.Properties {
		cleanKey := strings.ReplaceAll(strings.ReplaceAll(key, "-", "_"), " ", "_")
		if _, reserved := props[cleanKey]; reserved {
			continue
		}
		// 向量嵌入永远不复制进审计库。
		if cleanKey == "embedding" {
			props[cleanKey] = nil
			continue
		}
		props[cleanKey] = value
	}

	createQuery := fmt.Sprintf("CREATE (e:%s $props)", labelExpression(node.Labels))
	if err := r.runner.Run(ctx, createQuery, map[string]interface{}{"props": props}); err != nil {
		runLogger.WithError(models.ErrorInfo{Message: err.Error(), Type: "audit_error"}).Warn("Failed to create node with original labels, falling back to Entity")
		if err := r.runner.Run(ctx, `
			CREATE (e:Entity {
				audit_id: $audit_id,
				original_element_id: $element_id,
				timestamp: $timestamp,
				original_labels: $original_labels
			})
		`, map[string]interface{}{
			"audit_id":        auditID,
			"element_id":      elementID,
			"timestamp":       timestamp,
			"original_labels": strings.Join(node.Labels, ","),
		}); err != nil {
			runLogger.WithError(models.ErrorInfo{Message: err.Error(), Type: "audit_error"}).Warn("Entity fallback also failed, skipping node")
			return
		}
	}

	if err := r.runner.Run(ctx, fmt.Sprintf(`
		MATCH (g:GraphRetrieval {id: $graphrag_id})
		MATCH (e {audit_id: $audit_id})
		CREATE (g)-[:%s]->(e)
	`, edgeType), map[string]interface{}{
		"graphrag_id": graphragID,
		"audit_id":    auditID,
	}); err != nil {
		runLogger.WithError(models.ErrorInfo{Message: err.Error(), Type: "audit_error"}).Warn("Failed to link retrieved node")
	}

	entityMap[elementID] = auditID
}

// materializeRelationships 把可解析两端的关系写入审计库。
// 任一端点未落库的关系静默丢弃，只计数；成败计数最终记入日志。
func (r *Recorder) materializeRelationships(ctx context.Context, relationships []models.GraphRelationship, entityMap map[string]string, timestamp string, runLogger *logger.Logger) {
	successful := 0
	failed := 0

	for _, rel := range relationships {
		startAuditID, startOK := entityMap[rel.StartElementID]
		endAuditID, endOK := entityMap[rel.EndElementID]
		if !startOK || !endOK {
			failed++
			continue
		}

		relType := rel.Type
		if relType == "" {
			relType = "RELATED_TO"
		}

		props := map[string]interface{}{
			"original_element_id": rel.ElementID,
			"timestamp":           timestamp,
		}
		for key, value := range rel.Properties {
			if _, reserved := props[key]; reserved {
				continue
			}
			props[key] = value
		}

		query := fmt.Sprintf(`
			MATCH (start {audit_id: $start_audit_id})
			MATCH (end {audit_id: $end_audit_id})
			CREATE (start)-[:%s $props]->(end)
		`, escapeLabel(relType))
		if err := r.runner.Run(ctx, query, map[string]interface{}{
			"start_audit_id": startAuditID,
			"end_audit_id":   endAuditID,
			"props":          props,
		}); err != nil {
			runLogger.WithError(models.ErrorInfo{Message: err.Error(), Type: "audit_error"}).Warn("Failed to create relationship")
			failed++
			continue
		}
		successful++
	}

	runLogger.WithPayload(map[string]interface{}{
		"relationships_created": successful,
		"relationships_failed":  failed,
	}).Info("Relationship materialization summary")
}

// createSources 把来源引用落成 Source 节点。
// 形如 "Source: <url>" 的条目解析出域名并追加 WebSource 标签。
func (r *Recorder) createSources(ctx context.Context, questionID string, sources []string, timestamp string, runLogger *logger.Logger) {
	for i, source := range sources {
		sourceID := fmt.Sprintf("source_%s_%d", questionID, i)

		if rawURL, ok := strings.CutPrefix(source, "Source: "); ok {
			if parsed, err := url.Parse(rawURL); err == nil && parsed.Hostname() != "" {
				if err := r.runner.Run(ctx, `
					MATCH (q:Question {id: $question_id})
					CREATE (s:Source:WebSource {
						id: $source_id,
						url: $url,
						domain: $domain,
						raw_text: $raw_text,
						timestamp: $timestamp
					})
					CREATE (q)-[:SOURCED_FROM]->(s)
				`, map[string]interface{}{
					"question_id": questionID,
					"source_id":   sourceID,
					"url":         rawURL,
					"domain":      parsed.Hostname(),
					"raw_text":    source,
					"timestamp":   timestamp,
				}); err != nil {
					runLogger.WithError(models.ErrorInfo{Message: err.Error(), Type: "audit_error"}).Warn("Failed to create web source node")
				}
				continue
			}
		}

		if err := r.runner.Run(ctx, `
			MATCH (q:Question {id: $question_id})
			CREATE (s:Source {
				id: $source_id,
				content: $content,
				timestamp: $timestamp
			})
			CREATE (q)-[:SOURCED_FROM]->(s)
		`, map[string]interface{}{
			"question_id": questionID,
			"source_id":   sourceID,
			"content":     source,
			"timestamp":   timestamp,
		}); err != nil {
			runLogger.WithError(models.ErrorInfo{Message: err.Error(), Type: "audit_error"}).Warn("Failed to create source node")
		}
	}
}

// labelExpression 把标签集合拼成 Cypher 标签表达式。
// 含空格的标签用反引号包起来；空集合退回 Entity。
func labelExpression(labels []string) string {
	if len(labels) == 0 {
		return "Entity"
	}
	escaped := make([]string, 0, len(labels))
	for _, label := range labels {
		escaped = append(escaped, escapeLabel(label))
	}
	return strings.Join(escaped, ":")
}

// escapeLabel 清理单个标签或关系类型，防止拼进 Cypher 时破坏语句结构。
func escapeLabel(label string) string {
	label = strings.ReplaceAll(label, "`", "")
	if strings.Contains(label, " ") {
		return "`" + label + "`"
	}
	return label
}
