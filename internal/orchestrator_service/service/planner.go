package service

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"GraphMind/internal/agent"
	"GraphMind/internal/llm"
	"GraphMind/internal/models"
	"GraphMind/pkg/logger"
)

// NoResultsApology 是在没有任何任务成功完成时返回的固定答复。
const NoResultsApology = "I apologize, but I wasn't able to complete any tasks to answer your query."

// DefaultResponderID 是规划降级时的默认路由目标。
const DefaultResponderID = "llm_agent"

// fallbackDescriptionPrefix 是降级计划中唯一任务的描述前缀。
const fallbackDescriptionPrefix = "Handle query: "

// explicitDataPattern 从查询中提取 label=value / label:value 形式的数值对。
// 这些数值必须原样回显进规划提示词，防止补全服务丢弃用户给定的数据。
var explicitDataPattern = regexp.MustCompile(`(\w+)\s*[=:]\s*(\d+\.?\d*)`)

// codeFencePattern 匹配补全服务回复中可能包裹 JSON 的代码栅栏。
var codeFencePattern = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// Planner 负责把用户查询分解为任务计划，并承担标题生成与结果综合。
// 它对补全服务的所有失败都在本地降级，CreatePlan 等方法不向上抛错。
type Planner struct {
	llm           llm.LLM
	registry      *agent.Registry
	historyWindow int
	logger        *logger.Logger
}

// NewPlanner 创建一个规划器。historyWindow 是规划时回看的历史轮数。
func NewPlanner(llmClient llm.LLM, registry *agent.Registry, historyWindow int, log *logger.Logger) *Planner {
	if historyWindow <= 0 {
		historyWindow = 5
	}
	return &Planner{
		llm:           llmClient,
		registry:      registry,
		historyWindow: historyWindow,
		logger:        log,
	}
}

// planShape 是补全服务必须返回的 JSON 结构。
type planShape struct {
	Analysis string `json:"analysis"`
	Strategy string `json:"strategy"`
	Tasks    []struct {
		ID          string `json:"id"`
		Description string `json:"description"`
		Agent       string `json:"agent"`
	} `json:"tasks"`
}

// CreatePlan 请求补全服务产出任务计划。任何失败（服务不可达、JSON 不合法、
// 结构缺失）都会降级为单任务计划，绝不向调用方返回错误。
func (p *Planner) CreatePlan(ctx context.Context, query string, history []models.ConversationMessage) (*models.Plan, error) {
	enabled := p.registry.EnabledDescriptors()
	prompt := p.buildPlanningPrompt(query, history, enabled)

	reply, err := llm.CompleteText(ctx, p.llm, prompt)
	if err != nil {
		p.logger.WithError(models.ErrorInfo{Message: err.Error(), Type: "planning_error"}).Warn("Planning call failed, using fallback plan")
		return p.fallbackPlan(query, enabled), nil
	}

	var shape planShape
	if err := json.Unmarshal([]byte(stripCodeFences(reply)), &shape); err != nil || len(shape.Tasks) == 0 {
		if err != nil {
			p.logger.WithError(models.ErrorInfo{Message: err.Error(), Type: "planning_error"}).Warn("Plan reply was not valid JSON, using fallback plan")
		} else {
			p.logger.Warn("Plan reply contained no tasks, using fallback plan")
		}
		return p.fallbackPlan(query, enabled), nil
	}

	now := time.Now()
	tasks := make([]*models.Task, 0, len(shape.Tasks))
	for i, t := range shape.Tasks {
		id := t.ID
		if id == "" {
			id = fmt.Sprintf("task_%d", i+1)
		}
		tasks = append(tasks, &models.Task{
			ID:          id,
			Description: t.Description,
			Agent:       t.Agent,
			Status:      models.TaskStatusPending,
			CreatedAt:   now,
		})
	}

	plan := &models.Plan{
		OriginalQuery: query,
		Analysis:      orDefault(shape.Analysis, "Analysis not provided"),
		Strategy:      orDefault(shape.Strategy, "Strategy not provided"),
		Tasks:         tasks,
		CreatedAt:     now,
	}

	p.logger.WithPayload(map[string]interface{}{"tasks": len(tasks)}).Info("Plan created")
	return plan, nil
}

// buildPlanningPrompt 构造规划提示词：可用响应者列表、路由指引、
// 最近几轮历史以及从查询中提取的数值对。
func (p *Planner) buildPlanningPrompt(query string, history []models.ConversationMessage, enabled []models.AgentDescriptor) string {
	var agentLines []string
	for _, d := range enabled {
		agentLines = append(agentLines, fmt.Sprintf("- %s: %s (Capabilities: %s)",
			d.ID, d.Description, strings.Join(d.Capabilities, ", ")))
	}
	availableAgents := "No agents are currently enabled."
	if len(agentLines) > 0 {
		availableAgents = strings.Join(agentLines, "\n")
	}

	var conversationContext string
	if len(history) > 0 {
		start := len(history) - p.historyWindow
		if start < 0 {
			start = 0
		}
		var sb strings.Builder
		sb.WriteString("\n\nCONVERSATION HISTORY:\n")
		for _, msg := range history[start:] {
			role := "Assistant"
			if msg.Role == "user" {
				role = "Human"
			}
			sb.WriteString(fmt.Sprintf("%s: %s\n", role, msg.Content))
		}
		sb.WriteString("\nCurrent Query: " + query + "\n")
		sb.WriteString("\nIMPORTANT: Consider the conversation context when planning tasks. This may be a follow-up question or reference to previous discussion.\n")
		conversationContext = sb.String()
	}

	var dataContext string
	if matches := explicitDataPattern.FindAllStringSubmatch(query, -1); len(matches) > 0 {
		pairs := make([]string, 0, len(matches))
		for _, m := range matches {
			pairs = append(pairs, m[1]+"="+m[2])
		}
		dataContext = "\n\nIMPORTANT: Original data from user query: " + strings.Join(pairs, ", ")
	}

	var routingLines []string
	for _, d := range enabled {
		if d.HasCapability(models.CapabilityGraphSearch) {
			routingLines = append(routingLines, fmt.Sprintf(
				"- For questions covered by the knowledge graph ALWAYS use %s with SHORT concise questions. This is a graph retrieval agent.", d.ID))
		}
		if d.HasCapability(models.CapabilityFreeText) {
			routingLines = append(routingLines, fmt.Sprintf(
				"- For general knowledge, research, analysis, explanations, or information, use %s", d.ID))
		}
	}
	routing := "No specific routing guidelines - use available agents as appropriate."
	if len(routingLines) > 0 {
		routing = strings.Join(routingLines, "\n")
	}

	return fmt.Sprintf(`You are an expert supervisor that creates detailed execution plans for multi-agent systems.
%s
Analyze this user query: "%s"%s

Create a comprehensive plan that:
1. Analyzes what information is needed
2. Breaks down the query into specific, actionable tasks
3. Assigns each task to the most appropriate specialist agent
4. Ensures all necessary information will be gathered
5. PRESERVES any explicit data values from the original query
6. Consider conversation context - this may be a follow-up question or reference to previous discussion

Available specialist agents:
%s

Special routing guidelines:
%s

IMPORTANT: Only use agents that are listed as available above. Keep tasks focused and specific.

Return your response in this exact JSON format:
{
    "analysis": "Your analysis of what needs to be done",
    "strategy": "Your overall approach strategy",
    "tasks": [
        {
            "id": "task_1",
            "description": "Specific task description",
            "agent": "agent_id"
        }
    ]
}`, conversationContext, query, dataContext, availableAgents, routing)
}

// fallbackPlan 构造规划失败时的单任务降级计划。
// 路由目标优先取默认响应者，其次取第一个启用的响应者。
func (p *Planner) fallbackPlan(query string, enabled []models.AgentDescriptor) *models.Plan {
	target := DefaultResponderID
	if !containsID(enabled, DefaultResponderID) && len(enabled) > 0 {
		target = enabled[0].ID
	}

	now := time.Now()
	return &models.Plan{
		OriginalQuery: query,
		Analysis:      "Fallback analysis due to planning error",
		Strategy:      "Direct delegation to available agent",
		Tasks: []*models.Task{{
			ID:          "task_1",
			Description: fallbackDescriptionPrefix + query,
			Agent:       target,
			Status:      models.TaskStatusPending,
			CreatedAt:   now,
		}},
		CreatedAt: now,
	}
}

// GenerateTitle 为会话生成一个不超过6个词的短标题。
// 超过50个字符时截断；补全失败时退化为查询的前6个词。
func (p *Planner) GenerateTitle(ctx context.Context, query string) string {
	prompt := fmt.Sprintf(`Generate a very short, concise title (max 6 words) for this user query:
"%s"

The title should capture the main topic or intent. Be specific but brief.
Return only the title, nothing else.`, query)

	title, err := llm.CompleteText(ctx, p.llm, prompt)
	if err != nil {
		p.logger.WithError(models.ErrorInfo{Message: err.Error()}).Warn("Title generation failed, using query words")
		words := strings.Fields(query)
		if len(words) > 6 {
			return strings.Join(words[:6], " ") + "..."
		}
		return strings.Join(words, " ")
	}

	title = strings.Trim(strings.TrimSpace(title), `"'`)
	if len(title) > 50 {
		title = truncate(title, 47)
	}
	return title
}

// Synthesize 把已完成任务的结果综合为一个连贯答案。
// 没有任何已完成任务时返回固定的致歉文本；
// 补全失败时退化为按原始顺序拼接各任务结果。
func (p *Planner) Synthesize(ctx context.Context, tasks []*models.Task, query string) string {
	var completed []*models.Task
	for _, t := range tasks {
		if t.Status == models.TaskStatusCompleted {
			completed = append(completed, t)
		}
	}
	if len(completed) == 0 {
		return NoResultsApology
	}

	var results []string
	for _, t := range completed {
		results = append(results, fmt.Sprintf("**%s**: %s", p.displayName(t.Agent), t.Result))
	}

	prompt := fmt.Sprintf(`You are a synthesis expert. Combine the following task results into a comprehensive, well-structured answer to the original user query.

Original Query: "%s"

Task Results:
%s

Instructions:
1. Synthesize the information into a coherent, comprehensive response
2. Maintain accuracy - only use information provided in the task results
3. Structure the response logically with clear sections if appropriate
4. Make the response engaging and directly address the user's query
5. If task results contradict each other, acknowledge the discrepancy

Provide a complete, well-formatted response:`, query, strings.Join(results, "\n"))

	answer, err := llm.CompleteText(ctx, p.llm, prompt)
	if err != nil {
		p.logger.WithError(models.ErrorInfo{Message: err.Error()}).Warn("Synthesis failed, concatenating task results")
		return strings.Join(results, "\n\n")
	}
	return strings.TrimSpace(answer)
}

// displayName 返回响应者的展示名称：优先取注册表中的名称，
// 找不到时把ID中的下划线转为空格并把每个词首字母大写。
func (p *Planner) displayName(agentID string) string {
	if d, ok := p.registry.Descriptor(agentID); ok && d.Name != "" {
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

// stripCodeFences 去掉回复中可能包裹 JSON 的 ``` 标记。
func stripCodeFences(reply string) string {
	reply = strings.TrimSpace(reply)
	if m := codeFencePattern.FindStringSubmatch(reply); m != nil {
		return strings.TrimSpace(m[1])
	}
	return reply
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func containsID(ds []models.AgentDescriptor, id string) bool {
	for _, d := range ds {
		if d.ID == id {
			return true
		}
	}
	return false
}
