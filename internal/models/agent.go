package models

// AgentDescriptor 描述了一个可被规划器调度的响应者（专家 Agent）。
// 它只包含静态配置信息，具体的执行逻辑由 internal/agent 中的 Responder 提供。
type AgentDescriptor struct {
	ID           string   `json:"id" yaml:"id"`                     // 响应者唯一标识，规划结果中的 agent 字段引用它
	Name         string   `json:"name" yaml:"name"`                 // 展示名称
	Color        string   `json:"color" yaml:"color"`               // 前端展示颜色
	Capabilities []string `json:"capabilities" yaml:"capabilities"` // 能力标签，会被写入规划提示词
	Enabled      bool     `json:"enabled" yaml:"enabled"`           // 仅启用的响应者对规划与路由可见
	Description  string   `json:"description" yaml:"description"`   // 能力描述
	Priority     int      `json:"priority" yaml:"priority"`         // 规划时的排序优先级，数值大者靠前
}

// HasCapability 判断该响应者是否带有指定能力标签。
func (d AgentDescriptor) HasCapability(tag string) bool {
	for _, c := range d.Capabilities {
		if c == tag {
			return true
		}
	}
	return false
}

// 内置的能力标签。
const (
	CapabilityFreeText    = "free_text_search" // 自由文本知识问答
	CapabilityGraphSearch = "graphrag_search"  // 知识图谱检索
)

// DefaultAgents 返回内置的默认响应者配置。
// 当配置文件中没有提供 agents 列表时使用。
func DefaultAgents() []AgentDescriptor {
	return []AgentDescriptor{
		{
			ID:           "llm_agent",
			Name:         "LLM Agent",
			Color:        "#3F51B5",
			Capabilities: []string{CapabilityFreeText},
			Enabled:      true,
			Description:  "AI-powered search, research and analysis",
			Priority:     2,
		},
		{
			ID:           "graph_agent",
			Name:         "Graph Agent",
			Color:        "#F44336",
			Capabilities: []string{CapabilityGraphSearch},
			Enabled:      true,
			Description:  "Specialized in knowledge graph retrieval and analysis",
			Priority:     6,
		},
	}
}
