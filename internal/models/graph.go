package models

// GraphNode 表示检索服务返回的一个图谱节点。
// ElementID 是检索库中上报的外部标识，审计库会为它另行分配审计标识。
type GraphNode struct {
	ElementID  string         `json:"elementId"`  // 检索库上报的节点标识
	Labels     []string       `json:"labels"`     // 原始标签集合
	Properties map[string]any `json:"properties"` // 原始属性
}

// GraphRelationship 表示检索服务返回的一条图谱关系。
type GraphRelationship struct {
	ElementID      string         `json:"elementId"`      // 检索库上报的关系标识
	Type           string         `json:"type"`           // 关系类型，审计时用作边标签
	StartElementID string         `json:"startElementId"` // 起点节点的外部标识
	EndElementID   string         `json:"endElementId"`   // 终点节点的外部标识
	Properties     map[string]any `json:"properties"`     // 原始属性
}

// RetrievedGraph 是图谱类响应者一次检索的完整结构化输出。
// Nodes/Relationships 是主检索集；ChunkNodes 等补充列表可能与主集重叠，
// 审计记录器会通过外部标识去重后再落库。
type RetrievedGraph struct {
	Query          string              `json:"query"`          // 检索使用的查询文本
	Answer         string              `json:"answer"`         // 检索服务给出的答案文本
	ExecutedCypher string              `json:"executedCypher"` // 重建出的查询描述
	Nodes          []GraphNode         `json:"nodes"`          // 主检索节点集
	Relationships  []GraphRelationship `json:"relationships"`  // 主检索关系集
	ChunkNodes     []GraphNode         `json:"chunkNodes,omitempty"`    // 补充的文本块节点
	EntityNodes    []GraphNode         `json:"entityNodes,omitempty"`   // 补充的实体节点
	DocumentNodes  []GraphNode         `json:"documentNodes,omitempty"` // 补充的文档节点
}
