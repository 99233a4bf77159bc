package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"GraphMind/internal/config"
	neo4jdb "GraphMind/internal/database/neo4j"
	"GraphMind/internal/llm"
	"GraphMind/internal/models"
	"GraphMind/pkg/logger"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

// Service 定义了知识图谱检索服务的接口。
// 给定查询文本，返回答案以及支撑该答案的节点与关系。
type Service interface {
	Search(ctx context.Context, query string) (*models.RetrievedGraph, error)
}

// GraphRAG 基于 Neo4j 全文索引实现 Service：
// 先用全文索引找到种子节点，再做一跳扩展收集上下文子图，
// 最后把子图内容交给补全服务生成答案。
type GraphRAG struct {
	client *neo4jdb.Client
	llm    llm.LLM
	cfg    config.RetrievalConfig
	logger *logger.Logger
}

// NewGraphRAG 创建一个新的 GraphRAG 检索服务。
func NewGraphRAG(client *neo4jdb.Client, llmClient llm.LLM, cfg config.RetrievalConfig, log *logger.Logger) *GraphRAG {
	return &GraphRAG{
		client: client,
		llm:    llmClient,
		cfg:    cfg,
		logger: log,
	}
}

const seedQuery = `
CALL db.index.fulltext.queryNodes($index, $query)
YIELD node, score
RETURN node, score
ORDER BY score DESC
LIMIT $limit`

const expandQuery = `
MATCH (a) WHERE elementId(a) IN $ids
OPTIONAL MATCH (a)-[r]-(b)
RETURN a, r, b
LIMIT $limit`

// Search 执行一次检索并返回完整的结构化子图。
func (g *GraphRAG) Search(ctx context.Context, query string) (*models.RetrievedGraph, error) {
	graph := &models.RetrievedGraph{Query: query}

	seedIDs, err := g.findSeedNodes(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("fulltext seed search failed: %w", err)
	}

	if len(seedIDs) > 0 {
		if err := g.expandSubgraph(ctx, seedIDs, graph); err != nil {
			return nil, fmt.Errorf("subgraph expansion failed: %w", err)
		}
	}

	graph.ExecutedCypher = g.describeQuery(seedIDs)
	g.classifyNodes(graph)

	answer, err := g.answerFromContext(ctx, query, graph)
	if err != nil {
		// 答案生成失败不应丢弃已检索到的子图，调用方仍可使用检索结果。
		g.logger.WithError(models.ErrorInfo{Message: err.Error()}).Warn("Answer generation failed, returning raw retrieval")
		answer = fmt.Sprintf("Search error: %.100s", err.Error())
	}
	graph.Answer = answer

	g.logger.WithPayload(map[string]interface{}{
		"nodes":         len(graph.Nodes),
		"relationships": len(graph.Relationships),
	}).Info("GraphRAG search finished")

	return graph, nil
}

// findSeedNodes 用全文索引找到与查询最相关的节点。
func (g *GraphRAG) findSeedNodes(ctx context.Context, query string) ([]string, error) {
	result, err := g.client.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		res, err := tx.Run(ctx, seedQuery, map[string]interface{}{
			"index": g.cfg.FulltextIndex,
			"query": query,
			"limit": g.cfg.SeedLimit,
		})
		if err != nil {
			return nil, err
		}

		var ids []string
		for res.Next(ctx) {
			if raw, ok := res.Record().Get("node"); ok {
				if node, ok := raw.(dbtype.Node); ok {
					ids = append(ids, node.GetElementId())
				}
			}
		}
		return ids, res.Err()
	})
	if err != nil {
		return nil, err
	}
	return result.([]string), nil
}

// expandSubgraph 从种子节点做一跳扩展，收集节点与关系。
func (g *GraphRAG) expandSubgraph(ctx context.Context, seedIDs []string, graph *models.RetrievedGraph) error {
	_, err := g.client.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		res, err := tx.Run(ctx, expandQuery, map[string]interface{}{
			"ids":   seedIDs,
			"limit": g.cfg.ExpandLimit,
		})
		if err != nil {
			return nil, err
		}

		seenNodes := make(map[string]struct{})
		seenRels := make(map[string]struct{})
		for res.Next(ctx) {
			record := res.Record()
			for _, key := range []string{"a", "b"} {
				raw, ok := record.Get(key)
				if !ok || raw == nil {
					continue
				}
				node, ok := raw.(dbtype.Node)
				if !ok {
					continue
				}
				if _, dup := seenNodes[node.GetElementId()]; dup {
					continue
				}
				seenNodes[node.GetElementId()] = struct{}{}
				graph.Nodes = append(graph.Nodes, models.GraphNode{
					ElementID:  node.GetElementId(),
					Labels:     node.Labels,
					Properties: node.Props,
				})
			}

			if raw, ok := record.Get("r"); ok && raw != nil {
				if rel, ok := raw.(dbtype.Relationship); ok {
					if _, dup := seenRels[rel.GetElementId()]; !dup {
						seenRels[rel.GetElementId()] = struct{}{}
						graph.Relationships = append(graph.Relationships, models.GraphRelationship{
							ElementID:      rel.GetElementId(),
							Type:           rel.Type,
							StartElementID: rel.StartElementId,
							EndElementID:   rel.EndElementId,
							Properties:     rel.Props,
						})
					}
				}
			}
		}
		return nil, res.Err()
	})
	return err
}

// classifyNodes 按标签把检索节点分入补充列表。
// 主检索集保持不变，补充列表供溯源记录器合并使用。
func (g *GraphRAG) classifyNodes(graph *models.RetrievedGraph) {
	for _, node := range graph.Nodes {
		switch {
		case hasLabel(node.Labels, "Chunk"):
			graph.ChunkNodes = append(graph.ChunkNodes, node)
		case hasLabel(node.Labels, "Document"):
			graph.DocumentNodes = append(graph.DocumentNodes, node)
		case hasLabel(node.Labels, "Entity") || hasLabel(node.Labels, "__Entity__"):
			graph.EntityNodes = append(graph.EntityNodes, node)
		}
	}
}

func hasLabel(labels []string, want string) bool {
	for _, l := range labels {
		if l == want {
			return true
		}
	}
	return false
}

// describeQuery 重建一段可读的查询描述，写入审计记录。
func (g *GraphRAG) describeQuery(seedIDs []string) string {
	if len(seedIDs) == 0 {
		return "No matching nodes found via fulltext index " + g.cfg.FulltextIndex
	}
	sort.Strings(seedIDs)
	return fmt.Sprintf(
		"MATCH (a) WHERE elementId(a) IN %v OPTIONAL MATCH (a)-[r]-(b) RETURN a, r, b LIMIT %d",
		seedIDs, g.cfg.ExpandLimit)
}

// answerFromContext 把子图内容拼成上下文，请补全服务回答。
func (g *GraphRAG) answerFromContext(ctx context.Context, query string, graph *models.RetrievedGraph) (string, error) {
	if len(graph.Nodes) == 0 {
		return "No relevant information found in the knowledge graph.", nil
	}

	var sb strings.Builder
	sb.WriteString("Answer the question using ONLY the following knowledge graph context.\n\n")
	sb.WriteString("Context:\n")
	for i, node := range graph.Nodes {
		if i >= 30 {
			break
		}
		sb.WriteString(fmt.Sprintf("- (%s) %s\n", strings.Join(node.Labels, ":"), summarizeProps(node.Properties)))
	}
	for i, rel := range graph.Relationships {
		if i >= 30 {
			break
		}
		sb.WriteString(fmt.Sprintf("- [%s] %s -> %s\n", rel.Type, rel.StartElementID, rel.EndElementID))
	}
	sb.WriteString("\nQuestion: ")
	sb.WriteString(query)
	sb.WriteString("\n\nGive a concise answer based on the context above.")

	return llm.CompleteText(ctx, g.llm, sb.String())
}

// summarizeProps 把节点属性压缩为一行文本，跳过向量等超长属性。
func summarizeProps(props map[string]any) string {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		if k == "embedding" {
			continue
		}
		v := fmt.Sprintf("%v", props[k])
		if len(v) > 120 {
			v = v[:120] + "..."
		}
		parts = append(parts, fmt.Sprintf("%s=%s", k, v))
	}
	return strings.Join(parts, ", ")
}
