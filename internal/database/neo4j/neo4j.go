package neo4j

import (
	"context"
	"fmt"
	"log"

	"GraphMind/internal/config"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Client 包含了 Neo4j 驱动实例和从 YAML 加载的相关配置。
// 本服务会创建两个独立实例：知识图谱检索库与溯源审计库，
// 因此这里不使用单例模式。
type Client struct {
	Driver neo4j.DriverWithContext // Neo4j 驱动实例。
	Config *config.Neo4jConfig     // Neo4j 配置。
}

// NewClient 创建并验证一个新的 Neo4j 驱动实例。
func NewClient(ctx context.Context, cfg *config.Neo4jConfig) (*Client, error) {
	// 使用用户名和密码创建认证 token。
	auth := neo4j.BasicAuth(cfg.Username, cfg.Password, "")

	driver, err := neo4j.NewDriverWithContext(cfg.Uri, auth)
	if err != nil {
		return nil, fmt.Errorf("无法创建 Neo4j 驱动: %w", err)
	}

	// 验证与数据库的连接是否成功。
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx) // 验证失败时需要关闭已创建的驱动以释放资源。
		return nil, fmt.Errorf("无法连接到 Neo4j 数据库: %w", err)
	}

	log.Printf("✅ 成功连接到 Neo4j (%s)!", cfg.Uri)
	return &Client{Driver: driver, Config: cfg}, nil
}

// Close 安全地关闭与 Neo4j 的连接。
func (c *Client) Close(ctx context.Context) {
	if c.Driver != nil {
		if err := c.Driver.Close(ctx); err != nil {
			log.Printf("关闭 Neo4j 驱动失败: %v", err)
		}
	}
}

// HealthCheck 检查 Neo4j 连接的健康状况。
func (c *Client) HealthCheck(ctx context.Context) error {
	return c.Driver.VerifyConnectivity(ctx)
}

// Run 在一个写会话中执行 Cypher 语句并消费其结果。
// 溯源记录器逐条写入节点与边时使用它。
func (c *Client) Run(ctx context.Context, query string, params map[string]interface{}) error {
	session := c.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: c.Config.Database,
	})
	defer session.Close(ctx)

	result, err := session.Run(ctx, query, params)
	if err != nil {
		return fmt.Errorf("failed to run Cypher query: %w", err)
	}
	_, err = result.Consume(ctx)
	return err
}

// ExecuteRead 在一个自动管理的读事务中执行 Cypher 查询。
func (c *Client) ExecuteRead(ctx context.Context, work func(tx neo4j.ManagedTransaction) (interface{}, error)) (interface{}, error) {
	session := c.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: c.Config.Database,
	})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, work)
	if err != nil {
		return nil, fmt.Errorf("执行 Neo4j 读事务失败: %w", err)
	}

	return result, nil
}

// ExecuteWrite 在一个自动管理的写事务中执行 Cypher 查询。
func (c *Client) ExecuteWrite(ctx context.Context, work func(tx neo4j.ManagedTransaction) (interface{}, error)) (interface{}, error) {
	session := c.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: c.Config.Database,
	})
	defer session.Close(ctx)

	result, err := session.ExecuteWrite(ctx, work)
	if err != nil {
		return nil, fmt.Errorf("执行 Neo4j 写事务失败: %w", err)
	}

	return result, nil
}
