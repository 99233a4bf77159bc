package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RedisConfig 定义了 Redis 会话存储的连接配置。
type RedisConfig struct {
	Address  string `yaml:"address"`  // Redis 服务器地址 (例如: "localhost:6379")
	Password string `yaml:"password"` // Redis 密码
	DB       int    `yaml:"db"`       // Redis 数据库编号
}

// MongoConfig 定义了 MongoDB 运行记录归档库的连接配置。
type MongoConfig struct {
	Address    string `yaml:"address"`    // MongoDB 服务器地址
	Username   string `yaml:"username"`   // 用户名
	Password   string `yaml:"password"`   // 密码
	Database   string `yaml:"database"`   // 数据库名称
	Collection string `yaml:"collection"` // 运行记录集合名称
}

// Neo4jConfig 定义了 Neo4j 图数据库的连接配置。
// 本服务需要两个实例：一个作为知识图谱检索库，一个作为溯源审计库。
type Neo4jConfig struct {
	Uri      string `yaml:"uri"`      // Neo4j 数据库URI (例如: "bolt://localhost:7687")
	Username string `yaml:"username"` // 用户名
	Password string `yaml:"password"` // 密码
	Database string `yaml:"database"` // 数据库名称
}

// KafkaConfig 定义了任务生命周期日志流的 Kafka 配置。
type KafkaConfig struct {
	Brokers  []string `yaml:"brokers"`  // Kafka Broker 地址列表
	LogTopic string   `yaml:"logTopic"` // 任务日志主题名称
}

// DatabaseConfigs 包含所有外部存储的配置。
type DatabaseConfigs struct {
	Redis      RedisConfig `yaml:"redis"`      // Redis 会话存储配置
	MongoDB    MongoConfig `yaml:"mongodb"`    // MongoDB 运行记录归档配置
	Neo4j      Neo4jConfig `yaml:"neo4j"`      // 知识图谱检索库配置
	Neo4jAudit Neo4jConfig `yaml:"neo4jAudit"` // 溯源审计库配置
	Kafka      KafkaConfig `yaml:"kafka"`      // Kafka 日志流配置
}

// OpenAIConfig 包含了 OpenAI 兼容模型的配置。
type OpenAIConfig struct {
	APIKey  string `yaml:"apiKey"`  // API 密钥
	Model   string `yaml:"model"`   // 模型名称 (例如: "gpt-4o-mini")
	BaseURL string `yaml:"baseURL"` // 可选的自定义服务地址
}

// GeminiConfig 包含了 Gemini 模型的配置。
type GeminiConfig struct {
	APIKey string `yaml:"apiKey"` // Gemini API 密钥
	Model  string `yaml:"model"`  // Gemini 模型名称
}

// OllamaConfig 包含了本地 Ollama 模型的配置。
type OllamaConfig struct {
	Model   string `yaml:"model"`   // 模型名称
	BaseURL string `yaml:"baseURL"` // Ollama 服务地址，为空时使用默认值
}

// LLMConfig 包含了不同 LLM 提供商的配置。
type LLMConfig struct {
	Provider string       `yaml:"provider"` // LLM提供商 ("openai", "gemini", "ollama")
	OpenAI   OpenAIConfig `yaml:"openai"`   // OpenAI 模型配置
	Gemini   GeminiConfig `yaml:"gemini"`   // Gemini 模型配置
	Ollama   OllamaConfig `yaml:"ollama"`   // Ollama 模型配置
}

// BreakerConfig 定义了保护 LLM 调用的熔断器配置。
type BreakerConfig struct {
	Enabled          bool   `yaml:"enabled"`          // 是否启用熔断器
	FailureThreshold uint32 `yaml:"failureThreshold"` // 连续失败多少次后熔断
	SuccessThreshold uint32 `yaml:"successThreshold"` // 半开状态下连续成功多少次后恢复
	Timeout          string `yaml:"timeout"`          // 熔断后等待多久进入半开状态 (例如: "30s")
}

// AgentConfig 定义了一个可用响应者（专家 Agent）的静态描述。
type AgentConfig struct {
	ID           string   `yaml:"id"`           // 响应者唯一标识
	Name         string   `yaml:"name"`         // 展示名称
	Color        string   `yaml:"color"`        // 前端展示颜色
	Capabilities []string `yaml:"capabilities"` // 能力标签列表
	Enabled      bool     `yaml:"enabled"`      // 是否启用
	Description  string   `yaml:"description"`  // 能力描述，用于规划提示词
	Priority     int      `yaml:"priority"`     // 规划时的优先级
}

// RetrievalConfig 定义了知识图谱检索的参数。
type RetrievalConfig struct {
	FulltextIndex string `yaml:"fulltextIndex"` // 全文索引名称
	SeedLimit     int    `yaml:"seedLimit"`     // 种子节点检索上限
	ExpandLimit   int    `yaml:"expandLimit"`   // 一跳扩展结果上限
}

// OrchestratorConfig 定义了编排服务自身的运行参数。
type OrchestratorConfig struct {
	ServerAddress    string `yaml:"serverAddress"`    // HTTP 服务监听地址
	PushQueueSize    int    `yaml:"pushQueueSize"`    // 每个会话的状态推送队列容量
	PushTimeout      string `yaml:"pushTimeout"`      // 单次推送的写入超时 (例如: "500ms")
	HistoryWindow    int    `yaml:"historyWindow"`    // 规划时回看的历史轮数
	SessionHistoryTTL int   `yaml:"sessionHistoryTTL"` // Redis 中会话历史的过期时间（秒）
}

// AppInfo 对应 'app' 部分，包含应用程序的基本信息。
type AppInfo struct {
	Name        string `yaml:"name"`        // 应用程序名称
	Version     string `yaml:"version"`     // 应用程序版本
	Environment string `yaml:"environment"` // 运行环境 (例如: "development", "production")
}

// LoggerConfig 定义了日志记录器的配置。
type LoggerConfig struct {
	Level string `yaml:"level"` // 日志级别 (例如: "info", "debug", "warn", "error")
}

// AppConfig 是整个 YAML 文件的根结构，包含了应用程序的所有配置。
type AppConfig struct {
	App          AppInfo            `yaml:"app"`          // 应用程序信息
	Logger       LoggerConfig       `yaml:"logger"`       // 日志记录器配置
	LLM          LLMConfig          `yaml:"llm"`          // LLM 配置部分
	Breaker      BreakerConfig      `yaml:"breaker"`      // LLM 熔断器配置
	Databases    DatabaseConfigs    `yaml:"databases"`    // 外部存储配置
	Retrieval    RetrievalConfig    `yaml:"retrieval"`    // 图谱检索配置
	Orchestrator OrchestratorConfig `yaml:"orchestrator"` // 编排服务配置
	Agents       []AgentConfig      `yaml:"agents"`       // 默认响应者列表
}

// LoadConfig 函数从指定路径加载并解析 YAML 配置文件。
func LoadConfig(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("无法读取配置文件 '%s': %w", path, err)
	}

	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("无法解析配置文件 '%s': %w", path, err)
	}

	// 为缺省字段填充安全的默认值。
	if cfg.Orchestrator.PushQueueSize <= 0 {
		cfg.Orchestrator.PushQueueSize = 16
	}
	if cfg.Orchestrator.PushTimeout == "" {
		cfg.Orchestrator.PushTimeout = "500ms"
	}
	if cfg.Orchestrator.HistoryWindow <= 0 {
		cfg.Orchestrator.HistoryWindow = 5
	}
	if cfg.Retrieval.SeedLimit <= 0 {
		cfg.Retrieval.SeedLimit = 5
	}
	if cfg.Retrieval.ExpandLimit <= 0 {
		cfg.Retrieval.ExpandLimit = 200
	}

	return &cfg, nil
}
