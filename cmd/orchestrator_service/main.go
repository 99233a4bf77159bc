package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"GraphMind/internal/agent"
	"GraphMind/internal/audit"
	"GraphMind/internal/config"
	kafkadb "GraphMind/internal/database/kafka"
	mongodb "GraphMind/internal/database/mongo"
	neo4jdb "GraphMind/internal/database/neo4j"
	redisdb "GraphMind/internal/database/redis"
	"GraphMind/internal/llm"
	"GraphMind/internal/models"
	"GraphMind/internal/orchestrator_service/api"
	"GraphMind/internal/orchestrator_service/service"
	"GraphMind/internal/orchestrator_service/store"
	"GraphMind/internal/retrieval"
	"GraphMind/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logLevel, err := logrus.ParseLevel(cfg.Logger.Level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.Init(logLevel)
	serviceLogger := logger.New("OrchestratorService", "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Completion model. This is the only hard dependency: without it
	// neither planning nor synthesis can run at all.
	llmClient, err := llm.NewClient(ctx, cfg.LLM)
	if err != nil {
		serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("Failed to create LLM client")
	}
	if cfg.Breaker.Enabled {
		llmClient, err = llm.WithBreaker(llmClient, cfg.Breaker)
		if err != nil {
			serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("Invalid circuit breaker configuration")
		}
	}

	// Agent registry: descriptors from config, built-in defaults otherwise.
	registry := agent.NewRegistry()
	descriptors := descriptorsFromConfig(cfg.Agents)
	if len(descriptors) == 0 {
		descriptors = models.DefaultAgents()
	}
	registry.ReplaceDescriptors(descriptors)
	registry.RegisterResponder(agent.NewLLMResponder("llm_agent", llmClient))

	// Knowledge graph retrieval is best-effort: without it the graph
	// responder stays unregistered and its tasks fail individually.
	retrievalClient, err := neo4jdb.NewClient(ctx, &cfg.Databases.Neo4j)
	if err != nil {
		serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Warn("Knowledge graph unavailable, graph agent disabled")
	} else {
		defer retrievalClient.Close(context.Background())
		graphRAG := retrieval.NewGraphRAG(retrievalClient, llmClient, cfg.Retrieval, serviceLogger)
		registry.RegisterResponder(agent.NewGraphResponder("graph_agent", graphRAG))
	}

	// Provenance audit store, also best-effort.
	var recorder *audit.Recorder
	auditClient, err := neo4jdb.NewClient(ctx, &cfg.Databases.Neo4jAudit)
	if err != nil {
		serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Warn("Audit database unavailable, provenance recording disabled")
		recorder = audit.NewRecorder(nil)
	} else {
		defer auditClient.Close(context.Background())
		recorder = audit.NewRecorder(auditClient)
	}

	// Session store (Redis) and run archive (MongoDB), both best-effort.
	var sessionStore *store.SessionStore
	redisClient, err := redisdb.GetClient(&cfg.Databases.Redis)
	if err != nil {
		serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Warn("Redis unavailable, session store disabled")
	} else {
		defer redisdb.Close()
		ttl := time.Duration(cfg.Orchestrator.SessionHistoryTTL) * time.Second
		sessionStore = store.NewSessionStore(redisClient, ttl)
	}

	var runStore store.RunStore
	mongoClient, err := mongodb.GetClient(&cfg.Databases.MongoDB)
	if err != nil {
		serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Warn("MongoDB unavailable, run archive disabled")
	} else {
		defer mongodb.Close(context.Background())
		db := mongoClient.Database(cfg.Databases.MongoDB.Database)
		runStore = store.NewMongoRunStore(db, cfg.Databases.MongoDB.Collection)
	}

	// Task lifecycle log stream (Kafka), optional.
	var logPublisher *kafkadb.LogPublisher
	if len(cfg.Databases.Kafka.Brokers) > 0 {
		logPublisher = kafkadb.NewLogPublisher(cfg.Databases.Kafka.Brokers, cfg.Databases.Kafka.LogTopic)
	}

	// Core service components.
	pushTimeout, err := time.ParseDuration(cfg.Orchestrator.PushTimeout)
	if err != nil {
		pushTimeout = 500 * time.Millisecond
	}
	connManager := service.NewConnectionManager(pushTimeout)
	broadcaster := service.NewStatusBroadcaster(connManager, registry, cfg.Orchestrator.PushQueueSize, serviceLogger)
	planner := service.NewPlanner(llmClient, registry, cfg.Orchestrator.HistoryWindow, serviceLogger)

	var orchestrator *service.Orchestrator
	if logPublisher != nil {
		orchestrator = service.NewOrchestrator(planner, registry, broadcaster, logPublisher, modelName(cfg), serviceLogger)
	} else {
		orchestrator = service.NewOrchestrator(planner, registry, broadcaster, nil, modelName(cfg), serviceLogger)
	}

	// Post-run sinks: provenance graph, run archive, session history.
	orchestrator.AddRunSink(func(ctx context.Context, record *models.RunRecord, _ *models.MultiAgentResponse) {
		recorder.Record(ctx, record)
	})
	if runStore != nil {
		orchestrator.AddRunSink(func(ctx context.Context, record *models.RunRecord, _ *models.MultiAgentResponse) {
			if err := runStore.SaveRun(ctx, record); err != nil {
				serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Failed to archive run")
			}
		})
	}
	if sessionStore != nil {
		orchestrator.AddRunSink(func(ctx context.Context, record *models.RunRecord, response *models.MultiAgentResponse) {
			if err := sessionStore.AppendTurn(ctx, record.SessionID, record.Question, record.Answer); err != nil {
				serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Failed to append session turn")
			}
			if err := sessionStore.SetTitle(ctx, record.SessionID, response.SessionTitle); err != nil {
				serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Failed to save session title")
			}
		})
	}

	// Setup HTTP server
	gin.SetMode(gin.ReleaseMode)
	router := gin.Default()
	apiHandler := api.NewAPI(orchestrator, registry, connManager, broadcaster, sessionStore, runStore, serviceLogger)
	api.RegisterRoutes(router, apiHandler)

	srv := &http.Server{
		Addr:    cfg.Orchestrator.ServerAddress,
		Handler: router,
	}

	go func() {
		serviceLogger.Info("Starting HTTP server on " + srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("HTTP server failed to start")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	serviceLogger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Server forced to shutdown")
	}

	broadcaster.Shutdown()
	if logPublisher != nil {
		if err := logPublisher.Close(); err != nil {
			serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Error closing Kafka log publisher")
		}
	}

	serviceLogger.Info("Server gracefully stopped")
}

// descriptorsFromConfig 把配置中的响应者描述转换为注册表条目。
func descriptorsFromConfig(agents []config.AgentConfig) []models.AgentDescriptor {
	descriptors := make([]models.AgentDescriptor, 0, len(agents))
	for _, a := range agents {
		descriptors = append(descriptors, models.AgentDescriptor{
			ID:           a.ID,
			Name:         a.Name,
			Color:        a.Color,
			Capabilities: a.Capabilities,
			Enabled:      a.Enabled,
			Description:  a.Description,
			Priority:     a.Priority,
		})
	}
	return descriptors
}

// modelName 返回当前提供商配置下的补全模型名称。
func modelName(cfg *config.AppConfig) string {
	switch cfg.LLM.Provider {
	case "gemini":
		return cfg.LLM.Gemini.Model
	case "ollama":
		return cfg.LLM.Ollama.Model
	default:
		return cfg.LLM.OpenAI.Model
	}
}
