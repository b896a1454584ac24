package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tonybaloney/agentic-popup-shop-sub001/internal/application/engine"
	"github.com/tonybaloney/agentic-popup-shop-sub001/internal/application/orchestrator"
	"github.com/tonybaloney/agentic-popup-shop-sub001/internal/application/proposals"
	"github.com/tonybaloney/agentic-popup-shop-sub001/internal/application/runs"
	"github.com/tonybaloney/agentic-popup-shop-sub001/internal/config"
	"github.com/tonybaloney/agentic-popup-shop-sub001/pkg/adapters/agents"
	eventsredis "github.com/tonybaloney/agentic-popup-shop-sub001/pkg/adapters/events/redis"
	"github.com/tonybaloney/agentic-popup-shop-sub001/pkg/adapters/metrics/prometheus"
	storageredis "github.com/tonybaloney/agentic-popup-shop-sub001/pkg/adapters/storage/redis"
	"github.com/tonybaloney/agentic-popup-shop-sub001/pkg/api/grpc"
	"github.com/tonybaloney/agentic-popup-shop-sub001/pkg/api/http"
	"github.com/tonybaloney/agentic-popup-shop-sub001/pkg/api/websocket"
)

var (
	// Version is set by build flags
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("starting orchestrator",
		zap.String("version", Version),
		zap.String("build_time", BuildTime))

	redisClient := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		MaxRetries:   cfg.Redis.MaxRetries,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})

	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal("failed to connect to Redis", zap.Error(err))
	}
	logger.Info("connected to Redis", zap.String("addr", cfg.Redis.Addr))

	eventBus := eventsredis.NewStreamsBus(
		redisClient,
		"orchestrator-api",
		fmt.Sprintf("orchestrator-%d", os.Getpid()),
		10000,
		logger,
	)

	runStore := storageredis.NewRunStore(redisClient, cfg.Timeouts.RecordTTL, logger)

	metricsCollector := prometheus.NewCollector(nil)

	agentClient, err := agents.NewClient(agents.Config{
		Provider:  cfg.Agent.Provider,
		APIKey:    cfg.Agent.APIKey,
		Model:     cfg.Agent.Model,
		MaxTokens: cfg.Agent.MaxTokens,
		Metrics:   metricsCollector,
		Logger:    logger,
	})
	if err != nil {
		logger.Fatal("failed to create agent client", zap.Error(err))
	}

	runner := engine.NewRunner(
		engine.WithLogger(logger),
		engine.WithMetrics(metricsCollector),
		engine.WithHandlerTimeout(cfg.Engine.HandlerTimeout),
		engine.WithMaxConcurrentHandlers(cfg.Engine.MaxConcurrentHandlers),
		engine.WithEventBufferSize(cfg.Engine.EventBufferSize),
	)

	runService := runs.NewService(
		runStore,
		eventBus,
		metricsCollector,
		logger,
		cfg.Timeouts.RunTimeout,
		cfg.Timeouts.RecordTTL,
	)

	evaluations, err := proposals.NewService(agentClient, runner, runService, logger)
	if err != nil {
		logger.Fatal("failed to build evaluation workflow", zap.Error(err))
	}

	planner := agents.NewAgentPlanner(
		agentClient,
		[]string{"market_analyst", "operations_planner", "finance_reviewer"},
		logger,
	)
	manager, err := orchestrator.NewManager(
		planner,
		orchestrator.DefaultParticipants(agentClient, logger),
		orchestrator.Config{
			MaxRounds:    cfg.Manager.MaxRounds,
			MaxStalls:    cfg.Manager.MaxStalls,
			MaxResets:    cfg.Manager.MaxResets,
			RoundTimeout: cfg.Manager.RoundTimeout,
		},
		nil,
		metricsCollector,
		logger,
	)
	if err != nil {
		logger.Fatal("failed to build deliberation manager", zap.Error(err))
	}
	deliberations := orchestrator.NewService(manager, runService, logger)

	httpServer := http.NewServer(&http.Config{
		Port:          cfg.HTTPPort,
		Evaluations:   evaluations,
		Deliberations: deliberations,
		Runs:          runService,
		Bus:           eventBus,
		Logger:        logger,
	})

	wsHandler := websocket.NewHandler(eventBus, logger)
	httpServer.SetupWebSocket(wsHandler)

	grpcServer, err := grpc.NewServer(&grpc.Config{
		Port:   cfg.GRPCPort,
		Logger: logger,
	})
	if err != nil {
		logger.Fatal("failed to create gRPC server", zap.Error(err))
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	go func() {
		if err := grpcServer.Start(); err != nil {
			logger.Fatal("gRPC server failed", zap.Error(err))
		}
	}()

	logger.Info("orchestrator started",
		zap.Int("http_port", cfg.HTTPPort),
		zap.Int("grpc_port", cfg.GRPCPort))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	if err := grpcServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("gRPC server shutdown error", zap.Error(err))
	}

	if err := runService.Shutdown(shutdownCtx); err != nil {
		logger.Error("run service shutdown error", zap.Error(err))
	}

	if err := eventBus.Close(); err != nil {
		logger.Error("event bus close error", zap.Error(err))
	}

	if err := redisClient.Close(); err != nil {
		logger.Error("Redis close error", zap.Error(err))
	}

	logger.Info("orchestrator shut down complete")
}

// initLogger initializes the logger based on log level
func initLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(zapLevel)
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := config.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}

	return logger
}
