package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"taskloom.rt.gateway/internal/config"
	"taskloom.rt.gateway/internal/health"
	natsx "taskloom.rt.gateway/internal/nats"
	"taskloom.rt.gateway/internal/redis"
	"taskloom.rt.gateway/internal/repository"
	"taskloom.rt.gateway/internal/server"
)

func main() {
	// 加载配置
	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化日志
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.Logging.Level),
	}))
	slog.SetDefault(logger)

	// 创建上下文
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 初始化 NATS 客户端
	natsClient, err := natsx.NewClient(cfg.NATS)
	if err != nil {
		logger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer natsClient.Close()
	logger.Info("Connected to NATS", "url", cfg.NATS.URL)

	// 初始化 Redis 客户端
	redisClient := redis.NewClient(cfg.Redis, cfg.Presence.OnlineTTL)
	defer redisClient.Close()
	logger.Info("Connected to Redis", "addr", cfg.Redis.Addr)

	// 初始化 PostgreSQL 连接池
	dbPool, err := repository.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()
	logger.Info("Connected to database", "host", cfg.Database.Host, "name", cfg.Database.Name)

	users := repository.NewUserRepository(dbPool)
	presenceRepo := repository.NewPresenceRepository(dbPool)

	// 创建并启动服务器
	srv := server.New(cfg, natsClient, redisClient, users, presenceRepo, logger)
	go func() {
		if err := srv.Start(ctx); err != nil {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// 启动运维端点（健康检查 + 指标）
	opsServer := startOpsServer(cfg, natsClient, redisClient, dbPool, srv.Registry(), logger)

	logger.Info("Gateway started",
		"addr", cfg.Server.Addr,
		"node_id", cfg.Server.NodeID)

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	cancel()
	srv.Shutdown()
	opsServer.Close()
	logger.Info("Server stopped")
}

// startOpsServer 启动健康检查和指标 HTTP 服务
func startOpsServer(cfg *config.Config, natsClient *natsx.Client, redisClient *redis.Client, dbPool *pgxpool.Pool, connCounter health.ConnectionCounter, logger *slog.Logger) *http.Server {
	healthChecker := health.NewChecker(natsClient.Conn(), redisClient, dbPool, connCounter)

	mux := http.NewServeMux()
	mux.Handle("/health", healthChecker)
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if healthChecker.IsHealthy(r.Context()) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK"))
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("Not Ready"))
		}
	})
	mux.Handle("/metrics", promhttp.Handler())

	addr := cfg.Ops.Addr
	if addr == "" {
		addr = ":8080"
	}
	httpServer := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		logger.Info("Ops server started", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Ops server failed", "error", err)
		}
	}()

	return httpServer
}

// logLevel 解析日志级别，未识别时取 info
func logLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
