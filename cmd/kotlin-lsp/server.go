package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/luhmann/kotlinlsp/config"
	"github.com/luhmann/kotlinlsp/diagnostics"
	"github.com/luhmann/kotlinlsp/internal/metrics"
	"github.com/luhmann/kotlinlsp/internal/server"
	"github.com/luhmann/kotlinlsp/internal/telemetry"
	"github.com/luhmann/kotlinlsp/lsp"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server kotlin-lsp 桥接 HTTP 服务
type Server struct {
	cfg       *config.Config
	logger    *zap.Logger
	telemetry *telemetry.Providers

	collector   *metrics.Collector
	registry    *lsp.Registry
	tool        *diagnostics.Tool
	httpManager *server.Manager

	// Rate limiter 生命周期管理
	rateLimiterCancel context.CancelFunc
}

// NewServer 创建服务器实例，providers 可以为 nil
func NewServer(cfg *config.Config, logger *zap.Logger, providers *telemetry.Providers) *Server {
	return &Server{
		cfg:       cfg,
		logger:    logger,
		telemetry: providers,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 创建注册表与 handlers 并启动 HTTP 服务（非阻塞）
func (s *Server) Start() error {
	if s.cfg.Metrics.Enabled {
		s.collector = metrics.NewCollector(s.cfg.Metrics.Namespace, s.logger)
	}

	s.registry = lsp.NewRegistry(s.cfg.LSP.SessionOptions(), s.logger, s.collector)
	s.tool = diagnostics.NewTool(s.registry, s.cfg.ToolConfig(), s.logger)

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("resolve working directory: %w", err)
	}

	handler := s.buildHandler(newAPIHandlers(s.tool, s.registry, cwd, s.logger))

	s.httpManager = server.NewManager(handler, server.Config{
		Addr:            s.cfg.Server.Addr(),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20, // 1 MB
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}, s.logger)

	// HTTP 停止后依次关闭客户端与遥测
	s.httpManager.OnShutdown("rate_limiter", func(context.Context) error {
		if s.rateLimiterCancel != nil {
			s.rateLimiterCancel()
		}
		return nil
	})
	s.httpManager.OnShutdown("kotlin_lsp_clients", s.registry.Close)
	s.httpManager.OnShutdown("telemetry", s.telemetry.Shutdown)

	if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("kotlin-lsp bridge started",
		zap.String("addr", s.httpManager.Addr()),
		zap.String("command", s.cfg.LSP.Command),
		zap.Bool("metrics_enabled", s.collector != nil),
		zap.Bool("telemetry_enabled", s.telemetry.Enabled()),
	)
	return nil
}

// buildHandler 挂载路由并构建中间件链
func (s *Server) buildHandler(api *apiHandlers) http.Handler {
	mux := http.NewServeMux()

	var metricsHandler http.Handler
	if s.collector != nil {
		metricsHandler = promhttp.Handler()
	}
	api.register(mux, metricsHandler)

	rateLimiterCtx, rateLimiterCancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = rateLimiterCancel

	middlewares := []Middleware{
		Recovery(s.logger),
		RequestID(),
		RequestLogger(s.logger),
	}
	if s.cfg.Server.RateLimitRPS > 0 {
		middlewares = append(middlewares,
			RateLimiter(rateLimiterCtx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger))
	}
	if s.collector != nil {
		middlewares = append(middlewares, MetricsMiddleware(s.collector))
	}
	if s.telemetry.Enabled() {
		middlewares = append(middlewares, OTelTracing())
	}
	return Chain(mux, middlewares...)
}

// Addr 返回实际监听地址
func (s *Server) Addr() string {
	if s.httpManager == nil {
		return s.cfg.Server.Addr()
	}
	return s.httpManager.Addr()
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 等待信号或 ctx 结束，然后按顺序关闭
func (s *Server) WaitForShutdown(ctx context.Context) error {
	if s.httpManager == nil {
		return nil
	}
	err := s.httpManager.WaitForShutdown(ctx)
	s.logger.Info("graceful shutdown completed")
	return err
}

// Shutdown 立即关闭：HTTP → 客户端 → 遥测
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpManager == nil {
		return nil
	}
	return s.httpManager.Shutdown(ctx)
}
