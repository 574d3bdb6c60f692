package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"RiskLens/pkg/metrics"
)

// ServerConfig 服务器参数
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server API服务器
type Server struct {
	router *gin.Engine
	srv    *http.Server
	logger *slog.Logger
}

// NewServer 创建新的API服务器
func NewServer(cfg ServerConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	router := gin.New()

	// 设置中间件
	router.Use(recovery(logger))
	router.Use(requestLogger(logger))
	router.Use(metrics.Middleware())

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return &Server{
		router: router,
		srv:    srv,
		logger: logger,
	}
}

// Router 路由，测试中直接驱动
func (s *Server) Router() *gin.Engine {
	return s.router
}

// SetupRoutes 设置路由
func (s *Server) SetupRoutes(handlers *Handlers) {
	// 健康检查
	s.router.GET("/health", handlers.HealthCheck)
	s.router.GET("/ready", handlers.ReadinessCheck)
	s.router.GET("/metrics", metrics.Handler())

	// API v1 路由组
	v1 := s.router.Group("/api/v1")
	{
		// 告警评估
		v1.POST("/evaluate", handlers.EvaluateAlert)

		// 决策审计
		v1.GET("/decisions", handlers.ListDecisions)
		v1.GET("/decisions/stats", handlers.DecisionStats)
		v1.GET("/decisions/:id", handlers.GetDecision)

		// 当前规则
		v1.GET("/rules", handlers.GetRules)
	}
}

// Start 启动服务器，ctx 结束后优雅关闭
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	// 在goroutine中启动服务器
	go func() {
		s.logger.Info("API服务器启动", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("启动服务器失败: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("正在关闭服务器...")

	// 设置超时上下文
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 优雅关闭
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("服务器关闭失败: %w", err)
	}

	s.logger.Info("服务器已关闭")
	return nil
}

// requestLogger 记录请求方法、路径、状态码和耗时
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info("HTTP请求",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
		)
	}
}

// recovery panic 时返回统一的 500
func recovery(logger *slog.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.Error("处理请求 panic", "path", c.Request.URL.Path, "panic", recovered)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"detail": internalError})
	})
}
