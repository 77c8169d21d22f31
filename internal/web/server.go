package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yuechangmingzou/trendguard/internal/bot"
	"github.com/yuechangmingzou/trendguard/internal/utils"
	"go.uber.org/zap"
)

// StatusSource 决策循环的只读视图
type StatusSource interface {
	LastTick() time.Time
	Status() bot.Status
}

// AuditReader 最近的审计记录
type AuditReader interface {
	Recent(ctx context.Context, n int) ([]string, error)
}

// Pinger 外部依赖探活（Redis）
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc 函数适配为Pinger
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Options Web服务参数
type Options struct {
	Port          int
	BasicAuthUser string
	BasicAuthPass string
	// StaleAfter 超过该时间没有完成tick则readyz返回503，0表示不检查
	StaleAfter time.Duration
}

// Server 存活检查/状态服务器，与决策循环只共享只读快照
type Server struct {
	engine *gin.Engine
	opts   Options
	logger *zap.SugaredLogger

	source StatusSource
	audit  AuditReader
	redis  Pinger

	startedAt time.Time
	now       func() time.Time
}

// NewServer 创建服务器。audit和redis可以为nil
func NewServer(source StatusSource, audit AuditReader, redis Pinger, opts Options) *Server {
	if opts.Port <= 0 {
		opts.Port = 5000
	}
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		engine:    gin.New(),
		opts:      opts,
		logger:    utils.GetLogger("web"),
		source:    source,
		audit:     audit,
		redis:     redis,
		startedAt: time.Now(),
		now:       time.Now,
	}
	s.setupRoutes()
	return s
}

// Handler 底层http.Handler（测试使用）
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) setupRoutes() {
	s.engine.Use(s.recoveryMiddleware())
	s.engine.Use(s.loggerMiddleware())
	s.engine.Use(s.metricsMiddleware())

	// 存活检查（无需认证）
	s.engine.GET("/", s.handleIndex)
	s.engine.GET("/healthz", s.handleHealthz)
	s.engine.GET("/readyz", s.handleReadyz)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.engine.Group("/api")
	if s.opts.BasicAuthUser != "" {
		api.Use(gin.BasicAuth(gin.Accounts{s.opts.BasicAuthUser: s.opts.BasicAuthPass}))
	}
	api.GET("/status", s.handleStatus)
}

// Run 启动服务器，ctx结束时优雅关闭
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.opts.Port)
	s.logger.Infow("Web服务器启动", "addr", addr, "basic_auth", s.opts.BasicAuthUser != "")

	server := &http.Server{
		Addr:         addr,
		Handler:      s.engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info("Web服务器正在关闭...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// recoveryMiddleware 恢复中间件
func (s *Server) recoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Errorw("请求处理panic",
					"error", err,
					"path", c.Request.URL.Path,
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": "internal_server_error",
				})
			}
		}()
		c.Next()
	}
}

// loggerMiddleware 只记录5xx
func (s *Server) loggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if status := c.Writer.Status(); status >= 500 {
			s.logger.Warnw("HTTP请求",
				"status", status,
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
				"latency", time.Since(start),
				"ip", c.ClientIP(),
			)
		}
	}
}

// handleIndex 存活文本
func (s *Server) handleIndex(c *gin.Context) {
	c.String(http.StatusOK, "Trading bot is alive! %s", s.now().Format("2006-01-02 15:04:05"))
}

// handleHealthz 进程存活，附带最近一次tick时间
func (s *Server) handleHealthz(c *gin.Context) {
	resp := gin.H{
		"status":         "ok",
		"timestamp":      s.now().Unix(),
		"uptime_seconds": int64(s.now().Sub(s.startedAt).Seconds()),
		"last_tick":      nil,
	}
	if last := s.source.LastTick(); !last.IsZero() {
		resp["last_tick"] = last.UTC().Format(time.RFC3339)
		resp["last_tick_age_seconds"] = int64(s.now().Sub(last).Seconds())
	}
	c.JSON(http.StatusOK, resp)
}

// handleReadyz 决策循环在预期时间内完成过tick且Redis可用
func (s *Server) handleReadyz(c *gin.Context) {
	last := s.source.LastTick()
	if last.IsZero() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "error": "no_tick_yet"})
		return
	}
	if s.opts.StaleAfter > 0 && s.now().Sub(last) > s.opts.StaleAfter {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":    "not_ready",
			"error":     "tick_stale",
			"last_tick": last.UTC().Format(time.RFC3339),
		})
		return
	}

	if s.redis != nil {
		ctx, cancel := utils.WithDefaultTimeout(c.Request.Context())
		defer cancel()
		if err := s.redis.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "error": "redis_unavailable"})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// handleStatus 机器人状态快照和最近审计记录
func (s *Server) handleStatus(c *gin.Context) {
	resp := gin.H{
		"timestamp": s.now().Unix(),
		"bot":       s.source.Status(),
	}

	if s.audit != nil {
		ctx, cancel := utils.WithDefaultTimeout(c.Request.Context())
		defer cancel()
		recent, err := s.audit.Recent(ctx, 20)
		if err != nil {
			s.logger.Warnw("读取审计记录失败", "error", err)
			resp["audit_error"] = "unavailable"
		} else {
			resp["audit"] = recent
		}
	}

	c.JSON(http.StatusOK, resp)
}
