package server

import (
	"github.com/antigravity/summarizer-gateway/internal/config"
	"github.com/antigravity/summarizer-gateway/internal/logger"
	"github.com/antigravity/summarizer-gateway/internal/pipeline"
	"github.com/antigravity/summarizer-gateway/internal/ratelimit"
	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	routeSummarize   = "/api/github-summarizer"
	routeValidateKey = "/api/validate-key"
)

// Server represents the API server
type Server struct {
	cfg      *config.Config
	logger   *zap.Logger
	router   *gin.Engine
	pipeline *pipeline.Pipeline
	limiter  *ratelimit.Limiter
	cron     *cron.Cron
}

// New creates a new server instance
func New(cfg *config.Config, log *zap.Logger, p *pipeline.Pipeline, limiter *ratelimit.Limiter) (*Server, error) {
	// 设置Gin模式
	gin.SetMode(cfg.Server.Mode)

	s := &Server{
		cfg:      cfg,
		logger:   log.With(logger.Component("server")),
		router:   gin.New(),
		pipeline: p,
		limiter:  limiter,
	}

	if len(cfg.Server.TrustedProxies) > 0 {
		if err := s.router.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
			return nil, err
		}
	} else if err := s.router.SetTrustedProxies(nil); err != nil {
		return nil, err
	}

	// 设置中间件
	s.setupMiddleware()

	// 设置路由
	s.setupRoutes()

	return s, nil
}

// Router returns the gin engine
func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) setupMiddleware() {
	// Recovery middleware
	s.router.Use(s.recoveryMiddleware())

	s.router.Use(s.requestIDMiddleware())

	// Logger middleware
	s.router.Use(s.loggerMiddleware())

	// CORS middleware
	if s.cfg.Security.EnableCORS {
		s.router.Use(s.corsMiddleware())
	}

	s.router.Use(s.bodyLimitMiddleware())
}

func (s *Server) setupRoutes() {
	// 根路径返回简单状态
	s.router.GET("/", func(c *gin.Context) {
		c.String(200, "ok")
	})

	// 健康检查
	s.router.GET("/health", s.healthCheck)
	s.router.GET("/ping", s.ping)

	// GET 返回接口文档，不需要认证
	s.router.GET(routeSummarize, s.summarizeDocs)
	s.router.POST(routeSummarize, s.summarize)

	s.router.GET(routeValidateKey, s.validateKeyDocs)
	s.router.POST(routeValidateKey, s.validateKey)

	s.router.NoRoute(s.notFound)
}

// StartSweeper schedules periodic removal of idle rate limit states.
func (s *Server) StartSweeper() error {
	if s.limiter == nil {
		return nil
	}
	s.cron = cron.New()
	_, err := s.cron.AddFunc("@every 1m", func() {
		if n := s.limiter.Sweep(); n > 0 {
			s.logger.Debug("Swept idle rate limit states", zap.Int("removed", n))
		}
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop stops background jobs.
func (s *Server) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}
