// Package http 提供看板 HTTP 接口：会话数据、汇总视图、图表、导出、预测与训练
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"superstore/config"
	"superstore/db"
	"superstore/ml"
	"superstore/monitoring"
	"superstore/workspace"
)

// Deps 处理器依赖，全部显式注入
type Deps struct {
	Workspace *workspace.Store
	Models    *workspace.ModelStore
	Trainer   *ml.Trainer
	DB        *db.Store // 可为 nil
	Hub       *monitoring.DashboardHub
	Metrics   *monitoring.MetricsCollector
	Logger    *zap.Logger

	// TrainingDataset 未上传文件时的训练数据
	TrainingDataset string
}

// Server HTTP服务器
type Server struct {
	server *http.Server
	config config.ServerConfig
	logger *zap.Logger
}

// NewServer 创建HTTP服务器
func NewServer(cfg config.ServerConfig, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Server{
		server: &http.Server{
			Addr:         cfg.Addr,
			Handler:      NewRouter(cfg, deps),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  120 * time.Second,
		},
		config: cfg,
		logger: deps.Logger,
	}
}

// NewRouter 注册全部路由
func NewRouter(cfg config.ServerConfig, deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	h := &handlers{deps: deps, logger: deps.Logger.Named("http"), maxUpload: cfg.MaxUploadMB << 20}

	perMinute := cfg.TrainPerMinute
	if perMinute <= 0 {
		perMinute = 2
	}
	burst := max(cfg.TrainBurst, 1)
	trainLimiter := rate.NewLimiter(rate.Limit(perMinute/60), burst)
	trainGuard := Chain(RateLimitMiddleware(trainLimiter), RequestSizeMiddleware(h.maxUpload))

	r := chi.NewRouter()
	r.Use(
		RecoveryMiddleware(h.logger),
		LoggerMiddleware(h.logger, deps.Metrics),
		SecurityHeadersMiddleware,
		CORSMiddleware(cfg.AllowedOrigins),
	)

	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		if deps.Hub != nil {
			r.Get("/ws/dashboard", deps.Hub.ServeHTTP)
		}

		r.Group(func(r chi.Router) {
			r.Use(render.SetContentType(render.ContentTypeJSON))

			r.Get("/health", h.health)
			r.Get("/predict/template.csv", h.batchTemplate)
			r.Get("/training/log", h.trainingLog)
			r.With(trainGuard).Post("/train", h.train)

			r.Post("/sessions", h.createSession)
			r.Route("/sessions/{id}", func(r chi.Router) {
				r.Get("/", h.getSession)
				r.Delete("/", h.deleteSession)
				r.With(RequestSizeMiddleware(h.maxUpload)).Post("/dataset", h.uploadDataset)
				r.Get("/overview", h.overview)
				r.Get("/views", h.views)
				r.Get("/filters", h.getFilters)
				r.Put("/filters", h.putFilters)
				r.Get("/options", h.options)

				r.Get("/summary", h.summary)
				r.Get("/rollup/category", h.categoryRollup)
				r.Get("/top-subcategories", h.topSubCategories)
				r.Get("/trend/monthly", h.monthlyTrend)
				r.Get("/scatter", h.scatter)
				r.Get("/charts/{chart}.png", h.chart)

				r.Get("/export/filtered.csv", h.exportFiltered)
				r.Get("/export/filtered.xlsx", h.exportFiltered)
				r.Get("/export/top-subcategories.csv", h.exportTopSubCategories)

				r.Post("/predict", h.predict)
				r.With(RequestSizeMiddleware(h.maxUpload)).Post("/predict/batch", h.predictBatch)
			})
		})
	})

	return r
}

// Handler 根处理器，测试使用
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start 启动服务器，阻塞直到关闭
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Stop 优雅关闭
func (s *Server) Stop(ctx context.Context) error {
	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	s.logger.Info("shutting down HTTP server")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

// Addr 返回服务器地址
func (s *Server) Addr() string {
	return s.server.Addr
}
