package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/pumpfunds/copytrader/internal/dispatcher"
	"github.com/pumpfunds/copytrader/internal/repo"
	"github.com/pumpfunds/copytrader/internal/subscription"
	"github.com/pumpfunds/copytrader/pkg/logger"
)

// Config HTTP服务配置
type Config struct {
	Addr         string        `yaml:"addr" json:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
}

// Server 对外HTTP入口：webhook推送接收 + 跟单订阅管理
type Server struct {
	cfg        Config
	httpServer *http.Server

	webhookHandler http.HandlerFunc
	subs           *subscription.Manager
	dispatcher     *dispatcher.Dispatcher
	fundRepo       repo.FundRepo
	investmentRepo repo.InvestmentRepo
}

func New(
	cfg Config,
	webhookHandler http.HandlerFunc,
	subs *subscription.Manager,
	disp *dispatcher.Dispatcher,
	fundRepo repo.FundRepo,
	investmentRepo repo.InvestmentRepo,
) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 30 * time.Second
	}

	s := &Server{
		cfg:            cfg,
		webhookHandler: webhookHandler,
		subs:           subs,
		dispatcher:     disp,
		fundRepo:       fundRepo,
		investmentRepo: investmentRepo,
	}
	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Post("/api/webhooks/helius", s.webhookHandler)

	r.Post("/api/subscribe", s.handleSubscribe)
	r.Post("/api/unsubscribe", s.handleUnsubscribe)
	r.Post("/api/update-investment", s.handleUpdateInvestment)

	r.Get("/api/funds", s.handleListFunds)
	r.Get("/api/funds/{fundID}", s.handleGetFund)

	r.Post("/api/admin/cleanup-webhooks", s.handleCleanupWebhooks)

	return r
}

// Start 启动HTTP监听，非阻塞
func (s *Server) Start() {
	go func() {
		logger.Info("🌐 HTTP服务已启动", logger.String("addr", s.cfg.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP服务异常退出", logger.FieldErr(err))
		}
	}()
}

// Stop 优雅停止HTTP服务
func (s *Server) Stop(ctx context.Context) error {
	logger.Info("停止HTTP服务")
	return s.httpServer.Shutdown(ctx)
}
