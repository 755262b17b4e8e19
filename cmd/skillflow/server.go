package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/skillflow/api/handlers"
	"github.com/BaSui01/skillflow/config"
	"github.com/BaSui01/skillflow/internal/cache"
	"github.com/BaSui01/skillflow/internal/metrics"
	"github.com/BaSui01/skillflow/internal/server"
	"github.com/BaSui01/skillflow/internal/telemetry"
	"github.com/BaSui01/skillflow/internal/tlsutil"
	"github.com/BaSui01/skillflow/llm"
	"github.com/BaSui01/skillflow/llm/providers/openaicompat"
	"github.com/BaSui01/skillflow/llm/tokenizer"
	"github.com/BaSui01/skillflow/skill"
	"github.com/BaSui01/skillflow/skill/agent"
	"github.com/BaSui01/skillflow/skill/crawler"
	"github.com/BaSui01/skillflow/skill/image"
	"github.com/BaSui01/skillflow/skill/knowledge"
	"github.com/BaSui01/skillflow/skill/mcptool"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 持有 skillflow 进程内的全部组件及其生命周期
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	httpManager    *server.Manager
	metricsManager *server.Manager

	telemetry *telemetry.Providers
	collector *metrics.Collector
	cache     *cache.Manager
	knowledge *knowledge.Store
	registry  *skill.Registry
	health    *handlers.HealthHandler

	// 限流器后台清理 goroutine 的生命周期
	rateLimiterCancel context.CancelFunc
}

// NewServer 创建服务器实例
func NewServer(cfg *config.Config, logger *zap.Logger) *Server {
	return &Server{cfg: cfg, logger: logger}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 初始化依赖并启动 API 与 Metrics 服务器（非阻塞）
func (s *Server) Start(ctx context.Context) error {
	if err := s.Init(ctx); err != nil {
		return err
	}

	if err := s.startHTTPServer(ctx); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.String("http_addr", s.httpManager.Addr()),
		zap.String("metrics_addr", s.metricsManager.Addr()),
		zap.Int("skills", len(s.registry.List())),
	)
	return nil
}

// Init 初始化遥测、指标与技能注册表，不启动任何监听
func (s *Server) Init(ctx context.Context) error {
	providers, err := telemetry.Init(ctx, s.cfg.Telemetry, s.logger)
	if err != nil {
		s.logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	s.telemetry = providers

	s.collector = metrics.NewCollector("skillflow", s.logger)
	s.health = handlers.NewHealthHandler(s.logger)

	deps, err := s.buildDeps(ctx)
	if err != nil {
		return fmt.Errorf("failed to build skill dependencies: %w", err)
	}

	s.registry = skill.NewRegistry(s.collector, s.cfg.Skill.InvokeTimeout, s.logger)
	for _, sk := range []skill.Skill{agent.New(deps), image.New(deps)} {
		if err := s.registry.Register(sk); err != nil {
			return fmt.Errorf("failed to register skill: %w", err)
		}
	}
	return nil
}

// Registry 返回技能注册表，Init 之后可用
func (s *Server) Registry() *skill.Registry {
	return s.registry
}

// buildDeps 按配置组装技能依赖。可选组件（Redis、知识库、MCP）不可用时降级。
func (s *Server) buildDeps(ctx context.Context) (skill.Deps, error) {
	deps := skill.Deps{
		Logger:     s.logger,
		Metrics:    s.collector,
		Settings:   s.cfg.Skill,
		Image:      s.cfg.Image,
		Tokenizer:  tokenizer.NewRegistry().ForModel(s.cfg.LLM.ChatModel.Name),
		HTTPClient: tlsutil.NewHTTPClient(tlsutil.ClientOptions{}),
	}

	// LLM provider
	provider := openaicompat.New(openaicompat.Config{
		ProviderName: s.cfg.LLM.Provider,
		APIKey:       s.cfg.LLM.APIKey,
		BaseURL:      s.cfg.LLM.BaseURL,
		DefaultModel: s.cfg.LLM.ChatModel.Name,
		Timeout:      s.cfg.LLM.Timeout,
	}, s.logger)
	deps.Providers = llm.NewStaticFactory(provider)

	// URL 抓取，Redis 可用时加缓存层
	if s.cfg.Crawler.Enabled {
		var fetcher crawler.Fetcher = crawler.NewHTTPFetcher(crawler.FetcherConfigFrom(s.cfg.Crawler), s.logger)
		if s.cfg.Redis.Addr != "" {
			mgr, err := cache.NewManager(ctx, cache.Config{
				Addr:         s.cfg.Redis.Addr,
				Password:     s.cfg.Redis.Password,
				DB:           s.cfg.Redis.DB,
				KeyPrefix:    "skillflow:",
				DefaultTTL:   s.cfg.Crawler.CacheTTL,
				PoolSize:     s.cfg.Redis.PoolSize,
				MinIdleConns: s.cfg.Redis.MinIdleConns,
			}, s.logger)
			if err != nil {
				s.logger.Warn("redis unavailable, crawl cache disabled", zap.Error(err))
			} else {
				s.cache = mgr
				s.health.RegisterCheck(handlers.NewPingCheck("redis", mgr.Ping))
				fetcher = crawler.NewCachedFetcher(fetcher, crawler.NewRedisSourceCache(mgr, s.cfg.Crawler.CacheTTL), s.collector, s.logger)
			}
		}
		deps.Crawler = crawler.New(fetcher, s.collector, s.logger).WithDefaults(crawler.Options{
			Concurrency: s.cfg.Crawler.Concurrency,
			BatchSize:   s.cfg.Crawler.BatchSize,
		})
	}

	// 知识库
	if s.cfg.Knowledge.Enabled {
		store, err := knowledge.Open(ctx, s.cfg.Knowledge, s.logger)
		if err != nil {
			return deps, err
		}
		s.knowledge = store
		deps.Knowledge = store
		s.health.RegisterCheck(handlers.NewPingCheck("knowledge", func(ctx context.Context) error {
			_, err := store.Count(ctx)
			return err
		}))
	}

	// MCP 工具：每次调用单独建立会话
	if len(s.cfg.MCPServers) > 0 {
		servers := s.cfg.MCPServers
		deps.ToolClients = func(ctx context.Context) (skill.ToolClient, error) {
			client, err := mcptool.Connect(ctx, servers, s.logger)
			if err != nil {
				return nil, err
			}
			return client, nil
		}
	}

	return deps, nil
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

func (s *Server) startHTTPServer(ctx context.Context) error {
	mux := http.NewServeMux()
	s.health.Register(mux, Version, BuildTime, GitCommit)

	skills := handlers.NewSkillHandler(s.registry, handlers.RunDefaults{
		Models:         s.cfg.LLM.ModelMap(),
		Locale:         s.cfg.Skill.Locale,
		OriginPatterns: originHosts(s.cfg.Server.CORSAllowedOrigins),
	}, s.logger)
	skills.Register(mux)

	limiterCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.rateLimiterCancel = cancel

	middlewares := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		OTelTracing(),
		MetricsMiddleware(s.collector),
		RequestLogger(s.logger),
		CORS(s.cfg.Server.CORSAllowedOrigins),
	}
	if s.cfg.Server.RateLimitRPS > 0 {
		middlewares = append(middlewares, RateLimiter(limiterCtx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger))
	}
	if len(s.cfg.Server.APIKeys) > 0 {
		middlewares = append(middlewares, APIKeyAuth(s.cfg.Server.APIKeys, publicPaths, s.logger))
	} else {
		s.logger.Warn("no API keys configured, skill endpoints are unauthenticated")
	}

	handler := Chain(mux, middlewares...)
	s.httpManager = server.NewManager("api", handler, server.ConfigFor(s.cfg.Server, s.cfg.Server.HTTPPort), s.logger)
	return s.httpManager.Start()
}

// publicPaths 无需认证的路径
var publicPaths = []string{"/health", "/healthz", "/ready", "/readyz", "/version"}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	s.metricsManager = server.NewManager("metrics", mux, server.ConfigFor(s.cfg.Server, s.cfg.Server.MetricsPort), s.logger)
	return s.metricsManager.Start()
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// Wait 阻塞直到 ctx 结束或任一服务器异常退出
func (s *Server) Wait(ctx context.Context) {
	var apiErrs, metricsErrs <-chan error
	if s.httpManager != nil {
		apiErrs = s.httpManager.Errors()
	}
	if s.metricsManager != nil {
		metricsErrs = s.metricsManager.Errors()
	}
	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case err := <-apiErrs:
		s.logger.Error("API server exited", zap.Error(err))
	case err := <-metricsErrs:
		s.logger.Error("metrics server exited", zap.Error(err))
	}
}

// Shutdown 按启动的逆序关闭所有组件，重复调用安全
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout())
	defer cancel()

	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}

	var errs []error
	if s.httpManager != nil {
		errs = append(errs, s.httpManager.Shutdown(ctx))
	}
	if s.metricsManager != nil {
		errs = append(errs, s.metricsManager.Shutdown(ctx))
	}
	if s.knowledge != nil {
		errs = append(errs, s.knowledge.Close())
	}
	if s.cache != nil {
		errs = append(errs, s.cache.Close())
	}
	if s.telemetry != nil {
		errs = append(errs, s.telemetry.Shutdown(ctx))
	}
	if err := errors.Join(errs...); err != nil {
		s.logger.Error("shutdown finished with errors", zap.Error(err))
		return
	}
	s.logger.Info("Graceful shutdown completed")
}

func (s *Server) shutdownTimeout() time.Duration {
	if s.cfg.Server.ShutdownTimeout > 0 {
		return s.cfg.Server.ShutdownTimeout
	}
	return 15 * time.Second
}

// originHosts 将 CORS 来源（https://app.example.com）转换为 WebSocket 的主机模式
func originHosts(origins []string) []string {
	hosts := make([]string, 0, len(origins))
	for _, o := range origins {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			hosts = append(hosts, u.Host)
			continue
		}
		hosts = append(hosts, o)
	}
	return hosts
}
