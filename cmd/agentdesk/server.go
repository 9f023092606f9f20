package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"reflect"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/agentdesk/api/handlers"
	"github.com/BaSui01/agentdesk/config"
	"github.com/BaSui01/agentdesk/hitl"
	"github.com/BaSui01/agentdesk/internal/database"
	"github.com/BaSui01/agentdesk/internal/metrics"
	"github.com/BaSui01/agentdesk/internal/server"
	"github.com/BaSui01/agentdesk/internal/telemetry"
)

// =============================================================================
// 🖥️ serve 命令
// =============================================================================

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	loader, cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	logger, level := initLogger(cfg.Log)
	defer logger.Sync()

	logger.Info("Starting AgentDesk",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := NewServer(cfg, loader, logger, level)
	if err := srv.Init(ctx); err != nil {
		srv.Close()
		return err
	}
	defer srv.Close()

	if err := srv.Run(ctx); err != nil {
		return err
	}
	logger.Info("AgentDesk stopped")
	return nil
}

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 组装交互台服务：存储、审计、HTTP 与 Metrics 双端口、配置监听。
type Server struct {
	cfg    *config.Config
	loader *config.Loader
	logger *zap.Logger
	level  zap.AtomicLevel

	metricsNamespace string

	collector *metrics.Collector
	store     hitl.Store
	manager   *hitl.Manager
	pool      *database.PoolManager
	history   *instrumentedHistory
	telemetry *telemetry.Providers

	handler        http.Handler
	httpManager    *server.Manager
	metricsManager *server.Manager
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, loader *config.Loader, logger *zap.Logger, level zap.AtomicLevel) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:              cfg,
		loader:           loader,
		logger:           logger,
		level:            level,
		metricsNamespace: "agentdesk",
	}
}

// =============================================================================
// 🔧 初始化
// =============================================================================

// Init 创建所有组件。ctx 控制限流器后台清理协程的生命周期。
func (s *Server) Init(ctx context.Context) error {
	providers, err := telemetry.Init(s.cfg.Telemetry, Version, s.logger)
	if err != nil {
		s.logger.Warn("failed to initialize telemetry", zap.Error(err))
	} else {
		s.telemetry = providers
	}

	s.collector = metrics.NewCollector(s.metricsNamespace, s.logger)

	s.store, err = hitl.NewStore(hitl.StoreConfig{
		Type:             hitl.StoreType(s.cfg.Store.Type),
		KeyPrefix:        s.cfg.Store.KeyPrefix,
		OutcomeRetention: s.cfg.Store.OutcomeRetention,
		Redis: hitl.RedisOptions{
			Addr:         s.cfg.Redis.Addr,
			Password:     s.cfg.Redis.Password,
			DB:           s.cfg.Redis.DB,
			PoolSize:     s.cfg.Redis.PoolSize,
			TLS:          s.cfg.Redis.TLS,
			MinIdleConns: s.cfg.Redis.MinIdleConns,
		},
	}, s.logger)
	if err != nil {
		return fmt.Errorf("failed to create interaction store: %w", err)
	}

	managerOpts := []hitl.ManagerOption{hitl.WithMetrics(s.collector)}
	if s.cfg.History.Enabled {
		if err := s.initHistory(); err != nil {
			return err
		}
		managerOpts = append(managerOpts, hitl.WithHistory(s.history))
	}
	s.manager = hitl.NewManager(s.store, s.logger, managerOpts...)

	s.handler = s.buildHandler(ctx)

	s.httpManager = server.NewManager(s.handler, server.Config{
		Name:            "api",
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     s.cfg.Server.IdleTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}, s.logger)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	s.metricsManager = server.NewManager(metricsMux, server.Config{
		Name:            "metrics",
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.ReadTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}, s.logger)

	s.logger.Info("Server initialized",
		zap.String("store", s.cfg.Store.Type),
		zap.Bool("history_enabled", s.cfg.History.Enabled),
		zap.Bool("telemetry_enabled", s.telemetry != nil && s.telemetry.Enabled()),
	)
	return nil
}

func (s *Server) initHistory() error {
	db, err := database.Open(s.cfg.History.Driver, s.cfg.History.DSN())
	if err != nil {
		return fmt.Errorf("failed to open history database: %w", err)
	}

	poolCfg := database.DefaultPoolConfig()
	if s.cfg.History.MaxOpenConns > 0 {
		poolCfg.MaxOpenConns = s.cfg.History.MaxOpenConns
	}
	if s.cfg.History.MaxIdleConns > 0 {
		poolCfg.MaxIdleConns = s.cfg.History.MaxIdleConns
	}
	if s.cfg.History.ConnMaxLifetime > 0 {
		poolCfg.ConnMaxLifetime = s.cfg.History.ConnMaxLifetime
	}
	s.pool, err = database.NewPoolManager(db, poolCfg, s.logger, database.WithStatsRecorder(s.collector))
	if err != nil {
		return fmt.Errorf("failed to create history pool: %w", err)
	}

	gh, err := hitl.NewGormHistory(s.pool.DB())
	if err != nil {
		return err
	}
	s.history = &instrumentedHistory{
		history:   gh,
		collector: s.collector,
		database:  poolCfg.Name,
	}
	s.logger.Info("History recording enabled", zap.String("driver", s.cfg.History.Driver))
	return nil
}

// buildHandler 注册路由并构建中间件链
func (s *Server) buildHandler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()

	health := handlers.NewHealthHandler(handlers.VersionInfo{
		Version:   Version,
		BuildTime: BuildTime,
		GitCommit: GitCommit,
	}, s.logger)
	health.RegisterCheck(handlers.NewPingCheck("store", s.manager.Ping))
	if s.pool != nil {
		health.RegisterCheck(handlers.NewPingCheck("history", s.pool.Ping))
	}
	health.Register(mux)

	interactionOpts := []handlers.InteractionHandlerOption{
		handlers.WithOriginPatterns(s.cfg.Server.CORSAllowedOrigins),
	}
	if s.history != nil {
		interactionOpts = append(interactionOpts, handlers.WithHistoryReader(s.history))
	}
	handlers.NewInteractionHandler(s.manager, s.logger, interactionOpts...).Register(mux)

	return Chain(mux,
		Recovery(s.logger),
		RequestID(),
		OTelTracing(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.collector),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		RateLimiter(ctx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger),
	)
}

// =============================================================================
// 🚀 运行与关闭
// =============================================================================

// Run 启动 HTTP、Metrics 服务器和配置监听，直到 ctx 结束或任一服务失败。
func (s *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return s.httpManager.Run(gctx) })
	g.Go(func() error { return s.metricsManager.Run(gctx) })

	if s.loader != nil && s.loader.ConfigPath() != "" {
		watcher, err := config.NewWatcher(s.loader, s.cfg, config.WithWatcherLogger(s.logger))
		if err != nil {
			return err
		}
		watcher.OnReload(s.applyReload)
		g.Go(func() error { return watcher.Run(gctx) })
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.Bool("config_watch", s.loader != nil && s.loader.ConfigPath() != ""),
	)

	return g.Wait()
}

// applyReload 应用可热更新的配置项。目前只有日志级别，其他项需要重启。
func (s *Server) applyReload(oldCfg, newCfg *config.Config) {
	if oldCfg.Log.Level != newCfg.Log.Level {
		s.level.SetLevel(parseLevel(newCfg.Log.Level))
		s.logger.Info("log level changed",
			zap.String("from", oldCfg.Log.Level),
			zap.String("to", newCfg.Log.Level),
		)
	}
	if !reflect.DeepEqual(oldCfg.Server, newCfg.Server) || oldCfg.Store != newCfg.Store || oldCfg.History != newCfg.History {
		s.logger.Warn("configuration changed, restart required to apply server, store or history settings")
	}
}

// Close 释放存储、数据库连接与遥测资源，可重复调用。
func (s *Server) Close() {
	if s.manager != nil {
		if err := s.manager.Close(); err != nil {
			s.logger.Error("interaction store close error", zap.Error(err))
		}
		s.manager = nil
		s.store = nil
	} else if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Error("interaction store close error", zap.Error(err))
		}
		s.store = nil
	}
	if s.pool != nil {
		if err := s.pool.Close(); err != nil {
			s.logger.Error("history pool close error", zap.Error(err))
		}
		s.pool = nil
	}
	if s.telemetry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.telemetry.Shutdown(ctx); err != nil {
			s.logger.Error("telemetry shutdown error", zap.Error(err))
		}
		s.telemetry = nil
	}
}

// =============================================================================
// 🗄️ 审计记录指标包装
// =============================================================================

// instrumentedHistory 为审计读写记录查询耗时。
type instrumentedHistory struct {
	history   *hitl.GormHistory
	collector *metrics.Collector
	database  string
}

func (h *instrumentedHistory) Record(ctx context.Context, outcome *hitl.Outcome) error {
	start := time.Now()
	err := h.history.Record(ctx, outcome)
	h.collector.RecordDBQuery(h.database, "insert", time.Since(start))
	return err
}

func (h *instrumentedHistory) Recent(ctx context.Context, limit int) ([]hitl.InteractionRecord, error) {
	start := time.Now()
	records, err := h.history.Recent(ctx, limit)
	h.collector.RecordDBQuery(h.database, "select", time.Since(start))
	return records, err
}
