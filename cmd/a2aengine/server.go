package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/a2aengine/agent/checkpoint"
	"github.com/BaSui01/a2aengine/agent/persistence"
	"github.com/BaSui01/a2aengine/agent/session"
	"github.com/BaSui01/a2aengine/config"
	"github.com/BaSui01/a2aengine/internal/database"
	"github.com/BaSui01/a2aengine/internal/keyedmutex"
	"github.com/BaSui01/a2aengine/internal/metrics"
	"github.com/BaSui01/a2aengine/internal/migration"
	"github.com/BaSui01/a2aengine/internal/pool"
	"github.com/BaSui01/a2aengine/internal/server"
	"github.com/BaSui01/a2aengine/internal/telemetry"
)

// dbStatsInterval 连接池指标采集间隔
const dbStatsInterval = 15 * time.Second

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 装配引擎组件并管理其生命周期
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	// 可观测性
	providers *telemetry.Providers
	registry  *prometheus.Registry
	collector *metrics.Collector

	// 存储
	db          *gorm.DB
	dbPool      *database.PoolManager
	stores      *persistence.Stores
	checkpoints checkpoint.Store

	// 会话
	locks    *keyedmutex.KeyedMutex
	jobs     *pool.GoroutinePool
	sessions *session.Manager

	sender      *session.WebhookSender
	httpManager *server.Manager

	// 配置热重载
	configPath string
	logLevel   zap.AtomicLevel
	reloader   *config.Reloader

	// 后台任务生命周期
	bgCancel context.CancelFunc
	wg       sync.WaitGroup

	shutdownOnce sync.Once
}

// ServerOption 服务器可选配置
type ServerOption func(*Server)

// WithConfigReload 监听配置文件，运行时应用日志级别与推送限流的变更
func WithConfigReload(path string, level zap.AtomicLevel) ServerOption {
	return func(s *Server) {
		s.configPath = path
		s.logLevel = level
	}
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, logger *zap.Logger, opts ...ServerOption) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		cfg:    cfg,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 初始化全部组件并启动运维 HTTP 服务器
func (s *Server) Start() error {
	bgCtx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	// 1. 遥测与指标
	if err := s.initObservability(); err != nil {
		return fmt.Errorf("failed to init observability: %w", err)
	}

	// 2. 数据库（仅在 database 任务存储或 sql 检查点后端时打开）
	if err := s.initDatabase(bgCtx); err != nil {
		return fmt.Errorf("failed to init database: %w", err)
	}

	// 3. 任务、消息与推送配置存储
	if err := s.initStores(); err != nil {
		return fmt.Errorf("failed to init stores: %w", err)
	}

	// 4. 检查点存储
	if err := s.initCheckpoints(bgCtx); err != nil {
		return fmt.Errorf("failed to init checkpoints: %w", err)
	}

	// 5. 会话管理器与推送发送器
	s.initSessions()

	// 6. 配置热重载
	if err := s.startReloader(bgCtx); err != nil {
		return fmt.Errorf("failed to start config reloader: %w", err)
	}

	// 7. 运维 HTTP 服务器
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	s.logger.Info("All components started",
		zap.String("addr", s.httpManager.Addr()),
		zap.String("store", s.cfg.Store.Type),
		zap.String("checkpoint_backend", s.cfg.Checkpoint.Backend),
		zap.Bool("database", s.db != nil),
	)
	return nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

func (s *Server) initObservability() error {
	providers, err := telemetry.Init(s.cfg.Telemetry, s.logger)
	if err != nil {
		// 追踪不可用时继续以 noop 运行
		s.logger.Warn("failed to initialize telemetry", zap.Error(err))
		providers = &telemetry.Providers{}
	}
	s.providers = providers

	s.registry = prometheus.NewRegistry()
	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s.collector = metrics.NewCollectorWithRegisterer(s.cfg.Metrics.Namespace, s.registry, s.logger)
	return nil
}

func (s *Server) needsDatabase() bool {
	return s.cfg.Store.Type == string(persistence.StoreTypeDatabase) || s.cfg.Checkpoint.Backend == "sql"
}

func (s *Server) initDatabase(ctx context.Context) error {
	if !s.needsDatabase() {
		return nil
	}

	db, err := database.Open(s.cfg.Database, s.logger)
	if err != nil {
		return err
	}
	s.db = db

	pm, err := database.NewPoolManager(db, database.PoolConfigFrom(s.cfg.Database), s.logger)
	if err != nil {
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			_ = sqlDB.Close()
		}
		return err
	}
	s.dbPool = pm

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.collectDBStats(ctx)
	}()
	return nil
}

// collectDBStats 定期把连接池状态写入指标
func (s *Server) collectDBStats(ctx context.Context) {
	ticker := time.NewTicker(dbStatsInterval)
	defer ticker.Stop()

	record := func() {
		stats := s.dbPool.GetStats()
		s.collector.RecordDBConnections(s.cfg.Database.Driver, stats.OpenConnections, stats.Idle)
	}
	record()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			record()
		}
	}
}

func (s *Server) initStores() error {
	stores, err := persistence.NewStores(storeConfigFrom(s.cfg), s.db)
	if err != nil {
		return err
	}
	s.stores = stores
	return nil
}

// storeConfigFrom 将应用配置映射为存储工厂配置
func storeConfigFrom(cfg *config.Config) persistence.StoreConfig {
	out := persistence.DefaultStoreConfig()
	if cfg.Store.Type != "" {
		out.Type = persistence.StoreType(cfg.Store.Type)
	}
	out.Redis.Addr = cfg.Redis.Addr
	out.Redis.Password = cfg.Redis.Password
	out.Redis.DB = cfg.Redis.DB
	out.Redis.TLS = cfg.Redis.TLS
	out.Redis.TLSServerName = cfg.Redis.TLSServerName
	if cfg.Redis.PoolSize > 0 {
		out.Redis.PoolSize = cfg.Redis.PoolSize
	}
	if cfg.Store.KeyPrefix != "" {
		out.Redis.KeyPrefix = cfg.Store.KeyPrefix
	}
	out.Database.AutoMigrate = cfg.Store.AutoMigrate
	return out
}

func (s *Server) initCheckpoints(ctx context.Context) error {
	opts := []checkpoint.Option{
		checkpoint.WithLogger(s.logger),
		checkpoint.WithMetrics(s.collector),
	}

	var migrator checkpoint.Migrator
	if s.cfg.Checkpoint.Backend == "sql" {
		m, err := migration.NewMigratorFromDatabaseConfig(s.cfg.Database, s.logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := m.Close(); err != nil {
				s.logger.Warn("failed to close migrator", zap.Error(err))
			}
		}()
		migrator = m
	}

	store, err := checkpoint.NewStore(ctx, s.cfg.Checkpoint, s.db, migrator, opts...)
	if err != nil {
		return err
	}
	s.checkpoints = store

	if s.cfg.Checkpoint.CleanupEnabled && s.cfg.Checkpoint.CleanupInterval > 0 {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			checkpoint.RunCleanup(ctx, store, s.cfg.Checkpoint.CleanupInterval, s.logger)
		}()
	}
	return nil
}

func (s *Server) initSessions() {
	s.locks = keyedmutex.New()
	s.jobs = pool.NewGoroutinePool(pool.GoroutinePoolConfig{
		MaxWorkers: s.cfg.Notification.Workers,
		QueueSize:  s.cfg.Notification.QueueSize,
		PanicHandler: func(r any) {
			s.logger.Error("push notification job panicked", zap.Any("panic", r))
		},
	})

	opts := s.sessionOptions()
	s.sender = session.NewWebhookSender(session.WebhookSenderConfigFrom(s.cfg.Notification), opts...)

	s.sessions = session.NewManager(session.ManagerConfig{
		PushConfigs: s.stores.PushConfigs,
		Sender:      s.sender,
		Jobs:        s.jobs,
		SendTimeout: s.cfg.Notification.SendTimeout,
	}, opts...)
}

func (s *Server) sessionOptions() []session.Option {
	return []session.Option{
		session.WithLogger(s.logger),
		session.WithMetrics(s.collector),
		session.WithTracer(s.providers.Tracer()),
	}
}

func (s *Server) startReloader(ctx context.Context) error {
	if s.configPath == "" {
		return nil
	}

	reloader, err := config.NewReloader(s.configPath, s.cfg, s.logger)
	if err != nil {
		return err
	}
	reloader.OnReload(s.applyConfig)
	s.reloader = reloader

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		reloader.Run(ctx)
	}()
	return nil
}

// applyConfig 应用可热更新的字段，其余变更需重启生效
func (s *Server) applyConfig(_, next *config.Config, changes []config.ConfigChange) {
	for _, c := range changes {
		switch c.Path {
		case "log.level":
			s.logLevel.SetLevel(parseLevel(next.Log.Level))
		case "notification.rate_limit", "notification.burst":
			s.sender.SetRateLimit(next.Notification.RateLimit, next.Notification.Burst)
		}
	}
}

// =============================================================================
// 🧩 会话入口
// =============================================================================

// StartSession 为 contextID 创建事件处理器与会话，注册到管理器后启动。
// taskID 可为空，此时会话绑定到第一个上报的任务。
func (s *Server) StartSession(ctx context.Context, contextID, taskID string, work session.Work) (*session.Session, error) {
	if s.sessions == nil {
		return nil, errors.New("server not started")
	}

	processor, err := session.NewEventProcessor(session.ProcessorConfig{
		ContextID: contextID,
		TaskID:    taskID,
		Tasks:     s.stores.Tasks,
		Messages:  s.stores.Messages,
		Locks:     s.locks,
	}, s.sessionOptions()...)
	if err != nil {
		return nil, err
	}

	sess := session.New(processor, work)
	if err := s.sessions.AddSession(sess); err != nil {
		return nil, err
	}
	if err := sess.Start(ctx); err != nil {
		return nil, err
	}
	return sess, nil
}

// Stores 返回任务、消息与推送配置存储
func (s *Server) Stores() *persistence.Stores { return s.stores }

// Checkpoints 返回检查点存储
func (s *Server) Checkpoints() checkpoint.Store { return s.checkpoints }

// Sessions 返回会话管理器
func (s *Server) Sessions() *session.Manager { return s.sessions }

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

func (s *Server) startHTTPServer() error {
	opts := server.HandlerOptions{
		Checks:  s.healthChecks(),
		Details: s.healthDetails,
		Metrics: s.collector,
		Version: Version,
	}
	if s.cfg.Metrics.Enabled {
		opts.Gatherer = s.registry
	}

	handler := Chain(server.NewHandler(opts, s.logger),
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		OTelTracing(s.providers.Tracer()),
		RequestLogger(s.logger),
	)

	s.httpManager = server.NewManager(handler, server.ConfigFrom(s.cfg.Server), s.logger)
	return s.httpManager.Start()
}

func (s *Server) healthChecks() map[string]server.HealthCheck {
	checks := map[string]server.HealthCheck{
		"stores": s.stores.Ping,
		"checkpoints": func(ctx context.Context) error {
			_, err := s.checkpoints.GetCheckpointCount(ctx, "_health")
			return err
		},
	}
	if s.dbPool != nil {
		checks["database"] = s.dbPool.Ping
	}
	return checks
}

func (s *Server) healthDetails() map[string]any {
	details := map[string]any{
		"active_sessions": s.sessions.ActiveSessions(),
		"locked_tasks":    s.locks.Len(),
		"notifier":        s.jobs.Stats(),
	}
	if s.dbPool != nil {
		details["database"] = s.dbPool.GetStats()
	}
	return details
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 等待关闭信号或服务器错误，然后优雅关闭
func (s *Server) WaitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		s.logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
	case err := <-s.httpManager.Errors():
		s.logger.Error("HTTP server error", zap.Error(err))
	}

	s.Shutdown()
}

// Shutdown 按依赖逆序关闭所有组件，可重复调用
func (s *Server) Shutdown() {
	s.shutdownOnce.Do(s.shutdown)
}

func (s *Server) shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	timeout := s.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// 1. 关闭 HTTP 服务器
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	// 2. 取消会话并等待推送投递
	if s.sessions != nil {
		if err := s.sessions.Shutdown(ctx); err != nil {
			s.logger.Error("Session manager shutdown error", zap.Error(err))
		}
	}
	if s.jobs != nil {
		s.jobs.Close()
	}

	// 3. 停止后台任务
	if s.bgCancel != nil {
		s.bgCancel()
	}
	s.wg.Wait()

	// 4. 关闭存储
	if s.checkpoints != nil {
		if err := s.checkpoints.Close(); err != nil {
			s.logger.Error("Checkpoint store close error", zap.Error(err))
		}
	}
	if s.stores != nil {
		if err := s.stores.Close(); err != nil {
			s.logger.Error("Store close error", zap.Error(err))
		}
	}
	if s.dbPool != nil {
		if err := s.dbPool.Close(); err != nil {
			s.logger.Error("Database close error", zap.Error(err))
		}
	}

	// 5. 刷新遥测数据
	if s.providers != nil {
		if err := s.providers.Shutdown(ctx); err != nil {
			s.logger.Error("Telemetry shutdown error", zap.Error(err))
		}
	}

	s.logger.Info("Graceful shutdown completed")
}
