package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"RiskLens/pkg/api"
	"RiskLens/pkg/config"
	"RiskLens/pkg/database"
	"RiskLens/pkg/engine"
	"RiskLens/pkg/logging"
	"RiskLens/pkg/messaging"
	"RiskLens/pkg/metrics"
	"RiskLens/pkg/monitor"
	"RiskLens/pkg/pipeline"
	"RiskLens/pkg/repository"
	"RiskLens/pkg/scheduler"
)

func main() {
	// 加载配置
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v\n", err)
	}

	logger := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	logger.Info("启动API服务...", "name", cfg.App.Name, "version", cfg.App.Version, "env", cfg.App.Env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("API服务异常退出", "error", err)
		os.Exit(1)
	}
	logger.Info("API服务已关闭")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	profile, err := engine.ParseProfile(cfg.Engine.ScorerProfile)
	if err != nil {
		return err
	}

	// 加载规则并创建决策引擎
	decisionEngine, ruleSet, err := repository.LoadEngine(cfg.Engine.RulesPath, profile, cfg.Engine.RuleVersion)
	if err != nil {
		return err
	}
	provider := engine.NewProvider(decisionEngine)
	logger.Info("规则加载完成",
		"path", cfg.Engine.RulesPath,
		"from_file", ruleSet.FromFile,
		"rules", len(ruleSet.Rules),
		"rule_version", decisionEngine.RuleVersion(),
		"profile", profile,
	)

	mon := monitor.NewMonitor(func(component, status, message string) {
		logger.Warn("组件状态异常", "component", component, "status", status, "message", message)
	})

	// 决策存储
	var store repository.DecisionStore = repository.NewMemoryStore()
	if cfg.Database.Enabled {
		db, err := database.NewPostgres(ctx, cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.Migrate(ctx); err != nil {
			return err
		}
		store = db.Decisions()
		mon.RegisterComponent("database", db.Ping)
		go metrics.StartDBStatsCollector(ctx, db.SQLDB(), 15*time.Second)
		logger.Info("使用PostgreSQL存储决策", "host", cfg.Database.Host, "dbname", cfg.Database.DBName)
	} else {
		logger.Info("数据库未启用，使用内存存储决策")
	}

	// 决策发布，NATS不可用时只落库
	var publisher pipeline.DecisionPublisher
	if cfg.NATS.URL != "" {
		natsClient, err := messaging.NewNATSClient(
			cfg.NATS.URL,
			cfg.NATS.ClientID+"-api",
			messaging.Streams(cfg.NATS.AlertsSubject, cfg.NATS.DecisionsSubject),
			logger,
		)
		if err != nil {
			logger.Warn("连接NATS失败，决策不会发布", "error", err)
		} else {
			defer natsClient.Close()
			publisher = messaging.NewBus(natsClient, nil, cfg.NATS.AlertsSubject, cfg.NATS.DecisionsSubject)
			mon.RegisterComponent("nats", natsClient.Ping)
		}
	}

	processor := pipeline.NewProcessor(provider, store, publisher, logger)

	// 定时任务
	sched := scheduler.NewScheduler(scheduler.Config{
		RulesPath:   cfg.Engine.RulesPath,
		Profile:     profile,
		RuleVersion: cfg.Engine.RuleVersion,
		ReloadSpec:  cfg.Engine.ReloadCron,
		HealthSpec:  cfg.Engine.HealthCron,
	}, provider, mon, logger)
	if err := sched.Start(); err != nil {
		return err
	}
	defer sched.Stop()

	mon.CheckAll(ctx)

	handlers := api.NewHandlers(provider, processor, store, mon,
		api.ServiceInfo{Name: cfg.App.Name, Version: cfg.App.Version}, logger).
		WithStrictAddress(cfg.API.StrictAddress)

	server := api.NewServer(api.ServerConfig{
		Addr:         cfg.Addr(),
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
	}, logger)
	server.SetupRoutes(handlers)
	return server.Start(ctx)
}
