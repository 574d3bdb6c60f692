package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"RiskLens/pkg/config"
	"RiskLens/pkg/database"
	"RiskLens/pkg/engine"
	"RiskLens/pkg/logging"
	"RiskLens/pkg/messaging"
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
	logger.Info("启动决策引擎...", "version", cfg.App.Version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("决策引擎异常退出", "error", err)
		os.Exit(1)
	}
	logger.Info("正在关闭决策引擎...")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	profile, err := engine.ParseProfile(cfg.Engine.ScorerProfile)
	if err != nil {
		return err
	}

	decisionEngine, _, err := repository.LoadEngine(cfg.Engine.RulesPath, profile, cfg.Engine.RuleVersion)
	if err != nil {
		return err
	}
	provider := engine.NewProvider(decisionEngine)

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
	}

	// 连接NATS
	natsClient, err := messaging.NewNATSClient(
		cfg.NATS.URL,
		cfg.NATS.ClientID+"-engine",
		messaging.Streams(cfg.NATS.AlertsSubject, cfg.NATS.DecisionsSubject),
		logger,
	)
	if err != nil {
		return err
	}
	defer natsClient.Close()

	bus := messaging.NewBus(natsClient, natsClient, cfg.NATS.AlertsSubject, cfg.NATS.DecisionsSubject)
	processor := pipeline.NewProcessor(provider, store, bus, logger)

	// 规则热加载
	sched := scheduler.NewScheduler(scheduler.Config{
		RulesPath:   cfg.Engine.RulesPath,
		Profile:     profile,
		RuleVersion: cfg.Engine.RuleVersion,
		ReloadSpec:  cfg.Engine.ReloadCron,
	}, provider, nil, logger)
	if err := sched.Start(); err != nil {
		return err
	}
	defer sched.Stop()

	// 订阅告警
	if err := bus.SubscribeAlerts(cfg.NATS.Consumer, processor.HandleAlert); err != nil {
		return err
	}
	logger.Info("开始消费告警", "consumer", cfg.NATS.Consumer, "rule_version", decisionEngine.RuleVersion())

	<-ctx.Done()
	return nil
}
