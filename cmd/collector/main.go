package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"RiskLens/pkg/collector"
	"RiskLens/pkg/config"
	"RiskLens/pkg/logging"
	"RiskLens/pkg/messaging"
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
	logger.Info("启动告警采集服务...", "data_dir", cfg.Detector.DataDir, "interval", cfg.Detector.PollInterval)

	// 连接NATS
	natsClient, err := messaging.NewNATSClient(
		cfg.NATS.URL,
		cfg.NATS.ClientID+"-collector",
		messaging.Streams(cfg.NATS.AlertsSubject, cfg.NATS.DecisionsSubject),
		logger,
	)
	if err != nil {
		logger.Error("连接NATS失败", "error", err)
		os.Exit(1)
	}
	defer natsClient.Close()

	bus := messaging.NewBus(natsClient, nil, cfg.NATS.AlertsSubject, cfg.NATS.DecisionsSubject)
	source := collector.NewFileSource(cfg.Detector.DataDir, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector.Poll(ctx, source, cfg.Detector.PollInterval, bus.PublishAlert, logger)
	logger.Info("告警采集服务已关闭")
}
