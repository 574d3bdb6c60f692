package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"RiskLens/pkg/engine"
	"RiskLens/pkg/metrics"
	"RiskLens/pkg/monitor"
	"RiskLens/pkg/repository"
)

// Config 调度参数
type Config struct {
	RulesPath   string
	Profile     engine.Profile
	RuleVersion string
	ReloadSpec  string // 为空时不热加载规则
	HealthSpec  string // 为空时不做健康检查
}

// Scheduler 任务调度器
type Scheduler struct {
	cron     *cron.Cron
	cfg      Config
	provider *engine.Provider
	monitor  *monitor.Monitor
	logger   *slog.Logger
}

// NewScheduler 创建任务调度器；monitor 可为 nil
func NewScheduler(cfg Config, provider *engine.Provider, mon *monitor.Monitor, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cron:     cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger))),
		cfg:      cfg,
		provider: provider,
		monitor:  mon,
		logger:   logger,
	}
}

// Start 注册任务并启动调度器
func (s *Scheduler) Start() error {
	// 定期重载规则
	if s.cfg.ReloadSpec != "" {
		if _, err := s.cron.AddFunc(s.cfg.ReloadSpec, func() { s.ReloadRules() }); err != nil {
			return fmt.Errorf("注册规则重载任务失败: %w", err)
		}
	}

	// 定期检查组件健康状态
	if s.cfg.HealthSpec != "" && s.monitor != nil {
		if _, err := s.cron.AddFunc(s.cfg.HealthSpec, s.checkHealth); err != nil {
			return fmt.Errorf("注册健康检查任务失败: %w", err)
		}
	}

	s.cron.Start()
	return nil
}

// Stop 停止调度器并等待运行中的任务结束
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// ReloadRules 重新加载规则文件并替换引擎；失败时保留当前引擎
func (s *Scheduler) ReloadRules() error {
	next, set, err := repository.LoadEngine(s.cfg.RulesPath, s.cfg.Profile, s.cfg.RuleVersion)
	metrics.ObserveReload(err)
	if err != nil {
		s.logger.Error("规则重载失败, 继续使用当前规则",
			"path", s.cfg.RulesPath,
			"current_version", s.provider.Current().RuleVersion(),
			"error", err)
		return err
	}

	old := s.provider.Swap(next)
	s.logger.Info("规则已重载",
		"path", s.cfg.RulesPath,
		"from_file", set.FromFile,
		"rules", len(set.Rules),
		"previous_version", old.RuleVersion(),
		"rule_version", next.RuleVersion())
	return nil
}

// checkHealth 检查组件健康状态
func (s *Scheduler) checkHealth() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.monitor.CheckAll(ctx)
}
