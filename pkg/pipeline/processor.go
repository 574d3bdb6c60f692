package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"RiskLens/pkg/metrics"
	"RiskLens/pkg/model"
	"RiskLens/pkg/repository"
)

// Evaluator 告警评估，engine.DecisionEngine 与 engine.Provider 都满足
type Evaluator interface {
	EvaluateAlert(alert model.Alert) model.Decision
}

// DecisionPublisher 决策下游发布
type DecisionPublisher interface {
	PublishDecision(ctx context.Context, decision model.Decision) error
}

// Processor 告警处理流程：评估、落库、发布
type Processor struct {
	evaluator Evaluator
	store     repository.DecisionStore
	publisher DecisionPublisher
	logger    *slog.Logger
}

// NewProcessor 创建处理流程；publisher 可为 nil
func NewProcessor(evaluator Evaluator, store repository.DecisionStore, publisher DecisionPublisher, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		evaluator: evaluator,
		store:     store,
		publisher: publisher,
		logger:    logger,
	}
}

// Process 评估告警并保存决策。
// 决策保存成功后发布失败只记录日志，不影响返回
func (p *Processor) Process(ctx context.Context, alert model.Alert) (model.Decision, error) {
	start := time.Now()
	decision := p.evaluator.EvaluateAlert(alert)
	metrics.ObserveDecision(decision, time.Since(start))

	if err := p.store.Save(ctx, decision, alert.Normalize()); err != nil {
		return model.Decision{}, fmt.Errorf("保存决策失败: %w", err)
	}

	if p.publisher != nil {
		if err := p.publisher.PublishDecision(ctx, decision); err != nil {
			p.logger.Warn("发布决策失败", "decision_id", decision.DecisionID, "error", err)
		}
	}

	p.logger.Info("告警评估完成",
		"alert_id", decision.AlertID,
		"decision_id", decision.DecisionID,
		"address", decision.Address,
		"risk_level", decision.RiskLevel,
		"action", decision.Action,
		"risk_score", decision.RiskScore,
		"rule_version", decision.RuleVersion,
	)
	return decision, nil
}

// HandleAlert 适配消息订阅回调
func (p *Processor) HandleAlert(ctx context.Context, alert model.Alert) error {
	if _, err := p.Process(ctx, alert); err != nil {
		metrics.AlertsConsumedTotal.WithLabelValues("failure").Inc()
		return err
	}
	metrics.AlertsConsumedTotal.WithLabelValues("success").Inc()
	return nil
}
