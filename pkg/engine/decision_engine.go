// pkg/engine/decision_engine.go
package engine

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"RiskLens/pkg/model"
)

// DefaultRuleVersion 未指定规则版本时使用
const DefaultRuleVersion = "v1.0.0"

// DecisionEngine 决策引擎：组合规则评估和风险评分，生成结构化决策。
// 构建后不可变，可被多个 goroutine 并发调用
type DecisionEngine struct {
	evaluator   *RuleEvaluator
	scorer      *RiskScorer
	ruleVersion string
	now         func() time.Time
	newID       func() string
}

// Option 决策引擎可选项
type Option func(*DecisionEngine)

// WithRuleVersion 设置规则版本标签
func WithRuleVersion(version string) Option {
	return func(e *DecisionEngine) {
		if version != "" {
			e.ruleVersion = version
		}
	}
}

// WithClock 替换时间来源
func WithClock(now func() time.Time) Option {
	return func(e *DecisionEngine) {
		e.now = now
	}
}

// WithIDGenerator 替换决策ID生成方式
func WithIDGenerator(newID func() string) Option {
	return func(e *DecisionEngine) {
		e.newID = newID
	}
}

// NewDecisionEngine 创建决策引擎；evaluator 或 scorer 为 nil 时使用默认实现
func NewDecisionEngine(evaluator *RuleEvaluator, scorer *RiskScorer, opts ...Option) *DecisionEngine {
	if evaluator == nil {
		evaluator = NewDefaultRuleEvaluator()
	}
	if scorer == nil {
		scorer = NewDefaultRiskScorer()
	}

	e := &DecisionEngine{
		evaluator:   evaluator,
		scorer:      scorer,
		ruleVersion: DefaultRuleVersion,
		now:         func() time.Time { return time.Now().UTC() },
		newID:       func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Build 按规则集、评分配置和版本构建引擎，规则或权重有误时返回配置错误
func Build(rules []model.RuleDefinition, profile Profile, ruleVersion string, opts ...Option) (*DecisionEngine, error) {
	evaluator, err := NewRuleEvaluator(rules)
	if err != nil {
		return nil, err
	}
	scorer, err := NewRiskScorerForProfile(profile)
	if err != nil {
		return nil, err
	}
	opts = append([]Option{WithRuleVersion(ruleVersion)}, opts...)
	return NewDecisionEngine(evaluator, scorer, opts...), nil
}

// RuleVersion 规则版本标签
func (e *DecisionEngine) RuleVersion() string {
	return e.ruleVersion
}

// Rules 当前生效的规则（按评估顺序）
func (e *DecisionEngine) Rules() []model.RuleDefinition {
	return e.evaluator.Rules()
}

// Weights 当前评分权重
func (e *DecisionEngine) Weights() Weights {
	return e.scorer.Weights()
}

// EvaluateAlert 评估告警并生成决策，无副作用
func (e *DecisionEngine) EvaluateAlert(alert model.Alert) model.Decision {
	alert = alert.Normalize()

	riskScore := e.scorer.CalculateRiskScore(alert)
	riskLevel := e.scorer.DetermineRiskLevel(riskScore)

	action, matched := e.evaluator.Evaluate(alert)
	if !matched {
		action = defaultAction(riskScore)
	}

	return model.Decision{
		DecisionID:      e.newID(),
		AlertID:         alert.AlertID,
		Address:         alert.Address,
		RiskLevel:       riskLevel,
		Action:          action,
		Confidence:      calculateConfidence(alert, riskScore),
		RiskScore:       riskScore,
		Rationale:       generateRationale(alert, riskScore, riskLevel),
		EvidenceRefs:    identifyEvidence(alert),
		Recommendations: generateRecommendations(action),
		Limitations:     documentLimitations(alert),
		RuleVersion:     e.ruleVersion,
		DecidedAt:       e.now(),
	}
}

// defaultAction 没有规则命中时按风险分兜底。
// 阈值与风险等级阈值相互独立
func defaultAction(riskScore float64) model.ActionType {
	switch {
	case riskScore >= 80:
		return model.ActionEscalate
	case riskScore >= 60:
		return model.ActionWarn
	default:
		return model.ActionObserve
	}
}

// calculateConfidence 以检测分为基础，明确案例加分，证据不足减分
func calculateConfidence(alert model.Alert, riskScore float64) float64 {
	confidence := alert.Score

	if riskScore >= 80 || riskScore <= 20 {
		confidence = math.Min(1.0, confidence+0.1)
	}
	if len(alert.EvidenceSamples) < 3 {
		confidence = math.Max(0.0, confidence-0.1)
	}

	return math.RoundToEven(confidence*100) / 100
}

var volumePrinter = message.NewPrinter(language.English)

func generateRationale(alert model.Alert, riskScore float64, riskLevel model.RiskLevel) string {
	parts := []string{
		fmt.Sprintf("%s risk %s: detection score=%.2f, risk score=%.1f",
			riskLevel, alert.PatternType.Readable(), alert.Score, riskScore),
	}

	features := alert.Features
	if v, ok := features["counterparty_diversity"]; ok {
		parts = append(parts, "counterparty diversity="+formatFeature(v))
	}
	if v, ok := features["total_volume_usd"]; ok {
		if n, isNum := model.ToNumber(v); isNum {
			parts = append(parts, volumePrinter.Sprintf("volume=$%.0f USD", n))
		} else {
			parts = append(parts, "volume=$"+formatFeature(v)+" USD")
		}
	}
	if v, ok := features["roundtrip_count"]; ok {
		parts = append(parts, "roundtrips="+formatFeature(v))
	}

	return strings.Join(parts, ", ")
}

func formatFeature(v any) string {
	if v == nil {
		return "null"
	}
	if n, ok := model.ToNumber(v); ok {
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

func identifyEvidence(alert model.Alert) []string {
	evidence := []string{"score", "pattern_type"}

	features := alert.Features
	if features.NumberOr("counterparty_diversity", 100) < 5 {
		evidence = append(evidence, "features.counterparty_diversity")
	}
	if features.NumberOr("total_volume_usd", 0) > 50000 {
		evidence = append(evidence, "features.total_volume_usd")
	}
	if features.NumberOr("roundtrip_count", 0) > 5 {
		evidence = append(evidence, "features.roundtrip_count")
	}
	if features.NumberOr("self_trade_ratio", 0) > 0.7 {
		evidence = append(evidence, "features.self_trade_ratio")
	}

	if n := len(alert.EvidenceSamples); n > 0 {
		evidence = append(evidence, fmt.Sprintf("evidence_samples[0..%d]", n-1))
	}
	return evidence
}

func generateRecommendations(action model.ActionType) []string {
	switch action {
	case model.ActionFreeze:
		return []string{
			"Freeze account pending manual review",
			"Investigate counterparty addresses",
			"Review transaction history for past 30 days",
		}
	case model.ActionEscalate:
		return []string{
			"Escalate to compliance team",
			"Prepare evidence package for review",
			"Consider regulatory reporting requirements",
		}
	case model.ActionWarn:
		return []string{
			"Flag account for enhanced monitoring",
			"Set up alerts for future activity",
			"Review if pattern persists over 7 days",
		}
	default:
		return []string{
			"Continue monitoring",
			"No immediate action required",
		}
	}
}

func documentLimitations(alert model.Alert) []string {
	limitations := []string{}

	if alert.TimeWindowSec < 3600 {
		limitations = append(limitations,
			fmt.Sprintf("Analysis limited to %ds time window", alert.TimeWindowSec))
	}
	if alert.Pool != "" {
		limitations = append(limitations,
			"Analysis limited to single DEX pool",
			"Does not check cross-chain or cross-DEX activity")
	}
	if len(alert.EvidenceSamples) < 5 {
		limitations = append(limitations, "Limited evidence samples available")
	}
	return limitations
}
