// pkg/model/decision.go
package model

import (
	"fmt"
	"strings"
	"time"
)

// RiskLevel 风险等级，LOW < MEDIUM < HIGH < CRITICAL
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// Rank 等级序号，用于比较大小；未知等级返回 -1
func (l RiskLevel) Rank() int {
	switch l {
	case RiskLow:
		return 0
	case RiskMedium:
		return 1
	case RiskHigh:
		return 2
	case RiskCritical:
		return 3
	}
	return -1
}

// Valid 是否为已知等级
func (l RiskLevel) Valid() bool {
	return l.Rank() >= 0
}

// AllRiskLevels 返回全部风险等级（从低到高）
func AllRiskLevels() []RiskLevel {
	return []RiskLevel{RiskLow, RiskMedium, RiskHigh, RiskCritical}
}

// ParseRiskLevel 解析风险等级（大小写不敏感）
func ParseRiskLevel(s string) (RiskLevel, error) {
	l := RiskLevel(strings.ToUpper(strings.TrimSpace(s)))
	if !l.Valid() {
		return "", fmt.Errorf("未知的风险等级: %q", s)
	}
	return l, nil
}

// ActionType 建议采取的处置动作
type ActionType string

const (
	ActionObserve  ActionType = "OBSERVE"  // 仅观察
	ActionWarn     ActionType = "WARN"     // 标记复核
	ActionFreeze   ActionType = "FREEZE"   // 冻结账户/资金
	ActionEscalate ActionType = "ESCALATE" // 上报合规/法务
)

// Valid 是否为已知动作
func (a ActionType) Valid() bool {
	switch a {
	case ActionObserve, ActionWarn, ActionFreeze, ActionEscalate:
		return true
	}
	return false
}

// AllActions 返回全部动作
func AllActions() []ActionType {
	return []ActionType{ActionObserve, ActionWarn, ActionFreeze, ActionEscalate}
}

// ParseAction 解析动作（大小写不敏感）
func ParseAction(s string) (ActionType, error) {
	a := ActionType(strings.ToUpper(strings.TrimSpace(s)))
	if !a.Valid() {
		return "", fmt.Errorf("未知的处置动作: %q", s)
	}
	return a, nil
}

// Decision 风控引擎针对单条告警给出的决策
type Decision struct {
	DecisionID      string     `json:"decision_id"`
	AlertID         string     `json:"alert_id"`
	Address         string     `json:"address"`
	RiskLevel       RiskLevel  `json:"risk_level"`
	Action          ActionType `json:"action"`
	Confidence      float64    `json:"confidence"`
	RiskScore       float64    `json:"risk_score"`
	Rationale       string     `json:"rationale"`
	EvidenceRefs    []string   `json:"evidence_refs"`
	Recommendations []string   `json:"recommendations"`
	Limitations     []string   `json:"limitations"`
	RuleVersion     string     `json:"rule_version"`
	DecidedAt       time.Time  `json:"decided_at"`
}

// Clone 深拷贝，存储层读写时使用，避免共享切片
func (d Decision) Clone() Decision {
	d.EvidenceRefs = cloneStrings(d.EvidenceRefs)
	d.Recommendations = cloneStrings(d.Recommendations)
	d.Limitations = cloneStrings(d.Limitations)
	return d
}

func cloneStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
