package engine

import (
	"sync/atomic"

	"RiskLens/pkg/model"
)

// Provider 持有当前生效的决策引擎，规则热加载时整体替换
type Provider struct {
	current atomic.Pointer[DecisionEngine]
}

// NewProvider 创建 Provider
func NewProvider(initial *DecisionEngine) *Provider {
	if initial == nil {
		initial = NewDecisionEngine(nil, nil)
	}
	p := &Provider{}
	p.current.Store(initial)
	return p
}

// Current 当前引擎
func (p *Provider) Current() *DecisionEngine {
	return p.current.Load()
}

// Swap 替换引擎，返回旧引擎
func (p *Provider) Swap(next *DecisionEngine) *DecisionEngine {
	if next == nil {
		return p.Current()
	}
	return p.current.Swap(next)
}

// EvaluateAlert 使用当前引擎评估告警
func (p *Provider) EvaluateAlert(alert model.Alert) model.Decision {
	return p.Current().EvaluateAlert(alert)
}
