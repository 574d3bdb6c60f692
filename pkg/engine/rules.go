package engine

import (
	"RiskLens/pkg/model"
)

// DefaultRules 内置规则集，覆盖常见场景
func DefaultRules() []model.RuleDefinition {
	return []model.RuleDefinition{
		{
			RuleID:       "wash-trading-freeze",
			Name:         "High-Confidence Wash Trading - Freeze",
			Description:  "Freeze accounts with high wash trading score and low counterparty diversity",
			PatternTypes: []model.PatternType{model.PatternWashTrading, model.PatternRoundtrip},
			Conditions: model.ConditionSpec{
				"score":                           {">": 0.8},
				"features.counterparty_diversity": {"<": 3},
				"features.total_volume_usd":       {">": 100000},
			},
			Action:   model.ActionFreeze,
			Priority: 10,
			Enabled:  true,
		},
		{
			RuleID:       "sandwich-escalate",
			Name:         "High-Confidence Sandwich Attack - Escalate",
			Description:  "Escalate high-confidence sandwich attacks to compliance",
			PatternTypes: []model.PatternType{model.PatternSandwichAttack},
			Conditions: model.ConditionSpec{
				"score":                     {">": 0.85},
				"features.total_volume_usd": {">": 50000},
			},
			Action:   model.ActionEscalate,
			Priority: 10,
			Enabled:  true,
		},
		{
			RuleID:       "wash-trading-warn",
			Name:         "Medium-Confidence Wash Trading - Warn",
			Description:  "Flag accounts with medium wash trading score for review",
			PatternTypes: []model.PatternType{model.PatternWashTrading, model.PatternRoundtrip},
			Conditions: model.ConditionSpec{
				"score":                           {"between": []any{0.6, 0.8}},
				"features.counterparty_diversity": {"<": 5},
			},
			Action:   model.ActionWarn,
			Priority: 5,
			Enabled:  true,
		},
		{
			RuleID:       "sandwich-warn",
			Name:         "Medium-Confidence Sandwich Attack - Warn",
			Description:  "Flag medium-confidence sandwich attacks for review",
			PatternTypes: []model.PatternType{model.PatternSandwichAttack},
			Conditions: model.ConditionSpec{
				"score": {"between": []any{0.7, 0.85}},
			},
			Action:   model.ActionWarn,
			Priority: 5,
			Enabled:  true,
		},
		{
			RuleID:      "low-confidence-observe",
			Name:        "Low-Confidence Patterns - Observe",
			Description: "Monitor low-confidence patterns without action",
			PatternTypes: []model.PatternType{
				model.PatternWashTrading,
				model.PatternSandwichAttack,
				model.PatternRoundtrip,
				model.PatternVolumeInflation,
				model.PatternBurstTrading,
			},
			Conditions: model.ConditionSpec{
				"score": {"<": 0.6},
			},
			Action:   model.ActionObserve,
			Priority: 1,
			Enabled:  true,
		},
	}
}

// NewDefaultRuleEvaluator 使用内置规则集创建评估器
func NewDefaultRuleEvaluator() *RuleEvaluator {
	evaluator, err := NewRuleEvaluator(DefaultRules())
	if err != nil {
		// 内置规则在测试中全部校验过
		panic(err)
	}
	return evaluator
}
