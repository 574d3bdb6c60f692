package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RiskLens/pkg/model"
)

func washAlert() model.Alert {
	return model.Alert{
		AlertID:       "alert-1",
		Address:       "0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb0",
		Chain:         "ethereum",
		Pool:          "0x88e6A0c2dDD26FEEb64F039a2c41296FcB3f5640",
		Pair:          "WETH/USDC",
		TimeWindowSec: 300,
		PatternType:   model.PatternWashTrading,
		Score:         0.87,
		Features: model.Features{
			"counterparty_diversity": 2,
			"roundtrip_count":        15,
			"total_volume_usd":       125000,
			"self_trade_ratio":       0.93,
		},
		DetectedAt: time.Date(2026, 2, 25, 10, 30, 0, 0, time.UTC),
	}
}

func rule(id string, action model.ActionType, priority int, conditions model.ConditionSpec, patterns ...model.PatternType) model.RuleDefinition {
	if len(patterns) == 0 {
		patterns = []model.PatternType{model.PatternWashTrading}
	}
	return model.RuleDefinition{
		RuleID:       id,
		Name:         id,
		PatternTypes: patterns,
		Conditions:   conditions,
		Action:       action,
		Priority:     priority,
		Enabled:      true,
	}
}

func mustEvaluator(t *testing.T, rules ...model.RuleDefinition) *RuleEvaluator {
	t.Helper()
	evaluator, err := NewRuleEvaluator(rules)
	require.NoError(t, err)
	return evaluator
}

func TestRuleEvaluator_HigherPriorityWins(t *testing.T) {
	conditions := model.ConditionSpec{"score": {">": 0.5}}
	evaluator := mustEvaluator(t,
		rule("low", model.ActionWarn, 1, conditions),
		rule("high", model.ActionFreeze, 10, conditions),
	)

	action, ok := evaluator.Evaluate(washAlert())
	require.True(t, ok)
	assert.Equal(t, model.ActionFreeze, action)

	rules := evaluator.Rules()
	require.Len(t, rules, 2)
	assert.Equal(t, "high", rules[0].RuleID)
}

func TestRuleEvaluator_EqualPriorityKeepsInputOrder(t *testing.T) {
	conditions := model.ConditionSpec{"score": {">": 0.5}}
	evaluator := mustEvaluator(t,
		rule("first", model.ActionEscalate, 5, conditions),
		rule("second", model.ActionWarn, 5, conditions),
	)

	matched, ok := evaluator.Match(washAlert())
	require.True(t, ok)
	assert.Equal(t, "first", matched.RuleID)
}

func TestRuleEvaluator_DisabledRuleNeverMatches(t *testing.T) {
	disabled := rule("disabled", model.ActionFreeze, 100, model.ConditionSpec{"score": {">": 0.1}})
	disabled.Enabled = false
	evaluator := mustEvaluator(t, disabled)

	_, ok := evaluator.Evaluate(washAlert())
	assert.False(t, ok)
}

func TestRuleEvaluator_PatternScoping(t *testing.T) {
	evaluator := mustEvaluator(t,
		rule("sandwich-only", model.ActionEscalate, 10, model.ConditionSpec{"score": {">": 0.1}}, model.PatternSandwichAttack),
	)

	for _, p := range model.AllPatternTypes() {
		alert := washAlert()
		alert.PatternType = p
		_, ok := evaluator.Evaluate(alert)
		assert.Equal(t, p == model.PatternSandwichAttack, ok, "pattern %s", p)
	}
}

func TestRuleEvaluator_AllConditionsMustHold(t *testing.T) {
	evaluator := mustEvaluator(t, rule("r", model.ActionFreeze, 1, model.ConditionSpec{
		"score":                           {">": 0.8},
		"features.counterparty_diversity": {"<": 3},
		"features.total_volume_usd":       {">": 200000},
	}))

	_, ok := evaluator.Evaluate(washAlert())
	assert.False(t, ok, "volume condition fails")

	alert := washAlert()
	alert.Features["total_volume_usd"] = 250000
	_, ok = evaluator.Evaluate(alert)
	assert.True(t, ok)
}

func TestRuleEvaluator_MissingFieldIsNoMatch(t *testing.T) {
	evaluator := mustEvaluator(t,
		rule("missing-feature", model.ActionFreeze, 10, model.ConditionSpec{"features.not_there": {"!=": 1}}),
		rule("missing-top", model.ActionFreeze, 9, model.ConditionSpec{"no_such_field": {"<": 100}}),
		rule("through-scalar", model.ActionFreeze, 8, model.ConditionSpec{"score.value": {">": 0}}),
	)

	assert.NotPanics(t, func() {
		_, ok := evaluator.Evaluate(washAlert())
		assert.False(t, ok)
	})
}

func TestRuleEvaluator_NullFeatureIsNoMatch(t *testing.T) {
	evaluator := mustEvaluator(t, rule("null", model.ActionWarn, 1, model.ConditionSpec{"features.label": {"!=": "x"}}))

	alert := washAlert()
	alert.Features["label"] = nil
	_, ok := evaluator.Evaluate(alert)
	assert.False(t, ok)

	fv := resolveField(alert, "features.label")
	assert.True(t, fv.present)
	assert.Nil(t, fv.value)
	assert.False(t, resolveField(alert, "features.other").present)
}

func TestRuleEvaluator_Operators(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		op      string
		operand any
		want    bool
	}{
		{"gt true", "score", ">", 0.8, true},
		{"gt false", "score", ">", 0.87, false},
		{"lt", "features.counterparty_diversity", "<", 3, true},
		{"gte boundary", "features.roundtrip_count", ">=", 15, true},
		{"lte boundary", "features.roundtrip_count", "<=", 15, true},
		{"lte false", "features.roundtrip_count", "<=", 14, false},
		{"eq number", "time_window_sec", "==", 300, true},
		{"eq string", "chain", "==", "ethereum", true},
		{"neq string", "chain", "!=", "bsc", true},
		{"neq same", "pattern_type", "!=", "WASH_TRADING", false},
		{"in", "chain", "in", []any{"bsc", "ethereum"}, true},
		{"in numbers", "features.counterparty_diversity", "in", []float64{1, 2, 3}, true},
		{"in miss", "pair", "in", []string{"WBTC/USDC"}, false},
		{"not_in", "pattern_type", "not_in", []any{"SANDWICH_ATTACK"}, true},
		{"not_in hit", "pattern_type", "not_in", []any{"WASH_TRADING"}, false},
		{"between inclusive low", "score", "between", []any{0.87, 0.9}, true},
		{"between inclusive high", "score", "between", []any{0.6, 0.87}, true},
		{"between outside", "score", "between", []any{0.6, 0.8}, false},
		{"string ordering", "detected_at", ">=", "2026-01-01T00:00:00Z", true},
		{"type mismatch ordered", "chain", ">", 5, false},
		{"type mismatch not equal", "chain", "!=", 5, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evaluator := mustEvaluator(t, rule("r", model.ActionWarn, 1, model.ConditionSpec{
				tt.path: {tt.op: tt.operand},
			}))
			_, ok := evaluator.Evaluate(washAlert())
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestRuleEvaluator_NestedFeaturePath(t *testing.T) {
	evaluator := mustEvaluator(t, rule("nested", model.ActionWarn, 1, model.ConditionSpec{
		"features.venue.name": {"==": "uniswap"},
	}))

	alert := washAlert()
	alert.Features["venue"] = map[string]any{"name": "uniswap"}
	_, ok := evaluator.Evaluate(alert)
	assert.True(t, ok)
}

func TestRuleEvaluator_EmptyOperatorSetChecksPresence(t *testing.T) {
	evaluator := mustEvaluator(t, rule("present", model.ActionWarn, 1, model.ConditionSpec{
		"pool": {},
	}))

	_, ok := evaluator.Evaluate(washAlert())
	assert.True(t, ok)

	alert := washAlert()
	alert.Pool = ""
	_, ok = evaluator.Evaluate(alert)
	assert.False(t, ok)
}

func TestNewRuleEvaluator_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name string
		rule model.RuleDefinition
		err  error
	}{
		{"unknown operator", rule("r", model.ActionWarn, 1, model.ConditionSpec{"score": {"~=": 1}}), ErrUnknownOperator},
		{"between scalar", rule("r", model.ActionWarn, 1, model.ConditionSpec{"score": {"between": 0.5}}), ErrInvalidOperand},
		{"between three", rule("r", model.ActionWarn, 1, model.ConditionSpec{"score": {"between": []any{1, 2, 3}}}), ErrInvalidOperand},
		{"between mixed", rule("r", model.ActionWarn, 1, model.ConditionSpec{"score": {"between": []any{1, "z"}}}), ErrInvalidOperand},
		{"in scalar", rule("r", model.ActionWarn, 1, model.ConditionSpec{"chain": {"in": "ethereum"}}), ErrInvalidOperand},
		{"gt bool", rule("r", model.ActionWarn, 1, model.ConditionSpec{"score": {">": true}}), ErrInvalidOperand},
		{"bad action", rule("r", model.ActionType("BLOCK"), 1, model.ConditionSpec{"score": {">": 1}}), ErrInvalidRule},
		{"bad pattern", rule("r", model.ActionWarn, 1, nil, model.PatternType("FRONT_RUN")), ErrInvalidRule},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRuleEvaluator([]model.RuleDefinition{tt.rule})
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestDefaultRules(t *testing.T) {
	evaluator := NewDefaultRuleEvaluator()
	require.Len(t, evaluator.Rules(), 5)

	action, ok := evaluator.Evaluate(washAlert())
	require.True(t, ok)
	assert.Equal(t, model.ActionFreeze, action)

	sandwich := washAlert()
	sandwich.PatternType = model.PatternSandwichAttack
	sandwich.Score = 0.9
	sandwich.Features = model.Features{"total_volume_usd": 60000}
	action, ok = evaluator.Evaluate(sandwich)
	require.True(t, ok)
	assert.Equal(t, model.ActionEscalate, action)

	sandwich.Score = 0.75
	action, ok = evaluator.Evaluate(sandwich)
	require.True(t, ok)
	assert.Equal(t, model.ActionWarn, action)

	medium := washAlert()
	medium.Score = 0.7
	medium.Features = model.Features{"counterparty_diversity": 4}
	action, ok = evaluator.Evaluate(medium)
	require.True(t, ok)
	assert.Equal(t, model.ActionWarn, action)

	low := washAlert()
	low.PatternType = model.PatternBurstTrading
	low.Score = 0.3
	action, ok = evaluator.Evaluate(low)
	require.True(t, ok)
	assert.Equal(t, model.ActionObserve, action)

	unknown := washAlert()
	unknown.PatternType = model.PatternUnknown
	unknown.Score = 0.3
	_, ok = evaluator.Evaluate(unknown)
	assert.False(t, ok)
}
