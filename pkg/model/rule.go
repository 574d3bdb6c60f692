// pkg/model/rule.go
package model

// ConditionSpec 规则条件：字段路径 -> {操作符: 操作数}
//
// 例如:
//
//	{
//	  "score": {">": 0.8},
//	  "features.counterparty_diversity": {"<": 3},
//	}
type ConditionSpec map[string]map[string]any

// RuleDefinition 风控规则定义
type RuleDefinition struct {
	RuleID       string        `yaml:"id" json:"rule_id"`
	Name         string        `yaml:"name" json:"name"`
	Description  string        `yaml:"description" json:"description"`
	PatternTypes []PatternType `yaml:"pattern_types" json:"pattern_types"`
	Conditions   ConditionSpec `yaml:"conditions" json:"conditions"`
	Action       ActionType    `yaml:"action" json:"action"`
	Priority     int           `yaml:"priority" json:"priority"`
	Enabled      bool          `yaml:"enabled" json:"enabled"`
}

// AppliesTo 规则是否适用于该模式类别
func (r RuleDefinition) AppliesTo(p PatternType) bool {
	for _, pt := range r.PatternTypes {
		if pt == p {
			return true
		}
	}
	return false
}
