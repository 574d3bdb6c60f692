// pkg/engine/rule_engine.go
package engine

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"RiskLens/pkg/model"
)

// Operator 条件操作符
type Operator int

const (
	opExists Operator = iota // 仅要求字段存在，条件中没有任何操作符时使用
	OpGreater
	OpLess
	OpGreaterEqual
	OpLessEqual
	OpEqual
	OpNotEqual
	OpIn
	OpNotIn
	OpBetween
)

var operatorNames = map[string]Operator{
	">":       OpGreater,
	"<":       OpLess,
	">=":      OpGreaterEqual,
	"<=":      OpLessEqual,
	"==":      OpEqual,
	"!=":      OpNotEqual,
	"in":      OpIn,
	"not_in":  OpNotIn,
	"between": OpBetween,
}

// ParseOperator 解析操作符名称
func ParseOperator(name string) (Operator, error) {
	op, ok := operatorNames[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownOperator, name)
	}
	return op, nil
}

func (o Operator) String() string {
	for name, op := range operatorNames {
		if op == o {
			return name
		}
	}
	return "exists"
}

// condition 编译后的单个条件
type condition struct {
	path   string
	op     Operator
	scalar any
	list   []any
	low    any
	high   any
}

// compileCondition 在加载规则时校验操作符和操作数
func compileCondition(path, opName string, raw any) (condition, error) {
	op, err := ParseOperator(opName)
	if err != nil {
		return condition{}, err
	}
	c := condition{path: path, op: op}

	switch op {
	case OpGreater, OpLess, OpGreaterEqual, OpLessEqual:
		v, ok := orderedScalar(raw)
		if !ok {
			return condition{}, fmt.Errorf("%w: %s %s 需要数字或字符串, 实际为 %T", ErrInvalidOperand, path, opName, raw)
		}
		c.scalar = v
	case OpEqual, OpNotEqual:
		v, ok := comparableScalar(raw)
		if !ok {
			return condition{}, fmt.Errorf("%w: %s %s 不支持 %T", ErrInvalidOperand, path, opName, raw)
		}
		c.scalar = v
	case OpIn, OpNotIn:
		items, ok := toList(raw)
		if !ok {
			return condition{}, fmt.Errorf("%w: %s %s 需要列表", ErrInvalidOperand, path, opName)
		}
		for i, item := range items {
			v, ok := comparableScalar(item)
			if !ok {
				return condition{}, fmt.Errorf("%w: %s %s 第%d个元素不支持 %T", ErrInvalidOperand, path, opName, i, item)
			}
			items[i] = v
		}
		c.list = items
	case OpBetween:
		items, ok := toList(raw)
		if !ok || len(items) != 2 {
			return condition{}, fmt.Errorf("%w: %s between 需要 [min, max]", ErrInvalidOperand, path)
		}
		low, lok := orderedScalar(items[0])
		high, hok := orderedScalar(items[1])
		if !lok || !hok || reflect.TypeOf(low) != reflect.TypeOf(high) {
			return condition{}, fmt.Errorf("%w: %s between 的边界必须同为数字或字符串", ErrInvalidOperand, path)
		}
		c.low, c.high = low, high
	}
	return c, nil
}

// holds 判断字段值是否满足条件；字段缺失或为 null 时不满足
func (c condition) holds(fv fieldValue) bool {
	if !fv.present || fv.value == nil {
		return false
	}
	value := fv.value

	switch c.op {
	case opExists:
		return true
	case OpGreater:
		r, ok := compareOrdered(value, c.scalar)
		return ok && r > 0
	case OpLess:
		r, ok := compareOrdered(value, c.scalar)
		return ok && r < 0
	case OpGreaterEqual:
		r, ok := compareOrdered(value, c.scalar)
		return ok && r >= 0
	case OpLessEqual:
		r, ok := compareOrdered(value, c.scalar)
		return ok && r <= 0
	case OpEqual:
		return equalValues(value, c.scalar)
	case OpNotEqual:
		return !equalValues(value, c.scalar)
	case OpIn:
		return containsValue(c.list, value)
	case OpNotIn:
		return !containsValue(c.list, value)
	case OpBetween:
		lo, lok := compareOrdered(value, c.low)
		hi, hok := compareOrdered(value, c.high)
		return lok && hok && lo >= 0 && hi <= 0
	}
	return false
}

// compiledRule 规则定义及其编译后的条件
type compiledRule struct {
	def        model.RuleDefinition
	conditions []condition
}

// matches 所有字段的所有条件都成立才算命中
func (r compiledRule) matches(alert model.Alert) bool {
	for _, c := range r.conditions {
		if !c.holds(resolveField(alert, c.path)) {
			return false
		}
	}
	return true
}

// RuleEvaluator 规则评估器，按优先级从高到低匹配第一条命中的规则
type RuleEvaluator struct {
	rules []compiledRule
}

// NewRuleEvaluator 编译并按优先级排序规则，优先级相同时保持原有顺序
func NewRuleEvaluator(rules []model.RuleDefinition) (*RuleEvaluator, error) {
	compiled := make([]compiledRule, 0, len(rules))
	for i, def := range rules {
		cr, err := compileRule(def)
		if err != nil {
			return nil, fmt.Errorf("编译第%d条规则 %q 失败: %w", i, def.Name, err)
		}
		compiled = append(compiled, cr)
	}

	sort.SliceStable(compiled, func(i, j int) bool {
		return compiled[i].def.Priority > compiled[j].def.Priority
	})

	return &RuleEvaluator{rules: compiled}, nil
}

func compileRule(def model.RuleDefinition) (compiledRule, error) {
	if !def.Action.Valid() {
		return compiledRule{}, fmt.Errorf("%w: 未知的动作 %q", ErrInvalidRule, def.Action)
	}
	for _, pt := range def.PatternTypes {
		if !pt.Valid() {
			return compiledRule{}, fmt.Errorf("%w: 未知的模式类别 %q", ErrInvalidRule, pt)
		}
	}

	paths := make([]string, 0, len(def.Conditions))
	for path := range def.Conditions {
		if strings.TrimSpace(path) == "" {
			return compiledRule{}, fmt.Errorf("%w: 字段路径不能为空", ErrInvalidRule)
		}
		paths = append(paths, path)
	}
	sort.Strings(paths)

	var conditions []condition
	for _, path := range paths {
		spec := def.Conditions[path]
		if len(spec) == 0 {
			conditions = append(conditions, condition{path: path, op: opExists})
			continue
		}

		names := make([]string, 0, len(spec))
		for name := range spec {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			c, err := compileCondition(path, name, spec[name])
			if err != nil {
				return compiledRule{}, err
			}
			conditions = append(conditions, c)
		}
	}

	def.PatternTypes = append([]model.PatternType(nil), def.PatternTypes...)
	return compiledRule{def: def, conditions: conditions}, nil
}

// Evaluate 返回第一条命中规则的动作；没有命中时第二个返回值为 false
func (e *RuleEvaluator) Evaluate(alert model.Alert) (model.ActionType, bool) {
	rule, ok := e.Match(alert)
	if !ok {
		return "", false
	}
	return rule.Action, true
}

// Match 返回第一条命中的规则
func (e *RuleEvaluator) Match(alert model.Alert) (model.RuleDefinition, bool) {
	for _, rule := range e.rules {
		if !rule.def.Enabled {
			continue
		}
		if !rule.def.AppliesTo(alert.PatternType) {
			continue
		}
		if rule.matches(alert) {
			return rule.def, true
		}
	}
	return model.RuleDefinition{}, false
}

// Rules 按评估顺序返回规则定义
func (e *RuleEvaluator) Rules() []model.RuleDefinition {
	out := make([]model.RuleDefinition, 0, len(e.rules))
	for _, r := range e.rules {
		out = append(out, r.def)
	}
	return out
}

// orderedScalar 数字统一为 float64，字符串原样返回
func orderedScalar(v any) (any, bool) {
	if n, ok := model.ToNumber(v); ok {
		return n, true
	}
	if s, ok := v.(string); ok {
		return s, true
	}
	return nil, false
}

func comparableScalar(v any) (any, bool) {
	if b, ok := v.(bool); ok {
		return b, true
	}
	return orderedScalar(v)
}

func toList(v any) ([]any, bool) {
	if v == nil {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// compareOrdered 数字与数字、字符串与字符串可比较，其余组合返回 false
func compareOrdered(a, b any) (int, bool) {
	if an, ok := model.ToNumber(a); ok {
		bn, ok := b.(float64)
		if !ok {
			return 0, false
		}
		switch {
		case an < bn:
			return -1, true
		case an > bn:
			return 1, true
		}
		return 0, true
	}
	if as, ok := a.(string); ok {
		bs, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(as, bs), true
	}
	return 0, false
}

func equalValues(a, b any) bool {
	if ab, ok := a.(bool); ok {
		bb, ok := b.(bool)
		return ok && ab == bb
	}
	r, ok := compareOrdered(a, b)
	return ok && r == 0
}

func containsValue(list []any, v any) bool {
	for _, item := range list {
		if equalValues(v, item) {
			return true
		}
	}
	return false
}
