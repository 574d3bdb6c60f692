package repository

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"RiskLens/pkg/engine"
	"RiskLens/pkg/model"
)

// RuleSet 规则文件内容
type RuleSet struct {
	// RuleVersion 为空表示文件未声明版本
	RuleVersion string
	Rules       []model.RuleDefinition
	// FromFile 为 false 表示规则文件不存在，使用了内置规则
	FromFile bool
}

type ruleFile struct {
	RuleVersion string      `yaml:"rule_version"`
	Rules       []ruleEntry `yaml:"rules"`
}

type ruleEntry struct {
	ID           string              `yaml:"id"`
	Name         string              `yaml:"name"`
	Description  string              `yaml:"description"`
	PatternTypes []string            `yaml:"pattern_types"`
	Conditions   model.ConditionSpec `yaml:"conditions"`
	Action       string              `yaml:"action"`
	Priority     int                 `yaml:"priority"`
	Enabled      *bool               `yaml:"enabled"`
}

// LoadRules 从YAML文件加载规则；文件不存在时返回内置规则
func LoadRules(path string) (RuleSet, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return RuleSet{Rules: engine.DefaultRules()}, nil
	}
	if err != nil {
		return RuleSet{}, fmt.Errorf("读取规则文件失败: %w", err)
	}

	set, err := ParseRules(data)
	if err != nil {
		return RuleSet{}, fmt.Errorf("解析规则文件 %s 失败: %w", path, err)
	}
	set.FromFile = true
	return set, nil
}

// ParseRules 解析规则YAML，并按引擎规则编译校验
func ParseRules(data []byte) (RuleSet, error) {
	var file ruleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return RuleSet{}, fmt.Errorf("%w: %v", engine.ErrInvalidRule, err)
	}

	set := RuleSet{RuleVersion: strings.TrimSpace(file.RuleVersion)}

	for i, entry := range file.Rules {
		def, err := entry.toDefinition()
		if err != nil {
			return RuleSet{}, fmt.Errorf("第%d条规则: %w", i, err)
		}
		set.Rules = append(set.Rules, def)
	}

	// 操作符和操作数在加载时校验
	if _, err := engine.NewRuleEvaluator(set.Rules); err != nil {
		return RuleSet{}, err
	}
	return set, nil
}

func (e ruleEntry) toDefinition() (model.RuleDefinition, error) {
	action, err := model.ParseAction(e.Action)
	if err != nil {
		return model.RuleDefinition{}, fmt.Errorf("%w: %v", engine.ErrInvalidRule, err)
	}

	patterns := make([]model.PatternType, 0, len(e.PatternTypes))
	for _, raw := range e.PatternTypes {
		p, err := model.ParsePatternType(raw)
		if err != nil {
			return model.RuleDefinition{}, fmt.Errorf("%w: %v", engine.ErrInvalidRule, err)
		}
		patterns = append(patterns, p)
	}

	id := strings.TrimSpace(e.ID)
	if id == "" {
		id = uuid.New().String()
	}

	enabled := true
	if e.Enabled != nil {
		enabled = *e.Enabled
	}

	return model.RuleDefinition{
		RuleID:       id,
		Name:         e.Name,
		Description:  e.Description,
		PatternTypes: patterns,
		Conditions:   e.Conditions,
		Action:       action,
		Priority:     e.Priority,
		Enabled:      enabled,
	}, nil
}

// LoadEngine 加载规则文件并构建决策引擎。
// 规则文件声明的版本优先，其次是 fallbackVersion
func LoadEngine(path string, profile engine.Profile, fallbackVersion string, opts ...engine.Option) (*engine.DecisionEngine, RuleSet, error) {
	set, err := LoadRules(path)
	if err != nil {
		return nil, RuleSet{}, err
	}

	version := set.RuleVersion
	if version == "" {
		version = fallbackVersion
	}
	e, err := engine.Build(set.Rules, profile, version, opts...)
	if err != nil {
		return nil, RuleSet{}, fmt.Errorf("构建决策引擎失败: %w", err)
	}
	return e, set, nil
}
