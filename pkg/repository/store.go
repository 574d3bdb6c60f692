package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"RiskLens/pkg/model"
)

const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

var (
	// ErrDecisionNotFound 决策不存在
	ErrDecisionNotFound = errors.New("决策不存在")
	// ErrDuplicateDecision 决策ID已存在
	ErrDuplicateDecision = errors.New("决策ID已存在")
	// ErrInvalidFilter 查询参数越界
	ErrInvalidFilter = errors.New("查询参数无效")
)

// DecisionStore 决策审计存储
type DecisionStore interface {
	Save(ctx context.Context, decision model.Decision, alert model.Alert) error
	GetByID(ctx context.Context, id string) (*model.Decision, error)
	List(ctx context.Context, filter DecisionFilter) ([]model.Decision, error)
	Stats(ctx context.Context) (DecisionStats, error)
}

// DecisionFilter 决策查询条件，空字符串表示不过滤
type DecisionFilter struct {
	Address   string
	RiskLevel string
	Action    string
	Limit     int
	Offset    int
}

// Normalize 补齐默认分页并统一大小写，越界时返回 ErrInvalidFilter
func (f DecisionFilter) Normalize() (DecisionFilter, error) {
	if f.Limit == 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit < 1 || f.Limit > MaxListLimit {
		return f, fmt.Errorf("%w: limit 必须在 1..%d 之间", ErrInvalidFilter, MaxListLimit)
	}
	if f.Offset < 0 {
		return f, fmt.Errorf("%w: offset 不能为负数", ErrInvalidFilter)
	}
	f.Address = strings.TrimSpace(f.Address)
	f.RiskLevel = strings.ToUpper(strings.TrimSpace(f.RiskLevel))
	f.Action = strings.ToUpper(strings.TrimSpace(f.Action))
	return f, nil
}

// Matches 判断记录是否满足过滤条件（不含分页）
func (f DecisionFilter) Matches(r model.DecisionRecord) bool {
	if f.Address != "" && r.Address != f.Address {
		return false
	}
	if f.RiskLevel != "" && r.RiskLevel != f.RiskLevel {
		return false
	}
	if f.Action != "" && r.Action != f.Action {
		return false
	}
	return true
}

// DecisionStats 决策统计
type DecisionStats struct {
	Total       int64            `json:"total"`
	ByAction    map[string]int64 `json:"by_action"`
	ByRiskLevel map[string]int64 `json:"by_risk_level"`
}

// NewDecisionStats 所有动作和风险等级都带零值
func NewDecisionStats() DecisionStats {
	s := DecisionStats{
		ByAction:    make(map[string]int64),
		ByRiskLevel: make(map[string]int64),
	}
	for _, a := range model.AllActions() {
		s.ByAction[string(a)] = 0
	}
	for _, l := range model.AllRiskLevels() {
		s.ByRiskLevel[string(l)] = 0
	}
	return s
}
