package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"RiskLens/pkg/model"
)

// MemoryStore 内存决策存储，读写都复制，已保存的决策不会被修改
type MemoryStore struct {
	records []model.DecisionRecord
	byID    map[string]int
	mutex   sync.RWMutex
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make([]model.DecisionRecord, 0),
		byID:    make(map[string]int),
	}
}

// Save 保存决策及原始告警
func (s *MemoryStore) Save(ctx context.Context, decision model.Decision, alert model.Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.byID[decision.DecisionID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateDecision, decision.DecisionID)
	}

	s.byID[decision.DecisionID] = len(s.records)
	s.records = append(s.records, model.NewDecisionRecord(decision, alert))
	return nil
}

// GetByID 按ID获取决策
func (s *MemoryStore) GetByID(ctx context.Context, id string) (*model.Decision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	idx, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDecisionNotFound, id)
	}
	d := s.records[idx].ToDecision()
	return &d, nil
}

// List 按条件查询，最新的决策在前
func (s *MemoryStore) List(ctx context.Context, filter DecisionFilter) ([]model.Decision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	filter, err := filter.Normalize()
	if err != nil {
		return nil, err
	}

	s.mutex.RLock()
	matched := make([]model.DecisionRecord, 0)
	for i := len(s.records) - 1; i >= 0; i-- {
		if filter.Matches(s.records[i]) {
			matched = append(matched, s.records[i])
		}
	}
	s.mutex.RUnlock()

	// 时间相同时后写入的在前
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].DecidedAt.After(matched[j].DecidedAt)
	})

	result := make([]model.Decision, 0)
	if filter.Offset >= len(matched) {
		return result, nil
	}
	end := filter.Offset + filter.Limit
	if end > len(matched) {
		end = len(matched)
	}
	for _, r := range matched[filter.Offset:end] {
		result = append(result, r.ToDecision())
	}
	return result, nil
}

// Stats 按动作和风险等级统计
func (s *MemoryStore) Stats(ctx context.Context) (DecisionStats, error) {
	if err := ctx.Err(); err != nil {
		return DecisionStats{}, err
	}

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	stats := NewDecisionStats()
	for _, r := range s.records {
		stats.Total++
		stats.ByAction[r.Action]++
		stats.ByRiskLevel[r.RiskLevel]++
	}
	return stats, nil
}

// Len 已保存的决策数量
func (s *MemoryStore) Len() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.records)
}
