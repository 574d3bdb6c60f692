// pkg/database/decision.go
package database

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"RiskLens/pkg/model"
	"RiskLens/pkg/repository"
)

// DecisionDB 基于 gorm 的决策审计存储
type DecisionDB struct {
	db *gorm.DB
}

var _ repository.DecisionStore = (*DecisionDB)(nil)

// NewDecisionDB 创建决策存储
func NewDecisionDB(db *gorm.DB) *DecisionDB {
	return &DecisionDB{db: db}
}

// Save 保存决策及原始告警
func (d *DecisionDB) Save(ctx context.Context, decision model.Decision, alert model.Alert) error {
	record := model.NewDecisionRecord(decision, alert)
	if err := d.db.WithContext(ctx).Create(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: %s", repository.ErrDuplicateDecision, decision.DecisionID)
		}
		return fmt.Errorf("保存决策失败: %w", err)
	}
	return nil
}

// GetByID 按ID获取决策
func (d *DecisionDB) GetByID(ctx context.Context, id string) (*model.Decision, error) {
	var record model.DecisionRecord
	err := d.db.WithContext(ctx).First(&record, "decision_id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", repository.ErrDecisionNotFound, id)
		}
		return nil, fmt.Errorf("获取决策失败: %w", err)
	}
	decision := record.ToDecision()
	return &decision, nil
}

// List 按条件查询，最新的决策在前
func (d *DecisionDB) List(ctx context.Context, filter repository.DecisionFilter) ([]model.Decision, error) {
	filter, err := filter.Normalize()
	if err != nil {
		return nil, err
	}

	var records []model.DecisionRecord
	if err := listQuery(d.db.WithContext(ctx), filter).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("查询决策失败: %w", err)
	}

	decisions := make([]model.Decision, 0, len(records))
	for _, r := range records {
		decisions = append(decisions, r.ToDecision())
	}
	return decisions, nil
}

// listQuery 过滤条件和分页，filter 需已经 Normalize
func listQuery(tx *gorm.DB, filter repository.DecisionFilter) *gorm.DB {
	query := tx.Model(&model.DecisionRecord{})
	if filter.Address != "" {
		query = query.Where("address = ?", filter.Address)
	}
	if filter.RiskLevel != "" {
		query = query.Where("risk_level = ?", filter.RiskLevel)
	}
	if filter.Action != "" {
		query = query.Where("action = ?", filter.Action)
	}
	return query.Order("decided_at DESC").Limit(filter.Limit).Offset(filter.Offset)
}

type groupCount struct {
	Key   string
	Count int64
}

// Stats 按动作和风险等级统计
func (d *DecisionDB) Stats(ctx context.Context) (repository.DecisionStats, error) {
	stats := repository.NewDecisionStats()
	tx := d.db.WithContext(ctx)

	var byAction []groupCount
	if err := tx.Model(&model.DecisionRecord{}).
		Select("action AS key, COUNT(*) AS count").
		Group("action").
		Scan(&byAction).Error; err != nil {
		return stats, fmt.Errorf("统计决策动作失败: %w", err)
	}
	for _, row := range byAction {
		stats.ByAction[row.Key] = row.Count
		stats.Total += row.Count
	}

	var byLevel []groupCount
	if err := tx.Model(&model.DecisionRecord{}).
		Select("risk_level AS key, COUNT(*) AS count").
		Group("risk_level").
		Scan(&byLevel).Error; err != nil {
		return stats, fmt.Errorf("统计风险等级失败: %w", err)
	}
	for _, row := range byLevel {
		stats.ByRiskLevel[row.Key] = row.Count
	}
	return stats, nil
}
