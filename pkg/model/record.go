// pkg/model/record.go
package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DecisionRecord 决策审计记录，保存决策输出以及完整的告警原文
type DecisionRecord struct {
	DecisionID      string    `gorm:"type:varchar(36);primaryKey" json:"decision_id"`
	AlertID         string    `gorm:"type:varchar(255);not null;index" json:"alert_id"`
	Address         string    `gorm:"type:varchar(64);not null;index;index:idx_address_decided_at,priority:1" json:"address"`
	RiskLevel       string    `gorm:"type:varchar(20);not null;index;index:idx_risk_level_action,priority:1" json:"risk_level"`
	Action          string    `gorm:"type:varchar(20);not null;index;index:idx_risk_level_action,priority:2;index:idx_decided_at_action,priority:2" json:"action"`
	Confidence      float64   `gorm:"not null" json:"confidence"`
	RiskScore       float64   `gorm:"not null" json:"risk_score"`
	Rationale       string    `gorm:"type:text;not null" json:"rationale"`
	EvidenceRefs    []string  `gorm:"serializer:json;type:jsonb;not null" json:"evidence_refs"`
	Recommendations []string  `gorm:"serializer:json;type:jsonb;not null" json:"recommendations"`
	Limitations     []string  `gorm:"serializer:json;type:jsonb;not null" json:"limitations"`
	RuleVersion     string    `gorm:"type:varchar(20);not null" json:"rule_version"`
	DecidedAt       time.Time `gorm:"not null;index;index:idx_address_decided_at,priority:2;index:idx_decided_at_action,priority:1" json:"decided_at"`
	AlertData       Alert     `gorm:"serializer:json;type:jsonb;not null" json:"alert_data"`
}

// TableName 表名
func (DecisionRecord) TableName() string {
	return "decisions"
}

func (r *DecisionRecord) BeforeCreate(tx *gorm.DB) error {
	if r.DecisionID == "" {
		r.DecisionID = uuid.New().String()
	}
	return nil
}

// NewDecisionRecord 由决策和原始告警构建审计记录
func NewDecisionRecord(decision Decision, alert Alert) DecisionRecord {
	d := decision.Clone()
	return DecisionRecord{
		DecisionID:      d.DecisionID,
		AlertID:         d.AlertID,
		Address:         d.Address,
		RiskLevel:       string(d.RiskLevel),
		Action:          string(d.Action),
		Confidence:      d.Confidence,
		RiskScore:       d.RiskScore,
		Rationale:       d.Rationale,
		EvidenceRefs:    d.EvidenceRefs,
		Recommendations: d.Recommendations,
		Limitations:     d.Limitations,
		RuleVersion:     d.RuleVersion,
		DecidedAt:       d.DecidedAt,
		AlertData:       alert.Clone(),
	}
}

// ToDecision 从审计记录还原决策
func (r DecisionRecord) ToDecision() Decision {
	return Decision{
		DecisionID:      r.DecisionID,
		AlertID:         r.AlertID,
		Address:         r.Address,
		RiskLevel:       RiskLevel(r.RiskLevel),
		Action:          ActionType(r.Action),
		Confidence:      r.Confidence,
		RiskScore:       r.RiskScore,
		Rationale:       r.Rationale,
		EvidenceRefs:    r.EvidenceRefs,
		Recommendations: r.Recommendations,
		Limitations:     r.Limitations,
		RuleVersion:     r.RuleVersion,
		DecidedAt:       r.DecidedAt,
	}.Clone()
}
