// pkg/engine/scoring.go
package engine

import (
	"fmt"
	"math"
	"strings"

	"RiskLens/pkg/model"
)

// weightTolerance 权重之和与1.0允许的误差
const weightTolerance = 0.01

// Weights 三个维度的评分权重
type Weights struct {
	Detection  float64 `yaml:"detection" json:"detection"`
	Volume     float64 `yaml:"volume" json:"volume"`
	Behavioral float64 `yaml:"behavioral" json:"behavioral"`
}

// Sum 权重之和
func (w Weights) Sum() float64 {
	return w.Detection + w.Volume + w.Behavioral
}

// Profile 预置的权重配置
type Profile string

const (
	ProfileDefault      Profile = "default"
	ProfileConservative Profile = "conservative" // 更信任检测分，减少误报
	ProfileAggressive   Profile = "aggressive"   // 更看重成交量和行为特征，提高召回
)

var profileWeights = map[Profile]Weights{
	ProfileDefault:      {Detection: 0.5, Volume: 0.3, Behavioral: 0.2},
	ProfileConservative: {Detection: 0.7, Volume: 0.2, Behavioral: 0.1},
	ProfileAggressive:   {Detection: 0.4, Volume: 0.3, Behavioral: 0.3},
}

// ParseProfile 解析配置名称，空字符串视为 default
func ParseProfile(name string) (Profile, error) {
	p := Profile(strings.ToLower(strings.TrimSpace(name)))
	if p == "" {
		return ProfileDefault, nil
	}
	if _, ok := profileWeights[p]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownProfile, name)
	}
	return p, nil
}

// Weights 返回配置对应的权重
func (p Profile) Weights() (Weights, error) {
	w, ok := profileWeights[p]
	if !ok {
		return Weights{}, fmt.Errorf("%w: %q", ErrUnknownProfile, p)
	}
	return w, nil
}

// RiskScorer 多维度风险评分器，输出 0-100 分
type RiskScorer struct {
	weights Weights
}

// NewRiskScorer 创建评分器，权重之和必须为1.0
func NewRiskScorer(w Weights) (*RiskScorer, error) {
	total := w.Sum()
	if math.Abs(total-1.0) > weightTolerance {
		return nil, fmt.Errorf("%w, 当前为 %v", ErrInvalidWeights, total)
	}
	return &RiskScorer{weights: w}, nil
}

// NewRiskScorerForProfile 按预置配置创建评分器
func NewRiskScorerForProfile(p Profile) (*RiskScorer, error) {
	w, err := p.Weights()
	if err != nil {
		return nil, err
	}
	return NewRiskScorer(w)
}

// NewDefaultRiskScorer 默认权重 0.5/0.3/0.2
func NewDefaultRiskScorer() *RiskScorer {
	return &RiskScorer{weights: profileWeights[ProfileDefault]}
}

// Weights 当前权重
func (s *RiskScorer) Weights() Weights {
	return s.weights
}

// CalculateRiskScore 计算综合风险分
func (s *RiskScorer) CalculateRiskScore(alert model.Alert) float64 {
	detection := alert.Score * 100
	volume := volumeRisk(alert.Features)
	behavioral := behavioralRisk(alert.Features)

	score := detection*s.weights.Detection +
		volume*s.weights.Volume +
		behavioral*s.weights.Behavioral

	return math.Max(0, math.Min(100, score))
}

// DetermineRiskLevel 风险分映射为风险等级
func (s *RiskScorer) DetermineRiskLevel(score float64) model.RiskLevel {
	switch {
	case score >= 80:
		return model.RiskCritical
	case score >= 60:
		return model.RiskHigh
	case score >= 40:
		return model.RiskMedium
	default:
		return model.RiskLow
	}
}

// volumeRisk 成交量越大风险越高（影响面越大）
func volumeRisk(features model.Features) float64 {
	volume := features.NumberOr("total_volume_usd", 0)

	switch {
	case volume >= 1_000_000:
		return 100
	case volume >= 500_000:
		return 80
	case volume >= 100_000:
		return 60
	case volume >= 50_000:
		return 40
	case volume >= 10_000:
		return 20
	default:
		return 10
	}
}

// behavioralRisk 对手方多样性(40) + 往返交易次数(30) + 自成交比例(30)
func behavioralRisk(features model.Features) float64 {
	var risk float64

	diversity := features.NumberOr("counterparty_diversity", 10)
	switch {
	case diversity <= 2:
		risk += 40
	case diversity <= 5:
		risk += 25
	case diversity <= 10:
		risk += 10
	}

	roundtrips := features.NumberOr("roundtrip_count", 0)
	switch {
	case roundtrips >= 20:
		risk += 30
	case roundtrips >= 10:
		risk += 20
	case roundtrips >= 5:
		risk += 10
	}

	selfTrade := features.NumberOr("self_trade_ratio", 0)
	switch {
	case selfTrade >= 0.9:
		risk += 30
	case selfTrade >= 0.7:
		risk += 20
	case selfTrade >= 0.5:
		risk += 10
	}

	return risk
}
