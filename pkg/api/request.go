package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"RiskLens/pkg/model"
)

// evmChains 严格模式下地址需要是 0x 开头的 20 字节十六进制
var evmChains = map[string]bool{
	"ethereum":  true,
	"bsc":       true,
	"polygon":   true,
	"arbitrum":  true,
	"optimism":  true,
	"base":      true,
	"avalanche": true,
}

// EvaluateRequest 告警评估请求
type EvaluateRequest struct {
	AlertID         string                 `json:"alert_id"`
	Address         string                 `json:"address" binding:"required"`
	Chain           string                 `json:"chain"`
	Pool            string                 `json:"pool"`
	Pair            string                 `json:"pair"`
	TimeWindowSec   *int                   `json:"time_window_sec" binding:"required"`
	PatternType     string                 `json:"pattern_type" binding:"required"`
	Score           *float64               `json:"score" binding:"required,gte=0,lte=1"`
	Features        model.Features         `json:"features"`
	EvidenceSamples []model.EvidenceSample `json:"evidence_samples"`
	DetectedAt      *time.Time             `json:"detected_at"`
}

// ToAlert 校验并补齐默认值。
// strictAddress 为 true 时 EVM 链地址必须是合法的十六进制地址
func (r EvaluateRequest) ToAlert(now func() time.Time, strictAddress bool) (model.Alert, error) {
	pattern, err := model.ParsePatternType(r.PatternType)
	if err != nil {
		return model.Alert{}, err
	}

	chain := strings.ToLower(strings.TrimSpace(r.Chain))
	if chain == "" {
		chain = model.DefaultChain
	}

	address := strings.TrimSpace(r.Address)
	if strictAddress && evmChains[chain] && !common.IsHexAddress(address) {
		return model.Alert{}, fmt.Errorf("无效的%s地址: %q", chain, address)
	}

	alert := model.Alert{
		AlertID:         r.AlertID,
		Address:         address,
		Chain:           chain,
		Pool:            r.Pool,
		Pair:            r.Pair,
		PatternType:     pattern,
		Features:        r.Features,
		EvidenceSamples: r.EvidenceSamples,
	}
	if r.TimeWindowSec != nil {
		alert.TimeWindowSec = *r.TimeWindowSec
	}
	if r.Score != nil {
		alert.Score = *r.Score
	}
	if r.DetectedAt != nil {
		alert.DetectedAt = r.DetectedAt.UTC()
	}

	if err := alert.Validate(); err != nil {
		return model.Alert{}, err
	}
	return alert.WithDefaults(now()), nil
}
