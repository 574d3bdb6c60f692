// pkg/model/alert.go
package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PatternType 检测引擎识别出的可疑模式类别
type PatternType string

const (
	PatternSandwichAttack  PatternType = "SANDWICH_ATTACK"
	PatternWashTrading     PatternType = "WASH_TRADING"
	PatternVolumeInflation PatternType = "VOLUME_INFLATION"
	PatternBurstTrading    PatternType = "BURST_TRADING"
	PatternRoundtrip       PatternType = "ROUNDTRIP"
	PatternUnknown         PatternType = "UNKNOWN"
)

// AllPatternTypes 返回全部模式类别，顺序固定
func AllPatternTypes() []PatternType {
	return []PatternType{
		PatternSandwichAttack,
		PatternWashTrading,
		PatternVolumeInflation,
		PatternBurstTrading,
		PatternRoundtrip,
		PatternUnknown,
	}
}

// Valid 是否属于已知类别
func (p PatternType) Valid() bool {
	switch p {
	case PatternSandwichAttack, PatternWashTrading, PatternVolumeInflation,
		PatternBurstTrading, PatternRoundtrip, PatternUnknown:
		return true
	}
	return false
}

// Readable 小写并把下划线替换为空格，用于生成说明文字
func (p PatternType) Readable() string {
	return strings.ReplaceAll(strings.ToLower(string(p)), "_", " ")
}

// ParsePatternType 解析模式类别（大小写不敏感）
func ParsePatternType(s string) (PatternType, error) {
	p := PatternType(strings.ToUpper(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("未知的模式类别: %q", s)
	}
	return p, nil
}

// DefaultChain 未指定链时的默认值
const DefaultChain = "ethereum"

// Alert 上游检测引擎产生的告警（例如 whale-sentry）
type Alert struct {
	AlertID         string           `json:"alert_id"`
	Address         string           `json:"address"`
	Chain           string           `json:"chain"`
	Pool            string           `json:"pool,omitempty"`
	Pair            string           `json:"pair,omitempty"`
	TimeWindowSec   int              `json:"time_window_sec"`
	PatternType     PatternType      `json:"pattern_type"`
	Score           float64          `json:"score"`
	Features        Features         `json:"features"`
	EvidenceSamples []EvidenceSample `json:"evidence_samples"`
	DetectedAt      time.Time        `json:"detected_at"`
}

// EvidenceSample 原始证据样本（通常是一笔交易）
type EvidenceSample map[string]any

// Features 检测引擎输出的统计特征，值可以是数字或字符串
type Features map[string]any

// Has 特征是否存在
func (f Features) Has(key string) bool {
	_, ok := f[key]
	return ok
}

// Number 读取数值特征；不存在、为 null 或不是数字时返回 false
func (f Features) Number(key string) (float64, bool) {
	v, ok := f[key]
	if !ok {
		return 0, false
	}
	return ToNumber(v)
}

// NumberOr 读取数值特征，缺失时返回默认值
func (f Features) NumberOr(key string, def float64) float64 {
	if n, ok := f.Number(key); ok {
		return n
	}
	return def
}

// ToNumber 把动态类型的值转换为 float64
func ToNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// Normalize 补齐默认值，返回副本
func (a Alert) Normalize() Alert {
	if a.Chain == "" {
		a.Chain = DefaultChain
	}
	if a.Features == nil {
		a.Features = Features{}
	}
	if a.EvidenceSamples == nil {
		a.EvidenceSamples = []EvidenceSample{}
	}
	return a
}

// WithDefaults 补齐缺失的 alert_id 和 detected_at，再执行 Normalize。
// 所有入口（HTTP、消息、文件）共用
func (a Alert) WithDefaults(now time.Time) Alert {
	a.AlertID = strings.TrimSpace(a.AlertID)
	if a.AlertID == "" {
		a.AlertID = uuid.New().String()
	}
	if a.DetectedAt.IsZero() {
		a.DetectedAt = now
	}
	return a.Normalize()
}

// Validate 校验告警的基本约束；time_window_sec 不设下限
func (a Alert) Validate() error {
	if strings.TrimSpace(a.Address) == "" {
		return fmt.Errorf("address不能为空")
	}
	if !a.PatternType.Valid() {
		return fmt.Errorf("未知的模式类别: %q", a.PatternType)
	}
	if a.Score < 0 || a.Score > 1 {
		return fmt.Errorf("score必须在[0,1]之间, 当前为 %v", a.Score)
	}
	return nil
}

// Clone 深拷贝特征和证据样本，嵌套的 map 和切片一并复制
func (a Alert) Clone() Alert {
	if a.Features != nil {
		a.Features = Features(cloneMap(a.Features))
	}
	if a.EvidenceSamples != nil {
		samples := make([]EvidenceSample, len(a.EvidenceSamples))
		for i, s := range a.EvidenceSamples {
			if s != nil {
				samples[i] = EvidenceSample(cloneMap(s))
			}
		}
		a.EvidenceSamples = samples
	}
	return a
}

func cloneMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return cloneMap(x)
	case Features:
		return Features(cloneMap(x))
	case EvidenceSample:
		return EvidenceSample(cloneMap(x))
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = cloneValue(item)
		}
		return out
	}
	return v
}
