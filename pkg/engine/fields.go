package engine

import (
	"strings"
	"time"

	"RiskLens/pkg/model"
)

// fieldValue 字段路径解析结果。present=false 表示字段不存在，
// 与特征值本身为 null（present=true, value=nil）区分开
type fieldValue struct {
	value   any
	present bool
}

var missing = fieldValue{}

// resolveField 按点分路径读取告警字段。
// 第一段匹配告警的顶层字段，其余段落入特征或嵌套映射
func resolveField(alert model.Alert, path string) fieldValue {
	parts := strings.Split(path, ".")
	root, ok := topLevelField(alert, parts[0])
	if !ok {
		return missing
	}

	current := root
	for _, part := range parts[1:] {
		next, ok := lookupKey(current, part)
		if !ok {
			return missing
		}
		current = next
	}
	return fieldValue{value: current, present: true}
}

func topLevelField(alert model.Alert, name string) (any, bool) {
	switch name {
	case "alert_id":
		return optionalString(alert.AlertID)
	case "address":
		return optionalString(alert.Address)
	case "chain":
		return optionalString(alert.Chain)
	case "pool":
		return optionalString(alert.Pool)
	case "pair":
		return optionalString(alert.Pair)
	case "time_window_sec":
		return alert.TimeWindowSec, true
	case "pattern_type":
		return string(alert.PatternType), true
	case "score":
		return alert.Score, true
	case "features":
		if alert.Features == nil {
			return map[string]any{}, true
		}
		return map[string]any(alert.Features), true
	case "evidence_samples":
		return alert.EvidenceSamples, true
	case "detected_at":
		if alert.DetectedAt.IsZero() {
			return nil, false
		}
		return alert.DetectedAt.UTC().Format(time.RFC3339), true
	}
	return nil, false
}

func optionalString(s string) (any, bool) {
	if s == "" {
		return nil, false
	}
	return s, true
}

func lookupKey(container any, key string) (any, bool) {
	switch m := container.(type) {
	case map[string]any:
		v, ok := m[key]
		return v, ok
	case model.Features:
		v, ok := m[key]
		return v, ok
	case model.EvidenceSample:
		v, ok := m[key]
		return v, ok
	}
	return nil, false
}
