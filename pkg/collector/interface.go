package collector

import (
	"context"

	"RiskLens/pkg/model"
)

// AlertSource 告警来源接口
type AlertSource interface {
	// FetchAlerts 返回自上次调用以来的新告警
	FetchAlerts(ctx context.Context) ([]model.Alert, error)
}

// AlertSink 告警去向，例如发布到消息队列
type AlertSink func(ctx context.Context, alert model.Alert) error
