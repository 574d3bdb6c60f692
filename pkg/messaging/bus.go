package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"RiskLens/pkg/model"
)

const (
	AlertsStream    = "ALERTS_STREAM"
	DecisionsStream = "DECISIONS_STREAM"

	DefaultAlertsPrefix    = "alerts"
	DefaultDecisionsPrefix = "decisions"
)

// Streams 告警和决策两个数据流
func Streams(alertsPrefix, decisionsPrefix string) []jetstream.StreamConfig {
	alertsPrefix, decisionsPrefix = orDefault(alertsPrefix, DefaultAlertsPrefix), orDefault(decisionsPrefix, DefaultDecisionsPrefix)
	return []jetstream.StreamConfig{
		{
			Name:        AlertsStream,
			Subjects:    []string{alertsPrefix + ".*"},
			Description: "上游检测告警数据流",
			Retention:   jetstream.LimitsPolicy,
			MaxMsgs:     100000,
			MaxBytes:    100 * 1024 * 1024,  // 100MB
			MaxAge:      7 * 24 * time.Hour, // 保留7天
		},
		{
			Name:        DecisionsStream,
			Subjects:    []string{decisionsPrefix + ".*"},
			Description: "风控决策数据流",
			Retention:   jetstream.LimitsPolicy,
			MaxMsgs:     100000,
			MaxBytes:    100 * 1024 * 1024,   // 100MB
			MaxAge:      30 * 24 * time.Hour, // 保留30天
		},
	}
}

// AlertSubject 告警主题，例如 alerts.wash_trading
func AlertSubject(prefix string, p model.PatternType) string {
	return orDefault(prefix, DefaultAlertsPrefix) + "." + strings.ToLower(string(p))
}

// DecisionSubject 决策主题，例如 decisions.freeze
func DecisionSubject(prefix string, a model.ActionType) string {
	return orDefault(prefix, DefaultDecisionsPrefix) + "." + strings.ToLower(string(a))
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// Publisher 消息发布能力，便于在测试中替换
type Publisher interface {
	Publish(ctx context.Context, subject string, data interface{}) error
}

// Subscriber 消息订阅能力
type Subscriber interface {
	Subscribe(streamName, consumerName, filterSubject string, handler MessageHandler) error
}

// AlertHandler 告警处理函数
type AlertHandler func(ctx context.Context, alert model.Alert) error

// Bus 告警与决策的领域消息通道
type Bus struct {
	publisher       Publisher
	subscriber      Subscriber
	alertsPrefix    string
	decisionsPrefix string
}

// NewBus 创建消息通道；subscriber 为 nil 时只能发布
func NewBus(publisher Publisher, subscriber Subscriber, alertsPrefix, decisionsPrefix string) *Bus {
	return &Bus{
		publisher:       publisher,
		subscriber:      subscriber,
		alertsPrefix:    orDefault(alertsPrefix, DefaultAlertsPrefix),
		decisionsPrefix: orDefault(decisionsPrefix, DefaultDecisionsPrefix),
	}
}

// PublishAlert 发布告警到 alerts.<pattern>
func (b *Bus) PublishAlert(ctx context.Context, alert model.Alert) error {
	return b.publisher.Publish(ctx, AlertSubject(b.alertsPrefix, alert.PatternType), alert)
}

// PublishDecision 发布决策到 decisions.<action>
func (b *Bus) PublishDecision(ctx context.Context, decision model.Decision) error {
	return b.publisher.Publish(ctx, DecisionSubject(b.decisionsPrefix, decision.Action), decision)
}

// SubscribeAlerts 订阅所有告警；无法解析或校验失败的消息直接丢弃
func (b *Bus) SubscribeAlerts(consumer string, handler AlertHandler) error {
	if b.subscriber == nil {
		return fmt.Errorf("消息通道未配置订阅能力")
	}
	return b.subscriber.Subscribe(AlertsStream, consumer, b.alertsPrefix+".*", AlertMessageHandler(handler))
}

// AlertMessageHandler 把原始消息解码为告警后交给 handler
func AlertMessageHandler(handler AlertHandler) MessageHandler {
	return func(ctx context.Context, data []byte) error {
		alert, err := DecodeAlert(data)
		if err != nil {
			return Permanent(err)
		}
		return handler(ctx, alert)
	}
}

// DecodeAlert 解码并校验告警，缺失的 alert_id 和 detected_at 会补齐
func DecodeAlert(data []byte) (model.Alert, error) {
	var alert model.Alert
	if err := json.Unmarshal(data, &alert); err != nil {
		return model.Alert{}, fmt.Errorf("解析告警失败: %w", err)
	}
	if err := alert.Validate(); err != nil {
		return model.Alert{}, fmt.Errorf("告警校验失败: %w", err)
	}
	return alert.WithDefaults(time.Now().UTC()), nil
}
