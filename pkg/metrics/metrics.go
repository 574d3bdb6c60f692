package metrics

import (
	"context"
	"database/sql"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"RiskLens/pkg/model"
)

var (
	// DecisionsTotal 按动作和风险等级统计决策数
	DecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "risklens",
			Name:      "decisions_total",
			Help:      "Total decisions by action and risk level.",
		},
		[]string{"action", "risk_level"},
	)

	// EvaluationDuration 单条告警评估耗时
	EvaluationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "risklens",
			Name:      "evaluation_duration_seconds",
			Help:      "Alert evaluation duration in seconds.",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		},
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "risklens",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "risklens",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// RuleReloadsTotal 规则热加载结果
	RuleReloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "risklens",
			Name:      "rule_reloads_total",
			Help:      "Rule reload attempts by result.",
		},
		[]string{"result"},
	)

	// AlertsConsumedTotal 消息队列告警消费结果
	AlertsConsumedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "risklens",
			Name:      "alerts_consumed_total",
			Help:      "Alerts consumed from the message bus by result.",
		},
		[]string{"result"},
	)

	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "risklens", Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "risklens", Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})
)

func init() {
	prometheus.MustRegister(
		DecisionsTotal,
		EvaluationDuration,
		HTTPRequestsTotal,
		HTTPRequestDuration,
		RuleReloadsTotal,
		AlertsConsumedTotal,
		DBOpenConnections,
		DBInUseConnections,
	)
}

// ObserveDecision 记录一次决策
func ObserveDecision(d model.Decision, elapsed time.Duration) {
	DecisionsTotal.WithLabelValues(string(d.Action), string(d.RiskLevel)).Inc()
	EvaluationDuration.Observe(elapsed.Seconds())
}

// ObserveReload 记录一次规则热加载
func ObserveReload(err error) {
	if err != nil {
		RuleReloadsTotal.WithLabelValues("failure").Inc()
		return
	}
	RuleReloadsTotal.WithLabelValues("success").Inc()
}

// StartDBStatsCollector 定期采集连接池状态，ctx 结束时退出
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			DBOpenConnections.Set(float64(stats.OpenConnections))
			DBInUseConnections.Set(float64(stats.InUse))
		}
	}
}

// Middleware 记录请求数和耗时，path 使用路由模板
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			routePath(c),
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			routePath(c),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

func routePath(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return "unmatched"
}

// Handler /metrics
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
