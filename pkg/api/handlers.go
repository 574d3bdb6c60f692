package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"RiskLens/pkg/engine"
	"RiskLens/pkg/monitor"
	"RiskLens/pkg/pipeline"
	"RiskLens/pkg/repository"
)

const internalError = "Internal server error"

// ServiceInfo /health 返回的服务信息
type ServiceInfo struct {
	Name    string
	Version string
}

// Handlers API处理程序
type Handlers struct {
	provider  *engine.Provider
	processor *pipeline.Processor
	store     repository.DecisionStore
	monitor   *monitor.Monitor
	info      ServiceInfo
	logger    *slog.Logger
	now       func() time.Time

	strictAddress bool
}

// NewHandlers 创建新的API处理程序；monitor 可为 nil
func NewHandlers(
	provider *engine.Provider,
	processor *pipeline.Processor,
	store repository.DecisionStore,
	mon *monitor.Monitor,
	info ServiceInfo,
	logger *slog.Logger,
) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		provider:  provider,
		processor: processor,
		store:     store,
		monitor:   mon,
		info:      info,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithStrictAddress 开启后 EVM 链告警地址必须是合法十六进制地址
func (h *Handlers) WithStrictAddress(strict bool) *Handlers {
	h.strictAddress = strict
	return h
}

// HealthCheck 健康检查处理程序
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": h.info.Name,
		"version": h.info.Version,
	})
}

// ReadinessCheck 就绪检查处理程序，任一组件不健康时返回503
func (h *Handlers) ReadinessCheck(c *gin.Context) {
	if h.monitor == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ready", "components": []monitor.HealthStatus{}})
		return
	}

	components := h.monitor.GetAllStatus()
	if !h.monitor.Healthy() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "components": components})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "components": components})
}

// EvaluateAlert 评估告警并返回决策
func (h *Handlers) EvaluateAlert(c *gin.Context) {
	var req EvaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "无效的请求参数: " + err.Error()})
		return
	}

	alert, err := req.ToAlert(h.now, h.strictAddress)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	decision, err := h.processor.Process(c.Request.Context(), alert)
	if err != nil {
		h.internalError(c, "评估告警失败", err)
		return
	}

	c.JSON(http.StatusCreated, decision)
}

// GetDecision 按ID获取决策
func (h *Handlers) GetDecision(c *gin.Context) {
	id := c.Param("id")

	decision, err := h.store.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrDecisionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"detail": fmt.Sprintf("Decision %s not found", id)})
			return
		}
		h.internalError(c, "获取决策失败", err)
		return
	}

	c.JSON(http.StatusOK, decision)
}

// ListDecisions 按地址、风险等级、动作查询决策
func (h *Handlers) ListDecisions(c *gin.Context) {
	filter := repository.DecisionFilter{
		Address:   c.Query("address"),
		RiskLevel: c.Query("risk_level"),
		Action:    c.Query("action"),
	}

	var err error
	if filter.Limit, err = intQuery(c, "limit", repository.DefaultListLimit); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}
	if filter.Offset, err = intQuery(c, "offset", 0); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}
	if filter.Limit == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "limit 必须在 1..1000 之间"})
		return
	}

	decisions, err := h.store.List(c.Request.Context(), filter)
	if err != nil {
		if errors.Is(err, repository.ErrInvalidFilter) {
			c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
			return
		}
		h.internalError(c, "查询决策失败", err)
		return
	}

	c.JSON(http.StatusOK, decisions)
}

// DecisionStats 决策统计
func (h *Handlers) DecisionStats(c *gin.Context) {
	stats, err := h.store.Stats(c.Request.Context())
	if err != nil {
		h.internalError(c, "统计决策失败", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetRules 当前生效的规则集
func (h *Handlers) GetRules(c *gin.Context) {
	current := h.provider.Current()
	c.JSON(http.StatusOK, gin.H{
		"rule_version": current.RuleVersion(),
		"weights":      current.Weights(),
		"rules":        current.Rules(),
	})
}

func (h *Handlers) internalError(c *gin.Context, msg string, err error) {
	h.logger.Error(msg, "path", c.Request.URL.Path, "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"detail": internalError})
}

func intQuery(c *gin.Context, key string, def int) (int, error) {
	raw, ok := c.GetQuery(key)
	if !ok || raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s 必须是整数", key)
	}
	return n, nil
}
