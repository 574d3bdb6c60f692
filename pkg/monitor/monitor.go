package monitor

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"
)

const (
	StatusUnknown   = "unknown"
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// HealthStatus 健康状态
type HealthStatus struct {
	Component   string    `json:"component"`
	Status      string    `json:"status"`
	LastChecked time.Time `json:"last_checked"`
	Message     string    `json:"message,omitempty"`
}

// CheckFunc 组件健康检查，返回 nil 表示健康
type CheckFunc func(ctx context.Context) error

// Monitor 组件健康状态登记
type Monitor struct {
	components map[string]*HealthStatus
	checks     map[string]CheckFunc
	mutex      sync.RWMutex
	alertFunc  func(component, status, message string)
	now        func() time.Time
}

// NewMonitor 创建监控；alertFunc 在组件变为非健康状态时调用，可为 nil
func NewMonitor(alertFunc func(component, status, message string)) *Monitor {
	return &Monitor{
		components: make(map[string]*HealthStatus),
		checks:     make(map[string]CheckFunc),
		alertFunc:  alertFunc,
		now:        time.Now,
	}
}

// RegisterComponent 注册组件；check 为 nil 时状态只能通过 UpdateStatus 更新
func (m *Monitor) RegisterComponent(component string, check CheckFunc) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.components[component] = &HealthStatus{
		Component:   component,
		Status:      StatusUnknown,
		LastChecked: m.now(),
	}
	if check != nil {
		m.checks[component] = check
	}
}

// UpdateStatus 更新组件状态
func (m *Monitor) UpdateStatus(component, status, message string) {
	m.mutex.Lock()
	if _, exists := m.components[component]; !exists {
		m.components[component] = &HealthStatus{Component: component}
	}

	entry := m.components[component]
	oldStatus := entry.Status
	entry.Status = status
	entry.LastChecked = m.now()
	entry.Message = message
	alertFunc := m.alertFunc
	m.mutex.Unlock()

	// 状态变为不健康时触发告警
	if oldStatus != status && status != StatusHealthy && alertFunc != nil {
		alertFunc(component, status, message)
	}
}

// CheckAll 执行所有已注册的检查
func (m *Monitor) CheckAll(ctx context.Context) {
	m.mutex.RLock()
	checks := make(map[string]CheckFunc, len(m.checks))
	for name, check := range m.checks {
		checks[name] = check
	}
	m.mutex.RUnlock()

	for name, check := range checks {
		if err := check(ctx); err != nil {
			m.UpdateStatus(name, StatusUnhealthy, err.Error())
			continue
		}
		m.UpdateStatus(name, StatusHealthy, "")
	}
}

// GetStatus 获取组件状态副本
func (m *Monitor) GetStatus(component string) (HealthStatus, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if status, exists := m.components[component]; exists {
		return *status, true
	}
	return HealthStatus{}, false
}

// GetAllStatus 获取所有组件状态，按组件名排序
func (m *Monitor) GetAllStatus() []HealthStatus {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	statuses := make([]HealthStatus, 0, len(m.components))
	for _, status := range m.components {
		statuses = append(statuses, *status)
	}
	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Component < statuses[j].Component
	})
	return statuses
}

// Healthy 所有组件都健康时为 true，没有注册组件时也为 true
func (m *Monitor) Healthy() bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	for _, status := range m.components {
		if status.Status != StatusHealthy {
			return false
		}
	}
	return true
}

// HTTPCheck 检查HTTP端点返回200
func HTTPCheck(client *http.Client, url string) CheckFunc {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("构建请求失败: %w", err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("HTTP请求失败: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("HTTP状态码非200: %d", resp.StatusCode)
		}
		return nil
	}
}
