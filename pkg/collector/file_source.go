// pkg/collector/file_source.go
package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"RiskLens/pkg/model"
)

// DefaultPollInterval 未配置间隔时的拉取周期
const DefaultPollInterval = 30 * time.Second

// FileSource 读取上游检测器导出的 JSON 告警文件。
// 每个文件可以是单个告警对象或告警数组，已读过且未修改的文件会跳过
type FileSource struct {
	dir    string
	seen   map[string]time.Time // 文件 -> 读取时的修改时间
	mu     sync.Mutex
	logger *slog.Logger
	now    func() time.Time
}

// NewFileSource 创建文件告警来源
func NewFileSource(dir string, logger *slog.Logger) *FileSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileSource{
		dir:    dir,
		seen:   make(map[string]time.Time),
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// FetchAlerts 读取新的或修改过的告警文件
func (s *FileSource) FetchAlerts(ctx context.Context) ([]model.Alert, error) {
	paths, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("扫描告警目录失败: %w", err)
	}
	sort.Strings(paths)

	s.mu.Lock()
	defer s.mu.Unlock()

	var alerts []model.Alert
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return alerts, err
		}

		info, err := os.Stat(path)
		if err != nil {
			s.logger.Warn("读取告警文件信息失败", "path", path, "error", err)
			continue
		}
		if modTime, ok := s.seen[path]; ok && modTime.Equal(info.ModTime()) {
			continue
		}

		fileAlerts, err := readAlertFile(path)
		// 解析失败的文件同样记为已读，修改后会重新读取
		s.seen[path] = info.ModTime()
		if err != nil {
			s.logger.Warn("解析告警文件失败", "path", path, "error", err)
			continue
		}

		for i, alert := range fileAlerts {
			if err := alert.Validate(); err != nil {
				s.logger.Warn("跳过无效告警", "path", path, "index", i, "error", err)
				continue
			}
			alerts = append(alerts, alert.WithDefaults(s.now()))
		}
	}
	return alerts, nil
}

// readAlertFile 解析单个对象或数组
func readAlertFile(path string) ([]model.Alert, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var alerts []model.Alert
		if err := json.Unmarshal(trimmed, &alerts); err != nil {
			return nil, err
		}
		return alerts, nil
	}

	var alert model.Alert
	if err := json.Unmarshal(trimmed, &alert); err != nil {
		return nil, err
	}
	return []model.Alert{alert}, nil
}

// Poll 按间隔从 source 拉取告警交给 sink，直到 ctx 结束
func Poll(ctx context.Context, source AlertSource, interval time.Duration, sink AlertSink, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		RunOnce(ctx, source, sink, logger)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce 拉取一次并逐条交给 sink，返回成功条数
func RunOnce(ctx context.Context, source AlertSource, sink AlertSink, logger *slog.Logger) int {
	alerts, err := source.FetchAlerts(ctx)
	if err != nil {
		logger.Error("拉取告警失败", "error", err)
	}

	delivered := 0
	for _, alert := range alerts {
		if err := sink(ctx, alert); err != nil {
			logger.Error("投递告警失败", "alert_id", alert.AlertID, "error", err)
			continue
		}
		delivered++
	}
	if len(alerts) > 0 {
		logger.Info("告警投递完成", "fetched", len(alerts), "delivered", delivered)
	}
	return delivered
}
