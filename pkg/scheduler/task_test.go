package scheduler

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RiskLens/pkg/engine"
	"RiskLens/pkg/model"
	"RiskLens/pkg/monitor"
)

const rulesV2 = `
rule_version: v2.0.0
rules:
  - id: burst-escalate
    name: Burst Escalate
    pattern_types: [BURST_TRADING]
    conditions:
      score: {">=": 0.5}
    action: ESCALATE
    priority: 1
`

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func TestScheduler_ReloadRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(rulesV2), 0o644))

	provider := engine.NewProvider(nil)
	s := NewScheduler(Config{RulesPath: path, Profile: engine.ProfileDefault, RuleVersion: "v1.0.0"}, provider, nil, quiet())

	require.NoError(t, s.ReloadRules())
	assert.Equal(t, "v2.0.0", provider.Current().RuleVersion())

	d := provider.EvaluateAlert(model.Alert{Address: "0xabc", TimeWindowSec: 60, PatternType: model.PatternBurstTrading, Score: 0.5})
	assert.Equal(t, model.ActionEscalate, d.Action)
}

func TestScheduler_ReloadFailureKeepsCurrentEngine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(rulesV2), 0o644))

	provider := engine.NewProvider(nil)
	s := NewScheduler(Config{RulesPath: path, Profile: engine.ProfileDefault}, provider, nil, quiet())
	require.NoError(t, s.ReloadRules())
	current := provider.Current()

	broken := "rules:\n  - name: x\n    pattern_types: [WASH_TRADING]\n    conditions:\n      score: {between: [1]}\n    action: WARN\n"
	require.NoError(t, os.WriteFile(path, []byte(broken), 0o644))

	err := s.ReloadRules()
	assert.ErrorIs(t, err, engine.ErrInvalidOperand)
	assert.Same(t, current, provider.Current())
}

func TestScheduler_MissingFileUsesDefaults(t *testing.T) {
	provider := engine.NewProvider(nil)
	s := NewScheduler(Config{RulesPath: filepath.Join(t.TempDir(), "missing.yaml"), Profile: engine.ProfileConservative, RuleVersion: "v1.2.0"}, provider, nil, quiet())

	require.NoError(t, s.ReloadRules())
	assert.Equal(t, "v1.2.0", provider.Current().RuleVersion())
	assert.Equal(t, engine.Weights{Detection: 0.7, Volume: 0.2, Behavioral: 0.1}, provider.Current().Weights())
}

func TestScheduler_StartRejectsBadSpec(t *testing.T) {
	s := NewScheduler(Config{ReloadSpec: "every now and then"}, engine.NewProvider(nil), nil, quiet())
	assert.Error(t, s.Start())
}

func TestScheduler_StartStop(t *testing.T) {
	mon := monitor.NewMonitor(nil)
	s := NewScheduler(Config{ReloadSpec: "@every 1h", HealthSpec: "@every 1h"}, engine.NewProvider(nil), mon, quiet())
	require.NoError(t, s.Start())
	assert.Len(t, s.cron.Entries(), 2)
	s.Stop()
}
