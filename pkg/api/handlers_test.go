package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RiskLens/pkg/engine"
	"RiskLens/pkg/model"
	"RiskLens/pkg/monitor"
	"RiskLens/pkg/pipeline"
	"RiskLens/pkg/repository"
)

const testAddress = "0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb0"

type testEnv struct {
	router  *gin.Engine
	store   repository.DecisionStore
	monitor *monitor.Monitor
}

func newTestEnv(t *testing.T, store repository.DecisionStore) *testEnv {
	t.Helper()
	return newTestEnvWith(t, store, false)
}

func newTestEnvWith(t *testing.T, store repository.DecisionStore, strictAddress bool) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	if store == nil {
		store = repository.NewMemoryStore()
	}
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	provider := engine.NewProvider(nil)
	processor := pipeline.NewProcessor(provider, store, nil, logger)
	mon := monitor.NewMonitor(nil)

	server := NewServer(ServerConfig{Addr: ":0"}, logger)
	server.SetupRoutes(NewHandlers(provider, processor, store, mon,
		ServiceInfo{Name: "risklens-platform", Version: "0.1.0"}, logger).WithStrictAddress(strictAddress))

	return &testEnv{router: server.Router(), store: store, monitor: mon}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func washRequest() map[string]any {
	return map[string]any{
		"alert_id":        "alert-wash-1",
		"address":         testAddress,
		"chain":           "ethereum",
		"pool":            "0x88e6A0c2dDD26FEEb64F039a2c41296FcB3f5640",
		"pair":            "WETH/USDC",
		"time_window_sec": 300,
		"pattern_type":    "WASH_TRADING",
		"score":           0.87,
		"features": map[string]any{
			"counterparty_diversity": 2,
			"roundtrip_count":        15,
			"total_volume_usd":       125000,
			"self_trade_ratio":       0.93,
		},
		"evidence_samples": []map[string]any{},
		"detected_at":      "2026-02-25T10:30:00Z",
	}
}

func decodeDecision(t *testing.T, w *httptest.ResponseRecorder) model.Decision {
	t.Helper()
	var d model.Decision
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &d))
	return d
}

func detail(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	s, _ := body["detail"].(string)
	return s
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","service":"risklens-platform","version":"0.1.0"}`, w.Body.String())
}

func TestReadinessCheck(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	env.monitor.RegisterComponent("database", func(ctx context.Context) error {
		return errors.New("connection refused")
	})
	env.monitor.CheckAll(context.Background())

	w = env.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}

func TestEvaluateAlert_WashTrading(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodPost, "/api/v1/evaluate", washRequest())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	d := decodeDecision(t, w)
	assert.Equal(t, "alert-wash-1", d.AlertID)
	assert.Equal(t, testAddress, d.Address)
	assert.Equal(t, model.ActionFreeze, d.Action)
	assert.Equal(t, model.RiskHigh, d.RiskLevel)
	assert.InDelta(t, 79.5, d.RiskScore, 1e-9)
	assert.Equal(t, 0.77, d.Confidence)
	assert.Contains(t, d.Rationale, "volume=$125,000 USD")
	assert.Equal(t, engine.DefaultRuleVersion, d.RuleVersion)

	w = env.do(t, http.MethodGet, "/api/v1/decisions/"+d.DecisionID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, d.DecisionID, decodeDecision(t, w).DecisionID)
}

func TestEvaluateAlert_Defaults(t *testing.T) {
	env := newTestEnv(t, nil)

	req := washRequest()
	delete(req, "alert_id")
	delete(req, "chain")
	delete(req, "detected_at")
	delete(req, "features")
	delete(req, "evidence_samples")

	w := env.do(t, http.MethodPost, "/api/v1/evaluate", req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	d := decodeDecision(t, w)
	assert.NotEmpty(t, d.AlertID)
	// 没有特征时 43.5 + 3 + 2，没有规则命中
	assert.Equal(t, model.RiskMedium, d.RiskLevel)
	assert.Equal(t, model.ActionObserve, d.Action)
}

func TestEvaluateAlert_NonEVMChain(t *testing.T) {
	env := newTestEnv(t, nil)

	req := washRequest()
	req["chain"] = "solana"
	req["address"] = "7EcDhSYGxXyscszYEp35KHN8vvw3svAuLKTzXwCFLtV"

	w := env.do(t, http.MethodPost, "/api/v1/evaluate", req)
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestEvaluateAlert_AcceptsFreeFormAddresses(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, address := range []string{"0xaaa", "0xhighrisk", "0xtest1"} {
		req := washRequest()
		req["address"] = address
		delete(req, "alert_id")

		w := env.do(t, http.MethodPost, "/api/v1/evaluate", req)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		assert.Equal(t, address, decodeDecision(t, w).Address)
	}
}

func TestEvaluateAlert_ZeroWindowAccepted(t *testing.T) {
	env := newTestEnv(t, nil)

	req := washRequest()
	req["time_window_sec"] = 0

	w := env.do(t, http.MethodPost, "/api/v1/evaluate", req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, decodeDecision(t, w).Limitations, "Analysis limited to 0s time window")
}

func TestEvaluateAlert_StrictAddress(t *testing.T) {
	env := newTestEnvWith(t, nil, true)

	req := washRequest()
	req["address"] = "0xaaa"
	w := env.do(t, http.MethodPost, "/api/v1/evaluate", req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, detail(t, w), "ethereum")

	req = washRequest()
	req["alert_id"] = "alert-wash-2"
	w = env.do(t, http.MethodPost, "/api/v1/evaluate", req)
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	req = washRequest()
	req["alert_id"] = "alert-sol-1"
	req["chain"] = "solana"
	req["address"] = "7EcDhSYGxXyscszYEp35KHN8vvw3svAuLKTzXwCFLtV"
	w = env.do(t, http.MethodPost, "/api/v1/evaluate", req)
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestEvaluateAlert_Validation(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name   string
		mutate func(map[string]any)
	}{
		{"missing address", func(r map[string]any) { delete(r, "address") }},
		{"blank address", func(r map[string]any) { r["address"] = "   " }},
		{"missing window", func(r map[string]any) { delete(r, "time_window_sec") }},
		{"missing score", func(r map[string]any) { delete(r, "score") }},
		{"score above one", func(r map[string]any) { r["score"] = 1.5 }},
		{"negative score", func(r map[string]any) { r["score"] = -0.1 }},
		{"unknown pattern", func(r map[string]any) { r["pattern_type"] = "FRONT_RUNNING" }},
		{"score as string", func(r map[string]any) { r["score"] = "high" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := washRequest()
			tt.mutate(req)
			w := env.do(t, http.MethodPost, "/api/v1/evaluate", req)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.NotEmpty(t, detail(t, w))
		})
	}

	w := env.do(t, http.MethodPost, "/api/v1/evaluate", "{not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetDecision_NotFound(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodGet, "/api/v1/decisions/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Decision nope not found", detail(t, w))
}

func TestListDecisions(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	base := time.Date(2026, 2, 25, 10, 0, 0, 0, time.UTC)
	seed := []model.Decision{
		{DecisionID: "d1", Address: "0xaaa", RiskLevel: model.RiskHigh, Action: model.ActionFreeze, DecidedAt: base},
		{DecisionID: "d2", Address: "0xbbb", RiskLevel: model.RiskLow, Action: model.ActionObserve, DecidedAt: base.Add(time.Minute)},
		{DecisionID: "d3", Address: "0xaaa", RiskLevel: model.RiskHigh, Action: model.ActionWarn, DecidedAt: base.Add(2 * time.Minute)},
	}
	for _, d := range seed {
		require.NoError(t, env.store.Save(ctx, d, model.Alert{}))
	}

	tests := []struct {
		query string
		want  []string
	}{
		{"", []string{"d3", "d2", "d1"}},
		{"?address=0xaaa", []string{"d3", "d1"}},
		{"?risk_level=high&action=freeze", []string{"d1"}},
		{"?limit=1&offset=1", []string{"d2"}},
	}
	for _, tt := range tests {
		w := env.do(t, http.MethodGet, "/api/v1/decisions"+tt.query, nil)
		require.Equal(t, http.StatusOK, w.Code, tt.query)

		var got []model.Decision
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		ids := make([]string, 0, len(got))
		for _, d := range got {
			ids = append(ids, d.DecisionID)
		}
		assert.Equal(t, tt.want, ids, tt.query)
	}

	for _, bad := range []string{"?limit=abc", "?limit=0", "?limit=1001", "?offset=-1"} {
		w := env.do(t, http.MethodGet, "/api/v1/decisions"+bad, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, bad)
	}

	w := env.do(t, http.MethodGet, "/api/v1/decisions/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats repository.DecisionStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, int64(2), stats.ByRiskLevel["HIGH"])
}

func TestGetRules(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodGet, "/api/v1/rules", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		RuleVersion string                 `json:"rule_version"`
		Rules       []model.RuleDefinition `json:"rules"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, engine.DefaultRuleVersion, body.RuleVersion)
	require.Len(t, body.Rules, 5)
	assert.Equal(t, "wash-trading-freeze", body.Rules[0].RuleID)
}

type brokenStore struct {
	repository.DecisionStore
}

func (brokenStore) Save(context.Context, model.Decision, model.Alert) error {
	return errors.New("connection reset")
}

func (brokenStore) GetByID(context.Context, string) (*model.Decision, error) {
	return nil, errors.New("connection reset")
}

func TestInternalErrorsAreMasked(t *testing.T) {
	env := newTestEnv(t, brokenStore{})

	w := env.do(t, http.MethodPost, "/api/v1/evaluate", washRequest())
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Internal server error", detail(t, w))

	w = env.do(t, http.MethodGet, "/api/v1/decisions/x", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "connection reset")
}

func TestRecoveryReturnsInternalError(t *testing.T) {
	env := newTestEnv(t, nil)
	env.router.GET("/boom", func(c *gin.Context) { panic("boom") })

	w := env.do(t, http.MethodGet, "/boom", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Internal server error", detail(t, w))
}
