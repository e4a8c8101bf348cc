package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	apperrors "order-analytics/internal/errors"
	"order-analytics/internal/models"
	"order-analytics/internal/pipeline"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticResults struct {
	snap *models.RunSnapshot
}

func (s *staticResults) Latest(context.Context) (*models.RunSnapshot, error) {
	if s.snap == nil {
		return nil, apperrors.ErrNoResults
	}
	return s.snap, nil
}

type fakeRunner struct {
	calls     int
	overrides pipeline.Overrides
	err       error
}

func (f *fakeRunner) RunWith(_ context.Context, overrides pipeline.Overrides) (*pipeline.RunResult, error) {
	f.calls++
	f.overrides = overrides
	if f.err != nil {
		return nil, f.err
	}
	kpis := models.NewKPIResults()
	return &pipeline.RunResult{
		RunID:    "run-2",
		Duration: time.Second,
		Gold:     &models.GoldData{KPIs: kpis},
	}, nil
}

type fakeRequester struct {
	events []*models.RunRequestedEvent
}

func (f *fakeRequester) PublishRunRequested(_ context.Context, e *models.RunRequestedEvent) error {
	f.events = append(f.events, e)
	return nil
}

type memoryIdempotency map[string]string

func (m memoryIdempotency) LookupIdempotencyKey(_ context.Context, key string) (string, bool, error) {
	v, ok := m[key]
	return v, ok, nil
}

func (m memoryIdempotency) SetIdempotencyKey(_ context.Context, key string, value interface{}, _ time.Duration) error {
	m[key] = value.(string)
	return nil
}

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func snapshot() *models.RunSnapshot {
	kpis := models.NewKPIResults()
	kpis.MonthlyTrends = []models.MonthlyTrend{{Month: "2025-01", TotalOrders: 3, TotalRevenue: decimal.NewFromInt(170)}}
	kpis.Failures[models.KPIRegionalRevenue] = "boom"
	return &models.RunSnapshot{
		RunID: "run-1",
		KPIs:  kpis,
		Validation: []models.ValidationReport{
			{Dataset: "customers", OverallStatus: models.StatusPass},
		},
	}
}

func newRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	h.SetupRoutes(router)
	return router
}

func do(router *gin.Engine, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealthAndReadiness(t *testing.T) {
	down := false
	h := NewHandler(&staticResults{}, &fakeRunner{}).
		WithReadinessCheck("database", pingFunc(func(context.Context) error {
			if down {
				return errors.New("connection refused")
			}
			return nil
		}))
	router := newRouter(h)

	assert.Equal(t, http.StatusOK, do(router, http.MethodGet, "/health", "", nil).Code)
	assert.Equal(t, http.StatusOK, do(router, http.MethodGet, "/ready", "", nil).Code)

	down = true
	w := do(router, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}

func TestMetricsEndpoint(t *testing.T) {
	router := newRouter(NewHandler(&staticResults{}, &fakeRunner{}))
	do(router, http.MethodGet, "/health", "", nil)

	w := do(router, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_requests_total")
}

func TestGetKPIs_NoRunYet(t *testing.T) {
	router := newRouter(NewHandler(&staticResults{}, &fakeRunner{}))

	w := do(router, http.MethodGet, "/api/v1/kpis", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetKPIs(t *testing.T) {
	router := newRouter(NewHandler(&staticResults{snap: snapshot()}, &fakeRunner{}))

	w := do(router, http.MethodGet, "/api/v1/kpis", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "run-1", body["run_id"])

	w = do(router, http.MethodGet, "/api/v1/kpis/monthly_trends", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	rows := decode(t, w)["rows"].([]interface{})
	require.Len(t, rows, 1)
	assert.Equal(t, "2025-01", rows[0].(map[string]interface{})["month"])

	w = do(router, http.MethodGet, "/api/v1/kpis/regional_revenue", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "boom", decode(t, w)["degraded"])

	w = do(router, http.MethodGet, "/api/v1/kpis/churn", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetValidation(t *testing.T) {
	router := newRouter(NewHandler(&staticResults{snap: snapshot()}, &fakeRunner{}))

	w := do(router, http.MethodGet, "/api/v1/validation", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	reports := decode(t, w)["reports"].([]interface{})
	require.Len(t, reports, 1)
	assert.Equal(t, "customers", reports[0].(map[string]interface{})["dataset"])
}

func TestListRuns_WithoutHistory(t *testing.T) {
	router := newRouter(NewHandler(&staticResults{}, &fakeRunner{}))

	w := do(router, http.MethodGet, "/api/v1/runs", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode(t, w)["runs"])

	assert.Equal(t, http.StatusBadRequest, do(router, http.MethodGet, "/api/v1/runs?limit=x", "", nil).Code)
}

func TestCreateRun_Synchronous(t *testing.T) {
	runner := &fakeRunner{}
	idem := memoryIdempotency{}
	router := newRouter(NewHandler(&staticResults{}, runner).WithIdempotency(idem))
	headers := map[string]string{"Idempotency-Key": "req-1"}

	w := do(router, http.MethodPost, "/api/v1/runs", `{"strict_validation": true}`, headers)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "run-2", decode(t, w)["id"])
	require.NotNil(t, runner.overrides.StrictValidation)
	assert.True(t, *runner.overrides.StrictValidation)

	w = do(router, http.MethodPost, "/api/v1/runs", "", headers)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "duplicate", body["status"])
	assert.Equal(t, "run-2", body["id"])
	assert.Equal(t, 1, runner.calls)
}

func TestCreateRun_Errors(t *testing.T) {
	runner := &fakeRunner{err: apperrors.ErrRunInProgress}
	router := newRouter(NewHandler(&staticResults{}, runner))

	assert.Equal(t, http.StatusConflict, do(router, http.MethodPost, "/api/v1/runs", "", nil).Code)

	runner.err = apperrors.NewStageError("silver", map[string]int{"customers_raw": 3}, apperrors.ErrValidationFailed)
	w := do(router, http.MethodPost, "/api/v1/runs", "", nil)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "silver", decode(t, w)["stage"])

	assert.Equal(t, http.StatusBadRequest, do(router, http.MethodPost, "/api/v1/runs", "{", nil).Code)
}

func TestCreateRun_Queued(t *testing.T) {
	runner := &fakeRunner{}
	requester := &fakeRequester{}
	router := newRouter(NewHandler(&staticResults{}, runner).WithRequester(requester))

	w := do(router, http.MethodPost, "/api/v1/runs", `{"additional_metrics": false}`, nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, requester.events, 1)
	assert.Equal(t, requester.events[0].EventID, decode(t, w)["id"])
	assert.False(t, *requester.events[0].AdditionalMetrics)
	assert.Equal(t, 0, runner.calls)
}
