package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	apperrors "order-analytics/internal/errors"
	"order-analytics/internal/gold"
	"order-analytics/internal/lake"
	"order-analytics/internal/models"
	"order-analytics/internal/report"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const customersCSV = `customer_id,customer_name,mobile_number,region
C1,ann,9876543210,north
C2,bob,9123456789,South
`

const ordersXML = `<?xml version="1.0"?>
<orders>
  <order>
    <order_id>O1</order_id>
    <mobile_number>9876543210</mobile_number>
    <order_date_time>2025-01-10 10:00:00</order_date_time>
    <sku_id>S1</sku_id>
    <sku_count>2</sku_count>
    <total_amount>60.00</total_amount>
  </order>
  <order>
    <order_id>O1</order_id>
    <mobile_number>9876543210</mobile_number>
    <order_date_time>2025-01-10 10:00:00</order_date_time>
    <sku_id>S2</sku_id>
    <sku_count>1</sku_count>
    <total_amount>40.00</total_amount>
  </order>
  <order>
    <order_id>O2</order_id>
    <mobile_number>9876543210</mobile_number>
    <order_date_time>2025-01-20 09:00:00</order_date_time>
    <sku_id>S1</sku_id>
    <sku_count>1</sku_count>
    <total_amount>20.00</total_amount>
  </order>
  <order>
    <order_id>O3</order_id>
    <mobile_number>9123456789</mobile_number>
    <order_date_time>2025-01-25 18:30:00</order_date_time>
    <sku_id>S3</sku_id>
    <sku_count>5</sku_count>
    <total_amount>50.00</total_amount>
  </order>
</orders>`

var fixedNow = time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)

type fakeEvents struct {
	mu        sync.Mutex
	completed []*models.RunCompletedEvent
	failed    []*models.RunFailedEvent
}

func (f *fakeEvents) PublishRunCompleted(_ context.Context, e *models.RunCompletedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, e)
	return nil
}

func (f *fakeEvents) PublishRunFailed(_ context.Context, e *models.RunFailedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = append(f.failed, e)
	return nil
}

type fakeRecorder struct {
	runs []models.RunSummary
}

func (f *fakeRecorder) RecordRun(_ context.Context, run models.RunSummary) error {
	f.runs = append(f.runs, run)
	return nil
}

type fakeCache struct {
	latest *models.RunSnapshot
}

func (f *fakeCache) SetLatest(_ context.Context, snap *models.RunSnapshot, _ time.Duration) error {
	f.latest = snap
	return nil
}

func (f *fakeCache) GetLatest(context.Context) (*models.RunSnapshot, error) {
	if f.latest == nil {
		return nil, apperrors.ErrNoResults
	}
	return f.latest, nil
}

type fakeLocker struct {
	held     bool
	released int
}

func (f *fakeLocker) AcquireLock(context.Context, string, time.Duration) (string, bool, error) {
	if f.held {
		return "", false, nil
	}
	f.held = true
	return "token", true, nil
}

func (f *fakeLocker) ExtendLock(context.Context, string, string, time.Duration) (bool, error) {
	return f.held, nil
}

func (f *fakeLocker) ReleaseLock(context.Context, string, string) error {
	f.held = false
	f.released++
	return nil
}

// brokenExecutor fails before any KPI can be computed
type brokenExecutor struct {
	*gold.MemoryExecutor
}

func (brokenExecutor) Name() string { return "sql:broken" }

func (brokenExecutor) Prepare(context.Context, *models.SilverData) error {
	return errors.New("connection refused")
}

// skewedExecutor reports one extra month
type skewedExecutor struct {
	*gold.MemoryExecutor
}

func (s skewedExecutor) MonthlyTrends(ctx context.Context, silver *models.SilverData) ([]models.MonthlyTrend, error) {
	rows, err := s.MemoryExecutor.MonthlyTrends(ctx, silver)
	return append(rows, models.MonthlyTrend{Month: "2025-02", TotalOrders: 1, TotalRevenue: decimal.NewFromInt(1)}), err
}

// regionFailingExecutor cannot compute regional revenue
type regionFailingExecutor struct {
	*gold.MemoryExecutor
}

func (regionFailingExecutor) Name() string { return "sql:partial" }

func (regionFailingExecutor) RegionalRevenue(context.Context, *models.SilverData) ([]models.RegionalRevenue, error) {
	return nil, errors.New("relation \"orders\" does not exist")
}

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type fixture struct {
	dir      string
	orch     *Orchestrator
	events   *fakeEvents
	recorder *fakeRecorder
	cache    *fakeCache
}

func newFixture(t *testing.T, customers, orders string) *fixture {
	t.Helper()
	dir := t.TempDir()
	customersPath := filepath.Join(dir, "customers.csv")
	ordersPath := filepath.Join(dir, "orders.xml")
	require.NoError(t, os.WriteFile(customersPath, []byte(customers), 0o644))
	if orders != "" {
		require.NoError(t, os.WriteFile(ordersPath, []byte(orders), 0o644))
	}

	clock := func() time.Time { return fixedNow }
	opts := Options{
		CustomersPath:     customersPath,
		OrdersPath:        ordersPath,
		AdditionalMetrics: true,
		SQLCrossCheck:     true,
		Params:            gold.DefaultParams(),
	}

	f := &fixture{
		dir:      dir,
		events:   &fakeEvents{},
		recorder: &fakeRecorder{},
		cache:    &fakeCache{},
	}
	f.orch = NewOrchestrator(opts,
		lake.NewWriter(filepath.Join(dir, "lake"), "snappy"),
		report.NewGenerator(filepath.Join(dir, "reports"), "₹", clock)).
		WithClock(clock).
		WithEvents(f.events).
		WithRecorder(f.recorder).
		WithCache(f.cache)
	return f
}

func TestRun_ProducesAllLayers(t *testing.T) {
	f := newFixture(t, customersCSV, ordersXML)

	result, err := f.orch.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result.Gold)

	kpis := result.Gold.KPIs
	assert.Equal(t, []models.MonthlyTrend{{Month: "2025-01", TotalOrders: 3, TotalRevenue: money("170.00")}}, kpis.MonthlyTrends)
	assert.Equal(t, []models.RepeatCustomer{{CustomerName: "Ann", NumberOfOrders: 2}}, kpis.RepeatCustomers)
	assert.Equal(t, []models.RegionalRevenue{
		{Region: models.RegionNorth, RegionalRevenue: money("120.00")},
		{Region: models.RegionSouth, RegionalRevenue: money("50.00")},
	}, kpis.RegionalRevenue)
	assert.Equal(t, []models.TopCustomer{
		{CustomerName: "Ann", RecentSpend: money("120.00")},
		{CustomerName: "Bob", RecentSpend: money("50.00")},
	}, kpis.TopCustomers30d)
	assert.NotNil(t, result.Gold.Additional)

	for _, path := range result.LakeFiles {
		assert.FileExists(t, path)
	}
	assert.FileExists(t, filepath.Join(f.dir, "lake", lake.LayerBronze, "orders.parquet"))
	assert.FileExists(t, filepath.Join(f.dir, "lake", lake.LayerGold, models.KPIMonthlyTrends+".parquet"))
	for _, kind := range []string{report.KindText, report.KindJSON, report.KindCharts} {
		assert.FileExists(t, result.Gold.Reports[kind])
	}

	require.Len(t, f.events.completed, 1)
	assert.Equal(t, result.RunID, f.events.completed[0].RunID)
	assert.Equal(t, 4, f.events.completed[0].Orders)
	assert.Equal(t, 1, f.events.completed[0].KPIRows[models.KPIMonthlyTrends])
	assert.Empty(t, f.events.failed)

	require.Len(t, f.recorder.runs, 1)
	assert.Equal(t, models.RunStatusSucceeded, f.recorder.runs[0].Status)
	assert.Equal(t, 2, f.recorder.runs[0].Customers)

	snap, err := f.orch.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, result.RunID, snap.RunID)
	assert.Equal(t, snap, f.cache.latest)
}

func TestRun_MissingInputAbortsInBronze(t *testing.T) {
	f := newFixture(t, customersCSV, "")

	result, err := f.orch.Run(context.Background())
	require.Error(t, err)

	var stageErr *apperrors.StageError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, StageBronze, stageErr.Stage)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Nil(t, result.Silver)

	require.Len(t, f.events.failed, 1)
	assert.Equal(t, StageBronze, f.events.failed[0].Stage)
	require.Len(t, f.recorder.runs, 1)
	assert.Equal(t, models.RunStatusFailed, f.recorder.runs[0].Status)

	_, err = f.orch.Latest(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrNoResults)
}

func TestRun_StrictValidationAbortsInSilver(t *testing.T) {
	badCustomers := customersCSV + "C3,cy,12345,east\n"
	f := newFixture(t, badCustomers, ordersXML)

	strict := true
	result, err := f.orch.RunWith(context.Background(), Overrides{StrictValidation: &strict})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrValidationFailed)

	var stageErr *apperrors.StageError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, StageSilver, stageErr.Stage)
	assert.Equal(t, 3, stageErr.Counts["customers_raw"])

	// bronze output is persisted before silver starts
	assert.NotNil(t, result.Bronze)
	assert.FileExists(t, filepath.Join(f.dir, "lake", lake.LayerBronze, "customers.parquet"))
	assert.NoFileExists(t, filepath.Join(f.dir, "lake", lake.LayerSilver, "customers.parquet"))
}

func TestRun_LenientValidationContinues(t *testing.T) {
	badCustomers := customersCSV + "C3,cy,12345,east\n"
	f := newFixture(t, badCustomers, ordersXML)

	result, err := f.orch.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.StatusFail, result.Silver.Validation[0].OverallStatus)
}

func TestRun_CrossCheckFailureIsNotFatal(t *testing.T) {
	f := newFixture(t, customersCSV, ordersXML)
	f.orch.WithCrossCheck(brokenExecutor{gold.NewMemoryExecutor(gold.DefaultParams())})

	result, err := f.orch.Run(context.Background())
	require.NoError(t, err)
	assert.Nil(t, result.Gold.SQLKPIs)
	assert.Empty(t, result.Gold.Mismatches)
}

func TestRun_CrossCheckWithFailedKPIIsSkippedNotPassed(t *testing.T) {
	f := newFixture(t, customersCSV, ordersXML)
	core, logs := observer.New(zap.InfoLevel)
	f.orch.WithLogger(zap.New(core)).
		WithCrossCheck(regionFailingExecutor{gold.NewMemoryExecutor(gold.DefaultParams())})

	result, err := f.orch.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result.Gold.SQLKPIs)
	assert.Equal(t, []string{models.KPIRegionalRevenue}, result.Gold.CrossCheckSkipped)
	assert.Empty(t, result.Gold.Mismatches)
	assert.Len(t, result.Gold.KPIs.RegionalRevenue, 2)

	assert.Zero(t, logs.FilterMessage("SQL cross-check passed").Len())
	skipped := logs.FilterMessage("SQL cross-check skipped").All()
	require.Len(t, skipped, 1)
	var cerr *apperrors.ConnectivityError
	for _, field := range skipped[0].Context {
		if field.Key == "error" {
			require.ErrorAs(t, field.Interface.(error), &cerr)
		}
	}
	require.NotNil(t, cerr)
	assert.Equal(t, "sql:partial", cerr.Target)
	assert.ErrorContains(t, cerr, models.KPIRegionalRevenue)
}

func TestRun_CrossCheckRecordsMismatches(t *testing.T) {
	f := newFixture(t, customersCSV, ordersXML)
	f.orch.WithCrossCheck(skewedExecutor{gold.NewMemoryExecutor(gold.DefaultParams())})

	result, err := f.orch.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result.Gold.SQLKPIs)
	assert.NotEmpty(t, result.Gold.Mismatches)
	assert.Equal(t, len(result.Gold.Mismatches), f.events.completed[0].Mismatches)
}

func TestRun_CrossCheckAgrees(t *testing.T) {
	f := newFixture(t, customersCSV, ordersXML)
	f.orch.WithCrossCheck(gold.NewMemoryExecutor(gold.DefaultParams()))

	result, err := f.orch.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, result.Gold.KPIs.MonthlyTrends, result.Gold.SQLKPIs.MonthlyTrends)
	assert.Empty(t, result.Gold.Mismatches)
}

func TestRun_RejectsConcurrentRuns(t *testing.T) {
	f := newFixture(t, customersCSV, ordersXML)

	f.orch.runMu.Lock()
	_, err := f.orch.Run(context.Background())
	f.orch.runMu.Unlock()
	assert.ErrorIs(t, err, apperrors.ErrRunInProgress)

	locker := &fakeLocker{held: true}
	f.orch.WithLocker(locker)
	_, err = f.orch.Run(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrRunInProgress)

	locker.held = false
	_, err = f.orch.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, locker.released)
	assert.False(t, locker.held)
}

func TestLatest_FallsBackToCache(t *testing.T) {
	f := newFixture(t, customersCSV, ordersXML)
	f.cache.latest = &models.RunSnapshot{RunID: "cached"}

	snap, err := f.orch.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cached", snap.RunID)
}
