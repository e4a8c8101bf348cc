package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"order-analytics/internal/lake"
	"order-analytics/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var reportTime = time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)

func sampleResults() *models.KPIResults {
	r := models.NewKPIResults()
	r.RepeatCustomers = []models.RepeatCustomer{{CustomerName: "Ann", NumberOfOrders: 3}}
	r.MonthlyTrends = []models.MonthlyTrend{
		{Month: "2025-01", TotalOrders: 2, TotalRevenue: decimal.RequireFromString("1200.4")},
		{Month: "2025-02", TotalOrders: 1, TotalRevenue: decimal.RequireFromString("99.99")},
	}
	r.RegionalRevenue = []models.RegionalRevenue{
		{Region: "North", RegionalRevenue: decimal.RequireFromString("1200.4")},
		{Region: "Unknown", RegionalRevenue: decimal.RequireFromString("99.99")},
	}
	r.TopCustomers30d = []models.TopCustomer{{CustomerName: "", RecentSpend: decimal.RequireFromString("99.99")}}
	return r
}

func newGenerator(dir string) *Generator {
	return NewGenerator(dir, "₹", func() time.Time { return reportTime })
}

func TestSummarize(t *testing.T) {
	s := Summarize(sampleResults())

	assert.Equal(t, "1300.39", s.TotalRevenue.String())
	assert.Equal(t, int64(3), s.TotalOrders)
	assert.Equal(t, 1, s.RepeatCustomers)
	assert.Equal(t, 2, s.RegionsCovered)

	assert.Equal(t, Summary{}, Summarize(models.NewKPIResults()))
}

func TestMoney_GroupsDigits(t *testing.T) {
	g := newGenerator(t.TempDir())

	assert.Equal(t, "₹1,234,567", g.Money(decimal.RequireFromString("1234567.4")))
	assert.Equal(t, "₹100", g.Money(decimal.RequireFromString("99.99")))
	assert.Equal(t, "₹3", g.Money(decimal.RequireFromString("2.50")))
}

func TestRenderText(t *testing.T) {
	g := newGenerator(t.TempDir())
	results := sampleResults()
	results.Failures = map[string]string{models.KPIRepeatCustomers: "boom"}
	results.RepeatCustomers = []models.RepeatCustomer{}

	var buf bytes.Buffer
	require.NoError(t, g.RenderText(&buf, results, Meta{RunID: "run-1"}, reportTime))
	out := buf.String()

	assert.Contains(t, out, "Date: 2025-02-01 12:00:00")
	assert.Contains(t, out, "Run: run-1")
	assert.Contains(t, out, "Total Revenue: ₹1,300")
	assert.Contains(t, out, "No repeat customers")
	assert.Contains(t, out, "- 2025-01: 2 orders, ₹1,200")
	assert.Contains(t, out, "- Unknown: ₹100")
	assert.Contains(t, out, "- (unknown customer): ₹100")
	assert.Contains(t, out, "- repeat_customers: boom")
	assert.True(t, strings.HasSuffix(out, "End of Report\n"+strings.Repeat("=", 60)+"\n"))
}

func TestRenderJSON(t *testing.T) {
	g := newGenerator(t.TempDir())

	var buf bytes.Buffer
	require.NoError(t, g.RenderJSON(&buf, sampleResults(), Meta{}, reportTime))

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "2025-02-01T12:00:00Z", doc["report_date"])

	kpis := doc["kpis"].(map[string]interface{})
	assert.Len(t, kpis, 4)
	monthly := kpis[models.KPIMonthlyTrends].([]interface{})
	assert.Equal(t, "2025-01", monthly[0].(map[string]interface{})["month"])

	summary := doc["summary"].(map[string]interface{})
	assert.Equal(t, 3.0, summary["total_orders"])
	assert.Equal(t, "1300.39", summary["total_revenue"])
	assert.NotContains(t, doc, "failures")
}

func TestRenderCharts(t *testing.T) {
	g := newGenerator(t.TempDir())

	var buf bytes.Buffer
	require.NoError(t, g.RenderCharts(&buf, sampleResults()))
	out := buf.String()

	assert.Contains(t, out, "Monthly Revenue Trend")
	assert.Contains(t, out, "2025-01 | "+strings.Repeat("█", barWidth)+" ₹1,200")
	assert.Contains(t, out, "Unknown | ")
	assert.Contains(t, out, "Ann | "+strings.Repeat("█", barWidth)+" 3")

	buf.Reset()
	require.NoError(t, g.RenderCharts(&buf, models.NewKPIResults()))
	assert.Equal(t, 4, strings.Count(buf.String(), "(no data)"))
}

func TestWriteAll(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	g := newGenerator(dir)

	paths, err := g.WriteAll(sampleResults(), Meta{RunID: "run-1"})
	require.NoError(t, err)
	require.Len(t, paths, 3)
	assert.Equal(t, filepath.Join(dir, "business_report_20250201_120000.txt"), paths[KindText])

	for _, p := range paths {
		info, err := os.Stat(p)
		require.NoError(t, err)
		assert.Positive(t, info.Size())
	}
}

func TestDisplay(t *testing.T) {
	g := newGenerator(t.TempDir())
	results := sampleResults()
	results.TopCustomers30d = []models.TopCustomer{}
	results.Failures = map[string]string{models.KPIRegionalRevenue: "timeout"}

	var buf bytes.Buffer
	require.NoError(t, g.Display(&buf, results))
	out := buf.String()

	assert.Contains(t, out, "REPEAT CUSTOMERS")
	assert.Contains(t, out, "Ann")
	assert.Contains(t, out, "₹1,200")
	assert.Contains(t, out, "degraded: timeout")
	assert.Contains(t, out, "(no rows)")
}

func TestDisplayValidation(t *testing.T) {
	g := newGenerator(t.TempDir())
	reports := []models.ValidationReport{{
		Dataset:       "orders",
		OverallStatus: models.StatusWarn,
		Checks: []models.Check{
			{Name: "order_id_not_null", Status: models.StatusPass},
			{Name: "price_consistency", Status: models.StatusWarn, Count: 2},
		},
	}}

	var buf bytes.Buffer
	require.NoError(t, g.DisplayValidation(&buf, reports))
	out := buf.String()

	assert.Contains(t, out, "VALIDATION ORDERS")
	assert.Contains(t, out, "price_consistency")
	assert.Contains(t, out, "WARN")
}

func TestDisplayLakeFiles(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, DisplayLakeFiles(&buf, nil))
	assert.Contains(t, buf.String(), "(no parquet files)")

	buf.Reset()
	require.NoError(t, DisplayLakeFiles(&buf, []*lake.FileInfo{{
		Path:      "data/gold/monthly_trends.parquet",
		Size:      2048,
		Rows:      12,
		RowGroups: 1,
		Fields:    []lake.Field{{Name: "month"}, {Name: "total_orders"}},
	}}))
	out := buf.String()
	assert.Contains(t, out, "monthly_trends.parquet")
	assert.Contains(t, out, "2.0 KiB")
	assert.Contains(t, out, "month,total_orders")
}

func TestDisplayRuns(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, DisplayRuns(&buf, []models.RunSummary{
		{RunID: "run-2", Status: models.RunStatusFailed, Stage: "silver", StartedAt: reportTime, FinishedAt: reportTime.Add(1500 * time.Millisecond)},
		{RunID: "run-1", Status: models.RunStatusSucceeded, Stage: "gold", StartedAt: reportTime, FinishedAt: reportTime.Add(time.Second), Orders: 7},
	}))
	out := buf.String()
	assert.Contains(t, out, "FAILED @ silver")
	assert.Contains(t, out, "1.5s")
	assert.Less(t, strings.Index(out, "run-2"), strings.Index(out, "run-1"))
}
