// Package gold computes the business KPIs from silver data.
package gold

import (
	"context"
	"sort"
	"time"

	"order-analytics/internal/models"

	"github.com/shopspring/decimal"
)

// Params configures the windowed KPI
type Params struct {
	WindowDays int
	TopN       int
}

// DefaultParams returns a 30 day window and a top 10 cut
func DefaultParams() Params {
	return Params{WindowDays: 30, TopN: 10}
}

func (p Params) normalised() Params {
	d := DefaultParams()
	if p.WindowDays <= 0 {
		p.WindowDays = d.WindowDays
	}
	if p.TopN <= 0 {
		p.TopN = d.TopN
	}
	return p
}

// Executor computes each KPI table from silver data. Implementations must
// agree row for row on the same input.
type Executor interface {
	Name() string
	RepeatCustomers(ctx context.Context, silver *models.SilverData) ([]models.RepeatCustomer, error)
	MonthlyTrends(ctx context.Context, silver *models.SilverData) ([]models.MonthlyTrend, error)
	RegionalRevenue(ctx context.Context, silver *models.SilverData) ([]models.RegionalRevenue, error)
	TopCustomers(ctx context.Context, silver *models.SilverData) ([]models.TopCustomer, error)
}

// Preparer is implemented by executors that must stage the silver data
// before any KPI can be computed
type Preparer interface {
	Prepare(ctx context.Context, silver *models.SilverData) error
}

// MemoryExecutor computes the KPIs in process
type MemoryExecutor struct {
	params Params
}

func NewMemoryExecutor(params Params) *MemoryExecutor {
	return &MemoryExecutor{params: params.normalised()}
}

func (m *MemoryExecutor) Name() string { return "memory" }

// RepeatCustomers counts distinct order ids per mobile number and keeps the
// numbers with more than one order
func (m *MemoryExecutor) RepeatCustomers(_ context.Context, silver *models.SilverData) ([]models.RepeatCustomer, error) {
	idx := indexCustomers(silver.Customers)

	distinct := make(map[string]map[string]struct{})
	for _, o := range silver.Orders {
		ids, ok := distinct[o.MobileNumber]
		if !ok {
			ids = make(map[string]struct{})
			distinct[o.MobileNumber] = ids
		}
		ids[o.OrderID] = struct{}{}
	}

	type row struct {
		mobile string
		name   string
		count  int64
	}
	rows := make([]row, 0)
	for mobile, ids := range distinct {
		if len(ids) > 1 {
			rows = append(rows, row{mobile: mobile, name: idx.name(mobile), count: int64(len(ids))})
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].count != rows[j].count {
			return rows[i].count > rows[j].count
		}
		if rows[i].name != rows[j].name {
			return rows[i].name < rows[j].name
		}
		return rows[i].mobile < rows[j].mobile
	})

	out := make([]models.RepeatCustomer, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.RepeatCustomer{CustomerName: r.name, NumberOfOrders: r.count})
	}
	return out, nil
}

// MonthlyTrends groups logical orders by calendar month
func (m *MemoryExecutor) MonthlyTrends(_ context.Context, silver *models.SilverData) ([]models.MonthlyTrend, error) {
	byMonth := make(map[string]*models.MonthlyTrend)
	for _, lo := range CollapseOrders(silver.Orders, silver.Customers) {
		month := lo.OrderDateTime.UTC().Format("2006-01")
		t, ok := byMonth[month]
		if !ok {
			t = &models.MonthlyTrend{Month: month}
			byMonth[month] = t
		}
		t.TotalOrders++
		t.TotalRevenue = t.TotalRevenue.Add(lo.TotalAmount)
	}

	out := make([]models.MonthlyTrend, 0, len(byMonth))
	for _, t := range byMonth {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out, nil
}

// RegionalRevenue sums logical order amounts per region
func (m *MemoryExecutor) RegionalRevenue(_ context.Context, silver *models.SilverData) ([]models.RegionalRevenue, error) {
	byRegion := make(map[string]decimal.Decimal)
	for _, lo := range CollapseOrders(silver.Orders, silver.Customers) {
		byRegion[lo.Region] = byRegion[lo.Region].Add(lo.TotalAmount)
	}

	out := make([]models.RegionalRevenue, 0, len(byRegion))
	for region, revenue := range byRegion {
		out = append(out, models.RegionalRevenue{Region: region, RegionalRevenue: revenue})
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].RegionalRevenue.Cmp(out[j].RegionalRevenue); c != 0 {
			return c > 0
		}
		return out[i].Region < out[j].Region
	})
	return out, nil
}

// WindowCutoff returns the start of the recent window, anchored to the latest
// logical order timestamp. ok is false when there are no orders.
func WindowCutoff(orders []models.LogicalOrder, windowDays int) (cutoff time.Time, ok bool) {
	var latest time.Time
	for i, lo := range orders {
		if i == 0 || lo.OrderDateTime.After(latest) {
			latest = lo.OrderDateTime
		}
	}
	if len(orders) == 0 {
		return time.Time{}, false
	}
	return latest.AddDate(0, 0, -windowDays), true
}

// TopCustomers ranks mobile numbers by spend on logical orders inside the
// recent window
func (m *MemoryExecutor) TopCustomers(_ context.Context, silver *models.SilverData) ([]models.TopCustomer, error) {
	logical := CollapseOrders(silver.Orders, silver.Customers)
	cutoff, ok := WindowCutoff(logical, m.params.WindowDays)
	if !ok {
		return []models.TopCustomer{}, nil
	}

	spend := make(map[string]decimal.Decimal)
	for _, lo := range logical {
		if !lo.OrderDateTime.Before(cutoff) {
			spend[lo.MobileNumber] = spend[lo.MobileNumber].Add(lo.TotalAmount)
		}
	}

	idx := indexCustomers(silver.Customers)
	type row struct {
		mobile string
		name   string
		spend  decimal.Decimal
	}
	rows := make([]row, 0, len(spend))
	for mobile, total := range spend {
		rows = append(rows, row{mobile: mobile, name: idx.name(mobile), spend: total})
	}
	sort.Slice(rows, func(i, j int) bool {
		if c := rows[i].spend.Cmp(rows[j].spend); c != 0 {
			return c > 0
		}
		if rows[i].name != rows[j].name {
			return rows[i].name < rows[j].name
		}
		return rows[i].mobile < rows[j].mobile
	})
	if len(rows) > m.params.TopN {
		rows = rows[:m.params.TopN]
	}

	out := make([]models.TopCustomer, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.TopCustomer{CustomerName: r.name, RecentSpend: r.spend})
	}
	return out, nil
}
