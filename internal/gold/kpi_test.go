package gold

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	apperrors "order-analytics/internal/errors"
	"order-analytics/internal/models"
	"order-analytics/internal/silver"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 10, 0, 0, 0, time.UTC)
}

// money returns v at the scale the cleaner produces
func money(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(models.MoneyPlaces)
}

func line(orderID, mobile string, at time.Time, amount float64) models.OrderLineItem {
	return models.OrderLineItem{OrderID: orderID, MobileNumber: mobile, OrderDateTime: at, SKUID: "S", SKUCount: 1, TotalAmount: money(amount)}
}

func buildSilver(customers []models.Customer, orders []models.OrderLineItem) *models.SilverData {
	e := silver.NewEnricher()
	ec := e.EnrichCustomers(customers)
	return &models.SilverData{
		Customers:       ec,
		Orders:          e.EnrichOrders(orders, ec),
		CustomerColumns: models.EnrichedCustomerColumns,
		OrderColumns:    models.EnrichedOrderColumns,
	}
}

func compute(t *testing.T, data *models.SilverData) *models.KPIResults {
	t.Helper()
	res, err := NewCalculator(NewMemoryExecutor(DefaultParams())).Compute(context.Background(), data)
	require.NoError(t, err)
	return res
}

func TestMonthlyTrends_SumsLineItems(t *testing.T) {
	data := buildSilver(
		[]models.Customer{{CustomerID: "C1", CustomerName: "Ann", MobileNumber: "9999999999", Region: "North"}},
		[]models.OrderLineItem{
			line("O1", "9999999999", day(2025, 1, 5), 50),
			line("O1", "9999999999", day(2025, 1, 5), 70),
		})

	res := compute(t, data)

	assert.Equal(t, []models.MonthlyTrend{{Month: "2025-01", TotalOrders: 1, TotalRevenue: money(120)}}, res.MonthlyTrends)
	assert.Equal(t, []models.RegionalRevenue{{Region: "North", RegionalRevenue: money(120)}}, res.RegionalRevenue)
	assert.Empty(t, res.RepeatCustomers)
	assert.Empty(t, res.Failures)
}

func TestRepeatCustomers_DistinctOrders(t *testing.T) {
	data := buildSilver(
		[]models.Customer{
			{CustomerID: "C1", CustomerName: "Ann", MobileNumber: "1111111111", Region: "North"},
			{CustomerID: "C2", CustomerName: "Bob", MobileNumber: "2222222222", Region: "South"},
			{CustomerID: "C3", CustomerName: "Cat", MobileNumber: "3333333333", Region: "East"},
		},
		[]models.OrderLineItem{
			line("O1", "1111111111", day(2025, 1, 1), 10),
			line("O2", "1111111111", day(2025, 1, 2), 10),
			line("O3", "2222222222", day(2025, 1, 3), 10),
			line("O3", "2222222222", day(2025, 1, 3), 10),
			line("O4", "3333333333", day(2025, 1, 4), 10),
			line("O5", "3333333333", day(2025, 1, 5), 10),
			line("O6", "3333333333", day(2025, 1, 6), 10),
			line("O7", "4444444444", day(2025, 1, 7), 10),
			line("O8", "4444444444", day(2025, 1, 8), 10),
		})

	res := compute(t, data)

	assert.Equal(t, []models.RepeatCustomer{
		{CustomerName: "Cat", NumberOfOrders: 3},
		{CustomerName: "", NumberOfOrders: 2},
		{CustomerName: "Ann", NumberOfOrders: 2},
	}, res.RepeatCustomers)
}

func TestRegionalRevenue_UnmatchedIsUnknown(t *testing.T) {
	data := buildSilver(
		[]models.Customer{{CustomerID: "C1", CustomerName: "Ann", MobileNumber: "1111111111", Region: "West"}},
		[]models.OrderLineItem{
			line("O1", "1111111111", day(2025, 1, 1), 100),
			line("O1", "1111111111", day(2025, 1, 1), 50),
			line("O2", "5555555555", day(2025, 1, 2), 150),
			line("O3", "6666666666", day(2025, 2, 2), 20.01),
		})

	res := compute(t, data)

	assert.Equal(t, []models.RegionalRevenue{
		{Region: "Unknown", RegionalRevenue: money(170.01)},
		{Region: "West", RegionalRevenue: money(150)},
	}, res.RegionalRevenue)
}

func TestRevenue_SubCentAmountsAgreeAcrossKPIs(t *testing.T) {
	amount, ok := silver.ParseAmount("10.125")
	require.True(t, ok)

	var orders []models.OrderLineItem
	for m := time.January; m <= time.June; m++ {
		o := line(fmt.Sprintf("O%d", m), "1111111111", day(2025, m, 1), 0)
		o.TotalAmount = amount
		orders = append(orders, o)
	}
	data := buildSilver(
		[]models.Customer{{CustomerID: "C1", CustomerName: "Ann", MobileNumber: "1111111111", Region: "North"}},
		orders)

	res := compute(t, data)

	monthly := decimal.Zero
	for _, m := range res.MonthlyTrends {
		assert.Equal(t, "10.13", m.TotalRevenue.StringFixed(2))
		monthly = monthly.Add(m.TotalRevenue)
	}
	require.Len(t, res.RegionalRevenue, 1)
	assert.Equal(t, "60.78", monthly.String())
	assert.True(t, monthly.Equal(res.RegionalRevenue[0].RegionalRevenue), "regional %s", res.RegionalRevenue[0].RegionalRevenue)
}

func TestTopCustomers_WindowAnchoredToData(t *testing.T) {
	data := buildSilver(
		[]models.Customer{
			{CustomerID: "C1", CustomerName: "Ann", MobileNumber: "1111111111", Region: "North"},
			{CustomerID: "C2", CustomerName: "Bob", MobileNumber: "2222222222", Region: "South"},
		},
		[]models.OrderLineItem{
			line("O1", "1111111111", day(2020, 1, 1), 1000),
			line("O2", "1111111111", day(2020, 3, 1), 10),
			line("O3", "2222222222", day(2020, 2, 15), 30),
			line("O3", "2222222222", day(2020, 2, 15), 30),
			line("O4", "2222222222", day(2020, 1, 30), 5),
		})

	res := compute(t, data)

	assert.Equal(t, []models.TopCustomer{
		{CustomerName: "Bob", RecentSpend: money(60)},
		{CustomerName: "Ann", RecentSpend: money(10)},
	}, res.TopCustomers30d)
}

func TestTopCustomers_LimitsToTopN(t *testing.T) {
	var orders []models.OrderLineItem
	for i := 0; i < 5; i++ {
		orders = append(orders, line(fmt.Sprintf("O%d", i), fmt.Sprintf("900000000%d", i), day(2025, 1, 1), float64(10*(i+1))))
	}
	data := buildSilver(nil, orders)

	res, err := NewCalculator(NewMemoryExecutor(Params{WindowDays: 30, TopN: 2})).Compute(context.Background(), data)
	require.NoError(t, err)

	require.Len(t, res.TopCustomers30d, 2)
	assert.Equal(t, money(50), res.TopCustomers30d[0].RecentSpend)
	assert.Equal(t, money(40), res.TopCustomers30d[1].RecentSpend)
}

func TestCompute_EmptyInput(t *testing.T) {
	res := compute(t, buildSilver(nil, nil))

	assert.NotNil(t, res.RepeatCustomers)
	assert.NotNil(t, res.MonthlyTrends)
	assert.NotNil(t, res.RegionalRevenue)
	assert.NotNil(t, res.TopCustomers30d)
	for _, name := range models.KPINames {
		assert.Equal(t, 0, res.RowCount(name), name)
	}
}

func TestCompute_MissingColumnsIsFatal(t *testing.T) {
	data := buildSilver(nil, nil)
	data.OrderColumns = []string{models.ColOrderID, models.ColMobileNumber}

	_, err := NewCalculator(NewMemoryExecutor(DefaultParams())).Compute(context.Background(), data)
	require.Error(t, err)

	var se *apperrors.SchemaError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, []string{"orders.order_date_time", "orders.region", "orders.total_amount"}, se.Columns)
}

// brokenExecutor fails two KPIs, one by error and one by panic
type brokenExecutor struct {
	*MemoryExecutor
}

func (b brokenExecutor) MonthlyTrends(context.Context, *models.SilverData) ([]models.MonthlyTrend, error) {
	return nil, errors.New("monthly boom")
}

func (b brokenExecutor) RegionalRevenue(context.Context, *models.SilverData) ([]models.RegionalRevenue, error) {
	panic("regional boom")
}

func TestCompute_IsolatesFailures(t *testing.T) {
	data := buildSilver(
		[]models.Customer{{CustomerID: "C1", CustomerName: "Ann", MobileNumber: "1111111111", Region: "North"}},
		[]models.OrderLineItem{
			line("O1", "1111111111", day(2025, 1, 1), 10),
			line("O2", "1111111111", day(2025, 1, 2), 10),
		})

	res, err := NewCalculator(brokenExecutor{NewMemoryExecutor(DefaultParams())}).Compute(context.Background(), data)
	require.NoError(t, err)

	assert.Empty(t, res.MonthlyTrends)
	assert.NotNil(t, res.MonthlyTrends)
	assert.Empty(t, res.RegionalRevenue)
	assert.Contains(t, res.Failures[models.KPIMonthlyTrends], "monthly boom")
	assert.Contains(t, res.Failures[models.KPIRegionalRevenue], "regional boom")
	assert.Len(t, res.RepeatCustomers, 1)
	assert.Len(t, res.TopCustomers30d, 1)
}

type genOrder struct {
	OrderIdx int
	SKUIdx   int
	Mills    int
}

func genOrders() gopter.Gen {
	return gen.SliceOf(gopter.CombineGens(
		gen.IntRange(0, 11),
		gen.IntRange(0, 5),
		gen.IntRange(5, 5000000),
	).Map(func(v []interface{}) genOrder {
		return genOrder{OrderIdx: v[0].(int), SKUIdx: v[1].(int), Mills: v[2].(int)}
	}))
}

// propertySilver derives a silver dataset where every item of a logical
// order shares its mobile number and timestamp. Orders spread over most of a
// year and over matched and unmatched customers; amounts carry a third
// decimal that the cleaner's rounding removes.
func propertySilver(rows []genOrder) *models.SilverData {
	customers := []models.Customer{
		{CustomerID: "C0", CustomerName: "Ann", MobileNumber: "9000000000", Region: "North"},
		{CustomerID: "C1", CustomerName: "Bob", MobileNumber: "9000000001", Region: "South"},
		{CustomerID: "C2", CustomerName: "Ann", MobileNumber: "9000000002", Region: "East"},
		{CustomerID: "C3", CustomerName: "Dee", MobileNumber: "9000000001", Region: "West"},
		{CustomerID: "C4", CustomerName: "Eve", MobileNumber: "9000000003", Region: "West"},
	}
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var orders []models.OrderLineItem
	for _, r := range rows {
		amount, _ := silver.ParseAmount(decimal.New(int64(r.Mills), -3).String())
		orders = append(orders, models.OrderLineItem{
			OrderID:       fmt.Sprintf("O%d", r.OrderIdx),
			MobileNumber:  fmt.Sprintf("900000000%d", r.OrderIdx%6),
			OrderDateTime: base.AddDate(0, 0, r.OrderIdx*29),
			SKUID:         fmt.Sprintf("S%d", r.SKUIdx),
			SKUCount:      1,
			TotalAmount:   amount,
		})
	}
	return buildSilver(customers, orders)
}

func TestKPI_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)
	calc := NewCalculator(NewMemoryExecutor(DefaultParams()))

	properties.Property("regional and monthly totals equal the collapsed order total", prop.ForAll(
		func(rows []genOrder) bool {
			data := propertySilver(rows)
			res, err := calc.Compute(context.Background(), data)
			if err != nil {
				return false
			}
			total, regional, monthly := decimal.Zero, decimal.Zero, decimal.Zero
			for _, lo := range CollapseOrders(data.Orders, data.Customers) {
				total = total.Add(lo.TotalAmount)
			}
			for _, r := range res.RegionalRevenue {
				if !r.RegionalRevenue.Equal(r.RegionalRevenue.Round(models.MoneyPlaces)) {
					return false
				}
				regional = regional.Add(r.RegionalRevenue)
			}
			for _, m := range res.MonthlyTrends {
				if !m.TotalRevenue.Equal(m.TotalRevenue.Round(models.MoneyPlaces)) {
					return false
				}
				monthly = monthly.Add(m.TotalRevenue)
			}
			return regional.Equal(total) && monthly.Equal(total)
		},
		genOrders(),
	))

	properties.Property("repeat customers have more than one distinct order", prop.ForAll(
		func(rows []genOrder) bool {
			data := propertySilver(rows)
			res, err := calc.Compute(context.Background(), data)
			if err != nil {
				return false
			}
			distinct := map[string]map[string]bool{}
			for _, o := range data.Orders {
				if distinct[o.MobileNumber] == nil {
					distinct[o.MobileNumber] = map[string]bool{}
				}
				distinct[o.MobileNumber][o.OrderID] = true
			}
			expected := 0
			for _, ids := range distinct {
				if len(ids) > 1 {
					expected++
				}
			}
			if len(res.RepeatCustomers) != expected {
				return false
			}
			for i, r := range res.RepeatCustomers {
				if r.NumberOfOrders <= 1 {
					return false
				}
				if i > 0 && res.RepeatCustomers[i-1].NumberOfOrders < r.NumberOfOrders {
					return false
				}
			}
			return true
		},
		genOrders(),
	))

	properties.Property("top customers are empty only without orders", prop.ForAll(
		func(rows []genOrder) bool {
			data := propertySilver(rows)
			res, err := calc.Compute(context.Background(), data)
			if err != nil {
				return false
			}
			return (len(res.TopCustomers30d) == 0) == (len(data.Orders) == 0) && len(res.TopCustomers30d) <= 10
		},
		genOrders(),
	))

	properties.TestingRun(t)
}
