package models

import "github.com/shopspring/decimal"

// KPI names
const (
	KPIRepeatCustomers = "repeat_customers"
	KPIMonthlyTrends   = "monthly_trends"
	KPIRegionalRevenue = "regional_revenue"
	KPITopCustomers30d = "top_customers_30d"
)

// KPINames lists the four KPIs in report order
var KPINames = []string{KPIRepeatCustomers, KPIMonthlyTrends, KPIRegionalRevenue, KPITopCustomers30d}

// KPIColumns holds the output columns of each KPI table
var KPIColumns = map[string][]string{
	KPIRepeatCustomers: {"customer_name", "number_of_orders"},
	KPIMonthlyTrends:   {"month", "total_orders", "total_revenue"},
	KPIRegionalRevenue: {"region", "regional_revenue"},
	KPITopCustomers30d: {"customer_name", "recent_spend"},
}

// RepeatCustomer is a row of the repeat_customers KPI
type RepeatCustomer struct {
	CustomerName   string `db:"customer_name" json:"customer_name"`
	NumberOfOrders int64  `db:"number_of_orders" json:"number_of_orders"`
}

// MonthlyTrend is a row of the monthly_trends KPI
type MonthlyTrend struct {
	Month        string          `db:"month" json:"month"`
	TotalOrders  int64           `db:"total_orders" json:"total_orders"`
	TotalRevenue decimal.Decimal `db:"total_revenue" json:"total_revenue"`
}

// RegionalRevenue is a row of the regional_revenue KPI
type RegionalRevenue struct {
	Region          string          `db:"region" json:"region"`
	RegionalRevenue decimal.Decimal `db:"regional_revenue" json:"regional_revenue"`
}

// TopCustomer is a row of the top_customers_30d KPI
type TopCustomer struct {
	CustomerName string          `db:"customer_name" json:"customer_name"`
	RecentSpend  decimal.Decimal `db:"recent_spend" json:"recent_spend"`
}

// KPIResults bundles the four KPI tables. Failures maps a degraded KPI to the
// error that emptied it.
type KPIResults struct {
	RepeatCustomers []RepeatCustomer  `json:"repeat_customers"`
	MonthlyTrends   []MonthlyTrend    `json:"monthly_trends"`
	RegionalRevenue []RegionalRevenue `json:"regional_revenue"`
	TopCustomers30d []TopCustomer     `json:"top_customers_30d"`
	Failures        map[string]string `json:"failures,omitempty"`
}

// NewKPIResults returns results with every table empty but non-nil
func NewKPIResults() *KPIResults {
	return &KPIResults{
		RepeatCustomers: []RepeatCustomer{},
		MonthlyTrends:   []MonthlyTrend{},
		RegionalRevenue: []RegionalRevenue{},
		TopCustomers30d: []TopCustomer{},
	}
}

// RowCount returns the number of rows in the named KPI table
func (r *KPIResults) RowCount(name string) int {
	switch name {
	case KPIRepeatCustomers:
		return len(r.RepeatCustomers)
	case KPIMonthlyTrends:
		return len(r.MonthlyTrends)
	case KPIRegionalRevenue:
		return len(r.RegionalRevenue)
	case KPITopCustomers30d:
		return len(r.TopCustomers30d)
	}
	return 0
}

// Table returns the named KPI table as an interface value for encoding
func (r *KPIResults) Table(name string) (interface{}, bool) {
	switch name {
	case KPIRepeatCustomers:
		return r.RepeatCustomers, true
	case KPIMonthlyTrends:
		return r.MonthlyTrends, true
	case KPIRegionalRevenue:
		return r.RegionalRevenue, true
	case KPITopCustomers30d:
		return r.TopCustomers30d, true
	}
	return nil, false
}

// CustomerSegment is a row of the customer segmentation metric
type CustomerSegment struct {
	MobileNumber  string          `json:"mobile_number"`
	CustomerName  string          `json:"customer_name"`
	Region        string          `json:"region"`
	TotalSpent    decimal.Decimal `json:"total_spent"`
	AvgOrderValue decimal.Decimal `json:"avg_order_value"`
	OrderCount    int64           `json:"order_count"`
	LifetimeDays  int64           `json:"customer_lifetime_days"`
	Segment       string          `json:"segment"`
}

// ProductPerformance is a row of the product analysis metric
type ProductPerformance struct {
	SKUID             string          `json:"sku_id"`
	OrdersCount       int64           `json:"orders_count"`
	TotalUnitsSold    int64           `json:"total_units_sold"`
	TotalRevenue      decimal.Decimal `json:"total_revenue"`
	AvgRevenuePerUnit decimal.Decimal `json:"avg_revenue_per_unit"`
}

// SeasonalBucket is a row of a seasonal trend breakdown
type SeasonalBucket struct {
	Bucket       string          `json:"bucket"`
	Orders       int64           `json:"orders"`
	TotalRevenue decimal.Decimal `json:"total_revenue"`
}

// BusinessMetrics holds the optional metrics computed next to the KPIs
type BusinessMetrics struct {
	CustomerSegmentation []CustomerSegment    `json:"customer_segmentation"`
	ProductAnalysis      []ProductPerformance `json:"product_analysis"`
	MonthlySeasonality   []SeasonalBucket     `json:"monthly_seasonality"`
	WeekdaySeasonality   []SeasonalBucket     `json:"weekday_seasonality"`
	HourlySeasonality    []SeasonalBucket     `json:"hourly_seasonality"`
}
