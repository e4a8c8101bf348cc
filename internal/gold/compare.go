package gold

import (
	"fmt"

	"order-analytics/internal/models"
)

// Mismatch describes one difference between two KPI result sets
type Mismatch struct {
	KPI    string `json:"kpi"`
	Row    int    `json:"row"`
	Detail string `json:"detail"`
}

func (m Mismatch) String() string {
	if m.Row < 0 {
		return fmt.Sprintf("%s: %s", m.KPI, m.Detail)
	}
	return fmt.Sprintf("%s row %d: %s", m.KPI, m.Row, m.Detail)
}

// Compare reports every row-level difference between two result sets. Money
// must match exactly. KPIs degraded in either set are skipped.
func Compare(a, b *models.KPIResults) []Mismatch {
	var out []Mismatch
	skip := func(name string) bool {
		_, fa := a.Failures[name]
		_, fb := b.Failures[name]
		return fa || fb
	}

	if !skip(models.KPIRepeatCustomers) {
		out = append(out, compareRows(models.KPIRepeatCustomers, a.RepeatCustomers, b.RepeatCustomers,
			func(x, y models.RepeatCustomer) string {
				if x.CustomerName != y.CustomerName || x.NumberOfOrders != y.NumberOfOrders {
					return fmt.Sprintf("(%q, %d) != (%q, %d)", x.CustomerName, x.NumberOfOrders, y.CustomerName, y.NumberOfOrders)
				}
				return ""
			})...)
	}
	if !skip(models.KPIMonthlyTrends) {
		out = append(out, compareRows(models.KPIMonthlyTrends, a.MonthlyTrends, b.MonthlyTrends,
			func(x, y models.MonthlyTrend) string {
				if x.Month != y.Month || x.TotalOrders != y.TotalOrders || !x.TotalRevenue.Equal(y.TotalRevenue) {
					return fmt.Sprintf("(%s, %d, %s) != (%s, %d, %s)", x.Month, x.TotalOrders, x.TotalRevenue, y.Month, y.TotalOrders, y.TotalRevenue)
				}
				return ""
			})...)
	}
	if !skip(models.KPIRegionalRevenue) {
		out = append(out, compareRows(models.KPIRegionalRevenue, a.RegionalRevenue, b.RegionalRevenue,
			func(x, y models.RegionalRevenue) string {
				if x.Region != y.Region || !x.RegionalRevenue.Equal(y.RegionalRevenue) {
					return fmt.Sprintf("(%s, %s) != (%s, %s)", x.Region, x.RegionalRevenue, y.Region, y.RegionalRevenue)
				}
				return ""
			})...)
	}
	if !skip(models.KPITopCustomers30d) {
		out = append(out, compareRows(models.KPITopCustomers30d, a.TopCustomers30d, b.TopCustomers30d,
			func(x, y models.TopCustomer) string {
				if x.CustomerName != y.CustomerName || !x.RecentSpend.Equal(y.RecentSpend) {
					return fmt.Sprintf("(%q, %s) != (%q, %s)", x.CustomerName, x.RecentSpend, y.CustomerName, y.RecentSpend)
				}
				return ""
			})...)
	}
	return out
}

func compareRows[T any](kpi string, a, b []T, diff func(x, y T) string) []Mismatch {
	if len(a) != len(b) {
		return []Mismatch{{KPI: kpi, Row: -1, Detail: fmt.Sprintf("row count %d != %d", len(a), len(b))}}
	}
	var out []Mismatch
	for i := range a {
		if d := diff(a[i], b[i]); d != "" {
			out = append(out, Mismatch{KPI: kpi, Row: i, Detail: d})
		}
	}
	return out
}
