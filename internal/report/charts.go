package report

import (
	"fmt"
	"io"
	"math"
	"strings"

	"order-analytics/internal/models"
)

const barWidth = 40

type bar struct {
	label string
	value float64
	text  string
}

// RenderCharts draws horizontal bar charts for monthly revenue, regional
// revenue and the top customers
func (g *Generator) RenderCharts(w io.Writer, results *models.KPIResults) error {
	monthly := make([]bar, 0, len(results.MonthlyTrends))
	for _, m := range results.MonthlyTrends {
		monthly = append(monthly, bar{label: m.Month, value: m.TotalRevenue.InexactFloat64(), text: g.Money(m.TotalRevenue)})
	}
	regional := make([]bar, 0, len(results.RegionalRevenue))
	for _, r := range results.RegionalRevenue {
		regional = append(regional, bar{label: r.Region, value: r.RegionalRevenue.InexactFloat64(), text: g.Money(r.RegionalRevenue)})
	}
	top := make([]bar, 0, len(results.TopCustomers30d))
	for _, c := range results.TopCustomers30d {
		top = append(top, bar{label: displayName(c.CustomerName), value: c.RecentSpend.InexactFloat64(), text: g.Money(c.RecentSpend)})
	}
	repeat := make([]bar, 0, len(results.RepeatCustomers))
	for _, r := range results.RepeatCustomers {
		repeat = append(repeat, bar{label: displayName(r.CustomerName), value: float64(r.NumberOfOrders), text: fmt.Sprint(r.NumberOfOrders)})
	}

	for _, chart := range []struct {
		title string
		bars  []bar
	}{
		{"Monthly Revenue Trend", monthly},
		{"Regional Revenue Distribution", regional},
		{"Top Customers by Spending (Last 30 Days)", top},
		{"Repeat Customers by Orders", repeat},
	} {
		if _, err := io.WriteString(w, drawChart(chart.title, chart.bars)); err != nil {
			return err
		}
	}
	return nil
}

func drawChart(title string, bars []bar) string {
	var sb strings.Builder
	sb.WriteString(title + "\n")
	sb.WriteString(strings.Repeat("-", len(title)) + "\n")
	if len(bars) == 0 {
		sb.WriteString("(no data)\n\n")
		return sb.String()
	}

	labelWidth, max := 0, 0.0
	for _, b := range bars {
		if n := len([]rune(b.label)); n > labelWidth {
			labelWidth = n
		}
		max = math.Max(max, b.value)
	}

	for _, b := range bars {
		n := 0
		if max > 0 {
			n = int(math.Round(b.value / max * barWidth))
		}
		if n == 0 && b.value > 0 {
			n = 1
		}
		pad := labelWidth - len([]rune(b.label))
		fmt.Fprintf(&sb, "%s%s | %s %s\n", b.label, strings.Repeat(" ", pad), strings.Repeat("█", n), b.text)
	}
	sb.WriteString("\n")
	return sb.String()
}
