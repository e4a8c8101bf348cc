package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"order-analytics/internal/lake"
	"order-analytics/internal/models"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#2E86AB"))

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))

	subtleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))

	statusStyles = map[models.CheckStatus]lipgloss.Style{
		models.StatusPass: lipgloss.NewStyle().Foreground(lipgloss.Color("#4ECDC4")),
		models.StatusWarn: lipgloss.NewStyle().Foreground(lipgloss.Color("#FFE66D")),
		models.StatusFail: lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")),
	}
)

// renderTable lays out rows in padded columns with a styled header
func renderTable(headers []string, rows [][]string) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if w := lipgloss.Width(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}

	var sb strings.Builder
	cells := make([]string, len(headers))
	for i, h := range headers {
		cells[i] = headerStyle.Width(widths[i] + 2).Render(h)
	}
	sb.WriteString(strings.TrimRight(strings.Join(cells, ""), " ") + "\n")

	rules := make([]string, len(headers))
	for i := range headers {
		rules[i] = strings.Repeat("-", widths[i])
	}
	sb.WriteString(strings.Join(rules, "  ") + "\n")

	for _, row := range rows {
		for i, cell := range row {
			cells[i] = cell + strings.Repeat(" ", widths[i]-lipgloss.Width(cell))
		}
		sb.WriteString(strings.TrimRight(strings.Join(cells, "  "), " ") + "\n")
	}
	return sb.String()
}

// Display prints every KPI table to w
func (g *Generator) Display(w io.Writer, results *models.KPIResults) error {
	var sb strings.Builder

	section := func(name string, headers []string, rows [][]string) {
		sb.WriteString(titleStyle.Render(strings.ToUpper(strings.ReplaceAll(name, "_", " "))) + "\n")
		if reason, failed := results.Failures[name]; failed {
			sb.WriteString(statusStyles[models.StatusFail].Render("degraded: "+reason) + "\n\n")
			return
		}
		if len(rows) == 0 {
			sb.WriteString(subtleStyle.Render("(no rows)") + "\n\n")
			return
		}
		sb.WriteString(renderTable(headers, rows) + "\n")
	}

	rows := make([][]string, 0, len(results.RepeatCustomers))
	for _, r := range results.RepeatCustomers {
		rows = append(rows, []string{displayName(r.CustomerName), fmt.Sprint(r.NumberOfOrders)})
	}
	section(models.KPIRepeatCustomers, []string{"Customer", "Orders"}, rows)

	rows = make([][]string, 0, len(results.MonthlyTrends))
	for _, m := range results.MonthlyTrends {
		rows = append(rows, []string{m.Month, fmt.Sprint(m.TotalOrders), g.Money(m.TotalRevenue)})
	}
	section(models.KPIMonthlyTrends, []string{"Month", "Orders", "Revenue"}, rows)

	rows = make([][]string, 0, len(results.RegionalRevenue))
	for _, r := range results.RegionalRevenue {
		rows = append(rows, []string{r.Region, g.Money(r.RegionalRevenue)})
	}
	section(models.KPIRegionalRevenue, []string{"Region", "Revenue"}, rows)

	rows = make([][]string, 0, len(results.TopCustomers30d))
	for _, c := range results.TopCustomers30d {
		rows = append(rows, []string{displayName(c.CustomerName), g.Money(c.RecentSpend)})
	}
	section(models.KPITopCustomers30d, []string{"Customer", "Spend"}, rows)

	_, err := io.WriteString(w, sb.String())
	return err
}

// DisplayValidation prints the checks of each validation report
func (g *Generator) DisplayValidation(w io.Writer, reports []models.ValidationReport) error {
	var sb strings.Builder
	for _, r := range reports {
		status := statusStyles[r.OverallStatus].Render(string(r.OverallStatus))
		sb.WriteString(titleStyle.Render(fmt.Sprintf("VALIDATION %s", strings.ToUpper(r.Dataset))) + " " + status + "\n")

		rows := make([][]string, 0, len(r.Checks))
		for _, c := range r.Checks {
			rows = append(rows, []string{c.Name, string(c.Status), fmt.Sprint(c.Count)})
		}
		sb.WriteString(renderTable([]string{"Check", "Status", "Count"}, rows) + "\n")
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

// DisplayLakeFiles prints one line per parquet file with its footer summary
func DisplayLakeFiles(w io.Writer, files []*lake.FileInfo) error {
	if len(files) == 0 {
		_, err := io.WriteString(w, subtleStyle.Render("(no parquet files)")+"\n")
		return err
	}
	rows := make([][]string, 0, len(files))
	for _, f := range files {
		names := make([]string, len(f.Fields))
		for i, field := range f.Fields {
			names[i] = field.Name
		}
		rows = append(rows, []string{
			f.Path,
			fmt.Sprint(f.Rows),
			fmt.Sprint(f.RowGroups),
			fmt.Sprintf("%.1f KiB", float64(f.Size)/1024),
			strings.Join(names, ","),
		})
	}
	_, err := io.WriteString(w, renderTable([]string{"File", "Rows", "Groups", "Size", "Columns"}, rows))
	return err
}

// DisplayRuns prints recorded run summaries, newest first
func DisplayRuns(w io.Writer, runs []models.RunSummary) error {
	if len(runs) == 0 {
		_, err := io.WriteString(w, subtleStyle.Render("(no runs recorded)")+"\n")
		return err
	}
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		status := r.Status
		if r.Status == models.RunStatusFailed {
			status = statusStyles[models.StatusFail].Render(r.Status + " @ " + r.Stage)
		}
		rows = append(rows, []string{
			r.RunID,
			r.StartedAt.UTC().Format(time.RFC3339),
			status,
			r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String(),
			fmt.Sprint(r.Orders),
			fmt.Sprint(r.Mismatches),
		})
	}
	_, err := io.WriteString(w, renderTable([]string{"Run", "Started", "Status", "Took", "Orders", "Mismatches"}, rows))
	return err
}
