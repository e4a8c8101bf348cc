// Package report renders KPI results as text, JSON and chart files and as
// console tables.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"order-analytics/internal/gold"
	"order-analytics/internal/models"
	"order-analytics/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Report kinds written by WriteAll
const (
	KindText   = "text"
	KindJSON   = "json"
	KindCharts = "charts"
)

const ruleWidth = 60

// Summary is the executive summary of a run
type Summary struct {
	TotalRevenue    decimal.Decimal `json:"total_revenue"`
	TotalOrders     int64           `json:"total_orders"`
	RepeatCustomers int             `json:"repeat_customers"`
	RegionsCovered  int             `json:"regions_covered"`
}

// Summarize derives totals from the monthly trends and counts from the other
// KPI tables
func Summarize(results *models.KPIResults) Summary {
	var s Summary
	for _, m := range results.MonthlyTrends {
		s.TotalRevenue = s.TotalRevenue.Add(m.TotalRevenue)
		s.TotalOrders += m.TotalOrders
	}
	s.RepeatCustomers = len(results.RepeatCustomers)
	s.RegionsCovered = len(results.RegionalRevenue)
	return s
}

// Meta carries run details printed alongside the KPIs
type Meta struct {
	RunID      string
	Additional *models.BusinessMetrics
}

// Generator writes report files into a directory
type Generator struct {
	dir      string
	currency string
	now      func() time.Time
	printer  *message.Printer
	logger   *zap.Logger
}

func NewGenerator(dir, currency string, now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{
		dir:      dir,
		currency: currency,
		now:      now,
		printer:  message.NewPrinter(language.English),
		logger:   util.GetLogger(),
	}
}

// Money formats an amount as whole currency units with digit grouping
func (g *Generator) Money(v decimal.Decimal) string {
	return g.printer.Sprintf("%s%d", g.currency, v.Round(0).IntPart())
}

func (g *Generator) path(kind, ext string, at time.Time) string {
	return filepath.Join(g.dir, fmt.Sprintf("%s_%s.%s", kind, at.Format("20060102_150405"), ext))
}

func (g *Generator) create(path string) (*os.File, error) {
	if err := os.MkdirAll(g.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create reports directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create report: %w", err)
	}
	return f, nil
}

func (g *Generator) writeFile(path string, render func(io.Writer) error) error {
	f, err := g.create(path)
	if err != nil {
		return err
	}
	if err := render(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// WriteAll writes the text, JSON and chart reports and returns their paths
// keyed by kind
func (g *Generator) WriteAll(results *models.KPIResults, meta Meta) (map[string]string, error) {
	at := g.now().UTC()
	paths := map[string]string{
		KindText:   g.path("business_report", "txt", at),
		KindJSON:   g.path("business_report", "json", at),
		KindCharts: g.path("kpi_charts", "txt", at),
	}

	if err := g.writeFile(paths[KindText], func(w io.Writer) error { return g.RenderText(w, results, meta, at) }); err != nil {
		return nil, err
	}
	if err := g.writeFile(paths[KindJSON], func(w io.Writer) error { return g.RenderJSON(w, results, meta, at) }); err != nil {
		return nil, err
	}
	if err := g.writeFile(paths[KindCharts], func(w io.Writer) error { return g.RenderCharts(w, results) }); err != nil {
		return nil, err
	}

	g.logger.Info("Reports generated",
		zap.String("text", paths[KindText]),
		zap.String("json", paths[KindJSON]),
		zap.String("charts", paths[KindCharts]))
	return paths, nil
}

// WriteText writes only the text report
func (g *Generator) WriteText(results *models.KPIResults, meta Meta) (string, error) {
	at := g.now().UTC()
	path := g.path("business_report", "txt", at)
	return path, g.writeFile(path, func(w io.Writer) error { return g.RenderText(w, results, meta, at) })
}

// WriteJSON writes only the JSON report
func (g *Generator) WriteJSON(results *models.KPIResults, meta Meta) (string, error) {
	at := g.now().UTC()
	path := g.path("business_report", "json", at)
	return path, g.writeFile(path, func(w io.Writer) error { return g.RenderJSON(w, results, meta, at) })
}

// WriteCharts writes only the chart report
func (g *Generator) WriteCharts(results *models.KPIResults) (string, error) {
	path := g.path("kpi_charts", "txt", g.now().UTC())
	return path, g.writeFile(path, func(w io.Writer) error { return g.RenderCharts(w, results) })
}

type textWriter struct {
	w   io.Writer
	err error
}

func (t *textWriter) printf(format string, args ...interface{}) {
	if t.err == nil {
		_, t.err = fmt.Fprintf(t.w, format, args...)
	}
}

func (t *textWriter) section(title string) {
	t.printf("%s\n%s\n", title, strings.Repeat("-", 30))
}

// RenderText writes the plain text business report
func (g *Generator) RenderText(w io.Writer, results *models.KPIResults, meta Meta, at time.Time) error {
	t := &textWriter{w: w}
	summary := Summarize(results)

	t.printf("%s\nORDER ANALYTICS - BUSINESS REPORT\n%s\n", strings.Repeat("=", ruleWidth), strings.Repeat("=", ruleWidth))
	t.printf("Date: %s\n", at.Format("2006-01-02 15:04:05"))
	if meta.RunID != "" {
		t.printf("Run: %s\n", meta.RunID)
	}
	t.printf("\n")

	t.section("EXECUTIVE SUMMARY")
	t.printf("Total Revenue: %s\n", g.Money(summary.TotalRevenue))
	t.printf("Total Orders: %d\n", summary.TotalOrders)
	t.printf("Repeat Customers: %d\n", summary.RepeatCustomers)
	t.printf("Regions: %d\n\n", summary.RegionsCovered)

	t.section("REPEAT CUSTOMERS")
	if len(results.RepeatCustomers) == 0 {
		t.printf("No repeat customers\n")
	}
	for _, r := range results.RepeatCustomers {
		t.printf("- %s: %d orders\n", displayName(r.CustomerName), r.NumberOfOrders)
	}
	t.printf("\n")

	t.section("MONTHLY TRENDS")
	for _, m := range results.MonthlyTrends {
		t.printf("- %s: %d orders, %s\n", m.Month, m.TotalOrders, g.Money(m.TotalRevenue))
	}
	t.printf("\n")

	t.section("REGIONAL PERFORMANCE")
	for _, r := range results.RegionalRevenue {
		t.printf("- %s: %s\n", r.Region, g.Money(r.RegionalRevenue))
	}
	t.printf("\n")

	t.section("TOP CUSTOMERS (30 DAYS)")
	if len(results.TopCustomers30d) == 0 {
		t.printf("No recent customer activity\n")
	}
	for _, c := range results.TopCustomers30d {
		t.printf("- %s: %s\n", displayName(c.CustomerName), g.Money(c.RecentSpend))
	}
	t.printf("\n")

	if len(results.Failures) > 0 {
		t.section("DEGRADED KPIS")
		for _, name := range models.KPINames {
			if reason, ok := results.Failures[name]; ok {
				t.printf("- %s: %s\n", name, reason)
			}
		}
		t.printf("\n")
	}

	if meta.Additional != nil {
		t.section("CUSTOMER SEGMENTS")
		counts := map[string]int{}
		for _, s := range meta.Additional.CustomerSegmentation {
			counts[s.Segment]++
		}
		for _, seg := range []string{gold.SegmentVIP, gold.SegmentRegular, gold.SegmentOccasional, gold.SegmentNew} {
			if counts[seg] > 0 {
				t.printf("- %s: %d\n", seg, counts[seg])
			}
		}
		t.printf("\n")
	}

	t.printf("%s\nEnd of Report\n%s\n", strings.Repeat("=", ruleWidth), strings.Repeat("=", ruleWidth))
	return t.err
}

func displayName(name string) string {
	if name == "" {
		return "(unknown customer)"
	}
	return name
}

type jsonReport struct {
	ReportDate string                  `json:"report_date"`
	RunID      string                  `json:"run_id,omitempty"`
	Summary    Summary                 `json:"summary"`
	KPIs       map[string]interface{}  `json:"kpis"`
	Failures   map[string]string       `json:"failures,omitempty"`
	Additional *models.BusinessMetrics `json:"additional,omitempty"`
}

// RenderJSON writes the machine readable report
func (g *Generator) RenderJSON(w io.Writer, results *models.KPIResults, meta Meta, at time.Time) error {
	doc := jsonReport{
		ReportDate: at.Format(time.RFC3339),
		RunID:      meta.RunID,
		Summary:    Summarize(results),
		KPIs:       make(map[string]interface{}, len(models.KPINames)),
		Failures:   results.Failures,
		Additional: meta.Additional,
	}
	for _, name := range models.KPINames {
		table, _ := results.Table(name)
		doc.KPIs[name] = table
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}
