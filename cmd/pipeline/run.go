package main

import (
	"fmt"
	"io"
	"time"

	"order-analytics/internal/pipeline"
	"order-analytics/internal/report"

	"github.com/spf13/cobra"
)

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute one bronze, silver and gold run",
		Long: `Run the full pipeline once against the configured input files.

Stage snapshots are written as parquet under <data-dir>/lake and the text,
JSON and chart reports under the reports directory. The command exits with
a non-zero status when any stage fails.`,
		RunE: runPipeline,
	}

	cmd.Flags().String("customers", "", "customers CSV path (default PIPELINE_CUSTOMERS_CSV)")
	cmd.Flags().String("orders", "", "orders XML path (default PIPELINE_ORDERS_XML)")
	cmd.Flags().Bool("strict", false, "abort when a validation report fails")
	cmd.Flags().Bool("no-additional", false, "skip segmentation, product and seasonal metrics")
	cmd.Flags().Bool("no-crosscheck", false, "skip the SQL cross-check")
	cmd.Flags().Bool("quiet", false, "do not print the KPI tables")

	return cmd
}

func runPipeline(cmd *cobra.Command, _ []string) error {
	if v, _ := cmd.Flags().GetString("customers"); v != "" {
		cfg.Pipeline.CustomersCSV = v
	}
	if v, _ := cmd.Flags().GetString("orders"); v != "" {
		cfg.Pipeline.OrdersXML = v
	}
	if v, _ := cmd.Flags().GetBool("strict"); v {
		cfg.Pipeline.StrictValidation = true
	}
	if v, _ := cmd.Flags().GetBool("no-additional"); v {
		cfg.Pipeline.AdditionalMetrics = false
	}
	if v, _ := cmd.Flags().GetBool("no-crosscheck"); v {
		cfg.Pipeline.SQLCrossCheck = false
	}
	quiet, _ := cmd.Flags().GetBool("quiet")

	ctx := cmd.Context()
	a := newApp(ctx, cfg, "order-analytics-run")
	defer a.Close()

	result, err := a.orchestrator().Run(ctx)
	if err != nil {
		return fmt.Errorf("pipeline run failed: %w", err)
	}

	if !quiet {
		out := cmd.OutOrStdout()
		g := report.NewGenerator(cfg.Pipeline.ReportsDir, cfg.Pipeline.Currency, nil)
		if err := g.DisplayValidation(out, result.Silver.Validation); err != nil {
			return err
		}
		if err := g.Display(out, result.Gold.KPIs); err != nil {
			return err
		}
		printRunFooter(out, result)
	}
	return nil
}

func printRunFooter(w io.Writer, result *pipeline.RunResult) {
	fmt.Fprintf(w, "run %s finished in %s\n", result.RunID, result.Duration.Round(time.Millisecond))
	for _, kind := range []string{report.KindText, report.KindJSON, report.KindCharts} {
		if path, ok := result.Gold.Reports[kind]; ok {
			fmt.Fprintf(w, "  %-6s %s\n", kind, path)
		}
	}
	for _, m := range result.Gold.Mismatches {
		fmt.Fprintf(w, "  cross-check: %s\n", m)
	}
	for _, name := range result.Gold.CrossCheckSkipped {
		fmt.Fprintf(w, "  cross-check skipped: %s\n", name)
	}
}
