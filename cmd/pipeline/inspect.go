package main

import (
	"fmt"

	"order-analytics/internal/lake"
	"order-analytics/internal/report"

	"github.com/spf13/cobra"
)

func inspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect [bronze|silver|gold]",
		Short: "Show the parquet snapshots of the last run",
		Long: `List the parquet files written by the last run with their row counts,
row groups and columns. Pass a layer to restrict the listing.`,
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{lake.LayerBronze, lake.LayerSilver, lake.LayerGold},
		RunE:      runInspect,
	}

	runs := &cobra.Command{
		Use:   "runs",
		Short: "Show recorded run summaries",
		Args:  cobra.NoArgs,
		RunE:  runInspectRuns,
	}
	runs.Flags().Int("limit", 20, "number of runs to show")
	cmd.AddCommand(runs)

	return cmd
}

func runInspect(cmd *cobra.Command, args []string) error {
	layer := ""
	if len(args) == 1 {
		layer = args[0]
		switch layer {
		case lake.LayerBronze, lake.LayerSilver, lake.LayerGold:
		default:
			return fmt.Errorf("unknown layer %q", layer)
		}
	}

	w := lake.NewWriter(lakeRoot(), cfg.Pipeline.ParquetCompression)
	paths, err := w.Files(layer)
	if err != nil {
		return err
	}

	files := make([]*lake.FileInfo, 0, len(paths))
	for _, path := range paths {
		info, err := lake.Inspect(path)
		if err != nil {
			return err
		}
		files = append(files, info)
	}
	return report.DisplayLakeFiles(cmd.OutOrStdout(), files)
}

func runInspectRuns(cmd *cobra.Command, _ []string) error {
	limit, _ := cmd.Flags().GetInt("limit")

	ctx := cmd.Context()
	a := newApp(ctx, cfg, "order-analytics-inspect")
	defer a.Close()

	if a.store == nil {
		return fmt.Errorf("run history needs a reachable database (DATABASE_URL)")
	}
	runs, err := a.store.ListRecentRuns(ctx, limit)
	if err != nil {
		return err
	}
	return report.DisplayRuns(cmd.OutOrStdout(), runs)
}
