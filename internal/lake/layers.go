package lake

import (
	"context"

	"order-analytics/internal/models"
)

// WriteBronze persists both raw tables with their ingestion metadata
func (w *Writer) WriteBronze(ctx context.Context, bronze *models.BronzeData) ([]string, error) {
	return w.writeAll(ctx, LayerBronze, FromRaw(bronze.Customers), FromRaw(bronze.Orders))
}

// WriteSilver persists the cleaned and enriched tables
func (w *Writer) WriteSilver(ctx context.Context, silver *models.SilverData) ([]string, error) {
	return w.writeAll(ctx, LayerSilver, FromCustomers(silver.Customers), FromOrders(silver.Orders))
}

// WriteGold persists every KPI table and, when present, the additional
// business metrics
func (w *Writer) WriteGold(ctx context.Context, kpis *models.KPIResults, extra *models.BusinessMetrics) ([]string, error) {
	tables := make([]*Table, 0, len(models.KPINames)+2)
	for _, name := range models.KPINames {
		t, err := FromKPI(name, kpis)
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	if extra != nil {
		tables = append(tables, FromSegments(extra.CustomerSegmentation), FromProducts(extra.ProductAnalysis))
	}
	return w.writeAll(ctx, LayerGold, tables...)
}

func (w *Writer) writeAll(ctx context.Context, layer string, tables ...*Table) ([]string, error) {
	paths := make([]string, 0, len(tables))
	for _, t := range tables {
		path, err := w.Write(ctx, layer, t)
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}
