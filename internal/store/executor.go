package store

import (
	"context"
	"fmt"

	"order-analytics/internal/gold"
	"order-analytics/internal/models"
	"order-analytics/internal/util"
)

// SQLExecutor computes the KPIs with SQL against the silver tables of a
// Store. Prepare loads the snapshot before the queries run.
type SQLExecutor struct {
	store  *Store
	params gold.Params
}

func NewSQLExecutor(store *Store, params gold.Params) *SQLExecutor {
	d := gold.DefaultParams()
	if params.WindowDays <= 0 {
		params.WindowDays = d.WindowDays
	}
	if params.TopN <= 0 {
		params.TopN = d.TopN
	}
	return &SQLExecutor{store: store, params: params}
}

func (e *SQLExecutor) Name() string { return "sql:" + e.store.dialect.Driver }

// Prepare loads silver into the store and checks the loaded schema
func (e *SQLExecutor) Prepare(ctx context.Context, silver *models.SilverData) error {
	if err := e.store.LoadSilver(ctx, silver); err != nil {
		return err
	}
	return e.store.CheckSilverSchema(ctx,
		[]string{"row_seq", models.ColCustomerName, models.ColMobileNumber, models.ColRegion},
		[]string{models.ColOrderID, models.ColMobileNumber, models.ColOrderDateTime, models.ColTotalAmount})
}

func (e *SQLExecutor) query(name string) string {
	switch name {
	case models.KPIRepeatCustomers:
		return e.store.db.Rebind(e.store.dialect.render(QueryRepeatCustomers))
	case models.KPIMonthlyTrends:
		return e.store.db.Rebind(e.store.dialect.render(QueryMonthlyTrends))
	case models.KPIRegionalRevenue:
		return e.store.db.Rebind(e.store.dialect.render(QueryRegionalRevenue))
	default:
		return e.store.db.Rebind(e.store.dialect.render(QueryTopCustomers))
	}
}

func (e *SQLExecutor) RepeatCustomers(ctx context.Context, _ *models.SilverData) ([]models.RepeatCustomer, error) {
	ctx, span := util.StartSpan(ctx, "SQLExecutor.RepeatCustomers")
	defer span.End()

	rows := []models.RepeatCustomer{}
	if err := e.store.db.SelectContext(ctx, &rows, e.query(models.KPIRepeatCustomers)); err != nil {
		return nil, fmt.Errorf("failed to query repeat customers: %w", err)
	}
	return rows, nil
}

func (e *SQLExecutor) MonthlyTrends(ctx context.Context, _ *models.SilverData) ([]models.MonthlyTrend, error) {
	ctx, span := util.StartSpan(ctx, "SQLExecutor.MonthlyTrends")
	defer span.End()

	rows := []models.MonthlyTrend{}
	if err := e.store.db.SelectContext(ctx, &rows, e.query(models.KPIMonthlyTrends)); err != nil {
		return nil, fmt.Errorf("failed to query monthly trends: %w", err)
	}
	for i := range rows {
		rows[i].TotalRevenue = rows[i].TotalRevenue.Round(models.MoneyPlaces)
	}
	return rows, nil
}

func (e *SQLExecutor) RegionalRevenue(ctx context.Context, _ *models.SilverData) ([]models.RegionalRevenue, error) {
	ctx, span := util.StartSpan(ctx, "SQLExecutor.RegionalRevenue")
	defer span.End()

	rows := []models.RegionalRevenue{}
	if err := e.store.db.SelectContext(ctx, &rows, e.query(models.KPIRegionalRevenue)); err != nil {
		return nil, fmt.Errorf("failed to query regional revenue: %w", err)
	}
	for i := range rows {
		rows[i].RegionalRevenue = rows[i].RegionalRevenue.Round(models.MoneyPlaces)
	}
	return rows, nil
}

func (e *SQLExecutor) TopCustomers(ctx context.Context, _ *models.SilverData) ([]models.TopCustomer, error) {
	ctx, span := util.StartSpan(ctx, "SQLExecutor.TopCustomers")
	defer span.End()

	rows := []models.TopCustomer{}
	if err := e.store.db.SelectContext(ctx, &rows, e.query(models.KPITopCustomers30d),
		e.params.WindowDays, e.params.TopN); err != nil {
		return nil, fmt.Errorf("failed to query top customers: %w", err)
	}
	for i := range rows {
		rows[i].RecentSpend = rows[i].RecentSpend.Round(models.MoneyPlaces)
	}
	return rows, nil
}
