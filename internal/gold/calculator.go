package gold

import (
	"context"
	"fmt"

	apperrors "order-analytics/internal/errors"
	"order-analytics/internal/models"
	"order-analytics/internal/util"

	"go.uber.org/zap"
)

// Silver columns the KPI computations read
var (
	RequiredCustomerColumns = []string{models.ColCustomerName, models.ColMobileNumber, models.ColRegion}
	RequiredOrderColumns    = []string{models.ColOrderID, models.ColMobileNumber, models.ColOrderDateTime, models.ColTotalAmount, models.ColRegion}
)

// Calculator runs every KPI of an executor, isolating failures so that one
// broken KPI leaves the others intact
type Calculator struct {
	executor Executor
	logger   *zap.Logger
}

func NewCalculator(executor Executor) *Calculator {
	return &Calculator{
		executor: executor,
		logger:   util.GetLogger(),
	}
}

// Executor returns the wrapped executor
func (c *Calculator) Executor() Executor {
	return c.executor
}

// Compute checks the silver schema and computes the four KPI tables. A
// missing column or a failed Prepare is returned as an error. Per-KPI
// failures degrade that table to empty and are listed in Failures.
func (c *Calculator) Compute(ctx context.Context, silver *models.SilverData) (*models.KPIResults, error) {
	ctx, span := util.StartSpan(ctx, "Calculator.Compute")
	defer span.End()

	if err := CheckColumns(silver); err != nil {
		return nil, err
	}

	if p, ok := c.executor.(Preparer); ok {
		if err := p.Prepare(ctx, silver); err != nil {
			return nil, fmt.Errorf("failed to prepare %s executor: %w", c.executor.Name(), err)
		}
	}

	results := models.NewKPIResults()

	if rows, err := isolate(models.KPIRepeatCustomers, func() ([]models.RepeatCustomer, error) {
		return c.executor.RepeatCustomers(ctx, silver)
	}); err != nil {
		c.degrade(results, models.KPIRepeatCustomers, err)
	} else {
		results.RepeatCustomers = rows
	}

	if rows, err := isolate(models.KPIMonthlyTrends, func() ([]models.MonthlyTrend, error) {
		return c.executor.MonthlyTrends(ctx, silver)
	}); err != nil {
		c.degrade(results, models.KPIMonthlyTrends, err)
	} else {
		results.MonthlyTrends = rows
	}

	if rows, err := isolate(models.KPIRegionalRevenue, func() ([]models.RegionalRevenue, error) {
		return c.executor.RegionalRevenue(ctx, silver)
	}); err != nil {
		c.degrade(results, models.KPIRegionalRevenue, err)
	} else {
		results.RegionalRevenue = rows
	}

	if rows, err := isolate(models.KPITopCustomers30d, func() ([]models.TopCustomer, error) {
		return c.executor.TopCustomers(ctx, silver)
	}); err != nil {
		c.degrade(results, models.KPITopCustomers30d, err)
	} else {
		results.TopCustomers30d = rows
	}

	for _, name := range models.KPINames {
		c.logger.Info("KPI computed",
			zap.String("executor", c.executor.Name()),
			zap.String("kpi", name),
			zap.Int("rows", results.RowCount(name)))
	}
	return results, nil
}

func (c *Calculator) degrade(results *models.KPIResults, name string, err error) {
	if results.Failures == nil {
		results.Failures = make(map[string]string)
	}
	results.Failures[name] = err.Error()
	util.KPIFailuresTotal.WithLabelValues(name).Inc()
	c.logger.Error("KPI computation failed, returning empty table",
		zap.String("executor", c.executor.Name()),
		zap.String("kpi", name),
		zap.Error(err))
}

// isolate runs fn, converting an error or panic into a ComputationError. A
// nil result is replaced by an empty slice.
func isolate[T any](name string, fn func() ([]T, error)) (rows []T, err error) {
	defer func() {
		if r := recover(); r != nil {
			rows = []T{}
			err = &apperrors.ComputationError{KPI: name, Cause: fmt.Errorf("panic: %v", r)}
		}
	}()

	rows, err = fn()
	if err != nil {
		return []T{}, &apperrors.ComputationError{KPI: name, Cause: err}
	}
	if rows == nil {
		rows = []T{}
	}
	return rows, nil
}

// CheckColumns fails with a SchemaError naming every required silver column
// that is absent
func CheckColumns(silver *models.SilverData) error {
	var missing []string
	missing = append(missing, absent(silver.CustomerColumns, RequiredCustomerColumns, "customers.")...)
	missing = append(missing, absent(silver.OrderColumns, RequiredOrderColumns, "orders.")...)
	if len(missing) > 0 {
		return apperrors.NewSchemaError("gold", "silver", missing)
	}
	return nil
}

func absent(have, required []string, prefix string) []string {
	present := make(map[string]bool, len(have))
	for _, c := range have {
		present[c] = true
	}
	var out []string
	for _, c := range required {
		if !present[c] {
			out = append(out, prefix+c)
		}
	}
	return out
}
