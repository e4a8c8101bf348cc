package store

import (
	"context"
	"fmt"

	apperrors "order-analytics/internal/errors"
	"order-analytics/internal/models"
	"order-analytics/internal/util"

	"go.uber.org/zap"
)

const (
	insertSilverCustomer = `
		INSERT INTO silver_customers (row_seq, customer_id, customer_name, mobile_number, region, region_group, name_length, word_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	insertSilverOrder = `
		INSERT INTO silver_orders (order_id, mobile_number, order_date_time, sku_id, sku_count, total_amount, customer_name, region, region_group)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
)

// LoadSilver replaces the silver tables with the given snapshot inside one
// transaction. Customers keep their input order in row_seq.
func (s *Store) LoadSilver(ctx context.Context, silver *models.SilverData) error {
	ctx, span := util.StartSpan(ctx, "Store.LoadSilver")
	defer span.End()

	if err := s.EnsureSchema(ctx); err != nil {
		return err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"silver_customers", "silver_orders"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	custStmt, err := tx.PreparexContext(ctx, tx.Rebind(insertSilverCustomer))
	if err != nil {
		return fmt.Errorf("failed to prepare customer insert: %w", err)
	}
	defer custStmt.Close()

	for i, c := range silver.Customers {
		if _, err := custStmt.ExecContext(ctx, i, c.CustomerID, c.CustomerName, c.MobileNumber,
			c.Region, c.RegionGroup, c.NameLength, c.WordCount); err != nil {
			return fmt.Errorf("failed to insert customer %s: %w", c.CustomerID, err)
		}
	}

	orderStmt, err := tx.PreparexContext(ctx, tx.Rebind(insertSilverOrder))
	if err != nil {
		return fmt.Errorf("failed to prepare order insert: %w", err)
	}
	defer orderStmt.Close()

	for _, o := range silver.Orders {
		if _, err := orderStmt.ExecContext(ctx, o.OrderID, o.MobileNumber, s.dialect.TimestampValue(o.OrderDateTime),
			o.SKUID, o.SKUCount, s.dialect.AmountValue(o.TotalAmount), o.CustomerName, o.Region, o.RegionGroup); err != nil {
			return fmt.Errorf("failed to insert order %s: %w", o.OrderID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit silver load: %w", err)
	}

	s.logger.Info("Silver data loaded into relational store",
		zap.String("driver", s.dialect.Driver),
		zap.Int("customers", len(silver.Customers)),
		zap.Int("orders", len(silver.Orders)))
	return nil
}

// CheckSilverSchema fails with a SchemaError naming every required column
// the loaded silver tables lack
func (s *Store) CheckSilverSchema(ctx context.Context, customerCols, orderCols []string) error {
	var missing []string
	for table, required := range map[string][]string{
		"silver_customers": customerCols,
		"silver_orders":    orderCols,
	} {
		have, err := s.tableColumns(ctx, table)
		if err != nil {
			return err
		}
		for _, col := range required {
			if !have[col] {
				missing = append(missing, table+"."+col)
			}
		}
	}
	if len(missing) > 0 {
		return apperrors.NewSchemaError("gold", "sql", missing)
	}
	return nil
}

func (s *Store) tableColumns(ctx context.Context, table string) (map[string]bool, error) {
	rows, err := s.db.QueryxContext(ctx, "SELECT * FROM "+table+" LIMIT 0")
	if err != nil {
		return nil, fmt.Errorf("failed to inspect %s: %w", table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
	}
	have := make(map[string]bool, len(cols))
	for _, c := range cols {
		have[c] = true
	}
	return have, nil
}
