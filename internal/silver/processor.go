// Package silver turns raw bronze tables into cleaned, validated and
// enriched entities.
package silver

import (
	"context"
	"fmt"
	"time"

	apperrors "order-analytics/internal/errors"
	"order-analytics/internal/models"
	"order-analytics/internal/util"

	"go.uber.org/zap"
)

// Processor sequences cleaning, validation and enrichment
type Processor struct {
	cleaner          *Cleaner
	validator        *Validator
	enricher         *Enricher
	now              func() time.Time
	strictValidation bool
	logger           *zap.Logger
}

// NewProcessor creates a silver processor. A nil clock uses the wall clock.
// With strictValidation set, a FAIL report aborts processing.
func NewProcessor(now func() time.Time, strictValidation bool) *Processor {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Processor{
		cleaner:          NewCleaner(now),
		validator:        NewValidator(now),
		enricher:         NewEnricher(),
		now:              now,
		strictValidation: strictValidation,
		logger:           util.GetLogger(),
	}
}

// Process cleans, validates and enriches both bronze tables
func (p *Processor) Process(ctx context.Context, bronze *models.BronzeData) (*models.SilverData, error) {
	_, span := util.StartSpan(ctx, "Processor.Process")
	defer span.End()

	start := time.Now()

	customers, err := p.cleaner.CleanCustomers(bronze.Customers)
	if err != nil {
		return nil, fmt.Errorf("failed to clean customers: %w", err)
	}
	orders, err := p.cleaner.CleanOrders(bronze.Orders)
	if err != nil {
		return nil, fmt.Errorf("failed to clean orders: %w", err)
	}
	for _, stats := range []models.CleanStats{customers.Stats, orders.Stats} {
		for reason, n := range stats.Dropped {
			util.RecordsDroppedTotal.WithLabelValues(stats.Entity, reason).Add(float64(n))
		}
	}

	customerReport := p.validator.ValidateCustomers(customers.Customers)
	orderReport := p.validator.ValidateOrders(orders.Orders)

	if p.strictValidation {
		for _, r := range []models.ValidationReport{customerReport, orderReport} {
			if r.Failed() {
				p.logger.Error("Strict validation rejected dataset",
					zap.String("dataset", r.Dataset),
					zap.Strings("issues", r.Issues))
				return nil, fmt.Errorf("%s: %w", r.Dataset, apperrors.ErrValidationFailed)
			}
		}
	} else if customerReport.Failed() || orderReport.Failed() {
		p.logger.Warn("Validation reported failures, continuing",
			zap.String("customers", string(customerReport.OverallStatus)),
			zap.String("orders", string(orderReport.OverallStatus)))
	}

	enrichedCustomers := p.enricher.EnrichCustomers(customers.Customers)
	enrichedOrders := p.enricher.EnrichOrders(orders.Orders, enrichedCustomers)

	util.SetCount(span, "customers", len(enrichedCustomers))
	util.SetCount(span, "orders", len(enrichedOrders))

	return &models.SilverData{
		Customers:       enrichedCustomers,
		Orders:          enrichedOrders,
		CustomerColumns: append([]string(nil), models.EnrichedCustomerColumns...),
		OrderColumns:    append([]string(nil), models.EnrichedOrderColumns...),
		CleanStats:      []models.CleanStats{customers.Stats, orders.Stats},
		Validation:      []models.ValidationReport{customerReport, orderReport},
		ProcessedAt:     p.now(),
		Duration:        time.Since(start),
	}, nil
}
