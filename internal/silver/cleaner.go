package silver

import (
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	apperrors "order-analytics/internal/errors"
	"order-analytics/internal/models"
	"order-analytics/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Drop reasons recorded in CleanStats
const (
	DropMissingCustomerID = "missing_customer_id"
	DropMissingMobile     = "missing_mobile_number"
	DropDuplicateCustomer = "duplicate_customer_id"
	DropMissingOrderID    = "missing_order_id"
	DropMissingOrderDate  = "missing_order_date_time"
	DropInvalidSKUCount   = "invalid_sku_count"
	DropInvalidAmount     = "invalid_total_amount"
	DropInvalidOrderDate  = "invalid_order_date_time"
	DropNonPositiveCount  = "non_positive_sku_count"
	DropNonPositiveAmount = "non_positive_total_amount"
	DropFutureOrder       = "future_order_date_time"
)

var validRegions = map[string]bool{
	models.RegionNorth: true,
	models.RegionSouth: true,
	models.RegionEast:  true,
	models.RegionWest:  true,
}

// Timestamp layouts accepted for order_date_time. Values without an offset
// are taken as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02",
}

// CustomerCleanResult is the output of a customer cleaning pass
type CustomerCleanResult struct {
	Customers []models.Customer
	Stats     models.CleanStats
}

// OrderCleanResult is the output of an order cleaning pass
type OrderCleanResult struct {
	Orders []models.OrderLineItem
	Stats  models.CleanStats
}

// Cleaner normalises raw bronze tables into typed entities. It holds no
// state between calls apart from its clock.
type Cleaner struct {
	now    func() time.Time
	logger *zap.Logger
}

func NewCleaner(now func() time.Time) *Cleaner {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Cleaner{
		now:    now,
		logger: util.GetLogger(),
	}
}

// CleanCustomers normalises, filters and deduplicates customer records
func (c *Cleaner) CleanCustomers(raw models.RawTable) (*CustomerCleanResult, error) {
	cols, err := resolveColumns(raw, "customers", models.CustomerColumns)
	if err != nil {
		return nil, err
	}

	title := cases.Title(language.Und)
	stats := newStats("customers", raw.Len(), c.now())
	seen := make(map[string]bool, raw.Len())
	customers := make([]models.Customer, 0, raw.Len())

	for _, rec := range raw.Records {
		id := cols.get(rec, models.ColCustomerID)
		if id == "" {
			stats.Dropped[DropMissingCustomerID]++
			continue
		}
		rawMobile := cols.get(rec, models.ColMobileNumber)
		if rawMobile == "" {
			stats.Dropped[DropMissingMobile]++
			continue
		}
		if seen[id] {
			stats.Dropped[DropDuplicateCustomer]++
			continue
		}
		seen[id] = true

		customers = append(customers, models.Customer{
			CustomerID:   id,
			CustomerName: title.String(cols.get(rec, models.ColCustomerName)),
			MobileNumber: digitsOnly(rawMobile),
			Region:       normaliseRegion(title.String(cols.get(rec, models.ColRegion))),
		})
	}

	stats.FinalRecords = len(customers)
	c.logStats(stats)
	return &CustomerCleanResult{Customers: customers, Stats: stats}, nil
}

// CleanOrders coerces and filters order line items
func (c *Cleaner) CleanOrders(raw models.RawTable) (*OrderCleanResult, error) {
	cols, err := resolveColumns(raw, "orders", models.OrderColumns)
	if err != nil {
		return nil, err
	}

	now := c.now()
	stats := newStats("orders", raw.Len(), now)
	orders := make([]models.OrderLineItem, 0, raw.Len())

	for _, rec := range raw.Records {
		orderID := cols.get(rec, models.ColOrderID)
		if orderID == "" {
			stats.Dropped[DropMissingOrderID]++
			continue
		}
		rawMobile := cols.get(rec, models.ColMobileNumber)
		if rawMobile == "" {
			stats.Dropped[DropMissingMobile]++
			continue
		}
		rawDate := cols.get(rec, models.ColOrderDateTime)
		if rawDate == "" {
			stats.Dropped[DropMissingOrderDate]++
			continue
		}

		count, ok := ParseCount(cols.get(rec, models.ColSKUCount))
		if !ok {
			stats.Dropped[DropInvalidSKUCount]++
			continue
		}
		amount, ok := ParseAmount(cols.get(rec, models.ColTotalAmount))
		if !ok {
			stats.Dropped[DropInvalidAmount]++
			continue
		}
		ts, ok := ParseTimestamp(rawDate)
		if !ok {
			stats.Dropped[DropInvalidOrderDate]++
			continue
		}

		if count <= 0 {
			stats.Dropped[DropNonPositiveCount]++
			continue
		}
		if amount.Sign() <= 0 {
			stats.Dropped[DropNonPositiveAmount]++
			continue
		}
		if ts.After(now) {
			stats.Dropped[DropFutureOrder]++
			continue
		}

		orders = append(orders, models.OrderLineItem{
			OrderID:       orderID,
			MobileNumber:  digitsOnly(rawMobile),
			OrderDateTime: ts,
			SKUID:         cols.get(rec, models.ColSKUID),
			SKUCount:      count,
			TotalAmount:   amount,
		})
	}

	stats.FinalRecords = len(orders)
	c.logStats(stats)
	return &OrderCleanResult{Orders: orders, Stats: stats}, nil
}

func (c *Cleaner) logStats(stats models.CleanStats) {
	fields := []zap.Field{
		zap.String("entity", stats.Entity),
		zap.Int("initial_records", stats.InitialRecords),
		zap.Int("final_records", stats.FinalRecords),
		zap.Int("records_removed", stats.RecordsRemoved()),
	}
	for reason, n := range stats.Dropped {
		fields = append(fields, zap.Int("dropped_"+reason, n))
	}
	c.logger.Info("Cleaning completed", fields...)
}

func newStats(entity string, initial int, at time.Time) models.CleanStats {
	return models.CleanStats{
		Entity:         entity,
		InitialRecords: initial,
		Dropped:        make(map[string]int),
		CleanedAt:      at,
	}
}

// columnIndex maps normalised column names to the source keys of a table
type columnIndex map[string]string

func (ci columnIndex) get(rec models.RawRecord, col string) string {
	key, ok := ci[col]
	if !ok {
		return ""
	}
	return strings.TrimSpace(rec[key])
}

// resolveColumns strips and lower-cases the column names of raw and fails
// with a SchemaError when any required column is absent
func resolveColumns(raw models.RawTable, entity string, required []string) (columnIndex, error) {
	ci := make(columnIndex, len(raw.Columns))
	for _, col := range raw.Columns {
		norm := strings.ToLower(strings.TrimSpace(col))
		if _, dup := ci[norm]; !dup {
			ci[norm] = col
		}
	}
	var missing []string
	for _, col := range required {
		if _, ok := ci[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, apperrors.NewSchemaError("silver", entity, missing)
	}
	return ci, nil
}

func normaliseRegion(region string) string {
	if validRegions[region] {
		return region
	}
	return models.RegionUnknown
}

func digitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r <= unicode.MaxASCII && unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ParseCount parses an integral SKU count. Decimal notation is accepted when
// the value has no fractional part.
func ParseCount(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if f > math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int64(f), true
}

// ParseAmount parses a decimal amount and rounds it half away from zero to
// the money scale, so that every later sum is exact in cents
func ParseAmount(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d.Round(models.MoneyPlaces), true
}

// ParseTimestamp parses s and converts it to UTC
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
