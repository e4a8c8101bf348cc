// Package lake persists stage snapshots as parquet files laid out by
// medallion layer.
package lake

import (
	"fmt"
	"time"

	"order-analytics/internal/models"
)

// Layers
const (
	LayerBronze = "bronze"
	LayerSilver = "silver"
	LayerGold   = "gold"
)

// Bronze metadata columns
const (
	ColIngestionTimestamp = "_ingestion_timestamp"
	ColSourceFile         = "_source_file"
)

// Kind is the logical type of a column
type Kind int

const (
	KindString Kind = iota
	KindInt64
	KindFloat64
	KindTimestamp
	// KindDecimal is a money amount stored as a fixed point decimal at
	// models.MoneyPlaces
	KindDecimal
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt64:
		return "int64"
	case KindFloat64:
		return "float64"
	case KindTimestamp:
		return "timestamp"
	case KindDecimal:
		return "decimal"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Field describes one column
type Field struct {
	Name     string
	Kind     Kind
	Nullable bool
}

// Table is a row oriented snapshot. Values are string, int64, float64,
// decimal.Decimal, time.Time or nil for null.
type Table struct {
	Name   string
	Fields []Field
	Rows   [][]interface{}
}

// NumRows returns the number of rows
func (t *Table) NumRows() int {
	return len(t.Rows)
}

// Column returns the values of a named column
func (t *Table) Column(name string) ([]interface{}, bool) {
	for i, f := range t.Fields {
		if f.Name != name {
			continue
		}
		out := make([]interface{}, len(t.Rows))
		for r, row := range t.Rows {
			out[r] = row[i]
		}
		return out, true
	}
	return nil, false
}

func optional(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

// FromRaw converts a bronze table, stamping every row with the ingestion time
// and source file. Blank cells are stored as null.
func FromRaw(raw models.RawTable) *Table {
	t := &Table{Name: raw.Name}
	for _, c := range raw.Columns {
		t.Fields = append(t.Fields, Field{Name: c, Kind: KindString, Nullable: true})
	}
	t.Fields = append(t.Fields,
		Field{Name: ColIngestionTimestamp, Kind: KindTimestamp},
		Field{Name: ColSourceFile, Kind: KindString})

	for _, rec := range raw.Records {
		row := make([]interface{}, 0, len(t.Fields))
		for _, c := range raw.Columns {
			if v, ok := rec[c]; ok && v != "" {
				row = append(row, v)
			} else {
				row = append(row, nil)
			}
		}
		row = append(row, raw.IngestedAt.UTC(), raw.Source)
		t.Rows = append(t.Rows, row)
	}
	return t
}

// FromCustomers converts silver customers
func FromCustomers(customers []models.EnrichedCustomer) *Table {
	t := &Table{
		Name: "customers",
		Fields: []Field{
			{Name: models.ColCustomerID, Kind: KindString},
			{Name: models.ColCustomerName, Kind: KindString},
			{Name: models.ColMobileNumber, Kind: KindString},
			{Name: models.ColRegion, Kind: KindString},
			{Name: models.ColRegionGroup, Kind: KindString},
			{Name: "name_length", Kind: KindInt64},
			{Name: "word_count", Kind: KindInt64},
		},
	}
	for _, c := range customers {
		t.Rows = append(t.Rows, []interface{}{
			c.CustomerID, c.CustomerName, c.MobileNumber, c.Region, c.RegionGroup,
			int64(c.NameLength), int64(c.WordCount),
		})
	}
	return t
}

// FromOrders converts silver order line items
func FromOrders(orders []models.EnrichedOrder) *Table {
	t := &Table{
		Name: "orders",
		Fields: []Field{
			{Name: models.ColOrderID, Kind: KindString},
			{Name: models.ColMobileNumber, Kind: KindString},
			{Name: models.ColOrderDateTime, Kind: KindTimestamp},
			{Name: models.ColSKUID, Kind: KindString},
			{Name: models.ColSKUCount, Kind: KindInt64},
			{Name: models.ColTotalAmount, Kind: KindDecimal},
			{Name: "order_date", Kind: KindString},
			{Name: "order_year", Kind: KindInt64},
			{Name: "order_month", Kind: KindInt64},
			{Name: "order_quarter", Kind: KindInt64},
			{Name: "order_day", Kind: KindInt64},
			{Name: "order_week", Kind: KindInt64},
			{Name: "order_day_of_week", Kind: KindString},
			{Name: "order_hour", Kind: KindInt64},
			{Name: "avg_item_price", Kind: KindFloat64},
			{Name: "order_size_category", Kind: KindString},
			{Name: "time_of_day", Kind: KindString},
			{Name: models.ColCustomerName, Kind: KindString, Nullable: true},
			{Name: models.ColRegion, Kind: KindString, Nullable: true},
			{Name: models.ColRegionGroup, Kind: KindString, Nullable: true},
		},
	}
	for _, o := range orders {
		t.Rows = append(t.Rows, []interface{}{
			o.OrderID, o.MobileNumber, o.OrderDateTime.UTC(), o.SKUID, o.SKUCount, o.TotalAmount,
			o.OrderDate, int64(o.OrderYear), int64(o.OrderMonth), int64(o.OrderQuarter),
			int64(o.OrderDay), int64(o.OrderWeek), o.OrderDayOfWeek, int64(o.OrderHour),
			o.AvgItemPrice, o.OrderSizeCategory, o.TimeOfDay,
			optional(o.CustomerName), optional(o.Region), optional(o.RegionGroup),
		})
	}
	return t
}

// FromKPI converts one KPI table of the results
func FromKPI(name string, results *models.KPIResults) (*Table, error) {
	t := &Table{Name: name}
	switch name {
	case models.KPIRepeatCustomers:
		t.Fields = []Field{{Name: "customer_name", Kind: KindString}, {Name: "number_of_orders", Kind: KindInt64}}
		for _, r := range results.RepeatCustomers {
			t.Rows = append(t.Rows, []interface{}{r.CustomerName, r.NumberOfOrders})
		}
	case models.KPIMonthlyTrends:
		t.Fields = []Field{
			{Name: "month", Kind: KindString},
			{Name: "total_orders", Kind: KindInt64},
			{Name: "total_revenue", Kind: KindDecimal},
		}
		for _, r := range results.MonthlyTrends {
			t.Rows = append(t.Rows, []interface{}{r.Month, r.TotalOrders, r.TotalRevenue})
		}
	case models.KPIRegionalRevenue:
		t.Fields = []Field{{Name: "region", Kind: KindString}, {Name: "regional_revenue", Kind: KindDecimal}}
		for _, r := range results.RegionalRevenue {
			t.Rows = append(t.Rows, []interface{}{r.Region, r.RegionalRevenue})
		}
	case models.KPITopCustomers30d:
		t.Fields = []Field{{Name: "customer_name", Kind: KindString}, {Name: "recent_spend", Kind: KindDecimal}}
		for _, r := range results.TopCustomers30d {
			t.Rows = append(t.Rows, []interface{}{r.CustomerName, r.RecentSpend})
		}
	default:
		return nil, fmt.Errorf("unknown KPI: %s", name)
	}
	return t, nil
}

// FromSegments converts the customer segmentation metric
func FromSegments(segments []models.CustomerSegment) *Table {
	t := &Table{
		Name: "customer_segmentation",
		Fields: []Field{
			{Name: models.ColMobileNumber, Kind: KindString},
			{Name: models.ColCustomerName, Kind: KindString},
			{Name: models.ColRegion, Kind: KindString},
			{Name: "total_spent", Kind: KindDecimal},
			{Name: "avg_order_value", Kind: KindDecimal},
			{Name: "order_count", Kind: KindInt64},
			{Name: "customer_lifetime_days", Kind: KindInt64},
			{Name: "segment", Kind: KindString},
		},
	}
	for _, s := range segments {
		t.Rows = append(t.Rows, []interface{}{
			s.MobileNumber, s.CustomerName, s.Region, s.TotalSpent, s.AvgOrderValue,
			s.OrderCount, s.LifetimeDays, s.Segment,
		})
	}
	return t
}

// FromProducts converts the product analysis metric
func FromProducts(products []models.ProductPerformance) *Table {
	t := &Table{
		Name: "product_analysis",
		Fields: []Field{
			{Name: models.ColSKUID, Kind: KindString},
			{Name: "orders_count", Kind: KindInt64},
			{Name: "total_units_sold", Kind: KindInt64},
			{Name: "total_revenue", Kind: KindDecimal},
			{Name: "avg_revenue_per_unit", Kind: KindDecimal},
		},
	}
	for _, p := range products {
		t.Rows = append(t.Rows, []interface{}{p.SKUID, p.OrdersCount, p.TotalUnitsSold, p.TotalRevenue, p.AvgRevenuePerUnit})
	}
	return t
}

// timeValue truncates to the microsecond precision stored in parquet
func timeValue(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
