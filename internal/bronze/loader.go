// Package bronze ingests the raw customer and order files without altering
// their values.
package bronze

import (
	"context"
	"encoding/csv"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	apperrors "order-analytics/internal/errors"
	"order-analytics/internal/models"
	"order-analytics/internal/util"

	"go.uber.org/zap"
)

// Required source columns
var (
	CustomerRequiredColumns = []string{"customer_id", "customer_name", "mobile_number", "region"}
	OrderRequiredColumns    = []string{"order_id", "mobile_number", "order_date_time", "sku_id", "sku_count", "total_amount"}
)

type Loader struct {
	now    func() time.Time
	logger *zap.Logger
}

func NewLoader() *Loader {
	return &Loader{
		now:    func() time.Time { return time.Now().UTC() },
		logger: util.GetLogger(),
	}
}

// WithClock overrides the ingestion clock
func (l *Loader) WithClock(now func() time.Time) *Loader {
	l.now = now
	return l
}

// Load reads both sources and checks their schemas
func (l *Loader) Load(ctx context.Context, customersPath, ordersPath string) (*models.BronzeData, error) {
	ctx, span := util.StartSpan(ctx, "Loader.Load")
	defer span.End()

	customers, err := l.LoadCustomers(ctx, customersPath)
	if err != nil {
		return nil, err
	}
	orders, err := l.LoadOrders(ctx, ordersPath)
	if err != nil {
		return nil, err
	}

	util.SetCount(span, "customers", customers.Len())
	util.SetCount(span, "orders", orders.Len())

	return &models.BronzeData{Customers: *customers, Orders: *orders}, nil
}

// LoadCustomers reads the customer CSV. Every value is kept as text.
func (l *Loader) LoadCustomers(ctx context.Context, path string) (*models.RawTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open customers file: %w", err)
	}
	defer f.Close()

	table, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read customers file %s: %w", path, err)
	}
	table.Name = "customers"
	table.Source = path
	table.IngestedAt = l.now()

	if err := CheckSchema(table, CustomerRequiredColumns); err != nil {
		l.logger.Error("Customer file is missing required columns", zap.Error(err))
		return nil, err
	}

	l.logger.Info("Loaded customer records",
		zap.String("source", path),
		zap.Int("records", table.Len()))
	return table, nil
}

// LoadOrders reads the order XML
func (l *Loader) LoadOrders(ctx context.Context, path string) (*models.RawTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open orders file: %w", err)
	}
	defer f.Close()

	table, err := ReadXML(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read orders file %s: %w", path, err)
	}
	table.Name = "orders"
	table.Source = path
	table.IngestedAt = l.now()

	if err := CheckSchema(table, OrderRequiredColumns); err != nil {
		l.logger.Error("Order file is missing required columns", zap.Error(err))
		return nil, err
	}

	l.logger.Info("Loaded order records",
		zap.String("source", path),
		zap.Int("records", table.Len()))
	return table, nil
}

// ReadCSV parses a headed CSV stream. Short rows leave their trailing columns
// absent.
func ReadCSV(r io.Reader) (*models.RawTable, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return &models.RawTable{Columns: []string{}, Records: []models.RawRecord{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	table := &models.RawTable{Columns: header, Records: []models.RawRecord{}}
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", len(table.Records)+1, err)
		}
		rec := make(models.RawRecord, len(header))
		for i, col := range header {
			if i < len(row) {
				rec[col] = row[i]
			}
		}
		table.Records = append(table.Records, rec)
	}
	return table, nil
}

type xmlDocument struct {
	Orders []xmlOrder `xml:"order"`
}

type xmlOrder struct {
	Fields []xmlField `xml:",any"`
}

type xmlField struct {
	XMLName xml.Name
	Value   string `xml:",chardata"`
}

// ReadXML parses a document whose root holds <order> elements. Each child
// element becomes a column named after its tag, in order of first appearance.
func ReadXML(r io.Reader) (*models.RawTable, error) {
	var doc xmlDocument
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode xml: %w", err)
	}

	table := &models.RawTable{Columns: []string{}, Records: make([]models.RawRecord, 0, len(doc.Orders))}
	seen := make(map[string]bool)
	for _, o := range doc.Orders {
		rec := make(models.RawRecord, len(o.Fields))
		for _, f := range o.Fields {
			name := f.XMLName.Local
			rec[name] = f.Value
			if !seen[name] {
				seen[name] = true
				table.Columns = append(table.Columns, name)
			}
		}
		table.Records = append(table.Records, rec)
	}
	return table, nil
}

// CheckSchema returns a SchemaError naming every required column the table
// lacks. Column names are compared after trimming and lower-casing.
func CheckSchema(table *models.RawTable, required []string) error {
	present := make(map[string]bool, len(table.Columns))
	for _, c := range table.Columns {
		present[strings.ToLower(strings.TrimSpace(c))] = true
	}
	var missing []string
	for _, c := range required {
		if !present[c] {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return apperrors.NewSchemaError("bronze", table.Name, missing)
	}
	return nil
}
