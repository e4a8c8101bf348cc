package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"order-analytics/internal/models"
	"order-analytics/internal/util"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Supported drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

func init() {
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// Dialect holds the SQL fragments that differ between drivers
type Dialect struct {
	Driver string
	// Month renders a YYYY-MM string from a timestamp expression
	Month func(expr string) string
	// Cutoff renders the window start: the latest logical order minus a
	// number of days given as the next bind parameter
	Cutoff string
	// Money renders the sum of stored amounts in currency units
	Money   func(expr string) string
	Collate string
	// TimestampValue converts an order timestamp into its stored form
	TimestampValue func(t time.Time) interface{}
	// AmountValue converts a line item amount into its stored form
	AmountValue func(d decimal.Decimal) interface{}
	Schema      []string
}

var postgresDialect = Dialect{
	Driver: DriverPostgres,
	Month: func(expr string) string {
		return fmt.Sprintf("to_char(%s, 'YYYY-MM')", expr)
	},
	Cutoff: "(SELECT MAX(order_date_time) FROM logical_orders) - make_interval(days => CAST(? AS INTEGER))",
	Money: func(expr string) string {
		return fmt.Sprintf("ROUND(SUM(%s), 2)", expr)
	},
	Collate:        ` COLLATE "C"`,
	TimestampValue: func(t time.Time) interface{} { return t.UTC() },
	AmountValue:    func(d decimal.Decimal) interface{} { return d.StringFixed(2) },
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS silver_customers (
			row_seq BIGINT NOT NULL,
			customer_id TEXT NOT NULL,
			customer_name TEXT NOT NULL,
			mobile_number TEXT NOT NULL,
			region TEXT NOT NULL,
			region_group TEXT NOT NULL,
			name_length INTEGER NOT NULL,
			word_count INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS silver_orders (
			order_id TEXT NOT NULL,
			mobile_number TEXT NOT NULL,
			order_date_time TIMESTAMP NOT NULL,
			sku_id TEXT NOT NULL,
			sku_count BIGINT NOT NULL,
			total_amount NUMERIC(14, 2) NOT NULL,
			customer_name TEXT,
			region TEXT,
			region_group TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS pipeline_runs (
			run_id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			stage TEXT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			finished_at TIMESTAMPTZ NOT NULL,
			customers INTEGER NOT NULL,
			orders INTEGER NOT NULL,
			mismatches INTEGER NOT NULL,
			error_detail TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS processed_events (
			event_id TEXT PRIMARY KEY,
			event_type TEXT NOT NULL,
			processed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_silver_customers_mobile ON silver_customers (mobile_number, row_seq)`,
		`CREATE INDEX IF NOT EXISTS idx_silver_orders_order ON silver_orders (order_id)`,
		`CREATE INDEX IF NOT EXISTS idx_silver_orders_mobile ON silver_orders (mobile_number)`,
	},
}

// sqliteTimestampLayout sorts lexically in time order and matches the
// output of strftime('%Y-%m-%d %H:%M:%f')
const sqliteTimestampLayout = "2006-01-02 15:04:05.000"

// SQLite has no exact decimal type, so amounts are kept as integer cents and
// summed as integers

var sqliteDialect = Dialect{
	Driver: DriverSQLite,
	Month: func(expr string) string {
		return fmt.Sprintf("strftime('%%Y-%%m', %s)", expr)
	},
	Cutoff: "strftime('%Y-%m-%d %H:%M:%f', (SELECT MAX(order_date_time) FROM logical_orders), '-' || ? || ' days')",
	Money: func(expr string) string {
		return fmt.Sprintf("(SUM(%s) / 100.0)", expr)
	},
	Collate:        "",
	TimestampValue: func(t time.Time) interface{} { return t.UTC().Format(sqliteTimestampLayout) },
	AmountValue: func(d decimal.Decimal) interface{} {
		return d.Shift(models.MoneyPlaces).IntPart()
	},
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS silver_customers (
			row_seq INTEGER NOT NULL,
			customer_id TEXT NOT NULL,
			customer_name TEXT NOT NULL,
			mobile_number TEXT NOT NULL,
			region TEXT NOT NULL,
			region_group TEXT NOT NULL,
			name_length INTEGER NOT NULL,
			word_count INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS silver_orders (
			order_id TEXT NOT NULL,
			mobile_number TEXT NOT NULL,
			order_date_time TEXT NOT NULL,
			sku_id TEXT NOT NULL,
			sku_count INTEGER NOT NULL,
			total_amount INTEGER NOT NULL,
			customer_name TEXT,
			region TEXT,
			region_group TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS pipeline_runs (
			run_id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			stage TEXT NOT NULL,
			started_at TIMESTAMP NOT NULL,
			finished_at TIMESTAMP NOT NULL,
			customers INTEGER NOT NULL,
			orders INTEGER NOT NULL,
			mismatches INTEGER NOT NULL,
			error_detail TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS processed_events (
			event_id TEXT PRIMARY KEY,
			event_type TEXT NOT NULL,
			processed_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_silver_customers_mobile ON silver_customers (mobile_number, row_seq)`,
		`CREATE INDEX IF NOT EXISTS idx_silver_orders_order ON silver_orders (order_id)`,
		`CREATE INDEX IF NOT EXISTS idx_silver_orders_mobile ON silver_orders (mobile_number)`,
	},
}

// DialectFor returns the dialect of a driver name
func DialectFor(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case DriverPostgres:
		return postgresDialect, nil
	case DriverSQLite:
		return sqliteDialect, nil
	}
	return Dialect{}, fmt.Errorf("unsupported database driver: %s", driver)
}

type Store struct {
	db      *sqlx.DB
	dialect Dialect
	logger  *zap.Logger
}

// NewStore creates a new database store
func NewStore(driver, databaseURL string) (*Store, error) {
	dialect, err := DialectFor(driver)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open(dialect.Driver, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if dialect.Driver == DriverSQLite {
		// an in-memory database lives as long as its only connection
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db, dialect: dialect, logger: util.GetLogger()}, nil
}

// NewStoreFromDB wraps an open connection, mostly for tests
func NewStoreFromDB(db *sql.DB, driver string) (*Store, error) {
	dialect, err := DialectFor(driver)
	if err != nil {
		return nil, err
	}
	return &Store{db: sqlx.NewDb(db, dialect.Driver), dialect: dialect, logger: util.GetLogger()}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// Dialect returns the SQL dialect of the store
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// Ping checks the connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// EnsureSchema creates the pipeline tables and indexes when absent
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range s.dialect.Schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}
