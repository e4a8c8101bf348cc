package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RawRecord is one bronze row keyed by source column name. A key that is
// absent, or whose value is blank after trimming, is treated as null.
type RawRecord map[string]string

// RawTable is an untyped bronze dataset as read from its source file
type RawTable struct {
	Name       string      `json:"name"`
	Source     string      `json:"source"`
	IngestedAt time.Time   `json:"ingested_at"`
	Columns    []string    `json:"columns"`
	Records    []RawRecord `json:"records"`
}

// Len returns the number of records
func (t RawTable) Len() int {
	return len(t.Records)
}

// Customer represents a cleaned customer
type Customer struct {
	CustomerID   string `db:"customer_id" json:"customer_id"`
	CustomerName string `db:"customer_name" json:"customer_name"`
	MobileNumber string `db:"mobile_number" json:"mobile_number"`
	Region       string `db:"region" json:"region"`
}

// EnrichedCustomer carries derived customer attributes
type EnrichedCustomer struct {
	Customer
	RegionGroup string `db:"region_group" json:"region_group"`
	NameLength  int    `db:"name_length" json:"name_length"`
	WordCount   int    `db:"word_count" json:"word_count"`
}

// OrderLineItem is one SKU-level row of an order
type OrderLineItem struct {
	OrderID       string          `db:"order_id" json:"order_id"`
	MobileNumber  string          `db:"mobile_number" json:"mobile_number"`
	OrderDateTime time.Time       `db:"order_date_time" json:"order_date_time"`
	SKUID         string          `db:"sku_id" json:"sku_id"`
	SKUCount      int64           `db:"sku_count" json:"sku_count"`
	TotalAmount   decimal.Decimal `db:"total_amount" json:"total_amount"`
}

// EnrichedOrder is a line item with calendar, banding and customer fields.
// CustomerName, Region and RegionGroup stay nil when no customer matches.
type EnrichedOrder struct {
	OrderLineItem
	OrderDate         string  `db:"order_date" json:"order_date"`
	OrderYear         int     `db:"order_year" json:"order_year"`
	OrderMonth        int     `db:"order_month" json:"order_month"`
	OrderQuarter      int     `db:"order_quarter" json:"order_quarter"`
	OrderDay          int     `db:"order_day" json:"order_day"`
	OrderWeek         int     `db:"order_week" json:"order_week"`
	OrderDayOfWeek    string  `db:"order_day_of_week" json:"order_day_of_week"`
	OrderHour         int     `db:"order_hour" json:"order_hour"`
	AvgItemPrice      float64 `db:"avg_item_price" json:"avg_item_price"`
	OrderSizeCategory string  `db:"order_size_category" json:"order_size_category"`
	TimeOfDay         string  `db:"time_of_day" json:"time_of_day"`
	CustomerName      *string `db:"customer_name" json:"customer_name"`
	Region            *string `db:"region" json:"region"`
	RegionGroup       *string `db:"region_group" json:"region_group"`
}

// LogicalOrder is the collapse of all line items sharing an order_id
type LogicalOrder struct {
	OrderID       string          `json:"order_id"`
	MobileNumber  string          `json:"mobile_number"`
	OrderDateTime time.Time       `json:"order_date_time"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Region        string          `json:"region"`
	LineItems     int             `json:"line_items"`
}

// MoneyPlaces is the scale every amount is rounded to when it is parsed
const MoneyPlaces int32 = 2

// Regions
const (
	RegionNorth   = "North"
	RegionSouth   = "South"
	RegionEast    = "East"
	RegionWest    = "West"
	RegionUnknown = "Unknown"
)

// AllowedRegions lists every region value a cleaned customer may carry
var AllowedRegions = []string{RegionNorth, RegionSouth, RegionEast, RegionWest, RegionUnknown}

// Column names shared by the cleaner, the KPI schema check and the stores
const (
	ColCustomerID    = "customer_id"
	ColCustomerName  = "customer_name"
	ColMobileNumber  = "mobile_number"
	ColRegion        = "region"
	ColRegionGroup   = "region_group"
	ColOrderID       = "order_id"
	ColOrderDateTime = "order_date_time"
	ColSKUID         = "sku_id"
	ColSKUCount      = "sku_count"
	ColTotalAmount   = "total_amount"
)

// CustomerColumns is the cleaned customer schema
var CustomerColumns = []string{ColCustomerID, ColCustomerName, ColMobileNumber, ColRegion}

// OrderColumns is the cleaned order line item schema
var OrderColumns = []string{ColOrderID, ColMobileNumber, ColOrderDateTime, ColSKUID, ColSKUCount, ColTotalAmount}

// EnrichedCustomerColumns is the silver customer schema
var EnrichedCustomerColumns = append(append([]string{}, CustomerColumns...), ColRegionGroup, "name_length", "word_count")

// EnrichedOrderColumns is the silver order schema
var EnrichedOrderColumns = append(append([]string{}, OrderColumns...),
	"order_date", "order_year", "order_month", "order_quarter", "order_day", "order_week",
	"order_day_of_week", "order_hour", "avg_item_price", "order_size_category", "time_of_day",
	ColCustomerName, ColRegion, ColRegionGroup)

// CleanStats records before/after counts of a cleaning pass
type CleanStats struct {
	Entity         string         `json:"entity"`
	InitialRecords int            `json:"initial_records"`
	FinalRecords   int            `json:"final_records"`
	Dropped        map[string]int `json:"dropped"`
	CleanedAt      time.Time      `json:"cleaned_at"`
}

// RecordsRemoved returns how many rows the pass removed
func (s CleanStats) RecordsRemoved() int {
	return s.InitialRecords - s.FinalRecords
}

// BronzeData is the output of the bronze stage
type BronzeData struct {
	Customers RawTable `json:"customers"`
	Orders    RawTable `json:"orders"`
}

// SilverData is the output of the silver stage
type SilverData struct {
	Customers       []EnrichedCustomer `json:"customers"`
	Orders          []EnrichedOrder    `json:"orders"`
	CustomerColumns []string           `json:"customer_columns"`
	OrderColumns    []string           `json:"order_columns"`
	CleanStats      []CleanStats       `json:"clean_stats"`
	Validation      []ValidationReport `json:"validation"`
	ProcessedAt     time.Time          `json:"processed_at"`
	Duration        time.Duration      `json:"duration"`
}

// GoldData is the output of the gold stage
type GoldData struct {
	KPIs              *KPIResults       `json:"kpis"`
	Additional        *BusinessMetrics  `json:"additional,omitempty"`
	SQLKPIs           *KPIResults       `json:"sql_kpis,omitempty"`
	Mismatches        []string          `json:"mismatches,omitempty"`
	CrossCheckSkipped []string          `json:"crosscheck_skipped,omitempty"`
	Reports           map[string]string `json:"reports,omitempty"`
	ProcessedAt       time.Time         `json:"processed_at"`
	Duration          time.Duration     `json:"duration"`
}

// RunSnapshot is the latest published result of a successful run
type RunSnapshot struct {
	RunID      string             `json:"run_id"`
	FinishedAt time.Time          `json:"finished_at"`
	KPIs       *KPIResults        `json:"kpis"`
	Additional *BusinessMetrics   `json:"additional,omitempty"`
	Validation []ValidationReport `json:"validation"`
	Mismatches []string           `json:"crosscheck_mismatches,omitempty"`
}
