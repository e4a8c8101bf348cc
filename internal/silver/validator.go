package silver

import (
	"fmt"
	"regexp"
	"time"

	"order-analytics/internal/models"
	"order-analytics/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var mobilePattern = regexp.MustCompile(`^\d{10}$`)

// Per-unit price bounds outside which price_consistency warns
var (
	MinUnitPrice = decimal.RequireFromString("0.01")
	MaxUnitPrice = decimal.NewFromInt(10000)
)

// Validator runs read-only quality checks over cleaned entities
type Validator struct {
	now    func() time.Time
	logger *zap.Logger
}

func NewValidator(now func() time.Time) *Validator {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Validator{
		now:    now,
		logger: util.GetLogger(),
	}
}

type reportBuilder struct {
	report models.ValidationReport
}

func newReport(dataset string, total int, at time.Time) *reportBuilder {
	return &reportBuilder{report: models.ValidationReport{
		Dataset:      dataset,
		TotalRecords: total,
		Checks:       []models.Check{},
		Issues:       []string{},
		CheckedAt:    at,
	}}
}

// add records a check that fails (or warns, when soft) if count is non-zero
func (b *reportBuilder) add(name string, count int, soft bool, issue string) {
	status := models.StatusPass
	if count > 0 {
		status = models.StatusFail
		if soft {
			status = models.StatusWarn
		}
		b.report.Issues = append(b.report.Issues, fmt.Sprintf(issue, count))
	}
	b.report.Checks = append(b.report.Checks, models.Check{Name: name, Status: status, Count: count})
}

func (b *reportBuilder) finish() models.ValidationReport {
	b.report.OverallStatus = OverallStatus(b.report.Checks)
	return b.report
}

// OverallStatus is FAIL if any check failed, else WARN if any warned, else PASS
func OverallStatus(checks []models.Check) models.CheckStatus {
	status := models.StatusPass
	for _, c := range checks {
		switch c.Status {
		case models.StatusFail:
			return models.StatusFail
		case models.StatusWarn:
			status = models.StatusWarn
		}
	}
	return status
}

// ValidateCustomers checks completeness, uniqueness, mobile format and region
func (v *Validator) ValidateCustomers(customers []models.Customer) models.ValidationReport {
	b := newReport("customers", len(customers), v.now())

	var blankID, blankName, blankMobile, blankRegion, badMobile, badRegion, dupes int
	seen := make(map[string]bool, len(customers))
	allowed := make(map[string]bool, len(models.AllowedRegions))
	for _, r := range models.AllowedRegions {
		allowed[r] = true
	}

	for _, c := range customers {
		if c.CustomerID == "" {
			blankID++
		}
		if c.CustomerName == "" {
			blankName++
		}
		if c.MobileNumber == "" {
			blankMobile++
		}
		if c.Region == "" {
			blankRegion++
		}
		if seen[c.CustomerID] {
			dupes++
		}
		seen[c.CustomerID] = true
		if !mobilePattern.MatchString(c.MobileNumber) {
			badMobile++
		}
		if !allowed[c.Region] {
			badRegion++
		}
	}

	b.add(models.ColCustomerID+"_completeness", blankID, false, "customer_id has %d null values")
	b.add(models.ColCustomerName+"_completeness", blankName, false, "customer_name has %d null values")
	b.add(models.ColMobileNumber+"_completeness", blankMobile, false, "mobile_number has %d null values")
	b.add(models.ColRegion+"_completeness", blankRegion, false, "region has %d null values")
	b.add("customer_id_uniqueness", dupes, false, "found %d duplicate customer IDs")
	b.add("mobile_format", badMobile, false, "%d mobile numbers are not exactly 10 digits")
	b.add("region_validation", badRegion, false, "%d customers have an unrecognised region")

	report := b.finish()
	v.log(report)
	return report
}

// ValidateOrders checks completeness, positivity, dates and unit prices
func (v *Validator) ValidateOrders(orders []models.OrderLineItem) models.ValidationReport {
	now := v.now()
	b := newReport("orders", len(orders), now)

	var blankID, blankMobile, blankDate, badAmount, badCount, future, oddPrice int
	for _, o := range orders {
		if o.OrderID == "" {
			blankID++
		}
		if o.MobileNumber == "" {
			blankMobile++
		}
		if o.OrderDateTime.IsZero() {
			blankDate++
		}
		if o.TotalAmount.Sign() <= 0 {
			badAmount++
		}
		if o.SKUCount <= 0 {
			badCount++
		}
		if o.OrderDateTime.After(now) {
			future++
		}
		if o.SKUCount > 0 {
			unit := o.TotalAmount.Div(decimal.NewFromInt(o.SKUCount))
			if unit.LessThan(MinUnitPrice) || unit.GreaterThan(MaxUnitPrice) {
				oddPrice++
			}
		}
	}

	b.add(models.ColOrderID+"_completeness", blankID, false, "order_id has %d null values")
	b.add(models.ColMobileNumber+"_completeness", blankMobile, false, "mobile_number has %d null values")
	b.add(models.ColOrderDateTime+"_completeness", blankDate, false, "order_date_time has %d null values")
	// an unparsable amount never survives cleaning
	b.add(models.ColTotalAmount+"_completeness", 0, false, "total_amount has %d null values")
	b.add("positive_amounts", badAmount, false, "%d line items have a non-positive total_amount")
	b.add("positive_counts", badCount, false, "%d line items have a non-positive sku_count")
	b.add("date_validation", future, false, "%d orders are dated in the future")
	b.add("price_consistency", oddPrice, true, "%d line items have an unusual unit price")

	report := b.finish()
	v.log(report)
	return report
}

func (v *Validator) log(report models.ValidationReport) {
	for _, c := range report.Checks {
		util.ValidationChecksTotal.WithLabelValues(report.Dataset, string(c.Status)).Inc()
	}
	v.logger.Info("Validation completed",
		zap.String("dataset", report.Dataset),
		zap.String("status", string(report.OverallStatus)),
		zap.Int("checks_passed", report.Passed()),
		zap.Int("total_checks", len(report.Checks)),
		zap.Strings("issues", report.Issues))
}
