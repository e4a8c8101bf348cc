package silver

import (
	"testing"
	"time"

	"order-analytics/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCustomers_Pass(t *testing.T) {
	v := NewValidator(clock)

	report := v.ValidateCustomers([]models.Customer{
		{CustomerID: "C1", CustomerName: "Ann", MobileNumber: "9999999999", Region: "North"},
		{CustomerID: "C2", CustomerName: "Bob", MobileNumber: "9999999998", Region: "Unknown"},
	})

	assert.Equal(t, models.StatusPass, report.OverallStatus)
	assert.Len(t, report.Checks, 7)
	assert.Empty(t, report.Issues)
	assert.Equal(t, 7, report.Passed())
	assert.Equal(t, fixedNow, report.CheckedAt)
}

func TestValidateCustomers_Failures(t *testing.T) {
	v := NewValidator(clock)
	input := []models.Customer{
		{CustomerID: "C1", CustomerName: "", MobileNumber: "12345", Region: "North"},
		{CustomerID: "C1", CustomerName: "Bob", MobileNumber: "9999999999", Region: "Mars"},
	}
	snapshot := append([]models.Customer(nil), input...)

	report := v.ValidateCustomers(input)

	assert.Equal(t, models.StatusFail, report.OverallStatus)
	for name, count := range map[string]int{
		"customer_name_completeness": 1,
		"customer_id_uniqueness":     1,
		"mobile_format":              1,
		"region_validation":          1,
	} {
		check, ok := report.Check(name)
		require.True(t, ok, name)
		assert.Equal(t, models.StatusFail, check.Status, name)
		assert.Equal(t, count, check.Count, name)
	}
	assert.Len(t, report.Issues, 4)
	assert.Equal(t, snapshot, input)
}

func TestValidateOrders_WarnDoesNotFail(t *testing.T) {
	v := NewValidator(clock)

	report := v.ValidateOrders([]models.OrderLineItem{
		{OrderID: "O1", MobileNumber: "9999999999", OrderDateTime: fixedNow.Add(-time.Hour), SKUCount: 1, TotalAmount: decimal.NewFromInt(20000)},
		{OrderID: "O2", MobileNumber: "9999999999", OrderDateTime: fixedNow, SKUCount: 1000, TotalAmount: decimal.NewFromInt(5)},
	})

	check, ok := report.Check("price_consistency")
	require.True(t, ok)
	assert.Equal(t, models.StatusWarn, check.Status)
	assert.Equal(t, 2, check.Count)
	assert.Equal(t, models.StatusWarn, report.OverallStatus)
	assert.False(t, report.Failed())
	assert.Len(t, report.Issues, 1)
}

func TestValidateOrders_Failures(t *testing.T) {
	v := NewValidator(clock)

	report := v.ValidateOrders([]models.OrderLineItem{
		{OrderID: "", MobileNumber: "9999999999", OrderDateTime: fixedNow.Add(time.Hour), SKUCount: 0, TotalAmount: decimal.NewFromInt(-1)},
	})

	assert.Equal(t, models.StatusFail, report.OverallStatus)
	for _, name := range []string{"order_id_completeness", "positive_amounts", "positive_counts", "date_validation"} {
		check, ok := report.Check(name)
		require.True(t, ok, name)
		assert.Equal(t, models.StatusFail, check.Status, name)
	}
	check, _ := report.Check("price_consistency")
	assert.Equal(t, models.StatusPass, check.Status)
}

func TestOverallStatus(t *testing.T) {
	assert.Equal(t, models.StatusPass, OverallStatus(nil))
	assert.Equal(t, models.StatusWarn, OverallStatus([]models.Check{{Status: models.StatusPass}, {Status: models.StatusWarn}}))
	assert.Equal(t, models.StatusFail, OverallStatus([]models.Check{{Status: models.StatusWarn}, {Status: models.StatusFail}}))
}
