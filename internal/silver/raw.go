package silver

import (
	"strconv"
	"time"

	"order-analytics/internal/models"
)

// RawFromCustomers renders cleaned customers back into a raw table
func RawFromCustomers(customers []models.Customer) models.RawTable {
	table := models.RawTable{
		Name:    "customers",
		Columns: append([]string(nil), models.CustomerColumns...),
		Records: make([]models.RawRecord, 0, len(customers)),
	}
	for _, c := range customers {
		table.Records = append(table.Records, models.RawRecord{
			models.ColCustomerID:   c.CustomerID,
			models.ColCustomerName: c.CustomerName,
			models.ColMobileNumber: c.MobileNumber,
			models.ColRegion:       c.Region,
		})
	}
	return table
}

// RawFromOrders renders cleaned line items back into a raw table. Timestamps
// and amounts are written without loss of precision.
func RawFromOrders(orders []models.OrderLineItem) models.RawTable {
	table := models.RawTable{
		Name:    "orders",
		Columns: append([]string(nil), models.OrderColumns...),
		Records: make([]models.RawRecord, 0, len(orders)),
	}
	for _, o := range orders {
		table.Records = append(table.Records, models.RawRecord{
			models.ColOrderID:       o.OrderID,
			models.ColMobileNumber:  o.MobileNumber,
			models.ColOrderDateTime: o.OrderDateTime.UTC().Format(time.RFC3339Nano),
			models.ColSKUID:         o.SKUID,
			models.ColSKUCount:      strconv.FormatInt(o.SKUCount, 10),
			models.ColTotalAmount:   o.TotalAmount.String(),
		})
	}
	return table
}
