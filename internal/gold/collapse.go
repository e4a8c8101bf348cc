package gold

import (
	"order-analytics/internal/models"
)

// customerIndex resolves a mobile number to the first customer carrying it
type customerIndex map[string]*models.EnrichedCustomer

func indexCustomers(customers []models.EnrichedCustomer) customerIndex {
	idx := make(customerIndex, len(customers))
	for i := range customers {
		if _, ok := idx[customers[i].MobileNumber]; !ok {
			idx[customers[i].MobileNumber] = &customers[i]
		}
	}
	return idx
}

func (idx customerIndex) name(mobile string) string {
	if c, ok := idx[mobile]; ok {
		return c.CustomerName
	}
	return ""
}

func (idx customerIndex) region(mobile string) string {
	if c, ok := idx[mobile]; ok {
		return c.Region
	}
	return models.RegionUnknown
}

// CollapseOrders reduces line items to one logical order per order_id, in
// order of first appearance. The amount is the sum over the order's items,
// the timestamp is the earliest and the mobile number the smallest. The
// region is the denormalized region of an item carrying that mobile, else
// the matching customer's region, else Unknown.
func CollapseOrders(orders []models.EnrichedOrder, customers []models.EnrichedCustomer) []models.LogicalOrder {
	idx := indexCustomers(customers)

	positions := make(map[string]int)
	out := make([]models.LogicalOrder, 0)
	items := make([][]int, 0)
	for i, o := range orders {
		pos, ok := positions[o.OrderID]
		if !ok {
			pos = len(out)
			positions[o.OrderID] = pos
			out = append(out, models.LogicalOrder{
				OrderID:       o.OrderID,
				MobileNumber:  o.MobileNumber,
				OrderDateTime: o.OrderDateTime,
			})
			items = append(items, nil)
		}
		lo := &out[pos]
		lo.TotalAmount = lo.TotalAmount.Add(o.TotalAmount)
		lo.LineItems++
		if o.OrderDateTime.Before(lo.OrderDateTime) {
			lo.OrderDateTime = o.OrderDateTime
		}
		if o.MobileNumber < lo.MobileNumber {
			lo.MobileNumber = o.MobileNumber
		}
		items[pos] = append(items[pos], i)
	}

	for pos := range out {
		lo := &out[pos]
		lo.Region = ""
		for _, i := range items[pos] {
			if orders[i].MobileNumber == lo.MobileNumber && orders[i].Region != nil {
				lo.Region = *orders[i].Region
				break
			}
		}
		if lo.Region == "" {
			lo.Region = idx.region(lo.MobileNumber)
		}
	}
	return out
}
