package silver

import (
	"strings"
	"unicode/utf8"

	"order-analytics/internal/models"
	"order-analytics/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var regionGroups = map[string]string{
	models.RegionNorth:   "Northern",
	models.RegionSouth:   "Southern",
	models.RegionEast:    "Eastern",
	models.RegionWest:    "Western",
	models.RegionUnknown: "Other",
}

// RegionGroup returns the long-form label of a region
func RegionGroup(region string) string {
	if g, ok := regionGroups[region]; ok {
		return g
	}
	return regionGroups[models.RegionUnknown]
}

var sizeBands = []struct {
	below decimal.Decimal
	label string
}{
	{decimal.NewFromInt(100), "Small"},
	{decimal.NewFromInt(500), "Medium"},
	{decimal.NewFromInt(1000), "Large"},
}

// OrderSizeCategory bands a line item amount
func OrderSizeCategory(amount decimal.Decimal) string {
	for _, band := range sizeBands {
		if amount.LessThan(band.below) {
			return band.label
		}
	}
	return "VIP"
}

// TimeOfDay bands an hour of the day
func TimeOfDay(hour int) string {
	switch {
	case hour < 6:
		return "Night"
	case hour < 12:
		return "Morning"
	case hour < 18:
		return "Afternoon"
	default:
		return "Evening"
	}
}

type Enricher struct {
	logger *zap.Logger
}

func NewEnricher() *Enricher {
	return &Enricher{logger: util.GetLogger()}
}

// EnrichCustomers adds region_group and name shape fields
func (e *Enricher) EnrichCustomers(customers []models.Customer) []models.EnrichedCustomer {
	out := make([]models.EnrichedCustomer, 0, len(customers))
	for _, c := range customers {
		out = append(out, models.EnrichedCustomer{
			Customer:    c,
			RegionGroup: RegionGroup(c.Region),
			NameLength:  utf8.RuneCountInString(c.CustomerName),
			WordCount:   len(strings.Fields(c.CustomerName)),
		})
	}
	e.logger.Info("Customer enrichment completed", zap.Int("records", len(out)))
	return out
}

// EnrichOrders adds calendar and banding fields and left-joins customer
// attributes by mobile number. Each order matches at most one customer: the
// first one carrying its mobile number.
func (e *Enricher) EnrichOrders(orders []models.OrderLineItem, customers []models.EnrichedCustomer) []models.EnrichedOrder {
	byMobile := make(map[string]*models.EnrichedCustomer, len(customers))
	for i := range customers {
		if _, ok := byMobile[customers[i].MobileNumber]; !ok {
			byMobile[customers[i].MobileNumber] = &customers[i]
		}
	}

	out := make([]models.EnrichedOrder, 0, len(orders))
	unmatched := 0
	for _, o := range orders {
		t := o.OrderDateTime.UTC()
		_, week := t.ISOWeek()
		eo := models.EnrichedOrder{
			OrderLineItem:     o,
			OrderDate:         t.Format("2006-01-02"),
			OrderYear:         t.Year(),
			OrderMonth:        int(t.Month()),
			OrderQuarter:      (int(t.Month())-1)/3 + 1,
			OrderDay:          t.Day(),
			OrderWeek:         week,
			OrderDayOfWeek:    t.Weekday().String(),
			OrderHour:         t.Hour(),
			OrderSizeCategory: OrderSizeCategory(o.TotalAmount),
			TimeOfDay:         TimeOfDay(t.Hour()),
		}
		if o.SKUCount != 0 {
			eo.AvgItemPrice = o.TotalAmount.Div(decimal.NewFromInt(o.SKUCount)).InexactFloat64()
		}
		if c, ok := byMobile[o.MobileNumber]; ok {
			name, region, group := c.CustomerName, c.Region, c.RegionGroup
			eo.CustomerName = &name
			eo.Region = &region
			eo.RegionGroup = &group
		} else {
			unmatched++
		}
		out = append(out, eo)
	}

	e.logger.Info("Order enrichment completed",
		zap.Int("records", len(out)),
		zap.Int("unmatched_orders", unmatched))
	return out
}
