package gold

import (
	"math"
	"sort"
	"strconv"
	"time"

	"order-analytics/internal/models"

	"github.com/shopspring/decimal"
)

// Customer segments
const (
	SegmentVIP        = "VIP"
	SegmentRegular    = "Regular"
	SegmentOccasional = "Occasional"
	SegmentNew        = "New"
)

// Quantile returns the q-th quantile of sorted values using linear
// interpolation between closest ranks
func Quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	return sorted[lo] + (sorted[hi]-sorted[lo])*(pos-float64(lo))
}

// ComputeBusinessMetrics computes customer segmentation, product performance and
// seasonality from silver data
func ComputeBusinessMetrics(silver *models.SilverData) *models.BusinessMetrics {
	logical := CollapseOrders(silver.Orders, silver.Customers)
	return &models.BusinessMetrics{
		CustomerSegmentation: segmentCustomers(logical, silver.Customers),
		ProductAnalysis:      analyseProducts(silver.Orders),
		MonthlySeasonality: seasonality(logical, func(t time.Time) (string, int) {
			return t.Month().String(), int(t.Month())
		}),
		WeekdaySeasonality: seasonality(logical, func(t time.Time) (string, int) {
			return t.Weekday().String(), int(t.Weekday())
		}),
		HourlySeasonality: seasonality(logical, func(t time.Time) (string, int) {
			return strconv.Itoa(t.Hour()), t.Hour()
		}),
	}
}

func segmentCustomers(logical []models.LogicalOrder, customers []models.EnrichedCustomer) []models.CustomerSegment {
	idx := indexCustomers(customers)
	type agg struct {
		total       decimal.Decimal
		count       int64
		first, last time.Time
	}
	byMobile := make(map[string]*agg)
	order := make([]string, 0)
	for _, lo := range logical {
		a, ok := byMobile[lo.MobileNumber]
		if !ok {
			a = &agg{first: lo.OrderDateTime, last: lo.OrderDateTime}
			byMobile[lo.MobileNumber] = a
			order = append(order, lo.MobileNumber)
		}
		a.total = a.total.Add(lo.TotalAmount)
		a.count++
		if lo.OrderDateTime.Before(a.first) {
			a.first = lo.OrderDateTime
		}
		if lo.OrderDateTime.After(a.last) {
			a.last = lo.OrderDateTime
		}
	}

	totals := make([]float64, 0, len(byMobile))
	for _, a := range byMobile {
		totals = append(totals, a.total.InexactFloat64())
	}
	sort.Float64s(totals)
	q80, q50, q20 := Quantile(totals, 0.8), Quantile(totals, 0.5), Quantile(totals, 0.2)

	out := make([]models.CustomerSegment, 0, len(order))
	for _, mobile := range order {
		a := byMobile[mobile]
		seg := SegmentNew
		total := a.total.InexactFloat64()
		switch {
		case total >= q80:
			seg = SegmentVIP
		case total >= q50:
			seg = SegmentRegular
		case total >= q20:
			seg = SegmentOccasional
		}
		row := models.CustomerSegment{
			MobileNumber:  mobile,
			CustomerName:  idx.name(mobile),
			Region:        idx.region(mobile),
			TotalSpent:    a.total,
			AvgOrderValue: a.total.Div(decimal.NewFromInt(a.count)).Round(models.MoneyPlaces),
			OrderCount:    a.count,
			LifetimeDays:  int64(a.last.Sub(a.first) / (24 * time.Hour)),
			Segment:       seg,
		}
		out = append(out, row)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TotalSpent.GreaterThan(out[j].TotalSpent) })
	return out
}

func analyseProducts(orders []models.EnrichedOrder) []models.ProductPerformance {
	bySKU := make(map[string]*models.ProductPerformance)
	for _, o := range orders {
		p, ok := bySKU[o.SKUID]
		if !ok {
			p = &models.ProductPerformance{SKUID: o.SKUID}
			bySKU[o.SKUID] = p
		}
		p.OrdersCount++
		p.TotalUnitsSold += o.SKUCount
		p.TotalRevenue = p.TotalRevenue.Add(o.TotalAmount)
	}

	out := make([]models.ProductPerformance, 0, len(bySKU))
	for _, p := range bySKU {
		if p.TotalUnitsSold > 0 {
			p.AvgRevenuePerUnit = p.TotalRevenue.Div(decimal.NewFromInt(p.TotalUnitsSold)).Round(models.MoneyPlaces)
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].TotalRevenue.Cmp(out[j].TotalRevenue); c != 0 {
			return c > 0
		}
		return out[i].SKUID < out[j].SKUID
	})
	return out
}

func seasonality(logical []models.LogicalOrder, key func(time.Time) (string, int)) []models.SeasonalBucket {
	type bucket struct {
		models.SeasonalBucket
		rank int
	}
	byKey := make(map[string]*bucket)
	for _, lo := range logical {
		label, rank := key(lo.OrderDateTime.UTC())
		b, ok := byKey[label]
		if !ok {
			b = &bucket{SeasonalBucket: models.SeasonalBucket{Bucket: label}, rank: rank}
			byKey[label] = b
		}
		b.Orders++
		b.TotalRevenue = b.TotalRevenue.Add(lo.TotalAmount)
	}

	buckets := make([]*bucket, 0, len(byKey))
	for _, b := range byKey {
		buckets = append(buckets, b)
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].rank < buckets[j].rank })

	out := make([]models.SeasonalBucket, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, b.SeasonalBucket)
	}
	return out
}
