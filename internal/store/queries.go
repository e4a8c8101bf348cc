package store

import "strings"

// KPI queries. Tokens in braces are filled in per dialect by render.
//
// first_customers keeps the earliest customer row per mobile number so that
// joins never multiply order rows. logical_orders collapses line items to one
// row per order_id with the summed amount.

const kpiCommonCTEs = `
first_customers AS (
  SELECT c.mobile_number, c.customer_name, c.region
  FROM silver_customers c
  WHERE c.row_seq = (
    SELECT MIN(c2.row_seq) FROM silver_customers c2 WHERE c2.mobile_number = c.mobile_number
  )
),
logical_orders AS (
  SELECT
    order_id,
    MIN(mobile_number) AS mobile_number,
    MIN(order_date_time) AS order_date_time,
    SUM(total_amount) AS total_amount
  FROM silver_orders
  GROUP BY order_id
)`

// QueryRepeatCustomers counts distinct orders per mobile number over line items
const QueryRepeatCustomers = `
WITH ` + kpiCommonCTEs + `,
repeaters AS (
  SELECT mobile_number, COUNT(DISTINCT order_id) AS number_of_orders
  FROM silver_orders
  GROUP BY mobile_number
  HAVING COUNT(DISTINCT order_id) > 1
)
SELECT
  COALESCE(fc.customer_name, '') AS customer_name,
  r.number_of_orders AS number_of_orders
FROM repeaters r
LEFT JOIN first_customers fc ON fc.mobile_number = r.mobile_number
ORDER BY
  r.number_of_orders DESC,
  COALESCE(fc.customer_name, ''){collate} ASC,
  r.mobile_number ASC`

// QueryMonthlyTrends aggregates logical orders per calendar month
const QueryMonthlyTrends = `
WITH ` + kpiCommonCTEs + `
SELECT
  {month} AS month,
  COUNT(*) AS total_orders,
  {money} AS total_revenue
FROM logical_orders lo
GROUP BY {month}
ORDER BY month ASC`

// QueryRegionalRevenue sums logical orders per customer region
const QueryRegionalRevenue = `
WITH ` + kpiCommonCTEs + `
SELECT
  COALESCE(fc.region, 'Unknown') AS region,
  {money} AS regional_revenue
FROM logical_orders lo
LEFT JOIN first_customers fc ON fc.mobile_number = lo.mobile_number
GROUP BY COALESCE(fc.region, 'Unknown')
ORDER BY regional_revenue DESC, region ASC`

// QueryTopCustomers ranks customers by spend inside the window anchored to
// the latest logical order. Binds: window days, limit.
const QueryTopCustomers = `
WITH ` + kpiCommonCTEs + `
SELECT
  COALESCE(fc.customer_name, '') AS customer_name,
  {money} AS recent_spend
FROM logical_orders lo
LEFT JOIN first_customers fc ON fc.mobile_number = lo.mobile_number
WHERE lo.order_date_time >= {cutoff}
GROUP BY lo.mobile_number, fc.customer_name
ORDER BY
  recent_spend DESC,
  COALESCE(fc.customer_name, ''){collate} ASC,
  lo.mobile_number ASC
LIMIT ?`

// render fills the dialect tokens of a KPI query
func (d Dialect) render(query string) string {
	return strings.NewReplacer(
		"{month}", d.Month("lo.order_date_time"),
		"{money}", d.Money("lo.total_amount"),
		"{cutoff}", d.Cutoff,
		"{collate}", d.Collate,
	).Replace(query)
}
