package analytics

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"superstore/pipeline"
)

// KPI headline numbers.
type KPI struct {
	TotalSales  float64  `json:"total_sales"`
	TotalProfit float64  `json:"total_profit"`
	Orders      int      `json:"n_orders"`
	ProfitRatio *float64 `json:"profit_ratio"`
}

// CategoryTotal sales and profit for one category.
type CategoryTotal struct {
	Category string  `json:"category"`
	Sales    float64 `json:"sales"`
	Profit   float64 `json:"profit"`
}

// SubCategoryTotal summed sales for one sub-category.
type SubCategoryTotal struct {
	SubCategory string  `json:"sub_category"`
	Sales       float64 `json:"sales"`
}

// SubCategorySummary is one row of the top sub-category table.
type SubCategorySummary struct {
	SubCategory string  `json:"sub_category"`
	Sales       float64 `json:"sales"`
	Profit      float64 `json:"profit"`
	MarginPct   float64 `json:"margin_pct"`
	Orders      int     `json:"orders"`
}

// MonthlyPoint is one calendar month, anchored at the month's last day.
type MonthlyPoint struct {
	Period time.Time `json:"period"`
	Month  string    `json:"month"`
	Sales  float64   `json:"sales"`
	Profit float64   `json:"profit"`
}

// ScatterPoint is one unaggregated order row.
type ScatterPoint struct {
	Sales    float64  `json:"sales"`
	Profit   float64  `json:"profit"`
	Quantity *int64   `json:"quantity,omitempty"`
	Discount *float64 `json:"discount,omitempty"`
}

// Summarize computes the KPI cards.
func Summarize(t *pipeline.Table) KPI {
	var kpi KPI
	if t.Has(pipeline.ColSales) {
		kpi.TotalSales = floats.Sum(column(t, pipeline.ColSales))
	}
	if t.Has(pipeline.ColProfit) {
		kpi.TotalProfit = floats.Sum(column(t, pipeline.ColProfit))
	}
	if t.Has(pipeline.ColOrderID) {
		kpi.Orders = distinctOrders(t.Rows)
	} else {
		kpi.Orders = t.Len()
	}
	if t.Has(pipeline.ColProfitable) {
		if labels := column(t, pipeline.ColProfitable); len(labels) > 0 {
			ratio := stat.Mean(labels, nil) * 100
			kpi.ProfitRatio = &ratio
		}
	}
	return kpi
}

// CategoryRollup sums sales and profit per category, sorted by name.
func CategoryRollup(t *pipeline.Table) []CategoryTotal {
	if !can(t, ViewCategoryRollup) {
		return nil
	}
	groups := make(map[string]*CategoryTotal)
	for i := range t.Rows {
		row := &t.Rows[i]
		if row.Category == "" {
			continue
		}
		g, ok := groups[row.Category]
		if !ok {
			g = &CategoryTotal{Category: row.Category}
			groups[row.Category] = g
		}
		if row.Sales.Valid {
			g.Sales += row.Sales.V
		}
		if row.Profit.Valid {
			g.Profit += row.Profit.V
		}
	}

	result := make([]CategoryTotal, 0, len(groups))
	for _, g := range groups {
		result = append(result, *g)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Category < result[j].Category })
	return result
}

// TopSubCategories returns at most n sub-categories by summed sales, descending.
// Equal sums keep first-appearance order.
func TopSubCategories(t *pipeline.Table, n int) []SubCategoryTotal {
	if !can(t, ViewTopSubCategories) || n <= 0 {
		return nil
	}
	summary := subCategoryGroups(t)
	result := make([]SubCategoryTotal, 0, min(n, len(summary)))
	for _, s := range summary[:min(n, len(summary))] {
		result = append(result, SubCategoryTotal{SubCategory: s.SubCategory, Sales: s.Sales})
	}
	return result
}

// TopSubCategorySummary extends TopSubCategories with profit, margin and order counts.
func TopSubCategorySummary(t *pipeline.Table, n int) []SubCategorySummary {
	if !can(t, ViewTopSubCategories) || n <= 0 {
		return nil
	}
	summary := subCategoryGroups(t)
	return summary[:min(n, len(summary))]
}

func subCategoryGroups(t *pipeline.Table) []SubCategorySummary {
	countOrders := t.Has(pipeline.ColOrderID)

	var order []string
	groups := make(map[string]*SubCategorySummary)
	orderIDs := make(map[string]map[string]struct{})
	for i := range t.Rows {
		row := &t.Rows[i]
		if row.SubCategory == "" {
			continue
		}
		g, ok := groups[row.SubCategory]
		if !ok {
			g = &SubCategorySummary{SubCategory: row.SubCategory}
			groups[row.SubCategory] = g
			orderIDs[row.SubCategory] = make(map[string]struct{})
			order = append(order, row.SubCategory)
		}
		if row.Sales.Valid {
			g.Sales += row.Sales.V
			if !countOrders {
				g.Orders++
			}
		}
		if row.Profit.Valid {
			g.Profit += row.Profit.V
		}
		if countOrders && row.OrderID != "" {
			orderIDs[row.SubCategory][row.OrderID] = struct{}{}
		}
	}

	result := make([]SubCategorySummary, 0, len(order))
	for _, name := range order {
		g := groups[name]
		if countOrders {
			g.Orders = len(orderIDs[name])
		}
		if g.Sales != 0 {
			g.MarginPct = g.Profit / g.Sales * 100
		}
		result = append(result, *g)
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].Sales > result[j].Sales })
	return result
}

// MonthlyTrend resamples sales and profit by calendar month. Months without
// orders between the first and last month are present with zero sums.
func MonthlyTrend(t *pipeline.Table) []MonthlyPoint {
	if !can(t, ViewMonthlyTrend) {
		return nil
	}

	type bucket struct{ sales, profit float64 }
	buckets := make(map[time.Time]*bucket)
	var first, last time.Time
	for i := range t.Rows {
		row := &t.Rows[i]
		if !row.OrderDate.Valid {
			continue
		}
		d := row.OrderDate.V
		month := time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC)
		b, ok := buckets[month]
		if !ok {
			b = &bucket{}
			buckets[month] = b
		}
		if row.Sales.Valid {
			b.sales += row.Sales.V
		}
		if row.Profit.Valid {
			b.profit += row.Profit.V
		}
		if first.IsZero() || month.Before(first) {
			first = month
		}
		if month.After(last) {
			last = month
		}
	}
	if len(buckets) == 0 {
		return nil
	}

	var points []MonthlyPoint
	for m := first; !m.After(last); m = m.AddDate(0, 1, 0) {
		p := MonthlyPoint{Period: m.AddDate(0, 1, -1), Month: m.Format("2006-01")}
		if b, ok := buckets[m]; ok {
			p.Sales, p.Profit = b.sales, b.profit
		}
		points = append(points, p)
	}
	return points
}

// SalesProfitPoints returns per-row (Sales, Profit) pairs, annotated with
// Quantity and Discount when those columns exist.
func SalesProfitPoints(t *pipeline.Table) []ScatterPoint {
	if !can(t, ViewSalesProfit) {
		return nil
	}
	withQty := t.Has(pipeline.ColQuantity)
	withDisc := t.Has(pipeline.ColDiscount)

	points := make([]ScatterPoint, 0, t.Len())
	for i := range t.Rows {
		row := &t.Rows[i]
		if !row.Sales.Valid || !row.Profit.Valid {
			continue
		}
		p := ScatterPoint{Sales: row.Sales.V, Profit: row.Profit.V}
		if withQty && row.Quantity.Valid {
			q := row.Quantity.V
			p.Quantity = &q
		}
		if withDisc && row.Discount.Valid {
			d := row.Discount.V
			p.Discount = &d
		}
		points = append(points, p)
	}
	return points
}

// column collects the non-missing values of a numeric column.
func column(t *pipeline.Table, name string) []float64 {
	values := make([]float64, 0, t.Len())
	for i := range t.Rows {
		if v, ok := t.Rows[i].Number(name); ok {
			values = append(values, v)
		}
	}
	return values
}

func distinctOrders(rows []pipeline.Order) int {
	seen := make(map[string]struct{}, len(rows))
	for i := range rows {
		if id := rows[i].OrderID; id != "" {
			seen[id] = struct{}{}
		}
	}
	return len(seen)
}
