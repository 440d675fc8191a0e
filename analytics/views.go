// Package analytics computes the dashboard rollups over an order table.
//
// Every aggregation returns nil (or a zero value) instead of an error when the
// columns it needs are absent; Views reports up front which views a column set
// can support so callers can hide the rest.
package analytics

import (
	"slices"

	"superstore/pipeline"
)

// View names
const (
	ViewSummary           = "summary"
	ViewCategoryRollup    = "category_rollup"
	ViewTopSubCategories  = "top_subcategories"
	ViewMonthlyTrend      = "monthly_trend"
	ViewSalesProfit       = "sales_profit"
	ViewDateFilter        = "date_filter"
	ViewRegionFilter      = "region_filter"
	ViewCategoryFilter    = "category_filter"
	ViewSubCategoryFilter = "subcategory_filter"
	ViewShippingDuration  = "days_to_ship"
	ViewCalendar          = "calendar"
	ViewProfitTarget      = "profitable"
)

type requirement struct {
	view    string
	columns []string
}

var requirements = []requirement{
	{ViewSummary, nil},
	{ViewCategoryRollup, []string{pipeline.ColCategory, pipeline.ColSales, pipeline.ColProfit}},
	{ViewTopSubCategories, []string{pipeline.ColSubCategory, pipeline.ColSales}},
	{ViewMonthlyTrend, []string{pipeline.ColOrderDate, pipeline.ColSales, pipeline.ColProfit}},
	{ViewSalesProfit, []string{pipeline.ColSales, pipeline.ColProfit}},
	{ViewDateFilter, []string{pipeline.ColOrderDate}},
	{ViewRegionFilter, []string{pipeline.ColRegion}},
	{ViewCategoryFilter, []string{pipeline.ColCategory}},
	{ViewSubCategoryFilter, []string{pipeline.ColSubCategory}},
	{ViewShippingDuration, []string{pipeline.ColDaysToShip}},
	{ViewCalendar, []string{pipeline.ColOrderYear, pipeline.ColOrderMonth}},
	{ViewProfitTarget, []string{pipeline.ColProfitable}},
}

// Capabilities says which views a column set supports.
type Capabilities struct {
	Available []string            `json:"available"`
	Missing   map[string][]string `json:"missing"`
}

// Can reports whether view is available.
func (c Capabilities) Can(view string) bool {
	return slices.Contains(c.Available, view)
}

// Views evaluates every known view against columns.
func Views(columns []string) Capabilities {
	c := Capabilities{Missing: make(map[string][]string)}
	for _, req := range requirements {
		var missing []string
		for _, col := range req.columns {
			if !slices.Contains(columns, col) {
				missing = append(missing, col)
			}
		}
		if len(missing) == 0 {
			c.Available = append(c.Available, req.view)
		} else {
			c.Missing[req.view] = missing
		}
	}
	return c
}

func can(t *pipeline.Table, view string) bool {
	for _, req := range requirements {
		if req.view == view {
			return t.HasAll(req.columns...)
		}
	}
	return false
}
