package analytics

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"superstore/pipeline"
)

const ordersCSV = "Order ID;Order Date;Ship Date;Ship Mode;Segment;Region;Category;Sub-Category;Sales;Quantity;Discount;Profit\n" +
	"A-1;15/01/2023;18/01/2023;Standard Class;Consumer;West;Furniture;Chairs;100,00;2;0;20,00\n" +
	"A-1;15/01/2023;18/01/2023;Standard Class;Consumer;West;Technology;Phones;300,00;1;0,2;-30,00\n" +
	"A-2;03/02/2023;05/02/2023;First Class;Corporate;East;Furniture;Tables;200,00;4;0,5;-10,00\n" +
	"A-3;20/04/2023;22/04/2023;Same Day;Home Office;East;Office Supplies;Paper;50,00;5;0;15,00\n" +
	"A-4;21/04/2023;25/04/2023;Second Class;Consumer;South;Furniture;Chairs;;3;0;5,00\n"

func loadOrders(t *testing.T) *pipeline.Table {
	t.Helper()
	table, err := pipeline.ReadCSV(strings.NewReader(ordersCSV), pipeline.SuperstoreFormat())
	require.NoError(t, err)
	return pipeline.DeriveFeatures(table)
}

func TestSummarize(t *testing.T) {
	kpi := Summarize(loadOrders(t))
	assert.InDelta(t, 650.0, kpi.TotalSales, 1e-9)
	assert.InDelta(t, 0.0, kpi.TotalProfit, 1e-9)
	assert.Equal(t, 4, kpi.Orders)
	require.NotNil(t, kpi.ProfitRatio)
	assert.InDelta(t, 60.0, *kpi.ProfitRatio, 1e-9)
}

func TestSummarizeWithoutOptionalColumns(t *testing.T) {
	table := pipeline.NewTable(pipeline.ColRegion)
	table.Rows = []pipeline.Order{{Region: "West"}, {Region: "East"}}

	kpi := Summarize(table)
	assert.Zero(t, kpi.TotalSales)
	assert.Zero(t, kpi.TotalProfit)
	assert.Equal(t, 2, kpi.Orders)
	assert.Nil(t, kpi.ProfitRatio)
}

func TestCategoryRollup(t *testing.T) {
	rollup := CategoryRollup(loadOrders(t))
	require.Len(t, rollup, 3)

	assert.Equal(t, "Furniture", rollup[0].Category)
	assert.InDelta(t, 300.0, rollup[0].Sales, 1e-9)
	assert.InDelta(t, 15.0, rollup[0].Profit, 1e-9)
	assert.Equal(t, "Office Supplies", rollup[1].Category)
	assert.Equal(t, "Technology", rollup[2].Category)
	assert.InDelta(t, -30.0, rollup[2].Profit, 1e-9)
}

func TestCategoryRollupMissingColumn(t *testing.T) {
	table := pipeline.NewTable(pipeline.ColCategory, pipeline.ColSales)
	table.Rows = []pipeline.Order{{Category: "Furniture"}}
	assert.Nil(t, CategoryRollup(table))
}

func TestTopSubCategories(t *testing.T) {
	table := loadOrders(t)

	top := TopSubCategories(table, 2)
	require.Len(t, top, 2)
	assert.Equal(t, "Phones", top[0].SubCategory)
	assert.Equal(t, "Tables", top[1].SubCategory)

	all := TopSubCategories(table, 10)
	assert.Len(t, all, 4)
	assert.Nil(t, TopSubCategories(table, 0))
}

func TestTopSubCategoriesTiesKeepFirstAppearance(t *testing.T) {
	table := pipeline.NewTable(pipeline.ColSubCategory, pipeline.ColSales)
	for _, name := range []string{"Binders", "Art", "Labels"} {
		o := pipeline.Order{SubCategory: name}
		o.Sales.V, o.Sales.Valid = 10, true
		table.Rows = append(table.Rows, o)
	}

	top := TopSubCategories(table, 3)
	require.Len(t, top, 3)
	assert.Equal(t, []string{"Binders", "Art", "Labels"},
		[]string{top[0].SubCategory, top[1].SubCategory, top[2].SubCategory})
}

func TestTopSubCategorySummary(t *testing.T) {
	summary := TopSubCategorySummary(loadOrders(t), 5)
	require.Len(t, summary, 4)

	phones := summary[0]
	assert.Equal(t, "Phones", phones.SubCategory)
	assert.InDelta(t, -10.0, phones.MarginPct, 1e-9)
	assert.Equal(t, 1, phones.Orders)

	var chairs SubCategorySummary
	for _, s := range summary {
		if s.SubCategory == "Chairs" {
			chairs = s
		}
	}
	assert.InDelta(t, 100.0, chairs.Sales, 1e-9)
	assert.InDelta(t, 25.0, chairs.Profit, 1e-9)
	assert.Equal(t, 2, chairs.Orders)
}

func TestMonthlyTrend(t *testing.T) {
	trend := MonthlyTrend(loadOrders(t))
	require.Len(t, trend, 4)

	months := make([]string, len(trend))
	for i, p := range trend {
		months[i] = p.Month
	}
	assert.Equal(t, []string{"2023-01", "2023-02", "2023-03", "2023-04"}, months)

	assert.True(t, trend[0].Period.Equal(time.Date(2023, 1, 31, 0, 0, 0, 0, time.UTC)))
	assert.True(t, trend[1].Period.Equal(time.Date(2023, 2, 28, 0, 0, 0, 0, time.UTC)))
	assert.InDelta(t, 400.0, trend[0].Sales, 1e-9)
	assert.InDelta(t, -10.0, trend[0].Profit, 1e-9)

	// 三月没有订单，补零
	assert.Zero(t, trend[2].Sales)
	assert.Zero(t, trend[2].Profit)
	assert.InDelta(t, 50.0, trend[3].Sales, 1e-9)
	assert.InDelta(t, 20.0, trend[3].Profit, 1e-9)
}

func TestMonthlyTrendWithoutDates(t *testing.T) {
	table := pipeline.NewTable(pipeline.ColOrderDate, pipeline.ColSales, pipeline.ColProfit)
	table.Rows = []pipeline.Order{{}}
	assert.Nil(t, MonthlyTrend(table))
}

func TestSalesProfitPoints(t *testing.T) {
	points := SalesProfitPoints(loadOrders(t))
	// 第 5 行 Sales 缺失
	require.Len(t, points, 4)
	require.NotNil(t, points[0].Quantity)
	assert.Equal(t, int64(2), *points[0].Quantity)
	require.NotNil(t, points[2].Discount)
	assert.InDelta(t, 0.5, *points[2].Discount, 1e-9)

	table := pipeline.NewTable(pipeline.ColSales, pipeline.ColProfit)
	o := pipeline.Order{}
	o.Sales.V, o.Sales.Valid = 1, true
	o.Profit.V, o.Profit.Valid = 2, true
	table.Rows = []pipeline.Order{o}
	points = SalesProfitPoints(table)
	require.Len(t, points, 1)
	assert.Nil(t, points[0].Quantity)
	assert.Nil(t, points[0].Discount)
}

func TestViews(t *testing.T) {
	caps := Views([]string{pipeline.ColSubCategory, pipeline.ColSales, pipeline.ColRegion})

	assert.True(t, caps.Can(ViewSummary))
	assert.True(t, caps.Can(ViewTopSubCategories))
	assert.True(t, caps.Can(ViewRegionFilter))
	assert.False(t, caps.Can(ViewCategoryRollup))
	assert.False(t, caps.Can(ViewMonthlyTrend))
	assert.Equal(t, []string{pipeline.ColCategory, pipeline.ColProfit}, caps.Missing[ViewCategoryRollup])
	assert.NotContains(t, caps.Missing, ViewSummary)

	full := Views(loadOrders(t).Columns)
	assert.Empty(t, full.Missing)
}
