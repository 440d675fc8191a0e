package analytics

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/plot/vg"

	"superstore/pipeline"
)

func day(y int, m time.Month, d int) *time.Time {
	v := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &v
}

func TestFilterApply(t *testing.T) {
	table := loadOrders(t)

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"no filter", Filter{}, 5},
		{"date range inclusive", Filter{From: day(2023, 2, 3), To: day(2023, 4, 20)}, 2},
		{"open ended", Filter{From: day(2023, 4, 1)}, 2},
		{"region", Filter{Regions: []string{"East"}}, 2},
		{"category cascade", Filter{Categories: []string{"Furniture"}, SubCategories: []string{"Chairs"}}, 2},
		{"combined", Filter{Regions: []string{"West"}, To: day(2023, 1, 31)}, 2},
		{"nothing matches", Filter{Regions: []string{"North"}}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := tt.filter.Apply(table)
			assert.Equal(t, tt.want, out.Len())
			assert.Equal(t, table.Columns, out.Columns)
		})
	}
	assert.Equal(t, 5, table.Len())
}

func TestFilterIgnoresAbsentColumns(t *testing.T) {
	table := pipeline.NewTable(pipeline.ColSales)
	table.Rows = []pipeline.Order{{}, {}}

	out := Filter{Regions: []string{"West"}, From: day(2023, 1, 1)}.Apply(table)
	assert.Equal(t, 2, out.Len())
}

func TestFilterExcludesMissingDates(t *testing.T) {
	table := pipeline.NewTable(pipeline.ColOrderDate)
	var dated pipeline.Order
	dated.OrderDate.V, dated.OrderDate.Valid = *day(2023, 5, 1), true
	table.Rows = []pipeline.Order{dated, {}}

	assert.Equal(t, 1, Filter{To: day(2023, 12, 31)}.Apply(table).Len())
	assert.Equal(t, 2, Filter{}.Apply(table).Len())
}

func TestOptions(t *testing.T) {
	opts := Options(loadOrders(t))
	assert.Equal(t, []string{"East", "South", "West"}, opts.Regions)
	assert.Equal(t, []string{"Furniture", "Office Supplies", "Technology"}, opts.Categories)
	assert.Equal(t, []string{"Chairs", "Tables"}, opts.SubCategories["Furniture"])
	assert.Equal(t, []string{"First Class", "Same Day", "Second Class", "Standard Class"}, opts.ShipModes)
	require.NotNil(t, opts.MinDate)
	assert.True(t, opts.MinDate.Equal(*day(2023, 1, 15)))
	assert.True(t, opts.MaxDate.Equal(*day(2023, 4, 21)))
}

func TestOverview(t *testing.T) {
	ov := Overview(loadOrders(t))
	assert.Equal(t, 5, ov.Rows)
	assert.Equal(t, 4, ov.Orders)
	require.NotNil(t, ov.PeriodStart)
	assert.True(t, ov.PeriodEnd.Equal(*day(2023, 4, 21)))
	// 空单元格是缺失值，不算解析失败
	assert.Zero(t, ov.Issues.Total())
}

func TestCharts(t *testing.T) {
	table := loadOrders(t)
	for _, name := range ChartNames() {
		t.Run(name, func(t *testing.T) {
			p, err := Chart(name, table, 3)
			require.NoError(t, err)
			require.NotNil(t, p)

			var buf bytes.Buffer
			require.NoError(t, RenderPNG(&buf, p, 6*vg.Inch, 4*vg.Inch))
			assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG")))
		})
	}
}

func TestChartUnavailable(t *testing.T) {
	table := pipeline.NewTable(pipeline.ColRegion)
	p, err := Chart(ChartMonthlyTrend, table, 5)
	require.NoError(t, err)
	assert.Nil(t, p)

	_, err = Chart("pie", table, 5)
	assert.ErrorIs(t, err, ErrUnknownChart)
}
