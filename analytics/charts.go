package analytics

import (
	"errors"
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"superstore/pipeline"
)

// 图表名
const (
	ChartCategory         = "category"
	ChartTopSubCategories = "top-subcategories"
	ChartMonthlyTrend     = "monthly-trend"
	ChartSalesProfit      = "sales-profit"
)

// ErrUnknownChart 未知图表名
var ErrUnknownChart = errors.New("unknown chart")

var (
	salesColor  = color.RGBA{R: 70, G: 130, B: 180, A: 255}
	profitColor = color.RGBA{R: 34, G: 139, B: 34, A: 255}
	lossColor   = color.RGBA{R: 220, G: 20, B: 60, A: 255}
)

// ChartNames 支持的图表
func ChartNames() []string {
	return []string{ChartCategory, ChartTopSubCategories, ChartMonthlyTrend, ChartSalesProfit}
}

// Chart 按名称构建图表。所需列缺失时返回 nil, nil
func Chart(name string, t *pipeline.Table, topN int) (*plot.Plot, error) {
	switch name {
	case ChartCategory:
		return CategoryChart(t)
	case ChartTopSubCategories:
		return TopSubCategoriesChart(t, topN)
	case ChartMonthlyTrend:
		return MonthlyTrendChart(t)
	case ChartSalesProfit:
		return SalesProfitChart(t)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownChart, name)
}

// CategoryChart 各类别销售额与利润的分组柱状图
func CategoryChart(t *pipeline.Table) (*plot.Plot, error) {
	rollup := CategoryRollup(t)
	if rollup == nil {
		return nil, nil
	}

	sales := make(plotter.Values, len(rollup))
	profit := make(plotter.Values, len(rollup))
	names := make([]string, len(rollup))
	for i, r := range rollup {
		sales[i], profit[i], names[i] = r.Sales, r.Profit, r.Category
	}

	p := newPlot("Sales and Profit by Category", "", "Amount")
	w := vg.Points(20)

	salesBars, err := plotter.NewBarChart(sales, w)
	if err != nil {
		return nil, err
	}
	salesBars.Color = salesColor
	salesBars.LineStyle.Width = vg.Length(0)
	salesBars.Offset = -w / 2

	profitBars, err := plotter.NewBarChart(profit, w)
	if err != nil {
		return nil, err
	}
	profitBars.Color = profitColor
	profitBars.LineStyle.Width = vg.Length(0)
	profitBars.Offset = w / 2

	p.Add(salesBars, profitBars)
	p.Legend.Add("Sales", salesBars)
	p.Legend.Add("Profit", profitBars)
	p.Legend.Top = true
	p.NominalX(names...)
	return p, nil
}

// TopSubCategoriesChart 销售额前 n 的子类别
func TopSubCategoriesChart(t *pipeline.Table, n int) (*plot.Plot, error) {
	top := TopSubCategories(t, n)
	if top == nil {
		return nil, nil
	}

	values := make(plotter.Values, len(top))
	names := make([]string, len(top))
	for i, s := range top {
		values[i], names[i] = s.Sales, s.SubCategory
	}

	p := newPlot(fmt.Sprintf("Top %d Sub-Categories by Sales", len(top)), "", "Sales")
	bars, err := plotter.NewBarChart(values, vg.Points(20))
	if err != nil {
		return nil, err
	}
	bars.Color = salesColor
	bars.LineStyle.Width = vg.Length(0)

	p.Add(bars)
	p.NominalX(names...)
	return p, nil
}

// MonthlyTrendChart 月度销售额与利润折线
func MonthlyTrendChart(t *pipeline.Table) (*plot.Plot, error) {
	trend := MonthlyTrend(t)
	if trend == nil {
		return nil, nil
	}

	sales := make(plotter.XYs, len(trend))
	profit := make(plotter.XYs, len(trend))
	for i, m := range trend {
		x := float64(m.Period.Unix())
		sales[i] = plotter.XY{X: x, Y: m.Sales}
		profit[i] = plotter.XY{X: x, Y: m.Profit}
	}

	p := newPlot("Monthly Sales and Profit", "Month", "Amount")
	p.X.Tick.Marker = plot.TimeTicks{Format: "2006-01"}
	p.Add(plotter.NewGrid())

	salesLine, err := plotter.NewLine(sales)
	if err != nil {
		return nil, err
	}
	salesLine.Color = salesColor
	salesLine.Width = vg.Points(2)

	profitLine, err := plotter.NewLine(profit)
	if err != nil {
		return nil, err
	}
	profitLine.Color = profitColor
	profitLine.Width = vg.Points(2)

	p.Add(salesLine, profitLine)
	p.Legend.Add("Sales", salesLine)
	p.Legend.Add("Profit", profitLine)
	p.Legend.Top = true
	return p, nil
}

// SalesProfitChart 销售额-利润散点，点大小随数量变化，亏损点标红
func SalesProfitChart(t *pipeline.Table) (*plot.Plot, error) {
	points := SalesProfitPoints(t)
	if points == nil {
		return nil, nil
	}

	p := newPlot("Sales vs Profit", "Sales", "Profit")
	p.Add(plotter.NewGrid())
	if len(points) == 0 {
		return p, nil
	}

	xys := make(plotter.XYs, len(points))
	for i, pt := range points {
		xys[i] = plotter.XY{X: pt.Sales, Y: pt.Profit}
	}
	scatter, err := plotter.NewScatter(xys)
	if err != nil {
		return nil, err
	}
	scatter.GlyphStyleFunc = func(i int) draw.GlyphStyle {
		style := draw.GlyphStyle{Color: profitColor, Radius: vg.Points(2), Shape: draw.CircleGlyph{}}
		if points[i].Profit < 0 {
			style.Color = lossColor
		}
		if q := points[i].Quantity; q != nil {
			style.Radius = vg.Points(1.5 + 0.5*float64(min(*q, 14)))
		}
		return style
	}

	p.Add(scatter)
	return p, nil
}

// RenderPNG 把图表写成 PNG
func RenderPNG(w io.Writer, p *plot.Plot, width, height vg.Length) error {
	wt, err := p.WriterTo(width, height, "png")
	if err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	_, err = wt.WriteTo(w)
	return err
}

func newPlot(title, x, y string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.Title.TextStyle.Font.Size = vg.Points(14)
	p.X.Label.Text = x
	p.Y.Label.Text = y
	return p
}
