package pipeline

import (
	"database/sql"
	"maps"
	"slices"
	"time"
)

// 规范列名
const (
	ColOrderID     = "Order ID"
	ColOrderDate   = "Order Date"
	ColShipDate    = "Ship Date"
	ColShipMode    = "Ship Mode"
	ColSegment     = "Segment"
	ColRegion      = "Region"
	ColCategory    = "Category"
	ColSubCategory = "Sub-Category"
	ColSales       = "Sales"
	ColProfit      = "Profit"
	ColQuantity    = "Quantity"
	ColDiscount    = "Discount"

	ColDaysToShip = "Days_to_Ship"
	ColOrderYear  = "Order_Year"
	ColOrderMonth = "Order_Month"
	ColProfitable = "Profitable"
)

// Order 订单行。缺失值用 Valid=false 表示
type Order struct {
	OrderID     string
	Region      string
	Segment     string
	Category    string
	SubCategory string
	ShipMode    string

	OrderDate sql.Null[time.Time]
	ShipDate  sql.Null[time.Time]

	Sales    sql.Null[float64]
	Profit   sql.Null[float64]
	Discount sql.Null[float64]
	Quantity sql.Null[int64]

	DaysToShip sql.Null[int64]
	OrderYear  sql.Null[int64]
	OrderMonth string
	Profitable sql.Null[int64]

	// Extra 其他未建模的列，原样保留
	Extra map[string]string
}

// Table 订单表
type Table struct {
	Columns []string
	Rows    []Order
	Issues  ParseIssues
}

// ParseIssues 每列解析失败（置为缺失）的单元格数
type ParseIssues map[string]int

// Total 失败单元格总数
func (p ParseIssues) Total() int {
	total := 0
	for _, n := range p {
		total += n
	}
	return total
}

// NewTable 创建空表
func NewTable(columns ...string) *Table {
	return &Table{
		Columns: slices.Clone(columns),
		Issues:  make(ParseIssues),
	}
}

// Has 列是否存在
func (t *Table) Has(column string) bool {
	return slices.Contains(t.Columns, column)
}

// HasAll 所有列是否都存在
func (t *Table) HasAll(columns ...string) bool {
	for _, c := range columns {
		if !t.Has(c) {
			return false
		}
	}
	return true
}

// Missing 返回不存在的列，保持参数顺序
func (t *Table) Missing(columns ...string) []string {
	var missing []string
	for _, c := range columns {
		if !t.Has(c) {
			missing = append(missing, c)
		}
	}
	return missing
}

// AddColumn 追加列（已存在则忽略）
func (t *Table) AddColumn(column string) {
	if !t.Has(column) {
		t.Columns = append(t.Columns, column)
	}
}

// Len 行数
func (t *Table) Len() int {
	return len(t.Rows)
}

// Clone 深拷贝
func (t *Table) Clone() *Table {
	out := &Table{
		Columns: slices.Clone(t.Columns),
		Rows:    make([]Order, len(t.Rows)),
		Issues:  maps.Clone(t.Issues),
	}
	if out.Issues == nil {
		out.Issues = make(ParseIssues)
	}
	for i, row := range t.Rows {
		row.Extra = maps.Clone(row.Extra)
		out.Rows[i] = row
	}
	return out
}

// Subset 按条件筛选行，列信息保持不变
func (t *Table) Subset(keep func(o *Order) bool) *Table {
	out := &Table{
		Columns: slices.Clone(t.Columns),
		Issues:  maps.Clone(t.Issues),
	}
	for i := range t.Rows {
		if keep(&t.Rows[i]) {
			row := t.Rows[i]
			row.Extra = maps.Clone(row.Extra)
			out.Rows = append(out.Rows, row)
		}
	}
	return out
}

// Text 读取分类列的值
func (o *Order) Text(column string) (string, bool) {
	switch column {
	case ColOrderID:
		return o.OrderID, true
	case ColRegion:
		return o.Region, true
	case ColSegment:
		return o.Segment, true
	case ColCategory:
		return o.Category, true
	case ColSubCategory:
		return o.SubCategory, true
	case ColShipMode:
		return o.ShipMode, true
	case ColOrderMonth:
		return o.OrderMonth, true
	}
	v, ok := o.Extra[column]
	return v, ok
}

// Number 以 float64 读取数值列，缺失返回 ok=false
func (o *Order) Number(column string) (float64, bool) {
	switch column {
	case ColSales:
		return o.Sales.V, o.Sales.Valid
	case ColProfit:
		return o.Profit.V, o.Profit.Valid
	case ColDiscount:
		return o.Discount.V, o.Discount.Valid
	case ColQuantity:
		return float64(o.Quantity.V), o.Quantity.Valid
	case ColDaysToShip:
		return float64(o.DaysToShip.V), o.DaysToShip.Valid
	case ColOrderYear:
		return float64(o.OrderYear.V), o.OrderYear.Valid
	case ColProfitable:
		return float64(o.Profitable.V), o.Profitable.Valid
	}
	return 0, false
}

func (o *Order) setText(column, value string) {
	switch column {
	case ColOrderID:
		o.OrderID = value
	case ColRegion:
		o.Region = value
	case ColSegment:
		o.Segment = value
	case ColCategory:
		o.Category = value
	case ColSubCategory:
		o.SubCategory = value
	case ColShipMode:
		o.ShipMode = value
	case ColOrderMonth:
		o.OrderMonth = value
	default:
		if o.Extra == nil {
			o.Extra = make(map[string]string)
		}
		o.Extra[column] = value
	}
}
