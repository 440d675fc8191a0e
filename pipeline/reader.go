package pipeline

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ErrUnreadable 文件结构无法解析（整文件失败）
var ErrUnreadable = errors.New("unreadable csv")

// ReadOptions 读取格式
type ReadOptions struct {
	Comma    rune
	Decimal  rune
	Encoding encoding.Encoding
}

// SuperstoreFormat 原始数据格式：分号分隔、逗号小数、latin-1
func SuperstoreFormat() ReadOptions {
	return ReadOptions{Comma: ';', Decimal: ',', Encoding: charmap.ISO8859_1}
}

// ExportFormat 导出文件格式：逗号分隔、点小数、UTF-8
func ExportFormat() ReadOptions {
	return ReadOptions{Comma: ',', Decimal: '.', Encoding: unicode.UTF8BOM}
}

// BatchFormat 批量预测上传格式：分号分隔、逗号小数、UTF-8
func BatchFormat() ReadOptions {
	return ReadOptions{Comma: ';', Decimal: ',', Encoding: unicode.UTF8BOM}
}

func (o ReadOptions) withDefaults() ReadOptions {
	def := SuperstoreFormat()
	if o.Comma == 0 {
		o.Comma = def.Comma
	}
	if o.Decimal == 0 {
		o.Decimal = def.Decimal
	}
	if o.Encoding == nil {
		o.Encoding = def.Encoding
	}
	return o
}

type columnKind int

const (
	kindText columnKind = iota
	kindFloat
	kindInt
	kindDate
)

var columnKinds = map[string]columnKind{
	ColSales:      kindFloat,
	ColProfit:     kindFloat,
	ColDiscount:   kindFloat,
	ColQuantity:   kindInt,
	ColDaysToShip: kindInt,
	ColOrderYear:  kindInt,
	ColProfitable: kindInt,
	ColOrderDate:  kindDate,
	ColShipDate:   kindDate,
}

// ISO first, then day-first variants. Month-first only when day-first is impossible (12/31/2023)
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2/1/2006",
	"2-1-2006",
	"2.1.2006",
	"2/1/2006 15:04",
	"2/1/2006 15:04:05",
	"2/1/06",
	"2-1-06",
	"2.1.06",
	"1/2/2006",
	"1-2-2006",
	"1.2.2006",
	"1/2/2006 15:04",
	"1/2/2006 15:04:05",
	"1/2/06",
	"1-2-06",
	"1.2.06",
}

// ReadFile 从路径读取
func ReadFile(path string, opts ReadOptions) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return ReadCSV(f, opts)
}

// ReadCSV 读取并规范化 CSV。单元格解析失败只记为缺失，结构错误返回 ErrUnreadable
func ReadCSV(r io.Reader, opts ReadOptions) (*Table, error) {
	opts = opts.withDefaults()

	cr := csv.NewReader(transform.NewReader(r, opts.Encoding.NewDecoder()))
	cr.Comma = opts.Comma
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: empty file", ErrUnreadable)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrUnreadable, err)
	}

	names := canonicalHeader(header)
	table := NewTable()
	for _, name := range names {
		if name != "" {
			table.Columns = append(table.Columns, name)
		}
	}
	if len(header) == 1 && !recognized(table.Columns) {
		return nil, fmt.Errorf("%w: header %q has a single column, expected %q separated fields",
			ErrUnreadable, header[0], string(opts.Comma))
	}

	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
		}
		if len(record) > len(names) {
			line, _ := cr.FieldPos(0)
			return nil, fmt.Errorf("%w: line %d has %d fields, header has %d",
				ErrUnreadable, line, len(record), len(names))
		}

		var row Order
		for i, raw := range record {
			name := names[i]
			if name == "" {
				continue
			}
			if !assignCell(&row, name, raw, opts.Decimal) {
				table.Issues[name]++
			}
		}
		table.Rows = append(table.Rows, row)
	}

	return table, nil
}

// canonicalHeader 去除表头空白和 BOM；重名列只保留第一次出现
func canonicalHeader(header []string) []string {
	names := make([]string, len(header))
	seen := make(map[string]bool, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
			h = strings.TrimPrefix(h, "ï»¿")
		}
		name := strings.TrimSpace(h)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names[i] = name
	}
	return names
}

func recognized(columns []string) bool {
	for _, c := range columns {
		if _, ok := columnKinds[c]; ok {
			return true
		}
		switch c {
		case ColOrderID, ColRegion, ColSegment, ColCategory, ColSubCategory, ColShipMode:
			return true
		}
	}
	return false
}

// assignCell 写入单元格，返回 false 表示非空但解析失败
func assignCell(row *Order, column, raw string, decimalSep rune) bool {
	value := strings.TrimSpace(raw)
	switch columnKinds[column] {
	case kindFloat:
		if value == "" {
			return true
		}
		d, ok := ParseNumber(value, decimalSep)
		if !ok {
			return false
		}
		f, _ := d.Float64()
		switch column {
		case ColSales:
			row.Sales.V, row.Sales.Valid = f, true
		case ColProfit:
			row.Profit.V, row.Profit.Valid = f, true
		case ColDiscount:
			row.Discount.V, row.Discount.Valid = f, true
		}
	case kindInt:
		if value == "" {
			return true
		}
		d, ok := ParseNumber(value, decimalSep)
		if !ok || !d.IsInteger() {
			return false
		}
		n := d.IntPart()
		switch column {
		case ColQuantity:
			row.Quantity.V, row.Quantity.Valid = n, true
		case ColDaysToShip:
			row.DaysToShip.V, row.DaysToShip.Valid = n, true
		case ColOrderYear:
			row.OrderYear.V, row.OrderYear.Valid = n, true
		case ColProfitable:
			row.Profitable.V, row.Profitable.Valid = n, true
		}
	case kindDate:
		if value == "" {
			return true
		}
		t, ok := ParseDate(value)
		if !ok {
			return false
		}
		if column == ColOrderDate {
			row.OrderDate.V, row.OrderDate.Valid = t, true
		} else {
			row.ShipDate.V, row.ShipDate.Valid = t, true
		}
	default:
		row.setText(column, value)
	}
	return true
}

// ParseNumber 解析本地化数字：去掉千位分隔符，小数分隔符换成点
func ParseNumber(raw string, decimalSep rune) (decimal.Decimal, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Decimal{}, false
	}
	group := "."
	if decimalSep == '.' {
		group = ","
	}
	s = strings.ReplaceAll(s, group, "")
	if decimalSep != '.' {
		s = strings.ReplaceAll(s, string(decimalSep), ".")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

// ParseDate 有歧义时按日在前解析
func ParseDate(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
