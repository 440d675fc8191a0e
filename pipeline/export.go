package pipeline

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"
)

// ExtraColumn 导出时附加的计算列
type ExtraColumn struct {
	Name  string
	Value func(row int) any
}

// ExportSheet xlsx 工作表名
const ExportSheet = "Orders"

// WriteCSV 以逗号分隔、点小数、UTF-8 导出表
func WriteCSV(w io.Writer, t *Table, extra ...ExtraColumn) error {
	cw := csv.NewWriter(w)

	header := append(append([]string(nil), t.Columns...), extraNames(extra)...)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	record := make([]string, len(header))
	for i := range t.Rows {
		row := &t.Rows[i]
		for j, col := range t.Columns {
			record[j] = formatCell(row.value(col))
		}
		for j, e := range extra {
			record[len(t.Columns)+j] = formatCell(e.Value(i))
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteXLSX 导出为 Excel 工作簿，数值保持数值类型
func WriteXLSX(w io.Writer, t *Table, extra ...ExtraColumn) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", ExportSheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	header := append(append([]string(nil), t.Columns...), extraNames(extra)...)
	if err := f.SetSheetRow(ExportSheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i := range t.Rows {
		row := &t.Rows[i]
		values := make([]any, 0, len(header))
		for _, col := range t.Columns {
			values = append(values, xlsxCell(row.value(col)))
		}
		for _, e := range extra {
			values = append(values, xlsxCell(e.Value(i)))
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(ExportSheet, cell, &values); err != nil {
			return fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}

	return f.Write(w)
}

func extraNames(extra []ExtraColumn) []string {
	names := make([]string, len(extra))
	for i, e := range extra {
		names[i] = e.Name
	}
	return names
}

// value 取列值；缺失返回 nil
func (o *Order) value(column string) any {
	switch columnKinds[column] {
	case kindFloat, kindInt:
		v, ok := o.Number(column)
		if !ok {
			return nil
		}
		if columnKinds[column] == kindInt {
			return int64(v)
		}
		return v
	case kindDate:
		d := o.OrderDate
		if column == ColShipDate {
			d = o.ShipDate
		}
		if !d.Valid {
			return nil
		}
		return d.V.Format("2006-01-02")
	}
	s, _ := o.Text(column)
	return s
}

func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	default:
		return fmt.Sprint(x)
	}
}

func xlsxCell(v any) any {
	if s, ok := v.(string); ok && s == "" {
		return nil
	}
	return v
}
