package pipeline

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
)

const sampleCSV = "Row ID;Order ID;Order Date ;Ship Date;Ship Mode;Segment;Region;Category;Sub-Category;Sales;Quantity;Discount;Profit\n" +
	"1; CA-2016-152156 ;08/11/2016;11/11/2016;Second Class;Consumer;South;Furniture;Bookcases;261,96;2;0;41,9136\n" +
	"2;CA-2016-152156;08/11/2016;11/11/2016;Second Class;Consumer;South;Furniture;Chairs;1.500,00;2;0,95;-50,00\n" +
	"3;US-2015-108966;10/01/2023;08/01/2023;Standard Class;Consumer;South;Office Supplies;Tables;abc;x;;0\n"

func TestParseNumber(t *testing.T) {
	tests := []struct {
		raw     string
		decimal rune
		want    float64
		ok      bool
	}{
		{"1.234,56", ',', 1234.56, true},
		{"1.500,00", ',', 1500, true},
		{"-50,00", ',', -50, true},
		{"0,95", ',', 0.95, true},
		{"12.345.678,9", ',', 12345678.9, true},
		{"1,234.56", '.', 1234.56, true},
		{"", ',', 0, false},
		{"n/a", ',', 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			d, ok := ParseNumber(tt.raw, tt.decimal)
			require.Equal(t, tt.ok, ok)
			if ok {
				f, _ := d.Float64()
				assert.InDelta(t, tt.want, f, 1e-9)
			}
		})
	}
}

func TestParseDateDayFirst(t *testing.T) {
	tests := []struct {
		raw  string
		want time.Time
	}{
		{"08/11/2016", time.Date(2016, 11, 8, 0, 0, 0, 0, time.UTC)},
		{"8/1/2016", time.Date(2016, 1, 8, 0, 0, 0, 0, time.UTC)},
		{"10-01-2023", time.Date(2023, 1, 10, 0, 0, 0, 0, time.UTC)},
		{"2023-01-10", time.Date(2023, 1, 10, 0, 0, 0, 0, time.UTC)},
		{"31.12.22", time.Date(2022, 12, 31, 0, 0, 0, 0, time.UTC)},
		// 日在前不成立时按月在前
		{"12/31/2023", time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)},
		{"1/13/2023", time.Date(2023, 1, 13, 0, 0, 0, 0, time.UTC)},
		{"02-28-23", time.Date(2023, 2, 28, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, ok := ParseDate(tt.raw)
		require.True(t, ok, tt.raw)
		assert.True(t, tt.want.Equal(got), "%s: got %v", tt.raw, got)
	}

	for _, raw := range []string{"13/13/2020", "32/12/2020", "12/32/2020"} {
		_, ok := ParseDate(raw)
		assert.False(t, ok, raw)
	}
}

func TestReadCSVMonthFirstDate(t *testing.T) {
	input := "Order Date;Ship Date;Sales\n12/31/2023;1/13/2024;10,00\n"
	table, err := ReadCSV(strings.NewReader(input), SuperstoreFormat())
	require.NoError(t, err)
	require.Equal(t, 1, table.Len())
	assert.Zero(t, table.Issues.Total())

	derived := DeriveFeatures(table)
	row := derived.Rows[0]
	require.True(t, row.OrderDate.Valid)
	require.True(t, row.DaysToShip.Valid)
	assert.Equal(t, int64(13), row.DaysToShip.V)
	assert.Equal(t, int64(2023), row.OrderYear.V)
}

func TestReadCSV(t *testing.T) {
	table, err := ReadCSV(strings.NewReader(sampleCSV), SuperstoreFormat())
	require.NoError(t, err)
	require.Equal(t, 3, table.Len())

	assert.True(t, table.HasAll(ColOrderDate, ColShipDate, ColSales, ColProfit))
	assert.False(t, table.Has("Order Date "))

	first := table.Rows[0]
	assert.Equal(t, "CA-2016-152156", first.OrderID)
	assert.InDelta(t, 261.96, first.Sales.V, 1e-9)
	assert.Equal(t, "1", first.Extra["Row ID"])

	second := table.Rows[1]
	assert.InDelta(t, 1500.0, second.Sales.V, 1e-9)
	assert.InDelta(t, -50.0, second.Profit.V, 1e-9)
	assert.Equal(t, int64(2), second.Quantity.V)
	assert.InDelta(t, 0.95, second.Discount.V, 1e-9)

	third := table.Rows[2]
	assert.False(t, third.Sales.Valid)
	assert.False(t, third.Quantity.Valid)
	assert.False(t, third.Discount.Valid)
	assert.Equal(t, 1, table.Issues[ColSales])
	assert.Equal(t, 1, table.Issues[ColQuantity])
	assert.Zero(t, table.Issues[ColDiscount])
}

func TestReadCSVLatin1(t *testing.T) {
	raw := "Order ID;Region;Sales\nX-1;Qu\xe9bec;10,5\n"
	table, err := ReadCSV(strings.NewReader(raw), SuperstoreFormat())
	require.NoError(t, err)
	assert.Equal(t, "Québec", table.Rows[0].Region)

	encoded, err := charmap.ISO8859_1.NewEncoder().String("Order ID;Customer Name\nX-1;Zoë\n")
	require.NoError(t, err)
	table, err = ReadCSV(strings.NewReader(encoded), SuperstoreFormat())
	require.NoError(t, err)
	assert.Equal(t, "Zoë", table.Rows[0].Extra["Customer Name"])
}

func TestReadCSVFatalErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty file", ""},
		{"wrong delimiter", "Row ID,Order ID,Sales\n1,A,10\n"},
		{"too many fields", "Order ID;Sales\nA;1;2;3\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(tt.raw), SuperstoreFormat())
			require.ErrorIs(t, err, ErrUnreadable)
		})
	}
}

func TestReadCSVShortRowIsMissing(t *testing.T) {
	table, err := ReadCSV(strings.NewReader("Order ID;Sales;Profit\nA;10\n"), SuperstoreFormat())
	require.NoError(t, err)
	require.Equal(t, 1, table.Len())
	assert.True(t, table.Rows[0].Sales.Valid)
	assert.False(t, table.Rows[0].Profit.Valid)
}

func TestExportRoundTrip(t *testing.T) {
	table, err := ReadCSV(strings.NewReader(sampleCSV), SuperstoreFormat())
	require.NoError(t, err)
	derived := DeriveFeatures(table)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, derived))

	again, err := ReadCSV(&buf, ExportFormat())
	require.NoError(t, err)
	require.Equal(t, derived.Columns, again.Columns)
	require.Equal(t, derived.Len(), again.Len())

	for i := range derived.Rows {
		for _, col := range []string{ColSales, ColProfit, ColDiscount, ColQuantity, ColDaysToShip, ColProfitable} {
			want, wok := derived.Rows[i].Number(col)
			got, gok := again.Rows[i].Number(col)
			require.Equal(t, wok, gok, "row %d column %s", i, col)
			assert.InDelta(t, want, got, 1e-9, "row %d column %s", i, col)
		}
		assert.Equal(t, derived.Rows[i].OrderMonth, again.Rows[i].OrderMonth)
		assert.True(t, derived.Rows[i].OrderDate.V.Equal(again.Rows[i].OrderDate.V))
	}
}

func TestWriteCSVExtraColumns(t *testing.T) {
	table := NewTable(ColOrderID, ColSales)
	table.Rows = []Order{{OrderID: "A"}, {OrderID: "B"}}
	table.Rows[0].Sales.V, table.Rows[0].Sales.Valid = 12.5, true

	var buf bytes.Buffer
	err := WriteCSV(&buf, table, ExtraColumn{Name: "Pred_Profitable", Value: func(i int) any { return int64(i) }})
	require.NoError(t, err)
	assert.Equal(t, "Order ID,Sales,Pred_Profitable\nA,12.5,0\nB,,1\n", buf.String())
}

func TestWriteXLSX(t *testing.T) {
	table, err := ReadCSV(strings.NewReader(sampleCSV), SuperstoreFormat())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, table))
	// xlsx is a zip archive
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("PK")))
}
