package bigquery

import (
	"context"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/receipt-tracker/internal/domain"
	"github.com/stretchr/testify/require"
)

type fakePutter struct {
	table string
	puts  *[]put
	err   error
}

type put struct {
	table string
	src   interface{}
}

func (f *fakePutter) Put(ctx context.Context, src interface{}) error {
	*f.puts = append(*f.puts, put{table: f.table, src: src})
	return f.err
}

func newTestExporter(failTable string) (*Exporter, *[]put) {
	puts := &[]put{}
	e := &Exporter{
		now: func() time.Time { return time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC) },
	}
	e.inserter = func(table string) putter {
		p := &fakePutter{table: table, puts: puts}
		if table == failTable {
			p.err = errors.New("quota exceeded")
		}
		return p
	}
	return e, puts
}

func sampleReceipt() domain.Receipt {
	return domain.Receipt{
		ReceiptID:     domain.StringPtr("21134300501412403091432"),
		TradeDatetime: domain.StringPtr("2024/03/09 14:32"),
		Items: []domain.ReceiptItem{
			{PositionLabel: domain.StringPtr("1"), ItemID: domain.StringPtr("1001"), Name: domain.StringPtr(" Rotisserie Chicken "), Price: domain.StringPtr("4.99")},
			{PositionLabel: domain.StringPtr("2"), ItemID: domain.StringPtr("2002"), Name: domain.StringPtr("Coupon"), Price: domain.StringPtr("1.50-")},
			{PositionLabel: domain.StringPtr("3"), ItemID: domain.StringPtr("3003"), Name: domain.StringPtr("Mystery"), Price: domain.StringPtr("n/a")},
		},
	}
}

func TestBuildRows(t *testing.T) {
	at := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	header, items := BuildRows("12345", sampleReceipt(), at)

	require.Equal(t, "21134300501412403091432", header.ReceiptID)
	require.EqualValues(t, 3, header.ItemCount)
	require.True(t, header.PurchaseDateTime.Valid)
	require.Equal(t, 2024, header.PurchaseDateTime.DateTime.Date.Year)
	require.Equal(t, 14, header.PurchaseDateTime.DateTime.Time.Hour)
	require.InDelta(t, 3.49, header.TotalAmount.Float64, 1e-9)

	require.Len(t, items, 3)
	require.Equal(t, "Rotisserie Chicken", items[0].Description)
	require.Equal(t, "1001", items[0].SKU)
	require.InDelta(t, -1.50, items[1].TotalPrice.Float64, 1e-9)
	require.False(t, items[2].TotalPrice.Valid)
	require.Equal(t, "n/a", items[2].RawPrice)
}

func TestBuildRows_UnparsableDatetime(t *testing.T) {
	r := sampleReceipt()
	r.TradeDatetime = domain.StringPtr("09.03.2024 14:32")
	header, _ := BuildRows("1", r, time.Now())
	require.True(t, header.RawTradeDatetime.Valid)
	require.False(t, header.PurchaseDateTime.Valid)

	r.TradeDatetime = nil
	header, _ = BuildRows("1", r, time.Now())
	require.False(t, header.RawTradeDatetime.Valid)
}

func TestLineItemID_Stable(t *testing.T) {
	require.Equal(t, LineItemID("m", "r", 0), LineItemID("m", "r", 0))
	require.NotEqual(t, LineItemID("m", "r", 0), LineItemID("m", "r", 1))
	require.NotEqual(t, LineItemID("m", "r", 0), LineItemID("m2", "r", 0))
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"4.99", 4.99, true},
		{" $12.00 ", 12, true},
		{"1,299.00", 1299, true},
		{"2.50-", -2.5, true},
		{"", 0, false},
		{"abc", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParsePrice(tt.in)
			require.Equal(t, tt.ok, ok)
			require.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestExportReceipt(t *testing.T) {
	e, puts := newTestExporter("")
	require.NoError(t, e.ExportReceipt(context.Background(), "12345", sampleReceipt()))

	require.Len(t, *puts, 2)
	require.Equal(t, receiptsTable, (*puts)[0].table)
	saver := (*puts)[0].src.(*bigquery.StructSaver)
	require.Equal(t, "12345/21134300501412403091432", saver.InsertID)

	require.Equal(t, lineItemsTable, (*puts)[1].table)
	savers := (*puts)[1].src.([]*bigquery.StructSaver)
	require.Len(t, savers, 3)
	require.Equal(t, LineItemID("12345", "21134300501412403091432", 2), savers[2].InsertID)
}

func TestExportReceipt_EmptyReceiptWritesHeaderOnly(t *testing.T) {
	e, puts := newTestExporter("")
	r := domain.Receipt{ReceiptID: domain.StringPtr("r-1"), Items: []domain.ReceiptItem{}}
	require.NoError(t, e.ExportReceipt(context.Background(), "1", r))
	require.Len(t, *puts, 1)
}

func TestExportReceipt_Errors(t *testing.T) {
	e, _ := newTestExporter(lineItemsTable)
	require.Error(t, e.ExportReceipt(context.Background(), "12345", sampleReceipt()))

	e, _ = newTestExporter("")
	require.Error(t, e.ExportReceipt(context.Background(), "", sampleReceipt()))
}
