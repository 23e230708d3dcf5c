// Package bigquery streams synced receipts into BigQuery for reporting.
package bigquery

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/receipt-tracker/internal/domain"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// lineItemNamespace seeds the deterministic line item ids.
var lineItemNamespace = uuid.MustParse("6f1c7a52-8a0e-4b8e-9d7c-2b0f3f5b9a11")

// putter is the part of *bigquery.Inserter the exporter uses.
type putter interface {
	Put(ctx context.Context, src interface{}) error
}

// Exporter writes receipts to the receipts and receipt_line_items tables.
type Exporter struct {
	client    *bigquery.Client
	projectID string
	datasetID string
	inserter  func(table string) putter
	now       func() time.Time
}

// NewExporter creates an Exporter with a shared BigQuery client.
func NewExporter(ctx context.Context, projectID, datasetID string, opts ...option.ClientOption) (*Exporter, error) {
	client, err := bigquery.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewExporter: creating client: %w", err)
	}
	e := &Exporter{
		client:    client,
		projectID: projectID,
		datasetID: datasetID,
		now:       time.Now,
	}
	e.inserter = func(table string) putter {
		return client.DatasetInProject(projectID, datasetID).Table(table).Inserter()
	}
	return e, nil
}

// Close closes the BigQuery client connection.
func (e *Exporter) Close() error {
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}

// ExportReceipt streams the receipt and its line items. Insert ids are derived
// from the receipt key, so a retried export is deduplicated by BigQuery on a
// best-effort basis.
func (e *Exporter) ExportReceipt(ctx context.Context, memberID string, receipt domain.Receipt) error {
	receiptID := domain.StringValue(receipt.ReceiptID)
	if memberID == "" || receiptID == "" {
		return fmt.Errorf("ExportReceipt: member and receipt ids are required")
	}

	header, items := BuildRows(memberID, receipt, e.now())

	if err := e.inserter(receiptsTable).Put(ctx, &bigquery.StructSaver{
		Struct:   header,
		InsertID: memberID + "/" + receiptID,
	}); err != nil {
		return fmt.Errorf("ExportReceipt: inserting receipt row: %w", err)
	}

	if len(items) == 0 {
		return nil
	}
	savers := make([]*bigquery.StructSaver, 0, len(items))
	for _, row := range items {
		savers = append(savers, &bigquery.StructSaver{Struct: row, InsertID: row.LineItemID})
	}
	if err := e.inserter(lineItemsTable).Put(ctx, savers); err != nil {
		return fmt.Errorf("ExportReceipt: inserting line items: %w", err)
	}
	return nil
}

// BuildRows maps a receipt to its warehouse rows.
func BuildRows(memberID string, receipt domain.Receipt, exportedAt time.Time) (*ReceiptRow, []*ReceiptLineItemRow) {
	receiptID := domain.StringValue(receipt.ReceiptID)

	header := &ReceiptRow{
		ReceiptID:  receiptID,
		MemberID:   memberID,
		ItemCount:  int64(len(receipt.Items)),
		ExportedTS: exportedAt,
	}
	if receipt.TradeDatetime != nil {
		header.RawTradeDatetime = bigquery.NullString{StringVal: *receipt.TradeDatetime, Valid: true}
		if dt, ok := ParseTradeDatetime(*receipt.TradeDatetime); ok {
			header.PurchaseDateTime = bigquery.NullDateTime{DateTime: dt, Valid: true}
		}
	}

	items := make([]*ReceiptLineItemRow, 0, len(receipt.Items))
	var total float64
	var priced bool
	for i, it := range receipt.Items {
		row := &ReceiptLineItemRow{
			LineItemID:    LineItemID(memberID, receiptID, i),
			ReceiptID:     receiptID,
			MemberID:      memberID,
			LineIndex:     int64(i),
			PositionLabel: strings.TrimSpace(domain.StringValue(it.PositionLabel)),
			SKU:           strings.TrimSpace(domain.StringValue(it.ItemID)),
			Description:   strings.TrimSpace(domain.StringValue(it.Name)),
			RawPrice:      domain.StringValue(it.Price),
		}
		if p, ok := ParsePrice(row.RawPrice); ok {
			row.TotalPrice = bigquery.NullFloat64{Float64: p, Valid: true}
			total += p
			priced = true
		}
		items = append(items, row)
	}
	if priced {
		header.TotalAmount = bigquery.NullFloat64{Float64: total, Valid: true}
	}

	return header, items
}

// LineItemID is a name-based UUID for one line of one receipt.
func LineItemID(memberID, receiptID string, index int) string {
	return uuid.NewSHA1(lineItemNamespace, []byte(fmt.Sprintf("%s/%s/%d", memberID, receiptID, index))).String()
}

// ParsePrice reads a printed price such as "4.99", "$4.99", "1,299.00" or
// "2.50-" (trailing minus for refunds).
func ParsePrice(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	neg := false
	if strings.HasSuffix(s, "-") {
		neg = true
		s = strings.TrimSuffix(s, "-")
	}
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	if neg {
		v = -v
	}
	return v, true
}

// ParseTradeDatetime reads the "YYYY/MM/DD HH:MM" form printed on receipts.
func ParseTradeDatetime(s string) (civil.DateTime, bool) {
	t, err := time.Parse(tradeDatetimeLayout, strings.TrimSpace(s))
	if err != nil {
		return civil.DateTime{}, false
	}
	return civil.DateTimeOf(t), true
}

// ListExportedReceipts returns the most recent exported receipts of a member.
func (e *Exporter) ListExportedReceipts(ctx context.Context, memberID string, limit int) ([]*ReceiptRow, error) {
	if limit <= 0 {
		limit = 20
	}
	q := e.client.Query(fmt.Sprintf(`
		SELECT
			receipt_id,
			member_id,
			trade_datetime_raw,
			purchase_datetime,
			item_count,
			total_amount,
			exported_ts
		FROM `+"`%s.%s.%s`"+`
		WHERE member_id = @member_id
		ORDER BY exported_ts DESC
		LIMIT @limit
	`, e.projectID, e.datasetID, receiptsTable))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "member_id", Value: memberID},
		{Name: "limit", Value: limit},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListExportedReceipts: reading query: %w", err)
	}

	rows := []*ReceiptRow{}
	for {
		var row ReceiptRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListExportedReceipts: iterating rows: %w", err)
		}
		rows = append(rows, &row)
	}
	return rows, nil
}
