package bigquery

import (
	"time"

	"cloud.google.com/go/bigquery"
)

const (
	receiptsTable  = "receipts"
	lineItemsTable = "receipt_line_items"

	tradeDatetimeLayout = "2006/01/02 15:04"
)

// ReceiptRow is one synced receipt in the analytics dataset.
type ReceiptRow struct {
	ReceiptID string `bigquery:"receipt_id"` // REQUIRED
	MemberID  string `bigquery:"member_id"`  // REQUIRED

	// RawTradeDatetime is the text as printed; PurchaseDateTime is set only when it parses.
	RawTradeDatetime bigquery.NullString   `bigquery:"trade_datetime_raw"`
	PurchaseDateTime bigquery.NullDateTime `bigquery:"purchase_datetime"`

	ItemCount   int64                `bigquery:"item_count"`
	TotalAmount bigquery.NullFloat64 `bigquery:"total_amount"` // sum of parsable item prices

	ExportedTS time.Time `bigquery:"exported_ts"`
}
