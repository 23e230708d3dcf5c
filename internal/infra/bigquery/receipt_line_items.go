package bigquery

import "cloud.google.com/go/bigquery"

// ReceiptLineItemRow is one item line of a synced receipt.
type ReceiptLineItemRow struct {
	LineItemID string `bigquery:"line_item_id"` // REQUIRED, stable across re-exports
	ReceiptID  string `bigquery:"receipt_id"`   // REQUIRED
	MemberID   string `bigquery:"member_id"`    // REQUIRED

	LineIndex     int64  `bigquery:"line_index"`
	PositionLabel string `bigquery:"position_label"` // NULLABLE

	SKU         string `bigquery:"sku"`         // NULLABLE, the store item number
	Description string `bigquery:"description"` // NULLABLE

	RawPrice   string               `bigquery:"raw_price"`   // NULLABLE
	TotalPrice bigquery.NullFloat64 `bigquery:"total_price"` // NULLABLE (NUMERIC)
}
