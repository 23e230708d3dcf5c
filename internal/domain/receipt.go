package domain

// ReceiptItem is one line of a purchase receipt as rendered in the page.
// Fields are raw cell text; price is not parsed into a number.
type ReceiptItem struct {
	PositionLabel *string `json:"positionLabel" firestore:"xLabel"`
	ItemID        *string `json:"itemId" firestore:"itemId"`
	Name          *string `json:"name" firestore:"name"`
	Price         *string `json:"price" firestore:"price"`
}

// Receipt represents one purchase transaction with its line items in document order.
// It is created per extraction and not mutated once handed to the reconciler.
type Receipt struct {
	ReceiptID     *string       `json:"receiptId"`
	TradeDatetime *string       `json:"tradeDatetime"`
	Items         []ReceiptItem `json:"items"`
}

// Extraction is the result of parsing a rendered receipt page.
// MemberID is nil when the header did not carry a resolvable membership number.
type Extraction struct {
	MemberID *string `json:"memberId"`
	Receipt  Receipt `json:"receipt"`
}

// StoredReceipt is the document persisted under Members/{memberId}/receipts/{receiptId}.
// The receipt id is the document key and is not duplicated into the body.
type StoredReceipt struct {
	TradeDatetime *string       `json:"tradeDatetime" firestore:"tradeDatetime"`
	Items         []ReceiptItem `json:"items" firestore:"items"`
}

// ToStored converts the receipt into its persisted document form.
func (r *Receipt) ToStored() StoredReceipt {
	items := make([]ReceiptItem, len(r.Items))
	copy(items, r.Items)
	return StoredReceipt{
		TradeDatetime: r.TradeDatetime,
		Items:         items,
	}
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}

// StringValue dereferences p, returning "" for nil.
func StringValue(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
