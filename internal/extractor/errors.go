package extractor

import "fmt"

// Kind classifies why a page could not be turned into a receipt.
type Kind string

const (
	KindContainerMissing Kind = "container_missing"
	KindHeaderMissing    Kind = "header_missing"
	KindReceiptIDMissing Kind = "receipt_id_missing"
	KindNoItemsTable     Kind = "no_items_table"
	KindMalformedRow     Kind = "malformed_row"
)

// ExtractionError is returned for every extraction failure. All kinds are
// recoverable and surface to the user as "no receipt found".
type ExtractionError struct {
	Kind     Kind
	Selector string
	// Row is the zero-based row index for KindMalformedRow, -1 otherwise.
	Row   int
	Cells int
}

func (e *ExtractionError) Error() string {
	switch e.Kind {
	case KindMalformedRow:
		return fmt.Sprintf("extract receipt: %s: row %d has %d cells", e.Kind, e.Row, e.Cells)
	default:
		return fmt.Sprintf("extract receipt: %s: no match for %q", e.Kind, e.Selector)
	}
}

// Is matches any ExtractionError of the same kind, so callers can use
// errors.Is(err, ErrMalformedRow).
func (e *ExtractionError) Is(target error) bool {
	t, ok := target.(*ExtractionError)
	return ok && t.Kind == e.Kind
}

var (
	ErrContainerMissing = &ExtractionError{Kind: KindContainerMissing, Row: -1}
	ErrHeaderMissing    = &ExtractionError{Kind: KindHeaderMissing, Row: -1}
	ErrReceiptIDMissing = &ExtractionError{Kind: KindReceiptIDMissing, Row: -1}
	ErrNoItemsTable     = &ExtractionError{Kind: KindNoItemsTable, Row: -1}
	ErrMalformedRow     = &ExtractionError{Kind: KindMalformedRow, Row: -1}
)

func missing(kind Kind, selector string) error {
	return &ExtractionError{Kind: kind, Selector: selector, Row: -1}
}
