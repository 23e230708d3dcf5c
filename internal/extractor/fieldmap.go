package extractor

import (
	"fmt"
	"regexp"

	"github.com/dvloznov/receipt-tracker/internal/domain"
)

// FieldMap describes the single markup shape the extractor understands.
// When the receipt page layout changes, this table is the only thing to update.
type FieldMap struct {
	// Container is the receipt root, searched from the document root.
	Container string
	// Header holds the "Member 12345" text, searched inside Container.
	Header        string
	MemberPattern string
	// ReceiptIDOuter and ReceiptIDInner locate the barcode number: the inner
	// selector is applied to the first match of the outer one.
	ReceiptIDOuter string
	ReceiptIDInner string
	// ItemsTable is searched from the document root, not from Container.
	ItemsTable string
	Date       string
	Time       string
	Row        string
	Cell       string
	Columns    []Column
	// A row whose TerminalColumn cell equals TerminalMarker ends item collection.
	TerminalColumn int
	TerminalMarker string
}

// Column maps one cell position to a ReceiptItem field.
type Column struct {
	Field string
	Index int
}

const (
	FieldPositionLabel = "positionLabel"
	FieldItemID        = "itemId"
	FieldName          = "name"
	FieldPrice         = "price"
)

var itemSetters = map[string]func(*domain.ReceiptItem, *string){
	FieldPositionLabel: func(it *domain.ReceiptItem, v *string) { it.PositionLabel = v },
	FieldItemID:        func(it *domain.ReceiptItem, v *string) { it.ItemID = v },
	FieldName:          func(it *domain.ReceiptItem, v *string) { it.Name = v },
	FieldPrice:         func(it *domain.ReceiptItem, v *string) { it.Price = v },
}

// DefaultFieldMap matches the rendered receipt page of the membership store.
func DefaultFieldMap() FieldMap {
	return FieldMap{
		Container:      "#dataToPrint",
		Header:         ".tableHead th",
		MemberPattern:  `Member (\d+)`,
		ReceiptIDOuter: ".wrapper .MuiBox-root:last-child",
		ReceiptIDInner: ".barcode .MuiBox-root:last-child",
		ItemsTable:     "tbody",
		Date:           "span.date",
		Time:           "span.time",
		Row:            "tr",
		Cell:           "td",
		Columns: []Column{
			{Field: FieldPositionLabel, Index: 0},
			{Field: FieldItemID, Index: 1},
			{Field: FieldName, Index: 2},
			{Field: FieldPrice, Index: 3},
		},
		TerminalColumn: 1,
		TerminalMarker: "SUBTOTAL",
	}
}

// minCells is the number of cells a row needs to fill every column.
func (m FieldMap) minCells() int {
	n := 0
	for _, c := range m.Columns {
		if c.Index+1 > n {
			n = c.Index + 1
		}
	}
	return n
}

func (m FieldMap) validate() (*regexp.Regexp, error) {
	selectors := map[string]string{
		"container":        m.Container,
		"header":           m.Header,
		"receipt_id_outer": m.ReceiptIDOuter,
		"receipt_id_inner": m.ReceiptIDInner,
		"items_table":      m.ItemsTable,
		"date":             m.Date,
		"time":             m.Time,
		"row":              m.Row,
		"cell":             m.Cell,
	}
	for name, sel := range selectors {
		if sel == "" {
			return nil, fmt.Errorf("field map: %s selector is empty", name)
		}
	}
	if len(m.Columns) == 0 {
		return nil, fmt.Errorf("field map: no columns")
	}
	for _, c := range m.Columns {
		if _, ok := itemSetters[c.Field]; !ok || c.Index < 0 {
			return nil, fmt.Errorf("field map: invalid column %q", c.Field)
		}
	}
	if m.TerminalColumn < 0 || m.TerminalMarker == "" {
		return nil, fmt.Errorf("field map: terminal marker is not configured")
	}
	re, err := regexp.Compile(m.MemberPattern)
	if err != nil {
		return nil, fmt.Errorf("field map: member pattern: %w", err)
	}
	if re.NumSubexp() < 1 {
		return nil, fmt.Errorf("field map: member pattern needs a capture group")
	}
	return re, nil
}
