package extractor

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/dvloznov/receipt-tracker/internal/domain"
	"golang.org/x/net/html"
)

// Extractor turns a rendered receipt page into a domain.Extraction.
// It holds no mutable state and is safe for concurrent use.
type Extractor struct {
	fields   FieldMap
	memberRe *regexp.Regexp
	minCells int
}

// New creates an Extractor for the given markup shape.
func New(fields FieldMap) (*Extractor, error) {
	re, err := fields.validate()
	if err != nil {
		return nil, err
	}
	return &Extractor{
		fields:   fields,
		memberRe: re,
		minCells: fields.minCells(),
	}, nil
}

// Default returns an Extractor for DefaultFieldMap.
func Default() *Extractor {
	e, err := New(DefaultFieldMap())
	if err != nil {
		panic(err)
	}
	return e
}

// ExtractHTML parses r as HTML and extracts the receipt from it.
func (e *Extractor) ExtractHTML(r io.Reader) (*domain.Extraction, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("ExtractHTML: parsing markup: %w", err)
	}
	return e.Extract(goquery.NewDocumentFromNode(root).Selection)
}

// ExtractString is ExtractHTML for an in-memory document.
func (e *Extractor) ExtractString(markup string) (*domain.Extraction, error) {
	return e.ExtractHTML(strings.NewReader(markup))
}

// Extract reads the receipt out of root, which should be the document root.
// It fails fast: either every row is well formed or no receipt is returned.
func (e *Extractor) Extract(root *goquery.Selection) (*domain.Extraction, error) {
	f := e.fields

	container := root.Find(f.Container).First()
	if container.Length() == 0 {
		return nil, missing(KindContainerMissing, f.Container)
	}

	header := container.Find(f.Header).First()
	if header.Length() == 0 || header.Text() == "" {
		return nil, missing(KindHeaderMissing, f.Header)
	}

	out := &domain.Extraction{}
	if m := e.memberRe.FindStringSubmatch(strings.TrimSpace(header.Text())); m != nil {
		out.MemberID = domain.StringPtr(m[1])
	}

	barcode := container.Find(f.ReceiptIDOuter).First()
	if barcode.Length() == 0 {
		return nil, missing(KindReceiptIDMissing, f.ReceiptIDOuter)
	}
	number := barcode.Find(f.ReceiptIDInner).First()
	if number.Length() == 0 {
		return nil, missing(KindReceiptIDMissing, f.ReceiptIDInner)
	}
	out.Receipt.ReceiptID = domain.StringPtr(number.Text())

	table := root.Find(f.ItemsTable).First()
	if table.Length() == 0 {
		return nil, missing(KindNoItemsTable, f.ItemsTable)
	}

	date := table.Find(f.Date).First()
	clock := table.Find(f.Time).First()
	if date.Length() > 0 && clock.Length() > 0 {
		out.Receipt.TradeDatetime = domain.StringPtr(date.Text() + " " + clock.Text())
	}

	items, err := e.items(table)
	if err != nil {
		return nil, err
	}
	out.Receipt.Items = items

	return out, nil
}

func (e *Extractor) items(table *goquery.Selection) ([]domain.ReceiptItem, error) {
	f := e.fields
	items := []domain.ReceiptItem{}

	var rowErr error
	table.Find(f.Row).EachWithBreak(func(i int, row *goquery.Selection) bool {
		cells := row.Find(f.Cell)
		n := cells.Length()

		if n > f.TerminalColumn && cells.Eq(f.TerminalColumn).Text() == f.TerminalMarker {
			return false
		}
		if n < e.minCells {
			rowErr = &ExtractionError{Kind: KindMalformedRow, Row: i, Cells: n}
			return false
		}

		var item domain.ReceiptItem
		for _, c := range f.Columns {
			itemSetters[c.Field](&item, domain.StringPtr(cells.Eq(c.Index).Text()))
		}
		items = append(items, item)
		return true
	})
	if rowErr != nil {
		return nil, rowErr
	}

	return items, nil
}
