// Package pricing captures immutable price list snapshots from external
// spreadsheet sources. Capture is deliberately lenient: a bad row never
// fails the whole capture, it is excluded and reported.
package pricing

import (
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/quote-cli/internal/model"
	"github.com/sells-group/quote-cli/internal/normalize"
)

// Expected header labels in the source sheet, matched case-insensitively
// after trimming. A renamed header upstream drops that column's
// extraction; affected rows surface as per-row errors, not a failed
// capture.
const (
	headerItemNo      = "item no."
	headerDescription = "item description"
	headerPriceList   = "base price list"
	headerCurrency    = "primary currency - base price (currency)"
	headerUnitPrice   = "primary currency - base price"
)

// CaptureOptions identifies where the grid came from.
type CaptureOptions struct {
	Source       string // origin identifier: spreadsheet id + tab name
	SheetVersion string // opaque version/etag from the source, if any
}

// columnIndex maps the fixed header labels to column positions.
// A value of -1 means the column is absent from the source.
type columnIndex struct {
	sku       int
	name      int
	priceList int
	currency  int
	unitPrice int
}

func resolveColumns(header []string) columnIndex {
	idx := columnIndex{sku: -1, name: -1, priceList: -1, currency: -1, unitPrice: -1}
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case headerItemNo:
			idx.sku = i
		case headerDescription:
			idx.name = i
		case headerPriceList:
			idx.priceList = i
		case headerCurrency:
			idx.currency = i
		case headerUnitPrice:
			idx.unitPrice = i
		}
	}
	return idx
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// Capture maps a 2-D string grid (header row first) into a pricing
// snapshot with Current=false. Rows missing an item number or description
// are excluded from Items and recorded in Errors with their zero-based
// data-row index. Unparseable or negative prices degrade to zero-priced
// items rather than excluding the row.
func Capture(rows [][]string, opts CaptureOptions) (*model.PricingSnapshot, error) {
	if len(rows) == 0 {
		return nil, eris.New("pricing: capture: source grid has no header row")
	}

	idx := resolveColumns(rows[0])

	snap := &model.PricingSnapshot{
		FetchedAt:    time.Now().UTC(),
		Source:       opts.Source,
		SheetVersion: opts.SheetVersion,
		Current:      false,
	}

	for i, row := range rows[1:] {
		sku := cell(row, idx.sku)
		name := cell(row, idx.name)

		switch {
		case sku == "" && name == "":
			snap.Errors = append(snap.Errors, model.CaptureError{Row: i, Reason: "missing item number and item description"})
			continue
		case sku == "":
			snap.Errors = append(snap.Errors, model.CaptureError{Row: i, Reason: "missing item number"})
			continue
		case name == "":
			snap.Errors = append(snap.Errors, model.CaptureError{Row: i, Reason: "missing item description"})
			continue
		}

		snap.Items = append(snap.Items, model.PriceItem{
			SKU:            sku,
			Name:           name,
			NormalizedName: normalize.Name(name),
			PriceList:      cell(row, idx.priceList),
			Unit:           normalize.InferUnit(name),
			Currency:       strings.ToUpper(cell(row, idx.currency)),
			UnitPrice:      parsePrice(cell(row, idx.unitPrice)),
		})
	}

	snap.ItemCount = len(snap.Items)
	return snap, nil
}

// parsePrice coerces a source price cell to a non-negative number.
// Empty, unparseable, or negative values become 0; pricing gaps degrade
// to zero-priced lines downstream instead of blocking capture.
func parsePrice(s string) float64 {
	if s == "" {
		return 0
	}
	s = strings.ReplaceAll(strings.TrimPrefix(s, "$"), ",", "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}
