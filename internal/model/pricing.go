package model

import "time"

// PriceItem is a single catalog entry inside a pricing snapshot.
type PriceItem struct {
	SKU            string  `json:"sku"`
	Name           string  `json:"name"`
	NormalizedName string  `json:"normalized_name"`
	PriceList      string  `json:"price_list,omitempty"`
	Unit           string  `json:"unit"`
	Currency       string  `json:"currency,omitempty"`
	UnitPrice      float64 `json:"unit_price"`
}

// CaptureError records a source row that failed required-field extraction
// during snapshot capture. The row index is zero-based over the data rows
// (the header row is not counted).
type CaptureError struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

// PricingSnapshot is an immutable point-in-time copy of the price list.
// At most one snapshot system-wide has Current set.
type PricingSnapshot struct {
	ID           string         `json:"id"`
	FetchedAt    time.Time      `json:"fetched_at"`
	Source       string         `json:"source"`
	SheetVersion string         `json:"sheet_version,omitempty"`
	ItemCount    int            `json:"item_count"`
	Current      bool           `json:"current"`
	Items        []PriceItem    `json:"items,omitempty"`
	Errors       []CaptureError `json:"errors,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}
