package model

// QuoteInputItem is a caller-supplied request line. At least one of SKU or
// Name must be present for resolution to be attempted.
type QuoteInputItem struct {
	SKU      string  `json:"sku,omitempty"`
	Name     string  `json:"name,omitempty"`
	Quantity float64 `json:"quantity"`
}

// QuoteLineItem is one successfully priced request line.
type QuoteLineItem struct {
	SKU        string  `json:"sku"`
	Name       string  `json:"name"`
	Unit       string  `json:"unit"`
	UnitPrice  float64 `json:"unit_price"`
	Quantity   float64 `json:"quantity"`
	TotalPrice float64 `json:"total_price"`
	Currency   string  `json:"currency,omitempty"`
}

// UnresolvedItem reports a request line that could not be priced.
type UnresolvedItem struct {
	SKU      string  `json:"sku,omitempty"`
	Name     string  `json:"name,omitempty"`
	Quantity float64 `json:"quantity"`
	Reason   string  `json:"reason"`
}

// QuotePreview is the resolver's sole output. Currency is set only when
// every resolved line shares a single one; empty slices are omitted from
// the serialized form.
type QuotePreview struct {
	LineItems  []QuoteLineItem  `json:"line_items"`
	Subtotal   float64          `json:"subtotal"`
	Currency   string           `json:"currency,omitempty"`
	Warnings   []string         `json:"warnings,omitempty"`
	Unresolved []UnresolvedItem `json:"unresolved,omitempty"`
}
