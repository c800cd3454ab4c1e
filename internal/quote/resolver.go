// Package quote turns requested line items into a priced quotation
// preview against the current pricing snapshot. The resolver is stateless
// per call and never mutates the snapshot, so it is safe under arbitrary
// concurrency.
package quote

import (
	"context"
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/quote-cli/internal/model"
	"github.com/sells-group/quote-cli/internal/normalize"
)

// ErrPricingNotConfigured means no snapshot has ever been promoted. It is
// a system-configuration failure, distinct from a per-item miss, and maps
// to a 409 at the HTTP boundary.
var ErrPricingNotConfigured = eris.New("quote: no current pricing snapshot configured")

// WarnMixedCurrencies is appended when resolved lines span more than one
// currency. The subtotal is still a naive numeric sum.
const WarnMixedCurrencies = "Mixed currencies detected across line items. Totals are computed without currency conversion."

const (
	reasonInvalidQuantity = "Invalid quantity"
	reasonNotFound        = "Item not found in current snapshot"
)

// SnapshotSource is the single read the resolver performs.
type SnapshotSource interface {
	GetCurrentSnapshot(ctx context.Context) (*model.PricingSnapshot, error)
}

// Resolver prices quote requests against the current snapshot.
type Resolver struct {
	source SnapshotSource
}

// NewResolver creates a Resolver reading snapshots from source.
func NewResolver(source SnapshotSource) *Resolver {
	return &Resolver{source: source}
}

// GenerateQuotationPreview resolves each input against the current
// snapshot in input order. One unresolved item never aborts the request;
// it lands in Unresolved with a reason instead.
func (r *Resolver) GenerateQuotationPreview(ctx context.Context, items []model.QuoteInputItem) (*model.QuotePreview, error) {
	// Cheap short-circuit: no inputs means no snapshot fetch at all.
	if len(items) == 0 {
		return &model.QuotePreview{LineItems: []model.QuoteLineItem{}, Subtotal: 0}, nil
	}

	snap, err := r.source.GetCurrentSnapshot(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "quote: fetch current snapshot")
	}
	if snap == nil {
		return nil, ErrPricingNotConfigured
	}

	bySKU, byName := buildIndexes(snap.Items)

	preview := &model.QuotePreview{LineItems: []model.QuoteLineItem{}}
	var subtotal float64

	for _, in := range items {
		if !validQuantity(in.Quantity) {
			preview.Unresolved = append(preview.Unresolved, model.UnresolvedItem{
				SKU: in.SKU, Name: in.Name, Quantity: in.Quantity, Reason: reasonInvalidQuantity,
			})
			continue
		}

		matched, ok := resolveItem(in, bySKU, byName)
		if !ok {
			preview.Unresolved = append(preview.Unresolved, model.UnresolvedItem{
				SKU: in.SKU, Name: in.Name, Quantity: in.Quantity, Reason: reasonNotFound,
			})
			continue
		}

		unitPrice := coercePrice(matched.UnitPrice)
		unit := matched.Unit
		if unit == "" {
			unit = "unit"
		}
		total := Round2(unitPrice * in.Quantity)
		subtotal += total

		preview.LineItems = append(preview.LineItems, model.QuoteLineItem{
			SKU:        matched.SKU,
			Name:       matched.Name,
			Unit:       unit,
			UnitPrice:  unitPrice,
			Quantity:   in.Quantity,
			TotalPrice: total,
			Currency:   matched.Currency,
		})
	}

	currencies := distinctCurrencies(preview.LineItems)
	switch len(currencies) {
	case 0:
		// No resolved lines carried a currency; leave it unset.
	case 1:
		preview.Currency = currencies[0]
	default:
		preview.Warnings = append(preview.Warnings, WarnMixedCurrencies)
	}

	preview.Subtotal = Round2(subtotal)
	return preview, nil
}

// buildIndexes builds the sku and normalized-name lookup maps. Later
// items win on duplicate keys, mirroring snapshot insertion order.
func buildIndexes(items []model.PriceItem) (bySKU, byName map[string]model.PriceItem) {
	bySKU = make(map[string]model.PriceItem, len(items))
	byName = make(map[string]model.PriceItem, len(items))
	for _, it := range items {
		if it.SKU != "" {
			bySKU[it.SKU] = it
		}
		if it.NormalizedName != "" {
			byName[it.NormalizedName] = it
		}
	}
	return bySKU, byName
}

// resolveItem tries the sku index first, then falls back to the
// normalized name.
func resolveItem(in model.QuoteInputItem, bySKU, byName map[string]model.PriceItem) (model.PriceItem, bool) {
	if in.SKU != "" {
		if it, ok := bySKU[in.SKU]; ok {
			return it, true
		}
	}
	if in.Name != "" {
		if key := normalize.Name(in.Name); key != "" {
			if it, ok := byName[key]; ok {
				return it, true
			}
		}
	}
	return model.PriceItem{}, false
}

func validQuantity(q float64) bool {
	return !math.IsNaN(q) && !math.IsInf(q, 0) && q > 0
}

// coercePrice guards against pricing data gaps: anything non-finite or
// negative becomes a zero-priced line instead of blocking the quote.
func coercePrice(p float64) float64 {
	if math.IsNaN(p) || math.IsInf(p, 0) || p < 0 {
		return 0
	}
	return p
}

func distinctCurrencies(lines []model.QuoteLineItem) []string {
	seen := make(map[string]bool)
	var out []string
	for _, li := range lines {
		if li.Currency == "" || seen[li.Currency] {
			continue
		}
		seen[li.Currency] = true
		out = append(out, li.Currency)
	}
	return out
}
