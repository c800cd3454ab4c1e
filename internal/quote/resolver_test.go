package quote

import (
	"context"
	"math"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/quote-cli/internal/model"
	"github.com/sells-group/quote-cli/internal/normalize"
)

// fakeSource returns a fixed snapshot and counts fetches.
type fakeSource struct {
	snap    *model.PricingSnapshot
	err     error
	fetches int
}

func (f *fakeSource) GetCurrentSnapshot(ctx context.Context) (*model.PricingSnapshot, error) {
	f.fetches++
	return f.snap, f.err
}

func item(sku, name, unit, currency string, price float64) model.PriceItem {
	return model.PriceItem{
		SKU: sku, Name: name, NormalizedName: normalize.Name(name),
		Unit: unit, Currency: currency, UnitPrice: price,
	}
}

func testSnapshot() *model.PricingSnapshot {
	return &model.PricingSnapshot{
		ID:      "snap-1",
		Current: true,
		Items: []model.PriceItem{
			item("A1", "Widget", "unit", "USD", 10),
			item("A2", "widget", "unit", "USD", 12), // same normalized name; later wins by name
			item("B1", "Steel Bar 10Kgs", "kg", "USD", 4.5),
		},
	}
}

func TestGenerateQuotationPreview_EmptyInputShortCircuits(t *testing.T) {
	src := &fakeSource{}
	r := NewResolver(src)

	preview, err := r.GenerateQuotationPreview(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, preview.LineItems)
	assert.Equal(t, 0.0, preview.Subtotal)
	assert.Zero(t, src.fetches, "empty input must not touch the store")
}

func TestGenerateQuotationPreview_NoCurrentSnapshot(t *testing.T) {
	r := NewResolver(&fakeSource{snap: nil})

	_, err := r.GenerateQuotationPreview(context.Background(), []model.QuoteInputItem{{SKU: "A1", Quantity: 1}})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrPricingNotConfigured))
}

func TestGenerateQuotationPreview_StoreError(t *testing.T) {
	r := NewResolver(&fakeSource{err: eris.New("connection refused")})

	_, err := r.GenerateQuotationPreview(context.Background(), []model.QuoteInputItem{{SKU: "A1", Quantity: 1}})
	require.Error(t, err)
	assert.False(t, eris.Is(err, ErrPricingNotConfigured))
	assert.Contains(t, err.Error(), "connection refused")
}

func TestGenerateQuotationPreview_SKUPrecedenceOverNameCollision(t *testing.T) {
	r := NewResolver(&fakeSource{snap: testSnapshot()})

	preview, err := r.GenerateQuotationPreview(context.Background(), []model.QuoteInputItem{{SKU: "A1", Quantity: 2}})
	require.NoError(t, err)
	require.Len(t, preview.LineItems, 1)
	assert.Equal(t, "A1", preview.LineItems[0].SKU)
	assert.Equal(t, 10.0, preview.LineItems[0].UnitPrice)
	assert.Equal(t, 20.0, preview.LineItems[0].TotalPrice)
}

func TestGenerateQuotationPreview_NameFallbackLastWins(t *testing.T) {
	r := NewResolver(&fakeSource{snap: testSnapshot()})

	preview, err := r.GenerateQuotationPreview(context.Background(), []model.QuoteInputItem{{Name: "Widget", Quantity: 3}})
	require.NoError(t, err)
	require.Len(t, preview.LineItems, 1)
	// A1 and A2 share the normalized name "widget"; the later snapshot
	// entry wins on index insertion.
	assert.Equal(t, "A2", preview.LineItems[0].SKU)
	assert.Equal(t, 36.0, preview.LineItems[0].TotalPrice)
}

func TestGenerateQuotationPreview_UnmatchedSKUFallsBackToName(t *testing.T) {
	r := NewResolver(&fakeSource{snap: testSnapshot()})

	preview, err := r.GenerateQuotationPreview(context.Background(), []model.QuoteInputItem{
		{SKU: "NOPE", Name: "steel bar 10kgs", Quantity: 2},
	})
	require.NoError(t, err)
	require.Len(t, preview.LineItems, 1)
	assert.Equal(t, "B1", preview.LineItems[0].SKU)
	assert.Equal(t, "kg", preview.LineItems[0].Unit)
}

func TestGenerateQuotationPreview_UnresolvedDoesNotAbort(t *testing.T) {
	r := NewResolver(&fakeSource{snap: testSnapshot()})

	preview, err := r.GenerateQuotationPreview(context.Background(), []model.QuoteInputItem{
		{SKU: "A1", Quantity: 2},
		{SKU: "ZZZ", Quantity: 1},
	})
	require.NoError(t, err)
	assert.Len(t, preview.LineItems, 1)
	require.Len(t, preview.Unresolved, 1)
	assert.Equal(t, "ZZZ", preview.Unresolved[0].SKU)
	assert.Equal(t, "Item not found in current snapshot", preview.Unresolved[0].Reason)
}

func TestGenerateQuotationPreview_InvalidQuantity(t *testing.T) {
	r := NewResolver(&fakeSource{snap: testSnapshot()})

	preview, err := r.GenerateQuotationPreview(context.Background(), []model.QuoteInputItem{
		{SKU: "A1", Quantity: 0},
		{SKU: "A1", Quantity: -5},
		{SKU: "A1", Quantity: math.NaN()},
		{SKU: "A1", Quantity: math.Inf(1)},
	})
	require.NoError(t, err)
	assert.Empty(t, preview.LineItems)
	require.Len(t, preview.Unresolved, 4)
	for _, u := range preview.Unresolved {
		assert.Equal(t, "Invalid quantity", u.Reason)
	}
}

func TestGenerateQuotationPreview_MixedCurrencies(t *testing.T) {
	snap := &model.PricingSnapshot{
		Current: true,
		Items: []model.PriceItem{
			item("U1", "Dollar Thing", "unit", "USD", 5),
			item("E1", "Euro Thing", "unit", "EUR", 7),
		},
	}
	r := NewResolver(&fakeSource{snap: snap})

	preview, err := r.GenerateQuotationPreview(context.Background(), []model.QuoteInputItem{
		{SKU: "U1", Quantity: 1},
		{SKU: "E1", Quantity: 1},
	})
	require.NoError(t, err)
	assert.Empty(t, preview.Currency)
	require.Len(t, preview.Warnings, 1)
	assert.Equal(t, WarnMixedCurrencies, preview.Warnings[0])
	assert.Equal(t, 12.0, preview.Subtotal, "subtotal stays the naive numeric sum")
}

func TestGenerateQuotationPreview_SingleCurrencySet(t *testing.T) {
	r := NewResolver(&fakeSource{snap: testSnapshot()})

	preview, err := r.GenerateQuotationPreview(context.Background(), []model.QuoteInputItem{
		{SKU: "A1", Quantity: 1},
		{SKU: "B1", Quantity: 2},
	})
	require.NoError(t, err)
	assert.Equal(t, "USD", preview.Currency)
	assert.Empty(t, preview.Warnings)
}

func TestGenerateQuotationPreview_NoCurrencyOnItems(t *testing.T) {
	snap := &model.PricingSnapshot{
		Current: true,
		Items:   []model.PriceItem{item("X1", "Bare Item", "", "", 2)},
	}
	r := NewResolver(&fakeSource{snap: snap})

	preview, err := r.GenerateQuotationPreview(context.Background(), []model.QuoteInputItem{{SKU: "X1", Quantity: 2}})
	require.NoError(t, err)
	assert.Empty(t, preview.Currency)
	assert.Empty(t, preview.Warnings)
	require.Len(t, preview.LineItems, 1)
	assert.Equal(t, "unit", preview.LineItems[0].Unit, "missing unit defaults to \"unit\"")
}

func TestGenerateQuotationPreview_Rounding(t *testing.T) {
	snap := &model.PricingSnapshot{
		Current: true,
		Items:   item12005(),
	}
	r := NewResolver(&fakeSource{snap: snap})

	preview, err := r.GenerateQuotationPreview(context.Background(), []model.QuoteInputItem{{SKU: "R1", Quantity: 3}})
	require.NoError(t, err)
	require.Len(t, preview.LineItems, 1)
	assert.Equal(t, 36.02, preview.LineItems[0].TotalPrice)
	assert.Equal(t, 36.02, preview.Subtotal)
}

func item12005() []model.PriceItem {
	return []model.PriceItem{item("R1", "Rounding Case", "unit", "USD", 12.005)}
}

func TestGenerateQuotationPreview_NegativePriceCoercedToZero(t *testing.T) {
	snap := &model.PricingSnapshot{
		Current: true,
		Items:   []model.PriceItem{{SKU: "N1", Name: "Broken", NormalizedName: "broken", UnitPrice: -3}},
	}
	r := NewResolver(&fakeSource{snap: snap})

	preview, err := r.GenerateQuotationPreview(context.Background(), []model.QuoteInputItem{{SKU: "N1", Quantity: 4}})
	require.NoError(t, err)
	require.Len(t, preview.LineItems, 1)
	assert.Equal(t, 0.0, preview.LineItems[0].UnitPrice)
	assert.Equal(t, 0.0, preview.LineItems[0].TotalPrice)
	assert.Equal(t, 0.0, preview.Subtotal)
}

func TestGenerateQuotationPreview_OrderPreserved(t *testing.T) {
	r := NewResolver(&fakeSource{snap: testSnapshot()})

	preview, err := r.GenerateQuotationPreview(context.Background(), []model.QuoteInputItem{
		{SKU: "B1", Quantity: 1},
		{SKU: "A1", Quantity: 1},
	})
	require.NoError(t, err)
	require.Len(t, preview.LineItems, 2)
	assert.Equal(t, "B1", preview.LineItems[0].SKU)
	assert.Equal(t, "A1", preview.LineItems[1].SKU)
}
