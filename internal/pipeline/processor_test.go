package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/quote-cli/internal/model"
	"github.com/sells-group/quote-cli/internal/store"
)

// fakeClassifier returns a canned extraction per sender address.
type fakeClassifier struct {
	byFrom map[string]*model.EmailExtraction
	err    error
}

func (f *fakeClassifier) Extract(ctx context.Context, email *model.InboundEmail) (*model.EmailExtraction, error) {
	if f.err != nil {
		return nil, f.err
	}
	if ex, ok := f.byFrom[email.From]; ok {
		return ex, nil
	}
	return &model.EmailExtraction{Intent: model.IntentOther, Priority: "normal"}, nil
}

type fakePreviewer struct {
	preview *model.QuotePreview
	err     error
	calls   int
}

func (f *fakePreviewer) GenerateQuotationPreview(ctx context.Context, items []model.QuoteInputItem) (*model.QuotePreview, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.preview, nil
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "pipeline.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedEmail(t *testing.T, s store.Store, from, msgID string) *model.InboundEmail {
	t.Helper()
	email := &model.InboundEmail{
		MessageID: msgID,
		From:      from,
		Subject:   "quote please",
		Body:      "3 widgets",
	}
	id, err := s.CreateInboundEmail(context.Background(), email)
	require.NoError(t, err)
	email.ID = id
	return email
}

func quoteExtraction() *model.EmailExtraction {
	return &model.EmailExtraction{
		Intent:     model.IntentQuoteRequest,
		Priority:   "normal",
		Confidence: 0.9,
		Items:      []model.ExtractedItem{{SKU: "A1", Name: "Widget", Quantity: 3}},
	}
}

func TestProcessEmailQuoted(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	email := seedEmail(t, s, "buyer@example.com", "m1")

	p := &Processor{
		Store:      s,
		Classifier: &fakeClassifier{byFrom: map[string]*model.EmailExtraction{"buyer@example.com": quoteExtraction()}},
		Previewer: &fakePreviewer{preview: &model.QuotePreview{
			LineItems: []model.QuoteLineItem{{SKU: "A1", Quantity: 3, UnitPrice: 10, TotalPrice: 30}},
			Subtotal:  30,
			Currency:  "USD",
		}},
	}

	status, err := p.ProcessEmail(ctx, email)
	require.NoError(t, err)
	assert.Equal(t, model.EmailStatusQuoted, status)

	stored, err := s.GetInboundEmail(ctx, email.ID)
	require.NoError(t, err)
	assert.Equal(t, model.EmailStatusQuoted, stored.Status)

	qr, err := s.GetQuoteRequestByEmail(ctx, email.ID)
	require.NoError(t, err)
	require.NotNil(t, qr)
	assert.Equal(t, 30.0, qr.Preview.Subtotal)
	assert.Equal(t, model.IntentQuoteRequest, qr.Extraction.Intent)
}

func TestProcessEmailIgnoresNonQuote(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	email := seedEmail(t, s, "asker@example.com", "m2")

	prev := &fakePreviewer{}
	p := &Processor{
		Store:      s,
		Classifier: &fakeClassifier{byFrom: map[string]*model.EmailExtraction{"asker@example.com": {Intent: model.IntentQuestion}}},
		Previewer:  prev,
	}

	status, err := p.ProcessEmail(ctx, email)
	require.NoError(t, err)
	assert.Equal(t, model.EmailStatusIgnored, status)
	assert.Zero(t, prev.calls)

	qr, err := s.GetQuoteRequestByEmail(ctx, email.ID)
	require.NoError(t, err)
	assert.Nil(t, qr)
}

func TestProcessEmailFailsOnExtractError(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	email := seedEmail(t, s, "buyer@example.com", "m3")

	p := &Processor{
		Store:      s,
		Classifier: &fakeClassifier{err: errors.New("api down")},
		Previewer:  &fakePreviewer{},
	}

	status, err := p.ProcessEmail(ctx, email)
	require.Error(t, err)
	assert.Equal(t, model.EmailStatusFailed, status)

	stored, err := s.GetInboundEmail(ctx, email.ID)
	require.NoError(t, err)
	assert.Equal(t, model.EmailStatusFailed, stored.Status)
}

func TestProcessEmailFailsOnPreviewError(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	email := seedEmail(t, s, "buyer@example.com", "m4")

	p := &Processor{
		Store:      s,
		Classifier: &fakeClassifier{byFrom: map[string]*model.EmailExtraction{"buyer@example.com": quoteExtraction()}},
		Previewer:  &fakePreviewer{err: errors.New("no snapshot")},
	}

	status, err := p.ProcessEmail(ctx, email)
	require.Error(t, err)
	assert.Equal(t, model.EmailStatusFailed, status)
}

func TestDrainProcessesAllPending(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	seedEmail(t, s, "buyer@example.com", "d1")
	seedEmail(t, s, "asker@example.com", "d2")
	seedEmail(t, s, "buyer@example.com", "d3")

	p := &Processor{
		Store: s,
		Classifier: &fakeClassifier{byFrom: map[string]*model.EmailExtraction{
			"buyer@example.com": quoteExtraction(),
			"asker@example.com": {Intent: model.IntentSpam},
		}},
		Previewer: &fakePreviewer{preview: &model.QuotePreview{Subtotal: 30, Currency: "USD"}},
	}

	stats, err := p.Drain(ctx, DrainOptions{MaxConcurrent: 2, RatePerSecond: 1000})
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Processed)
	assert.Equal(t, 2, stats.Quoted)
	assert.Equal(t, 1, stats.Ignored)
	assert.Zero(t, stats.Failed)

	pending, err := s.ListPendingEmails(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestDrainEmptyInbox(t *testing.T) {
	s := newTestStore(t)
	p := &Processor{Store: s, Classifier: &fakeClassifier{}, Previewer: &fakePreviewer{}}

	stats, err := p.Drain(context.Background(), DrainOptions{})
	require.NoError(t, err)
	assert.Zero(t, stats.Processed)
}

func TestDrainCountsFailures(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedEmail(t, s, "buyer@example.com", "f1")

	p := &Processor{
		Store:      s,
		Classifier: &fakeClassifier{err: errors.New("api down")},
		Previewer:  &fakePreviewer{},
	}

	stats, err := p.Drain(ctx, DrainOptions{RatePerSecond: 1000})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, 1, stats.Failed)
}
