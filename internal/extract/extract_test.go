package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/quote-cli/internal/config"
	"github.com/sells-group/quote-cli/internal/model"
	"github.com/sells-group/quote-cli/internal/resilience"
	"github.com/sells-group/quote-cli/pkg/anthropic"
)

// mockClient returns canned responses and records requests.
type mockClient struct {
	responses []*anthropic.MessageResponse
	errs      []error
	requests  []anthropic.MessageRequest
}

func (m *mockClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	m.requests = append(m.requests, req)
	i := len(m.requests) - 1
	if i < len(m.errs) && m.errs[i] != nil {
		return nil, m.errs[i]
	}
	if i < len(m.responses) {
		return m.responses[i], nil
	}
	return m.responses[len(m.responses)-1], nil
}

func textResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Model:   "claude-haiku-4-5-20251001",
		Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
	}
}

func newTestExtractor(client anthropic.Client) *Extractor {
	e := NewExtractor(client, config.AnthropicConfig{Model: "claude-haiku-4-5-20251001", MaxTokens: 1024})
	e.retry = resilience.Policy{MaxAttempts: 2, InitialBackoff: 1, MaxBackoff: 1, Multiplier: 1}
	return e
}

func TestExtractQuoteRequest(t *testing.T) {
	client := &mockClient{responses: []*anthropic.MessageResponse{textResponse(
		`{"intent": "quote_request", "priority": "high", "confidence": 0.95,
		  "items": [{"sku": "A1", "name": "Blue Widget", "quantity": 3},
		            {"name": "Steel Bar", "quantity": 10, "unit": "Kg"}]}`,
	)}}

	ex, err := newTestExtractor(client).Extract(context.Background(), &model.InboundEmail{
		ID:      "e1",
		From:    "buyer@example.com",
		Subject: "Need a quote",
		Body:    "Please quote 3 blue widgets and 10kg of steel bar.",
	})
	require.NoError(t, err)

	assert.Equal(t, model.IntentQuoteRequest, ex.Intent)
	assert.Equal(t, "high", ex.Priority)
	assert.InDelta(t, 0.95, ex.Confidence, 1e-9)
	require.Len(t, ex.Items, 2)
	assert.Equal(t, "A1", ex.Items[0].SKU)
	assert.Equal(t, "Steel Bar", ex.Items[1].Name)
	assert.Equal(t, "Kg", ex.Items[1].Unit)
	assert.Equal(t, "claude-haiku-4-5-20251001", ex.Model)
}

func TestExtractStripsCodeFences(t *testing.T) {
	client := &mockClient{responses: []*anthropic.MessageResponse{textResponse(
		"```json\n{\"intent\": \"question\", \"priority\": \"normal\", \"confidence\": 0.8, \"items\": []}\n```",
	)}}

	ex, err := newTestExtractor(client).Extract(context.Background(), &model.InboundEmail{Body: "Do you ship to Norway?"})
	require.NoError(t, err)
	assert.Equal(t, model.IntentQuestion, ex.Intent)
	assert.Empty(t, ex.Items)
}

func TestExtractInvalidOutputDegrades(t *testing.T) {
	for _, text := range []string{
		"I could not classify this email.",
		`{"intent": "purchase_order", "priority": "urgent", "confidence": 7}`,
	} {
		client := &mockClient{responses: []*anthropic.MessageResponse{textResponse(text)}}
		ex, err := newTestExtractor(client).Extract(context.Background(), &model.InboundEmail{Body: "x"})
		require.NoError(t, err)
		assert.Equal(t, model.IntentOther, ex.Intent)
		assert.Equal(t, "normal", ex.Priority)
		assert.LessOrEqual(t, ex.Confidence, 1.0)
	}
}

func TestExtractDropsUnidentifiableItems(t *testing.T) {
	client := &mockClient{responses: []*anthropic.MessageResponse{textResponse(
		`{"intent": "quote_request", "priority": "normal", "confidence": 0.9,
		  "items": [{"quantity": 5}, {"name": "Widget", "quantity": 2}]}`,
	)}}

	ex, err := newTestExtractor(client).Extract(context.Background(), &model.InboundEmail{Body: "x"})
	require.NoError(t, err)
	require.Len(t, ex.Items, 1)
	assert.Equal(t, "Widget", ex.Items[0].Name)
}

func TestExtractTruncatesLongBodies(t *testing.T) {
	client := &mockClient{responses: []*anthropic.MessageResponse{textResponse(
		`{"intent": "other", "priority": "normal", "confidence": 0.5, "items": []}`,
	)}}

	body := make([]byte, maxBodyChars*2)
	for i := range body {
		body[i] = 'a'
	}
	_, err := newTestExtractor(client).Extract(context.Background(), &model.InboundEmail{Body: string(body)})
	require.NoError(t, err)

	require.Len(t, client.requests, 1)
	assert.Less(t, len(client.requests[0].Messages[0].Content), maxBodyChars+200)
}

func TestExtractRetriesTransientAPIError(t *testing.T) {
	client := &mockClient{
		errs: []error{resilience.Transient(errors.New("overloaded"), 529)},
		responses: []*anthropic.MessageResponse{
			nil,
			textResponse(`{"intent": "spam", "priority": "low", "confidence": 0.99, "items": []}`),
		},
	}

	ex, err := newTestExtractor(client).Extract(context.Background(), &model.InboundEmail{Body: "buy cheap watches"})
	require.NoError(t, err)
	assert.Equal(t, model.IntentSpam, ex.Intent)
	assert.Len(t, client.requests, 2)
}

func TestExtractPermanentErrorFails(t *testing.T) {
	client := &mockClient{errs: []error{errors.New("invalid api key")}}

	_, err := newTestExtractor(client).Extract(context.Background(), &model.InboundEmail{Body: "x"})
	require.Error(t, err)
	assert.Len(t, client.requests, 1)
}

func TestQuoteInputs(t *testing.T) {
	assert.Nil(t, QuoteInputs(nil))
	assert.Nil(t, QuoteInputs(&model.EmailExtraction{}))

	inputs := QuoteInputs(&model.EmailExtraction{Items: []model.ExtractedItem{
		{SKU: "A1", Name: "Widget", Quantity: 3, Unit: "pcs"},
	}})
	require.Len(t, inputs, 1)
	assert.Equal(t, model.QuoteInputItem{SKU: "A1", Name: "Widget", Quantity: 3}, inputs[0])
}
