// Package extract classifies inbound customer emails and pulls structured
// item requests out of them using the Anthropic API. The model output is
// untrusted; everything it returns is validated before use.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/quote-cli/internal/config"
	"github.com/sells-group/quote-cli/internal/model"
	"github.com/sells-group/quote-cli/internal/resilience"
	"github.com/sells-group/quote-cli/pkg/anthropic"
)

const extractSystemPrompt = `You read customer emails for an industrial supplier and classify them. Respond with a single valid JSON object, nothing else:
{"intent": "quote_request" | "question" | "spam" | "other", "priority": "low" | "normal" | "high", "confidence": <0.0-1.0>, "items": [{"sku": "<item number if stated>", "name": "<product description>", "quantity": <number>, "unit": "<unit if stated>"}]}
Rules: "items" lists only products the customer wants priced, with quantities as numbers. Omit "sku" or "unit" when the email does not state them. Use an empty "items" array when the email requests no products.`

const extractUserPrompt = `From: %s
Subject: %s

%s`

// maxBodyChars caps the email body sent to the model. Quote requests state
// their items early; trailing signatures and threads add nothing.
const maxBodyChars = 6000

// Extractor classifies emails via the Anthropic API.
type Extractor struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	retry     resilience.Policy
}

// NewExtractor builds an Extractor from configuration.
func NewExtractor(client anthropic.Client, cfg config.AnthropicConfig) *Extractor {
	return &Extractor{
		client:    client,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		retry:     resilience.DefaultPolicy(),
	}
}

// Extract classifies a single email. API errors with retryable status codes
// are retried with backoff; a malformed model response degrades to intent
// "other" with zero confidence rather than failing the email.
func (e *Extractor) Extract(ctx context.Context, email *model.InboundEmail) (*model.EmailExtraction, error) {
	body := email.Body
	if len(body) > maxBodyChars {
		body = body[:maxBodyChars]
	}

	req := anthropic.MessageRequest{
		Model:     e.model,
		MaxTokens: e.maxTokens,
		System:    anthropic.CachedSystemBlocks(extractSystemPrompt),
		Messages: []anthropic.Message{
			{Role: "user", Content: fmt.Sprintf(extractUserPrompt, email.From, email.Subject, body)},
		},
	}

	resp, err := resilience.Do(ctx, e.retry, "extract email", func(ctx context.Context) (*anthropic.MessageResponse, error) {
		resp, err := e.client.CreateMessage(ctx, req)
		if err != nil && resilience.IsTransientStatus(anthropic.StatusCode(err)) {
			return nil, resilience.Transient(err, anthropic.StatusCode(err))
		}
		return resp, err
	})
	if err != nil {
		return nil, err
	}

	resp.Usage.LogCost(e.model, "extract")

	extraction := parseExtraction(resp.Text())
	extraction.Model = resp.Model

	zap.L().Info("extract: classified email",
		zap.String("email_id", email.ID),
		zap.String("intent", string(extraction.Intent)),
		zap.Float64("confidence", extraction.Confidence),
		zap.Int("items", len(extraction.Items)),
	)

	return extraction, nil
}

// QuoteInputs converts extracted items into quotation inputs.
func QuoteInputs(ex *model.EmailExtraction) []model.QuoteInputItem {
	if ex == nil || len(ex.Items) == 0 {
		return nil
	}
	inputs := make([]model.QuoteInputItem, len(ex.Items))
	for i, it := range ex.Items {
		inputs[i] = model.QuoteInputItem{
			SKU:      it.SKU,
			Name:     it.Name,
			Quantity: it.Quantity,
		}
	}
	return inputs
}

var validIntents = map[model.EmailIntent]bool{
	model.IntentQuoteRequest: true,
	model.IntentQuestion:     true,
	model.IntentSpam:         true,
	model.IntentOther:        true,
}

var validPriorities = map[string]bool{
	"low":    true,
	"normal": true,
	"high":   true,
}

// parseExtraction validates the raw model output. Unknown intents fall back
// to "other", unknown priorities to "normal", confidence is clamped to
// [0, 1], and items without any identifier are dropped.
func parseExtraction(text string) *model.EmailExtraction {
	text = cleanJSON(text)

	var raw struct {
		Intent     string  `json:"intent"`
		Priority   string  `json:"priority"`
		Confidence float64 `json:"confidence"`
		Items      []struct {
			SKU      string  `json:"sku"`
			Name     string  `json:"name"`
			Quantity float64 `json:"quantity"`
			Unit     string  `json:"unit"`
		} `json:"items"`
	}

	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		zap.L().Warn("extract: unparseable model response", zap.Error(err))
		return &model.EmailExtraction{Intent: model.IntentOther, Priority: "normal"}
	}

	intent := model.EmailIntent(strings.ToLower(strings.TrimSpace(raw.Intent)))
	if !validIntents[intent] {
		intent = model.IntentOther
	}

	priority := strings.ToLower(strings.TrimSpace(raw.Priority))
	if !validPriorities[priority] {
		priority = "normal"
	}

	confidence := raw.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	var items []model.ExtractedItem
	for _, it := range raw.Items {
		sku := strings.TrimSpace(it.SKU)
		name := strings.TrimSpace(it.Name)
		if sku == "" && name == "" {
			continue
		}
		items = append(items, model.ExtractedItem{
			SKU:      sku,
			Name:     name,
			Quantity: it.Quantity,
			Unit:     strings.TrimSpace(it.Unit),
		})
	}

	return &model.EmailExtraction{
		Intent:     intent,
		Priority:   priority,
		Confidence: confidence,
		Items:      items,
	}
}

func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	// Strip markdown code fences.
	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	// Find first { and last }.
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
