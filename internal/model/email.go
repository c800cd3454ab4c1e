package model

import "time"

// EmailStatus tracks an inbound email through the processing pipeline.
type EmailStatus string

const (
	EmailStatusPending    EmailStatus = "pending"
	EmailStatusProcessing EmailStatus = "processing"
	EmailStatusQuoted     EmailStatus = "quoted"
	EmailStatusIgnored    EmailStatus = "ignored"
	EmailStatusFailed     EmailStatus = "failed"
)

// EmailIntent is the model's best guess at what the customer wants.
// It is an untrusted classification; downstream validation decides what
// actually happens.
type EmailIntent string

const (
	IntentQuoteRequest EmailIntent = "quote_request"
	IntentQuestion     EmailIntent = "question"
	IntentSpam         EmailIntent = "spam"
	IntentOther        EmailIntent = "other"
)

// InboundEmail is a raw customer message handed over by the mailbox sync
// collaborator. The body is already plain text.
type InboundEmail struct {
	ID         string      `json:"id"`
	MessageID  string      `json:"message_id"`
	From       string      `json:"from"`
	Subject    string      `json:"subject"`
	Body       string      `json:"body"`
	Status     EmailStatus `json:"status"`
	ReceivedAt time.Time   `json:"received_at"`
	CreatedAt  time.Time   `json:"created_at"`
}

// ExtractedItem is one item candidate pulled out of an email by the LLM.
// Quantity and names are re-validated by the quotation resolver.
type ExtractedItem struct {
	SKU      string  `json:"sku,omitempty"`
	Name     string  `json:"name,omitempty"`
	Quantity float64 `json:"quantity"`
	Unit     string  `json:"unit,omitempty"`
}

// EmailExtraction is the structured guess produced by the classifier.
type EmailExtraction struct {
	Intent     EmailIntent     `json:"intent"`
	Priority   string          `json:"priority"`
	Confidence float64         `json:"confidence"`
	Items      []ExtractedItem `json:"items,omitempty"`
	Model      string          `json:"model,omitempty"`
}

// QuoteRequest ties an email's extraction and the computed preview
// together for operator review.
type QuoteRequest struct {
	ID         string           `json:"id"`
	EmailID    string           `json:"email_id"`
	Extraction *EmailExtraction `json:"extraction,omitempty"`
	Preview    *QuotePreview    `json:"preview,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
}
