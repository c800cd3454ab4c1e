// Package pipeline runs inbound emails through classification and
// quotation. It is the direct, in-process counterpart to the Temporal
// workflows: the inbox command uses it to drain pending emails without a
// job server.
package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/quote-cli/internal/extract"
	"github.com/sells-group/quote-cli/internal/model"
	"github.com/sells-group/quote-cli/internal/store"
)

// Classifier produces a structured extraction from an email.
type Classifier interface {
	Extract(ctx context.Context, email *model.InboundEmail) (*model.EmailExtraction, error)
}

// Previewer computes a quotation preview for requested items.
type Previewer interface {
	GenerateQuotationPreview(ctx context.Context, items []model.QuoteInputItem) (*model.QuotePreview, error)
}

// Processor wires the store, the classifier, and the quotation resolver.
type Processor struct {
	Store      store.Store
	Classifier Classifier
	Previewer  Previewer
}

// ProcessEmail drives one email to a terminal status and returns it.
// Classification and pricing failures mark the email failed; the error is
// returned alongside so callers can count and log it.
func (p *Processor) ProcessEmail(ctx context.Context, email *model.InboundEmail) (model.EmailStatus, error) {
	if err := p.Store.UpdateEmailStatus(ctx, email.ID, model.EmailStatusProcessing); err != nil {
		return email.Status, err
	}

	extraction, err := p.Classifier.Extract(ctx, email)
	if err != nil {
		return p.fail(ctx, email, eris.Wrap(err, "pipeline: extract"))
	}

	if extraction.Intent != model.IntentQuoteRequest {
		if err := p.Store.UpdateEmailStatus(ctx, email.ID, model.EmailStatusIgnored); err != nil {
			return email.Status, err
		}
		zap.L().Info("pipeline: ignored email",
			zap.String("email_id", email.ID),
			zap.String("intent", string(extraction.Intent)),
		)
		return model.EmailStatusIgnored, nil
	}

	preview, err := p.Previewer.GenerateQuotationPreview(ctx, extract.QuoteInputs(extraction))
	if err != nil {
		return p.fail(ctx, email, eris.Wrap(err, "pipeline: preview"))
	}

	if _, err := p.Store.SaveQuoteRequest(ctx, &model.QuoteRequest{
		EmailID:    email.ID,
		Extraction: extraction,
		Preview:    preview,
	}); err != nil {
		return p.fail(ctx, email, eris.Wrap(err, "pipeline: save quote request"))
	}

	if err := p.Store.UpdateEmailStatus(ctx, email.ID, model.EmailStatusQuoted); err != nil {
		return email.Status, err
	}

	zap.L().Info("pipeline: quoted email",
		zap.String("email_id", email.ID),
		zap.Int("line_items", len(preview.LineItems)),
		zap.Float64("subtotal", preview.Subtotal),
	)
	return model.EmailStatusQuoted, nil
}

func (p *Processor) fail(ctx context.Context, email *model.InboundEmail, cause error) (model.EmailStatus, error) {
	if err := p.Store.UpdateEmailStatus(ctx, email.ID, model.EmailStatusFailed); err != nil {
		zap.L().Error("pipeline: could not mark email failed",
			zap.String("email_id", email.ID),
			zap.Error(err),
		)
	}
	return model.EmailStatusFailed, cause
}
