package jobs

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.temporal.io/sdk/temporal"
	"go.uber.org/zap"

	"github.com/sells-group/quote-cli/internal/extract"
	"github.com/sells-group/quote-cli/internal/fetcher"
	"github.com/sells-group/quote-cli/internal/model"
	"github.com/sells-group/quote-cli/internal/pricing"
	"github.com/sells-group/quote-cli/internal/quote"
	"github.com/sells-group/quote-cli/internal/store"
)

// Activities holds the dependencies the workflows call into.
type Activities struct {
	Store     store.Store
	Extractor *extract.Extractor
	Resolver  *quote.Resolver
}

// MarkEmailStatus transitions an email's pipeline status.
func (a *Activities) MarkEmailStatus(ctx context.Context, emailID string, status model.EmailStatus) error {
	return a.Store.UpdateEmailStatus(ctx, emailID, status)
}

// ExtractEmail loads the email and classifies it via the LLM.
func (a *Activities) ExtractEmail(ctx context.Context, emailID string) (*model.EmailExtraction, error) {
	email, err := a.Store.GetInboundEmail(ctx, emailID)
	if err != nil {
		return nil, err
	}
	if email == nil {
		return nil, temporal.NewNonRetryableApplicationError("email not found", "EmailNotFound", nil)
	}
	return a.Extractor.Extract(ctx, email)
}

// GeneratePreview computes a quotation preview for the extracted items.
// A missing current snapshot is an operator problem that retries cannot
// fix, so it is surfaced as non-retryable.
func (a *Activities) GeneratePreview(ctx context.Context, extraction model.EmailExtraction) (*model.QuotePreview, error) {
	preview, err := a.Resolver.GenerateQuotationPreview(ctx, extract.QuoteInputs(&extraction))
	if err != nil {
		if eris.Is(err, quote.ErrPricingNotConfigured) {
			return nil, temporal.NewNonRetryableApplicationError("pricing not configured", "PricingNotConfigured", err)
		}
		return nil, err
	}
	return preview, nil
}

// SaveQuoteRequest persists the extraction and preview for operator review.
func (a *Activities) SaveQuoteRequest(ctx context.Context, emailID string, extraction model.EmailExtraction, preview model.QuotePreview) error {
	id, err := a.Store.SaveQuoteRequest(ctx, &model.QuoteRequest{
		EmailID:    emailID,
		Extraction: &extraction,
		Preview:    &preview,
	})
	if err != nil {
		return err
	}
	zap.L().Info("jobs: saved quote request",
		zap.String("quote_request_id", id),
		zap.String("email_id", emailID),
	)
	return nil
}

// CaptureSnapshot reads the sheet, captures a snapshot, and persists it.
func (a *Activities) CaptureSnapshot(ctx context.Context, req SyncRequest) (*SyncResult, error) {
	rows, err := readSheet(req.Path, req.SheetName)
	if err != nil {
		return nil, temporal.NewNonRetryableApplicationError("unreadable sheet", "BadSheet", err)
	}

	snap, err := pricing.Capture(rows, pricing.CaptureOptions{Source: req.Source})
	if err != nil {
		return nil, temporal.NewNonRetryableApplicationError("capture failed", "BadSheet", err)
	}

	id, err := a.Store.CreatePricingSnapshot(ctx, snap)
	if err != nil {
		return nil, err
	}

	return &SyncResult{
		SnapshotID: id,
		ItemCount:  snap.ItemCount,
		ErrorCount: len(snap.Errors),
	}, nil
}

// PromoteSnapshot flips the snapshot to current.
func (a *Activities) PromoteSnapshot(ctx context.Context, id string) error {
	res, err := a.Store.PromoteSnapshot(ctx, id)
	if err != nil {
		if eris.Is(err, store.ErrSnapshotNotFound) {
			return temporal.NewNonRetryableApplicationError("snapshot not found", "SnapshotNotFound", err)
		}
		return err
	}
	zap.L().Info("jobs: promoted snapshot",
		zap.String("current_id", res.CurrentID),
		zap.String("previous_current_id", res.PreviousCurrentID),
	)
	return nil
}

func readSheet(path, sheetName string) ([][]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return fetcher.ReadCSVFile(path, fetcher.CSVOptions{TrimSpace: true})
	default:
		return fetcher.ReadXLSX(path, fetcher.XLSXOptions{SheetName: sheetName})
	}
}
