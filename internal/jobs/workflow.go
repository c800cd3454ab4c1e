// Package jobs runs the email-to-quote pipeline and snapshot syncs as
// Temporal workflows so crashes and API outages resume instead of dropping
// customer emails.
package jobs

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/sells-group/quote-cli/internal/model"
)

// Workflow and activity registration names.
const (
	EmailQuoteWorkflowName   = "email-quote"
	SnapshotSyncWorkflowName = "snapshot-sync"
)

// EmailQuoteWorkflow drives one inbound email through extraction and
// quotation. Non-quote emails are marked ignored; extraction or pricing
// failures mark the email failed after activity retries are exhausted.
func EmailQuoteWorkflow(ctx workflow.Context, emailID string) error {
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			MaximumInterval:    time.Minute,
			BackoffCoefficient: 2.0,
			MaximumAttempts:    4,
		},
	})

	var a *Activities

	if err := workflow.ExecuteActivity(ctx, a.MarkEmailStatus, emailID, model.EmailStatusProcessing).Get(ctx, nil); err != nil {
		return err
	}

	var extraction model.EmailExtraction
	if err := workflow.ExecuteActivity(ctx, a.ExtractEmail, emailID).Get(ctx, &extraction); err != nil {
		return failEmail(ctx, a, emailID, err)
	}

	if extraction.Intent != model.IntentQuoteRequest {
		return workflow.ExecuteActivity(ctx, a.MarkEmailStatus, emailID, model.EmailStatusIgnored).Get(ctx, nil)
	}

	var preview model.QuotePreview
	if err := workflow.ExecuteActivity(ctx, a.GeneratePreview, extraction).Get(ctx, &preview); err != nil {
		return failEmail(ctx, a, emailID, err)
	}

	if err := workflow.ExecuteActivity(ctx, a.SaveQuoteRequest, emailID, extraction, preview).Get(ctx, nil); err != nil {
		return failEmail(ctx, a, emailID, err)
	}

	return workflow.ExecuteActivity(ctx, a.MarkEmailStatus, emailID, model.EmailStatusQuoted).Get(ctx, nil)
}

// failEmail marks the email failed best-effort and returns the original error.
func failEmail(ctx workflow.Context, a *Activities, emailID string, cause error) error {
	_ = workflow.ExecuteActivity(ctx, a.MarkEmailStatus, emailID, model.EmailStatusFailed).Get(ctx, nil)
	return cause
}

// SyncRequest describes a price sheet to capture.
type SyncRequest struct {
	Path      string `json:"path"`
	SheetName string `json:"sheet_name,omitempty"`
	Source    string `json:"source"`
	Promote   bool   `json:"promote"`
}

// SyncResult reports the captured snapshot.
type SyncResult struct {
	SnapshotID string `json:"snapshot_id"`
	ItemCount  int    `json:"item_count"`
	ErrorCount int    `json:"error_count"`
	Promoted   bool   `json:"promoted"`
}

// SnapshotSyncWorkflow captures a pricing snapshot from a sheet and
// optionally promotes it to current.
func SnapshotSyncWorkflow(ctx workflow.Context, req SyncRequest) (*SyncResult, error) {
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			MaximumInterval:    time.Minute,
			BackoffCoefficient: 2.0,
			MaximumAttempts:    3,
		},
	})

	var a *Activities

	var result SyncResult
	if err := workflow.ExecuteActivity(ctx, a.CaptureSnapshot, req).Get(ctx, &result); err != nil {
		return nil, err
	}

	if req.Promote {
		if err := workflow.ExecuteActivity(ctx, a.PromoteSnapshot, result.SnapshotID).Get(ctx, nil); err != nil {
			return nil, err
		}
		result.Promoted = true
	}

	return &result, nil
}
