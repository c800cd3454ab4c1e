package jobs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"

	"github.com/sells-group/quote-cli/internal/model"
)

func newEnv(t *testing.T) (*testsuite.TestWorkflowEnvironment, *Activities) {
	t.Helper()
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	a := &Activities{}
	env.RegisterWorkflow(EmailQuoteWorkflow)
	env.RegisterWorkflow(SnapshotSyncWorkflow)
	return env, a
}

func TestEmailQuoteWorkflowQuoted(t *testing.T) {
	env, a := newEnv(t)

	extraction := model.EmailExtraction{
		Intent:     model.IntentQuoteRequest,
		Priority:   "normal",
		Confidence: 0.9,
		Items:      []model.ExtractedItem{{SKU: "A1", Quantity: 2}},
	}
	preview := model.QuotePreview{Subtotal: 20, Currency: "USD"}

	env.OnActivity(a.MarkEmailStatus, mock.Anything, "e1", model.EmailStatusProcessing).Return(nil).Once()
	env.OnActivity(a.ExtractEmail, mock.Anything, "e1").Return(&extraction, nil).Once()
	env.OnActivity(a.GeneratePreview, mock.Anything, extraction).Return(&preview, nil).Once()
	env.OnActivity(a.SaveQuoteRequest, mock.Anything, "e1", extraction, preview).Return(nil).Once()
	env.OnActivity(a.MarkEmailStatus, mock.Anything, "e1", model.EmailStatusQuoted).Return(nil).Once()

	env.ExecuteWorkflow(EmailQuoteWorkflow, "e1")

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
	env.AssertExpectations(t)
}

func TestEmailQuoteWorkflowIgnoresNonQuoteIntents(t *testing.T) {
	env, a := newEnv(t)

	extraction := model.EmailExtraction{Intent: model.IntentQuestion, Priority: "normal"}

	env.OnActivity(a.MarkEmailStatus, mock.Anything, "e2", model.EmailStatusProcessing).Return(nil).Once()
	env.OnActivity(a.ExtractEmail, mock.Anything, "e2").Return(&extraction, nil).Once()
	env.OnActivity(a.MarkEmailStatus, mock.Anything, "e2", model.EmailStatusIgnored).Return(nil).Once()

	env.ExecuteWorkflow(EmailQuoteWorkflow, "e2")

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
	env.AssertExpectations(t)
}

func TestEmailQuoteWorkflowMarksFailedOnPreviewError(t *testing.T) {
	env, a := newEnv(t)

	extraction := model.EmailExtraction{
		Intent: model.IntentQuoteRequest,
		Items:  []model.ExtractedItem{{Name: "widget", Quantity: 1}},
	}

	env.OnActivity(a.MarkEmailStatus, mock.Anything, "e3", model.EmailStatusProcessing).Return(nil).Once()
	env.OnActivity(a.ExtractEmail, mock.Anything, "e3").Return(&extraction, nil).Once()
	env.OnActivity(a.GeneratePreview, mock.Anything, extraction).Return(nil, errors.New("store down"))
	env.OnActivity(a.MarkEmailStatus, mock.Anything, "e3", model.EmailStatusFailed).Return(nil).Once()

	env.ExecuteWorkflow(EmailQuoteWorkflow, "e3")

	require.True(t, env.IsWorkflowCompleted())
	require.Error(t, env.GetWorkflowError())
	env.AssertExpectations(t)
}

func TestSnapshotSyncWorkflowWithPromote(t *testing.T) {
	env, a := newEnv(t)

	req := SyncRequest{Path: "prices.xlsx", Source: "monthly", Promote: true}

	env.OnActivity(a.CaptureSnapshot, mock.Anything, req).
		Return(&SyncResult{SnapshotID: "snap-1", ItemCount: 10, ErrorCount: 1}, nil).Once()
	env.OnActivity(a.PromoteSnapshot, mock.Anything, "snap-1").Return(nil).Once()

	env.ExecuteWorkflow(SnapshotSyncWorkflow, req)

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result SyncResult
	require.NoError(t, env.GetWorkflowResult(&result))
	require.Equal(t, "snap-1", result.SnapshotID)
	require.True(t, result.Promoted)
	env.AssertExpectations(t)
}

func TestSnapshotSyncWorkflowWithoutPromote(t *testing.T) {
	env, a := newEnv(t)

	req := SyncRequest{Path: "prices.csv", Source: "adhoc"}

	env.OnActivity(a.CaptureSnapshot, mock.Anything, req).
		Return(&SyncResult{SnapshotID: "snap-2", ItemCount: 3}, nil).Once()

	env.ExecuteWorkflow(SnapshotSyncWorkflow, req)

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result SyncResult
	require.NoError(t, env.GetWorkflowResult(&result))
	require.False(t, result.Promoted)
	env.AssertExpectations(t)
}
