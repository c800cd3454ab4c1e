package jobs

import (
	"context"

	"github.com/rotisserie/eris"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
	"go.uber.org/zap"

	"github.com/sells-group/quote-cli/internal/config"
)

// RunWorker registers the workflows and activities and polls the task
// queue until ctx is canceled.
func RunWorker(ctx context.Context, c client.Client, cfg config.TemporalConfig, acts *Activities) error {
	w := worker.New(c, cfg.TaskQueue, worker.Options{})

	w.RegisterWorkflowWithOptions(EmailQuoteWorkflow, workflow.RegisterOptions{Name: EmailQuoteWorkflowName})
	w.RegisterWorkflowWithOptions(SnapshotSyncWorkflow, workflow.RegisterOptions{Name: SnapshotSyncWorkflowName})
	w.RegisterActivityWithOptions(acts.MarkEmailStatus, activity.RegisterOptions{})
	w.RegisterActivityWithOptions(acts.ExtractEmail, activity.RegisterOptions{})
	w.RegisterActivityWithOptions(acts.GeneratePreview, activity.RegisterOptions{})
	w.RegisterActivityWithOptions(acts.SaveQuoteRequest, activity.RegisterOptions{})
	w.RegisterActivityWithOptions(acts.CaptureSnapshot, activity.RegisterOptions{})
	w.RegisterActivityWithOptions(acts.PromoteSnapshot, activity.RegisterOptions{})

	if err := w.Start(); err != nil {
		return eris.Wrap(err, "jobs: start worker")
	}

	zap.L().Info("jobs: worker started",
		zap.String("task_queue", cfg.TaskQueue),
		zap.String("namespace", cfg.Namespace),
	)

	<-ctx.Done()
	w.Stop()
	return nil
}
