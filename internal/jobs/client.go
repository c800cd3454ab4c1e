package jobs

import (
	"context"

	"github.com/rotisserie/eris"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/sells-group/quote-cli/internal/config"
)

// NewClient dials the Temporal frontend.
func NewClient(ctx context.Context, cfg config.TemporalConfig) (client.Client, error) {
	c, err := client.DialContext(ctx, client.Options{
		HostPort:  cfg.HostPort,
		Namespace: cfg.Namespace,
		Logger:    &zapLogger{l: zap.L().Sugar()},
	})
	if err != nil {
		return nil, eris.Wrapf(err, "jobs: dial temporal %s", cfg.HostPort)
	}
	return c, nil
}

// StartEmailQuote enqueues the pipeline workflow for one email. The
// workflow id is derived from the email id so duplicate webhook deliveries
// collapse onto the running execution.
func StartEmailQuote(ctx context.Context, c client.Client, taskQueue, emailID string) error {
	_, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:                    "email-quote-" + emailID,
		TaskQueue:             taskQueue,
		WorkflowIDReusePolicy: enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
	}, EmailQuoteWorkflowName, emailID)
	if err != nil {
		return eris.Wrapf(err, "jobs: start email workflow %s", emailID)
	}
	return nil
}

// zapLogger adapts zap to the Temporal SDK logger interface.
type zapLogger struct {
	l *zap.SugaredLogger
}

func (z *zapLogger) Debug(msg string, keyvals ...interface{}) { z.l.Debugw(msg, keyvals...) }
func (z *zapLogger) Info(msg string, keyvals ...interface{})  { z.l.Infow(msg, keyvals...) }
func (z *zapLogger) Warn(msg string, keyvals ...interface{})  { z.l.Warnw(msg, keyvals...) }
func (z *zapLogger) Error(msg string, keyvals ...interface{}) { z.l.Errorw(msg, keyvals...) }
