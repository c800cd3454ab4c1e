package pipeline

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/quote-cli/internal/model"
)

// DrainOptions bounds a drain pass over pending emails.
type DrainOptions struct {
	MaxConcurrent int     // parallel emails, default 4
	RatePerSecond float64 // LLM call pacing, default 2
	BatchSize     int     // pending emails fetched per pass, default 50
}

// DrainStats tallies one drain pass.
type DrainStats struct {
	Processed int
	Quoted    int
	Ignored   int
	Failed    int
}

func (o DrainOptions) withDefaults() DrainOptions {
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = 4
	}
	if o.RatePerSecond <= 0 {
		o.RatePerSecond = 2
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 50
	}
	return o
}

// Drain fetches pending emails and processes them concurrently, pacing
// starts with a rate limiter so a full mailbox does not burst the API.
// Per-email failures are counted, not propagated; only listing errors and
// context cancellation abort the pass.
func (p *Processor) Drain(ctx context.Context, opts DrainOptions) (DrainStats, error) {
	opts = opts.withDefaults()

	var stats DrainStats
	emails, err := p.Store.ListPendingEmails(ctx, opts.BatchSize)
	if err != nil {
		return stats, err
	}
	if len(emails) == 0 {
		return stats, nil
	}

	limiter := rate.NewLimiter(rate.Limit(opts.RatePerSecond), 1)

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(opts.MaxConcurrent)

	var mu sync.Mutex
	for i := range emails {
		email := &emails[i]
		g.Go(func() error {
			if err := limiter.Wait(gCtx); err != nil {
				return err
			}

			status, err := p.ProcessEmail(gCtx, email)
			if err != nil {
				zap.L().Warn("pipeline: email failed",
					zap.String("email_id", email.ID),
					zap.Error(err),
				)
			}

			mu.Lock()
			stats.Processed++
			switch status {
			case model.EmailStatusQuoted:
				stats.Quoted++
			case model.EmailStatusIgnored:
				stats.Ignored++
			case model.EmailStatusFailed:
				stats.Failed++
			}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return stats, err
	}

	zap.L().Info("pipeline: drain pass complete",
		zap.Int("processed", stats.Processed),
		zap.Int("quoted", stats.Quoted),
		zap.Int("ignored", stats.Ignored),
		zap.Int("failed", stats.Failed),
	)
	return stats, nil
}
