package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/quote-cli/internal/pipeline"
)

var (
	inboxConcurrency int
	inboxRate        float64
	inboxBatch       int
)

var inboxCmd = &cobra.Command{
	Use:   "inbox",
	Short: "Inspect and drain pending inbound emails",
}

var inboxDrainCmd = &cobra.Command{
	Use:   "drain",
	Short: "Classify and quote all pending emails",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		proc, err := initProcessor(env)
		if err != nil {
			return err
		}

		opts := pipeline.DrainOptions{
			MaxConcurrent: cfg.Inbox.MaxConcurrent,
			RatePerSecond: cfg.Inbox.RatePerSecond,
			BatchSize:     cfg.Inbox.BatchSize,
		}
		if inboxConcurrency > 0 {
			opts.MaxConcurrent = inboxConcurrency
		}
		if inboxRate > 0 {
			opts.RatePerSecond = inboxRate
		}
		if inboxBatch > 0 {
			opts.BatchSize = inboxBatch
		}

		stats, err := proc.Drain(ctx, opts)
		if err != nil {
			return err
		}

		zap.L().Info("inbox drained",
			zap.Int("processed", stats.Processed),
			zap.Int("quoted", stats.Quoted),
			zap.Int("ignored", stats.Ignored),
			zap.Int("failed", stats.Failed),
		)
		return nil
	},
}

var inboxListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending emails",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		limit := inboxBatch
		if limit <= 0 {
			limit = cfg.Inbox.BatchSize
		}
		emails, err := env.Store.ListPendingEmails(ctx, limit)
		if err != nil {
			return err
		}

		for _, e := range emails {
			zap.L().Info("pending email",
				zap.String("id", e.ID),
				zap.String("from", e.From),
				zap.String("subject", e.Subject),
				zap.Time("received_at", e.ReceivedAt),
			)
		}
		zap.L().Info("pending emails", zap.Int("count", len(emails)))
		return nil
	},
}

func init() {
	inboxDrainCmd.Flags().IntVar(&inboxConcurrency, "concurrency", 0, "parallel emails (default from config)")
	inboxDrainCmd.Flags().Float64Var(&inboxRate, "rate", 0, "LLM calls per second (default from config)")
	inboxDrainCmd.Flags().IntVar(&inboxBatch, "batch", 0, "max emails per pass (default from config)")
	inboxCmd.AddCommand(inboxDrainCmd)
	inboxCmd.AddCommand(inboxListCmd)
	rootCmd.AddCommand(inboxCmd)
}
