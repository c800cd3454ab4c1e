package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/quote-cli/internal/extract"
	"github.com/sells-group/quote-cli/internal/jobs"
	anthropicpkg "github.com/sells-group/quote-cli/pkg/anthropic"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the Temporal worker for the email and snapshot workflows",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("extract"); err != nil {
			return err
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		tc, err := jobs.NewClient(ctx, cfg.Temporal)
		if err != nil {
			return err
		}
		defer tc.Close()

		acts := &jobs.Activities{
			Store:     env.Store,
			Extractor: extract.NewExtractor(anthropicpkg.NewClient(cfg.Anthropic.Key), cfg.Anthropic),
			Resolver:  env.Resolver,
		}

		return jobs.RunWorker(ctx, tc, cfg.Temporal, acts)
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
