package main

import (
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	syncSheetName string
	syncSource    string
	syncPromote   bool
)

var syncCmd = &cobra.Command{
	Use:   "sync [file]",
	Short: "Capture a pricing snapshot from an XLSX or CSV price sheet",
	Long:  "Reads a price sheet, captures an immutable snapshot with per-row errors, and optionally promotes it to current.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		path := cfg.Sheet.Path
		if len(args) > 0 {
			path = args[0]
		}
		if path == "" {
			return cfg.Validate("sync")
		}

		sheetName := syncSheetName
		if sheetName == "" {
			sheetName = cfg.Sheet.SheetName
		}
		source := syncSource
		if source == "" {
			source = cfg.Sheet.Source
		}
		if source == "" {
			source = filepath.Base(path)
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		snap, err := captureSheet(path, sheetName, source)
		if err != nil {
			return err
		}

		for _, capErr := range snap.Errors {
			zap.L().Warn("sync: row excluded",
				zap.Int("row", capErr.Row),
				zap.String("reason", capErr.Reason),
			)
		}

		id, err := env.Store.CreatePricingSnapshot(ctx, snap)
		if err != nil {
			return err
		}

		zap.L().Info("sync: snapshot captured",
			zap.String("snapshot_id", id),
			zap.String("source", source),
			zap.Int("items", snap.ItemCount),
			zap.Int("rows_excluded", len(snap.Errors)),
		)

		if syncPromote {
			res, err := env.Store.PromoteSnapshot(ctx, id)
			if err != nil {
				return err
			}
			zap.L().Info("sync: snapshot promoted",
				zap.String("current_id", res.CurrentID),
				zap.String("previous_current_id", res.PreviousCurrentID),
			)
		}

		return nil
	},
}

func isCSVPath(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".csv")
}

func init() {
	syncCmd.Flags().StringVar(&syncSheetName, "sheet", "", "workbook tab to read (default from config)")
	syncCmd.Flags().StringVar(&syncSource, "source", "", "origin identifier recorded on the snapshot")
	syncCmd.Flags().BoolVar(&syncPromote, "promote", false, "promote the new snapshot to current")
	rootCmd.AddCommand(syncCmd)
}
