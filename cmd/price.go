package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/quote-cli/internal/store"
)

var (
	priceSKU  string
	priceName string
)

var priceCmd = &cobra.Command{
	Use:   "price",
	Short: "Look up one item's price in the current snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		if priceSKU == "" && priceName == "" {
			return eris.New("--sku or --name is required")
		}

		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		item, err := env.Store.LookupPrice(ctx, priceSKU, priceName)
		if err != nil {
			return err
		}
		if item == nil {
			return eris.New("item not found in current snapshot")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(item)
	},
}

var promoteCmd = &cobra.Command{
	Use:   "promote <snapshot-id>",
	Short: "Promote a pricing snapshot to current",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Store.PromoteSnapshot(ctx, args[0])
		if err != nil {
			if eris.Is(err, store.ErrSnapshotNotFound) {
				return eris.Errorf("snapshot %s not found", args[0])
			}
			return err
		}

		zap.L().Info("snapshot promoted",
			zap.String("current_id", res.CurrentID),
			zap.String("previous_current_id", res.PreviousCurrentID),
		)
		return nil
	},
}

func init() {
	priceCmd.Flags().StringVar(&priceSKU, "sku", "", "item number")
	priceCmd.Flags().StringVar(&priceName, "name", "", "item description")
	rootCmd.AddCommand(priceCmd)
	rootCmd.AddCommand(promoteCmd)
}
