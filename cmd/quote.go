package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/quote-cli/internal/model"
)

var quoteItemsFile string

var quoteCmd = &cobra.Command{
	Use:   "quote",
	Short: "Compute a quotation preview from an items file",
	Long:  `Reads {"items": [{"sku": "...", "name": "...", "quantity": N}, ...]} from a JSON file (or stdin with -) and prints the priced preview.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var in *os.File
		if quoteItemsFile == "" || quoteItemsFile == "-" {
			in = os.Stdin
		} else {
			f, err := os.Open(quoteItemsFile)
			if err != nil {
				return eris.Wrap(err, "open items file")
			}
			defer f.Close()
			in = f
		}

		var req struct {
			Items []model.QuoteInputItem `json:"items"`
		}
		if err := json.NewDecoder(in).Decode(&req); err != nil {
			return eris.Wrap(err, "parse items")
		}
		if req.Items == nil {
			return eris.New("'items' array is required")
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		preview, err := env.Resolver.GenerateQuotationPreview(ctx, req.Items)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(preview)
	},
}

func init() {
	quoteCmd.Flags().StringVarP(&quoteItemsFile, "items", "f", "", "JSON file with requested items (- for stdin)")
	rootCmd.AddCommand(quoteCmd)
}
