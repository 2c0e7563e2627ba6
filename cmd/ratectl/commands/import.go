package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/amirphl/freightdesk/models"
	"github.com/amirphl/freightdesk/utils"
	"github.com/spf13/cobra"
)

func newImportCmd(rt *Runtime) *cobra.Command {
	var (
		customerID   uint
		rateType     string
		skidByWeight bool
		asJSON       bool
	)

	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Import an .xlsx or .csv rate sheet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening rate sheet: %w", err)
			}
			defer f.Close()

			engine, closeFn, err := rt.engine()
			if err != nil {
				return err
			}
			defer closeFn()

			ctx, cancel := context.WithTimeout(cmd.Context(), utils.ImportRequestTimeout)
			defer cancel()

			res, err := engine.Importer.ImportFile(ctx, customerID, rateType, skidByWeight, filepath.Base(args[0]), f)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				if err := printJSON(out, res); err != nil {
					return err
				}
			} else {
				fmt.Fprintf(out, "batch %s %s: %d rows, %d records, %d attributes\n",
					res.BatchID, res.Status, res.RowCount, res.RecordCount, res.AttributeCount)
				for _, e := range res.Errors {
					fmt.Fprintf(out, "  row %d: %s\n", e.Row, e.Error)
				}
				if res.Cancelled {
					fmt.Fprintln(out, "  import was cancelled before the last row")
				}
			}

			if res.Status == models.ImportBatchStatusFailed {
				return fmt.Errorf("import batch %s failed", res.BatchID)
			}
			return nil
		},
	}

	cmd.Flags().UintVar(&customerID, "customer", 0, "customer id (required)")
	cmd.Flags().StringVar(&rateType, "type", "", "service type, e.g. LTL or FTL (required)")
	cmd.Flags().BoolVar(&skidByWeight, "skid-by-weight", false, "bracket headings are weight thresholds")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	_ = cmd.MarkFlagRequired("customer")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}
