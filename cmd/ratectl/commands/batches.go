package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/amirphl/freightdesk/utils"
	"github.com/spf13/cobra"
)

func newBatchesCmd(rt *Runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batches",
		Short: "List and roll back import batches",
	}
	cmd.AddCommand(newBatchesListCmd(rt), newBatchesRollbackCmd(rt))
	return cmd
}

func newBatchesListCmd(rt *Runtime) *cobra.Command {
	var (
		customerID uint
		rateType   string
		limit      int
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List import batches, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, closeFn, err := rt.engine()
			if err != nil {
				return err
			}
			defer closeFn()

			ctx, cancel := context.WithTimeout(cmd.Context(), utils.DefaultRequestTimeout)
			defer cancel()

			batches, err := engine.Importer.ListBatches(ctx, customerID, rateType, limit, 0)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return printJSON(out, batches)
			}

			tw := newTable(out)
			fmt.Fprintln(tw, "ID\tTYPE\tSTATUS\tROWS\tRECORDS\tFAILED\tCREATED")
			for _, b := range batches {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
					b.ID, b.Type, b.Status, b.RowCount, b.RecordCount, b.FailedRows, b.CreatedAt.UTC().Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().UintVar(&customerID, "customer", 0, "customer id (required)")
	cmd.Flags().StringVar(&rateType, "type", "", "service type (default all)")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum batches to list")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the batches as JSON")
	_ = cmd.MarkFlagRequired("customer")
	return cmd
}

func newBatchesRollbackCmd(rt *Runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "rollback BATCH_ID",
		Short: "Deactivate an active batch and restore the one it superseded",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, closeFn, err := rt.engine()
			if err != nil {
				return err
			}
			defer closeFn()

			ctx, cancel := context.WithTimeout(cmd.Context(), utils.DefaultRequestTimeout)
			defer cancel()

			batch, err := engine.Importer.RollbackBatch(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "batch %s is now %s\n", batch.ID, batch.Status)
			return nil
		},
	}
}
