package commands

import (
	"context"
	"fmt"
	"strings"

	businessflow "github.com/amirphl/freightdesk/business_flow"
	"github.com/amirphl/freightdesk/utils"
	"github.com/spf13/cobra"
)

func newRecordsCmd(rt *Runtime) *cobra.Command {
	var (
		query  businessflow.RecordQuery
		all    bool
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "records",
		Short: "List rate records for a customer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			query.ActiveOnly = !all

			engine, closeFn, err := rt.engine()
			if err != nil {
				return err
			}
			defer closeFn()

			ctx, cancel := context.WithTimeout(cmd.Context(), utils.DefaultRequestTimeout)
			defer cancel()

			records, err := engine.Importer.ListRecords(ctx, query)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return printJSON(out, records)
			}

			tw := newTable(out)
			fmt.Fprintln(tw, "ID\tTYPE\tPRIORITY\tCITY\tPROVINCE\tPOSTAL\tMIN\tLTL\tATTRIBUTES")
			for _, r := range records {
				attrs := make([]string, 0, len(r.Attributes))
				for _, a := range r.Attributes {
					attrs = append(attrs, a.Name+"="+a.Value)
				}
				minRate, ltl := "-", "-"
				if r.MinRate.Valid {
					minRate = r.MinRate.Decimal.String()
				}
				if r.LTL.Valid {
					ltl = r.LTL.Decimal.String()
				}
				fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
					r.ID, r.Type, r.PrioritySequence,
					orDash(r.DestinationCity), orDash(r.Province), orDash(r.PostalCode),
					minRate, ltl, strings.Join(attrs, " "))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().UintVar(&query.CustomerID, "customer", 0, "customer id (required)")
	cmd.Flags().StringVar(&query.Tab, "type", "all", "service type or all")
	cmd.Flags().StringVar(&query.BatchID, "batch", "", "only records from this import batch")
	cmd.Flags().IntVar(&query.Limit, "limit", 100, "maximum records to list")
	cmd.Flags().BoolVar(&all, "all", false, "include inactive records")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the records as JSON")
	_ = cmd.MarkFlagRequired("customer")
	return cmd
}
