package commands

import (
	"context"
	"fmt"

	businessflow "github.com/amirphl/freightdesk/business_flow"
	"github.com/amirphl/freightdesk/utils"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func newResolveCmd(rt *Runtime) *cobra.Command {
	var (
		customerID uint
		rateType   string
		shipment   businessflow.Shipment
		weight     string
		debug      bool
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Price a shipment against the active rate records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if weight != "" {
				w, err := decimal.NewFromString(weight)
				if err != nil {
					return fmt.Errorf("invalid --weight %q: %w", weight, err)
				}
				shipment.Weight = w
			}
			if debug {
				rt.cfg.RateEngine.DebugMode = true
			}

			engine, closeFn, err := rt.engine()
			if err != nil {
				return err
			}
			defer closeFn()

			ctx, cancel := context.WithTimeout(cmd.Context(), utils.DefaultRequestTimeout)
			defer cancel()

			decision, err := engine.Resolver.Resolve(ctx, customerID, rateType, shipment)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return printJSON(out, decision)
			}

			if !decision.Matched {
				fmt.Fprintln(out, "no match")
			} else {
				fmt.Fprintf(out, "record %d (%s) matched on %s\n", decision.RecordID, orDash(decision.RateCode), decision.MatchedOn)
				fmt.Fprintf(out, "price %s via %s", decision.Price.StringFixed(utils.MoneyScale), decision.Bracket)
				if decision.MinApplied {
					fmt.Fprint(out, " (minimum applied)")
				}
				fmt.Fprintln(out)
			}

			if len(decision.Trace) > 0 {
				tw := newTable(out)
				fmt.Fprintln(tw, "RECORD\tPRIORITY\tOUTCOME\tDETAIL")
				for _, e := range decision.Trace {
					fmt.Fprintf(tw, "%d\t%d\t%s\t%s\n", e.RecordID, e.PrioritySequence, e.Outcome, e.Detail)
				}
				return tw.Flush()
			}
			return nil
		},
	}

	cmd.Flags().UintVar(&customerID, "customer", 0, "customer id (required)")
	cmd.Flags().StringVar(&rateType, "type", "", "service type (required)")
	cmd.Flags().StringVar(&shipment.DestinationCity, "city", "", "destination city")
	cmd.Flags().StringVar(&shipment.Province, "province", "", "destination province")
	cmd.Flags().StringVar(&shipment.PostalCode, "postal-code", "", "destination postal code")
	cmd.Flags().StringVar(&weight, "weight", "", "shipment weight")
	cmd.Flags().IntVar(&shipment.SkidCount, "skids", 0, "number of skids")
	cmd.Flags().StringToStringVar(&shipment.ServiceAttributes, "attr", nil, "required service attribute, name=value (repeatable)")
	cmd.Flags().BoolVar(&debug, "debug", false, "print the per-candidate trace")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the decision as JSON")
	_ = cmd.MarkFlagRequired("customer")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}
