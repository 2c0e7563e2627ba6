package commands

import (
	"context"
	"fmt"

	"github.com/amirphl/freightdesk/utils"
	"github.com/spf13/cobra"
)

func newCacheCmd(rt *Runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the rate lookup cache",
	}
	cmd.AddCommand(newCacheInvalidateCmd(rt), newCacheWarmCmd(rt))
	return cmd
}

func newCacheInvalidateCmd(rt *Runtime) *cobra.Command {
	var (
		customerID uint
		rateType   string
	)

	cmd := &cobra.Command{
		Use:   "invalidate",
		Short: "Drop the cached records for a customer and type",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, closeFn, err := rt.engine()
			if err != nil {
				return err
			}
			defer closeFn()

			ctx, cancel := context.WithTimeout(cmd.Context(), utils.DefaultRequestTimeout)
			defer cancel()

			if err := engine.Importer.InvalidateCache(ctx, customerID, rateType); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cache invalidated for customer %d type %s\n", customerID, rateType)
			return nil
		},
	}

	cmd.Flags().UintVar(&customerID, "customer", 0, "customer id (required)")
	cmd.Flags().StringVar(&rateType, "type", "", "service type (required)")
	_ = cmd.MarkFlagRequired("customer")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

// newCacheWarmCmd forces a rebuild, which is only useful with a shared
// Redis cache store.
func newCacheWarmCmd(rt *Runtime) *cobra.Command {
	var (
		customerID uint
		rateType   string
	)

	cmd := &cobra.Command{
		Use:   "warm",
		Short: "Rebuild the cached records for a customer and type",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, closeFn, err := rt.engine()
			if err != nil {
				return err
			}
			defer closeFn()

			ctx, cancel := context.WithTimeout(cmd.Context(), utils.DefaultRequestTimeout)
			defer cancel()

			records, err := engine.Cache.Rebuild(ctx, customerID, rateType)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cached %d records for customer %d type %s\n", len(records), customerID, rateType)
			return nil
		},
	}

	cmd.Flags().UintVar(&customerID, "customer", 0, "customer id (required)")
	cmd.Flags().StringVar(&rateType, "type", "", "service type (required)")
	_ = cmd.MarkFlagRequired("customer")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}
