package commands

import (
	"fmt"
	"os"

	businessflow "github.com/amirphl/freightdesk/business_flow"
	"github.com/spf13/cobra"
)

func newTemplateCmd(_ *Runtime) *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "template",
		Short: "Write an .xlsx rate sheet template with the recognized headings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := businessflow.BuildRateSheetTemplate()
			if err != nil {
				return err
			}
			if err := os.WriteFile(path, raw, 0o644); err != nil {
				return fmt.Errorf("writing template: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "template written to %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&path, "out", "o", "rate_sheet_template.xlsx", "output file")
	return cmd
}
