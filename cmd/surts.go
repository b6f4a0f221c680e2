package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newSurtsCmd creates the 'surts' subcommand, which exports the SURT
// prefixes every prefix rule holds.
func newSurtsCmd() *cobra.Command {
	var dump bool
	cmd := &cobra.Command{
		Use:   "surts",
		Short: "Export the scope's SURT prefixes",
		Long: `Writes each SURT prefix rule's prefixes to stdout, one section per rule.
With --dump the prefixes are written to the configured dump backend and
the resulting location is printed instead.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			sc := appInstance.Scope()
			if !dump {
				return sc.ExportSurts(cmd.OutOrStdout())
			}
			uri, err := sc.DumpSurts(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), uri)
			return err
		},
	}
	cmd.Flags().BoolVar(&dump, "dump", false, "write to the dump backend instead of stdout")
	return cmd
}
