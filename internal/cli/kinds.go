package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nadmax/opskpi/internal/report"
)

func newKindsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "kinds",
		Short: "List the available report kinds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "KIND\tDATASET\tTITLE")
			for _, k := range report.Kinds() {
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", k.Name, k.Dataset, k.Title)
			}
			return tw.Flush()
		},
	}
}
