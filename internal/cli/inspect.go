package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nadmax/opskpi/internal/repository"
)

func newInspectCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file>",
		Short: "Show which columns an export carries and which rows would be quarantined",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := opts.cfg.Location()
			if err != nil {
				return err
			}
			result, err := readFile(args[0], loc)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "rows: %d\n", result.Table.Len())
			for _, name := range repository.ColumnNames(result.Table) {
				_, _ = fmt.Fprintf(out, "column: %s\n", name)
			}
			for _, name := range result.Ignored {
				_, _ = fmt.Fprintf(out, "ignored: %s\n", name)
			}
			for _, q := range result.Quarantine {
				_, _ = fmt.Fprintf(out, "quarantined line %d: %s\n", q.Line, q.Reason)
			}
			return nil
		},
	}
}
