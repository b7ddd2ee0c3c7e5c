package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nadmax/opskpi/internal/ingest"
	"github.com/nadmax/opskpi/internal/kpi"
	"github.com/nadmax/opskpi/internal/queue"
	"github.com/nadmax/opskpi/internal/record"
	"github.com/nadmax/opskpi/internal/report"
	"github.com/nadmax/opskpi/internal/repository"
	"github.com/nadmax/opskpi/internal/repository/models"
)

const (
	formatTable = "table"
	localOwner  = "local"
)

func newReportCmd(opts *options) *cobra.Command {
	var (
		inputs []string
		format string
		output string
		params queue.Params
	)

	cmd := &cobra.Command{
		Use:   "report <kind>",
		Short: "Compute a report from one or more spreadsheet exports",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, ok := report.Lookup(args[0])
			if !ok {
				return fmt.Errorf("%w: %s (see 'kpictl kinds')", report.ErrUnknownKind, args[0])
			}
			if format != formatTable && !report.ValidFormat(format) {
				return fmt.Errorf("unsupported format: %s", format)
			}
			if format == report.FormatXLSX && output == "" {
				return errors.New("xlsx output needs --output")
			}
			filter, err := report.ParseFilter(params)
			if err != nil {
				return err
			}
			if err := kind.CheckFilter(filter); err != nil {
				return err
			}

			repo, err := loadInputs(cmd.Context(), opts, kind.Dataset, inputs)
			if err != nil {
				return err
			}

			out, err := report.Compute(cmd.Context(), repo, kpi.New(opts.cfg.Rules), kind, localOwner, filter)
			var missing *record.MissingColumnsError
			if errors.As(err, &missing) {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), missing.Error())
				return nil
			}
			if err != nil {
				return err
			}

			return writeSheet(cmd.OutOrStdout(), format, output, out.Sheet)
		},
	}

	cmd.Flags().StringArrayVarP(&inputs, "input", "i", nil, "CSV or XLSX export to read (repeatable)")
	cmd.Flags().StringVarP(&format, "format", "f", formatTable, "Output format: table, csv, json or xlsx")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to this file instead of stdout")
	cmd.Flags().StringVar(&params.From, "from", "", "First day, YYYY-MM-DD")
	cmd.Flags().StringVar(&params.To, "to", "", "Last day, YYYY-MM-DD")
	cmd.Flags().StringVar(&params.AfterFrom, "after-from", "", "First day of the comparison's after period, YYYY-MM-DD")
	cmd.Flags().StringVar(&params.AfterTo, "after-to", "", "Last day of the comparison's after period, YYYY-MM-DD")
	cmd.Flags().StringVar(&params.Analyst, "analyst", "", "Only rows finished by this analyst")
	cmd.Flags().StringSliceVar(&params.Analysts, "analysts", nil, "Only rows finished by these analysts (default: all)")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}

// loadInputs ingests every file into an in-memory dataset, so overlapping exports are
// de-duplicated the same way uploads are.
func loadInputs(ctx context.Context, opts *options, ds models.Dataset, inputs []string) (*repository.MemoryRepository, error) {
	loc, err := opts.cfg.Location()
	if err != nil {
		return nil, err
	}

	repo := repository.NewMemoryRepository(opts.cfg.ExcludedAnalysts)
	for _, path := range inputs {
		result, err := readFile(path, loc)
		if err != nil {
			return nil, err
		}
		stats, err := repo.Append(ctx, localOwner, ds, result.Table)
		if err != nil {
			return nil, err
		}
		opts.log.Info("input loaded",
			zap.String("path", path),
			zap.Int("inserted", stats.Inserted),
			zap.Int("duplicates", stats.Duplicates),
			zap.Int("filtered", stats.Filtered),
			zap.Int("quarantined", len(result.Quarantine)),
		)
	}
	return repo, nil
}

func readFile(path string, loc *time.Location) (*ingest.Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	result, err := ingest.Read(f, path, loc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return result, nil
}

func writeSheet(stdout io.Writer, format, output string, sheet report.Sheet) (err error) {
	w := stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := f.Close(); err == nil {
				err = closeErr
			}
		}()
		w = f
	}

	if format == formatTable {
		return writeTable(w, sheet)
	}
	return report.Encode(w, format, sheet, time.Now())
}

func writeTable(w io.Writer, sheet report.Sheet) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, row := range sheet.Rows {
		if _, err := fmt.Fprintln(tw, strings.Join(row, "\t")); err != nil {
			return err
		}
	}
	return tw.Flush()
}
