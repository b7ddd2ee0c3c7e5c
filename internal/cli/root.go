// Package cli implements kpictl, which computes KPI reports offline from spreadsheet exports.
package cli

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nadmax/opskpi/internal/config"
	"github.com/nadmax/opskpi/internal/logger"
)

type options struct {
	configPath string
	verbose    bool
	cfg        config.Config
	log        *zap.Logger
}

func NewRootCmd(version string) *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:          "kpictl",
		Short:        "Compute operations KPIs from task and SLA spreadsheet exports",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			opts.cfg = cfg
			opts.log = logger.Console(opts.verbose)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Rules file (default: opskpi.yaml, env: OPSKPI_CONFIG)")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log progress to stderr")

	cmd.AddCommand(newKindsCmd())
	cmd.AddCommand(newReportCmd(opts))
	cmd.AddCommand(newInspectCmd(opts))

	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	cmd.SetVersionTemplate("{{.Version}}\n")
	if version == "" {
		version = "dev"
	}
	cmd.Version = version

	return cmd
}
