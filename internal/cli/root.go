// Package cli implements the tenderwatch command line.
package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/opensource-finance/tenderwatch/internal/config"
	"github.com/opensource-finance/tenderwatch/internal/domain"
)

// BuildInfo is stamped into the binary via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildDate string
}

// app carries state shared by every subcommand of one root command.
type app struct {
	build   BuildInfo
	v       *viper.Viper
	cfgFile string
	cfg     *domain.Config
}

// NewRootCmd builds the command tree. Each call gets its own viper instance.
func NewRootCmd(build BuildInfo) *cobra.Command {
	a := &app{build: build, v: viper.New()}

	root := &cobra.Command{
		Use:   "tenderwatch",
		Short: "TenderWatch - fraud-risk scoring for procurement payment claims",
		Long: `TenderWatch scores procurement payment claims for fraud risk.

Each claim is checked by a set of independent detectors against the
vendor's history. The resulting signals are aggregated into a 0-100 score,
a risk level and an APPROVE, REVIEW or BLOCK recommendation.

Configuration hierarchy (highest to lowest priority):
  1. CLI flags
  2. Environment variables (TENDERWATCH_*)
  3. Config file (./tenderwatch.yaml or ~/.tenderwatch/tenderwatch.yaml)
  4. Tier preset (community or pro)`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default: ./tenderwatch.yaml, $HOME/.tenderwatch/tenderwatch.yaml)")
	root.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	_ = a.v.BindPFlag("logging.level", root.PersistentFlags().Lookup("log-level"))

	root.AddCommand(
		newServeCmd(a),
		newAnalyzeCmd(a),
		newPolicyCmd(a),
		newConfigCmd(a),
		newVersionCmd(a),
	)
	return root
}

// Execute runs the root command.
func Execute(build BuildInfo) error {
	return NewRootCmd(build).Execute()
}

// init loads configuration and installs the process logger. Logs go to
// stderr so command output on stdout stays machine readable.
func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	logger, err := config.NewLogger(cfg.Logging, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	if used := a.v.ConfigFileUsed(); used != "" {
		slog.Debug("using config file", "path", used)
	}
	a.cfg = cfg
	return nil
}

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "tenderwatch %s (commit %s, built %s)\n",
				a.build.Version, a.build.Commit, a.build.BuildDate)
			return err
		},
	}
}
