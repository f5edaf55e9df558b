package main

import (
	"fmt"
	"os"

	boshlog "github.com/cloudfoundry/bosh-utils/logger"
	"github.com/spf13/cobra"

	_ "github.com/zstreet87/TopoModelX/backend/cpu"
	"github.com/zstreet87/TopoModelX/internal/config"
	"github.com/zstreet87/TopoModelX/nn"
	"github.com/zstreet87/TopoModelX/simplicial"
)

var version = "0.1.0-dev"

const cliTag = "cli"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "sccn",
		Short: "Simplicial complex convolutional networks",
		Long: `sccn builds a simplicial complex from a list of simplices, runs
SCCN layers over per-rank cell features and stores layer parameters
in a SQLite checkpoint database.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("config", "", "YAML config file (defaults are used when empty)")
	rootCmd.PersistentFlags().String("log-level", "", "Override logging.level (debug, info, warn, error, none)")
	rootCmd.PersistentFlags().String("checkpoint", "", "Override checkpoint.path")

	rootCmd.AddCommand(
		newVersionCmd(),
		newForwardCmd(),
		newResetCmd(),
		newListCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "sccn version %s\n", version)
		},
	}
}

// env bundles what every subcommand needs.
type env struct {
	cfg    *config.Config
	logger boshlog.Logger
}

func loadEnv(cmd *cobra.Command) (*env, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.Logging.Level = lvl
	}
	if cp, _ := cmd.Flags().GetString("checkpoint"); cp != "" {
		cfg.Checkpoint.Path = cp
	}
	level, err := cfg.LogLevel()
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, logger: boshlog.NewWriterLogger(level, cmd.ErrOrStderr())}, nil
}

func (e *env) newModel() (*simplicial.SCCN, error) {
	m := e.cfg.Model
	aggr, err := nn.ParseAggrFunc(m.AggrFunc)
	if err != nil {
		return nil, err
	}
	update, err := nn.ParseActivation(m.UpdateFunc)
	if err != nil {
		return nil, err
	}
	return simplicial.NewSCCN(m.Channels, m.MaxRank, m.Layers, m.OutChannels,
		simplicial.WithAggrFunc(aggr),
		simplicial.WithUpdateFunc(update),
		simplicial.WithAggrNorm(m.AggrNorm),
		simplicial.WithBias(m.Bias),
		simplicial.WithSeed(m.Seed),
		simplicial.WithLogger(e.logger),
	)
}
