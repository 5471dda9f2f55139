// Package cli implements the tripstream command-line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tripstream-systems/tripstream/internal/config"
	"github.com/tripstream-systems/tripstream/internal/logging"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "tripstream",
	Short: "Trip event pipeline",
	Long: `tripstream ingests two-phase trip events, reconciles them into
entity records, quarantines malformed input, and publishes daily KPI
summaries over the completed trips.`,
	Version: "0.1.0",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
}

func initConfig() {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
}

func newLogger(service string) *logging.Logger {
	logger := logging.New(
		logging.ParseLevel(cfg.Logging.Level),
		cfg.Logging.Format,
	).With(logging.Service(service))
	logging.SetDefault(logger)
	return logger
}
