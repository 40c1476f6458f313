package commands

import (
	"github.com/spf13/cobra"

	"MT5Hub/pkg/config"
)

var (
	configPath string
	verbose    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "mt5hub",
	Short: "Telemetry hub for a fleet of MT5 trading bots",
	Long: `mt5hub receives signed heartbeats, balance reports and trade signals from MT5 bots,
keeps the fleet state in memory and emits debounced balance, connection and signal reports.

Commands:
• serve     run the hub (HTTP API, change reporter, notifier)
• sign      print the signed headers for a request body
• simulate  generate signed bot traffic against a running hub`,
	Version:       "1.0.0",
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config/config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}
