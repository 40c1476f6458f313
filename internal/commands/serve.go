package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"MT5Hub/internal/di"
)

var (
	servePort     int
	serveHost     string
	serveLogLevel string
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the telemetry hub",
	Long: `Start the hub: the signed bot endpoints, the operator API, the balance export
and the periodic change reporter.

Examples:
  mt5hub serve                         # Start with config/config.yaml
  mt5hub serve --port 9090             # Override the listen port
  mt5hub serve -c prod.yaml -l debug   # Other config, debug logging`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Server port (overrides config)")
	serveCmd.Flags().StringVarP(&serveHost, "host", "H", "", "Server host (overrides config)")
	serveCmd.Flags().StringVarP(&serveLogLevel, "log-level", "l", "", "Log level (debug, info, warn, error)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}
	if serveHost != "" {
		cfg.Server.Host = serveHost
	}
	if serveLogLevel != "" {
		cfg.Log.Level = serveLogLevel
	}

	app, err := di.InitializeApp(cfg)
	if err != nil {
		return fmt.Errorf("app initialization failed: %w", err)
	}
	return app.Run()
}
