package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"MT5Hub/internal/simulator"
	xhttp "MT5Hub/pkg/http"
	applogger "MT5Hub/pkg/logger"
)

var (
	simURL      string
	simRounds   int
	simInterval time.Duration
	simStep     time.Duration
)

// simulateCmd generates bot traffic.
var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Send signed bot traffic to a running hub",
	Long: `Act as every bot of the configured roster. Each round sends a heartbeat, a balance
report and two signals, and checks the signature of every reply.

Examples:
  mt5hub simulate                              # Run until interrupted
  mt5hub simulate --rounds 3 --interval 2s     # Three quick rounds
  mt5hub simulate --url http://hub:8080`,
	RunE: runSimulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)

	simulateCmd.Flags().StringVar(&simURL, "url", "", "Hub base URL (default: http://localhost:<server.port>)")
	simulateCmd.Flags().IntVar(&simRounds, "rounds", 0, "Rounds per bot, 0 runs until interrupted")
	simulateCmd.Flags().DurationVar(&simInterval, "interval", 0, "Pause between rounds (default: half the heartbeat timeout)")
	simulateCmd.Flags().DurationVar(&simStep, "step", time.Second, "Pause between requests of a round")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}
	l, err := applogger.New(&applogger.Config{Level: cfg.Log.Level, Format: "console", Output: "stdout"})
	if err != nil {
		return err
	}

	url := simURL
	if url == "" {
		url = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
	}
	interval := simInterval
	if interval == 0 {
		interval = cfg.HeartbeatTimeout() / 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sim := simulator.New(
		xhttp.NewClient(xhttp.WithBaseURL(url), xhttp.WithTimeout(10*time.Second)),
		simulator.Config{
			Secret:   cfg.Auth.Secret,
			BotIDs:   cfg.Runtime.BotIDs,
			Interval: interval,
			Step:     simStep,
			Rounds:   simRounds,
		},
		l,
	)
	l.Info("simulation started", applogger.String("url", url), applogger.Ints("bot_ids", cfg.Runtime.BotIDs))

	st, err := sim.Run(ctx)
	l.Info("simulation finished",
		applogger.Int64("sent", st.Sent),
		applogger.Int64("ok", st.OK),
		applogger.Int64("failed", st.Failed),
		applogger.Int64("bad_reply_signatures", st.BadReplySig),
	)
	if err != nil {
		return err
	}
	if st.BadReplySig > 0 {
		return fmt.Errorf("%d replies had an invalid signature", st.BadReplySig)
	}
	return nil
}
