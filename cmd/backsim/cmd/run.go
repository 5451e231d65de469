package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/backsim/config"
	"github.com/rustyeddy/backsim/internal/logging"
	"github.com/rustyeddy/backsim/runner"
	"github.com/rustyeddy/backsim/strategy"
	"github.com/rustyeddy/backsim/trade"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute a backtest described by a config file",
	Long: `Run loads a YAML (or JSON) run configuration, builds the market feed from
the configured CSV datasets and drives the whole backtest: strategies in
lockstep, stop triggers and burnout checks per step, journaling and
snapshots in the background.

Example:
  backsim run -c run.yaml -s sma-cross --symbol EURUSD`,
	RunE: runRun,
}

var (
	runConfigPath string
	runStrategy   string
	runSymbol     string
	runSide       string
	runVolume     float64
	runFast       int
	runSlow       int
	runResume     bool
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runConfigPath, "config", "c", "", "path to run config (required)")
	runCmd.Flags().StringVarP(&runStrategy, "strategy", "s", "noop", "strategy name (noop, open-once, sma-cross)")
	runCmd.Flags().StringVar(&runSymbol, "symbol", "", "strategy symbol (defaults to the first configured symbol)")
	runCmd.Flags().StringVar(&runSide, "side", "buy", "open-once: order side (buy, sell)")
	runCmd.Flags().Float64VarP(&runVolume, "volume", "v", 0.1, "order volume in lots")
	runCmd.Flags().IntVar(&runFast, "fast", 20, "sma-cross: fast average period")
	runCmd.Flags().IntVar(&runSlow, "slow", 50, "sma-cross: slow average period")
	runCmd.Flags().BoolVar(&runResume, "resume", false, "resume from the latest snapshot of run.id")

	runCmd.MarkFlagRequired("config")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(runConfigPath)
	if err != nil {
		return err
	}
	if runResume {
		cfg.Snapshot.Resume = true
	}

	log, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer log.Sync()

	symbol := runSymbol
	if symbol == "" {
		symbol = cfg.Symbols[0].Symbol
	}

	r, err := runner.New(cfg, log)
	if err != nil {
		return err
	}
	for i := 0; i < cfg.Run.Participants; i++ {
		s, err := strategyByName(runStrategy, symbol)
		if err != nil {
			return err
		}
		r.AddStrategy(s)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Running %s with strategy: %s\n", r.RunID(), runStrategy)
	res, err := r.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("\nRun complete (%s)\n", res.StopCause)
	fmt.Printf("  Steps: %d\n", res.Steps)
	fmt.Printf("  Trades: %d (%d wins, %d losses)\n", res.Trades, res.Wins, res.Losses)
	fmt.Printf("  Balance: %.2f\n", res.Balance)
	fmt.Printf("  Equity: %.2f\n", res.Equity)
	return nil
}

func strategyByName(name, symbol string) (strategy.Strategy, error) {
	side := trade.Buy
	if strings.EqualFold(runSide, "sell") {
		side = trade.Sell
	}

	switch strings.ToLower(strings.TrimSpace(name)) {
	case "noop", "none":
		return strategy.Noop{}, nil

	case "open-once":
		return &strategy.OpenOnce{
			Symbol: symbol,
			Side:   side,
			Volume: runVolume,
		}, nil

	case "sma-cross", "smacross":
		return &strategy.SMACross{
			Symbol: symbol,
			Fast:   runFast,
			Slow:   runSlow,
			Volume: runVolume,
		}, nil

	default:
		return nil, fmt.Errorf("unknown strategy %q (supported: noop, open-once, sma-cross)", name)
	}
}
