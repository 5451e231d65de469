package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "backsim",
	Short: "A deterministic lockstep backtesting simulator",
	Long: `Backsim replays recorded market data against one or more strategies on a
simulated clock. Strategies advance in lockstep: nobody sees a new step until
everyone has finished the current one, so a run is reproducible tick for tick.

It provides tools for:
  - Running configured backtests with journaling and snapshots
  - Resuming an interrupted run from its latest snapshot
  - Inspecting snapshot files`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}
