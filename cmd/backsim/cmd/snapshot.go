package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/backsim/snapshot"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Work with snapshot files",
}

var snapshotInspectCmd = &cobra.Command{
	Use:   "inspect FILE",
	Short: "Print a snapshot's cursor, account and open positions",
	Args:  cobra.ExactArgs(1),
	RunE:  runSnapshotInspect,
}

func init() {
	rootCmd.AddCommand(snapshotCmd)
	snapshotCmd.AddCommand(snapshotInspectCmd)
}

func runSnapshotInspect(cmd *cobra.Command, args []string) error {
	st, err := snapshot.Load(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Run: %s (saved %s)\n", st.RunID, st.SavedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Printf("Cursor: step %d at %s\n", st.Cursor.Index, st.Cursor.Time)
	fmt.Printf("Account: balance %.2f equity %.2f margin %.2f free %.2f\n",
		st.Account.Balance, st.Account.Equity, st.Account.Margin, st.Account.MarginFree)
	fmt.Printf("Tickets issued: %d\n", st.NextTicket-1)
	fmt.Printf("Orders: %d  Deals: %d\n", len(st.Orders), len(st.Deals))

	fmt.Printf("Open positions: %d\n", len(st.OpenTickets))
	for _, ticket := range st.OpenTickets {
		pos, ok := st.Positions[ticket]
		if !ok {
			continue
		}
		fmt.Printf("  #%d %s %s %.2f @ %.5f (current %.5f, profit %.2f)\n",
			pos.Ticket, pos.Symbol, pos.Side, pos.Volume,
			pos.PriceOpen, pos.PriceCurrent, pos.Profit)
	}

	for symbol, ticks := range st.Series {
		fmt.Printf("Series %s: %d ticks\n", symbol, len(ticks))
	}
	return nil
}
