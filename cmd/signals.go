package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/postsignal/internal/bus"
	"github.com/sells-group/postsignal/internal/coordinator"
)

var (
	signalsBusURL string
	signalsFormat string
	signalsLimit  int
)

var signalsCmd = &cobra.Command{
	Use:   "signals",
	Short: "Inspect and reset the signal ledger",
}

var signalsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the most recent signals, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkFormat(signalsFormat); err != nil {
			return err
		}
		ch, release, err := openChannel(cmd.Context(), signalsBusURL)
		if err != nil {
			return err
		}
		defer release()

		res, err := bus.Call[bus.SignalsResult](cmd.Context(), ch, bus.GetRecentSignals, nil)
		if err != nil {
			return err
		}
		entries := res.Signals
		if signalsLimit > 0 && len(entries) > signalsLimit {
			entries = entries[:signalsLimit]
		}
		return writeEntries(cmd.OutOrStdout(), signalsFormat, entries)
	},
}

var signalsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show signal counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkFormat(signalsFormat); err != nil {
			return err
		}
		ch, release, err := openChannel(cmd.Context(), signalsBusURL)
		if err != nil {
			return err
		}
		defer release()

		res, err := bus.Call[bus.StatsResult](cmd.Context(), ch, bus.GetStats, nil)
		if err != nil {
			return err
		}
		return writeStats(cmd.OutOrStdout(), signalsFormat, res.Stats)
	},
}

var signalsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete recorded signals and reset counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		ch, release, err := openChannel(cmd.Context(), signalsBusURL)
		if err != nil {
			return err
		}
		defer release()

		if _, err := bus.Call[struct{}](cmd.Context(), ch, bus.ClearData, nil); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "signal ledger cleared")
		return nil
	},
}

var signalsRedriveCmd = &cobra.Command{
	Use:   "redrive",
	Short: "Resend analysis requests that were abandoned during a scan",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkFormat(signalsFormat); err != nil {
			return err
		}
		ch, dlq, release, err := openScanChannel(cmd.Context(), signalsBusURL)
		if err != nil {
			return err
		}
		defer release()

		coord := coordinator.New(ch, nil, cfg.Coordinator, coordinator.WithDeadLetters(dlq))
		res, err := coord.Redrive(cmd.Context(), signalsLimit)
		if err != nil {
			return err
		}
		remaining, err := dlq.CountDLQ(cmd.Context())
		if err != nil {
			return err
		}
		return writeRedrive(cmd.OutOrStdout(), signalsFormat, res, remaining)
	},
}

func init() {
	signalsCmd.PersistentFlags().StringVar(&signalsBusURL, "bus-url", "", "remote worker URL (default: in-process worker)")
	signalsCmd.PersistentFlags().StringVarP(&signalsFormat, "format", "f", formatTable, "output format: table, yaml or json")
	signalsListCmd.Flags().IntVar(&signalsLimit, "limit", 0, "show at most this many signals (0 = all)")
	signalsRedriveCmd.Flags().IntVar(&signalsLimit, "limit", 0, "resend at most this many requests (0 = default batch)")

	signalsCmd.AddCommand(signalsListCmd, signalsStatsCmd, signalsClearCmd, signalsRedriveCmd)
	rootCmd.AddCommand(signalsCmd)
}
