package main

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/postsignal/internal/bus"
)

var (
	marketBusURL    string
	marketFormat    string
	marketTimeframe string
	marketCandles   bool
)

var marketCmd = &cobra.Command{
	Use:   "market TOKEN",
	Short: "Show price, 24h range and trade sentiment for a token",
	Long:  "Reads the token's USDT ticker and recent trades through the worker and grades market sentiment. --candles prints OHLC bars for --timeframe instead.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkFormat(marketFormat); err != nil {
			return err
		}
		token := strings.TrimSpace(args[0])
		if token == "" {
			return eris.New("market: token is required")
		}

		ch, release, err := openChannel(cmd.Context(), marketBusURL)
		if err != nil {
			return err
		}
		defer release()

		if marketCandles {
			res, err := bus.Call[bus.CandlesResult](cmd.Context(), ch, bus.GetCandlestickData, bus.CandlesRequest{
				Token:     token,
				Timeframe: marketTimeframe,
			})
			if err != nil {
				return err
			}
			return writeCandles(cmd.OutOrStdout(), marketFormat, strings.ToUpper(token), res.Candles)
		}

		res, err := bus.Call[bus.MarketDataResult](cmd.Context(), ch, bus.GetTokenMarketData, bus.MarketDataRequest{Token: token})
		if err != nil {
			return err
		}
		return writeMarket(cmd.OutOrStdout(), marketFormat, res.MarketData)
	},
}

func init() {
	marketCmd.Flags().StringVar(&marketBusURL, "bus-url", "", "remote worker URL (default: in-process worker)")
	marketCmd.Flags().StringVarP(&marketFormat, "format", "f", formatTable, "output format: table, yaml or json")
	marketCmd.Flags().StringVar(&marketTimeframe, "timeframe", "1H", "candle bar, e.g. 15m, 1H, 4H, 1D")
	marketCmd.Flags().BoolVar(&marketCandles, "candles", false, "print candles instead of the summary")
	rootCmd.AddCommand(marketCmd)
}
