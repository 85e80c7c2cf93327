package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/postsignal/internal/bus"
	"github.com/sells-group/postsignal/pkg/dex"
)

var (
	quoteFrom     string
	quoteTo       string
	quoteAmount   string
	quoteSlippage string
	quoteDecimals int32
	quoteBusURL   string
	quoteFormat   string
	tradeWallet   string
)

// quoteRequest builds a request from the shared quote/trade flags.
func quoteRequest() (dex.QuoteRequest, error) {
	amount, err := decimal.NewFromString(quoteAmount)
	if err != nil {
		return dex.QuoteRequest{}, eris.Wrapf(err, "invalid --amount %q", quoteAmount)
	}
	slippage := quoteSlippage
	if slippage == "" {
		slippage = cfg.Dex.Slippage
	}
	return dex.QuoteRequest{
		FromToken:    quoteFrom,
		ToToken:      quoteTo,
		Amount:       amount,
		Slippage:     slippage,
		FromDecimals: quoteDecimals,
	}, nil
}

var quoteCmd = &cobra.Command{
	Use:   "quote",
	Short: "Get a Solana swap quote from the DEX aggregator",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkFormat(quoteFormat); err != nil {
			return err
		}
		if quoteBusURL == "" && cfg.Bus.URL == "" {
			if err := cfg.Validate("quote"); err != nil {
				return err
			}
		}
		req, err := quoteRequest()
		if err != nil {
			return err
		}

		ch, release, err := openChannel(cmd.Context(), quoteBusURL)
		if err != nil {
			return err
		}
		defer release()

		res, err := bus.Call[bus.QuoteResult](cmd.Context(), ch, bus.GetQuote, req)
		if err != nil {
			return err
		}
		return writeQuote(cmd.OutOrStdout(), quoteFormat, res.Quote)
	},
}

var tradeCmd = &cobra.Command{
	Use:   "trade",
	Short: "Build a swap and have the wallet bridge sign it",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkFormat(quoteFormat); err != nil {
			return err
		}
		if tradeWallet == "" {
			return eris.New("--wallet is required")
		}
		if quoteBusURL == "" && cfg.Bus.URL == "" {
			if err := cfg.Validate("trade"); err != nil {
				return err
			}
		}
		req, err := quoteRequest()
		if err != nil {
			return err
		}

		ch, release, err := openChannel(cmd.Context(), quoteBusURL)
		if err != nil {
			return err
		}
		defer release()

		res, err := bus.Call[bus.TradeResult](cmd.Context(), ch, bus.ExecuteTrade, dex.SwapRequest{
			QuoteRequest:      req,
			UserWalletAddress: tradeWallet,
		})
		if err != nil {
			return err
		}
		zap.L().Info("trade signed",
			zap.String("strategy", res.Strategy),
			zap.String("route", fmt.Sprintf("%s->%s", res.Quote.From.Symbol, res.Quote.To.Symbol)),
		)
		if err := writeQuote(cmd.OutOrStdout(), quoteFormat, res.Quote); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", labelStyle.Render("signature"), res.Signature)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{quoteCmd, tradeCmd} {
		c.Flags().StringVar(&quoteFrom, "from", "SOL", "token to sell (symbol or mint address)")
		c.Flags().StringVar(&quoteTo, "to", "USDC", "token to buy (symbol or mint address)")
		c.Flags().StringVar(&quoteAmount, "amount", "", "amount to sell in human units")
		c.Flags().StringVar(&quoteSlippage, "slippage", "", "slippage fraction (default from config)")
		c.Flags().Int32Var(&quoteDecimals, "decimals", 0, "decimals of --from when it is not a known token")
		c.Flags().StringVar(&quoteBusURL, "bus-url", "", "remote worker URL (default: in-process worker)")
		c.Flags().StringVarP(&quoteFormat, "format", "f", formatTable, "output format: table, yaml or json")
		_ = c.MarkFlagRequired("amount")
	}
	tradeCmd.Flags().StringVar(&tradeWallet, "wallet", "", "wallet address that signs the swap")
	rootCmd.AddCommand(quoteCmd, tradeCmd)
}
