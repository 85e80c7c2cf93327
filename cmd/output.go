package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/postsignal/internal/coordinator"
	"github.com/sells-group/postsignal/internal/model"
	"github.com/sells-group/postsignal/pkg/dex"
)

// Output formats accepted by --format.
const (
	formatTable = "table"
	formatYAML  = "yaml"
	formatJSON  = "json"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280"))

	buyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981")).
			Bold(true)

	sellStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444")).
			Bold(true)

	avoidStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F59E0B")).
			Bold(true)

	boxStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#3B82F6")).
			Padding(0, 1)
)

func actionStyle(a model.Action) lipgloss.Style {
	switch a {
	case model.ActionBuy:
		return buyStyle
	case model.ActionSell:
		return sellStyle
	default:
		return avoidStyle
	}
}

// postSignal is one annotated post found after a scan.
type postSignal struct {
	PostID string              `json:"post_id" yaml:"post_id"`
	Signal model.TradingSignal `json:"signal" yaml:"signal"`
}

func checkFormat(format string) error {
	switch format {
	case formatTable, formatYAML, formatJSON:
		return nil
	}
	return eris.Errorf("unknown format %q (want table, yaml or json)", format)
}

// encode writes v as yaml or json.
func encode(w io.Writer, format string, v any) error {
	switch format {
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return eris.Wrap(err, "encode yaml")
		}
		return enc.Close()
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(v), "encode json")
	}
	return checkFormat(format)
}

func signalLine(s model.TradingSignal) string {
	line := actionStyle(s.Action).Render(fmt.Sprintf("%-5s", s.Action)) +
		fmt.Sprintf(" %2d/10", s.Confidence)
	if s.Token != "" {
		line += " $" + s.Token
	}
	return line + "  " + s.Explanation
}

// writeEntries prints ledger entries, newest first.
func writeEntries(w io.Writer, format string, entries []model.LedgerEntry) error {
	if format != formatTable {
		return encode(w, format, entries)
	}
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Recent signals (%d)", len(entries))))
	if len(entries) == 0 {
		fmt.Fprintln(w, labelStyle.Render("no signals recorded"))
		return nil
	}
	for _, e := range entries {
		fmt.Fprintf(w, "%s  %s\n", labelStyle.Render(e.CreatedAt.Format("2006-01-02 15:04:05")), signalLine(e.Signal))
	}
	return nil
}

// writePostSignals prints the overlays rendered by a scan.
func writePostSignals(w io.Writer, format string, posts []postSignal) error {
	if format != formatTable {
		return encode(w, format, posts)
	}
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Signals (%d)", len(posts))))
	for _, p := range posts {
		fmt.Fprintf(w, "%s  %s\n", labelStyle.Render(p.PostID), signalLine(p.Signal))
	}
	return nil
}

// writeStats prints the running counters.
func writeStats(w io.Writer, format string, s model.Stats) error {
	if format != formatTable {
		return encode(w, format, s)
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render("Signal stats") + "\n")
	fmt.Fprintf(&b, "%s %d\n", labelStyle.Render("total"), s.TotalSignals)
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("buy  "), buyStyle.Render(fmt.Sprint(s.BuySignals)))
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("sell "), sellStyle.Render(fmt.Sprint(s.SellSignals)))
	fmt.Fprintf(&b, "%s %s", labelStyle.Render("avoid"), avoidStyle.Render(fmt.Sprint(s.AvoidSignals)))
	fmt.Fprintln(w, boxStyle.Render(b.String()))
	return nil
}

// writeQuote prints a routed quote.
func writeQuote(w io.Writer, format string, q dex.Quote) error {
	if format != formatTable {
		return encode(w, format, q)
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("%s → %s", q.From.Symbol, q.To.Symbol)) + "\n")
	fmt.Fprintf(&b, "%s %s %s\n", labelStyle.Render("pay    "), q.From.Amount.String(), q.From.Symbol)
	fmt.Fprintf(&b, "%s %s %s\n", labelStyle.Render("receive"), buyStyle.Render(q.To.Amount.String()), q.To.Symbol)
	fmt.Fprintf(&b, "%s %s", labelStyle.Render("rate   "), q.Rate.StringFixed(6))
	if q.PriceImpact != "" {
		fmt.Fprintf(&b, "\n%s %s%%", labelStyle.Render("impact "), q.PriceImpact)
	}
	if len(q.Routes) > 0 {
		fmt.Fprintf(&b, "\n%s %s", labelStyle.Render("via    "), strings.Join(q.Routes, ", "))
	}
	fmt.Fprintln(w, boxStyle.Render(b.String()))
	return nil
}

func sentimentStyle(s dex.Sentiment) lipgloss.Style {
	switch s {
	case dex.VeryBullish, dex.Bullish:
		return buyStyle
	case dex.VeryBearish, dex.Bearish:
		return sellStyle
	default:
		return avoidStyle
	}
}

// writeMarket prints a token's market summary.
func writeMarket(w io.Writer, format string, md dex.MarketData) error {
	if format != formatTable {
		return encode(w, format, md)
	}
	change := md.PriceChangePercent24h.StringFixed(2) + "%"
	if md.PriceChangePercent24h.IsPositive() {
		change = buyStyle.Render("+" + change)
	} else if md.PriceChangePercent24h.IsNegative() {
		change = sellStyle.Render(change)
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("$"+md.Symbol) + "\n")
	fmt.Fprintf(&b, "%s %s USDT\n", labelStyle.Render("price "), md.Price.String())
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("24h   "), change)
	fmt.Fprintf(&b, "%s %s - %s\n", labelStyle.Render("range "), md.Low24h.String(), md.High24h.String())
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("volume"), md.Volume24h.StringFixed(2))
	fmt.Fprintf(&b, "%s %s  %s", labelStyle.Render("mood  "), sentimentStyle(md.Sentiment).Render(string(md.Sentiment)), md.SentimentReason)
	fmt.Fprintln(w, boxStyle.Render(b.String()))
	return nil
}

// writeCandles prints OHLC bars, oldest first.
func writeCandles(w io.Writer, format, symbol string, candles []dex.Candle) error {
	if format != formatTable {
		return encode(w, format, candles)
	}
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("$%s candles (%d)", symbol, len(candles))))
	for _, c := range candles {
		style := buyStyle
		if c.Close.LessThan(c.Open) {
			style = sellStyle
		}
		fmt.Fprintf(w, "%s  o %s  h %s  l %s  c %s  v %s\n",
			labelStyle.Render(c.Time.Format("2006-01-02 15:04")),
			c.Open.String(), c.High.String(), c.Low.String(),
			style.Render(c.Close.String()), c.Volume.StringFixed(2))
	}
	return nil
}

// writeSettings prints the worker settings.
func writeSettings(w io.Writer, format string, s model.Settings) error {
	if format != formatTable {
		return encode(w, format, s)
	}
	state := buyStyle.Render("enabled")
	if !s.Enabled {
		state = sellStyle.Render("paused")
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render("Settings") + "\n")
	fmt.Fprintf(&b, "%s %s", labelStyle.Render("scanning"), state)
	keys := make([]string, 0, len(s.Preferences))
	for k := range s.Preferences {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n%s %v", labelStyle.Render(k), s.Preferences[k])
	}
	fmt.Fprintln(w, boxStyle.Render(b.String()))
	return nil
}

// writeRedrive prints the outcome of a dead letter redrive.
func writeRedrive(w io.Writer, format string, res coordinator.RedriveResult, remaining int) error {
	if format != formatTable {
		return encode(w, format, map[string]any{"result": res, "remaining": remaining})
	}
	fmt.Fprintf(w, "%s delivered %d, retrying %d, exhausted %d, queued %d\n",
		titleStyle.Render("Redrive"), res.Delivered, res.Retrying, res.Exhausted, remaining)
	return nil
}
