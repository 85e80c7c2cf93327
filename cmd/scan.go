package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/postsignal/internal/bus"
	"github.com/sells-group/postsignal/internal/coordinator"
	"github.com/sells-group/postsignal/internal/dom"
	"github.com/sells-group/postsignal/internal/model"
	"github.com/sells-group/postsignal/internal/scanner"
)

var (
	scanFile   string
	scanURL    string
	scanBusURL string
	scanOut    string
	scanFormat string
	scanFollow bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan a feed page and annotate posts with trading signals",
	Long:  "Loads a saved feed page (--file) or fetches one (--url), analyses every relevant post through the worker, and prints the resulting signals. --out writes the annotated page.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := checkFormat(scanFormat); err != nil {
			return err
		}
		if scanBusURL != "" {
			cfg.Bus.URL = scanBusURL
		}
		if err := cfg.Validate("scan"); err != nil {
			return err
		}

		page, err := loadPage(ctx, scanFile, scanURL)
		if err != nil {
			return err
		}

		ch, dlq, release, err := openScanChannel(ctx, cfg.Bus.URL)
		if err != nil {
			return err
		}
		defer release()

		posts, err := runScan(ctx, page, ch, scanFollow, coordinator.WithDeadLetters(dlq))
		if err != nil {
			return err
		}

		if scanOut != "" {
			html, err := page.HTML()
			if err != nil {
				return err
			}
			if err := os.WriteFile(scanOut, []byte(html), 0o644); err != nil {
				return eris.Wrap(err, "write annotated page")
			}
			zap.L().Info("annotated page written", zap.String("path", scanOut))
		}

		return writePostSignals(cmd.OutOrStdout(), scanFormat, posts)
	},
}

// loadPage parses the feed from a file or URL.
func loadPage(ctx context.Context, file, url string) (*dom.Page, error) {
	switch {
	case file != "" && url != "":
		return nil, eris.New("scan: --file and --url are mutually exclusive")
	case file != "":
		f, err := os.Open(file)
		if err != nil {
			return nil, eris.Wrap(err, "scan: open page")
		}
		defer f.Close() //nolint:errcheck
		return dom.Parse(f)
	case url != "":
		resp, err := resty.New().
			SetTimeout(30 * time.Second).
			R().
			SetContext(ctx).
			SetDoNotParseResponse(true).
			Get(url)
		if err != nil {
			return nil, eris.Wrapf(err, "scan: fetch %s", url)
		}
		body := resp.RawBody()
		defer body.Close() //nolint:errcheck
		if resp.StatusCode() != 200 {
			return nil, eris.Errorf("scan: fetch %s: status %d", url, resp.StatusCode())
		}
		return dom.Parse(body)
	}
	return nil, eris.New("scan: one of --file or --url is required")
}

// runScan runs the scanner, coordinator, janitor and heartbeat over page.
// Without follow it returns once every queued post has been analysed; with
// follow it keeps watching the page until ctx is done. A heartbeat reply
// carrying the worker's enabled setting pauses or resumes the scanner.
func runScan(ctx context.Context, page *dom.Page, ch bus.Channel, follow bool, opts ...coordinator.Option) ([]postSignal, error) {
	var coord *coordinator.Coordinator
	s := scanner.New(page, scanner.SubmitterFunc(func(ctx context.Context, c model.DetectedContent, id string) bool {
		return coord.Submit(ctx, c, id)
	}), cfg.Scan)
	coord = coordinator.New(ch, s, cfg.Coordinator, opts...)
	janitor := scanner.NewJanitor(s.Tracker(), coord, cfg.Scan.JanitorInterval)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return s.Run(gctx) })
	g.Go(func() error { return janitor.Run(gctx) })
	g.Go(func() error {
		return coord.Heartbeat(gctx, 0, func(r bus.PingResult) {
			if r.Enabled != nil {
				s.SetEnabled(*r.Enabled)
			}
		})
	})

	var waitErr error
	if follow {
		<-ctx.Done()
	} else {
		waitErr = s.WaitIdle(ctx)
	}
	coord.Wait()
	cancel()
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if waitErr != nil && !errors.Is(waitErr, context.Canceled) {
		return nil, eris.Wrap(waitErr, "scan: wait for idle")
	}

	return collectSignals(page, s.Config().OverlayClass), nil
}

// collectSignals reads the overlays rendered into page.
func collectSignals(page *dom.Page, overlayClass string) []postSignal {
	var out []postSignal
	for _, el := range page.QueryAll("." + overlayClass) {
		id, _ := el.Attr("data-post-id")
		action, _ := el.Attr("data-action")
		conf, _ := el.Attr("data-confidence")
		confidence, _ := strconv.Atoi(conf)

		sig := model.TradingSignal{
			Action:     model.NormalizeAction(action),
			Confidence: confidence,
		}
		if tok := el.First(".postsignal-token"); tok != nil {
			sig.Token = strings.TrimPrefix(tok.Text(), "$")
		}
		if expl := el.First(".postsignal-explanation"); expl != nil {
			sig.Explanation = expl.Text()
		}
		out = append(out, postSignal{PostID: id, Signal: sig})
	}
	return out
}

func init() {
	scanCmd.Flags().StringVar(&scanFile, "file", "", "saved feed page to scan")
	scanCmd.Flags().StringVar(&scanURL, "url", "", "feed page URL to fetch and scan")
	scanCmd.Flags().StringVar(&scanBusURL, "bus-url", "", "remote worker URL (default: in-process worker)")
	scanCmd.Flags().StringVar(&scanOut, "out", "", "write the annotated page to this path")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", formatTable, "output format: table, yaml or json")
	scanCmd.Flags().BoolVar(&scanFollow, "follow", false, "keep watching until interrupted")
	rootCmd.AddCommand(scanCmd)
}
