// Package dex is a client for a DEX aggregator's quote and swap endpoints
// and the exchange's public market data. Aggregator requests are HMAC
// signed. All requests are rate limited and retried on 429 and 5xx.
package dex

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/postsignal/internal/metrics"
	"github.com/sells-group/postsignal/internal/resilience"
)

const (
	// DefaultBaseURL is the aggregator API host.
	DefaultBaseURL = "https://www.okx.com"
	// DefaultSlippage is the tolerated slippage as a fraction (0.5%).
	DefaultSlippage = "0.005"

	quotePath = "/api/v5/dex/aggregator/quote"
	swapPath  = "/api/v5/dex/aggregator/swap"
)

// Client defines the aggregator operations.
type Client interface {
	// Quote prices a swap without executing it.
	Quote(ctx context.Context, req QuoteRequest) (*Quote, error)
	// Swap builds the routed swap transaction for the user's wallet to sign.
	Swap(ctx context.Context, req SwapRequest) (*SwapResult, error)
}

// QuoteRequest identifies tokens by known symbol or mint address. Amount is
// in human units.
type QuoteRequest struct {
	ChainID   string          `json:"chain_id,omitempty"`
	FromToken string          `json:"from_token"`
	ToToken   string          `json:"to_token"`
	Amount    decimal.Decimal `json:"amount"`
	Slippage  string          `json:"slippage,omitempty"`
	// FromDecimals is required when FromToken is not a known token.
	FromDecimals int32 `json:"from_decimals,omitempty"`
}

// SwapRequest is a QuoteRequest plus the wallet that will sign.
type SwapRequest struct {
	QuoteRequest
	UserWalletAddress  string `json:"user_wallet_address"`
	AutoSlippage       bool   `json:"auto_slippage,omitempty"`
	MaxAutoSlippageBps string `json:"max_auto_slippage_bps,omitempty"`
}

// TokenAmount is one side of a routed swap.
type TokenAmount struct {
	Symbol   string          `json:"symbol"`
	Address  string          `json:"address"`
	Decimals int32           `json:"decimals"`
	Amount   decimal.Decimal `json:"amount"`
	Raw      string          `json:"raw"`
}

// Quote is a routing result with amounts in human units.
type Quote struct {
	ChainID        string          `json:"chain_id"`
	From           TokenAmount     `json:"from"`
	To             TokenAmount     `json:"to"`
	Rate           decimal.Decimal `json:"rate"`
	PriceImpact    string          `json:"price_impact,omitempty"`
	EstimateGasFee string          `json:"estimate_gas_fee,omitempty"`
	Routes         []string        `json:"routes,omitempty"`
}

// SwapResult carries the routing result and the unsigned transaction
// payload returned by the aggregator.
type SwapResult struct {
	Quote Quote          `json:"quote"`
	Tx    map[string]any `json:"tx"`
}

// APIError is a non-200 response or a non-zero business code.
type APIError struct {
	StatusCode int
	Code       string
	Msg        string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("dex: api error %s: %s", e.Code, e.Msg)
	}
	return fmt.Sprintf("dex: http %d: %s", e.StatusCode, e.Msg)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) { c.baseURL = u }
}

// WithRateLimit caps outgoing requests per second.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *httpClient) {
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithRetry replaces the retry policy.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) { c.retry = cfg }
}

// WithClock overrides the time source used for request signatures.
func WithClock(now func() time.Time) Option {
	return func(c *httpClient) { c.now = now }
}

type httpClient struct {
	creds Credentials
	// public requests go out unsigned.
	public  bool
	baseURL string
	http    *resty.Client
	limiter *rate.Limiter
	retry   resilience.RetryConfig
	now     func() time.Time
}

// NewClient creates an aggregator client.
func NewClient(creds Credentials, opts ...Option) Client {
	return newHTTPClient(creds, opts...)
}

func newHTTPClient(creds Credentials, opts ...Option) *httpClient {
	c := &httpClient{
		creds:   creds,
		baseURL: DefaultBaseURL,
		limiter: rate.NewLimiter(rate.Limit(5), 1),
		retry:   resilience.DefaultRetryConfig(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retry.OnRetry == nil {
		c.retry.OnRetry = resilience.RetryLogger("dex", "request")
	}
	c.http = resty.New().
		SetBaseURL(c.baseURL).
		SetTimeout(15*time.Second).
		SetHeader("Accept", "application/json")
	return c
}

type envelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type wireToken struct {
	TokenSymbol          string `json:"tokenSymbol"`
	TokenContractAddress string `json:"tokenContractAddress"`
	Decimal              string `json:"decimal"`
}

type wireProtocol struct {
	DexName string `json:"dexName"`
	Percent string `json:"percent"`
}

type wireRouterResult struct {
	ChainID               string    `json:"chainId"`
	FromTokenAmount       string    `json:"fromTokenAmount"`
	ToTokenAmount         string    `json:"toTokenAmount"`
	EstimateGasFee        string    `json:"estimateGasFee"`
	PriceImpactPercentage string    `json:"priceImpactPercentage"`
	FromToken             wireToken `json:"fromToken"`
	ToToken               wireToken `json:"toToken"`
	DexRouterList         []struct {
		SubRouterList []struct {
			DexProtocol []wireProtocol `json:"dexProtocol"`
		} `json:"subRouterList"`
	} `json:"dexRouterList"`
}

type wireSwap struct {
	RouterResult wireRouterResult `json:"routerResult"`
	Tx           map[string]any   `json:"tx"`
}

// Quote prices a swap.
func (c *httpClient) Quote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	query, err := req.values()
	if err != nil {
		return nil, err
	}
	data, err := c.get(ctx, "quote", quotePath, query)
	if err != nil {
		return nil, err
	}

	var results []wireRouterResult
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, eris.Wrap(err, "dex: decode quote data")
	}
	if len(results) == 0 {
		return nil, eris.New("dex: empty quote response")
	}
	q, err := results[0].quote()
	if err != nil {
		return nil, err
	}

	zap.L().Debug("dex: quote",
		zap.String("from", q.From.Symbol),
		zap.String("to", q.To.Symbol),
		zap.String("amount_in", q.From.Amount.String()),
		zap.String("amount_out", q.To.Amount.String()),
	)
	return &q, nil
}

// Swap builds a swap transaction for req.UserWalletAddress.
func (c *httpClient) Swap(ctx context.Context, req SwapRequest) (*SwapResult, error) {
	if req.UserWalletAddress == "" {
		return nil, eris.New("dex: user wallet address is required")
	}
	query, err := req.values()
	if err != nil {
		return nil, err
	}
	query.Set("userWalletAddress", req.UserWalletAddress)
	if req.AutoSlippage {
		query.Set("autoSlippage", "true")
		if req.MaxAutoSlippageBps != "" {
			query.Set("maxAutoSlippage", req.MaxAutoSlippageBps)
		}
	}

	data, err := c.get(ctx, "swap", swapPath, query)
	if err != nil {
		return nil, err
	}

	var results []wireSwap
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, eris.Wrap(err, "dex: decode swap data")
	}
	if len(results) == 0 {
		return nil, eris.New("dex: empty swap response")
	}
	q, err := results[0].RouterResult.quote()
	if err != nil {
		return nil, err
	}
	return &SwapResult{Quote: q, Tx: results[0].Tx}, nil
}

// get performs a GET, signed unless the client is public, and returns the
// envelope's data.
func (c *httpClient) get(ctx context.Context, endpoint, path string, query url.Values) (json.RawMessage, error) {
	requestPath := path
	if len(query) > 0 {
		requestPath += "?" + query.Encode()
	}

	return resilience.DoVal(ctx, c.retry, func(ctx context.Context) (json.RawMessage, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "dex: rate limit wait")
		}

		req := c.http.R().SetContext(ctx)
		if !c.public {
			req.SetHeaders(c.creds.headers(c.now(), http.MethodGet, requestPath, ""))
		}
		resp, err := req.Get(requestPath)
		if err != nil {
			metrics.DexRequests.WithLabelValues(endpoint, "error").Inc()
			return nil, eris.Wrapf(err, "dex: %s request", endpoint)
		}
		metrics.DexRequests.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode())).Inc()

		if resp.StatusCode() != http.StatusOK {
			apiErr := &APIError{StatusCode: resp.StatusCode(), Msg: truncate(resp.String(), 200)}
			if resilience.IsTransientHTTPStatus(resp.StatusCode()) {
				return nil, resilience.NewTransientError(apiErr, resp.StatusCode())
			}
			return nil, apiErr
		}

		var env envelope
		if err := json.Unmarshal(resp.Body(), &env); err != nil {
			return nil, eris.Wrapf(err, "dex: decode %s response", endpoint)
		}
		if env.Code != "0" {
			return nil, &APIError{StatusCode: resp.StatusCode(), Code: env.Code, Msg: env.Msg}
		}
		return env.Data, nil
	})
}

func (r QuoteRequest) values() (url.Values, error) {
	from, to := resolveAddress(r.FromToken), resolveAddress(r.ToToken)
	if from == "" || to == "" {
		return nil, eris.New("dex: from and to tokens are required")
	}
	if from == to {
		return nil, eris.New("dex: cannot swap a token for itself")
	}

	decimals := r.FromDecimals
	if t, ok := LookupToken(from); ok && decimals == 0 {
		decimals = t.Decimals
	} else if !ok && decimals == 0 {
		return nil, eris.Errorf("dex: decimals unknown for %s", r.FromToken)
	}
	amount, err := ToBaseUnits(r.Amount, decimals)
	if err != nil {
		return nil, err
	}

	chain := r.ChainID
	if chain == "" {
		chain = SolanaChainID
	}
	slippage := r.Slippage
	if slippage == "" {
		slippage = DefaultSlippage
	}

	v := url.Values{}
	v.Set("chainId", chain)
	v.Set("amount", amount)
	v.Set("fromTokenAddress", from)
	v.Set("toTokenAddress", to)
	v.Set("slippage", slippage)
	return v, nil
}

func (w wireRouterResult) quote() (Quote, error) {
	from, err := w.FromToken.amount(w.FromTokenAmount)
	if err != nil {
		return Quote{}, err
	}
	to, err := w.ToToken.amount(w.ToTokenAmount)
	if err != nil {
		return Quote{}, err
	}

	q := Quote{
		ChainID:        w.ChainID,
		From:           from,
		To:             to,
		PriceImpact:    w.PriceImpactPercentage,
		EstimateGasFee: w.EstimateGasFee,
	}
	if from.Amount.IsPositive() {
		q.Rate = to.Amount.Div(from.Amount)
	}

	seen := make(map[string]struct{})
	for _, r := range w.DexRouterList {
		for _, sub := range r.SubRouterList {
			for _, p := range sub.DexProtocol {
				if _, dup := seen[p.DexName]; dup || p.DexName == "" {
					continue
				}
				seen[p.DexName] = struct{}{}
				q.Routes = append(q.Routes, p.DexName)
			}
		}
	}
	return q, nil
}

func (t wireToken) amount(raw string) (TokenAmount, error) {
	out := TokenAmount{Symbol: t.TokenSymbol, Address: t.TokenContractAddress, Raw: raw}
	known, isKnown := LookupToken(t.TokenContractAddress)

	switch {
	case t.Decimal != "":
		d, err := strconv.ParseInt(t.Decimal, 10, 32)
		if err != nil {
			return TokenAmount{}, eris.Wrapf(err, "dex: parse decimals for %s", t.TokenContractAddress)
		}
		out.Decimals = int32(d)
	case isKnown:
		out.Decimals = known.Decimals
	default:
		return TokenAmount{}, eris.Errorf("dex: decimals missing for %s", t.TokenContractAddress)
	}
	if out.Symbol == "" && isKnown {
		out.Symbol = known.Symbol
	}

	amt, err := FromBaseUnits(raw, out.Decimals)
	if err != nil {
		return TokenAmount{}, err
	}
	out.Amount = amt
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
