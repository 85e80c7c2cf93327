// Package bus carries request/response messages between the page-side
// scanner and the background worker. Every message gets exactly one
// Response.
package bus

import (
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/postsignal/internal/model"
	"github.com/sells-group/postsignal/pkg/dex"
)

// MessageType names a bus operation.
type MessageType string

const (
	AnalyzeContent   MessageType = "ANALYZE_CONTENT"
	GetRecentSignals MessageType = "GET_RECENT_SIGNALS"
	GetStats         MessageType = "GET_STATS"
	ClearData        MessageType = "CLEAR_DATA"
	ExecuteTrade     MessageType = "EXECUTE_TRADE"
	GetQuote         MessageType = "GET_QUOTE"
	Ping             MessageType = "PING"

	GetTokenMarketData MessageType = "GET_TOKEN_MARKET_DATA"
	GetCandlestickData MessageType = "GET_CANDLESTICK_DATA"

	GetSettings     MessageType = "GET_SETTINGS"
	UpdateSettings  MessageType = "UPDATE_SETTINGS"
	ToggleExtension MessageType = "TOGGLE_EXTENSION"
)

// Message is one request on the bus.
type Message struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Response is the single reply to a Message.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// NewMessage marshals payload into a Message. A nil payload sends no data.
func NewMessage(t MessageType, payload any) (Message, error) {
	msg := Message{Type: t}
	if payload == nil {
		return msg, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, eris.Wrapf(err, "bus: marshal %s payload", t)
	}
	msg.Data = raw
	return msg, nil
}

// Decode unmarshals the response data into out.
func (r Response) Decode(out any) error {
	if len(r.Data) == 0 {
		return eris.New("bus: response has no data")
	}
	if err := json.Unmarshal(r.Data, out); err != nil {
		return eris.Wrap(err, "bus: decode response data")
	}
	return nil
}

// AnalyzeRequest is the ANALYZE_CONTENT payload.
type AnalyzeRequest struct {
	Content model.DetectedContent `json:"content"`
	PostID  string                `json:"post_id"`
}

// AnalyzeResult is the ANALYZE_CONTENT reply data.
type AnalyzeResult struct {
	Signal model.TradingSignal `json:"signal"`
}

// SignalsResult is the GET_RECENT_SIGNALS reply data.
type SignalsResult struct {
	Signals []model.LedgerEntry `json:"signals"`
}

// StatsResult is the GET_STATS reply data.
type StatsResult struct {
	Stats model.Stats `json:"stats"`
}

// PingResult is the PING reply data. Timestamp is in Unix milliseconds.
// Enabled is set when the worker keeps settings.
type PingResult struct {
	Timestamp int64 `json:"timestamp"`
	Enabled   *bool `json:"enabled,omitempty"`
}

// MarketDataRequest is the GET_TOKEN_MARKET_DATA payload.
type MarketDataRequest struct {
	Token string `json:"token"`
}

// MarketDataResult is the GET_TOKEN_MARKET_DATA reply data.
type MarketDataResult struct {
	MarketData dex.MarketData `json:"market_data"`
}

// CandlesRequest is the GET_CANDLESTICK_DATA payload. An empty Timeframe
// means one hour bars.
type CandlesRequest struct {
	Token     string `json:"token"`
	Timeframe string `json:"timeframe,omitempty"`
}

// CandlesResult is the GET_CANDLESTICK_DATA reply data, oldest bar first.
type CandlesResult struct {
	Candles []dex.Candle `json:"candles"`
}

// SettingsRequest is the UPDATE_SETTINGS payload.
type SettingsRequest struct {
	Settings model.Settings `json:"settings"`
}

// SettingsResult is the GET_SETTINGS, UPDATE_SETTINGS and TOGGLE_EXTENSION
// reply data.
type SettingsResult struct {
	Settings model.Settings `json:"settings"`
}

// ToggleRequest is the TOGGLE_EXTENSION payload.
type ToggleRequest struct {
	Enabled bool `json:"enabled"`
}

// QuoteResult is the GET_QUOTE reply data. The request payload is a
// dex.QuoteRequest.
type QuoteResult struct {
	Quote dex.Quote `json:"quote"`
}

// TradeResult is the EXECUTE_TRADE reply data. The request payload is a
// dex.SwapRequest.
type TradeResult struct {
	Quote     dex.Quote `json:"quote"`
	Signature string    `json:"signature,omitempty"`
	Strategy  string    `json:"strategy,omitempty"`
}
