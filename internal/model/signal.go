package model

import (
	"strings"
	"time"
)

// Action is a normalized trading recommendation.
type Action string

const (
	ActionBuy   Action = "BUY"
	ActionSell  Action = "SELL"
	ActionAvoid Action = "AVOID"
	ActionHold  Action = "HOLD"
)

const (
	MinConfidence = 1
	MaxConfidence = 10
)

// NormalizeAction maps a free-form action string onto one of the four
// supported actions. INVERT collapses to AVOID and HODL/HODS to HOLD;
// anything unrecognized becomes AVOID.
func NormalizeAction(s string) Action {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY":
		return ActionBuy
	case "SELL":
		return ActionSell
	case "HOLD", "HODL", "HODS":
		return ActionHold
	default:
		return ActionAvoid
	}
}

// ClampConfidence bounds c to [MinConfidence, MaxConfidence].
func ClampConfidence(c int) int {
	if c < MinConfidence {
		return MinConfidence
	}
	if c > MaxConfidence {
		return MaxConfidence
	}
	return c
}

// TradingSignal is the analysis result for one post.
type TradingSignal struct {
	Action      Action `json:"action"`
	Confidence  int    `json:"confidence"`
	Explanation string `json:"explanation"`
	Token       string `json:"token,omitempty"`
}

// FailureSignal is the renderable value used whenever analysis could not
// produce a real signal.
func FailureSignal(content DetectedContent, reason string) TradingSignal {
	explanation := "analysis failed"
	if reason != "" {
		explanation += ": " + reason
	}
	return TradingSignal{
		Action:      ActionAvoid,
		Confidence:  MinConfidence,
		Explanation: explanation,
		Token:       content.PrimaryToken(),
	}
}

// LedgerEntry is one persisted signal with the content it was derived from.
type LedgerEntry struct {
	ID        string           `json:"id"`
	Signal    TradingSignal    `json:"signal"`
	Content   *DetectedContent `json:"content,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// Stats holds running signal counters. Counters only grow until a full
// reset.
type Stats struct {
	TotalSignals int `json:"total_signals"`
	BuySignals   int `json:"buy_signals"`
	SellSignals  int `json:"sell_signals"`
	AvoidSignals int `json:"avoid_signals"`
}
