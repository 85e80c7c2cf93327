package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeAction(t *testing.T) {
	tests := map[string]Action{
		"BUY":      ActionBuy,
		" buy ":    ActionBuy,
		"Sell":     ActionSell,
		"hold":     ActionHold,
		"HODL":     ActionHold,
		"hods":     ActionHold,
		"AVOID":    ActionAvoid,
		"INVERT":   ActionAvoid,
		"":         ActionAvoid,
		"YOLO":     ActionAvoid,
		"BUY|SELL": ActionAvoid,
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeAction(in), "input %q", in)
	}
}

func TestClampConfidence(t *testing.T) {
	assert.Equal(t, 1, ClampConfidence(-3))
	assert.Equal(t, 1, ClampConfidence(0))
	assert.Equal(t, 7, ClampConfidence(7))
	assert.Equal(t, 10, ClampConfidence(11))
}

func TestFailureSignal(t *testing.T) {
	content := DetectedContent{Tokens: []TokenMention{{Symbol: "BONK"}, {Symbol: "WIF"}}}

	sig := FailureSignal(content, "model unavailable")
	assert.Equal(t, ActionAvoid, sig.Action)
	assert.Equal(t, 1, sig.Confidence)
	assert.Equal(t, "analysis failed: model unavailable", sig.Explanation)
	assert.Equal(t, "BONK", sig.Token)

	assert.Equal(t, "analysis failed", FailureSignal(DetectedContent{}, "").Explanation)
	assert.Empty(t, FailureSignal(DetectedContent{}, "").Token)
}

func TestDetectedContent_Symbols(t *testing.T) {
	content := DetectedContent{Tokens: []TokenMention{{Symbol: "SOL"}, {Symbol: "PEPE"}}}
	assert.Equal(t, []string{"SOL", "PEPE"}, content.Symbols())
	assert.Equal(t, "SOL", content.PrimaryToken())
	assert.Empty(t, DetectedContent{}.Symbols())
	assert.Empty(t, DetectedContent{}.PrimaryToken())
}
