package analysis

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/postsignal/internal/model"
)

var bonk = model.DetectedContent{
	Tokens:   []model.TokenMention{{Symbol: "BONK"}},
	FullText: "$BONK is mooning!",
}

func TestParseSignal_Tiers(t *testing.T) {
	tests := []struct {
		name       string
		reply      string
		tier       Tier
		action     model.Action
		confidence int
		reason     string
	}{
		{
			name:  "plain json",
			reply: `{"action":"BUY","confidence":8,"reason":"Strong momentum"}`,
			tier:  TierJSON, action: model.ActionBuy, confidence: 8, reason: "Strong momentum",
		},
		{
			name:  "fenced json with string confidence",
			reply: "```json\n{\"action\": \"sell\", \"confidence\": \"7\", \"reason\": \"Top signals\"}\n```",
			tier:  TierJSON, action: model.ActionSell, confidence: 7, reason: "Top signals",
		},
		{
			name:  "json with chatter and missing fields",
			reply: `Sure! {"action":"HODL"} hope that helps`,
			tier:  TierJSON, action: model.ActionHold, confidence: 5, reason: "AI analysis completed",
		},
		{
			name:  "invert and out of range confidence",
			reply: `{"action": "INVERT", "confidence": 15, "reason": "contrarian"}`,
			tier:  TierJSON, action: model.ActionAvoid, confidence: 10, reason: "contrarian",
		},
		{
			name:  "missing action defaults to avoid",
			reply: `{"confidence": 0, "explanation": "thin"}`,
			tier:  TierJSON, action: model.ActionAvoid, confidence: 5, reason: "thin",
		},
		{
			name:  "repair bare keys, single quotes and trailing comma",
			reply: `{action: 'BUY', confidence: 9, reason: 'solid team',}`,
			tier:  TierRepair, action: model.ActionBuy, confidence: 9, reason: "solid team",
		},
		{
			name:  "labelled fields",
			reply: "Action: SELL\nConfidence: 4\nReason: overheated after a 300% run",
			tier:  TierFields, action: model.ActionSell, confidence: 4, reason: "overheated after a 300% run",
		},
		{
			name:  "truncated json falls to fields",
			reply: `{"action": "BUY", "confidence": 8, "reason": "unterminated`,
			tier:  TierFields, action: model.ActionBuy, confidence: 8, reason: "unterminated",
		},
		{
			name:  "keyword only",
			reply: "BUY the dip, confidence 8, looks great",
			tier:  TierKeywords, action: model.ActionBuy, confidence: 6, reason: "BUY the dip, confidence 8, looks great",
		},
		{
			name:  "earliest keyword wins",
			reply: "I would avoid this one, not a buy",
			tier:  TierKeywords, action: model.ActionAvoid, confidence: 6, reason: "I would avoid this one, not a buy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig, tier, err := ParseSignal(tt.reply, bonk)
			require.NoError(t, err)
			assert.Equal(t, tt.tier, tier)
			assert.Equal(t, tt.action, sig.Action)
			assert.Equal(t, tt.confidence, sig.Confidence)
			assert.Equal(t, tt.reason, sig.Explanation)
			assert.Equal(t, "BONK", sig.Token)
		})
	}
}

func TestParseSignal_Unparseable(t *testing.T) {
	for _, reply := range []string{"", "no idea", "Holders are selling into strength"} {
		_, tier, err := ParseSignal(reply, bonk)
		assert.ErrorIs(t, err, ErrUnparseable, reply)
		assert.Equal(t, TierNone, tier)
	}
}

func TestParseSignal_TruncatesLongExplanations(t *testing.T) {
	reply := "sell " + strings.Repeat("é", 400)
	sig, tier, err := ParseSignal(reply, model.DetectedContent{})
	require.NoError(t, err)
	assert.Equal(t, TierKeywords, tier)
	assert.Equal(t, maxExplanation, utf8.RuneCountInString(sig.Explanation))
	assert.True(t, strings.HasSuffix(sig.Explanation, "…"))
	assert.Empty(t, sig.Token)
}

func TestParseSignal_AlwaysInRange(t *testing.T) {
	replies := []string{
		`{"action":"BUY","confidence":-4}`,
		`{"action":"BUY","confidence":1e9}`,
		`{"action":"BUY","confidence":"lots"}`,
		"action = hold, confidence = 99",
	}
	for _, r := range replies {
		sig, _, err := ParseSignal(r, bonk)
		require.NoError(t, err, r)
		assert.GreaterOrEqual(t, sig.Confidence, model.MinConfidence, r)
		assert.LessOrEqual(t, sig.Confidence, model.MaxConfidence, r)
		assert.Contains(t, []model.Action{model.ActionBuy, model.ActionSell, model.ActionAvoid, model.ActionHold}, sig.Action, r)
	}
}

func TestTier_String(t *testing.T) {
	assert.Equal(t, "json", TierJSON.String())
	assert.Equal(t, "repair", TierRepair.String())
	assert.Equal(t, "fields", TierFields.String())
	assert.Equal(t, "keywords", TierKeywords.String())
	assert.Equal(t, "none", TierNone.String())
}

func TestBuildPrompt(t *testing.T) {
	content := model.DetectedContent{
		FullText:     `$BONK "to the moon"`,
		Tokens:       []model.TokenMention{{Symbol: "BONK"}},
		Wallets:      []model.WalletAddress{{Address: "So11111111111111111111111111111111111111112", Kind: model.WalletAccount}},
		HypeLanguage: []string{"moon", "to the moon"},
	}
	p := BuildPrompt(content)
	assert.Contains(t, p, `Post: "$BONK \"to the moon\""`)
	assert.Contains(t, p, "Tokens: BONK\n")
	assert.Contains(t, p, "Wallets: So11111111111111111111111111111111111111112 (account)\n")
	assert.Contains(t, p, "Hype words: moon, to the moon\n")

	empty := BuildPrompt(model.DetectedContent{FullText: "gm"})
	assert.Contains(t, empty, "Tokens: none")
	assert.Contains(t, empty, "Hype words: none")
	assert.NotContains(t, empty, "Wallets:")
}
