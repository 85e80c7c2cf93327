package detect

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/postsignal/internal/model"
)

const bonkPost = "$BONK is mooning! wallet: 7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU 🚀"

func TestDetect_BonkExample(t *testing.T) {
	got := Detect(bonkPost)

	require.Len(t, got.Tokens, 1)
	assert.Equal(t, "BONK", got.Tokens[0].Symbol)
	assert.Equal(t, 0, got.Tokens[0].Start)
	assert.Equal(t, 5, got.Tokens[0].End)

	require.Len(t, got.Wallets, 1)
	assert.Equal(t, "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU", got.Wallets[0].Address)
	assert.Equal(t, 26, got.Wallets[0].Start)
	assert.Equal(t, 70, got.Wallets[0].End)
	assert.Equal(t, model.WalletAccount, got.Wallets[0].Kind)

	assert.Equal(t, []string{"moon", "mooning", "🚀"}, got.HypeLanguage)
	assert.Equal(t, bonkPost, got.FullText)
	assert.True(t, IsRelevant(got, 1))
	assert.True(t, IsRelevant(got, 2))
}

func TestDetect_StakedAmountHasNoTokens(t *testing.T) {
	got := Detect("staked 500k USD today")
	assert.Empty(t, got.Tokens)
	assert.Empty(t, got.Wallets)
}

func TestTokens_Filters(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"known token lower case", "grabbing some $sol now", []string{"SOL"}},
		{"known token beats money context", "paid in $ETH yesterday", []string{"ETH"}},
		{"pure digits", "only $500 left", nil},
		{"k suffix", "raised $500k in the seed", nil},
		{"decimal", "up to $1.5m already", nil},
		{"block-listed currency", "priced in $USD mostly", nil},
		{"block-listed acronym", "the $CEO said so", nil},
		{"money context", "worth $ZORP now", nil},
		{"acronym soup", "ticker $XKCD trending", nil},
		{"vowel and consonant", "new coin $ZORP trending", []string{"ZORP"}},
		{"short symbol skips vowel rule", "look at $XYZ go", []string{"XYZ"}},
		{"starts with digit", "watch $4EVA run", nil},
		{"too long is not a candidate", "hello $ABCDEFGHIJKL there", nil},
		{"multiple", "$WIF and $PEPE and $GOAT", []string{"WIF", "PEPE", "GOAT"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, m := range Tokens(tt.text) {
				got = append(got, m.Symbol)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTokens_NeverEmitsBlockedOrAmounts(t *testing.T) {
	var b strings.Builder
	for abbr := range blockedAbbreviations {
		b.WriteString(" $" + abbr)
	}
	for _, amt := range []string{"100", "5k", "2M", "3.75", "1b2", "12t"} {
		b.WriteString(" $" + amt)
	}

	for _, m := range Tokens(b.String()) {
		_, blocked := blockedAbbreviations[m.Symbol]
		assert.False(t, blocked, "blocked abbreviation emitted: %s", m.Symbol)
		assert.False(t, LooksLikeAmount(m.Symbol), "dollar amount emitted: %s", m.Symbol)
	}
}

func TestTokens_SpansAndContext(t *testing.T) {
	text := strings.Repeat("x", 80) + " $PEPE " + strings.Repeat("y", 80)
	got := Tokens(text)
	require.Len(t, got, 1)

	m := got[0]
	assert.Equal(t, "$PEPE", text[m.Start:m.End])
	assert.Len(t, m.Context, 100)
	assert.Contains(t, m.Context, "$PEPE")
}

func TestWindow_RuneBoundaries(t *testing.T) {
	text := "🚀🚀🚀 $BONK 🚀🚀🚀"
	w := window(text, 13, 3)
	assert.True(t, strings.HasPrefix(w, "🚀") || strings.HasPrefix(w, " "))
	assert.NotContains(t, w, "\uFFFD")
	for _, r := range w {
		assert.NotEqual(t, '\uFFFD', r)
	}
}

func TestWallets_Filters(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"real address", "send to EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v please", 1},
		{"repeated characters", "see " + strings.Repeat("aB", 20) + " here", 0},
		{"too few distinct", "id " + strings.Repeat("1234567", 5) + " x", 0},
		{"all numeric", "n 12345678912345678912345678912345 m", 0},
		{"http prefix", "httpsABCDEFGHJKLMNPQRSTUVWXYZabcdefg", 0},
		{"www prefix", "wwwABCDEFGHJKLMNPQRSTUVWXYZabcdefghijk", 0},
		{"too short", "abc 9jTGDGhnKZx4Rmh2BWHG def", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, Wallets(tt.text), tt.want)
		})
	}
}

func TestWallets_FewerThanEightDistinctNeverEmitted(t *testing.T) {
	for _, alphabet := range []string{"A", "AB", "ABC", "ABCDEFG", "1A2B3C4"} {
		run := strings.Repeat(alphabet, 40)[:40]
		assert.Empty(t, Wallets("x "+run+" y"), "alphabet %q", alphabet)
	}
}

func TestClassifyWallet(t *testing.T) {
	assert.Equal(t, model.WalletAccount, ClassifyWallet("So11111111111111111111111111111111111111112"))
	assert.Equal(t, model.WalletDerived, ClassifyWallet("8mPivtqM4qrHPdTRfGBQTpxwqp1utW1jm22yzSuyAAcN"))
	assert.Equal(t, model.WalletUnknown, ClassifyWallet("9jTGDGhnKZx4Rmh2BWHG"))
	assert.Equal(t, model.WalletUnknown, ClassifyWallet("0OIl"))
}

func TestHype(t *testing.T) {
	got := Hype("WAGMI fam, diamond HANDS only. Buy The Dip!")
	assert.ElementsMatch(t, []string{"wagmi", "diamond hands", "dip", "buy the dip"}, got)
	assert.Empty(t, Hype("quarterly earnings call at noon"))
}

func TestHype_Deduplicated(t *testing.T) {
	got := Hype("moon moon moon MOON")
	assert.Equal(t, []string{"moon"}, got)
}

func TestIsRelevant(t *testing.T) {
	oneHype := model.DetectedContent{HypeLanguage: []string{"gem"}}
	assert.True(t, IsRelevant(oneHype, 1))
	assert.False(t, IsRelevant(oneHype, 2))
	assert.True(t, IsRelevant(oneHype, 0), "threshold below one behaves as one")

	assert.True(t, IsRelevant(model.DetectedContent{Tokens: []model.TokenMention{{Symbol: "SOL"}}}, 5))
	assert.True(t, IsRelevant(model.DetectedContent{Wallets: []model.WalletAddress{{Address: "x"}}}, 5))
	assert.False(t, IsRelevant(model.DetectedContent{}, 1))
}

func TestDetect_SpansAlwaysValid(t *testing.T) {
	inputs := []string{
		bonkPost,
		"",
		"$",
		"$$SOL$$ETH",
		"émoji 🚀 $PEPE then EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v ✨",
	}
	for _, in := range inputs {
		got := Detect(in)
		for _, m := range got.Tokens {
			assert.True(t, m.Start >= 0 && m.Start < m.End && m.End <= len(got.FullText), "token span %d..%d", m.Start, m.End)
		}
		for _, w := range got.Wallets {
			assert.True(t, w.Start >= 0 && w.Start < w.End && w.End <= len(got.FullText), "wallet span %d..%d", w.Start, w.End)
		}
	}
}
