// Package detect extracts crypto-trading entities (token symbols, wallet
// addresses, hype phrases) from post text. Everything here is pure and
// deterministic.
package detect

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"

	"github.com/sells-group/postsignal/internal/model"
)

const (
	// mentionRadius is the context window kept on each side of a mention.
	mentionRadius = 50
	// moneyRadius is the window searched for monetary keywords.
	moneyRadius = 20

	minSymbolLen      = 2
	maxSymbolLen      = 10
	minWalletLen      = 32
	maxWalletLen      = 44
	minDistinctWallet = 8
)

var (
	tokenRe  = regexp.MustCompile(`\$([A-Za-z0-9]{2,10})\b`)
	walletRe = regexp.MustCompile(`\b[1-9A-HJ-NP-Za-km-z]{32,44}\b`)

	dollarAmountRes = []*regexp.Regexp{
		regexp.MustCompile(`^[0-9]+$`),
		regexp.MustCompile(`(?i)^\d+[kmbt]?$`),
		regexp.MustCompile(`(?i)^\d+\.?\d*[kmbt]?$`),
		regexp.MustCompile(`(?i)^\d+\.\d+[kmbt]?$`),
		regexp.MustCompile(`(?i)^\d+[kmbt]\d*$`),
	}

	suspiciousWalletRe = regexp.MustCompile(`(?i)^(http|www|com|org|[0-9]+$)`)
)

var knownTokens = setOf(
	"BTC", "ETH", "SOL", "ADA", "DOT", "LINK", "UNI", "AAVE", "COMP",
	"DOGE", "SHIB", "PEPE", "FLOKI", "BONK", "WIF", "BOME",
	"USDT", "USDC", "BUSD", "DAI", "FRAX", "TUSD",
	"MATIC", "AVAX", "ATOM", "NEAR", "FTM", "ALGO",
	"VIRTUAL", "AI16Z", "GOAT", "FARTCOIN", "PNUT", "ACT",
	"TRUMP", "MAGA", "BIDEN", "TRUMPCOIN", "TRUMP2024", "TRUMP47",
)

var blockedAbbreviations = setOf(
	"USD", "EUR", "GBP", "JPY", "CAD", "AUD", "CHF", "CNY", "INR",
	"CEO", "CTO", "CFO", "AI", "ML", "API", "SDK", "UI", "UX",
	"ATH", "ATL", "YTD", "EOY", "Q1", "Q2", "Q3", "Q4",
	"TV", "PC", "CPU", "GPU", "RAM", "SSD", "HDD",
	"USA", "NYC", "LA", "UK", "EU", "US",
	"AM", "PM", "EST", "PST", "GMT", "UTC",
	"LLC", "INC", "LTD", "CO", "CORP",
)

var moneyKeywords = []string{
	"staked", "worth", "value", "price", "cost", "paid", "spent",
	"invested", "lost", "gained", "profit", "loss", "fee", "fees",
	"deposit", "withdraw", "transfer", "send", "receive",
}

// HypePhrases is the fixed phrase list matched against post text.
var HypePhrases = []string{
	"moon", "mooning", "to the moon", "🚀",
	"rug", "rugpull", "rug pull", "scam",
	"100x", "1000x", "moonshot", "gem",
	"diamond hands", "paper hands", "hodl",
	"pump", "dump", "dip", "buy the dip",
	"lambo", "when lambo", "degen", "ape in",
	"wagmi", "ngmi", "probably nothing",
	"bullish", "bearish", "bottomed out",
}

// Detect runs every extractor over text.
func Detect(text string) model.DetectedContent {
	return model.DetectedContent{
		Tokens:       Tokens(text),
		Wallets:      Wallets(text),
		HypeLanguage: Hype(text),
		FullText:     text,
	}
}

// IsRelevant reports whether content is worth an analysis request: at least
// one token or wallet, or at least minHype distinct hype phrases.
func IsRelevant(content model.DetectedContent, minHype int) bool {
	if minHype < 1 {
		minHype = 1
	}
	return len(content.Tokens) > 0 ||
		len(content.Wallets) > 0 ||
		len(content.HypeLanguage) >= minHype
}

// Tokens returns every accepted `$SYMBOL` mention in text order.
func Tokens(text string) []model.TokenMention {
	var out []model.TokenMention
	for _, m := range tokenRe.FindAllStringSubmatchIndex(text, -1) {
		start, end := m[0], m[1]
		symbol := strings.ToUpper(text[m[2]:m[3]])
		if !acceptSymbol(symbol, text, start) {
			continue
		}
		out = append(out, model.TokenMention{
			Symbol:  symbol,
			Start:   start,
			End:     end,
			Context: window(text, start, mentionRadius),
		})
	}
	return out
}

func acceptSymbol(symbol, text string, pos int) bool {
	if _, ok := knownTokens[symbol]; ok {
		return true
	}
	if LooksLikeAmount(symbol) {
		return false
	}
	if _, ok := blockedAbbreviations[symbol]; ok {
		return false
	}
	if symbol[0] >= '0' && symbol[0] <= '9' {
		return false
	}
	if !strings.ContainsAny(symbol, "ABCDEFGHIJKLMNOPQRSTUVWXYZ") {
		return false
	}
	if len(symbol) < minSymbolLen || len(symbol) > maxSymbolLen {
		return false
	}
	ctx := strings.ToLower(window(text, pos, moneyRadius))
	for _, kw := range moneyKeywords {
		if strings.Contains(ctx, kw) {
			return false
		}
	}
	if len(symbol) > 3 {
		hasVowel := strings.ContainsAny(symbol, "AEIOU")
		hasConsonant := strings.ContainsAny(symbol, "BCDFGHJKLMNPQRSTVWXYZ")
		if !hasVowel || !hasConsonant {
			return false
		}
	}
	return true
}

// LooksLikeAmount reports whether a candidate symbol is really a dollar
// figure such as 500, 500k, 1.5m or 2b3.
func LooksLikeAmount(symbol string) bool {
	for _, re := range dollarAmountRes {
		if re.MatchString(symbol) {
			return true
		}
	}
	return false
}

// Wallets returns every wallet-shaped base58 run that survives the noise
// filters, classified by what it decodes to.
func Wallets(text string) []model.WalletAddress {
	var out []model.WalletAddress
	for _, m := range walletRe.FindAllStringIndex(text, -1) {
		addr := text[m[0]:m[1]]
		if !likelyWallet(addr) {
			continue
		}
		out = append(out, model.WalletAddress{
			Address: addr,
			Start:   m[0],
			End:     m[1],
			Context: window(text, m[0], mentionRadius),
			Kind:    ClassifyWallet(addr),
		})
	}
	return out
}

func likelyWallet(addr string) bool {
	if len(addr) < minWalletLen || len(addr) > maxWalletLen {
		return false
	}
	distinct := make(map[rune]struct{}, len(addr))
	for _, r := range addr {
		distinct[r] = struct{}{}
	}
	if len(distinct) < minDistinctWallet {
		return false
	}
	return !suspiciousWalletRe.MatchString(addr)
}

// ClassifyWallet decodes addr and reports whether it is an on-curve account
// key, an off-curve derived address, or neither.
func ClassifyWallet(addr string) model.WalletKind {
	raw, err := base58.Decode(addr)
	if err != nil || len(raw) != 32 {
		return model.WalletUnknown
	}
	if _, err := new(edwards25519.Point).SetBytes(raw); err != nil {
		return model.WalletDerived
	}
	return model.WalletAccount
}

// Hype returns the hype phrases contained in text, case-insensitively, in
// phrase-list order without duplicates.
func Hype(text string) []string {
	lower := strings.ToLower(text)
	var out []string
	seen := make(map[string]struct{})
	for _, phrase := range HypePhrases {
		if _, dup := seen[phrase]; dup {
			continue
		}
		if strings.Contains(lower, strings.ToLower(phrase)) {
			seen[phrase] = struct{}{}
			out = append(out, phrase)
		}
	}
	return out
}

// window returns text[pos-radius : pos+radius] clamped to the string and
// widened to whole runes.
func window(text string, pos, radius int) string {
	start := pos - radius
	if start < 0 {
		start = 0
	}
	end := pos + radius
	if end > len(text) {
		end = len(text)
	}
	for start > 0 && !utf8.RuneStart(text[start]) {
		start--
	}
	for end < len(text) && !utf8.RuneStart(text[end]) {
		end++
	}
	return text[start:end]
}

func setOf(items ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(items))
	for _, it := range items {
		m[it] = struct{}{}
	}
	return m
}
