package dex

import "strings"

// SolanaChainID is the aggregator's chain id for Solana mainnet.
const SolanaChainID = "501"

// Token describes an SPL token the client can convert amounts for without
// asking the API.
type Token struct {
	Symbol   string `json:"symbol" yaml:"symbol"`
	Name     string `json:"name" yaml:"name"`
	Address  string `json:"address" yaml:"address"`
	Decimals int32  `json:"decimals" yaml:"decimals"`
}

var knownTokens = []Token{
	{Symbol: "SOL", Name: "Solana", Address: "So11111111111111111111111111111111111111112", Decimals: 9},
	{Symbol: "USDC", Name: "USD Coin", Address: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", Decimals: 6},
	{Symbol: "USDT", Name: "Tether USD", Address: "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB", Decimals: 6},
}

// KnownTokens returns a copy of the built-in token table.
func KnownTokens() []Token {
	out := make([]Token, len(knownTokens))
	copy(out, knownTokens)
	return out
}

// LookupToken finds a known token by symbol (case-insensitive) or by mint
// address.
func LookupToken(symbolOrAddress string) (Token, bool) {
	for _, t := range knownTokens {
		if strings.EqualFold(t.Symbol, symbolOrAddress) || t.Address == symbolOrAddress {
			return t, true
		}
	}
	return Token{}, false
}

// resolveAddress maps a known symbol to its mint address and passes anything
// else through unchanged.
func resolveAddress(symbolOrAddress string) string {
	if t, ok := LookupToken(symbolOrAddress); ok {
		return t.Address
	}
	return symbolOrAddress
}
