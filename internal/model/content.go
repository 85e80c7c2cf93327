package model

// TokenMention is a `$SYMBOL` reference found in post text. Start and End
// are byte offsets into DetectedContent.FullText.
type TokenMention struct {
	Symbol  string `json:"symbol"`
	Start   int    `json:"start"`
	End     int    `json:"end"`
	Context string `json:"context"`
}

// WalletKind classifies a detected base58 address.
type WalletKind string

const (
	// WalletAccount decodes to a 32-byte point on the ed25519 curve.
	WalletAccount WalletKind = "account"
	// WalletDerived decodes to 32 bytes that are off-curve (program-derived).
	WalletDerived WalletKind = "derived"
	// WalletUnknown does not decode to a 32-byte key.
	WalletUnknown WalletKind = "unknown"
)

// WalletAddress is a wallet-shaped base58 run found in post text.
type WalletAddress struct {
	Address string     `json:"address"`
	Start   int        `json:"start"`
	End     int        `json:"end"`
	Context string     `json:"context"`
	Kind    WalletKind `json:"kind,omitempty"`
}

// DetectedContent is the structured result of scanning one post's text.
type DetectedContent struct {
	Tokens       []TokenMention  `json:"tokens"`
	Wallets      []WalletAddress `json:"wallets"`
	HypeLanguage []string        `json:"hype_language"`
	FullText     string          `json:"full_text"`
}

// Symbols returns the detected token symbols in text order.
func (d DetectedContent) Symbols() []string {
	out := make([]string, 0, len(d.Tokens))
	for _, t := range d.Tokens {
		out = append(out, t.Symbol)
	}
	return out
}

// PrimaryToken returns the first detected symbol, or "" when none was found.
func (d DetectedContent) PrimaryToken() string {
	if len(d.Tokens) == 0 {
		return ""
	}
	return d.Tokens[0].Symbol
}
