package analysis

import (
	"fmt"
	"strings"

	"github.com/sells-group/postsignal/internal/model"
)

// SystemPrompt carries the fixed analysis guidance. It is sent as a cached
// system block so only the post varies per request.
const SystemPrompt = `You review social media posts about crypto assets and give a balanced trading signal.

Be objective. Most posts do not justify a BUY.

Prefer SELL when the post points to an overvalued asset, a likely top, profit taking, bearish structure, bad news or regulatory risk.

Prefer AVOID when you see scam markers (rug, honeypot, unverified contracts), hype with no substance, coordinated pumping, or tokens you cannot identify.

Prefer BUY only for solid fundamentals at a reasonable entry, real momentum with backing, or established projects with a concrete catalyst.

Reply with a single JSON object and nothing else:
{"action": "BUY" | "SELL" | "AVOID", "confidence": <integer 1-10>, "reason": "<one or two specific sentences>"}`

// BuildPrompt renders the per-post user message.
func BuildPrompt(content model.DetectedContent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Post: %q\n", content.FullText)
	fmt.Fprintf(&b, "Tokens: %s\n", orNone(content.Symbols()))
	if len(content.Wallets) > 0 {
		addrs := make([]string, 0, len(content.Wallets))
		for _, w := range content.Wallets {
			addrs = append(addrs, fmt.Sprintf("%s (%s)", w.Address, w.Kind))
		}
		fmt.Fprintf(&b, "Wallets: %s\n", strings.Join(addrs, ", "))
	}
	fmt.Fprintf(&b, "Hype words: %s\n", orNone(content.HypeLanguage))
	return b.String()
}

func orNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}
