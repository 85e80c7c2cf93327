// Package identity maps post elements to string ids used for dedup and
// element lookup.
package identity

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/postsignal/internal/dom"
)

// FallbackPrefix starts every hash-derived id.
const FallbackPrefix = "post_"

var statusRe = regexp.MustCompile(`/status/(\d+)`)

// DefaultTextSelectors are tried in order when extracting post text.
var DefaultTextSelectors = []string{
	`[data-testid="tweetText"]`,
	`[lang]`,
	`.css-901oao`,
}

// DefaultTimestampSelector locates the displayed timestamp of a post.
const DefaultTimestampSelector = "time[datetime]"

// Resolver derives post ids and text. It only reads the element.
type Resolver struct {
	TextSelectors     []string
	TimestampSelector string
}

// NewResolver returns a Resolver with the default selectors.
func NewResolver() *Resolver {
	return &Resolver{
		TextSelectors:     DefaultTextSelectors,
		TimestampSelector: DefaultTimestampSelector,
	}
}

// Resolve returns the permanent status id from the first status link, or a
// fallback hash of text, timestamp and viewport offset. The fallback changes
// when the element scrolls.
func (r *Resolver) Resolve(el *dom.Element) string {
	if link := el.First(`a[href*="/status/"]`); link != nil {
		href, _ := link.Attr("href")
		if m := statusRe.FindStringSubmatch(href); m != nil {
			return m[1]
		}
	}

	var datetime string
	if r.TimestampSelector != "" {
		if ts := el.First(r.TimestampSelector); ts != nil {
			datetime, _ = ts.Attr("datetime")
		}
	}
	offset := strconv.FormatFloat(el.OffsetTop(), 'f', -1, 64)
	composite := r.Text(el) + "|" + datetime + "|" + offset
	return FallbackPrefix + strconv.FormatInt(abs(Hash32(composite)), 10)
}

// Text returns the trimmed, NFC-normalised text of the first selector that
// yields non-empty content.
func (r *Resolver) Text(el *dom.Element) string {
	for _, sel := range r.TextSelectors {
		node := el.First(sel)
		if node == nil {
			continue
		}
		if text := strings.TrimSpace(node.Text()); text != "" {
			return norm.NFC.String(text)
		}
	}
	return ""
}

// Hash32 is the 31-multiplier rolling hash over UTF-16 code units with
// 32-bit wraparound.
func Hash32(s string) int32 {
	var h int32
	for _, u := range utf16.Encode([]rune(s)) {
		h = h*31 + int32(u)
	}
	return h
}

func abs(h int32) int64 {
	v := int64(h)
	if v < 0 {
		return -v
	}
	return v
}
