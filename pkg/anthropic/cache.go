package anthropic

// CachedSystem returns a single system block with an ephemeral cache
// breakpoint. The analysis instructions are identical for every post, so
// only the user message varies between requests.
func CachedSystem(text, ttl string) []SystemBlock {
	if text == "" {
		return nil
	}
	return []SystemBlock{{Text: text, CacheControl: &CacheControl{TTL: ttl}}}
}
