package model

// PostState tracks where a post is in the scan pipeline. States only move
// forward: Unseen -> Queued -> Analyzing -> {Displayed | Discarded}.
type PostState int

const (
	PostUnseen PostState = iota
	PostQueued
	PostAnalyzing
	PostDisplayed
	PostDiscarded
)

func (s PostState) String() string {
	switch s {
	case PostUnseen:
		return "unseen"
	case PostQueued:
		return "queued"
	case PostAnalyzing:
		return "analyzing"
	case PostDisplayed:
		return "displayed"
	case PostDiscarded:
		return "discarded"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s PostState) Terminal() bool {
	return s == PostDisplayed || s == PostDiscarded
}

// CanAdvance reports whether moving from s to next keeps the lifecycle
// monotonic. Skipping forward is allowed (a queued post with nothing
// relevant goes straight to Discarded); staying put or moving back is not.
func (s PostState) CanAdvance(next PostState) bool {
	if s.Terminal() {
		return false
	}
	return next > s
}

// PostRecord is the scanner's bookkeeping for one logical post. The DOM
// element itself is never held here; it lives in a side table keyed by ID.
type PostRecord struct {
	ID      string    `json:"id"`
	RawText string    `json:"raw_text"`
	State   PostState `json:"state"`
}

// Advance moves the record to next if the transition is legal and reports
// whether it did.
func (r *PostRecord) Advance(next PostState) bool {
	if !r.State.CanAdvance(next) {
		return false
	}
	r.State = next
	return true
}
