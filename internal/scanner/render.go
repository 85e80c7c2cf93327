package scanner

import (
	"fmt"
	"html"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/postsignal/internal/model"
)

// Render draws signal next to the post's text and marks the post displayed.
// A post that has left the document or already shows an overlay is left
// alone.
func (s *Scanner) Render(postID string, signal model.TradingSignal) {
	log := zap.L().With(zap.String("post_id", postID))

	el, ok := s.tracker.Element(postID)
	if !ok || !el.Attached() {
		log.Debug("scanner: render target gone")
		return
	}
	if el.First("."+s.cfg.OverlayClass) != nil {
		return
	}

	anchor := el
	for _, sel := range s.resolver.TextSelectors {
		if found := el.First(sel); found != nil {
			anchor = found
			break
		}
	}

	if _, err := s.page.InsertAfter(anchor, s.overlayHTML(postID, signal)); err != nil {
		log.Warn("scanner: render failed", zap.Error(err))
		return
	}
	s.tracker.Shown(postID, signal)
	s.tracker.Complete(postID, model.PostDisplayed)
	log.Info("scanner: signal displayed",
		zap.String("action", string(signal.Action)),
		zap.Int("confidence", signal.Confidence),
	)
}

// Abandon marks a post whose request never got a response. It stays
// handled until the janitor evicts it.
func (s *Scanner) Abandon(postID string) {
	s.tracker.Complete(postID, model.PostDiscarded)
}

func (s *Scanner) overlayHTML(postID string, signal model.TradingSignal) string {
	action := strings.ToLower(string(signal.Action))
	var b strings.Builder
	fmt.Fprintf(&b, `<div class="%s %s-%s" data-post-id="%s" data-action="%s" data-confidence="%d">`,
		s.cfg.OverlayClass, s.cfg.OverlayClass, action,
		html.EscapeString(postID), html.EscapeString(string(signal.Action)), signal.Confidence)
	fmt.Fprintf(&b, `<span class="postsignal-action">%s</span>`, html.EscapeString(string(signal.Action)))
	fmt.Fprintf(&b, `<span class="postsignal-confidence">%d/10</span>`, signal.Confidence)
	if signal.Token != "" {
		fmt.Fprintf(&b, `<span class="postsignal-token">$%s</span>`, html.EscapeString(signal.Token))
	}
	fmt.Fprintf(&b, `<p class="postsignal-explanation">%s</p>`, html.EscapeString(signal.Explanation))
	b.WriteString(`</div>`)
	return b.String()
}
