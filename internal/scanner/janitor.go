package scanner

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/postsignal/internal/metrics"
)

// Forgetter drops per-post state held outside the scanner.
type Forgetter interface {
	Forget(postID string)
}

// Janitor periodically evicts posts whose elements left the document.
type Janitor struct {
	tracker   *Tracker
	forgetter Forgetter
	interval  time.Duration
}

// NewJanitor returns a Janitor sweeping every interval (5s when zero).
// forgetter may be nil.
func NewJanitor(tracker *Tracker, forgetter Forgetter, interval time.Duration) *Janitor {
	if interval <= 0 {
		interval = DefaultConfig().JanitorInterval
	}
	return &Janitor{tracker: tracker, forgetter: forgetter, interval: interval}
}

// Run sweeps until ctx is done.
func (j *Janitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			j.Sweep()
		}
	}
}

// Sweep evicts every detached post and returns how many it removed.
func (j *Janitor) Sweep() int {
	ids := j.tracker.Detached()
	for _, id := range ids {
		j.tracker.Evict(id)
		if j.forgetter != nil {
			j.forgetter.Forget(id)
		}
	}
	if len(ids) > 0 {
		metrics.JanitorEvictions.Add(float64(len(ids)))
		records, handled := j.tracker.Size()
		zap.L().Debug("janitor: evicted detached posts",
			zap.Int("evicted", len(ids)),
			zap.Int("records", records),
			zap.Int("handled", handled),
		)
	}
	return len(ids)
}
