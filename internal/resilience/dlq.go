package resilience

import (
	"time"

	"github.com/sells-group/postsignal/internal/model"
)

// DLQEntry is an analysis request that never got a response and can be
// sent again later.
type DLQEntry struct {
	ID           string                `json:"id"`
	PostID       string                `json:"post_id"`
	Content      model.DetectedContent `json:"content"`
	Error        string                `json:"error"`
	ErrorType    string                `json:"error_type"` // "transient" or "permanent"
	RetryCount   int                   `json:"retry_count"`
	MaxRetries   int                   `json:"max_retries"`
	NextRetryAt  time.Time             `json:"next_retry_at"`
	CreatedAt    time.Time             `json:"created_at"`
	LastFailedAt time.Time             `json:"last_failed_at"`
}

// DLQFilter specifies criteria for querying the dead letter queue.
type DLQFilter struct {
	ErrorType string `json:"error_type,omitempty"` // "transient", "permanent", or "" for all
	Limit     int    `json:"limit,omitempty"`
}

// CanRetry returns true if this entry hasn't exceeded its max retry count.
func (e *DLQEntry) CanRetry() bool {
	return e.RetryCount < e.MaxRetries
}

// Due reports whether the entry may be retried at now.
func (e *DLQEntry) Due(now time.Time) bool {
	return e.CanRetry() && !e.NextRetryAt.After(now)
}

// ClassifyError categorizes an error as "transient" or "permanent".
func ClassifyError(err error) string {
	if IsTransient(err) {
		return "transient"
	}
	return "permanent"
}
