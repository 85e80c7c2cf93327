package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/postsignal/internal/resilience"
	"github.com/sells-group/postsignal/internal/store"
)

// DeadLettersKey holds the dead letter queue.
const DeadLettersKey = "dead_letters"

const defaultDLQLimit = 100

// DeadLetters is a dead letter queue of analysis requests kept in a
// store.KV under one JSON key.
type DeadLetters struct {
	kv  store.KV
	now func() time.Time

	mu sync.Mutex
}

// NewDeadLetters returns a queue over kv.
func NewDeadLetters(kv store.KV) *DeadLetters {
	return &DeadLetters{kv: kv, now: time.Now}
}

// EnqueueDLQ inserts entry, or replaces the entry with the same ID.
func (d *DeadLetters) EnqueueDLQ(ctx context.Context, entry resilience.DLQEntry) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	entries, err := d.load(ctx)
	if err != nil {
		return err
	}
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = d.now().UTC()
	}

	replaced := false
	for i := range entries {
		if entries[i].ID == entry.ID {
			entries[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		entries = append(entries, entry)
	}
	return d.save(ctx, entries)
}

// DequeueDLQ returns the entries due for a retry, oldest due first. It does
// not remove them.
func (d *DeadLetters) DequeueDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	entries, err := d.load(ctx)
	if err != nil {
		return nil, err
	}

	now := d.now()
	var due []resilience.DLQEntry
	for _, e := range entries {
		if !e.Due(now) {
			continue
		}
		if filter.ErrorType != "" && e.ErrorType != filter.ErrorType {
			continue
		}
		due = append(due, e)
	}
	sort.SliceStable(due, func(i, j int) bool {
		return due[i].NextRetryAt.Before(due[j].NextRetryAt)
	})

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultDLQLimit
	}
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

// IncrementDLQRetry records another failed attempt for id.
func (d *DeadLetters) IncrementDLQRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	entries, err := d.load(ctx)
	if err != nil {
		return err
	}
	for i := range entries {
		if entries[i].ID != id {
			continue
		}
		entries[i].RetryCount++
		entries[i].NextRetryAt = nextRetryAt
		entries[i].Error = lastErr
		entries[i].LastFailedAt = d.now().UTC()
		return d.save(ctx, entries)
	}
	return eris.Errorf("dlq_entry not found: %s", id)
}

// RemoveDLQ deletes id. Removing an unknown id is not an error.
func (d *DeadLetters) RemoveDLQ(ctx context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	entries, err := d.load(ctx)
	if err != nil {
		return err
	}
	kept := entries[:0]
	for _, e := range entries {
		if e.ID != id {
			kept = append(kept, e)
		}
	}
	if len(kept) == len(entries) {
		return nil
	}
	return d.save(ctx, kept)
}

// CountDLQ returns the number of entries, due or not.
func (d *DeadLetters) CountDLQ(ctx context.Context) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	entries, err := d.load(ctx)
	return len(entries), err
}

func (d *DeadLetters) load(ctx context.Context) ([]resilience.DLQEntry, error) {
	entries := []resilience.DLQEntry{}
	if err := getJSON(ctx, d.kv, DeadLettersKey, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (d *DeadLetters) save(ctx context.Context, entries []resilience.DLQEntry) error {
	return putJSON(ctx, d.kv, DeadLettersKey, entries)
}
