// Package ledger keeps the worker's state in a store.KV as JSON documents:
// the most recent signals, running counters, user settings and the dead
// letter queue.
package ledger

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/postsignal/internal/model"
	"github.com/sells-group/postsignal/internal/store"
)

const (
	RecentSignalsKey = "recent_signals"
	StatsKey         = "stats"

	// DefaultCapacity is the number of entries kept by Record.
	DefaultCapacity = 50
)

// Ledger serializes every read-modify-write against the store.
type Ledger struct {
	kv       store.KV
	capacity int
	now      func() time.Time

	mu sync.Mutex
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithCapacity overrides DefaultCapacity.
func WithCapacity(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.capacity = n
		}
	}
}

// WithClock overrides time.Now for entry timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// New returns a Ledger over kv.
func New(kv store.KV, opts ...Option) *Ledger {
	l := &Ledger{kv: kv, capacity: DefaultCapacity, now: time.Now}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Record prepends a new entry and truncates the list to capacity. Identical
// signals are stored again.
func (l *Ledger) Record(ctx context.Context, signal model.TradingSignal, content *model.DetectedContent) (model.LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.recent(ctx)
	if err != nil {
		return model.LedgerEntry{}, err
	}

	entry := model.LedgerEntry{
		ID:        uuid.New().String(),
		Signal:    signal,
		Content:   content,
		CreatedAt: l.now().UTC(),
	}
	entries = append([]model.LedgerEntry{entry}, entries...)
	if len(entries) > l.capacity {
		entries = entries[:l.capacity]
	}

	if err := l.put(ctx, RecentSignalsKey, entries); err != nil {
		return model.LedgerEntry{}, err
	}
	return entry, nil
}

// UpdateStats increments the total and the counter matching the signal's
// action. Unrecognised actions count toward the total only.
func (l *Ledger) UpdateStats(ctx context.Context, signal model.TradingSignal) (model.Stats, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	stats, err := l.stats(ctx)
	if err != nil {
		return model.Stats{}, err
	}

	stats.TotalSignals++
	switch strings.ToLower(string(signal.Action)) {
	case "buy":
		stats.BuySignals++
	case "sell":
		stats.SellSignals++
	case "avoid", "invert", "hold", "hodl":
		stats.AvoidSignals++
	}

	if err := l.put(ctx, StatsKey, stats); err != nil {
		return model.Stats{}, err
	}
	return stats, nil
}

// Recent returns the stored entries, newest first.
func (l *Ledger) Recent(ctx context.Context) ([]model.LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.recent(ctx)
}

// Stats returns the counters, zero when none are stored.
func (l *Ledger) Stats(ctx context.Context) (model.Stats, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats(ctx)
}

// Clear removes both keys at once.
func (l *Ledger) Clear(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return eris.Wrap(l.kv.Delete(ctx, RecentSignalsKey, StatsKey), "ledger: clear")
}

func (l *Ledger) recent(ctx context.Context) ([]model.LedgerEntry, error) {
	entries := []model.LedgerEntry{}
	if err := l.get(ctx, RecentSignalsKey, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (l *Ledger) stats(ctx context.Context) (model.Stats, error) {
	var stats model.Stats
	err := l.get(ctx, StatsKey, &stats)
	return stats, err
}

func (l *Ledger) get(ctx context.Context, key string, out any) error {
	return getJSON(ctx, l.kv, key, out)
}

func (l *Ledger) put(ctx context.Context, key string, v any) error {
	return putJSON(ctx, l.kv, key, v)
}

func getJSON(ctx context.Context, kv store.KV, key string, out any) error {
	raw, err := kv.Get(ctx, key)
	if err != nil {
		return eris.Wrapf(err, "ledger: read %s", key)
	}
	if raw == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return eris.Wrapf(err, "ledger: decode %s", key)
	}
	return nil
}

func putJSON(ctx context.Context, kv store.KV, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return eris.Wrapf(err, "ledger: encode %s", key)
	}
	return eris.Wrapf(kv.Set(ctx, key, raw), "ledger: write %s", key)
}
