package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/postsignal/internal/model"
	"github.com/sells-group/postsignal/internal/store"
)

func sig(action string, conf int) model.TradingSignal {
	return model.TradingSignal{Action: model.Action(action), Confidence: conf, Explanation: "x"}
}

func TestRecord_PrependsNewestFirst(t *testing.T) {
	ctx := context.Background()
	l := New(store.NewMemory())

	content := &model.DetectedContent{FullText: "$BONK moon"}
	first, err := l.Record(ctx, sig("BUY", 7), content)
	require.NoError(t, err)
	second, err := l.Record(ctx, sig("SELL", 3), nil)
	require.NoError(t, err)

	got, err := l.Recent(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, second.ID, got[0].ID)
	assert.Equal(t, first.ID, got[1].ID)
	assert.Equal(t, "$BONK moon", got[1].Content.FullText)
	assert.Nil(t, got[0].Content)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestRecord_CapsAtCapacity(t *testing.T) {
	ctx := context.Background()
	l := New(store.NewMemory())

	for i := 1; i <= 51; i++ {
		s := sig("BUY", 5)
		s.Explanation = fmt.Sprintf("signal %d", i)
		_, err := l.Record(ctx, s, nil)
		require.NoError(t, err)
	}

	got, err := l.Recent(ctx)
	require.NoError(t, err)
	require.Len(t, got, DefaultCapacity)
	assert.Equal(t, "signal 51", got[0].Signal.Explanation)
	assert.Equal(t, "signal 2", got[49].Signal.Explanation, "oldest entry dropped")
}

func TestRecord_NoDedup(t *testing.T) {
	ctx := context.Background()
	l := New(store.NewMemory(), WithCapacity(3))
	for i := 0; i < 5; i++ {
		_, err := l.Record(ctx, sig("AVOID", 2), nil)
		require.NoError(t, err)
	}
	got, _ := l.Recent(ctx)
	assert.Len(t, got, 3)
}

func TestRecord_Timestamp(t *testing.T) {
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	l := New(store.NewMemory(), WithClock(func() time.Time { return at }))

	entry, err := l.Record(context.Background(), sig("BUY", 5), nil)
	require.NoError(t, err)
	assert.Equal(t, at, entry.CreatedAt)
}

func TestUpdateStats(t *testing.T) {
	ctx := context.Background()
	l := New(store.NewMemory())

	for _, a := range []string{"BUY", "buy", "SELL", "AVOID", "invert", "HOLD", "hodl", "MAYBE"} {
		_, err := l.UpdateStats(ctx, sig(a, 5))
		require.NoError(t, err)
	}

	stats, err := l.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.Stats{TotalSignals: 8, BuySignals: 2, SellSignals: 1, AvoidSignals: 4}, stats)
}

func TestStats_MonotonicUntilClear(t *testing.T) {
	ctx := context.Background()
	l := New(store.NewMemory())

	prev := model.Stats{}
	for _, a := range []string{"BUY", "SELL", "AVOID", "???", "BUY"} {
		next, err := l.UpdateStats(ctx, sig(a, 5))
		require.NoError(t, err)
		assert.Equal(t, prev.TotalSignals+1, next.TotalSignals)
		assert.GreaterOrEqual(t, next.BuySignals, prev.BuySignals)
		assert.GreaterOrEqual(t, next.SellSignals, prev.SellSignals)
		assert.GreaterOrEqual(t, next.AvoidSignals, prev.AvoidSignals)
		prev = next
	}

	require.NoError(t, l.Clear(ctx))
	stats, err := l.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats)
	recent, err := l.Recent(ctx)
	require.NoError(t, err)
	assert.Empty(t, recent)
}

func TestEmptyLedger(t *testing.T) {
	l := New(store.NewMemory())
	recent, err := l.Recent(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, recent)
	assert.Empty(t, recent)

	stats, err := l.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats)
}

func TestConcurrentUpdatesAreSerialized(t *testing.T) {
	ctx := context.Background()
	l := New(store.NewMemory())

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = l.Record(ctx, sig("BUY", 5), nil)
			_, _ = l.UpdateStats(ctx, sig("BUY", 5))
		}()
	}
	wg.Wait()

	stats, _ := l.Stats(ctx)
	assert.Equal(t, 40, stats.TotalSignals)
	recent, _ := l.Recent(ctx)
	assert.Len(t, recent, 40)
}

type failingKV struct{ store.KV }

func (failingKV) Get(context.Context, string) ([]byte, error) { return nil, errors.New("disk gone") }

func TestReadErrorsSurface(t *testing.T) {
	l := New(failingKV{store.NewMemory()})
	_, err := l.Record(context.Background(), sig("BUY", 5), nil)
	assert.ErrorContains(t, err, "ledger: read recent_signals")
	_, err = l.UpdateStats(context.Background(), sig("BUY", 5))
	assert.ErrorContains(t, err, "ledger: read stats")
}

func TestCorruptValue(t *testing.T) {
	kv := store.NewMemory()
	require.NoError(t, kv.Set(context.Background(), StatsKey, []byte("not json")))
	_, err := New(kv).Stats(context.Background())
	assert.ErrorContains(t, err, "ledger: decode stats")
}
