package scanner

import (
	"sync"

	"github.com/sells-group/postsignal/internal/dom"
	"github.com/sells-group/postsignal/internal/model"
)

// Item is one queued post element and the id it resolved to at enqueue
// time.
type Item struct {
	Element *dom.Element
	ID      string
}

// Tracker holds post records, the id→element side table, the handled set
// and the scan queue. Records never reference elements directly. Only
// Evict removes ids from the handled set.
type Tracker struct {
	mu       sync.Mutex
	records  map[string]*model.PostRecord
	elements map[string]*dom.Element
	handled  map[string]struct{}
	shown    map[string]model.TradingSignal

	queue       []Item
	queuedNodes map[dom.NodeKey]struct{}
	queuedIDs   map[string]struct{}
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{
		records:     make(map[string]*model.PostRecord),
		elements:    make(map[string]*dom.Element),
		handled:     make(map[string]struct{}),
		shown:       make(map[string]model.TradingSignal),
		queuedNodes: make(map[dom.NodeKey]struct{}),
		queuedIDs:   make(map[string]struct{}),
	}
}

// Enqueue appends el under id unless the node or the id is already queued
// or id is handled.
func (t *Tracker) Enqueue(el *dom.Element, id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.handled[id]; ok {
		return false
	}
	if _, ok := t.queuedNodes[el.Key()]; ok {
		return false
	}
	if _, ok := t.queuedIDs[id]; ok {
		return false
	}

	t.queue = append(t.queue, Item{Element: el, ID: id})
	t.queuedNodes[el.Key()] = struct{}{}
	t.queuedIDs[id] = struct{}{}

	rec := t.freshRecord(id)
	rec.Advance(model.PostQueued)
	t.elements[id] = el
	return true
}

// Pop removes and returns up to n items in FIFO order.
func (t *Tracker) Pop(n int) []Item {
	t.mu.Lock()
	defer t.mu.Unlock()

	if n > len(t.queue) {
		n = len(t.queue)
	}
	batch := make([]Item, n)
	copy(batch, t.queue[:n])
	t.queue = t.queue[n:]
	for _, it := range batch {
		delete(t.queuedNodes, it.Element.Key())
		delete(t.queuedIDs, it.ID)
	}
	return batch
}

// Len returns the number of queued items.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.queue)
}

// IsHandled reports whether id has been handed to analysis.
func (t *Tracker) IsHandled(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.handled[id]
	return ok
}

// MarkHandled records that id is being analysed. It returns false if id was
// already handled.
func (t *Tracker) MarkHandled(id string, el *dom.Element, text string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.handled[id]; ok {
		return false
	}
	rec := t.freshRecord(id)
	rec.RawText = text
	rec.Advance(model.PostAnalyzing)
	t.elements[id] = el
	t.handled[id] = struct{}{}
	return true
}

// Rebind points handled id at el when the page has rendered the post again
// as a new node, so the janitor follows the live node instead of evicting
// the id. redraw is true when el is a new node and id already shows a
// signal, which is returned.
func (t *Tracker) Rebind(id string, el *dom.Element) (signal model.TradingSignal, redraw bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.handled[id]; !ok {
		return model.TradingSignal{}, false
	}
	if cur, ok := t.elements[id]; ok && cur.Same(el) {
		return model.TradingSignal{}, false
	}
	t.elements[id] = el
	signal, redraw = t.shown[id]
	return signal, redraw
}

// Shown remembers the signal drawn for id.
func (t *Tracker) Shown(id string, signal model.TradingSignal) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.handled[id]; ok {
		t.shown[id] = signal
	}
}

// Discard marks an unhandled post as not worth analysing. It stays
// eligible for a later scan.
func (t *Tracker) Discard(id string, el *dom.Element, text string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec := t.freshRecord(id)
	rec.RawText = text
	rec.Advance(model.PostDiscarded)
	t.elements[id] = el
}

// Complete moves a handled post to a terminal state.
func (t *Tracker) Complete(id string, state model.PostState) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[id]
	if !ok {
		return false
	}
	return rec.Advance(state)
}

// Element looks up the side table.
func (t *Tracker) Element(id string) (*dom.Element, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	el, ok := t.elements[id]
	return el, ok
}

// Record returns a copy of id's record.
func (t *Tracker) Record(id string) (model.PostRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[id]
	if !ok {
		return model.PostRecord{}, false
	}
	return *rec, true
}

// Detached returns the ids whose element has left the document.
func (t *Tracker) Detached() []string {
	t.mu.Lock()
	snapshot := make(map[string]*dom.Element, len(t.elements))
	for id, el := range t.elements {
		snapshot[id] = el
	}
	t.mu.Unlock()

	var out []string
	for id, el := range snapshot {
		if !el.Attached() {
			out = append(out, id)
		}
	}
	return out
}

// Evict removes id from the side table, the handled set and the records.
func (t *Tracker) Evict(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.elements, id)
	delete(t.handled, id)
	delete(t.records, id)
	delete(t.shown, id)
}

// Size returns the number of tracked records and handled ids.
func (t *Tracker) Size() (records, handled int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.records), len(t.handled)
}

// freshRecord returns id's record, replacing a terminal record of an
// unhandled post with a new one. Callers hold t.mu.
func (t *Tracker) freshRecord(id string) *model.PostRecord {
	rec, ok := t.records[id]
	if ok {
		if _, handled := t.handled[id]; handled || !rec.State.Terminal() {
			return rec
		}
	}
	rec = &model.PostRecord{ID: id, State: model.PostUnseen}
	t.records[id] = rec
	return rec
}
