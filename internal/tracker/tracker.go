// Package tracker keeps annotation ranges in step with a live document by
// re-deriving them from the comment marks after every change.
package tracker

import (
	"log"
	"sort"
	"sync"
	"time"

	"chronicle/anchors/internal/anchor"
	"chronicle/anchors/internal/document"
	"chronicle/anchors/internal/util"
)

// DefaultWindow is the quiet period before ranges are reported.
const DefaultWindow = 500 * time.Millisecond

// Source is the part of the document engine the tracker consumes.
type Source interface {
	Snapshot() *document.Doc
	Subscribe(fn func()) (cancel func())
}

// TextSource lists text nodes in document order.
type TextSource interface {
	TextNodes() []document.TextNode
}

// Callback receives the merged ranges once edits have settled, together with
// the frozen document they were read from.
type Callback func(doc *document.Doc, ranges []anchor.Range)

type stopper interface {
	Stop() bool
}

type scheduler func(d time.Duration, fn func()) stopper

func afterFunc(d time.Duration, fn func()) stopper {
	return time.AfterFunc(d, fn)
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithWindow overrides the debounce window.
func WithWindow(window time.Duration) Option {
	return func(t *Tracker) {
		if window > 0 {
			t.window = window
		}
	}
}

// Tracker owns the debounce timer for one open document. At most one
// notification is pending at a time; every change re-arms it, so intermediate
// states are never delivered. Callbacks never overlap.
type Tracker struct {
	id       string
	src      Source
	callback Callback
	window   time.Duration
	schedule scheduler

	// deliverMu is held across scan and callback.
	deliverMu sync.Mutex

	mu          sync.Mutex
	timer       stopper
	generation  uint64
	disposed    bool
	unsubscribe func()
}

// New attaches a tracker to src. Call Dispose when the editing session ends.
func New(src Source, callback Callback, opts ...Option) *Tracker {
	t := &Tracker{
		id:       util.NewID("trk"),
		src:      src,
		callback: callback,
		window:   DefaultWindow,
		schedule: afterFunc,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.unsubscribe = src.Subscribe(t.changed)
	return t
}

// ID identifies the tracker in logs.
func (t *Tracker) ID() string {
	return t.id
}

// Pending reports whether a notification is armed.
func (t *Tracker) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.timer != nil
}

// Flush delivers a pending notification immediately.
func (t *Tracker) Flush() {
	t.mu.Lock()
	if t.disposed || t.timer == nil {
		t.mu.Unlock()
		return
	}
	t.timer.Stop()
	t.timer = nil
	t.generation++
	t.mu.Unlock()

	t.deliver()
}

// Dispose detaches from the document and cancels any pending notification.
// It waits for a callback already in progress, so no callback runs once it
// returns. It must not be called from the callback.
func (t *Tracker) Dispose() {
	t.mu.Lock()
	if t.disposed {
		t.mu.Unlock()
		return
	}
	t.disposed = true
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.generation++
	unsubscribe := t.unsubscribe
	t.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	t.deliverMu.Lock()
	t.deliverMu.Unlock()
}

func (t *Tracker) changed() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.disposed {
		return
	}
	if t.timer != nil {
		t.timer.Stop()
	}
	t.generation++
	generation := t.generation
	t.timer = t.schedule(t.window, func() { t.fire(generation) })
}

func (t *Tracker) fire(generation uint64) {
	t.mu.Lock()
	if t.disposed || generation != t.generation {
		t.mu.Unlock()
		return
	}
	t.timer = nil
	t.mu.Unlock()

	t.deliver()
}

func (t *Tracker) deliver() {
	t.deliverMu.Lock()
	defer t.deliverMu.Unlock()

	t.mu.Lock()
	disposed := t.disposed
	t.mu.Unlock()
	if disposed {
		return
	}

	snapshot := t.src.Snapshot()
	ranges := Scan(snapshot)
	if len(ranges) == 0 {
		return
	}
	t.callback(snapshot, ranges)
}

// Scan derives one range per annotation from the comment marks currently in
// src. Fragments of the same annotation, split by formatting or block
// boundaries, merge into [min start, max end). Marks with malformed
// attributes are logged and skipped.
func Scan(src TextSource) []anchor.Range {
	byID := make(map[string]*anchor.Range)
	var order []string

	for _, node := range src.TextNodes() {
		for _, mark := range node.Marks {
			if mark.Type != anchor.MarkType {
				continue
			}
			tag, err := anchor.ParseTag(mark.Attrs)
			if err != nil {
				log.Printf("tracker: skipping comment mark at %d: %v", node.Pos, err)
				continue
			}
			start, end := node.Pos, node.Pos+node.Len()
			if existing, ok := byID[tag.ID]; ok {
				existing.Start = min(existing.Start, start)
				existing.End = max(existing.End, end)
				continue
			}
			byID[tag.ID] = &anchor.Range{
				ID:       tag.ID,
				Label:    tag.Label,
				Start:    start,
				End:      end,
				Resolved: tag.Resolved,
			}
			order = append(order, tag.ID)
		}
	}

	ranges := make([]anchor.Range, 0, len(order))
	for _, id := range order {
		ranges = append(ranges, *byID[id])
	}
	sort.SliceStable(ranges, func(i, j int) bool {
		if ranges[i].Start != ranges[j].Start {
			return ranges[i].Start < ranges[j].Start
		}
		return ranges[i].ID < ranges[j].ID
	})
	return ranges
}
