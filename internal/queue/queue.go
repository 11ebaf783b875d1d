// Package queue provides the per-participant ordered queue of pending
// validations.
package queue

import (
	"container/heap"
	"time"

	"github.com/naccdata/flywheel-gear-extensions-sub002/internal/classify"
	"github.com/naccdata/flywheel-gear-extensions-sub002/internal/visit"
)

// Entry is one pending validation.
type Entry struct {
	Record visit.Record
	Tier   classify.Tier
	// Reset is the status reset mode the validation runs under.
	Reset visit.ResetMode
	// Origin is the cascade origin timestamp, zero for upstream work.
	Origin time.Time
}

func (e Entry) key() classify.Key {
	return classify.KeyOf(e.Record, e.Tier)
}

// OrderedQueue is a binary min-heap of entries keyed by the classify
// comparator, de-duplicated by record id.
//
// An OrderedQueue belongs to exactly one worker. It is not safe for
// concurrent use.
type OrderedQueue struct {
	h       entryHeap
	pending map[string]struct{}
}

// New creates an empty queue ordered by cmp.
func New(cmp classify.Comparator) *OrderedQueue {
	return &OrderedQueue{
		h:       entryHeap{cmp: cmp},
		pending: make(map[string]struct{}),
	}
}

// Push adds an entry. Returns false without changing the queue if an entry
// with the same record id is already pending; the first push wins.
// Returns classify.ErrUnknownTier for unclassified entries.
func (q *OrderedQueue) Push(e Entry) (bool, error) {
	if e.Tier == classify.Unknown {
		return false, classify.ErrUnknownTier
	}
	if _, ok := q.pending[e.Record.ID]; ok {
		return false, nil
	}
	q.pending[e.Record.ID] = struct{}{}
	heap.Push(&q.h, e)
	return true, nil
}

// Pop removes and returns the first entry in processing order.
// Returns (Entry{}, false) when the queue is empty.
func (q *OrderedQueue) Pop() (Entry, bool) {
	if q.h.Len() == 0 {
		return Entry{}, false
	}
	e := heap.Pop(&q.h).(Entry)
	delete(q.pending, e.Record.ID)
	return e, true
}

// Len returns the number of pending entries.
func (q *OrderedQueue) Len() int {
	return q.h.Len()
}

// Contains reports whether a record id is pending.
func (q *OrderedQueue) Contains(id string) bool {
	_, ok := q.pending[id]
	return ok
}

// entryHeap implements heap.Interface.
type entryHeap struct {
	cmp     classify.Comparator
	entries []Entry
}

func (h entryHeap) Len() int { return len(h.entries) }

func (h entryHeap) Less(i, j int) bool {
	return h.cmp.Less(h.entries[i].key(), h.entries[j].key())
}

func (h entryHeap) Swap(i, j int) { h.entries[i], h.entries[j] = h.entries[j], h.entries[i] }

func (h *entryHeap) Push(x any) { h.entries = append(h.entries, x.(Entry)) }

func (h *entryHeap) Pop() any {
	n := len(h.entries)
	e := h.entries[n-1]
	// Clear the slot so the popped record's maps can be collected.
	h.entries[n-1] = Entry{}
	h.entries = h.entries[:n-1]
	return e
}
