// Package dedupe coalesces repeated requests for the same key while an
// earlier request is still pending.
//
// The badge pipeline records a user id when a refresh is queued and
// releases it when a worker picks the job up, so a burst of completions
// touching one user results in a single queued refresh.
package dedupe

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
)

const defaultMaxSize = 50000

// Deduper tracks pending keys.
type Deduper interface {
	// SeenAndRecord reports whether id is already pending and records it
	// if not. The check and the write happen under one lock.
	SeenAndRecord(ctx context.Context, id string) bool

	// Unrecord releases id so the next SeenAndRecord for it returns false.
	Unrecord(ctx context.Context, id string)

	Size() int64
}

// inMemoryDeduper keeps pending ids in insertion order. When bounded, the
// oldest id is forgotten first; forgetting only costs a redundant refresh.
type inMemoryDeduper struct {
	mu      sync.Mutex
	index   map[string]*list.Element
	order   *list.List
	maxSize int
	size    atomic.Int64
}

// NewInMemoryDeduper creates a deduper. maxSize <= 0 means unbounded.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{maxSize: defaultMaxSize}
	for _, opt := range opts {
		opt(d)
	}
	d.index = make(map[string]*list.Element)
	d.order = list.New()
	return d
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.index[id]; ok {
		return true
	}
	if d.maxSize > 0 && d.order.Len() >= d.maxSize {
		d.evictOldest()
	}
	d.index[id] = d.order.PushBack(id)
	d.size.Add(1)
	return false
}

func (d *inMemoryDeduper) Unrecord(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	el, ok := d.index[id]
	if !ok {
		return
	}
	d.order.Remove(el)
	delete(d.index, id)
	d.size.Add(-1)
}

// evictOldest must be called with d.mu held.
func (d *inMemoryDeduper) evictOldest() {
	front := d.order.Front()
	if front == nil {
		return
	}
	d.order.Remove(front)
	delete(d.index, front.Value.(string))
	d.size.Add(-1)
}

func (d *inMemoryDeduper) Size() int64 {
	return d.size.Load()
}
