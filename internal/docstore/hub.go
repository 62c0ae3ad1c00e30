package docstore

import (
	"context"
	"sync"
	"time"
)

// ChangeOp names the kind of write that produced a Change.
type ChangeOp string

const (
	OpCreate ChangeOp = "create"
	OpUpdate ChangeOp = "update"
	OpDelete ChangeOp = "delete"
)

// Change describes one committed write.
type Change struct {
	Collection string    `json:"collection"`
	ID         string    `json:"id"`
	Op         ChangeOp  `json:"op"`
	Data       Data      `json:"data,omitempty"`
	At         time.Time `json:"at"`
}

// ChangePublisher forwards committed writes outside the process.
type ChangePublisher interface {
	PublishChange(ctx context.Context, change Change) error
}

// Runner evaluates a subscribed query.
type Runner func(ctx context.Context) ([]Snapshot, error)

// Hub fans collection writes out to live query subscriptions. Each
// subscription runs its own goroutine and re-evaluates its query after every
// write to its collection; bursts of writes collapse into one evaluation.
type Hub struct {
	mu     sync.Mutex
	subs   map[uint64]*subscription
	nextID uint64
}

type subscription struct {
	collection string
	dirty      chan struct{}
	stop       chan struct{}
	once       sync.Once
}

func NewHub() *Hub {
	return &Hub{subs: make(map[uint64]*subscription)}
}

// Subscribe starts delivering run's results. The first delivery happens
// asynchronously right after Subscribe returns. A failing run is reported to
// onError and ends the subscription.
func (h *Hub) Subscribe(ctx context.Context, collection string, run Runner, onChange SnapshotFunc, onError ErrorFunc) Unsubscribe {
	s := &subscription{
		collection: collection,
		dirty:      make(chan struct{}, 1),
		stop:       make(chan struct{}),
	}
	s.dirty <- struct{}{}

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = s
	h.mu.Unlock()

	unsubscribe := func() {
		s.once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(s.stop)
		})
	}

	go func() {
		defer unsubscribe()
		for {
			select {
			case <-s.stop:
				return
			case <-ctx.Done():
				return
			case <-s.dirty:
			}

			snaps, err := run(ctx)
			if s.stopped() {
				return
			}
			if err != nil {
				if onError != nil {
					onError(err)
				}
				return
			}
			if onChange != nil {
				onChange(snaps)
			}
		}
	}()

	return unsubscribe
}

func (s *subscription) stopped() bool {
	select {
	case <-s.stop:
		return true
	default:
		return false
	}
}

// Notify marks every subscription on collection as stale.
func (h *Hub) Notify(collection string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.subs {
		if s.collection != collection {
			continue
		}
		select {
		case s.dirty <- struct{}{}:
		default:
		}
	}
}

// Len returns the number of live subscriptions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close ends every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := make([]*subscription, 0, len(h.subs))
	for id, s := range h.subs {
		subs = append(subs, s)
		delete(h.subs, id)
	}
	h.mu.Unlock()
	for _, s := range subs {
		s.once.Do(func() { close(s.stop) })
	}
}

// IndexSet records declared composite indexes.
type IndexSet struct {
	mu   sync.RWMutex
	keys map[string]bool
}

func NewIndexSet() *IndexSet {
	return &IndexSet{keys: make(map[string]bool)}
}

// Declare registers the index serving q.
func (s *IndexSet) Declare(q Query) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[q.IndexKey()] = true
}

// Check returns failed-precondition when q needs an undeclared index.
func (s *IndexSet) Check(q Query) error {
	if !q.NeedsCompositeIndex() {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.keys[q.IndexKey()] {
		return nil
	}
	return NewError(CodeFailedPrecondition, "The query requires an index: "+q.IndexKey())
}
