package access

import (
	"context"
	"sync"

	"spendly/internal/docstore"
	"spendly/internal/log"
)

// queryOrdered runs full. When the store reports a missing composite index it
// runs simple instead and applies full's ordering in memory.
func queryOrdered(ctx context.Context, store docstore.Store, logger *log.Logger, full, simple docstore.Query) ([]docstore.Snapshot, error) {
	snaps, err := store.Query(ctx, full)
	if !docstore.IsCode(err, docstore.CodeFailedPrecondition) {
		return snaps, err
	}
	logger.WarnContext(ctx, "Composite index missing, sorting in memory",
		log.FieldQuery, full.String(),
		log.FieldError, err)

	snaps, err = store.Query(ctx, simple)
	if err != nil {
		return nil, err
	}
	full.Sort(snaps)
	return snaps, nil
}

// subscribeOrdered subscribes to full and, if the store rejects it for a
// missing index, resubscribes to simple and sorts every delivery in memory.
func subscribeOrdered(ctx context.Context, store docstore.Store, logger *log.Logger, full, simple docstore.Query, onChange docstore.SnapshotFunc, onError docstore.ErrorFunc) Unsubscribe {
	var (
		mu       sync.Mutex
		stopped  bool
		fallback docstore.Unsubscribe
	)

	primary := store.Subscribe(ctx, full, onChange, func(err error) {
		if !docstore.IsCode(err, docstore.CodeFailedPrecondition) {
			if onError != nil {
				onError(err)
			}
			return
		}
		logger.Warn("Composite index missing, resubscribing with simple query",
			log.FieldQuery, full.String())

		mu.Lock()
		defer mu.Unlock()
		if stopped {
			return
		}
		fallback = store.Subscribe(ctx, simple, func(snaps []docstore.Snapshot) {
			full.Sort(snaps)
			if onChange != nil {
				onChange(snaps)
			}
		}, onError)
	})

	var once sync.Once
	return func() {
		once.Do(func() {
			mu.Lock()
			stopped = true
			fb := fallback
			mu.Unlock()

			primary()
			if fb != nil {
				fb()
			}
		})
	}
}
