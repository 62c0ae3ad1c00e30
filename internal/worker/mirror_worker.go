package worker

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"spendly/internal/access"
	"spendly/internal/amqp"
	"spendly/internal/core"
	"spendly/internal/docstore"
	"spendly/internal/log"
	"spendly/internal/sheets"
)

// DefaultResyncConcurrency bounds the parallel writes of a full resync.
const DefaultResyncConcurrency = 4

// MirrorWorker keeps the transaction sheet in step with the document store.
// Change messages only name a document; the worker always reads the current
// version before writing, so redelivered or reordered messages converge.
type MirrorWorker struct {
	store       docstore.Store
	mirror      sheets.TransactionMirror
	logger      *log.Logger
	concurrency int
	now         func() time.Time
}

func NewMirrorWorker(store docstore.Store, mirror sheets.TransactionMirror, logger *log.Logger) *MirrorWorker {
	return &MirrorWorker{
		store:       store,
		mirror:      mirror,
		logger:      logger.WithComponent(log.ComponentWorker),
		concurrency: DefaultResyncConcurrency,
		now:         time.Now,
	}
}

// HandleChange applies one change message. Messages for other collections
// are acknowledged without work. A returned error requeues the message.
func (w *MirrorWorker) HandleChange(ctx context.Context, msg *amqp.ChangeMessage) error {
	if msg.Collection != access.TransactionsCollection {
		w.logger.DebugContext(ctx, "Ignoring change outside transactions",
			log.FieldCollection, msg.Collection,
			log.FieldDocumentID, msg.ID)
		return nil
	}

	w.logger.InfoContext(ctx, "Processing change message",
		log.FieldDocumentID, msg.ID,
		log.FieldOperation, msg.Op,
		log.FieldUserID, msg.UserID)

	if docstore.ChangeOp(msg.Op) == docstore.OpDelete {
		return w.markDeleted(ctx, msg.ID)
	}

	snap, err := w.store.Get(ctx, access.TransactionsCollection, msg.ID)
	if err != nil {
		return fmt.Errorf("read transaction %s: %w", msg.ID, err)
	}
	if !snap.Exists {
		// Deleted after the write was announced; the delete message may
		// still be queued behind this one.
		return w.markDeleted(ctx, msg.ID)
	}
	return w.sync(ctx, snap)
}

func (w *MirrorWorker) sync(ctx context.Context, snap docstore.Snapshot) error {
	var tx core.Transaction
	if err := snap.Decode(&tx); err != nil {
		// A document that cannot be decoded will not decode on retry either.
		w.logger.ErrorContext(ctx, "Skipping undecodable transaction",
			log.FieldDocumentID, snap.ID,
			log.FieldError, err)
		return nil
	}
	ref, err := w.mirror.Upsert(ctx, sheets.RowFromTransaction(tx, w.now()))
	if err != nil {
		return fmt.Errorf("mirror transaction %s: %w", tx.ID, err)
	}
	w.logger.InfoContext(ctx, "Transaction mirrored",
		log.FieldDocumentID, tx.ID,
		log.FieldUserID, tx.UserID,
		log.FieldSheetsRef, ref)
	return nil
}

func (w *MirrorWorker) markDeleted(ctx context.Context, id string) error {
	if err := w.mirror.MarkDeleted(ctx, id, w.now()); err != nil {
		return fmt.Errorf("mark transaction %s deleted: %w", id, err)
	}
	w.logger.InfoContext(ctx, "Transaction marked deleted", log.FieldDocumentID, id)
	return nil
}

// Resync mirrors every stored transaction. It recovers rows missed while the
// worker or the broker was down and is run once at startup.
func (w *MirrorWorker) Resync(ctx context.Context) (synced, failed int, err error) {
	snaps, err := w.store.Query(ctx, docstore.From(access.TransactionsCollection))
	if err != nil {
		return 0, 0, fmt.Errorf("list transactions for resync: %w", err)
	}
	if len(snaps) == 0 {
		w.logger.InfoContext(ctx, "No transactions to resync")
		return 0, 0, nil
	}

	var ok, bad atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)
	for _, snap := range snaps {
		g.Go(func() error {
			if err := w.sync(gctx, snap); err != nil {
				w.logger.ErrorContext(gctx, "Failed to resync transaction",
					log.FieldDocumentID, snap.ID,
					log.FieldError, err)
				bad.Add(1)
				return nil
			}
			ok.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	w.logger.InfoContext(ctx, "Startup resync completed",
		"total", len(snaps),
		"synced", ok.Load(),
		"errors", bad.Load())
	return int(ok.Load()), int(bad.Load()), ctx.Err()
}
