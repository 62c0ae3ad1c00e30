package access

import (
	"context"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"spendly/internal/core"
	"spendly/internal/docstore"
	"spendly/internal/log"
)

// TransactionFilters narrows a transaction listing. Zero fields are ignored.
type TransactionFilters struct {
	Type     core.TransactionType `json:"type,omitempty"`
	Category string               `json:"category,omitempty"`
}

// queries returns the ordered query and its unordered form, used when the
// store has no composite index for the ordered one.
func (f TransactionFilters) queries(uid string) (full, simple docstore.Query) {
	simple = docstore.From(TransactionsCollection).WhereEq("userId", uid)
	if f.Type != "" {
		simple = simple.WhereEq("type", string(f.Type))
	}
	if f.Category != "" {
		simple = simple.WhereEq("category", f.Category)
	}
	full = simple.Order("date", docstore.Desc).Order("createdAt", docstore.Desc)
	return full, simple
}

// Transactions is the access module for income and expense records.
type Transactions struct {
	store  docstore.Store
	logger *log.Logger
	events *log.StructuredLogger
}

func NewTransactions(store docstore.Store, logger *log.Logger) *Transactions {
	logger = logger.WithComponent(log.ComponentAccess)
	return &Transactions{
		store:  store,
		logger: logger,
		events: log.NewStructuredLogger(logger),
	}
}

// Create stores a new transaction owned by uid and returns its id.
func (t *Transactions) Create(ctx context.Context, in core.TransactionInput, uid string) (string, error) {
	if err := requireUser(uid); err != nil {
		return "", err
	}
	if err := in.Validate(); err != nil {
		return "", err
	}

	data := in.Fields()
	data["userId"] = uid
	data["createdAt"] = docstore.ServerTimestamp
	data["updatedAt"] = docstore.ServerTimestamp

	id, err := t.store.Add(ctx, TransactionsCollection, data)
	if err != nil {
		t.logger.ErrorContext(ctx, "Failed to create transaction", log.FieldUserID, uid, log.FieldError, err)
		return "", translate(opCreateTransaction, err)
	}
	t.events.LogTransactionCreated(ctx, uid, id, string(in.Type), in.Amount, in.Currency, in.Category)
	return id, nil
}

// List returns the user's transactions, newest date first, ties broken by
// creation time.
func (t *Transactions) List(ctx context.Context, uid string, filters TransactionFilters) ([]core.Transaction, error) {
	return t.list(ctx, uid, filters, opListTransactions)
}

func (t *Transactions) ListByType(ctx context.Context, uid string, txType core.TransactionType) ([]core.Transaction, error) {
	return t.list(ctx, uid, TransactionFilters{Type: txType}, opListByType)
}

func (t *Transactions) ListByCategory(ctx context.Context, uid, category string) ([]core.Transaction, error) {
	return t.list(ctx, uid, TransactionFilters{Category: category}, opListByCategory)
}

func (t *Transactions) list(ctx context.Context, uid string, filters TransactionFilters, op operation) ([]core.Transaction, error) {
	if err := requireUser(uid); err != nil {
		return nil, err
	}
	full, simple := filters.queries(uid)
	snaps, err := queryOrdered(ctx, t.store, t.logger, full, simple)
	if err != nil {
		t.logger.ErrorContext(ctx, "Failed to list transactions", log.FieldUserID, uid, log.FieldError, err)
		return nil, translate(op, err)
	}
	txs, err := decodeAll[core.Transaction](snaps)
	if err != nil {
		return nil, translate(op, err)
	}
	return txs, nil
}

// Get returns one transaction. It fails with core.ErrNotFound when missing
// and core.ErrForbidden when owned by someone else.
func (t *Transactions) Get(ctx context.Context, id, uid string) (*core.Transaction, error) {
	tx, err := t.owned(ctx, id, uid, opGetTransaction)
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// Update applies patch and refreshes updatedAt. The patch type has no room
// for id, userId or createdAt, so those never change.
func (t *Transactions) Update(ctx context.Context, id string, patch core.TransactionPatch, uid string) error {
	if _, err := t.owned(ctx, id, uid, opUpdateTransaction); err != nil {
		return err
	}
	if err := patch.Validate(); err != nil {
		return err
	}
	fields := patch.Fields()
	fields["updatedAt"] = docstore.ServerTimestamp
	if err := t.store.Update(ctx, TransactionsCollection, id, fields); err != nil {
		t.logger.ErrorContext(ctx, "Failed to update transaction", log.FieldDocumentID, id, log.FieldError, err)
		return translate(opUpdateTransaction, err)
	}
	return nil
}

func (t *Transactions) Delete(ctx context.Context, id, uid string) error {
	if _, err := t.owned(ctx, id, uid, opDeleteTransaction); err != nil {
		return err
	}
	if err := t.store.Delete(ctx, TransactionsCollection, id); err != nil {
		t.logger.ErrorContext(ctx, "Failed to delete transaction", log.FieldDocumentID, id, log.FieldError, err)
		return translate(opDeleteTransaction, err)
	}
	return nil
}

func (t *Transactions) owned(ctx context.Context, id, uid string, op operation) (core.Transaction, error) {
	var tx core.Transaction
	if err := requireUser(uid); err != nil {
		return tx, err
	}
	if strings.TrimSpace(id) == "" {
		return tx, core.NewError(core.ErrNotFound, msgTransactionNotFound)
	}
	snap, err := t.store.Get(ctx, TransactionsCollection, id)
	if err != nil {
		return tx, translate(op, err)
	}
	if !snap.Exists {
		return tx, core.NewError(core.ErrNotFound, msgTransactionNotFound)
	}
	if err := snap.Decode(&tx); err != nil {
		return tx, translate(op, err)
	}
	if tx.UserID != uid {
		t.logger.WarnContext(ctx, "Transaction access denied",
			log.FieldUserID, uid,
			log.FieldDocumentID, id)
		return tx, core.NewError(core.ErrForbidden, msgTransactionDenied)
	}
	return tx, nil
}

// Subscribe pushes the full ordered list to onChange now and after every
// change. onError receives the error that ended the subscription.
func (t *Transactions) Subscribe(ctx context.Context, uid string, filters TransactionFilters, onChange func([]core.Transaction), onError func(error)) Unsubscribe {
	if err := requireUser(uid); err != nil {
		if onError != nil {
			onError(err)
		}
		return func() {}
	}
	report := func(err error) {
		t.logger.Error("Transaction subscription failed", log.FieldUserID, uid, log.FieldError, err)
		if onError != nil {
			onError(translate(opSubscribeTransactions, err))
		}
	}
	full, simple := filters.queries(uid)
	return subscribeOrdered(ctx, t.store, t.logger, full, simple, func(snaps []docstore.Snapshot) {
		txs, err := decodeAll[core.Transaction](snaps)
		if err != nil {
			report(err)
			return
		}
		onChange(txs)
	}, report)
}

// Summary totals the user's raw amounts without currency conversion.
func (t *Transactions) Summary(ctx context.Context, uid string) (core.TransactionSummary, error) {
	txs, err := t.list(ctx, uid, TransactionFilters{}, opSummaryTransactions)
	if err != nil {
		return core.TransactionSummary{}, err
	}
	return core.SummarizeTransactions(txs), nil
}

// BackfillCurrency sets currency on every transaction of uid that has none.
// Updates run concurrently; all of them are attempted and nothing is rolled
// back. It returns how many documents were updated.
func (t *Transactions) BackfillCurrency(ctx context.Context, uid, currency string) (int, error) {
	if _, ok := core.LookupCurrency(currency); !ok {
		return 0, core.ValidationError("Moneda no soportada")
	}
	txs, err := t.list(ctx, uid, TransactionFilters{}, opBackfillCurrency)
	if err != nil {
		return 0, err
	}

	var (
		g       errgroup.Group
		updated atomic.Int64
	)
	for _, tx := range txs {
		if tx.Currency != "" {
			continue
		}
		id := tx.ID
		g.Go(func() error {
			err := t.store.Update(ctx, TransactionsCollection, id, docstore.Data{
				"currency":  currency,
				"updatedAt": docstore.ServerTimestamp,
			})
			if err != nil {
				return err
			}
			updated.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.logger.ErrorContext(ctx, "Currency backfill incomplete",
			log.FieldUserID, uid,
			log.FieldCurrency, currency,
			log.FieldError, err)
		return int(updated.Load()), translate(opBackfillCurrency, err)
	}
	t.logger.InfoContext(ctx, "Currency backfill completed",
		log.FieldUserID, uid,
		log.FieldCurrency, currency,
		"updated", updated.Load())
	return int(updated.Load()), nil
}
