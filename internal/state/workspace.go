package state

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"spendly/internal/core"
	"spendly/internal/log"
	"spendly/internal/prefs"
	"spendly/internal/rates"
)

// Deps are the collaborators shared by every workspace.
type Deps struct {
	Auth            AuthObserver
	Transactions    TransactionSource
	Savings         SavingSource
	Categories      CategorySource
	Prefs           prefs.Store
	Rates           rates.Source
	RefreshInterval time.Duration
	Logger          *log.Logger
}

// Workspace bundles the containers of one signed-in user.
type Workspace struct {
	Session      *Session
	Currency     *Currency
	Theme        *Theme
	Transactions *Transactions
	Savings      *Savings
	Categories   *Categories

	logger   *log.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	disposed sync.Once
}

// NewWorkspace builds the containers for the user behind token. Device
// preferences are kept under the user's own namespace of deps.Prefs.
func NewWorkspace(deps Deps, token string, user *core.User) *Workspace {
	logger := deps.Logger.WithComponent(log.ComponentState)
	store := deps.Prefs
	if user != nil {
		store = prefs.Namespace(store, user.UID)
	}

	session := NewSession(deps.Auth, token)
	session.SetUser(user)
	currency := NewCurrency(store, deps.Rates, deps.RefreshInterval, logger)

	ctx, cancel := context.WithCancel(context.Background())
	return &Workspace{
		Session:      session,
		Currency:     currency,
		Theme:        NewTheme(store),
		Transactions: NewTransactions(deps.Transactions, session, currency, logger),
		Savings:      NewSavings(deps.Savings, session, logger),
		Categories:   NewCategories(deps.Categories, session, logger),
		logger:       logger,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Load fills every container concurrently and returns the first error.
// The currency container never fails: it falls back to cached rates.
func (w *Workspace) Load(ctx context.Context, systemPrefersDark bool) error {
	w.Theme.Load(systemPrefersDark)

	var g errgroup.Group
	g.Go(func() error {
		w.Currency.Initialize(ctx)
		return nil
	})
	g.Go(func() error { return w.Transactions.Load(ctx) })
	g.Go(func() error { return w.Savings.Load(ctx) })
	g.Go(func() error { return w.Savings.LoadGoal(ctx) })
	g.Go(func() error { return w.Categories.Load(ctx) })
	if err := g.Wait(); err != nil {
		w.logger.WarnContext(ctx, "Workspace load incomplete", log.FieldUserID, w.Session.UserID(), log.FieldError, err)
		return err
	}
	return nil
}

// StartRealtime switches transactions and savings to live mode for the
// lifetime of the workspace.
func (w *Workspace) StartRealtime() error {
	if err := w.Transactions.StartRealtime(w.ctx); err != nil {
		return err
	}
	return w.Savings.StartRealtime(w.ctx)
}

// Dispose releases every subscription. Only the first call has an effect.
func (w *Workspace) Dispose() {
	w.disposed.Do(func() {
		w.Transactions.Dispose()
		w.Savings.Dispose()
		w.Session.Dispose()
		w.cancel()
		w.logger.Debug("Workspace disposed", log.FieldUserID, w.Session.UserID())
	})
}
