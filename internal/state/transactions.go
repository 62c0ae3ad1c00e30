package state

import (
	"cmp"
	"context"
	"slices"
	"time"

	"spendly/internal/access"
	"spendly/internal/core"
	"spendly/internal/log"
)

// DefaultRecent is the number of entries Recent returns for n <= 0.
const DefaultRecent = 10

// TransactionSource is the transaction access module.
type TransactionSource interface {
	Create(ctx context.Context, in core.TransactionInput, uid string) (string, error)
	List(ctx context.Context, uid string, filters access.TransactionFilters) ([]core.Transaction, error)
	ListByType(ctx context.Context, uid string, txType core.TransactionType) ([]core.Transaction, error)
	ListByCategory(ctx context.Context, uid, category string) ([]core.Transaction, error)
	Update(ctx context.Context, id string, patch core.TransactionPatch, uid string) error
	Delete(ctx context.Context, id, uid string) error
	Subscribe(ctx context.Context, uid string, filters access.TransactionFilters, onChange func([]core.Transaction), onError func(error)) access.Unsubscribe
}

// Converter converts amounts into the display currency when to is "".
type Converter interface {
	ConvertAmount(amount float64, from, to string) float64
}

// Filters narrows Filtered. Zero fields match everything; set fields are
// AND-combined. Dates are inclusive "YYYY-MM-DD" bounds. Month only applies
// together with Year.
type Filters struct {
	Type          core.TransactionType `json:"type,omitempty"`
	Category      string               `json:"category,omitempty"`
	PaymentMethod string               `json:"paymentMethod,omitempty"`
	DateFrom      string               `json:"dateFrom,omitempty"`
	DateTo        string               `json:"dateTo,omitempty"`
	Year          int                  `json:"year,omitempty"`
	Month         int                  `json:"month,omitempty"`
	MinAmount     *float64             `json:"minAmount,omitempty"`
	MaxAmount     *float64             `json:"maxAmount,omitempty"`
}

func (f Filters) match(t core.Transaction) bool {
	switch {
	case f.Type != "" && t.Type != f.Type:
		return false
	case f.Category != "" && t.Category != f.Category:
		return false
	case f.PaymentMethod != "" && t.PaymentMethod != f.PaymentMethod:
		return false
	case f.DateFrom != "" && core.CompareDateStrings(t.Date, f.DateFrom) < 0:
		return false
	case f.DateTo != "" && core.CompareDateStrings(t.Date, f.DateTo) > 0:
		return false
	case f.Year != 0 && f.Month != 0 && !core.IsDateInMonth(t.Date, f.Year, f.Month):
		return false
	case f.Year != 0 && f.Month == 0 && !core.IsDateInYear(t.Date, f.Year):
		return false
	case f.MinAmount != nil && t.Amount < *f.MinAmount:
		return false
	case f.MaxAmount != nil && t.Amount > *f.MaxAmount:
		return false
	}
	return true
}

// Transactions caches the user's transactions.
type Transactions struct {
	status

	src      TransactionSource
	user     UserSource
	currency Converter
	logger   *log.Logger
	now      func() time.Time

	items   []core.Transaction
	filters Filters
	live    bool
	gen     int
	unsub   access.Unsubscribe
}

// NewTransactions builds the container. currency may be nil, in which case
// Summary adds raw amounts.
func NewTransactions(src TransactionSource, user UserSource, currency Converter, logger *log.Logger) *Transactions {
	return &Transactions{
		src:      src,
		user:     user,
		currency: currency,
		logger:   logger.WithComponent(log.ComponentState),
		now:      time.Now,
	}
}

// Load replaces the cache with every transaction of the user. While live
// the subscription owns the cache and only the error state is touched.
func (t *Transactions) Load(ctx context.Context) error {
	_, err := t.load(ctx, func(uid string) ([]core.Transaction, error) {
		return t.src.List(ctx, uid, access.TransactionFilters{})
	})
	return err
}

// LoadByType replaces the cache with the transactions of one type.
func (t *Transactions) LoadByType(ctx context.Context, txType core.TransactionType) ([]core.Transaction, error) {
	return t.load(ctx, func(uid string) ([]core.Transaction, error) {
		return t.src.ListByType(ctx, uid, txType)
	})
}

// LoadByCategory replaces the cache with the transactions of one category.
func (t *Transactions) LoadByCategory(ctx context.Context, category string) ([]core.Transaction, error) {
	return t.load(ctx, func(uid string) ([]core.Transaction, error) {
		return t.src.ListByCategory(ctx, uid, category)
	})
}

func (t *Transactions) load(ctx context.Context, list func(uid string) ([]core.Transaction, error)) ([]core.Transaction, error) {
	uid := t.user.UserID()
	t.mu.Lock()
	if uid == "" {
		defer t.mu.Unlock()
		return nil, t.fail(unauthenticated())
	}
	t.begin()
	t.mu.Unlock()

	items, err := list(uid)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.loading = false
	if err != nil {
		return nil, t.fail(err)
	}
	if !t.live {
		t.items = items
	}
	t.logger.DebugContext(ctx, "Transactions loaded", log.FieldUserID, uid, "count", len(items))
	return slices.Clone(items), nil
}

// StartRealtime switches the container to live mode. It is a no-op when a
// subscription is already running.
func (t *Transactions) StartRealtime(ctx context.Context) error {
	uid := t.user.UserID()
	t.mu.Lock()
	if uid == "" {
		defer t.mu.Unlock()
		return t.fail(unauthenticated())
	}
	if t.live {
		t.mu.Unlock()
		return nil
	}
	t.gen++
	gen := t.gen
	t.live = true
	t.mu.Unlock()

	unsub := t.src.Subscribe(ctx, uid, access.TransactionFilters{},
		func(items []core.Transaction) {
			t.mu.Lock()
			defer t.mu.Unlock()
			if t.gen == gen {
				t.items = items
				t.loading = false
			}
		},
		func(err error) {
			t.mu.Lock()
			defer t.mu.Unlock()
			if t.gen != gen {
				return
			}
			t.err = core.MessageOf(err)
			t.live = false
			t.gen++
		})

	t.mu.Lock()
	if t.gen == gen {
		t.unsub = unsub
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()
	unsub()
	return nil
}

// StopRealtime ends the subscription and returns to optimistic mode.
func (t *Transactions) StopRealtime() {
	t.mu.Lock()
	unsub := t.unsub
	t.unsub = nil
	t.live = false
	t.gen++
	t.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

func (t *Transactions) Live() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.live
}

func (t *Transactions) Add(ctx context.Context, in core.TransactionInput) (string, error) {
	uid := t.user.UserID()
	if uid == "" {
		return "", t.failLocked(unauthenticated())
	}
	id, err := t.src.Create(ctx, in, uid)
	if err != nil {
		return "", t.failLocked(err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.live {
		now := t.now()
		t.items = append([]core.Transaction{{
			ID:            id,
			UserID:        uid,
			Type:          in.Type,
			Amount:        in.Amount,
			Currency:      in.Currency,
			Category:      in.Category,
			Subcategory:   in.Subcategory,
			PaymentMethod: in.PaymentMethod,
			Date:          in.Date,
			Note:          in.Note,
			CreatedAt:     now,
			UpdatedAt:     now,
		}}, t.items...)
	}
	return id, nil
}

func (t *Transactions) Update(ctx context.Context, id string, patch core.TransactionPatch) error {
	uid := t.user.UserID()
	if uid == "" {
		return t.failLocked(unauthenticated())
	}
	if err := t.src.Update(ctx, id, patch, uid); err != nil {
		return t.failLocked(err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.live {
		return nil
	}
	for i, item := range t.items {
		if item.ID == id {
			item = patch.Apply(item)
			item.UpdatedAt = t.now()
			t.items[i] = item
			break
		}
	}
	return nil
}

func (t *Transactions) Remove(ctx context.Context, id string) error {
	uid := t.user.UserID()
	if uid == "" {
		return t.failLocked(unauthenticated())
	}
	if err := t.src.Delete(ctx, id, uid); err != nil {
		return t.failLocked(err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.live {
		t.items = slices.DeleteFunc(t.items, func(item core.Transaction) bool { return item.ID == id })
	}
	return nil
}

func (t *Transactions) failLocked(err error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fail(err)
}

// Items returns the cache as delivered or loaded.
func (t *Transactions) Items() []core.Transaction {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Clone(t.items)
}

func (t *Transactions) SetFilter(f Filters) {
	t.mu.Lock()
	t.filters = f
	t.mu.Unlock()
}

func (t *Transactions) ClearFilters() {
	t.SetFilter(Filters{})
}

func (t *Transactions) Filters() Filters {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.filters
}

// Filtered applies the current filters and sorts by date, newest first.
func (t *Transactions) Filtered() []core.Transaction {
	return t.FilterBy(t.Filters())
}

// FilterBy is Filtered with f in place of the stored filters.
func (t *Transactions) FilterBy(f Filters) []core.Transaction {
	t.mu.RLock()
	out := make([]core.Transaction, 0, len(t.items))
	for _, item := range t.items {
		if f.match(item) {
			out = append(out, item)
		}
	}
	t.mu.RUnlock()

	slices.SortStableFunc(out, byDateDesc)
	return out
}

func (t *Transactions) Gastos() []core.Transaction {
	return t.ofType(core.TypeGasto)
}

func (t *Transactions) Ingresos() []core.Transaction {
	return t.ofType(core.TypeIngreso)
}

func (t *Transactions) ofType(txType core.TransactionType) []core.Transaction {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []core.Transaction
	for _, item := range t.items {
		if item.Type == txType {
			out = append(out, item)
		}
	}
	return out
}

// CategoriesUsed lists the distinct categories in the cache, sorted.
func (t *Transactions) CategoriesUsed() []string {
	t.mu.RLock()
	seen := make(map[string]struct{}, len(t.items))
	for _, item := range t.items {
		if item.Category != "" {
			seen[item.Category] = struct{}{}
		}
	}
	t.mu.RUnlock()

	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	slices.SortFunc(out, cmp.Compare[string])
	return out
}

// Recent returns the n newest transactions, DefaultRecent when n <= 0.
// Filters are ignored.
func (t *Transactions) Recent(n int) []core.Transaction {
	if n <= 0 {
		n = DefaultRecent
	}
	all := t.Items()
	slices.SortStableFunc(all, byDateDesc)
	if len(all) > n {
		all = all[:n]
	}
	return all
}

func byDateDesc(a, b core.Transaction) int {
	return core.CompareDateStrings(b.Date, a.Date)
}

// Summary totals the cache with every amount converted to the display
// currency first.
func (t *Transactions) Summary() core.TransactionSummary {
	items := t.Items()
	if t.currency == nil {
		return core.SummarizeTransactions(items)
	}
	for i := range items {
		items[i].Amount = t.currency.ConvertAmount(items[i].Amount, items[i].CurrencyOrDefault(), "")
	}
	return core.SummarizeTransactions(items)
}

// Dispose stops the subscription, if any.
func (t *Transactions) Dispose() {
	t.StopRealtime()
}
