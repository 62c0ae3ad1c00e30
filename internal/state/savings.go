package state

import (
	"context"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"spendly/internal/access"
	"spendly/internal/core"
	"spendly/internal/log"
)

// SavingSource is the savings access module.
type SavingSource interface {
	Create(ctx context.Context, in core.SavingInput, uid string) (string, error)
	List(ctx context.Context, uid string, year int) ([]core.Saving, error)
	Update(ctx context.Context, id string, patch core.SavingPatch, uid string) error
	Delete(ctx context.Context, id, uid string) error
	Subscribe(ctx context.Context, uid string, year int, onChange func([]core.Saving), onError func(error)) access.Unsubscribe
	UpsertMonth(ctx context.Context, uid string, year, month int, amount float64) (string, error)
	GetAnnualGoal(ctx context.Context, uid string, year int) (core.AnnualGoal, error)
	SetAnnualGoal(ctx context.Context, uid string, year int, amount float64) error
}

// Savings caches the user's saving entries and the goal of the selected
// year. The cache holds the selected year, or every year when the range
// spans more than one.
type Savings struct {
	status

	src    SavingSource
	user   UserSource
	logger *log.Logger
	now    func() time.Time

	items   []core.Saving
	rng     core.MonthRange
	goal    float64
	live    bool
	liveCtx context.Context
	gen     int
	unsub   access.Unsubscribe

	// selMu serializes selection changes with the views read after them.
	selMu sync.Mutex
}

// SavingsView is a consistent snapshot of one selection.
type SavingsView struct {
	Range        core.MonthRange     `json:"range"`
	Items        []core.Saving       `json:"items"`
	FirstMonth   []core.Saving       `json:"firstMonth"`
	Summary      core.SavingsSummary `json:"summary"`
	Goal         float64             `json:"goal"`
	GoalProgress float64             `json:"goalProgress"`
}

func NewSavings(src SavingSource, user UserSource, logger *log.Logger) *Savings {
	return &Savings{
		src:    src,
		user:   user,
		logger: logger.WithComponent(log.ComponentState),
		now:    time.Now,
		rng:    core.MonthRange{FromYear: time.Now().Year()},
	}
}

// Year is the selected year.
func (s *Savings) Year() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rng.FromYear
}

func (s *Savings) Range() core.MonthRange {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rng
}

// queryYear is the year the cache is loaded for, 0 for all. Callers hold s.mu.
func (s *Savings) queryYear() int {
	if s.rng.ToYear != 0 && s.rng.ToYear != s.rng.FromYear {
		return 0
	}
	return s.rng.FromYear
}

func (s *Savings) Load(ctx context.Context) error {
	uid := s.user.UserID()
	s.mu.Lock()
	if uid == "" {
		defer s.mu.Unlock()
		return s.fail(unauthenticated())
	}
	s.begin()
	year := s.queryYear()
	s.mu.Unlock()

	items, err := s.src.List(ctx, uid, year)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	if err != nil {
		return s.fail(err)
	}
	if !s.live {
		s.items = items
	}
	s.logger.DebugContext(ctx, "Savings loaded", log.FieldUserID, uid, log.FieldYear, year, "count", len(items))
	return nil
}

// LoadGoal reads the goal of the selected year.
func (s *Savings) LoadGoal(ctx context.Context) error {
	uid := s.user.UserID()
	year := s.Year()
	if uid == "" {
		return s.failLocked(unauthenticated())
	}
	goal, err := s.src.GetAnnualGoal(ctx, uid, year)
	if err != nil {
		return s.failLocked(err)
	}
	s.mu.Lock()
	if s.rng.FromYear == year {
		s.goal = goal.Amount
	}
	s.mu.Unlock()
	return nil
}

// StartRealtime subscribes to the selected year. It is a no-op while a
// subscription is running.
func (s *Savings) StartRealtime(ctx context.Context) error {
	uid := s.user.UserID()
	s.mu.Lock()
	if uid == "" {
		defer s.mu.Unlock()
		return s.fail(unauthenticated())
	}
	if s.live {
		s.mu.Unlock()
		return nil
	}
	s.gen++
	gen := s.gen
	s.live = true
	s.liveCtx = ctx
	year := s.queryYear()
	s.mu.Unlock()

	unsub := s.src.Subscribe(ctx, uid, year,
		func(items []core.Saving) {
			s.mu.Lock()
			defer s.mu.Unlock()
			if s.gen == gen {
				s.items = items
			}
		},
		func(err error) {
			s.mu.Lock()
			defer s.mu.Unlock()
			if s.gen != gen {
				return
			}
			s.err = core.MessageOf(err)
			s.live = false
			s.gen++
		})

	s.mu.Lock()
	if s.gen == gen {
		s.unsub = unsub
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()
	unsub()
	return nil
}

func (s *Savings) StopRealtime() {
	s.mu.Lock()
	unsub := s.stopLocked()
	s.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

// stopLocked leaves live mode and hands back the subscription to release.
func (s *Savings) stopLocked() access.Unsubscribe {
	unsub := s.unsub
	s.unsub = nil
	s.live = false
	s.gen++
	return unsub
}

func (s *Savings) Live() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.live
}

// SetYear selects a single year, reloads it with its goal and moves a
// running subscription over to it.
func (s *Savings) SetYear(ctx context.Context, year int) error {
	return s.SetRange(ctx, core.MonthRange{FromYear: year})
}

// SetRange selects the entries SavingsOfYear returns and reloads the cache.
func (s *Savings) SetRange(ctx context.Context, rng core.MonthRange) error {
	s.selMu.Lock()
	defer s.selMu.Unlock()
	return s.setRange(ctx, rng)
}

// Select moves to rng, reloading only when the selection changes or reload
// is set, and returns the view of rng. Concurrent callers never see each
// other's selection.
func (s *Savings) Select(ctx context.Context, rng core.MonthRange, reload bool) (SavingsView, error) {
	s.selMu.Lock()
	defer s.selMu.Unlock()
	if reload || s.Range() != rng {
		if err := s.setRange(ctx, rng); err != nil {
			return SavingsView{}, err
		}
	}
	return s.view(), nil
}

// SetGoalOf stores the goal of year, selecting it first. A zero year keeps
// the current selection.
func (s *Savings) SetGoalOf(ctx context.Context, year int, amount float64) (SavingsView, error) {
	s.selMu.Lock()
	defer s.selMu.Unlock()
	if year != 0 && year != s.Year() {
		if err := s.setRange(ctx, core.MonthRange{FromYear: year}); err != nil {
			return SavingsView{}, err
		}
	}
	if err := s.SetGoal(ctx, amount); err != nil {
		return SavingsView{}, err
	}
	return s.view(), nil
}

// View returns the current selection.
func (s *Savings) View() SavingsView {
	s.selMu.Lock()
	defer s.selMu.Unlock()
	return s.view()
}

func (s *Savings) view() SavingsView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v := SavingsView{
		Range:      s.rng,
		Items:      []core.Saving{},
		FirstMonth: []core.Saving{},
		Summary:    core.SummarizeSavings(s.items, s.rng.FromYear),
		Goal:       s.goal,
	}
	for _, e := range s.items {
		if s.rng.Contains(e.Year, e.Month) {
			v.Items = append(v.Items, e)
		}
		if s.rng.FromMonth != 0 && e.Year == s.rng.FromYear && e.Month == s.rng.FromMonth {
			v.FirstMonth = append(v.FirstMonth, e)
		}
	}
	v.GoalProgress = goalProgress(v.Summary.TotalYear, s.goal)
	return v
}

func (s *Savings) setRange(ctx context.Context, rng core.MonthRange) error {
	s.mu.Lock()
	s.rng = rng
	wasLive := s.live
	liveCtx := s.liveCtx
	var unsub access.Unsubscribe
	if wasLive {
		unsub = s.stopLocked()
	}
	s.mu.Unlock()
	if unsub != nil {
		unsub()
	}

	if wasLive {
		if err := s.StartRealtime(liveCtx); err != nil {
			return err
		}
	}
	if err := s.Load(ctx); err != nil {
		return err
	}
	return s.LoadGoal(ctx)
}

func (s *Savings) Add(ctx context.Context, in core.SavingInput) (string, error) {
	uid := s.user.UserID()
	if uid == "" {
		return "", s.failLocked(unauthenticated())
	}
	id, err := s.src.Create(ctx, in, uid)
	if err != nil {
		return "", s.failLocked(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.live {
		now := s.now()
		s.items = append(s.items, core.Saving{
			ID:        id,
			UserID:    uid,
			Year:      in.Year,
			Month:     in.Month,
			Amount:    in.Amount,
			Note:      in.Note,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	return id, nil
}

func (s *Savings) Update(ctx context.Context, id string, patch core.SavingPatch) error {
	uid := s.user.UserID()
	if uid == "" {
		return s.failLocked(unauthenticated())
	}
	if err := s.src.Update(ctx, id, patch, uid); err != nil {
		return s.failLocked(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.live {
		s.applyLocked(id, func(e core.Saving) core.Saving { return patch.Apply(e) })
	}
	return nil
}

// applyLocked rewrites the entry with id and reports whether it was found.
func (s *Savings) applyLocked(id string, fn func(core.Saving) core.Saving) bool {
	for i, e := range s.items {
		if e.ID == id {
			e = fn(e)
			e.UpdatedAt = s.now()
			s.items[i] = e
			return true
		}
	}
	return false
}

func (s *Savings) Remove(ctx context.Context, id string) error {
	uid := s.user.UserID()
	if uid == "" {
		return s.failLocked(unauthenticated())
	}
	if err := s.src.Delete(ctx, id, uid); err != nil {
		return s.failLocked(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.live {
		s.items = slices.DeleteFunc(s.items, func(e core.Saving) bool { return e.ID == id })
	}
	return nil
}

// SaveYearMonths upserts the twelve monthly amounts of year concurrently.
// Months with an amount <= 0 are skipped. Every upsert runs to completion;
// the first error is returned and successful writes stay.
func (s *Savings) SaveYearMonths(ctx context.Context, year int, amounts [12]float64) error {
	uid := s.user.UserID()
	if uid == "" {
		return s.failLocked(unauthenticated())
	}

	type written struct {
		id     string
		month  int
		amount float64
	}
	var (
		g       errgroup.Group
		mu      sync.Mutex
		results []written
	)
	for i, amount := range amounts {
		if amount <= 0 {
			continue
		}
		month := i + 1
		g.Go(func() error {
			id, err := s.src.UpsertMonth(ctx, uid, year, month, amount)
			if err != nil {
				return err
			}
			mu.Lock()
			results = append(results, written{id, month, amount})
			mu.Unlock()
			return nil
		})
	}
	err := g.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.live {
		now := s.now()
		for _, w := range results {
			amount := w.amount
			found := s.applyLocked(w.id, func(e core.Saving) core.Saving {
				e.Amount = amount
				return e
			})
			if !found {
				s.items = append(s.items, core.Saving{
					ID: w.id, UserID: uid, Year: year, Month: w.month, Amount: w.amount,
					CreatedAt: now, UpdatedAt: now,
				})
			}
		}
	}
	if err != nil {
		return s.fail(err)
	}
	s.logger.DebugContext(ctx, "Savings year saved", log.FieldUserID, uid, log.FieldYear, year, "months", len(results))
	return nil
}

func (s *Savings) failLocked(err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fail(err)
}

// Items returns the cache.
func (s *Savings) Items() []core.Saving {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.items)
}

// SavingsOfYear returns the cached entries inside the selected range.
func (s *Savings) SavingsOfYear() []core.Saving {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Saving
	for _, e := range s.items {
		if s.rng.Contains(e.Year, e.Month) {
			out = append(out, e)
		}
	}
	return out
}

// SavingsOfMonth returns the entries of the range's first month. It is
// empty when the range has no month bound.
func (s *Savings) SavingsOfMonth() []core.Saving {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.rng.FromMonth == 0 {
		return nil
	}
	var out []core.Saving
	for _, e := range s.items {
		if e.Year == s.rng.FromYear && e.Month == s.rng.FromMonth {
			out = append(out, e)
		}
	}
	return out
}

// Summary totals the cache for the selected year.
func (s *Savings) Summary() core.SavingsSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return core.SummarizeSavings(s.items, s.rng.FromYear)
}

func (s *Savings) Goal() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.goal
}

// SetGoal stores the goal of the selected year.
func (s *Savings) SetGoal(ctx context.Context, amount float64) error {
	uid := s.user.UserID()
	if uid == "" {
		return s.failLocked(unauthenticated())
	}
	year := s.Year()
	if err := s.src.SetAnnualGoal(ctx, uid, year, amount); err != nil {
		return s.failLocked(err)
	}
	s.mu.Lock()
	if s.rng.FromYear == year {
		s.goal = amount
	}
	s.mu.Unlock()
	return nil
}

// GoalProgress is the selected year's total as a percentage of the goal,
// capped at 100. Without a goal it is 0.
func (s *Savings) GoalProgress() float64 {
	return goalProgress(s.Summary().TotalYear, s.Goal())
}

func goalProgress(total, goal float64) float64 {
	if goal <= 0 {
		return 0
	}
	return min(100, total/goal*100)
}

func (s *Savings) Dispose() {
	s.StopRealtime()
}
