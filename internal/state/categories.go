package state

import (
	"context"
	"slices"

	"spendly/internal/core"
	"spendly/internal/log"
)

// CategorySource is the category access module.
type CategorySource interface {
	Get(ctx context.Context, uid string) (*core.CategorySet, error)
	Save(ctx context.Context, uid string, set core.CategorySet) error
}

// Categories holds the user's category set. Every change writes the whole
// set back; the cache only changes once the write succeeds.
type Categories struct {
	status

	src    CategorySource
	user   UserSource
	logger *log.Logger

	set core.CategorySet
}

func NewCategories(src CategorySource, user UserSource, logger *log.Logger) *Categories {
	return &Categories{
		src:    src,
		user:   user,
		logger: logger.WithComponent(log.ComponentState),
		set:    core.DefaultCategorySet(),
	}
}

// Load reads the saved set. Users who never customized theirs get the
// defaults.
func (c *Categories) Load(ctx context.Context) error {
	uid := c.user.UserID()
	c.mu.Lock()
	if uid == "" {
		defer c.mu.Unlock()
		return c.fail(unauthenticated())
	}
	c.begin()
	c.mu.Unlock()

	saved, err := c.src.Get(ctx, uid)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.loading = false
	if err != nil {
		return c.fail(err)
	}
	if saved == nil {
		c.set = core.DefaultCategorySet()
	} else {
		c.set = saved.Clone()
	}
	c.logger.DebugContext(ctx, "Categories loaded", log.FieldUserID, uid, "custom", saved != nil)
	return nil
}

func (c *Categories) Expense() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.set.ExpenseCategories)
}

func (c *Categories) Income() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.set.IncomeCategories)
}

func (c *Categories) All() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.set.All()
}

// SubcategoriesFor returns the subcategories of category, empty when it
// has none.
func (c *Categories) SubcategoriesFor(category string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	subs := c.set.Subcategories[category]
	if subs == nil {
		return []string{}
	}
	return slices.Clone(subs)
}

// Set returns a copy of the whole set.
func (c *Categories) Set() core.CategorySet {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.set.Clone()
}

// AddCategory reports false, without saving, when name is empty or
// already listed.
func (c *Categories) AddCategory(ctx context.Context, txType core.TransactionType, name string) (bool, error) {
	return c.mutate(ctx, func(set *core.CategorySet) bool { return set.AddCategory(txType, name) })
}

func (c *Categories) RemoveCategory(ctx context.Context, txType core.TransactionType, name string) (bool, error) {
	return c.mutate(ctx, func(set *core.CategorySet) bool { return set.RemoveCategory(txType, name) })
}

func (c *Categories) AddSubcategory(ctx context.Context, category, sub string) (bool, error) {
	return c.mutate(ctx, func(set *core.CategorySet) bool { return set.AddSubcategory(category, sub) })
}

func (c *Categories) RemoveSubcategory(ctx context.Context, category, sub string) (bool, error) {
	return c.mutate(ctx, func(set *core.CategorySet) bool { return set.RemoveSubcategory(category, sub) })
}

// ResetToDefaults saves and adopts the default set.
func (c *Categories) ResetToDefaults(ctx context.Context) error {
	_, err := c.mutate(ctx, func(set *core.CategorySet) bool {
		*set = core.DefaultCategorySet()
		return true
	})
	return err
}

// mutate applies fn to a copy of the set and saves it when fn reports a
// change. Concurrent mutations are serialized on c.mu.
func (c *Categories) mutate(ctx context.Context, fn func(*core.CategorySet) bool) (bool, error) {
	uid := c.user.UserID()
	c.mu.Lock()
	defer c.mu.Unlock()
	if uid == "" {
		return false, c.fail(unauthenticated())
	}
	next := c.set.Clone()
	if !fn(&next) {
		return false, nil
	}
	if err := c.src.Save(ctx, uid, next); err != nil {
		return false, c.fail(err)
	}
	c.set = next
	c.err = ""
	return true, nil
}
