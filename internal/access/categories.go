package access

import (
	"context"

	"spendly/internal/core"
	"spendly/internal/docstore"
	"spendly/internal/log"
)

// Categories stores a user's customized category set as one settings
// document. Writes always replace the whole document.
type Categories struct {
	store  docstore.Store
	logger *log.Logger
}

func NewCategories(store docstore.Store, logger *log.Logger) *Categories {
	return &Categories{store: store, logger: logger.WithComponent(log.ComponentAccess)}
}

// Get returns the saved set, or nil when the user never customized one.
func (c *Categories) Get(ctx context.Context, uid string) (*core.CategorySet, error) {
	if err := requireUser(uid); err != nil {
		return nil, err
	}
	snap, err := c.store.Get(ctx, SettingsCollection(uid), categoriesDoc)
	if err != nil {
		c.logger.ErrorContext(ctx, "Failed to load categories", log.FieldUserID, uid, log.FieldError, err)
		return nil, translate(opGetCategories, err)
	}
	if !snap.Exists {
		return nil, nil
	}
	var set core.CategorySet
	if err := snap.Decode(&set); err != nil {
		return nil, translate(opGetCategories, err)
	}
	return &set, nil
}

func (c *Categories) Save(ctx context.Context, uid string, set core.CategorySet) error {
	if err := requireUser(uid); err != nil {
		return err
	}
	set = set.Clone()
	err := c.store.Set(ctx, SettingsCollection(uid), categoriesDoc, docstore.Data{
		"expenseCategories": set.ExpenseCategories,
		"incomeCategories":  set.IncomeCategories,
		"subcategories":     set.Subcategories,
		"updatedAt":         docstore.ServerTimestamp,
	})
	if err != nil {
		c.logger.ErrorContext(ctx, "Failed to save categories", log.FieldUserID, uid, log.FieldError, err)
		return translate(opSaveCategories, err)
	}
	return nil
}
