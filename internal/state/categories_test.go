package state

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spendly/internal/core"
	"spendly/internal/log"
)

func TestCategories_LoadDefaults(t *testing.T) {
	m := newModules()
	c := NewCategories(m.categories, fixedUser("u1"), log.Discard())
	require.NoError(t, c.Load(context.Background()))

	defaults := core.DefaultCategorySet()
	assert.Equal(t, defaults.ExpenseCategories, c.Expense())
	assert.Equal(t, defaults.IncomeCategories, c.Income())
	assert.Len(t, c.All(), len(defaults.ExpenseCategories)+len(defaults.IncomeCategories))
	assert.Contains(t, c.SubcategoriesFor("Salud"), "Medicamentos")
	assert.Equal(t, []string{}, c.SubcategoriesFor("Desconocida"))
}

func TestCategories_MutationsSaveWholeSet(t *testing.T) {
	ctx := context.Background()
	m := newModules()
	c := NewCategories(m.categories, fixedUser("u1"), log.Discard())
	require.NoError(t, c.Load(ctx))

	changed, err := c.AddCategory(ctx, core.TypeGasto, " Mascotas ")
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = c.AddCategory(ctx, core.TypeGasto, "Mascotas")
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = c.AddSubcategory(ctx, "Mascotas", "Veterinario")
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = c.RemoveSubcategory(ctx, "Salud", "Emergencias")
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = c.RemoveCategory(ctx, core.TypeIngreso, "Regalos")
	require.NoError(t, err)
	assert.True(t, changed)

	saved, err := m.categories.Get(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Contains(t, saved.ExpenseCategories, "Mascotas")
	assert.NotContains(t, saved.IncomeCategories, "Regalos")
	assert.Equal(t, []string{"Veterinario"}, saved.Subcategories["Mascotas"])
	assert.NotContains(t, saved.Subcategories["Salud"], "Emergencias")

	other := NewCategories(m.categories, fixedUser("u1"), log.Discard())
	require.NoError(t, other.Load(ctx))
	assert.Equal(t, c.Set(), other.Set())

	require.NoError(t, c.ResetToDefaults(ctx))
	assert.Equal(t, core.DefaultCategorySet().ExpenseCategories, c.Expense())
	saved, err = m.categories.Get(ctx, "u1")
	require.NoError(t, err)
	assert.NotContains(t, saved.ExpenseCategories, "Mascotas")
}

func TestCategories_RequiresUser(t *testing.T) {
	m := newModules()
	c := NewCategories(m.categories, fixedUser(""), log.Discard())

	changed, err := c.AddCategory(context.Background(), core.TypeGasto, "Mascotas")
	assert.False(t, changed)
	assert.ErrorIs(t, err, core.ErrUnauthenticated)
	assert.Equal(t, "Usuario no autenticado", c.Err())
	assert.NotContains(t, c.Expense(), "Mascotas")
}
