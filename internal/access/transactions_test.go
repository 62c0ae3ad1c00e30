package access

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spendly/internal/core"
	"spendly/internal/docstore/memory"
	"spendly/internal/log"
)

func gasto(amount float64, category, date string) core.TransactionInput {
	return core.TransactionInput{Type: core.TypeGasto, Amount: amount, Category: category, Date: date}
}

func ids(txs []core.Transaction) []string {
	out := make([]string, 0, len(txs))
	for _, tx := range txs {
		out = append(out, tx.ID)
	}
	return out
}

func TestTransactions_ListOrdersByDateThenCreation(t *testing.T) {
	for _, tc := range []struct {
		name  string
		store *memory.Store
	}{
		{"with index", memory.New()},
		{"missing index", memory.New(memory.WithRequiredIndexes())},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			txs := NewTransactions(tc.store, log.Discard())

			a, err := txs.Create(ctx, gasto(10, "Salud", "2024-03-01"), "u1")
			require.NoError(t, err)
			b, err := txs.Create(ctx, gasto(20, "Ropa", "2024-03-05"), "u1")
			require.NoError(t, err)
			c, err := txs.Create(ctx, gasto(30, "Ropa", "2024-03-05"), "u1")
			require.NoError(t, err)
			_, err = txs.Create(ctx, gasto(40, "Ropa", "2024-03-09"), "u2")
			require.NoError(t, err)

			got, err := txs.List(ctx, "u1", TransactionFilters{})
			require.NoError(t, err)
			assert.Equal(t, []string{c, b, a}, ids(got))

			got, err = txs.ListByCategory(ctx, "u1", "Ropa")
			require.NoError(t, err)
			assert.Equal(t, []string{c, b}, ids(got))

			got, err = txs.ListByType(ctx, "u1", core.TypeIngreso)
			require.NoError(t, err)
			assert.Empty(t, got)
		})
	}
}

func TestTransactions_GetChecksOwnership(t *testing.T) {
	ctx := context.Background()
	txs := NewTransactions(memory.New(), log.Discard())
	id, err := txs.Create(ctx, gasto(10, "Salud", "2024-03-01"), "owner")
	require.NoError(t, err)

	got, err := txs.Get(ctx, id, "owner")
	require.NoError(t, err)
	assert.Equal(t, "owner", got.UserID)
	assert.Equal(t, core.TypeGasto, got.Type)

	_, err = txs.Get(ctx, id, "intruder")
	assert.ErrorIs(t, err, core.ErrForbidden)
	assert.Equal(t, "No tienes permisos para acceder a esta transacción", core.MessageOf(err))

	err = txs.Update(ctx, id, core.TransactionPatch{Note: ptr("x")}, "intruder")
	assert.ErrorIs(t, err, core.ErrForbidden)
	err = txs.Delete(ctx, id, "intruder")
	assert.ErrorIs(t, err, core.ErrForbidden)

	_, err = txs.Get(ctx, "missing", "owner")
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.Equal(t, "Transacción no encontrada", core.MessageOf(err))
}

func TestTransactions_UpdateKeepsIdentityFields(t *testing.T) {
	ctx := context.Background()
	txs := NewTransactions(memory.New(), log.Discard())
	id, err := txs.Create(ctx, gasto(10, "Salud", "2024-03-01"), "u1")
	require.NoError(t, err)
	before, err := txs.Get(ctx, id, "u1")
	require.NoError(t, err)

	amount := 99.5
	require.NoError(t, txs.Update(ctx, id, core.TransactionPatch{Amount: &amount, Category: ptr(" Ropa ")}, "u1"))

	after, err := txs.Get(ctx, id, "u1")
	require.NoError(t, err)
	assert.Equal(t, before.ID, after.ID)
	assert.Equal(t, before.UserID, after.UserID)
	assert.True(t, before.CreatedAt.Equal(after.CreatedAt))
	assert.True(t, after.UpdatedAt.After(before.UpdatedAt))
	assert.Equal(t, 99.5, after.Amount)
	assert.Equal(t, "Ropa", after.Category)
}

func TestTransactions_RejectsBadInput(t *testing.T) {
	ctx := context.Background()
	txs := NewTransactions(memory.New(), log.Discard())

	_, err := txs.Create(ctx, gasto(10, "Salud", "2024-03-01"), "")
	assert.ErrorIs(t, err, core.ErrUnauthenticated)
	assert.Equal(t, "Usuario no autenticado", core.MessageOf(err))

	_, err = txs.Create(ctx, gasto(-1, "Salud", "2024-03-01"), "u1")
	assert.ErrorIs(t, err, core.ErrValidation)

	id, err := txs.Create(ctx, gasto(1, "Salud", "2024-03-01"), "u1")
	require.NoError(t, err)
	err = txs.Update(ctx, id, core.TransactionPatch{Date: ptr("03/01/2024")}, "u1")
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestTransactions_DeleteRemoves(t *testing.T) {
	ctx := context.Background()
	txs := NewTransactions(memory.New(), log.Discard())
	id, err := txs.Create(ctx, gasto(10, "Salud", "2024-03-01"), "u1")
	require.NoError(t, err)

	require.NoError(t, txs.Delete(ctx, id, "u1"))
	_, err = txs.Get(ctx, id, "u1")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestTransactions_SummaryAndBackfill(t *testing.T) {
	ctx := context.Background()
	txs := NewTransactions(memory.New(), log.Discard())

	_, err := txs.Create(ctx, gasto(30, "Salud", "2024-03-01"), "u1")
	require.NoError(t, err)
	_, err = txs.Create(ctx, core.TransactionInput{Type: core.TypeIngreso, Amount: 100, Category: "Salario", Date: "2024-03-02", Currency: "EUR"}, "u1")
	require.NoError(t, err)
	_, err = txs.Create(ctx, gasto(20, "Ropa", "2024-03-03"), "u1")
	require.NoError(t, err)

	sum, err := txs.Summary(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, core.TransactionSummary{TotalIngresos: 100, TotalGastos: 50, Balance: 50, TotalTransacciones: 3}, sum)

	_, err = txs.BackfillCurrency(ctx, "u1", "XYZ")
	assert.ErrorIs(t, err, core.ErrValidation)

	n, err := txs.BackfillCurrency(ctx, "u1", "CLP")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	list, err := txs.List(ctx, "u1", TransactionFilters{})
	require.NoError(t, err)
	currencies := map[string]int{}
	for _, tx := range list {
		currencies[tx.Currency]++
	}
	assert.Equal(t, map[string]int{"CLP": 2, "EUR": 1}, currencies)
}

func TestTransactions_SubscribeDegradesWithoutIndex(t *testing.T) {
	ctx := context.Background()
	store := memory.New(memory.WithRequiredIndexes())
	txs := NewTransactions(store, log.Discard())

	first, err := txs.Create(ctx, gasto(10, "Salud", "2024-03-01"), "u1")
	require.NoError(t, err)

	lists := make(chan []core.Transaction, 10)
	errs := make(chan error, 1)
	unsub := txs.Subscribe(ctx, "u1", TransactionFilters{}, func(list []core.Transaction) { lists <- list }, func(err error) { errs <- err })
	defer unsub()

	assert.Equal(t, []string{first}, ids(receiveList(t, lists)))

	second, err := txs.Create(ctx, gasto(5, "Ropa", "2024-04-01"), "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{second, first}, ids(receiveList(t, lists)))

	unsub()
	unsub()
	require.Eventually(t, func() bool { return store.Subscribers() == 0 }, time.Second, 5*time.Millisecond)
	select {
	case err := <-errs:
		t.Fatalf("unexpected subscription error: %v", err)
	default:
	}
}

func TestTransactions_SubscribeRequiresUser(t *testing.T) {
	txs := NewTransactions(memory.New(), log.Discard())
	var got error
	unsub := txs.Subscribe(context.Background(), "", TransactionFilters{}, func([]core.Transaction) {}, func(err error) { got = err })
	unsub()
	assert.True(t, errors.Is(got, core.ErrUnauthenticated))
}

func receiveList[T any](t *testing.T, ch <-chan []T) []T {
	t.Helper()
	select {
	case list := <-ch:
		return list
	case <-time.After(2 * time.Second):
		t.Fatal("no delivery")
		return nil
	}
}

func ptr[T any](v T) *T { return &v }

func TestIndexes_ServeOrderedQueries(t *testing.T) {
	ctx := context.Background()
	store := memory.New(memory.WithRequiredIndexes())
	for _, q := range Indexes() {
		store.DeclareIndex(q)
	}
	txs := NewTransactions(store, log.Discard())
	_, err := txs.Create(ctx, gasto(10, "Salud", "2024-03-01"), "u1")
	require.NoError(t, err)

	full, _ := TransactionFilters{Type: core.TypeGasto, Category: "Salud"}.queries("u1")
	got, err := store.Query(ctx, full)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	full, _ = savingsQueries("u1", 2024)
	_, err = store.Query(ctx, full)
	assert.NoError(t, err)
}
