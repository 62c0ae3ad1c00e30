package state

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spendly/internal/core"
	"spendly/internal/log"
)

type ym struct{ year, month int }

func yearMonths(entries []core.Saving) []ym {
	out := make([]ym, 0, len(entries))
	for _, e := range entries {
		out = append(out, ym{e.Year, e.Month})
	}
	return out
}

func seedSavings(t *testing.T, m modules, uid string, entries ...ym) {
	t.Helper()
	for _, e := range entries {
		_, err := m.savings.Create(context.Background(), core.SavingInput{Year: e.year, Month: e.month, Amount: 10}, uid)
		require.NoError(t, err)
	}
}

func TestSavings_RangeAcrossYears(t *testing.T) {
	ctx := context.Background()
	m := newModules()
	seedSavings(t, m, "u1", ym{2024, 3}, ym{2024, 8}, ym{2025, 2}, ym{2025, 5})

	s := NewSavings(m.savings, fixedUser("u1"), log.Discard())
	require.NoError(t, s.SetRange(ctx, core.MonthRange{FromYear: 2024, ToYear: 2025, FromMonth: 6, ToMonth: 3}))

	assert.Len(t, s.Items(), 4)
	assert.ElementsMatch(t, []ym{{2024, 8}, {2025, 2}}, yearMonths(s.SavingsOfYear()))
	assert.Equal(t, []ym{}, yearMonths(s.SavingsOfMonth()))

	require.NoError(t, s.SetRange(ctx, core.MonthRange{FromYear: 2025, FromMonth: 2}))
	assert.Equal(t, []ym{{2025, 2}}, yearMonths(s.SavingsOfMonth()))
	assert.Len(t, s.Items(), 2)
}

func TestSavings_SetYearLoadsYearAndGoal(t *testing.T) {
	ctx := context.Background()
	m := newModules()
	seedSavings(t, m, "u1", ym{2023, 1}, ym{2024, 1}, ym{2024, 2})
	require.NoError(t, m.savings.SetAnnualGoal(ctx, "u1", 2024, 80))

	s := NewSavings(m.savings, fixedUser("u1"), log.Discard())
	require.NoError(t, s.SetYear(ctx, 2024))
	assert.Equal(t, 2024, s.Year())
	assert.Equal(t, []ym{{2024, 1}, {2024, 2}}, yearMonths(s.SavingsOfYear()))
	assert.Equal(t, 80.0, s.Goal())

	sum := s.Summary()
	assert.Equal(t, 20.0, sum.TotalYear)
	assert.Equal(t, 2, sum.Count)
	assert.Equal(t, 25.0, s.GoalProgress())

	require.NoError(t, s.SetGoal(ctx, 10))
	assert.Equal(t, 100.0, s.GoalProgress())
	goal, err := m.savings.GetAnnualGoal(ctx, "u1", 2024)
	require.NoError(t, err)
	assert.Equal(t, 10.0, goal.Amount)

	require.NoError(t, s.SetYear(ctx, 2022))
	assert.Zero(t, s.Goal())
	assert.Zero(t, s.GoalProgress())
}

func TestSavings_SelectReturnsOwnSelection(t *testing.T) {
	ctx := context.Background()
	m := newModules()
	seedSavings(t, m, "u1", ym{2023, 1}, ym{2024, 1}, ym{2024, 2})
	require.NoError(t, m.savings.SetAnnualGoal(ctx, "u1", 2024, 40))

	s := NewSavings(m.savings, fixedUser("u1"), log.Discard())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		year := 2023 + i%2
		wg.Add(1)
		go func() {
			defer wg.Done()
			view, err := s.Select(ctx, core.MonthRange{FromYear: year}, i%3 == 0)
			if !assert.NoError(t, err) {
				return
			}
			assert.Equal(t, year, view.Range.FromYear)
			for _, e := range view.Items {
				assert.Equal(t, year, e.Year)
			}
			assert.Len(t, view.Items, year-2022)
		}()
	}
	wg.Wait()

	view, err := s.SetGoalOf(ctx, 2024, 20)
	require.NoError(t, err)
	assert.Equal(t, 2024, view.Range.FromYear)
	assert.Equal(t, 20.0, view.Goal)
	assert.Equal(t, 100.0, view.GoalProgress)
	assert.Equal(t, view, s.View())
}

func TestSavings_SaveYearMonths(t *testing.T) {
	ctx := context.Background()
	m := newModules()
	s := NewSavings(m.savings, fixedUser("u1"), log.Discard())
	require.NoError(t, s.SetYear(ctx, 2024))

	require.NoError(t, s.SaveYearMonths(ctx, 2024, [12]float64{0, 100}))

	stored, err := m.savings.List(ctx, "u1", 2024)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, ym{2024, 2}, ym{stored[0].Year, stored[0].Month})
	assert.Equal(t, 100.0, stored[0].Amount)

	require.Len(t, s.Items(), 1)
	assert.Equal(t, stored[0].ID, s.Items()[0].ID)

	require.NoError(t, s.SaveYearMonths(ctx, 2024, [12]float64{0, 150, -5, 0, 0, 0, 0, 0, 0, 0, 0, 40}))
	stored, err = m.savings.List(ctx, "u1", 2024)
	require.NoError(t, err)
	assert.Equal(t, []ym{{2024, 2}, {2024, 12}}, yearMonths(stored))
	assert.Equal(t, 150.0, stored[0].Amount)
	assert.Equal(t, 190.0, s.Summary().TotalYear)
}

func TestSavings_OptimisticMutations(t *testing.T) {
	ctx := context.Background()
	m := newModules()
	s := NewSavings(m.savings, fixedUser("u1"), log.Discard())
	require.NoError(t, s.SetYear(ctx, 2024))

	id, err := s.Add(ctx, core.SavingInput{Year: 2024, Month: 5, Amount: 30})
	require.NoError(t, err)
	require.Len(t, s.Items(), 1)

	require.NoError(t, s.Update(ctx, id, core.SavingPatch{Amount: ptr(45.0)}))
	assert.Equal(t, 45.0, s.Items()[0].Amount)

	require.NoError(t, s.Remove(ctx, id))
	assert.Empty(t, s.Items())

	_, err = s.Add(ctx, core.SavingInput{Year: 2024, Month: 0, Amount: 30})
	assert.ErrorIs(t, err, core.ErrValidation)
	assert.NotEmpty(t, s.Err())
}

func TestSavings_SetYearMovesSubscription(t *testing.T) {
	ctx := context.Background()
	m := newModules()
	seedSavings(t, m, "u1", ym{2023, 4}, ym{2024, 1})

	s := NewSavings(m.savings, fixedUser("u1"), log.Discard())
	require.NoError(t, s.SetYear(ctx, 2024))
	require.NoError(t, s.StartRealtime(ctx))
	require.Eventually(t, func() bool { return len(s.Items()) == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, s.SetYear(ctx, 2023))
	assert.True(t, s.Live())
	require.Eventually(t, func() bool {
		items := s.Items()
		return len(items) == 1 && items[0].Year == 2023
	}, time.Second, 5*time.Millisecond)

	_, err := s.Add(ctx, core.SavingInput{Year: 2023, Month: 9, Amount: 5})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(s.Items()) == 2 }, time.Second, 5*time.Millisecond)

	s.Dispose()
	require.Eventually(t, func() bool { return m.store.Subscribers() == 0 }, time.Second, 5*time.Millisecond)
}
