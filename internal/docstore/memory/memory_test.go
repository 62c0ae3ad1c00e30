package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spendly/internal/docstore"
)

func fixedClock(start time.Time) func() time.Time {
	return func() time.Time { return start }
}

func TestStore_CRUD(t *testing.T) {
	ctx := context.Background()
	s := New()
	defer s.Close()

	id, err := s.Add(ctx, "users/u1/transactions", Data{"amount": 10, "createdAt": docstore.ServerTimestamp})
	require.NoError(t, err)
	require.Len(t, id, 20)

	snap, err := s.Get(ctx, "users/u1/transactions", id)
	require.NoError(t, err)
	require.True(t, snap.Exists)
	assert.Equal(t, 10.0, snap.Data["amount"])
	assert.IsType(t, "", snap.Data["createdAt"])

	require.NoError(t, s.Update(ctx, "users/u1/transactions", id, Data{"note": "x"}))
	snap, _ = s.Get(ctx, "users/u1/transactions", id)
	assert.Equal(t, 10.0, snap.Data["amount"])
	assert.Equal(t, "x", snap.Data["note"])

	require.NoError(t, s.Delete(ctx, "users/u1/transactions", id))
	snap, err = s.Get(ctx, "users/u1/transactions", id)
	require.NoError(t, err)
	assert.False(t, snap.Exists)

	// deleting again is fine
	require.NoError(t, s.Delete(ctx, "users/u1/transactions", id))
}

func TestStore_UpdateMissingIsNotFound(t *testing.T) {
	s := New()
	err := s.Update(context.Background(), "c", "missing", Data{"a": 1})
	assert.True(t, docstore.IsCode(err, docstore.CodeNotFound), err)
}

func TestStore_ServerTimestampsStrictlyIncrease(t *testing.T) {
	ctx := context.Background()
	s := New(WithClock(fixedClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))))

	require.NoError(t, s.Set(ctx, "c", "a", Data{"updatedAt": docstore.ServerTimestamp}))
	first, _ := s.Get(ctx, "c", "a")
	require.NoError(t, s.Update(ctx, "c", "a", Data{"updatedAt": docstore.ServerTimestamp}))
	second, _ := s.Get(ctx, "c", "a")

	assert.Less(t, first.Data["updatedAt"].(string), second.Data["updatedAt"].(string))
}

func TestStore_QueryFilterAndOrder(t *testing.T) {
	ctx := context.Background()
	s := New()
	col := "users/u1/transactions"
	require.NoError(t, s.Set(ctx, col, "a", Data{"userId": "u1", "date": "2024-01-02"}))
	require.NoError(t, s.Set(ctx, col, "b", Data{"userId": "u1", "date": "2024-03-01"}))
	require.NoError(t, s.Set(ctx, col, "c", Data{"userId": "u2", "date": "2024-02-01"}))
	require.NoError(t, s.Set(ctx, col, "d", Data{"userId": "u1", "date": "2024-03-01"}))

	q := docstore.From(col).WhereEq("userId", "u1").Order("date", docstore.Desc)
	got, err := s.Query(ctx, q)
	require.NoError(t, err)

	var ids []string
	for _, snap := range got {
		ids = append(ids, snap.ID)
	}
	// ties keep insertion order
	assert.Equal(t, []string{"b", "d", "a"}, ids)
}

func TestStore_QueryNumericFilter(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Set(ctx, "savings", "a", Data{"year": 2024, "month": 3}))
	require.NoError(t, s.Set(ctx, "savings", "b", Data{"year": 2023, "month": 1}))

	got, err := s.Query(ctx, docstore.From("savings").WhereEq("year", 2024))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)
}

func TestStore_RequiredIndexes(t *testing.T) {
	ctx := context.Background()
	s := New(WithRequiredIndexes())
	col := "users/u1/transactions"
	require.NoError(t, s.Set(ctx, col, "a", Data{"userId": "u1", "date": "2024-01-02"}))

	composite := docstore.From(col).WhereEq("userId", "u1").Order("date", docstore.Desc)
	_, err := s.Query(ctx, composite)
	assert.True(t, docstore.IsCode(err, docstore.CodeFailedPrecondition), err)

	// single-field queries never need an index
	_, err = s.Query(ctx, docstore.From(col).WhereEq("userId", "u1"))
	require.NoError(t, err)
	_, err = s.Query(ctx, docstore.From(col).Order("date", docstore.Desc))
	require.NoError(t, err)

	// indexes are keyed by collection id, so any user's path matches
	s.DeclareIndex(docstore.From("users/other/transactions").WhereEq("userId", "").Order("date", docstore.Desc))
	got, err := s.Query(ctx, composite)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

type recorder struct {
	mu    sync.Mutex
	lists [][]docstore.Snapshot
}

func (r *recorder) onChange(snaps []docstore.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lists = append(r.lists, snaps)
}

func (r *recorder) last() []docstore.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.lists) == 0 {
		return nil
	}
	return r.lists[len(r.lists)-1]
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.lists)
}

func TestStore_Subscribe(t *testing.T) {
	ctx := context.Background()
	s := New()
	col := "users/u1/savings"
	require.NoError(t, s.Set(ctx, col, "a", Data{"year": 2024, "month": 1}))

	rec := &recorder{}
	unsub := s.Subscribe(ctx, docstore.From(col).Order("month", docstore.Asc), rec.onChange, nil)

	assert.Eventually(t, func() bool { return len(rec.last()) == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Set(ctx, col, "b", Data{"year": 2024, "month": 2}))
	assert.Eventually(t, func() bool { return len(rec.last()) == 2 }, time.Second, 5*time.Millisecond)

	unsub()
	unsub()
	assert.Equal(t, 0, s.Subscribers())

	n := rec.count()
	require.NoError(t, s.Set(ctx, col, "c", Data{"year": 2024, "month": 3}))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, n, rec.count(), "no deliveries after unsubscribe")
}

func TestStore_SubscribeReportsIndexError(t *testing.T) {
	s := New(WithRequiredIndexes())
	errs := make(chan error, 1)
	s.Subscribe(context.Background(),
		docstore.From("users/u1/savings").WhereEq("year", 2024).Order("month", docstore.Asc),
		func([]docstore.Snapshot) { t.Error("unexpected delivery") },
		func(err error) { errs <- err })

	select {
	case err := <-errs:
		assert.True(t, docstore.IsCode(err, docstore.CodeFailedPrecondition))
	case <-time.After(time.Second):
		t.Fatal("no error delivered")
	}
	assert.Eventually(t, func() bool { return s.Subscribers() == 0 }, time.Second, 5*time.Millisecond)
}

type fakePublisher struct {
	mu      sync.Mutex
	changes []docstore.Change
}

func (p *fakePublisher) PublishChange(_ context.Context, c docstore.Change) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changes = append(p.changes, c)
	return nil
}

func TestStore_PublishesChanges(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{}
	s := New(WithPublisher(pub))

	id, err := s.Add(ctx, "c", Data{"a": 1})
	require.NoError(t, err)
	require.NoError(t, s.Update(ctx, "c", id, Data{"a": 2}))
	require.NoError(t, s.Delete(ctx, "c", id))
	require.NoError(t, s.Delete(ctx, "c", id))

	require.Len(t, pub.changes, 3)
	assert.Equal(t, docstore.OpCreate, pub.changes[0].Op)
	assert.Equal(t, docstore.OpUpdate, pub.changes[1].Op)
	assert.Equal(t, docstore.OpDelete, pub.changes[2].Op)
	assert.Equal(t, id, pub.changes[2].ID)
}
