package state

import (
	"context"
	"sync"
	"sync/atomic"

	"spendly/internal/access"
	"spendly/internal/core"
	"spendly/internal/docstore/memory"
	"spendly/internal/identity"
	"spendly/internal/log"
)

type fixedUser string

func (u fixedUser) UserID() string { return string(u) }

type modules struct {
	store        *memory.Store
	transactions *access.Transactions
	savings      *access.Savings
	categories   *access.Categories
}

func newModules(opts ...memory.Option) modules {
	store := memory.New(opts...)
	return modules{
		store:        store,
		transactions: access.NewTransactions(store, log.Discard()),
		savings:      access.NewSavings(store, log.Discard()),
		categories:   access.NewCategories(store, log.Discard()),
	}
}

// fakeAuth delivers user on its own goroutine for every listener.
type fakeAuth struct {
	user *core.User

	mu        sync.Mutex
	listeners int
	stopped   atomic.Int32
}

func (f *fakeAuth) OnAuthStateChanged(_ string, fn func(*core.User)) identity.Unsubscribe {
	f.mu.Lock()
	f.listeners++
	f.mu.Unlock()
	go fn(f.user)
	var once sync.Once
	return func() { once.Do(func() { f.stopped.Add(1) }) }
}

func (f *fakeAuth) listenerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listeners
}

// blockingAuth never delivers.
type blockingAuth struct{}

func (blockingAuth) OnAuthStateChanged(string, func(*core.User)) identity.Unsubscribe {
	return func() {}
}

type stubRates struct {
	rates map[string]float64
	err   error
	calls atomic.Int32
}

func (s *stubRates) Latest(context.Context) (map[string]float64, error) {
	s.calls.Add(1)
	return s.rates, s.err
}

func ptr[T any](v T) *T { return &v }
