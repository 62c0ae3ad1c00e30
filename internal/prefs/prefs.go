// Package prefs is the local preference storage used by the theme and
// currency containers: a flat string key/value store.
package prefs

import "sync"

// Keys written by the containers.
const (
	KeyTheme         = "spendly-theme"
	KeyCurrency      = "spendly_currency"
	KeyExchangeRates = "spendly_exchange_rates"
)

// Store is a string key/value store.
type Store interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Delete(key string) error
}

// Memory is an in-process Store.
type Memory struct {
	mu   sync.RWMutex
	data map[string]string
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

func (m *Memory) Get(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok
}

func (m *Memory) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *Memory) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

type namespaced struct {
	prefix string
	store  Store
}

// Namespace prefixes every key with ns, so several users can share one
// backing store.
func Namespace(store Store, ns string) Store {
	return namespaced{prefix: ns + ":", store: store}
}

func (n namespaced) Get(key string) (string, bool) { return n.store.Get(n.prefix + key) }
func (n namespaced) Set(key, value string) error   { return n.store.Set(n.prefix+key, value) }
func (n namespaced) Delete(key string) error       { return n.store.Delete(n.prefix + key) }
