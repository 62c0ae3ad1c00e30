// Package state holds the per-user state containers. Each container keeps
// one in-memory cache fed by an access module, together with a loading flag
// and the message of the last failed action.
//
// Transaction and savings containers run in one of two modes. While a live
// subscription is active the cache is replaced only by subscription
// deliveries. Otherwise successful mutations are applied to the cache
// directly. A container is never in both modes at once.
package state

import (
	"sync"

	"spendly/internal/core"
)

const msgUnauthenticated = "Usuario no autenticado"

// UserSource yields the uid the containers act for.
type UserSource interface {
	UserID() string
}

// status is the loading/error pair shared by the containers.
type status struct {
	mu      sync.RWMutex
	loading bool
	err     string
}

func (s *status) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Err returns the message of the last failed action, or "".
func (s *status) Err() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

func (s *status) ClearError() {
	s.mu.Lock()
	s.err = ""
	s.mu.Unlock()
}

// begin marks an action as running and clears the previous error. Callers
// hold s.mu.
func (s *status) begin() {
	s.loading = true
	s.err = ""
}

// fail records err. Callers hold s.mu.
func (s *status) fail(err error) error {
	s.err = core.MessageOf(err)
	return err
}

func unauthenticated() error {
	return core.NewError(core.ErrUnauthenticated, msgUnauthenticated)
}
