package state

import (
	"context"
	"sync"

	"spendly/internal/core"
	"spendly/internal/identity"
)

// AuthObserver is the part of the auth module the session needs.
type AuthObserver interface {
	OnAuthStateChanged(token string, fn func(*core.User)) identity.Unsubscribe
}

// Session holds the signed-in user behind one token.
type Session struct {
	auth  AuthObserver
	token string

	mu          sync.RWMutex
	user        *core.User
	initialized bool
	ready       chan struct{}
	unsub       identity.Unsubscribe
}

func NewSession(auth AuthObserver, token string) *Session {
	return &Session{auth: auth, token: token}
}

// Init waits for the first auth-state delivery and then stops listening.
// Later calls return immediately; concurrent calls share one listener.
func (s *Session) Init(ctx context.Context) error {
	s.mu.Lock()
	if s.initialized {
		s.mu.Unlock()
		return nil
	}
	if s.ready == nil {
		ready := make(chan struct{})
		s.ready = ready
		s.unsub = s.auth.OnAuthStateChanged(s.token, func(u *core.User) {
			s.mu.Lock()
			defer s.mu.Unlock()
			if s.initialized {
				return
			}
			s.user = copyUser(u)
			s.initialized = true
			close(ready)
		})
	}
	ready := s.ready
	s.mu.Unlock()

	select {
	case <-ready:
		s.stopListening()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) stopListening() {
	s.mu.Lock()
	unsub := s.unsub
	s.unsub = nil
	s.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

func (s *Session) Initialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}

// User returns a copy of the current user, or nil.
func (s *Session) User() *core.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyUser(s.user)
}

func (s *Session) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user != nil
}

// DisplayName falls back to the email when no name was set.
func (s *Session) DisplayName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return ""
	}
	if s.user.DisplayName != "" {
		return s.user.DisplayName
	}
	return s.user.Email
}

func (s *Session) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return ""
	}
	return s.user.UID
}

func (s *Session) SetUser(u *core.User) {
	s.mu.Lock()
	s.user = copyUser(u)
	s.mu.Unlock()
}

func (s *Session) Clear() {
	s.SetUser(nil)
}

// Dispose drops a listener that never delivered.
func (s *Session) Dispose() {
	s.stopListening()
}

func copyUser(u *core.User) *core.User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
