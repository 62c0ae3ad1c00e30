package http

import (
	"context"
	"net/http"

	"spendly/internal/core"
	"spendly/internal/log"
	"spendly/internal/state"
)

type workspaceHandler func(w http.ResponseWriter, r *http.Request, ws *state.Workspace)

const msgSignInRequired = "Inicia sesión para continuar"

// withWorkspace authenticates the bearer token on every request and hands
// the handler the caller's workspace, building it on first use.
func (s *Server) withWorkspace(next workspaceHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := BearerToken(r)
		if token == "" {
			UnauthorizedError(msgSignInRequired).Write(w)
			return
		}

		user, err := s.deps.Auth.CurrentUser(r.Context(), token)
		if err != nil || user == nil {
			s.workspaces.Delete(token)
			if err == nil {
				UnauthorizedError(msgSignInRequired).Write(w)
				return
			}
			writeError(w, r, err)
			return
		}

		ws, err := s.workspace(r.Context(), token, user)
		if err != nil {
			writeError(w, r, err)
			return
		}
		ws.Session.SetUser(user)

		ctx := context.WithValue(r.Context(), log.LoggerContextKey, log.FromContext(r.Context()).With(log.FieldUserID, user.UID))
		next(w, r.WithContext(ctx), ws)
	}
}

// workspace returns the cached workspace of token. Concurrent first requests
// share one build.
func (s *Server) workspace(ctx context.Context, token string, user *core.User) (*state.Workspace, error) {
	if ws, ok := s.workspaces.Get(token); ok {
		return ws, nil
	}
	v, err, _ := s.building.Do(token, func() (any, error) {
		if ws, ok := s.workspaces.Get(token); ok {
			return ws, nil
		}
		ws := state.NewWorkspace(state.Deps{
			Auth:            s.deps.Auth,
			Transactions:    s.deps.Transactions,
			Savings:         s.deps.Savings,
			Categories:      s.deps.Categories,
			Prefs:           s.deps.Prefs,
			Rates:           s.deps.Rates,
			RefreshInterval: s.opts.RatesRefresh,
			Logger:          s.deps.Logger,
		}, token, user)
		if err := ws.Load(ctx, false); err != nil {
			ws.Dispose()
			return nil, err
		}
		if s.opts.Realtime {
			if err := ws.StartRealtime(); err != nil {
				ws.Dispose()
				return nil, err
			}
		}
		s.workspaces.Set(token, ws)
		s.logger.DebugContext(ctx, "Workspace created", log.FieldUserID, user.UID, "cached", s.workspaces.Size())
		return ws, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*state.Workspace), nil
}

// dropWorkspace disposes the workspace of token, if any.
func (s *Server) dropWorkspace(token string) {
	if token != "" {
		s.workspaces.Delete(token)
	}
}
