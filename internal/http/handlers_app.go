package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"spendly/internal/state"
)

// guardTimeout bounds the wait for the first auth-state delivery.
const guardTimeout = 5 * time.Second

// handleGuard resolves /app/<page> for the bearer of the request. Clients
// asking for JSON get the decision; others are redirected when the guard
// says so.
func (s *Server) handleGuard(w http.ResponseWriter, r *http.Request) {
	target := "/" + r.PathValue("path")
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}

	ctx, cancel := context.WithTimeout(r.Context(), guardTimeout)
	defer cancel()

	session := state.NewSession(s.deps.Auth, BearerToken(r))
	defer session.Dispose()

	decision, err := s.guard.Before(ctx, session, target)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if decision.Redirect != "" && !wantsJSON(r) {
		http.Redirect(w, r, decision.Redirect, http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}
