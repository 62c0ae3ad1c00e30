package http

import (
	"net/http"
	"strings"

	"spendly/internal/core"
	"spendly/internal/identity"
	"spendly/internal/log"
	"spendly/internal/state"
)

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Username string `json:"username"`
}

type sessionResponse struct {
	identity.Session
	Username string `json:"username,omitempty"`
	// Warning reports a step that failed after the account was created.
	Warning string `json:"warning,omitempty"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ctx := r.Context()

	username := core.CleanUsername(req.Username)
	if username != "" {
		if err := core.ValidateUsername(username); err != nil {
			writeError(w, r, err)
			return
		}
		available, err := s.deps.Usernames.IsAvailable(ctx, username)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if !available {
			writeError(w, r, core.NewError(core.ErrConflict, "Username no disponible"))
			return
		}
	}

	sess, err := s.deps.Auth.Register(ctx, strings.TrimSpace(req.Email), req.Password, sanitizeInput(req.Name))
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := sessionResponse{Session: sess}
	if username != "" {
		if err := s.deps.Usernames.Register(ctx, sess.User.UID, username); err != nil {
			log.FromContext(ctx).WarnContext(ctx, "Account created without username",
				log.FieldUserID, sess.User.UID,
				log.FieldUsername, username,
				log.FieldError, err)
			resp.Warning = core.MessageOf(err)
		} else {
			resp.Username = username
		}
	}
	writeJSON(w, http.StatusCreated, resp)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	sess, err := s.deps.Auth.Login(r.Context(), strings.TrimSpace(req.Email), req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Session: sess})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := BearerToken(r)
	if err := s.deps.Auth.Logout(r.Context(), token); err != nil {
		writeError(w, r, err)
		return
	}
	s.dropWorkspace(token)
	w.WriteHeader(http.StatusNoContent)
}

type emailRequest struct {
	Email string `json:"email"`
}

func (s *Server) handleSendPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.deps.Auth.SendPasswordReset(r.Context(), strings.TrimSpace(req.Email)); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type confirmResetRequest struct {
	Code     string `json:"code"`
	Password string `json:"password"`
}

func (s *Server) handleConfirmPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req confirmResetRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.deps.Auth.ResetPassword(r.Context(), strings.TrimSpace(req.Code), req.Password); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type codeRequest struct {
	Code string `json:"code"`
}

func (s *Server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.deps.Auth.VerifyEmail(r.Context(), strings.TrimSpace(req.Code)); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type meResponse struct {
	User        *core.User `json:"user"`
	DisplayName string     `json:"displayName"`
	Username    string     `json:"username,omitempty"`
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, ws *state.Workspace) {
	username, err := s.deps.Usernames.UsernameFromUID(r.Context(), ws.Session.UserID())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, meResponse{
		User:        ws.Session.User(),
		DisplayName: ws.Session.DisplayName(),
		Username:    username,
	})
}

type updateAccountRequest struct {
	DisplayName *string `json:"displayName,omitempty"`
	Email       *string `json:"email,omitempty"`
	Password    *string `json:"password,omitempty"`
}

// handleUpdateAccount applies the given fields in order: name, email,
// password. The first failure stops the rest.
func (s *Server) handleUpdateAccount(w http.ResponseWriter, r *http.Request, ws *state.Workspace) {
	var req updateAccountRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ctx := r.Context()
	token := BearerToken(r)

	if req.DisplayName != nil {
		if err := s.deps.Auth.UpdateDisplayName(ctx, token, sanitizeInput(*req.DisplayName)); err != nil {
			writeError(w, r, err)
			return
		}
	}
	if req.Email != nil {
		if err := s.deps.Auth.UpdateEmail(ctx, token, strings.TrimSpace(*req.Email)); err != nil {
			writeError(w, r, err)
			return
		}
	}
	if req.Password != nil {
		if err := s.deps.Auth.UpdatePassword(ctx, token, *req.Password); err != nil {
			writeError(w, r, err)
			return
		}
	}

	user, err := s.deps.Auth.CurrentUser(ctx, token)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ws.Session.SetUser(user)
	writeJSON(w, http.StatusOK, meResponse{User: ws.Session.User(), DisplayName: ws.Session.DisplayName()})
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request, _ *state.Workspace) {
	token := BearerToken(r)
	if err := s.deps.Auth.DeleteAccount(r.Context(), token); err != nil {
		writeError(w, r, err)
		return
	}
	s.dropWorkspace(token)
	w.WriteHeader(http.StatusNoContent)
}

type passwordRequest struct {
	Password string `json:"password"`
}

func (s *Server) handleReauthenticate(w http.ResponseWriter, r *http.Request, _ *state.Workspace) {
	var req passwordRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.deps.Auth.Reauthenticate(r.Context(), BearerToken(r), req.Password); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSendVerification(w http.ResponseWriter, r *http.Request, _ *state.Workspace) {
	if err := s.deps.Auth.SendVerificationEmail(r.Context(), BearerToken(r)); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
