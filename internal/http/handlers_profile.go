package http

import (
	"errors"
	"net/http"

	"spendly/internal/access"
	"spendly/internal/core"
	"spendly/internal/state"
)

type availabilityResponse struct {
	Username  string `json:"username"`
	Valid     bool   `json:"valid"`
	Available bool   `json:"available"`
}

func (s *Server) handleUsernameAvailable(w http.ResponseWriter, r *http.Request) {
	username := core.CleanUsername(r.PathValue("username"))
	resp := availabilityResponse{Username: username, Valid: s.deps.Usernames.ValidateFormat(username)}
	if resp.Valid {
		available, err := s.deps.Usernames.IsAvailable(r.Context(), username)
		if err != nil {
			writeError(w, r, err)
			return
		}
		resp.Available = available
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUsernameSuggestions(w http.ResponseWriter, r *http.Request) {
	base := sanitizeInput(r.URL.Query().Get("base"))
	if base == "" {
		writeError(w, r, core.ValidationError("El parámetro base es obligatorio"))
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{
		"suggestions": s.deps.Usernames.Suggestions(r.Context(), base),
	})
}

func (s *Server) handlePublicProfile(w http.ResponseWriter, r *http.Request) {
	info, err := s.deps.Profiles.FindByUsername(r.Context(), r.PathValue("username"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request, ws *state.Workspace) {
	info, err := s.deps.Profiles.PublicInfo(r.Context(), ws.Session.UserID())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

type usernameRequest struct {
	Username string `json:"username"`
}

// handleSetUsername registers a first username or renames the current one.
func (s *Server) handleSetUsername(w http.ResponseWriter, r *http.Request, ws *state.Workspace) {
	var req usernameRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ctx := r.Context()
	uid := ws.Session.UserID()
	username := core.CleanUsername(req.Username)

	current, err := s.deps.Usernames.UsernameFromUID(ctx, uid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if current == "" {
		err = s.deps.Usernames.Register(ctx, uid, username)
	} else {
		err = s.deps.Usernames.Update(ctx, uid, current, username)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"username":    username,
		"handle":      core.FormatUsername(username),
		"profilePath": core.ProfilePath(username),
	})
}

const photoField = "photo"

// handleUploadPhoto stores a multipart "photo" file and points the account
// and public profile at it.
func (s *Server) handleUploadPhoto(w http.ResponseWriter, r *http.Request, ws *state.Workspace) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.opts.MaxUploadBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, r, core.ValidationError("La imagen es demasiado grande"))
			return
		}
		writeError(w, r, core.ValidationError("Formato de solicitud inválido"))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile(photoField)
	if err != nil {
		writeError(w, r, core.ValidationError("Selecciona una imagen para subir"))
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	url, err := s.deps.Profiles.UploadPhoto(r.Context(), ws.Session.UserID(), &access.PhotoFile{
		Name:        header.Filename,
		ContentType: contentType,
		Size:        header.Size,
		Content:     file,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.deps.Auth.UpdatePhotoURL(r.Context(), BearerToken(r), url); err != nil {
		writeError(w, r, err)
		return
	}
	if user := ws.Session.User(); user != nil {
		user.PhotoURL = url
		ws.Session.SetUser(user)
	}
	writeJSON(w, http.StatusOK, map[string]string{"photoURL": url})
}
