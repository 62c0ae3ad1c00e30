package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"spendly/internal/core"
)

func TestResponseBuilder_JSON(t *testing.T) {
	w := httptest.NewRecorder()

	NewResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/transactions/abc").
		JSON(map[string]string{"id": "abc"}).
		Write(w)

	if w.Code != http.StatusCreated {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusCreated)
	}
	if got := w.Header().Get("Content-Type"); got != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", got)
	}
	if got := w.Header().Get("Location"); got != "/api/transactions/abc" {
		t.Errorf("Location = %q", got)
	}
	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["id"] != "abc" {
		t.Errorf("id = %q, want abc", body["id"])
	}
}

func TestResponseBuilder_NoBody(t *testing.T) {
	w := httptest.NewRecorder()
	NewResponse().Status(http.StatusNoContent).Write(w)

	if w.Code != http.StatusNoContent {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusNoContent)
	}
	if w.Body.Len() != 0 {
		t.Errorf("Body = %q, want empty", w.Body.String())
	}
}

func TestUnauthorizedError(t *testing.T) {
	w := httptest.NewRecorder()
	UnauthorizedError("Usuario no autenticado").Write(w)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Status code = %d, want 401", w.Code)
	}
	if w.Header().Get("WWW-Authenticate") == "" {
		t.Error("WWW-Authenticate header not set")
	}
}

func TestFromError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantMessage string
		wantCode    string
	}{
		{"validation", core.ValidationError("Monto inválido"), http.StatusBadRequest, "Monto inválido", ""},
		{"unauthenticated", core.NewError(core.ErrUnauthenticated, "Usuario no autenticado"), http.StatusUnauthorized, "Usuario no autenticado", ""},
		{"forbidden", core.NewError(core.ErrForbidden, "Sin permisos"), http.StatusForbidden, "Sin permisos", ""},
		{"not found", core.NewError(core.ErrNotFound, "No existe"), http.StatusNotFound, "No existe", ""},
		{"conflict with code", &core.AppError{Kind: core.ErrConflict, Code: "auth/email-already-in-use", Message: "Email en uso"}, http.StatusConflict, "Email en uso", "auth/email-already-in-use"},
		{"rate limited", core.NewError(core.ErrRateLimited, "Demasiados intentos"), http.StatusTooManyRequests, "Demasiados intentos", ""},
		{"timeout", core.NewError(core.ErrTimeout, "Tiempo agotado"), http.StatusGatewayTimeout, "Tiempo agotado", ""},
		{"wrapped deadline", fmt.Errorf("list: %w", context.DeadlineExceeded), http.StatusGatewayTimeout, "list: context deadline exceeded", ""},
		{"unavailable", core.NewError(core.ErrUnavailable, "Servicio no disponible"), http.StatusServiceUnavailable, "Servicio no disponible", ""},
		{"app error without kind", &core.AppError{Message: "Error al guardar"}, http.StatusInternalServerError, "Error al guardar", ""},
		{"raw error hidden", errors.New("disk on fire"), http.StatusInternalServerError, "Error interno del servidor", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			FromError(context.Background(), tt.err).Write(w)

			if w.Code != tt.wantStatus {
				t.Errorf("Status code = %d, want %d", w.Code, tt.wantStatus)
			}
			var body ErrorBody
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Error != tt.wantMessage {
				t.Errorf("Error = %q, want %q", body.Error, tt.wantMessage)
			}
			if body.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", body.Code, tt.wantCode)
			}
		})
	}
}
