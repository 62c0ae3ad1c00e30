package http

import (
	"net/http"
	"strings"

	"spendly/internal/core"
	"spendly/internal/state"
)

type categoriesResponse struct {
	core.CategorySet
	All []string `json:"all"`
}

func categoriesOf(ws *state.Workspace) categoriesResponse {
	return categoriesResponse{CategorySet: ws.Categories.Set(), All: ws.Categories.All()}
}

func (s *Server) handleGetCategories(w http.ResponseWriter, r *http.Request, ws *state.Workspace) {
	writeJSON(w, http.StatusOK, categoriesOf(ws))
}

type categoryRequest struct {
	Type core.TransactionType `json:"type"`
	Name string               `json:"name"`
}

// writeCategoryChange answers 200 with the new set, or 409 when the change
// was refused as a duplicate or unknown entry.
func writeCategoryChange(w http.ResponseWriter, r *http.Request, ws *state.Workspace, changed bool, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !changed {
		writeError(w, r, core.NewError(core.ErrConflict, "La categoría no cambió"))
		return
	}
	writeJSON(w, http.StatusOK, categoriesOf(ws))
}

func (s *Server) handleAddCategory(w http.ResponseWriter, r *http.Request, ws *state.Workspace) {
	var req categoryRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if !req.Type.IsValid() {
		writeError(w, r, core.ValidationError("Tipo de transacción inválido"))
		return
	}
	changed, err := ws.Categories.AddCategory(r.Context(), req.Type, sanitizeInput(req.Name))
	writeCategoryChange(w, r, ws, changed, err)
}

func (s *Server) handleRemoveCategory(w http.ResponseWriter, r *http.Request, ws *state.Workspace) {
	txType := core.TransactionType(r.PathValue("type"))
	if !txType.IsValid() {
		writeError(w, r, core.ValidationError("Tipo de transacción inválido"))
		return
	}
	changed, err := ws.Categories.RemoveCategory(r.Context(), txType, r.PathValue("name"))
	writeCategoryChange(w, r, ws, changed, err)
}

type subcategoryRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleAddSubcategory(w http.ResponseWriter, r *http.Request, ws *state.Workspace) {
	var req subcategoryRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	changed, err := ws.Categories.AddSubcategory(r.Context(), r.PathValue("name"), sanitizeInput(req.Name))
	writeCategoryChange(w, r, ws, changed, err)
}

func (s *Server) handleRemoveSubcategory(w http.ResponseWriter, r *http.Request, ws *state.Workspace) {
	changed, err := ws.Categories.RemoveSubcategory(r.Context(), r.PathValue("name"), r.PathValue("sub"))
	writeCategoryChange(w, r, ws, changed, err)
}

func (s *Server) handleResetCategories(w http.ResponseWriter, r *http.Request, ws *state.Workspace) {
	if err := ws.Categories.ResetToDefaults(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, categoriesOf(ws))
}

func (s *Server) handleListCurrencies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]core.Currency{"currencies": core.Currencies()})
}

type currencyResponse struct {
	Current core.Currency  `json:"current"`
	Rate    float64        `json:"rate"`
	Rates   state.RateInfo `json:"rates"`
}

func currencyOf(ws *state.Workspace) currencyResponse {
	return currencyResponse{
		Current: ws.Currency.CurrentInfo(),
		Rate:    ws.Currency.Rate(),
		Rates:   ws.Currency.RateInfo(),
	}
}

func (s *Server) handleGetCurrency(w http.ResponseWriter, r *http.Request, ws *state.Workspace) {
	writeJSON(w, http.StatusOK, currencyOf(ws))
}

type setCurrencyRequest struct {
	Code string `json:"code"`
}

func (s *Server) handleSetCurrency(w http.ResponseWriter, r *http.Request, ws *state.Workspace) {
	var req setCurrencyRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := ws.Currency.SetCurrency(strings.ToUpper(strings.TrimSpace(req.Code))); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, currencyOf(ws))
}

type conversion struct {
	Amount    float64 `json:"amount"`
	From      string  `json:"from"`
	To        string  `json:"to"`
	Converted float64 `json:"converted"`
	Formatted string  `json:"formatted"`
}

// handleConvert converts ?amount= from ?from= (USD by default) to ?to= (the
// display currency by default).
func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request, ws *state.Workspace) {
	query := r.URL.Query()
	amount, err := core.ParseAmount(query.Get("amount"))
	if err != nil {
		writeError(w, r, core.ValidationError("Parámetro inválido: amount"))
		return
	}
	from := strings.ToUpper(strings.TrimSpace(query.Get("from")))
	if from == "" {
		from = core.BaseCurrency
	}
	to := strings.ToUpper(strings.TrimSpace(query.Get("to")))
	if to == "" {
		to = ws.Currency.Current()
	}
	for _, code := range []string{from, to} {
		if _, ok := core.LookupCurrency(code); !ok {
			writeError(w, r, core.ValidationError("Moneda no soportada: "+code))
			return
		}
	}
	converted := ws.Currency.ConvertAmount(amount, from, to)
	writeJSON(w, http.StatusOK, conversion{
		Amount:    amount,
		From:      from,
		To:        to,
		Converted: core.RoundAmount(converted, to),
		Formatted: ws.Currency.Format(converted, to),
	})
}

func (s *Server) handleRefreshRates(w http.ResponseWriter, r *http.Request, ws *state.Workspace) {
	if err := ws.Currency.UpdateRates(r.Context()); err != nil {
		writeError(w, r, &core.AppError{
			Kind:    core.ErrUnavailable,
			Message: "No se pudieron actualizar las tasas de cambio",
			Err:     err,
		})
		return
	}
	writeJSON(w, http.StatusOK, currencyOf(ws))
}

type backfillRequest struct {
	Currency string `json:"currency"`
}

// handleBackfillCurrency stamps currency on every transaction that has none,
// then reloads the cache.
func (s *Server) handleBackfillCurrency(w http.ResponseWriter, r *http.Request, ws *state.Workspace) {
	var req backfillRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	code := strings.ToUpper(strings.TrimSpace(req.Currency))
	if code == "" {
		code = ws.Currency.Current()
	}
	n, err := s.deps.Transactions.BackfillCurrency(r.Context(), ws.Session.UserID(), code)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := ws.Transactions.Load(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"currency": code, "updated": n})
}

type themeResponse struct {
	Theme  string        `json:"theme"`
	Dark   bool          `json:"dark"`
	Colors state.Palette `json:"colors"`
}

func themeOf(ws *state.Workspace) themeResponse {
	return themeResponse{Theme: ws.Theme.Current(), Dark: ws.Theme.IsDark(), Colors: ws.Theme.Colors()}
}

func (s *Server) handleGetTheme(w http.ResponseWriter, r *http.Request, ws *state.Workspace) {
	writeJSON(w, http.StatusOK, themeOf(ws))
}

type themeRequest struct {
	Theme string `json:"theme"`
}

func (s *Server) handleSetTheme(w http.ResponseWriter, r *http.Request, ws *state.Workspace) {
	var req themeRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	switch req.Theme {
	case state.ThemeDark, state.ThemeLight:
	default:
		writeError(w, r, core.ValidationError("Tema inválido"))
		return
	}
	if err := ws.Theme.Set(req.Theme == state.ThemeDark); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, themeOf(ws))
}

func (s *Server) handleToggleTheme(w http.ResponseWriter, r *http.Request, ws *state.Workspace) {
	if err := ws.Theme.Toggle(); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, themeOf(ws))
}
