package http

import (
	"net/http"
	"strconv"
	"time"

	"spendly/internal/core"
	"spendly/internal/state"
)

// handleListSavings selects ?year= (current year by default) and returns
// its entries with summary and goal.
func (s *Server) handleListSavings(w http.ResponseWriter, r *http.Request, ws *state.Workspace) {
	year := ParseMonthParams(r.URL.Query(), time.Now()).Year
	refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))
	view, err := ws.Savings.Select(r.Context(), core.MonthRange{FromYear: year}, refresh)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleSavingsRange(w http.ResponseWriter, r *http.Request, ws *state.Workspace) {
	rng, err := ParseMonthRange(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	view, err := ws.Savings.Select(r.Context(), rng, true)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleCreateSaving(w http.ResponseWriter, r *http.Request, ws *state.Workspace) {
	var in core.SavingInput
	if err := DecodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	in.Note = sanitizeInput(in.Note)
	id, err := ws.Savings.Add(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().
		Status(http.StatusCreated).
		JSON(map[string]string{"id": id}).
		Write(w)
}

func (s *Server) handleUpdateSaving(w http.ResponseWriter, r *http.Request, ws *state.Workspace) {
	var patch core.SavingPatch
	if err := DecodeJSON(w, r, &patch); err != nil {
		writeError(w, r, err)
		return
	}
	if err := ws.Savings.Update(r.Context(), r.PathValue("id"), patch); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteSaving(w http.ResponseWriter, r *http.Request, ws *state.Workspace) {
	if err := ws.Savings.Remove(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type saveYearRequest struct {
	Amounts [12]float64 `json:"amounts"`
}

// handleSaveYear upserts the twelve monthly amounts of the path year, then
// selects that year.
func (s *Server) handleSaveYear(w http.ResponseWriter, r *http.Request, ws *state.Workspace) {
	year, err := strconv.Atoi(r.PathValue("year"))
	if err != nil || year < 1900 || year > 3000 {
		writeError(w, r, core.ValidationError("Año inválido"))
		return
	}
	var req saveYearRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := ws.Savings.SaveYearMonths(r.Context(), year, req.Amounts); err != nil {
		writeError(w, r, err)
		return
	}
	view, err := ws.Savings.Select(r.Context(), core.MonthRange{FromYear: year}, true)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type goalResponse struct {
	Year     int     `json:"year"`
	Goal     float64 `json:"goal"`
	Progress float64 `json:"progress"`
}

func goalOf(view state.SavingsView) goalResponse {
	return goalResponse{
		Year:     view.Range.FromYear,
		Goal:     view.Goal,
		Progress: view.GoalProgress,
	}
}

func (s *Server) handleGetGoal(w http.ResponseWriter, r *http.Request, ws *state.Workspace) {
	if r.URL.Query().Get("year") == "" {
		writeJSON(w, http.StatusOK, goalOf(ws.Savings.View()))
		return
	}
	year := ParseMonthParams(r.URL.Query(), time.Now()).Year
	view, err := ws.Savings.Select(r.Context(), core.MonthRange{FromYear: year}, false)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, goalOf(view))
}

type goalRequest struct {
	Year   int     `json:"year,omitempty"`
	Amount float64 `json:"amount"`
}

// handleSetGoal stores the goal of the given year, or of the selected year
// when none is given.
func (s *Server) handleSetGoal(w http.ResponseWriter, r *http.Request, ws *state.Workspace) {
	var req goalRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	view, err := ws.Savings.SetGoalOf(r.Context(), req.Year, req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, goalOf(view))
}
