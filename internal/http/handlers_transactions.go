package http

import (
	"net/http"
	"strconv"
	"strings"

	"spendly/internal/core"
	"spendly/internal/state"
)

type transactionList struct {
	Items   []core.Transaction `json:"items"`
	Count   int                `json:"count"`
	Filters state.Filters      `json:"filters"`
}

// handleListTransactions returns the cached transactions matching the query
// filters, newest first. refresh=true reloads the cache first; limit caps
// the result.
func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request, ws *state.Workspace) {
	query := r.URL.Query()
	filters, err := ParseTransactionFilters(query)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if refresh, _ := strconv.ParseBool(query.Get("refresh")); refresh {
		if err := ws.Transactions.Load(r.Context()); err != nil {
			writeError(w, r, err)
			return
		}
	}

	items := ws.Transactions.FilterBy(filters)
	if v := strings.TrimSpace(query.Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, r, core.ValidationError("Parámetro inválido: limit"))
			return
		}
		if len(items) > n {
			items = items[:n]
		}
	}
	writeJSON(w, http.StatusOK, transactionList{Items: items, Count: len(items), Filters: filters})
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request, ws *state.Workspace) {
	var in core.TransactionInput
	if err := DecodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	in.Category = sanitizeInput(in.Category)
	in.Subcategory = sanitizeInput(in.Subcategory)
	in.Note = sanitizeInput(in.Note)
	if in.Date == "" {
		in.Date = core.TodayLocalDateString()
	}

	id, err := ws.Transactions.Add(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/transactions/"+id).
		JSON(map[string]string{"id": id}).
		Write(w)
}

type transactionSummary struct {
	core.TransactionSummary
	Currency       string   `json:"currency"`
	Formatted      string   `json:"formattedBalance"`
	CategoriesUsed []string `json:"categoriesUsed"`
}

// handleTransactionSummary totals the cache in the display currency.
func (s *Server) handleTransactionSummary(w http.ResponseWriter, r *http.Request, ws *state.Workspace) {
	sum := ws.Transactions.Summary()
	code := ws.Currency.Current()
	writeJSON(w, http.StatusOK, transactionSummary{
		TransactionSummary: sum,
		Currency:           code,
		Formatted:          ws.Currency.Format(sum.Balance, code),
		CategoriesUsed:     ws.Transactions.CategoriesUsed(),
	})
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request, ws *state.Workspace) {
	tx, err := s.deps.Transactions.Get(r.Context(), r.PathValue("id"), ws.Session.UserID())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request, ws *state.Workspace) {
	var patch core.TransactionPatch
	if err := DecodeJSON(w, r, &patch); err != nil {
		writeError(w, r, err)
		return
	}
	id := r.PathValue("id")
	if err := ws.Transactions.Update(r.Context(), id, patch); err != nil {
		writeError(w, r, err)
		return
	}
	tx, err := s.deps.Transactions.Get(r.Context(), id, ws.Session.UserID())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request, ws *state.Workspace) {
	if err := ws.Transactions.Remove(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
