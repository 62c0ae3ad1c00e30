// Package http provides the JSON API server.
//
// This file implements utilities for parsing and validating request data:
// JSON bodies, bearer tokens and the query parameters shared by the list
// endpoints.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"spendly/internal/core"
	"spendly/internal/state"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 1 << 20

// MonthParams holds parsed year/month values from request parameters.
type MonthParams struct {
	Year  int
	Month int
}

// ParseMonthParams extracts year and month from query parameters, using the
// current date as defaults.
func ParseMonthParams(query url.Values, now time.Time) MonthParams {
	params := MonthParams{
		Year:  now.Year(),
		Month: int(now.Month()),
	}

	if v := strings.TrimSpace(query.Get("year")); v != "" {
		if y, err := strconv.Atoi(v); err == nil {
			params.Year = y
		}
	}
	if v := strings.TrimSpace(query.Get("month")); v != "" {
		if m, err := strconv.Atoi(v); err == nil {
			params.Month = m
		}
	}

	return params
}

// ParseMonthRange reads fromYear/fromMonth/toYear/toMonth. Missing bounds
// stay zero, which MonthRange treats as open.
func ParseMonthRange(query url.Values) (core.MonthRange, error) {
	var rng core.MonthRange
	fields := []struct {
		name string
		dst  *int
	}{
		{"fromYear", &rng.FromYear},
		{"fromMonth", &rng.FromMonth},
		{"toYear", &rng.ToYear},
		{"toMonth", &rng.ToMonth},
	}
	for _, f := range fields {
		v := strings.TrimSpace(query.Get(f.name))
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return rng, core.ValidationError(fmt.Sprintf("Parámetro inválido: %s", f.name))
		}
		*f.dst = n
	}
	if rng.FromYear == 0 {
		return rng, core.ValidationError("El año inicial es obligatorio")
	}
	for _, m := range []int{rng.FromMonth, rng.ToMonth} {
		if m < 0 || m > 12 {
			return rng, core.ValidationError("El mes debe estar entre 1 y 12")
		}
	}
	return rng, nil
}

// ParseTransactionFilters maps the list query onto container filters.
func ParseTransactionFilters(query url.Values) (state.Filters, error) {
	f := state.Filters{
		Type:          core.TransactionType(sanitizeInput(query.Get("type"))),
		Category:      sanitizeInput(query.Get("category")),
		PaymentMethod: sanitizeInput(query.Get("paymentMethod")),
		DateFrom:      sanitizeInput(query.Get("dateFrom")),
		DateTo:        sanitizeInput(query.Get("dateTo")),
	}
	if f.Type != "" && !f.Type.IsValid() {
		return f, core.ValidationError("Tipo de transacción inválido")
	}
	for _, d := range []string{f.DateFrom, f.DateTo} {
		if d == "" {
			continue
		}
		if _, err := core.ParseLocalDate(d); err != nil {
			return f, core.ValidationError("Fecha inválida: " + d)
		}
	}
	var err error
	if f.Year, err = optionalInt(query, "year"); err != nil {
		return f, err
	}
	if f.Month, err = optionalInt(query, "month"); err != nil {
		return f, err
	}
	if f.Month != 0 && f.Year == 0 {
		return f, core.ValidationError("El mes requiere un año")
	}
	if f.Month < 0 || f.Month > 12 {
		return f, core.ValidationError("El mes debe estar entre 1 y 12")
	}
	if f.MinAmount, err = optionalAmount(query, "minAmount"); err != nil {
		return f, err
	}
	if f.MaxAmount, err = optionalAmount(query, "maxAmount"); err != nil {
		return f, err
	}
	return f, nil
}

// optionalAmount parses an amount bound; comma decimals are accepted.
func optionalAmount(query url.Values, name string) (*float64, error) {
	v := strings.TrimSpace(query.Get(name))
	if v == "" {
		return nil, nil
	}
	n, err := core.ParseAmount(v)
	if err != nil {
		return nil, core.ValidationError(fmt.Sprintf("Parámetro inválido: %s", name))
	}
	return &n, nil
}

func optionalInt(query url.Values, name string) (int, error) {
	v := strings.TrimSpace(query.Get(name))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, core.ValidationError(fmt.Sprintf("Parámetro inválido: %s", name))
	}
	return n, nil
}

// DecodeJSON reads a single JSON object into dst. Unknown fields are
// rejected so identity fields cannot be smuggled into patches.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return core.ValidationError("El cuerpo de la solicitud está vacío")
		case errors.As(err, &maxErr):
			return core.ValidationError("El cuerpo de la solicitud es demasiado grande")
		default:
			return core.ValidationError("Formato de solicitud inválido")
		}
	}
	if dec.More() {
		return core.ValidationError("Formato de solicitud inválido")
	}
	return nil
}

// BearerToken returns the token of an "Authorization: Bearer" header, or "".
func BearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
