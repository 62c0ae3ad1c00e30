package core

import (
	"fmt"
	"time"
)

type (
	// Saving is the amount saved by a user in one month.
	Saving struct {
		ID        string    `json:"id"`
		UserID    string    `json:"userId"`
		Year      int       `json:"year"`
		Month     int       `json:"month"`
		Amount    float64   `json:"amount"`
		Note      string    `json:"note"`
		CreatedAt time.Time `json:"createdAt"`
		UpdatedAt time.Time `json:"updatedAt"`
	}

	// SavingInput is the payload accepted on creation.
	SavingInput struct {
		Year   int     `json:"year"`
		Month  int     `json:"month"`
		Amount float64 `json:"amount"`
		Note   string  `json:"note"`
	}

	// SavingPatch holds the mutable fields of a saving entry.
	SavingPatch struct {
		Year   *int     `json:"year,omitempty"`
		Month  *int     `json:"month,omitempty"`
		Amount *float64 `json:"amount,omitempty"`
		Note   *string  `json:"note,omitempty"`
	}

	// SavingsSummary aggregates a list of saving entries.
	SavingsSummary struct {
		TotalAll  float64     `json:"totalAll"`
		TotalYear float64     `json:"totalYear"`
		ByMonth   [12]float64 `json:"byMonth"`
		Count     int         `json:"count"`
	}

	// AnnualGoal is the savings target a user set for one year.
	AnnualGoal struct {
		UserID    string    `json:"userId"`
		Year      int       `json:"year"`
		Amount    float64   `json:"amount"`
		UpdatedAt time.Time `json:"updatedAt"`
	}

	// MonthRange selects saving entries between two (year, month) bounds.
	// A zero FromMonth means January, a zero ToMonth means December.
	MonthRange struct {
		FromYear  int `json:"fromYear"`
		ToYear    int `json:"toYear"`
		FromMonth int `json:"fromMonth"`
		ToMonth   int `json:"toMonth"`
	}
)

func validMonth(m int) bool { return m >= 1 && m <= 12 }

// Validate checks the creation payload.
func (in SavingInput) Validate() error {
	if in.Year < 1900 || in.Year > 3000 {
		return ValidationError(fmt.Sprintf("Año inválido: %d", in.Year))
	}
	if !validMonth(in.Month) {
		return ValidationError(fmt.Sprintf("Mes inválido: %d", in.Month))
	}
	if in.Amount < 0 {
		return ValidationError("El monto no puede ser negativo")
	}
	return nil
}

// Fields returns the document fields for the creation payload.
func (in SavingInput) Fields() map[string]any {
	return map[string]any{
		"year":   in.Year,
		"month":  in.Month,
		"amount": in.Amount,
		"note":   in.Note,
	}
}

// Validate checks the fields that are set.
func (p SavingPatch) Validate() error {
	if p.Month != nil && !validMonth(*p.Month) {
		return ValidationError(fmt.Sprintf("Mes inválido: %d", *p.Month))
	}
	if p.Amount != nil && *p.Amount < 0 {
		return ValidationError("El monto no puede ser negativo")
	}
	return nil
}

// Fields returns only the fields set on the patch.
func (p SavingPatch) Fields() map[string]any {
	m := map[string]any{}
	if p.Year != nil {
		m["year"] = *p.Year
	}
	if p.Month != nil {
		m["month"] = *p.Month
	}
	if p.Amount != nil {
		m["amount"] = *p.Amount
	}
	if p.Note != nil {
		m["note"] = *p.Note
	}
	return m
}

// Apply returns a copy of s with the patch applied.
func (p SavingPatch) Apply(s Saving) Saving {
	if p.Year != nil {
		s.Year = *p.Year
	}
	if p.Month != nil {
		s.Month = *p.Month
	}
	if p.Amount != nil {
		s.Amount = *p.Amount
	}
	if p.Note != nil {
		s.Note = *p.Note
	}
	return s
}

// Contains reports whether (year, month) lies inside the range. Within a
// single year both month bounds apply; across years the first year is cut
// from FromMonth, the last year up to ToMonth and the years between pass whole.
func (r MonthRange) Contains(year, month int) bool {
	from, to := r.FromMonth, r.ToMonth
	if from == 0 {
		from = 1
	}
	if to == 0 {
		to = 12
	}
	toYear := r.ToYear
	if toYear == 0 {
		toYear = r.FromYear
	}
	if year < r.FromYear || year > toYear {
		return false
	}
	if r.FromYear == toYear {
		return month >= from && month <= to
	}
	switch year {
	case r.FromYear:
		return month >= from
	case toYear:
		return month <= to
	default:
		return true
	}
}

// SummarizeSavings totals entries. TotalYear and ByMonth only count entries of
// year; a zero year counts every entry in both.
func SummarizeSavings(entries []Saving, year int) SavingsSummary {
	var s SavingsSummary
	for _, e := range entries {
		s.TotalAll += e.Amount
		if year != 0 && e.Year != year {
			continue
		}
		s.Count++
		s.TotalYear += e.Amount
		if validMonth(e.Month) {
			s.ByMonth[e.Month-1] += e.Amount
		}
	}
	return s
}
