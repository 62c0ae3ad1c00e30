package core

import (
	"strings"
	"time"
)

// TransactionType distinguishes expenses from income.
type TransactionType string

const (
	TypeGasto   TransactionType = "gasto"
	TypeIngreso TransactionType = "ingreso"
)

// IsValid reports whether t is one of the known transaction types.
func (t TransactionType) IsValid() bool {
	return t == TypeGasto || t == TypeIngreso
}

type (
	// Transaction is a single income or expense owned by one user.
	Transaction struct {
		ID            string          `json:"id"`
		UserID        string          `json:"userId"`
		Type          TransactionType `json:"type"`
		Amount        float64         `json:"amount"`
		Currency      string          `json:"currency,omitempty"`
		Category      string          `json:"category"`
		Subcategory   string          `json:"subcategory,omitempty"`
		PaymentMethod string          `json:"paymentMethod,omitempty"`
		Date          string          `json:"date"`
		Note          string          `json:"note,omitempty"`
		CreatedAt     time.Time       `json:"createdAt"`
		UpdatedAt     time.Time       `json:"updatedAt"`
	}

	// TransactionInput is the payload accepted on creation.
	TransactionInput struct {
		Type          TransactionType `json:"type"`
		Amount        float64         `json:"amount"`
		Currency      string          `json:"currency,omitempty"`
		Category      string          `json:"category"`
		Subcategory   string          `json:"subcategory,omitempty"`
		PaymentMethod string          `json:"paymentMethod,omitempty"`
		Date          string          `json:"date"`
		Note          string          `json:"note,omitempty"`
	}

	// TransactionPatch holds the mutable fields of a transaction. Nil fields are
	// left untouched. Identity and creation fields have no place here.
	TransactionPatch struct {
		Type          *TransactionType `json:"type,omitempty"`
		Amount        *float64         `json:"amount,omitempty"`
		Currency      *string          `json:"currency,omitempty"`
		Category      *string          `json:"category,omitempty"`
		Subcategory   *string          `json:"subcategory,omitempty"`
		PaymentMethod *string          `json:"paymentMethod,omitempty"`
		Date          *string          `json:"date,omitempty"`
		Note          *string          `json:"note,omitempty"`
	}

	// TransactionSummary aggregates income and expense totals.
	TransactionSummary struct {
		TotalIngresos      float64 `json:"totalIngresos"`
		TotalGastos        float64 `json:"totalGastos"`
		Balance            float64 `json:"balance"`
		TotalTransacciones int     `json:"totalTransacciones"`
	}
)

// Validate checks the creation payload before any remote call.
func (in TransactionInput) Validate() error {
	if !in.Type.IsValid() {
		return ValidationError("El tipo debe ser 'gasto' o 'ingreso'")
	}
	if in.Amount <= 0 {
		return ValidationError("El monto debe ser mayor a cero")
	}
	if strings.TrimSpace(in.Category) == "" {
		return ValidationError("La categoría es obligatoria")
	}
	if _, err := ParseLocalDate(in.Date); err != nil {
		return ValidationError("La fecha debe tener el formato AAAA-MM-DD")
	}
	if in.Currency != "" {
		if _, ok := LookupCurrency(in.Currency); !ok {
			return ValidationError("Moneda no soportada")
		}
	}
	return nil
}

// Fields returns the document fields for the creation payload.
func (in TransactionInput) Fields() map[string]any {
	m := map[string]any{
		"type":     string(in.Type),
		"amount":   in.Amount,
		"category": strings.TrimSpace(in.Category),
		"date":     in.Date,
	}
	if in.Currency != "" {
		m["currency"] = in.Currency
	}
	if in.Subcategory != "" {
		m["subcategory"] = in.Subcategory
	}
	if in.PaymentMethod != "" {
		m["paymentMethod"] = in.PaymentMethod
	}
	if in.Note != "" {
		m["note"] = in.Note
	}
	return m
}

// Validate checks the fields that are set.
func (p TransactionPatch) Validate() error {
	if p.Type != nil && !p.Type.IsValid() {
		return ValidationError("El tipo debe ser 'gasto' o 'ingreso'")
	}
	if p.Amount != nil && *p.Amount <= 0 {
		return ValidationError("El monto debe ser mayor a cero")
	}
	if p.Category != nil && strings.TrimSpace(*p.Category) == "" {
		return ValidationError("La categoría es obligatoria")
	}
	if p.Date != nil {
		if _, err := ParseLocalDate(*p.Date); err != nil {
			return ValidationError("La fecha debe tener el formato AAAA-MM-DD")
		}
	}
	if p.Currency != nil && *p.Currency != "" {
		if _, ok := LookupCurrency(*p.Currency); !ok {
			return ValidationError("Moneda no soportada")
		}
	}
	return nil
}

// Fields returns only the fields set on the patch.
func (p TransactionPatch) Fields() map[string]any {
	m := map[string]any{}
	if p.Type != nil {
		m["type"] = string(*p.Type)
	}
	if p.Amount != nil {
		m["amount"] = *p.Amount
	}
	if p.Currency != nil {
		m["currency"] = *p.Currency
	}
	if p.Category != nil {
		m["category"] = strings.TrimSpace(*p.Category)
	}
	if p.Subcategory != nil {
		m["subcategory"] = *p.Subcategory
	}
	if p.PaymentMethod != nil {
		m["paymentMethod"] = *p.PaymentMethod
	}
	if p.Date != nil {
		m["date"] = *p.Date
	}
	if p.Note != nil {
		m["note"] = *p.Note
	}
	return m
}

// Apply returns a copy of t with the patch applied.
func (p TransactionPatch) Apply(t Transaction) Transaction {
	if p.Type != nil {
		t.Type = *p.Type
	}
	if p.Amount != nil {
		t.Amount = *p.Amount
	}
	if p.Currency != nil {
		t.Currency = *p.Currency
	}
	if p.Category != nil {
		t.Category = strings.TrimSpace(*p.Category)
	}
	if p.Subcategory != nil {
		t.Subcategory = *p.Subcategory
	}
	if p.PaymentMethod != nil {
		t.PaymentMethod = *p.PaymentMethod
	}
	if p.Date != nil {
		t.Date = *p.Date
	}
	if p.Note != nil {
		t.Note = *p.Note
	}
	return t
}

// CurrencyOrDefault returns the stored currency, USD when none was recorded.
func (t Transaction) CurrencyOrDefault() string {
	if t.Currency == "" {
		return BaseCurrency
	}
	return t.Currency
}

// SummarizeTransactions totals raw amounts without conversion.
func SummarizeTransactions(txs []Transaction) TransactionSummary {
	s := TransactionSummary{TotalTransacciones: len(txs)}
	for _, t := range txs {
		switch t.Type {
		case TypeIngreso:
			s.TotalIngresos += t.Amount
		case TypeGasto:
			s.TotalGastos += t.Amount
		}
	}
	s.Balance = s.TotalIngresos - s.TotalGastos
	return s
}
