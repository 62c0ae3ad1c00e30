// Package sheets mirrors transactions into a spreadsheet, one row per
// transaction keyed by its document id.
package sheets

import (
	"context"
	"strconv"
	"time"

	"spendly/internal/core"
)

// Row status values.
const (
	StatusActive  = "active"
	StatusDeleted = "deleted"
)

// Row is the mirrored form of one transaction.
type Row struct {
	ID            string
	UserID        string
	Date          string
	Type          string
	Category      string
	Subcategory   string
	PaymentMethod string
	Amount        float64
	Currency      string
	Note          string
	Status        string
	SyncedAt      time.Time
}

// RowFromTransaction builds the active row for t.
func RowFromTransaction(t core.Transaction, syncedAt time.Time) Row {
	return Row{
		ID:            t.ID,
		UserID:        t.UserID,
		Date:          t.Date,
		Type:          string(t.Type),
		Category:      t.Category,
		Subcategory:   t.Subcategory,
		PaymentMethod: t.PaymentMethod,
		Amount:        t.Amount,
		Currency:      t.CurrencyOrDefault(),
		Note:          t.Note,
		Status:        StatusActive,
		SyncedAt:      syncedAt,
	}
}

// Header is the first row of the mirror sheet.
var Header = []string{"ID", "User", "Date", "Type", "Category", "Subcategory", "Payment method", "Amount", "Currency", "Note", "Status", "Synced at"}

// Values renders the row in Header order.
func (r Row) Values() []string {
	return []string{
		r.ID,
		r.UserID,
		r.Date,
		r.Type,
		r.Category,
		r.Subcategory,
		r.PaymentMethod,
		strconv.FormatFloat(r.Amount, 'f', -1, 64),
		r.Currency,
		r.Note,
		r.Status,
		r.SyncedAt.UTC().Format(time.RFC3339),
	}
}

// TransactionMirror is the outbound port of the mirror worker.
type TransactionMirror interface {
	// Upsert overwrites the row with the same id, or appends one.
	Upsert(ctx context.Context, row Row) (rowRef string, err error)
	// MarkDeleted flags the row of id as deleted. A missing row is not an error.
	MarkDeleted(ctx context.Context, id string, at time.Time) error
}
