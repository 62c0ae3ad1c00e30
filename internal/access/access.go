// Package access holds the per-entity access modules. Each module talks to
// the document store, verifies ownership and turns provider errors into
// core.AppError values carrying user-facing messages.
package access

import (
	"fmt"
	"strings"

	"spendly/internal/core"
	"spendly/internal/docstore"
)

// Collections used by the access modules.
const (
	TransactionsCollection = "transactions"
	UsernamesCollection    = "usernames"
	UsersCollection        = "users"

	categoriesDoc = "categories"
)

// SettingsCollection returns the per-user settings collection.
func SettingsCollection(uid string) string {
	return UsersCollection + "/" + uid + "/settings"
}

// SavingsCollection returns the per-user collection of saving entries.
func SavingsCollection(uid string) string {
	return UsersCollection + "/" + uid + "/savings"
}

func goalDoc(year int) string {
	return fmt.Sprintf("goal-%d", year)
}

func requireUser(uid string) error {
	if strings.TrimSpace(uid) == "" {
		return core.NewError(core.ErrUnauthenticated, msgUnauthenticated)
	}
	return nil
}

// Unsubscribe ends a live subscription. Idempotent.
type Unsubscribe = docstore.Unsubscribe

func decodeAll[T any](snaps []docstore.Snapshot) ([]T, error) {
	out := make([]T, 0, len(snaps))
	for _, snap := range snaps {
		var v T
		if err := snap.Decode(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Indexes returns the composite indexes behind the ordered queries of the
// access modules. Deployments that enforce indexes declare these; without
// them the modules fall back to unordered queries sorted in process.
func Indexes() []docstore.Query {
	var out []docstore.Query
	for _, f := range []TransactionFilters{
		{},
		{Type: core.TypeGasto},
		{Category: "-"},
		{Type: core.TypeGasto, Category: "-"},
	} {
		full, _ := f.queries("-")
		out = append(out, full)
	}
	for _, year := range []int{0, 1} {
		full, _ := savingsQueries("-", year)
		out = append(out, full)
	}
	return out
}
