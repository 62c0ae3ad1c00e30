package access

import (
	"context"
	"fmt"
	"strings"

	"spendly/internal/core"
	"spendly/internal/docstore"
	"spendly/internal/log"
)

// savingsQueries orders by month within one year, or by year descending and
// month ascending across all years. A zero year selects every year.
func savingsQueries(uid string, year int) (full, simple docstore.Query) {
	simple = docstore.From(SavingsCollection(uid))
	if year != 0 {
		simple = simple.WhereEq("year", year)
		return simple.Order("month", docstore.Asc), simple
	}
	return simple.Order("year", docstore.Desc).Order("month", docstore.Asc), simple
}

// Savings is the access module for monthly saving entries and annual goals.
type Savings struct {
	store  docstore.Store
	logger *log.Logger
}

func NewSavings(store docstore.Store, logger *log.Logger) *Savings {
	return &Savings{
		store:  store,
		logger: logger.WithComponent(log.ComponentAccess),
	}
}

func (s *Savings) Create(ctx context.Context, in core.SavingInput, uid string) (string, error) {
	if err := requireUser(uid); err != nil {
		return "", err
	}
	if err := in.Validate(); err != nil {
		return "", err
	}
	data := in.Fields()
	data["userId"] = uid
	data["createdAt"] = docstore.ServerTimestamp
	data["updatedAt"] = docstore.ServerTimestamp

	id, err := s.store.Add(ctx, SavingsCollection(uid), data)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to add saving", log.FieldUserID, uid, log.FieldError, err)
		return "", translate(opCreateSaving, err)
	}
	s.logger.InfoContext(ctx, "Saving added",
		log.FieldUserID, uid,
		log.FieldDocumentID, id,
		log.FieldYear, in.Year,
		log.FieldMonth, in.Month)
	return id, nil
}

// List returns the entries of year, or of every year when year is 0.
func (s *Savings) List(ctx context.Context, uid string, year int) ([]core.Saving, error) {
	return s.list(ctx, uid, year, opListSavings)
}

func (s *Savings) list(ctx context.Context, uid string, year int, op operation) ([]core.Saving, error) {
	if err := requireUser(uid); err != nil {
		return nil, err
	}
	full, simple := savingsQueries(uid, year)
	snaps, err := queryOrdered(ctx, s.store, s.logger, full, simple)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to list savings", log.FieldUserID, uid, log.FieldError, err)
		return nil, translate(op, err)
	}
	entries, err := decodeAll[core.Saving](snaps)
	if err != nil {
		return nil, translate(op, err)
	}
	return entries, nil
}

func (s *Savings) Get(ctx context.Context, id, uid string) (*core.Saving, error) {
	entry, err := s.owned(ctx, id, uid, opGetSaving)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *Savings) Update(ctx context.Context, id string, patch core.SavingPatch, uid string) error {
	if _, err := s.owned(ctx, id, uid, opUpdateSaving); err != nil {
		return err
	}
	if err := patch.Validate(); err != nil {
		return err
	}
	fields := patch.Fields()
	fields["updatedAt"] = docstore.ServerTimestamp
	if err := s.store.Update(ctx, SavingsCollection(uid), id, fields); err != nil {
		s.logger.ErrorContext(ctx, "Failed to update saving", log.FieldDocumentID, id, log.FieldError, err)
		return translate(opUpdateSaving, err)
	}
	return nil
}

func (s *Savings) Delete(ctx context.Context, id, uid string) error {
	if _, err := s.owned(ctx, id, uid, opDeleteSaving); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, SavingsCollection(uid), id); err != nil {
		s.logger.ErrorContext(ctx, "Failed to delete saving", log.FieldDocumentID, id, log.FieldError, err)
		return translate(opDeleteSaving, err)
	}
	return nil
}

func (s *Savings) owned(ctx context.Context, id, uid string, op operation) (core.Saving, error) {
	var entry core.Saving
	if err := requireUser(uid); err != nil {
		return entry, err
	}
	if strings.TrimSpace(id) == "" {
		return entry, core.NewError(core.ErrNotFound, msgSavingNotFound)
	}
	snap, err := s.store.Get(ctx, SavingsCollection(uid), id)
	if err != nil {
		return entry, translate(op, err)
	}
	if !snap.Exists {
		return entry, core.NewError(core.ErrNotFound, msgSavingNotFound)
	}
	if err := snap.Decode(&entry); err != nil {
		return entry, translate(op, err)
	}
	if entry.UserID != uid {
		s.logger.WarnContext(ctx, "Saving access denied", log.FieldUserID, uid, log.FieldDocumentID, id)
		return entry, core.NewError(core.ErrForbidden, msgSavingDenied)
	}
	return entry, nil
}

// Subscribe pushes the ordered entries of year (0 for all) on every change.
func (s *Savings) Subscribe(ctx context.Context, uid string, year int, onChange func([]core.Saving), onError func(error)) Unsubscribe {
	if err := requireUser(uid); err != nil {
		if onError != nil {
			onError(err)
		}
		return func() {}
	}
	report := func(err error) {
		s.logger.Error("Savings subscription failed", log.FieldUserID, uid, log.FieldError, err)
		if onError != nil {
			onError(translate(opSubscribeSavings, err))
		}
	}
	full, simple := savingsQueries(uid, year)
	return subscribeOrdered(ctx, s.store, s.logger, full, simple, func(snaps []docstore.Snapshot) {
		entries, err := decodeAll[core.Saving](snaps)
		if err != nil {
			report(err)
			return
		}
		onChange(entries)
	}, report)
}

// Summary totals every entry of uid, with year-specific totals for year.
func (s *Savings) Summary(ctx context.Context, uid string, year int) (core.SavingsSummary, error) {
	entries, err := s.list(ctx, uid, 0, opSummarySavings)
	if err != nil {
		return core.SavingsSummary{}, err
	}
	return core.SummarizeSavings(entries, year), nil
}

// UpsertMonth updates the amount of the first entry found for (year, month)
// or creates one. The lookup is a linear scan; nothing stops two entries for
// the same month from existing.
func (s *Savings) UpsertMonth(ctx context.Context, uid string, year, month int, amount float64) (string, error) {
	in := core.SavingInput{Year: year, Month: month, Amount: amount}
	if err := in.Validate(); err != nil {
		return "", err
	}
	entries, err := s.list(ctx, uid, year, opUpdateSaving)
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if e.Month != month {
			continue
		}
		if err := s.Update(ctx, e.ID, core.SavingPatch{Amount: &amount}, uid); err != nil {
			return "", err
		}
		return e.ID, nil
	}
	return s.Create(ctx, in, uid)
}

// GetAnnualGoal returns the goal for year. A year without a goal yields a
// zero amount.
func (s *Savings) GetAnnualGoal(ctx context.Context, uid string, year int) (core.AnnualGoal, error) {
	goal := core.AnnualGoal{UserID: uid, Year: year}
	if err := requireUser(uid); err != nil {
		return goal, err
	}
	snap, err := s.store.Get(ctx, SettingsCollection(uid), goalDoc(year))
	if err != nil {
		return goal, translate(opGetGoal, err)
	}
	if !snap.Exists {
		return goal, nil
	}
	if err := snap.Decode(&goal); err != nil {
		return goal, translate(opGetGoal, err)
	}
	return goal, nil
}

func (s *Savings) SetAnnualGoal(ctx context.Context, uid string, year int, amount float64) error {
	if err := requireUser(uid); err != nil {
		return err
	}
	if amount < 0 {
		return core.ValidationError("La meta no puede ser negativa")
	}
	if year < 1900 || year > 3000 {
		return core.ValidationError(fmt.Sprintf("Año inválido: %d", year))
	}
	err := s.store.Set(ctx, SettingsCollection(uid), goalDoc(year), docstore.Data{
		"userId":    uid,
		"year":      year,
		"amount":    amount,
		"updatedAt": docstore.ServerTimestamp,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to save annual goal", log.FieldUserID, uid, log.FieldYear, year, log.FieldError, err)
		return translate(opSetGoal, err)
	}
	return nil
}
