package memory

import (
	"context"
	"testing"
	"time"

	"spendly/internal/sheets"
)

func TestStore_UpsertAndMarkDeleted(t *testing.T) {
	ctx := context.Background()
	s := New()

	ref, err := s.Upsert(ctx, sheets.Row{ID: "t1", Amount: 10, Status: sheets.StatusActive})
	if err != nil || ref != "mem:1" {
		t.Fatalf("unexpected upsert: ref=%q err=%v", ref, err)
	}
	if _, err := s.Upsert(ctx, sheets.Row{ID: "t2", Amount: 5, Status: sheets.StatusActive}); err != nil {
		t.Fatal(err)
	}
	ref, err = s.Upsert(ctx, sheets.Row{ID: "t1", Amount: 12, Status: sheets.StatusActive})
	if err != nil || ref != "mem:1" {
		t.Fatalf("unexpected update: ref=%q err=%v", ref, err)
	}

	at := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	if err := s.MarkDeleted(ctx, "t2", at); err != nil {
		t.Fatal(err)
	}
	if err := s.MarkDeleted(ctx, "missing", at); err != nil {
		t.Fatalf("missing row should be ignored: %v", err)
	}

	rows := s.Rows()
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[0].Amount != 12 {
		t.Errorf("t1 amount = %v, want 12", rows[0].Amount)
	}
	if rows[1].Status != sheets.StatusDeleted || !rows[1].SyncedAt.Equal(at) {
		t.Errorf("t2 = %+v, want deleted at %v", rows[1], at)
	}

	if _, err := s.Upsert(ctx, sheets.Row{}); err == nil {
		t.Error("row without id should fail")
	}
}
