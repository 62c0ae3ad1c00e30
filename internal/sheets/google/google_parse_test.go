package google

import (
	"testing"
)

func TestLastColumn(t *testing.T) {
	tests := []struct {
		width int
		want  string
	}{
		{1, "A"},
		{12, "L"},
		{26, "Z"},
		{27, "AA"},
		{53, "BA"},
	}
	for _, tt := range tests {
		if got := lastColumn(tt.width); got != tt.want {
			t.Errorf("lastColumn(%d) = %q, want %q", tt.width, got, tt.want)
		}
	}
}

func TestFindRow(t *testing.T) {
	values := [][]interface{}{
		{"ID"},
		{},
		{"t1"},
		{" t2 "},
	}
	if got := findRow(values, "t2"); got != 4 {
		t.Errorf("findRow(t2) = %d, want 4", got)
	}
	if got := findRow(values, "t1"); got != 3 {
		t.Errorf("findRow(t1) = %d, want 3", got)
	}
	if got := findRow(values, "t9"); got != 0 {
		t.Errorf("findRow(t9) = %d, want 0", got)
	}
}

func TestQuoteSheet(t *testing.T) {
	if got := quoteSheet("Juan's"); got != "'Juan''s'" {
		t.Errorf("quoteSheet = %q", got)
	}
}
