package core

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLocalDate(t *testing.T) {
	d, err := ParseLocalDate("2024-03-05")
	require.NoError(t, err)
	assert.Equal(t, 2024, d.Year())
	assert.Equal(t, time.March, d.Month())
	assert.Equal(t, 5, d.Day())
	assert.Equal(t, time.Local, d.Location())
	assert.Equal(t, "2024-03-05", FormatLocalDateString(d))

	for _, bad := range []string{"", "2024/03/05", "05-03-2024", "2024-13-01"} {
		_, err := ParseLocalDate(bad)
		assert.Error(t, err, bad)
	}
}

func TestDateHelpers(t *testing.T) {
	assert.True(t, IsDateInMonth("2024-02-29", 2024, 2))
	assert.False(t, IsDateInMonth("2024-02-29", 2024, 3))
	assert.False(t, IsDateInMonth("garbage", 2024, 2))
	assert.True(t, IsDateInYear("2023-12-31", 2023))
	assert.False(t, IsDateInYear("2023-12-31", 2024))
	assert.Equal(t, -1, CompareDateStrings("2024-01-01", "2024-01-02"))
	assert.Equal(t, 0, CompareDateStrings("2024-01-01", "2024-01-01"))
	assert.Equal(t, 1, CompareDateStrings("2024-02-01", "2024-01-31"))
	assert.Len(t, TodayLocalDateString(), len(DateLayout))
}

func TestConvertAmount_Identity(t *testing.T) {
	rates := DefaultRates()
	for _, c := range Currencies() {
		if got := ConvertAmount(rates, 123.45, c.Code, c.Code); got != 123.45 {
			t.Errorf("ConvertAmount(%s->%s) = %v, want 123.45", c.Code, c.Code, got)
		}
	}
}

func TestConvertAmount_RoundTrip(t *testing.T) {
	rates := DefaultRates()
	for _, a := range Currencies() {
		for _, b := range Currencies() {
			x := 987.65
			back := ConvertAmount(rates, ConvertAmount(rates, x, a.Code, b.Code), b.Code, a.Code)
			if math.Abs(back-x) > 1e-9*x {
				t.Errorf("round trip %s->%s->%s = %v, want %v", a.Code, b.Code, a.Code, back, x)
			}
		}
	}
}

func TestConvertAmount_USDPivot(t *testing.T) {
	rates := map[string]float64{"USD": 1, "CLP": 1000, "EUR": 0.5}
	assert.InDelta(t, 1000.0, ConvertAmount(rates, 1, "USD", "CLP"), 1e-9)
	assert.InDelta(t, 1.0, ConvertAmount(rates, 2000, "CLP", "EUR"), 1e-9)
	// unknown rates count as 1
	assert.InDelta(t, 5.0, ConvertAmount(rates, 5, "XXX", "USD"), 1e-9)
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "$1,234.50", FormatAmount(1234.5, "USD"))
	assert.Equal(t, "-$3.00", FormatAmount(-3, "USD"))

	clp := FormatAmount(1234.4, "CLP")
	assert.True(t, strings.HasPrefix(clp, "$"), clp)
	assert.NotContains(t, clp, ",")

	eur := FormatAmount(10, "EUR")
	assert.True(t, strings.HasSuffix(eur, "\u00a0€"), eur)

	assert.Equal(t, "12.5", FormatAmount(12.5, "XXX"))
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{"12.34", 12.34, false},
		{"12,34", 12.34, false},
		{" 7 ", 7, false},
		{"12.345", 12.35, false},
		{"", 0, true},
		{"abc", 0, true},
		{"0", 0, true},
		{"-4", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseAmount(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrValidation) {
				t.Errorf("ParseAmount(%q) err = %v, want validation error", tt.in, err)
			}
			continue
		}
		require.NoError(t, err, tt.in)
		assert.InDelta(t, tt.want, got, 1e-9, tt.in)
	}
}

func TestMonthRange_Contains(t *testing.T) {
	r := MonthRange{FromYear: 2024, ToYear: 2025, FromMonth: 6, ToMonth: 3}
	assert.True(t, r.Contains(2024, 8))
	assert.True(t, r.Contains(2025, 2))
	assert.False(t, r.Contains(2024, 3))
	assert.False(t, r.Contains(2025, 4))
	assert.False(t, r.Contains(2023, 12))

	wide := MonthRange{FromYear: 2022, ToYear: 2024, FromMonth: 11, ToMonth: 2}
	assert.True(t, wide.Contains(2023, 1), "middle years pass whole")
	assert.True(t, wide.Contains(2023, 7))

	single := MonthRange{FromYear: 2024, ToYear: 2024, FromMonth: 3, ToMonth: 5}
	assert.True(t, single.Contains(2024, 4))
	assert.False(t, single.Contains(2024, 6))

	whole := MonthRange{FromYear: 2024}
	for m := 1; m <= 12; m++ {
		assert.True(t, whole.Contains(2024, m))
	}
}

func TestSummarizeSavings(t *testing.T) {
	entries := []Saving{
		{Year: 2024, Month: 1, Amount: 100},
		{Year: 2024, Month: 1, Amount: 50},
		{Year: 2024, Month: 12, Amount: 10},
		{Year: 2023, Month: 5, Amount: 1000},
	}
	s := SummarizeSavings(entries, 2024)
	assert.Equal(t, 1160.0, s.TotalAll)
	assert.Equal(t, 160.0, s.TotalYear)
	assert.Equal(t, 150.0, s.ByMonth[0])
	assert.Equal(t, 10.0, s.ByMonth[11])
	assert.Equal(t, 3, s.Count)

	all := SummarizeSavings(entries, 0)
	assert.Equal(t, all.TotalAll, all.TotalYear)
	assert.Equal(t, 4, all.Count)
}

func TestSummarizeTransactions(t *testing.T) {
	s := SummarizeTransactions([]Transaction{
		{Type: TypeIngreso, Amount: 1000},
		{Type: TypeGasto, Amount: 250},
		{Type: TypeGasto, Amount: 50},
	})
	assert.Equal(t, TransactionSummary{TotalIngresos: 1000, TotalGastos: 300, Balance: 700, TotalTransacciones: 3}, s)
}

func TestTransactionInput_Validate(t *testing.T) {
	ok := TransactionInput{Type: TypeGasto, Amount: 10, Category: "Salud", Date: "2024-01-02", Currency: "CLP"}
	require.NoError(t, ok.Validate())

	bad := []TransactionInput{
		{Type: "otro", Amount: 10, Category: "Salud", Date: "2024-01-02"},
		{Type: TypeGasto, Amount: 0, Category: "Salud", Date: "2024-01-02"},
		{Type: TypeGasto, Amount: 10, Category: " ", Date: "2024-01-02"},
		{Type: TypeGasto, Amount: 10, Category: "Salud", Date: "02/01/2024"},
		{Type: TypeGasto, Amount: 10, Category: "Salud", Date: "2024-01-02", Currency: "JPY"},
	}
	for i, in := range bad {
		assert.ErrorIs(t, in.Validate(), ErrValidation, "case %d", i)
	}
}

func TestTransactionPatch_FieldsAndApply(t *testing.T) {
	amount := 42.0
	note := "cena"
	p := TransactionPatch{Amount: &amount, Note: &note}
	assert.Equal(t, map[string]any{"amount": 42.0, "note": "cena"}, p.Fields())

	orig := Transaction{ID: "t1", UserID: "u1", Amount: 1, Category: "Salud"}
	got := p.Apply(orig)
	assert.Equal(t, "t1", got.ID)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, 42.0, got.Amount)
	assert.Equal(t, "cena", got.Note)
	assert.Equal(t, "Salud", got.Category)
}

func TestCategorySet_Mutations(t *testing.T) {
	c := DefaultCategorySet()
	assert.Len(t, c.ExpenseCategories, 9)
	assert.Len(t, c.IncomeCategories, 6)

	assert.False(t, c.AddCategory(TypeGasto, "  "))
	assert.False(t, c.AddCategory(TypeGasto, "Salud"))
	assert.True(t, c.AddCategory(TypeGasto, " Mascotas "))
	assert.Contains(t, c.ExpenseCategories, "Mascotas")
	assert.Equal(t, []string{}, c.Subcategories["Mascotas"])

	assert.True(t, c.AddSubcategory("Mascotas", "Veterinario"))
	assert.False(t, c.AddSubcategory("Mascotas", "Veterinario"))
	assert.True(t, c.RemoveSubcategory("Mascotas", "Veterinario"))
	assert.False(t, c.RemoveSubcategory("Mascotas", "Veterinario"))

	assert.True(t, c.RemoveCategory(TypeGasto, "Salud"))
	assert.NotContains(t, c.ExpenseCategories, "Salud")
	_, ok := c.Subcategories["Salud"]
	assert.False(t, ok, "subcategories of a removed category are dropped")
	assert.False(t, c.RemoveCategory(TypeIngreso, "Salud"))

	// defaults are untouched
	assert.Contains(t, DefaultCategorySet().ExpenseCategories, "Salud")
}

func TestCategorySet_CloneIsDeep(t *testing.T) {
	c := DefaultCategorySet()
	cp := c.Clone()
	cp.Subcategories["Salud"][0] = "changed"
	cp.ExpenseCategories[0] = "changed"
	assert.Equal(t, "Medicamentos", c.Subcategories["Salud"][0])
	assert.Equal(t, "Alimentación", c.ExpenseCategories[0])
}

func TestCategorySet_CloneKeepsEmptyLists(t *testing.T) {
	c := CategorySet{
		IncomeCategories: []string{},
		Subcategories:    map[string][]string{"Mascotas": {}},
	}
	raw, err := json.Marshal(c.Clone())
	require.NoError(t, err)
	assert.JSONEq(t, `{"expenseCategories":[],"incomeCategories":[],"subcategories":{"Mascotas":[]}}`, string(raw))
}

func TestValidateUsername(t *testing.T) {
	for _, ok := range []string{"bob", "Bob_99", "a_b_c_d_e_f_g_h_i_j_"} {
		assert.NoError(t, ValidateUsername(ok), ok)
	}
	for _, bad := range []string{"", "ab", "with space", "ñandu", "toolong_toolong_toolong", "dash-name"} {
		assert.ErrorIs(t, ValidateUsername(bad), ErrValidation, bad)
	}
}

func TestUsernameHelpers(t *testing.T) {
	assert.Equal(t, "bob", NormalizeUsername(" Bob "))
	assert.Equal(t, "@bob", FormatUsername("bob"))
	assert.Equal(t, "@bob", FormatUsername("@bob"))
	assert.Equal(t, "", FormatUsername(""))
	assert.Equal(t, "bob", CleanUsername("@bob"))
	assert.Equal(t, "/profile/bob", ProfilePath("@bob"))
}

func TestUsernameCandidates(t *testing.T) {
	got := UsernameCandidates("María José", 42)
	assert.Equal(t, []string{"marajos", "marajos123", "marajos_user", "user_marajos", "marajos42"}, got)
	assert.Nil(t, UsernameCandidates("a!", 1))

	long := UsernameCandidates("abcdefghijklmnopq", 7)
	for _, c := range long {
		assert.LessOrEqual(t, len(c), 20, c)
	}
}

func TestAppError(t *testing.T) {
	cause := errors.New("boom")
	err := &AppError{Kind: ErrForbidden, Code: "permission-denied", Message: "No tienes permisos", Err: cause}
	assert.ErrorIs(t, err, ErrForbidden)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "No tienes permisos", MessageOf(err))
	assert.Equal(t, "permission-denied", CodeOf(err))
	assert.Equal(t, "plain", MessageOf(errors.New("plain")))
	assert.Equal(t, "", MessageOf(nil))
}
