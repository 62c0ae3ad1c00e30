package core

import (
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// BaseCurrency is the pivot every conversion goes through.
const BaseCurrency = "USD"

// Currency describes a supported display currency.
type Currency struct {
	Code        string  `json:"code"`
	Name        string  `json:"name"`
	Symbol      string  `json:"symbol"`
	Locale      string  `json:"locale"`
	Flag        string  `json:"flag"`
	DefaultRate float64 `json:"defaultRate"`

	symbolAfter bool
	spaced      bool
}

var currencies = []Currency{
	{Code: "USD", Name: "Dólar Estadounidense", Symbol: "$", Locale: "en-US", Flag: "🇺🇸", DefaultRate: 1},
	{Code: "CLP", Name: "Peso Chileno", Symbol: "$", Locale: "es-CL", Flag: "🇨🇱", DefaultRate: 950},
	{Code: "EUR", Name: "Euro", Symbol: "€", Locale: "de-DE", Flag: "🇪🇺", DefaultRate: 0.85, symbolAfter: true, spaced: true},
	{Code: "GBP", Name: "Libra Esterlina", Symbol: "£", Locale: "en-GB", Flag: "🇬🇧", DefaultRate: 0.73},
	{Code: "CAD", Name: "Dólar Canadiense", Symbol: "C$", Locale: "en-CA", Flag: "🇨🇦", DefaultRate: 1.35},
	{Code: "ARS", Name: "Peso Argentino", Symbol: "$", Locale: "es-AR", Flag: "🇦🇷", DefaultRate: 350, spaced: true},
	{Code: "MXN", Name: "Peso Mexicano", Symbol: "$", Locale: "es-MX", Flag: "🇲🇽", DefaultRate: 18},
	{Code: "BRL", Name: "Real Brasileño", Symbol: "R$", Locale: "pt-BR", Flag: "🇧🇷", DefaultRate: 5.2, spaced: true},
	{Code: "COP", Name: "Peso Colombiano", Symbol: "$", Locale: "es-CO", Flag: "🇨🇴", DefaultRate: 4200, spaced: true},
	{Code: "PEN", Name: "Sol Peruano", Symbol: "S/", Locale: "es-PE", Flag: "🇵🇪", DefaultRate: 3.8, spaced: true},
}

// Currencies returns the supported currencies in display order.
func Currencies() []Currency {
	return append([]Currency(nil), currencies...)
}

// LookupCurrency finds a supported currency by code.
func LookupCurrency(code string) (Currency, bool) {
	for _, c := range currencies {
		if c.Code == code {
			return c, true
		}
	}
	return Currency{}, false
}

// DefaultRates returns the offline rate table, expressed per USD.
func DefaultRates() map[string]float64 {
	out := make(map[string]float64, len(currencies))
	for _, c := range currencies {
		out[c.Code] = c.DefaultRate
	}
	return out
}

// ConvertAmount converts amount between currencies through USD. Missing rates
// count as 1.
func ConvertAmount(rates map[string]float64, amount float64, from, to string) float64 {
	if from == to {
		return amount
	}
	return amount / rateOr1(rates, from) * rateOr1(rates, to)
}

func rateOr1(rates map[string]float64, code string) float64 {
	if r, ok := rates[code]; ok && r > 0 {
		return r
	}
	return 1
}

// FractionDigits is 0 for CLP and 2 for every other currency.
func FractionDigits(code string) int {
	if code == "CLP" {
		return 0
	}
	return 2
}

// FormatAmount renders amount in the currency's locale. Unknown codes fall back
// to the plain number.
func FormatAmount(amount float64, code string) string {
	c, ok := LookupCurrency(code)
	if !ok {
		return decimal.NewFromFloat(amount).String()
	}
	digits := FractionDigits(code)
	rounded := decimal.NewFromFloat(amount).Round(int32(digits))
	neg := rounded.IsNegative()
	rounded = rounded.Abs()

	tag, err := language.Parse(c.Locale)
	if err != nil {
		tag = language.English
	}
	p := message.NewPrinter(tag)
	num := p.Sprintf(fmt.Sprintf("%%.%df", digits), rounded.InexactFloat64())

	sep := ""
	if c.spaced {
		sep = "\u00a0"
	}
	var out string
	if c.symbolAfter {
		out = num + sep + c.Symbol
	} else {
		out = c.Symbol + sep + num
	}
	if neg {
		return "-" + out
	}
	return out
}

// RoundAmount rounds amount to the currency's display precision.
func RoundAmount(amount float64, code string) float64 {
	return decimal.NewFromFloat(amount).Round(int32(FractionDigits(code))).InexactFloat64()
}
