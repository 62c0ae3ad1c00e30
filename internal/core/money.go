package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount parses a user-entered amount. Both dot (12.34) and comma (12,34)
// decimal separators are accepted; the result is rounded half-up to 2 places
// and must be positive.
//
// Examples:
//
//	ParseAmount("12.34")  -> 12.34
//	ParseAmount("12,345") -> 12.35
//	ParseAmount("-1")     -> error
func ParseAmount(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ValidationError("El monto es obligatorio")
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, ValidationError("Monto inválido")
	}
	if !d.IsPositive() {
		return 0, ValidationError("El monto debe ser mayor a cero")
	}
	return d.Round(2).InexactFloat64(), nil
}
