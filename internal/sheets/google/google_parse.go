package google

import (
	"fmt"
	"strings"
)

// lastColumn is the column letter of the final Header field.
func lastColumn(width int) string {
	var out []byte
	for width > 0 {
		width--
		out = append([]byte{byte('A' + width%26)}, out...)
		width /= 26
	}
	return string(out)
}

// quoteSheet quotes a sheet name for use in A1 notation.
func quoteSheet(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

// findRow returns the 1-based sheet row whose first cell is id, or 0.
func findRow(values [][]interface{}, id string) int {
	for i, row := range values {
		if len(row) == 0 {
			continue
		}
		if strings.TrimSpace(fmt.Sprint(row[0])) == id {
			return i + 1
		}
	}
	return 0
}

func toInterfaces(in []string) []interface{} {
	out := make([]interface{}, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}
