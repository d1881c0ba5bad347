package model

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Normalize maps raw extracted cells onto the fixed schema: every cell is
// trimmed and NFKC-folded, the row is truncated or right-padded to
// DataColumns, and sourceURL becomes the provenance field.
func Normalize(cells []string, sourceURL string) Record {
	values := make([]string, DataColumns, len(Columns))
	for i := 0; i < DataColumns && i < len(cells); i++ {
		values[i] = cleanCell(cells[i])
	}
	values = append(values, sourceURL)
	return RecordFromValues(values)
}

func cleanCell(s string) string {
	return strings.TrimSpace(norm.NFKC.String(s))
}
