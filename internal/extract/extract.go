// Package extract pulls incident tables out of daily-log PDFs.
package extract

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/dps-crimelog/internal/config"
)

// HeaderMarker identifies a table's header row.
const HeaderMarker = "Date Reported"

// Table is one extracted table: rows of raw text cells.
type Table [][]string

// Extractor extracts tables from a PDF document.
type Extractor interface {
	ExtractTables(ctx context.Context, pdf []byte) ([]Table, error)
}

// NewExtractor creates an Extractor based on config.
func NewExtractor(cfg config.ExtractConfig) (Extractor, error) {
	switch cfg.Provider {
	case "local", "":
		return NewPdfToText(cfg.PdfToTextPath, cfg.MinColumns), nil
	case "mistral":
		if cfg.MistralKey == "" {
			return nil, eris.New("extract: mistral provider requires mistral_api_key")
		}
		return NewMistralOCR(cfg.MistralKey, cfg.MistralModel), nil
	default:
		return nil, eris.Errorf("extract: unknown provider %q", cfg.Provider)
	}
}

// Rows extracts every table in pdf and returns the candidate record rows.
// A table whose first row contains HeaderMarker has that row dropped; rows
// with no non-blank cell are skipped.
func Rows(ctx context.Context, ext Extractor, pdf []byte) ([][]string, error) {
	tables, err := ext.ExtractTables(ctx, pdf)
	if err != nil {
		return nil, err
	}

	var out [][]string
	for _, tbl := range tables {
		if len(tbl) == 0 {
			continue
		}
		start := 0
		if isHeader(tbl[0]) {
			start = 1
		}
		for _, row := range tbl[start:] {
			if blankRow(row) {
				continue
			}
			out = append(out, row)
		}
	}
	return out, nil
}

func isHeader(row []string) bool {
	for _, cell := range row {
		if strings.Contains(cell, HeaderMarker) {
			return true
		}
	}
	return false
}

func blankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
