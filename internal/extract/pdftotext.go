package extract

import (
	"bytes"
	"context"
	"os"
	"os/exec"

	"github.com/rotisserie/eris"
)

const defaultMinColumns = 4

// PdfToText extracts tables from PDFs using the pdftotext CLI tool in
// -layout mode, which preserves the column grid as runs of spaces.
type PdfToText struct {
	binPath    string
	minColumns int
}

// NewPdfToText creates a PdfToText extractor. If binPath is empty, "pdftotext" is used.
func NewPdfToText(binPath string, minColumns int) *PdfToText {
	if binPath == "" {
		binPath = "pdftotext"
	}
	if minColumns <= 0 {
		minColumns = defaultMinColumns
	}
	return &PdfToText{binPath: binPath, minColumns: minColumns}
}

// ExtractTables runs pdftotext -layout on the document and segments each page
// into tables.
func (p *PdfToText) ExtractTables(ctx context.Context, pdf []byte) ([]Table, error) {
	tmp, err := os.CreateTemp("", "crimelog-*.pdf")
	if err != nil {
		return nil, eris.Wrap(err, "extract: create temp pdf")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(pdf); err != nil {
		tmp.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "extract: write temp pdf")
	}
	if err := tmp.Close(); err != nil {
		return nil, eris.Wrap(err, "extract: close temp pdf")
	}

	text, err := p.extractText(ctx, tmp.Name())
	if err != nil {
		return nil, err
	}
	return ParseLayout(text, p.minColumns), nil
}

func (p *PdfToText) extractText(ctx context.Context, pdfPath string) (string, error) {
	cmd := exec.CommandContext(ctx, p.binPath, "-layout", pdfPath, "-")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", eris.Wrapf(err, "extract: pdftotext failed for %s: %s", pdfPath, stderr.String())
	}

	return stdout.String(), nil
}
