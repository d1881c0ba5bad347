package extract

import (
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

var (
	markdown = goldmark.New(goldmark.WithExtensions(extension.Table))

	// delimiterRow matches a GFM table delimiter row such as "| --- | :-: |".
	delimiterRow = regexp.MustCompile(`^\|?\s*:?-+:?\s*(\|\s*:?-+:?\s*)*\|?$`)
)

// ParseMarkdownTables returns the GFM pipe tables found in md, header row
// first. OCR output often continues a table on the next page without
// repeating its header; such a block is parsed with its first row as the
// header so no row is lost.
func ParseMarkdownTables(md string) []Table {
	src := []byte(withDelimiters(md))
	doc := markdown.Parser().Parse(text.NewReader(src))

	var tables []Table
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		tbl, ok := n.(*east.Table)
		if !ok || !entering {
			return ast.WalkContinue, nil
		}
		if t := tableRows(tbl, src); len(t) > 0 {
			tables = append(tables, t)
		}
		return ast.WalkSkipChildren, nil
	})
	return tables
}

// tableRows reads the header and body rows of tbl.
func tableRows(tbl *east.Table, src []byte) Table {
	var out Table
	for row := tbl.FirstChild(); row != nil; row = row.NextSibling() {
		var cells []string
		for c := row.FirstChild(); c != nil; c = c.NextSibling() {
			cells = append(cells, cellText(c, src))
		}
		out = append(out, cells)
	}
	return out
}

// cellText flattens a cell's inline content. Raw HTML such as <br> becomes
// a space.
func cellText(cell ast.Node, src []byte) string {
	var b strings.Builder
	_ = ast.Walk(cell, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch v := n.(type) {
		case *ast.Text:
			b.Write(v.Segment.Value(src))
			if v.SoftLineBreak() || v.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(v.Value)
		case *ast.RawHTML:
			b.WriteByte(' ')
		}
		return ast.WalkContinue, nil
	})
	return strings.Join(strings.Fields(b.String()), " ")
}

// withDelimiters inserts a delimiter row under the first line of every pipe
// block that lacks one.
func withDelimiters(md string) string {
	lines := strings.Split(md, "\n")
	out := make([]string, 0, len(lines)+4)
	for i, line := range lines {
		out = append(out, line)
		if !isPipeLine(line) || (i > 0 && isPipeLine(lines[i-1])) {
			continue
		}
		if i+1 < len(lines) && delimiterRow.MatchString(strings.TrimSpace(lines[i+1])) {
			continue
		}
		out = append(out, "|"+strings.Repeat(" --- |", pipeCells(line)))
	}
	return strings.Join(out, "\n")
}

func isPipeLine(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "|")
}

// pipeCells counts the cells of a pipe row, ignoring escaped pipes.
func pipeCells(line string) int {
	line = strings.TrimSpace(strings.ReplaceAll(line, `\|`, ""))
	line = strings.TrimSuffix(strings.TrimPrefix(line, "|"), "|")
	return strings.Count(line, "|") + 1
}
