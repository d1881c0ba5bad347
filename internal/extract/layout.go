package extract

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// cellPattern matches one layout cell: words separated by single spaces.
// Two or more spaces (or a tab) separate cells.
var cellPattern = regexp.MustCompile(`[^ \t]+(?: [^ \t]+)*`)

// anchorSlack is how far left of a header column a cell may start and still
// belong to that column.
const anchorSlack = 2

type cell struct {
	col  int // rune offset in the line
	text string
}

func splitCells(line string) []cell {
	idx := cellPattern.FindAllStringIndex(line, -1)
	cells := make([]cell, 0, len(idx))
	for _, m := range idx {
		cells = append(cells, cell{
			col:  utf8.RuneCountInString(line[:m[0]]),
			text: line[m[0]:m[1]],
		})
	}
	return cells
}

// ParseLayout segments pdftotext -layout output into tables. Pages are split
// on form feeds. A line with at least minColumns cells is a table row and
// consecutive rows form one table. When a table starts with a header row its
// cell offsets become column anchors: later rows are placed by position, so
// empty cells stay empty instead of shifting left. A short line between rows
// is wrapped cell text and joins the nearer row; see attach.
func ParseLayout(text string, minColumns int) []Table {
	if minColumns <= 0 {
		minColumns = defaultMinColumns
	}

	var tables []Table
	for _, page := range strings.Split(text, "\f") {
		p := layoutParser{minColumns: minColumns, lastRow: -1}
		for _, line := range strings.Split(page, "\n") {
			p.line(strings.TrimRight(line, " \t\r"))
		}
		p.flush()
		tables = append(tables, p.tables...)
	}
	return tables
}

// fragment is wrapped cell text waiting for the row it belongs to.
type fragment struct {
	line  int
	cells []string
}

type layoutParser struct {
	minColumns int
	tables     []Table

	cur      Table
	anchors  []int
	adjacent bool // previous line was part of the table
	lineNo   int
	lastRow  int // line number of the last data row, -1 when none
	pending  []fragment
}

func (p *layoutParser) line(line string) {
	p.lineNo++
	if strings.TrimSpace(line) == "" {
		p.settle()
		p.adjacent = false
		return
	}

	cells := splitCells(line)
	header := strings.Contains(line, HeaderMarker)

	switch {
	case header && len(cells) >= 2:
		p.flush()
		p.anchors = make([]int, len(cells))
		for i, c := range cells {
			p.anchors[i] = c.col
		}
		p.cur = Table{texts(cells)}
		p.adjacent = true

	case len(cells) >= p.minColumns:
		row := p.place(cells)
		p.attach(row)
		p.cur = append(p.cur, row)
		p.lastRow = p.lineNo
		p.adjacent = true

	case p.anchors != nil && p.adjacent:
		p.pending = append(p.pending, fragment{line: p.lineNo, cells: p.place(cells)})

	default:
		p.flush()
	}
}

// attach distributes the pending fragments between the previous data row and
// next, the row about to be appended. A fragment joins the row it is closer
// to. On a tie it stays with the previous row unless it ends in a joiner such
// as a hyphen, which marks the first half of a cell printed above its row.
// With no previous row every fragment joins next.
func (p *layoutParser) attach(next []string) {
	prefix := make([]string, len(next))
	for _, f := range p.pending {
		dPrev := f.line - p.lastRow
		dNext := p.lineNo - f.line
		forward := p.lastRow < 0 || dNext < dPrev || (dNext == dPrev && continues(f.cells))
		if !forward {
			p.appendTo(p.cur[len(p.cur)-1], f.cells)
			continue
		}
		for i, text := range f.cells {
			if i < len(prefix) && text != "" {
				prefix[i] = joinCell(prefix[i], text)
			}
		}
	}
	p.pending = nil

	for i, text := range prefix {
		if text != "" {
			next[i] = joinCell(text, next[i])
		}
	}
}

// settle gives every pending fragment to the previous data row. Fragments
// with no row to join are dropped.
func (p *layoutParser) settle() {
	if p.lastRow >= 0 && len(p.cur) > 1 {
		for _, f := range p.pending {
			p.appendTo(p.cur[len(p.cur)-1], f.cells)
		}
	}
	p.pending = nil
}

func (p *layoutParser) appendTo(row, cells []string) {
	for i, text := range cells {
		if i < len(row) && text != "" {
			row[i] = joinCell(row[i], text)
		}
	}
}

// continues reports whether a fragment ends mid-word or mid-list.
func continues(cells []string) bool {
	for _, c := range cells {
		if c == "" {
			continue
		}
		switch c[len(c)-1] {
		case '-', '/', '&', ',':
			return true
		}
	}
	return false
}

func joinCell(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	case strings.HasSuffix(a, "-") || strings.HasSuffix(a, "/"):
		return a + b
	default:
		return a + " " + b
	}
}

// place assigns cells to anchored columns, or returns them in order when the
// table has no header.
func (p *layoutParser) place(cells []cell) []string {
	if p.anchors == nil {
		return texts(cells)
	}
	row := make([]string, len(p.anchors))
	for _, c := range cells {
		i := p.columnFor(c.col)
		row[i] = joinCell(row[i], c.text)
	}
	return row
}

func (p *layoutParser) columnFor(offset int) int {
	col := 0
	for i, a := range p.anchors {
		if a <= offset+anchorSlack {
			col = i
		}
	}
	return col
}

func (p *layoutParser) flush() {
	p.settle()
	if len(p.cur) > 0 {
		p.tables = append(p.tables, p.cur)
	}
	p.cur = nil
	p.anchors = nil
	p.adjacent = false
	p.lastRow = -1
}

func texts(cells []cell) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = c.text
	}
	return out
}
