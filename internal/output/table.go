package output

import (
	"io"
	"strings"
	"unicode/utf8"
)

// ellipsis marks a truncated cell.
const ellipsis = "…"

// Table renders rows of text cells in aligned columns. Widths are measured
// in runes so titles with accented characters line up.
type Table struct {
	headers   []string
	rows      [][]string
	noHeader  bool
	separator string
	right     map[int]bool
	maxWidth  map[int]int
}

// NewTable creates a table with the given headers.
func NewTable(headers ...string) *Table {
	return &Table{
		headers:   headers,
		separator: "  ",
		right:     map[int]bool{},
		maxWidth:  map[int]int{},
	}
}

// AddRow appends a row. Missing cells render empty.
func (t *Table) AddRow(cells ...string) {
	t.rows = append(t.rows, cells)
}

// SetNoHeader suppresses the header row and its underline.
func (t *Table) SetNoHeader(noHeader bool) {
	t.noHeader = noHeader
}

// SetSeparator sets the column separator.
func (t *Table) SetSeparator(sep string) {
	t.separator = sep
}

// AlignRight right-aligns the given columns.
func (t *Table) AlignRight(cols ...int) {
	for _, c := range cols {
		t.right[c] = true
	}
}

// SetMaxWidth truncates cells of col to width runes, ending them with an
// ellipsis.
func (t *Table) SetMaxWidth(col, width int) {
	if width < 2 {
		width = 2
	}
	t.maxWidth[col] = width
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// Render writes the table to w.
func (t *Table) Render(w io.Writer) error {
	if len(t.headers) == 0 && len(t.rows) == 0 {
		return nil
	}

	lines := make([][]string, 0, len(t.rows)+1)
	if !t.noHeader && len(t.headers) > 0 {
		lines = append(lines, t.headers)
	}
	for _, row := range t.rows {
		lines = append(lines, t.clip(row))
	}
	widths := columnWidths(lines)

	var sb strings.Builder
	for i, cells := range lines {
		t.writeRow(&sb, cells, widths)
		if i == 0 && !t.noHeader && len(t.headers) > 0 {
			rule := make([]string, len(widths))
			for c, n := range widths {
				rule[c] = strings.Repeat("-", n)
			}
			sb.WriteString(strings.Join(rule, t.separator))
			sb.WriteByte('\n')
		}
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

// String returns the rendered table.
func (t *Table) String() string {
	var sb strings.Builder
	_ = t.Render(&sb)
	return sb.String()
}

func (t *Table) clip(row []string) []string {
	out := make([]string, len(row))
	for i, cell := range row {
		if n, ok := t.maxWidth[i]; ok && utf8.RuneCountInString(cell) > n {
			cell = string([]rune(cell)[:n-1]) + ellipsis
		}
		out[i] = cell
	}
	return out
}

func (t *Table) writeRow(sb *strings.Builder, cells []string, widths []int) {
	var line strings.Builder
	for i, width := range widths {
		if i > 0 {
			line.WriteString(t.separator)
		}
		cell := ""
		if i < len(cells) {
			cell = cells[i]
		}
		pad := strings.Repeat(" ", width-utf8.RuneCountInString(cell))
		if t.right[i] {
			line.WriteString(pad + cell)
		} else {
			line.WriteString(cell + pad)
		}
	}
	sb.WriteString(strings.TrimRight(line.String(), " "))
	sb.WriteByte('\n')
}

func columnWidths(lines [][]string) []int {
	var widths []int
	for _, cells := range lines {
		for i, cell := range cells {
			if i >= len(widths) {
				widths = append(widths, 0)
			}
			if n := utf8.RuneCountInString(cell); n > widths[i] {
				widths[i] = n
			}
		}
	}
	return widths
}
