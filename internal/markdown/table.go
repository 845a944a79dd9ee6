package markdown

import "strings"

// Table is a pipe table: one header row and any number of body rows.
// Rows keep their own cell count; ragged rows are not padded.
type Table struct {
	Header []string
	Rows   [][]string
}

// isTableRow reports whether l starts and ends with '|' once trimmed.
func isTableRow(l string) bool {
	t := strings.TrimSpace(l)
	return t != "" && t[0] == '|' && t[len(t)-1] == '|'
}

// isSeparatorRow reports whether a table row only holds '|', '-', ':' and
// whitespace, as in "|---|:--:|".
func isSeparatorRow(l string) bool {
	for _, r := range l {
		switch r {
		case '|', '-', ':', ' ', '\t':
		default:
			return false
		}
	}
	return true
}

// splitCells strips one leading and one trailing '|' and splits on the rest.
// Empty cells are kept.
func splitCells(l string) []string {
	t := strings.TrimSpace(l)
	t = strings.TrimPrefix(t, "|")
	t = strings.TrimSuffix(t, "|")
	cells := strings.Split(t, "|")
	for i, c := range cells {
		cells[i] = strings.TrimSpace(c)
	}
	return cells
}

// ParseTable builds a table from a run of table rows. It reports false for
// runs shorter than two lines and for runs holding nothing but separators;
// such lines are ordinary text.
func ParseTable(rows []string) (*Table, bool) {
	if len(rows) < 2 {
		return nil, false
	}
	var t *Table
	for _, r := range rows {
		if isSeparatorRow(r) {
			continue
		}
		if t == nil {
			t = &Table{Header: splitCells(r)}
			continue
		}
		t.Rows = append(t.Rows, splitCells(r))
	}
	return t, t != nil
}

// HTML renders the table, one element row per output line.
func (t *Table) HTML() []string {
	out := make([]string, 0, len(t.Rows)+6)
	out = append(out, "<table>", "<thead>", row("th", t.Header), "</thead>")
	if len(t.Rows) > 0 {
		out = append(out, "<tbody>")
		for _, r := range t.Rows {
			out = append(out, row("td", r))
		}
		out = append(out, "</tbody>")
	}
	return append(out, "</table>")
}

func row(tag string, cells []string) string {
	var b strings.Builder
	b.WriteString("<tr>")
	for _, c := range cells {
		b.WriteString("<" + tag + ">")
		b.WriteString(c)
		b.WriteString("</" + tag + ">")
	}
	b.WriteString("</tr>")
	return b.String()
}

// extractTables replaces every qualifying run of text lines with table
// markup. Lines of rejected runs are left untouched.
func extractTables(lines []line) []line {
	out := make([]line, 0, len(lines))
	for i := 0; i < len(lines); {
		if lines[i].kind != textLine || !isTableRow(lines[i].text) {
			out = append(out, lines[i])
			i++
			continue
		}
		j := i
		for j < len(lines) && lines[j].kind == textLine && isTableRow(lines[j].text) {
			j++
		}
		rows := make([]string, 0, j-i)
		for _, l := range lines[i:j] {
			rows = append(rows, l.text)
		}
		if t, ok := ParseTable(rows); ok {
			for _, h := range t.HTML() {
				out = append(out, line{text: h, kind: tableLine})
			}
		} else {
			out = append(out, lines[i:j]...)
		}
		i = j
	}
	return out
}
