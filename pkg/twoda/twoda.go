// Package twoda reads the 2DA text tables the engine uses for rule
// data: a header row naming columns, then one row per record, with
// **** marking an absent cell.
package twoda

import (
	"strconv"
	"strings"

	"github.com/kmsheehan/nwn2dev-public/pkg/resfile"
)

// Magic is the required first line.
const Magic = "2DA V2.0"

// missingToken marks a cell with no value.
const missingToken = "****"

// Table is a parsed 2DA.
type Table struct {
	columns    []string
	colIndex   map[string]int // lowercased name
	labels     []string
	rows       [][]cell
	defaultVal string
	hasDefault bool
}

type cell struct {
	value   string
	present bool
}

// Parse reads a 2DA from its text form.
func Parse(data []byte) (*Table, error) {
	const op = "2da: parse"
	lines := splitLines(string(data))
	if len(lines) == 0 {
		return nil, resfile.BoundsErr(op, "empty file")
	}
	if fields := strings.Fields(lines[0]); len(fields) != 2 || fields[0]+" "+fields[1] != Magic {
		return nil, resfile.MagicErr(op, Magic, strings.TrimSpace(lines[0]))
	}

	t := &Table{colIndex: make(map[string]int)}

	// Optional DEFAULT: line, then the first non-blank line is the
	// column header row.
	i := 1
	for ; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		if rest, ok := strings.CutPrefix(line, "DEFAULT:"); ok {
			tokens := tokenize(rest)
			if len(tokens) > 0 {
				t.defaultVal = tokens[0]
				t.hasDefault = true
			}
			continue
		}
		break
	}
	if i >= len(lines) {
		return nil, resfile.MalformedErr(op, "no column header row")
	}
	t.columns = tokenize(lines[i])
	if len(t.columns) == 0 {
		return nil, resfile.MalformedErr(op, "empty column header row")
	}
	for idx, name := range t.columns {
		t.colIndex[strings.ToLower(name)] = idx
	}

	for i++; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "" {
			continue
		}
		tokens := tokenize(lines[i])
		// The first token is the row label; the rest are cells. Short
		// rows leave their trailing cells absent.
		row := make([]cell, len(t.columns))
		for c := 0; c < len(t.columns) && c+1 < len(tokens); c++ {
			if tokens[c+1] != missingToken {
				row[c] = cell{value: tokens[c+1], present: true}
			}
		}
		t.labels = append(t.labels, tokens[0])
		t.rows = append(t.rows, row)
	}
	return t, nil
}

// ParseSource reads a 2DA from a byte source.
func ParseSource(src resfile.ByteSource) (*Table, error) {
	data, err := resfile.ReadAll(src)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.Split(s, "\n")
}

// tokenize splits a row on whitespace; a double-quoted token may
// contain spaces.
func tokenize(line string) []string {
	var out []string
	i := 0
	for i < len(line) {
		c := line[i]
		if c == ' ' || c == '\t' {
			i++
			continue
		}
		if c == '"' {
			end := strings.IndexByte(line[i+1:], '"')
			if end < 0 {
				out = append(out, line[i+1:])
				return out
			}
			out = append(out, line[i+1:i+1+end])
			i += end + 2
			continue
		}
		end := strings.IndexAny(line[i:], " \t")
		if end < 0 {
			out = append(out, line[i:])
			return out
		}
		out = append(out, line[i:i+end])
		i += end
	}
	return out
}

// RowCount returns the number of data rows.
func (t *Table) RowCount() int {
	return len(t.rows)
}

// Columns returns the column names in declaration order.
func (t *Table) Columns() []string {
	return t.columns
}

// ColumnIndex resolves a column name (case-insensitive) to its index.
func (t *Table) ColumnIndex(name string) (int, bool) {
	i, ok := t.colIndex[strings.ToLower(name)]
	return i, ok
}

// Label returns the row label of row i.
func (t *Table) Label(row int) (string, bool) {
	if row < 0 || row >= len(t.labels) {
		return "", false
	}
	return t.labels[row], true
}

// StringAt returns the cell at (row, column index). An absent cell
// resolves to the table default when one exists, otherwise reports
// false.
func (t *Table) StringAt(row, col int) (string, bool) {
	if row < 0 || row >= len(t.rows) || col < 0 || col >= len(t.columns) {
		return "", false
	}
	c := t.rows[row][col]
	if !c.present {
		if t.hasDefault {
			return t.defaultVal, true
		}
		return "", false
	}
	return c.value, true
}

// String returns the cell at (row, named column).
func (t *Table) String(row int, col string) (string, bool) {
	i, ok := t.ColumnIndex(col)
	if !ok {
		return "", false
	}
	return t.StringAt(row, i)
}

// Int returns the cell at (row, named column) parsed as an integer.
// Hexadecimal cells with an 0x prefix are accepted.
func (t *Table) Int(row int, col string) (int, bool) {
	s, ok := t.String(row, col)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseInt(s, 0, 64)
	if err != nil {
		return 0, false
	}
	return int(v), true
}

// Float returns the cell at (row, named column) parsed as a float.
func (t *Table) Float(row int, col string) (float64, bool) {
	s, ok := t.String(row, col)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
