package ncs

import (
	"strconv"
	"strings"

	"github.com/kmsheehan/nwn2dev-public/pkg/resfile"
)

// SymbolsMagic is the required first line of a debug-symbol file.
const SymbolsMagic = "NDB V1.0"

// Function is one compiled function's code span.
type Function struct {
	Name  string
	Start uint32
	End   uint32
}

// LineSpan maps a code range back to a source line.
type LineSpan struct {
	File  int
	Line  uint32
	Start uint32
	End   uint32
}

// Symbols is a parsed debug-symbol file. The compiler emits one per
// script; its absence is expected and non-fatal to callers.
type Symbols struct {
	Files     []string
	Functions []Function
	Lines     []LineSpan
}

// ParseSymbols reads the text debug-symbol format: a magic line, then
// one record per line keyed by its leading tag. Unknown tags are
// skipped so newer compiler output stays readable.
func ParseSymbols(data []byte) (*Symbols, error) {
	const op = "ndb: parse"
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	lines := strings.Split(text, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != SymbolsMagic {
		got := ""
		if len(lines) > 0 {
			got = strings.TrimSpace(lines[0])
		}
		return nil, resfile.MagicErr(op, SymbolsMagic, got)
	}

	s := &Symbols{}
	for n, line := range lines[1:] {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "f": // f <size> <name>
			if len(fields) < 3 {
				return nil, resfile.MalformedErr(op, "line %d: short file record", n+2)
			}
			s.Files = append(s.Files, fields[2])
		case "fn": // fn <start> <end> <name>
			if len(fields) < 4 {
				return nil, resfile.MalformedErr(op, "line %d: short function record", n+2)
			}
			start, err := parseHex(fields[1])
			if err != nil {
				return nil, resfile.MalformedErr(op, "line %d: %v", n+2, err)
			}
			end, err := parseHex(fields[2])
			if err != nil {
				return nil, resfile.MalformedErr(op, "line %d: %v", n+2, err)
			}
			s.Functions = append(s.Functions, Function{Name: fields[3], Start: start, End: end})
		case "l": // l <file> <line> <start> <end>
			if len(fields) < 5 {
				return nil, resfile.MalformedErr(op, "line %d: short line record", n+2)
			}
			vals := make([]uint32, 4)
			for i := 0; i < 4; i++ {
				v, err := parseHex(fields[i+1])
				if err != nil {
					return nil, resfile.MalformedErr(op, "line %d: %v", n+2, err)
				}
				vals[i] = v
			}
			s.Lines = append(s.Lines, LineSpan{File: int(vals[0]), Line: vals[1], Start: vals[2], End: vals[3]})
		}
	}
	return s, nil
}

func parseHex(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 16, 32)
	return uint32(v), err
}

// FunctionAt returns the function whose code span covers pc.
func (s *Symbols) FunctionAt(pc uint32) (Function, bool) {
	for _, fn := range s.Functions {
		if pc >= fn.Start && pc < fn.End {
			return fn, true
		}
	}
	return Function{}, false
}

// LineAt returns the source line whose code span covers pc.
func (s *Symbols) LineAt(pc uint32) (LineSpan, bool) {
	for _, l := range s.Lines {
		if pc >= l.Start && pc < l.End {
			return l, true
		}
	}
	return LineSpan{}, false
}
