package diag

import (
	"fmt"
	"io"
	"strings"

	"marelang/internal/source"
)

type Severity int

const (
	Error Severity = iota
	Warning
	Note
	Info
)

func (s Severity) String() string {
	switch s {
	case Error:
		return "error"
	case Warning:
		return "warning"
	case Note:
		return "note"
	case Info:
		return "info"
	}
	return ""
}

func (s Severity) color() string {
	switch s {
	case Error:
		return colorRed
	case Warning:
		return colorYellow
	case Note:
		return colorCyan
	case Info:
		return colorBlue
	}
	return ""
}

// Diagnostic is a located compiler message. It implements error so the
// first one raised can abort the compilation through ordinary returns.
type Diagnostic struct {
	Severity Severity
	Path     string
	Line     int
	Col      int
	Length   int // offending span length, caret-rendered; minimum 1
	Msg      string
	Hint     string
}

func New(path string, pos source.Pos, msg string) *Diagnostic {
	return &Diagnostic{Severity: Error, Path: path, Line: pos.Line, Col: pos.Col, Length: 1, Msg: msg}
}

func Newf(path string, pos source.Pos, format string, args ...any) *Diagnostic {
	return New(path, pos, fmt.Sprintf(format, args...))
}

func (d *Diagnostic) WithHint(hint string) *Diagnostic {
	d.Hint = hint
	return d
}

func (d *Diagnostic) Error() string {
	return fmt.Sprintf("%s:%d:%d: %s: %s", d.Path, d.Line, d.Col, d.Severity, d.Msg)
}

// Render prints the diagnostic with its source line and a caret underline:
//
//	error: unknown variable name 'y'
//	  --> main.mare:3:5
//	    │
//	  3 │     y = 1;
//	    │     ^
func Render(w io.Writer, d *Diagnostic) {
	col := d.Col
	if col < 1 {
		col = 1
	}

	fmt.Fprintf(w, "\n%s%s%s: %s\n", d.Severity.color(), d.Severity, colorReset, d.Msg)
	fmt.Fprintf(w, "  %s--> %s:%d:%d%s\n", colorDim, d.Path, d.Line, d.Col, colorReset)
	fmt.Fprintf(w, "    %s│%s\n", colorDim, colorReset)

	line := sanitize(source.Line(d.Path, d.Line))
	if line != "" {
		fmt.Fprintf(w, "%3d %s│ %s%s\n", d.Line, colorDim, colorReset, line)
		caret := "^"
		if d.Length > 1 {
			caret += strings.Repeat("~", d.Length-1)
		}
		fmt.Fprintf(w, "    %s│ %s%s%s%s%s\n", colorDim, colorReset,
			strings.Repeat(" ", col-1), d.Severity.color(), caret, colorReset)
	}

	if d.Hint != "" {
		fmt.Fprintf(w, "    %s│%s\n", colorDim, colorReset)
		fmt.Fprintf(w, "    %s╰── %s%s%s\n", colorDim, colorBoldYellow, d.Hint, colorReset)
	}
	fmt.Fprintln(w)
}

// sanitize replaces control bytes so a mangled source line cannot wreck the
// caret alignment.
func sanitize(line string) string {
	var b strings.Builder
	b.Grow(len(line))
	for i := 0; i < len(line); i++ {
		if line[i] < 0x20 && line[i] != '\t' {
			b.WriteByte('?')
			continue
		}
		b.WriteByte(line[i])
	}
	return b.String()
}
