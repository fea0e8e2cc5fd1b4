package source

import (
	"bufio"
	"io"
	"os"
)

// EOF is returned by Cursor.Next once the underlying stream is exhausted.
const EOF = -1

// Pos is a 1-based line / column pair. Column 0 means "start of line";
// it is bumped to 1 by the first character read on that line.
type Pos struct {
	Line int
	Col  int
}

// Cursor is a buffered character stream over one source file. It advances
// the column on ordinary characters and bumps the line (resetting the
// column) on a line feed, matching the coordinates diagnostics blame.
type Cursor struct {
	name string
	r    *bufio.Reader
	pos  Pos
}

func NewCursor(name string, r io.Reader) *Cursor {
	return &Cursor{name: name, r: bufio.NewReader(r), pos: Pos{Line: 1}}
}

// Next consumes and returns the next byte, or EOF.
func (c *Cursor) Next() int {
	b, err := c.r.ReadByte()
	if err != nil {
		return EOF
	}
	if b == '\n' {
		c.pos.Line++
		c.pos.Col = 0
	} else {
		c.pos.Col++
	}
	return int(b)
}

// Pos returns the position of the most recently consumed byte.
func (c *Cursor) Pos() Pos { return c.pos }

func (c *Cursor) Name() string { return c.name }

// Line reads the 1-based line n from the file at path, for diagnostic
// rendering. It returns "" when the file cannot be read or the line does
// not exist.
func Line(path string, n int) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for cur := 1; sc.Scan(); cur++ {
		if cur == n {
			return sc.Text()
		}
	}
	return ""
}
