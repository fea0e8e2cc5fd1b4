package lexer

import (
	"math"
	"strconv"
	"strings"

	"marelang/internal/diag"
	"marelang/internal/source"
	"marelang/internal/types"
)

// Lexer folds the character stream into tokens. It keeps exactly one
// look-ahead character across calls, so the cursor is always one byte past
// the end of the token most recently returned.
type Lexer struct {
	cur  *source.Cursor
	last int // look-ahead character, ' ' before the first read
}

func New(cur *source.Cursor) *Lexer {
	return &Lexer{cur: cur, last: ' '}
}

func (lx *Lexer) Name() string { return lx.cur.Name() }

// Pos returns the cursor position, which is the position of the
// look-ahead character.
func (lx *Lexer) Pos() source.Pos { return lx.cur.Pos() }

// Next returns the next token. The only lex-time failures are numeric: an
// integer literal whose value does not fit a signed 64-bit range, or a
// floating literal that does not parse (such as a lone '.').
func (lx *Lexer) Next() (Token, error) {
	for isSpace(lx.last) {
		lx.last = lx.cur.Next()
	}

	pos := lx.cur.Pos()

	if lx.last == '"' {
		return lx.lexString(pos)
	}
	if isAlpha(lx.last) || lx.last == '_' {
		return lx.lexIdentOrKeyword(pos), nil
	}
	if isDigit(lx.last) || lx.last == '.' {
		return lx.lexNumber(pos)
	}

	// Line comment: consume to end of line, then retry.
	if lx.last == '#' {
		for lx.last != source.EOF && lx.last != '\n' && lx.last != '\r' {
			lx.last = lx.cur.Next()
		}
		if lx.last != source.EOF {
			return lx.Next()
		}
	}

	if lx.last == '-' {
		lx.last = lx.cur.Next()
		if lx.last == '>' {
			lx.last = lx.cur.Next()
			return Token{Kind: TokenArrow, Pos: pos}, nil
		}
		return Token{Kind: TokenChar, Pos: pos, Ch: '-'}, nil
	}

	// Don't eat the EOF.
	if lx.last == source.EOF {
		return Token{Kind: TokenEOF, Pos: pos}, nil
	}

	ch := byte(lx.last)
	lx.last = lx.cur.Next()
	return Token{Kind: TokenChar, Pos: pos, Ch: ch}, nil
}

// lexString captures the raw bytes of a string literal up to the matching
// unescaped double quote. Escape processing is the parser's job. EOF inside
// a string yields end-of-file.
func (lx *Lexer) lexString(pos source.Pos) (Token, error) {
	var b strings.Builder
	for {
		lx.last = lx.cur.Next()
		if lx.last == source.EOF {
			return Token{Kind: TokenEOF, Pos: pos}, nil
		}
		if lx.last == '"' {
			break
		}
		if lx.last == '\\' {
			b.WriteByte('\\')
			lx.last = lx.cur.Next()
			if lx.last == source.EOF {
				return Token{Kind: TokenEOF, Pos: pos}, nil
			}
		}
		b.WriteByte(byte(lx.last))
	}
	lx.last = lx.cur.Next() // consume closing quote
	return Token{Kind: TokenString, Pos: pos, Str: b.String()}, nil
}

func (lx *Lexer) lexIdentOrKeyword(pos source.Pos) Token {
	var b strings.Builder
	b.WriteByte(byte(lx.last))
	for {
		lx.last = lx.cur.Next()
		if !isAlnum(lx.last) && lx.last != '_' {
			break
		}
		b.WriteByte(byte(lx.last))
	}
	name := b.String()
	if k, ok := keywords[name]; ok {
		return Token{Kind: k, Pos: pos}
	}
	return Token{Kind: TokenIdent, Pos: pos, Ident: name}
}

// lexNumber accumulates digits and at most one '.', plus an optional
// trailing f/F suffix. A literal is floating when it contains a dot or
// carries the suffix; otherwise it is an integer and is tagged with the
// narrowest width whose signed range contains the value.
func (lx *Lexer) lexNumber(pos source.Pos) (Token, error) {
	var b strings.Builder
	sawDot := false
	for isDigit(lx.last) || (lx.last == '.' && !sawDot) {
		if lx.last == '.' {
			sawDot = true
		}
		b.WriteByte(byte(lx.last))
		lx.last = lx.cur.Next()
	}

	hasFSuffix := false
	if lx.last == 'f' || lx.last == 'F' {
		hasFSuffix = true
		lx.last = lx.cur.Next()
	}

	num, err := classifyNumber(b.String(), sawDot, hasFSuffix)
	if err != nil {
		return Token{}, diag.New(lx.cur.Name(), pos, err.Error())
	}
	return Token{Kind: TokenNumber, Pos: pos, Num: num}, nil
}

func classifyNumber(text string, sawDot, hasFSuffix bool) (types.Number, error) {
	if sawDot || hasFSuffix {
		bits := 64
		if hasFSuffix {
			bits = 32
		}
		f, err := strconv.ParseFloat(text, bits)
		if err != nil {
			return types.Number{}, errInvalidNumber
		}
		if hasFSuffix {
			return types.Number{Kind: types.Float, F: f}, nil
		}
		return types.Number{Kind: types.Double, F: f}, nil
	}

	v, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return types.Number{}, errNumberRange
	}
	switch {
	case v >= math.MinInt8 && v <= math.MaxInt8:
		return types.Number{Kind: types.I8, Int: v}, nil
	case v >= math.MinInt16 && v <= math.MaxInt16:
		return types.Number{Kind: types.I16, Int: v}, nil
	case v >= math.MinInt32 && v <= math.MaxInt32:
		return types.Number{Kind: types.I32, Int: v}, nil
	default:
		return types.Number{Kind: types.I64, Int: v}, nil
	}
}

type lexError string

func (e lexError) Error() string { return string(e) }

const (
	errInvalidNumber = lexError("invalid number literal")
	errNumberRange   = lexError("number out of range")
)

func isSpace(ch int) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r' || ch == '\v' || ch == '\f'
}

func isAlpha(ch int) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isDigit(ch int) bool { return ch >= '0' && ch <= '9' }

func isAlnum(ch int) bool { return isAlpha(ch) || isDigit(ch) }
