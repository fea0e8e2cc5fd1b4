package parser

import (
	"marelang/internal/ast"
	"marelang/internal/diag"
	"marelang/internal/lexer"
	"marelang/internal/stringlit"
	"marelang/internal/types"
)

const (
	// Reserved internal name prefixes for user-defined operators. The
	// operator character is appended to form the function name.
	UnaryFuncPrefix  = "_mare_std_unary"
	BinaryFuncPrefix = "_mare_std_binary"

	// Precedence a `binary` definition gets when none is written.
	defaultBinaryPrecedence = 30

	protoHint = "Ensure function prototypes are declared as: fn name(type name, ...) -> return_type"
)

// Parser is a strictly single-pass recursive-descent parser with
// Pratt-style precedence climbing for binary operators. It owns the
// current-token cell; every production consumes at least one token on
// success and fails with a fatal diagnostic otherwise.
type Parser struct {
	lx   *lexer.Lexer
	cur  lexer.Token
	prec PrecTable
}

// New primes the look-ahead with the first token.
func New(lx *lexer.Lexer, prec PrecTable) (*Parser, error) {
	p := &Parser{lx: lx, prec: prec}
	if err := p.Advance(); err != nil {
		return nil, err
	}
	return p, nil
}

// Cur exposes the current token so the driver can dispatch top-level forms.
func (p *Parser) Cur() lexer.Token { return p.cur }

// Advance reads the next token into the current-token cell.
func (p *Parser) Advance() error {
	tok, err := p.lx.Next()
	if err != nil {
		return err
	}
	p.cur = tok
	return nil
}

func (p *Parser) errorHere(msg string) *diag.Diagnostic {
	return diag.New(p.lx.Name(), p.cur.Pos, msg)
}

func (p *Parser) errorProto(msg string) *diag.Diagnostic {
	return p.errorHere(msg).WithHint(protoHint)
}

// tokPrecedence returns the pending binary operator's precedence, or -1
// when the current token cannot continue a binary expression.
func (p *Parser) tokPrecedence() int {
	if p.cur.Kind != lexer.TokenChar {
		return -1
	}
	prec := p.prec[p.cur.Ch]
	if prec <= 0 {
		return -1
	}
	return prec
}

// ParseExpression parses `return expr?` or `unary binoprhs`.
func (p *Parser) ParseExpression() (ast.Expr, error) {
	if p.cur.Kind == lexer.TokenReturn {
		return p.parseReturn()
	}

	lhs, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	return p.parseBinOpRHS(0, lhs)
}

// parseBinOpRHS is the Pratt climbing loop: it keeps merging operators
// that bind at least as tightly as minPrec.
func (p *Parser) parseBinOpRHS(minPrec int, lhs ast.Expr) (ast.Expr, error) {
	for {
		tokPrec := p.tokPrecedence()
		if tokPrec < minPrec {
			return lhs, nil
		}

		op := p.cur.Ch
		pos := p.cur.Pos
		if err := p.Advance(); err != nil {
			return nil, err
		}

		rhs, err := p.parseUnary()
		if err != nil {
			return nil, err
		}

		// If the next operator binds tighter, let it take rhs first.
		if tokPrec < p.tokPrecedence() {
			rhs, err = p.parseBinOpRHS(tokPrec+1, rhs)
			if err != nil {
				return nil, err
			}
		}

		lhs = &ast.BinaryExpr{Op: op, LHS: lhs, RHS: rhs, P: pos}
	}
}

// parseUnary treats any literal ASCII token other than '(' and ',' as a
// unary operator; everything else descends to primary.
func (p *Parser) parseUnary() (ast.Expr, error) {
	if p.cur.Kind != lexer.TokenChar || p.cur.Ch == '(' || p.cur.Ch == ',' {
		return p.parsePrimary()
	}

	op := p.cur.Ch
	pos := p.cur.Pos
	if err := p.Advance(); err != nil {
		return nil, err
	}
	operand, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	return &ast.UnaryExpr{Op: op, Operand: operand, P: pos}, nil
}

func (p *Parser) parsePrimary() (ast.Expr, error) {
	switch p.cur.Kind {
	case lexer.TokenIdent:
		return p.parseIdentifierExpr()
	case lexer.TokenNumber:
		return p.parseNumberExpr()
	case lexer.TokenChar:
		if p.cur.Ch == '(' {
			return p.parseParenExpr()
		}
	case lexer.TokenIf:
		return p.parseIfExpr()
	case lexer.TokenFor:
		return p.parseForExpr()
	case lexer.TokenVar:
		return p.parseVarExpr()
	case lexer.TokenString:
		return p.parseStringExpr()
	}
	return nil, p.errorHere("unknown token when expecting an expression")
}

func (p *Parser) parseNumberExpr() (ast.Expr, error) {
	e := &ast.NumberExpr{Num: p.cur.Num, P: p.cur.Pos}
	if err := p.Advance(); err != nil {
		return nil, err
	}
	return e, nil
}

func (p *Parser) parseStringExpr() (ast.Expr, error) {
	e := &ast.StringExpr{Val: stringlit.Process(p.cur.Str), P: p.cur.Pos}
	if err := p.Advance(); err != nil {
		return nil, err
	}
	return e, nil
}

func (p *Parser) parseParenExpr() (ast.Expr, error) {
	if err := p.Advance(); err != nil { // eat '('
		return nil, err
	}
	e, err := p.ParseExpression()
	if err != nil {
		return nil, err
	}
	if !p.cur.IsChar(')') {
		return nil, p.errorHere("expected ')'")
	}
	return e, p.Advance() // eat ')'
}

// parseIdentifierExpr parses a variable reference, or a call when the
// identifier is followed by '('.
func (p *Parser) parseIdentifierExpr() (ast.Expr, error) {
	name := p.cur.Ident
	pos := p.cur.Pos
	if err := p.Advance(); err != nil {
		return nil, err
	}

	if !p.cur.IsChar('(') {
		return &ast.VariableExpr{Name: name, P: pos}, nil
	}

	if err := p.Advance(); err != nil { // eat '('
		return nil, err
	}
	var args []ast.Expr
	if !p.cur.IsChar(')') {
		for {
			arg, err := p.ParseExpression()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)

			if p.cur.IsChar(')') {
				break
			}
			if !p.cur.IsChar(',') {
				return nil, p.errorHere("expected ')' or ',' in argument list")
			}
			if err := p.Advance(); err != nil {
				return nil, err
			}
		}
	}
	return &ast.CallExpr{Callee: name, Args: args, P: pos}, p.Advance() // eat ')'
}

// parseIfExpr parses `if expr then expr else expr`; both arms are
// mandatory.
func (p *Parser) parseIfExpr() (ast.Expr, error) {
	pos := p.cur.Pos
	if err := p.Advance(); err != nil { // eat 'if'
		return nil, err
	}

	cond, err := p.ParseExpression()
	if err != nil {
		return nil, err
	}

	if p.cur.Kind != lexer.TokenThen {
		return nil, p.errorHere(`expected the keyword "then"`)
	}
	if err := p.Advance(); err != nil {
		return nil, err
	}
	then, err := p.ParseExpression()
	if err != nil {
		return nil, err
	}

	if p.cur.Kind != lexer.TokenElse {
		return nil, p.errorHere(`expected the keyword "else"`)
	}
	if err := p.Advance(); err != nil {
		return nil, err
	}
	els, err := p.ParseExpression()
	if err != nil {
		return nil, err
	}

	return &ast.IfExpr{Cond: cond, Then: then, Else: els, P: pos}, nil
}

// parseForExpr parses `for name = start, end [, step] in body`.
func (p *Parser) parseForExpr() (ast.Expr, error) {
	pos := p.cur.Pos
	if err := p.Advance(); err != nil { // eat 'for'
		return nil, err
	}

	if p.cur.Kind != lexer.TokenIdent {
		return nil, p.errorHere("expected identifier after 'for'")
	}
	name := p.cur.Ident
	if err := p.Advance(); err != nil {
		return nil, err
	}

	if !p.cur.IsChar('=') {
		return nil, p.errorHere("expected '=' after 'for'")
	}
	if err := p.Advance(); err != nil {
		return nil, err
	}

	start, err := p.ParseExpression()
	if err != nil {
		return nil, err
	}
	if !p.cur.IsChar(',') {
		return nil, p.errorHere("expected ',' after for start value")
	}
	if err := p.Advance(); err != nil {
		return nil, err
	}

	end, err := p.ParseExpression()
	if err != nil {
		return nil, err
	}

	var step ast.Expr
	if p.cur.IsChar(',') {
		if err := p.Advance(); err != nil {
			return nil, err
		}
		step, err = p.ParseExpression()
		if err != nil {
			return nil, err
		}
	}

	if p.cur.Kind != lexer.TokenIn {
		return nil, p.errorHere("expected 'in' after for")
	}
	if err := p.Advance(); err != nil {
		return nil, err
	}

	body, err := p.ParseExpression()
	if err != nil {
		return nil, err
	}

	return &ast.ForExpr{VarName: name, Start: start, End: end, Step: step, Body: body, P: pos}, nil
}

// parseVarExpr parses the single-binding `var name = expr` form.
func (p *Parser) parseVarExpr() (ast.Expr, error) {
	pos := p.cur.Pos
	if err := p.Advance(); err != nil { // eat 'var'
		return nil, err
	}

	if p.cur.Kind != lexer.TokenIdent {
		return nil, p.errorHere("expected identifier after 'var'")
	}
	name := p.cur.Ident
	if err := p.Advance(); err != nil {
		return nil, err
	}

	if !p.cur.IsChar('=') {
		return nil, p.errorHere("expected '=' after variable name")
	}
	if err := p.Advance(); err != nil {
		return nil, err
	}

	init, err := p.ParseExpression()
	if err != nil {
		return nil, err
	}
	return &ast.VarExpr{Name: name, Init: init, P: pos}, nil
}

// parseReturn parses `return [expr]`. The trailing semicolon, if any, is
// the caller's to consume.
func (p *Parser) parseReturn() (ast.Expr, error) {
	pos := p.cur.Pos
	if err := p.Advance(); err != nil { // eat 'return'
		return nil, err
	}

	if p.cur.IsChar(';') || p.cur.Kind == lexer.TokenEOF {
		return &ast.ReturnExpr{P: pos}, nil
	}

	lhs, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	value, err := p.parseBinOpRHS(0, lhs)
	if err != nil {
		return nil, err
	}
	return &ast.ReturnExpr{Value: value, P: pos}, nil
}

// parseBlock parses expressions separated by optional ';' until the
// closing brace (or end of file), which it consumes. The opening brace has
// already been eaten by the caller.
func (p *Parser) parseBlock() (ast.Expr, error) {
	pos := p.cur.Pos
	var exprs []ast.Expr

	for {
		if p.cur.IsChar('}') || p.cur.Kind == lexer.TokenEOF {
			if err := p.Advance(); err != nil {
				return nil, err
			}
			break
		}

		e, err := p.ParseExpression()
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, e)

		if p.cur.IsChar(';') {
			if err := p.Advance(); err != nil {
				return nil, err
			}
		}
	}

	return &ast.BlockExpr{Exprs: exprs, P: pos}, nil
}

// parseTypedParam parses `[type] name`; an identifier alone is a
// double-typed parameter. void is not a legal parameter type.
func (p *Parser) parseTypedParam() (ast.Param, error) {
	ty := types.Double

	if p.cur.Kind != lexer.TokenIdent {
		if !p.cur.IsTypeKeyword() || p.cur.Kind == lexer.TokenVoid {
			return ast.Param{}, p.errorProto("unexpected token in argument list")
		}
		ty, _ = p.cur.TypeKind()
		if err := p.Advance(); err != nil { // eat the type token
			return ast.Param{}, err
		}
	}

	if p.cur.Kind != lexer.TokenIdent {
		return ast.Param{}, p.errorProto("expected argument name after type")
	}
	name := p.cur.Ident
	return ast.Param{Name: name, Type: ty}, p.Advance()
}

// canStartParam mirrors the token set a parameter may open with.
func (p *Parser) canStartParam() bool {
	if p.cur.Kind == lexer.TokenIdent {
		return true
	}
	return p.cur.IsTypeKeyword() && p.cur.Kind != lexer.TokenVoid
}

// ParsePrototype parses
//
//	name '(' params? ')' ('->' type)?
//	'unary'  op '(' params? ')' ('->' type)?
//	'binary' op number? '(' params? ')' ('->' type)?
//
// A binary form's precedence must be a number convertible to an integer in
// [1, 100]. Operator forms must declare exactly as many parameters as the
// operator's arity.
func (p *Parser) ParsePrototype() (*ast.Prototype, error) {
	pos := p.cur.Pos
	var name string
	op := ast.OpNone
	precedence := defaultBinaryPrecedence

	switch p.cur.Kind {
	case lexer.TokenIdent:
		name = p.cur.Ident
		if err := p.Advance(); err != nil {
			return nil, err
		}

	case lexer.TokenUnary:
		if err := p.Advance(); err != nil {
			return nil, err
		}
		if p.cur.Kind != lexer.TokenChar {
			return nil, p.errorProto("expected unary operator")
		}
		name = UnaryFuncPrefix + string(p.cur.Ch)
		op = ast.OpUnary
		if err := p.Advance(); err != nil {
			return nil, err
		}

	case lexer.TokenBinary:
		if err := p.Advance(); err != nil {
			return nil, err
		}
		if p.cur.Kind != lexer.TokenChar {
			return nil, p.errorProto("expected binary operator")
		}
		name = BinaryFuncPrefix + string(p.cur.Ch)
		op = ast.OpBinary
		if err := p.Advance(); err != nil {
			return nil, err
		}
		if p.cur.Kind == lexer.TokenNumber {
			prec, ok := precedenceFromNumber(p.cur.Num)
			if !ok {
				return nil, p.errorProto("invalid precedence: must be 1..100")
			}
			precedence = prec
			if err := p.Advance(); err != nil {
				return nil, err
			}
		}

	default:
		return nil, p.errorProto("expected function name in prototype")
	}

	if !p.cur.IsChar('(') {
		return nil, p.errorProto("expected '(' in prototype")
	}
	if err := p.Advance(); err != nil {
		return nil, err
	}

	var params []ast.Param
	for p.canStartParam() {
		param, err := p.parseTypedParam()
		if err != nil {
			return nil, err
		}
		params = append(params, param)

		if p.cur.IsChar(',') {
			if err := p.Advance(); err != nil {
				return nil, err
			}
		}
	}

	if !p.cur.IsChar(')') {
		return nil, p.errorProto("expected ')' in argument decl")
	}
	if err := p.Advance(); err != nil {
		return nil, err
	}

	ret := types.Void
	if p.cur.Kind == lexer.TokenArrow {
		if err := p.Advance(); err != nil {
			return nil, err
		}
		k, ok := p.cur.TypeKind()
		if !ok {
			return nil, p.errorProto("expected return type after '->'")
		}
		ret = k
		if err := p.Advance(); err != nil {
			return nil, err
		}
	}

	if op != ast.OpNone && len(params) != op.Arity() {
		return nil, p.errorProto("invalid number of operands for operator")
	}

	return &ast.Prototype{
		Name:       name,
		Params:     params,
		Ret:        ret,
		Op:         op,
		Precedence: precedence,
		P:          pos,
	}, nil
}

// precedenceFromNumber accepts integer or floating literals whose value
// lies in [1, 100]; a floating value is truncated to an integer.
func precedenceFromNumber(n types.Number) (int, bool) {
	switch n.Kind {
	case types.Float, types.Double:
		if n.F >= 1 && n.F <= 100 {
			return int(n.F), true
		}
	default:
		if n.Int >= 1 && n.Int <= 100 {
			return int(n.Int), true
		}
	}
	return 0, false
}

// ParseDefinition parses `fn prototype { block }`. A binary-operator
// definition registers its precedence before the body is parsed, so
// recursive uses of the operator inside its own body parse correctly.
func (p *Parser) ParseDefinition() (*ast.Function, error) {
	if err := p.Advance(); err != nil { // eat 'fn'
		return nil, err
	}
	proto, err := p.ParsePrototype()
	if err != nil {
		return nil, err
	}

	if proto.IsBinaryOp() {
		p.prec.Install(proto.OperatorChar(), proto.Precedence)
	}

	if !p.cur.IsChar('{') {
		return nil, p.errorHere("expected '{' to start function body")
	}
	if err := p.Advance(); err != nil {
		return nil, err
	}

	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ast.Function{Proto: proto, Body: body}, nil
}

// ParseExtern parses `extern prototype`. Operator externs are rejected:
// operators must have bodies.
func (p *Parser) ParseExtern() (*ast.Prototype, error) {
	if err := p.Advance(); err != nil { // eat 'extern'
		return nil, err
	}
	if p.cur.Kind != lexer.TokenIdent {
		return nil, p.errorProto("expected function name after 'extern'")
	}
	return p.ParsePrototype()
}

// ParseTopLevel wraps a bare top-level expression in an anonymous
// zero-parameter void function.
func (p *Parser) ParseTopLevel() (*ast.Function, error) {
	pos := p.cur.Pos
	e, err := p.ParseExpression()
	if err != nil {
		return nil, err
	}
	proto := &ast.Prototype{Name: "__anon_expr", Ret: types.Void, P: pos}
	return &ast.Function{Proto: proto, Body: e}, nil
}
