package codegen

import (
	"strings"
	"testing"

	"tinygo.org/x/go-llvm"

	"marelang/internal/diag"
	"marelang/internal/lexer"
	"marelang/internal/parser"
	"marelang/internal/runtime"
	"marelang/internal/source"
)

// emitSource drives parser and emitter over src the way the driver does,
// without the main entry-point requirement.
func emitSource(t *testing.T, src string) (llvm.Module, error) {
	t.Helper()

	ctx := llvm.NewContext()
	t.Cleanup(ctx.Dispose)

	prec := parser.DefaultPrecedence()
	lx := lexer.New(source.NewCursor("test.mare", strings.NewReader(src)))
	p, err := parser.New(lx, prec)
	if err != nil {
		return llvm.Module{}, err
	}

	em := NewEmitter(ctx, "Mare", "test.mare", prec)
	t.Cleanup(em.Dispose)
	for _, proto := range runtime.Prototypes() {
		em.RegisterPrototype(proto)
	}

	for {
		switch cur := p.Cur(); {
		case cur.Kind == lexer.TokenEOF:
			return em.Module(), nil
		case cur.IsChar(';'):
			if err := p.Advance(); err != nil {
				return llvm.Module{}, err
			}
		case cur.Kind == lexer.TokenFn:
			fn, err := p.ParseDefinition()
			if err != nil {
				return llvm.Module{}, err
			}
			if _, err := em.EmitFunction(fn); err != nil {
				return llvm.Module{}, err
			}
		case cur.Kind == lexer.TokenExtern:
			proto, err := p.ParseExtern()
			if err != nil {
				return llvm.Module{}, err
			}
			em.EmitPrototype(proto)
			em.RegisterPrototype(proto)
		default:
			fn, err := p.ParseTopLevel()
			if err != nil {
				return llvm.Module{}, err
			}
			if _, err := em.EmitFunction(fn); err != nil {
				return llvm.Module{}, err
			}
		}
	}
}

func mustEmit(t *testing.T, src string) string {
	t.Helper()
	mod, err := emitSource(t, src)
	if err != nil {
		t.Fatalf("emit failed: %v", err)
	}
	return mod.String()
}

func TestSimpleArithmetic(t *testing.T) {
	ir := mustEmit(t, "fn main() -> void { __mare_printi32(40 + 2); }")
	if !strings.Contains(ir, "call void @__mare_printi32(i32 42)") {
		t.Fatalf("expected folded promoted argument, got:\n%s", ir)
	}
	if !strings.Contains(ir, "ret void") {
		t.Fatalf("expected void return, got:\n%s", ir)
	}
}

func TestRecursiveFactorial(t *testing.T) {
	ir := mustEmit(t, `
fn fact(i64 n) -> i64 {
  if n < 2 then 1 else n * fact(n - 1);
}
fn main() -> void { __mare_printi64(fact(10)); }
`)
	if !strings.Contains(ir, "phi i64") {
		t.Fatalf("expected i64 phi merge, got:\n%s", ir)
	}
	if !strings.Contains(ir, "icmp slt i64") {
		t.Fatalf("expected signed i64 comparison, got:\n%s", ir)
	}
	if !strings.Contains(ir, "call i64 @fact") {
		t.Fatalf("expected recursive call, got:\n%s", ir)
	}
}

func TestIfArmsPromoteToCommonType(t *testing.T) {
	ir := mustEmit(t, "fn f(i8 m, i16 k, i64 n) -> i64 { if n < 1 then m else k; }")
	// then-arm is i8, else-arm i16: phi at i16 with a sext on the then
	// exit path.
	if !strings.Contains(ir, "phi i16") {
		t.Fatalf("expected common-rank i16 phi, got:\n%s", ir)
	}
	if !strings.Contains(ir, "sext i8") {
		t.Fatalf("expected then-arm widening, got:\n%s", ir)
	}
}

func TestBlockTerminationHygiene(t *testing.T) {
	// The call after return must not be emitted, and the function must
	// keep a single block.
	ir := mustEmit(t, "fn f() -> i8 { return 1; __mare_printi32(9); }")
	if strings.Contains(ir, "printi32") {
		t.Fatalf("trailing call after return leaked into IR:\n%s", ir)
	}
	if !strings.Contains(ir, "ret i8 1") {
		t.Fatalf("expected ret i8 1, got:\n%s", ir)
	}
}

func TestVoidReturnInference(t *testing.T) {
	ir := mustEmit(t, "fn f() { 1 + 2; }")
	if !strings.Contains(ir, "define void @f") {
		t.Fatalf("expected void function, got:\n%s", ir)
	}
	if !strings.Contains(ir, "ret void") {
		t.Fatalf("expected implicit void return, got:\n%s", ir)
	}
}

func TestForLoopShape(t *testing.T) {
	ir := mustEmit(t, "fn main() -> void { for i = 0, i < 3, 1 in __mare_printi32(i); }")
	for _, want := range []string{"loop:", "afterloop:", "icmp slt i8", "store i8"} {
		if !strings.Contains(ir, want) {
			t.Fatalf("expected %q in IR, got:\n%s", want, ir)
		}
	}
}

func TestForYieldsZeroOfInductionType(t *testing.T) {
	ir := mustEmit(t, "fn f() -> i64 { for i = 0, i < 3 in 1; }")
	// The for value is the zero of the induction type (i8), promoted to
	// the declared return type.
	if !strings.Contains(ir, "ret i64 0") {
		t.Fatalf("expected ret i64 0, got:\n%s", ir)
	}
}

func TestForRestoresShadowedBinding(t *testing.T) {
	ir := mustEmit(t, `
fn f() -> double {
  var i = 2.5;
  for i = 0, i < 3 in 1;
  i;
}
`)
	// After the loop the outer double slot is visible again.
	if !strings.Contains(ir, "ret double") {
		t.Fatalf("expected double return from outer binding, got:\n%s", ir)
	}
	mod, err := emitSource(t, `
fn g() -> i8 {
  for i = 0, i < 3 in 1;
  i;
}
`)
	if err == nil {
		mod.Dispose()
		t.Fatalf("expected unknown variable after loop scope ends")
	}
}

func TestPrototypeResolutionAcrossForwardDecl(t *testing.T) {
	ir := mustEmit(t, `
extern g(double x) -> double
fn caller() -> double { g(1.0); }
fn g(double x) -> double { x + 1.0; }
`)
	if !strings.Contains(ir, "define double @g") {
		t.Fatalf("expected g defined, got:\n%s", ir)
	}
	if !strings.Contains(ir, "call double @g") {
		t.Fatalf("expected resolved call to g, got:\n%s", ir)
	}
}

func TestUserBinaryOperator(t *testing.T) {
	ir := mustEmit(t, `
fn binary | 5 (i32 a, i32 b) -> i32 { a + b }
fn main() -> void { __mare_printi32(2 | 3); }
`)
	if !strings.Contains(ir, "define i32 @\"_mare_std_binary|\"") &&
		!strings.Contains(ir, "define i32 @_mare_std_binary|") {
		t.Fatalf("expected operator function, got:\n%s", ir)
	}
	if !strings.Contains(ir, "binop") {
		t.Fatalf("expected operator call site, got:\n%s", ir)
	}
}

func TestUserUnaryOperator(t *testing.T) {
	ir := mustEmit(t, `
fn unary ! (v) -> double { if v then 0 else 1 }
fn main() -> void { __mare_printd(!0.0); }
`)
	if !strings.Contains(ir, "unop") {
		t.Fatalf("expected unary call site, got:\n%s", ir)
	}
}

func TestStringLiteral(t *testing.T) {
	ir := mustEmit(t, `fn main() -> void { __mare_printstr("hey"); }`)
	if !strings.Contains(ir, "private unnamed_addr constant") {
		t.Fatalf("expected private string constant, got:\n%s", ir)
	}
	if !strings.Contains(ir, `c"hey\00"`) {
		t.Fatalf("expected null-terminated payload, got:\n%s", ir)
	}
}

func TestVarDeclaration(t *testing.T) {
	ir := mustEmit(t, "fn main() -> void { var x = 3.14; __mare_printd(x); }")
	if !strings.Contains(ir, "alloca double") {
		t.Fatalf("expected double slot, got:\n%s", ir)
	}
	if !strings.Contains(ir, "call void @__mare_printd") {
		t.Fatalf("expected printd call, got:\n%s", ir)
	}
}

func TestAssignmentYieldsValue(t *testing.T) {
	ir := mustEmit(t, "fn main() -> void { var x = 1.0; __mare_printd(x = 2.0); }")
	if !strings.Contains(ir, "store double 2") {
		t.Fatalf("expected store of 2.0, got:\n%s", ir)
	}
}

func TestMixedFloatWidensToDouble(t *testing.T) {
	ir := mustEmit(t, "fn f(float a, double b) -> double { a + b; }")
	if !strings.Contains(ir, "fpext float") {
		t.Fatalf("expected float widening, got:\n%s", ir)
	}
	if !strings.Contains(ir, "fadd double") {
		t.Fatalf("expected double add, got:\n%s", ir)
	}
}

func TestSemanticErrors(t *testing.T) {
	cases := []struct {
		name string
		src  string
		want string
	}{
		{"unknown_variable", "fn bad() -> void { y = 1; }", "unknown variable name"},
		{"unknown_function", "fn bad() -> void { nope(); }", "unknown function referenced"},
		{"arg_count", "fn bad() -> void { __mare_printi32(1, 2); }", "incorrect number of arguments"},
		{"assign_non_variable", "fn bad() -> void { var x = 1.0; (x + 1) = 2; }", "destination of '=' must be a variable"},
		{"unknown_unary_op", "fn bad() -> void { @1.0; }", "unknown unary operator"},
		{"string_condition", `fn bad() -> void { if "s" then 1 else 2; }`, "unsupported type in condition"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mod, err := emitSource(t, tc.src)
			if err == nil {
				mod.Dispose()
				t.Fatalf("expected error for %q", tc.src)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q in error, got %q", tc.want, err.Error())
			}
		})
	}
}

func TestUnknownVariableDiagnosticLocation(t *testing.T) {
	_, err := emitSource(t, "fn bad() -> void {\n  y = 1;\n}")
	if err == nil {
		t.Fatalf("expected error")
	}
	d, ok := err.(*diag.Diagnostic)
	if !ok {
		t.Fatalf("expected *diag.Diagnostic, got %T", err)
	}
	if d.Line != 2 {
		t.Fatalf("expected error blamed on line 2, got %d", d.Line)
	}
}

func TestFailedFunctionIsErased(t *testing.T) {
	prec := parser.DefaultPrecedence()
	ctx := llvm.NewContext()
	t.Cleanup(ctx.Dispose)

	lx := lexer.New(source.NewCursor("test.mare", strings.NewReader(
		"fn bad() -> void { y = 1; }")))
	p, err := parser.New(lx, prec)
	if err != nil {
		t.Fatalf("prime: %v", err)
	}
	em := NewEmitter(ctx, "Mare", "test.mare", prec)
	t.Cleanup(em.Dispose)

	fn, err := p.ParseDefinition()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, err := em.EmitFunction(fn); err == nil {
		t.Fatalf("expected emission error")
	}
	if !em.Module().NamedFunction("bad").IsNil() {
		t.Fatalf("expected failed function erased from the module")
	}
}

func TestFailedOperatorRetractsPrecedence(t *testing.T) {
	prec := parser.DefaultPrecedence()
	ctx := llvm.NewContext()
	t.Cleanup(ctx.Dispose)

	lx := lexer.New(source.NewCursor("test.mare", strings.NewReader(
		"fn binary ~ 35 (a, b) -> double { nope() }")))
	p, err := parser.New(lx, prec)
	if err != nil {
		t.Fatalf("prime: %v", err)
	}
	em := NewEmitter(ctx, "Mare", "test.mare", prec)
	t.Cleanup(em.Dispose)

	fn, err := p.ParseDefinition()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if prec['~'] != 35 {
		t.Fatalf("expected '~' installed while parsing, got %d", prec['~'])
	}
	if _, err := em.EmitFunction(fn); err == nil {
		t.Fatalf("expected emission failure")
	}
	if _, ok := prec['~']; ok {
		t.Fatalf("expected '~' retracted after failed emission")
	}
}

func TestBothArmsReturn(t *testing.T) {
	ir := mustEmit(t, "fn f(i64 n) -> i64 { if n < 1 then return 1 else return 2; }")
	if !strings.Contains(ir, "unreachable") {
		t.Fatalf("expected dead merge block, got:\n%s", ir)
	}
}

func TestRedefinitionRejected(t *testing.T) {
	_, err := emitSource(t, "fn f() { 1; } fn f() { 2; }")
	if err == nil {
		t.Fatalf("expected redefinition error")
	}
	if !strings.Contains(err.Error(), "cannot be redefined") {
		t.Fatalf("unexpected error %q", err)
	}
}

func TestTopLevelExpressionBecomesAnon(t *testing.T) {
	ir := mustEmit(t, "extern g() -> double\ng();")
	if !strings.Contains(ir, "__anon_expr") {
		t.Fatalf("expected anonymous wrapper, got:\n%s", ir)
	}
}
