package codegen

import (
	"tinygo.org/x/go-llvm"

	"marelang/internal/ast"
	"marelang/internal/diag"
	"marelang/internal/parser"
	"marelang/internal/source"
	"marelang/internal/types"
)

// Slot is a stack-resident cell for one mutable local: the alloca plus the
// type it was allocated with. All locals go through slots; promotion to
// SSA registers is left to the back-end optimiser.
type Slot struct {
	Ptr llvm.Value
	Ty  llvm.Type
}

// Emitter lowers the AST into an LLVM module. It bundles all
// per-compilation state: context, module, builder, the per-function symbol
// table, the process-wide prototype registry, the shared operator
// precedence table, and the codegen cursor used to blame emission errors.
type Emitter struct {
	ctx  llvm.Context
	mod  llvm.Module
	b    llvm.Builder
	path string

	named  map[string]Slot
	protos map[string]*ast.Prototype
	prec   parser.PrecTable

	// curRet is the return type of the function being emitted; return
	// expressions promote their value to it.
	curRet llvm.Type

	cursor   source.Pos
	strCount int
}

func NewEmitter(ctx llvm.Context, moduleName, path string, prec parser.PrecTable) *Emitter {
	return &Emitter{
		ctx:    ctx,
		mod:    ctx.NewModule(moduleName),
		b:      ctx.NewBuilder(),
		path:   path,
		named:  make(map[string]Slot),
		protos: make(map[string]*ast.Prototype),
		prec:   prec,
	}
}

func (e *Emitter) Module() llvm.Module { return e.mod }

// Dispose releases the builder. The module and context belong to the
// caller.
func (e *Emitter) Dispose() { e.b.Dispose() }

// RegisterPrototype records a prototype in the registry without emitting
// anything. Call emission materialises the declaration on demand.
func (e *Emitter) RegisterPrototype(p *ast.Prototype) {
	e.protos[p.Name] = p
}

func (e *Emitter) errorHere(msg string) *diag.Diagnostic {
	return diag.New(e.path, e.cursor, msg)
}

func (e *Emitter) errorf(format string, args ...any) *diag.Diagnostic {
	return diag.Newf(e.path, e.cursor, format, args...)
}

// llvmType maps a source type tag to its LLVM type.
func (e *Emitter) llvmType(k types.Kind) llvm.Type {
	switch k {
	case types.Void:
		return e.ctx.VoidType()
	case types.I8:
		return e.ctx.Int8Type()
	case types.I16:
		return e.ctx.Int16Type()
	case types.I32:
		return e.ctx.Int32Type()
	case types.I64:
		return e.ctx.Int64Type()
	case types.Float:
		return e.ctx.FloatType()
	case types.Double:
		return e.ctx.DoubleType()
	case types.String:
		return llvm.PointerType(e.ctx.Int8Type(), 0)
	}
	panic("unknown source type: " + k.String())
}

func (e *Emitter) funcType(p *ast.Prototype) llvm.Type {
	params := make([]llvm.Type, len(p.Params))
	for i, param := range p.Params {
		params[i] = e.llvmType(param.Type)
	}
	return llvm.FunctionType(e.llvmType(p.Ret), params, false)
}

// getFunction resolves a callee: the current module first, then the
// prototype registry (emitting the declaration into the module).
func (e *Emitter) getFunction(name string) (fn llvm.Value, fnty llvm.Type, ok bool) {
	if f := e.mod.NamedFunction(name); !f.IsNil() {
		return f, f.GlobalValueType(), true
	}
	if proto, found := e.protos[name]; found {
		return e.EmitPrototype(proto), e.funcType(proto), true
	}
	return llvm.Value{}, llvm.Type{}, false
}

// entryAlloca creates a stack slot in the function's entry block without
// disturbing the main builder's position.
func (e *Emitter) entryAlloca(fn llvm.Value, ty llvm.Type, name string) llvm.Value {
	tmp := e.ctx.NewBuilder()
	defer tmp.Dispose()

	entry := fn.EntryBasicBlock()
	if first := entry.FirstInstruction(); !first.IsNil() {
		tmp.SetInsertPointBefore(first)
	} else {
		tmp.SetInsertPointAtEnd(entry)
	}
	return tmp.CreateAlloca(ty, name)
}

func blockTerminated(bb llvm.BasicBlock) bool {
	last := bb.LastInstruction()
	if last.IsNil() {
		return false
	}
	switch last.InstructionOpcode() {
	case llvm.Ret, llvm.Br, llvm.Switch, llvm.IndirectBr, llvm.Invoke, llvm.Unreachable:
		return true
	}
	return false
}

// yields reports whether v is a usable expression result (non-nil and not
// void-typed; terminators and void calls are not).
func yields(v llvm.Value) bool {
	return !v.IsNil() && v.Type().TypeKind() != llvm.VoidTypeKind
}

// toBool converts a condition value to a 1-bit predicate by comparing it
// non-equal to zero. Comparisons already produce i1 and pass through.
func (e *Emitter) toBool(v llvm.Value, errMsg string) (llvm.Value, error) {
	ty := v.Type()
	switch ty.TypeKind() {
	case llvm.IntegerTypeKind:
		if ty.IntTypeWidth() == 1 {
			return v, nil
		}
		zero := llvm.ConstInt(ty, 0, false)
		return e.b.CreateICmp(llvm.IntNE, v, zero, "cond"), nil
	case llvm.FloatTypeKind, llvm.DoubleTypeKind:
		zero := llvm.ConstFloat(ty, 0)
		return e.b.CreateFCmp(llvm.FloatONE, v, zero, "cond"), nil
	}
	return llvm.Value{}, e.errorHere(errMsg)
}
