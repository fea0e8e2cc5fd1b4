package codegen

import (
	"tinygo.org/x/go-llvm"

	"marelang/internal/ast"
	"marelang/internal/typecheck"
	"marelang/internal/types"
)

// EmitPrototype creates the function declaration in the module with
// external linkage and the declared parameter names.
func (e *Emitter) EmitPrototype(p *ast.Prototype) llvm.Value {
	fn := llvm.AddFunction(e.mod, p.Name, e.funcType(p))
	for i, param := range fn.Params() {
		param.SetName(p.Params[i].Name)
	}
	return fn
}

// EmitFunction lowers a definition: registers the prototype, materialises
// the IR function, installs operator precedence, emits the body into a
// fresh entry block with parameters spilled to slots, and finishes with
// the correct terminator. On any failure the partially-built function is
// erased and a binary operator's precedence registration is retracted.
func (e *Emitter) EmitFunction(f *ast.Function) (llvm.Value, error) {
	proto := f.Proto
	e.cursor = proto.P
	e.protos[proto.Name] = proto

	fn, _, ok := e.getFunction(proto.Name)
	if !ok {
		// Unreachable: the registry was just populated.
		return llvm.Value{}, e.errorf("unknown function referenced '%s'", proto.Name)
	}
	if fn.BasicBlocksCount() != 0 {
		return llvm.Value{}, e.errorf("function '%s' cannot be redefined", proto.Name)
	}
	if fn.ParamsCount() != len(proto.Params) {
		return llvm.Value{}, e.errorf("function '%s' redeclared with a different signature", proto.Name)
	}

	if proto.IsBinaryOp() {
		e.prec.Install(proto.OperatorChar(), proto.Precedence)
	}

	fail := func(err error) (llvm.Value, error) {
		fn.EraseFromParentAsFunction()
		if proto.IsBinaryOp() {
			e.prec.Retract(proto.OperatorChar())
		}
		return llvm.Value{}, err
	}

	entry := e.ctx.AddBasicBlock(fn, "entry")
	e.b.SetInsertPointAtEnd(entry)
	e.curRet = e.llvmType(proto.Ret)

	// Fresh symbol table; parameters become slots.
	e.named = make(map[string]Slot)
	for i, param := range fn.Params() {
		slot := e.entryAlloca(fn, param.Type(), proto.Params[i].Name)
		e.b.CreateStore(param, slot)
		e.named[proto.Params[i].Name] = Slot{Ptr: slot, Ty: param.Type()}
	}

	bodyV, err := e.emitExpr(f.Body)
	if err != nil {
		return fail(err)
	}

	// Terminate the exit block unless the body already did (a trailing
	// return, or an if whose arms both returned).
	if !blockTerminated(e.b.GetInsertBlock()) {
		if proto.Ret == types.Void {
			e.b.CreateRetVoid()
		} else {
			if !yields(bodyV) {
				return fail(e.errorf("function '%s' must return a value", proto.Name))
			}
			retTy := e.llvmType(proto.Ret)
			if bodyV.Type() != retTy {
				bodyV, err = typecheck.Promote(e.b, bodyV, bodyV.Type(), retTy)
				if err != nil {
					return fail(e.errorHere(err.Error()))
				}
			}
			e.b.CreateRet(bodyV)
		}
	}

	if err := llvm.VerifyFunction(fn, llvm.ReturnStatusAction); err != nil {
		return fail(e.errorf("function '%s' failed verification: %v", proto.Name, err))
	}

	return fn, nil
}
