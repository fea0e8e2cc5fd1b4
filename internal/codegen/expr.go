package codegen

import (
	"fmt"

	"tinygo.org/x/go-llvm"

	"marelang/internal/ast"
	"marelang/internal/parser"
	"marelang/internal/typecheck"
	"marelang/internal/types"
)

// emitExpr lowers one expression and returns the value it produces. An
// expression that yields nothing returns either a zero Value (an if without
// a phi, an empty block) or a void-typed value (a void call, a return
// terminator); yields tells both apart from a usable result.
func (e *Emitter) emitExpr(x ast.Expr) (llvm.Value, error) {
	e.cursor = x.Pos()

	switch x := x.(type) {
	case *ast.NumberExpr:
		return e.emitNumber(x)
	case *ast.StringExpr:
		return e.emitString(x)
	case *ast.VariableExpr:
		return e.emitVariable(x)
	case *ast.UnaryExpr:
		return e.emitUnary(x)
	case *ast.BinaryExpr:
		return e.emitBinary(x)
	case *ast.CallExpr:
		return e.emitCall(x)
	case *ast.IfExpr:
		return e.emitIf(x)
	case *ast.ForExpr:
		return e.emitFor(x)
	case *ast.VarExpr:
		return e.emitVar(x)
	case *ast.ReturnExpr:
		return e.emitReturn(x)
	case *ast.BlockExpr:
		return e.emitBlock(x)
	}
	panic(fmt.Sprintf("unhandled expression node %T", x))
}

func (e *Emitter) emitNumber(x *ast.NumberExpr) (llvm.Value, error) {
	ty := e.llvmType(x.Num.Kind)
	if x.Num.Kind.IsFloating() {
		return llvm.ConstFloat(ty, x.Num.F), nil
	}
	return llvm.ConstInt(ty, uint64(x.Num.Int), true), nil
}

// emitString installs a private null-terminated byte array constant and
// yields a pointer to its first byte.
func (e *Emitter) emitString(x *ast.StringExpr) (llvm.Value, error) {
	init := llvm.ConstString(x.Val, true)
	arrTy := llvm.ArrayType(e.ctx.Int8Type(), len(x.Val)+1)

	global := llvm.AddGlobal(e.mod, arrTy, fmt.Sprintf(".str.%d", e.strCount))
	e.strCount++
	global.SetInitializer(init)
	global.SetLinkage(llvm.PrivateLinkage)
	global.SetGlobalConstant(true)
	global.SetUnnamedAddr(true)

	zero := llvm.ConstInt(e.ctx.Int32Type(), 0, false)
	return e.b.CreateGEP(arrTy, global, []llvm.Value{zero, zero}, "strptr"), nil
}

func (e *Emitter) emitVariable(x *ast.VariableExpr) (llvm.Value, error) {
	slot, ok := e.named[x.Name]
	if !ok {
		return llvm.Value{}, e.errorf("unknown variable name '%s'", x.Name)
	}
	return e.b.CreateLoad(slot.Ty, slot.Ptr, x.Name), nil
}

// emitUnary resolves the user-defined function behind the operator; there
// are no built-in unary operators.
func (e *Emitter) emitUnary(x *ast.UnaryExpr) (llvm.Value, error) {
	operand, err := e.emitExpr(x.Operand)
	if err != nil {
		return llvm.Value{}, err
	}

	e.cursor = x.Pos()
	fn, fnty, ok := e.getFunction(parser.UnaryFuncPrefix + string(x.Op))
	if !ok {
		return llvm.Value{}, e.errorf("unknown unary operator '%c'", x.Op)
	}
	return e.emitCallTo(fnty, fn, []llvm.Value{operand}, "unop")
}

// emitCallTo widens (or narrows) each argument to the callee's declared
// parameter type before emitting the call, so narrow literals flow into
// wider parameters.
func (e *Emitter) emitCallTo(fnty llvm.Type, fn llvm.Value, args []llvm.Value, name string) (llvm.Value, error) {
	params := fnty.ParamTypes()
	for i := range args {
		if !yields(args[i]) {
			return llvm.Value{}, e.errorHere("argument yields no value")
		}
		if args[i].Type() != params[i] {
			v, err := typecheck.Promote(e.b, args[i], args[i].Type(), params[i])
			if err != nil {
				return llvm.Value{}, e.errorHere(err.Error())
			}
			args[i] = v
		}
	}
	return e.b.CreateCall(fnty, fn, args, name), nil
}

func (e *Emitter) emitBinary(x *ast.BinaryExpr) (llvm.Value, error) {
	if x.Op == '=' {
		return e.emitAssign(x)
	}

	l, err := e.emitExpr(x.LHS)
	if err != nil {
		return llvm.Value{}, err
	}
	r, err := e.emitExpr(x.RHS)
	if err != nil {
		return llvm.Value{}, err
	}

	e.cursor = x.Pos()
	if !yields(l) || !yields(r) {
		return llvm.Value{}, e.errorHere("operand yields no value in binary expression")
	}

	// Promote both sides to a common type first.
	if l.Type() != r.Type() {
		common, err := typecheck.CommonType(l.Type(), r.Type())
		if err != nil {
			return llvm.Value{}, e.errorHere(err.Error())
		}
		if l, err = typecheck.Promote(e.b, l, l.Type(), common); err != nil {
			return llvm.Value{}, e.errorHere(err.Error())
		}
		if r, err = typecheck.Promote(e.b, r, r.Type(), common); err != nil {
			return llvm.Value{}, e.errorHere(err.Error())
		}
	}

	floating := typecheck.IsFloating(l.Type())
	switch x.Op {
	case '+':
		if floating {
			return e.b.CreateFAdd(l, r, "addtmp"), nil
		}
		return e.b.CreateAdd(l, r, "addtmp"), nil
	case '-':
		if floating {
			return e.b.CreateFSub(l, r, "subtmp"), nil
		}
		return e.b.CreateSub(l, r, "subtmp"), nil
	case '*':
		if floating {
			return e.b.CreateFMul(l, r, "multmp"), nil
		}
		return e.b.CreateMul(l, r, "multmp"), nil
	case '/':
		if floating {
			return e.b.CreateFDiv(l, r, "divtmp"), nil
		}
		return e.b.CreateSDiv(l, r, "divtmp"), nil
	case '<':
		// The 1-bit predicate is left unconverted; consumers that need a
		// wider type convert at their end.
		if floating {
			return e.b.CreateFCmp(llvm.FloatOLT, l, r, "cmptmp"), nil
		}
		return e.b.CreateICmp(llvm.IntSLT, l, r, "cmptmp"), nil
	case '>':
		if floating {
			return e.b.CreateFCmp(llvm.FloatOGT, l, r, "cmptmp"), nil
		}
		return e.b.CreateICmp(llvm.IntSGT, l, r, "cmptmp"), nil
	}

	// Anything else must be a user-defined operator.
	fn, fnty, ok := e.getFunction(parser.BinaryFuncPrefix + string(x.Op))
	if !ok {
		return llvm.Value{}, e.errorf("unknown binary operator '%c'", x.Op)
	}
	return e.emitCallTo(fnty, fn, []llvm.Value{l, r}, "binop")
}

// emitAssign stores into an existing slot and yields the stored value.
func (e *Emitter) emitAssign(x *ast.BinaryExpr) (llvm.Value, error) {
	lhs, ok := x.LHS.(*ast.VariableExpr)
	if !ok {
		return llvm.Value{}, e.errorHere("destination of '=' must be a variable")
	}

	val, err := e.emitExpr(x.RHS)
	if err != nil {
		return llvm.Value{}, err
	}

	e.cursor = x.Pos()
	slot, found := e.named[lhs.Name]
	if !found {
		return llvm.Value{}, e.errorf("unknown variable name '%s'", lhs.Name)
	}
	if !yields(val) {
		return llvm.Value{}, e.errorHere("assigned expression yields no value")
	}
	if val.Type() != slot.Ty {
		val, err = typecheck.Promote(e.b, val, val.Type(), slot.Ty)
		if err != nil {
			return llvm.Value{}, e.errorHere(err.Error())
		}
	}

	e.b.CreateStore(val, slot.Ptr)
	return val, nil
}

func (e *Emitter) emitCall(x *ast.CallExpr) (llvm.Value, error) {
	fn, fnty, ok := e.getFunction(x.Callee)
	if !ok {
		return llvm.Value{}, e.errorf("unknown function referenced '%s'", x.Callee)
	}
	if fnty.ParamTypesCount() != len(x.Args) {
		return llvm.Value{}, e.errorf("incorrect number of arguments passed to '%s'", x.Callee)
	}

	args := make([]llvm.Value, 0, len(x.Args))
	for _, arg := range x.Args {
		v, err := e.emitExpr(arg)
		if err != nil {
			return llvm.Value{}, err
		}
		args = append(args, v)
	}

	e.cursor = x.Pos()
	// A void callee gets no named result.
	if fnty.ReturnType().TypeKind() == llvm.VoidTypeKind {
		return e.emitCallTo(fnty, fn, args, "")
	}
	return e.emitCallTo(fnty, fn, args, "calltmp")
}

// emitIf lowers if/then/else to a conditional branch with a phi merge.
// Arm values of different numeric types are promoted to their common type
// on the arm's exit block before branching to the merge.
func (e *Emitter) emitIf(x *ast.IfExpr) (llvm.Value, error) {
	cond, err := e.emitExpr(x.Cond)
	if err != nil {
		return llvm.Value{}, err
	}
	e.cursor = x.Pos()
	if !yields(cond) {
		return llvm.Value{}, e.errorHere("unsupported type in condition")
	}
	cond, err = e.toBool(cond, "unsupported type in condition")
	if err != nil {
		return llvm.Value{}, err
	}

	fn := e.b.GetInsertBlock().Parent()
	thenBB := e.ctx.AddBasicBlock(fn, "then")
	elseBB := e.ctx.AddBasicBlock(fn, "else")
	mergeBB := e.ctx.AddBasicBlock(fn, "ifcont")
	e.b.CreateCondBr(cond, thenBB, elseBB)

	// Emit both arms. Nested constructs can switch blocks, so the exit
	// block of an arm may differ from the block it started in.
	e.b.SetInsertPointAtEnd(thenBB)
	thenV, err := e.emitExpr(x.Then)
	if err != nil {
		return llvm.Value{}, err
	}
	thenExit := e.b.GetInsertBlock()
	thenLive := !blockTerminated(thenExit)

	e.b.SetInsertPointAtEnd(elseBB)
	elseV, err := e.emitExpr(x.Else)
	if err != nil {
		return llvm.Value{}, err
	}
	elseExit := e.b.GetInsertBlock()
	elseLive := !blockTerminated(elseExit)

	// A phi is only well formed when every merge predecessor supplies a
	// value.
	phiable := thenLive && elseLive && yields(thenV) && yields(elseV)

	if phiable && thenV.Type() != elseV.Type() {
		common, cerr := typecheck.CommonType(thenV.Type(), elseV.Type())
		if cerr != nil {
			return llvm.Value{}, e.errorHere("mismatched types in 'if' expression")
		}
		e.b.SetInsertPointAtEnd(thenExit)
		if thenV, err = typecheck.Promote(e.b, thenV, thenV.Type(), common); err != nil {
			return llvm.Value{}, e.errorHere(err.Error())
		}
		e.b.SetInsertPointAtEnd(elseExit)
		if elseV, err = typecheck.Promote(e.b, elseV, elseV.Type(), common); err != nil {
			return llvm.Value{}, e.errorHere(err.Error())
		}
	}

	if thenLive {
		e.b.SetInsertPointAtEnd(thenExit)
		e.b.CreateBr(mergeBB)
	}
	if elseLive {
		e.b.SetInsertPointAtEnd(elseExit)
		e.b.CreateBr(mergeBB)
	}

	e.b.SetInsertPointAtEnd(mergeBB)
	if !thenLive && !elseLive {
		// Both arms returned; the merge block is dead.
		e.b.CreateUnreachable()
		return llvm.Value{}, nil
	}
	if !phiable {
		return llvm.Value{}, nil
	}

	phi := e.b.CreatePHI(thenV.Type(), "iftmp")
	phi.AddIncoming([]llvm.Value{thenV, elseV}, []llvm.BasicBlock{thenExit, elseExit})
	return phi, nil
}

// emitFor lowers the loop as:
//
//	entry: slot = alloca
//	cur:   store start; br loop
//	loop:  body; step; end; induction += step; br end != 0, loop, afterloop
//	afterloop:
//
// The induction variable shadows any outer binding for the loop's extent
// and the expression yields the zero value of the induction type.
func (e *Emitter) emitFor(x *ast.ForExpr) (llvm.Value, error) {
	start, err := e.emitExpr(x.Start)
	if err != nil {
		return llvm.Value{}, err
	}
	e.cursor = x.Pos()
	if !yields(start) {
		return llvm.Value{}, e.errorHere("unsupported type for loop variable")
	}
	indTy := start.Type()

	fn := e.b.GetInsertBlock().Parent()
	slot := e.entryAlloca(fn, indTy, x.VarName)
	e.b.CreateStore(start, slot)

	loopBB := e.ctx.AddBasicBlock(fn, "loop")
	e.b.CreateBr(loopBB)
	e.b.SetInsertPointAtEnd(loopBB)

	old, shadowed := e.named[x.VarName]
	e.named[x.VarName] = Slot{Ptr: slot, Ty: indTy}

	// The body is emitted for its side effects only.
	if _, err := e.emitExpr(x.Body); err != nil {
		return llvm.Value{}, err
	}

	var step llvm.Value
	if x.Step != nil {
		if step, err = e.emitExpr(x.Step); err != nil {
			return llvm.Value{}, err
		}
	} else {
		switch {
		case typecheck.IsFloating(indTy):
			step = llvm.ConstFloat(indTy, 1)
		case typecheck.IsInteger(indTy):
			step = llvm.ConstInt(indTy, 1, false)
		default:
			e.cursor = x.Pos()
			return llvm.Value{}, e.errorHere("unsupported type for loop variable")
		}
	}

	end, err := e.emitExpr(x.End)
	if err != nil {
		return llvm.Value{}, err
	}
	e.cursor = x.Pos()

	// Reload, increment, and store back so a body that mutates the
	// induction variable is honoured.
	cur := e.b.CreateLoad(indTy, slot, x.VarName)
	var next llvm.Value
	switch {
	case typecheck.IsFloating(indTy):
		next = e.b.CreateFAdd(cur, step, "nextvar")
	case typecheck.IsInteger(indTy):
		next = e.b.CreateAdd(cur, step, "nextvar")
	default:
		return llvm.Value{}, e.errorHere("unsupported type for loop arithmetic")
	}
	e.b.CreateStore(next, slot)

	if !yields(end) {
		return llvm.Value{}, e.errorHere("unsupported type for loop condition")
	}
	cond, err := e.toBool(end, "unsupported type for loop condition")
	if err != nil {
		return llvm.Value{}, err
	}

	afterBB := e.ctx.AddBasicBlock(fn, "afterloop")
	e.b.CreateCondBr(cond, loopBB, afterBB)
	e.b.SetInsertPointAtEnd(afterBB)

	if shadowed {
		e.named[x.VarName] = old
	} else {
		delete(e.named, x.VarName)
	}

	return llvm.ConstNull(indTy), nil
}

// emitVar allocates a slot of the initializer's type in the entry block
// and yields the initializer value. A missing initializer defaults to 0.0.
func (e *Emitter) emitVar(x *ast.VarExpr) (llvm.Value, error) {
	var init llvm.Value
	if x.Init != nil {
		v, err := e.emitExpr(x.Init)
		if err != nil {
			return llvm.Value{}, err
		}
		init = v
	} else {
		init = llvm.ConstFloat(e.llvmType(types.Double), 0)
	}

	e.cursor = x.Pos()
	if !yields(init) {
		return llvm.Value{}, e.errorHere("variable initializer yields no value")
	}

	fn := e.b.GetInsertBlock().Parent()
	slot := e.entryAlloca(fn, init.Type(), x.Name)
	e.b.CreateStore(init, slot)
	e.named[x.Name] = Slot{Ptr: slot, Ty: init.Type()}

	return init, nil
}

// emitReturn terminates the current block. The returned handle is the
// terminator instruction, which yields no value. The value is promoted to
// the enclosing function's return type.
func (e *Emitter) emitReturn(x *ast.ReturnExpr) (llvm.Value, error) {
	if x.Value == nil {
		return e.b.CreateRetVoid(), nil
	}
	v, err := e.emitExpr(x.Value)
	if err != nil {
		return llvm.Value{}, err
	}
	e.cursor = x.Pos()
	if !yields(v) || e.curRet.TypeKind() == llvm.VoidTypeKind {
		return e.b.CreateRetVoid(), nil
	}
	if v.Type() != e.curRet {
		if v, err = typecheck.Promote(e.b, v, v.Type(), e.curRet); err != nil {
			return llvm.Value{}, e.errorHere(err.Error())
		}
	}
	return e.b.CreateRet(v), nil
}

// emitBlock emits sub-expressions in order and yields the last value. It
// stops as soon as a sub-expression terminates the current block, so code
// after a return is never emitted.
func (e *Emitter) emitBlock(x *ast.BlockExpr) (llvm.Value, error) {
	var last llvm.Value
	for _, sub := range x.Exprs {
		v, err := e.emitExpr(sub)
		if err != nil {
			return llvm.Value{}, err
		}
		last = v

		if blockTerminated(e.b.GetInsertBlock()) {
			break
		}
	}
	return last, nil
}
