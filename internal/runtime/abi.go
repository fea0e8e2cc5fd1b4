// Package runtime describes the C ABI of the Mare runtime library: the
// printing and elementary math intrinsics user programs resolve at link
// time. The driver preinstalls these prototypes so programs may call them
// without writing extern declarations.
package runtime

import (
	"marelang/internal/ast"
	"marelang/internal/types"
)

// Signature is one runtime symbol with its C calling-convention shape.
type Signature struct {
	Name   string
	Params []types.Kind
	Ret    types.Kind
}

// unaryMath and binaryMath are emitted once per floating width with the
// usual d/f suffix.
var unaryMath = []string{"sqrt", "sin", "cos", "tan", "log", "exp", "round", "floor", "ceil"}

var binaryMath = []string{"pow", "hypot", "fmod"}

// Intrinsics lists every symbol the runtime shared object exports.
func Intrinsics() []Signature {
	sigs := []Signature{
		{Name: "__mare_printc", Params: []types.Kind{types.I8}, Ret: types.Void},
		{Name: "__mare_printstr", Params: []types.Kind{types.String}, Ret: types.Void},
		{Name: "__mare_printf", Params: []types.Kind{types.Float}, Ret: types.Void},
		{Name: "__mare_printd", Params: []types.Kind{types.Double}, Ret: types.Void},
		{Name: "__mare_printi8", Params: []types.Kind{types.I8}, Ret: types.Void},
		{Name: "__mare_printi16", Params: []types.Kind{types.I16}, Ret: types.Void},
		{Name: "__mare_printi32", Params: []types.Kind{types.I32}, Ret: types.Void},
		{Name: "__mare_printi64", Params: []types.Kind{types.I64}, Ret: types.Void},
		{Name: "__mare_putchard", Params: []types.Kind{types.Double}, Ret: types.Double},
		{Name: "putchard", Params: []types.Kind{types.Double}, Ret: types.Double},
	}

	for _, fn := range unaryMath {
		sigs = append(sigs,
			Signature{Name: "__mare_" + fn + "d", Params: []types.Kind{types.Double}, Ret: types.Double},
			Signature{Name: "__mare_" + fn + "f", Params: []types.Kind{types.Float}, Ret: types.Float},
		)
	}
	for _, fn := range binaryMath {
		sigs = append(sigs,
			Signature{Name: "__mare_" + fn + "d", Params: []types.Kind{types.Double, types.Double}, Ret: types.Double},
			Signature{Name: "__mare_" + fn + "f", Params: []types.Kind{types.Float, types.Float}, Ret: types.Float},
		)
	}
	return sigs
}

// Prototypes converts the intrinsic table into registry-ready prototypes.
// Parameter names follow the runtime header's single-letter convention.
func Prototypes() []*ast.Prototype {
	argNames := []string{"x", "y"}
	var protos []*ast.Prototype
	for _, sig := range Intrinsics() {
		params := make([]ast.Param, len(sig.Params))
		for i, k := range sig.Params {
			params[i] = ast.Param{Name: argNames[i], Type: k}
		}
		protos = append(protos, &ast.Prototype{Name: sig.Name, Params: params, Ret: sig.Ret})
	}
	return protos
}
