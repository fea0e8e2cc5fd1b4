package typecheck

import (
	"fmt"

	"tinygo.org/x/go-llvm"
)

// rank orders the promotable primitive types:
// i8 < i16 < i32 < i64 < float < double. 0 means not promotable.
func rank(t llvm.Type) int {
	switch t.TypeKind() {
	case llvm.IntegerTypeKind:
		switch t.IntTypeWidth() {
		case 8:
			return 1
		case 16:
			return 2
		case 32:
			return 3
		case 64:
			return 4
		}
	case llvm.FloatTypeKind:
		return 5
	case llvm.DoubleTypeKind:
		return 6
	}
	return 0
}

// IsFloating reports whether t is float or double.
func IsFloating(t llvm.Type) bool {
	k := t.TypeKind()
	return k == llvm.FloatTypeKind || k == llvm.DoubleTypeKind
}

// IsInteger reports whether t is an integer type.
func IsInteger(t llvm.Type) bool { return t.TypeKind() == llvm.IntegerTypeKind }

// CommonType returns the higher-ranked of two promotable types.
func CommonType(t1, t2 llvm.Type) (llvm.Type, error) {
	r1, r2 := rank(t1), rank(t2)
	if r1 == 0 || r2 == 0 {
		return llvm.Type{}, fmt.Errorf("unsupported type in promotion")
	}
	if r1 >= r2 {
		return t1, nil
	}
	return t2, nil
}

// Promote emits the conversion carrying val from one type to another at
// the builder's current position: sign-extend / truncate between integer
// widths, signed int to float, float extend / truncate, and float to
// signed int.
func Promote(b llvm.Builder, val llvm.Value, from, to llvm.Type) (llvm.Value, error) {
	if from == to {
		return val, nil
	}
	if rank(from) == 0 || rank(to) == 0 {
		return llvm.Value{}, fmt.Errorf("unsupported type in value promotion")
	}

	if IsInteger(from) && IsInteger(to) {
		fromBits, toBits := from.IntTypeWidth(), to.IntTypeWidth()
		switch {
		case fromBits < toBits:
			return b.CreateSExt(val, to, "sext"), nil
		case fromBits > toBits:
			return b.CreateTrunc(val, to, "trunc"), nil
		}
		return val, nil
	}

	if IsInteger(from) && IsFloating(to) {
		return b.CreateSIToFP(val, to, "sitofp"), nil
	}

	if from.TypeKind() == llvm.FloatTypeKind && to.TypeKind() == llvm.DoubleTypeKind {
		return b.CreateFPExt(val, to, "fpext"), nil
	}
	if from.TypeKind() == llvm.DoubleTypeKind && to.TypeKind() == llvm.FloatTypeKind {
		return b.CreateFPTrunc(val, to, "fptrunc"), nil
	}

	if IsFloating(from) && IsInteger(to) {
		return b.CreateFPToSI(val, to, "fptosi"), nil
	}

	return llvm.Value{}, fmt.Errorf("unsupported type conversion in value promotion")
}
