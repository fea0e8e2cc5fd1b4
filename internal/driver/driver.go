// Package driver owns one compilation: it primes the lexer, dispatches
// top-level forms to the parser and emitter, enforces the main entry-point
// requirement, and hands the finished module to the back end.
package driver

import (
	"io"
	"os"

	"tinygo.org/x/go-llvm"

	"marelang/internal/backend"
	"marelang/internal/codegen"
	"marelang/internal/diag"
	"marelang/internal/lexer"
	"marelang/internal/parser"
	"marelang/internal/runtime"
	"marelang/internal/source"
	"marelang/internal/types"
)

const moduleName = "Mare"

type Options struct {
	// Path of the input source file.
	Path string
	// Output receives the native object file.
	Output string
	// ShowCPUFeatures prints detected host CPU features during back-end
	// setup.
	ShowCPUFeatures bool
	// Verbose, when non-nil, receives back-end progress notes.
	Verbose io.Writer
}

// Compile runs one source file through the whole pipeline and writes the
// object file. All compiler state lives for exactly this call.
func Compile(opts Options) error {
	f, err := os.Open(opts.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	ctx := llvm.NewContext()
	defer ctx.Dispose()

	mod, err := BuildModule(ctx, opts.Path, f)
	if err != nil {
		return err
	}
	defer mod.Dispose()

	return backend.EmitObject(mod, backend.Options{
		OutPath:         opts.Output,
		ShowCPUFeatures: opts.ShowCPUFeatures,
		Verbose:         opts.Verbose,
	})
}

// BuildModule runs the front end over src and returns the populated IR
// module. On error the partially-built module has been disposed.
func BuildModule(ctx llvm.Context, path string, src io.Reader) (llvm.Module, error) {
	prec := parser.DefaultPrecedence()

	lx := lexer.New(source.NewCursor(path, src))
	p, err := parser.New(lx, prec) // primes the first token
	if err != nil {
		return llvm.Module{}, err
	}

	em := codegen.NewEmitter(ctx, moduleName, path, prec)
	defer em.Dispose()
	for _, proto := range runtime.Prototypes() {
		em.RegisterPrototype(proto)
	}

	foundMain := false
	fail := func(err error) (llvm.Module, error) {
		em.Module().Dispose()
		return llvm.Module{}, err
	}

loop:
	for {
		switch cur := p.Cur(); {
		case cur.Kind == lexer.TokenEOF:
			break loop

		case cur.IsChar(';'): // ignore top-level semicolons
			if err := p.Advance(); err != nil {
				return fail(err)
			}

		case cur.Kind == lexer.TokenFn:
			fn, err := p.ParseDefinition()
			if err != nil {
				return fail(err)
			}
			if fn.Proto.Name == "main" && fn.Proto.Ret == types.Void {
				foundMain = true
			}
			if _, err := em.EmitFunction(fn); err != nil {
				return fail(err)
			}

		case cur.Kind == lexer.TokenExtern:
			proto, err := p.ParseExtern()
			if err != nil {
				return fail(err)
			}
			em.EmitPrototype(proto)
			em.RegisterPrototype(proto)

		default:
			fn, err := p.ParseTopLevel()
			if err != nil {
				return fail(err)
			}
			if _, err := em.EmitFunction(fn); err != nil {
				return fail(err)
			}
		}
	}

	if !foundMain {
		return fail(diag.New(path, source.Pos{Line: 1, Col: 1},
			"missing required 'main' function entry point").
			WithHint("Define a top-level function: fn main() -> void"))
	}

	return em.Module(), nil
}
