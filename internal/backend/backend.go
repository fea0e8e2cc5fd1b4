// Package backend serialises a finished IR module to a native object file
// for the host target, running the general optimisation pipeline first.
// The correctness of the emitted IR must not depend on that pipeline.
package backend

import (
	"fmt"
	"io"
	"os"
	"sync"

	"tinygo.org/x/go-llvm"
)

type Options struct {
	// OutPath receives the object file.
	OutPath string
	// ShowCPUFeatures prints the detected host CPU feature string.
	ShowCPUFeatures bool
	// Verbose, when non-nil, receives progress notes (target triple, CPU,
	// data layout).
	Verbose io.Writer
}

var initTargets sync.Once

// EmitObject configures a host target machine for mod, runs the default
// O3 pipeline, and writes the object file.
func EmitObject(mod llvm.Module, opts Options) error {
	initTargets.Do(func() {
		llvm.InitializeAllTargetInfos()
		llvm.InitializeAllTargets()
		llvm.InitializeAllTargetMCs()
		llvm.InitializeAllAsmParsers()
		llvm.InitializeAllAsmPrinters()
	})

	triple := llvm.DefaultTargetTriple()
	mod.SetTarget(triple)
	note(opts, "[*] Detected target triple: %s\n", triple)

	target, err := llvm.GetTargetFromTriple(triple)
	if err != nil {
		return fmt.Errorf("lookup target for %s: %w", triple, err)
	}

	cpu := llvm.GetHostCPUName()
	if cpu == "" {
		cpu = "generic"
	}
	note(opts, "[*] Host CPU: %s\n", cpu)

	if opts.ShowCPUFeatures {
		fmt.Fprintf(os.Stdout, "[*] CPU features: %s\n", llvm.GetHostCPUFeatures())
	}

	machine := target.CreateTargetMachine(triple, cpu, "",
		llvm.CodeGenLevelDefault, llvm.RelocPIC, llvm.CodeModelDefault)
	defer machine.Dispose()

	td := machine.CreateTargetData()
	mod.SetDataLayout(td.String())
	note(opts, "[*] DataLayout: %s\n", td.String())

	passOpts := llvm.NewPassBuilderOptions()
	defer passOpts.Dispose()
	if err := mod.RunPasses("default<O3>", machine, passOpts); err != nil {
		return fmt.Errorf("optimisation pipeline: %w", err)
	}

	buf, err := machine.EmitToMemoryBuffer(mod, llvm.ObjectFile)
	if err != nil {
		return fmt.Errorf("emit object: %w", err)
	}
	defer buf.Dispose()

	if err := os.WriteFile(opts.OutPath, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write object file: %w", err)
	}
	return nil
}

func note(opts Options, format string, args ...any) {
	if opts.Verbose != nil {
		fmt.Fprintf(opts.Verbose, format, args...)
	}
}
