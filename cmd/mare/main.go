package main

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/jessevdk/go-flags"

	"marelang/internal/diag"
	"marelang/internal/driver"
)

const sourceExt = ".mare"

var opts struct {
	Output          string `short:"o" long:"output" default:"a.out" description:"Set output filename"`
	Linker          string `long:"linker" default:"/usr/bin/clang++" description:"Path to linker; passing this flag links the object into an executable"`
	ShowCPUFeatures bool   `long:"show-cpu-features" description:"Show the current target's CPU features"`

	Args struct {
		File string `positional-arg-name:"file" description:"Mare source file"`
	} `positional-args:"yes"`
}

func printError(msg string) {
	fmt.Fprintf(os.Stderr, "%serror:%s %s\n", diag.ColorRed, diag.ColorReset, msg)
}

func printHint(msg string) {
	fmt.Fprintf(os.Stderr, "%shint:%s  %s\n", diag.ColorCyan, diag.ColorReset, msg)
}

// objectPath derives the intermediate object filename when the object is
// linked afterwards: a.out -> a.o, myprog -> myprog.o.
func objectPath(output string) string {
	return strings.TrimSuffix(output, filepath.Ext(output)) + ".o"
}

func main() {
	fp := flags.NewParser(&opts, flags.Default)
	fp.Usage = "[options] <file" + sourceExt + ">"
	if _, err := fp.Parse(); err != nil {
		if flags.WroteHelp(err) {
			os.Exit(0)
		}
		os.Exit(1)
	}

	if opts.Args.File == "" {
		printError("no input file provided.")
		printHint("Use `--help` for usage information.")
		os.Exit(1)
	}
	if filepath.Ext(opts.Args.File) != sourceExt {
		printError("invalid source file extension: " + filepath.Base(opts.Args.File))
		printHint("Expected a file ending with: " + sourceExt)
		os.Exit(1)
	}

	// Linking is requested by passing --linker explicitly; the object
	// file alone is the default output.
	link := fp.FindOptionByLongName("linker").IsSet()
	objPath := opts.Output
	if link {
		objPath = objectPath(opts.Output)
	}

	err := driver.Compile(driver.Options{
		Path:            opts.Args.File,
		Output:          objPath,
		ShowCPUFeatures: opts.ShowCPUFeatures,
		Verbose:         os.Stdout,
	})
	if err != nil {
		var d *diag.Diagnostic
		if errors.As(err, &d) {
			diag.Render(os.Stderr, d)
		} else {
			printError(err.Error())
		}
		os.Exit(1)
	}

	fmt.Fprintf(os.Stdout, "%s%s-- Compiled to Object File: %s%s\n",
		diag.ColorBold, diag.ColorGreen, objPath, diag.ColorReset)

	if link {
		ld := exec.Command(opts.Linker, objPath, "-o", opts.Output)
		out, err := ld.CombinedOutput()
		os.Stderr.Write(out)
		if err != nil {
			printError("linker failed: " + err.Error())
			os.Exit(1)
		}
		fmt.Fprintf(os.Stdout, "%s%s-- Linked Executable: %s%s\n",
			diag.ColorBold, diag.ColorGreen, opts.Output, diag.ColorReset)
	}
}
