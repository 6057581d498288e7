// Command ruchy is a thin smoke-test harness over the language core, NOT
// the CLI product described in spec.md §6 ("CLI surface (host, not part of
// core)"). It exists so the parser/evaluator/VM/transpiler can be driven
// end to end from a terminal without pulling in a flag/command-tree
// library the core itself has no use for (see DESIGN.md's dropped-deps
// entry for cobra).
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/paiml/ruchy/internal/bytecode"
	"github.com/paiml/ruchy/internal/diag"
	"github.com/paiml/ruchy/internal/eval"
	"github.com/paiml/ruchy/internal/parser"
	"github.com/paiml/ruchy/internal/transpile"
	"github.com/paiml/ruchy/internal/vm"
)

const (
	exitSuccess      = 0
	exitRuntimeError = 1
	exitUsageError   = 2
)

func main() {
	var mode string
	flag.StringVar(&mode, "mode", "eval", "eval | vm | transpile | parse")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: %s [-mode eval|vm|transpile|parse] <file.ruchy>\n", os.Args[0])
		os.Exit(exitUsageError)
	}

	path := flag.Arg(0)
	src, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
		os.Exit(exitUsageError)
	}

	prog, perrs := parser.Parse(string(src))
	if len(perrs) > 0 {
		for _, pe := range perrs {
			printParseError(string(src), pe)
		}
		os.Exit(exitRuntimeError)
	}

	switch mode {
	case "parse":
		fmt.Printf("%d top-level items\n", len(prog.Items))
	case "eval":
		ev := eval.New(prog, eval.WithStdout(os.Stdout))
		result, err := ev.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "runtime error: %v\n", err)
			os.Exit(exitRuntimeError)
		}
		fmt.Println(result)
	case "vm":
		chunk, err := bytecode.Compile(prog)
		if err != nil {
			fmt.Fprintf(os.Stderr, "compile error: %v\n", err)
			os.Exit(exitRuntimeError)
		}
		machine := vm.New()
		result, err := machine.Run(chunk)
		if err != nil {
			fmt.Fprintf(os.Stderr, "vm error: %v\n", err)
			os.Exit(exitRuntimeError)
		}
		fmt.Println(result)
	case "transpile":
		out, err := transpile.Transpile(prog)
		if err != nil {
			fmt.Fprintf(os.Stderr, "transpile error: %v\n", err)
			os.Exit(exitRuntimeError)
		}
		fmt.Println(out)
	default:
		fmt.Fprintf(os.Stderr, "unknown mode %q\n", mode)
		os.Exit(exitUsageError)
	}
}

func printParseError(src string, pe *parser.Error) {
	fmt.Fprintln(os.Stderr, pe.Error())
	fmt.Fprint(os.Stderr, diag.Snippet(src, pe.Span, pe.Found.Line, pe.Found.Column, 8))
}
