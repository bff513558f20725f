package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/FactoryIsland/mvs/compiler"
	"github.com/FactoryIsland/mvs/script"
)

// Usage, two modes (spec §6.4):
//
//	mvs -c|--compile FILE... -o OUTPUT   compile/link/assemble sources into bytecode
//	mvs FILE [args...]                   load and run a bytecode file
func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	if args[0] == "-c" || args[0] == "--compile" {
		if err := runCompile(args[1:]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	if err := runProgram(args[0], args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: mvs -c|--compile FILE... -o OUTPUT")
	fmt.Fprintln(os.Stderr, "       mvs FILE [args...]")
}

// runCompile reads every source file named on the command line, routes
// `.mvs` sources through the compiler front end and passes `.masm` sources
// through untouched, links the results together, assembles the linked
// document, and writes the resulting bytecode to -o's path.
func runCompile(args []string) error {
	var sources []string
	output := ""

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-o", "--output":
			i++
			if i >= len(args) {
				return fmt.Errorf("%s requires a path", args[i-1])
			}
			output = args[i]
		default:
			sources = append(sources, args[i])
		}
	}

	if output == "" {
		return fmt.Errorf("no output path given (-o OUTPUT)")
	}
	if len(sources) == 0 {
		return fmt.Errorf("no source files given")
	}

	files := make([]script.AssemblyFile, 0, len(sources))
	for _, path := range sources {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}

		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		code := string(data)
		if strings.EqualFold(filepath.Ext(path), ".mvs") {
			code, err = compiler.Compile(code)
			if err != nil {
				return fmt.Errorf("compiling %s: %w", path, err)
			}
		}

		files = append(files, script.AssemblyFile{Name: name, Code: code})
	}

	linked, err := script.Link(files, nil)
	if err != nil {
		return fmt.Errorf("linking: %w", err)
	}

	program, err := script.Assemble(linked)
	if err != nil {
		return fmt.Errorf("assembling: %w", err)
	}

	if err := os.WriteFile(output, program.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", output, err)
	}

	return nil
}

// runProgram loads a bytecode file and runs it with the remaining CLI
// arguments exposed as the program's argument vector (the `%` operand tag).
func runProgram(path string, progArgs []string) error {
	blob, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	program, err := script.ParseProgram(blob)
	if err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}

	machine := script.NewMachine(program, progArgs)
	code, err := machine.Run()
	if err != nil {
		return err
	}

	os.Exit(code)
	return nil
}
