package script

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/FactoryIsland/mvs/compiler"
)

// AssemblyFile is one named source of assembly text to be linked together
// (spec §4.3): either a file on disk the user passed directly, or a
// resolved external dependency.
type AssemblyFile struct {
	Name string
	Code string
}

// DefaultSearchPaths is the fixed list the linker searches for unresolved
// `.extern` dependencies, matching the original linker's PATHS constant.
var DefaultSearchPaths = []string{
	"/usr/bin/", "/usr/lib/", "/usr/include/",
	"/usr/local/bin/", "/usr/local/lib/", "/usr/local/include/",
}

// Link combines a set of named assembly files into a single assembly
// document ready for Assemble (spec §4.3). Every input file must start
// with `.named`; unresolved `.extern` dependencies are searched for as
// `<name>.masm` (raw assembly) or `<name>.mvs` (compiled source) across
// searchPaths.
func Link(files []AssemblyFile, searchPaths []string) (string, error) {
	if searchPaths == nil {
		searchPaths = DefaultSearchPaths
	}

	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Name
	}
	sort.Strings(names)

	adapted := make(map[string]bool, len(files))
	for _, name := range names {
		a := adaptName(name)
		if adapted[a] {
			return "", fmt.Errorf("%w: %q (files must have unique names once '.', '/', '\\' are stripped)", ErrDuplicateFileName, a)
		}
		adapted[a] = true
	}

	fileTokens := make([][]string, len(files))
	for i, f := range files {
		fileTokens[i] = tokenize(f.Code)
	}

	neededSet := map[string]bool{}
	var needed []string
	for _, toks := range fileTokens {
		_, _, externs := extractSymbols(toks)
		for _, e := range externs {
			if !containsSorted(names, e) && !neededSet[e] {
				neededSet[e] = true
				needed = append(needed, e)
			}
		}
	}

	for _, external := range needed {
		code, err := resolveExternal(external, searchPaths)
		if err != nil {
			return "", err
		}
		files = append(files, AssemblyFile{Name: external, Code: code})
		fileTokens = append(fileTokens, tokenize(code))
	}

	var out strings.Builder
	for i, f := range files {
		tokens := fileTokens[i]
		if len(tokens) == 0 || tokens[0] != ".named" {
			return "", ErrIndexModeLinked
		}

		globals, labels, _ := extractSymbols(tokens)
		adaptedName := adaptName(f.Name)

		if i == 0 {
			out.WriteString(".named ")
		}

		for j := 0; j < len(tokens); j++ {
			tok := tokens[j]
			if tok == ".named" {
				continue
			}

			if strings.HasPrefix(tok, "@") {
				ident := strings.TrimSuffix(strings.TrimPrefix(tok, "@"), ":")
				if ident == "static" {
					out.WriteString(fmt.Sprintf("@%s_static: ", adaptedName))
					continue
				}
				out.WriteString(tok)
				out.WriteByte(' ')
				continue
			}

			if strings.HasPrefix(tok, ".") {
				ident := strings.TrimSuffix(strings.TrimPrefix(tok, "."), ":")
				if labels[ident] {
					out.WriteString(fmt.Sprintf(".%s_%s: ", adaptedName, ident))
				} else {
					out.WriteString(tok)
					out.WriteByte(' ')
				}
				continue
			}

			out.WriteString(rewriteOperandToken(tok, adaptedName, globals))
			out.WriteByte(' ')

			switch strings.ToUpper(tok) {
			case "JMP", "JE", "JNE", "JG", "JGE", "JL", "JLE":
				j++
				if j >= len(tokens) {
					return "", fmt.Errorf("%w: jump with no target", ErrMalformedOperand)
				}
				out.WriteString(rewriteJumpTarget(tokens[j], adaptedName, labels, globals))
				out.WriteByte(' ')

			case "JZ", "JNZ", "JN", "JNN":
				j++
				if j >= len(tokens) {
					return "", fmt.Errorf("%w: conditional jump with no value operand", ErrMalformedOperand)
				}
				out.WriteString(rewriteOperandToken(tokens[j], adaptedName, globals))
				out.WriteByte(' ')
				j++
				if j >= len(tokens) {
					return "", fmt.Errorf("%w: conditional jump with no target", ErrMalformedOperand)
				}
				out.WriteString(rewriteJumpTarget(tokens[j], adaptedName, labels, globals))
				out.WriteByte(' ')
			}
		}
	}

	return out.String(), nil
}

// rewriteOperandToken applies the file-local-name prefixing rule to a
// single operand token: `%`-prefixed arguments, `$`/`&`/`*` variable
// references, the bare `static` keyword, and bare global identifiers all
// get `<name>_` prefixed when they name something this file declared
// with `.global`.
func rewriteOperandToken(tok, adaptedName string, globals map[string]bool) string {
	prefix := ""
	rest := tok
	if strings.HasPrefix(rest, "%") {
		prefix = "%"
		rest = rest[1:]
	}

	if len(rest) > 0 && strings.ContainsRune("$&*", rune(rest[0])) {
		c := rest[0]
		ident := rest[1:]
		if globals[ident] {
			return fmt.Sprintf("%s%c%s_%s", prefix, c, adaptedName, ident)
		}
		return prefix + rest
	}

	if rest == "static" {
		return prefix + adaptedName + "_static"
	}

	if len(rest) > 0 {
		first := rune(rest[0])
		isIdentStart := (first >= 'a' && first <= 'z') || (first >= 'A' && first <= 'Z') || first == '_'
		if isIdentStart && globals[rest] {
			return prefix + adaptedName + "_" + rest
		}
	}

	return prefix + rest
}

// rewriteJumpTarget handles both shapes a jump operand can take: a bare
// label reference (renamed if this file owns that label) and a `$`-prefixed
// computed-jump index, which is an ordinary global/local variable reference
// and so goes through the same prefixing rule as any other operand (spec
// §4.3 step 5).
func rewriteJumpTarget(tok, adaptedName string, labels, globals map[string]bool) string {
	if strings.HasPrefix(tok, "$") {
		return rewriteOperandToken(tok, adaptedName, globals)
	}
	if labels[tok] {
		return fmt.Sprintf("%s_%s", adaptedName, tok)
	}
	return tok
}

// extractSymbols scans a token stream for the `.global`/`.extern`
// declarations and label definitions a file owns, without performing a
// full assemble. The linker needs these three sets to decide what to
// rename and what external dependencies to fetch.
func extractSymbols(tokens []string) (globals map[string]bool, labels map[string]bool, externs []string) {
	globals = map[string]bool{}
	labels = map[string]bool{}
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		switch {
		case tok == ".global" && i+1 < len(tokens):
			globals[tokens[i+1]] = true
			i++
		case tok == ".extern" && i+1 < len(tokens):
			externs = append(externs, tokens[i+1])
			i++
		case tok == ".named":
			// not a label
		case strings.HasPrefix(tok, "."):
			ident := strings.TrimSuffix(strings.TrimPrefix(tok, "."), ":")
			labels[ident] = true
		}
	}
	return globals, labels, externs
}

func adaptName(s string) string {
	if s == "" {
		return "a"
	}
	first := rune(s[0])
	isAlpha := (first >= 'a' && first <= 'z') || (first >= 'A' && first <= 'Z')
	if !isAlpha {
		s = "a" + s
	}
	r := strings.NewReplacer(".", "_", "/", "_", "\\", "_")
	return r.Replace(s)
}

func containsSorted(sorted []string, target string) bool {
	i := sort.SearchStrings(sorted, target)
	return i < len(sorted) && sorted[i] == target
}

// resolveExternal looks for name+".masm" (raw assembly) then
// name+".mvs" (compiled source) across searchPaths, matching the
// original linker's two-extension fallback.
func resolveExternal(name string, searchPaths []string) (string, error) {
	for _, dir := range searchPaths {
		path := dir + name + ".masm"
		if data, err := os.ReadFile(path); err == nil {
			return string(data), nil
		}
	}
	for _, dir := range searchPaths {
		path := dir + name + ".mvs"
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		code, err := compiler.Compile(string(data))
		if err != nil {
			return "", fmt.Errorf("failed to compile dependency %q: %w", name, err)
		}
		return code, nil
	}
	return "", fmt.Errorf("%w: %q", ErrExternalNotFound, name)
}
