// Command sqllint checks that SQL held in Go string constants starts with the
// "--sql <package.name>" marker infra.SQLRunner requires.
//
//	go run ./internal/tools/sqllint ./internal
package main

import (
	"flag"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

var (
	statementPattern = regexp.MustCompile(`(?im)^\s*(select|insert|update|delete|with|create|alter|drop)\s`)
	markerPattern    = regexp.MustCompile(`^--sql [a-z][a-z0-9_]*(\.[a-z0-9_]+)+$`)
)

type violation struct {
	file string
	line int
	name string
}

func (v violation) String() string {
	return fmt.Sprintf("%s:%d %s: missing or invalid --sql <package.name> marker", v.file, v.line, v.name)
}

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

func run(args []string, stderr io.Writer) int {
	fset := flag.NewFlagSet("sqllint", flag.ContinueOnError)
	fset.SetOutput(stderr)
	if err := fset.Parse(args); err != nil {
		return 2
	}
	targets := fset.Args()
	if len(targets) == 0 {
		targets = []string{"."}
	}

	var found []violation
	for _, target := range targets {
		vs, err := lintPath(target)
		if err != nil {
			fmt.Fprintf(stderr, "sqllint: %v\n", err)
			return 1
		}
		found = append(found, vs...)
	}
	for _, v := range found {
		fmt.Fprintln(stderr, v)
	}
	if len(found) > 0 {
		return 1
	}
	return 0
}

func lintPath(root string) ([]violation, error) {
	var found []violation
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") || name == "vendor") {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".go" {
			return nil
		}
		vs, err := lintSource(path, nil)
		if err != nil {
			return err
		}
		found = append(found, vs...)
		return nil
	})
	return found, err
}

// lintSource reports string constants and variables that look like SQL
// statements but lack a named marker. src is read from path when nil.
func lintSource(path string, src any) ([]violation, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, src, 0)
	if err != nil {
		return nil, err
	}
	var found []violation
	ast.Inspect(file, func(n ast.Node) bool {
		spec, ok := n.(*ast.ValueSpec)
		if !ok {
			return true
		}
		for i, value := range spec.Values {
			lit, ok := value.(*ast.BasicLit)
			if !ok || lit.Kind != token.STRING {
				continue
			}
			text, err := strconv.Unquote(lit.Value)
			if err != nil || !statementPattern.MatchString(text) {
				continue
			}
			if markerPattern.MatchString(firstLine(text)) {
				continue
			}
			name := "_"
			if i < len(spec.Names) {
				name = spec.Names[i].Name
			}
			found = append(found, violation{file: path, line: fset.Position(lit.Pos()).Line, name: name})
		}
		return true
	})
	return found, nil
}

func firstLine(s string) string {
	s = strings.TrimLeft(s, "\r\n\t ")
	line, _, _ := strings.Cut(s, "\n")
	return strings.TrimSpace(line)
}
