package structure

import (
	"context"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"

	"intentguard/pkg/protocol"
)

// GoParser fingerprints Go source with go/parser.
type GoParser struct{}

// Fingerprint counts every AST node and every function declaration or
// function literal. Source with syntax errors is rejected.
func (GoParser) Fingerprint(_ context.Context, _ Language, src []byte) (protocol.Fingerprint, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "src.go", src, parser.SkipObjectResolution)
	if err != nil {
		return protocol.Fingerprint{}, fmt.Errorf("structure: parse error: %w", err)
	}

	var fp protocol.Fingerprint
	ast.Inspect(file, func(n ast.Node) bool {
		if n == nil {
			return false
		}
		fp.TotalNodes++
		switch n.(type) {
		case *ast.FuncDecl, *ast.FuncLit:
			fp.FunctionCount++
		}
		return true
	})
	return fp, nil
}
