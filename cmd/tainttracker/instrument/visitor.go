package instrument

import (
	"fmt"
	"go/token"
	"strconv"

	"github.com/dave/dst"
	"github.com/dave/dst/dstutil"
)

// transformer rewrites one parsed file.
type transformer struct {
	file       *dst.File
	facadePath string

	// hoisted collects the package-level handle vars, one per
	// instrumented function, appended to the file after the transform.
	hoisted []dst.Decl
}

func newTransformer(file *dst.File, facadePath string) *transformer {
	return &transformer{file: file, facadePath: facadePath}
}

// apply instruments every function declaration with a body and wires
// the import and hoisted vars into the file.
func (t *transformer) apply() FileStats {
	var fi FileStats

	for _, decl := range t.file.Decls {
		fn, ok := decl.(*dst.FuncDecl)
		if !ok || fn.Body == nil {
			continue
		}

		varName := fmt.Sprintf("taintFn%d", fi.Functions)
		blocks := t.instrumentFunc(fn, varName)

		t.hoisted = append(t.hoisted, hoistedVar(varName, t.qualifiedName(fn)))
		fi.Functions++
		fi.Blocks += blocks
	}

	if fi.Functions > 0 {
		t.addImport()
		t.file.Decls = append(t.file.Decls, t.hoisted...)
	}
	return fi
}

// instrumentFunc inserts the entry/leave pair and the block-entry calls
// into one function body. Returns the number of blocks instrumented.
func (t *transformer) instrumentFunc(fn *dst.FuncDecl, varName string) int {
	// Block 0 is the function body itself; branch bodies get indices in
	// source order after it.
	nextBlock := 1

	dstutil.Apply(fn.Body, func(c *dstutil.Cursor) bool {
		switch n := c.Node().(type) {
		case *dst.FuncLit:
			// A closure body may run on another goroutine; recording
			// the enclosing function's blocks there would corrupt that
			// goroutine's stack.
			return false

		case *dst.IfStmt:
			prependStmts(&n.Body.List, enterBlockStmt(varName, nextBlock))
			nextBlock++
			if els, ok := n.Else.(*dst.BlockStmt); ok {
				prependStmts(&els.List, enterBlockStmt(varName, nextBlock))
				nextBlock++
			}
			// An else-if chain is an IfStmt in Else and is visited on
			// its own.

		case *dst.ForStmt:
			prependStmts(&n.Body.List, enterBlockStmt(varName, nextBlock))
			nextBlock++

		case *dst.RangeStmt:
			prependStmts(&n.Body.List, enterBlockStmt(varName, nextBlock))
			nextBlock++

		case *dst.CaseClause:
			prependStmts(&n.Body, enterBlockStmt(varName, nextBlock))
			nextBlock++

		case *dst.CommClause:
			prependStmts(&n.Body, enterBlockStmt(varName, nextBlock))
			nextBlock++
		}
		return true
	}, nil)

	prependStmts(&fn.Body.List,
		callStmt("EnterFunction", dst.NewIdent(varName)),
		deferStmt("LeaveFunction", dst.NewIdent(varName)),
		enterBlockStmt(varName, 0),
	)

	return nextBlock
}

// qualifiedName builds the process-wide function name recorded in the
// trace: "pkg.Func", or "pkg.Recv.Method" for methods.
func (t *transformer) qualifiedName(fn *dst.FuncDecl) string {
	pkg := t.file.Name.Name
	if recv := recvTypeName(fn.Recv); recv != "" {
		return pkg + "." + recv + "." + fn.Name.Name
	}
	return pkg + "." + fn.Name.Name
}

// recvTypeName extracts the receiver base type name, "" for plain
// functions.
func recvTypeName(recv *dst.FieldList) string {
	if recv == nil || len(recv.List) == 0 {
		return ""
	}
	typ := recv.List[0].Type
	if star, ok := typ.(*dst.StarExpr); ok {
		typ = star.X
	}
	switch x := typ.(type) {
	case *dst.Ident:
		return x.Name
	case *dst.IndexExpr: // generic receiver Foo[T]
		if id, ok := x.X.(*dst.Ident); ok {
			return id.Name
		}
	case *dst.IndexListExpr: // generic receiver Foo[T1, T2]
		if id, ok := x.X.(*dst.Ident); ok {
			return id.Name
		}
	}
	return ""
}

// addImport prepends an import of the facade under the fixed alias.
func (t *transformer) addImport() {
	spec := &dst.ImportSpec{
		Name: dst.NewIdent(FacadeAlias),
		Path: &dst.BasicLit{Kind: token.STRING, Value: strconv.Quote(t.facadePath)},
	}
	decl := &dst.GenDecl{
		Tok:   token.IMPORT,
		Specs: []dst.Spec{spec},
		Decs: dst.GenDeclDecorations{
			NodeDecs: dst.NodeDecs{Before: dst.NewLine, After: dst.EmptyLine},
		},
	}

	t.file.Decls = append([]dst.Decl{decl}, t.file.Decls...)
	t.file.Imports = append(t.file.Imports, spec)
}

// importsPath reports whether the file already imports path.
func importsPath(file *dst.File, path string) bool {
	quoted := strconv.Quote(path)
	for _, imp := range file.Imports {
		if imp.Path != nil && imp.Path.Value == quoted {
			return true
		}
	}
	return false
}

// hoistedVar builds `var name = taint.InternFunc("qualified")`.
func hoistedVar(name, qualified string) dst.Decl {
	return &dst.GenDecl{
		Tok: token.VAR,
		Specs: []dst.Spec{&dst.ValueSpec{
			Names: []*dst.Ident{dst.NewIdent(name)},
			Values: []dst.Expr{&dst.CallExpr{
				Fun: facadeSelector("InternFunc"),
				Args: []dst.Expr{&dst.BasicLit{
					Kind:  token.STRING,
					Value: strconv.Quote(qualified),
				}},
			}},
		}},
		Decs: dst.GenDeclDecorations{
			NodeDecs: dst.NodeDecs{Before: dst.EmptyLine},
		},
	}
}

// enterBlockStmt builds `taint.EnterBlock(varName, idx)`.
func enterBlockStmt(varName string, idx int) dst.Stmt {
	return callStmt("EnterBlock",
		dst.NewIdent(varName),
		&dst.BasicLit{Kind: token.INT, Value: strconv.Itoa(idx)},
	)
}

// callStmt builds `taint.fn(args...)` as a statement on its own line.
func callStmt(fn string, args ...dst.Expr) dst.Stmt {
	return &dst.ExprStmt{
		X: &dst.CallExpr{Fun: facadeSelector(fn), Args: args},
		Decs: dst.ExprStmtDecorations{
			NodeDecs: dst.NodeDecs{Before: dst.NewLine},
		},
	}
}

// deferStmt builds `defer taint.fn(args...)`.
func deferStmt(fn string, args ...dst.Expr) dst.Stmt {
	return &dst.DeferStmt{
		Call: &dst.CallExpr{Fun: facadeSelector(fn), Args: args},
		Decs: dst.DeferStmtDecorations{
			NodeDecs: dst.NodeDecs{Before: dst.NewLine},
		},
	}
}

func facadeSelector(fn string) dst.Expr {
	return &dst.SelectorExpr{
		X:   dst.NewIdent(FacadeAlias),
		Sel: dst.NewIdent(fn),
	}
}

// prependStmts inserts stmts at the front of list, keeping order.
func prependStmts(list *[]dst.Stmt, stmts ...dst.Stmt) {
	*list = append(stmts, *list...)
}
