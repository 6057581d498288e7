// Package mutation implements the pre-transpile AST walk that computes,
// per lexical scope, the set of names that must lower to a mutable
// binding and the set of names that are statically known to be
// string-typed. The transpiler's `let mut`, clone-insertion, and
// auto-borrow decisions all read from the result (spec.md §4.3/§4.7),
// grounded on the teacher's single-pass static-analysis walkers
// (core/ir visitors).
package mutation

import "github.com/paiml/ruchy/internal/ast"

// Info is the per-scope result of analyzing one function or top-level
// body: mutable_vars and string_vars from spec.md §4.3.
type Info struct {
	MutableVars map[string]bool
	StringVars  map[string]bool
}

func newInfo() *Info {
	return &Info{MutableVars: map[string]bool{}, StringVars: map[string]bool{}}
}

// returnTypes maps function name to its declared return type's base name,
// used for the call-graph-free "returns of a String-returning function are
// string-typed" rule.
type returnTypes map[string]string

// Analyze walks every item and nested function body in prog and returns one
// Info per function, keyed by that function's body expression; the
// top-level scope is stored under a nil key. Use For to resolve an *ast.Expr
// function body to its Info, and Top for the top-level scope.
func Analyze(prog *ast.Program) *Analysis {
	a := &Analysis{scopes: map[*ast.Expr]*Info{}, rt: returnTypes{}}
	a.collectReturnTypes(prog.Items)
	top := newInfo()
	a.scopes[nil] = top
	for _, it := range prog.Items {
		a.visitItem(it, top)
	}
	return a
}

// Analysis holds the full result: one Info keyed by the function body
// (*ast.Expr whose Kind is ast.Block) it describes.
type Analysis struct {
	scopes map[*ast.Expr]*Info
	rt     returnTypes
}

// Top returns the module-level scope's Info (names mutated/bound outside
// any function).
func (a *Analysis) Top() *Info { return a.scopes[nil] }

// For returns the Info computed for a function body, or an empty Info if
// body was never visited (e.g. a trait method with no implementation).
func (a *Analysis) For(body *ast.Expr) *Info {
	if info, ok := a.scopes[body]; ok {
		return info
	}
	return newInfo()
}

func (a *Analysis) collectReturnTypes(items []ast.Item) {
	for _, it := range items {
		switch v := it.(type) {
		case *ast.FunctionDecl:
			if v.ReturnType != nil {
				a.rt[v.Name] = ast.BaseTypeName(v.ReturnType)
			}
		case *ast.ImplDecl:
			for _, m := range v.Methods {
				if m.ReturnType != nil {
					a.rt[m.Name] = ast.BaseTypeName(m.ReturnType)
				}
			}
		case *ast.ClassDecl:
			for _, m := range v.Methods {
				if m.ReturnType != nil {
					a.rt[m.Name] = ast.BaseTypeName(m.ReturnType)
				}
			}
		case *ast.ModuleDecl:
			a.collectReturnTypes(v.Items)
		}
	}
}

func (a *Analysis) visitItem(it ast.Item, outer *Info) {
	switch v := it.(type) {
	case *ast.FunctionDecl:
		a.visitFunction(&v.FunctionLit, outer)
	case *ast.ImplDecl:
		for _, m := range v.Methods {
			a.visitFunction(&m.FunctionLit, outer)
		}
	case *ast.ClassDecl:
		for _, m := range v.Methods {
			a.visitFunction(&m.FunctionLit, outer)
		}
	case *ast.TraitDecl:
		for _, m := range v.Methods {
			if m.Body != nil {
				a.visitFunction(&m.FunctionLit, outer)
			}
		}
	case *ast.ModuleDecl:
		for _, sub := range v.Items {
			a.visitItem(sub, outer)
		}
	case *ast.ExportDecl:
		a.visitItem(v.Item, outer)
	case *ast.TopLevelExpr:
		a.walk(v.Expr, outer)
	}
}

func (a *Analysis) visitFunction(fn *ast.FunctionLit, outer *Info) {
	info := newInfo()
	for _, param := range fn.Params {
		for _, name := range ast.Names(param.Pattern) {
			if param.Type != nil && ast.BaseTypeName(param.Type) == "String" {
				info.StringVars[name] = true
			}
		}
	}
	a.scopes[fn.Body] = info
	a.walk(fn.Body, info)
	_ = outer
}

// walk records mutation-effective names and string-typed names reachable
// from e into info, and recurses into nested function literals as their
// own scope.
func (a *Analysis) walk(e *ast.Expr, info *Info) {
	if e == nil {
		return
	}
	switch k := e.Kind.(type) {
	case ast.Let:
		if k.IsMutable {
			info.MutableVars[k.Name] = true
		}
		if a.isStringTyped(k.Value, k.Type) {
			info.StringVars[k.Name] = true
		}
		a.walk(k.Value, info)
		a.walk(k.Body, info)
		a.walk(k.Else, info)
	case ast.LetPattern:
		a.walk(k.Value, info)
		a.walk(k.Body, info)
	case ast.Assign:
		a.markTargetMutable(k.Target, info)
		a.walk(k.Target, info)
		a.walk(k.Value, info)
	case ast.CompoundAssign:
		a.markTargetMutable(k.Target, info)
		a.walk(k.Target, info)
		a.walk(k.Value, info)
	case ast.IncDec:
		a.markTargetMutable(k.Target, info)
		a.walk(k.Target, info)
	case ast.Binary:
		a.walk(k.Left, info)
		a.walk(k.Right, info)
	case ast.Unary:
		a.walk(k.Expr, info)
	case ast.If:
		a.walk(k.Cond, info)
		a.walk(k.Then, info)
		a.walk(k.Else, info)
	case ast.IfLet:
		a.walk(k.Value, info)
		a.walk(k.Then, info)
		a.walk(k.Else, info)
	case ast.Match:
		a.walk(k.Expr, info)
		for _, arm := range k.Arms {
			a.walk(arm.Guard, info)
			a.walk(arm.Body, info)
		}
	case ast.While:
		a.walk(k.Cond, info)
		a.walk(k.Body, info)
	case ast.WhileLet:
		a.walk(k.Value, info)
		a.walk(k.Body, info)
	case ast.For:
		a.walk(k.Iter, info)
		a.walk(k.Body, info)
	case ast.Loop:
		a.walk(k.Body, info)
	case ast.Break:
		a.walk(k.Value, info)
	case ast.Return:
		a.walk(k.Value, info)
	case ast.Block:
		for _, sub := range k.Exprs {
			a.walk(sub, info)
		}
	case ast.ListLit:
		for _, el := range k.Elems {
			a.walk(el, info)
		}
	case ast.TupleLit:
		for _, el := range k.Elems {
			a.walk(el, info)
		}
	case ast.SetLit:
		for _, el := range k.Elems {
			a.walk(el, info)
		}
	case ast.ArrayInit:
		a.walk(k.Elem, info)
		a.walk(k.Count, info)
	case ast.StructLit:
		for _, f := range k.Fields {
			a.walk(f.Value, info)
		}
		a.walk(k.Base, info)
	case ast.TupleStructLit:
		for _, arg := range k.Args {
			a.walk(arg, info)
		}
	case ast.ObjectLit:
		for _, f := range k.Fields {
			a.walk(f.Value, info)
		}
	case ast.FieldAccess:
		a.walk(k.Receiver, info)
	case ast.IndexAccess:
		a.walk(k.Receiver, info)
		a.walk(k.Index, info)
	case ast.Slice:
		a.walk(k.Receiver, info)
		a.walk(k.Start, info)
		a.walk(k.End, info)
	case ast.Call:
		a.walk(k.Callee, info)
		for _, arg := range k.Args {
			a.walk(arg, info)
		}
	case ast.MethodCall:
		a.walk(k.Receiver, info)
		for _, arg := range k.Args {
			a.walk(arg, info)
		}
	case ast.FunctionLit:
		nested := newInfo()
		a.scopes[k.Body] = nested
		for _, param := range k.Params {
			for _, name := range ast.Names(param.Pattern) {
				if param.Type != nil && ast.BaseTypeName(param.Type) == "String" {
					nested.StringVars[name] = true
				}
			}
		}
		a.walk(k.Body, nested)
	case ast.Lambda:
		// Lambda bodies share the enclosing scope: captured mutable
		// locals must still lower to `let mut` at the point of capture.
		a.walk(k.Body, info)
	case ast.OkExpr:
		a.walk(k.Value, info)
	case ast.ErrExpr:
		a.walk(k.Value, info)
	case ast.SomeExpr:
		a.walk(k.Value, info)
	case ast.Try:
		a.walk(k.Expr, info)
	case ast.Throw:
		a.walk(k.Expr, info)
	case ast.TryCatch:
		a.walk(k.Body, info)
		a.walk(k.CatchBody, info)
	case ast.TypeCast:
		a.walk(k.Expr, info)
	case ast.Range:
		a.walk(k.Lo, info)
		a.walk(k.Hi, info)
	case ast.Spawn:
		a.walk(k.Expr, info)
	case ast.Await:
		a.walk(k.Expr, info)
	case ast.AsyncBlock:
		a.walk(k.Body, info)
	case ast.StringInterpolation:
		for _, part := range k.Parts {
			a.walk(part.Expr, info)
		}
	case ast.Macro:
		for _, arg := range k.Args {
			a.walk(arg, info)
		}
		for _, col := range k.DataFrame {
			a.walk(col.Name, info)
			a.walk(col.Data, info)
		}
	}
}

// markTargetMutable records the root identifier of an assignment/inc-dec
// target as mutation-effective, per spec.md §4.3's second bullet.
func (a *Analysis) markTargetMutable(target *ast.Expr, info *Info) {
	switch k := target.Kind.(type) {
	case ast.Identifier:
		info.MutableVars[k.Name] = true
	case ast.FieldAccess:
		a.markTargetMutable(k.Receiver, info)
	case ast.IndexAccess:
		a.markTargetMutable(k.Receiver, info)
	}
}

// isStringTyped implements spec.md §4.3's syntactic string inference: a
// string literal initializer, a `String::from(...)` call, an f-string, or
// a call to a function whose declared return type is `String`.
func (a *Analysis) isStringTyped(init *ast.Expr, declared *ast.TypeExpr) bool {
	if declared != nil && ast.BaseTypeName(declared) == "String" {
		return true
	}
	if init == nil {
		return false
	}
	switch k := init.Kind.(type) {
	case ast.StringLit:
		return true
	case ast.StringInterpolation:
		return true
	case ast.QualifiedName:
		return k.Module == "String" && k.Name == "from"
	case ast.Call:
		if id, ok := k.Callee.Kind.(ast.Identifier); ok {
			return a.rt[id.Name] == "String"
		}
		if q, ok := k.Callee.Kind.(ast.QualifiedName); ok {
			return q.Module == "String" && q.Name == "from"
		}
	}
	return false
}
