// Package ast defines the AST shape the reducer consumes (spec.md §6). The
// concrete surface-syntax parser that produces these values is an external
// collaborator out of this repository's scope; this package only fixes the
// contract at the boundary.
package ast

// Program is a sequence of declarations followed by a sequence of goals.
type Program struct {
	Declarations []Declaration
	Goals        []Goal
}

// Declaration is either a let-binding (function or value) or a namespace
// import.
type Declaration interface{ declaration() }

// Let binds Name to RHS. If Params is non-nil (including empty, for a
// zero-arg function), the declaration introduces a closure rather than an
// immediately-reduced value.
type Let struct {
	Name   string
	Params []string // nil for a plain value binding
	RHS    Expr
}

func (Let) declaration() {}

// Import brings a primitive namespace into scope for unqualified operator
// resolution (spec.md §4.3).
type Import struct {
	Namespace string
}

func (Import) declaration() {}

// Goal is an imperative request attached to an expression.
type Goal interface{ goal() }

// Print labels an expression's value for display.
type Print struct {
	Label string
	Expr  Expr
}

func (Print) goal() {}

// Save writes an expression's value to Path.
type Save struct {
	Path string
	Expr Expr
}

func (Save) goal() {}

// Expr is any reducible expression.
type Expr interface{ expr() }

// Number, String and Boolean are source literals; the reducer plans them as
// scalar constants.
type Number struct{ Value float64 }

func (Number) expr() {}

type String struct{ Value string }

func (String) expr() {}

type Boolean struct{ Value bool }

func (Boolean) expr() {}

// Identifier looks up a name in the current environment.
type Identifier struct{ Name string }

func (Identifier) expr() {}

// Qualified is a fully-qualified primitive reference (namespace.name) used
// as the callee of an App, bypassing import-order resolution.
type Qualified struct {
	Namespace string
	Name      string
}

func (Qualified) expr() {}

// App applies Callee (an Identifier/Qualified resolving to a primitive or
// closure) to Args, reduced left to right.
type App struct {
	Callee Expr
	Args   []Expr
}

func (App) expr() {}

// LetExpr is a local let-binding: `let Name = RHS in Body`.
type LetExpr struct {
	Name string
	RHS  Expr
	Body Expr
}

func (LetExpr) expr() {}

// For is a for-comprehension: `for Var in Iter do Body`.
type For struct {
	Var  string
	Iter Expr
	Body Expr
}

func (For) expr() {}
