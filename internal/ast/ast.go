// Package ast defines the pixel-expression abstract syntax tree.
//
// Per the project's design notes, nodes are a Go tagged union: one
// small struct per grammar production, consumed by callers via a type
// switch rather than an open Visitor interface.
package ast

// Expr is implemented by every AST node variant.
type Expr interface {
	exprNode()
}

// NumberLit is a float literal, e.g. `3.5`.
type NumberLit struct {
	Value float64
}

// Var is one of the per-pixel coordinates or the current-pixel sample:
// x, y, t, c, val.
type Var struct {
	Name string
}

// Uniform is a whole-image dimension constant: width, height, frames,
// channels. Uniform over every pixel, unlike Var.
type Uniform struct {
	Name string
}

// NamedConst is a named mathematical constant: e, pi.
type NamedConst struct {
	Name string
}

// Call covers the grammar's Funct0/Funct1/Funct2 productions: zero-,
// one-, and two-argument statistic references (mean, mean(k),
// covariance(u,v)), the unary math functions (sin, cos, ...), and
// atan2(a, b). Which behavior applies is resolved by name during IR
// lowering, not here.
type Call struct {
	Name string
	Args []Expr
}

// Unary is prefix negation: `-Term`.
type Unary struct {
	Operand Expr
}

// Binary covers Sum/Product/Factor/Condition: +, -, *, /, %, ^, and
// the six comparisons.
type Binary struct {
	Op    string
	Left  Expr
	Right Expr
}

// Sample is the `[u]` / `[u,v]` / `[u,v,w]` sampling syntax. Len(Args)
// is 1, 2, or 3.
type Sample struct {
	Args []Expr
}

// Ternary is `cond ? then : else`.
type Ternary struct {
	Cond Expr
	Then Expr
	Else Expr
}

func (*NumberLit) exprNode()  {}
func (*Var) exprNode()        {}
func (*Uniform) exprNode()    {}
func (*NamedConst) exprNode() {}
func (*Call) exprNode()       {}
func (*Unary) exprNode()      {}
func (*Binary) exprNode()     {}
func (*Sample) exprNode()     {}
func (*Ternary) exprNode()    {}

// varNames are the Var production's only valid identifiers.
var varNames = map[string]bool{"x": true, "y": true, "t": true, "c": true, "val": true}

// uniformNames are the Uniform production's only valid identifiers.
var uniformNames = map[string]bool{"width": true, "height": true, "frames": true, "channels": true}

// constNames are the Const production's only valid identifiers.
var constNames = map[string]bool{"e": true, "pi": true}

// funct0Names may be called with zero arguments (whole-image statistics).
var funct0Names = map[string]bool{
	"mean": true, "sum": true, "min": true, "max": true,
	"variance": true, "stddev": true, "skew": true, "kurtosis": true,
}

// funct1Names may be called with exactly one argument: either a
// per-channel statistic (mean(k)) or a unary math function.
var funct1Names = map[string]bool{
	"mean": true, "sum": true, "min": true, "max": true,
	"variance": true, "stddev": true, "skew": true, "kurtosis": true,
	"sin": true, "cos": true, "tan": true, "asin": true, "acos": true, "atan": true,
	"abs": true, "floor": true, "ceil": true, "round": true, "log": true, "exp": true,
}

// funct2Names take exactly two arguments.
var funct2Names = map[string]bool{"atan2": true, "covariance": true}

// IsStatName reports whether name refers to a whole-image/per-channel
// statistic rather than a math function or atan2/covariance.
func IsStatName(name string) bool {
	switch name {
	case "mean", "sum", "min", "max", "variance", "stddev", "skew", "kurtosis", "covariance":
		return true
	default:
		return false
	}
}
