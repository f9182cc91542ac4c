// Package interp is a reference tree-walking evaluator over the AST,
// used by tests to cross-check the compiled x86-64 routine's output
// pixel by pixel (spec.md §8's first testable property). Every value
// is a float64; booleans are 0/1, matching the coercion rules C3
// applies at build time.
package interp

import (
	"math"

	"pixc/internal/ast"
	"pixc/internal/cerr"
	"pixc/internal/image"
	"pixc/internal/stats"
)

// Interp evaluates one expression against one image, at an
// explicitly-given pixel coordinate per call.
type Interp struct {
	img    *image.Buffer
	oracle *stats.Oracle
}

// New returns an Interp bound to img, computing its own statistics
// oracle exactly as compiler.CompileEval does.
func New(img *image.Buffer) *Interp {
	return &Interp{img: img, oracle: stats.New(img)}
}

// Eval walks expr at pixel (x, y, t, c).
func (in *Interp) Eval(expr ast.Expr, x, y, t, c int) (float64, error) {
	switch n := expr.(type) {
	case *ast.NumberLit:
		return n.Value, nil

	case *ast.Var:
		switch n.Name {
		case "x":
			return float64(x), nil
		case "y":
			return float64(y), nil
		case "t":
			return float64(t), nil
		case "c":
			return float64(c), nil
		case "val":
			return float64(in.img.At(x, y, t, c)), nil
		default:
			return 0, cerr.New(cerr.TypeError, "unknown variable %q", n.Name)
		}

	case *ast.Uniform:
		switch n.Name {
		case "width":
			return float64(in.img.Width), nil
		case "height":
			return float64(in.img.Height), nil
		case "frames":
			return float64(in.img.Frames), nil
		case "channels":
			return float64(in.img.Channels), nil
		default:
			return 0, cerr.New(cerr.TypeError, "unknown uniform %q", n.Name)
		}

	case *ast.NamedConst:
		switch n.Name {
		case "e":
			return math.E, nil
		case "pi":
			return math.Pi, nil
		default:
			return 0, cerr.New(cerr.TypeError, "unknown constant %q", n.Name)
		}

	case *ast.Unary:
		v, err := in.Eval(n.Operand, x, y, t, c)
		if err != nil {
			return 0, err
		}
		return -v, nil

	case *ast.Binary:
		return in.evalBinary(n, x, y, t, c)

	case *ast.Call:
		return in.evalCall(n, x, y, t, c)

	case *ast.Sample:
		return in.evalSample(n, x, y, t, c)

	case *ast.Ternary:
		cond, err := in.Eval(n.Cond, x, y, t, c)
		if err != nil {
			return 0, err
		}
		if cond != 0 {
			return in.Eval(n.Then, x, y, t, c)
		}
		return in.Eval(n.Else, x, y, t, c)

	default:
		return 0, cerr.New(cerr.TypeError, "unhandled AST node %T", expr)
	}
}

func (in *Interp) evalBinary(n *ast.Binary, x, y, t, c int) (float64, error) {
	l, err := in.Eval(n.Left, x, y, t, c)
	if err != nil {
		return 0, err
	}
	r, err := in.Eval(n.Right, x, y, t, c)
	if err != nil {
		return 0, err
	}
	switch n.Op {
	case "+":
		return l + r, nil
	case "-":
		return l - r, nil
	case "*":
		return l * r, nil
	case "/":
		return l / r, nil
	case "%":
		return math.Mod(l, r), nil
	case "^":
		return math.Pow(l, r), nil
	case "<":
		return boolF(l < r), nil
	case "<=":
		return boolF(l <= r), nil
	case ">":
		return boolF(l > r), nil
	case ">=":
		return boolF(l >= r), nil
	case "==":
		return boolF(l == r), nil
	case "!=":
		return boolF(l != r), nil
	default:
		return 0, cerr.New(cerr.TypeError, "unknown binary operator %q", n.Op)
	}
}

func boolF(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

var unaryMath = map[string]func(float64) float64{
	"sin": math.Sin, "cos": math.Cos, "tan": math.Tan,
	"asin": math.Asin, "acos": math.Acos, "atan": math.Atan,
	"abs": math.Abs, "floor": math.Floor, "ceil": math.Ceil, "round": math.Round,
	"log": math.Log, "exp": math.Exp,
}

func (in *Interp) evalCall(n *ast.Call, x, y, t, c int) (float64, error) {
	if ast.IsStatName(n.Name) {
		return in.evalStat(n, x, y, t, c)
	}
	switch len(n.Args) {
	case 1:
		fn, ok := unaryMath[n.Name]
		if !ok {
			return 0, cerr.New(cerr.TypeError, "unknown function %q", n.Name)
		}
		v, err := in.Eval(n.Args[0], x, y, t, c)
		if err != nil {
			return 0, err
		}
		return fn(v), nil
	case 2:
		if n.Name != "atan2" {
			return 0, cerr.New(cerr.TypeError, "unknown function %q", n.Name)
		}
		yv, err := in.Eval(n.Args[0], x, y, t, c)
		if err != nil {
			return 0, err
		}
		xv, err := in.Eval(n.Args[1], x, y, t, c)
		if err != nil {
			return 0, err
		}
		return math.Atan2(yv, xv), nil
	default:
		return 0, cerr.New(cerr.TypeError, "function %q takes 1 or 2 arguments", n.Name)
	}
}

func (in *Interp) evalStat(n *ast.Call, x, y, t, c int) (float64, error) {
	if n.Name == "covariance" {
		if len(n.Args) != 2 {
			return 0, cerr.New(cerr.TypeError, "covariance takes exactly 2 channel arguments")
		}
		u, err := in.evalChannel(n.Args[0], x, y, t, c)
		if err != nil {
			return 0, err
		}
		v, err := in.evalChannel(n.Args[1], x, y, t, c)
		if err != nil {
			return 0, err
		}
		return in.oracle.Covariance(u, v)
	}
	switch len(n.Args) {
	case 0:
		return in.oracle.Query(n.Name, nil)
	case 1:
		ch, err := in.evalChannel(n.Args[0], x, y, t, c)
		if err != nil {
			return 0, err
		}
		return in.oracle.Query(n.Name, &ch)
	default:
		return 0, cerr.New(cerr.TypeError, "statistic %q takes 0 or 1 arguments", n.Name)
	}
}

func (in *Interp) evalChannel(e ast.Expr, x, y, t, c int) (int, error) {
	v, err := in.Eval(e, x, y, t, c)
	if err != nil {
		return 0, err
	}
	return int(v), nil
}

// evalSample handles the `[u]` / `[u,v]` / `[u,v,w]` grammar: a single
// argument reads the current pixel at another channel; 2-D/3-D
// resampling has no reference implementation here (spec.md §6's
// resampling collaborator is out of scope), matching C3's fatal
// UnsupportedOp for the same construct.
func (in *Interp) evalSample(n *ast.Sample, x, y, t, c int) (float64, error) {
	if len(n.Args) != 1 {
		return 0, cerr.New(cerr.UnsupportedOp, "2-D/3-D resampling has no reference implementation")
	}
	ch, err := in.evalChannel(n.Args[0], x, y, t, c)
	if err != nil {
		return 0, err
	}
	return float64(in.img.At(x, y, t, ch)), nil
}
