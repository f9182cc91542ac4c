package ir

import (
	"pixc/internal/ast"
	"pixc/internal/cerr"
	"pixc/internal/image"
	"pixc/internal/stats"
)

// Builder lowers an AST into the IR arena, consulting the statistics
// oracle for statistic/covariance leaves and the image's declared
// shape/strides for addressing.
type Builder struct {
	arena  *Arena
	img    *image.Buffer
	oracle *stats.Oracle

	varX, varY, varT, varC ID
}

// Lower runs C3: AST -> hash-consed DAG, consulting the oracle (C2)
// for statistic leaves. Returns the arena and the single (pre-channel-
// specialization) root.
func Lower(expr ast.Expr, img *image.Buffer, oracle *stats.Oracle) (*Arena, ID, error) {
	a := NewArena()
	b := &Builder{
		arena: a, img: img, oracle: oracle,
		varX: a.VarX(), varY: a.VarY(), varT: a.VarT(), varC: a.VarC(),
	}
	root, err := b.lower(expr)
	if err != nil {
		return nil, 0, err
	}
	return a, root, nil
}

func (b *Builder) lower(e ast.Expr) (ID, error) {
	a := b.arena
	switch n := e.(type) {
	case *ast.NumberLit:
		return a.ConstFloat(n.Value), nil

	case *ast.Var:
		switch n.Name {
		case "x":
			return b.varX, nil
		case "y":
			return b.varY, nil
		case "t":
			return b.varT, nil
		case "c":
			return b.varC, nil
		case "val":
			return b.load(b.varC), nil
		default:
			return 0, cerr.New(cerr.TypeError, "unknown variable %q", n.Name)
		}

	case *ast.Uniform:
		switch n.Name {
		case "width":
			return a.ConstInt(int64(b.img.Width)), nil
		case "height":
			return a.ConstInt(int64(b.img.Height)), nil
		case "frames":
			return a.ConstInt(int64(b.img.Frames)), nil
		case "channels":
			return a.ConstInt(int64(b.img.Channels)), nil
		default:
			return 0, cerr.New(cerr.TypeError, "unknown uniform %q", n.Name)
		}

	case *ast.NamedConst:
		switch n.Name {
		case "e":
			return a.ConstFloat(2.718281828459045), nil
		case "pi":
			return a.ConstFloat(3.141592653589793), nil
		default:
			return 0, cerr.New(cerr.TypeError, "unknown constant %q", n.Name)
		}

	case *ast.Unary:
		operand, err := b.lower(n.Operand)
		if err != nil {
			return 0, err
		}
		return a.Negate(operand)

	case *ast.Binary:
		return b.lowerBinary(n)

	case *ast.Call:
		return b.lowerCall(n)

	case *ast.Sample:
		return b.lowerSample(n)

	case *ast.Ternary:
		cond, err := b.lower(n.Cond)
		if err != nil {
			return 0, err
		}
		then, err := b.lower(n.Then)
		if err != nil {
			return 0, err
		}
		els, err := b.lower(n.Else)
		if err != nil {
			return 0, err
		}
		then, els, _ = a.promote(then, els)
		return a.Ternary(cond, then, els), nil

	default:
		return 0, cerr.New(cerr.TypeError, "unhandled AST node %T", e)
	}
}

var binaryArith = map[string]Opcode{
	"+": OpPlus, "-": OpMinus, "*": OpTimes, "/": OpDivide, "%": OpMod, "^": OpPower,
}

var binaryCompare = map[string]Opcode{
	"<": OpLT, "<=": OpLTE, ">": OpGT, ">=": OpGTE, "==": OpEQ, "!=": OpNEQ,
}

func (b *Builder) lowerBinary(n *ast.Binary) (ID, error) {
	left, err := b.lower(n.Left)
	if err != nil {
		return 0, err
	}
	right, err := b.lower(n.Right)
	if err != nil {
		return 0, err
	}
	if op, ok := binaryArith[n.Op]; ok {
		return b.arena.Arith(op, left, right)
	}
	if op, ok := binaryCompare[n.Op]; ok {
		return b.arena.Compare(op, left, right), nil
	}
	return 0, cerr.New(cerr.TypeError, "unknown binary operator %q", n.Op)
}

var unaryMath = map[string]Opcode{
	"sin": OpSin, "cos": OpCos, "tan": OpTan,
	"asin": OpASin, "acos": OpACos, "atan": OpATan,
	"abs": OpAbs, "floor": OpFloor, "ceil": OpCeil, "round": OpRound,
	"log": OpLog, "exp": OpExp,
}

func (b *Builder) lowerCall(n *ast.Call) (ID, error) {
	a := b.arena

	if ast.IsStatName(n.Name) {
		return b.lowerStat(n)
	}

	switch len(n.Args) {
	case 1:
		op, ok := unaryMath[n.Name]
		if !ok {
			return 0, cerr.New(cerr.TypeError, "unknown function %q", n.Name)
		}
		arg, err := b.lower(n.Args[0])
		if err != nil {
			return 0, err
		}
		return a.Unary(op, arg), nil

	case 2:
		if n.Name != "atan2" {
			return 0, cerr.New(cerr.TypeError, "unknown function %q", n.Name)
		}
		y, err := b.lower(n.Args[0])
		if err != nil {
			return 0, err
		}
		x, err := b.lower(n.Args[1])
		if err != nil {
			return 0, err
		}
		return a.ATan2(y, x), nil

	default:
		return 0, cerr.New(cerr.TypeError, "function %q takes 1 or 2 arguments", n.Name)
	}
}

// lowerStat resolves a statistic/covariance call against the
// statistics oracle. The channel argument(s), if any, must fold to a
// compile-time integer constant.
func (b *Builder) lowerStat(n *ast.Call) (ID, error) {
	a := b.arena
	if n.Name == "covariance" {
		if len(n.Args) != 2 {
			return 0, cerr.New(cerr.TypeError, "covariance takes exactly 2 channel arguments")
		}
		u, err := b.literalChannel(n.Args[0])
		if err != nil {
			return 0, err
		}
		v, err := b.literalChannel(n.Args[1])
		if err != nil {
			return 0, err
		}
		val, err := b.oracle.Covariance(u, v)
		if err != nil {
			return 0, err
		}
		return a.ConstFloat(val), nil
	}

	switch len(n.Args) {
	case 0:
		val, err := b.oracle.Query(n.Name, nil)
		if err != nil {
			return 0, err
		}
		return a.ConstFloat(val), nil
	case 1:
		ch, err := b.literalChannel(n.Args[0])
		if err != nil {
			return 0, err
		}
		val, err := b.oracle.Query(n.Name, &ch)
		if err != nil {
			return 0, err
		}
		return a.ConstFloat(val), nil
	default:
		return 0, cerr.New(cerr.TypeError, "statistic %q takes 0 or 1 arguments", n.Name)
	}
}

// literalChannel lowers e and requires the result to be a constant
// integer channel index; the oracle has no notion of a per-pixel
// channel selector.
func (b *Builder) literalChannel(e ast.Expr) (int, error) {
	id, err := b.lower(e)
	if err != nil {
		return 0, err
	}
	n := b.arena.Node(id)
	if n.Op != OpConst {
		return 0, cerr.New(cerr.TypeError, "channel index must be a compile-time constant")
	}
	if n.Type == TFloat {
		return int(n.FVal), nil
	}
	return int(n.IVal), nil
}

// lowerSample handles the sampling grammar: one argument ("this pixel
// at channel u") lowers to a memory Load; two or three arguments are
// 2-D/3-D resampling, which has no IR opcode (spec.md §6 places the
// resampling collaborator out of scope) and is a fatal UnsupportedOp.
func (b *Builder) lowerSample(n *ast.Sample) (ID, error) {
	if len(n.Args) != 1 {
		return 0, cerr.New(cerr.UnsupportedOp, "%d-D resampling has no core IR opcode; it is an out-of-scope pixel-buffer collaborator", len(n.Args))
	}
	ch, err := b.lower(n.Args[0])
	if err != nil {
		return 0, err
	}
	return b.load(ch), nil
}

// load builds the element address for (x, y, t, channel) and issues a
// four-lane Load from it.
func (b *Builder) load(channel ID) ID {
	a := b.arena
	addr := b.scale(b.varX, b.img.XStride)
	addr = b.addTerm(addr, b.varY, b.img.YStride)
	addr = b.addTerm(addr, b.varT, b.img.TStride)
	addr = b.addTerm(addr, channel, b.img.CStride)
	return a.Load(addr)
}

func (b *Builder) scale(v ID, stride int) ID {
	if stride == 1 {
		return v
	}
	return b.arena.timesImm(v, int64(stride))
}

func (b *Builder) addTerm(acc, v ID, stride int) ID {
	sum, err := b.arena.Arith(OpPlus, acc, b.scale(v, stride))
	if err != nil {
		// Int addition never fails to fold/build.
		panic(err)
	}
	return sum
}
