package ir

import (
	"math"
	"sort"

	"pixc/internal/cerr"
)

// Arena owns every IR node created during one compilation. Nodes are
// never freed individually; the arena is cleared wholesale before each
// compilation (spec.md §5's single-arena lifecycle).
type Arena struct {
	nodes []Node

	singles map[singleKey]ID
}

type singleKey struct {
	op   Opcode
	typ  Type
	ival int64
	fval float64
}

// NewArena returns a cleared arena, ready for one compilation.
func NewArena() *Arena {
	return &Arena{singles: make(map[singleKey]ID)}
}

func (a *Arena) Node(id ID) *Node { return &a.nodes[id] }

func (a *Arena) newNode(n Node) ID {
	n.Reg = -1
	n.Order = -1
	id := ID(len(a.nodes))
	a.nodes = append(a.nodes, n)
	for _, in := range n.Inputs {
		a.nodes[in].Outputs = append(a.nodes[in].Outputs, id)
	}
	return id
}

// intern performs the hash-consing described in spec.md §4.3: before
// creating a new node, scan the primary input's Outputs for a
// structural match; reuse it if found.
func (a *Arena) intern(op Opcode, typ Type, inputs []ID, ival int64, fval float64, deps Deps) ID {
	if len(inputs) == 0 {
		key := singleKey{op, typ, ival, fval}
		if id, ok := a.singles[key]; ok {
			return id
		}
		id := a.newNode(Node{Op: op, Type: typ, IVal: ival, FVal: fval, Deps: deps, Level: levelOf(deps)})
		a.singles[key] = id
		return id
	}

	primary := inputs[0]
	for _, cand := range a.nodes[primary].Outputs {
		cn := &a.nodes[cand]
		if cn.Op == op && cn.Type == typ && cn.IVal == ival && cn.FVal == fval && sameInputs(cn.Inputs, inputs) {
			return cand
		}
	}
	return a.newNode(Node{Op: op, Type: typ, Inputs: append([]ID(nil), inputs...), IVal: ival, FVal: fval, Deps: deps, Level: levelOf(deps)})
}

func sameInputs(a, b []ID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func depsOf(a *Arena, ids ...ID) Deps {
	var d Deps
	for _, id := range ids {
		d |= a.nodes[id].Deps
	}
	return d
}

// --- nullary leaves ---

func (a *Arena) ConstFloat(v float64) ID {
	return a.intern(OpConst, TFloat, nil, 0, v, 0)
}

func (a *Arena) ConstInt(v int64) ID {
	return a.intern(OpConst, TInt, nil, v, 0, 0)
}

func (a *Arena) ConstBool(b bool) ID {
	v := int64(0)
	if b {
		v = 1
	}
	return a.intern(OpConst, TBool, nil, v, 0, 0)
}

func (a *Arena) VarX() ID { return a.intern(OpVarX, TInt, nil, 0, 0, DepX) }
func (a *Arena) VarY() ID { return a.intern(OpVarY, TInt, nil, 0, 0, DepY) }
func (a *Arena) VarT() ID { return a.intern(OpVarT, TInt, nil, 0, 0, DepT) }
func (a *Arena) VarC() ID { return a.intern(OpVarC, TInt, nil, 0, 0, DepC) }

// --- helpers on nodes ---

func (a *Arena) isConst(id ID) bool { return a.nodes[id].Op == OpConst }

func (a *Arena) numeric(id ID) float64 {
	n := &a.nodes[id]
	if n.Type == TFloat {
		return n.FVal
	}
	return float64(n.IVal)
}

// --- coercion ---

// ToFloat coerces an Int or Bool node to Float.
func (a *Arena) ToFloat(id ID) ID {
	n := &a.nodes[id]
	if n.Type == TFloat {
		return id
	}
	if a.isConst(id) {
		return a.ConstFloat(float64(n.IVal))
	}
	return a.intern(OpIntToFloat, TFloat, []ID{id}, 0, 0, n.Deps)
}

// toInt coerces a Float node to Int (explicit truncation), used only
// by FloatToInt's declared-but-unreachable opcode (see DESIGN.md).
func (a *Arena) toInt(id ID) ID {
	n := &a.nodes[id]
	if n.Type == TInt {
		return id
	}
	if a.isConst(id) {
		return a.ConstInt(int64(n.FVal))
	}
	return a.intern(OpFloatToInt, TInt, []ID{id}, 0, 0, n.Deps)
}

// toBool coerces a numeric node to Bool via NEQ(x, 0).
func (a *Arena) toBool(id ID) ID {
	n := &a.nodes[id]
	if n.Type == TBool {
		return id
	}
	zero := a.ConstFloat(0)
	if n.Type == TInt {
		zero = a.ConstInt(0)
	}
	return a.Compare(OpNEQ, id, zero)
}

// toNumeric coerces a Bool node to Int via And(x, 1).
func (a *Arena) toNumeric(id ID) ID {
	n := &a.nodes[id]
	if n.Type != TBool {
		return id
	}
	one := a.ConstInt(1)
	return a.And(id, one)
}

// promote returns the common arithmetic type of a, b (Float if either
// is Float, else Int) and the coerced operand ids.
func (a *Arena) promote(x, y ID) (ID, ID, Type) {
	tx, ty := a.nodes[x].Type, a.nodes[y].Type
	if tx == TBool {
		x = a.toNumeric(x)
		tx = a.nodes[x].Type
	}
	if ty == TBool {
		y = a.toNumeric(y)
		ty = a.nodes[y].Type
	}
	if tx == TFloat || ty == TFloat {
		return a.ToFloat(x), a.ToFloat(y), TFloat
	}
	return x, y, TInt
}

// --- arithmetic ---

// Arith builds Plus/Minus/Times/Divide/Mod/Power with the coercion,
// constant folding and algebraic rewrite rules of spec.md §4.3.
func (a *Arena) Arith(op Opcode, x, y ID) (ID, error) {
	x, y, typ := a.promote(x, y)

	if a.isConst(x) && a.isConst(y) {
		v, err := a.foldArith(op, typ, x, y)
		if err == nil {
			return v, nil
		}
	}

	// Divide(x, k) -> Times(x, 1/k) for constant k.
	if op == OpDivide && typ == TFloat && a.isConst(y) {
		inv := a.ConstFloat(1.0 / a.numeric(y))
		return a.Arith(OpTimes, x, inv)
	}

	// Integer Times with a constant operand -> TimesImm.
	if op == OpTimes && typ == TInt {
		if a.isConst(y) {
			return a.timesImm(x, a.nodes[y].IVal), nil
		}
		if a.isConst(x) {
			return a.timesImm(y, a.nodes[x].IVal), nil
		}
	}

	if op == OpPlus || op == OpMinus {
		return a.buildSum(op, x, y, typ), nil
	}

	if op == OpTimes {
		if rewritten, ok, err := a.rewriteDistribute(x, y, typ); ok {
			return rewritten, err
		}
		if rewritten, ok := a.rewriteOuterProduct(op, x, y, typ); ok {
			return rewritten, nil
		}
	}

	deps := depsOf(a, x, y)
	return a.intern(op, typ, []ID{x, y}, 0, 0, deps), nil
}

// rewriteDistribute implements `(x + a) * b -> x*b + a*b` (and the
// Minus variant) when both a and b are outer-level relative to x.
// buildSum's canonical ordering always places the outer (lower-level)
// term at Inputs[0] and the inner (higher-level) term at Inputs[1]; the
// rewrite only pays for itself when those levels actually differ.
func (a *Arena) rewriteDistribute(x, y ID, typ Type) (ID, bool, error) {
	xn := &a.nodes[x]
	sumOp := xn.Op
	if (sumOp == OpPlus || sumOp == OpMinus) && a.nodes[xn.Inputs[0]].Level < a.nodes[xn.Inputs[1]].Level &&
		a.nodes[y].Level < a.nodes[xn.Inputs[1]].Level {
		outerA, inner := xn.Inputs[0], xn.Inputs[1]
		left, err := a.Arith(OpTimes, inner, y)
		if err != nil {
			return 0, true, err
		}
		right, err := a.Arith(OpTimes, outerA, y)
		if err != nil {
			return 0, true, err
		}
		result, err := a.Arith(sumOp, left, right)
		return result, true, err
	}
	return 0, false, nil
}

func (a *Arena) foldArith(op Opcode, typ Type, x, y ID) (ID, error) {
	switch typ {
	case TFloat:
		fx, fy := a.numeric(x), a.numeric(y)
		var r float64
		switch op {
		case OpPlus:
			r = fx + fy
		case OpMinus:
			r = fx - fy
		case OpTimes:
			r = fx * fy
		case OpDivide:
			r = fx / fy
		case OpMod:
			r = math.Mod(fx, fy)
		case OpPower:
			r = math.Pow(fx, fy)
		default:
			return 0, cerr.New(cerr.TypeError, "not foldable")
		}
		return a.ConstFloat(r), nil
	default: // TInt
		ix, iy := a.nodes[x].IVal, a.nodes[y].IVal
		var r int64
		switch op {
		case OpPlus:
			r = ix + iy
		case OpMinus:
			r = ix - iy
		case OpTimes:
			r = ix * iy
		case OpDivide:
			if iy == 0 {
				return 0, cerr.New(cerr.TypeError, "not foldable")
			}
			r = ix / iy
		case OpMod:
			if iy == 0 {
				return 0, cerr.New(cerr.TypeError, "not foldable")
			}
			r = ix % iy
		case OpPower:
			r = int64(math.Pow(float64(ix), float64(iy)))
		default:
			return 0, cerr.New(cerr.TypeError, "not foldable")
		}
		return a.ConstInt(r), nil
	}
}

// rewriteOuterProduct implements `(x*a)*b -> x*(a*b)`: when multiplying
// a Times node by b, and b is strictly more loop-invariant than the
// Times node's higher-level (inner) operand x, regroup so the two
// outer operands a and b combine first and only x stays tied to the
// per-pixel multiply.
func (a *Arena) rewriteOuterProduct(op Opcode, x, y ID, typ Type) (ID, bool) {
	if op != OpTimes {
		return 0, false
	}
	xn := &a.nodes[x]
	if xn.Op != OpTimes {
		return 0, false
	}
	in0, in1 := xn.Inputs[0], xn.Inputs[1]
	inner, outerA := in0, in1
	if a.nodes[in1].Level > a.nodes[in0].Level {
		inner, outerA = in1, in0
	}
	if a.nodes[y].Level < a.nodes[inner].Level {
		combined, err := a.Arith(OpTimes, outerA, y)
		if err == nil {
			deps := depsOf(a, inner, combined)
			return a.intern(OpTimes, typ, []ID{inner, combined}, 0, 0, deps), true
		}
	}
	return 0, false
}

// sumTerm is a flattened signed operand of a Plus/Minus chain.
type sumTerm struct {
	id   ID
	sign int
}

// buildSum implements spec.md §4.3's summation rebalancing: flatten the
// chain, fold constant terms together, sort the remaining terms by
// ascending level, and rebuild so the deepest-level term is the
// outermost (last-combined, hoistable) addition.
func (a *Arena) buildSum(op Opcode, x, y ID, typ Type) ID {
	sign1 := 1
	if op == OpMinus {
		sign1 = -1
	}
	terms := append(a.flattenSum(x, 1), a.flattenSum(y, sign1)...)

	var constTerm *sumTerm
	var varTerms []sumTerm
	for _, t := range terms {
		if a.isConst(t.id) {
			v := a.numeric(t.id) * float64(t.sign)
			if constTerm != nil {
				v += a.numeric(constTerm.id)
			}
			ct := sumTerm{id: a.constOfType(typ, v), sign: 1}
			constTerm = &ct
		} else {
			varTerms = append(varTerms, t)
		}
	}

	sort.SliceStable(varTerms, func(i, j int) bool {
		return a.nodes[varTerms[i].id].Level < a.nodes[varTerms[j].id].Level
	})

	var ordered []sumTerm
	if typ == TFloat {
		if constTerm != nil {
			ordered = append(ordered, *constTerm)
		}
		ordered = append(ordered, varTerms...)
	} else {
		ordered = append(ordered, varTerms...)
		if constTerm != nil {
			ordered = append(ordered, *constTerm)
		}
	}

	if len(ordered) == 0 {
		return a.constOfType(typ, 0)
	}

	acc := ordered[0].id
	if ordered[0].sign < 0 {
		acc = a.rawNegate(acc, typ)
	}
	for _, t := range ordered[1:] {
		// A trailing integer constant term fuses into PlusImm rather
		// than a generic Plus/Minus, mirroring Times's TimesImm fusion
		// above.
		if typ == TInt && t.sign > 0 && a.isConst(t.id) {
			acc = a.plusImm(acc, a.nodes[t.id].IVal)
			continue
		}
		if t.sign > 0 {
			acc = a.rawCombine(OpPlus, acc, t.id, typ)
		} else {
			acc = a.rawCombine(OpMinus, acc, t.id, typ)
		}
	}
	return acc
}

// flattenSum walks a Plus/Minus chain into signed leaf terms.
func (a *Arena) flattenSum(id ID, sign int) []sumTerm {
	n := &a.nodes[id]
	switch n.Op {
	case OpPlus:
		return append(a.flattenSum(n.Inputs[0], sign), a.flattenSum(n.Inputs[1], sign)...)
	case OpMinus:
		return append(a.flattenSum(n.Inputs[0], sign), a.flattenSum(n.Inputs[1], -sign)...)
	default:
		return []sumTerm{{id: id, sign: sign}}
	}
}

func (a *Arena) constOfType(typ Type, v float64) ID {
	if typ == TFloat {
		return a.ConstFloat(v)
	}
	return a.ConstInt(int64(v))
}

// rawCombine builds a single Plus/Minus node without re-entering
// rebalancing, used by buildSum to assemble its canonical result.
func (a *Arena) rawCombine(op Opcode, x, y ID, typ Type) ID {
	if a.isConst(x) && a.isConst(y) {
		if v, err := a.foldArith(op, typ, x, y); err == nil {
			return v
		}
	}
	deps := depsOf(a, x, y)
	return a.intern(op, typ, []ID{x, y}, 0, 0, deps)
}

func (a *Arena) rawNegate(x ID, typ Type) ID {
	zero := a.constOfType(typ, 0)
	return a.rawCombine(OpMinus, zero, x, typ)
}

func (a *Arena) timesImm(x ID, k int64) ID {
	n := &a.nodes[x]
	return a.intern(OpTimesImm, TInt, []ID{x}, k, 0, n.Deps)
}

func (a *Arena) plusImm(x ID, k int64) ID {
	n := &a.nodes[x]
	return a.intern(OpPlusImm, n.Type, []ID{x}, k, 0, n.Deps)
}

// --- comparisons ---

func (a *Arena) Compare(op Opcode, x, y ID) ID {
	x, y, _ = a.promote(x, y)
	if a.isConst(x) && a.isConst(y) {
		return a.ConstBool(compareConst(op, a.numeric(x), a.numeric(y)))
	}
	deps := depsOf(a, x, y)
	return a.intern(op, TBool, []ID{x, y}, 0, 0, deps)
}

func compareConst(op Opcode, x, y float64) bool {
	switch op {
	case OpLT:
		return x < y
	case OpGT:
		return x > y
	case OpLTE:
		return x <= y
	case OpGTE:
		return x >= y
	case OpEQ:
		return x == y
	case OpNEQ:
		return x != y
	}
	return false
}

// --- masks: And/Or/Nand, the branch-free ternary building blocks ---

// And coerces a to Bool and yields b where a is true, zero-of-type(b)
// otherwise. Output type is type(b).
func (a *Arena) And(x, y ID) ID {
	x = a.toBool(x)
	if a.isConst(x) {
		if a.nodes[x].IVal != 0 {
			return y
		}
		return a.zeroOfType(a.nodes[y].Type)
	}
	deps := depsOf(a, x, y)
	return a.intern(OpAnd, a.nodes[y].Type, []ID{x, y}, 0, 0, deps)
}

// Nand yields b where cond is false, zero otherwise.
func (a *Arena) Nand(cond, y ID) ID {
	cond = a.toBool(cond)
	deps := depsOf(a, cond, y)
	return a.intern(OpNand, a.nodes[y].Type, []ID{cond, y}, 0, 0, deps)
}

// Or combines two already-masked values into the branch-free ternary.
func (a *Arena) Or(x, y ID) ID {
	deps := depsOf(a, x, y)
	return a.intern(OpOr, a.nodes[y].Type, []ID{x, y}, 0, 0, deps)
}

func (a *Arena) zeroOfType(t Type) ID {
	switch t {
	case TFloat:
		return a.ConstFloat(0)
	case TBool:
		return a.ConstBool(false)
	default:
		return a.ConstInt(0)
	}
}

// Ternary builds cond ? then : else as Or(And(cond,then), Nand(cond,else)).
func (a *Arena) Ternary(cond, then, els ID) ID {
	return a.Or(a.And(cond, then), a.Nand(cond, els))
}

// --- unary ---

var unaryFold = map[Opcode]func(float64) float64{
	OpSin: math.Sin, OpCos: math.Cos, OpTan: math.Tan,
	OpASin: math.Asin, OpACos: math.Acos, OpATan: math.Atan,
	OpExp: math.Exp, OpLog: math.Log,
	OpFloor: math.Floor, OpCeil: math.Ceil, OpRound: math.Round,
	OpAbs: math.Abs,
}

// Unary builds a transcendental/rounding unary op. Abs of Bool and
// Floor/Ceil/Round of Int are the identity per spec.md §4.3.
func (a *Arena) Unary(op Opcode, x ID) ID {
	n := &a.nodes[x]
	if op == OpAbs && n.Type == TBool {
		return x
	}
	if (op == OpFloor || op == OpCeil || op == OpRound) && n.Type == TInt {
		return x
	}
	if op != OpAbs {
		x = a.ToFloat(x)
		n = &a.nodes[x]
	} else if n.Type == TInt {
		// Abs of Int stays Int.
	}
	if a.isConst(x) {
		if f, ok := unaryFold[op]; ok {
			return a.ConstFloat(f(a.numeric(x)))
		}
	}
	return a.intern(op, n.Type, []ID{x}, 0, 0, n.Deps)
}

// Negate builds unary negation: 0 - x.
func (a *Arena) Negate(x ID) (ID, error) {
	n := &a.nodes[x]
	zero := a.ConstInt(0)
	if n.Type == TFloat {
		zero = a.ConstFloat(0)
	}
	return a.Arith(OpMinus, zero, x)
}

// ATan2 builds the binary arctangent.
func (a *Arena) ATan2(y, x ID) ID {
	y = a.ToFloat(y)
	x = a.ToFloat(x)
	if a.isConst(y) && a.isConst(x) {
		return a.ConstFloat(math.Atan2(a.numeric(y), a.numeric(x)))
	}
	deps := depsOf(a, y, x)
	return a.intern(OpATan2, TFloat, []ID{y, x}, 0, 0, deps)
}

// --- memory ---

// Load reads four x-adjacent samples starting at addr (see
// internal/codegen for the stride derivation).
func (a *Arena) Load(addr ID) ID {
	n := &a.nodes[addr]
	// Load(Plus(x,k)) / Load(PlusImm(x,k)) with constant k -> LoadImm(x,k).
	if n.Op == OpPlus {
		lhs, rhs := n.Inputs[0], n.Inputs[1]
		if a.isConst(rhs) && a.nodes[rhs].Type == TInt {
			return a.LoadImm(lhs, a.nodes[rhs].IVal)
		}
		if a.isConst(lhs) && a.nodes[lhs].Type == TInt {
			return a.LoadImm(rhs, a.nodes[lhs].IVal)
		}
	}
	if n.Op == OpPlusImm {
		return a.LoadImm(n.Inputs[0], n.IVal)
	}
	deps := depsOf(a, addr) | DepMem
	return a.intern(OpLoad, TFloat, []ID{addr}, 0, 0, deps)
}

// LoadImm reads four x-adjacent samples starting at addr+offset.
func (a *Arena) LoadImm(addr ID, offset int64) ID {
	deps := depsOf(a, addr) | DepMem
	return a.intern(OpLoadImm, TFloat, []ID{addr}, offset, 0, deps)
}
