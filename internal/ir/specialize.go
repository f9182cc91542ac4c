package ir

// Specialize implements C5: it produces the DAG root for one output
// channel by substituting VarC with a literal, cloning only the nodes
// whose value actually depends on c and sharing everything else.
func Specialize(a *Arena, root ID, channel int) ID {
	memo := make(map[ID]ID)
	return specializeRec(a, root, channel, memo)
}

func specializeRec(a *Arena, id ID, channel int, memo map[ID]ID) ID {
	if v, ok := memo[id]; ok {
		return v
	}
	n := &a.nodes[id]
	if n.Deps&DepC == 0 {
		memo[id] = id
		return id
	}
	if n.Op == OpVarC {
		v := a.ConstInt(int64(channel))
		memo[id] = v
		return v
	}
	op, typ, ival := n.Op, n.Type, n.IVal

	newInputs := make([]ID, len(n.Inputs))
	changed := false
	for i, in := range n.Inputs {
		ni := specializeRec(a, in, channel, memo)
		newInputs[i] = ni
		if ni != in {
			changed = true
		}
	}
	if !changed {
		memo[id] = id
		return id
	}

	nid := rebuild(a, op, typ, ival, newInputs)
	memo[id] = nid
	return nid
}

// rebuild reconstructs a node whose inputs changed during
// specialization. A c-dependent child can collapse to a Const here, so
// Plus/Minus/Times must go back through Arena.Arith's buildSum
// rebalancing rather than a raw intern: specialization runs before
// Cleanup, and the rest of the rewrite engine (rewriteDistribute,
// rewriteOuterProduct) depends on buildSum's canonical operand-level
// ordering holding for every Plus/Minus node in the arena, not just the
// ones the parser's first pass built.
func rebuild(a *Arena, op Opcode, typ Type, ival int64, in []ID) ID {
	switch op {
	case OpPlus, OpMinus, OpTimes, OpDivide, OpPower, OpMod:
		if result, err := a.Arith(op, in[0], in[1]); err == nil {
			return result
		}
	case OpLT, OpGT, OpLTE, OpGTE, OpEQ, OpNEQ:
		return a.Compare(op, in[0], in[1])
	case OpAnd:
		return a.And(in[0], in[1])
	case OpOr:
		return a.Or(in[0], in[1])
	case OpNand:
		return a.Nand(in[0], in[1])
	case OpATan2:
		return a.ATan2(in[0], in[1])
	case OpSin, OpCos, OpTan, OpASin, OpACos, OpATan,
		OpAbs, OpFloor, OpCeil, OpRound, OpExp, OpLog:
		return a.Unary(op, in[0])
	case OpLoad:
		return a.Load(in[0])
	case OpLoadImm:
		return a.LoadImm(in[0], ival)
	case OpIntToFloat:
		return a.ToFloat(in[0])
	case OpFloatToInt:
		return a.toInt(in[0])
	case OpTimesImm:
		return a.timesImm(in[0], ival)
	case OpPlusImm:
		return a.plusImm(in[0], ival)
	}
	deps := depsOf(a, in...) | directDeps(op)
	return a.intern(op, typ, in, ival, 0, deps)
}

// directDeps is the dependency contributed by an opcode itself, beyond
// the union of its children's deps (only the loop-variable leaves and
// the memory-reading ops have one).
func directDeps(op Opcode) Deps {
	switch op {
	case OpVarX:
		return DepX
	case OpVarY:
		return DepY
	case OpVarT:
		return DepT
	case OpVarC:
		return DepC
	case OpLoad, OpLoadImm:
		return DepMem
	default:
		return 0
	}
}
