// Package irdump renders the channel-specialized IR DAG as textual
// LLVM IR for `pixc dump-ir`. It is a read-only diagnostic
// side channel, the same role `-S` dumps play in real compilers; it
// never feeds the x86-64 backend in internal/codegen.
package irdump

import (
	"fmt"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	irpkg "pixc/internal/ir"
)

var channelNames = [...]string{"r", "g", "b"}

// Dump renders one function per output-channel root, each computing
// its pixel value from x, y, t, c parameters, and returns the
// module's textual LLVM IR assembly.
func Dump(a *irpkg.Arena, roots []irpkg.ID) string {
	m := ir.NewModule()
	externs := make(map[string]*ir.Func)
	for i, root := range roots {
		name := fmt.Sprintf("pixel_%s", nameFor(i))
		d := &dumper{a: a, m: m, externs: externs, vals: make(map[irpkg.ID]value.Value)}
		px := ir.NewParam("x", types.I32)
		py := ir.NewParam("y", types.I32)
		pt := ir.NewParam("t", types.I32)
		pc := ir.NewParam("c", types.I32)
		fn := m.NewFunc(name, llvmType(a.Node(root).Type), px, py, pt, pc)
		d.x, d.y, d.t, d.c = px, py, pt, pc

		entry := fn.NewBlock("entry")
		d.block = entry
		v := d.emit(root)
		entry.NewRet(v)
	}
	return m.String()
}

func nameFor(i int) string {
	if i < len(channelNames) {
		return channelNames[i]
	}
	return fmt.Sprintf("c%d", i)
}

func llvmType(t irpkg.Type) types.Type {
	switch t {
	case irpkg.TInt:
		return types.I32
	case irpkg.TBool:
		return types.I1
	default:
		return types.Double
	}
}

// dumper walks one root's subgraph, memoizing already-translated nodes
// by ID so a hash-consed diamond emits one instruction, not two.
type dumper struct {
	a          *irpkg.Arena
	m          *ir.Module
	externs    map[string]*ir.Func
	vals       map[irpkg.ID]value.Value
	block      *ir.Block
	x, y, t, c value.Value
}

func (d *dumper) emit(id irpkg.ID) value.Value {
	if v, ok := d.vals[id]; ok {
		return v
	}
	n := d.a.Node(id)
	v := d.emitNode(n)
	d.vals[id] = v
	return v
}

func (d *dumper) emitNode(n *irpkg.Node) value.Value {
	switch n.Op {
	case irpkg.OpVarX:
		return d.x
	case irpkg.OpVarY:
		return d.y
	case irpkg.OpVarT:
		return d.t
	case irpkg.OpVarC:
		return d.c
	case irpkg.OpConst:
		return d.constOf(n)
	case irpkg.OpPlus, irpkg.OpMinus, irpkg.OpTimes, irpkg.OpDivide:
		return d.emitArith(n)
	case irpkg.OpTimesImm:
		return d.block.NewMul(d.emit(n.Inputs[0]), constant.NewInt(types.I32, n.IVal))
	case irpkg.OpPlusImm:
		return d.block.NewAdd(d.emit(n.Inputs[0]), constant.NewInt(types.I32, n.IVal))
	case irpkg.OpLT, irpkg.OpGT, irpkg.OpLTE, irpkg.OpGTE, irpkg.OpEQ, irpkg.OpNEQ:
		return d.emitCompare(n)
	case irpkg.OpAnd:
		return d.block.NewAnd(d.emit(n.Inputs[0]), d.emit(n.Inputs[1]))
	case irpkg.OpOr:
		return d.block.NewOr(d.emit(n.Inputs[0]), d.emit(n.Inputs[1]))
	case irpkg.OpNand:
		notCond := d.block.NewXor(d.emit(n.Inputs[0]), constant.True)
		return d.block.NewAnd(notCond, d.emit(n.Inputs[1]))
	case irpkg.OpIntToFloat:
		return d.block.NewSIToFP(d.emit(n.Inputs[0]), types.Double)
	case irpkg.OpLoad, irpkg.OpLoadImm:
		return d.declareExternalLoad(n)
	default:
		return d.declareExternalUnary(n)
	}
}

func (d *dumper) constOf(n *irpkg.Node) value.Value {
	switch n.Type {
	case irpkg.TInt:
		return constant.NewInt(types.I32, n.IVal)
	case irpkg.TBool:
		if n.IVal != 0 {
			return constant.True
		}
		return constant.False
	default:
		return constant.NewFloat(types.Double, n.FVal)
	}
}

func (d *dumper) emitArith(n *irpkg.Node) value.Value {
	x, y := d.emit(n.Inputs[0]), d.emit(n.Inputs[1])
	if n.Type == irpkg.TInt {
		switch n.Op {
		case irpkg.OpPlus:
			return d.block.NewAdd(x, y)
		case irpkg.OpMinus:
			return d.block.NewSub(x, y)
		case irpkg.OpTimes:
			return d.block.NewMul(x, y)
		default:
			return d.block.NewSDiv(x, y)
		}
	}
	switch n.Op {
	case irpkg.OpPlus:
		return d.block.NewFAdd(x, y)
	case irpkg.OpMinus:
		return d.block.NewFSub(x, y)
	case irpkg.OpTimes:
		return d.block.NewFMul(x, y)
	default:
		return d.block.NewFDiv(x, y)
	}
}

var intPred = map[irpkg.Opcode]enum.IPred{
	irpkg.OpLT: enum.IPredSLT, irpkg.OpLTE: enum.IPredSLE,
	irpkg.OpGT: enum.IPredSGT, irpkg.OpGTE: enum.IPredSGE,
	irpkg.OpEQ: enum.IPredEQ, irpkg.OpNEQ: enum.IPredNE,
}

var fpPred = map[irpkg.Opcode]enum.FPred{
	irpkg.OpLT: enum.FPredOLT, irpkg.OpLTE: enum.FPredOLE,
	irpkg.OpGT: enum.FPredOGT, irpkg.OpGTE: enum.FPredOGE,
	irpkg.OpEQ: enum.FPredOEQ, irpkg.OpNEQ: enum.FPredONE,
}

func (d *dumper) emitCompare(n *irpkg.Node) value.Value {
	x, y := d.emit(n.Inputs[0]), d.emit(n.Inputs[1])
	if d.a.Node(n.Inputs[0]).Type == irpkg.TInt {
		return d.block.NewICmp(intPred[n.Op], x, y)
	}
	return d.block.NewFCmp(fpPred[n.Op], x, y)
}

// declareExternalLoad models the image-sample gather as an opaque
// call, since the textual dump never needs the real stride math the
// x86-64 backend performs.
func (d *dumper) declareExternalLoad(n *irpkg.Node) value.Value {
	addr := d.emit(n.Inputs[0])
	fn := d.externalFunc("pixc.sample", types.Double, types.I32)
	return d.block.NewCall(fn, addr)
}

// declareExternalUnary models a transcendental/rounding op (fatal at
// emission time in internal/codegen, per REDESIGN DECISIONS) as an
// opaque call so the diagnostic dump still shows the DAG's shape.
func (d *dumper) declareExternalUnary(n *irpkg.Node) value.Value {
	fn := d.externalFunc("pixc."+n.Op.String(), llvmType(n.Type), llvmType(d.a.Node(n.Inputs[0]).Type))
	return d.block.NewCall(fn, d.emit(n.Inputs[0]))
}

// externalFunc returns (declaring once) a no-body function: llir/llvm
// renders a *ir.Func with no basic blocks as an LLVM `declare`, the
// natural way to show an opaque external call in a textual dump.
func (d *dumper) externalFunc(name string, ret types.Type, paramTypes ...types.Type) *ir.Func {
	if fn, ok := d.externs[name]; ok {
		return fn
	}
	params := make([]*ir.Param, len(paramTypes))
	for i, p := range paramTypes {
		params[i] = ir.NewParam(fmt.Sprintf("a%d", i), p)
	}
	fn := d.m.NewFunc(name, ret, params...)
	d.externs[name] = fn
	return fn
}
