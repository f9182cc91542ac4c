// Package codegen is C7: it walks a regalloc.Schedule and emits the
// nested t/y/x/c loop structure of spec.md §4.6 onto an asmx64.Builder,
// dispatching each IR node to its instruction sequence by Go type
// switch on opcode (per spec.md §9's design note, not a Visitor).
package codegen

import (
	"fmt"
	"math"

	"pixc/internal/asmx64"
	"pixc/internal/cerr"
	"pixc/internal/image"
	"pixc/internal/ir"
	"pixc/internal/regalloc"
)

// gprOf maps a regalloc GPR slot index to its real x86-64 register.
// Slots 0-7 are the fixed ABI roles; 8-15 are the free pool.
var gprOf = [regalloc.NumGPR]asmx64.Reg{
	asmx64.RAX, asmx64.RCX, asmx64.R8, asmx64.RSI,
	asmx64.RDI, asmx64.RDX, asmx64.R15, asmx64.RSP,
	asmx64.RBX, asmx64.RBP, asmx64.R9, asmx64.R10,
	asmx64.R11, asmx64.R12, asmx64.R13, asmx64.R14,
}

func gpr(slot int) asmx64.Reg { return gprOf[slot] }
func xmm(slot int) asmx64.XMM { return asmx64.XMM(slot) }

// calleeSaved lists the registers the prologue preserves: the System V
// callee-saved set rbx, rbp and r12-r15 (r15 is the scratch slot). The
// free-pool registers r9-r11 and the rdx/rdi pointer slots are not saved.
var calleeSaved = []asmx64.Reg{asmx64.RBX, asmx64.RBP, asmx64.R12, asmx64.R13, asmx64.R14, asmx64.R15}

// Emitter drives one compiled routine's machine code.
type Emitter struct {
	b      *asmx64.Builder
	a      *ir.Arena
	img    *image.Buffer
	sched  *regalloc.Schedule
	roots  []ir.ID // one per output channel, in channel order
	labelN int

	floatConsts map[float64]string
	poolOrder   []float64
}

// Emit builds the complete routine and returns its finalized machine
// code, ready for asmx64.WriteObject.
func Emit(a *ir.Arena, img *image.Buffer, sched *regalloc.Schedule, roots []ir.ID) ([]byte, error) {
	e := &Emitter{
		b: asmx64.New(), a: a, img: img, sched: sched, roots: roots,
		floatConsts: make(map[float64]string),
	}
	if err := e.emitRoutine(); err != nil {
		return nil, err
	}
	return e.b.Finalize()
}

func (e *Emitter) newLabel(prefix string) string {
	e.labelN++
	return e.b.NewLabel(fmt.Sprintf("%s%d", prefix, e.labelN))
}

func (e *Emitter) emitRoutine() error {
	for _, r := range calleeSaved {
		e.b.Push(r)
	}

	// order[0]: compile-time constants, independent of every loop.
	if err := e.emitLevel(0); err != nil {
		return err
	}

	e.b.MovRegImm32(gpr(regalloc.RegT), 0)
	tloop := e.newLabel("tloop")
	e.b.BindLabel(tloop)

	if err := e.emitLevel(1); err != nil {
		return err
	}

	e.b.MovRegImm32(gpr(regalloc.RegY), 0)
	yloop := e.newLabel("yloop")
	e.b.BindLabel(yloop)

	e.emitOutPtr()

	if err := e.emitLevel(2); err != nil {
		return err
	}

	e.b.MovRegImm32(gpr(regalloc.RegX), 0)
	xloop := e.newLabel("xloop")
	e.b.BindLabel(xloop)

	if err := e.emitLevel(3); err != nil {
		return err
	}
	if err := e.emitLevel(4); err != nil {
		return err
	}

	e.emitTransposeAndStore()
	e.b.AddRegImm32(gpr(regalloc.RegScratchGPR), int32(e.img.Channels)*16)

	e.b.AddRegImm32(gpr(regalloc.RegX), 4)
	e.b.CmpRegImm32(gpr(regalloc.RegX), int32(e.img.Width))
	e.b.JccLabel(asmx64.CondLT, xloop)

	e.b.AddRegImm32(gpr(regalloc.RegY), 1)
	e.b.CmpRegImm32(gpr(regalloc.RegY), int32(e.img.Height))
	e.b.JccLabel(asmx64.CondLT, yloop)

	e.b.AddRegImm32(gpr(regalloc.RegT), 1)
	e.b.CmpRegImm32(gpr(regalloc.RegT), int32(e.img.Frames))
	e.b.JccLabel(asmx64.CondLT, tloop)

	for i := len(calleeSaved) - 1; i >= 0; i-- {
		e.b.Pop(calleeSaved[i])
	}
	e.b.Ret()

	e.emitFloatPool()
	return nil
}

// emitOutPtr computes outPtr = outBase + t*tstride*4 + y*ystride*4 into
// the scratch GPR; it is re-derived once per row rather than threaded
// through the inner loops, matching spec.md §4.6 step 6. The second
// multiply needs a GPR that is not currently holding a live order[0]/
// order[1] value; pickScratchGPR skips every register an Int node of
// those levels was assigned, so the free-pool slot it returns is safe
// to borrow for the duration of this one computation.
func (e *Emitter) emitOutPtr() {
	out := gpr(regalloc.RegScratchGPR)
	tmp := e.pickScratchGPR()

	e.b.MovRegReg(out, gpr(regalloc.RegT))
	e.b.ImulRegImm32(out, int32(e.img.TStride)*4)

	e.b.MovRegReg(tmp, gpr(regalloc.RegY))
	e.b.ImulRegImm32(tmp, int32(e.img.YStride)*4)

	e.b.AddRegReg(out, tmp)
	e.b.AddRegReg(out, gpr(regalloc.RegOutPtr))
}

// pickScratchGPR returns a free-pool GPR that holds no Int value
// computed at level 0 or level 1, safe to clobber transiently.
func (e *Emitter) pickScratchGPR() asmx64.Reg {
	var busy uint64
	for lvl := 0; lvl <= 1; lvl++ {
		for _, id := range e.sched.Order[lvl] {
			if n := e.a.Node(id); n.Type == ir.TInt && n.Reg >= 0 {
				busy |= 1 << uint(n.Reg)
			}
		}
	}
	for i := 8; i < regalloc.NumGPR; i++ {
		if busy&(1<<uint(i)) == 0 {
			return gpr(i)
		}
	}
	panic("codegen: no free GPR available for outPtr computation")
}

func (e *Emitter) emitLevel(level int) error {
	for _, id := range e.sched.Order[level] {
		if err := e.emitNode(id); err != nil {
			return err
		}
	}
	return nil
}

var unsupported = map[ir.Opcode]bool{
	ir.OpSin: true, ir.OpCos: true, ir.OpTan: true,
	ir.OpASin: true, ir.OpACos: true, ir.OpATan: true, ir.OpATan2: true,
	ir.OpExp: true, ir.OpLog: true, ir.OpPower: true, ir.OpMod: true,
	ir.OpAbs: true, ir.OpFloor: true, ir.OpCeil: true, ir.OpRound: true,
	ir.OpFloatToInt: true,
}

func (e *Emitter) emitNode(id ir.ID) error {
	n := e.a.Node(id)
	if unsupported[n.Op] {
		return cerr.New(cerr.UnsupportedOp, "opcode %s has no core-emitter implementation", n.Op)
	}
	switch n.Op {
	case ir.OpVarX, ir.OpVarY, ir.OpVarT, ir.OpVarC:
		// Pre-colored to the ABI counter registers by regalloc; nothing to emit.
	case ir.OpConst:
		e.emitConst(n)
	case ir.OpPlus, ir.OpMinus, ir.OpTimes, ir.OpDivide:
		if err := e.emitArith(n); err != nil {
			return err
		}
	case ir.OpTimesImm:
		e.emitTimesImm(n)
	case ir.OpPlusImm:
		e.emitPlusImm(n)
	case ir.OpLT, ir.OpGT, ir.OpLTE, ir.OpGTE, ir.OpEQ, ir.OpNEQ:
		e.emitCompare(n)
	case ir.OpAnd:
		e.emitMaskBinop(n, (*asmx64.Builder).Andps)
	case ir.OpOr:
		e.emitMaskBinop(n, (*asmx64.Builder).Orps)
	case ir.OpNand:
		e.emitNand(n)
	case ir.OpLoad, ir.OpLoadImm:
		e.emitLoad(n)
	case ir.OpIntToFloat:
		e.emitIntToFloat(n)
	default:
		return cerr.New(cerr.UnsupportedOp, "opcode %s is not handled by the emitter", n.Op)
	}
	return nil
}

func (e *Emitter) emitConst(n *ir.Node) {
	switch n.Type {
	case ir.TInt:
		e.b.MovRegImm32(gpr(n.Reg), int32(n.IVal))
	case ir.TBool:
		r := xmm(n.Reg)
		if n.IVal != 0 {
			e.b.Pcmpeqd(r, r)
		} else {
			e.b.Pxor(r, r)
		}
	default: // TFloat
		r := xmm(n.Reg)
		if n.FVal == 0 {
			e.b.Pxor(r, r)
			return
		}
		label := e.floatConstLabel(n.FVal)
		e.b.MovssLoadRIP(r, label)
		e.b.Shufps(r, r, 0)
	}
}

func (e *Emitter) floatConstLabel(v float64) string {
	if l, ok := e.floatConsts[v]; ok {
		return l
	}
	l := e.newLabel("fconst")
	e.floatConsts[v] = l
	e.poolOrder = append(e.poolOrder, v)
	return l
}

func (e *Emitter) emitFloatPool() {
	for _, v := range e.poolOrder {
		e.b.BindLabel(e.floatConsts[v])
		bits := math.Float32bits(float32(v))
		e.b.EmitRaw([]byte{byte(bits), byte(bits >> 8), byte(bits >> 16), byte(bits >> 24)})
	}
}

func (e *Emitter) emitArith(n *ir.Node) error {
	r0, r1 := n.Inputs[0], n.Inputs[1]
	if n.Type == ir.TInt {
		return e.emitArithInt(n.Op, gpr(n.Reg), gpr(e.a.Node(r0).Reg), gpr(e.a.Node(r1).Reg))
	}
	e.emitArithFloat(n.Op, xmm(n.Reg), xmm(e.a.Node(r0).Reg), xmm(e.a.Node(r1).Reg))
	return nil
}

// emitArithInt handles Plus/Minus/Times in place; integer Divide always
// reaches here with a register (never immediate) divisor, because only
// the float Divide-by-constant case gets rewritten to a multiply at IR
// build time (see ir.Arena.Arith). idiv takes its dividend from rdx:rax
// and both are ABI-reserved here (the x counter and the input base
// pointer), so a register-divisor integer division has no core-emitter
// implementation.
func (e *Emitter) emitArithInt(op ir.Opcode, dst, r0, r1 asmx64.Reg) error {
	if op == ir.OpDivide {
		return cerr.New(cerr.UnsupportedOp, "integer division by a non-constant value has no core-emitter implementation")
	}
	commutative := op == ir.OpPlus || op == ir.OpTimes
	apply := func(d, s asmx64.Reg) {
		switch op {
		case ir.OpPlus:
			e.b.AddRegReg(d, s)
		case ir.OpMinus:
			e.b.SubRegReg(d, s)
		case ir.OpTimes:
			e.b.ImulRegReg(d, s)
		}
	}
	switch {
	case dst == r0:
		apply(dst, r1)
	case dst == r1 && commutative:
		apply(dst, r0)
	case dst == r1: // non-commutative Minus: neg then add recovers r0 - r1.
		e.b.NegReg(dst)
		e.b.AddRegReg(dst, r0)
	default:
		e.b.MovRegReg(dst, r0)
		apply(dst, r1)
	}
	return nil
}

func (e *Emitter) emitArithFloat(op ir.Opcode, dst, r0, r1 asmx64.XMM) {
	commutative := op == ir.OpPlus || op == ir.OpTimes
	apply := func(d, s asmx64.XMM) {
		switch op {
		case ir.OpPlus:
			e.b.Addps(d, s)
		case ir.OpMinus:
			e.b.Subps(d, s)
		case ir.OpTimes:
			e.b.Mulps(d, s)
		case ir.OpDivide:
			e.b.Divps(d, s)
		}
	}
	switch {
	case dst == r0:
		apply(dst, r1)
	case dst == r1 && commutative:
		apply(dst, r0)
	case dst == r1: // non-commutative Minus/Divide rearrangement via emitter scratch.
		scratch := xmm(regalloc.RegScratchSIMD1)
		e.b.Movaps(scratch, r0)
		apply(scratch, dst)
		e.b.Movaps(dst, scratch)
	default:
		e.b.Movaps(dst, r0)
		apply(dst, r1)
	}
}

func (e *Emitter) emitTimesImm(n *ir.Node) {
	dst := gpr(n.Reg)
	src := gpr(e.a.Node(n.Inputs[0]).Reg)
	if dst != src {
		e.b.MovRegReg(dst, src)
	}
	e.b.ImulRegImm32(dst, int32(n.IVal))
}

func (e *Emitter) emitPlusImm(n *ir.Node) {
	dst := gpr(n.Reg)
	src := gpr(e.a.Node(n.Inputs[0]).Reg)
	if dst != src {
		e.b.MovRegReg(dst, src)
	}
	e.b.AddRegImm32(dst, int32(n.IVal))
}

// emitCompare implements all six comparisons as a single cmpps against
// the correct predicate: NLE/NLT directly compute x>y / x>=y against
// (dst, src) in declared order, so GT/GTE need no operand swap.
func (e *Emitter) emitCompare(n *ir.Node) {
	dst := xmm(n.Reg)
	r0 := xmm(e.a.Node(n.Inputs[0]).Reg)
	r1 := xmm(e.a.Node(n.Inputs[1]).Reg)
	if dst != r0 {
		if dst == r1 {
			// r1 must stay readable as the second cmpps operand; route
			// the copy through the emitter's SIMD scratch register.
			scratch := xmm(regalloc.RegScratchSIMD1)
			e.b.Movaps(scratch, r0)
			e.b.Cmpps(scratch, dst, compareOpcode(n.Op))
			e.b.Movaps(dst, scratch)
			return
		}
		e.b.Movaps(dst, r0)
	}
	e.b.Cmpps(dst, r1, compareOpcode(n.Op))
}

func compareOpcode(op ir.Opcode) asmx64.Cond {
	switch op {
	case ir.OpLT:
		return asmx64.CondLT
	case ir.OpLTE:
		return asmx64.CondLE
	case ir.OpGT:
		return asmx64.CondNLE
	case ir.OpGTE:
		return asmx64.CondNLT
	case ir.OpEQ:
		return asmx64.CondEQ
	case ir.OpNEQ:
		return asmx64.CondNEQ
	}
	panic("codegen: not a comparison opcode")
}

func (e *Emitter) emitMaskBinop(n *ir.Node, op func(*asmx64.Builder, asmx64.XMM, asmx64.XMM)) {
	dst := xmm(n.Reg)
	r0 := xmm(e.a.Node(n.Inputs[0]).Reg)
	r1 := xmm(e.a.Node(n.Inputs[1]).Reg)
	switch {
	case dst == r0:
		op(e.b, dst, r1)
	case dst == r1:
		op(e.b, dst, r0)
	default:
		e.b.Movaps(dst, r0)
		op(e.b, dst, r1)
	}
}

// emitNand implements Nand(cond, y) = andnps(cond, y): (~cond) & y.
// andnps computes dst = (~dst) & src, so cond must occupy dst; if y
// instead inherited dst's register, save it via scratch before
// overwriting so it survives as the andnps source operand.
func (e *Emitter) emitNand(n *ir.Node) {
	dst := xmm(n.Reg)
	cond := xmm(e.a.Node(n.Inputs[0]).Reg)
	y := xmm(e.a.Node(n.Inputs[1]).Reg)
	switch {
	case dst == cond:
		e.b.Andnps(dst, y)
	case dst == y:
		scratch := xmm(regalloc.RegScratchSIMD1)
		e.b.Movaps(scratch, y)
		e.b.Movaps(dst, cond)
		e.b.Andnps(dst, scratch)
	default:
		e.b.Movaps(dst, cond)
		e.b.Andnps(dst, y)
	}
}

func (e *Emitter) emitIntToFloat(n *ir.Node) {
	dst := xmm(n.Reg)
	src := gpr(e.a.Node(n.Inputs[0]).Reg)
	e.b.Cvtsi2ss(dst, src)
	e.b.Shufps(dst, dst, 0)
}

// emitLoad issues the four-lane gather spec.md §4.6 describes, with
// the per-lane byte offset re-derived from the image's declared
// xstride rather than a hard-coded pixel stride (see DESIGN.md).
func (e *Emitter) emitLoad(n *ir.Node) {
	dst := xmm(n.Reg)
	addr := gpr(e.a.Node(n.Inputs[0]).Reg)
	base := gpr(regalloc.RegInPtr)
	xs := e.img.XStride
	disp := func(k int) int32 { return int32((int(n.IVal) + k*xs) * 4) }

	s0, s1 := xmm(regalloc.RegScratchSIMD0), xmm(regalloc.RegScratchSIMD1)
	e.b.MovssLoadIndexed(dst, base, addr, 4, disp(0))
	e.b.MovssLoadIndexed(s0, base, addr, 4, disp(1))
	e.b.Punpckldq(dst, s0)
	e.b.MovssLoadIndexed(s0, base, addr, 4, disp(2))
	e.b.MovssLoadIndexed(s1, base, addr, 4, disp(3))
	e.b.Punpckldq(s0, s1)
	e.b.Punpcklqdq(dst, s0)
}

func shuf(a, b, c, d byte) byte { return d<<6 | c<<4 | b<<2 | a }

// emitTransposeAndStore converts the three per-channel 4-lane result
// vectors into three interleaved RGB-packed vectors and writes them
// with non-temporal stores, per spec.md §4.6 step 12. The lane contents
// after each step are noted inline.
func (e *Emitter) emitTransposeAndStore() {
	rReg := xmm(e.a.Node(e.roots[0]).Reg)
	gReg := xmm(e.a.Node(e.roots[1]).Reg)
	bReg := xmm(e.a.Node(e.roots[2]).Reg)

	used := map[int]bool{int(rReg): true, int(gReg): true, int(bReg): true}
	var temps []asmx64.XMM
	for i := 13; i >= 0 && len(temps) < 5; i-- {
		if !used[i] {
			temps = append(temps, xmm(i))
		}
	}
	t0, t1, t2, t3, t4 := temps[0], temps[1], temps[2], temps[3], temps[4]

	e.b.Movaps(t0, rReg)
	e.b.Unpcklps(t0, gReg) // t0 = P0 = (r0,g0,r1,g1)
	e.b.Movaps(t1, rReg)
	e.b.Unpckhps(t1, gReg) // t1 = P1 = (r2,g2,r3,g3)

	e.b.Movaps(t2, bReg)
	e.b.Shufps(t2, t0, shuf(0, 0, 2, 2)) // t2 = (b0,b0,r1,r1)

	e.b.Movaps(t3, t0)
	e.b.Shufps(t3, t2, shuf(0, 1, 0, 2)) // t3 = out0 = (r0,g0,b0,r1)

	e.b.Movaps(t4, t0)
	e.b.Shufps(t4, bReg, shuf(3, 3, 1, 1)) // t4 = (g1,g1,b1,b1)
	e.b.Shufps(t4, t1, shuf(0, 2, 0, 1))   // t4 = out1 = (g1,b1,r2,g2)

	e.b.Shufps(t1, bReg, shuf(2, 3, 2, 3)) // t1 = (r3,g3,b2,b3)
	e.b.Shufps(t1, t1, shuf(2, 0, 1, 3))   // t1 = out2 = (b2,r3,g3,b3)

	outPtr := gpr(regalloc.RegScratchGPR)
	e.b.MovntpsStore(t3, outPtr, 0)
	e.b.MovntpsStore(t4, outPtr, 16)
	e.b.MovntpsStore(t1, outPtr, 32)
}
