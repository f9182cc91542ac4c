// Package regalloc is C6: a tree-walk register allocator that assigns
// every IR node a register and produces a per-level evaluation
// schedule, per spec.md §4.5.
package regalloc

import (
	"fmt"
	"strings"

	"modernc.org/mathutil"

	"pixc/internal/cerr"
	"pixc/internal/ir"
)

// Bank names a register file: general-purpose or SIMD.
type Bank int

const (
	BankGPR Bank = iota
	BankSIMD
)

const (
	NumGPR  = 16
	NumSIMD = 16
)

// Reserved GPR slots, matching the emitted routine's ABI (spec.md §6):
// x, y, t, c counters, the input/output base pointers, one scratch
// GPR, and the stack pointer.
const (
	RegX = iota
	RegY
	RegT
	RegC
	RegOutPtr
	RegInPtr
	RegScratchGPR
	RegSP
)

// Reserved SIMD slots: two scratch registers for the emitter (xmm14/xmm15).
const (
	RegScratchSIMD0 = NumSIMD - 2
	RegScratchSIMD1 = NumSIMD - 1
)

const noReg = -1

var reservedGPR = map[int]bool{
	RegX: true, RegY: true, RegT: true, RegC: true,
	RegOutPtr: true, RegInPtr: true, RegScratchGPR: true, RegSP: true,
}

var reservedSIMD = map[int]bool{RegScratchSIMD0: true, RegScratchSIMD1: true}

func bankOf(t ir.Type) Bank {
	if t == ir.TInt {
		return BankGPR
	}
	return BankSIMD
}

func reserved(bank Bank, reg int) bool {
	if reg == noReg {
		return false
	}
	if bank == BankGPR {
		return reservedGPR[reg]
	}
	return reservedSIMD[reg]
}

var flippable = map[ir.Opcode]bool{
	ir.OpAnd: true, ir.OpOr: true, ir.OpPlus: true, ir.OpTimes: true,
	ir.OpLT: true, ir.OpGT: true, ir.OpLTE: true, ir.OpGTE: true,
	ir.OpEQ: true, ir.OpNEQ: true,
}

// Schedule is C6's output: the per-level ordered node lists and the
// register-use bitmasks the emitter needs for loop-boundary bookkeeping.
type Schedule struct {
	Order         [5][]ir.ID
	ClobberedRegs [5]uint32
	OutputRegs    [5]uint32
}

// Allocator walks the IR tree and assigns registers per spec.md §4.5's
// algorithm, one root at a time, pinning each root's register before
// moving to the next so earlier outputs are never overwritten.
type Allocator struct {
	arena *ir.Arena
	occ   [2][]ir.ID
	pinned [2][]bool
	sched Schedule
}

// New returns an allocator bound to an already channel-specialized and
// cleaned-up arena.
func New(a *ir.Arena) *Allocator {
	al := &Allocator{arena: a}
	al.occ[BankGPR] = make([]ir.ID, NumGPR)
	al.occ[BankSIMD] = make([]ir.ID, NumSIMD)
	for i := range al.occ[BankGPR] {
		al.occ[BankGPR][i] = noReg
	}
	for i := range al.occ[BankSIMD] {
		al.occ[BankSIMD][i] = noReg
	}
	al.pinned[BankGPR] = make([]bool, NumGPR)
	al.pinned[BankSIMD] = make([]bool, NumSIMD)
	return al
}

// Allocate runs C6 over the given roots (one per output channel) and
// returns the resulting schedule.
func (al *Allocator) Allocate(roots []ir.ID) (*Schedule, error) {
	for _, r := range roots {
		if err := al.visit(r); err != nil {
			return nil, err
		}
		bank := bankOf(al.arena.Node(r).Type)
		reg := al.arena.Node(r).Reg
		al.pinned[bank][reg] = true
		al.sched.OutputRegs[al.arena.Node(r).Level] |= 1 << uint(reg)
	}
	return &al.sched, nil
}

// fixedGPR pre-colors the four loop-counter variables to the ABI slots
// the emitted loops actually maintain them in (spec.md §6), so C7 can
// read x/y/t/c directly out of rax/rcx/r8/rsi without an extra move.
var fixedGPR = map[ir.Opcode]int{
	ir.OpVarX: RegX, ir.OpVarY: RegY, ir.OpVarT: RegT, ir.OpVarC: RegC,
}

func (al *Allocator) visit(id ir.ID) error {
	n := al.arena.Node(id)
	if n.Reg != noReg {
		return nil
	}
	for _, in := range n.Inputs {
		if err := al.visit(in); err != nil {
			return err
		}
	}

	if reg, ok := fixedGPR[n.Op]; ok {
		al.assign(id, n, BankGPR, reg, n.Level)
		al.pinned[BankGPR][reg] = true
		return nil
	}

	bank := bankOf(n.Type)
	level := n.Level

	if len(n.Inputs) > 0 {
		in0 := al.arena.Node(n.Inputs[0])
		if al.inheritable(in0, bank, level, id) {
			al.assign(id, n, bank, in0.Reg, level)
			return nil
		}
	}

	if flippable[n.Op] && len(n.Inputs) > 1 {
		in1 := al.arena.Node(n.Inputs[1])
		if al.inheritable(in1, bank, level, id) {
			al.assign(id, n, bank, in1.Reg, level)
			return nil
		}
	}

	if reg, ok := al.findEvictable(bank, level); ok {
		al.assign(id, n, bank, reg, level)
		return nil
	}

	if reg, ok := al.findUnused(bank); ok {
		al.assign(id, n, bank, reg, level)
		return nil
	}

	if len(n.Inputs) > 1 {
		victim := al.arena.Node(n.Inputs[1])
		if bankOf(victim.Type) == bank && !reserved(bank, victim.Reg) && !al.pinned[bank][victim.Reg] {
			al.assign(id, n, bank, victim.Reg, level)
			return nil
		}
	}

	return al.fatal(n)
}

func (al *Allocator) inheritable(in *ir.Node, bank Bank, level int, consumer ir.ID) bool {
	return bankOf(in.Type) == bank &&
		in.Level == level &&
		!reserved(bank, in.Reg) &&
		!al.pinned[bank][in.Reg] &&
		al.dead(in, consumer)
}

// dead reports whether every consumer of n other than except has
// already been allocated a register (n is safely overwritable).
func (al *Allocator) dead(n *ir.Node, except ir.ID) bool {
	for _, out := range n.Outputs {
		if out == except {
			continue
		}
		if al.arena.Node(out).Reg == noReg {
			return false
		}
	}
	return true
}

func (al *Allocator) findEvictable(bank Bank, level int) (int, bool) {
	best := noReg
	for idx, occID := range al.occ[bank] {
		if reserved(bank, idx) || al.pinned[bank][idx] || occID == noReg {
			continue
		}
		occ := al.arena.Node(occID)
		if occ.Level >= level && al.dead(occ, noRegID) {
			if best == noReg {
				best = idx
			} else {
				best = mathutil.Min(best, idx)
			}
		}
	}
	return best, best != noReg
}

func (al *Allocator) findUnused(bank Bank) (int, bool) {
	for idx, occID := range al.occ[bank] {
		if reserved(bank, idx) || al.pinned[bank][idx] {
			continue
		}
		if occID == noReg {
			return idx, true
		}
	}
	return noReg, false
}

var noRegID ir.ID = -1

func (al *Allocator) assign(id ir.ID, n *ir.Node, bank Bank, reg, level int) {
	n.Reg = reg
	al.occ[bank][reg] = id
	n.Order = len(al.sched.Order[level])
	al.sched.Order[level] = append(al.sched.Order[level], id)
	al.sched.ClobberedRegs[level] |= 1 << uint(reg)
}

// fatal builds the register-map dump spec.md §7 requires for AllocError.
func (al *Allocator) fatal(n *ir.Node) error {
	var b strings.Builder
	fmt.Fprintf(&b, "out of %s registers allocating %s:\n", bankName(bankOf(n.Type)), n.Op)
	dumpBank(&b, "GPR", al.arena, al.occ[BankGPR], reservedGPR)
	dumpBank(&b, "SIMD", al.arena, al.occ[BankSIMD], reservedSIMD)
	return cerr.New(cerr.AllocError, "%s", b.String())
}

func bankName(b Bank) string {
	if b == BankGPR {
		return "GPR"
	}
	return "SIMD"
}

func dumpBank(b *strings.Builder, name string, a *ir.Arena, occ []ir.ID, reservedSet map[int]bool) {
	fmt.Fprintf(b, "  %s: ", name)
	for idx, occID := range occ {
		if idx > 0 {
			b.WriteString(", ")
		}
		switch {
		case reservedSet[idx]:
			fmt.Fprintf(b, "r%d=reserved", idx)
		case occID == noReg:
			fmt.Fprintf(b, "r%d=empty", idx)
		default:
			fmt.Fprintf(b, "r%d=%s", idx, a.Node(occID).Op)
		}
	}
	b.WriteString("\n")
}
