package asmx64

import "testing"

func TestLoopBackwardJumpPatches(t *testing.T) {
	b := New()
	top := b.NewLabel("loop")
	b.BindLabel(top)
	b.AddRegImm32(RAX, 1)
	b.CmpRegImm32(RAX, 100)
	b.JccLabel(CondLT, top)
	b.Ret()

	code, err := b.Finalize()
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if len(code) == 0 {
		t.Fatalf("expected emitted code")
	}
	if code[len(code)-1] != 0xC3 {
		t.Fatalf("expected trailing ret opcode, got %x", code[len(code)-1])
	}
}

func TestForwardJumpPatchesToCorrectOffset(t *testing.T) {
	b := New()
	done := b.NewLabel("done")
	b.JmpLabel(done)
	b.MovRegImm64(RAX, 42) // dead code the jump skips
	b.BindLabel(done)
	target := b.Len()
	b.Ret()

	code, err := b.Finalize()
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	rel := int32(code[1]) | int32(code[2])<<8 | int32(code[3])<<16 | int32(code[4])<<24
	gotTarget := 5 + int(rel)
	if gotTarget != target {
		t.Fatalf("jmp target = %d, want %d", gotTarget, target)
	}
}

func TestFinalizeFailsOnUnboundLabel(t *testing.T) {
	b := New()
	b.JmpLabel(b.NewLabel("nope"))
	if _, err := b.Finalize(); err == nil {
		t.Fatalf("expected error for unbound label")
	}
}

func TestExtendedRegistersSetRexBit(t *testing.T) {
	b := New()
	b.MovRegReg(R15, RAX)
	code, _ := b.Finalize()
	if code[0]&0x09 != 0x09 {
		t.Fatalf("expected REX.W and REX.B set for r15 dest, got %08b", code[0])
	}
}

func TestMovssLoadRIPPatchesRelativeToNextInstruction(t *testing.T) {
	b := New()
	pool := b.NewLabel("pool")
	b.MovssLoadRIP(0, pool) // F3 0F 10 05 <disp32>, 8 bytes total
	b.Ret()
	b.BindLabel(pool)
	target := b.Len()
	b.EmitRaw([]byte{0, 0, 0x80, 0x3f})

	code, err := b.Finalize()
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	rel := int32(code[4]) | int32(code[5])<<8 | int32(code[6])<<16 | int32(code[7])<<24
	if int(rel)+8 != target {
		t.Fatalf("rip-relative disp = %d, want %d", int(rel)+8, target)
	}
}

func TestMovssLoadIndexedEncodesSIBByte(t *testing.T) {
	b := New()
	b.MovssLoadIndexed(0, RDX, RAX, 4, 12)
	code, _ := b.Finalize()
	// F3 0F 10 <modrm> <sib> <disp32>
	modByte := code[3]
	sib := code[4]
	if modByte&0xC0 != 0x80 {
		t.Fatalf("expected mod=10 (disp32) for nonzero displacement, got %08b", modByte)
	}
	if sib&0x07 != byte(RDX) {
		t.Fatalf("expected SIB base = RDX, got %08b", sib)
	}
}

func TestWriteObjectProducesValidELFHeader(t *testing.T) {
	b := New()
	b.Ret()
	code, _ := b.Finalize()
	obj := WriteObject("pixc_eval", code)
	if string(obj[0:4]) != "\x7fELF" {
		t.Fatalf("missing ELF magic")
	}
	if obj[4] != 2 {
		t.Fatalf("expected ELFCLASS64")
	}
	if len(obj) <= len(code) {
		t.Fatalf("object should be larger than the raw code it embeds")
	}
}
