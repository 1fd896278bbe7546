package asm

import (
	"testing"

	"golang.org/x/arch/x86/x86asm"
)

// assertDecodes round-trips the bytes written since mark through a real
// x86-64 decoder and asserts it consumes the whole span as one
// instruction, catching encoding bugs (wrong ModRM, missing REX byte)
// that a byte-literal comparison alone would miss (Testable Property 9).
func assertDecodes(t *testing.T, a *Assembler, mark int, want string) {
	t.Helper()
	span := a.Bytes()[mark:]
	if len(span) == 0 {
		t.Fatalf("%s: no bytes emitted", want)
	}
	inst, err := x86asm.Decode(span, 64)
	if err != nil {
		t.Fatalf("%s: decode failed on % x: %v", want, span, err)
	}
	if inst.Len != len(span) {
		t.Fatalf("%s: decoded length %d, encoder emitted %d bytes (% x)", want, inst.Len, len(span), span)
	}
}

func TestMovRegImm64Decodes(t *testing.T) {
	a := New(0)
	mark := a.Len()
	a.MovRegImm64(R10, 0x1122334455667788)
	assertDecodes(t, a, mark, "movabs r10, imm64")
}

func TestAddRRDecodes(t *testing.T) {
	a := New(0)
	mark := a.Len()
	a.AddRR(RBX, RDI, 64)
	assertDecodes(t, a, mark, "add rbx, rdi")
}

func TestLoadMemWidths(t *testing.T) {
	for _, w := range []int{8, 16, 32, 64} {
		for _, signed := range []bool{true, false} {
			a := New(0)
			mark := a.Len()
			a.LoadMem(R9, RegWordStack, -16, w, signed)
			assertDecodes(t, a, mark, "load mem")
		}
	}
}

func TestStoreMemWidths(t *testing.T) {
	for _, w := range []int{8, 16, 32, 64} {
		a := New(0)
		mark := a.Len()
		a.StoreMem(RegWordStack, 24, RDI, w)
		assertDecodes(t, a, mark, "store mem")
	}
}

func TestJccRel32Decodes(t *testing.T) {
	a := New(0)
	mark := a.Len()
	a.JccRel32(CCEqual)
	assertDecodes(t, a, mark, "je rel32")
}

func TestJmpRel32Decodes(t *testing.T) {
	a := New(0)
	mark := a.Len()
	a.JmpRel32()
	assertDecodes(t, a, mark, "jmp rel32")
}

func TestIdivSequenceDecodes(t *testing.T) {
	a := New(0)
	mark := a.Len()
	a.CqoOrCdq(64)
	assertDecodes(t, a, mark, "cqo")
	mark2 := a.Len()
	a.IdivR(RBX, 64)
	assertDecodes(t, a, mark2, "idiv rbx")
	_ = mark
}

func TestShiftByCLDecodes(t *testing.T) {
	a := New(0)
	mark := a.Len()
	a.ShiftRCL(4, RDI, 64)
	assertDecodes(t, a, mark, "shl rdi, cl")
}

func TestSSEArithDecodes(t *testing.T) {
	a := New(0)
	mark := a.Len()
	a.AddsdRR(XMM0, XMM1)
	assertDecodes(t, a, mark, "addsd xmm0, xmm1")

	mark = a.Len()
	a.UcomisdRR(XMM0, XMM1)
	assertDecodes(t, a, mark, "ucomisd xmm0, xmm1")
}

func TestSaveLoadJITRegsSymmetric(t *testing.T) {
	a := New(0)
	a.SaveJITRegs()
	saveLen := a.Len()
	a.LoadJITRegs()
	if a.Len() != 2*saveLen {
		t.Fatalf("save/load byte length mismatch: save=%d total=%d", saveLen, a.Len())
	}
}

func TestBufferOverflowPanics(t *testing.T) {
	a := New(4)
	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected panic on buffer overflow")
		}
	}()
	a.MovRegImm64(RAX, 0) // 10 bytes, exceeds the 4-byte ceiling
}

func TestRecordRefAndPatch(t *testing.T) {
	a := New(0)
	off := a.JmpRel32()
	a.RecordRef(off, RefRel32, 7)
	if !a.HasPendingRefs() {
		t.Fatal("expected a pending ref")
	}
	refs := a.PendingRefs(7)
	if len(refs) != 1 {
		t.Fatalf("expected 1 matched ref, got %d", len(refs))
	}
	a.Patch(refs[0], 100)
	if a.HasPendingRefs() {
		t.Fatal("expected no pending refs after consuming the only one")
	}
}
