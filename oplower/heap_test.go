package oplower

import (
	"testing"

	"bbvjit/asm"
	"bbvjit/codegenstate"
	"bbvjit/ir"
)

func TestLowerAllocObjectFastAndFallbackPathsDecode(t *testing.T) {
	a := asm.New(4096)
	env := newFakeEnv(a)
	s := codegenstate.New(a)

	out := ir.ValueRef(0)
	in := instr(ir.OpAllocObject, out, i32Arg(32))

	mark := a.Len()
	if err := Lower(env, s, in, a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertDecodes(t, a, mark)
	if s.Type(out) != ir.TagObject {
		t.Fatalf("expected TagObject, got %v", s.Type(out))
	}
}

func TestLowerAllocArrayWithDynamicSize(t *testing.T) {
	a := asm.New(4096)
	env := newFakeEnv(a)
	s := codegenstate.New(a)

	sizeVal, out := ir.ValueRef(0), ir.ValueRef(1)
	seedReg(s, sizeVal, asm.RBX)

	in := instr(ir.OpAllocArray, out, valArg(sizeVal))
	mark := a.Len()
	if err := Lower(env, s, in, a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertDecodes(t, a, mark)
	if s.Type(out) != ir.TagArray {
		t.Fatalf("expected TagArray, got %v", s.Type(out))
	}
}
