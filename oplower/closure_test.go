package oplower

import (
	"testing"

	"bbvjit/asm"
	"bbvjit/codegenstate"
	"bbvjit/ir"
)

func TestLowerNewClosCallsHostWithCaptureCount(t *testing.T) {
	a := asm.New(4096)
	env := newFakeEnv(a)
	s := codegenstate.New(a)

	proto, fun, out := ir.ValueRef(0), ir.ValueRef(1), ir.ValueRef(2)
	seedReg(s, proto, asm.RBX)
	seedReg(s, fun, asm.RSI)

	in := instr(ir.OpNewClos, out, valArg(proto), valArg(fun))
	in.Extra = &NewClosAttrs{NumCaptures: 3}

	mark := a.Len()
	if err := Lower(env, s, in, a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertDecodes(t, a, mark)
	if s.Type(out) != ir.TagClosure {
		t.Fatalf("expected TagClosure, got %v", s.Type(out))
	}
}

func TestLowerClosSetCellWritesDirectly(t *testing.T) {
	a := asm.New(4096)
	env := newFakeEnv(a)
	s := codegenstate.New(a)

	clos, val := ir.ValueRef(0), ir.ValueRef(1)
	seedReg(s, clos, asm.RBX)
	seedReg(s, val, asm.RSI)
	s.SetType(val, ir.TagInt32)

	in := instr(ir.OpClosSetCell, ir.NoValue, valArg(clos), i32Arg(1), valArg(val))
	mark := a.Len()
	if err := Lower(env, s, in, a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertDecodes(t, a, mark)
}
