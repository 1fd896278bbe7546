package oplower

import (
	"errors"
	"testing"

	"bbvjit/asm"
	"bbvjit/codegenstate"
	"bbvjit/ir"
)

func TestLowerCallPrimRejectsArityMismatch(t *testing.T) {
	a := asm.New(4096)
	env := newFakeEnv(a)
	s := codegenstate.New(a)

	v0 := ir.ValueRef(0)
	seedReg(s, v0, asm.RBX)

	in := instr(ir.OpCallPrim, ir.NoValue, valArg(v0))
	in.Extra = &ir.CallPrimAttrs{Name: "print", Arity: 2}

	err := Lower(env, s, in, a)
	if err == nil {
		t.Fatalf("expected an arity-mismatch error")
	}
	if !errors.Is(err, ErrIRMalformed) {
		t.Fatalf("expected ErrIRMalformed, got %v", err)
	}
}

func TestLowerCallPrimEmitsFrameAndJump(t *testing.T) {
	a := asm.New(4096)
	env := newFakeEnv(a)
	s := codegenstate.New(a)

	v0, v1 := ir.ValueRef(0), ir.ValueRef(1)
	seedReg(s, v0, asm.RBX)
	seedReg(s, v1, asm.RSI)

	in := instr(ir.OpCallPrim, ir.NoValue, valArg(v0), valArg(v1))
	in.Extra = &ir.CallPrimAttrs{Name: "add2", Arity: 2}
	in.BranchT, in.BranchF = 1, 2

	mark := a.Len()
	if err := Lower(env, s, in, a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertDecodes(t, a, mark)
	if len(env.branches) != 0 {
		t.Fatalf("call_prim emits its own control transfer via GenCallBranch, not GenBranch")
	}
}

func TestLowerReturnJumpsThroughSavedAddress(t *testing.T) {
	a := asm.New(4096)
	env := newFakeEnv(a)
	s := codegenstate.New(a)

	v0 := ir.ValueRef(0)
	seedReg(s, v0, asm.RBX)

	mark := a.Len()
	if err := Lower(env, s, instr(ir.OpReturn, ir.NoValue, valArg(v0)), a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertDecodes(t, a, mark)
}

func TestLowerThrowCallsHostAndJumpsToHandler(t *testing.T) {
	a := asm.New(4096)
	env := newFakeEnv(a)
	s := codegenstate.New(a)

	v0 := ir.ValueRef(0)
	seedReg(s, v0, asm.RBX)

	mark := a.Len()
	if err := Lower(env, s, instr(ir.OpThrow, ir.NoValue, valArg(v0)), a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertDecodes(t, a, mark)
}
