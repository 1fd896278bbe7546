package oplower

import (
	"testing"

	"bbvjit/asm"
	"bbvjit/codegenstate"
	"bbvjit/ir"
)

func TestLowerTypeTestStandaloneDynamic(t *testing.T) {
	a := asm.New(4096)
	env := newFakeEnv(a)
	s := codegenstate.New(a)

	v0, out := ir.ValueRef(0), ir.ValueRef(1)
	seedReg(s, v0, asm.RBX)

	mark := a.Len()
	if err := Lower(env, s, instr(ir.OpIsInt32, out, valArg(v0)), a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertDecodes(t, a, mark)
	if s.Type(out) != ir.TagConst {
		t.Fatalf("expected boolean result tagged TagConst, got %v", s.Type(out))
	}
}

func TestLowerTypeTestStaticCollapseEmitsOnlyConstantMov(t *testing.T) {
	a := asm.New(4096)
	env := newFakeEnv(a)
	s := codegenstate.New(a)

	v0, out := ir.ValueRef(0), ir.ValueRef(1)
	s.SetLocation(v0, codegenstate.StackLoc(0))
	s.SetType(v0, ir.TagInt32)

	mark := a.Len()
	if err := Lower(env, s, instr(ir.OpIsInt32, out, valArg(v0)), a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Len() == mark {
		t.Fatalf("expected the materialized-constant mov to still be emitted")
	}
}

// TestFuseTypeTestBranchRefinesTrueEdgeOnly exercises Testable Property 2:
// a fused is_int32+if_true must refine the argument's type on the true
// edge's State without mutating the false edge's (or the entry) State.
func TestFuseTypeTestBranchRefinesTrueEdgeOnly(t *testing.T) {
	a := asm.New(4096)
	env := newFakeEnv(a)
	s := codegenstate.New(a)

	v0, cond := ir.ValueRef(0), ir.ValueRef(1)
	seedReg(s, v0, asm.RBX)

	test := instr(ir.OpIsInt32, cond, valArg(v0))
	ifTrue := instr(ir.OpIfTrue, ir.NoValue, valArg(cond))
	ifTrue.BranchT, ifTrue.BranchF = 1, 2

	if err := FuseTypeTestBranch(env, s, test, ifTrue, a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(env.branches) != 1 {
		t.Fatalf("expected exactly one GenBranch call, got %d", len(env.branches))
	}
	b := env.branches[0]
	if b.t.Block != 1 || b.f.Block != 2 {
		t.Fatalf("unexpected branch targets: %+v", b)
	}
	if b.t.State == s {
		t.Fatalf("true edge must carry a cloned, refined State")
	}
	if b.t.State.Type(v0) != ir.TagInt32 {
		t.Fatalf("expected true edge to refine v0 to int32, got %v", b.t.State.Type(v0))
	}
	if s.Type(v0) != ir.TagUnknown {
		t.Fatalf("entry State must stay unrefined, got %v", s.Type(v0))
	}
	if b.f.State != s {
		t.Fatalf("false edge should reuse the entry State unchanged")
	}
}

func TestFuseTypeTestBranchStaticCollapseSkipsCmp(t *testing.T) {
	a := asm.New(4096)
	env := newFakeEnv(a)
	s := codegenstate.New(a)

	v0, cond := ir.ValueRef(0), ir.ValueRef(1)
	s.SetLocation(v0, codegenstate.StackLoc(0))
	s.SetType(v0, ir.TagInt32)

	test := instr(ir.OpIsInt32, cond, valArg(v0))
	ifTrue := instr(ir.OpIfTrue, ir.NoValue, valArg(cond))
	ifTrue.BranchT, ifTrue.BranchF = 1, 2

	if err := FuseTypeTestBranch(env, s, test, ifTrue, a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(env.branches) != 1 {
		t.Fatalf("expected exactly one GenBranch call, got %d", len(env.branches))
	}
	b := env.branches[0]
	if b.cc != -1 {
		t.Fatalf("expected an unconditional branch for the statically-known case, got cc=%d", b.cc)
	}
	if b.t.Block != 1 || b.f.Block != ir.NoBlock {
		t.Fatalf("expected the true edge alone to be taken, got %+v", b)
	}
}
