package oplower

import (
	"testing"

	"bbvjit/asm"
	"bbvjit/codegenstate"
	"bbvjit/ir"
)

func TestLowerJumpDelegatesToGenBranchUnconditionally(t *testing.T) {
	a := asm.New(4096)
	env := newFakeEnv(a)
	s := codegenstate.New(a)

	in := instr(ir.OpJump, ir.NoValue)
	in.BranchT = 5
	if err := Lower(env, s, in, a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(env.branches) != 1 || env.branches[0].cc != -1 || env.branches[0].t.Block != 5 {
		t.Fatalf("unexpected branch: %+v", env.branches)
	}
}

func TestLowerIfTrueStandaloneComparesAgainstTrueConstant(t *testing.T) {
	a := asm.New(4096)
	env := newFakeEnv(a)
	s := codegenstate.New(a)

	cond := ir.ValueRef(0)
	seedReg(s, cond, asm.RBX)

	in := instr(ir.OpIfTrue, ir.NoValue, valArg(cond))
	in.BranchT, in.BranchF = 1, 2

	mark := a.Len()
	if err := Lower(env, s, in, a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertDecodes(t, a, mark)
	if len(env.branches) != 1 || env.branches[0].cc != asm.CCEqual {
		t.Fatalf("expected a CCEqual branch, got %+v", env.branches)
	}
}
