package oplower

import (
	"bbvjit/asm"
	"bbvjit/codegenstate"
	"bbvjit/ir"
)

// lowerJump implements the unconditional jump opcode: hand the single
// successor off to env.GenBranch with no condition.
func lowerJump(env Env, s *codegenstate.State, instr ir.Instr, a *asm.Assembler) error {
	env.GenBranch(a, -1,
		BranchEdge{Block: instr.BranchT, State: s},
		BranchEdge{Block: ir.NoBlock})
	return nil
}

// lowerIfTrue implements the standalone if_true (unfused with a preceding
// type test or comparison): compare the boolean argument's word against
// the true-constant byte and branch.
func lowerIfTrue(env Env, s *codegenstate.State, instr ir.Instr, a *asm.Assembler) error {
	cond := s.GetWordOperand(instr, 0, 32, -1, false, conservativeLive)
	a.AluRI(7, cond.Reg, 1, 32) // cmp cond, 1
	env.GenBranch(a, asm.CCEqual,
		BranchEdge{Block: instr.BranchT, State: s},
		BranchEdge{Block: instr.BranchF, State: s})
	return nil
}
