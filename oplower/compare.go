package oplower

import (
	"bbvjit/asm"
	"bbvjit/codegenstate"
	"bbvjit/ir"
)

// intCC maps an integer comparison opcode to its signed condition code.
func intCC(op ir.Opcode) byte {
	switch op {
	case ir.OpEq:
		return asm.CCEqual
	case ir.OpNe:
		return asm.CCNotEqual
	case ir.OpLt:
		return asm.CCLess
	case ir.OpLe:
		return asm.CCLessEq
	case ir.OpGt:
		return asm.CCGreater
	case ir.OpGe:
		return asm.CCGreaterEq
	}
	return asm.CCEqual
}

// lowerIntCompare implements the integer comparison family, standalone
// (unfused): cmp the two word operands, materialize the boolean via cmov.
func lowerIntCompare(op ir.Opcode) LowerFunc {
	return func(env Env, s *codegenstate.State, instr ir.Instr, a *asm.Assembler) error {
		width := outWidth(instr)
		left := s.GetWordOperand(instr, 0, width, -1, false, conservativeLive)
		right := s.GetWordOperand(instr, 1, width, -1, false, conservativeLive)
		a.CmpRR(left.Reg, right.Reg, width)

		out := s.GetOutOperand(instr, 8, false, -1)
		one := s.FreeReg(conservativeLive)
		a.MovRegImm32(out.Reg, 0)
		a.MovRegImm32(one, 1)
		a.CmovRR(intCC(op), out.Reg, one, 32)
		s.SetOutType(instr, ir.TagConst, -1)
		return nil
	}
}

// lowerFloatCompare implements the IEEE float comparison family via
// ucomisd, whose flags follow the unordered-compare semantics spelled out
// in §4.3: feq is true only if ZF=1 and PF=0; fne is feq's negation.
func lowerFloatCompare(op ir.Opcode) LowerFunc {
	return func(env Env, s *codegenstate.State, instr ir.Instr, a *asm.Assembler) error {
		left := s.GetWordOperand(instr, 0, 64, -1, false, conservativeLive)
		right := s.GetWordOperand(instr, 1, 64, -1, false, conservativeLive)
		a.MovqRegToXmm(asm.XMM0, left.Reg)
		a.MovqRegToXmm(asm.XMM1, right.Reg)
		a.UcomisdRR(asm.XMM0, asm.XMM1)

		out := s.GetOutOperand(instr, 8, false, -1)
		emitFloatBoolean(s, a, op, out.Reg)
		s.SetOutType(instr, ir.TagConst, -1)
		return nil
	}
}

// emitFloatBoolean materializes op's boolean result into outReg from the
// flags ucomisd just set. feq/fne need the two-flag ZF&!PF combination
// ucomisd's ordered/unordered semantics demand; the ordered relational
// ops (flt/fle/fgt/fge) read directly off the unsigned-style flags
// ucomisd sets (below/belowEq/above/aboveEq), matching the hardware's own
// "unsigned" comparison encoding for floating magnitudes.
func emitFloatBoolean(s *codegenstate.State, a *asm.Assembler, op ir.Opcode, outReg int) {
	one := s.FreeReg(conservativeLive)
	a.MovRegImm32(outReg, 0)
	a.MovRegImm32(one, 1)
	switch op {
	case ir.OpFEq:
		a.CmovRR(asm.CCEqual, outReg, one, 32)
		notParity := s.FreeReg(conservativeLive)
		a.MovRegImm32(notParity, 0)
		a.CmovRR(asm.CCParityOdd, notParity, one, 32)
		a.AndRR(outReg, notParity, 32)
	case ir.OpFNe:
		a.CmovRR(asm.CCNotEqual, outReg, one, 32)
		a.CmovRR(asm.CCParityEven, outReg, one, 32)
	case ir.OpFLt:
		a.CmovRR(asm.CCBelow, outReg, one, 32)
	case ir.OpFLe:
		a.CmovRR(asm.CCBelowEq, outReg, one, 32)
	case ir.OpFGt:
		a.CmovRR(asm.CCAbove, outReg, one, 32)
	case ir.OpFGe:
		a.CmovRR(asm.CCAboveEq, outReg, one, 32)
	}
}

// FuseCompareBranch implements compare+if_true fusion (§4.3): the boolean
// is never materialized; the cmp/ucomisd flags feed a conditional jump
// directly. Comparisons never refine the type map (only type tests do —
// Testable Property 2 is stated in terms of is_* only), so both edges
// share the entry State unchanged.
func FuseCompareBranch(env Env, s *codegenstate.State, cmp ir.Instr, ifTrue ir.Instr, a *asm.Assembler) error {
	if cmp.Op.IsComparison() && isFloatCompare(cmp.Op) {
		left := s.GetWordOperand(cmp, 0, 64, -1, false, conservativeLive)
		right := s.GetWordOperand(cmp, 1, 64, -1, false, conservativeLive)
		a.MovqRegToXmm(asm.XMM0, left.Reg)
		a.MovqRegToXmm(asm.XMM1, right.Reg)
		a.UcomisdRR(asm.XMM0, asm.XMM1)
		return genFloatBranch(env, s, cmp.Op, ifTrue, a)
	}

	width := outWidth(cmp)
	left := s.GetWordOperand(cmp, 0, width, -1, false, conservativeLive)
	right := s.GetWordOperand(cmp, 1, width, -1, false, conservativeLive)
	a.CmpRR(left.Reg, right.Reg, width)
	env.GenBranch(a, intCC(cmp.Op),
		BranchEdge{Block: ifTrue.BranchT, State: s},
		BranchEdge{Block: ifTrue.BranchF, State: s})
	return nil
}

func isFloatCompare(op ir.Opcode) bool {
	switch op {
	case ir.OpFEq, ir.OpFNe, ir.OpFLt, ir.OpFLe, ir.OpFGt, ir.OpFGe:
		return true
	}
	return false
}

// genFloatBranch handles the feq/fne two-flag cases, which can't collapse
// to a single CC the way the ordered relational ops can: feq branches
// true only through the ZF=1,PF=0 combination, so it emits a short
// PF-handling jump ahead of the main conditional branch.
func genFloatBranch(env Env, s *codegenstate.State, op ir.Opcode, ifTrue ir.Instr, a *asm.Assembler) error {
	switch op {
	case ir.OpFLt:
		env.GenBranch(a, asm.CCBelow, BranchEdge{Block: ifTrue.BranchT, State: s}, BranchEdge{Block: ifTrue.BranchF, State: s})
	case ir.OpFLe:
		env.GenBranch(a, asm.CCBelowEq, BranchEdge{Block: ifTrue.BranchT, State: s}, BranchEdge{Block: ifTrue.BranchF, State: s})
	case ir.OpFGt:
		env.GenBranch(a, asm.CCAbove, BranchEdge{Block: ifTrue.BranchT, State: s}, BranchEdge{Block: ifTrue.BranchF, State: s})
	case ir.OpFGe:
		env.GenBranch(a, asm.CCAboveEq, BranchEdge{Block: ifTrue.BranchT, State: s}, BranchEdge{Block: ifTrue.BranchF, State: s})
	case ir.OpFNe:
		// Unordered (PF=1) or unequal both take the true edge.
		env.GenBranch(a, asm.CCParityEven, BranchEdge{Block: ifTrue.BranchT, State: s}, BranchEdge{Block: ir.NoBlock})
		env.GenBranch(a, asm.CCNotEqual, BranchEdge{Block: ifTrue.BranchT, State: s}, BranchEdge{Block: ifTrue.BranchF, State: s})
	case ir.OpFEq:
		// Unordered takes the false edge; otherwise branch on ZF.
		env.GenBranch(a, asm.CCParityEven, BranchEdge{Block: ifTrue.BranchF, State: s}, BranchEdge{Block: ir.NoBlock})
		env.GenBranch(a, asm.CCEqual, BranchEdge{Block: ifTrue.BranchT, State: s}, BranchEdge{Block: ifTrue.BranchF, State: s})
	}
	return nil
}
