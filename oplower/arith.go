package oplower

import (
	"bbvjit/asm"
	"bbvjit/codegenstate"
	"bbvjit/ir"
)

// conservativeLive is the LiveAcross predicate oplower passes to
// codegenstate when it has no finer-grained liveness information of its
// own: every value is assumed to still be needed, which only ever costs
// an extra spill, never a wrongly-reused register (Testable Property 1).
func conservativeLive(ir.ValueRef) bool { return true }

func outWidth(instr ir.Instr) int {
	if instr.OutWidth != 0 {
		return instr.OutWidth
	}
	return 32
}

func outTagForWidth(w int) ir.TypeTag {
	if w == 64 {
		return ir.TagInt64
	}
	return ir.TagInt32
}

// aluFamily holds the two encodings an ALU family entry needs: the
// register-register emitter and the group-1-immediate /digit.
type aluFamily struct {
	rr    func(a *asm.Assembler, dst, src int, width int)
	idigit byte
}

var addFamily = aluFamily{rr: (*asm.Assembler).AddRR, idigit: 0}
var subFamily = aluFamily{rr: (*asm.Assembler).SubRR, idigit: 5}
var andFamily = aluFamily{rr: (*asm.Assembler).AndRR, idigit: 4}
var orFamily = aluFamily{rr: (*asm.Assembler).OrRR, idigit: 1}
var xorFamily = aluFamily{rr: (*asm.Assembler).XorRR, idigit: 6}

// lowerALU implements the add/sub/and/or/xor family (§4.3): fetch two
// operands, pick an output register preferring reuse of the left operand's
// register, emit the op, and — for the _ovf variants — branch on the
// overflow flag the instruction itself set.
func lowerALU(fam aluFamily, ovf bool) LowerFunc {
	return func(env Env, s *codegenstate.State, instr ir.Instr, a *asm.Assembler) error {
		width := outWidth(instr)
		left := s.GetWordOperand(instr, 0, width, -1, false, conservativeLive)
		right := s.GetWordOperand(instr, 1, width, -1, true, conservativeLive)

		out := s.GetOutOperand(instr, width, true, left.Reg)
		if out.Reg != left.Reg {
			a.MovRegReg(out.Reg, left.Reg, width)
		}

		if right.IsImm() && fitsInt32(right.Word) {
			a.AluRI(fam.idigit, out.Reg, int32(right.Word), width)
		} else {
			rr := right
			if rr.Kind != codegenstate.LocReg {
				rr = s.GetWordOperand(instr, 1, width, -1, false, conservativeLive)
			}
			fam.rr(a, out.Reg, rr.Reg, width)
		}
		s.SetOutType(instr, outTagForWidth(width), -1)

		if ovf {
			env.GenBranch(a, asm.CCNotOverflow,
				BranchEdge{Block: instr.BranchT, State: s},
				BranchEdge{Block: instr.BranchF, State: s})
		}
		return nil
	}
}

func fitsInt32(w uint64) bool {
	v := int64(int32(w))
	return uint64(v) == w
}

// lowerMul implements signed imul (two-operand form), with the _ovf
// variant branching on imul's own overflow flag exactly like the additive
// family.
func lowerMul(ovf bool) LowerFunc {
	return func(env Env, s *codegenstate.State, instr ir.Instr, a *asm.Assembler) error {
		width := outWidth(instr)
		left := s.GetWordOperand(instr, 0, width, -1, false, conservativeLive)
		right := s.GetWordOperand(instr, 1, width, -1, false, conservativeLive)

		out := s.GetOutOperand(instr, width, true, left.Reg)
		if out.Reg != left.Reg {
			a.MovRegReg(out.Reg, left.Reg, width)
		}
		a.ImulRR(out.Reg, right.Reg, width)
		s.SetOutType(instr, outTagForWidth(width), -1)

		if ovf {
			env.GenBranch(a, asm.CCNotOverflow,
				BranchEdge{Block: instr.BranchT, State: s},
				BranchEdge{Block: instr.BranchF, State: s})
		}
		return nil
	}
}
