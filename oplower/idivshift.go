package oplower

import (
	"bbvjit/asm"
	"bbvjit/codegenstate"
	"bbvjit/ir"
)

// lowerDivMod implements integer divide/modulo (§4.3): the dividend moves
// into RAX, RAX is sign-extended into RDX, idiv executes against the
// divisor register, and the quotient (RAX) or remainder (RDX) is copied
// out. RAX and RDX are both outside asm.AllocatableGPRs (RegRetWord and
// RegDivHigh respectively), so codegenstate never holds a live value in
// either — no explicit spill of the fixed hardware registers is needed
// before clobbering them.
func lowerDivMod(wantRemainder bool) LowerFunc {
	return func(env Env, s *codegenstate.State, instr ir.Instr, a *asm.Assembler) error {
		width := outWidth(instr)
		dividend := s.GetWordOperand(instr, 0, width, -1, false, conservativeLive)
		a.MovRegReg(asm.RAX, dividend.Reg, width)
		a.CqoOrCdq(width)

		divisor := s.GetWordOperand(instr, 1, width, -1, false, conservativeLive)

		a.IdivR(divisor.Reg, width)

		out := s.GetOutOperand(instr, width, false, -1)
		if wantRemainder {
			a.MovRegReg(out.Reg, asm.RegDivHigh, width)
		} else {
			a.MovRegReg(out.Reg, asm.RegRetWord, width)
		}
		s.SetOutType(instr, outTagForWidth(width), -1)
		return nil
	}
}

// The shiftDigit* constants select the group-2 /digit for each shift opcode:
// OpShl is a plain logical left shift; OpShr is arithmetic (sign-
// preserving) right shift per its doc comment in ir/opcode.go; OpUShr is
// logical (zero-filling) right shift.
const (
	shiftDigitShl = 4
	shiftDigitShr = 7 // sar
	shiftDigitUShr = 5 // shr
)

// lowerShift implements the shift family (§4.3): a constant count is
// masked to 5 bits and emitted directly; a dynamic count is moved into CL
// (RCX, which is RegShiftCount == RegRetType and so already excluded from
// AllocatableGPRs) before the shift executes.
func lowerShift(digit byte) LowerFunc {
	return func(env Env, s *codegenstate.State, instr ir.Instr, a *asm.Assembler) error {
		width := outWidth(instr)
		shiftee := s.GetWordOperand(instr, 0, width, -1, false, conservativeLive)

		out := s.GetOutOperand(instr, width, true, shiftee.Reg)
		if out.Reg != shiftee.Reg {
			a.MovRegReg(out.Reg, shiftee.Reg, width)
		}

		countArg := instr.Args[1]
		if countArg.IsConst {
			count := s.GetWordOperand(instr, 1, width, -1, true, conservativeLive)
			a.ShiftRI(digit, out.Reg, byte(count.Word), width)
		} else {
			count := s.GetWordOperand(instr, 1, width, asm.RegShiftCount, false, conservativeLive)
			if count.Reg != asm.RegShiftCount {
				a.MovRegReg(asm.RegShiftCount, count.Reg, width)
			}
			a.ShiftRCL(digit, out.Reg, width)
		}
		s.SetOutType(instr, outTagForWidth(width), -1)
		return nil
	}
}
