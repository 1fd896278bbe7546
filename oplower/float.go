package oplower

import (
	"bbvjit/asm"
	"bbvjit/codegenstate"
	"bbvjit/ir"
	"bbvjit/rtbridge"
)

// lowerFArith implements the float add/sub/mul/div family (§4.3): both
// operands' bit patterns move from GPRs into XMM0/XMM1, the scalar-double
// op executes, and the result moves back into a GPR for the out operand —
// codegenstate only tracks word locations in GPRs/stack/immediates, never
// XMM registers directly, so XMM0/XMM1 are scratch for the duration of one
// instruction's lowering.
func lowerFArith(op func(a *asm.Assembler, dst, src int)) LowerFunc {
	return func(env Env, s *codegenstate.State, instr ir.Instr, a *asm.Assembler) error {
		left := s.GetWordOperand(instr, 0, 64, -1, false, conservativeLive)
		right := s.GetWordOperand(instr, 1, 64, -1, false, conservativeLive)

		a.MovqRegToXmm(asm.XMM0, left.Reg)
		a.MovqRegToXmm(asm.XMM1, right.Reg)
		op(a, asm.XMM0, asm.XMM1)

		out := s.GetOutOperand(instr, 64, false, -1)
		a.MovqXmmToReg(out.Reg, asm.XMM0)
		s.SetOutType(instr, ir.TagFloat64, -1)
		return nil
	}
}

// lowerFTranscendental routes a unary or binary transcendental float op
// through a host helper: no x86-64 instruction computes sin/cos/log/pow
// directly, so the call is bracketed by rtbridge the same way any other
// host invocation is (§4.3, §4.5). Arguments are loaded into the first
// two System V integer argument registers carrying the raw float64 bit
// pattern (the host helper reinterprets); the result comes back in
// asm.RegRetWord the same way any other word-returning host call does.
func lowerFTranscendental(fn rtbridge.HostFunc, arity int) LowerFunc {
	return func(env Env, s *codegenstate.State, instr ir.Instr, a *asm.Assembler) error {
		args := make([]codegenstate.Location, arity)
		for i := 0; i < arity; i++ {
			args[i] = s.GetWordOperand(instr, i, 64, -1, false, conservativeLive)
		}
		s.SpillValues(codegenstate.SpillAll)

		bridge := env.Bridge()
		_, err := bridge.Call(fn, 0, func() {
			for i, loc := range args {
				reg := rtbridge.IntArgReg(i)
				if loc.Reg != reg {
					a.MovRegReg(reg, loc.Reg, 64)
				}
			}
		})
		if err != nil {
			return err
		}

		out := s.GetOutOperand(instr, 64, false, -1)
		a.MovRegReg(out.Reg, asm.RegRetWord, 64)
		s.SetOutType(instr, ir.TagFloat64, -1)
		return nil
	}
}
