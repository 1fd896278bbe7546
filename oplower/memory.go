package oplower

import (
	"bbvjit/asm"
	"bbvjit/codegenstate"
	"bbvjit/ir"
)

// addrOperands resolves a load/store's base+offset addressing: arg 0 is
// the base pointer (always a register — GetWordOperand materializes a
// constant or stack-resident base into one), arg 1, if present, is a
// constant byte displacement folded directly into the ModRM disp field
// rather than materialized into a register.
func addrOperands(s *codegenstate.State, instr ir.Instr) (base int, disp int32) {
	baseLoc := s.GetWordOperand(instr, 0, 64, -1, false, conservativeLive)
	base = baseLoc.Reg
	if len(instr.Args) > 1 && instr.Args[1].IsConst {
		disp = int32(instr.Args[1].Const.I32)
	}
	return base, disp
}

// lowerLoad implements OpLoad at instr.OutWidth (§4.3): the output type
// tag is fixed per the load's Extra (*ir.MemAttrs).OutTag, set statically
// with no runtime type-stack write needed.
func lowerLoad(env Env, s *codegenstate.State, instr ir.Instr, a *asm.Assembler) error {
	attrs, _ := instr.Extra.(*ir.MemAttrs)
	signed := attrs != nil && attrs.Signed
	width := outWidth(instr)

	base, disp := addrOperands(s, instr)
	out := s.GetOutOperand(instr, 64, false, -1)
	a.LoadMem(out.Reg, base, disp, width, signed)

	tag := ir.TagInt32
	if attrs != nil {
		tag = attrs.OutTag
	}
	s.SetOutType(instr, tag, -1)
	return nil
}

// lowerStore implements OpStore: the value argument is instr.Args[2] when
// a displacement constant occupies Args[1], or Args[1] when the address
// is base-only (GetWordOperand's idempotency means probing Args[1] as a
// potential displacement const never double-allocates it as a value
// operand by mistake — the two argument shapes are disjoint by
// instr.Args[1].IsConst).
func lowerStore(env Env, s *codegenstate.State, instr ir.Instr, a *asm.Assembler) error {
	width := outWidth(instr)
	base, disp := addrOperands(s, instr)

	valIdx := 1
	if len(instr.Args) > 1 && instr.Args[1].IsConst {
		valIdx = 2
	}
	val := s.GetWordOperand(instr, valIdx, width, -1, false, conservativeLive)
	a.StoreMem(base, disp, val.Reg, width)
	return nil
}
