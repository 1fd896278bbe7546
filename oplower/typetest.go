package oplower

import (
	"bbvjit/asm"
	"bbvjit/codegenstate"
	"bbvjit/ir"
)

// lowerTypeTest implements the standalone is_* family (§4.3, steps 1-2 and
// the unfused half of step 4): if the argument's type is statically known
// (a constant, or an entry in State.type_map; no static type-propagation
// analysis is consulted, whatever jitconfig.TypeProp says) the boolean
// result collapses to a compile-time constant: no type load or compare is
// emitted, only a mov of 0 or 1 into the out register; otherwise the type byte is
// compared and the boolean materialized with cmovCC. Fusion with an
// immediately following if_true (step 3 and the fused half of step 4) is
// handled separately by FuseTypeTestBranch, which blockver calls in place
// of this function when it detects the pattern.
func lowerTypeTest(testedTag ir.TypeTag) LowerFunc {
	return func(env Env, s *codegenstate.State, instr ir.Instr, a *asm.Assembler) error {
		arg := instr.Args[0]
		if known, ok := staticTag(s, arg); ok {
			out := s.GetOutOperand(instr, 8, false, -1)
			b := uint32(0)
			if known == testedTag {
				b = 1
			}
			a.MovRegImm32(out.Reg, b)
			s.SetOutType(instr, ir.TagConst, -1)
			return nil
		}

		typeLoc := s.GetTypeOperand(instr, 0, -1, false)
		out := s.GetOutOperand(instr, 8, false, -1)
		one := s.FreeReg(conservativeLive)
		a.MovRegImm32(out.Reg, 0)
		a.MovRegImm32(one, 1)
		cmpAgainstTag(a, typeLoc.Reg, testedTag)
		a.CmovRR(asm.CCEqual, out.Reg, one, 32)
		s.SetOutType(instr, ir.TagConst, -1)
		return nil
	}
}

// staticTag reports the argument's statically known type tag, if any —
// either a constant's own tag or an already-refined State.type_map entry.
func staticTag(s *codegenstate.State, arg ir.Arg) (ir.TypeTag, bool) {
	if arg.IsConst {
		return constTagOf(arg.Const), true
	}
	if t := s.Type(arg.Value); t != ir.TagUnknown {
		return t, true
	}
	return ir.TagUnknown, false
}

func constTagOf(c ir.Const) ir.TypeTag {
	switch c.Kind {
	case ir.ConstInt32:
		return ir.TagInt32
	case ir.ConstFloat64:
		return ir.TagFloat64
	case ir.ConstBool, ir.ConstNull, ir.ConstUndefined:
		return ir.TagConst
	case ir.ConstString:
		return ir.TagString
	case ir.ConstFuncRef:
		return ir.TagFunPtr
	default:
		return ir.TagUnknown
	}
}

// cmpAgainstTag emits `cmp typeReg, imm8(testedTag)` via the group-1
// immediate form (reusing AluRI's /7 compare digit).
func cmpAgainstTag(a *asm.Assembler, typeReg int, tag ir.TypeTag) {
	a.AluRI(7, typeReg, int32(tag), 32)
}

// FuseTypeTestBranch implements the fused is_*+if_true pattern (§4.3
// steps 3-4): blockver calls this in place of separately lowering the
// type-test and the if_true when the if_true's sole argument is the type
// test's out value. It emits either a direct unconditional jump (static
// collapse) or a cmp+conditional-jump (dynamic case), and always attaches
// the type refinement to the true-edge State (Testable Property 2).
func FuseTypeTestBranch(env Env, s *codegenstate.State, test ir.Instr, ifTrue ir.Instr, a *asm.Assembler) error {
	testedTag := test.Op.TestedTag()
	arg := test.Args[0]

	trueState := s
	if !arg.IsConst {
		trueState = s.Clone()
		trueState.SetType(arg.Value, testedTag)
	}
	falseState := s

	if known, ok := staticTag(s, arg); ok {
		if known == testedTag {
			env.GenBranch(a, -1,
				BranchEdge{Block: ifTrue.BranchT, State: trueState},
				BranchEdge{Block: ir.NoBlock})
		} else {
			env.GenBranch(a, -1,
				BranchEdge{Block: ifTrue.BranchF, State: falseState},
				BranchEdge{Block: ir.NoBlock})
		}
		return nil
	}

	typeLoc := s.GetTypeOperand(test, 0, -1, false)
	cmpAgainstTag(a, typeLoc.Reg, testedTag)
	env.GenBranch(a, asm.CCEqual,
		BranchEdge{Block: ifTrue.BranchT, State: trueState},
		BranchEdge{Block: ifTrue.BranchF, State: falseState})
	return nil
}
