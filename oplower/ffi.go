package oplower

import (
	"strings"

	"github.com/pkg/errors"

	"bbvjit/asm"
	"bbvjit/codegenstate"
	"bbvjit/ir"
)

// ffiSig parses the "ret,arg0,arg1,..." signature string (§6) into a
// return kind and per-argument kinds.
type ffiSig struct {
	ret  string
	args []string
}

func parseFFISig(sig string) (ffiSig, error) {
	parts := strings.Split(sig, ",")
	if len(parts) == 0 {
		return ffiSig{}, errors.Errorf("call_ffi: empty signature")
	}
	return ffiSig{ret: parts[0], args: parts[1:]}, nil
}

func ffiIsFloat(kind string) bool { return kind == "f64" }

func ffiWidth(kind string) int {
	switch kind {
	case "i8", "u8":
		return 8
	case "i16", "u16":
		return 16
	case "i32", "u32":
		return 32
	default:
		return 64
	}
}

// lowerCallFFI implements call_ffi(signature, fp, args...) (§4.3, §6):
// integer/pointer arguments fill the System V integer argument registers
// in order, float arguments fill the float argument registers (modeled
// here as XMM0/XMM1 — this core reserves no more than two float argument
// slots, matching the two scratch XMM registers §4.3's float-arithmetic
// family already uses), overflow args are unsupported pending a real
// stack-argument marshaling path (rejected as a malformed-IR fault rather
// than silently mis-marshaled). Instr.Extra carries *ir.FFIAttrs.
func lowerCallFFI(env Env, s *codegenstate.State, instr ir.Instr, a *asm.Assembler) error {
	attrs, _ := instr.Extra.(*ir.FFIAttrs)
	if attrs == nil {
		return errors.Wrap(ErrIRMalformed, "call_ffi: missing FFIAttrs")
	}
	sig, err := parseFFISig(attrs.Signature)
	if err != nil {
		return errors.Wrap(ErrIRMalformed, err.Error())
	}

	fp := s.GetWordOperand(instr, 0, 64, -1, false, conservativeLive)

	intArgIdx, fltArgIdx := 0, 0
	intRegs := []int{asm.RDI, asm.RSI, asm.RDX, asm.RCX, asm.R8, asm.R9}
	type pending struct {
		loc   codegenstate.Location
		float bool
		reg   int
	}
	var moves []pending
	for i, kind := range sig.args {
		loc := s.GetWordOperand(instr, 1+i, ffiWidth(kind), -1, false, conservativeLive)
		if ffiIsFloat(kind) {
			if fltArgIdx >= 2 {
				return errors.Wrap(ErrIRMalformed, "call_ffi: more than 2 float arguments unsupported")
			}
			moves = append(moves, pending{loc: loc, float: true, reg: asm.XMM0 + fltArgIdx})
			fltArgIdx++
		} else {
			if intArgIdx >= len(intRegs) {
				return errors.Wrap(ErrIRMalformed, "call_ffi: more than 6 integer arguments unsupported")
			}
			moves = append(moves, pending{loc: loc, reg: intRegs[intArgIdx]})
			intArgIdx++
		}
	}

	s.SpillValues(codegenstate.SpillAll)

	// fp must survive into the post-Enter sequence since the argument
	// moves below may clobber any caller-saved register, including
	// whichever one fp started in — stash it in a scratch register
	// untouched by SaveJITRegs/LoadJITRegs.
	fpReg := asm.ScratchA
	a.MovRegReg(fpReg, fp.Reg, 64)

	pad := env.Bridge().Enter(0)
	for _, m := range moves {
		if m.float {
			a.MovqRegToXmm(m.reg, m.loc.Reg)
		} else if m.loc.Reg != m.reg {
			a.MovRegReg(m.reg, m.loc.Reg, 64)
		}
	}
	a.MovRegReg(asm.ScratchB, fpReg, 64)
	a.CallIndirect(asm.ScratchB)
	env.Bridge().Exit(pad)

	if instr.Out != ir.NoValue {
		out := s.GetOutOperand(instr, 64, false, -1)
		outTag := ir.TagInt64
		switch {
		case sig.ret == "void":
			outTag = ir.TagConst
		case ffiIsFloat(sig.ret):
			a.MovqXmmToReg(out.Reg, asm.XMM0)
			outTag = ir.TagFloat64
		default:
			a.MovRegReg(out.Reg, asm.RegRetWord, 64)
			if ffiWidth(sig.ret) <= 32 {
				outTag = ir.TagInt32
			}
		}
		s.SetOutType(instr, outTag, -1)
	}
	return nil
}
