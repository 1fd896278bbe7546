package oplower

import (
	"bbvjit/asm"
	"bbvjit/codegenstate"
	"bbvjit/ir"
	"bbvjit/rtbridge"
)

// NewClosAttrs is the Instr.Extra payload for OpNewClos: the captured-cell
// count, per the resolved Open Question (§9) treating NEW_CLOS as
// producing a closure value plus numCaptures boxed cells each later
// written by clos_set_cell.
type NewClosAttrs struct {
	NumCaptures int
}

// lowerNewClos implements new_clos(proto, fun) (§9): delegates
// construction of the closure object and its capture-cell array to the
// host (object layout is the shape/heap runtime's concern, out of this
// core's scope), passing the capture count through as an immediate third
// argument.
func lowerNewClos(env Env, s *codegenstate.State, instr ir.Instr, a *asm.Assembler) error {
	attrs, _ := instr.Extra.(*NewClosAttrs)
	numCaptures := 0
	if attrs != nil {
		numCaptures = attrs.NumCaptures
	}

	proto := s.GetWordOperand(instr, 0, 64, -1, false, conservativeLive)
	fun := s.GetWordOperand(instr, 1, 64, -1, false, conservativeLive)
	s.SpillValues(codegenstate.SpillAll)

	bridge := env.Bridge()
	_, err := bridge.Call(rtbridge.FnNewClos, 0, func() {
		a.MovRegReg(rtbridge.IntArgReg(0), proto.Reg, 64)
		a.MovRegImm32(rtbridge.IntArgReg(1), uint32(numCaptures))
		a.MovRegReg(rtbridge.IntArgReg(2), fun.Reg, 64)
	})
	if err != nil {
		return err
	}

	out := s.GetOutOperand(instr, 64, false, -1)
	a.MovRegReg(out.Reg, asm.RegRetWord, 64)
	s.SetOutType(instr, ir.TagClosure, -1)
	return nil
}

// Capture-cell layout: each cell is a boxed (word, tag) pair starting
// immediately after the closure header, at the same objSlotsBase offset
// where shape.go's inline property slots begin.
const closureCellsBase = objSlotsBase

// lowerClosSetCell implements clos_set_cell(closure, idx, val): writes one
// captured-cell slot directly (no host call — this is pure memory store
// into an already-allocated closure, unlike new_clos's object
// construction).
func lowerClosSetCell(env Env, s *codegenstate.State, instr ir.Instr, a *asm.Assembler) error {
	closure := s.GetWordOperand(instr, 0, 64, -1, false, conservativeLive)
	idxArg := instr.Args[1]

	var disp int32
	if idxArg.IsConst {
		disp = closureCellsBase + idxArg.Const.I32*16
	}
	val := s.GetWordOperand(instr, 2, 64, -1, false, conservativeLive)
	a.StoreMem(closure.Reg, disp, val.Reg, 64)

	typ := s.GetTypeOperand(instr, 2, -1, true)
	if typ.IsImm() {
		tscratch := s.FreeReg(conservativeLive)
		a.MovRegImm32(tscratch, uint32(typ.Word))
		a.StoreMem(closure.Reg, disp+8, tscratch, 8)
	} else {
		a.StoreMem(closure.Reg, disp+8, typ.Reg, 8)
	}
	return nil
}
