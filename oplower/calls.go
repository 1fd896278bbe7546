package oplower

import (
	"hash/fnv"

	"bbvjit/asm"
	"bbvjit/codegenstate"
	"bbvjit/ir"
	"bbvjit/rtbridge"
)

// Reserved frame-slot indices at the base of every callee frame (§6):
// return address, closure, this, argc, then formals.
const (
	slotRetAddr     = 0
	slotClosure     = 1
	slotThis        = 2
	slotArgc        = 3
	slotFirstFormal = 4
)

func frameWordOffset(slot int) int32 { return codegenstate.WordSlotOffset(slot) }
func frameTypeOffset(slot int) int32 { return codegenstate.TypeSlotOffset(slot) }

// writeCallFrame spills every live value, then copies argVals (already
// resolved word/type Locations for each provided argument) into the
// callee's formal slots at negative offsets from the current stack
// pointers, before the pointers are lowered by frameSize (§4.3's `call`
// and `call_prim` share this shape).
func writeCallFrame(s *codegenstate.State, a *asm.Assembler, argVals []codegenstate.Location, frameSize int) {
	s.SpillValues(codegenstate.SpillAll)
	for i, v := range argVals {
		slot := slotFirstFormal + i
		off := frameWordOffset(slot) - int32(frameSize)
		a.StoreMem(asm.RegWordStack, off, v.Reg, 64)
		if v.Tag != ir.TagUnknown {
			tscratch := v.Reg
			a.MovRegImm32(tscratch, uint32(v.Tag))
			a.StoreMem(asm.RegTypeStack, frameTypeOffset(slot)-int32(frameSize), tscratch, 8)
		}
	}
}

func lowerStackPointers(a *asm.Assembler, frameSize int) {
	a.AluRI(5, asm.RegWordStack, int32(frameSize), 64) // sub
	a.AluRI(5, asm.RegTypeStack, int32(frameSize/8), 64)
}

// writeReturnAddress emits the placeholder for the continuation's entry
// address and records a RefAbs64 against it, to be patched once the
// continuation version's start address is known (§4.4 Realize).
func writeReturnAddress(env Env, s *codegenstate.State, a *asm.Assembler, cont, exc BranchEdge, frameSize int) {
	contV, _ := env.GenCallBranch(cont, exc)
	scratch := asm.ScratchA
	a.MovRegImm64(scratch, 0)
	off := a.Len() - 8
	a.RecordRef(off, asm.RefAbs64, contV)
	a.StoreMem(asm.RegWordStack, frameWordOffset(slotRetAddr)-int32(frameSize), scratch, 64)
}

// primLinkWord derives a stable link-table cell key from a primitive's
// name, so two call_prim sites naming the same host primitive dedup onto
// the same link-table slot (linktable.Table.Intern's dedup is keyed on the
// (word, tag) pair) while distinct names never collide onto slot zero.
func primLinkWord(name string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(name))
	return h.Sum64()
}

// lowerCallPrim implements call_prim(name, args...) (§4.3): a fixed-arity
// call to a host-installed primitive closure resolved at compile time via
// the link table. Arity mismatches are an IR well-formedness fault.
func lowerCallPrim(env Env, s *codegenstate.State, instr ir.Instr, a *asm.Assembler) error {
	attrs, _ := instr.Extra.(*ir.CallPrimAttrs)
	if attrs == nil || attrs.Arity != len(instr.Args) {
		return ErrIRMalformed
	}

	args := make([]codegenstate.Location, len(instr.Args))
	for i := range instr.Args {
		args[i] = s.GetWordOperand(instr, i, 64, -1, false, conservativeLive)
	}

	frameSize := (slotFirstFormal + len(args)) * 8
	writeCallFrame(s, a, args, frameSize)

	cont := BranchEdge{Block: instr.BranchT, State: s}
	exc := BranchEdge{Block: instr.BranchF, State: s}
	writeReturnAddress(env, s, a, cont, exc, frameSize)
	lowerStackPointers(a, frameSize)

	idx := env.LinkTable().Intern(primLinkWord(attrs.Name), ir.TagFunPtr)
	entryReg := asm.ScratchB
	a.LoadMem(entryReg, asm.RegVM, int32(idx)*8, 64, false)
	a.JmpIndirect(entryReg)
	return nil
}

// lowerCall implements call(closure, this, args...) (§4.3): guards the
// callee's tag is CLOSURE and jumps through the closure's entry-code
// pointer; only the provided arguments are copied into the callee frame,
// and argument slots the callee declares beyond them are not initialized
// (a lazily-compiled
// trampoline on the callee side, out of this core's scope to construct —
// see rtbridge.FnNewClos / blockver's stub discipline for the analogous
// lazy mechanism on this side).
func lowerCall(env Env, s *codegenstate.State, instr ir.Instr, a *asm.Assembler) error {
	closureLoc := s.GetWordOperand(instr, 0, 64, -1, false, conservativeLive)
	closureType := s.GetTypeOperand(instr, 0, -1, false)

	a.AluRI(7, closureType.Reg, int32(ir.TagClosure), 32)
	notClosureJump := a.JccRel32(asm.CCNotEqual)
	excEdge := BranchEdge{Block: instr.BranchF, State: s}
	if instr.BranchF != ir.NoBlock {
		excV, _ := env.GenCallBranch(BranchEdge{Block: ir.NoBlock}, excEdge)
		a.RecordRef(notClosureJump, asm.RefRel32, excV)
	}

	providedArgs := instr.Args[2:]
	args := make([]codegenstate.Location, len(providedArgs))
	for i := range providedArgs {
		args[i] = s.GetWordOperand(instr, 2+i, 64, -1, false, conservativeLive)
	}

	frameSize := (slotFirstFormal + len(args)) * 8
	writeCallFrame(s, a, args, frameSize)

	thisLoc := s.GetWordOperand(instr, 1, 64, -1, false, conservativeLive)
	a.StoreMem(asm.RegWordStack, frameWordOffset(slotThis)-int32(frameSize), thisLoc.Reg, 64)
	a.StoreMem(asm.RegWordStack, frameWordOffset(slotClosure)-int32(frameSize), closureLoc.Reg, 64)

	argcReg := asm.ScratchA
	a.MovRegImm32(argcReg, uint32(len(args)))
	a.StoreMem(asm.RegWordStack, frameWordOffset(slotArgc)-int32(frameSize), argcReg, 64)

	cont := BranchEdge{Block: instr.BranchT, State: s}
	writeReturnAddress(env, s, a, cont, BranchEdge{Block: ir.NoBlock}, frameSize)
	lowerStackPointers(a, frameSize)

	entryReg := asm.ScratchB
	a.LoadMem(entryReg, closureLoc.Reg, 0, 64, false)
	a.JmpIndirect(entryReg)
	return nil
}

// lowerCallApply implements call_apply(closure, this, arg_array) (§4.3):
// bails out entirely to a host helper that unpacks the array, builds the
// callee frame, and hands back the callee's entry code pointer.
func lowerCallApply(env Env, s *codegenstate.State, instr ir.Instr, a *asm.Assembler) error {
	closure := s.GetWordOperand(instr, 0, 64, -1, false, conservativeLive)
	this := s.GetWordOperand(instr, 1, 64, -1, false, conservativeLive)
	arr := s.GetWordOperand(instr, 2, 64, -1, false, conservativeLive)
	s.SpillValues(codegenstate.SpillAll)

	bridge := env.Bridge()
	_, err := bridge.Call(rtbridge.FnCallApplyUnpack, 0, func() {
		regs := []codegenstate.Location{closure, this, arr}
		for i, loc := range regs {
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
	a.JmpIndirect(out.Reg)
	return nil
}

// lowerReturn implements the return opcode (§4.3): moves the word/type
// result into the reserved return registers, computes any extra
// arguments beyond the callee's declared parameters (elided for
// primitive, fixed-arity callees), pops the frame, and jumps through the
// saved return address.
func lowerReturn(env Env, s *codegenstate.State, instr ir.Instr, a *asm.Assembler) error {
	if len(instr.Args) > 0 {
		word := s.GetWordOperand(instr, 0, 64, -1, false, conservativeLive)
		a.MovRegReg(asm.RegRetWord, word.Reg, 64)
		typ := s.GetTypeOperand(instr, 0, -1, true)
		if typ.IsImm() {
			a.MovRegImm32(asm.RegRetType, uint32(typ.Word))
		} else {
			a.MovRegReg(asm.RegRetType, typ.Reg, 32)
		}
	}

	retAddr := asm.ScratchA
	a.LoadMem(retAddr, asm.RegWordStack, frameWordOffset(slotRetAddr), 64, false)

	// extra = max(argc - numParams, 0): arguments the caller provided
	// beyond this function's declared parameters still occupy frame slots
	// the caller allocated, and the combined frame (locals, i.e.
	// FrameSlots, plus extra) is what must be popped to undo the caller's
	// lowerStackPointers.
	extra := asm.ScratchB
	a.LoadMem(extra, asm.RegWordStack, frameWordOffset(slotArgc), 64, false)
	a.AluRI(5, extra, int32(env.NumParams()), 64) // sub
	notNegative := a.JccRel32(asm.CCGreaterEq)
	a.MovRegImm32(extra, 0)
	a.PatchRel32(notNegative, a.Len())

	slots := extra
	a.AluRI(0, slots, int32(env.FrameSlots()), 64) // slots = FrameSlots + extra
	a.ShiftRI(4, slots, 3, 64)                     // slots now holds the byte count
	a.AddRR(asm.RegWordStack, slots, 64)
	a.ShiftRI(5, slots, 3, 64) // back to slot units for the parallel type stack
	a.AddRR(asm.RegTypeStack, slots, 64)

	a.JmpIndirect(retAddr)
	return nil
}

// lowerThrow implements the throw opcode (§4.3): spill live values, call
// the host throwExc helper, and jump to the handler code pointer it
// returns.
func lowerThrow(env Env, s *codegenstate.State, instr ir.Instr, a *asm.Assembler) error {
	word := s.GetWordOperand(instr, 0, 64, -1, false, conservativeLive)
	typ := s.GetTypeOperand(instr, 0, -1, false)
	s.SpillValues(codegenstate.SpillAll)

	bridge := env.Bridge()
	_, err := bridge.Call(rtbridge.FnThrowExc, 0, func() {
		a.MovRegReg(rtbridge.IntArgReg(3), word.Reg, 64)
		a.MovRegReg(rtbridge.IntArgReg(4), typ.Reg, 64)
	})
	if err != nil {
		return err
	}
	a.JmpIndirect(asm.RegRetWord)
	return nil
}
