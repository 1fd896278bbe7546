package oplower

import (
	"bbvjit/asm"
	"bbvjit/codegenstate"
	"bbvjit/ir"
	"bbvjit/rtbridge"
)

// allocOutTag maps each alloc_* opcode to its fixed output type tag.
func allocOutTag(op ir.Opcode) ir.TypeTag {
	switch op {
	case ir.OpAllocObject:
		return ir.TagObject
	case ir.OpAllocArray:
		return ir.TagArray
	case ir.OpAllocClosure:
		return ir.TagClosure
	case ir.OpAllocString:
		return ir.TagString
	default:
		return ir.TagRefPtr
	}
}

// lowerAlloc implements the heap-allocation family (§4.3): an inline
// bump-pointer check against allocPtr/heapLimit (loaded through the VM
// context pointer at fixed offsets), falling back to a spill-and-collect
// host call when the fast path doesn't have room. vmAllocPtrOffset and
// vmHeapLimitOffset are the VM-context field offsets the embedder's runtime
// layout fixes; out of this core's scope to assign (see Non-goals) — this
// core treats them as constants of its ABI contract with the host.
const (
	vmAllocPtrOffset  = 0
	vmHeapLimitOffset = 8
)

func lowerAlloc(op ir.Opcode) LowerFunc {
	return func(env Env, s *codegenstate.State, instr ir.Instr, a *asm.Assembler) error {
		size := s.GetWordOperand(instr, 0, 64, -1, true, conservativeLive)

		allocPtr := s.FreeReg(conservativeLive)
		newPtr := s.FreeReg(conservativeLive)
		limit := s.FreeReg(conservativeLive)

		a.LoadMem(allocPtr, asm.RegVM, vmAllocPtrOffset, 64, false)
		a.MovRegReg(newPtr, allocPtr, 64)
		if size.IsImm() {
			a.AluRI(0, newPtr, int32(size.Word), 64)
		} else {
			a.AddRR(newPtr, size.Reg, 64)
		}
		a.LoadMem(limit, asm.RegVM, vmHeapLimitOffset, 64, false)
		a.CmpRR(newPtr, limit, 64)

		fallbackJump := a.JccRel32(asm.CCAbove)

		// Fast path: align newPtr to 8 bytes, store back, hand out the
		// old allocPtr as the object's address.
		a.AluRI(0, newPtr, 7, 64)
		a.AluRI(4, newPtr, ^int32(7), 64)
		a.StoreMem(asm.RegVM, vmAllocPtrOffset, newPtr, 64)

		out := s.GetOutOperand(instr, 64, false, -1)
		a.MovRegReg(out.Reg, allocPtr, 64)
		s.SetOutType(instr, allocOutTag(op), -1)

		doneJump := a.JmpRel32()

		a.PatchRel32(fallbackJump, a.Len())
		s.SpillValues(codegenstate.SpillAll)
		bridge := env.Bridge()
		_, err := bridge.Call(rtbridge.FnGCCollect, 0, func() {
			if size.IsImm() {
				a.MovRegImm64(rtbridge.IntArgReg(0), size.Word)
			} else {
				a.MovRegReg(rtbridge.IntArgReg(0), size.Reg, 64)
			}
		})
		if err != nil {
			return err
		}
		a.MovRegReg(out.Reg, asm.RegRetWord, 64)

		a.PatchRel32(doneJump, a.Len())
		return nil
	}
}
