package oplower

import (
	"bbvjit/asm"
	"bbvjit/codegenstate"
	"bbvjit/ir"
	"bbvjit/rtbridge"
)

// shapeHostFuncs maps each shape_* opcode to the host helper that walks
// the hidden-class chain for it (§4.3). shape_get_prop has an inline fast
// path (below) and so isn't dispatched through this table.
var shapeHostFuncs = map[ir.Opcode]rtbridge.HostFunc{
	ir.OpShapeGetDef:   rtbridge.FnShapeGetDef,
	ir.OpShapeSetProp:  rtbridge.FnSetProp,
	ir.OpShapeDefConst: rtbridge.FnDefConst,
	ir.OpShapeSetAttrs: rtbridge.FnSetPropAttrs,
	ir.OpShapeParent:   rtbridge.FnShapeParent,
	ir.OpShapePropName: rtbridge.FnShapePropName,
	ir.OpShapeGetAttrs: rtbridge.FnShapeGetAttrs,
}

// lowerShapeHostCall implements every shape_* opcode that has no inline
// fast path: spill live values, call the corresponding host helper with
// the instruction's word arguments in System V order, and take the
// result (if any) from the return registers.
func lowerShapeHostCall(op ir.Opcode) LowerFunc {
	fn := shapeHostFuncs[op]
	return func(env Env, s *codegenstate.State, instr ir.Instr, a *asm.Assembler) error {
		args := make([]codegenstate.Location, len(instr.Args))
		for i := range instr.Args {
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

		if instr.Out != ir.NoValue {
			out := s.GetOutOperand(instr, 64, false, -1)
			a.MovRegReg(out.Reg, asm.RegRetWord, 64)
			s.SetOutType(instr, ir.TagUnknown, asm.RegRetType)
		}
		return nil
	}
}

// Inline-object layout constants for shape_get_prop's fast path: each
// object records its inline slot capacity at objCapOff, has that many
// 8-byte inline slots starting at objSlotsBase, and overflows into an
// extension table reached through objNextOff.
const (
	objCapOff    = 0
	objNextOff   = 8
	objSlotsBase = 16
)

// lowerShapeGetProp implements shape_get_prop(obj, shape) (§4.3): when the
// shape's slot index is within the object's inline capacity, loads
// directly from the inline slot array; otherwise loads from the
// extension table reached through obj.next. The capacity/slot-index
// comparison happens at runtime since the object's capacity can vary
// independently of the shape a given call site has seen before.
func lowerShapeGetProp(env Env, s *codegenstate.State, instr ir.Instr, a *asm.Assembler) error {
	obj := s.GetWordOperand(instr, 0, 64, -1, false, conservativeLive)
	shapeSlotIdx := s.GetWordOperand(instr, 1, 32, -1, false, conservativeLive)

	cap := s.FreeReg(conservativeLive)
	a.LoadMem(cap, obj.Reg, objCapOff, 32, false)
	a.CmpRR(shapeSlotIdx.Reg, cap, 32)
	overflowJump := a.JccRel32(asm.CCAboveEq)

	out := s.GetOutOperand(instr, 64, false, -1)
	slotAddr := s.FreeReg(conservativeLive)
	a.MovRegReg(slotAddr, shapeSlotIdx.Reg, 64)
	a.ShiftRI(4, slotAddr, 3, 64) // slotIdx * 8
	a.AddRR(slotAddr, obj.Reg, 64)
	a.LoadMem(out.Reg, slotAddr, objSlotsBase, 64, false)
	doneJump := a.JmpRel32()

	a.PatchRel32(overflowJump, a.Len())
	ext := s.FreeReg(conservativeLive)
	a.LoadMem(ext, obj.Reg, objNextOff, 64, false)
	extIdx := s.FreeReg(conservativeLive)
	a.MovRegReg(extIdx, shapeSlotIdx.Reg, 64)
	a.SubRR(extIdx, cap, 64) // index within the extension table
	a.ShiftRI(4, extIdx, 3, 64)
	a.AddRR(extIdx, ext, 64)
	a.LoadMem(out.Reg, extIdx, 0, 64, false)

	a.PatchRel32(doneJump, a.Len())
	s.SetOutType(instr, ir.TagUnknown, -1)
	return nil
}
