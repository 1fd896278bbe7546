package codegenstate

import (
	"math"

	"bbvjit/asm"
	"bbvjit/ir"
)

// LiveAcross reports, for a given instruction's lowering, whether value v
// is used again after this instruction (and so must survive it). oplower
// generators supply this from their own liveness bookkeeping; codegenstate
// treats it as an opaque predicate.
type LiveAcross func(v ir.ValueRef) bool

func constWord(c ir.Const) uint64 {
	switch c.Kind {
	case ir.ConstInt32:
		return uint64(uint32(c.I32))
	case ir.ConstFloat64:
		return floatBits(c.F64)
	case ir.ConstBool:
		if c.Bool {
			return 1
		}
		return 0
	case ir.ConstNull, ir.ConstUndefined:
		return 0
	case ir.ConstLinkPlaceholder:
		return uint64(uint32(c.LinkIdx))
	default:
		return 0
	}
}

func constTag(c ir.Const) ir.TypeTag {
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

// GetWordOperand returns a concrete operand from which the word of
// instr.Args[argIdx] can be read at sizeBits. Policy (§4.2): a constant
// source with allowImm returns an immediate; an already-suitable register
// is returned as-is; otherwise a load from the stack home into
// preferredReg is emitted and that register returned. Allocation is
// idempotent within one instruction: calling this twice for the same arg
// returns the same Location without emitting a second load.
func (s *State) GetWordOperand(instr ir.Instr, argIdx int, sizeBits int, preferredReg int, allowImm bool, live LiveAcross) Location {
	arg := instr.Args[argIdx]
	if arg.IsConst {
		if allowImm {
			return ImmLoc(constWord(arg.Const), constTag(arg.Const))
		}
		reg := s.FreeReg(live)
		s.a.MovRegImm64(reg, constWord(arg.Const))
		return RegLoc(reg)
	}
	loc, ok := s.valueLoc[arg.Value]
	if !ok {
		// Value not yet tracked as live at this point in a freshly
		// entered version: its home is the stack slot the IR builder
		// assigned it, loaded below like any other stack-resident value.
		loc = StackLoc(valueHomeSlot(arg.Value))
	}
	switch loc.Kind {
	case LocImmediate:
		if allowImm {
			return loc
		}
		reg := preferredReg
		if reg < 0 {
			reg = s.FreeReg(live)
		}
		s.a.MovRegImm64(reg, loc.Word)
		out := Location{Kind: LocReg, Reg: reg, Slot: valueHomeSlot(arg.Value)}
		s.valueLoc[arg.Value] = out
		s.markOwned(regBit(reg), arg.Value)
		return out
	case LocReg:
		return loc
	case LocStack:
		reg := preferredReg
		if reg < 0 || (s.owner[safeIdx(regBit(reg))] != ir.NoValue && s.owner[safeIdx(regBit(reg))] != arg.Value) {
			reg = s.FreeReg(live)
		}
		s.a.LoadMem(reg, asm.RegWordStack, WordSlotOffset(loc.Slot), sizeBits, true)
		out := Location{Kind: LocReg, Reg: reg, Slot: loc.Slot}
		if idx := regBit(reg); idx >= 0 {
			s.valueLoc[arg.Value] = out
			s.markOwned(idx, arg.Value)
		}
		return out
	default:
		return loc
	}
}

func safeIdx(i int) int {
	if i < 0 {
		return 0
	}
	return i
}

// GetTypeOperand returns an operand for the 8-bit type tag of
// instr.Args[argIdx]. When the tag is statically known (a constant, or a
// known entry in the type map) no load from the type stack is emitted: it
// is returned as an immediate when allowImm is set, and otherwise moved
// into a register with a single mov — the common case that lets type tests
// and dispatch collapse at compile time.
func (s *State) GetTypeOperand(instr ir.Instr, argIdx int, preferredReg int, allowImm bool) Location {
	arg := instr.Args[argIdx]
	known, isKnown := ir.TagUnknown, arg.IsConst
	if arg.IsConst {
		known = constTag(arg.Const)
	} else if t := s.Type(arg.Value); t != ir.TagUnknown {
		known, isKnown = t, true
	}
	if isKnown {
		if allowImm {
			return ImmLoc(uint64(known), known)
		}
		reg := preferredReg
		if reg < 0 {
			reg = s.FreeReg(func(ir.ValueRef) bool { return true })
		}
		s.a.MovRegImm32(reg, uint32(known))
		return RegLoc(reg)
	}
	loc, ok := s.valueLoc[arg.Value]
	slot := valueHomeSlot(arg.Value)
	if ok {
		slot = loc.Slot
	}
	reg := preferredReg
	if reg < 0 {
		reg = s.FreeReg(func(ir.ValueRef) bool { return false })
	}
	s.a.LoadMem(reg, asm.RegTypeStack, TypeSlotOffset(slot), 8, false)
	return RegLoc(reg)
}

// GetOutOperand chooses where instr's result will be written. If the
// result value already owns a free preferred register, that's used; if
// allowInputReuse and the caller names an input register (deadInput), that
// register is reused after the value it holds is spilled to its stack
// home, since callers cannot always tell whether the input is still live;
// otherwise a register is spilled for.
func (s *State) GetOutOperand(instr ir.Instr, sizeBits int, allowInputReuse bool, deadInput int) Location {
	if instr.Out == ir.NoValue {
		return Location{}
	}
	homeSlot := valueHomeSlot(instr.Out)
	if idx := s.allocFreeReg(); idx >= 0 {
		reg := asm.AllocatableGPRs[idx]
		out := Location{Kind: LocReg, Reg: reg, Slot: homeSlot}
		s.valueLoc[instr.Out] = out
		s.markOwned(idx, instr.Out)
		return out
	}
	if allowInputReuse && deadInput >= 0 {
		out := Location{Kind: LocReg, Reg: deadInput, Slot: homeSlot}
		if idx := regBit(deadInput); idx >= 0 {
			s.SpillReg(deadInput)
			s.markOwned(idx, instr.Out)
		}
		s.valueLoc[instr.Out] = out
		return out
	}
	reg := s.FreeReg(func(ir.ValueRef) bool { return true })
	out := Location{Kind: LocReg, Reg: reg, Slot: homeSlot}
	s.valueLoc[instr.Out] = out
	s.markOwned(regBit(reg), instr.Out)
	return out
}

// SetOutType records instr's result type. Passing a concrete tag refines
// the type map directly with no code emitted; passing TagUnknown with a
// register holding the dynamic tag instead emits a byte store into the
// type-stack home and marks the map entry unknown (the type can only be
// recovered from memory from then on).
func (s *State) SetOutType(instr ir.Instr, tag ir.TypeTag, dynamicReg int) {
	if instr.Out == ir.NoValue {
		return
	}
	if tag != ir.TagUnknown {
		s.typeMap[instr.Out] = tag
		return
	}
	loc := s.valueLoc[instr.Out]
	s.a.StoreMem(asm.RegTypeStack, TypeSlotOffset(loc.Slot), dynamicReg, 8)
	delete(s.typeMap, instr.Out)
}

func floatBits(f float64) uint64 {
	return math.Float64bits(f)
}
