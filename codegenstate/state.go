package codegenstate

import (
	"sort"

	"bbvjit/asm"
	"bbvjit/ir"
)

// scratchOwner marks a register FreeReg has reserved for transient scratch
// use (e.g. oplower's bump-pointer heap arithmetic) rather than a tracked
// IR value. Without it FreeReg's free-register scan and its LRU eviction
// path would hand the same register back to two consecutive callers, since
// nothing else records the register as taken; SpillReg treats a
// scratchOwner-held register as holding nothing and just frees it on
// eviction instead of writing back a nonexistent value.
const scratchOwner ir.ValueRef = -2

// regBit returns the bitmask bit for an asm register constant's position
// within the allocatable pool, or -1 if reg isn't allocatable.
func regBit(reg int) int {
	for i, r := range asm.AllocatableGPRs {
		if r == reg {
			return i
		}
	}
	return -1
}

// State is CodeGenState: the entry condition of one block version. It is
// conceptually immutable once a version is interned — BlockVer clones a
// State (via Clone) before mutating it along a type-refining branch or
// while compiling a version's body, never mutating a State two versions
// share.
type State struct {
	a *asm.Assembler

	valueLoc map[ir.ValueRef]Location
	typeMap  map[ir.ValueRef]ir.TypeTag

	// freeMask has one bit per entry in asm.AllocatableGPRs; a set bit
	// means the register is free.
	freeMask uint32
	// owner[i] names the value holding AllocatableGPRs[i], or ir.NoValue
	// if free.
	owner []ir.ValueRef
	// lru records allocation order (oldest first) for FreeReg's
	// least-recently-used spill choice.
	lru []int
}

// New creates an empty State bound to the given Assembler (used to emit
// spill/reload loads) with every allocatable register free.
func New(a *asm.Assembler) *State {
	s := &State{
		a:        a,
		valueLoc: make(map[ir.ValueRef]Location),
		typeMap:  make(map[ir.ValueRef]ir.TypeTag),
		owner:    make([]ir.ValueRef, len(asm.AllocatableGPRs)),
	}
	for i := range s.owner {
		s.owner[i] = ir.NoValue
		s.freeMask |= 1 << uint(i)
	}
	return s
}

// Clone returns a deep-enough copy for persistent, structural
// clone-and-modify use on a type-refining branch edge (§9): maps and
// slices are copied so mutating the clone never affects the original.
func (s *State) Clone() *State {
	c := &State{
		a:        s.a,
		valueLoc: make(map[ir.ValueRef]Location, len(s.valueLoc)),
		typeMap:  make(map[ir.ValueRef]ir.TypeTag, len(s.typeMap)),
		freeMask: s.freeMask,
		owner:    append([]ir.ValueRef(nil), s.owner...),
		lru:      append([]int(nil), s.lru...),
	}
	for k, v := range s.valueLoc {
		c.valueLoc[k] = v
	}
	for k, v := range s.typeMap {
		c.typeMap[k] = v
	}
	return c
}

// SetLocation records v's location directly, without touching the
// register-owner bookkeeping — used when seeding a version's entry state
// (e.g. parameter values start on the stack) or after manual bookkeeping.
func (s *State) SetLocation(v ir.ValueRef, loc Location) {
	s.valueLoc[v] = loc
}

// Location returns v's current location and whether v is tracked as live.
func (s *State) Location(v ir.ValueRef) (Location, bool) {
	l, ok := s.valueLoc[v]
	return l, ok
}

// Type returns v's statically known type, or ir.TagUnknown.
func (s *State) Type(v ir.ValueRef) ir.TypeTag {
	if t, ok := s.typeMap[v]; ok {
		return t
	}
	return ir.TagUnknown
}

// SetType refines the type map along a type-specialized branch (§9). It
// never changes a value's Location.
func (s *State) SetType(v ir.ValueRef, tag ir.TypeTag) {
	s.typeMap[v] = tag
}

// markOwned assigns idx to v and moves it to the most-recently-used end of
// the LRU list. idx may already be owned (FreeReg reserves its result as
// scratchOwner before returning it, so a caller that then hands the
// register to a real value re-owns rather than freshly allocates it) — the
// existing lru entry is removed first so re-ownership doesn't duplicate it.
func (s *State) markOwned(idx int, v ir.ValueRef) {
	for i, x := range s.lru {
		if x == idx {
			s.lru = append(s.lru[:i], s.lru[i+1:]...)
			break
		}
	}
	s.owner[idx] = v
	s.freeMask &^= 1 << uint(idx)
	s.lru = append(s.lru, idx)
}

func (s *State) markFree(idx int) {
	s.owner[idx] = ir.NoValue
	s.freeMask |= 1 << uint(idx)
	for i, x := range s.lru {
		if x == idx {
			s.lru = append(s.lru[:i], s.lru[i+1:]...)
			break
		}
	}
}

// allocFreeReg returns an arbitrary free register's pool index, or -1 if
// none is free.
func (s *State) allocFreeReg() int {
	if s.freeMask == 0 {
		return -1
	}
	for i := 0; i < len(asm.AllocatableGPRs); i++ {
		if s.freeMask&(1<<uint(i)) != 0 {
			return i
		}
	}
	return -1
}

// SpillReg writes the value (if any) currently holding reg back to its
// stack home and demotes its location to Stack. A no-op if reg holds no
// live value.
func (s *State) SpillReg(reg int) {
	idx := regBit(reg)
	if idx < 0 || s.owner[idx] == ir.NoValue {
		return
	}
	v := s.owner[idx]
	if v == scratchOwner {
		s.markFree(idx)
		return
	}
	loc := s.valueLoc[v]
	s.a.StoreMem(asm.RegWordStack, int32(slotOffset(loc.Slot)), reg, 64)
	if s.Type(v) == ir.TagUnknown {
		s.a.StoreMem(asm.RegTypeStack, int32(loc.Slot), reg, 8)
	}
	s.valueLoc[v] = StackLoc(loc.Slot)
	s.markFree(idx)
}

// SpillPredicate selects which live values SpillValues writes back to
// their stack homes; used to distinguish the live-after set (calls that
// return) from the live-before set (calls that throw or longjmp), per §9.
type SpillPredicate func(v ir.ValueRef) bool

// SpillAll is a SpillPredicate matching every live value.
func SpillAll(ir.ValueRef) bool { return true }

// SpillValues spills every live value matching pred — used before host
// calls and GC safepoints so the stack frame is a valid root set
// (Testable Property 6).
func (s *State) SpillValues(pred SpillPredicate) {
	// Collect target slots first: SpillReg mutates valueLoc while we'd
	// otherwise be ranging over it.
	var toSpill []ir.ValueRef
	for v, loc := range s.valueLoc {
		if loc.Kind == LocReg && pred(v) {
			toSpill = append(toSpill, v)
		}
	}
	sort.Slice(toSpill, func(i, j int) bool { return toSpill[i] < toSpill[j] })
	for _, v := range toSpill {
		s.SpillReg(s.valueLoc[v].Reg)
	}
}

// FreeReg returns a register not holding any value live across instr,
// spilling the least-recently-used occupant if every register is in use.
// liveAcross reports whether v survives past the current instruction;
// registers holding dead values are reclaimed for free. The returned
// register is reserved (owned by scratchOwner) before FreeReg returns, so
// two consecutive calls never alias the same register — callers that want
// to hand it off to a tracked value overwrite the ownership themselves
// (markOwned), everyone else just lets it fall out via the next spill.
func (s *State) FreeReg(liveAcross func(v ir.ValueRef) bool) int {
	if idx := s.allocFreeReg(); idx >= 0 {
		s.markOwned(idx, scratchOwner)
		return asm.AllocatableGPRs[idx]
	}
	// Prefer reclaiming a register whose owner is already dead.
	for i, v := range s.owner {
		if v != ir.NoValue && v != scratchOwner && !liveAcross(v) {
			s.markFree(i)
			s.markOwned(i, scratchOwner)
			return asm.AllocatableGPRs[i]
		}
	}
	// Spill the least-recently allocated occupant.
	victim := s.lru[0]
	reg := asm.AllocatableGPRs[victim]
	s.SpillReg(reg)
	s.markOwned(victim, scratchOwner)
	return reg
}

// MapToStack demotes v's location to its stack home without emitting a
// store — used right after a host call, since the callee clobbers GPRs
// and the value's register copy is no longer trustworthy (the value must
// already have been spilled by SpillValues before the call for this to be
// safe; MapToStack only updates bookkeeping).
func (s *State) MapToStack(v ir.ValueRef, homeSlot int) {
	if loc, ok := s.valueLoc[v]; ok && loc.Kind == LocReg {
		s.markFree(regBit(loc.Reg))
	}
	s.valueLoc[v] = StackLoc(homeSlot)
}

func slotOffset(slot int) int { return (slot + 1) * 8 }

// TypeSlotOffset is the parallel type-stack byte offset for slot,
// exported for oplower's direct type-stack stores (SetOutType register
// form).
func TypeSlotOffset(slot int) int32 { return int32(slot) }

// WordSlotOffset is the word-stack byte offset for slot.
func WordSlotOffset(slot int) int32 { return int32(slotOffset(slot)) }
