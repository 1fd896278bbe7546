package codegenstate

import (
	"testing"

	"bbvjit/asm"
	"bbvjit/ir"
)

func assert(t *testing.T, cond bool, format string, args ...any) {
	t.Helper()
	if !cond {
		t.Fatalf(format, args...)
	}
}

func TestFreeRegAllocatesThenSpillsLRU(t *testing.T) {
	a := asm.New(0)
	s := New(a)

	var got []int
	for i := 0; i < len(asm.AllocatableGPRs); i++ {
		v := ir.ValueRef(i)
		reg := s.FreeReg(func(ir.ValueRef) bool { return true })
		s.SetLocation(v, RegLoc(reg))
		s.markOwned(regBit(reg), v)
		got = append(got, reg)
	}
	assert(t, len(got) == len(asm.AllocatableGPRs), "expected %d distinct regs, got %d", len(asm.AllocatableGPRs), len(got))

	// Pool exhausted: FreeReg must spill the oldest (LRU) occupant rather
	// than panic or reuse a live register.
	before := a.Len()
	reg := s.FreeReg(func(ir.ValueRef) bool { return true })
	assert(t, a.Len() > before, "expected a spill store to be emitted")
	assert(t, reg == got[0], "expected LRU victim %d, got %d", got[0], reg)

	loc, ok := s.Location(ir.ValueRef(0))
	assert(t, ok, "spilled value should still be tracked")
	assert(t, loc.Kind == LocStack, "spilled value should demote to LocStack, got %v", loc.Kind)
}

func TestInvariantNoTwoValuesShareARegister(t *testing.T) {
	a := asm.New(0)
	s := New(a)
	seen := make(map[int]ir.ValueRef)
	for i := 0; i < len(asm.AllocatableGPRs); i++ {
		v := ir.ValueRef(i)
		reg := s.FreeReg(func(ir.ValueRef) bool { return true })
		if owner, ok := seen[reg]; ok {
			t.Fatalf("register %d double-allocated to %d and %d", reg, owner, v)
		}
		seen[reg] = v
		s.SetLocation(v, RegLoc(reg))
		s.markOwned(regBit(reg), v)
	}
}

func TestSetTypeRefinesWithoutTouchingLocation(t *testing.T) {
	a := asm.New(0)
	s := New(a)
	v := ir.ValueRef(1)
	s.SetLocation(v, StackLoc(3))
	s.SetType(v, ir.TagInt32)

	loc, _ := s.Location(v)
	assert(t, loc.Kind == LocStack && loc.Slot == 3, "SetType must not move the value")
	assert(t, s.Type(v) == ir.TagInt32, "expected refined type int32, got %v", s.Type(v))
}

func TestCloneIsIndependent(t *testing.T) {
	a := asm.New(0)
	s := New(a)
	v := ir.ValueRef(1)
	s.SetLocation(v, StackLoc(0))
	s.SetType(v, ir.TagUnknown)

	clone := s.Clone()
	clone.SetType(v, ir.TagObject)

	assert(t, s.Type(v) == ir.TagUnknown, "mutating the clone must not affect the original")
	assert(t, clone.Type(v) == ir.TagObject, "clone should carry the refined type")
}

func TestCanonicalizeIgnoresDeadAndScratch(t *testing.T) {
	a := asm.New(0)
	s1 := New(a)
	s2 := New(a)

	live := []ir.ValueRef{1, 2}
	s1.SetLocation(1, RegLoc(asm.AllocatableGPRs[0]))
	s1.SetLocation(2, StackLoc(4))
	s1.SetType(1, ir.TagInt32)

	s2.SetLocation(1, RegLoc(asm.AllocatableGPRs[0]))
	s2.SetLocation(2, StackLoc(4))
	s2.SetType(1, ir.TagInt32)
	// s2 carries an extra dead/scratch value absent from the live set.
	s2.SetLocation(99, RegLoc(asm.AllocatableGPRs[1]))

	c1 := s1.Canonicalize(live)
	c2 := s2.Canonicalize(live)
	assert(t, c1.Equal(c2), "states agreeing on live values must canonicalize equal despite scratch differences")
	assert(t, c1.Hash() == c2.Hash(), "equal canonical forms must hash equal")
}

func TestCanonicalizeDistinguishesDifferentTypes(t *testing.T) {
	a := asm.New(0)
	s1 := New(a)
	s2 := New(a)
	live := []ir.ValueRef{1}
	s1.SetLocation(1, StackLoc(0))
	s1.SetType(1, ir.TagInt32)
	s2.SetLocation(1, StackLoc(0))
	s2.SetType(1, ir.TagFloat64)

	assert(t, !s1.Canonicalize(live).Equal(s2.Canonicalize(live)), "states disagreeing on a live type must canonicalize differently")
}

func TestGeneralizeErasesTypeFacts(t *testing.T) {
	a := asm.New(0)
	s := New(a)
	s.SetLocation(1, StackLoc(0))
	s.SetType(1, ir.TagInt32)

	g := s.Generalize()
	assert(t, g.Type(1) == ir.TagUnknown, "Generalize must erase type facts")
	assert(t, s.Type(1) == ir.TagInt32, "Generalize must not mutate the source state")
}

func TestSpillValuesRespectsPredicate(t *testing.T) {
	a := asm.New(0)
	s := New(a)
	r1 := s.FreeReg(func(ir.ValueRef) bool { return true })
	r2 := s.FreeReg(func(ir.ValueRef) bool { return true })
	s.SetLocation(1, RegLoc(r1))
	s.markOwned(regBit(r1), 1)
	s.SetLocation(2, RegLoc(r2))
	s.markOwned(regBit(r2), 2)

	s.SpillValues(func(v ir.ValueRef) bool { return v == 1 })

	loc1, _ := s.Location(1)
	loc2, _ := s.Location(2)
	assert(t, loc1.Kind == LocStack, "value 1 should have been spilled")
	assert(t, loc2.Kind == LocReg, "value 2 should remain in its register")
}
