// Package codegenstate implements CodeGenState, the keystone of
// Basic-Block Versioning: for one program point, it tracks where each live
// IR value currently lives (stack slot, register, or immediate) and what
// is statically known about its dynamic type.
package codegenstate

import "bbvjit/ir"

// LocKind distinguishes the three forms a value's location can take.
type LocKind uint8

const (
	LocStack LocKind = iota
	LocReg
	LocImmediate
)

// Location is where one live IR value's word currently resides.
type Location struct {
	Kind LocKind
	Slot int         // the value's stack home: valid when Kind == LocStack, and also carried on LocReg so SpillReg knows where to write the register back
	Reg  int         // valid when Kind == LocReg; an asm register constant
	Word uint64      // valid when Kind == LocImmediate
	Tag  ir.TypeTag  // valid when Kind == LocImmediate (invariant 3: must equal type_map[v] when known)
}

func StackLoc(slot int) Location  { return Location{Kind: LocStack, Slot: slot} }

// RegLoc builds a bare register Location with no home slot recorded. Used
// throughout tests to seed arbitrary register state; production call sites
// that track a real value's register (codegenstate/operand.go) construct a
// Location literal directly so Slot carries the value's true stack home —
// see valueHomeSlot.
func RegLoc(reg int) Location { return Location{Kind: LocReg, Reg: reg} }
func ImmLoc(word uint64, tag ir.TypeTag) Location {
	return Location{Kind: LocImmediate, Word: word, Tag: tag}
}

// valueHomeSlot returns v's permanent stack-frame slot: the external IR
// builder assigns every value's home slot equal to its own numeric
// ValueRef index (§3 data model), so a freshly materialized register
// Location for v can always recover where to spill it back to without a
// prior StackLoc in hand.
func valueHomeSlot(v ir.ValueRef) int { return int(v) }

func (l Location) IsReg() bool { return l.Kind == LocReg }
func (l Location) IsImm() bool { return l.Kind == LocImmediate }
