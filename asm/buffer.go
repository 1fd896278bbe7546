// Package asm implements the x86-64 code buffer and encoder: the
// byte-emitting assembler underlying the JIT core's block-version
// generators. It owns the growable code heap, forward-reference
// bookkeeping for branches into not-yet-compiled versions, and the
// save/restore sequences around host calls.
package asm

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ErrBufferOverflow is raised as a panic value (wrapped with a stack trace)
// when the code heap would grow past its configured ceiling; it is fatal.
var ErrBufferOverflow = errors.New("asm: code buffer overflow")

// RefKind distinguishes how a recorded reference is patched once its
// target version is realized.
type RefKind int

const (
	// RefRel32 patches a 4-byte PC-relative displacement, as emitted by
	// JccRel32/JmpRel32/CallRel32: value = target - (refOffset+4).
	RefRel32 RefKind = iota
	// RefAbs64 patches an 8-byte absolute code address, as emitted by
	// MovRegImm64 when loading a continuation's entry address.
	RefAbs64
)

// Ref is one recorded forward reference: a code-buffer position that must
// be rewritten once its target version's start address is known.
type Ref struct {
	Offset int // position of the field to patch within the code buffer
	Kind   RefKind
	Target int // opaque version id, interpreted by the caller (blockver)
}

// Assembler owns one growable code buffer plus its pending-reference
// table. A JIT core has exactly one Assembler; each realized block version
// contributes a contiguous byte range to the same buffer.
type Assembler struct {
	code []byte

	maxCodeBytes int
	refs         []Ref
}

// New creates an Assembler whose code buffer aborts emission with
// ErrBufferOverflow once it would exceed maxCodeBytes. maxCodeBytes <= 0
// means unbounded (used by tests).
func New(maxCodeBytes int) *Assembler {
	return &Assembler{maxCodeBytes: maxCodeBytes}
}

// Len returns the current size of the code buffer; also the offset at
// which the next emitted byte lands.
func (a *Assembler) Len() int { return len(a.code) }

// Bytes returns the backing code buffer. The returned slice aliases the
// Assembler's storage; callers must not retain it across further emission.
func (a *Assembler) Bytes() []byte { return a.code }

func (a *Assembler) checkCapacity(n int) {
	if a.maxCodeBytes > 0 && len(a.code)+n > a.maxCodeBytes {
		log.WithFields(log.Fields{
			"current": len(a.code),
			"adding":  n,
			"limit":   a.maxCodeBytes,
		}).Error("asm: code buffer would overflow")
		panic(errors.WithStack(ErrBufferOverflow))
	}
}

func (a *Assembler) emitByte(b byte) {
	a.checkCapacity(1)
	a.code = append(a.code, b)
}

func (a *Assembler) emitBytes(bs ...byte) {
	a.checkCapacity(len(bs))
	a.code = append(a.code, bs...)
}

func (a *Assembler) emitU32(v uint32) {
	a.checkCapacity(4)
	a.code = append(a.code, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

func (a *Assembler) emitU64(v uint64) {
	a.checkCapacity(8)
	a.code = append(a.code,
		byte(v), byte(v>>8), byte(v>>16), byte(v>>24),
		byte(v>>32), byte(v>>40), byte(v>>48), byte(v>>56))
}

// RecordRef registers a pending forward reference at the field starting at
// offset (callers pass the offset returned
// by JccRel32/JmpRel32/CallRel32, or the offset of a MovRegImm64 payload),
// targeting the opaque version id target. blockver.Realize consumes and
// patches these once the targeted version's start address is known.
func (a *Assembler) RecordRef(offset int, kind RefKind, target int) {
	a.refs = append(a.refs, Ref{Offset: offset, Kind: kind, Target: target})
}

// PendingRefs returns references whose Target matches target, and removes
// them from the pending table. Called by blockver.Realize once it knows
// the real start address to patch in.
func (a *Assembler) PendingRefs(target int) []Ref {
	var matched []Ref
	kept := a.refs[:0]
	for _, r := range a.refs {
		if r.Target == target {
			matched = append(matched, r)
		} else {
			kept = append(kept, r)
		}
	}
	a.refs = kept
	return matched
}

// HasPendingRefs reports whether any reference anywhere in the buffer
// still awaits patching — used by tests asserting Testable Property 5
// (patching completeness) after a full compile.
func (a *Assembler) HasPendingRefs() bool { return len(a.refs) > 0 }

// PatchRel32 overwrites the 4-byte displacement at offset so that it
// resolves to targetAddr, relative to the instruction end (offset+4).
func (a *Assembler) PatchRel32(offset int, targetAddr int) {
	rel := int32(targetAddr - (offset + 4))
	a.code[offset] = byte(rel)
	a.code[offset+1] = byte(rel >> 8)
	a.code[offset+2] = byte(rel >> 16)
	a.code[offset+3] = byte(rel >> 24)
}

// PatchAbs64 overwrites the 8-byte immediate at offset with addr.
func (a *Assembler) PatchAbs64(offset int, addr uint64) {
	for i := 0; i < 8; i++ {
		a.code[offset+i] = byte(addr >> (8 * i))
	}
}

// Patch applies one Ref now that its target's real address is known.
func (a *Assembler) Patch(r Ref, targetAddr int) {
	switch r.Kind {
	case RefRel32:
		a.PatchRel32(r.Offset, targetAddr)
	case RefAbs64:
		a.PatchAbs64(r.Offset, uint64(targetAddr))
	default:
		panic("asm: unknown ref kind")
	}
}
