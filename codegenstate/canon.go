package codegenstate

import (
	"hash/fnv"
	"sort"

	"bbvjit/ir"
)

// Canonical is the hashable, comparable projection of a State used to
// intern block versions (§4.4): value-to-location mappings and type-map
// entries for values live at the block entry, with scratch registers and
// dead-value residues ignored and the register-owner map sorted into a
// canonical order before hashing, so two versions never diverge due to
// spurious state differences that don't affect emitted code.
type Canonical struct {
	entries []canonEntry
}

type canonEntry struct {
	value ir.ValueRef
	kind  LocKind
	slot  int
	reg   int
	word  uint64
	tag   ir.TypeTag
}

// Canonicalize projects s onto the subset of liveAtEntry values, in a
// deterministic order, for use as an interning key. liveAtEntry is
// supplied by blockver from the block's live-in set.
func (s *State) Canonicalize(liveAtEntry []ir.ValueRef) Canonical {
	ordered := append([]ir.ValueRef(nil), liveAtEntry...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i] < ordered[j] })
	c := Canonical{entries: make([]canonEntry, 0, len(ordered))}
	for _, v := range ordered {
		loc := s.valueLoc[v]
		c.entries = append(c.entries, canonEntry{
			value: v,
			kind:  loc.Kind,
			slot:  loc.Slot,
			reg:   loc.Reg,
			word:  loc.Word,
			tag:   s.Type(v),
		})
	}
	return c
}

// Equal reports whether two canonical projections describe the same
// version-interning key (Testable Property 4: version determinism).
func (c Canonical) Equal(o Canonical) bool {
	if len(c.entries) != len(o.entries) {
		return false
	}
	for i := range c.entries {
		if c.entries[i] != o.entries[i] {
			return false
		}
	}
	return true
}

// Hash returns an FNV-1a digest of the canonical projection, stable across
// calls for equal projections — used as the map key blockver interns
// versions under (an equality check on the candidate bucket still
// resolves hash collisions).
func (c Canonical) Hash() uint64 {
	h := fnv.New64a()
	var buf [24]byte
	for _, e := range c.entries {
		putI64(buf[0:8], int64(e.value))
		buf[8] = byte(e.kind)
		putI64(buf[9:17], int64(e.slot)<<8|int64(e.reg))
		putU64(buf[17:24], e.word)
		h.Write(buf[:])
		h.Write([]byte{byte(e.tag)})
	}
	return h.Sum64()
}

func putI64(b []byte, v int64) { putU64(b, uint64(v)) }

func putU64(b []byte, v uint64) {
	for i := 0; i < 8 && i < len(b); i++ {
		b[i] = byte(v >> (8 * i))
	}
}

// Generalize returns a clone of s with every type-map entry erased,
// matching the max_versions degrade path (§4.4): when a block's version
// cap is exceeded, the requesting State is canonicalized as a fully
// type-erased "generic" version instead of a fresh specialized one.
func (s *State) Generalize() *State {
	g := s.Clone()
	g.typeMap = make(map[ir.ValueRef]ir.TypeTag)
	return g
}
