package oplower

import (
	"testing"

	"bbvjit/asm"
	"bbvjit/codegenstate"
	"bbvjit/ir"
)

func TestLowerLoadAndStoreRoundTripWidths(t *testing.T) {
	for _, w := range []int{8, 16, 32, 64} {
		a := asm.New(4096)
		env := newFakeEnv(a)
		s := codegenstate.New(a)

		base, val := ir.ValueRef(0), ir.ValueRef(1)
		seedReg(s, base, asm.RBX)
		seedReg(s, val, asm.RSI)

		store := instr(ir.OpStore, ir.NoValue, valArg(base), i32Arg(8), valArg(val))
		store.OutWidth = w
		store.Extra = &ir.MemAttrs{BaseReg: -1}
		mark := a.Len()
		if err := Lower(env, s, store, a); err != nil {
			t.Fatalf("width %d: unexpected store error: %v", w, err)
		}
		assertDecodes(t, a, mark)

		out := ir.ValueRef(2)
		load := instr(ir.OpLoad, out, valArg(base), i32Arg(8))
		load.OutWidth = w
		load.Extra = &ir.MemAttrs{Signed: true, OutTag: ir.TagInt32, BaseReg: -1}
		mark = a.Len()
		if err := Lower(env, s, load, a); err != nil {
			t.Fatalf("width %d: unexpected load error: %v", w, err)
		}
		assertDecodes(t, a, mark)
		if s.Type(out) != ir.TagInt32 {
			t.Fatalf("width %d: expected TagInt32, got %v", w, s.Type(out))
		}
	}
}
