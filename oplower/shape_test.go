package oplower

import (
	"testing"

	"bbvjit/asm"
	"bbvjit/codegenstate"
	"bbvjit/ir"
)

func TestLowerShapeGetPropDecodesBothPaths(t *testing.T) {
	a := asm.New(4096)
	env := newFakeEnv(a)
	s := codegenstate.New(a)

	obj, shape, out := ir.ValueRef(0), ir.ValueRef(1), ir.ValueRef(2)
	seedReg(s, obj, asm.RBX)
	seedReg(s, shape, asm.RSI)

	in := instr(ir.OpShapeGetProp, out, valArg(obj), valArg(shape))
	mark := a.Len()
	if err := Lower(env, s, in, a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertDecodes(t, a, mark)
}

func TestLowerShapeSetPropRoutesThroughHostCall(t *testing.T) {
	a := asm.New(4096)
	env := newFakeEnv(a)
	s := codegenstate.New(a)

	obj, shape, val := ir.ValueRef(0), ir.ValueRef(1), ir.ValueRef(2)
	seedReg(s, obj, asm.RBX)
	seedReg(s, shape, asm.RSI)
	seedReg(s, val, asm.RDI)

	in := instr(ir.OpShapeSetProp, ir.NoValue, valArg(obj), valArg(shape), valArg(val))
	mark := a.Len()
	if err := Lower(env, s, in, a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertDecodes(t, a, mark)
}
