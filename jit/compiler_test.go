package jit

import (
	"testing"

	"golang.org/x/arch/x86/x86asm"

	"bbvjit/ir"
	"bbvjit/jitconfig"
	"bbvjit/rtbridge"
)

func allBoundHosts() *rtbridge.Table {
	tbl := rtbridge.NewTable()
	for fn := rtbridge.HostFunc(0); fn < rtbridge.HostFunc(27); fn++ {
		tbl.Bind(fn, 0x1000+uint64(fn)*8)
	}
	return tbl
}

// straightLineFn returns a single-block function doing int32 addition then
// returning, with no branches — the simplest possible entry to compile.
func straightLineFn() *ir.Function {
	v0, v1, out := ir.ValueRef(0), ir.ValueRef(1), ir.ValueRef(2)
	b0 := &ir.Block{ID: 0, Instrs: []ir.Instr{
		{Op: ir.OpAdd, Args: []ir.Arg{ir.ValueArg(v0), ir.ValueArg(v1)}, Out: out, BranchT: ir.NoBlock, BranchF: ir.NoBlock},
		{Op: ir.OpReturn, Args: []ir.Arg{ir.ValueArg(out)}, Out: ir.NoValue, BranchT: ir.NoBlock, BranchF: ir.NoBlock},
	}}
	return &ir.Function{Name: "add_and_return", NumParams: 2, FrameSlots: 8, Blocks: []*ir.Block{b0}, EntryBlock: 0}
}

func TestCompileEntryProducesDecodableCode(t *testing.T) {
	cfg := jitconfig.Default()
	c := NewCompiler(cfg, allBoundHosts())

	entry, err := c.CompileEntry(straightLineFn())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry != 0 {
		t.Fatalf("expected the first compiled entry to start at offset 0, got %d", entry)
	}

	code := c.CodeBuffer()
	if len(code) == 0 {
		t.Fatal("expected non-empty code buffer after compiling")
	}
	for off := 0; off < len(code); {
		inst, err := x86asm.Decode(code[off:], 64)
		if err != nil {
			t.Fatalf("failed to decode at offset %d: %v", off, err)
		}
		off += inst.Len
	}
}

func TestCompileEntryRejectsNilFunction(t *testing.T) {
	cfg := jitconfig.Default()
	c := NewCompiler(cfg, allBoundHosts())
	if _, err := c.CompileEntry(nil); err == nil {
		t.Fatal("expected an error compiling a nil function")
	}
}

func TestCompileEntryAccumulatesAcrossMultipleFunctions(t *testing.T) {
	cfg := jitconfig.Default()
	c := NewCompiler(cfg, allBoundHosts())

	first, err := c.CompileEntry(straightLineFn())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	firstLen := len(c.CodeBuffer())

	second, err := c.CompileEntry(straightLineFn())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if int(second) != firstLen {
		t.Fatalf("expected the second function's entry to start where the first left off (%d), got %d", firstLen, second)
	}
	if len(c.CodeBuffer()) <= firstLen {
		t.Fatal("expected the code buffer to grow after compiling a second function")
	}
	_ = first
}
