package rtbridge

import (
	"github.com/pkg/errors"

	"bbvjit/asm"
)

// ErrUnresolvedHostFunc is returned when emitted code would call a
// HostFunc the embedding VM never bound an address for — an IR/link fault,
// fatal per §7.
var ErrUnresolvedHostFunc = errors.New("rtbridge: host function address not bound")

// sysvIntArgRegs is the System V AMD64 integer/pointer argument register
// order.
var sysvIntArgRegs = []int{asm.RDI, asm.RSI, asm.RDX, asm.RCX, asm.R8, asm.R9}

// Bridge emits the save/call/restore sequence around a host helper
// invocation. One Bridge wraps the Assembler the rest of the core already
// emits into, plus the resolved host-function address table.
type Bridge struct {
	a   *asm.Assembler
	tbl *Table
}

func New(a *asm.Assembler, tbl *Table) *Bridge {
	return &Bridge{a: a, tbl: tbl}
}

// IntArgReg returns the System V integer argument register for the i'th
// (0-based) integer/pointer argument, so oplower's call-site setup can
// target the right register without duplicating the ABI table.
func IntArgReg(i int) int { return sysvIntArgRegs[i] }

// Enter emits SaveJITRegs plus any padding push required to keep the
// upcoming call 16-byte aligned (§4.5: an extra scratch push when the
// number of stack arguments is odd), and reports whether it pushed that
// pad so Exit can undo it. Argument registers must be loaded *after*
// Enter returns — Enter's SaveJITRegs call preserves whatever the
// reserved registers held before this call-site began, which is only
// correct if argument setup (which may reuse RegRetWord/RegRetType as
// scratch, e.g. the 4th System V argument shares RCX with
// asm.RegRetType) happens afterward.
func (b *Bridge) Enter(stackArgWords int) (pad bool) {
	b.a.SaveJITRegs()
	pad = (5+stackArgWords)%2 != 0
	if pad {
		b.a.PushReg(asm.ScratchA)
	}
	return pad
}

// Invoke emits the call to fn's resolved address. Must run between Enter
// and Exit, after argument registers are loaded. Returns the code-buffer
// offset immediately following the call instruction.
func (b *Bridge) Invoke(fn HostFunc) (callOffset int, err error) {
	addr, ok := b.tbl.Addr(fn)
	if !ok {
		return 0, errors.Wrapf(ErrUnresolvedHostFunc, "host function %s", fn)
	}
	b.a.MovRegImm64(asm.ScratchB, addr)
	b.a.CallIndirect(asm.ScratchB)
	return b.a.Len(), nil
}

// Exit emits the matching alignment pop and LoadJITRegs. Callers that need
// the call's result (asm.RegRetWord / asm.RegRetType for word+tag
// returns, XMM0 for a float-returning helper) MUST move it to its final
// destination before calling Exit — Exit restores the pre-call contents
// of every reserved register, discarding whatever the callee just left in
// them.
func (b *Bridge) Exit(pad bool) {
	if pad {
		b.a.PopReg(asm.ScratchA)
	}
	b.a.LoadJITRegs()
}

// Call is the common case for a host helper whose result the caller
// doesn't need to read back (gcCollect, setProp, setPropAttrs, defConst):
// Enter, Invoke, Exit with argSetup run in between to load argument
// registers at the correct point in the sequence.
func (b *Bridge) Call(fn HostFunc, stackArgWords int, argSetup func()) (int, error) {
	pad := b.Enter(stackArgWords)
	argSetup()
	off, err := b.Invoke(fn)
	b.Exit(pad)
	return off, err
}
