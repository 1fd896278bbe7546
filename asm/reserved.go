package asm

// Reserved register assignment for the JIT's runtime ABI (§6): the word
// stack pointer, type stack pointer, VM context pointer, and the two
// return-value slots each live in a fixed GPR for the lifetime of emitted
// code, never participating in codegenstate's allocatable pool.
const (
	RegWordStack  = R14 // word-stack pointer
	RegTypeStack  = R13 // type-stack pointer (parallel to RegWordStack)
	RegVM         = R12 // VM context pointer
	RegRetWord    = RAX // return-value word; doubles as idiv's dividend/quotient
	RegRetType    = RCX // return-value type tag (low byte); doubles as the shift-count register
	RegShiftCount = RCX // fixed shift-count hardware register (alias, documents intent)
	RegDivHigh    = RDX // idiv's sign-extended high half / remainder register
	ScratchA      = R11
	ScratchB      = R15
)

// jitRegSaveOrder is the fixed order save_jit_regs/load_jit_regs push and
// pop in, matching §4.5: word-stack, type-stack, VM, return-word,
// return-type. RegRetType aliases RCX with RegShiftCount; both concerns
// never overlap a single instruction's lifetime, so sharing the register
// is safe by construction (the type tag is always consumed before any
// divide/shift lowering runs).
var jitRegSaveOrder = []int{RegWordStack, RegTypeStack, RegVM, RegRetWord, RegRetType}

// SaveJITRegs pushes the reserved JIT registers in the fixed order the
// spec requires, so LoadJITRegs can pop them back in reverse. Callers must
// bracket every host-helper call with this pair; see rtbridge.
func (a *Assembler) SaveJITRegs() {
	for _, r := range jitRegSaveOrder {
		a.PushReg(r)
	}
}

// LoadJITRegs pops the reserved JIT registers pushed by SaveJITRegs.
func (a *Assembler) LoadJITRegs() {
	for i := len(jitRegSaveOrder) - 1; i >= 0; i-- {
		a.PopReg(jitRegSaveOrder[i])
	}
}

// AllocatableGPRs is the fixed pool codegenstate draws register
// assignments from. Everything not in this list is either a native
// stack/frame pointer (RSP, RBP — needed intact across host ABI calls) or
// one of the reserved registers above (word stack, type stack, VM,
// return-word/type, idiv high half, two scratch GPRs). Deliberately small:
// BBV's spill discipline is meant to be exercised routinely, not treated
// as a rare corner case.
var AllocatableGPRs = []int{RBX, RSI, RDI, R8, R9, R10}
