package asm

// Register constants for the x86-64 general-purpose registers, numbered to
// match the 3-bit ModRM/SIB encoding field (with REX.B/.R/.X extending into
// r8-r15).
const (
	RAX = 0
	RCX = 1
	RDX = 2
	RBX = 3
	RSP = 4
	RBP = 5
	RSI = 6
	RDI = 7
	R8  = 8
	R9  = 9
	R10 = 10
	R11 = 11
	R12 = 12
	R13 = 13
	R14 = 14
	R15 = 15

	NumGPR = 16
)

// XMM register constants, used only by the float arithmetic family.
const (
	XMM0 = 0
	XMM1 = 1
)

// Condition codes for Jcc/SETcc/CMOVcc, as the low byte of the two-byte
// 0x0F opcode (Jcc near form is 0x0F 0x8x, SETcc is 0x0F 0x9x, CMOVcc is
// 0x0F 0x4x — callers add the family's base byte).
const (
	CCOverflow    = 0x0
	CCNotOverflow = 0x1
	CCBelow       = 0x2 // unsigned <
	CCAboveEq     = 0x3 // unsigned >=
	CCEqual       = 0x4
	CCNotEqual    = 0x5
	CCBelowEq     = 0x6 // unsigned <=
	CCAbove       = 0x7 // unsigned >
	CCSign        = 0x8
	CCNotSign     = 0x9
	CCParityEven  = 0xA
	CCParityOdd   = 0xB
	CCLess        = 0xC // signed <
	CCGreaterEq   = 0xD // signed >=
	CCLessEq      = 0xE // signed <=
	CCGreater     = 0xF // signed >
)

func rex(w, r, x, b bool) byte {
	v := byte(0x40)
	if w {
		v |= 0x08
	}
	if r {
		v |= 0x04
	}
	if x {
		v |= 0x02
	}
	if b {
		v |= 0x01
	}
	return v
}

func modrm(mod, reg, rm int) byte {
	return byte((mod&3)<<6 | (reg&7)<<3 | (rm & 7))
}

func needsSIB(reg int) bool { return reg&7 == RSP }

// emitRR emits a register-direct ModRM byte (mod=11) plus the REX
// prefix needed to reach r8-r15 in either operand position. opcodeBytes is
// written after the REX prefix and before ModRM.
func (a *Assembler) emitRR(w bool, opcodeBytes []byte, regField, rmField int) {
	a.emitByte(rex(w, regField >= 8, false, rmField >= 8))
	a.emitBytes(opcodeBytes...)
	a.emitByte(modrm(3, regField, rmField))
}

// --- Data movement ---

// MovRegReg emits `mov dst, src` at the given width in {32,64}.
func (a *Assembler) MovRegReg(dst, src int, width int) {
	if dst == src {
		return
	}
	a.emitRR(width == 64, []byte{0x89}, src, dst)
}

// MovRegImm32 emits `mov dst, imm32` (zero-extended to 64 bits in the
// 32-bit form, matching x86-64 semantics).
func (a *Assembler) MovRegImm32(dst int, imm uint32) {
	if dst >= 8 {
		a.emitByte(rex(false, false, false, true))
	}
	a.emitByte(0xB8 + byte(dst&7))
	a.emitU32(imm)
}

// MovRegImm64 emits `movabs dst, imm64`.
func (a *Assembler) MovRegImm64(dst int, imm uint64) {
	a.emitByte(rex(true, false, false, dst >= 8))
	a.emitByte(0xB8 + byte(dst&7))
	a.emitU64(imm)
}

// loadStoreModRM writes the ModRM(+SIB)(+disp) bytes for `[base + disp]`
// addressed by reg. disp8 is used when it fits, otherwise disp32.
func (a *Assembler) loadStoreModRM(reg, base int, disp int32) {
	mod := 2
	useDisp8 := disp >= -128 && disp <= 127
	if useDisp8 {
		mod = 1
	}
	if disp == 0 && (base&7) != RBP {
		mod = 0
	}
	a.emitByte(modrm(mod, reg, base))
	if needsSIB(base) {
		a.emitByte(0x24) // SIB: scale=0 index=none base=RSP/R12
	}
	if mod == 1 {
		a.emitByte(byte(disp))
	} else if mod == 2 {
		a.emitU32(uint32(disp))
	}
}

// LoadMem emits `mov dst, [base+disp]` at the given width, zero- or
// sign-extending to the register's full 64 bits when width < 64.
func (a *Assembler) LoadMem(dst, base int, disp int32, width int, signed bool) {
	switch width {
	case 64:
		a.emitByte(rex(true, dst >= 8, false, base >= 8))
		a.emitByte(0x8B)
	case 32:
		if signed {
			a.emitByte(rex(true, dst >= 8, false, base >= 8))
			a.emitBytes(0x63) // movsxd
		} else {
			if dst >= 8 || base >= 8 {
				a.emitByte(rex(false, dst >= 8, false, base >= 8))
			}
			a.emitByte(0x8B)
		}
	case 16:
		a.emitByte(rex(signed, dst >= 8, false, base >= 8))
		if signed {
			a.emitBytes(0x0F, 0xBF)
		} else {
			a.emitBytes(0x0F, 0xB7)
		}
	case 8:
		a.emitByte(rex(signed, dst >= 8, false, base >= 8))
		if signed {
			a.emitBytes(0x0F, 0xBE)
		} else {
			a.emitBytes(0x0F, 0xB6)
		}
	default:
		panic("asm: bad load width")
	}
	a.loadStoreModRM(dst, base, disp)
}

// StoreMem emits `mov [base+disp], src` at the given width.
func (a *Assembler) StoreMem(base int, disp int32, src int, width int) {
	switch width {
	case 64:
		a.emitByte(rex(true, src >= 8, false, base >= 8))
		a.emitByte(0x89)
	case 32:
		if src >= 8 || base >= 8 {
			a.emitByte(rex(false, src >= 8, false, base >= 8))
		}
		a.emitByte(0x89)
	case 16:
		a.emitByte(0x66)
		if src >= 8 || base >= 8 {
			a.emitByte(rex(false, src >= 8, false, base >= 8))
		}
		a.emitByte(0x89)
	case 8:
		a.emitByte(rex(false, src >= 8, false, base >= 8))
		a.emitByte(0x88)
	default:
		panic("asm: bad store width")
	}
	a.loadStoreModRM(src, base, disp)
}

// LeaMem emits `lea dst, [base+disp]`.
func (a *Assembler) LeaMem(dst, base int, disp int32) {
	a.emitByte(rex(true, dst >= 8, false, base >= 8))
	a.emitByte(0x8D)
	a.loadStoreModRM(dst, base, disp)
}

// --- Stack ---

func (a *Assembler) PushReg(reg int) {
	if reg >= 8 {
		a.emitByte(0x41)
	}
	a.emitByte(0x50 + byte(reg&7))
}

func (a *Assembler) PopReg(reg int) {
	if reg >= 8 {
		a.emitByte(0x41)
	}
	a.emitByte(0x58 + byte(reg&7))
}

// --- Integer ALU ---

// aluOp emits `op dst, src` for the commutative-encoding ALU family
// (add/sub/and/or/xor) at the given width.
func (a *Assembler) aluOp(opcode byte, dst, src int, width int) {
	a.emitRR(width == 64, []byte{opcode}, src, dst)
}

func (a *Assembler) AddRR(dst, src int, width int) { a.aluOp(0x01, dst, src, width) }
func (a *Assembler) SubRR(dst, src int, width int) { a.aluOp(0x29, dst, src, width) }
func (a *Assembler) AndRR(dst, src int, width int) { a.aluOp(0x21, dst, src, width) }
func (a *Assembler) OrRR(dst, src int, width int)  { a.aluOp(0x09, dst, src, width) }
func (a *Assembler) XorRR(dst, src int, width int) { a.aluOp(0x31, dst, src, width) }

// ImulRR emits `imul dst, src` (two-operand signed multiply).
func (a *Assembler) ImulRR(dst, src int, width int) {
	a.emitByte(rex(width == 64, dst >= 8, false, src >= 8))
	a.emitBytes(0x0F, 0xAF)
	a.emitByte(modrm(3, dst, src))
}

// AluRI emits a group-1 ALU op (`op dst, imm32`). digit selects the /digit
// extension field: add=0 or=1 and=4 sub=5 xor=6 cmp=7.
func (a *Assembler) AluRI(digit byte, dst int, imm int32, width int) {
	a.emitByte(rex(width == 64, false, false, dst >= 8))
	if imm >= -128 && imm <= 127 {
		a.emitByte(0x83)
		a.emitByte(modrm(3, int(digit), dst))
		a.emitByte(byte(imm))
	} else {
		a.emitByte(0x81)
		a.emitByte(modrm(3, int(digit), dst))
		a.emitU32(uint32(imm))
	}
}

func (a *Assembler) NegR(reg int, width int) {
	a.emitByte(rex(width == 64, false, false, reg >= 8))
	a.emitByte(0xF7)
	a.emitByte(modrm(3, 3, reg))
}

func (a *Assembler) NotR(reg int, width int) {
	a.emitByte(rex(width == 64, false, false, reg >= 8))
	a.emitByte(0xF7)
	a.emitByte(modrm(3, 2, reg))
}

func (a *Assembler) TestRR(a1, a2 int, width int) {
	a.emitRR(width == 64, []byte{0x85}, a2, a1)
}

func (a *Assembler) CmpRR(a1, a2 int, width int) {
	a.emitRR(width == 64, []byte{0x39}, a2, a1)
}

// --- idiv / shifts ---

// CqoOrCdq emits the sign-extension needed before idiv: `cqo` (64-bit) or
// `cdq` (32-bit), sign-extending RAX into RDX:RAX.
func (a *Assembler) CqoOrCdq(width int) {
	if width == 64 {
		a.emitBytes(rex(true, false, false, false), 0x99)
	} else {
		a.emitByte(0x99)
	}
}

// IdivR emits `idiv reg` (RDX:RAX / reg -> quotient RAX, remainder RDX).
func (a *Assembler) IdivR(reg int, width int) {
	a.emitByte(rex(width == 64, false, false, reg >= 8))
	a.emitByte(0xF7)
	a.emitByte(modrm(3, 7, reg))
}

// ShiftRI emits a group-2 shift (`op reg, imm8`). digit selects /digit: shl=4
// sar=7 shr=5.
func (a *Assembler) ShiftRI(digit byte, reg int, count byte, width int) {
	count &= 0x1F
	a.emitByte(rex(width == 64, false, false, reg >= 8))
	if count == 1 {
		a.emitByte(0xD1)
		a.emitByte(modrm(3, int(digit), reg))
		return
	}
	a.emitByte(0xC1)
	a.emitByte(modrm(3, int(digit), reg))
	a.emitByte(count)
}

// ShiftRCL emits a group-2 shift by CL (`op reg, cl`).
func (a *Assembler) ShiftRCL(digit byte, reg int, width int) {
	a.emitByte(rex(width == 64, false, false, reg >= 8))
	a.emitByte(0xD3)
	a.emitByte(modrm(3, int(digit), reg))
}

// --- conditional move / setcc / jcc ---

// CmovRR emits `cmovCC dst, src`.
func (a *Assembler) CmovRR(cc byte, dst, src int, width int) {
	a.emitByte(rex(width == 64, dst >= 8, false, src >= 8))
	a.emitBytes(0x0F, 0x40+cc)
	a.emitByte(modrm(3, dst, src))
}

// SetccR emits `setCC reg8` (writes only the low byte; the rest of the
// register keeps its previous contents, so callers that need it cleared
// zero it first). A REX prefix is emitted for every register from RSP up,
// so RSI/RDI address SIL/DIL rather than DH/BH.
func (a *Assembler) SetccR(cc byte, reg int) {
	if reg >= 4 {
		a.emitByte(rex(false, false, false, reg >= 8))
	}
	a.emitBytes(0x0F, 0x90+cc)
	a.emitByte(modrm(3, 0, reg))
}

// JccRel32 emits a near conditional jump with a placeholder rel32 and
// returns the code-buffer offset of that rel32, for later patching (or
// RecordRef against a pending version).
func (a *Assembler) JccRel32(cc byte) int {
	a.emitBytes(0x0F, 0x80+cc)
	off := len(a.code)
	a.emitU32(0)
	return off
}

// JmpRel32 emits an unconditional near jump with a placeholder rel32.
func (a *Assembler) JmpRel32() int {
	a.emitByte(0xE9)
	off := len(a.code)
	a.emitU32(0)
	return off
}

func (a *Assembler) CallRel32() int {
	a.emitByte(0xE8)
	off := len(a.code)
	a.emitU32(0)
	return off
}

// CallIndirect emits `call reg`.
func (a *Assembler) CallIndirect(reg int) {
	if reg >= 8 {
		a.emitByte(rex(false, false, false, true))
	}
	a.emitByte(0xFF)
	a.emitByte(modrm(3, 2, reg))
}

// JmpIndirect emits `jmp reg`.
func (a *Assembler) JmpIndirect(reg int) {
	if reg >= 8 {
		a.emitByte(rex(false, false, false, true))
	}
	a.emitByte(0xFF)
	a.emitByte(modrm(3, 4, reg))
}

func (a *Assembler) Ret() { a.emitByte(0xC3) }

// --- SSE scalar double ---

func (a *Assembler) sseRR(prefix byte, opcode []byte, dst, src int) {
	a.emitByte(prefix)
	if dst >= 8 || src >= 8 {
		a.emitByte(rex(false, dst >= 8, false, src >= 8))
	}
	a.emitBytes(opcode...)
	a.emitByte(modrm(3, dst, src))
}

func (a *Assembler) MovsdRR(dst, src int)  { a.sseRR(0xF2, []byte{0x0F, 0x10}, dst, src) }
func (a *Assembler) AddsdRR(dst, src int)  { a.sseRR(0xF2, []byte{0x0F, 0x58}, dst, src) }
func (a *Assembler) SubsdRR(dst, src int)  { a.sseRR(0xF2, []byte{0x0F, 0x5C}, dst, src) }
func (a *Assembler) MulsdRR(dst, src int)  { a.sseRR(0xF2, []byte{0x0F, 0x59}, dst, src) }
func (a *Assembler) DivsdRR(dst, src int)  { a.sseRR(0xF2, []byte{0x0F, 0x5E}, dst, src) }
func (a *Assembler) UcomisdRR(a1, a2 int)  { a.sseRR(0x66, []byte{0x0F, 0x2E}, a1, a2) }

// MovsdLoad emits `movsd xmm, [base+disp]`.
func (a *Assembler) MovsdLoad(dst, base int, disp int32) {
	a.emitByte(0xF2)
	if dst >= 8 || base >= 8 {
		a.emitByte(rex(false, dst >= 8, false, base >= 8))
	}
	a.emitBytes(0x0F, 0x10)
	a.loadStoreModRM(dst, base, disp)
}

// MovsdStore emits `movsd [base+disp], xmm`.
func (a *Assembler) MovsdStore(base int, disp int32, src int) {
	a.emitByte(0xF2)
	if src >= 8 || base >= 8 {
		a.emitByte(rex(false, src >= 8, false, base >= 8))
	}
	a.emitBytes(0x0F, 0x11)
	a.loadStoreModRM(src, base, disp)
}

// MovqXmmToReg emits `movq gpr, xmm` (bit-pattern move, no conversion).
func (a *Assembler) MovqXmmToReg(dst, src int) {
	a.emitByte(0x66)
	a.emitByte(rex(true, src >= 8, false, dst >= 8))
	a.emitBytes(0x0F, 0x7E)
	a.emitByte(modrm(3, src, dst))
}

// MovqRegToXmm emits `movq xmm, gpr`.
func (a *Assembler) MovqRegToXmm(dst, src int) {
	a.emitByte(0x66)
	a.emitByte(rex(true, dst >= 8, false, src >= 8))
	a.emitBytes(0x0F, 0x6E)
	a.emitByte(modrm(3, dst, src))
}
