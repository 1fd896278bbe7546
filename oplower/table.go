package oplower

import (
	"github.com/pkg/errors"

	"bbvjit/asm"
	"bbvjit/codegenstate"
	"bbvjit/ir"
	"bbvjit/rtbridge"
)

// ErrUnsupportedOpcode is returned by Lower when an instruction's opcode
// has no registered lowering — a core build/link mismatch rather than
// anything a well-formed program can trigger.
var ErrUnsupportedOpcode = errors.New("oplower: unsupported opcode")

// ErrIRMalformed is returned when an instruction violates a well-formedness
// invariant this package assumes (wrong arity, missing Extra payload,
// unsupported FFI shape) — a fault in the IR producer, not a runtime
// condition (§7).
var ErrIRMalformed = errors.New("oplower: malformed instruction")

// LowerFunc lowers a single IR instruction into machine code against a's
// tail, threading register/type state through s and requesting successor
// versions/branches through env.
type LowerFunc func(env Env, s *codegenstate.State, instr ir.Instr, a *asm.Assembler) error

// Table is the opcode-indexed dispatch table every block-version's
// instruction walk consults (§4.3). Indexed directly by ir.Opcode; a nil
// entry means the opcode was never wired, which Lower reports as
// ErrUnsupportedOpcode rather than panicking on a nil call.
var Table = buildTable()

func buildTable() []LowerFunc {
	t := make([]LowerFunc, ir.OpcodeCount())

	t[ir.OpAdd] = lowerALU(addFamily, false)
	t[ir.OpAddOvf] = lowerALU(addFamily, true)
	t[ir.OpSub] = lowerALU(subFamily, false)
	t[ir.OpSubOvf] = lowerALU(subFamily, true)
	t[ir.OpAnd] = lowerALU(andFamily, false)
	t[ir.OpOr] = lowerALU(orFamily, false)
	t[ir.OpXor] = lowerALU(xorFamily, false)
	t[ir.OpMul] = lowerMul(false)
	t[ir.OpMulOvf] = lowerMul(true)

	t[ir.OpDiv] = lowerDivMod(false)
	t[ir.OpMod] = lowerDivMod(true)

	t[ir.OpShl] = lowerShift(shiftDigitShl)
	t[ir.OpShr] = lowerShift(shiftDigitShr)
	t[ir.OpUShr] = lowerShift(shiftDigitUShr)

	t[ir.OpFAdd] = lowerFArith((*asm.Assembler).AddsdRR)
	t[ir.OpFSub] = lowerFArith((*asm.Assembler).SubsdRR)
	t[ir.OpFMul] = lowerFArith((*asm.Assembler).MulsdRR)
	t[ir.OpFDiv] = lowerFArith((*asm.Assembler).DivsdRR)
	t[ir.OpFSin] = lowerFTranscendental(rtbridge.FnMathSin, 1)
	t[ir.OpFCos] = lowerFTranscendental(rtbridge.FnMathCos, 1)
	t[ir.OpFSqrt] = lowerFTranscendental(rtbridge.FnMathSqrt, 1)
	t[ir.OpFCeil] = lowerFTranscendental(rtbridge.FnMathCeil, 1)
	t[ir.OpFFloor] = lowerFTranscendental(rtbridge.FnMathFloor, 1)
	t[ir.OpFLog] = lowerFTranscendental(rtbridge.FnMathLog, 1)
	t[ir.OpFExp] = lowerFTranscendental(rtbridge.FnMathExp, 1)
	t[ir.OpFPow] = lowerFTranscendental(rtbridge.FnMathPow, 2)
	t[ir.OpFMod] = lowerFTranscendental(rtbridge.FnMathFmod, 2)

	t[ir.OpLoad] = lowerLoad
	t[ir.OpStore] = lowerStore

	t[ir.OpIsInt32] = lowerTypeTest(ir.TagInt32)
	t[ir.OpIsInt64] = lowerTypeTest(ir.TagInt64)
	t[ir.OpIsFloat64] = lowerTypeTest(ir.TagFloat64)
	t[ir.OpIsObject] = lowerTypeTest(ir.TagObject)
	t[ir.OpIsArray] = lowerTypeTest(ir.TagArray)
	t[ir.OpIsClosure] = lowerTypeTest(ir.TagClosure)
	t[ir.OpIsString] = lowerTypeTest(ir.TagString)
	t[ir.OpIsRefPtr] = lowerTypeTest(ir.TagRefPtr)

	t[ir.OpEq] = lowerIntCompare(ir.OpEq)
	t[ir.OpNe] = lowerIntCompare(ir.OpNe)
	t[ir.OpLt] = lowerIntCompare(ir.OpLt)
	t[ir.OpLe] = lowerIntCompare(ir.OpLe)
	t[ir.OpGt] = lowerIntCompare(ir.OpGt)
	t[ir.OpGe] = lowerIntCompare(ir.OpGe)
	t[ir.OpFEq] = lowerFloatCompare(ir.OpFEq)
	t[ir.OpFNe] = lowerFloatCompare(ir.OpFNe)
	t[ir.OpFLt] = lowerFloatCompare(ir.OpFLt)
	t[ir.OpFLe] = lowerFloatCompare(ir.OpFLe)
	t[ir.OpFGt] = lowerFloatCompare(ir.OpFGt)
	t[ir.OpFGe] = lowerFloatCompare(ir.OpFGe)

	t[ir.OpJump] = lowerJump
	t[ir.OpIfTrue] = lowerIfTrue

	t[ir.OpCallPrim] = lowerCallPrim
	t[ir.OpCall] = lowerCall
	t[ir.OpCallApply] = lowerCallApply
	t[ir.OpCallFFI] = lowerCallFFI

	t[ir.OpReturn] = lowerReturn
	t[ir.OpThrow] = lowerThrow

	t[ir.OpAllocObject] = lowerAlloc(ir.OpAllocObject)
	t[ir.OpAllocArray] = lowerAlloc(ir.OpAllocArray)
	t[ir.OpAllocClosure] = lowerAlloc(ir.OpAllocClosure)
	t[ir.OpAllocString] = lowerAlloc(ir.OpAllocString)

	t[ir.OpShapeGetDef] = lowerShapeHostCall(ir.OpShapeGetDef)
	t[ir.OpShapeSetProp] = lowerShapeHostCall(ir.OpShapeSetProp)
	t[ir.OpShapeGetProp] = lowerShapeGetProp
	t[ir.OpShapeDefConst] = lowerShapeHostCall(ir.OpShapeDefConst)
	t[ir.OpShapeSetAttrs] = lowerShapeHostCall(ir.OpShapeSetAttrs)
	t[ir.OpShapeParent] = lowerShapeHostCall(ir.OpShapeParent)
	t[ir.OpShapePropName] = lowerShapeHostCall(ir.OpShapePropName)
	t[ir.OpShapeGetAttrs] = lowerShapeHostCall(ir.OpShapeGetAttrs)

	t[ir.OpNewClos] = lowerNewClos
	t[ir.OpClosSetCell] = lowerClosSetCell

	return t
}

// Lower dispatches instr through Table, wrapping any error with the
// opcode for diagnostics.
func Lower(env Env, s *codegenstate.State, instr ir.Instr, a *asm.Assembler) error {
	op := instr.Op
	if int(op) < 0 || int(op) >= len(Table) || Table[op] == nil {
		return errors.Wrapf(ErrUnsupportedOpcode, "opcode %s", op)
	}
	if err := Table[op](env, s, instr, a); err != nil {
		return errors.Wrapf(err, "lowering %s", op)
	}
	return nil
}
