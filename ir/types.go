// Package ir defines the intermediate representation consumed by the JIT
// core. Functions, blocks and instructions are built by an external front
// end (out of scope here); this package only fixes their Go shape so the
// rest of the core has something stable to program against.
package ir

// TypeTag identifies the dynamic type of a tagged value. It is stored in
// the parallel type stack byte-for-value beside the word stack on the VM's
// interpreter frame.
type TypeTag uint8

const (
	TagUnknown TypeTag = iota
	TagInt32
	TagInt64
	TagFloat64
	TagRefPtr
	TagRawPtr
	TagObject
	TagArray
	TagClosure
	TagString
	TagShapePtr
	TagConst
	TagGetSet
	TagFunPtr
)

func (t TypeTag) String() string {
	switch t {
	case TagUnknown:
		return "unknown"
	case TagInt32:
		return "int32"
	case TagInt64:
		return "int64"
	case TagFloat64:
		return "float64"
	case TagRefPtr:
		return "refptr"
	case TagRawPtr:
		return "rawptr"
	case TagObject:
		return "object"
	case TagArray:
		return "array"
	case TagClosure:
		return "closure"
	case TagString:
		return "string"
	case TagShapePtr:
		return "shapeptr"
	case TagConst:
		return "const"
	case TagGetSet:
		return "getset"
	case TagFunPtr:
		return "funptr"
	default:
		return "badtag"
	}
}

// ConstKind distinguishes the literal forms an instruction argument may
// carry in place of a value reference.
type ConstKind uint8

const (
	ConstNone ConstKind = iota
	ConstInt32
	ConstFloat64
	ConstBool
	ConstNull
	ConstUndefined
	ConstString
	ConstFuncRef
	ConstLinkPlaceholder // allocated in the link table on first use
)

// Const is a literal IR operand.
type Const struct {
	Kind    ConstKind
	I32     int32
	F64     float64
	Bool    bool
	Str     string
	FuncRef *Function
	// LinkIdx is filled in by the generator the first time a
	// ConstLinkPlaceholder argument is lowered; -1 until then.
	LinkIdx int32
}

// ValueRef names an IR value produced by exactly one instruction in the
// function. NoValue marks "argument is absent" slots in fixed-arity
// instruction encodings.
type ValueRef int32

const NoValue ValueRef = -1

// Value describes one SSA-style value: its home stack slot (fixed for the
// lifetime of the function) and the instruction that produces it.
type Value struct {
	ID       ValueRef
	Slot     int // fixed index in the callee's stack frame
	DefBlock int // index into Function.Blocks
	DefInstr int // index into Block.Instrs
	HasUses  bool
}

// Arg is one operand of an instruction: either a reference to a live IR
// value, or an inline constant.
type Arg struct {
	IsConst bool
	Value   ValueRef
	Const   Const
}

func ValueArg(v ValueRef) Arg { return Arg{Value: v} }
func ConstArg(c Const) Arg    { return Arg{IsConst: true, Const: c} }

// Instr is one IR instruction: an opcode, its ordered arguments, up to two
// branch targets, and the out-slot it defines (NoValue if it defines
// nothing).
type Instr struct {
	Op       Opcode
	Args     []Arg
	Out      ValueRef
	OutWidth int // bit width of the result, when relevant (8/16/32/64)

	// Branch targets, as indices into Function.Blocks. BranchT is the
	// target taken on the true/no-overflow/fallthrough edge; BranchF is
	// the target taken on the false/overflow/exception edge. -1 when
	// absent.
	BranchT int
	BranchF int

	// Extra carries opcode-specific sidecar data (FFI signature strings,
	// primitive names, shape metadata) that doesn't fit the Args model
	// cleanly.
	Extra interface{}
}

const NoBlock = -1

// Block is a basic block: a straight-line instruction sequence ending in a
// control instruction (jump, if_true, return, throw, or a fallthrough to
// the next instruction index if the block is unterminated mid-construction
// — the JIT core never sees the latter).
type Block struct {
	ID     int
	Instrs []Instr
}

// Function is a full IR function as produced by the external IR builder.
// The stack frame begins with a reserved prefix of parameter slots: return
// address, closure, this, argc, then formals.
type Function struct {
	Name       string
	NumParams  int
	FrameSlots int // total local stack slots, including ParamSlots prefix
	Blocks     []*Block
	EntryBlock int
}

func (f *Function) Block(idx int) *Block {
	if idx < 0 || idx >= len(f.Blocks) {
		return nil
	}
	return f.Blocks[idx]
}
