package oplower

import (
	log "github.com/sirupsen/logrus"

	"bbvjit/asm"
	"bbvjit/codegenstate"
	"bbvjit/ir"
	"bbvjit/jitconfig"
	"bbvjit/linktable"
	"bbvjit/rtbridge"
)

// recordedBranch captures one GenBranch call for assertion — blockver's
// real implementation isn't available to this package (it depends on
// oplower, not the other way around), so tests stand in a minimal fake
// satisfying the Env contract.
type recordedBranch struct {
	cc   int
	t, f BranchEdge
}

type fakeEnv struct {
	a          *asm.Assembler
	bridge     *rtbridge.Bridge
	link       *linktable.Table
	cfg        jitconfig.Config
	logger     *log.Logger
	branches   []recordedBranch
	nextVer    int
	numParams  int
	frameSlots int
}

func newFakeEnv(a *asm.Assembler) *fakeEnv {
	tbl := rtbridge.NewTable()
	for _, fn := range []rtbridge.HostFunc{
		rtbridge.FnHeapAlloc, rtbridge.FnGCCollect, rtbridge.FnGetString, rtbridge.FnGetStr,
		rtbridge.FnSetProp, rtbridge.FnGetProp, rtbridge.FnSetPropAttrs, rtbridge.FnDefConst,
		rtbridge.FnShapeGetDef, rtbridge.FnShapeParent, rtbridge.FnShapePropName, rtbridge.FnShapeGetAttrs,
		rtbridge.FnThrowExc, rtbridge.FnNewClos, rtbridge.FnDlopen, rtbridge.FnDlsym, rtbridge.FnDlclose,
		rtbridge.FnCallApplyUnpack, rtbridge.FnMathSin, rtbridge.FnMathCos, rtbridge.FnMathSqrt,
		rtbridge.FnMathCeil, rtbridge.FnMathFloor, rtbridge.FnMathLog, rtbridge.FnMathExp,
		rtbridge.FnMathPow, rtbridge.FnMathFmod,
	} {
		tbl.Bind(fn, 0x1000+uint64(fn)*8)
	}
	cfg := jitconfig.Default()
	return &fakeEnv{
		a:          a,
		bridge:     rtbridge.New(a, tbl),
		link:       linktable.New(),
		cfg:        cfg,
		logger:     cfg.NewLogger(),
		numParams:  1,
		frameSlots: 8,
	}
}

func (e *fakeEnv) GenBranch(a *asm.Assembler, cc int, t, f BranchEdge) {
	e.branches = append(e.branches, recordedBranch{cc: cc, t: t, f: f})
	if cc != -1 {
		a.JccRel32(byte(cc))
	}
	a.JmpRel32()
}

func (e *fakeEnv) GenCallBranch(cont, exc BranchEdge) (int, int) {
	e.nextVer += 2
	return e.nextVer - 2, e.nextVer - 1
}

func (e *fakeEnv) Bridge() *rtbridge.Bridge      { return e.bridge }
func (e *fakeEnv) LinkTable() *linktable.Table   { return e.link }
func (e *fakeEnv) Config() jitconfig.Config      { return e.cfg }
func (e *fakeEnv) Logger() *log.Logger           { return e.logger }
func (e *fakeEnv) NumParams() int                { return e.numParams }
func (e *fakeEnv) FrameSlots() int               { return e.frameSlots }

var _ Env = (*fakeEnv)(nil)

// instr builds a minimal ir.Instr for table-driven lowering tests.
func instr(op ir.Opcode, out ir.ValueRef, args ...ir.Arg) ir.Instr {
	return ir.Instr{Op: op, Args: args, Out: out, BranchT: ir.NoBlock, BranchF: ir.NoBlock}
}

func valArg(v ir.ValueRef) ir.Arg { return ir.ValueArg(v) }

func i32Arg(v int32) ir.Arg {
	return ir.ConstArg(ir.Const{Kind: ir.ConstInt32, I32: v})
}

func seedReg(s *codegenstate.State, v ir.ValueRef, reg int) {
	s.SetLocation(v, codegenstate.RegLoc(reg))
}
