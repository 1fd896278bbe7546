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

// BranchEdge names one branch successor: the target IR block and the
// CodeGenState its version must be entered with. Block == ir.NoBlock
// means the edge is absent (e.g. a call with no exception successor).
type BranchEdge struct {
	Block int
	State *codegenstate.State
}

// Env is the subset of blockver.Manager's behavior oplower's generators
// lower against: requesting successor versions and branching to them.
// Declared here, not imported from blockver, because blockver dispatches
// lowering through this package's Table — importing it back would cycle.
type Env interface {
	// GenBranch requests t.Block's version (and f.Block's, if present)
	// and emits the jcc/jmp sequence the realized code-buffer layout
	// needs (§4.4): cc is a condition code from asm's CC* constants for a
	// two-way branch, or -1 for an unconditional single-target jump (f
	// absent in that case).
	GenBranch(a *asm.Assembler, cc int, t, f BranchEdge)

	// GenCallBranch requests the continuation version (cont) and, if
	// present, the exception version (exc) for a call-family instruction,
	// honoring the eager/lazy continuation-stub policy (§4.4), and
	// returns an opaque version id for each suitable for
	// asm.Assembler.RecordRef's target argument — the caller emits its
	// own absolute-address placeholder (MovRegImm64 with a 0 payload)
	// and records a RefAbs64 against the returned id. excVersion is -1
	// when exc.Block == ir.NoBlock.
	GenCallBranch(cont, exc BranchEdge) (contVersion, excVersion int)

	Bridge() *rtbridge.Bridge
	LinkTable() *linktable.Table
	Config() jitconfig.Config
	Logger() *log.Logger

	// NumParams is the declared parameter count of the function currently
	// being lowered, and FrameSlots its total stack-frame slot count
	// (reserved prefix, formals, and locals) — both needed by the return
	// opcode's frame-pop/extra-argument computation (§4.3).
	NumParams() int
	FrameSlots() int
}
