// Package blockver implements BlockVer, the block-version manager:
// interning (IRBlock, CodeGenState) pairs as versions, draining the
// pending-compilation queue, and stitching inter-version branches by
// patching asm's forward-reference table once a version's start address
// is known (§4.4).
package blockver

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"bbvjit/asm"
	"bbvjit/codegenstate"
	"bbvjit/ir"
	"bbvjit/jitconfig"
	"bbvjit/linktable"
	"bbvjit/oplower"
	"bbvjit/rtbridge"
)

// Version is one compiled (or pending) specialization of an IR block: the
// block index plus the CodeGenState its entry was requested with.
type Version struct {
	ID       int
	Block    int
	State    *codegenstate.State
	Start    int
	End      int
	Realized bool

	// Stub marks a continuation version deferred under lazy compilation
	// (§4.4): its Version handle and canonicalized entry state exist from
	// the moment it's first requested, but it waits on Manager.deferred
	// rather than the main queue until every eagerly-reachable version has
	// been realized.
	Stub bool
}

type verEntry struct {
	canon codegenstate.Canonical
	v     *Version
}

// Manager realizes one ir.Function's block versions into a shared
// asm.Assembler. It implements oplower.Env so the opcode lowering table can
// request successor versions and branch to them without depending on this
// package directly (oplower declares the Env interface; Manager is its one
// production implementation — blockver.New's caller is the only one that
// ties the two together, avoiding an import cycle).
type Manager struct {
	fn     *ir.Function
	a      *asm.Assembler
	bridge *rtbridge.Bridge
	link   *linktable.Table
	cfg    jitconfig.Config
	logger *log.Logger

	versions      []*Version
	buckets       map[int]map[uint64][]*verEntry
	perBlockCount map[int]int
	queue         []int
	deferred      []int
}

// New creates a Manager for fn, emitting into a and bridging host calls
// through bridge/link per cfg.
func New(fn *ir.Function, a *asm.Assembler, bridge *rtbridge.Bridge, link *linktable.Table, cfg jitconfig.Config) *Manager {
	return &Manager{
		fn:            fn,
		a:             a,
		bridge:        bridge,
		link:          link,
		cfg:           cfg,
		logger:        cfg.NewLogger(),
		buckets:       make(map[int]map[uint64][]*verEntry),
		perBlockCount: make(map[int]int),
	}
}

// GetVersion interns (block, state) and returns its Version handle,
// creating and FIFO-enqueuing a new one if this exact canonicalized state
// hasn't been requested for block before (§4.4). Exported for direct use
// by jit.Compiler when requesting a function's entry version.
func (m *Manager) GetVersion(block int, state *codegenstate.State) *Version {
	return m.getOrCreate(block, state, true)
}

func (m *Manager) getOrCreate(block int, state *codegenstate.State, enqueue bool) *Version {
	blk := m.fn.Block(block)
	liveIn := computeLiveIn(blk)
	canon := state.Canonicalize(liveIn)

	if v := m.lookup(block, canon); v != nil {
		return v
	}

	if m.perBlockCount[block] >= m.cfg.MaxVersions {
		generic := state.Generalize()
		genCanon := generic.Canonicalize(liveIn)
		if v := m.lookup(block, genCanon); v != nil {
			return v
		}
		m.logger.WithFields(log.Fields{"block": block, "max_versions": m.cfg.MaxVersions}).
			Debug("blockver: max_versions exceeded, degrading to generic version")
		state, canon = generic, genCanon
	}

	v := &Version{ID: len(m.versions), Block: block, State: state}
	m.versions = append(m.versions, v)
	m.intern(block, canon, v)
	m.perBlockCount[block]++

	if enqueue {
		m.queue = append(m.queue, v.ID)
	} else {
		v.Stub = true
		m.deferred = append(m.deferred, v.ID)
	}

	m.logger.WithFields(log.Fields{"block": block, "version": v.ID, "stub": v.Stub}).
		Debug("blockver: requested version")
	return v
}

func (m *Manager) lookup(block int, canon codegenstate.Canonical) *Version {
	bucket, ok := m.buckets[block]
	if !ok {
		return nil
	}
	for _, e := range bucket[canon.Hash()] {
		if e.canon.Equal(canon) {
			return e.v
		}
	}
	return nil
}

func (m *Manager) intern(block int, canon codegenstate.Canonical, v *Version) {
	bucket, ok := m.buckets[block]
	if !ok {
		bucket = make(map[uint64][]*verEntry)
		m.buckets[block] = bucket
	}
	h := canon.Hash()
	bucket[h] = append(bucket[h], &verEntry{canon: canon, v: v})
}

// computeLiveIn walks block's instructions in order, returning the values
// it references before they're defined within the block — the live-in set
// State.Canonicalize needs to build an interning key insensitive to
// scratch/dead residue (§4.4).
func computeLiveIn(block *ir.Block) []ir.ValueRef {
	if block == nil {
		return nil
	}
	defined := make(map[ir.ValueRef]bool)
	liveSet := make(map[ir.ValueRef]bool)
	for _, instr := range block.Instrs {
		for _, arg := range instr.Args {
			if !arg.IsConst && !defined[arg.Value] {
				liveSet[arg.Value] = true
			}
		}
		if instr.Out != ir.NoValue {
			defined[instr.Out] = true
		}
	}
	liveIn := make([]ir.ValueRef, 0, len(liveSet))
	for v := range liveSet {
		liveIn = append(liveIn, v)
	}
	return liveIn
}

// Realize emits v's block into the shared code buffer starting at the
// buffer's current end, recording [Start,End) and patching every pending
// reference that targeted v (§4.4). A no-op if v was already realized
// (GenBranch may request the same version's patch twice across a
// diamond-shaped CFG).
func (m *Manager) Realize(v *Version) error {
	if v.Realized {
		return nil
	}
	block := m.fn.Block(v.Block)
	if block == nil {
		return errors.Errorf("blockver: realize: block %d not found", v.Block)
	}

	v.Start = m.a.Len()
	s := v.State.Clone()
	instrs := block.Instrs
	for i := 0; i < len(instrs); i++ {
		cur := instrs[i]
		if i+1 < len(instrs) && isFusibleWithIfTrue(cur, instrs[i+1]) {
			next := instrs[i+1]
			var err error
			if cur.Op.IsTypeTest() {
				err = oplower.FuseTypeTestBranch(m, s, cur, next, m.a)
			} else {
				err = oplower.FuseCompareBranch(m, s, cur, next, m.a)
			}
			if err != nil {
				return errors.Wrapf(err, "blockver: realizing block %d instr %d", v.Block, i)
			}
			i++
			continue
		}
		if err := oplower.Lower(m, s, cur, m.a); err != nil {
			return errors.Wrapf(err, "blockver: realizing block %d instr %d", v.Block, i)
		}
	}

	v.End = m.a.Len()
	v.Realized = true
	m.logger.WithFields(log.Fields{"block": v.Block, "version": v.ID, "start": v.Start, "end": v.End}).
		Debug("blockver: realized version")

	for _, r := range m.a.PendingRefs(v.ID) {
		m.a.Patch(r, v.Start)
	}
	return nil
}

// isFusibleWithIfTrue reports whether cur is a type test or comparison
// whose sole use is the immediately following if_true (§4.3 steps 3-4) —
// the adjacency blockver's instruction walk is positioned to detect, and
// oplower's per-opcode LowerFunc signature is not.
func isFusibleWithIfTrue(cur, next ir.Instr) bool {
	if next.Op != ir.OpIfTrue || len(next.Args) != 1 {
		return false
	}
	arg := next.Args[0]
	if arg.IsConst || arg.Value != cur.Out {
		return false
	}
	return cur.Op.IsTypeTest() || cur.Op.IsComparison()
}

// Drain realizes every queued version, then — since lazy compilation
// defers continuation versions rather than skipping them outright, this
// core having no running VM to trigger a true first-execution stub —
// realizes the deferred stubs in request order, draining whatever further
// versions each one's own branches enqueue before moving to the next
// deferred entry.
func (m *Manager) Drain() error {
	for {
		for len(m.queue) > 0 {
			id := m.queue[0]
			m.queue = m.queue[1:]
			if err := m.Realize(m.versions[id]); err != nil {
				return err
			}
		}
		if len(m.deferred) == 0 {
			return nil
		}
		id := m.deferred[0]
		m.deferred = m.deferred[1:]
		if !m.versions[id].Realized {
			m.queue = append(m.queue, id)
		}
	}
}

// emitJump emits an unconditional jmp to v, patching immediately if v is
// already realized (a backward branch, e.g. a loop header) or recording a
// forward reference otherwise.
func (m *Manager) emitJump(a *asm.Assembler, v *Version) {
	off := a.JmpRel32()
	if v.Realized {
		a.PatchRel32(off, v.Start)
	} else {
		a.RecordRef(off, asm.RefRel32, v.ID)
	}
}

func (m *Manager) emitJcc(a *asm.Assembler, cc int, v *Version) {
	off := a.JccRel32(byte(cc))
	if v.Realized {
		a.PatchRel32(off, v.Start)
	} else {
		a.RecordRef(off, asm.RefRel32, v.ID)
	}
}

// GenBranch implements oplower.Env (§4.4's gen_branch, minus the
// NEXT0/NEXT1 fallthrough-elision shape — see DESIGN.md): it always emits
// the full jcc+jmp (or single jmp) form rather than speculatively
// inlining an unrealized successor to produce a fallthrough, trading a
// little code size for a queue-driven Realize that never recurses.
func (m *Manager) GenBranch(a *asm.Assembler, cc int, t, f oplower.BranchEdge) {
	var tv, fv *Version
	if t.Block != ir.NoBlock {
		tv = m.GetVersion(t.Block, t.State)
	}
	if f.Block != ir.NoBlock {
		fv = m.GetVersion(f.Block, f.State)
	}

	if cc == -1 {
		if tv != nil {
			m.emitJump(a, tv)
		}
		return
	}
	if tv != nil {
		m.emitJcc(a, cc, tv)
	}
	if fv != nil {
		m.emitJump(a, fv)
	}
}

// GenCallBranch implements oplower.Env's (§4.4, §4.5) continuation/
// exception version request: under eager compilation both are FIFO-
// enqueued immediately; under lazy compilation the continuation is
// deferred (Stub == true) until the rest of the function's eagerly
// reachable versions have been realized, approximating the spec's
// compile-on-first-execution stub with a compile-time reordering instead
// of a runtime self-patching trampoline (see DESIGN.md).
func (m *Manager) GenCallBranch(cont, exc oplower.BranchEdge) (int, int) {
	contV := m.getOrCreate(cont.Block, cont.State, m.cfg.Eager)
	excVersion := -1
	if exc.Block != ir.NoBlock {
		excV := m.getOrCreate(exc.Block, exc.State, true)
		excVersion = excV.ID
	}
	return contV.ID, excVersion
}

func (m *Manager) Bridge() *rtbridge.Bridge    { return m.bridge }
func (m *Manager) LinkTable() *linktable.Table { return m.link }
func (m *Manager) Config() jitconfig.Config    { return m.cfg }
func (m *Manager) Logger() *log.Logger         { return m.logger }
func (m *Manager) NumParams() int              { return m.fn.NumParams }
func (m *Manager) FrameSlots() int             { return m.fn.FrameSlots }

var _ oplower.Env = (*Manager)(nil)
