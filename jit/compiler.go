// Package jit ties asm, codegenstate, oplower, blockver, rtbridge,
// linktable and jitconfig together behind the two entry points an external
// VM driver needs: compile a function's entry block, then hand back the
// backing code buffer to mmap executable (§4.8).
package jit

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"bbvjit/asm"
	"bbvjit/blockver"
	"bbvjit/codegenstate"
	"bbvjit/ir"
	"bbvjit/jitconfig"
	"bbvjit/linktable"
	"bbvjit/rtbridge"
)

// CodePtr is an offset into Compiler.CodeBuffer() at which a compiled
// entry version begins. Turning it into an executable address (mmap,
// page permissions) is the external driver's job, not this package's.
type CodePtr int

// Compiler owns one code buffer and one link table shared across every
// function it compiles, mirroring the teacher's single build-session
// backend instance that accumulates output across multiple compiled
// units rather than resetting per call.
type Compiler struct {
	cfg    jitconfig.Config
	code   *asm.Assembler
	bridge *rtbridge.Bridge
	link   *linktable.Table
	hosts  *rtbridge.Table
	logger *log.Logger

	managers []*blockver.Manager
}

// NewCompiler constructs a Compiler bound to hosts, the table of resolved
// host-function addresses the embedding VM must supply before any call_prim
// or call_ffi lowering is reachable.
func NewCompiler(cfg jitconfig.Config, hosts *rtbridge.Table) *Compiler {
	code := asm.New(cfg.CodeHeapBytes)
	return &Compiler{
		cfg:    cfg,
		code:   code,
		bridge: rtbridge.New(code, hosts),
		link:   linktable.New(),
		hosts:  hosts,
		logger: cfg.NewLogger(),
	}
}

// CompileEntry requests fn's entry block version with a fresh, empty
// CodeGenState (no incoming register/type assumptions), drains every
// version it transitively reaches, and returns the entry version's start
// offset.
func (c *Compiler) CompileEntry(fn *ir.Function) (CodePtr, error) {
	if fn == nil {
		return 0, errors.New("jit: CompileEntry: nil function")
	}
	m := blockver.New(fn, c.code, c.bridge, c.link, c.cfg)
	c.managers = append(c.managers, m)

	entryState := codegenstate.New(c.code)
	entry := m.GetVersion(fn.EntryBlock, entryState)

	c.logger.WithFields(log.Fields{"function": fn.Name, "entry_block": fn.EntryBlock}).
		Debug("jit: compiling entry")

	if err := m.Drain(); err != nil {
		return 0, errors.Wrapf(err, "jit: compiling %s", fn.Name)
	}

	c.logger.WithFields(log.Fields{"function": fn.Name, "start": entry.Start, "end": entry.End}).
		Debug("jit: compiled entry")
	return CodePtr(entry.Start), nil
}

// CodeBuffer exposes the backing store accumulated across every
// CompileEntry call so far. The returned slice aliases the Compiler's
// internal buffer; callers must not retain it across a further compile
// that could grow and reallocate it.
func (c *Compiler) CodeBuffer() []byte {
	return c.code.Bytes()
}

// LinkTable exposes the process-wide constant/string interning table so
// the external driver can resolve a ConstLinkPlaceholder's LinkIdx back
// to its (word, tag) pair at runtime.
func (c *Compiler) LinkTable() *linktable.Table {
	return c.link
}
