// Package jitconfig holds the JIT core's layered configuration surface:
// the §6 compilation options plus the ambient knobs (log level, buffer
// sizing) that a production embedding needs to tune. It is a plain
// constructed struct rather than the teacher's package-global-variable
// style (targetGOOS, compilerDebug, ...), since a test harness needs
// several independently configured jit.Compiler instances to coexist —
// generalized from the teacher's single-target build assumption the way
// backend_vm.go's newVMConfig constructs one VMConfig value per run.
package jitconfig

import log "github.com/sirupsen/logrus"

// Config is the full set of options a Compiler is constructed with.
type Config struct {
	// Eager selects eager (FIFO-drained) versus lazy (stub-on-first-use)
	// continuation compilation.
	Eager bool

	// TypeProp names the option of consulting a static type-propagation
	// analysis alongside BBV state when lowering type tests. No package of
	// this core reads it: type tests consult BBV state only.
	TypeProp bool

	// MaxVersions bounds the number of distinct versions compiled per
	// block; once a block has that many, further requests get a generic
	// (type-erased) version. 0 disables all type specialization: every
	// request gets the generic version for its block and its register/stack
	// layout (locations stay part of a version's key).
	MaxVersions int

	// InlinePropCache names the optional (mapID, propIdx) inline cache for
	// shape_get_prop call sites. No lowering reads it: shape_get_prop
	// emits no inline cache.
	InlinePropCache bool

	// CodeHeapBytes sizes asm's growable code buffer; 0 means unbounded
	// (tests only — a real embedding always sets a ceiling so
	// BufferOverflow is reachable and fatal rather than an unbounded
	// process memory leak). RodataHeapBytes is carried here but no package
	// reads it.
	CodeHeapBytes   int
	RodataHeapBytes int

	// LogLevel controls the structured logger's verbosity. Debug level
	// traces blockver's version requests and degrade-to-generic
	// boundaries; Info and above stay silent except for fatal-error paths.
	LogLevel log.Level
}

// Default returns the configuration a fresh embedding should start from:
// lazy compilation, BBV alone (no static type-propagation collaborator),
// a generous but bounded version cap, the inline property cache disabled
// (matching §9's "present but disabled in the reference code"), a 16 MiB
// code heap, and warn-level logging.
func Default() Config {
	return Config{
		Eager:           false,
		TypeProp:        false,
		MaxVersions:     8,
		InlinePropCache: false,
		CodeHeapBytes:   16 << 20,
		RodataHeapBytes: 1 << 20,
		LogLevel:        log.WarnLevel,
	}
}

// NewLogger builds a logrus.Logger at cfg's configured level, one per
// Compiler instance so concurrent tests with differing verbosity never
// fight over the package-global default logger.
func (cfg Config) NewLogger() *log.Logger {
	l := log.New()
	l.SetLevel(cfg.LogLevel)
	return l
}
