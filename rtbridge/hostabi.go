// Package rtbridge saves and restores the caller-save and JIT-reserved
// registers around calls to host helpers, and exposes a typed table of the
// host function addresses those calls target (§6: heapAlloc, gcCollect,
// getString/getStr, the shape_* property operations, throwExc, newClos,
// dlopen/dlsym/dlclose).
package rtbridge

// HostFunc names one host helper emitted code may call. The embedding VM
// resolves each to a real function address before compilation begins;
// tests supply fake addresses pointing at Go closures wrapped for the C
// ABI (or simply assert on which HostFunc a lowering requested, without
// resolving a real address at all).
type HostFunc int

const (
	FnHeapAlloc HostFunc = iota
	FnGCCollect
	FnGetString
	FnGetStr
	FnSetProp
	FnGetProp
	FnSetPropAttrs
	FnDefConst
	FnShapeGetDef
	FnShapeParent
	FnShapePropName
	FnShapeGetAttrs
	FnThrowExc
	FnNewClos
	FnDlopen
	FnDlsym
	FnDlclose
	FnCallApplyUnpack

	// Transcendental float helpers (§4.3 float arithmetic family) — no
	// x86-64 instruction computes these directly, so they route through a
	// host call bracketed the same way as any other rtbridge invocation.
	FnMathSin
	FnMathCos
	FnMathSqrt
	FnMathCeil
	FnMathFloor
	FnMathLog
	FnMathExp
	FnMathPow
	FnMathFmod

	hostFuncCount
)

func (f HostFunc) String() string {
	names := [hostFuncCount]string{
		FnHeapAlloc: "heapAlloc", FnGCCollect: "gcCollect",
		FnGetString: "getString", FnGetStr: "getStr",
		FnSetProp: "setProp", FnGetProp: "getProp",
		FnSetPropAttrs: "setPropAttrs", FnDefConst: "defConst",
		FnShapeGetDef: "shapeGetDef", FnShapeParent: "shapeParent",
		FnShapePropName: "shapePropName", FnShapeGetAttrs: "shapeGetAttrs",
		FnThrowExc: "throwExc", FnNewClos: "newClos",
		FnDlopen: "dlopen", FnDlsym: "dlsym", FnDlclose: "dlclose",
		FnCallApplyUnpack: "callApplyUnpack",
		FnMathSin:         "mathSin", FnMathCos: "mathCos", FnMathSqrt: "mathSqrt",
		FnMathCeil: "mathCeil", FnMathFloor: "mathFloor", FnMathLog: "mathLog",
		FnMathExp: "mathExp", FnMathPow: "mathPow", FnMathFmod: "mathFmod",
	}
	if int(f) < 0 || f >= hostFuncCount {
		return "badHostFunc"
	}
	return names[f]
}

// Table resolves each HostFunc to the process address the embedding VM
// installed it at. Emitting a call to an unresolved entry is a fatal
// IR/link error: Bridge.Invoke reports it as ErrUnresolvedHostFunc.
type Table struct {
	addrs [hostFuncCount]uint64
	set   [hostFuncCount]bool
}

func NewTable() *Table { return &Table{} }

func (t *Table) Bind(fn HostFunc, addr uint64) {
	t.addrs[fn] = addr
	t.set[fn] = true
}

func (t *Table) Addr(fn HostFunc) (uint64, bool) {
	return t.addrs[fn], t.set[fn]
}
