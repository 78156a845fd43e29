// Package difftest defines the per-commit architectural snapshot this
// core emits for comparison against an external reference model. The
// reference model itself — and the comparison logic — are out of scope;
// this package only shapes the record.
package difftest

// CSRSnapshot is the enumerated CSR subset difftest compares.
type CSRSnapshot struct {
	Mstatus uint32
	Satp    uint32
	Mepc    uint32
	Sepc    uint32
	Mcause  uint32
	Scause  uint32
	Mtval   uint32
	Stval   uint32
	Mtvec   uint32
	Stvec   uint32
	Priv    uint8
}

// Record is one committed instruction's architectural snapshot: the
// full GPR file, the enumerated CSR set, the next PC, and store
// metadata so an external reference model can be driven in lockstep.
type Record struct {
	InstIdx uint64
	PC      uint32
	PCNext  uint32

	GPR [32]uint32
	CSR CSRSnapshot

	StoreValid bool
	StoreAddr  uint32
	StoreData  uint32

	// Skip marks a commit whose load/CSR result is legitimately
	// non-deterministic relative to the reference model (e.g. a PLIC
	// claim read, or the cycle counter) — the comparator should not flag
	// a mismatch on this record's load value.
	Skip bool
}

// Trace accumulates commit records for a run. A real integration would
// stream these to a comparator instead of buffering the whole run; this
// core buffers since its test harnesses run short guest programs.
type Trace struct {
	Records []Record
}

// Append records one commit.
func (t *Trace) Append(r Record) {
	t.Records = append(t.Records, r)
}
