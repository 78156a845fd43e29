// Package prf implements the physical register file and its bypass
// network. A read during execute consults, in precedence order, the
// current cycle's execute-stage bypass, the writeback-stage bypass from
// the previous cycle, and only then the file itself — so a dependent uop
// issued back-to-back with its producer never stalls waiting for the
// producer's result to land in the file.
package prf

// Entry is a single physical register slot.
type Entry struct {
	Value uint32
	Valid bool
}

// BypassSlot is one in-flight result available for forwarding.
type BypassSlot struct {
	PReg  uint8
	Value uint32
	Valid bool
}

// File is the physical register file plus its two bypass stages.
type File struct {
	regs []Entry

	// execBypass holds results produced this very cycle by the execute
	// stage(s); writeBypass holds results one cycle older, still not yet
	// committed to regs until the end of the writeback cycle.
	execBypass  []BypassSlot
	writeBypass []BypassSlot
}

// New creates a register file with numPhys physical registers.
func New(numPhys int) *File {
	return &File{regs: make([]Entry, numPhys)}
}

// Write commits a result directly into the file (used for architectural
// reset and for any path that bypasses the pipelined bypass network,
// e.g. test setup).
func (f *File) Write(p uint8, v uint32) {
	f.regs[p] = Entry{Value: v, Valid: true}
}

// Read returns p's value using the bypass-precedence order: execute-stage
// bypass first, then writeback-stage bypass, then the file entry itself.
func (f *File) Read(p uint8) uint32 {
	for _, b := range f.execBypass {
		if b.Valid && b.PReg == p {
			return b.Value
		}
	}
	for _, b := range f.writeBypass {
		if b.Valid && b.PReg == p {
			return b.Value
		}
	}
	return f.regs[p].Value
}

// Ready reports whether p has a value available from any source —
// bypass or file — used by the issue queues' PRF-awake wakeup path.
func (f *File) Ready(p uint8) bool {
	for _, b := range f.execBypass {
		if b.Valid && b.PReg == p {
			return true
		}
	}
	for _, b := range f.writeBypass {
		if b.Valid && b.PReg == p {
			return true
		}
	}
	return f.regs[p].Valid
}

// SetExecBypass installs this cycle's execute-stage results, replacing
// whatever was there. The caller supplies one slot per execution port;
// invalid slots carry Valid=false and are simply ignored by Read.
func (f *File) SetExecBypass(slots []BypassSlot) {
	f.execBypass = slots
}

// AdvanceCycle moves this cycle's execute bypass into the writeback
// bypass stage and commits the previous writeback-stage bypass into the
// file itself. Called once per cycle, after SetExecBypass and after the
// issue queues have observed this cycle's wakeups.
func (f *File) AdvanceCycle() {
	for _, b := range f.writeBypass {
		if b.Valid {
			f.regs[b.PReg] = Entry{Value: b.Value, Valid: true}
		}
	}
	f.writeBypass = f.execBypass
	f.execBypass = nil
}

// Invalidate marks a physical register's file entry as not-yet-produced;
// used when a physical register is recycled by the free list so a stale
// value can never be observed as "ready" for a new producer that hasn't
// written back yet.
func (f *File) Invalidate(p uint8) {
	f.regs[p] = Entry{}
}
