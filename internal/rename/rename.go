// Package rename implements register renaming: the speculative and
// committed architectural-to-physical maps, the physical register free
// list, and per-branch-tag checkpoints used to recover both in one shot
// on a mispredict.
//
// Grounded on the original source's Rename.h: a checkpoint is captured
// immediately after the branch uop that owns a tag has itself been
// renamed, so restoring it undoes every rename younger than that branch
// while leaving the branch's own destination mapping intact.
package rename

import "github.com/sarchlab/rv32ooo/internal/uop"

// NumArchRegs is the RV32 integer register count (x0..x31).
const NumArchRegs = 32

// checkpoint snapshots everything a mispredict recovery must restore.
type checkpoint struct {
	specMap  [NumArchRegs]uint8
	free     []bool
	busy     []bool
}

// Map is the rename unit: speculative map, committed map, the physical
// register free list/busy table, and the per-tag checkpoint bank.
type Map struct {
	numPhys int

	specMap  [NumArchRegs]uint8
	commitMap [NumArchRegs]uint8

	free []bool // free[p] == true means physical register p is unmapped
	busy []bool // busy[p] == true means p's producer has not written back yet

	checkpoints map[uop.BrTag]checkpoint
}

// New creates a rename unit with numPhys physical registers. Physical
// registers 0..NumArchRegs-1 start mapped one-to-one to the architectural
// registers. x0 keeps its mapping to physical register 0 permanently:
// Rename never allocates a fresh register for it.
func New(numPhys int) *Map {
	m := &Map{
		numPhys:     numPhys,
		free:        make([]bool, numPhys),
		busy:        make([]bool, numPhys),
		checkpoints: make(map[uop.BrTag]checkpoint),
	}
	for a := 0; a < NumArchRegs; a++ {
		m.specMap[a] = uint8(a)
		m.commitMap[a] = uint8(a)
	}
	for p := NumArchRegs; p < numPhys; p++ {
		m.free[p] = true
	}
	return m
}

// allocFree returns the lowest-numbered free physical register.
func (m *Map) allocFree() (uint8, bool) {
	for p := 0; p < m.numPhys; p++ {
		if m.free[p] {
			m.free[p] = false
			m.busy[p] = true
			return uint8(p), true
		}
	}
	return 0, false
}

// FreeCount reports how many physical registers remain unmapped.
func (m *Map) FreeCount() int {
	n := 0
	for _, f := range m.free {
		if f {
			n++
		}
	}
	return n
}

// Rename looks up source operands in the speculative map and, if the uop
// writes a destination, allocates a fresh physical register for it. It
// returns false if DestEn is set but no physical register is free
// (dispatch must stall the whole group in that case).
func (m *Map) Rename(u *uop.Uop) bool {
	if u.Src1En {
		u.PSrc1 = m.specMap[u.Src1]
	}
	if u.Src2En {
		u.PSrc2 = m.specMap[u.Src2]
	}
	if !u.DestEn {
		return true
	}
	if u.Dest == 0 {
		// x0 is never renamed to a fresh register; PDest mirrors PSrc-style
		// lookup of its permanent mapping so downstream stages can still
		// treat it uniformly.
		u.PDest = m.specMap[0]
		u.OldPDest = m.specMap[0]
		return true
	}
	p, ok := m.allocFree()
	if !ok {
		return false
	}
	u.OldPDest = m.specMap[u.Dest]
	u.PDest = p
	m.specMap[u.Dest] = p
	return true
}

// Checkpoint snapshots the current speculative map and free/busy tables
// under tag, to be called once a branch carrying that tag has itself
// been renamed.
func (m *Map) Checkpoint(tag uop.BrTag) {
	cp := checkpoint{specMap: m.specMap}
	cp.free = append([]bool(nil), m.free...)
	cp.busy = append([]bool(nil), m.busy...)
	m.checkpoints[tag] = cp
}

// RestoreCheckpoint rolls the speculative map and free list back to the
// state captured for tag, undoing every rename performed by instructions
// younger than the branch that owns it.
func (m *Map) RestoreCheckpoint(tag uop.BrTag) {
	cp, ok := m.checkpoints[tag]
	if !ok {
		return
	}
	m.specMap = cp.specMap
	copy(m.free, cp.free)
	copy(m.busy, cp.busy)
}

// DiscardCheckpoint drops a tag's checkpoint once it can no longer be
// mispredicted against (the branch committed, or its tag was freed by an
// earlier, older mispredict).
func (m *Map) DiscardCheckpoint(tag uop.BrTag) {
	delete(m.checkpoints, tag)
}

// MarkReady clears the busy bit for a physical register once its
// producer has written back; PRF read logic outside this package still
// owns the actual data, this is bookkeeping only.
func (m *Map) MarkReady(p uint8) {
	m.busy[p] = false
}

// Busy reports whether p's value is not yet produced.
func (m *Map) Busy(p uint8) bool { return m.busy[p] }

// Commit applies a retiring uop's destination to the committed map and
// releases its old physical register back to the free list — the
// previous mapping is no longer reachable from any in-flight speculative
// path once commit has passed it.
func (m *Map) Commit(u *uop.Uop) {
	if !u.DestEn || u.Dest == 0 {
		return
	}
	old := m.commitMap[u.Dest]
	m.commitMap[u.Dest] = u.PDest
	if old != 0 {
		m.free[old] = true
	}
}

// CommittedPReg returns the physical register currently backing
// architectural register arch in the committed (non-speculative) map —
// used by commit-time handlers (ECALL exit convention) that need an
// architectural register's just-retired value.
func (m *Map) CommittedPReg(arch uint8) uint8 {
	return m.commitMap[arch]
}

// FlushToCommitted resets the speculative map to the last committed
// state and rebuilds the free list from scratch — the ROB-flush recovery
// path, used when no single branch checkpoint covers the damage (e.g. an
// exception flush).
func (m *Map) FlushToCommitted() {
	m.specMap = m.commitMap
	mapped := make(map[uint8]bool, NumArchRegs)
	for _, p := range m.commitMap {
		mapped[p] = true
	}
	for p := 0; p < m.numPhys; p++ {
		m.free[p] = !mapped[uint8(p)]
		m.busy[p] = false
	}
	m.checkpoints = make(map[uop.BrTag]checkpoint)
}
