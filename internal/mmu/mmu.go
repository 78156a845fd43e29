// Package mmu implements Sv32 address translation: per-engine ITLB/DTLB
// with round-robin replacement (grounded on the original source's
// TlbMmu.h) and a two-level page-table walk (grounded on MemPtwBlock.h).
// Translate performs the whole walk synchronously within one call; there
// is no walker state machine and no round-robin between ITLB and DTLB
// walks in this package.
package mmu

import "github.com/sarchlab/rv32ooo/internal/csr"

// PageBits is the Sv32 page offset width (4 KiB pages).
const PageBits = 12

// PTE permission bits.
const (
	PteV = 1 << 0
	PteR = 1 << 1
	PteW = 1 << 2
	PteX = 1 << 3
	PteU = 1 << 4
	PteG = 1 << 5
	PteA = 1 << 6
	PteD = 1 << 7
)

// AccessKind distinguishes the permission check a translation serves.
type AccessKind int

const (
	AccessFetch AccessKind = iota
	AccessLoad
	AccessStore
	// AccessAMO is an atomic read-modify-write access: it requires both
	// read and write permission, since an AMO both loads and stores the
	// same address.
	AccessAMO
)

// FaultKind enumerates why a translation failed.
type FaultKind int

const (
	FaultNone FaultKind = iota
	FaultPage
)

// Entry is one TLB entry. Sv32 has exactly two levels, so an entry either
// covers a 4 KiB leaf page (megapage=false) or a 4 MiB superpage
// (megapage=true, in which case vpn0 is not used for matching).
type Entry struct {
	Valid    bool
	Vpn1     uint32
	Vpn0     uint32
	Ppn1     uint32
	Ppn0     uint32
	Asid     uint16
	Megapage bool
	Perm     uint8
}

func vpn1(va uint32) uint32 { return (va >> 22) & 0x3ff }
func vpn0(va uint32) uint32 { return (va >> 12) & 0x3ff }
func pageOffset(va uint32) uint32 { return va & 0xfff }

// TLB is a fully-associative N-entry TLB with round-robin replacement.
type TLB struct {
	entries []Entry
	repl    int
}

// NewTLB creates a TLB with the given entry count.
func NewTLB(size int) *TLB {
	return &TLB{entries: make([]Entry, size)}
}

// Lookup searches for a matching, valid entry. A multi-match (more than
// one live entry matching the same VPN/ASID) is a fail-fast bookkeeping
// invariant violation, never a legitimate state, so it is the caller's
// responsibility to keep Insert from ever creating one (Insert evicts
// any existing match for the same VPN before installing a new entry).
func (t *TLB) Lookup(va uint32, asid uint16) (Entry, bool) {
	v1, v0 := vpn1(va), vpn0(va)
	for _, e := range t.entries {
		if !e.Valid {
			continue
		}
		if !e.Global() && e.Asid != asid {
			continue
		}
		if e.Vpn1 != v1 {
			continue
		}
		if e.Megapage || e.Vpn0 == v0 {
			return e, true
		}
	}
	return Entry{}, false
}

// Global reports whether the entry's G bit is set (ASID-independent).
func (e Entry) Global() bool { return e.Perm&PteG != 0 }

// Insert installs an entry, first evicting any existing entry that would
// alias it, then falling back to round-robin replacement if no free slot
// remains.
func (t *TLB) Insert(e Entry) {
	for i := range t.entries {
		if t.entries[i].Valid && t.entries[i].Vpn1 == e.Vpn1 &&
			(t.entries[i].Megapage || t.entries[i].Vpn0 == e.Vpn0) &&
			(t.entries[i].Global() || t.entries[i].Asid == e.Asid) {
			t.entries[i] = e
			return
		}
	}
	for i := range t.entries {
		if !t.entries[i].Valid {
			t.entries[i] = e
			return
		}
	}
	t.entries[t.repl] = e
	t.repl = (t.repl + 1) % len(t.entries)
}

// Flush implements SFENCE.VMA semantics: vaddr==nil and asid==nil both
// unset means flush everything; either filter narrows the invalidation.
func (t *TLB) Flush(vaddr *uint32, asid *uint16) {
	for i := range t.entries {
		if !t.entries[i].Valid {
			continue
		}
		if asid != nil && !t.entries[i].Global() && t.entries[i].Asid != *asid {
			continue
		}
		if vaddr != nil {
			if t.entries[i].Vpn1 != vpn1(*vaddr) {
				continue
			}
			if !t.entries[i].Megapage && t.entries[i].Vpn0 != vpn0(*vaddr) {
				continue
			}
		}
		t.entries[i] = Entry{}
	}
}

// MemReader is the minimal synchronous memory-read surface the page
// table walker needs. Arbitration with the LSU's data-cache traffic and
// the multi-cycle request/response latency of a real memory subsystem
// live in package memsubsys; this interface lets the walker be tested
// and composed independently of that timing model.
type MemReader interface {
	Read32(addr uint32) uint32
}

// WalkState names the states of the original source's page-table walker
// FSM. Translate does not step through them; it completes a walk in one
// call.
type WalkState int

const (
	WalkIdle WalkState = iota
	WalkL1Req
	WalkL1WaitResp
	WalkL2Req
	WalkL2WaitResp
	WalkDone
	WalkFault
)

// Result is a completed translation.
type Result struct {
	Paddr    uint32
	Perm     uint8
	Megapage uint32 // set non-zero ppn1 page base, used when Entry.Megapage
	IsMega   bool
	Fault    FaultKind
}

// Translate performs a full Sv32 two-level walk for va, consulting tlb
// first and populating it on a successful walk. priv/accessKind drive the
// RISC-V permission checks (U-bit vs privilege, SUM, MXR, and R/W/X).
func Translate(tlb *TLB, mem MemReader, va uint32, satpRootPPN uint32, asid uint16,
	priv csr.Privilege, access AccessKind, sum, mxr bool) Result {

	if e, ok := tlb.Lookup(va, asid); ok {
		if !permOK(e.Perm, priv, access, sum, mxr) {
			return Result{Fault: FaultPage}
		}
		paddr := assemblePaddr(e, va)
		return Result{Paddr: paddr, Perm: e.Perm}
	}

	// Level 1.
	l1Addr := (satpRootPPN << PageBits) + vpn1(va)*4
	pte1 := mem.Read32(l1Addr)
	if pte1&PteV == 0 || reservedEncoding(pte1) {
		return Result{Fault: FaultPage}
	}
	if pte1&(PteR|PteX) != 0 {
		// A level-1 leaf: a 4 MiB megapage.
		perm := uint8(pte1 & 0xff)
		if !permOK(perm, priv, access, sum, mxr) {
			return Result{Fault: FaultPage}
		}
		if pte1&(0x3ff<<10) != 0 {
			// Misaligned superpage: a megapage leaf must carry PPN0 == 0.
			return Result{Fault: FaultPage}
		}
		ppn1 := (pte1 >> 20) & 0xfff
		e := Entry{Valid: true, Vpn1: vpn1(va), Megapage: true, Ppn1: ppn1, Asid: asid, Perm: perm}
		tlb.Insert(e)
		paddr := (ppn1 << 22) | (va & 0x3fffff)
		return Result{Paddr: paddr, Perm: perm}
	}
	// Non-leaf: descend to level 0.
	ppn := (pte1 >> 10) & 0x3fffff
	l0Addr := (ppn << PageBits) + vpn0(va)*4
	pte0 := mem.Read32(l0Addr)
	if pte0&PteV == 0 || reservedEncoding(pte0) || pte0&(PteR|PteX) == 0 {
		return Result{Fault: FaultPage}
	}
	perm := uint8(pte0 & 0xff)
	if !permOK(perm, priv, access, sum, mxr) {
		return Result{Fault: FaultPage}
	}
	ppn0 := (pte0 >> 10) & 0x3fffff
	e := Entry{Valid: true, Vpn1: vpn1(va), Vpn0: vpn0(va), Ppn1: (ppn0 >> 10) & 0x3ff,
		Ppn0: ppn0 & 0x3ff, Asid: asid, Perm: perm}
	tlb.Insert(e)
	paddr := (ppn0 << PageBits) | pageOffset(va)
	return Result{Paddr: paddr, Perm: perm}
}

// reservedEncoding reports whether pte carries the reserved R=0,W=1
// permission combination, which is never a legal PTE at any level.
func reservedEncoding(pte uint32) bool {
	return pte&PteR == 0 && pte&PteW != 0
}

func assemblePaddr(e Entry, va uint32) uint32 {
	if e.Megapage {
		return (e.Ppn1 << 22) | (va & 0x3fffff)
	}
	ppn := (e.Ppn1 << 10) | e.Ppn0
	return (ppn << PageBits) | pageOffset(va)
}

func permOK(perm uint8, priv csr.Privilege, access AccessKind, sum, mxr bool) bool {
	if perm&PteA == 0 {
		return false
	}
	if (access == AccessStore || access == AccessAMO) && perm&PteD == 0 {
		return false
	}
	u := perm&PteU != 0
	switch priv {
	case csr.User:
		if !u {
			return false
		}
	case csr.Supervisor:
		if u && !sum {
			return false
		}
	}
	switch access {
	case AccessFetch:
		return perm&PteX != 0
	case AccessLoad:
		if perm&PteR != 0 {
			return true
		}
		return mxr && perm&PteX != 0
	case AccessStore:
		return perm&PteW != 0
	case AccessAMO:
		return perm&PteR != 0 && perm&PteW != 0
	}
	return false
}
