// Package lsu implements the load-store unit: a store queue (STQ) and
// load queue (LDQ), store-to-load forwarding classified as full/partial
// miss by comparing byte ranges and program-order age, and the three
// helper queues the original source threads loads and store-address
// requests through (finished_loads, finished_sta_reqs,
// pending_sta_addr_reqs).
package lsu

import "github.com/sarchlab/rv32ooo/internal/uop"

// ForwardOutcome classifies a load's relationship to an older,
// address-matching store.
type ForwardOutcome int

const (
	// ForwardNone means no older store overlaps this load's address.
	ForwardNone ForwardOutcome = iota
	// ForwardFull means exactly one older store's byte range covers the
	// load's entire byte range, so its data can be forwarded directly.
	ForwardFull
	// ForwardPartial means an older store overlaps only part of the
	// load's byte range; this core cannot synthesize a merged result and
	// must stall the load until the store retires to memory.
	ForwardPartial
)

// StoreEntry is one STQ slot.
type StoreEntry struct {
	Valid      bool
	Uop        uop.Uop
	Rob        uop.RobIdx
	AddrValid  bool
	Addr       uint32
	Size       uint8 // bytes: 1, 2, or 4
	DataValid  bool
	Data       uint32
	Committed  bool // ROB has retired this store; safe to write to memory
	IsMMIO     bool
}

func byteRange(addr uint32, size uint8) (uint32, uint32) { return addr, addr + uint32(size) - 1 }

func overlaps(aLo, aHi, bLo, bHi uint32) bool { return aLo <= bHi && bLo <= aHi }

func covers(storeLo, storeHi, loadLo, loadHi uint32) bool {
	return storeLo <= loadLo && storeHi >= loadHi
}

// STQ is the circular store queue.
type STQ struct {
	entries []StoreEntry
	head    int
	tail    int
	n       int
}

// NewSTQ creates a store queue with the given capacity.
func NewSTQ(size int) *STQ { return &STQ{entries: make([]StoreEntry, size)} }

// FreeSlots reports how many STQ entries are unoccupied.
func (q *STQ) FreeSlots() int { return len(q.entries) - q.n }

// Reserve allocates the next STQ slot in program order at dispatch,
// before the store's address or data are known.
func (q *STQ) Reserve(u uop.Uop) int {
	idx := q.tail
	q.entries[idx] = StoreEntry{Valid: true, Uop: u, Rob: u.Rob}
	q.tail = (q.tail + 1) % len(q.entries)
	q.n++
	return idx
}

// SetAddr fills in a reserved store's effective address once the AGU has
// computed it.
func (q *STQ) SetAddr(idx int, addr uint32, size uint8, isMMIO bool) {
	q.entries[idx].AddrValid = true
	q.entries[idx].Addr = addr
	q.entries[idx].Size = size
	q.entries[idx].IsMMIO = isMMIO
}

// SetData fills in a reserved store's value once the store-data uop
// (STD) has produced it.
func (q *STQ) SetData(idx int, data uint32) {
	q.entries[idx].DataValid = true
	q.entries[idx].Data = data
}

// Commit marks a store as retired by the ROB — it is now safe to send to
// memory; nothing younger can un-commit it.
func (q *STQ) Commit(idx int) { q.entries[idx].Committed = true }

// Entry returns the entry at idx for inspection (forwarding, memory
// issue).
func (q *STQ) Entry(idx int) StoreEntry { return q.entries[idx] }

// Head returns the oldest store's index and whether one exists.
func (q *STQ) Head() (int, bool) {
	if q.n == 0 {
		return 0, false
	}
	return q.head, true
}

// Retire pops the head entry once it has actually been written to
// memory (the cache/peripheral sink accepted it).
func (q *STQ) Retire() {
	if q.n == 0 {
		return
	}
	q.entries[q.head] = StoreEntry{}
	q.head = (q.head + 1) % len(q.entries)
	q.n--
}

// Forward scans every committed-or-not store older than loadRob (lower
// program order) for one overlapping [addr, addr+size) and classifies
// the result. It walks from the newest qualifying store backward to the
// oldest so the most recent overlapping store wins ties, matching
// program-order forwarding semantics.
func (q *STQ) Forward(addr uint32, size uint8, loadRob uop.RobIdx) (ForwardOutcome, uint32) {
	lLo, lHi := byteRange(addr, size)
	// Walk from tail-1 back to head so the youngest store-older-than-load
	// is examined first.
	n := q.n
	idx := (q.tail - 1 + len(q.entries)) % len(q.entries)
	for i := 0; i < n; i++ {
		e := q.entries[idx]
		if e.Valid && e.AddrValid && e.Rob.Before(loadRob) {
			sLo, sHi := byteRange(e.Addr, e.Size)
			if overlaps(lLo, lHi, sLo, sHi) {
				if covers(sLo, sHi, lLo, lHi) && e.DataValid {
					return ForwardFull, extractBytes(e.Data, e.Addr, addr, size)
				}
				return ForwardPartial, 0
			}
		}
		idx = (idx - 1 + len(q.entries)) % len(q.entries)
	}
	return ForwardNone, 0
}

func extractBytes(storeData, storeAddr, loadAddr uint32, loadSize uint8) uint32 {
	shift := (loadAddr - storeAddr) * 8
	v := storeData >> shift
	switch loadSize {
	case 1:
		return v & 0xff
	case 2:
		return v & 0xffff
	default:
		return v
	}
}

// LoadEntry is one LDQ slot.
type LoadEntry struct {
	Valid      bool
	Uop        uop.Uop
	Rob        uop.RobIdx
	AddrValid  bool
	Addr       uint32
	Size       uint8
	Signed     bool
	Completed  bool
	Result     uint32
	IsMMIO     bool
	DifftestSkip bool
}

// LDQ is the circular load queue.
type LDQ struct {
	entries []LoadEntry
	head    int
	tail    int
	n       int
}

// NewLDQ creates a load queue with the given capacity.
func NewLDQ(size int) *LDQ { return &LDQ{entries: make([]LoadEntry, size)} }

// FreeSlots reports how many LDQ entries are unoccupied.
func (q *LDQ) FreeSlots() int { return len(q.entries) - q.n }

// Reserve allocates the next LDQ slot in program order at dispatch.
func (q *LDQ) Reserve(u uop.Uop) int {
	idx := q.tail
	q.entries[idx] = LoadEntry{Valid: true, Uop: u, Rob: u.Rob}
	q.tail = (q.tail + 1) % len(q.entries)
	q.n++
	return idx
}

// SetAddr fills in a reserved load's effective address at execute.
func (q *LDQ) SetAddr(idx int, addr uint32, size uint8, signed bool, isMMIO bool) {
	q.entries[idx].AddrValid = true
	q.entries[idx].Addr = addr
	q.entries[idx].Size = size
	q.entries[idx].Signed = signed
	q.entries[idx].IsMMIO = isMMIO
}

// Complete records a load's final value, whether obtained from store
// forwarding or from the data cache/peripheral sink.
func (q *LDQ) Complete(idx int, result uint32, difftestSkip bool) {
	q.entries[idx].Completed = true
	q.entries[idx].Result = result
	q.entries[idx].DifftestSkip = difftestSkip
}

// Entry returns the entry at idx.
func (q *LDQ) Entry(idx int) LoadEntry { return q.entries[idx] }

// Retire pops the head entry once its result has been consumed by
// writeback.
func (q *LDQ) Retire() {
	if q.n == 0 {
		return
	}
	q.entries[q.head] = LoadEntry{}
	q.head = (q.head + 1) % len(q.entries)
	q.n--
}

// HelperQueues are the three FIFOs the original source's LSU threads
// in-flight memory ops through, decoupling AGU/forwarding decisions from
// the cycle a request actually reaches the memory subsystem.
type HelperQueues struct {
	// FinishedLoads holds LDQ indices whose data has arrived (forward or
	// cache response) and is waiting to be written back.
	FinishedLoads []int
	// FinishedSTAReqs holds STQ indices whose address has been computed
	// and translated, ready to probe the store queue/cache.
	FinishedSTAReqs []int
	// PendingSTAAddrReqs holds STQ indices still waiting on a DTLB
	// translation retry before an address is known.
	PendingSTAAddrReqs []int
}

// PushFinishedLoad enqueues a completed load index.
func (h *HelperQueues) PushFinishedLoad(idx int) {
	h.FinishedLoads = append(h.FinishedLoads, idx)
}

// PopFinishedLoad dequeues the oldest completed load index, if any.
func (h *HelperQueues) PopFinishedLoad() (int, bool) {
	if len(h.FinishedLoads) == 0 {
		return 0, false
	}
	idx := h.FinishedLoads[0]
	h.FinishedLoads = h.FinishedLoads[1:]
	return idx, true
}

// PushFinishedSTA enqueues a store whose address is now known.
func (h *HelperQueues) PushFinishedSTA(idx int) {
	h.FinishedSTAReqs = append(h.FinishedSTAReqs, idx)
}

// PopFinishedSTA dequeues the oldest ready store-address request.
func (h *HelperQueues) PopFinishedSTA() (int, bool) {
	if len(h.FinishedSTAReqs) == 0 {
		return 0, false
	}
	idx := h.FinishedSTAReqs[0]
	h.FinishedSTAReqs = h.FinishedSTAReqs[1:]
	return idx, true
}

// PushPendingSTAAddr enqueues a store waiting on a DTLB retry.
func (h *HelperQueues) PushPendingSTAAddr(idx int) {
	h.PendingSTAAddrReqs = append(h.PendingSTAAddrReqs, idx)
}

// PopPendingSTAAddr dequeues the oldest store waiting on translation.
func (h *HelperQueues) PopPendingSTAAddr() (int, bool) {
	if len(h.PendingSTAAddrReqs) == 0 {
		return 0, false
	}
	idx := h.PendingSTAAddrReqs[0]
	h.PendingSTAAddrReqs = h.PendingSTAAddrReqs[1:]
	return idx, true
}
