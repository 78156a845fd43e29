// Package issue implements an out-of-order issue queue: entries wake up
// either from a physical-register-file "ready" signal (PRF-awake) or
// from a speculative fixed-latency counter set when a producer issues
// (ISS-awake, letting a dependent issue back-to-back without waiting for
// the producer's value to actually land), and the oldest ready entry per
// port wins selection each cycle. A branch-mask intersection test flushes
// entries belonging to a mispredicted path without scanning program
// order.
package issue

import "github.com/sarchlab/rv32ooo/internal/uop"

// entry is one issue-queue slot.
type entry struct {
	valid bool
	u     uop.Uop

	src1Ready bool
	src2Ready bool

	// specLatency counts down to zero once a producer whose result this
	// entry depends on has issued with a known fixed latency; reaching
	// zero marks the corresponding src ready one cycle before the PRF
	// bypass would otherwise confirm it (ISS-awake wakeup).
	specSrc1Latency int
	specSrc2Latency int
}

func (e *entry) ready() bool { return e.valid && e.src1Ready && e.src2Ready }

// PRFReader is the minimal interface issue needs from the register file
// to resolve PRF-awake wakeups.
type PRFReader interface {
	Ready(p uint8) bool
}

// Queue is a fixed-capacity issue queue feeding Ports execution ports.
type Queue struct {
	entries []entry
	ports   int
}

// NewQueue creates an issue queue with the given capacity and number of
// execution ports it can issue to per cycle.
func NewQueue(capacity, ports int) *Queue {
	return &Queue{entries: make([]entry, capacity), ports: ports}
}

// Capacity returns the queue's entry count.
func (q *Queue) Capacity() int { return len(q.entries) }

// FreeSlots reports how many entries are unoccupied.
func (q *Queue) FreeSlots() int {
	n := 0
	for _, e := range q.entries {
		if !e.valid {
			n++
		}
	}
	return n
}

// Add inserts a uop into a free slot; src readiness is resolved
// immediately against the PRF so an already-ready operand does not wait
// an extra cycle. Returns false if the queue has no free slot.
func (q *Queue) Add(u uop.Uop, prf PRFReader) bool {
	for i := range q.entries {
		if q.entries[i].valid {
			continue
		}
		e := entry{valid: true, u: u}
		if !u.Src1En {
			e.src1Ready = true
		} else {
			e.src1Ready = prf.Ready(u.PSrc1)
		}
		if !u.Src2En {
			e.src2Ready = true
		} else {
			e.src2Ready = prf.Ready(u.PSrc2)
		}
		q.entries[i] = e
		return true
	}
	return false
}

// WakeSpeculative arms a speculative countdown on every entry waiting on
// preg, to fire latencyCycles from now (ISS-awake wakeup, issued the
// cycle the producer itself issues).
func (q *Queue) WakeSpeculative(preg uint8, latencyCycles int) {
	for i := range q.entries {
		e := &q.entries[i]
		if !e.valid {
			continue
		}
		if e.u.Src1En && !e.src1Ready && e.u.PSrc1 == preg {
			e.specSrc1Latency = latencyCycles
		}
		if e.u.Src2En && !e.src2Ready && e.u.PSrc2 == preg {
			e.specSrc2Latency = latencyCycles
		}
	}
}

// Tick advances every entry's speculative countdown by one cycle and
// confirms readiness against the PRF for any entry not yet marked ready
// (covers PRF-awake wakeup for producers whose latency was not tracked
// speculatively, e.g. variable-latency loads).
func (q *Queue) Tick(prf PRFReader) {
	for i := range q.entries {
		e := &q.entries[i]
		if !e.valid {
			continue
		}
		if !e.src1Ready {
			if e.specSrc1Latency > 0 {
				e.specSrc1Latency--
				if e.specSrc1Latency == 0 {
					e.src1Ready = true
				}
			} else if prf.Ready(e.u.PSrc1) {
				e.src1Ready = true
			}
		}
		if !e.src2Ready {
			if e.specSrc2Latency > 0 {
				e.specSrc2Latency--
				if e.specSrc2Latency == 0 {
					e.src2Ready = true
				}
			} else if prf.Ready(e.u.PSrc2) {
				e.src2Ready = true
			}
		}
	}
}

// Select picks up to Ports ready entries, oldest (lowest InstIdx) first,
// removes them from the queue, and returns them for dispatch to the
// execution ports.
func (q *Queue) Select() []uop.Uop {
	var candidates []int
	for i := range q.entries {
		if q.entries[i].ready() {
			candidates = append(candidates, i)
		}
	}
	// Oldest-first: simple insertion sort over a small candidate set is
	// plenty, issue queues are shallow.
	for i := 1; i < len(candidates); i++ {
		for j := i; j > 0 && q.entries[candidates[j-1]].u.InstIdx > q.entries[candidates[j]].u.InstIdx; j-- {
			candidates[j-1], candidates[j] = candidates[j], candidates[j-1]
		}
	}
	if len(candidates) > q.ports {
		candidates = candidates[:q.ports]
	}
	out := make([]uop.Uop, len(candidates))
	for i, idx := range candidates {
		out[i] = q.entries[idx].u
		q.entries[idx] = entry{}
	}
	return out
}

// Flush invalidates every entry whose branch mask intersects flushMask —
// the squash-by-mask protocol used on a mispredict, requiring no program
// order scan.
func (q *Queue) Flush(flushMask uop.BrMask) {
	for i := range q.entries {
		if q.entries[i].valid && q.entries[i].u.BrMask.Intersects(flushMask) {
			q.entries[i] = entry{}
		}
	}
}

// ClearBranchTag clears tag out of every live entry's branch mask once
// the branch it names has resolved correctly (not a mispredict) or
// committed — matching clear_br(clear_mask) in the original source.
func (q *Queue) ClearBranchTag(tag uop.BrTag) {
	for i := range q.entries {
		if q.entries[i].valid {
			q.entries[i].u.BrMask = q.entries[i].u.BrMask.Clear(tag)
		}
	}
}

// FlushAll empties the queue (ROB flush).
func (q *Queue) FlushAll() {
	for i := range q.entries {
		q.entries[i] = entry{}
	}
}
