// Package dispatch routes a renamed, decoded group of uops into the ROB,
// the correct issue queue for its op type, and the store/load queues —
// admitting the whole group atomically so a group that cannot fully fit
// anywhere stalls entirely rather than partially dispatching and
// corrupting program order.
package dispatch

import (
	"github.com/sarchlab/rv32ooo/internal/issue"
	"github.com/sarchlab/rv32ooo/internal/rob"
	"github.com/sarchlab/rv32ooo/internal/uop"
)

// Width is DISPATCH_WIDTH: the number of uops considered per cycle.
const Width = 4

// StoreQueue is the minimal interface dispatch needs from the LSU's
// store queue.
type StoreQueue interface {
	FreeSlots() int
	Reserve(u uop.Uop) int
}

// LoadQueue is the minimal interface dispatch needs from the LSU's load
// queue.
type LoadQueue interface {
	FreeSlots() int
	Reserve(u uop.Uop) int
}

// Router maps a uop's Kind to the issue queue it dispatches into.
type Router struct {
	ALU    *issue.Queue
	Mem    *issue.Queue
	Branch *issue.Queue
}

func (r *Router) queueFor(k uop.Kind) *issue.Queue {
	switch k {
	case uop.LOAD, uop.STORE, uop.AMO:
		return r.Mem
	case uop.BR, uop.JAL, uop.JALR:
		return r.Branch
	default:
		return r.ALU
	}
}

// Dispatcher admits dispatch groups atomically across the ROB, the
// per-type issue queues, and the LSU's store/load queues.
type Dispatcher struct {
	ROB    *rob.ROB
	Router *Router
	STQ    StoreQueue
	LDQ    LoadQueue
}

// CanAdmit reports whether every resource a group needs has enough free
// capacity, without mutating any of them.
func (d *Dispatcher) CanAdmit(group []uop.Uop) bool {
	if !d.ROB.CanAlloc(len(group)) {
		return false
	}
	need := map[*issue.Queue]int{}
	storesNeeded, loadsNeeded := 0, 0
	for _, u := range group {
		need[d.Router.queueFor(u.Kind)]++
		switch u.Kind {
		case uop.STORE:
			storesNeeded++
		case uop.AMO:
			storesNeeded++
			loadsNeeded++
		case uop.LOAD:
			loadsNeeded++
		}
	}
	for q, n := range need {
		if q.FreeSlots() < n {
			return false
		}
	}
	if d.STQ.FreeSlots() < storesNeeded {
		return false
	}
	if d.LDQ.FreeSlots() < loadsNeeded {
		return false
	}
	return true
}

// Dispatch admits a group that CanAdmit has already approved: it
// allocates ROB entries in program order, reserves STQ/LDQ slots for
// memory ops, stamps each uop with its assigned indices, and enqueues
// every uop into its routed issue queue.
func (d *Dispatcher) Dispatch(group []uop.Uop, prf issue.PRFReader) []uop.RobIdx {
	idxs := d.ROB.Alloc(group)
	for i := range group {
		group[i].Rob = idxs[i]
		switch group[i].Kind {
		case uop.STORE:
			group[i].StqIdx = d.STQ.Reserve(group[i])
		case uop.AMO:
			group[i].StqIdx = d.STQ.Reserve(group[i])
			group[i].LdqIdx = d.LDQ.Reserve(group[i])
		case uop.LOAD:
			group[i].LdqIdx = d.LDQ.Reserve(group[i])
		}
		d.Router.queueFor(group[i].Kind).Add(group[i], prf)
	}
	return idxs
}
