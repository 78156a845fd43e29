package backend

import (
	"github.com/sarchlab/rv32ooo/internal/memsubsys"
	"github.com/sarchlab/rv32ooo/internal/mmu"
	"github.com/sarchlab/rv32ooo/internal/uop"
)

// pendingMemLoad is one LSU read waiting on, or currently occupying, the
// shared data cache's single outstanding-miss slot.
type pendingMemLoad struct {
	u    uop.Uop
	addr uint32
}

// memLoadUnit threads LSU loads that missed store-forwarding through the
// shared memsubsys.Arbiter/Router/Cache one at a time — the cache only
// ever has memsubsys.MaxPendingReqs misses outstanding. Unlike
// mulPipe/divUnit its latency is not fixed up front: a cache hit
// completes in Cache's HitLatency cycles, a miss in MissLatency (+
// jitter), decided only once the request is actually admitted.
type memLoadUnit struct {
	queue  []pendingMemLoad
	active *pendingMemLoad
	left   int
	wasHit bool
}

func (m *memLoadUnit) push(p pendingMemLoad) {
	m.queue = append(m.queue, p)
}

// tick admits the oldest queued load once the cache can accept a new
// miss, counts down the in-flight request's latency, and reports a
// completed load once its response has arrived. A request cancelled by a
// flush while in flight is still drained from the router's FIFO here
// (RouteDropped), just never reported as completed.
func (m *memLoadUnit) tick(b *Backend) (pendingMemLoad, bool) {
	if m.active == nil {
		if len(m.queue) == 0 || b.Cache.Blocked() {
			return pendingMemLoad{}, false
		}
		p := m.queue[0]
		m.queue = m.queue[1:]
		b.Arbiter.Request(memsubsys.SourceLSURead, p.addr, uint64(p.u.LdqIdx))
		req, _ := b.Arbiter.Grant() // LSU-read is the top-priority source; always granted immediately.
		b.Router.PushRequest(req.Source, req.OwnerID)
		latency, hit := b.Cache.Access(req.Addr, b.Ctx.RNG)
		m.active, m.left, m.wasHit = &p, latency, hit
		return pendingMemLoad{}, false
	}

	m.left--
	if m.left > 0 {
		return pendingMemLoad{}, false
	}
	if !m.wasHit {
		b.Cache.MissComplete()
	}
	_, _, result := b.Router.Route()
	p := *m.active
	m.active = nil
	if result == memsubsys.RouteDropped {
		return pendingMemLoad{}, false
	}
	return p, true
}

// flush drops every queued load whose branch mask intersects mask, and
// cancels the in-flight request (if any) so its eventual response routes
// as dropped instead of delivered.
func (m *memLoadUnit) flush(router *memsubsys.Router, mask uop.BrMask) {
	kept := m.queue[:0]
	for _, p := range m.queue {
		if !p.u.BrMask.Intersects(mask) {
			kept = append(kept, p)
		}
	}
	m.queue = kept
	if m.active != nil && m.active.u.BrMask.Intersects(mask) {
		router.CancelOldest(uint64(m.active.u.LdqIdx))
	}
}

// flushAll drops every queued load and cancels the in-flight request.
func (m *memLoadUnit) flushAll(router *memsubsys.Router) {
	m.queue = nil
	if m.active != nil {
		router.CancelOldest(uint64(m.active.u.LdqIdx))
	}
}

// ptwMemReader adapts the shared Arbiter/Router/Cache to mmu.MemReader
// for page-table-walk reads. The walk itself stays synchronous —
// mmu.Translate issues one Read32 per level and expects the result back
// immediately — but every walk read still contends for the arbiter and
// lands in the same cache as LSU traffic: a walk that revisits a
// page-table page it already read gets a real PLRU hit, and a walk
// racing LSU traffic for the arbiter always loses (LSU-read is the
// highest-priority source).
type ptwMemReader struct {
	b      *Backend
	source memsubsys.ReadSource
}

func (r ptwMemReader) Read32(addr uint32) uint32 {
	r.b.Arbiter.Request(r.source, addr, 0)
	req, ok := r.b.Arbiter.Grant()
	if !ok {
		return r.b.Ctx.Memory.Read32(addr)
	}
	r.b.Router.PushRequest(req.Source, req.OwnerID)
	_, hit := r.b.Cache.Access(req.Addr, r.b.Ctx.RNG)
	if !hit {
		r.b.Cache.MissComplete()
	}
	r.b.Router.Route()
	return r.b.Ctx.Memory.Read32(req.Addr)
}

// ptwSource picks the walk's arbiter identity by which TLB it is filling.
func ptwSource(b *Backend, tlb *mmu.TLB) memsubsys.ReadSource {
	if tlb == b.ITLB {
		return memsubsys.SourcePTWITLB
	}
	return memsubsys.SourcePTWDTLB
}
