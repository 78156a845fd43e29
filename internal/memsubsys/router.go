package memsubsys

import "github.com/sarchlab/rv32ooo/internal/simctx"

// RouteResult tells the caller what happened to a response it tried to
// route.
type RouteResult int

const (
	// RouteHandled means the response was delivered to its owner.
	RouteHandled RouteResult = iota
	// RouteDropped means the owner's in-flight request was cancelled
	// (e.g. by a mispredict/flush) before the response arrived, so the
	// response is discarded rather than delivered.
	RouteDropped
)

// pendingOwner is one in-flight request's routing record.
type pendingOwner struct {
	source   ReadSource
	ownerID  uint64
	dropped  bool
}

// Router is the FIFO response router: requests are pushed in issue
// order, and responses are popped in the same order, since the memory
// backing this subsystem never reorders responses relative to requests
// from the same arbitrated stream.
type Router struct {
	queue []pendingOwner
}

// PushRequest records that a request was just granted, so its eventual
// response can be routed back without the memory itself needing to carry
// owner metadata.
func (r *Router) PushRequest(source ReadSource, ownerID uint64) {
	r.queue = append(r.queue, pendingOwner{source: source, ownerID: ownerID})
}

// CancelOldest marks the oldest still-pending request for ownerID as
// dropped — used when a flush invalidates an in-flight request before
// its response arrives; the response is still consumed from the FIFO
// when it shows up, just discarded instead of delivered.
func (r *Router) CancelOldest(ownerID uint64) {
	for i := range r.queue {
		if !r.queue[i].dropped && r.queue[i].ownerID == ownerID {
			r.queue[i].dropped = true
			return
		}
	}
}

// Route consumes the oldest pending request and reports where its
// response belongs. A response arriving with no pending request
// outstanding is a fail-fast bookkeeping invariant violation: the memory
// never produces an unsolicited response in this model.
func (r *Router) Route() (ReadSource, uint64, RouteResult) {
	if len(r.queue) == 0 {
		simctx.Fatalf("memsubsys: response routed with no pending request")
	}
	p := r.queue[0]
	r.queue = r.queue[1:]
	if p.dropped {
		return p.source, p.ownerID, RouteDropped
	}
	return p.source, p.ownerID, RouteHandled
}

// Empty reports whether any request is still awaiting a response.
func (r *Router) Empty() bool { return len(r.queue) == 0 }
