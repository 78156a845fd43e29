// Package rob implements the reorder buffer: a circular buffer admitting
// whole dispatch groups atomically at the tail and retiring a
// consecutive-ready prefix from the head each cycle, in program order.
package rob

import "github.com/sarchlab/rv32ooo/internal/uop"

// Entry is one in-flight instruction's commit-relevant state. The ROB
// does not hold the uop's full pipeline bookkeeping (that lives in the
// issue queues/LSU until execute); it holds just enough to apply
// architectural effects at commit.
type Entry struct {
	Valid     bool
	Completed bool

	PC       uint32
	Dest     uint8
	PDest    uint8
	OldPDest uint8
	DestEn   bool
	Result   uint32

	IsBranch     bool
	BrTag        uop.BrTag
	PredictTaken bool
	ActualTaken  bool
	Mispredict   bool
	RedirectPC   uint32

	FtqIdx    int
	FtqOffset int
	FtqIsLast bool

	IllegalInst    bool
	PageFaultInst  bool
	PageFaultLoad  bool
	PageFaultStore bool
	IsECall        bool
	IsEBreak       bool
	IsMret         bool
	IsSret         bool
	IsFenceI       bool
	IsSfenceVMA    bool
	Mtval          uint32

	StoreValid bool
	StoreAddr  uint32
	StoreData  uint32

	InstIdx      uint64
	DifftestSkip bool
}

// Width is COMMIT_WIDTH: the number of entries the ROB can retire per
// cycle.
const Width = 4

// ROB is the circular reorder buffer.
type ROB struct {
	entries []Entry
	head    int
	tail    int
	headWrap bool
	tailWrap bool
}

// New creates a ROB with the given capacity (ROB_SIZE).
func New(size int) *ROB {
	return &ROB{entries: make([]Entry, size)}
}

// Size returns the ROB's capacity.
func (r *ROB) Size() int { return len(r.entries) }

// FreeSlots reports how many entries can still be allocated before the
// ROB is full.
func (r *ROB) FreeSlots() int {
	used := r.tail - r.head
	if used < 0 {
		used += len(r.entries)
	} else if r.head == r.tail && r.headWrap != r.tailWrap {
		used = len(r.entries)
	}
	return len(r.entries) - used
}

// CanAlloc reports whether n entries can be admitted atomically.
func (r *ROB) CanAlloc(n int) bool { return r.FreeSlots() >= n }

// Alloc admits a dispatch group atomically, in program order, and
// returns each uop's assigned ROB index. The caller must have checked
// CanAlloc first; allocating past capacity is a bookkeeping invariant
// violation.
func (r *ROB) Alloc(group []uop.Uop) []uop.RobIdx {
	if !r.CanAlloc(len(group)) {
		panic("rob: alloc exceeded capacity")
	}
	idxs := make([]uop.RobIdx, len(group))
	for i, u := range group {
		idx := r.tail
		wrap := r.tailWrap
		r.entries[idx] = Entry{
			Valid:        true,
			PC:           u.PC,
			Dest:         u.Dest,
			PDest:        u.PDest,
			OldPDest:     u.OldPDest,
			DestEn:       u.DestEn,
			IsBranch:     u.IsBranch,
			BrTag:        u.BrTag,
			PredictTaken: u.PredictTaken,
			FtqIdx:       u.FtqIdx,
			FtqOffset:    u.FtqOffset,
			FtqIsLast:    u.FtqIsLast,
			InstIdx:      u.InstIdx,
			IllegalInst:  u.IllegalInst,
		}
		idxs[i] = uop.RobIdx{Idx: uint32(idx), Flag: wrap}
		r.tail = (r.tail + 1) % len(r.entries)
		if r.tail == 0 {
			r.tailWrap = !r.tailWrap
		}
	}
	return idxs
}

// Complete records a uop's execute-stage result — its producer has
// written back and the entry is ready to commit once it reaches the
// head.
func (r *ROB) Complete(idx uop.RobIdx, result uint32, actualTaken bool, mispredict bool, redirectPC uint32) {
	e := &r.entries[idx.Idx]
	e.Completed = true
	e.Result = result
	e.ActualTaken = actualTaken
	e.Mispredict = mispredict
	e.RedirectPC = redirectPC
}

// CompleteException marks an entry as completed carrying exception
// metadata instead of a normal result; exceptions are never speculative
// past this point but are still only applied to architectural state at
// commit.
func (r *ROB) CompleteException(idx uop.RobIdx, e Entry) {
	e.Valid = true
	e.Completed = true
	r.entries[idx.Idx] = e
}

// Peek returns a pointer to the head entry without retiring it.
func (r *ROB) Peek() (*Entry, bool) {
	if r.head == r.tail && r.headWrap == r.tailWrap {
		return nil, false
	}
	return &r.entries[r.head], true
}

// Commit retires up to Width consecutive completed entries from the
// head. It stops at the first incomplete entry, and also stops right
// after (inclusive of) any entry that is a mispredicted branch, an exception, or a
// privileged control-flow instruction — those terminate the commit group
// early since the caller must apply their redirect/flush before
// committing anything younger.
func (r *ROB) Commit() []Entry {
	var out []Entry
	for len(out) < Width {
		if r.head == r.tail && r.headWrap == r.tailWrap {
			break
		}
		e := r.entries[r.head]
		if !e.Completed {
			break
		}
		r.entries[r.head] = Entry{}
		r.head = (r.head + 1) % len(r.entries)
		if r.head == 0 {
			r.headWrap = !r.headWrap
		}
		out = append(out, e)
		if e.terminatesCommitGroup() {
			break
		}
	}
	return out
}

func (e Entry) terminatesCommitGroup() bool {
	return e.Mispredict || e.IllegalInst || e.PageFaultInst || e.PageFaultLoad ||
		e.PageFaultStore || e.IsECall || e.IsEBreak || e.IsMret || e.IsSret ||
		e.IsFenceI || e.IsSfenceVMA
}

// Flush empties the ROB entirely (exception/fence.i full-pipeline
// restart).
func (r *ROB) Flush() {
	for i := range r.entries {
		r.entries[i] = Entry{}
	}
	r.head = 0
	r.tail = 0
	r.headWrap = false
	r.tailWrap = false
}
