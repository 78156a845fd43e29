// Package decode implements the instruction decode and branch-tag
// allocation unit (IDU): it drains the opaque fetch lanes package
// frontend produces, turns each one into a uop.Uop, and allocates a
// branch tag to every uop flagged as a branch/jump.
package decode

import (
	"github.com/sarchlab/rv32ooo/insts"
	"github.com/sarchlab/rv32ooo/internal/frontend"
	"github.com/sarchlab/rv32ooo/internal/uop"
)

// IbufEntry is one pre-decode queue slot: a fetched instruction word
// still carrying its FTQ linkage, waiting for a decode slot.
type IbufEntry struct {
	Valid     bool
	PC        uint32
	Raw       uint32
	FtqIdx    int
	FtqOffset int
	IsLast    bool // last lane of its fetch block
	PredictTaken bool
	RedirectPC   uint32
	PageFaultInst bool
}

// Width is DECODE_WIDTH: the number of uops the IDU can produce per cycle.
const Width = 4

// Idu holds the pre-decode queue and the branch-tag pool, and tracks the
// FIFO allocation order of outstanding branch tags so a mispredict can
// free exactly the tags allocated after the mispredicting branch.
type Idu struct {
	decoder *insts.Decoder
	tags    *uop.BranchTagPool

	ibuf []IbufEntry
	head int
	tail int
	n    int

	// tagOrder records (BrTag, its own BrMask at allocation time) in FIFO
	// allocation order, so ResolveMispredict can compute the survivor
	// set precisely.
	tagOrder []allocatedTag

	instIdxCounter uint64
}

type allocatedTag struct {
	tag    uop.BrTag
	before uop.BrMask // mask in scope when this tag was allocated
}

// New creates an IDU with the given pre-decode queue capacity and branch
// tag pool size (MAX_BR_NUM).
func New(ibufSize int, maxBrTags uint8) *Idu {
	return &Idu{
		decoder: insts.NewDecoder(),
		tags:    uop.NewBranchTagPool(maxBrTags),
		ibuf:    make([]IbufEntry, ibufSize),
	}
}

// Full reports whether the pre-decode queue has no room to accept a fetch
// group.
func (i *Idu) Full() bool { return i.n == len(i.ibuf) }

// Push enqueues fetched lanes into the pre-decode queue. Pushing past
// capacity is a bookkeeping invariant violation (the fetch front end must
// respect backpressure from Full), not a recoverable condition.
func (i *Idu) Push(lanes []frontend.Lane, ftqIdx int) {
	for offset, lane := range lanes {
		if !lane.Valid {
			continue
		}
		if i.n == len(i.ibuf) {
			panic("decode: ibuf push exceeded capacity")
		}
		i.ibuf[i.tail] = IbufEntry{
			Valid:         true,
			PC:            lane.PC,
			Raw:           lane.Inst,
			FtqIdx:        ftqIdx,
			FtqOffset:     offset,
			IsLast:        offset == len(lanes)-1,
			PredictTaken:  lane.PredictDir,
			RedirectPC:    lane.PredictNextFetchAddress,
			PageFaultInst: lane.PageFaultInst,
		}
		i.tail = (i.tail + 1) % len(i.ibuf)
		i.n++
	}
}

// Decode drains up to Width entries from the pre-decode queue, decodes
// each, and allocates a branch tag (up to MAX_BR_PER_CYCLE — here bounded
// by Width itself, since no wider issue of branch tags per cycle is
// architected) to every branch/jump uop. Returns the produced uops in
// program order; a decode that runs out of free branch tags stalls and
// returns fewer uops than requested, carrying the rest over to next cycle.
func (i *Idu) Decode(curBrMask uop.BrMask) []uop.Uop {
	out := make([]uop.Uop, 0, Width)
	for len(out) < Width && i.n > 0 {
		e := i.ibuf[i.head]

		isBranchLike := false
		inst := i.decoder.Decode(e.Raw)

		u := uop.Uop{
			InstIdx:   i.instIdxCounter,
			PC:        e.PC,
			Raw:       e.Raw,
			Func3:     inst.Func3,
			Func7:     inst.Func7,
			Imm:       inst.Imm,
			CSRIdx:    inst.CSRIdx,
			Src1:      inst.Rs1,
			Src2:      inst.Rs2,
			Dest:      inst.Rd,
			DestEn:    inst.RegWrite && inst.Rd != 0,
			FtqIdx:    e.FtqIdx,
			FtqOffset: e.FtqOffset,
			FtqIsLast: e.IsLast,
			PredictTaken:  e.PredictTaken,
			RedirectPC:    e.RedirectPC,
			PageFaultInst: e.PageFaultInst,
			BrMask:        curBrMask,
		}

		switch {
		case e.PageFaultInst:
			u.Kind = uop.NOP
		case inst.Illegal:
			u.Kind = uop.NOP
			u.IllegalInst = true
		default:
			u.Kind = kindOf(inst.Op)
			u.Src1En = inst.Rs1 != 0 && usesSrc1(inst.Op)
			u.Src2En = inst.Rs2 != 0 && (inst.Format == insts.FormatR ||
				inst.Format == insts.FormatS || inst.Format == insts.FormatB)
			u.Src1IsPC = inst.Op == insts.OpJAL || inst.Op == insts.OpAUIPC
			u.Src2IsImm = inst.Format == insts.FormatI ||
				inst.Format == insts.FormatU || inst.Format == insts.FormatJ
			u.IsBranch = inst.IsBranch || inst.Op == insts.OpJAL || inst.Op == insts.OpJALR
			isBranchLike = u.IsBranch
		}

		if isBranchLike {
			tag, ok := i.tags.Alloc()
			if !ok {
				// No free tag: stop decoding this cycle, leave the entry
				// in place for next cycle.
				break
			}
			u.BrTag = tag
			i.tagOrder = append(i.tagOrder, allocatedTag{tag: tag, before: curBrMask})
			curBrMask = curBrMask.Set(tag)
		}

		i.instIdxCounter++
		i.ibuf[i.head].Valid = false
		i.head = (i.head + 1) % len(i.ibuf)
		i.n--
		out = append(out, u)
	}
	return out
}

// ResolveMispredict frees every branch tag allocated strictly after
// mispredictTag and restores now_tag to whatever was in scope when
// mispredictTag itself was allocated (the branch survives; everything
// speculated past it does not). It also empties the pre-decode queue of
// any entries fetched down the wrong path, since those belong to the
// fetch front end's corrected stream instead. It returns the branch mask
// in scope for whatever gets fetched next: the mask captured when
// mispredictTag was allocated, plus mispredictTag itself, since the
// branch is still in flight (awaiting commit) even though its
// misprediction is now known.
func (i *Idu) ResolveMispredict(mispredictTag uop.BrTag) uop.BrMask {
	pos := -1
	for idx, at := range i.tagOrder {
		if at.tag == mispredictTag {
			pos = idx
			break
		}
	}
	if pos < 0 {
		return 0
	}
	var toFree []uop.BrTag
	for _, at := range i.tagOrder[pos+1:] {
		toFree = append(toFree, at.tag)
	}
	survivor := i.tagOrder[pos].before.Set(mispredictTag)
	i.tags.FreeAllAfterMispredict(toFree, mispredictTag)
	i.tagOrder = i.tagOrder[:pos+1]

	i.head = 0
	i.tail = 0
	i.n = 0
	for idx := range i.ibuf {
		i.ibuf[idx].Valid = false
	}
	return survivor
}

// Flush discards all in-flight decode state on a ROB flush (exception,
// fence.i, or any other full-pipeline restart).
func (i *Idu) Flush() {
	i.tags.FlushAll()
	i.tagOrder = i.tagOrder[:0]
	i.head = 0
	i.tail = 0
	i.n = 0
	for idx := range i.ibuf {
		i.ibuf[idx].Valid = false
	}
}

// FreeBranchTag returns a single committed branch's tag to the pool; the
// ROB calls this at commit once the branch can no longer be mispredicted.
func (i *Idu) FreeBranchTag(t uop.BrTag) {
	i.tags.Free(t)
	for idx, at := range i.tagOrder {
		if at.tag == t {
			i.tagOrder = append(i.tagOrder[:idx], i.tagOrder[idx+1:]...)
			break
		}
	}
}

func kindOf(op insts.Op) uop.Kind {
	switch op {
	case insts.OpMUL, insts.OpMULH, insts.OpMULHSU, insts.OpMULHU:
		return uop.MUL
	case insts.OpDIV, insts.OpDIVU, insts.OpREM, insts.OpREMU:
		return uop.DIV
	case insts.OpJAL, insts.OpJALR:
		if op == insts.OpJAL {
			return uop.JAL
		}
		return uop.JALR
	case insts.OpBEQ, insts.OpBNE, insts.OpBLT, insts.OpBGE, insts.OpBLTU, insts.OpBGEU:
		return uop.BR
	case insts.OpLB, insts.OpLH, insts.OpLW, insts.OpLBU, insts.OpLHU, insts.OpLR:
		return uop.LOAD
	case insts.OpSB, insts.OpSH, insts.OpSW, insts.OpSC, insts.OpAMOSWAP, insts.OpAMOADD:
		if op == insts.OpAMOSWAP || op == insts.OpAMOADD {
			return uop.AMO
		}
		return uop.STORE
	case insts.OpFENCEI:
		return uop.FENCE_I
	case insts.OpECALL:
		return uop.ECALL
	case insts.OpEBREAK:
		return uop.EBREAK
	case insts.OpMRET:
		return uop.MRET
	case insts.OpSRET:
		return uop.SRET
	case insts.OpWFI:
		return uop.WFI
	case insts.OpSFENCEVMA:
		return uop.SFENCE_VMA
	case insts.OpCSRRW, insts.OpCSRRS, insts.OpCSRRC, insts.OpCSRRWI, insts.OpCSRRSI, insts.OpCSRRCI:
		return uop.CSR
	default:
		return uop.ADD
	}
}

func usesSrc1(op insts.Op) bool {
	switch op {
	case insts.OpLUI, insts.OpJAL:
		return false
	default:
		return true
	}
}

