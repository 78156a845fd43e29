// Package exu implements the execution-stage functional unit models: the
// ALU/branch/AGU combinational compute functions, a fixed-latency
// pipelined unit shell (for MUL) and an iterative non-pipelined unit
// shell (for DIV/REM), both of which support the branch-mask kill
// protocol so in-flight results belonging to a squashed path never reach
// writeback.
package exu

import "github.com/sarchlab/rv32ooo/internal/uop"

// ALU evaluates the integer ALU ops (both R-type register-register and
// I-type register-immediate share the same Kind; Src2IsImm/Imm selects
// which operand feeds the second input).
func ALU(u uop.Uop, src1, src2 uint32) uint32 {
	if u.Src2IsImm {
		src2 = uint32(u.Imm)
	}
	switch u.Func3 {
	case 0x0:
		if u.Func7 == 0x20 && !u.Src2IsImm {
			return src1 - src2
		}
		return src1 + src2
	case 0x1:
		return src1 << (src2 & 0x1f)
	case 0x2:
		return boolToU32(int32(src1) < int32(src2))
	case 0x3:
		return boolToU32(src1 < src2)
	case 0x4:
		return src1 ^ src2
	case 0x5:
		if u.Func7 == 0x20 {
			return uint32(int32(src1) >> (src2 & 0x1f))
		}
		return src1 >> (src2 & 0x1f)
	case 0x6:
		return src1 | src2
	case 0x7:
		return src1 & src2
	}
	return 0
}

func boolToU32(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// AGU computes a load/store/AMO effective address.
func AGU(u uop.Uop, src1 uint32) uint32 {
	return uint32(int32(src1) + u.Imm)
}

// BranchResult is the outcome of evaluating a branch/jump's condition and
// target against the prediction it was fetched with.
type BranchResult struct {
	Taken      bool
	Target     uint32
	Mispredict bool
}

// Branch evaluates BEQ/BNE/BLT/BGE/BLTU/BGEU/JAL/JALR against the
// prediction carried on the uop and reports whether a redirect is
// required.
func Branch(u uop.Uop, src1, src2 uint32) BranchResult {
	var taken bool
	var target uint32

	switch u.Kind {
	case uop.JAL:
		taken = true
		target = uint32(int32(u.PC) + u.Imm)
	case uop.JALR:
		taken = true
		target = uint32(int32(src1)+u.Imm) &^ 1
	case uop.BR:
		switch u.Func3 {
		case 0x0:
			taken = src1 == src2
		case 0x1:
			taken = src1 != src2
		case 0x4:
			taken = int32(src1) < int32(src2)
		case 0x5:
			taken = int32(src1) >= int32(src2)
		case 0x6:
			taken = src1 < src2
		case 0x7:
			taken = src1 >= src2
		}
		if taken {
			target = uint32(int32(u.PC) + u.Imm)
		} else {
			target = u.PC + 4
		}
	}

	mispredict := taken != u.PredictTaken || (taken && target != u.RedirectPC)
	return BranchResult{Taken: taken, Target: target, Mispredict: mispredict}
}

// Mul evaluates MUL/MULH/MULHSU/MULHU via a full 64-bit product.
func Mul(u uop.Uop, src1, src2 uint32) uint32 {
	switch u.Func3 {
	case 0x0: // MUL
		return src1 * src2
	case 0x1: // MULH (signed x signed)
		p := int64(int32(src1)) * int64(int32(src2))
		return uint32(p >> 32)
	case 0x2: // MULHSU (signed x unsigned)
		p := int64(int32(src1)) * int64(int64(src2))
		return uint32(p >> 32)
	case 0x3: // MULHU (unsigned x unsigned)
		p := uint64(src1) * uint64(src2)
		return uint32(p >> 32)
	}
	return 0
}

// Div evaluates DIV/DIVU/REM/REMU, applying the RISC-V-mandated results
// for division by zero and for signed overflow (INT_MIN / -1) instead of
// trapping.
func Div(u uop.Uop, src1, src2 uint32) uint32 {
	switch u.Func3 {
	case 0x4: // DIV
		if src2 == 0 {
			return 0xffffffff
		}
		a, b := int32(src1), int32(src2)
		if a == -2147483648 && b == -1 {
			return uint32(a)
		}
		return uint32(a / b)
	case 0x5: // DIVU
		if src2 == 0 {
			return 0xffffffff
		}
		return src1 / src2
	case 0x6: // REM
		if src2 == 0 {
			return src1
		}
		a, b := int32(src1), int32(src2)
		if a == -2147483648 && b == -1 {
			return 0
		}
		return uint32(a % b)
	case 0x7: // REMU
		if src2 == 0 {
			return src1
		}
		return src1 % src2
	}
	return 0
}

// Latency in cycles for each pipelined/iterative Kind this core models.
const (
	LatencyALU    = 1
	LatencyMul    = 3
	LatencyDivMin = 8
)

// PipelineSlot is one in-flight result inside a fixed-latency pipelined
// unit (e.g. the multiplier).
type PipelineSlot struct {
	Valid       bool
	RemainingCycles int
	Uop         uop.Uop
	Result      uint32
}

// Pipeline models a fixed-latency, fully-pipelined functional unit: a new
// operation can be accepted every cycle, and results emerge in FIFO
// completion order after a constant number of cycles.
type Pipeline struct {
	latency int
	slots   []PipelineSlot
}

// NewPipeline creates a pipelined unit with the given fixed latency.
func NewPipeline(latency int) *Pipeline {
	return &Pipeline{latency: latency}
}

// Accept enqueues a new operation whose result is already computed
// (combinational compute happens at accept time; latency only delays
// when it becomes visible, matching a real pipelined ALU/multiplier).
func (p *Pipeline) Accept(u uop.Uop, result uint32) {
	p.slots = append(p.slots, PipelineSlot{Valid: true, RemainingCycles: p.latency, Uop: u, Result: result})
}

// Tick advances every in-flight slot by one cycle and returns any that
// complete this cycle.
func (p *Pipeline) Tick() []PipelineSlot {
	var done []PipelineSlot
	kept := p.slots[:0]
	for _, s := range p.slots {
		if !s.Valid {
			continue
		}
		s.RemainingCycles--
		if s.RemainingCycles <= 0 {
			done = append(done, s)
			continue
		}
		kept = append(kept, s)
	}
	p.slots = kept
	return done
}

// Flush drops every in-flight slot whose branch mask intersects
// flushMask.
func (p *Pipeline) Flush(flushMask uop.BrMask) {
	kept := p.slots[:0]
	for _, s := range p.slots {
		if !s.Uop.BrMask.Intersects(flushMask) {
			kept = append(kept, s)
		}
	}
	p.slots = kept
}

// FlushAll drops every in-flight slot (ROB flush).
func (p *Pipeline) FlushAll() { p.slots = nil }

// IterativeUnit models a non-pipelined functional unit (the divider):
// only one operation is in flight at a time, and the unit is busy for
// its whole latency.
type IterativeUnit struct {
	busy            bool
	remainingCycles int
	u               uop.Uop
	result          uint32
}

// NewIterativeUnit creates an idle iterative unit.
func NewIterativeUnit() *IterativeUnit { return &IterativeUnit{} }

// Busy reports whether the unit is still working on a prior operation.
func (d *IterativeUnit) Busy() bool { return d.busy }

// Start begins a new operation with the given latency and precomputed
// result (the divider's actual arithmetic is combinational in this
// model; only its occupancy is iterative, matching a non-pipelined
// timing model without simulating a restoring-division datapath cycle
// by cycle).
func (d *IterativeUnit) Start(u uop.Uop, result uint32, latency int) {
	d.busy = true
	d.remainingCycles = latency
	d.u = u
	d.result = result
}

// Tick advances the in-flight operation by one cycle; ok is true once it
// completes this cycle.
func (d *IterativeUnit) Tick() (slot PipelineSlot, ok bool) {
	if !d.busy {
		return PipelineSlot{}, false
	}
	d.remainingCycles--
	if d.remainingCycles > 0 {
		return PipelineSlot{}, false
	}
	d.busy = false
	return PipelineSlot{Valid: true, Uop: d.u, Result: d.result}, true
}

// Flush drops the in-flight operation if it belongs to a squashed path.
func (d *IterativeUnit) Flush(flushMask uop.BrMask) {
	if d.busy && d.u.BrMask.Intersects(flushMask) {
		d.busy = false
	}
}

// FlushAll aborts any in-flight operation (ROB flush).
func (d *IterativeUnit) FlushAll() { d.busy = false }
