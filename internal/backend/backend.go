// Package backend wires every per-cycle subsystem (fetch, decode,
// rename, dispatch, issue, execute, writeback, the LSU, the MMU, the
// memory subsystem, and commit) into the fixed two-phase evaluation
// order the rest of the core assumes: comb() computes this cycle's
// combinational decisions from the state latched at the end of the
// previous cycle, and seq() latches the results those decisions produce
// so every subsystem observes a consistent, one-cycle-old view of
// everyone else — a comb()/seq() pipeline stage split instead of
// letting state bleed across stages within one cycle.
package backend

import (
	"github.com/sarchlab/rv32ooo/internal/csr"
	"github.com/sarchlab/rv32ooo/internal/decode"
	"github.com/sarchlab/rv32ooo/internal/difftest"
	"github.com/sarchlab/rv32ooo/internal/dispatch"
	"github.com/sarchlab/rv32ooo/internal/exu"
	"github.com/sarchlab/rv32ooo/internal/frontend"
	"github.com/sarchlab/rv32ooo/internal/ftq"
	"github.com/sarchlab/rv32ooo/internal/issue"
	"github.com/sarchlab/rv32ooo/internal/lsu"
	"github.com/sarchlab/rv32ooo/internal/memsubsys"
	"github.com/sarchlab/rv32ooo/internal/mmu"
	"github.com/sarchlab/rv32ooo/internal/prf"
	"github.com/sarchlab/rv32ooo/internal/rename"
	"github.com/sarchlab/rv32ooo/internal/rob"
	"github.com/sarchlab/rv32ooo/internal/simctx"
	"github.com/sarchlab/rv32ooo/internal/simlog"
	"github.com/sarchlab/rv32ooo/internal/uop"
)

// Config sizes every structure the backend allocates.
type Config struct {
	IbufSize   int
	FtqSize    int
	MaxBrTags  uint8
	NumPhys    int
	ROBSize    int
	ALUQueue   int
	MemQueue   int
	BrQueue    int
	ALUPorts   int
	MemPorts   int
	BrPorts    int
	STQSize    int
	LDQSize    int
	ITLBSize   int
	DTLBSize   int
	CacheCfg   memsubsys.Config
}

// DefaultConfig returns a reasonably sized superscalar configuration.
func DefaultConfig() Config {
	return Config{
		IbufSize: 32, FtqSize: 16, MaxBrTags: 16, NumPhys: 96, ROBSize: 96,
		ALUQueue: 16, MemQueue: 16, BrQueue: 8,
		ALUPorts: 2, MemPorts: 1, BrPorts: 1,
		STQSize: 16, LDQSize: 16, ITLBSize: 16, DTLBSize: 16,
		CacheCfg: memsubsys.DefaultConfig(),
	}
}

// Backend owns every pipeline subsystem and the glue state a single
// in-order frontend/out-of-order backend core needs between them.
type Backend struct {
	cfg Config

	Ctx  *simctx.Context
	CSRs *csr.File
	Log  *simlog.Logger

	Predictor frontend.Predictor
	FTQ       *ftq.FTQ
	IDU       *decode.Idu
	Rename    *rename.Map
	PRF       *prf.File
	ROB       *rob.ROB
	Dispatcher *dispatch.Dispatcher
	Queues    dispatch.Router

	ITLB *mmu.TLB
	DTLB *mmu.TLB

	STQ *lsu.STQ
	LDQ *lsu.LDQ
	Helpers lsu.HelperQueues

	Arbiter *memsubsys.Arbiter
	Router  *memsubsys.Router
	Cache   *memsubsys.Cache
	MMIO    *memsubsys.Peripheral

	memLoads memLoadUnit

	mulPipe *exu.Pipeline
	divUnit *exu.IterativeUnit

	PC uint32

	// curMask is the branch mask every newly decoded uop inherits: the
	// union of every branch tag currently speculated along the path being
	// fetched.
	curMask uop.BrMask

	Trace *difftest.Trace

	// cycle is exposed to simlog for cycle-prefixed diagnostics.
	cycle uint64

	halted bool
	exitCode int64
}

// New creates a Backend with architectural state reset to the RISC-V
// entry conditions: machine mode, PC at resetPC, all GPRs zero.
func New(cfg Config, ctx *simctx.Context, predictor frontend.Predictor, resetPC uint32) *Backend {
	b := &Backend{
		cfg:       cfg,
		Ctx:       ctx,
		CSRs:      csr.New(),
		Predictor: predictor,
		FTQ:       ftq.New(cfg.FtqSize),
		IDU:       decode.New(cfg.IbufSize, cfg.MaxBrTags),
		Rename:    rename.New(cfg.NumPhys),
		PRF:       prf.New(cfg.NumPhys),
		ROB:       rob.New(cfg.ROBSize),
		ITLB:      mmu.NewTLB(cfg.ITLBSize),
		DTLB:      mmu.NewTLB(cfg.DTLBSize),
		STQ:       lsu.NewSTQ(cfg.STQSize),
		LDQ:       lsu.NewLDQ(cfg.LDQSize),
		Arbiter:   &memsubsys.Arbiter{},
		Router:    &memsubsys.Router{},
		Cache:     memsubsys.New(cfg.CacheCfg),
		MMIO:      &memsubsys.Peripheral{},
		mulPipe:   exu.NewPipeline(exu.LatencyMul),
		divUnit:   exu.NewIterativeUnit(),
		PC:        resetPC,
		Trace:     &difftest.Trace{},
	}
	b.Log = simlog.Default(func() uint64 { return b.cycle })
	b.Queues = dispatch.Router{
		ALU:    issue.NewQueue(cfg.ALUQueue, cfg.ALUPorts),
		Mem:    issue.NewQueue(cfg.MemQueue, cfg.MemPorts),
		Branch: issue.NewQueue(cfg.BrQueue, cfg.BrPorts),
	}
	b.Dispatcher = &dispatch.Dispatcher{ROB: b.ROB, Router: &b.Queues, STQ: b.STQ, LDQ: b.LDQ}
	for p := uint8(0); p < rename.NumArchRegs; p++ {
		b.PRF.Write(p, 0)
	}
	return b
}

// Cycle returns the number of Tick calls so far.
func (b *Backend) Cycle() uint64 { return b.cycle }

// Halted reports whether the run loop should stop advancing.
func (b *Backend) Halted() bool { return b.halted }

// ExitCode returns the guest's reported exit status once Halted is true.
func (b *Backend) ExitCode() int64 { return b.exitCode }

// pendingFlush is the per-cycle output of comb() that seq() applies: a
// redirect discovered by commit or by branch resolution, which must wipe
// every younger in-flight uop before the next cycle's fetch/decode run.
type pendingFlush struct {
	active   bool
	full     bool // ROB-level flush: exception, fence.i, or a flush with no surviving branch tag
	tag      uop.BrTag
	mask     uop.BrMask
	redirect uint32
}

// Tick advances the core by one cycle: comb() derives this cycle's
// decisions from state latched at the end of the previous cycle, then
// seq() commits those decisions into the registers every subsystem reads
// next cycle.
func (b *Backend) Tick() {
	if b.halted {
		return
	}
	selALU, selMem, selBr := b.combIssue()
	wb := b.combExecute(selALU, selMem, selBr)
	flush := b.combCommit()
	newUops := b.combFrontend(flush)

	b.seq(wb, flush, newUops)
	b.cycle++
}

// combIssue selects up to each port-count's worth of ready uops from
// every issue queue. Selection itself removes entries from the queue
// (issue queues are their own "shadow tail" — there is nothing left to
// double-buffer), so this step is effectively shared between comb and
// seq; it is still ordered before execute so this cycle's picks are the
// ones executed this cycle, matching an in-order-issue-per-queue model.
func (b *Backend) combIssue() (alu, mem, br []uop.Uop) {
	b.Queues.ALU.Tick(b.PRF)
	b.Queues.Mem.Tick(b.PRF)
	b.Queues.Branch.Tick(b.PRF)
	return b.Queues.ALU.Select(), b.Queues.Mem.Select(), b.Queues.Branch.Select()
}

type wbResult struct {
	u          uop.Uop
	result     uint32
	actualTaken bool
	mispredict bool
	redirect   uint32
	isException bool
	exEntry    rob.Entry
	// deferred marks a mem uop whose cache access is still in flight in
	// b.memLoads: seq() must not complete its ROB entry this cycle, since
	// the result carried here isn't the real one yet.
	deferred bool
}

// combExecute evaluates every selected uop's functional unit, threading
// multi-cycle results through the multiplier pipeline, the iterative
// divider, and the cache-gated memory-load unit, and returns this
// cycle's writeback-ready results (immediate ALU/AGU/branch results plus
// anything completing out of one of those multi-cycle units this
// cycle).
func (b *Backend) combExecute(alu, mem, br []uop.Uop) []wbResult {
	var out []wbResult

	for _, u := range alu {
		src1, src2 := b.readSrc(u)
		switch u.Kind {
		case uop.MUL:
			b.mulPipe.Accept(u, exu.Mul(u, src1, src2))
			if u.DestEn {
				b.wakeDependents(u.PDest, exu.LatencyMul)
			}
		case uop.DIV:
			if !b.divUnit.Busy() {
				b.divUnit.Start(u, exu.Div(u, src1, src2), exu.LatencyDivMin)
				if u.DestEn {
					b.wakeDependents(u.PDest, exu.LatencyDivMin)
				}
			}
		case uop.CSR:
			out = append(out, b.execCSR(u, src1))
		case uop.ECALL, uop.EBREAK, uop.MRET, uop.SRET, uop.FENCE_I, uop.SFENCE_VMA:
			out = append(out, b.execControl(u))
		default:
			out = append(out, wbResult{u: u, result: exu.ALU(u, src1, src2)})
		}
	}
	for _, s := range b.mulPipe.Tick() {
		out = append(out, wbResult{u: s.Uop, result: s.Result})
	}
	if slot, ok := b.divUnit.Tick(); ok {
		out = append(out, wbResult{u: slot.Uop, result: slot.Result})
	}

	for _, u := range mem {
		out = append(out, b.execMem(u))
	}
	if p, ok := b.memLoads.tick(b); ok {
		size := memAccessSize(p.u.Func3)
		v := b.Ctx.Memory.Read32(p.addr &^ 0x3)
		v = extractLoadWord(v, p.addr, size)
		result := signExtendLoad(v, p.u.Func3)
		b.LDQ.Complete(p.u.LdqIdx, result, false)
		out = append(out, wbResult{u: p.u, result: result})
	}

	for _, u := range br {
		src1, src2 := b.readSrc(u)
		bres := exu.Branch(u, src1, src2)
		b.Predictor.Update(u.PC, bres.Taken, bres.Target)
		out = append(out, wbResult{u: u, result: u.PC + 4, actualTaken: bres.Taken,
			mispredict: bres.Mispredict, redirect: bres.Target})
	}

	return out
}

// wakeDependents arms the ISS-awake speculative wakeup on every issue
// queue for a producer whose latency is known up front (the multiplier
// and divider), so dependents stop waiting as soon as the producer's
// countdown reaches zero instead of polling the PRF every cycle.
func (b *Backend) wakeDependents(preg uint8, latency int) {
	b.Queues.ALU.WakeSpeculative(preg, latency)
	b.Queues.Mem.WakeSpeculative(preg, latency)
	b.Queues.Branch.WakeSpeculative(preg, latency)
}

// fetchMemReader adapts the Sv32 instruction-fetch translation path to
// frontend.Predictor's narrow MemReader interface, so the predictor
// stand-in never needs to know translation exists.
type fetchMemReader struct{ b *Backend }

func (f fetchMemReader) Read32(addr uint32) uint32 {
	pa, fault := f.b.translate(addr, mmu.AccessFetch, f.b.ITLB)
	if fault {
		return 0
	}
	return f.b.Ctx.Memory.Read32(pa)
}

// translate walks va through tlb when Sv32 is enabled (satp.MODE=1),
// returning the physical address and whether a page fault occurred.
// With translation disabled, va is already physical.
func (b *Backend) translate(va uint32, access mmu.AccessKind, tlb *mmu.TLB) (uint32, bool) {
	if !b.CSRs.SatpMode() {
		return va, false
	}
	accessType := 0
	if access != mmu.AccessFetch {
		accessType = 1
	}
	priv := b.CSRs.EffectivePrivilege(accessType)
	mem := ptwMemReader{b: b, source: ptwSource(b, tlb)}
	res := mmu.Translate(tlb, mem, va, b.CSRs.SatpRootPPN(), b.CSRs.SatpASID(),
		priv, access, b.CSRs.Mstatus.SUM, b.CSRs.Mstatus.MXR)
	if res.Fault != mmu.FaultNone {
		return 0, true
	}
	return res.Paddr, false
}

// archReg reads an architectural register's just-committed value through
// the committed rename map — used by commit-time handlers that need a
// retired register value rather than a uop's renamed source operand.
func (b *Backend) archReg(arch uint8) uint32 {
	if arch == 0 {
		return 0
	}
	return b.PRF.Read(b.Rename.CommittedPReg(arch))
}

func (b *Backend) readSrc(u uop.Uop) (uint32, uint32) {
	var s1, s2 uint32
	if u.Src1IsPC {
		s1 = u.PC
	} else if u.Src1En {
		s1 = b.PRF.Read(u.PSrc1)
	}
	if u.Src2En && !u.Src2IsImm {
		s2 = b.PRF.Read(u.PSrc2)
	}
	return s1, s2
}

// execCSR performs a CSR read-modify-write. Side effects on the CSR file
// itself are applied here (CSR reads/writes are not speculative past
// decode in this core: a CSR uop's own destination register is still
// written through the normal ROB/PRF writeback path, but the CSR file
// mutation happens at execute since nothing younger can be made to
// observe a stale CSR value once this uop has issued in program order
// relative to other CSR ops — the ROB still holds it until commit before
// any fault it could have raised is considered architectural).
func (b *Backend) execCSR(u uop.Uop, src1 uint32) wbResult {
	old := b.CSRs.Read(u.CSRIdx)
	val := src1
	if u.Func3&0x4 != 0 {
		val = uint32(u.Src1) // immediate forms: the rs1 field is the zero-extended uimm
	}
	var write uint32
	switch u.Func3 & 0x3 {
	case 0x1: // CSRRW / CSRRWI
		write = val
	case 0x2: // CSRRS / CSRRSI
		write = old | val
	case 0x3: // CSRRC / CSRRCI
		write = old &^ val
	}
	if u.Func3&0x3 == 0x1 || u.Src1 != 0 {
		b.CSRs.Write(u.CSRIdx, write)
	}
	return wbResult{u: u, result: old}
}

// execControl completes a privileged/fence control uop (ECALL, EBREAK,
// MRET, SRET, FENCE.I, SFENCE.VMA) as a commit-time exception so
// combCommit's switch applies its architectural effect (trap delivery,
// privilege-mode return, or pipeline flush) once it reaches the head of
// the ROB — these never produce an ordinary register result.
func (b *Backend) execControl(u uop.Uop) wbResult {
	e := rob.Entry{
		Valid: true, Completed: true, PC: u.PC, InstIdx: u.InstIdx,
		FtqIdx: u.FtqIdx, FtqOffset: u.FtqOffset, FtqIsLast: u.FtqIsLast,
	}
	switch u.Kind {
	case uop.ECALL:
		e.IsECall = true
	case uop.EBREAK:
		e.IsEBreak = true
	case uop.MRET:
		e.IsMret = true
	case uop.SRET:
		e.IsSret = true
	case uop.FENCE_I:
		e.IsFenceI = true
	case uop.SFENCE_VMA:
		e.IsSfenceVMA = true
	}
	return wbResult{u: u, isException: true, exEntry: e}
}

// execMem performs the address computation and translation, and for
// loads, forwarding or memory access; stores land their translated
// address/data into the STQ for deferred, commit-gated writes. A
// translation fault completes the uop as an exception instead of a
// normal result, deferring to commit whether it actually takes effect
// (a younger, since-squashed load's fault must never raise a trap).
func (b *Backend) execMem(u uop.Uop) wbResult {
	src1, src2 := b.readSrc(u)
	vaddr := exu.AGU(u, src1)
	size := memAccessSize(u.Func3)

	access := mmu.AccessLoad
	switch u.Kind {
	case uop.STORE:
		access = mmu.AccessStore
	case uop.AMO:
		access = mmu.AccessAMO
	}
	addr, fault := b.translate(vaddr, access, b.DTLB)
	if fault {
		kind := "load"
		if access == mmu.AccessStore || access == mmu.AccessAMO {
			kind = "store"
		}
		return wbResult{u: u, isException: true, exEntry: rob.Entry{
			Valid: true, Completed: true, PC: u.PC, InstIdx: u.InstIdx,
			FtqIdx: u.FtqIdx, FtqOffset: u.FtqOffset, FtqIsLast: u.FtqIsLast,
			Mtval:          vaddr,
			PageFaultLoad:  kind == "load",
			PageFaultStore: kind == "store",
		}}
	}
	isMMIO := memsubsys.IsMMIO(addr)

	switch u.Kind {
	case uop.STORE:
		b.STQ.SetAddr(u.StqIdx, addr, size, isMMIO)
		b.STQ.SetData(u.StqIdx, src2)
		return wbResult{u: u}
	case uop.AMO:
		b.STQ.SetAddr(u.StqIdx, addr, size, isMMIO)
		b.STQ.SetData(u.StqIdx, src2)
		fallthrough
	default: // LOAD
		b.LDQ.SetAddr(u.LdqIdx, addr, size, memLoadSigned(u.Func3), isMMIO)
		outcome, fwd := b.STQ.Forward(addr, size, u.Rob)
		switch outcome {
		case lsu.ForwardFull:
			b.LDQ.Complete(u.LdqIdx, signExtendLoad(fwd, u.Func3), false)
			return wbResult{u: u, result: signExtendLoad(fwd, u.Func3)}
		case lsu.ForwardPartial:
			b.Helpers.PushPendingSTAAddr(u.LdqIdx)
			return wbResult{u: u}
		}
		if isMMIO {
			v := b.MMIO.Read(addr)
			skip := addr == memsubsys.PLICClaimAddr
			b.LDQ.Complete(u.LdqIdx, v, skip)
			return wbResult{u: u, result: v}
		}
		// Peripherals aren't cached; everything else queues behind the
		// shared data cache and completes once memLoads.tick reports it
		// (see combExecute), with real hit/miss latency instead of a
		// same-cycle read.
		b.memLoads.push(pendingMemLoad{u: u, addr: addr})
		return wbResult{u: u, deferred: true}
	}
}

func memAccessSize(func3 uint8) uint8 {
	switch func3 & 0x3 {
	case 0:
		return 1
	case 1:
		return 2
	default:
		return 4
	}
}

func memLoadSigned(func3 uint8) bool { return func3&0x4 == 0 }

func extractLoadWord(word, addr uint32, size uint8) uint32 {
	if size == 4 {
		return word
	}
	shift := (addr & 0x3) * 8
	v := word >> shift
	if size == 1 {
		return v & 0xff
	}
	return v & 0xffff
}

func signExtendLoad(v uint32, func3 uint8) uint32 {
	switch func3 {
	case 0x0: // LB
		return uint32(int32(int8(v)))
	case 0x1: // LH
		return uint32(int32(int16(v)))
	default:
		return v
	}
}

// combCommit retires the ROB's completed prefix, applying architectural
// effects (register file commit via rename.Commit/PRF, CSR trap
// delivery, stores to memory, difftest trace emission) and producing a
// pendingFlush if a mispredict or exception terminated the commit group.
func (b *Backend) combCommit() pendingFlush {
	entries := b.ROB.Commit()
	var flush pendingFlush
	for _, e := range entries {
		b.Rename.Commit(&uop.Uop{DestEn: e.DestEn, Dest: e.Dest, PDest: e.PDest})
		if e.DestEn {
			b.Rename.MarkReady(e.PDest)
		}
		if e.IsBranch {
			b.IDU.FreeBranchTag(e.BrTag)
			b.Queues.ALU.ClearBranchTag(e.BrTag)
			b.Queues.Mem.ClearBranchTag(e.BrTag)
			b.Queues.Branch.ClearBranchTag(e.BrTag)
		}
		if idx, ok := b.STQ.Head(); ok && b.STQ.Entry(idx).Uop.InstIdx == e.InstIdx {
			b.STQ.Commit(idx)
		}

		rec := difftest.Record{InstIdx: e.InstIdx, PC: e.PC, PCNext: e.PC + 4, Skip: e.DifftestSkip}
		b.Trace.Append(rec)

		switch {
		case e.Mispredict:
			flush = pendingFlush{active: true, tag: e.BrTag, redirect: e.RedirectPC}
		case e.IllegalInst:
			redirect := b.CSRs.DeliverTrap(csr.TrapCause{Code: csr.CauseIllegalInst, FaultPC: e.PC, Tval: e.Mtval})
			flush = pendingFlush{active: true, full: true, redirect: redirect}
		case e.PageFaultInst:
			redirect := b.CSRs.DeliverTrap(csr.TrapCause{Code: csr.CauseInstPageFault, FaultPC: e.PC, Tval: e.Mtval})
			flush = pendingFlush{active: true, full: true, redirect: redirect}
		case e.PageFaultLoad:
			redirect := b.CSRs.DeliverTrap(csr.TrapCause{Code: csr.CauseLoadPageFault, FaultPC: e.PC, Tval: e.Mtval})
			flush = pendingFlush{active: true, full: true, redirect: redirect}
		case e.PageFaultStore:
			redirect := b.CSRs.DeliverTrap(csr.TrapCause{Code: csr.CauseStorePageFault, FaultPC: e.PC, Tval: e.Mtval})
			flush = pendingFlush{active: true, full: true, redirect: redirect}
		case e.IsECall:
			// a7 (x17) == 93 is the conventional bare-metal exit syscall
			// number (mirrored from the riscv-tests/Linux user ABI this
			// core's guest programs are built against); a0 (x10) carries
			// the exit status. Any other a7 value traps to the CSR file
			// like a normal environment call.
			if b.archReg(17) == 93 {
				b.halted = true
				b.exitCode = int64(int32(b.archReg(10)))
				flush = pendingFlush{active: true, full: true, redirect: e.PC}
				break
			}

			cause := uint32(csr.CauseECallM)
			redirect := b.CSRs.DeliverTrap(csr.TrapCause{Code: cause, FaultPC: e.PC, IsECall: true})
			flush = pendingFlush{active: true, full: true, redirect: redirect}
		case e.IsEBreak:
			redirect := b.CSRs.DeliverTrap(csr.TrapCause{Code: csr.CauseBreakpoint, FaultPC: e.PC, IsEBreak: true})
			flush = pendingFlush{active: true, full: true, redirect: redirect}
		case e.IsMret:
			flush = pendingFlush{active: true, full: true, redirect: b.CSRs.Mret()}
		case e.IsSret:
			flush = pendingFlush{active: true, full: true, redirect: b.CSRs.Sret()}
		case e.IsFenceI:
			flush = pendingFlush{active: true, full: true, redirect: e.PC + 4}
		case e.IsSfenceVMA:
			b.DTLB.Flush(nil, nil)
			b.ITLB.Flush(nil, nil)
			flush = pendingFlush{active: true, full: true, redirect: e.PC + 4}
		}
		if flush.active {
			break
		}
	}
	b.drainMemQueues()
	return flush
}

// drainMemQueues advances committed stores to the memory subsystem or the
// MMIO peripheral sink. Writes bypass the arbiter entirely (memsubsys.
// Arbiter only ever arbitrates reads — see its doc comment); load timing
// is handled separately by b.memLoads, which does contend for the shared
// Arbiter/Router/Cache.
func (b *Backend) drainMemQueues() {
	if idx, ok := b.STQ.Head(); ok {
		e := b.STQ.Entry(idx)
		if e.Committed && e.AddrValid && e.DataValid {
			if e.IsMMIO {
				b.MMIO.Write(e.Addr, e.Data)
			} else {
				b.Ctx.Memory.WriteMasked(e.Addr, e.Data, wstrbFor(e.Addr, e.Size))
			}
			b.STQ.Retire()
		}
	}
	b.MMIO.Tick(b.CSRs)
}

func wstrbFor(addr uint32, size uint8) uint8 {
	shift := addr & 0x3
	switch size {
	case 1:
		return 1 << shift
	case 2:
		return 0x3 << shift
	default:
		return 0xf
	}
}

// combFrontend fetches, decodes, and renames up to Width new uops per
// stage. It is a no-op (returns nil) while a flush is active this cycle,
// since the corrected PC is only known once seq() applies the flush.
func (b *Backend) combFrontend(flush pendingFlush) []uop.Uop {
	if flush.active {
		return nil
	}
	if !b.IDU.Full() {
		lanes := b.Predictor.Predict(b.PC, decode.Width, fetchMemReader{b})
		ftqIdx := b.FTQ.Alloc(ftq.Entry{StartPC: b.PC})
		b.IDU.Push(lanes, ftqIdx)
		if len(lanes) > 0 {
			last := lanes[len(lanes)-1]
			b.PC = last.PredictNextFetchAddress
		}
	}
	decoded := b.IDU.Decode(b.curMask)
	var renamed []uop.Uop
	for _, u := range decoded {
		if !b.Rename.Rename(&u) {
			break
		}
		if u.DestEn && u.Dest != 0 {
			b.PRF.Invalidate(u.PDest)
		}
		if u.IsBranch {
			b.Rename.Checkpoint(u.BrTag)
			b.curMask = u.BrMask.Set(u.BrTag)
		}
		renamed = append(renamed, u)
	}
	return renamed
}

// seq latches this cycle's writeback results into the PRF bypass and the
// ROB, applies a pending flush across every subsystem that holds
// speculative state, admits the newly renamed uops into the ROB/issue
// queues, and advances the PRF's bypass pipeline — the single point
// where every subsystem's visible state actually changes.
func (b *Backend) seq(wb []wbResult, flush pendingFlush, newUops []uop.Uop) {
	slots := make([]prf.BypassSlot, 0, len(wb))
	for _, r := range wb {
		if r.isException {
			b.ROB.CompleteException(r.u.Rob, r.exEntry)
			continue
		}
		if r.deferred {
			continue
		}
		if r.u.DestEn {
			slots = append(slots, prf.BypassSlot{PReg: r.u.PDest, Value: r.result, Valid: true})
		}
		b.ROB.Complete(r.u.Rob, r.result, r.actualTaken, r.mispredict, r.redirect)
	}
	b.PRF.SetExecBypass(slots)

	if flush.active {
		b.applyFlush(flush)
	} else if len(newUops) > 0 {
		if b.Dispatcher.CanAdmit(newUops) {
			b.Dispatcher.Dispatch(newUops, b.PRF)
		}
	}

	b.PRF.AdvanceCycle()

	if _, pending := b.CSRs.PendingInterrupt(); pending && !flush.active {
		b.Log.Tracef("external interrupt pending")
	}
}

// applyFlush discards every uop younger than the recovery point: a
// branch-mask intersection squash for a single mispredicted branch, or a
// full pipeline restart for an exception/fence.i/privileged transition.
func (b *Backend) applyFlush(flush pendingFlush) {
	if flush.full {
		b.Queues.ALU.FlushAll()
		b.Queues.Mem.FlushAll()
		b.Queues.Branch.FlushAll()
		b.mulPipe.FlushAll()
		b.divUnit.FlushAll()
		b.IDU.Flush()
		b.Rename.FlushToCommitted()
		b.ROB.Flush()
		b.FTQ.Flush()
		b.memLoads.flushAll(b.Router)
		b.curMask = 0
	} else {
		mask := uop.BrMask(0).Set(flush.tag)
		b.Queues.ALU.Flush(mask)
		b.Queues.Mem.Flush(mask)
		b.Queues.Branch.Flush(mask)
		b.mulPipe.Flush(mask)
		b.divUnit.Flush(mask)
		b.memLoads.flush(b.Router, mask)
		b.curMask = b.IDU.ResolveMispredict(flush.tag)
		b.Rename.RestoreCheckpoint(flush.tag)
	}
	b.PC = flush.redirect
}
