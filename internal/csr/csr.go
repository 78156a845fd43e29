// Package csr models the control-and-status register file: privilege
// mode, the CSRs test programs observe (mstatus, satp, mepc/sepc,
// mcause/scause, mtval/stval, mtvec/stvec, mip/mie), and trap delivery.
// CSR side-effects (trap vector, privilege switch, SATP update) are
// delayed to commit, per §4.6.
package csr

// Privilege levels.
type Privilege uint8

const (
	User Privilege = iota
	Supervisor
	Machine = 3
)

// Indices for the enumerated legal CSR set (§4.1: "the legal CSR set is
// enumerated"). Values match the RISC-V privileged spec encoding.
const (
	Ustatus  = 0x000
	Sstatus  = 0x100
	Satp     = 0x180
	Mstatus  = 0x300
	Misa     = 0x301
	Medeleg  = 0x302
	Mideleg  = 0x303
	Mie      = 0x304
	Mtvec    = 0x305
	Mscratch = 0x340
	Mepc     = 0x341
	Mcause   = 0x342
	Mtval    = 0x343
	Mip      = 0x344
	Sscratch = 0x140
	Sepc     = 0x141
	Scause   = 0x142
	Stval    = 0x143
	Stvec    = 0x105
	Sip      = 0x144
	Cycle    = 0xc00
	Instret  = 0xc02
)

// Cause codes (subset used by this core).
const (
	CauseInstAddrMisaligned = 0
	CauseIllegalInst        = 2
	CauseBreakpoint         = 3
	CauseLoadAddrMisaligned = 4
	CauseStoreAddrMisaligned = 6
	CauseECallU             = 8
	CauseECallS              = 9
	CauseECallM              = 11
	CauseInstPageFault      = 12
	CauseLoadPageFault      = 13
	CauseStorePageFault     = 15
)

// MstatusBits are the mstatus fields this core reads for address
// translation and permission checking.
type MstatusBits struct {
	MIE  bool
	MPIE bool
	SIE  bool
	SPIE bool
	MPP  Privilege
	SPP  Privilege
	MPRV bool
	SUM  bool
	MXR  bool
}

// File holds every CSR this core exposes plus the running privilege
// mode. It is a plain register bank: reads/writes are single-cycle, and
// every trap-relevant side effect is applied by the ROB at commit, never
// speculatively.
type File struct {
	Priv Privilege

	Mstatus  MstatusBits
	Satp     uint32
	Mtvec    uint32
	Stvec    uint32
	Mepc     uint32
	Sepc     uint32
	Mcause   uint32
	Scause   uint32
	Mtval    uint32
	Stval    uint32
	Mscratch uint32
	Sscratch uint32
	Mie      uint32
	Mip      uint32
	Medeleg  uint32

	Cycle   uint64
	Instret uint64
}

// New creates a CSR file starting in Machine mode, the architectural
// reset state.
func New() *File {
	return &File{Priv: Machine}
}

// Read returns the value of a CSR. Unimplemented/illegal indices read as
// zero; the decode stage is responsible for flagging illegal CSR
// instructions via the enumerated legal set, not this accessor.
func (f *File) Read(idx uint16) uint32 {
	switch idx {
	case Satp:
		return f.Satp
	case Mstatus, Sstatus:
		return f.packMstatus(idx == Sstatus)
	case Mtvec:
		return f.Mtvec
	case Stvec:
		return f.Stvec
	case Mepc:
		return f.Mepc
	case Sepc:
		return f.Sepc
	case Mcause:
		return f.Mcause
	case Scause:
		return f.Scause
	case Mtval:
		return f.Mtval
	case Stval:
		return f.Stval
	case Mscratch:
		return f.Mscratch
	case Sscratch:
		return f.Sscratch
	case Mie:
		return f.Mie
	case Mip, Sip:
		return f.Mip
	case Medeleg:
		return f.Medeleg
	case Cycle:
		return uint32(f.Cycle)
	case Instret:
		return uint32(f.Instret)
	default:
		return 0
	}
}

// Write applies a CSR write. Writes to mstatus/sstatus, satp, and the
// trap CSRs take effect immediately in this model because they are only
// ever invoked by the CSR functional unit's commit-time side-effect
// application (the ROB holds the write until commit; see rob.Commit).
func (f *File) Write(idx uint16, v uint32) {
	switch idx {
	case Satp:
		f.Satp = v
	case Mstatus:
		f.unpackMstatus(v, false)
	case Sstatus:
		f.unpackMstatus(v, true)
	case Mtvec:
		f.Mtvec = v
	case Stvec:
		f.Stvec = v
	case Mepc:
		f.Mepc = v &^ 0x3
	case Sepc:
		f.Sepc = v &^ 0x3
	case Mcause:
		f.Mcause = v
	case Scause:
		f.Scause = v
	case Mtval:
		f.Mtval = v
	case Stval:
		f.Stval = v
	case Mscratch:
		f.Mscratch = v
	case Sscratch:
		f.Sscratch = v
	case Mie:
		f.Mie = v
	case Mip, Sip:
		f.Mip = v
	case Medeleg:
		f.Medeleg = v
	}
}

func (f *File) packMstatus(supervisorView bool) uint32 {
	var v uint32
	if f.Mstatus.SIE {
		v |= 1 << 1
	}
	if f.Mstatus.MIE {
		v |= 1 << 3
	}
	if f.Mstatus.SPIE {
		v |= 1 << 5
	}
	if f.Mstatus.MPIE {
		v |= 1 << 7
	}
	if f.Mstatus.SPP == Supervisor {
		v |= 1 << 8
	}
	v |= uint32(f.Mstatus.MPP&0x3) << 11
	if f.Mstatus.SUM {
		v |= 1 << 18
	}
	if f.Mstatus.MXR {
		v |= 1 << 19
	}
	if f.Mstatus.MPRV {
		v |= 1 << 17
	}
	return v
}

func (f *File) unpackMstatus(v uint32, supervisorView bool) {
	f.Mstatus.SIE = v&(1<<1) != 0
	f.Mstatus.SPIE = v&(1<<5) != 0
	if v&(1<<8) != 0 {
		f.Mstatus.SPP = Supervisor
	} else {
		f.Mstatus.SPP = User
	}
	f.Mstatus.SUM = v&(1<<18) != 0
	f.Mstatus.MXR = v&(1<<19) != 0
	if !supervisorView {
		f.Mstatus.MIE = v&(1<<3) != 0
		f.Mstatus.MPIE = v&(1<<7) != 0
		f.Mstatus.MPP = Privilege((v >> 11) & 0x3)
		f.Mstatus.MPRV = v&(1<<17) != 0
	}
}

// SatpMode reports whether Sv32 translation is enabled (bit 31 of satp).
func (f *File) SatpMode() bool { return f.Satp&(1<<31) != 0 }

// SatpASID returns the 9-bit ASID field of satp.
func (f *File) SatpASID() uint16 { return uint16((f.Satp >> 22) & 0x1ff) }

// SatpRootPPN returns the 22-bit root page-table PPN field of satp.
func (f *File) SatpRootPPN() uint32 { return f.Satp & 0x3fffff }

// EffectivePrivilege returns the privilege that governs a memory access
// of the given kind (0=fetch,1=load,2=store), applying the MPRV override
// from §4.11: "when mstatus.MPRV=1 and access is load/store (not fetch),
// effective privilege becomes MPP."
func (f *File) EffectivePrivilege(accessType int) Privilege {
	if accessType != 0 && f.Mstatus.MPRV {
		return f.Mstatus.MPP
	}
	return f.Priv
}

// TrapCause describes a trap to deliver.
type TrapCause struct {
	Code        uint32
	Interrupt   bool
	Tval        uint32
	IsECall     bool
	IsEBreak    bool
	IsMret      bool
	IsSret      bool
	IsFenceI    bool
	FaultPC     uint32
}

// DeliverTrap applies a synchronous exception at commit: it moves the
// current privilege to the handler privilege (machine, since this core
// does not implement delegation beyond recording medeleg), sets the
// cause/tval/epc CSRs, and returns the redirect PC (trap vector).
func (f *File) DeliverTrap(t TrapCause) uint32 {
	f.Mstatus.MPIE = f.Mstatus.MIE
	f.Mstatus.MIE = false
	f.Mstatus.MPP = f.Priv
	f.Priv = Machine
	f.Mepc = t.FaultPC
	cause := t.Code
	if t.Interrupt {
		cause |= 1 << 31
	}
	f.Mcause = cause
	f.Mtval = t.Tval
	return f.Mtvec &^ 0x3
}

// Mret applies the MRET side effect and returns the redirect PC (EPC).
func (f *File) Mret() uint32 {
	f.Priv = f.Mstatus.MPP
	f.Mstatus.MIE = f.Mstatus.MPIE
	f.Mstatus.MPIE = true
	f.Mstatus.MPP = User
	return f.Mepc
}

// Sret applies the SRET side effect and returns the redirect PC (EPC).
func (f *File) Sret() uint32 {
	f.Priv = f.Mstatus.SPP
	f.Mstatus.SIE = f.Mstatus.SPIE
	f.Mstatus.SPIE = true
	f.Mstatus.SPP = User
	return f.Sepc
}

// RaiseExternalInterruptPending sets the machine/supervisor external
// interrupt pending bits, per the peripheral sink's "writing byte 1 with
// value 7 raises external-interrupt pending bits in mip/sip at commit."
func (f *File) RaiseExternalInterruptPending() {
	f.Mip |= 1 << 11 // MEIP
	f.Mip |= 1 << 9  // SEIP
}

// ClaimExternalInterrupt clears the pending bits (memsubsys.PLICClaimAddr
// low byte == 0xa semantics).
func (f *File) ClaimExternalInterrupt() {
	f.Mip &^= 1 << 11
	f.Mip &^= 1 << 9
}

// PendingInterrupt reports an enabled, pending interrupt's cause, if any.
func (f *File) PendingInterrupt() (uint32, bool) {
	if !f.Mstatus.MIE {
		return 0, false
	}
	if f.Mip&f.Mie&(1<<11) != 0 {
		return 11, true
	}
	return 0, false
}
