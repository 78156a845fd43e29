package insts

// Op identifies the decoded operation.
type Op uint16

const (
	OpUnknown Op = iota
	// Integer register-register and register-immediate.
	OpADD
	OpSUB
	OpSLL
	OpSLT
	OpSLTU
	OpXOR
	OpSRL
	OpSRA
	OpOR
	OpAND
	// M extension.
	OpMUL
	OpMULH
	OpMULHSU
	OpMULHU
	OpDIV
	OpDIVU
	OpREM
	OpREMU
	// Upper-immediate / PC-relative.
	OpLUI
	OpAUIPC
	// Control flow.
	OpJAL
	OpJALR
	OpBEQ
	OpBNE
	OpBLT
	OpBGE
	OpBLTU
	OpBGEU
	// Loads / stores.
	OpLB
	OpLH
	OpLW
	OpLBU
	OpLHU
	OpSB
	OpSH
	OpSW
	// Atomics (subset: LR/SC, special-cased per the decode contract).
	OpLR
	OpSC
	OpAMOSWAP
	OpAMOADD
	// System / privileged / Zicsr / Zifencei.
	OpFENCE
	OpFENCEI
	OpECALL
	OpEBREAK
	OpCSRRW
	OpCSRRS
	OpCSRRC
	OpCSRRWI
	OpCSRRSI
	OpCSRRCI
	OpMRET
	OpSRET
	OpWFI
	OpSFENCEVMA
)

// Format is the RV32 encoding format.
type Format uint8

const (
	FormatUnknown Format = iota
	FormatR
	FormatI
	FormatS
	FormatB
	FormatU
	FormatJ
)

// Instruction is the decoded representation of one 32-bit instruction word.
type Instruction struct {
	Op     Op
	Format Format

	Rd     uint8
	Rs1    uint8
	Rs2    uint8
	Func3  uint8
	Func7  uint8
	CSRIdx uint16
	Imm    int32

	Illegal  bool
	RegWrite bool
	MemRead  bool
	MemWrite bool
	IsBranch bool
	IsJump   bool
	IsSystem bool

	// UopCount is the hardware micro-op count for this architectural
	// instruction. Every instruction this core decodes maps to exactly
	// one uop (no macro-op fusion, no microcoded sequences), so this is
	// always 1; it exists so callers never hardcode that assumption.
	UopCount uint8
}

// Decoder decodes RV32IM machine code into instructions.
type Decoder struct{}

// NewDecoder creates a new RV32IM instruction decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode dispatches on the primary opcode to compute type, source/dest
// enables, and immediate (I/S/B/U/J encodings). It does not compute the
// src1_is_pc/src2_is_imm operand flags; package decode derives those from
// Op and Format. Illegal encodings return Illegal=true rather than
// an error: the caller (IDU) turns that into a NOP uop with IllegalInst
// set, deferring the exception to commit.
func (d *Decoder) Decode(word uint32) *Instruction {
	switch opcode(word) {
	case 0x33:
		return decodeR(word)
	case 0x13:
		return decodeIArith(word)
	case 0x03:
		return decodeLoad(word)
	case 0x23:
		return decodeStore(word)
	case 0x63:
		return decodeBranch(word)
	case 0x6f:
		return &Instruction{Op: OpJAL, Format: FormatJ, Rd: rd(word), Imm: immJ(word),
			RegWrite: true, IsJump: true, UopCount: 1}
	case 0x67:
		if func3(word) != 0 {
			return illegal()
		}
		return &Instruction{Op: OpJALR, Format: FormatI, Rd: rd(word), Rs1: rs1(word),
			Imm: immI(word), RegWrite: true, IsJump: true, UopCount: 1}
	case 0x37:
		return &Instruction{Op: OpLUI, Format: FormatU, Rd: rd(word), Imm: immU(word),
			RegWrite: true, UopCount: 1}
	case 0x17:
		return &Instruction{Op: OpAUIPC, Format: FormatU, Rd: rd(word), Imm: immU(word),
			RegWrite: true, UopCount: 1}
	case 0x0f:
		if func3(word) == 1 {
			return &Instruction{Op: OpFENCEI, Format: FormatI, IsSystem: true, UopCount: 1}
		}
		return &Instruction{Op: OpFENCE, Format: FormatI, IsSystem: true, UopCount: 1}
	case 0x73:
		return decodeSystem(word)
	case 0x2f:
		return decodeAMO(word)
	default:
		return illegal()
	}
}

func illegal() *Instruction {
	return &Instruction{Op: OpUnknown, Format: FormatUnknown, Illegal: true, UopCount: 1}
}

func opcode(word uint32) uint32 { return word & 0x7f }
func rd(word uint32) uint8      { return uint8((word >> 7) & 0x1f) }
func rs1(word uint32) uint8     { return uint8((word >> 15) & 0x1f) }
func rs2(word uint32) uint8     { return uint8((word >> 20) & 0x1f) }
func func3(word uint32) uint8   { return uint8((word >> 12) & 0x7) }
func func7(word uint32) uint8   { return uint8((word >> 25) & 0x7f) }

func immI(word uint32) int32 { return int32(word) >> 20 }

func immS(word uint32) int32 {
	v := ((word >> 25) << 5) | ((word >> 7) & 0x1f)
	return signExtend(v, 12)
}

func immB(word uint32) int32 {
	v := ((word >> 31) << 12) |
		(((word >> 7) & 0x1) << 11) |
		(((word >> 25) & 0x3f) << 5) |
		(((word >> 8) & 0xf) << 1)
	return signExtend(v, 13)
}

func immU(word uint32) int32 { return int32(word &^ 0xfff) }

func immJ(word uint32) int32 {
	v := ((word >> 31) << 20) |
		(((word >> 12) & 0xff) << 12) |
		(((word >> 20) & 0x1) << 11) |
		(((word >> 21) & 0x3ff) << 1)
	return signExtend(v, 21)
}

func signExtend(v uint32, bits uint) int32 {
	shift := 32 - bits
	return int32(v<<shift) >> shift
}

func decodeR(word uint32) *Instruction {
	f3, f7 := func3(word), func7(word)
	inst := &Instruction{Format: FormatR, Rd: rd(word), Rs1: rs1(word), Rs2: rs2(word),
		Func3: f3, Func7: f7, RegWrite: true, UopCount: 1}
	if f7 == 0x01 {
		switch f3 {
		case 0x0:
			inst.Op = OpMUL
		case 0x1:
			inst.Op = OpMULH
		case 0x2:
			inst.Op = OpMULHSU
		case 0x3:
			inst.Op = OpMULHU
		case 0x4:
			inst.Op = OpDIV
		case 0x5:
			inst.Op = OpDIVU
		case 0x6:
			inst.Op = OpREM
		case 0x7:
			inst.Op = OpREMU
		default:
			return illegal()
		}
		return inst
	}
	switch f3 {
	case 0x0:
		switch f7 {
		case 0x20:
			inst.Op = OpSUB
		case 0x00:
			inst.Op = OpADD
		default:
			return illegal()
		}
	case 0x1:
		inst.Op = OpSLL
	case 0x2:
		inst.Op = OpSLT
	case 0x3:
		inst.Op = OpSLTU
	case 0x4:
		inst.Op = OpXOR
	case 0x5:
		switch f7 {
		case 0x20:
			inst.Op = OpSRA
		case 0x00:
			inst.Op = OpSRL
		default:
			return illegal()
		}
	case 0x6:
		inst.Op = OpOR
	case 0x7:
		inst.Op = OpAND
	}
	return inst
}

func decodeIArith(word uint32) *Instruction {
	f3 := func3(word)
	inst := &Instruction{Format: FormatI, Rd: rd(word), Rs1: rs1(word), Func3: f3,
		Imm: immI(word), RegWrite: true, UopCount: 1}
	switch f3 {
	case 0x0:
		inst.Op = OpADD // ADDI
	case 0x1:
		if func7(word) != 0 {
			return illegal()
		}
		inst.Op = OpSLL // SLLI
		inst.Imm = int32(rs2(word))
	case 0x2:
		inst.Op = OpSLT // SLTI
	case 0x3:
		inst.Op = OpSLTU // SLTIU
	case 0x4:
		inst.Op = OpXOR // XORI
	case 0x5:
		switch func7(word) {
		case 0x20:
			inst.Op = OpSRA // SRAI
		case 0x00:
			inst.Op = OpSRL // SRLI
		default:
			return illegal()
		}
		inst.Func7 = func7(word)
		inst.Imm = int32(rs2(word))
	case 0x6:
		inst.Op = OpOR // ORI
	case 0x7:
		inst.Op = OpAND // ANDI
	}
	return inst
}

func decodeLoad(word uint32) *Instruction {
	f3 := func3(word)
	inst := &Instruction{Format: FormatI, Rd: rd(word), Rs1: rs1(word), Func3: f3,
		Imm: immI(word), RegWrite: true, MemRead: true, UopCount: 1}
	switch f3 {
	case 0x0:
		inst.Op = OpLB
	case 0x1:
		inst.Op = OpLH
	case 0x2:
		inst.Op = OpLW
	case 0x4:
		inst.Op = OpLBU
	case 0x5:
		inst.Op = OpLHU
	default:
		return illegal()
	}
	return inst
}

func decodeStore(word uint32) *Instruction {
	f3 := func3(word)
	inst := &Instruction{Format: FormatS, Rs1: rs1(word), Rs2: rs2(word), Func3: f3,
		Imm: immS(word), MemWrite: true, UopCount: 1}
	switch f3 {
	case 0x0:
		inst.Op = OpSB
	case 0x1:
		inst.Op = OpSH
	case 0x2:
		inst.Op = OpSW
	default:
		return illegal()
	}
	return inst
}

func decodeBranch(word uint32) *Instruction {
	f3 := func3(word)
	inst := &Instruction{Format: FormatB, Rs1: rs1(word), Rs2: rs2(word), Func3: f3,
		Imm: immB(word), IsBranch: true, UopCount: 1}
	switch f3 {
	case 0x0:
		inst.Op = OpBEQ
	case 0x1:
		inst.Op = OpBNE
	case 0x4:
		inst.Op = OpBLT
	case 0x5:
		inst.Op = OpBGE
	case 0x6:
		inst.Op = OpBLTU
	case 0x7:
		inst.Op = OpBGEU
	default:
		return illegal()
	}
	return inst
}

// decodeSystem handles ECALL, EBREAK, the six CSR forms, MRET, SRET, WFI,
// and SFENCE.VMA. The CSR index is carried in CSRIdx; the legal CSR set
// itself is enumerated by package csr, not re-validated here.
func decodeSystem(word uint32) *Instruction {
	f3 := func3(word)
	csrIdx := uint16(word >> 20)
	switch f3 {
	case 0x0:
		switch word >> 20 {
		case 0x0:
			return &Instruction{Op: OpECALL, Format: FormatI, IsSystem: true, UopCount: 1}
		case 0x1:
			return &Instruction{Op: OpEBREAK, Format: FormatI, IsSystem: true, UopCount: 1}
		case 0x302:
			return &Instruction{Op: OpMRET, Format: FormatI, IsSystem: true, UopCount: 1}
		case 0x102:
			return &Instruction{Op: OpSRET, Format: FormatI, IsSystem: true, UopCount: 1}
		case 0x105:
			return &Instruction{Op: OpWFI, Format: FormatI, IsSystem: true, UopCount: 1}
		default:
			if func7(word) == 0x09 {
				return &Instruction{Op: OpSFENCEVMA, Format: FormatR, Rs1: rs1(word), Rs2: rs2(word),
					IsSystem: true, UopCount: 1}
			}
			return illegal()
		}
	case 0x1:
		return &Instruction{Op: OpCSRRW, Format: FormatI, Rd: rd(word), Rs1: rs1(word), Func3: f3,
			CSRIdx: csrIdx, RegWrite: true, IsSystem: true, UopCount: 1}
	case 0x2:
		return &Instruction{Op: OpCSRRS, Format: FormatI, Rd: rd(word), Rs1: rs1(word), Func3: f3,
			CSRIdx: csrIdx, RegWrite: true, IsSystem: true, UopCount: 1}
	case 0x3:
		return &Instruction{Op: OpCSRRC, Format: FormatI, Rd: rd(word), Rs1: rs1(word), Func3: f3,
			CSRIdx: csrIdx, RegWrite: true, IsSystem: true, UopCount: 1}
	case 0x5:
		return &Instruction{Op: OpCSRRWI, Format: FormatI, Rd: rd(word), Rs1: rs1(word), Func3: f3,
			CSRIdx: csrIdx, RegWrite: true, IsSystem: true, UopCount: 1}
	case 0x6:
		return &Instruction{Op: OpCSRRSI, Format: FormatI, Rd: rd(word), Rs1: rs1(word), Func3: f3,
			CSRIdx: csrIdx, RegWrite: true, IsSystem: true, UopCount: 1}
	case 0x7:
		return &Instruction{Op: OpCSRRCI, Format: FormatI, Rd: rd(word), Rs1: rs1(word), Func3: f3,
			CSRIdx: csrIdx, RegWrite: true, IsSystem: true, UopCount: 1}
	default:
		return illegal()
	}
}

// decodeAMO decodes the LR.W/SC.W/AMOSWAP.W/AMOADD.W subset. LR behaves
// like a load that also sets a reservation; SC behaves like a store that
// succeeds only if the reservation still holds, which the LSU checks at
// execute time, not here.
func decodeAMO(word uint32) *Instruction {
	if func3(word) != 0x2 {
		return illegal()
	}
	funct5 := func7(word) >> 2
	inst := &Instruction{Format: FormatR, Rd: rd(word), Rs1: rs1(word), Rs2: rs2(word),
		Func3: func3(word), RegWrite: true, MemRead: true, UopCount: 1}
	switch funct5 {
	case 0x02:
		inst.Op = OpLR
	case 0x03:
		inst.Op = OpSC
		inst.MemWrite = true
	case 0x01:
		inst.Op = OpAMOSWAP
		inst.MemWrite = true
	case 0x00:
		inst.Op = OpAMOADD
		inst.MemWrite = true
	default:
		return illegal()
	}
	return inst
}
