package insts_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rv32ooo/insts"
)

var _ = Describe("Decoder", func() {
	var decoder *insts.Decoder

	BeforeEach(func() {
		decoder = insts.NewDecoder()
	})

	Describe("R-type integer ops", func() {
		It("should decode ADD x1, x2, x3", func() {
			// opcode=0110011 rd=1 f3=0 rs1=2 rs2=3 f7=0
			inst := decoder.Decode(0x003100b3)
			Expect(inst.Op).To(Equal(insts.OpADD))
			Expect(inst.Format).To(Equal(insts.FormatR))
			Expect(inst.Rd).To(Equal(uint8(1)))
			Expect(inst.Rs1).To(Equal(uint8(2)))
			Expect(inst.Rs2).To(Equal(uint8(3)))
			Expect(inst.RegWrite).To(BeTrue())
		})

		It("should decode SUB x1, x2, x3", func() {
			inst := decoder.Decode(0x403100b3)
			Expect(inst.Op).To(Equal(insts.OpSUB))
		})

		It("should decode MUL x1, x2, x3 (M extension)", func() {
			inst := decoder.Decode(0x023100b3)
			Expect(inst.Op).To(Equal(insts.OpMUL))
		})

		It("should decode DIVU x1, x2, x3", func() {
			inst := decoder.Decode(0x02315033 | (1 << 7))
			Expect(inst.Op).To(Equal(insts.OpDIVU))
		})

		It("should flag a reserved func7 as illegal", func() {
			inst := decoder.Decode(0x603100b3) // f3=0, f7=0x30 - no such case
			Expect(inst.Illegal).To(BeTrue())
		})
	})

	Describe("I-type arithmetic ops", func() {
		It("should decode ADDI x1, x2, 5", func() {
			inst := decoder.Decode(0x00510093)
			Expect(inst.Op).To(Equal(insts.OpADD))
			Expect(inst.Format).To(Equal(insts.FormatI))
			Expect(inst.Rd).To(Equal(uint8(1)))
			Expect(inst.Rs1).To(Equal(uint8(2)))
			Expect(inst.Imm).To(Equal(int32(5)))
		})

		It("should decode ADDI with a negative immediate", func() {
			inst := decoder.Decode(0xffff0093) // ADDI x1, x30, -1
			Expect(inst.Op).To(Equal(insts.OpADD))
			Expect(inst.Imm).To(Equal(int32(-1)))
		})

		It("should decode SLLI x1, x2, 3", func() {
			inst := decoder.Decode(0x00311093)
			Expect(inst.Op).To(Equal(insts.OpSLL))
			Expect(inst.Imm).To(Equal(int32(3)))
		})

		It("should decode SRAI x1, x2, 3", func() {
			inst := decoder.Decode(0x40315093)
			Expect(inst.Op).To(Equal(insts.OpSRA))
			Expect(inst.Imm).To(Equal(int32(3)))
		})
	})

	Describe("Upper immediate", func() {
		It("should decode LUI x1, 0x12345", func() {
			inst := decoder.Decode(0x123450b7)
			Expect(inst.Op).To(Equal(insts.OpLUI))
			Expect(inst.Rd).To(Equal(uint8(1)))
			Expect(inst.Imm).To(Equal(int32(0x12345000)))
		})

		It("should decode AUIPC x1, 0x1", func() {
			inst := decoder.Decode(0x00001097)
			Expect(inst.Op).To(Equal(insts.OpAUIPC))
			Expect(inst.Imm).To(Equal(int32(0x1000)))
		})
	})

	Describe("Control flow", func() {
		It("should decode JAL x1, offset", func() {
			inst := decoder.Decode(0x008000ef) // JAL x1, +8
			Expect(inst.Op).To(Equal(insts.OpJAL))
			Expect(inst.IsJump).To(BeTrue())
			Expect(inst.Imm).To(Equal(int32(8)))
		})

		It("should decode JALR x1, x2, 0", func() {
			inst := decoder.Decode(0x000100e7)
			Expect(inst.Op).To(Equal(insts.OpJALR))
			Expect(inst.Rs1).To(Equal(uint8(2)))
		})

		It("should decode BEQ x1, x2, offset", func() {
			inst := decoder.Decode(0x00208463) // BEQ x1, x2, +8
			Expect(inst.Op).To(Equal(insts.OpBEQ))
			Expect(inst.IsBranch).To(BeTrue())
			Expect(inst.Imm).To(Equal(int32(8)))
		})

		It("should decode BLT with a negative offset", func() {
			// BLT x1, x2, -4: imm field encodes -4.
			inst := decoder.Decode(0xfe20cee3)
			Expect(inst.Op).To(Equal(insts.OpBLT))
			Expect(inst.Imm).To(Equal(int32(-4)))
		})
	})

	Describe("Loads and stores", func() {
		It("should decode LW x1, 4(x2)", func() {
			inst := decoder.Decode(0x00412083)
			Expect(inst.Op).To(Equal(insts.OpLW))
			Expect(inst.MemRead).To(BeTrue())
			Expect(inst.Imm).To(Equal(int32(4)))
		})

		It("should decode LBU x1, 0(x2)", func() {
			inst := decoder.Decode(0x00014083)
			Expect(inst.Op).To(Equal(insts.OpLBU))
		})

		It("should decode SW x2, 8(x1)", func() {
			inst := decoder.Decode(0x0020a423)
			Expect(inst.Op).To(Equal(insts.OpSW))
			Expect(inst.MemWrite).To(BeTrue())
			Expect(inst.Imm).To(Equal(int32(8)))
		})
	})

	Describe("System and CSR", func() {
		It("should decode ECALL", func() {
			inst := decoder.Decode(0x00000073)
			Expect(inst.Op).To(Equal(insts.OpECALL))
			Expect(inst.IsSystem).To(BeTrue())
		})

		It("should decode EBREAK", func() {
			inst := decoder.Decode(0x00100073)
			Expect(inst.Op).To(Equal(insts.OpEBREAK))
		})

		It("should decode MRET", func() {
			inst := decoder.Decode(0x30200073)
			Expect(inst.Op).To(Equal(insts.OpMRET))
		})

		It("should decode SRET", func() {
			inst := decoder.Decode(0x10200073)
			Expect(inst.Op).To(Equal(insts.OpSRET))
		})

		It("should decode WFI", func() {
			inst := decoder.Decode(0x10500073)
			Expect(inst.Op).To(Equal(insts.OpWFI))
		})

		It("should decode CSRRW x1, satp, x2", func() {
			inst := decoder.Decode(0x180110f3)
			Expect(inst.Op).To(Equal(insts.OpCSRRW))
			Expect(inst.CSRIdx).To(Equal(uint16(0x180)))
			Expect(inst.Rd).To(Equal(uint8(1)))
			Expect(inst.Rs1).To(Equal(uint8(2)))
		})

		It("should decode SFENCE.VMA x1, x2", func() {
			inst := decoder.Decode(0x12208073)
			Expect(inst.Op).To(Equal(insts.OpSFENCEVMA))
			Expect(inst.Rs1).To(Equal(uint8(1)))
			Expect(inst.Rs2).To(Equal(uint8(2)))
		})
	})

	Describe("Atomics", func() {
		It("should decode LR.W x1, (x2)", func() {
			inst := decoder.Decode(0x100120af)
			Expect(inst.Op).To(Equal(insts.OpLR))
			Expect(inst.Rd).To(Equal(uint8(1)))
			Expect(inst.Rs1).To(Equal(uint8(2)))
		})

		It("should decode SC.W x3, x1, (x2)", func() {
			inst := decoder.Decode(0x181121af)
			Expect(inst.Op).To(Equal(insts.OpSC))
			Expect(inst.MemWrite).To(BeTrue())
			Expect(inst.Rd).To(Equal(uint8(3)))
			Expect(inst.Rs1).To(Equal(uint8(2)))
			Expect(inst.Rs2).To(Equal(uint8(1)))
		})
	})

	Describe("illegal encodings", func() {
		It("should flag an unknown opcode as illegal", func() {
			inst := decoder.Decode(0x00000001)
			Expect(inst.Illegal).To(BeTrue())
		})
	})
})
