package decode_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rv32ooo/internal/decode"
	"github.com/sarchlab/rv32ooo/internal/frontend"
	"github.com/sarchlab/rv32ooo/internal/uop"
)

var _ = Describe("Idu", func() {
	var idu *decode.Idu

	BeforeEach(func() {
		idu = decode.New(16, 8)
	})

	It("decodes a straight-line ADDI stream with no branch tags consumed", func() {
		lanes := []frontend.Lane{
			{Valid: true, PC: 0, Inst: 0x00510093},  // ADDI x1, x2, 5
			{Valid: true, PC: 4, Inst: 0x00a10113},  // ADDI x2, x2, 10
		}
		idu.Push(lanes, 0)
		uops := idu.Decode(0)

		Expect(uops).To(HaveLen(2))
		Expect(uops[0].Kind).To(Equal(uop.ADD))
		Expect(uops[0].Dest).To(Equal(uint8(1)))
		Expect(uops[0].BrTag).To(Equal(uop.BrTag(0)))
	})

	It("allocates a branch tag for a branch uop", func() {
		lanes := []frontend.Lane{
			{Valid: true, PC: 0, Inst: 0x00208463}, // BEQ x1, x2, +8
		}
		idu.Push(lanes, 0)
		uops := idu.Decode(0)

		Expect(uops).To(HaveLen(1))
		Expect(uops[0].IsBranch).To(BeTrue())
		Expect(uops[0].BrTag).ToNot(Equal(uop.BrTag(0)))
	})

	It("turns an illegal encoding into a NOP with IllegalInst set", func() {
		lanes := []frontend.Lane{
			{Valid: true, PC: 0, Inst: 0x00000001},
		}
		idu.Push(lanes, 0)
		uops := idu.Decode(0)

		Expect(uops).To(HaveLen(1))
		Expect(uops[0].Kind).To(Equal(uop.NOP))
		Expect(uops[0].IllegalInst).To(BeTrue())
	})

	It("frees tags allocated after a mispredicting branch", func() {
		lanes := []frontend.Lane{
			{Valid: true, PC: 0, Inst: 0x00208463},  // BEQ (tag A)
			{Valid: true, PC: 4, Inst: 0x00308463},  // BEQ (tag B)
		}
		idu.Push(lanes, 0)
		uops := idu.Decode(0)
		Expect(uops).To(HaveLen(2))

		tagA := uops[0].BrTag
		idu.ResolveMispredict(tagA)

		lanesAfter := []frontend.Lane{
			{Valid: true, PC: 0, Inst: 0x00208463},
		}
		idu.Push(lanesAfter, 0)
		uopsAfter := idu.Decode(0)
		Expect(uopsAfter).To(HaveLen(1))
		Expect(uopsAfter[0].BrTag).ToNot(Equal(uop.BrTag(0)))
	})
})
