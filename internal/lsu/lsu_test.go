package lsu_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rv32ooo/internal/lsu"
	"github.com/sarchlab/rv32ooo/internal/uop"
)

func TestLSU(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "LSU Suite")
}

var _ = Describe("STQ", func() {
	var q *lsu.STQ

	BeforeEach(func() {
		q = lsu.NewSTQ(4)
	})

	It("reserves slots in order and reports free slots", func() {
		idx := q.Reserve(uop.Uop{Rob: uop.RobIdx{Idx: 0}})
		Expect(idx).To(Equal(0))
		Expect(q.FreeSlots()).To(Equal(3))
	})

	It("forwards full data for a store that covers a later load's range", func() {
		idx := q.Reserve(uop.Uop{Rob: uop.RobIdx{Idx: 0}})
		q.SetAddr(idx, 0x1000, 4, false)
		q.SetData(idx, 0xdeadbeef)

		outcome, data := q.Forward(0x1000, 4, uop.RobIdx{Idx: 1})
		Expect(outcome).To(Equal(lsu.ForwardFull))
		Expect(data).To(Equal(uint32(0xdeadbeef)))
	})

	It("reports no forward when no older store overlaps", func() {
		outcome, _ := q.Forward(0x2000, 4, uop.RobIdx{Idx: 1})
		Expect(outcome).To(Equal(lsu.ForwardNone))
	})

	It("reports partial forward when the store only covers part of the load", func() {
		idx := q.Reserve(uop.Uop{Rob: uop.RobIdx{Idx: 0}})
		q.SetAddr(idx, 0x1000, 1, false)
		q.SetData(idx, 0xff)

		outcome, _ := q.Forward(0x1000, 4, uop.RobIdx{Idx: 1})
		Expect(outcome).To(Equal(lsu.ForwardPartial))
	})

	It("ignores a store younger than the load", func() {
		idx := q.Reserve(uop.Uop{Rob: uop.RobIdx{Idx: 5}})
		q.SetAddr(idx, 0x1000, 4, false)
		q.SetData(idx, 0x1)

		outcome, _ := q.Forward(0x1000, 4, uop.RobIdx{Idx: 1})
		Expect(outcome).To(Equal(lsu.ForwardNone))
	})
})

var _ = Describe("HelperQueues", func() {
	It("drains finished loads in FIFO order", func() {
		var h lsu.HelperQueues
		h.PushFinishedLoad(3)
		h.PushFinishedLoad(7)
		first, ok := h.PopFinishedLoad()
		Expect(ok).To(BeTrue())
		Expect(first).To(Equal(3))
		second, _ := h.PopFinishedLoad()
		Expect(second).To(Equal(7))
		_, ok = h.PopFinishedLoad()
		Expect(ok).To(BeFalse())
	})
})
