package backend_test

import (
	"io"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rv32ooo/internal/backend"
	"github.com/sarchlab/rv32ooo/internal/frontend"
	"github.com/sarchlab/rv32ooo/internal/simctx"
	"github.com/sarchlab/rv32ooo/internal/simlog"
)

func TestBackend(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Backend Suite")
}

const resetPC = uint32(0x80000000)

func newBackend() *backend.Backend {
	ctx := simctx.New(1)
	b := backend.New(backend.DefaultConfig(), ctx, frontend.NewBimodal(256, 64), resetPC)
	b.Log = simlog.New(io.Discard, simlog.LevelSilent, b.Cycle)
	return b
}

func loadProgram(b *backend.Backend, words []uint32) {
	for i, w := range words {
		b.Ctx.Memory.Write32(resetPC+uint32(i*4), w)
	}
}

func runUntilHalt(b *backend.Backend, maxCycles int) bool {
	for i := 0; i < maxCycles; i++ {
		if b.Halted() {
			return true
		}
		b.Tick()
	}
	return b.Halted()
}

var _ = Describe("Backend", func() {
	It("computes a register sum and exits via the ECALL convention", func() {
		b := newBackend()
		loadProgram(b, []uint32{
			0x00A00293, // addi x5, x0, 10
			0x02000313, // addi x6, x0, 32
			0x00628533, // add  x10, x5, x6
			0x05D00893, // addi x17, x0, 93
			0x00000073, // ecall
		})

		halted := runUntilHalt(b, 10000)
		Expect(halted).To(BeTrue())
		Expect(b.ExitCode()).To(Equal(int64(42)))
	})

	It("leaves x0 hardwired to zero across renaming and commit", func() {
		b := newBackend()
		loadProgram(b, []uint32{
			0x00100293, // addi x5, x0, 1
			0x00000013, // addi x0, x0, 0  (attempted write to x0)
			0x05D00893, // addi x17, x0, 93
			0x00000293, // addi x5, x0, 0  (a0 stays whatever it already is)
			0x00028513, // addi x10, x5, 0 -> a0 = 0
			0x00000073, // ecall
		})

		halted := runUntilHalt(b, 10000)
		Expect(halted).To(BeTrue())
		Expect(b.ExitCode()).To(Equal(int64(0)))
	})

	It("does not halt before the guest program reaches its exit ecall", func() {
		b := newBackend()
		loadProgram(b, []uint32{
			0x00A00293, // addi x5, x0, 10
			0x00000013, // nop
			0x00000013, // nop
		})

		for i := 0; i < 20; i++ {
			b.Tick()
			Expect(b.Halted()).To(BeFalse())
		}
	})

	It("advances the cycle counter once per Tick until halted", func() {
		b := newBackend()
		loadProgram(b, []uint32{
			0x05D00893, // addi x17, x0, 93
			0x00000513, // addi x10, x0, 0
			0x00000073, // ecall
		})

		before := b.Cycle()
		runUntilHalt(b, 10000)
		Expect(b.Cycle()).To(BeNumerically(">", before))
	})

	It("traps instead of halting when a7 is not the exit syscall number", func() {
		b := newBackend()
		loadProgram(b, []uint32{
			0x06400893, // addi x17, x0, 100
			0x00000073, // ecall (a7=100 is not 93, so this traps through the CSR file)
		})

		for i := 0; i < 50 && !b.Halted(); i++ {
			b.Tick()
		}
		Expect(b.Halted()).To(BeFalse())
	})
})
