package memsubsys

import "github.com/sarchlab/rv32ooo/internal/csr"

// Narrow MMIO addresses this core's peripheral sink recognizes: a
// single UART transmit-data register and a PLIC-style external
// interrupt pending/claim pair.
const (
	UARTTxAddr      = 0x10000000
	PLICPendingAddr = 0x0c001000
	PLICClaimAddr   = 0x0c200004
)

// pendingWrite is a staged MMIO write: the address phase (this cycle,
// decoding which device and validating the access) is separated from the
// effect phase (next cycle, when the device-visible side effect is
// actually applied) so a store that gets squashed between dispatch and
// retirement — which cannot happen for an MMIO store since it only ever
// issues after commit, but the two-phase split still matches the
// original source's store-then-ack protocol — never partially lands.
type pendingWrite struct {
	valid bool
	addr  uint32
	data  uint32
}

// Peripheral is the UART/PLIC MMIO sink. Output is buffered into Out so
// tests and the CLI harness can observe guest program output without
// tying this package to os.Stdout.
type Peripheral struct {
	pending pendingWrite
	Out     []byte
}

// IsMMIO reports whether addr is one this sink owns.
func IsMMIO(addr uint32) bool {
	switch addr {
	case UARTTxAddr, PLICPendingAddr, PLICClaimAddr:
		return true
	}
	return false
}

// Write stages a write for application on the next Tick (address phase).
func (p *Peripheral) Write(addr uint32, data uint32) {
	p.pending = pendingWrite{valid: true, addr: addr, data: data}
}

// Tick applies any staged write (effect phase) against csrs for
// interrupt-related side effects, and appends UART output to Out.
func (p *Peripheral) Tick(csrs *csr.File) {
	if !p.pending.valid {
		return
	}
	w := p.pending
	p.pending = pendingWrite{}
	switch w.addr {
	case UARTTxAddr:
		p.Out = append(p.Out, byte(w.data))
	case PLICPendingAddr:
		if w.data&0xff == 7 {
			csrs.RaiseExternalInterruptPending()
		}
	case PLICClaimAddr:
		if w.data&0xff == 0xa {
			csrs.ClaimExternalInterrupt()
		}
	}
}

// Read services a load from a recognized MMIO address. PLIC claim reads
// are marked difftest-skip by the caller (the LSU), since the claimed
// interrupt ID is not deterministic relative to an external reference
// model driven independently.
func (p *Peripheral) Read(addr uint32) uint32 {
	switch addr {
	case PLICClaimAddr:
		return 1
	default:
		return 0
	}
}
