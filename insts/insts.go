// Package insts provides RV32IM instruction definitions and decoding.
//
// This core implements the base integer (I) and multiply/divide (M)
// extensions plus the privileged/Zicsr/Zifencei instructions (CSR,
// FENCE.I, ECALL, EBREAK, MRET, SRET, WFI, SFENCE.VMA) and the atomic
// (A) extension's LR/SC pair, which the decode contract special-cases.
//
// Usage:
//
//	inst := insts.NewDecoder().Decode(0x00150513) // ADDI x10, x10, 1
//	fmt.Printf("Op: %v, Rd: %d, Imm: %d\n", inst.Op, inst.Rd, inst.Imm)
package insts
