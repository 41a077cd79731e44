// Package emu implements the RV32I fetch-decode-execute loop: register and
// ALU semantics, branch resolution, load/store address translation, and the
// syscall interface, tied together by Emulator.
package emu

import (
	"rv32i/insts"
	"rv32i/regfile"
)

// ALU implements RV32I's register-register and register-immediate
// arithmetic/logic operations. All results are produced and stored as
// plain uint32; RV32I has no condition flags, so there is no flags state
// to maintain alongside the result.
type ALU struct {
	regs *regfile.RegFile
}

// NewALU creates an ALU connected to the given register file.
func NewALU(regs *regfile.RegFile) *ALU {
	return &ALU{regs: regs}
}

// ExecuteR executes an R-type instruction: both operands come from
// registers.
func (a *ALU) ExecuteR(inst *insts.Instruction) {
	op1 := a.regs.Get(inst.Rs1)
	op2 := a.regs.Get(inst.Rs2)
	a.regs.Set(inst.Rd, a.binary(inst.Op, op1, op2))
}

// ExecuteI executes an I-type ALU instruction: the second operand is the
// decoded immediate. Shift instructions use only its low 5 bits.
func (a *ALU) ExecuteI(inst *insts.Instruction) {
	op1 := a.regs.Get(inst.Rs1)
	op2 := uint32(inst.Imm)
	a.regs.Set(inst.Rd, a.binary(inst.Op, op1, op2))
}

func (a *ALU) binary(op insts.Op, op1, op2 uint32) uint32 {
	switch op {
	case insts.OpADD, insts.OpADDI:
		return op1 + op2
	case insts.OpSUB:
		return op1 - op2
	case insts.OpSLL, insts.OpSLLI:
		return op1 << (op2 & 0x1F)
	case insts.OpSLT, insts.OpSLTI:
		if int32(op1) < int32(op2) {
			return 1
		}
		return 0
	case insts.OpSLTU, insts.OpSLTIU:
		if op1 < op2 {
			return 1
		}
		return 0
	case insts.OpXOR, insts.OpXORI:
		return op1 ^ op2
	case insts.OpSRL, insts.OpSRLI:
		return op1 >> (op2 & 0x1F)
	case insts.OpSRA, insts.OpSRAI:
		return uint32(int32(op1) >> (op2 & 0x1F))
	case insts.OpOR, insts.OpORI:
		return op1 | op2
	case insts.OpAND, insts.OpANDI:
		return op1 & op2
	default:
		return 0
	}
}
