package emu

import (
	"rv32i/insts"
	"rv32i/regfile"
)

// BranchUnit evaluates RV32I's six branch conditions against a pair of
// register operands.
type BranchUnit struct {
	regs *regfile.RegFile
}

// NewBranchUnit creates a BranchUnit connected to the given register file.
func NewBranchUnit(regs *regfile.RegFile) *BranchUnit {
	return &BranchUnit{regs: regs}
}

// Taken reports whether a B-type instruction's condition holds for the
// current register contents.
func (b *BranchUnit) Taken(inst *insts.Instruction) bool {
	rs1 := b.regs.Get(inst.Rs1)
	rs2 := b.regs.Get(inst.Rs2)

	switch inst.Op {
	case insts.OpBEQ:
		return rs1 == rs2
	case insts.OpBNE:
		return rs1 != rs2
	case insts.OpBLT:
		return int32(rs1) < int32(rs2)
	case insts.OpBGE:
		return int32(rs1) >= int32(rs2)
	case insts.OpBLTU:
		return rs1 < rs2
	case insts.OpBGEU:
		return rs1 >= rs2
	default:
		return false
	}
}
