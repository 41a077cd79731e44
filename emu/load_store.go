package emu

import (
	"rv32i/insts"
	"rv32i/mem"
	"rv32i/regfile"
)

// LoadStoreUnit implements RV32I's memory-addressing loads and stores:
// address = rs1 + imm, followed by a width-specific sign- or zero-extend
// on load, or a width-specific truncate on store.
type LoadStoreUnit struct {
	regs   *regfile.RegFile
	memory *mem.Memory
}

// NewLoadStoreUnit creates a LoadStoreUnit connected to the given register
// file and memory.
func NewLoadStoreUnit(regs *regfile.RegFile, memory *mem.Memory) *LoadStoreUnit {
	return &LoadStoreUnit{regs: regs, memory: memory}
}

// Load executes an I-type load instruction.
func (lsu *LoadStoreUnit) Load(inst *insts.Instruction) error {
	addr := lsu.regs.Get(inst.Rs1) + uint32(inst.Imm)

	switch inst.Op {
	case insts.OpLB:
		v, err := lsu.memory.ReadByte(addr)
		if err != nil {
			return err
		}
		lsu.regs.Set(inst.Rd, uint32(int32(int8(v))))
	case insts.OpLBU:
		v, err := lsu.memory.ReadByte(addr)
		if err != nil {
			return err
		}
		lsu.regs.Set(inst.Rd, uint32(v))
	case insts.OpLH:
		v, err := lsu.memory.ReadHalf(addr)
		if err != nil {
			return err
		}
		lsu.regs.Set(inst.Rd, uint32(int32(int16(v))))
	case insts.OpLHU:
		v, err := lsu.memory.ReadHalf(addr)
		if err != nil {
			return err
		}
		lsu.regs.Set(inst.Rd, uint32(v))
	case insts.OpLW:
		v, err := lsu.memory.ReadWord(addr)
		if err != nil {
			return err
		}
		lsu.regs.Set(inst.Rd, v)
	}
	return nil
}

// Store executes an S-type store instruction.
func (lsu *LoadStoreUnit) Store(inst *insts.Instruction) error {
	addr := lsu.regs.Get(inst.Rs1) + uint32(inst.Imm)
	v := lsu.regs.Get(inst.Rs2)

	switch inst.Op {
	case insts.OpSB:
		return lsu.memory.WriteByte(addr, uint8(v))
	case insts.OpSH:
		return lsu.memory.WriteHalf(addr, uint16(v))
	case insts.OpSW:
		return lsu.memory.WriteWord(addr, v)
	}
	return nil
}
