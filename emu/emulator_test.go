package emu_test

import (
	"bytes"
	"encoding/binary"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"rv32i/emu"
	"rv32i/loader"
)

func encodeR(funct7 uint32, rs2, rs1, funct3, rd, opcode uint32) uint32 {
	return funct7<<25 | rs2<<20 | rs1<<15 | funct3<<12 | rd<<7 | opcode
}

func encodeI(imm12 uint32, rs1, funct3, rd, opcode uint32) uint32 {
	return (imm12&0xFFF)<<20 | rs1<<15 | funct3<<12 | rd<<7 | opcode
}

func encodeS(imm12 uint32, rs2, rs1, funct3, opcode uint32) uint32 {
	hi := (imm12 >> 5) & 0x7F
	lo := imm12 & 0x1F
	return hi<<25 | rs2<<20 | rs1<<15 | funct3<<12 | lo<<7 | opcode
}

func encodeB(imm13 uint32, rs2, rs1, funct3, opcode uint32) uint32 {
	b12 := (imm13 >> 12) & 1
	b11 := (imm13 >> 11) & 1
	b10_5 := (imm13 >> 5) & 0x3F
	b4_1 := (imm13 >> 1) & 0xF
	return b12<<31 | b10_5<<25 | rs2<<20 | rs1<<15 | funct3<<12 | b4_1<<8 | b11<<7 | opcode
}

func encodeJ(imm21 uint32, rd, opcode uint32) uint32 {
	b20 := (imm21 >> 20) & 1
	b19_12 := (imm21 >> 12) & 0xFF
	b11 := (imm21 >> 11) & 1
	b10_1 := (imm21 >> 1) & 0x3FF
	return b20<<31 | b10_1<<21 | b11<<20 | b19_12<<12 | rd<<7 | opcode
}

func addi(rd, rs1 uint32, imm int32) uint32 { return encodeI(uint32(imm), rs1, 0, rd, 0b0010011) }
func add(rd, rs1, rs2 uint32) uint32        { return encodeR(0, rs2, rs1, 0, rd, 0b0110011) }
func andi(rd, rs1 uint32, imm int32) uint32 { return encodeI(uint32(imm), rs1, 0b111, rd, 0b0010011) }
func beq(rs1, rs2 uint32, imm int32) uint32 { return encodeB(uint32(imm), rs2, rs1, 0, 0b1100011) }
func jal(rd uint32, imm int32) uint32       { return encodeJ(uint32(imm), rd, 0b1101111) }
func jalr(rd, rs1 uint32, imm int32) uint32 { return encodeI(uint32(imm), rs1, 0, rd, 0b1100111) }
func sw(rs2, rs1 uint32, imm int32) uint32  { return encodeS(uint32(imm), rs2, rs1, 0b010, 0b0100011) }
func lw(rd, rs1 uint32, imm int32) uint32   { return encodeI(uint32(imm), rs1, 0b010, rd, 0b0000011) }
func ecall() uint32                         { return encodeI(0, 0, 0, 0, 0b1110011) }

func programBytes(words ...uint32) []byte {
	buf := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(buf[4*i:4*i+4], w)
	}
	return buf
}

func newTestEmulator(entry uint32, words ...uint32) *emu.Emulator {
	code := programBytes(words...)
	prog := &loader.Program{
		EntryPoint: entry,
		Segments: []loader.Segment{
			{VirtAddr: entry, Data: code, MemSize: uint32(len(code)), Flags: loader.FlagRead | loader.FlagExecute, Align: 4},
		},
	}
	e, err := emu.NewFromELF(prog, 1024)
	Expect(err).NotTo(HaveOccurred())

	// Advance past the boot shim's JAL so callers see PC == entry.
	Expect(e.Step().Err).NotTo(HaveOccurred())
	Expect(e.PC()).To(Equal(entry))
	return e
}

var _ = Describe("Emulator", func() {
	It("executes addi/add and halts cleanly by returning into the boot shim's ebreak", func() {
		e := newTestEmulator(0x1000,
			addi(5, 0, 5),
			addi(6, 0, 3),
			add(7, 5, 6),
			jalr(0, 1, 0), // return to the shim's ebreak via ra
		)
		for i := 0; i < 3; i++ {
			Expect(e.Step().Err).NotTo(HaveOccurred())
		}
		Expect(e.RegFile().Get(7)).To(Equal(uint32(8)))

		code, err := e.Run()
		Expect(err).NotTo(HaveOccurred())
		Expect(code).To(Equal(int32(0)))
	})

	It("halts normally on an undefined instruction, preserving prior state", func() {
		e := newTestEmulator(0x1000, add(10, 11, 12), 0x00000000)
		e.RegFile().Set(11, 0x1D)
		e.RegFile().Set(12, 0x03)

		res := e.Step() // ADD x10, x11, x12
		Expect(res.Err).NotTo(HaveOccurred())
		Expect(e.RegFile().Get(10)).To(Equal(uint32(0x20)))

		res = e.Step() // undefined word at entry+4
		Expect(res.Err).NotTo(HaveOccurred())
		Expect(res.Exited).To(BeTrue())
		Expect(e.PC()).To(Equal(uint32(0x1004)))
		Expect(e.RegFile().Get(10)).To(Equal(uint32(0x20)))
	})

	It("executes andi", func() {
		e := newTestEmulator(0x1000, addi(7, 0, 0xC), andi(8, 7, 0xA))
		Expect(e.Step().Err).NotTo(HaveOccurred())
		Expect(e.Step().Err).NotTo(HaveOccurred())
		Expect(e.RegFile().Get(8)).To(Equal(uint32(0xC & 0xA)))
	})

	It("takes a beq branch and skips the next instruction", func() {
		e := newTestEmulator(0x1000,
			addi(5, 0, 1),
			beq(5, 5, 8), // PC+8: skip the addi below
			addi(9, 0, 999),
			addi(9, 0, 42),
		)
		for i := 0; i < 3; i++ {
			Expect(e.Step().Err).NotTo(HaveOccurred())
		}
		Expect(e.RegFile().Get(9)).To(Equal(uint32(42)))
	})

	It("calls forward with jal and returns with jalr", func() {
		// jal x1, +8  -> call site at entry+0, callee at entry+8
		// addi x10, x0, 111 (skipped by the call)
		// callee: addi x20, x0, 5; jalr x0, 0(x1) -> return to entry+4
		e := newTestEmulator(0x1000,
			jal(1, 8),
			addi(10, 0, 111),
			addi(20, 0, 5),
			jalr(0, 1, 0),
		)
		Expect(e.Step().Err).NotTo(HaveOccurred()) // jal
		Expect(e.RegFile().Get(1)).To(Equal(uint32(0x1004)))
		Expect(e.PC()).To(Equal(uint32(0x1008)))
		Expect(e.Step().Err).NotTo(HaveOccurred()) // addi x20,x0,5
		Expect(e.Step().Err).NotTo(HaveOccurred()) // jalr back
		Expect(e.PC()).To(Equal(uint32(0x1004)))
		Expect(e.RegFile().Get(10)).To(Equal(uint32(0))) // never executed
	})

	It("round-trips a value through the stack via sw/lw", func() {
		e := newTestEmulator(0x1000,
			addi(5, 0, 77),
			sw(5, 2, -4), // sp-4
			lw(6, 2, -4),
		)
		for i := 0; i < 3; i++ {
			Expect(e.Step().Err).NotTo(HaveOccurred())
		}
		Expect(e.RegFile().Get(6)).To(Equal(uint32(77)))
	})

	It("silently discards writes to x0", func() {
		e := newTestEmulator(0x1000, addi(0, 0, 5))
		Expect(e.Step().Err).NotTo(HaveOccurred())
		Expect(e.RegFile().Get(0)).To(Equal(uint32(0)))
	})

	It("halts via the exit syscall with the requested exit code", func() {
		e := newTestEmulator(0x1000, addi(10, 0, 9), ecall())
		e.RegFile().Set(17, emu.SyscallExit)
		code, err := e.Run()
		Expect(err).NotTo(HaveOccurred())
		Expect(code).To(Equal(int32(9)))
	})

	It("round-trips through a bstate snapshot", func() {
		e := newTestEmulator(0x1000, addi(5, 0, 1))
		Expect(e.Step().Err).NotTo(HaveOccurred())

		var buf bytes.Buffer
		Expect(e.BinaryDump(&buf)).To(Succeed())

		reloaded, err := emu.NewFromBstate(&buf)
		Expect(err).NotTo(HaveOccurred())
		Expect(reloaded.PC()).To(Equal(e.PC()))
		Expect(reloaded.RegFile().Get(5)).To(Equal(uint32(1)))
	})
})
