package insts

// signExtend recovers an N-bit two's-complement field by left-aligning it
// at bit 31 and then performing an arithmetic right shift, per
//
//	(word << (32 - N)) >>arith (32 - N)
func signExtend(value uint32, bits uint) int32 {
	shift := 32 - bits
	return int32(value<<shift) >> shift
}

func bits(word uint32, hi, lo uint) uint32 {
	mask := uint32(1)<<(hi-lo+1) - 1
	return (word >> lo) & mask
}

func opcode(word uint32) uint32  { return bits(word, 6, 0) }
func rd(word uint32) uint8       { return uint8(bits(word, 11, 7)) }
func funct3(word uint32) uint8   { return uint8(bits(word, 14, 12)) }
func rs1(word uint32) uint8      { return uint8(bits(word, 19, 15)) }
func rs2(word uint32) uint8      { return uint8(bits(word, 24, 20)) }
func funct7(word uint32) uint8   { return uint8(bits(word, 31, 25)) }

// iImm12 extracts and sign-extends the I-type 12-bit immediate.
func iImm12(word uint32) int32 {
	return signExtend(bits(word, 31, 20), 12)
}

// sImm12 reassembles and sign-extends the S-type 12-bit immediate from its
// two disjoint bit groups.
func sImm12(word uint32) int32 {
	hi := bits(word, 31, 25)
	lo := bits(word, 11, 7)
	return signExtend(hi<<5|lo, 12)
}

// bImm13 reassembles and sign-extends the B-type 13-bit immediate
// (low bit fixed to zero) from its four disjoint bit groups.
func bImm13(word uint32) int32 {
	b12 := bits(word, 31, 31)
	b11 := bits(word, 7, 7)
	b10_5 := bits(word, 30, 25)
	b4_1 := bits(word, 11, 8)
	imm := b12<<12 | b11<<11 | b10_5<<5 | b4_1<<1
	return signExtend(imm, 13)
}

// uImm32 extracts the U-type 20-bit immediate, left in place at bits
// 31..12 with the low 12 bits zero.
func uImm32(word uint32) int32 {
	return int32(word & 0xFFFFF000)
}

// jImm21 reassembles and sign-extends the J-type 21-bit immediate
// (low bit fixed to zero) from its four disjoint bit groups.
func jImm21(word uint32) int32 {
	b20 := bits(word, 31, 31)
	b19_12 := bits(word, 19, 12)
	b11 := bits(word, 20, 20)
	b10_1 := bits(word, 30, 21)
	imm := b20<<20 | b19_12<<12 | b11<<11 | b10_1<<1
	return signExtend(imm, 21)
}
