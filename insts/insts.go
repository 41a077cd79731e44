// Package insts classifies and decodes RV32I instruction words into a
// tagged-union Instruction value: a format tag, an operation identity, and
// the format's extracted fields. There is no per-opcode class hierarchy —
// execution is a single switch over the operation identity.
//
// Usage:
//
//	decoder := insts.NewDecoder()
//	inst := decoder.Decode(0x00c58533) // add x10, x11, x12
package insts

// Format identifies which of the six RV32I instruction encodings (or the
// Undefined sentinel) a word was classified as.
type Format uint8

const (
	FormatUndefined Format = iota
	FormatR
	FormatI
	FormatS
	FormatB
	FormatU
	FormatJ
)

// Op identifies one of the 39 RV32I operations the decoder recognizes, or
// an "undefined" sentinel carried alongside the format that produced it.
// FENCE is not among them: its opcode decodes as Undefined.
type Op uint8

const (
	OpUndefined Op = iota

	// R-type arithmetic/logic.
	OpADD
	OpSUB
	OpSLL
	OpSLT
	OpSLTU
	OpXOR
	OpSRL
	OpSRA
	OpOR
	OpAND

	// I-type ALU-immediate.
	OpADDI
	OpSLTI
	OpSLTIU
	OpXORI
	OpORI
	OpANDI
	OpSLLI
	OpSRLI
	OpSRAI

	// I-type loads.
	OpLB
	OpLH
	OpLW
	OpLBU
	OpLHU

	// I-type jump-register.
	OpJALR

	// I-type system.
	OpECALL
	OpEBREAK

	// S-type stores.
	OpSB
	OpSH
	OpSW

	// B-type branches.
	OpBEQ
	OpBNE
	OpBLT
	OpBGE
	OpBLTU
	OpBGEU

	// U-type.
	OpLUI
	OpAUIPC

	// J-type.
	OpJAL
)

var mnemonics = map[Op]string{
	OpADD: "add", OpSUB: "sub", OpSLL: "sll", OpSLT: "slt", OpSLTU: "sltu",
	OpXOR: "xor", OpSRL: "srl", OpSRA: "sra", OpOR: "or", OpAND: "and",
	OpADDI: "addi", OpSLTI: "slti", OpSLTIU: "sltiu", OpXORI: "xori",
	OpORI: "ori", OpANDI: "andi", OpSLLI: "slli", OpSRLI: "srli", OpSRAI: "srai",
	OpLB: "lb", OpLH: "lh", OpLW: "lw", OpLBU: "lbu", OpLHU: "lhu",
	OpJALR: "jalr", OpECALL: "ecall", OpEBREAK: "ebreak",
	OpSB: "sb", OpSH: "sh", OpSW: "sw",
	OpBEQ: "beq", OpBNE: "bne", OpBLT: "blt", OpBGE: "bge", OpBLTU: "bltu", OpBGEU: "bgeu",
	OpLUI: "lui", OpAUIPC: "auipc", OpJAL: "jal",
	OpUndefined: "undefined",
}

// Instruction is the decoded, self-contained representation of one 32-bit
// instruction word. Only the fields relevant to Format carry meaning; the
// rest hold their zero value. Instructions are created per fetch and carry
// no owned state beyond these fields.
type Instruction struct {
	Word     uint32
	Format   Format
	Op       Op
	Mnemonic string

	Rd, Rs1, Rs2   uint8
	Funct3, Funct7 uint8

	// Imm is the format-native sign-extended immediate. For U-type it is
	// already shifted into bits 31..12. For shift-immediates, the low 5
	// bits are the shift amount.
	Imm int32
}
