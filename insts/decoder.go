package insts

const (
	opR        = 0b0110011
	opIALU     = 0b0010011
	opILoad    = 0b0000011
	opIJALR    = 0b1100111
	opISystem  = 0b1110011
	opS        = 0b0100011
	opB        = 0b1100011
	opULUI     = 0b0110111
	opUAUIPC   = 0b0010111
	opJ        = 0b1101111
)

// Decoder classifies a 32-bit instruction word into an Instruction.
type Decoder struct{}

// NewDecoder returns a ready-to-use Decoder. Decoder carries no state of
// its own; one instance may be shared across fetches.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode is deterministic and total: every 32-bit word maps to exactly one
// Instruction, falling back to FormatUndefined/OpUndefined when the opcode
// is unrecognized or a recognized opcode carries a funct3/funct7 pattern
// with no defined meaning.
func (d *Decoder) Decode(word uint32) *Instruction {
	inst := &Instruction{Word: word}

	switch opcode(word) {
	case opR:
		d.decodeR(word, inst)
	case opIALU:
		d.decodeIALU(word, inst)
	case opILoad:
		d.decodeILoad(word, inst)
	case opIJALR:
		d.decodeIJALR(word, inst)
	case opISystem:
		d.decodeISystem(word, inst)
	case opS:
		d.decodeS(word, inst)
	case opB:
		d.decodeB(word, inst)
	case opULUI:
		inst.Format = FormatU
		inst.Op = OpLUI
		inst.Rd = rd(word)
		inst.Imm = uImm32(word)
	case opUAUIPC:
		inst.Format = FormatU
		inst.Op = OpAUIPC
		inst.Rd = rd(word)
		inst.Imm = uImm32(word)
	case opJ:
		inst.Format = FormatJ
		inst.Op = OpJAL
		inst.Rd = rd(word)
		inst.Imm = jImm21(word)
	default:
		inst.Format = FormatUndefined
		inst.Op = OpUndefined
	}

	if inst.Op != OpUndefined {
		inst.Mnemonic = mnemonics[inst.Op]
	} else {
		inst.Mnemonic = mnemonics[OpUndefined]
	}
	return inst
}

func (d *Decoder) decodeR(word uint32, inst *Instruction) {
	inst.Format = FormatR
	inst.Rd = rd(word)
	inst.Rs1 = rs1(word)
	inst.Rs2 = rs2(word)
	inst.Funct3 = funct3(word)
	inst.Funct7 = funct7(word)

	// Only ADD/SUB and SRL/SRA use funct7 0100000; every other nonzero
	// funct7 has no RV32I meaning.
	if inst.Funct7 != 0b0000000 && !(inst.Funct7 == 0b0100000 && (inst.Funct3 == 0b000 || inst.Funct3 == 0b101)) {
		inst.Format, inst.Op = FormatUndefined, OpUndefined
		return
	}

	switch inst.Funct3 {
	case 0b000:
		switch inst.Funct7 {
		case 0b0000000:
			inst.Op = OpADD
		case 0b0100000:
			inst.Op = OpSUB
		default:
			inst.Format, inst.Op = FormatUndefined, OpUndefined
		}
	case 0b001:
		inst.Op = OpSLL
	case 0b010:
		inst.Op = OpSLT
	case 0b011:
		inst.Op = OpSLTU
	case 0b100:
		inst.Op = OpXOR
	case 0b101:
		switch inst.Funct7 {
		case 0b0000000:
			inst.Op = OpSRL
		case 0b0100000:
			inst.Op = OpSRA
		default:
			inst.Format, inst.Op = FormatUndefined, OpUndefined
		}
	case 0b110:
		inst.Op = OpOR
	case 0b111:
		inst.Op = OpAND
	}
}

func (d *Decoder) decodeIALU(word uint32, inst *Instruction) {
	inst.Format = FormatI
	inst.Rd = rd(word)
	inst.Rs1 = rs1(word)
	inst.Funct3 = funct3(word)
	inst.Imm = iImm12(word)

	switch inst.Funct3 {
	case 0b000:
		inst.Op = OpADDI
	case 0b001:
		// SLLI: shamt is imm[4:0]; imm[11:5] must be 0000000.
		if funct7(word) != 0 {
			inst.Format, inst.Op = FormatUndefined, OpUndefined
			return
		}
		inst.Op = OpSLLI
	case 0b010:
		inst.Op = OpSLTI
	case 0b011:
		inst.Op = OpSLTIU
	case 0b100:
		inst.Op = OpXORI
	case 0b101:
		// SRLI/SRAI share funct3=5; bit 30 (the top bit of the would-be
		// funct7) distinguishes arithmetic (SRAI) from logical (SRLI).
		switch funct7(word) {
		case 0b0000000:
			inst.Op = OpSRLI
		case 0b0100000:
			inst.Op = OpSRAI
		default:
			inst.Format, inst.Op = FormatUndefined, OpUndefined
		}
	case 0b110:
		inst.Op = OpORI
	case 0b111:
		inst.Op = OpANDI
	}
}

func (d *Decoder) decodeILoad(word uint32, inst *Instruction) {
	inst.Format = FormatI
	inst.Rd = rd(word)
	inst.Rs1 = rs1(word)
	inst.Funct3 = funct3(word)
	inst.Imm = iImm12(word)

	switch inst.Funct3 {
	case 0b000:
		inst.Op = OpLB
	case 0b001:
		inst.Op = OpLH
	case 0b010:
		inst.Op = OpLW
	case 0b100:
		inst.Op = OpLBU
	case 0b101:
		inst.Op = OpLHU
	default:
		inst.Format, inst.Op = FormatUndefined, OpUndefined
	}
}

func (d *Decoder) decodeIJALR(word uint32, inst *Instruction) {
	if funct3(word) != 0 {
		inst.Format, inst.Op = FormatUndefined, OpUndefined
		return
	}
	inst.Format = FormatI
	inst.Op = OpJALR
	inst.Rd = rd(word)
	inst.Rs1 = rs1(word)
	inst.Funct3 = funct3(word)
	inst.Imm = iImm12(word)
}

func (d *Decoder) decodeISystem(word uint32, inst *Instruction) {
	// System-I carries no register operands; the full 12-bit immediate
	// disambiguates ecall (0) from ebreak (1).
	imm12 := bits(word, 31, 20)
	inst.Format = FormatI
	switch imm12 {
	case 0:
		inst.Op = OpECALL
	case 1:
		inst.Op = OpEBREAK
	default:
		inst.Format, inst.Op = FormatUndefined, OpUndefined
	}
}

func (d *Decoder) decodeS(word uint32, inst *Instruction) {
	inst.Format = FormatS
	inst.Rs1 = rs1(word)
	inst.Rs2 = rs2(word)
	inst.Funct3 = funct3(word)
	inst.Imm = sImm12(word)

	switch inst.Funct3 {
	case 0b000:
		inst.Op = OpSB
	case 0b001:
		inst.Op = OpSH
	case 0b010:
		inst.Op = OpSW
	default:
		inst.Format, inst.Op = FormatUndefined, OpUndefined
	}
}

func (d *Decoder) decodeB(word uint32, inst *Instruction) {
	inst.Format = FormatB
	inst.Rs1 = rs1(word)
	inst.Rs2 = rs2(word)
	inst.Funct3 = funct3(word)
	inst.Imm = bImm13(word)

	switch inst.Funct3 {
	case 0b000:
		inst.Op = OpBEQ
	case 0b001:
		inst.Op = OpBNE
	case 0b100:
		inst.Op = OpBLT
	case 0b101:
		inst.Op = OpBGE
	case 0b110:
		inst.Op = OpBLTU
	case 0b111:
		inst.Op = OpBGEU
	default:
		inst.Format, inst.Op = FormatUndefined, OpUndefined
	}
}
