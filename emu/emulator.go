package emu

import (
	"encoding/binary"
	"io"
	"os"

	"github.com/go-logr/logr"

	"rv32i/insts"
	"rv32i/loader"
	"rv32i/mem"
	"rv32i/regfile"
	"rv32i/simerr"
)

const modelSignature = "RV32I_MDL_STATE\x00"

// shimEntryReg is the link register the boot shim's JAL targets, matching
// the standard RISC-V return-address register ra (x1).
const shimEntryReg = 1

// StepResult reports the outcome of executing a single instruction.
type StepResult struct {
	Exited   bool
	ExitCode int32
	Err      error
}

// Emulator ties the register file, memory, decoder, and execution units
// together into the fetch-decode-execute loop.
type Emulator struct {
	regs    *regfile.RegFile
	memory  *mem.Memory
	decoder *insts.Decoder
	pc      uint32

	alu            *ALU
	lsu            *LoadStoreUnit
	branchUnit     *BranchUnit
	syscallHandler SyscallHandler

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	logger logr.Logger

	instructionCount uint64
	onStep           func(e *Emulator, step uint64) error
}

// Option configures an Emulator at construction time.
type Option func(*Emulator)

// WithStdout overrides the writer backing fd 1.
func WithStdout(w io.Writer) Option { return func(e *Emulator) { e.stdout = w } }

// WithStderr overrides the writer backing fd 2.
func WithStderr(w io.Writer) Option { return func(e *Emulator) { e.stderr = w } }

// WithStdin sets the reader backing the read syscall, if the default
// syscall handler is in use.
func WithStdin(r io.Reader) Option { return func(e *Emulator) { e.stdin = r } }

// WithSyscallHandler overrides the default ecall handler.
func WithSyscallHandler(h SyscallHandler) Option { return func(e *Emulator) { e.syscallHandler = h } }

// WithLogger attaches a structured logger. Discarded by default.
func WithLogger(l logr.Logger) Option { return func(e *Emulator) { e.logger = l } }

// WithOnStep registers a callback invoked after every successfully
// executed instruction, receiving the step count just completed. Used by
// the CLI to drive checkpoint dumps without this package touching a
// filesystem itself. A non-nil error aborts the run.
func WithOnStep(fn func(e *Emulator, step uint64) error) Option {
	return func(e *Emulator) { e.onStep = fn }
}

func newBareEmulator(regs *regfile.RegFile, memory *mem.Memory, opts []Option) *Emulator {
	e := &Emulator{
		regs:    regs,
		memory:  memory,
		decoder: insts.NewDecoder(),
		stdin:   os.Stdin,
		stdout:  os.Stdout,
		stderr:  os.Stderr,
		logger:  logr.Discard(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.alu = NewALU(regs)
	e.lsu = NewLoadStoreUnit(regs, memory)
	e.branchUnit = NewBranchUnit(regs)
	if e.syscallHandler == nil {
		h := NewDefaultSyscallHandler(regs, memory, e.stdout, e.stderr, e.logger)
		h.SetStdin(e.stdin)
		e.syscallHandler = h
	}
	return e
}

// NewFromELF builds an Emulator from a loaded ELF program: installs its
// segments, sets up a guarded stack of stackSize bytes, points the stack
// and frame pointers at its top, and installs a two-instruction boot shim
// (JAL to the entry point, followed by EBREAK) so that the entry point
// returning normally halts the run instead of running off the end of
// memory.
func NewFromELF(prog *loader.Program, stackSize uint32, opts ...Option) (*Emulator, error) {
	regs := regfile.New()
	memory := mem.New()

	if err := memory.FromELF(prog); err != nil {
		return nil, err
	}
	sp, err := memory.SetUpStack(stackSize)
	if err != nil {
		return nil, err
	}
	regs.Set(2, sp) // x2 = sp
	regs.Set(8, sp) // x8 = s0/fp

	e := newBareEmulator(regs, memory, opts)

	shimBase := memory.PushSegment(8, mem.R|mem.W|mem.X, 4)
	memory.WriteRaw(shimBase, bootShim(prog.EntryPoint, shimBase))
	e.pc = shimBase

	e.logger.V(0).Info("emulator constructed from ELF", "entry", prog.EntryPoint, "shim", shimBase, "sp", sp)
	return e, nil
}

// bootShim encodes the two-instruction stub: JAL ra, entry; EBREAK.
func bootShim(entry, shimBase uint32) []byte {
	jal := encodeJAL(shimEntryReg, int32(entry)-int32(shimBase))
	ebreak := encodeEBREAK()
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:4], jal)
	binary.LittleEndian.PutUint32(buf[4:8], ebreak)
	return buf
}

func encodeJAL(rd uint8, offset int32) uint32 {
	u := uint32(offset)
	b20 := (u >> 20) & 1
	b19_12 := (u >> 12) & 0xFF
	b11 := (u >> 11) & 1
	b10_1 := (u >> 1) & 0x3FF
	imm := b20<<31 | b10_1<<21 | b11<<20 | b19_12<<12
	return imm | uint32(rd)<<7 | 0b1101111
}

func encodeEBREAK() uint32 {
	return uint32(1)<<20 | 0b1110011
}

// NewFromParts reconstructs an Emulator from separately-dumped register
// and memory snapshots plus an explicit starting PC, supporting the CLI's
// --imem/--iregs/--pc combination as an alternative to a combined
// --istate snapshot.
func NewFromParts(regsR, memR io.Reader, pc uint32, opts ...Option) (*Emulator, error) {
	if pc%4 != 0 {
		return nil, simerr.At(simerr.PCMisaligned, pc, "starting PC is not 4-byte aligned")
	}

	regs := regfile.New()
	if err := regs.FromBstate(regsR); err != nil {
		return nil, err
	}
	memory := mem.New()
	if err := memory.FromBstate(memR); err != nil {
		return nil, err
	}

	e := newBareEmulator(regs, memory, opts)
	e.pc = pc
	return e, nil
}

// NewFromBstate reconstructs an Emulator from a binary state snapshot:
// the model signature, the saved PC, the register-file snapshot, and the
// memory snapshot, read back to back from r.
func NewFromBstate(r io.Reader, opts ...Option) (*Emulator, error) {
	sig := make([]byte, len(modelSignature))
	if _, err := io.ReadFull(r, sig); err != nil {
		return nil, simerr.Wrap(simerr.IOFailure, "reading model snapshot signature", err)
	}
	if string(sig) != modelSignature {
		return nil, simerr.New(simerr.SignatureMismatch, "model snapshot signature mismatch")
	}

	var pcBuf [4]byte
	if _, err := io.ReadFull(r, pcBuf[:]); err != nil {
		return nil, simerr.Wrap(simerr.IOFailure, "reading saved PC", err)
	}
	pc := binary.LittleEndian.Uint32(pcBuf[:])
	if pc%4 != 0 {
		return nil, simerr.At(simerr.PCMisaligned, pc, "saved PC is not 4-byte aligned")
	}

	regs := regfile.New()
	if err := regs.FromBstate(r); err != nil {
		return nil, err
	}
	memory := mem.New()
	if err := memory.FromBstate(r); err != nil {
		return nil, err
	}

	e := newBareEmulator(regs, memory, opts)
	e.pc = pc
	return e, nil
}

// BinaryDump writes a full model snapshot: signature, PC, register file,
// then memory.
func (e *Emulator) BinaryDump(w io.Writer) error {
	if _, err := w.Write([]byte(modelSignature)); err != nil {
		return simerr.Wrap(simerr.IOFailure, "writing model snapshot signature", err)
	}
	var pcBuf [4]byte
	binary.LittleEndian.PutUint32(pcBuf[:], e.pc)
	if _, err := w.Write(pcBuf[:]); err != nil {
		return simerr.Wrap(simerr.IOFailure, "writing saved PC", err)
	}
	if err := e.regs.BinaryDump(w); err != nil {
		return err
	}
	return e.memory.BinaryDump(w)
}

// DumpRegs writes a standalone register-file snapshot, for the CLI's
// --oregs output.
func (e *Emulator) DumpRegs(w io.Writer) error { return e.regs.BinaryDump(w) }

// DumpMemory writes a standalone memory snapshot, for the CLI's --omem
// output.
func (e *Emulator) DumpMemory(w io.Writer) error { return e.memory.BinaryDump(w) }

// RegFile returns the emulator's register file.
func (e *Emulator) RegFile() *regfile.RegFile { return e.regs }

// Memory returns the emulator's memory.
func (e *Emulator) Memory() *mem.Memory { return e.memory }

// PC returns the current program counter.
func (e *Emulator) PC() uint32 { return e.pc }

// InstructionCount returns the number of instructions executed so far.
func (e *Emulator) InstructionCount() uint64 { return e.instructionCount }

func (e *Emulator) setPC(target uint32) error {
	if target%4 != 0 {
		return simerr.At(simerr.PCMisaligned, target, "branch/jump target is not 4-byte aligned")
	}
	e.pc = target
	return nil
}

// Step fetches, decodes, and executes a single instruction, advancing the
// program counter unless the instruction set it directly.
func (e *Emulator) Step() StepResult {
	word, err := e.memory.FetchWord(e.pc)
	if err != nil {
		return StepResult{Err: err}
	}

	inst := e.decoder.Decode(word)
	if inst.Op == insts.OpUndefined {
		e.logger.V(0).Info("halted on undefined instruction", "pc", e.pc, "word", word)
		return StepResult{Exited: true, ExitCode: 0}
	}
	e.logger.V(1).Info("step", "pc", e.pc, "word", word, "mnemonic", inst.Mnemonic,
		"rd", inst.Rd, "rs1", inst.Rs1, "rs2", inst.Rs2, "imm", inst.Imm)

	result, pcSet := e.execute(inst)
	if result.Err == nil && !result.Exited && !pcSet {
		if err := e.setPC(e.pc + 4); err != nil {
			result.Err = err
		}
	}

	e.instructionCount++
	if e.onStep != nil && result.Err == nil {
		if err := e.onStep(e, e.instructionCount); err != nil {
			result.Err = err
		}
	}
	return result
}

// Run executes instructions until the program halts (via ebreak or the
// exit syscall) or an error occurs. It returns the process exit code, or
// -1 alongside a non-nil error.
func (e *Emulator) Run() (int32, error) {
	for {
		result := e.Step()
		if result.Err != nil {
			return -1, result.Err
		}
		if result.Exited {
			return result.ExitCode, nil
		}
	}
}

// execute dispatches a decoded instruction to its execution unit. pcSet
// reports whether the instruction already updated e.pc (branch-family
// instructions and those that halt execution).
func (e *Emulator) execute(inst *insts.Instruction) (StepResult, bool) {
	switch inst.Op {
	case insts.OpADD, insts.OpSUB, insts.OpSLL, insts.OpSLT, insts.OpSLTU,
		insts.OpXOR, insts.OpSRL, insts.OpSRA, insts.OpOR, insts.OpAND:
		e.alu.ExecuteR(inst)
		return StepResult{}, false

	case insts.OpADDI, insts.OpSLTI, insts.OpSLTIU, insts.OpXORI, insts.OpORI,
		insts.OpANDI, insts.OpSLLI, insts.OpSRLI, insts.OpSRAI:
		e.alu.ExecuteI(inst)
		return StepResult{}, false

	case insts.OpLB, insts.OpLH, insts.OpLW, insts.OpLBU, insts.OpLHU:
		if err := e.lsu.Load(inst); err != nil {
			return StepResult{Err: err}, true
		}
		return StepResult{}, false

	case insts.OpSB, insts.OpSH, insts.OpSW:
		if err := e.lsu.Store(inst); err != nil {
			return StepResult{Err: err}, true
		}
		return StepResult{}, false

	case insts.OpBEQ, insts.OpBNE, insts.OpBLT, insts.OpBGE, insts.OpBLTU, insts.OpBGEU:
		if e.branchUnit.Taken(inst) {
			if err := e.setPC(uint32(int32(e.pc) + inst.Imm)); err != nil {
				return StepResult{Err: err}, true
			}
			return StepResult{}, true
		}
		return StepResult{}, false

	case insts.OpLUI:
		e.regs.Set(inst.Rd, uint32(inst.Imm))
		return StepResult{}, false

	case insts.OpAUIPC:
		e.regs.Set(inst.Rd, e.pc+uint32(inst.Imm))
		return StepResult{}, false

	case insts.OpJAL:
		link := e.pc + 4
		if err := e.setPC(uint32(int32(e.pc) + inst.Imm)); err != nil {
			return StepResult{Err: err}, true
		}
		e.regs.Set(inst.Rd, link)
		return StepResult{}, true

	case insts.OpJALR:
		target := (e.regs.Get(inst.Rs1) + uint32(inst.Imm)) &^ 1
		link := e.pc + 4
		if err := e.setPC(target); err != nil {
			return StepResult{Err: err}, true
		}
		e.regs.Set(inst.Rd, link)
		return StepResult{}, true

	case insts.OpECALL:
		res, err := e.syscallHandler.Handle()
		if err != nil {
			return StepResult{Err: err}, true
		}
		if res.Exited {
			return StepResult{Exited: true, ExitCode: res.ExitCode}, true
		}
		return StepResult{}, false

	case insts.OpEBREAK:
		return StepResult{Exited: true, ExitCode: 0}, true

	default:
		return StepResult{Err: simerr.At(simerr.DecodeUndefined, e.pc, "recognized format carries no executable operation")}, true
	}
}
