package emu

import (
	"fmt"
	"io"

	"github.com/go-logr/logr"

	"rv32i/mem"
	"rv32i/regfile"
	"rv32i/simerr"
)

// RV32I/Linux syscall numbers recognized by the host interface.
const (
	SyscallRead  uint32 = 63
	SyscallWrite uint32 = 64
	SyscallExit  uint32 = 93
)

// maxSyscallTransfer bounds a single read/write's byte count. A guest
// program supplies count directly from a register; without a cap a
// hostile or buggy value (e.g. 0xFFFFFFFF) would drive a multi-gigabyte
// host-side allocation before any memory check on the buffer runs.
const maxSyscallTransfer = 1 << 20

// SyscallResult reports the outcome of a single ecall.
type SyscallResult struct {
	Exited   bool
	ExitCode int32
}

// SyscallHandler executes the ecall indicated by the current register
// file state, following the a7=number, a0-a5=args, a0=return convention.
type SyscallHandler interface {
	Handle() (SyscallResult, error)
}

// DefaultSyscallHandler implements read, write, and exit against real
// stdio and the emulator's guest memory.
type DefaultSyscallHandler struct {
	regs   *regfile.RegFile
	memory *mem.Memory
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	logger logr.Logger
}

// NewDefaultSyscallHandler creates a syscall handler wired to the given
// register file, memory, output streams, and logger. Stdin is nil by
// default; set it with SetStdin to support the read syscall.
func NewDefaultSyscallHandler(regs *regfile.RegFile, memory *mem.Memory, stdout, stderr io.Writer, logger logr.Logger) *DefaultSyscallHandler {
	return &DefaultSyscallHandler{regs: regs, memory: memory, stdout: stdout, stderr: stderr, logger: logger}
}

// SetStdin sets the reader backing the read syscall.
func (h *DefaultSyscallHandler) SetStdin(stdin io.Reader) {
	h.stdin = stdin
}

func (h *DefaultSyscallHandler) a(n uint8) uint32 { return h.regs.Get(10 + n) }

// Handle dispatches on a7 (x17).
func (h *DefaultSyscallHandler) Handle() (SyscallResult, error) {
	num := h.regs.Get(17)
	h.logger.V(1).Info("syscall dispatched", "number", num)

	switch num {
	case SyscallRead:
		return h.handleRead()
	case SyscallWrite:
		return h.handleWrite()
	case SyscallExit:
		return SyscallResult{Exited: true, ExitCode: int32(h.a(0))}, nil
	default:
		h.logger.Error(simerr.New(simerr.UnsupportedSyscall, fmt.Sprintf("syscall number %d is not implemented", num)),
			"ignoring unsupported syscall", "number", num)
		return SyscallResult{}, nil
	}
}

func (h *DefaultSyscallHandler) handleRead() (SyscallResult, error) {
	fd, bufPtr, count := h.a(0), h.a(1), h.a(2)
	if fd != 0 {
		h.regs.Set(10, ^uint32(0)) // -1: bad file descriptor
		return SyscallResult{}, nil
	}
	if count > maxSyscallTransfer {
		count = maxSyscallTransfer
	}
	if h.stdin == nil || count == 0 {
		h.regs.Set(10, 0)
		return SyscallResult{}, nil
	}

	buf := make([]byte, count)
	n, err := h.stdin.Read(buf)
	if err != nil && n == 0 {
		h.regs.Set(10, 0)
		return SyscallResult{}, nil
	}
	for i := 0; i < n; i++ {
		if werr := h.memory.WriteByte(bufPtr+uint32(i), buf[i]); werr != nil {
			return SyscallResult{}, werr
		}
	}
	h.regs.Set(10, uint32(n))
	return SyscallResult{}, nil
}

func (h *DefaultSyscallHandler) handleWrite() (SyscallResult, error) {
	fd, bufPtr, count := h.a(0), h.a(1), h.a(2)

	var w io.Writer
	switch fd {
	case 1:
		w = h.stdout
	case 2:
		w = h.stderr
	default:
		h.regs.Set(10, ^uint32(0))
		return SyscallResult{}, nil
	}

	if count > maxSyscallTransfer {
		count = maxSyscallTransfer
	}

	buf := make([]byte, count)
	for i := uint32(0); i < count; i++ {
		b, err := h.memory.ReadByte(bufPtr + i)
		if err != nil {
			return SyscallResult{}, err
		}
		buf[i] = b
	}

	n, err := w.Write(buf)
	if err != nil {
		return SyscallResult{}, simerr.Wrap(simerr.IOFailure, "write syscall failed", err)
	}
	h.regs.Set(10, uint32(n))
	return SyscallResult{}, nil
}
