// Package regfile implements the 32-entry RV32I general-purpose register
// file, with X0 hard-wired to zero and binary snapshot I/O.
package regfile

import (
	"encoding/binary"
	"io"

	"rv32i/simerr"
)

const numRegs = 32

const signature = "RV32I_REG_STATE\x00"

// RegFile holds the 32 general-purpose registers x0..x31.
type RegFile struct {
	regs [numRegs]uint32
}

// New returns a RegFile with all registers, including x0, at zero.
func New() *RegFile {
	return &RegFile{}
}

// Set writes v into register r. Writes to x0 are silently discarded.
func (f *RegFile) Set(r uint8, v uint32) {
	if r == 0 {
		return
	}
	if int(r) >= numRegs {
		return
	}
	f.regs[r] = v
}

// Get reads register r. x0 always reads as zero.
func (f *RegFile) Get(r uint8) uint32 {
	if int(r) >= numRegs {
		return 0
	}
	return f.regs[r]
}

// Valid reports whether the invariant "x0 reads as zero" holds.
func (f *RegFile) Valid() bool {
	return f.regs[0] == 0
}

// FromBstate reads the "RV32I_REG_STATE\0" signature followed by 32
// little-endian 32-bit words, and validates that word 0 is zero.
func (f *RegFile) FromBstate(r io.Reader) error {
	sig := make([]byte, len(signature))
	if _, err := io.ReadFull(r, sig); err != nil {
		return simerr.Wrap(simerr.IOFailure, "reading register snapshot signature", err)
	}
	if string(sig) != signature {
		return simerr.New(simerr.SignatureMismatch, "register snapshot signature mismatch")
	}

	raw := make([]byte, numRegs*4)
	if _, err := io.ReadFull(r, raw); err != nil {
		return simerr.Wrap(simerr.IOFailure, "reading register snapshot image", err)
	}

	var regs [numRegs]uint32
	for i := 0; i < numRegs; i++ {
		regs[i] = binary.LittleEndian.Uint32(raw[i*4 : i*4+4])
	}
	f.regs = regs

	if !f.Valid() {
		return simerr.New(simerr.SignatureMismatch, "register snapshot violates x0==0 invariant")
	}
	return nil
}

// BinaryDump writes the "RV32I_REG_STATE\0" signature followed by 32
// little-endian 32-bit words.
func (f *RegFile) BinaryDump(w io.Writer) error {
	if _, err := w.Write([]byte(signature)); err != nil {
		return simerr.Wrap(simerr.IOFailure, "writing register snapshot signature", err)
	}

	raw := make([]byte, numRegs*4)
	for i := 0; i < numRegs; i++ {
		binary.LittleEndian.PutUint32(raw[i*4:i*4+4], f.regs[i])
	}
	if _, err := w.Write(raw); err != nil {
		return simerr.Wrap(simerr.IOFailure, "writing register snapshot image", err)
	}
	return nil
}
