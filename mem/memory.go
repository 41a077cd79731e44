// Package mem implements the guarded, byte-addressable, segment-backed
// memory model: a dense byte vector indexed directly by virtual address,
// plus an ordered list of segment descriptors carrying R/W/X permissions.
package mem

import (
	"encoding/binary"
	"io"

	"rv32i/loader"
	"rv32i/simerr"
)

// DefaultAddrSpace is the default address-space size used for bstate
// snapshots that carry no segment information of their own.
const DefaultAddrSpace = 1 << 16

// DefaultStackSize is the stack size installed by SetUpStack when the CLI
// does not override it via configuration.
const DefaultStackSize = 8 * 1024

// StackCanaryByte fills the zero-rights guard segments around the stack.
const StackCanaryByte = 0xCC

// ShimFillByte fills a freshly pushed code segment before its real
// instructions are written into it.
const ShimFillByte = 0x00

const memSignature = "RV32I_MEM_STATE\x00"

// Memory is the model's dense address space plus its segment table.
type Memory struct {
	bytes    []byte
	segments []Segment
}

// New returns an empty Memory with no segments and no backing bytes.
func New() *Memory {
	return &Memory{}
}

// Segments returns the segment table in the order segments were added.
func (m *Memory) Segments() []Segment {
	return m.segments
}

// Size returns the current length of the backing byte vector.
func (m *Memory) Size() uint32 {
	return uint32(len(m.bytes))
}

func (m *Memory) growTo(size uint32) {
	if uint32(len(m.bytes)) >= size {
		return
	}
	grown := make([]byte, size)
	copy(grown, m.bytes)
	m.bytes = grown
}

// find returns the first segment containing addr, and whether one was found.
// Lookup is a linear scan over the ordered segment list, per spec.
func (m *Memory) find(addr uint32) (Segment, bool) {
	for _, s := range m.segments {
		if s.Contains(addr) {
			return s, true
		}
	}
	return Segment{}, false
}

// CheckRights reports whether the segment containing addr grants every
// right in required. An address covered by no segment fails the check.
func (m *Memory) CheckRights(addr uint32, required Rights) bool {
	seg, ok := m.find(addr)
	if !ok {
		return false
	}
	return seg.Rights.Has(required)
}

func (m *Memory) checkAccess(addr uint32, width uint32, required Rights) error {
	seg, ok := m.find(addr)
	if !ok {
		return simerr.At(simerr.MemoryPermissionDenied, addr, "no segment covers this address")
	}
	if !seg.Rights.Has(required) {
		return simerr.At(simerr.MemoryPermissionDenied, addr, "segment does not grant required rights")
	}
	if width > 1 && addr%width != 0 {
		return simerr.At(simerr.MemoryMisaligned, addr, "address not aligned to access width")
	}
	// The whole access must stay inside the segment that granted rights at
	// addr — a multi-byte access may not bleed into a neighboring segment
	// with different (or no) rights.
	if uint64(addr)+uint64(width) > uint64(seg.End()) {
		return simerr.At(simerr.MemoryOutOfBounds, addr, "access extends beyond its segment")
	}
	if uint64(addr)+uint64(width) > uint64(len(m.bytes)) {
		return simerr.At(simerr.MemoryOutOfBounds, addr, "access extends beyond backing storage")
	}
	return nil
}

// ReadByte reads one byte, requiring R on the covering segment.
func (m *Memory) ReadByte(addr uint32) (uint8, error) {
	if err := m.checkAccess(addr, 1, R); err != nil {
		return 0, err
	}
	return m.bytes[addr], nil
}

// ReadHalf reads a little-endian 16-bit half-word, requiring R.
func (m *Memory) ReadHalf(addr uint32) (uint16, error) {
	if err := m.checkAccess(addr, 2, R); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(m.bytes[addr : addr+2]), nil
}

// ReadWord reads a little-endian 32-bit word, requiring R.
func (m *Memory) ReadWord(addr uint32) (uint32, error) {
	if err := m.checkAccess(addr, 4, R); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(m.bytes[addr : addr+4]), nil
}

// FetchWord reads a little-endian 32-bit word for instruction fetch,
// requiring X instead of R on the covering segment.
func (m *Memory) FetchWord(addr uint32) (uint32, error) {
	if err := m.checkAccess(addr, 4, X); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(m.bytes[addr : addr+4]), nil
}

// WriteByte writes one byte, requiring W on the covering segment.
func (m *Memory) WriteByte(addr uint32, v uint8) error {
	if err := m.checkAccess(addr, 1, W); err != nil {
		return err
	}
	m.bytes[addr] = v
	return nil
}

// WriteHalf writes a little-endian 16-bit half-word, requiring W.
func (m *Memory) WriteHalf(addr uint32, v uint16) error {
	if err := m.checkAccess(addr, 2, W); err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(m.bytes[addr:addr+2], v)
	return nil
}

// WriteWord writes a little-endian 32-bit word, requiring W.
func (m *Memory) WriteWord(addr uint32, v uint32) error {
	if err := m.checkAccess(addr, 4, W); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(m.bytes[addr:addr+4], v)
	return nil
}

// Set fills n bytes starting at addr with b, subject to the same write
// checks as WriteByte, applied byte by byte.
func (m *Memory) Set(addr uint32, b byte, n int) error {
	for i := 0; i < n; i++ {
		if err := m.WriteByte(addr+uint32(i), b); err != nil {
			return err
		}
	}
	return nil
}

// PushSegment extends the backing vector with align padding, appends a new
// segment at the current (aligned) tail filled with ShimFillByte, and
// returns the segment's base address.
func (m *Memory) PushSegment(size uint32, rights Rights, align uint32) uint32 {
	base := alignUp(uint32(len(m.bytes)), align)
	m.growTo(base + size)
	for i := base; i < base+size; i++ {
		m.bytes[i] = ShimFillByte
	}
	m.segments = append(m.segments, Segment{Base: base, Size: size, Rights: rights, Align: align})
	return base
}

// WriteRaw copies data directly into the backing vector starting at addr,
// bypassing the write-permission check. Used to stamp the boot shim's
// instructions into a segment that carries no W right of its own; addr
// and len(data) must fall within a region already grown by PushSegment
// or PushSegment-alike calls.
func (m *Memory) WriteRaw(addr uint32, data []byte) {
	copy(m.bytes[addr:addr+uint32(len(data))], data)
}

// SetUpStack appends three adjacent segments — a zero-rights canary, an RW
// stack region, and a second zero-rights canary — and returns the initial
// stack-pointer value (top-of-stack minus 4).
func (m *Memory) SetUpStack(stackSize uint32) (uint32, error) {
	const canarySize = 16
	const align = 16

	topCanaryBase := alignUp(uint32(len(m.bytes)), align)
	m.growTo(topCanaryBase + canarySize)
	for i := topCanaryBase; i < topCanaryBase+canarySize; i++ {
		m.bytes[i] = StackCanaryByte
	}
	m.segments = append(m.segments, Segment{Base: topCanaryBase, Size: canarySize, Rights: 0, Align: align})

	stackBase := alignUp(topCanaryBase+canarySize, align)
	m.growTo(stackBase + stackSize)
	m.segments = append(m.segments, Segment{Base: stackBase, Size: stackSize, Rights: R | W, Align: align})

	bottomCanaryBase := alignUp(stackBase+stackSize, align)
	m.growTo(bottomCanaryBase + canarySize)
	for i := bottomCanaryBase; i < bottomCanaryBase+canarySize; i++ {
		m.bytes[i] = StackCanaryByte
	}
	m.segments = append(m.segments, Segment{Base: bottomCanaryBase, Size: canarySize, Rights: 0, Align: align})

	top := stackBase + stackSize
	if top < 4 {
		return 0, simerr.New(simerr.MemoryOutOfBounds, "stack too small to hold an initial frame")
	}
	return top - 4, nil
}

// FromELF installs one segment per loadable program-header entry. File
// bytes are copied to their virtual address, the memsz-filesz tail (the
// .bss region) is left zero, and a header observed with W but not R is
// upgraded to carry R as well — a compatibility workaround for upstream
// ELF producers that sometimes emit WX on writable data.
func (m *Memory) FromELF(prog *loader.Program) error {
	for _, seg := range prog.Segments {
		end := seg.VirtAddr + seg.MemSize
		m.growTo(end)
		copy(m.bytes[seg.VirtAddr:seg.VirtAddr+uint32(len(seg.Data))], seg.Data)

		rights := elfRights(seg.Flags)
		if rights.Has(W) && !rights.Has(R) {
			rights |= R
		}

		align := seg.Align
		if align == 0 {
			align = 1
		}
		m.segments = append(m.segments, Segment{Base: seg.VirtAddr, Size: seg.MemSize, Rights: rights, Align: align})
	}
	return nil
}

func elfRights(flags loader.SegmentFlags) Rights {
	var r Rights
	if flags&loader.FlagRead != 0 {
		r |= R
	}
	if flags&loader.FlagWrite != 0 {
		r |= W
	}
	if flags&loader.FlagExecute != 0 {
		r |= X
	}
	return r
}

// FromBstate reads the "RV32I_MEM_STATE\0" signature followed by a raw
// byte image, pads it to DefaultAddrSpace, and installs a single RWX
// segment covering the whole image. bstate memory is single-segment
// because it is used mainly for focused testing and debugging, not for
// reproducing an ELF program's original segmentation.
func (m *Memory) FromBstate(r io.Reader) error {
	sig := make([]byte, len(memSignature))
	if _, err := io.ReadFull(r, sig); err != nil {
		return simerr.Wrap(simerr.IOFailure, "reading memory snapshot signature", err)
	}
	if string(sig) != memSignature {
		return simerr.New(simerr.SignatureMismatch, "memory snapshot signature mismatch")
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return simerr.Wrap(simerr.IOFailure, "reading memory snapshot image", err)
	}

	size := uint32(len(data))
	if size < DefaultAddrSpace {
		size = DefaultAddrSpace
	}
	m.bytes = make([]byte, size)
	copy(m.bytes, data)
	m.segments = []Segment{{Base: 0, Size: size, Rights: R | W | X, Align: 1}}
	return nil
}

// BinaryDump writes the "RV32I_MEM_STATE\0" signature followed by the raw
// bytes, zero-padded to at least DefaultAddrSpace.
func (m *Memory) BinaryDump(w io.Writer) error {
	if _, err := w.Write([]byte(memSignature)); err != nil {
		return simerr.Wrap(simerr.IOFailure, "writing memory snapshot signature", err)
	}

	size := uint32(len(m.bytes))
	if size < DefaultAddrSpace {
		size = DefaultAddrSpace
	}
	image := make([]byte, size)
	copy(image, m.bytes)

	if _, err := w.Write(image); err != nil {
		return simerr.Wrap(simerr.IOFailure, "writing memory snapshot image", err)
	}
	return nil
}
