// Package loader provides ELF binary loading for RV32I executables. It is
// consumed only as an iterator over program-header segments; everything
// else about the container format is the standard library's concern.
package loader

import (
	"debug/elf"
	"fmt"
	"io"

	"rv32i/simerr"
)

// SegmentFlags represents memory protection flags for a segment.
type SegmentFlags uint32

const (
	// FlagExecute indicates the segment is executable.
	FlagExecute SegmentFlags = 1 << iota
	// FlagWrite indicates the segment is writable.
	FlagWrite
	// FlagRead indicates the segment is readable.
	FlagRead
)

// Segment represents a loadable segment from an ELF binary.
type Segment struct {
	// VirtAddr is the virtual address where this segment should be loaded.
	VirtAddr uint32
	// Data contains the segment contents from the file (Filesz bytes).
	Data []byte
	// MemSize is the size in memory (may be larger than len(Data) for .bss).
	MemSize uint32
	// Flags contains the segment protection flags, straight from the
	// program header — the R-upgrade-on-W workaround lives in mem, not here.
	Flags SegmentFlags
	// Align is the program header's required alignment.
	Align uint32
}

// Program represents a loaded ELF program ready for execution.
type Program struct {
	// EntryPoint is the virtual address where execution should begin.
	EntryPoint uint32
	// Segments contains all loadable segments from the ELF file, in
	// program-header order.
	Segments []Segment
}

// Load parses an RV32I ELF binary and returns a Program ready for loading
// into the emulator's memory. Only PT_LOAD headers are consumed; every
// other header kind is ignored.
func Load(path string) (*Program, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, simerr.Wrap(simerr.IOFailure, "opening ELF file", err)
	}
	defer func() { _ = f.Close() }()

	if f.Class != elf.ELFCLASS32 {
		return nil, simerr.New(simerr.ELFClassOrEndianness, "ELF file is not 32-bit (ELFCLASS32)")
	}
	if f.Data != elf.ELFDATA2LSB {
		return nil, simerr.New(simerr.ELFClassOrEndianness, "ELF file is not little-endian (ELFDATA2LSB)")
	}

	prog := &Program{
		EntryPoint: uint32(f.Entry),
	}

	for _, phdr := range f.Progs {
		if phdr.Type != elf.PT_LOAD {
			continue
		}

		data := make([]byte, phdr.Filesz)
		if phdr.Filesz > 0 {
			n, err := phdr.ReadAt(data, 0)
			if err != nil && err != io.EOF {
				return nil, simerr.Wrap(simerr.IOFailure, fmt.Sprintf("reading segment at 0x%x", phdr.Vaddr), err)
			}
			if uint64(n) != phdr.Filesz {
				return nil, simerr.New(simerr.IOFailure, fmt.Sprintf("short read for segment at 0x%x: got %d bytes, expected %d", phdr.Vaddr, n, phdr.Filesz))
			}
		}

		var flags SegmentFlags
		if phdr.Flags&elf.PF_X != 0 {
			flags |= FlagExecute
		}
		if phdr.Flags&elf.PF_W != 0 {
			flags |= FlagWrite
		}
		if phdr.Flags&elf.PF_R != 0 {
			flags |= FlagRead
		}

		prog.Segments = append(prog.Segments, Segment{
			VirtAddr: uint32(phdr.Vaddr),
			Data:     data,
			MemSize:  uint32(phdr.Memsz),
			Flags:    flags,
			Align:    uint32(phdr.Align),
		})
	}

	return prog, nil
}
