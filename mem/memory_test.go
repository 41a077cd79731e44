package mem_test

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"rv32i/loader"
	"rv32i/mem"
)

var _ = Describe("Memory", func() {
	var m *mem.Memory

	BeforeEach(func() {
		m = mem.New()
	})

	Describe("permission checks", func() {
		It("denies any access to an address covered by no segment", func() {
			_, err := m.ReadByte(0)
			Expect(err).To(HaveOccurred())
		})

		It("denies a write to a read-only segment", func() {
			base := m.PushSegment(4, mem.R, 1)
			err := m.WriteByte(base, 1)
			Expect(err).To(HaveOccurred())
		})

		It("denies a read from an execute-only segment", func() {
			base := m.PushSegment(4, mem.X, 1)
			_, err := m.ReadByte(base)
			Expect(err).To(HaveOccurred())
		})

		It("allows a fetch from an execute-only segment", func() {
			base := m.PushSegment(4, mem.X, 1)
			_, err := m.FetchWord(base)
			Expect(err).NotTo(HaveOccurred())
		})

		It("allows a read/write round trip on an RW segment", func() {
			base := m.PushSegment(4, mem.R|mem.W, 4)
			Expect(m.WriteWord(base, 0xCAFEBABE)).To(Succeed())
			v, err := m.ReadWord(base)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal(uint32(0xCAFEBABE)))
		})
	})

	Describe("alignment checks", func() {
		It("rejects a half-word access at an odd address", func() {
			base := m.PushSegment(8, mem.R|mem.W, 4)
			_, err := m.ReadHalf(base + 1)
			Expect(err).To(HaveOccurred())
		})

		It("rejects a word access not aligned to 4 bytes", func() {
			base := m.PushSegment(8, mem.R|mem.W, 4)
			_, err := m.ReadWord(base + 2)
			Expect(err).To(HaveOccurred())
		})

		It("allows byte access at any address within the segment", func() {
			base := m.PushSegment(8, mem.R|mem.W, 4)
			_, err := m.ReadByte(base + 1)
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Describe("bounds checks", func() {
		It("rejects an aligned access whose width runs past the backing storage", func() {
			// Segment size (6) is not a multiple of the word width, so a
			// word read at its last aligned offset reaches past the
			// backing storage even though the start address is in range.
			base := m.PushSegment(6, mem.R|mem.W, 4)
			_, err := m.ReadWord(base + 4)
			Expect(err).To(HaveOccurred())
		})

		It("rejects a multi-byte access that would bleed into a neighboring segment", func() {
			// A 2-byte RW segment immediately followed by a 4-byte
			// read-only one: a word write at the RW segment's start must
			// not be allowed to spill its top two bytes into the
			// read-only segment next door.
			rw := m.PushSegment(2, mem.R|mem.W, 1)
			m.PushSegment(4, mem.R, 1)

			err := m.WriteWord(rw, 0xAABBCCDD)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("FromELF", func() {
		It("upgrades a write-only segment to also carry read rights", func() {
			prog := &loader.Program{
				EntryPoint: 0,
				Segments: []loader.Segment{
					{VirtAddr: 0, Data: []byte{1, 2, 3, 4}, MemSize: 4, Flags: loader.FlagWrite, Align: 4},
				},
			}
			Expect(m.FromELF(prog)).To(Succeed())

			segs := m.Segments()
			Expect(segs).To(HaveLen(1))
			Expect(segs[0].Rights.Has(mem.R)).To(BeTrue())
			Expect(segs[0].Rights.Has(mem.W)).To(BeTrue())
		})

		It("zero-fills the memsize tail beyond the file's data (.bss)", func() {
			prog := &loader.Program{
				EntryPoint: 0,
				Segments: []loader.Segment{
					{VirtAddr: 0, Data: []byte{0xFF}, MemSize: 4, Flags: loader.FlagRead | loader.FlagWrite, Align: 4},
				},
			}
			Expect(m.FromELF(prog)).To(Succeed())

			v, err := m.ReadByte(3)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal(uint8(0)))
		})
	})

	Describe("SetUpStack", func() {
		It("installs top canary, RW stack, and bottom canary segments with no access to the canaries", func() {
			sp, err := m.SetUpStack(256)
			Expect(err).NotTo(HaveOccurred())
			Expect(sp).NotTo(Equal(uint32(0)))

			segs := m.Segments()
			Expect(segs).To(HaveLen(3))
			Expect(segs[0].Rights).To(Equal(mem.Rights(0)))
			Expect(segs[1].Rights.Has(mem.R | mem.W)).To(BeTrue())
			Expect(segs[2].Rights).To(Equal(mem.Rights(0)))

			_, err = m.ReadByte(segs[0].Base)
			Expect(err).To(HaveOccurred())
			_, err = m.ReadByte(segs[2].Base)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("bstate snapshot round trip", func() {
		It("dumps and reloads an identical image", func() {
			base := m.PushSegment(4, mem.R|mem.W, 4)
			Expect(m.WriteWord(base, 0x11223344)).To(Succeed())

			var buf bytes.Buffer
			Expect(m.BinaryDump(&buf)).To(Succeed())

			loaded := mem.New()
			Expect(loaded.FromBstate(&buf)).To(Succeed())

			v, err := loaded.ReadWord(base)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal(uint32(0x11223344)))
		})

		It("rejects a snapshot with the wrong signature", func() {
			var buf bytes.Buffer
			buf.WriteString("NOT_A_VALID_SIG\x00")
			buf.Write(make([]byte, mem.DefaultAddrSpace))

			loaded := mem.New()
			err := loaded.FromBstate(&buf)
			Expect(err).To(HaveOccurred())
		})
	})
})
