package loader_test

import (
	"encoding/binary"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rv32ooo/loader"
)

var _ = Describe("ELF Loader", func() {
	var tempDir string

	BeforeEach(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "elf-loader-test")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		_ = os.RemoveAll(tempDir)
	})

	Describe("Load", func() {
		Context("with a valid RV32 ELF binary", func() {
			var elfPath string

			BeforeEach(func() {
				elfPath = filepath.Join(tempDir, "test.elf")
				createMinimalRV32ELF(elfPath, 0x80000000, 0x80000080, []byte{
					// addi a0, zero, 42; jalr zero, ra, 0
					0x93, 0x05, 0xa0, 0x02,
					0x67, 0x80, 0x00, 0x00,
				})
			})

			It("should load without error", func() {
				prog, err := loader.Load(elfPath)
				Expect(err).NotTo(HaveOccurred())
				Expect(prog).NotTo(BeNil())
			})

			It("should extract the correct entry point", func() {
				prog, err := loader.Load(elfPath)
				Expect(err).NotTo(HaveOccurred())
				Expect(prog.EntryPoint).To(Equal(uint32(0x80000080)))
			})

			It("should load segments into memory", func() {
				prog, err := loader.Load(elfPath)
				Expect(err).NotTo(HaveOccurred())
				Expect(len(prog.Segments)).To(BeNumerically(">", 0))
			})

			It("should set up initial stack pointer", func() {
				prog, err := loader.Load(elfPath)
				Expect(err).NotTo(HaveOccurred())
				Expect(prog.InitialSP).To(BeNumerically(">", 0))
			})
		})

		Context("with segment data", func() {
			It("should correctly load segment contents", func() {
				elfPath := filepath.Join(tempDir, "code.elf")
				codeData := []byte{0x93, 0x05, 0xa0, 0x02, 0x67, 0x80, 0x00, 0x00}
				createMinimalRV32ELF(elfPath, 0x80000000, 0x80000000, codeData)

				prog, err := loader.Load(elfPath)
				Expect(err).NotTo(HaveOccurred())

				var foundSegment *loader.Segment
				for i := range prog.Segments {
					if prog.Segments[i].VirtAddr == 0x80000000 {
						foundSegment = &prog.Segments[i]
						break
					}
				}
				Expect(foundSegment).NotTo(BeNil())
				Expect(foundSegment.Data).To(HaveLen(len(codeData)))
			})
		})

		Context("with an invalid file", func() {
			It("should return error for non-existent file", func() {
				_, err := loader.Load("/nonexistent/path/to/file.elf")
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("failed to open"))
			})

			It("should return error for non-ELF file", func() {
				notElfPath := filepath.Join(tempDir, "not-elf.bin")
				err := os.WriteFile(notElfPath, []byte("not an elf file"), 0644)
				Expect(err).NotTo(HaveOccurred())

				_, err = loader.Load(notElfPath)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("ELF"))
			})

			It("should return error for empty file", func() {
				emptyPath := filepath.Join(tempDir, "empty.elf")
				err := os.WriteFile(emptyPath, []byte{}, 0644)
				Expect(err).NotTo(HaveOccurred())

				_, err = loader.Load(emptyPath)
				Expect(err).To(HaveOccurred())
			})
		})

		Context("with non-RISC-V ELF", func() {
			It("should return error for x86-64 ELF", func() {
				elfPath := filepath.Join(tempDir, "x86.elf")
				createMinimalx86ELF(elfPath)

				_, err := loader.Load(elfPath)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("not a RISC-V"))
			})
		})

		Context("with 64-bit ELF", func() {
			It("should return error for 64-bit ELF", func() {
				elfPath := filepath.Join(tempDir, "elf64.elf")
				createMinimal64BitELF(elfPath)

				_, err := loader.Load(elfPath)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("not a 32-bit"))
			})
		})
	})

	Describe("Program", func() {
		It("should provide iterable segments for loading", func() {
			elfPath := filepath.Join(tempDir, "test.elf")
			codeData := []byte{0x93, 0x05, 0xa0, 0x02, 0x67, 0x80, 0x00, 0x00}
			createMinimalRV32ELF(elfPath, 0x80000000, 0x80000000, codeData)

			prog, err := loader.Load(elfPath)
			Expect(err).NotTo(HaveOccurred())

			totalBytes := uint32(0)
			for _, seg := range prog.Segments {
				totalBytes += seg.MemSize
			}
			Expect(totalBytes).To(BeNumerically(">", 0))
		})
	})

	Describe("Segment", func() {
		It("should have correct virtual address", func() {
			elfPath := filepath.Join(tempDir, "test.elf")
			createMinimalRV32ELF(elfPath, 0x80100000, 0x80100000, []byte{0x00})

			prog, err := loader.Load(elfPath)
			Expect(err).NotTo(HaveOccurred())

			found := false
			for _, seg := range prog.Segments {
				if seg.VirtAddr == 0x80100000 {
					found = true
					break
				}
			}
			Expect(found).To(BeTrue())
		})

		It("should correctly report permissions", func() {
			elfPath := filepath.Join(tempDir, "test.elf")
			createMinimalRV32ELF(elfPath, 0x80000000, 0x80000000, []byte{0x00})

			prog, err := loader.Load(elfPath)
			Expect(err).NotTo(HaveOccurred())

			hasExecutable := false
			for _, seg := range prog.Segments {
				if seg.Flags&loader.SegmentFlagExecute != 0 {
					hasExecutable = true
					break
				}
			}
			Expect(hasExecutable).To(BeTrue())
		})
	})

	Describe("Multi-segment ELFs", func() {
		It("should load multiple PT_LOAD segments", func() {
			elfPath := filepath.Join(tempDir, "multi-segment.elf")
			codeData := []byte{0x93, 0x05, 0xa0, 0x02, 0x67, 0x80, 0x00, 0x00}
			dataData := []byte{0x01, 0x02, 0x03, 0x04}
			createMultiSegmentRV32ELF(elfPath, 0x80000000, 0x80000000, codeData, 0x80100000, dataData)

			prog, err := loader.Load(elfPath)
			Expect(err).NotTo(HaveOccurred())
			Expect(prog.Segments).To(HaveLen(2))

			var codeSeg, dataSeg *loader.Segment
			for i := range prog.Segments {
				if prog.Segments[i].VirtAddr == 0x80000000 {
					codeSeg = &prog.Segments[i]
				}
				if prog.Segments[i].VirtAddr == 0x80100000 {
					dataSeg = &prog.Segments[i]
				}
			}

			Expect(codeSeg).NotTo(BeNil())
			Expect(codeSeg.Data).To(Equal(codeData))
			Expect(codeSeg.Flags & loader.SegmentFlagExecute).NotTo(BeZero())

			Expect(dataSeg).NotTo(BeNil())
			Expect(dataSeg.Data).To(Equal(dataData))
			Expect(dataSeg.Flags & loader.SegmentFlagWrite).NotTo(BeZero())
		})
	})

	Describe("BSS segments", func() {
		It("should handle BSS segments where Memsz > Filesz", func() {
			elfPath := filepath.Join(tempDir, "bss.elf")
			initialData := []byte{0x01, 0x02, 0x03, 0x04}
			memSize := uint32(1024)
			createBSSSegmentELF(elfPath, 0x80200000, 0x80000000, initialData, memSize)

			prog, err := loader.Load(elfPath)
			Expect(err).NotTo(HaveOccurred())

			var bssSeg *loader.Segment
			for i := range prog.Segments {
				if prog.Segments[i].VirtAddr == 0x80200000 {
					bssSeg = &prog.Segments[i]
					break
				}
			}

			Expect(bssSeg).NotTo(BeNil())
			Expect(bssSeg.Data).To(Equal(initialData))
			Expect(bssSeg.MemSize).To(Equal(memSize))
			Expect(bssSeg.MemSize).To(BeNumerically(">", uint32(len(bssSeg.Data))))
		})
	})

	Describe("Zero Filesz segments", func() {
		It("should handle segments with zero file size", func() {
			elfPath := filepath.Join(tempDir, "zero-filesz.elf")
			memSize := uint32(4096)
			createZeroFileszELF(elfPath, 0x80300000, 0x80000000, memSize)

			prog, err := loader.Load(elfPath)
			Expect(err).NotTo(HaveOccurred())

			var zeroSeg *loader.Segment
			for i := range prog.Segments {
				if prog.Segments[i].VirtAddr == 0x80300000 {
					zeroSeg = &prog.Segments[i]
					break
				}
			}

			Expect(zeroSeg).NotTo(BeNil())
			Expect(zeroSeg.Data).To(HaveLen(0))
			Expect(zeroSeg.MemSize).To(Equal(memSize))
		})
	})

	Describe("ELFs with no loadable segments", func() {
		It("should return empty segments list for ELF with no PT_LOAD", func() {
			elfPath := filepath.Join(tempDir, "no-load.elf")
			createNoLoadableSegmentsELF(elfPath, 0x80000000)

			prog, err := loader.Load(elfPath)
			Expect(err).NotTo(HaveOccurred())
			Expect(prog.Segments).To(BeEmpty())
			Expect(prog.EntryPoint).To(Equal(uint32(0x80000000)))
		})
	})
})

const (
	elfClass32   = 1
	elfDataLSB   = 1
	etExec       = 2
	emRISCV      = 243
	emX86_64     = 62
	ptLoad       = 1
	ptNote       = 4
	ehsize32     = 52
	phentsize32  = 32
)

func writeELF32Header(h []byte, machine uint16, entry uint32, phnum uint16) {
	copy(h[0:4], []byte{0x7f, 'E', 'L', 'F'})
	h[4] = elfClass32
	h[5] = elfDataLSB
	h[6] = 1
	binary.LittleEndian.PutUint16(h[16:18], etExec)
	binary.LittleEndian.PutUint16(h[18:20], machine)
	binary.LittleEndian.PutUint32(h[20:24], 1)
	binary.LittleEndian.PutUint32(h[24:28], entry)
	binary.LittleEndian.PutUint32(h[28:32], ehsize32) // phoff
	binary.LittleEndian.PutUint16(h[40:42], ehsize32)
	binary.LittleEndian.PutUint16(h[42:44], phentsize32)
	binary.LittleEndian.PutUint16(h[44:46], phnum)
}

func writeELF32ProgHeader(p []byte, ptype, flags, offset, vaddr, filesz, memsz uint32) {
	binary.LittleEndian.PutUint32(p[0:4], ptype)
	binary.LittleEndian.PutUint32(p[4:8], offset)
	binary.LittleEndian.PutUint32(p[8:12], vaddr)
	binary.LittleEndian.PutUint32(p[12:16], vaddr)
	binary.LittleEndian.PutUint32(p[16:20], filesz)
	binary.LittleEndian.PutUint32(p[20:24], memsz)
	binary.LittleEndian.PutUint32(p[24:28], flags)
	binary.LittleEndian.PutUint32(p[28:32], 0x1000)
}

// createMinimalRV32ELF creates a minimal valid RV32 ELF binary with one
// PT_LOAD segment.
func createMinimalRV32ELF(path string, loadAddr, entryPoint uint32, code []byte) {
	header := make([]byte, ehsize32)
	writeELF32Header(header, emRISCV, entryPoint, 1)

	prog := make([]byte, phentsize32)
	writeELF32ProgHeader(prog, ptLoad, 0x5, ehsize32+phentsize32, loadAddr, uint32(len(code)), uint32(len(code)))

	file, _ := os.Create(path)
	defer func() { _ = file.Close() }()
	_, _ = file.Write(header)
	_, _ = file.Write(prog)
	_, _ = file.Write(code)
}

// createMinimalx86ELF creates a minimal x86-64 32-bit-class ELF to test
// machine-type rejection.
func createMinimalx86ELF(path string) {
	header := make([]byte, ehsize32)
	writeELF32Header(header, emX86_64, 0, 0)

	file, _ := os.Create(path)
	defer func() { _ = file.Close() }()
	_, _ = file.Write(header)
}

// createMinimal64BitELF creates a minimal 64-bit-class ELF to test class
// rejection.
func createMinimal64BitELF(path string) {
	header := make([]byte, 64)
	copy(header[0:4], []byte{0x7f, 'E', 'L', 'F'})
	header[4] = 2 // ELFCLASS64
	header[5] = 1
	header[6] = 1
	binary.LittleEndian.PutUint16(header[16:18], etExec)
	binary.LittleEndian.PutUint16(header[18:20], emRISCV)
	binary.LittleEndian.PutUint32(header[20:24], 1)
	binary.LittleEndian.PutUint16(header[52:54], 64)
	binary.LittleEndian.PutUint16(header[54:56], 56)
	binary.LittleEndian.PutUint16(header[56:58], 0)

	file, _ := os.Create(path)
	defer func() { _ = file.Close() }()
	_, _ = file.Write(header)
}

// createMultiSegmentRV32ELF creates an RV32 ELF with two PT_LOAD segments:
// a code segment (RX) and a data segment (RW).
func createMultiSegmentRV32ELF(path string, codeAddr, entryPoint uint32, code []byte, dataAddr uint32, data []byte) {
	header := make([]byte, ehsize32)
	writeELF32Header(header, emRISCV, entryPoint, 2)

	off1 := uint32(ehsize32 + 2*phentsize32)
	prog1 := make([]byte, phentsize32)
	writeELF32ProgHeader(prog1, ptLoad, 0x5, off1, codeAddr, uint32(len(code)), uint32(len(code)))

	off2 := off1 + uint32(len(code))
	prog2 := make([]byte, phentsize32)
	writeELF32ProgHeader(prog2, ptLoad, 0x6, off2, dataAddr, uint32(len(data)), uint32(len(data)))

	file, _ := os.Create(path)
	defer func() { _ = file.Close() }()
	_, _ = file.Write(header)
	_, _ = file.Write(prog1)
	_, _ = file.Write(prog2)
	_, _ = file.Write(code)
	_, _ = file.Write(data)
}

// createBSSSegmentELF creates an RV32 ELF with a BSS-like segment where
// Memsz > Filesz.
func createBSSSegmentELF(path string, segAddr, entryPoint uint32, data []byte, memSize uint32) {
	header := make([]byte, ehsize32)
	writeELF32Header(header, emRISCV, entryPoint, 1)

	prog := make([]byte, phentsize32)
	writeELF32ProgHeader(prog, ptLoad, 0x6, ehsize32+phentsize32, segAddr, uint32(len(data)), memSize)

	file, _ := os.Create(path)
	defer func() { _ = file.Close() }()
	_, _ = file.Write(header)
	_, _ = file.Write(prog)
	_, _ = file.Write(data)
}

// createZeroFileszELF creates an RV32 ELF with a segment that has zero
// Filesz but non-zero Memsz.
func createZeroFileszELF(path string, segAddr, entryPoint uint32, memSize uint32) {
	header := make([]byte, ehsize32)
	writeELF32Header(header, emRISCV, entryPoint, 1)

	prog := make([]byte, phentsize32)
	writeELF32ProgHeader(prog, ptLoad, 0x6, ehsize32+phentsize32, segAddr, 0, memSize)

	file, _ := os.Create(path)
	defer func() { _ = file.Close() }()
	_, _ = file.Write(header)
	_, _ = file.Write(prog)
}

// createNoLoadableSegmentsELF creates an RV32 ELF with no PT_LOAD segments
// (only PT_NOTE).
func createNoLoadableSegmentsELF(path string, entryPoint uint32) {
	header := make([]byte, ehsize32)
	writeELF32Header(header, emRISCV, entryPoint, 1)

	prog := make([]byte, phentsize32)
	writeELF32ProgHeader(prog, ptNote, 0x4, ehsize32+phentsize32, 0, 0, 0)

	file, _ := os.Create(path)
	defer func() { _ = file.Close() }()
	_, _ = file.Write(header)
	_, _ = file.Write(prog)
}
