// Package elfx provides helpers for opening ELF binaries, locating sections, and mapping virtual addresses to file offsets.
package elfx

import (
	"debug/elf"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"syscall"
)

var (
	ErrNotELF          = errors.New("elfx: not an ELF file")
	ErrNoReadOnlyData  = errors.New("elfx: no read-only data region")
	ErrUnmappedAddress = errors.New("elfx: address not covered by a PT_LOAD segment")
)

type Image struct {
	Path      string
	File      *elf.File
	Machine   elf.Machine
	All       []byte
	Loads     []Seg
	Text      Section
	Rodata    Section
	Data      Section
	DataRelRo Section
	PLT       Section
	Symbols   []Symbol // dynamic and static, deduplicated by address and name
	f         *os.File
}

type Seg struct {
	Vaddr, Off, Filesz uint64
	Flags              elf.ProgFlag
}

// Contains reports whether va lies in the file-backed part of the segment.
func (s Seg) Contains(va uint64) bool {
	return va >= s.Vaddr && va < s.Vaddr+s.Filesz
}

// Exec reports whether the segment is executable.
func (s Seg) Exec() bool { return s.Flags&elf.PF_X != 0 }

type Section struct {
	Name          string
	VA, Off, Size uint64
}

// Contains reports whether va lies inside the section.
func (s Section) Contains(va uint64) bool {
	return s.Size != 0 && va >= s.VA && va < s.VA+s.Size
}

// Symbol is an ELF symbol with a non-zero value.
type Symbol struct {
	Name  string
	Addr  uint64
	Size  uint64
	Func  bool // STT_FUNC
	IsPLT bool
}

// Region is a mapped byte range starting at VA.
type Region struct {
	Name string
	VA   uint64
	Data []byte
}

func Open(path string) (*Image, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotELF, err)
	}

	of, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open file: %w", err)
	}

	fi, err := of.Stat()
	if err != nil {
		of.Close()
		f.Close()
		return nil, fmt.Errorf("stat file: %w", err)
	}

	all, err := syscall.Mmap(int(of.Fd()), 0, int(fi.Size()), syscall.PROT_READ, syscall.MAP_SHARED)
	if err != nil {
		of.Close()
		f.Close()
		return nil, fmt.Errorf("mmap file: %w", err)
	}

	im := &Image{Path: path, File: f, Machine: f.Machine, All: all, f: of}
	for _, p := range f.Progs {
		if p.Type != elf.PT_LOAD {
			continue
		}
		im.Loads = append(im.Loads, Seg{
			Vaddr:  p.Vaddr,
			Off:    p.Off,
			Filesz: p.Filesz,
			Flags:  p.Flags,
		})
	}

	// Use true sections if present.
	for _, s := range f.Sections {
		sec := Section{s.Name, s.Addr, s.Offset, s.Size}
		switch s.Name {
		case ".text":
			im.Text = sec
		case ".rodata":
			im.Rodata = sec
		case ".data":
			im.Data = sec
		case ".data.rel.ro":
			im.DataRelRo = sec
		case ".plt":
			im.PLT = sec
		}
	}

	im.loadSymbols()

	// Fallbacks if stripped.
	if im.Text.Size == 0 {
		for _, l := range im.Loads {
			if l.Exec() && l.Filesz > 0 {
				im.Text = Section{"LOAD(exec)", l.Vaddr, l.Off, l.Filesz}
				break
			}
		}
	}
	if im.Rodata.Size == 0 {
		for _, l := range im.Loads {
			if (l.Flags&elf.PF_R != 0) && (l.Flags&elf.PF_W == 0) && !l.Exec() && l.Filesz > 0 {
				im.Rodata = Section{"LOAD(ro)", l.Vaddr, l.Off, l.Filesz}
				break
			}
		}
	}
	return im, nil
}

// Close unmaps the memory and closes the underlying files.
func (im *Image) Close() error {
	var err1, err2 error
	if im.All != nil && im.f != nil {
		err1 = syscall.Munmap(im.All)
	}
	im.All = nil
	if im.f != nil {
		err2 = im.f.Close()
		im.f = nil
	}
	if im.File != nil {
		err3 := im.File.Close()
		if err3 != nil && err2 == nil {
			err2 = err3
		}
		im.File = nil
	}
	if err1 != nil {
		return err1
	}
	return err2
}

// VA2Off translates a virtual address into a file offset
// using PT_LOAD segments. It returns false if VA is unmapped.
func (im *Image) VA2Off(va uint64) (uint64, bool) {
	for _, l := range im.Loads {
		if l.Contains(va) {
			return l.Off + (va - l.Vaddr), true
		}
	}
	return 0, false
}

// SliceVA returns a subslice of the mapped file corresponding to the virtual address range [va, va+size).
// It returns (nil, false) if the VA is unmapped or the range is out of bounds.
func (im *Image) SliceVA(va uint64, size uint64) ([]byte, bool) {
	off, ok := im.VA2Off(va)
	if !ok {
		return nil, false
	}
	if size == 0 {
		return []byte{}, true
	}
	end := off + size
	if end > uint64(len(im.All)) {
		return nil, false
	}
	return im.All[off:end], true
}

// ReadBytesVA reads exactly size bytes from a virtual address.
// Returns false if VA is unmapped or size extends beyond file bounds.
func (im *Image) ReadBytesVA(va uint64, size int) ([]byte, bool) {
	if size <= 0 {
		return []byte{}, true
	}
	return im.SliceVA(va, uint64(size))
}

// ReadUpToVA reads at most size bytes from va, stopping at the end of the
// segment holding va.
func (im *Image) ReadUpToVA(va uint64, size int) ([]byte, bool) {
	for _, l := range im.Loads {
		if !l.Contains(va) {
			continue
		}
		if rest := l.Vaddr + l.Filesz - va; uint64(size) > rest {
			size = int(rest)
		}
		return im.ReadBytesVA(va, size)
	}
	return nil, false
}

// InRodata reports whether the VA lies within the chosen
// read-only data region.
func (im *Image) InRodata(va uint64) bool { return im.Rodata.Contains(va) }

// InData reports whether VA lies in .data
func (im *Image) InData(va uint64) bool { return im.Data.Contains(va) }

// InDataRelRo reports whether VA lies in .data.rel.ro
func (im *Image) InDataRelRo(va uint64) bool { return im.DataRelRo.Contains(va) }

// InDataOrRodata returns true if the VA is inside .rodata or .data/.data.rel.ro
func (im *Image) InDataOrRodata(va uint64) bool {
	return im.InRodata(va) || im.InData(va) || im.InDataRelRo(va)
}

// IsPLTEntry returns true if the given virtual address lies within
// the PLT section, indicating it's a dynamically linked function stub.
func (im *Image) IsPLTEntry(va uint64) bool { return im.PLT.Contains(va) }

// IsExec reports whether va lies in an executable segment.
func (im *Image) IsExec(va uint64) bool {
	for _, l := range im.Loads {
		if l.Exec() && l.Contains(va) {
			return true
		}
	}
	return false
}

// SectionData returns the bytes of a section as a Region.
func (im *Image) SectionData(s Section) (Region, error) {
	if s.Size == 0 {
		return Region{}, fmt.Errorf("section %q is empty", s.Name)
	}
	data, ok := im.SliceVA(s.VA, s.Size)
	if !ok {
		return Region{}, fmt.Errorf("section %q at %#x: %w", s.Name, s.VA, ErrUnmappedAddress)
	}
	return Region{Name: s.Name, VA: s.VA, Data: data}, nil
}

// ReadOnlyData returns the region strings are extracted from.
func (im *Image) ReadOnlyData() (Region, error) {
	if im.Rodata.Size == 0 {
		return Region{}, ErrNoReadOnlyData
	}
	return im.SectionData(im.Rodata)
}

// CodeRegions returns the executable ranges to scan for references, the PLT
// excluded.
func (im *Image) CodeRegions() []Region {
	if im.Text.Size > 0 && !strings.HasPrefix(im.Text.Name, "LOAD") {
		if r, err := im.SectionData(im.Text); err == nil {
			return []Region{r}
		}
	}
	var out []Region
	for _, l := range im.Loads {
		if !l.Exec() || l.Off+l.Filesz > uint64(len(im.All)) {
			continue
		}
		out = append(out, Region{
			Name: "LOAD(exec)",
			VA:   l.Vaddr,
			Data: im.All[l.Off : l.Off+l.Filesz],
		})
	}
	return out
}

// PointerRegions returns the data sections that may hold pointers to
// strings.
func (im *Image) PointerRegions() []Region {
	var out []Region
	for _, s := range []Section{im.DataRelRo, im.Data, im.Rodata} {
		if s.Size == 0 {
			continue
		}
		if r, err := im.SectionData(s); err == nil {
			out = append(out, r)
		}
	}
	return out
}

// loadSymbols loads dynamic and static symbols. Stripped binaries simply
// yield fewer symbols.
func (im *Image) loadSymbols() {
	if im.File == nil {
		return
	}

	type key struct {
		name string
		addr uint64
	}
	seen := make(map[key]bool)
	add := func(syms []elf.Symbol) {
		for _, sym := range syms {
			// Skip undefined symbols
			if sym.Value == 0 || sym.Name == "" {
				continue
			}
			k := key{sym.Name, sym.Value}
			if seen[k] {
				continue
			}
			seen[k] = true
			im.Symbols = append(im.Symbols, Symbol{
				Name:  sym.Name,
				Addr:  sym.Value,
				Size:  sym.Size,
				Func:  elf.ST_TYPE(sym.Info) == elf.STT_FUNC,
				IsPLT: strings.HasSuffix(sym.Name, "@plt"),
			})
		}
	}

	if dynsyms, err := im.File.DynamicSymbols(); err == nil {
		add(dynsyms)
	}
	// .symtab is missing on stripped binaries
	if syms, err := im.File.Symbols(); err == nil {
		add(syms)
	}

	sort.SliceStable(im.Symbols, func(i, j int) bool {
		return im.Symbols[i].Addr < im.Symbols[j].Addr
	})
}

// Reloc is a pointer slot and the address it is relocated to.
type Reloc struct {
	Slot   uint64
	Target uint64
}

// RelativeRelocs returns the R_AARCH64_RELATIVE entries of .rela.dyn. In a
// position independent library these carry the pointer values the file
// leaves zeroed.
func (im *Image) RelativeRelocs() ([]Reloc, error) {
	if im.File == nil {
		return nil, nil
	}
	sec := im.File.Section(".rela.dyn")
	if sec == nil || sec.Type != elf.SHT_RELA {
		return nil, nil
	}
	data, err := sec.Data()
	if err != nil {
		return nil, fmt.Errorf("read .rela.dyn: %w", err)
	}
	return parseRela64(data, im.File.ByteOrder), nil
}

func parseRela64(data []byte, bo binary.ByteOrder) []Reloc {
	const entSize = 24
	var out []Reloc
	for off := 0; off+entSize <= len(data); off += entSize {
		info := bo.Uint64(data[off+8:])
		if elf.R_AARCH64(elf.R_TYPE64(info)) != elf.R_AARCH64_RELATIVE {
			continue
		}
		out = append(out, Reloc{
			Slot:   bo.Uint64(data[off:]),
			Target: bo.Uint64(data[off+16:]),
		})
	}
	return out
}
