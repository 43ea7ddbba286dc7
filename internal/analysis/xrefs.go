package analysis

import (
	"encoding/binary"
	"slices"
	"time"

	"github.com/charmbracelet/log"

	"strcluster/internal/elfx"
)

// XrefKind tells how a reference was found.
type XrefKind int

const (
	XrefADRPAdd XrefKind = iota // ADRP page + ADD offset
	XrefADR                     // single ADR
	XrefPointer                 // pointer slot in data
)

func (k XrefKind) String() string {
	switch k {
	case XrefADRPAdd:
		return "adrp+add"
	case XrefADR:
		return "adr"
	case XrefPointer:
		return "pointer"
	}
	return "unknown"
}

// Xref is one reference from an instruction or data slot to a target.
type Xref struct {
	From uint64
	To   uint64
	Kind XrefKind
}

// XrefIndex maps target addresses to the addresses referring to them.
type XrefIndex struct {
	to    map[uint64][]uint64
	from  map[uint64][]uint64
	count int
}

// XrefsTo returns the sorted, deduplicated referrers of addr.
func (x *XrefIndex) XrefsTo(addr uint64) []uint64 {
	if x == nil {
		return nil
	}
	return x.to[addr]
}

// RefsFrom returns the targets referred to from addr.
func (x *XrefIndex) RefsFrom(addr uint64) []uint64 {
	if x == nil {
		return nil
	}
	return x.from[addr]
}

// Len returns the number of distinct references.
func (x *XrefIndex) Len() int { return x.count }

// Targets returns the number of addresses with at least one referrer.
func (x *XrefIndex) Targets() int { return len(x.to) }

// BuildXrefIndex scans code and data of im for references to addresses
// accepted by want. Code references are ADRP+ADD pairs and ADR; data
// references are 8-byte aligned pointer slots and relative relocations.
func BuildXrefIndex(im *elfx.Image, want func(uint64) bool) *XrefIndex {
	start := time.Now()
	var all []Xref
	for _, r := range im.CodeRegions() {
		all = append(all, ScanCode(r, want, im.IsPLTEntry)...)
	}
	for _, r := range im.PointerRegions() {
		all = append(all, ScanPointers(r, want)...)
	}
	relocs, err := im.RelativeRelocs()
	if err != nil {
		log.Warn("skipping relocations", "err", err)
	}
	for _, rel := range relocs {
		if want(rel.Target) {
			all = append(all, Xref{From: rel.Slot, To: rel.Target, Kind: XrefPointer})
		}
	}

	x := NewXrefIndex(all)
	log.Debug("xref index built", "refs", x.Len(), "targets", x.Targets(), "elapsed", time.Since(start))
	return x
}

// NewXrefIndex indexes refs by target.
func NewXrefIndex(refs []Xref) *XrefIndex {
	x := &XrefIndex{to: make(map[uint64][]uint64), from: make(map[uint64][]uint64)}
	for _, r := range refs {
		x.to[r.To] = append(x.to[r.To], r.From)
		if !slices.Contains(x.from[r.From], r.To) {
			x.from[r.From] = append(x.from[r.From], r.To)
		}
	}
	for k, from := range x.to {
		slices.Sort(from)
		from = slices.Compact(from)
		x.to[k] = from
		x.count += len(from)
	}
	return x
}

type pageReg struct {
	page uint64
	at   int // instruction index of the ADRP
	ok   bool
}

// ScanCode walks ARM64 code linearly and reports address materialisations
// accepted by want. An ADRP stays live in its register for SearchWindowSmall
// instructions; an ADD reading that register completes the address. Returns
// and unconditional branches forget every page, calls the caller-saved ones.
// Instructions for which skip returns true are ignored.
func ScanCode(r elfx.Region, want func(uint64) bool, skip func(uint64) bool) []Xref {
	var out []Xref
	var regs [32]pageReg
	n := len(r.Data) / 4
	for i := 0; i < n; i++ {
		va := r.VA + uint64(i)*4
		if skip != nil && skip(va) {
			continue
		}
		raw := binary.LittleEndian.Uint32(r.Data[i*4:])

		switch {
		case isADRP(raw):
			rd := raw & 0x1f
			if rd != 31 {
				regs[rd] = pageReg{page: uint64(int64(va&^0xfff) + adrImm(raw)<<12), at: i, ok: true}
			}

		case isADR(raw):
			rd := raw & 0x1f
			regs[rd].ok = false
			if t := uint64(int64(va) + adrImm(raw)); want(t) {
				out = append(out, Xref{From: va, To: t, Kind: XrefADR})
			}

		case isADD64Imm(raw):
			rd, rn := raw&0x1f, (raw>>5)&0x1f
			p := regs[rn]
			regs[rd].ok = false
			if !p.ok || i-p.at > SearchWindowSmall {
				continue
			}
			imm := uint64((raw >> 10) & 0xfff)
			if raw&(1<<22) != 0 {
				imm <<= 12
			}
			// with rd != rn the page stays live in rn for further ADDs
			if t := p.page + imm; want(t) {
				out = append(out, Xref{From: va, To: t, Kind: XrefADRPAdd})
			}

		case isRET(raw), isB(raw), isBR(raw):
			regs = [32]pageReg{}

		case isBL(raw), isBLR(raw):
			// caller-saved registers do not survive the call
			for r := range 19 {
				regs[r].ok = false
			}
		}
	}
	return out
}

// ScanPointers reports 8-byte aligned little-endian words of r whose value
// want accepts. The referrer is the slot address.
func ScanPointers(r elfx.Region, want func(uint64) bool) []Xref {
	var out []Xref
	skip := int((8 - r.VA%8) % 8)
	for off := skip; off+8 <= len(r.Data); off += 8 {
		v := binary.LittleEndian.Uint64(r.Data[off:])
		if v != 0 && want(v) {
			out = append(out, Xref{From: r.VA + uint64(off), To: v, Kind: XrefPointer})
		}
	}
	return out
}

// ADRP: 1 immlo 10000 immhi Rd
func isADRP(raw uint32) bool { return raw&0x9f000000 == 0x90000000 }

// ADR: 0 immlo 10000 immhi Rd
func isADR(raw uint32) bool { return raw&0x9f000000 == 0x10000000 }

// ADD (immediate), 64-bit, flags not set.
func isADD64Imm(raw uint32) bool { return raw&0xff800000 == 0x91000000 }

func isB(raw uint32) bool   { return raw&0xfc000000 == 0x14000000 }
func isBL(raw uint32) bool  { return raw&0xfc000000 == 0x94000000 }
func isBR(raw uint32) bool  { return raw&0xfffffc1f == 0xd61f0000 }
func isBLR(raw uint32) bool { return raw&0xfffffc1f == 0xd63f0000 }
func isRET(raw uint32) bool { return raw&0xfffffc1f == 0xd65f0000 }

// adrImm decodes the signed 21-bit immhi:immlo field shared by ADR and ADRP.
func adrImm(raw uint32) int64 {
	imm := (raw>>5&0x7ffff)<<2 | raw>>29&3
	return int64(int32(imm<<11)) >> 11
}
