// Package elfxtest builds small in-memory ARM64 images for tests.
package elfxtest

import (
	"debug/elf"
	"encoding/binary"

	"strcluster/internal/elfx"
)

// Image returns a two-segment image:
//
//	0x400000 main:  adrp x0, 0x401000; add x0, x0, #0; ret; nop
//	0x400010 other: adr x1, 0x401010; ret
//	0x401000 "hello world", 0x401010 "second one", 0x401020 "orphan str"
//
// main is sized, other is not and runs to the end of the code segment.
func Image() *elfx.Image {
	all := make([]byte, 0x80)
	for i, w := range []uint32{
		0xb0000000, // adrp x0, .+0x1000
		0x91000000, // add x0, x0, #0
		0xd65f03c0, // ret
		0xd503201f, // nop
		0x10008001, // adr x1, .+0x1000
		0xd65f03c0, // ret
	} {
		binary.LittleEndian.PutUint32(all[i*4:], w)
	}
	copy(all[0x40:], "hello world\x00")
	copy(all[0x50:], "second one\x00")
	copy(all[0x60:], "orphan str\x00")

	return &elfx.Image{
		Path:    "testdata/tiny.so",
		Machine: elf.EM_AARCH64,
		All:     all,
		Loads: []elfx.Seg{
			{Vaddr: 0x400000, Off: 0, Filesz: 0x40, Flags: elf.PF_R | elf.PF_X},
			{Vaddr: 0x401000, Off: 0x40, Filesz: 0x40, Flags: elf.PF_R},
		},
		Text:   elfx.Section{Name: ".text", VA: 0x400000, Off: 0, Size: 0x40},
		Rodata: elfx.Section{Name: ".rodata", VA: 0x401000, Off: 0x40, Size: 0x40},
		Symbols: []elfx.Symbol{
			{Name: "main", Addr: 0x400000, Size: 0x10, Func: true},
			{Name: "other", Addr: 0x400010, Func: true},
			{Name: "table", Addr: 0x401030, Size: 8},
		},
	}
}
