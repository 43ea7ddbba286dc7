package elfx

import (
	"debug/elf"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testImage lays out a fake file: 0x100 bytes of code at 0x400000 then
// 0x100 bytes of rodata at 0x401000.
func testImage() *Image {
	all := make([]byte, 0x200)
	copy(all[0x100:], "hello\x00world\x00")
	return &Image{
		All: all,
		Loads: []Seg{
			{Vaddr: 0x400000, Off: 0, Filesz: 0x100, Flags: elf.PF_R | elf.PF_X},
			{Vaddr: 0x401000, Off: 0x100, Filesz: 0x100, Flags: elf.PF_R},
		},
		Text:   Section{".text", 0x400000, 0, 0x100},
		Rodata: Section{".rodata", 0x401000, 0x100, 0x100},
		PLT:    Section{".plt", 0x400000, 0, 0x20},
	}
}

func TestVA2Off(t *testing.T) {
	im := testImage()

	tests := []struct {
		va   uint64
		off  uint64
		ok   bool
		name string
	}{
		{0x400000, 0, true, "start of code"},
		{0x4000ff, 0xff, true, "end of code"},
		{0x401006, 0x106, true, "inside rodata"},
		{0x400100, 0, false, "gap between segments"},
		{0x10, 0, false, "below image"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			off, ok := im.VA2Off(tt.va)
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.off, off)
			}
		})
	}
}

func TestSliceVA(t *testing.T) {
	im := testImage()

	b, ok := im.SliceVA(0x401000, 5)
	require.True(t, ok)
	assert.Equal(t, "hello", string(b))

	_, ok = im.SliceVA(0x401000, 0x1000)
	assert.False(t, ok, "range past end of file")

	b, ok = im.ReadUpToVA(0x4010f8, 64)
	require.True(t, ok)
	assert.Len(t, b, 8, "clamped to the segment")
}

func TestRegions(t *testing.T) {
	im := testImage()

	ro, err := im.ReadOnlyData()
	require.NoError(t, err)
	assert.Equal(t, uint64(0x401000), ro.VA)
	assert.Len(t, ro.Data, 0x100)

	code := im.CodeRegions()
	require.Len(t, code, 1)
	assert.Equal(t, ".text", code[0].Name)

	assert.True(t, im.IsExec(0x400010))
	assert.False(t, im.IsExec(0x401010))
	assert.True(t, im.IsPLTEntry(0x400010))
	assert.False(t, im.IsPLTEntry(0x400020))
	assert.True(t, im.InDataOrRodata(0x401001))

	im.Rodata = Section{}
	_, err = im.ReadOnlyData()
	assert.ErrorIs(t, err, ErrNoReadOnlyData)
}

func TestCodeRegionsFallsBackToSegments(t *testing.T) {
	im := testImage()
	im.Text = Section{}

	code := im.CodeRegions()
	require.Len(t, code, 1)
	assert.Equal(t, uint64(0x400000), code[0].VA)
	assert.Len(t, code[0].Data, 0x100)
}

func TestOpenRejectsNonELF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notelf")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0o600))

	_, err := Open(path)
	assert.ErrorIs(t, err, ErrNotELF)
}

func TestOpenSelf(t *testing.T) {
	exe, err := os.Executable()
	require.NoError(t, err)

	im, err := Open(exe)
	if err != nil {
		t.Skipf("test binary is not ELF: %v", err)
	}
	defer im.Close()

	assert.NotEmpty(t, im.Loads)
	assert.NotZero(t, im.Text.Size)
	for i := 1; i < len(im.Symbols); i++ {
		assert.LessOrEqual(t, im.Symbols[i-1].Addr, im.Symbols[i].Addr)
	}
}

func TestParseRela64(t *testing.T) {
	ent := func(slot, info, addend uint64) []byte {
		b := make([]byte, 24)
		binary.LittleEndian.PutUint64(b, slot)
		binary.LittleEndian.PutUint64(b[8:], info)
		binary.LittleEndian.PutUint64(b[16:], addend)
		return b
	}
	var data []byte
	data = append(data, ent(0x10000, uint64(elf.R_AARCH64_RELATIVE), 0x401000)...)
	data = append(data, ent(0x10008, uint64(elf.R_AARCH64_GLOB_DAT)|1<<32, 0)...)
	data = append(data, ent(0x10010, uint64(elf.R_AARCH64_RELATIVE), 0x401006)...)
	data = append(data, 0xff) // truncated trailing entry

	got := parseRela64(data, binary.LittleEndian)
	assert.Equal(t, []Reloc{
		{Slot: 0x10000, Target: 0x401000},
		{Slot: 0x10010, Target: 0x401006},
	}, got)
}
