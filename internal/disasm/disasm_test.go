package disasm

import (
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	nop = 0xd503201f
	ret = 0xd65f03c0
)

func words(ws ...uint32) []byte {
	b := make([]byte, 4*len(ws))
	for i, w := range ws {
		binary.LittleEndian.PutUint32(b[i*4:], w)
	}
	return b
}

func TestDisassemble(t *testing.T) {
	s := Disassemble(words(nop, ret, 0xffffffff), Options{BaseAddr: 0x1000})
	require.Len(t, s, 3)

	assert.Equal(t, uint64(0x1000), s[0].VA)
	assert.Equal(t, "nop", s[0].Op)
	assert.Equal(t, "ret", s[1].Op)
	assert.Equal(t, uint64(0x1008), s[2].VA)
	assert.False(t, s[2].Ok)
	assert.Equal(t, ".word 0xffffffff", s[2].Text)
}

func TestDisassembleMaxInsns(t *testing.T) {
	s := Disassemble(words(nop, nop, nop, nop), Options{MaxInsns: 2})
	assert.Len(t, s, 2)

	// a trailing partial word is ignored
	s = Disassemble(append(words(nop), 0x1f, 0x20), Options{})
	assert.Len(t, s, 1)
}

func TestTarget(t *testing.T) {
	tests := []struct {
		name string
		raw  uint32
		va   uint64
		want uint64
		ok   bool
	}{
		{"adrp next page", 0xb0000000, 0x400010, 0x401000, true},
		{"adr forward", 0x10000041, 0x400000, 0x400008, true},
		{"bl forward", 0x94000004, 0x400000, 0x400010, true},
		{"nop", nop, 0x400000, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := Decode(words(tt.raw), tt.va)
			got, ok := in.Target()
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormat(t *testing.T) {
	s := Disassemble(words(0x94000002, nop, ret), Options{BaseAddr: 0x2000})
	out := Format(s, func(addr uint64) (string, bool) {
		return "callee", addr == 0x2008
	})
	assert.Contains(t, out, "0x00002000  02 00 00 94  ")
	assert.Contains(t, out, "; <callee>")
	assert.Contains(t, out, "\ncallee:\n0x00002008")
	assert.Equal(t, 3, strings.Count(out, "0x0000"))
}
