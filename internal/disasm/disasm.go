// Package disasm decodes ARM64 code into a common instruction representation.
package disasm

import (
	"encoding/binary"
	"fmt"
	"strings"

	"golang.org/x/arch/arm64/arm64asm"
)

// Inst is a simplified decoded instruction.
type Inst struct {
	VA   uint64 // virtual address of instruction
	Text string // formatted disassembly string
	Op   string // mnemonic in lowercase
	Raw  uint32 // little-endian encoding
	Ok   bool   // false for words arm64asm could not decode
	Dec  arm64asm.Inst
}

// Stream is a linear sequence of instructions.
type Stream []Inst

// SymbolLookup names an address, typically a function start.
type SymbolLookup func(addr uint64) (string, bool)

// Options control Disassemble.
type Options struct {
	BaseAddr uint64 // VA of data[0]
	MaxInsns int    // 0 means no limit
}

// Disassemble decodes data as a sequence of 4-byte instructions. Undecodable
// words are kept as ".word" entries so addresses stay contiguous.
func Disassemble(data []byte, opts Options) Stream {
	n := len(data) / 4
	if opts.MaxInsns > 0 && n > opts.MaxInsns {
		n = opts.MaxInsns
	}
	out := make(Stream, 0, n)
	for i := 0; i < n; i++ {
		off := i * 4
		out = append(out, Decode(data[off:off+4], opts.BaseAddr+uint64(off)))
	}
	return out
}

// Decode decodes one instruction located at va.
func Decode(word []byte, va uint64) Inst {
	raw := binary.LittleEndian.Uint32(word)
	inst, err := arm64asm.Decode(word)
	if err != nil {
		return Inst{VA: va, Raw: raw, Op: ".word", Text: fmt.Sprintf(".word 0x%08x", raw)}
	}
	text := inst.String()
	op, _, _ := strings.Cut(text, " ")
	return Inst{VA: va, Raw: raw, Ok: true, Dec: inst, Op: strings.ToLower(op), Text: text}
}

// Target returns the absolute address a PC-relative instruction refers to.
// ADRP targets are page aligned.
func (in Inst) Target() (uint64, bool) {
	if !in.Ok {
		return 0, false
	}
	for _, a := range in.Dec.Args {
		rel, ok := a.(arm64asm.PCRel)
		if !ok {
			continue
		}
		if in.Dec.Op == arm64asm.ADRP {
			return uint64(int64(in.VA&^0xfff) + int64(rel)), true
		}
		return uint64(int64(in.VA) + int64(rel)), true
	}
	return 0, false
}

// Format renders a stream one instruction per line:
//
//	<addr>  <bytes>  <text>  ; <symbol>
func Format(s Stream, lookup SymbolLookup) string {
	var b strings.Builder
	for _, in := range s {
		if lookup != nil {
			if name, ok := lookup(in.VA); ok {
				fmt.Fprintf(&b, "\n%s:\n", name)
			}
		}
		fmt.Fprintf(&b, "0x%08x  %02x %02x %02x %02x  %s",
			in.VA, byte(in.Raw), byte(in.Raw>>8), byte(in.Raw>>16), byte(in.Raw>>24), in.Text)
		if t, ok := in.Target(); ok && lookup != nil {
			if name, ok := lookup(t); ok {
				fmt.Fprintf(&b, "  ; <%s>", name)
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}
