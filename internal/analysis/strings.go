package analysis

import (
	"unicode/utf8"

	"strcluster/internal/elfx"
)

// StringResult is a string recovered from the image.
type StringResult struct {
	VA    uint64
	Value string // raw text, not escaped
	Len   int    // byte length without the terminator
}

// ExtractOptions control ExtractStrings.
type ExtractOptions struct {
	MinLength int
	// Unterminated also accepts runs not followed by a NUL byte, as in Go
	// binaries where string data is packed back to back.
	Unterminated bool
}

// ExtractStrings scans a data region for C strings: runs of printable text
// followed by a NUL byte, at least opts.MinLength bytes long. Text may be
// UTF-8. A run is cut at its first invalid UTF-8 byte and at
// MaxStringLength, so only the part a reference to its start would read is
// kept.
func ExtractStrings(r elfx.Region, opts ExtractOptions) []StringResult {
	minLen := opts.MinLength
	if minLen <= 0 {
		minLen = DefaultMinStringLength
	}

	var out []StringResult
	data := r.Data
	i := 0
	for i < len(data) {
		if !isStringByte(data[i]) {
			i++
			continue
		}
		j := i
		for j < len(data) && isStringByte(data[j]) {
			j++
		}
		terminated := j < len(data) && data[j] == 0
		if terminated || opts.Unterminated {
			run := clipRun(data[i:j])
			if len(run) >= minLen && hasText(run) {
				out = append(out, StringResult{VA: r.VA + uint64(i), Value: string(run), Len: len(run)})
			}
		}
		i = j + 1
	}
	return out
}

// ReadCString reads a NUL terminated string at va, up to maxLen bytes.
func ReadCString(im *elfx.Image, va uint64, maxLen int) (StringResult, bool) {
	raw, ok := im.ReadUpToVA(va, maxLen)
	if !ok {
		return StringResult{}, false
	}
	end := len(raw)
	for i, b := range raw {
		if b == 0 {
			end = i
			break
		}
	}
	return StringResult{VA: va, Value: string(raw[:end]), Len: end}, true
}

// clipRun returns the valid UTF-8 prefix of run, at most MaxStringLength
// bytes and ending on a rune boundary.
func clipRun(run []byte) []byte {
	n := 0
	for n < len(run) {
		r, size := utf8.DecodeRune(run[n:])
		if r == utf8.RuneError && size == 1 {
			break
		}
		if n+size > MaxStringLength {
			break
		}
		n += size
	}
	return run[:n]
}

func isStringByte(b byte) bool {
	return (b >= 0x20 && b < 0x7f) || b == '\t' || b == '\n' || b == '\r' || b >= 0x80
}

// hasText rejects runs made only of whitespace.
func hasText(b []byte) bool {
	for _, c := range b {
		if c != ' ' && c != '\t' && c != '\n' && c != '\r' {
			return true
		}
	}
	return false
}
