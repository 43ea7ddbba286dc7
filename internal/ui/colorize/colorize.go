// Package colorize adds terminal colors to disassembly listings.
package colorize

import (
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

// Enabled reports whether colors are on. STRCLUSTER_NO_COLOR turns them off.
func Enabled() bool {
	return os.Getenv("STRCLUSTER_NO_COLOR") == ""
}

// getAssemblyLexer returns an appropriate assembly lexer with fallbacks.
// nasm handles ";" comments, the others are tried after it.
func getAssemblyLexer() chroma.Lexer {
	for _, name := range []string{"nasm", "armasm", "gas"} {
		if lexer := lexers.Get(name); lexer != nil {
			return lexer
		}
	}
	return nil
}

// getDisasmStyle returns the disassembly style with fallbacks
func getDisasmStyle() *chroma.Style {
	for _, name := range []string{DisasmDark.Name, "dracula", "monokai"} {
		if style := styles.Get(name); style != nil {
			return style
		}
	}
	return styles.Fallback
}

// getTerminalFormatter returns an appropriate terminal formatter
func getTerminalFormatter() chroma.Formatter {
	for _, name := range []string{"terminal16m", "terminal256"} {
		if formatter := formatters.Get(name); formatter != nil {
			return formatter
		}
	}
	return formatters.Fallback
}

// Assembly colorizes a whole block of assembly with chroma.
func Assembly(code string) (string, error) {
	if !Enabled() {
		return code, nil
	}
	lexer := getAssemblyLexer()
	if lexer == nil {
		return code, nil
	}
	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code, err
	}
	var buf strings.Builder
	if err := getTerminalFormatter().Format(&buf, getDisasmStyle(), iterator); err != nil {
		return code, err
	}
	return buf.String(), nil
}

// Listing colorizes a listing line by line. Lines look like
//
//	0x00400000  1f 20 03 d5  nop  ; <sym>
//
// with "name:" label lines and "; ..." comment lines in between.
func Listing(text string) string {
	if !Enabled() {
		return text
	}
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = Line(l)
	}
	return strings.Join(lines, "\n")
}

// Line colorizes a single listing line while preserving its layout.
func Line(line string) string {
	if !Enabled() || strings.TrimSpace(line) == "" {
		return line
	}

	trimmed := strings.TrimSpace(line)
	switch {
	case strings.HasPrefix(trimmed, ";"):
		return rgb(235, 194, 237, line)
	case strings.HasSuffix(trimmed, ":") && !strings.HasPrefix(trimmed, "0x"):
		return rgb(255, 215, 0, line)
	case !strings.HasPrefix(line, "0x"):
		return colorizeFullLine(line)
	}

	// address and raw bytes in gray, the instruction through chroma
	addr, rest, _ := strings.Cut(line, "  ")
	raw, insn, ok := strings.Cut(rest, "  ")
	if !ok {
		return rgb(79, 79, 79, addr) + "  " + colorizeFullLine(rest)
	}
	return rgb(79, 79, 79, addr) + "  " + rgb(100, 100, 100, raw) + "  " + colorizeFullLine(insn)
}

func rgb(r, g, b int, s string) string {
	return fmt.Sprintf("\033[38;2;%d;%d;%dm%s\033[0m", r, g, b, s)
}

// colorizeFullLine uses Chroma to colorize an assembly line
func colorizeFullLine(line string) string {
	out, err := Assembly(line)
	if err != nil {
		return line
	}
	return strings.TrimSuffix(out, "\n")
}

// StripANSI removes SGR escape sequences.
func StripANSI(s string) string {
	var result strings.Builder
	inEscape := false
	for _, r := range s {
		switch {
		case r == '\x1b':
			inEscape = true
		case inEscape:
			if r == 'm' {
				inEscape = false
			}
		default:
			result.WriteRune(r)
		}
	}
	return result.String()
}
