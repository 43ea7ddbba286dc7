package colorize

import (
	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/styles"

	strstyles "strcluster/internal/strcluster/styles"
)

// DisasmDark is the chroma style of the jump view. Registered on package
// initialization.
var DisasmDark = styles.Register(chroma.MustNewStyle("strcluster-disasm", chroma.StyleEntries{
	chroma.Text:           "#FFFFFF",
	chroma.Background:     "bg:#1e1e1e",
	chroma.Comment:        strstyles.Comment,
	chroma.CommentPreproc: strstyles.Comment,

	// nasm tokenizes mnemonics as keywords and registers as names
	chroma.Keyword:       "#FFFFFF",
	chroma.KeywordPseudo: "#FFFFFF",
	chroma.Name:          "#7C9C9D",
	chroma.NameBuiltin:   "#7C9C9D",
	chroma.NameVariable:  "#7C9C9D",
	chroma.NameFunction:  "#FFFFFF",
	chroma.NameLabel:     strstyles.Function,

	chroma.LiteralNumber:        "#FF5F87",
	chroma.LiteralNumberHex:     "#FF5F87",
	chroma.LiteralNumberInteger: "#FF5F87",

	chroma.Operator:    "#FFFFFF",
	chroma.Punctuation: "#FFFFFF",

	chroma.String: strstyles.String,
}))
