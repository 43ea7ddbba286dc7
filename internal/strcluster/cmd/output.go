package cmd

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"unicode/utf8"

	"github.com/olekukonko/tablewriter"
	"github.com/xlab/treeprint"

	"strcluster/internal/cluster"
	"strcluster/internal/engine"
)

// Output formats of the non-interactive mode.
const (
	formatTree  = "tree"
	formatTable = "table"
	formatJSON  = "json"
)

// filterFlags are the filter settings of a non-interactive run.
type filterFlags struct {
	query string
	opts  cluster.Options
}

// session aggregates e and applies the query once. A query that does not
// compile is returned as the error.
func (f filterFlags) session(e *engine.Engine) (*cluster.Session, error) {
	s := cluster.Open(e, nil, f.opts)
	s.SetQuery(f.query)
	s.Submit()
	if err := s.Result().Err; err != nil {
		return nil, err
	}
	return s, nil
}

// JSONOutput is the --json document.
type JSONOutput struct {
	Path      string         `json:"path"`
	Digest    string         `json:"digest"`
	Query     string         `json:"query,omitempty"`
	Strings   int            `json:"strings"`
	Functions []JSONFunction `json:"functions"`
}

type JSONFunction struct {
	Name    string       `json:"name"`
	Address string       `json:"address,omitempty"`
	Strings []JSONString `json:"strings"`
}

type JSONString struct {
	Address string `json:"address"`
	Xref    string `json:"xref"`
	Text    string `json:"text"`
}

// sanitizeForJSON replaces invalid UTF-8 so the document stays valid.
func sanitizeForJSON(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, "�")
}

// visible walks the function rows a view would show, with their shown
// string rows.
func visible(t *cluster.Tree, fn func(f *cluster.Row, strs []*cluster.Row)) {
	var cur *cluster.Row
	var strs []*cluster.Row
	for _, r := range t.Flatten() {
		if r.Kind == cluster.FunctionRow {
			if cur != nil {
				fn(cur, strs)
			}
			cur, strs = r, nil
			continue
		}
		strs = append(strs, r)
	}
	if cur != nil {
		fn(cur, strs)
	}
}

func writeTree(w io.Writer, e *engine.Engine, f filterFlags) error {
	s, err := f.session(e)
	if err != nil {
		return err
	}
	tree := treeprint.NewWithRoot(fmt.Sprintf("%s (%s)", e.Path(), s.Label()))
	visible(s.Tree(), func(fn *cluster.Row, strs []*cluster.Row) {
		br := tree.AddBranch(fn.Cells[cluster.FunctionColumn].Text)
		for _, r := range strs {
			br.AddMetaNode(r.Cells[cluster.XrefColumn].Text, r.Cells[cluster.StringColumn].Text)
		}
	})
	_, err = io.WriteString(w, tree.String())
	return err
}

func writeTable(w io.Writer, e *engine.Engine, f filterFlags) error {
	s, err := f.session(e)
	if err != nil {
		return err
	}
	table := tablewriter.NewWriter(w)
	table.SetHeader(cluster.ColumnTitles[:])
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetBorder(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	visible(s.Tree(), func(fn *cluster.Row, strs []*cluster.Row) {
		label := fn.Cells[cluster.FunctionColumn].Text
		if len(strs) == 0 {
			table.Append([]string{label, "", ""})
		}
		for i, r := range strs {
			if i > 0 {
				label = ""
			}
			table.Append([]string{label, r.Cells[cluster.XrefColumn].Text, r.Cells[cluster.StringColumn].Text})
		}
	})
	table.SetFooter([]string{"", "", s.Label()})
	table.Render()
	return nil
}

func writeJSON(w io.Writer, e *engine.Engine, f filterFlags) error {
	s, err := f.session(e)
	if err != nil {
		return err
	}
	digest, err := fileDigest(e.Path())
	if err != nil {
		digest = ""
	}
	out := JSONOutput{
		Path:      e.Path(),
		Digest:    digest,
		Query:     f.query,
		Strings:   s.Result().Matches,
		Functions: []JSONFunction{},
	}
	visible(s.Tree(), func(fn *cluster.Row, strs []*cluster.Row) {
		b := fn.Bucket()
		jf := JSONFunction{Name: b.Name, Strings: []JSONString{}}
		if !b.IsNoFunc() {
			jf.Address = fmt.Sprintf("0x%x", b.Addr)
		}
		for _, r := range strs {
			ref := r.Ref()
			jf.Strings = append(jf.Strings, JSONString{
				Address: fmt.Sprintf("0x%x", ref.Addr),
				Xref:    fmt.Sprintf("0x%x", ref.Xref),
				Text:    sanitizeForJSON(ref.Text),
			})
		}
		out.Functions = append(out.Functions, jf)
	})

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func writeFormat(w io.Writer, e *engine.Engine, format string, f filterFlags) error {
	switch format {
	case formatTree, "":
		return writeTree(w, e, f)
	case formatTable:
		return writeTable(w, e, f)
	case formatJSON:
		return writeJSON(w, e, f)
	default:
		return fmt.Errorf("unknown format %q (want %s, %s or %s)", format, formatTree, formatTable, formatJSON)
	}
}

func fileDigest(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", hash.Sum(nil)), nil
}

func fileType(path string) string {
	out, err := exec.Command("file", "-b", path).Output()
	if err != nil {
		return "unknown"
	}
	return strings.TrimSpace(string(out))
}
