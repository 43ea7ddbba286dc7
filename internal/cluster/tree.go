package cluster

import (
	"cmp"
	"slices"
	"strconv"
	"strings"
)

// Column indexes the three columns of the tree.
type Column int

const (
	FunctionColumn Column = iota
	XrefColumn
	StringColumn
)

// ColumnTitles are the header labels, indexed by Column.
var ColumnTitles = [...]string{"Function", "Xref EA", "String"}

func (c Column) String() string {
	if c < 0 || int(c) >= len(ColumnTitles) {
		return "Column(" + strconv.Itoa(int(c)) + ")"
	}
	return ColumnTitles[c]
}

// RowKind tells function rows from string rows.
type RowKind int

const (
	FunctionRow RowKind = iota
	StringRow
)

// Cell is one displayed value with the address activating it jumps to.
type Cell struct {
	Text        string
	Addr        uint64
	Highlighted bool
}

// Row is a node of the two-level tree. Function rows carry a single label
// cell and own their string rows. String rows carry one cell per Column.
type Row struct {
	Kind      RowKind
	Cells     []Cell
	Hidden    bool
	Collapsed bool
	Parent    *Row
	Children  []*Row

	bucket *Bucket
	ref    StringRef
}

// Target is the address the row navigates to as a whole: the function start
// for function rows and the string itself for string rows.
func (r *Row) Target() uint64 {
	if r.Kind == FunctionRow {
		return r.Cells[FunctionColumn].Addr
	}
	return r.Cells[StringColumn].Addr
}

// Cell returns the cell displayed in col. Function rows only fill the first
// column; other columns come back empty with NoAddress.
func (r *Row) Cell(col Column) Cell {
	if int(col) < len(r.Cells) {
		return r.Cells[col]
	}
	return Cell{Addr: NoAddress}
}

// IsNoFunc reports whether r is the function row of the NoFunc bucket.
func (r *Row) IsNoFunc() bool {
	return r.Kind == FunctionRow && r.bucket != nil && r.bucket.IsNoFunc()
}

// Bucket returns the bucket behind a function row, or the parent's bucket
// for a string row.
func (r *Row) Bucket() *Bucket {
	if r.Kind == StringRow && r.Parent != nil {
		return r.Parent.bucket
	}
	return r.bucket
}

// Ref returns the string behind a string row.
func (r *Row) Ref() StringRef { return r.ref }

// Tree is the presentation model of a set of buckets.
type Tree struct {
	Roots []*Row
}

// Build lays buckets out as one function row per bucket with one string row
// per distinct string. Every row starts visible and expanded. String cells
// hold the escaped text as displayed; the raw text stays in Ref.
func Build(bs *Buckets) *Tree {
	t := &Tree{}
	for _, b := range bs.All() {
		fn := &Row{
			Kind:   FunctionRow,
			Cells:  []Cell{{Text: b.Label(), Addr: b.Addr}},
			bucket: b,
		}
		for _, ref := range b.Refs() {
			fn.Children = append(fn.Children, &Row{
				Kind: StringRow,
				Cells: []Cell{
					{Text: "", Addr: NoAddress},
					{Text: hexAddr(ref.Xref), Addr: ref.Xref},
					{Text: EscapeUnprintable(ref.Text), Addr: ref.Addr},
				},
				Parent: fn,
				ref:    ref,
			})
		}
		t.Roots = append(t.Roots, fn)
	}
	return t
}

// StringCount returns the number of string rows.
func (t *Tree) StringCount() int {
	n := 0
	for _, fn := range t.Roots {
		n += len(fn.Children)
	}
	return n
}

// Flatten returns the rows a view shows, in display order: rows not hidden
// and not below a collapsed function row.
func (t *Tree) Flatten() []*Row {
	var out []*Row
	for _, fn := range t.Roots {
		if fn.Hidden {
			continue
		}
		out = append(out, fn)
		if fn.Collapsed {
			continue
		}
		for _, s := range fn.Children {
			if !s.Hidden {
				out = append(out, s)
			}
		}
	}
	return out
}

// Sort orders the tree by col. FunctionColumn reorders function rows by
// label; the other columns reorder string rows inside each function row.
// The sort is stable so equal keys keep their aggregation order.
func (t *Tree) Sort(col Column, descending bool) {
	dir := 1
	if descending {
		dir = -1
	}
	switch col {
	case FunctionColumn:
		slices.SortStableFunc(t.Roots, func(a, b *Row) int {
			return dir * strings.Compare(a.Cells[0].Text, b.Cells[0].Text)
		})
	case XrefColumn:
		for _, fn := range t.Roots {
			slices.SortStableFunc(fn.Children, func(a, b *Row) int {
				return dir * cmp.Compare(a.ref.Xref, b.ref.Xref)
			})
		}
	case StringColumn:
		for _, fn := range t.Roots {
			slices.SortStableFunc(fn.Children, func(a, b *Row) int {
				return dir * strings.Compare(a.ref.Text, b.ref.Text)
			})
		}
	}
}

func hexAddr(addr uint64) string {
	return strconv.FormatUint(addr, 16)
}
