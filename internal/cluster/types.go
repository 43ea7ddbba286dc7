// Package cluster groups the strings of a binary by the function that
// references them and drives the filterable two-level tree built from
// that grouping.
//
// The package knows nothing about binary formats or user interfaces. It
// consumes string records, cross-references and function boundaries through
// the Source interface and reports navigation requests through Navigator.
package cluster

import (
	"fmt"
	"strings"
	"unicode"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

const (
	// NoAddress marks a cell or row that has nothing to navigate to.
	NoAddress = ^uint64(0)

	// NoFunc is the bucket key for references that fall outside any function.
	NoFunc = NoAddress

	// NoFuncName is the display name of the NoFunc bucket.
	NoFuncName = "0_sub"
)

// StringRecord is a string discovered in the binary.
type StringRecord struct {
	Addr  uint64
	Text  string
	Xrefs []uint64 // addresses referencing Addr, possibly empty
}

// NewStringRecord builds a record with trailing whitespace removed from text.
func NewStringRecord(addr uint64, text string, xrefs ...uint64) StringRecord {
	rec := StringRecord{
		Addr: addr,
		Text: strings.TrimRightFunc(text, unicode.IsSpace),
	}
	if len(xrefs) > 0 {
		rec.Xrefs = append([]uint64(nil), xrefs...)
	}
	return rec
}

// Function identifies the function enclosing an address.
type Function struct {
	Start uint64
	Name  string
}

// StringRef is one string as seen from one function: the text, where the
// string lives and the address inside the function that references it.
type StringRef struct {
	Text string
	Addr uint64
	Xref uint64
}

// Bucket holds the distinct strings referenced by one function, keyed by
// text in first-seen order.
type Bucket struct {
	Addr    uint64
	Name    string
	strings *orderedmap.OrderedMap[string, StringRef]
}

func newBucket(addr uint64, name string) *Bucket {
	return &Bucket{
		Addr:    addr,
		Name:    name,
		strings: orderedmap.New[string, StringRef](),
	}
}

// put stores ref under its text. A text already present keeps its position
// and takes the new value.
func (b *Bucket) put(ref StringRef) {
	b.strings.Set(ref.Text, ref)
}

// Len returns the number of distinct texts in the bucket.
func (b *Bucket) Len() int { return b.strings.Len() }

// IsNoFunc reports whether b collects references outside any function.
func (b *Bucket) IsNoFunc() bool { return b.Addr == NoFunc }

// Label is the function row text: "name (count)".
func (b *Bucket) Label() string {
	return fmt.Sprintf("%s (%d)", b.Name, b.Len())
}

// Get returns the ref stored for text.
func (b *Bucket) Get(text string) (StringRef, bool) {
	return b.strings.Get(text)
}

// Refs returns the bucket's strings in insertion order.
func (b *Bucket) Refs() []StringRef {
	refs := make([]StringRef, 0, b.strings.Len())
	for p := b.strings.Oldest(); p != nil; p = p.Next() {
		refs = append(refs, p.Value)
	}
	return refs
}

// Buckets maps function start addresses to buckets in insertion order.
type Buckets struct {
	m *orderedmap.OrderedMap[uint64, *Bucket]
}

func newBuckets() *Buckets {
	return &Buckets{m: orderedmap.New[uint64, *Bucket]()}
}

func (bs *Buckets) bucket(addr uint64, name string) *Bucket {
	if b, ok := bs.m.Get(addr); ok {
		return b
	}
	b := newBucket(addr, name)
	bs.m.Set(addr, b)
	return b
}

// Len returns the number of buckets.
func (bs *Buckets) Len() int { return bs.m.Len() }

// Get returns the bucket keyed by a function start address or NoFunc.
func (bs *Buckets) Get(addr uint64) (*Bucket, bool) {
	return bs.m.Get(addr)
}

// All returns the buckets in insertion order.
func (bs *Buckets) All() []*Bucket {
	out := make([]*Bucket, 0, bs.m.Len())
	for p := bs.m.Oldest(); p != nil; p = p.Next() {
		out = append(out, p.Value)
	}
	return out
}

// StringCount sums the distinct strings over all buckets. A string
// referenced from two functions counts twice.
func (bs *Buckets) StringCount() int {
	n := 0
	for p := bs.m.Oldest(); p != nil; p = p.Next() {
		n += p.Value.Len()
	}
	return n
}
