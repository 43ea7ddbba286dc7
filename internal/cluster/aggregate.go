package cluster

import (
	"time"

	"github.com/charmbracelet/log"
)

// XrefLookup returns the addresses that reference addr.
type XrefLookup func(addr uint64) []uint64

// FunctionLookup returns the function containing addr. ok is false when
// addr belongs to no known function.
type FunctionLookup func(addr uint64) (fn Function, ok bool)

// Source is the analysis engine the aggregation runs against.
type Source interface {
	Strings() []StringRecord
	XrefsTo(addr uint64) []uint64
	FunctionOf(addr uint64) (Function, bool)
}

// AggregateSource groups src's strings by referencing function.
func AggregateSource(src Source) *Buckets {
	return Aggregate(src.Strings(), src.XrefsTo, src.FunctionOf)
}

// Aggregate groups records by the function of every address that references
// them. When xrefs is nil the records' own Xrefs are used. A record without
// references is attributed to the function holding the record itself, so
// every record lands in at least one bucket.
//
// Within a bucket a text seen again through a different reference replaces
// the earlier ref.
func Aggregate(records []StringRecord, xrefs XrefLookup, funcs FunctionLookup) *Buckets {
	start := time.Now()
	bs := newBuckets()

	for _, rec := range records {
		refs := rec.Xrefs
		if xrefs != nil {
			refs = xrefs(rec.Addr)
		}
		if len(refs) == 0 {
			log.Debug("no xref found", "addr", hexAddr(rec.Addr), "text", rec.Text)
			refs = []uint64{rec.Addr}
		}

		// the same string can be referenced by more than one function
		for _, from := range refs {
			key, name := NoFunc, NoFuncName
			if funcs != nil {
				if fn, ok := funcs(from); ok && fn.Name != "" {
					key, name = fn.Start, fn.Name
				}
			}
			bs.bucket(key, name).put(StringRef{
				Text: rec.Text,
				Addr: rec.Addr,
				Xref: from,
			})
		}
	}

	log.Debug("aggregated strings",
		"records", len(records),
		"buckets", bs.Len(),
		"rows", bs.StringCount(),
		"elapsed", time.Since(start))
	return bs
}
