package analysis

import (
	"sort"
	"sync"

	"github.com/ianlancetaylor/demangle"

	"strcluster/internal/elfx"
)

// symbolCache memoizes demangled names. Safe for concurrent use.
type symbolCache struct {
	mu            sync.RWMutex
	demangleCache map[string]string
	hits          int
}

var cache = &symbolCache{
	demangleCache: make(map[string]string),
}

// CachedDemangle performs demangling with caching support. Names that are
// not mangled come back unchanged.
func CachedDemangle(mangled string) string {
	cache.mu.RLock()
	if cached, exists := cache.demangleCache[mangled]; exists {
		cache.mu.RUnlock()
		cache.mu.Lock()
		cache.hits++
		cache.mu.Unlock()
		return cached
	}
	cache.mu.RUnlock()

	demangled := demangle.Filter(mangled, demangle.NoClones)

	cache.mu.Lock()
	cache.demangleCache[mangled] = demangled
	cache.mu.Unlock()
	return demangled
}

// DemangleCacheStats returns the number of cached names and cache hits.
func DemangleCacheStats() (symbols, hits int) {
	cache.mu.RLock()
	defer cache.mu.RUnlock()
	return len(cache.demangleCache), cache.hits
}

// FuncSymbol is a function with its address range [Start, End).
type FuncSymbol struct {
	Start uint64
	End   uint64
	Name  string // demangled when requested
	Raw   string // symbol table name
}

// FunctionIndex finds the function containing an address.
type FunctionIndex struct {
	funcs []FuncSymbol // sorted by Start, sized symbols may overlap
	reach []uint64     // reach[i] is the largest End among funcs[:i+1]
}

// NewFunctionIndex collects the function symbols of im. A symbol with no
// size runs up to the next function or the end of its executable segment.
// PLT stubs are left out, strings are never referenced from there.
func NewFunctionIndex(im *elfx.Image, demangleNames bool) *FunctionIndex {
	var syms []elfx.Symbol
	for _, s := range im.Symbols {
		if s.Func && !s.IsPLT && !im.IsPLTEntry(s.Addr) && im.IsExec(s.Addr) {
			syms = append(syms, s)
		}
	}
	return newFunctionIndex(syms, im.Loads, demangleNames)
}

func newFunctionIndex(syms []elfx.Symbol, loads []elfx.Seg, demangleNames bool) *FunctionIndex {
	sort.SliceStable(syms, func(i, j int) bool {
		if syms[i].Addr != syms[j].Addr {
			return syms[i].Addr < syms[j].Addr
		}
		// prefer the sized alias
		return syms[i].Size > syms[j].Size
	})

	fi := &FunctionIndex{}
	for i, s := range syms {
		if i > 0 && syms[i-1].Addr == s.Addr {
			continue // alias
		}
		end := s.Addr + s.Size
		if s.Size == 0 {
			end = segmentEnd(loads, s.Addr)
			for _, next := range syms[i+1:] {
				if next.Addr > s.Addr {
					end = min(end, next.Addr)
					break
				}
			}
		}
		name := s.Name
		if demangleNames {
			name = CachedDemangle(name)
		}
		fi.funcs = append(fi.funcs, FuncSymbol{Start: s.Addr, End: end, Name: name, Raw: s.Name})
		if n := len(fi.reach); n > 0 {
			end = max(end, fi.reach[n-1])
		}
		fi.reach = append(fi.reach, end)
	}
	return fi
}

func segmentEnd(loads []elfx.Seg, va uint64) uint64 {
	for _, l := range loads {
		if l.Contains(va) {
			return l.Vaddr + l.Filesz
		}
	}
	return va + 1
}

// Len returns the number of functions.
func (fi *FunctionIndex) Len() int { return len(fi.funcs) }

// Functions returns all functions in address order.
func (fi *FunctionIndex) Functions() []FuncSymbol { return fi.funcs }

// Lookup returns the function whose range contains addr. When sized
// functions overlap, the one starting closest below addr wins.
func (fi *FunctionIndex) Lookup(addr uint64) (FuncSymbol, bool) {
	i := sort.Search(len(fi.funcs), func(i int) bool { return fi.funcs[i].Start > addr })
	for j := i - 1; j >= 0 && fi.reach[j] > addr; j-- {
		if addr < fi.funcs[j].End {
			return fi.funcs[j], true
		}
	}
	return FuncSymbol{}, false
}

// At returns the function starting exactly at addr.
func (fi *FunctionIndex) At(addr uint64) (FuncSymbol, bool) {
	f, ok := fi.Lookup(addr)
	if !ok || f.Start != addr {
		return FuncSymbol{}, false
	}
	return f, true
}
