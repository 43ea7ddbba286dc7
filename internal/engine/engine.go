// Package engine loads an ARM64 ELF image and serves its strings, their
// references and the functions holding them to the clustering core.
package engine

import (
	"debug/elf"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"strcluster/internal/analysis"
	"strcluster/internal/cluster"
	"strcluster/internal/disasm"
	"strcluster/internal/elfx"
)

var ErrUnsupportedMachine = errors.New("engine: unsupported machine")

// Options control Load.
type Options struct {
	MinStringLength int
	Unterminated    bool
	Demangle        bool
}

// Stats summarises a loaded image.
type Stats struct {
	Strings    int
	Referenced int
	Xrefs      int
	Functions  int
	Size       uint64 // bytes mapped
	Elapsed    time.Duration
}

// Engine is a loaded image. It is read-only once Load returns.
type Engine struct {
	im      *elfx.Image
	strings []analysis.StringResult
	byAddr  map[uint64]int
	xrefs   *analysis.XrefIndex
	funcs   *analysis.FunctionIndex
	stats   Stats
}

// Load opens path and runs the string, reference and function passes.
func Load(path string, opts Options) (*Engine, error) {
	start := time.Now()
	im, err := elfx.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	if im.Machine != elf.EM_AARCH64 {
		im.Close()
		return nil, fmt.Errorf("load %s: %w: %s", path, ErrUnsupportedMachine, im.Machine)
	}
	e, err := New(im, opts)
	if err != nil {
		im.Close()
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	e.stats.Elapsed = time.Since(start)
	log.Info("loaded", "path", path, "size", humanize.Bytes(e.stats.Size), "strings", e.stats.Strings,
		"xrefs", e.stats.Xrefs, "functions", e.stats.Functions, "elapsed", e.stats.Elapsed)
	return e, nil
}

// New runs the analysis passes over an image that is already open. The
// engine takes ownership of im.
func New(im *elfx.Image, opts Options) (*Engine, error) {
	ro, err := im.ReadOnlyData()
	if err != nil {
		return nil, err
	}

	// The function index does not depend on the strings, so it is built
	// while the strings are extracted and their references resolved.
	var (
		g      errgroup.Group
		strs   []analysis.StringResult
		byAddr map[uint64]int
		xrefs  *analysis.XrefIndex
		funcs  *analysis.FunctionIndex
	)
	g.Go(func() error {
		strs = analysis.ExtractStrings(ro, analysis.ExtractOptions{
			MinLength:    opts.MinStringLength,
			Unterminated: opts.Unterminated,
		})
		byAddr = make(map[uint64]int, len(strs))
		for i, s := range strs {
			byAddr[s.VA] = i
		}
		xrefs = analysis.BuildXrefIndex(im, func(va uint64) bool {
			_, ok := byAddr[va]
			return ok
		})
		return nil
	})
	g.Go(func() error {
		funcs = analysis.NewFunctionIndex(im, opts.Demangle)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	e := &Engine{
		im:      im,
		strings: strs,
		byAddr:  byAddr,
		xrefs:   xrefs,
		funcs:   funcs,
	}
	e.stats = Stats{
		Strings: len(strs),
		Referenced: lo.CountBy(strs, func(s analysis.StringResult) bool {
			return len(e.xrefs.XrefsTo(s.VA)) > 0
		}),
		Xrefs:     e.xrefs.Len(),
		Functions: e.funcs.Len(),
		Size:      uint64(len(im.All)),
	}
	return e, nil
}

// Close releases the mapped image.
func (e *Engine) Close() error { return e.im.Close() }

// Path returns the file the engine was loaded from.
func (e *Engine) Path() string { return e.im.Path }

// Stats returns load statistics.
func (e *Engine) Stats() Stats { return e.stats }

// Image exposes the mapped ELF image.
func (e *Engine) Image() *elfx.Image { return e.im }

// Strings returns every extracted string in address order.
func (e *Engine) Strings() []cluster.StringRecord {
	return lo.Map(e.strings, func(s analysis.StringResult, _ int) cluster.StringRecord {
		return cluster.NewStringRecord(s.VA, s.Value)
	})
}

// XrefsTo returns the code and data addresses referring to addr.
func (e *Engine) XrefsTo(addr uint64) []uint64 { return e.xrefs.XrefsTo(addr) }

// FunctionOf returns the function whose range contains addr.
func (e *Engine) FunctionOf(addr uint64) (cluster.Function, bool) {
	f, ok := e.funcs.Lookup(addr)
	if !ok {
		return cluster.Function{}, false
	}
	return cluster.Function{Start: f.Start, Name: f.Name}, true
}

// Functions returns the function symbols in address order.
func (e *Engine) Functions() []analysis.FuncSymbol { return e.funcs.Functions() }

// SymbolAt names a function start, for disassembly labels.
func (e *Engine) SymbolAt(addr uint64) (string, bool) {
	f, ok := e.funcs.At(addr)
	return f.Name, ok
}

// MaxListing caps the instructions Describe prints.
const MaxListing = 512

// Describe renders what lives at addr: the disassembly of the surrounding
// function for code, or the string and its referrers for data.
func (e *Engine) Describe(addr uint64) (string, error) {
	if e.im.IsExec(addr) {
		return e.describeCode(addr)
	}
	if i, ok := e.byAddr[addr]; ok {
		return e.describeString(e.strings[i]), nil
	}
	if s, ok := analysis.ReadCString(e.im, addr, analysis.MaxStringLength); ok {
		return fmt.Sprintf("%#x: %q\n", addr, s.Value), nil
	}
	return "", fmt.Errorf("describe %#x: %w", addr, elfx.ErrUnmappedAddress)
}

func (e *Engine) describeCode(addr uint64) (string, error) {
	start, end := addr&^3, (addr&^3)+64
	if f, ok := e.funcs.Lookup(addr); ok {
		start, end = f.Start, f.End
	}
	if n := (end - start) / 4; n > MaxListing {
		end = start + MaxListing*4
	}
	data, ok := e.im.ReadUpToVA(start, int(end-start))
	if !ok {
		return "", fmt.Errorf("describe %#x: %w", addr, elfx.ErrUnmappedAddress)
	}
	stream := disasm.Disassemble(data, disasm.Options{BaseAddr: start})
	var b strings.Builder
	b.WriteString(disasm.Format(stream, e.SymbolAt))
	for _, in := range stream {
		for _, t := range e.xrefs.RefsFrom(in.VA) {
			if i, ok := e.byAddr[t]; ok {
				fmt.Fprintf(&b, "; %#x -> %q\n", in.VA, e.strings[i].Value)
			}
		}
	}
	return b.String(), nil
}

func (e *Engine) describeString(s analysis.StringResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%#x  (%d bytes)\n\n%s\n\nreferenced from:\n", s.VA, s.Len, cluster.EscapeUnprintable(s.Value))
	refs := e.xrefs.XrefsTo(s.VA)
	if len(refs) == 0 {
		b.WriteString("  (none)\n")
	}
	for _, r := range refs {
		name := "?"
		if f, ok := e.funcs.Lookup(r); ok {
			name = fmt.Sprintf("%s+%#x", f.Name, r-f.Start)
		}
		fmt.Fprintf(&b, "  %#x  %s\n", r, name)
	}
	return b.String()
}

var _ cluster.Source = (*Engine)(nil)
