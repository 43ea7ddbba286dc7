package cluster

import (
	"github.com/charmbracelet/log"
)

// Navigator moves the host's view to an address.
type Navigator interface {
	JumpTo(addr uint64)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(addr uint64)

// JumpTo calls f(addr).
func (f NavigatorFunc) JumpTo(addr uint64) { f(addr) }

// Session is one opening of the string view. It aggregates once, keeps the
// buckets for its whole lifetime and re-filters the tree on demand. A
// session is not safe for concurrent use; the host drives it from its event
// loop.
type Session struct {
	buckets *Buckets
	tree    *Tree
	nav     Navigator
	opts    Options
	query   string
	result  Result
}

// Open aggregates src and returns a session showing the unfiltered tree.
func Open(src Source, nav Navigator, opts Options) *Session {
	return NewSession(AggregateSource(src), nav, opts)
}

// NewSession builds a session over already aggregated buckets.
func NewSession(bs *Buckets, nav Navigator, opts Options) *Session {
	s := &Session{
		buckets: bs,
		tree:    Build(bs),
		nav:     nav,
		opts:    opts,
	}
	s.refilter()
	return s
}

// Buckets returns the aggregation the session was opened with.
func (s *Session) Buckets() *Buckets { return s.buckets }

// Tree returns the presentation model. Its flags reflect the last pass.
func (s *Session) Tree() *Tree { return s.tree }

// Options returns the current toggles.
func (s *Session) Options() Options { return s.opts }

// Query returns the current query text, applied or not.
func (s *Session) Query() string { return s.query }

// Result returns the outcome of the last filter pass.
func (s *Session) Result() Result { return s.result }

// Label renders the "%d strings" counter of the last pass.
func (s *Session) Label() string { return s.result.Label() }

// SetQuery records a new query text. It re-filters right away only in live
// search mode and reports whether it did.
func (s *Session) SetQuery(q string) bool {
	s.query = q
	if !s.opts.LiveSearch {
		return false
	}
	s.refilter()
	return true
}

// Submit re-filters with the current query regardless of live search.
func (s *Session) Submit() {
	s.refilter()
}

// SetOption switches a toggle and re-filters.
func (s *Session) SetOption(o Option, on bool) {
	s.opts = s.opts.Set(o, on)
	s.refilter()
}

// Toggle flips a toggle and re-filters.
func (s *Session) Toggle(o Option) {
	s.SetOption(o, !s.opts.Get(o))
}

// Sort reorders the tree. Visibility flags are kept.
func (s *Session) Sort(col Column, descending bool) {
	s.tree.Sort(col, descending)
}

// Activate navigates to the row's target. It reports whether a jump was
// requested; rows without an address are ignored.
func (s *Session) Activate(r *Row) bool {
	if r == nil {
		return false
	}
	return s.jump(r.Target())
}

// ActivateCell navigates to the address of one cell of r, so that the xref
// column of a string row can jump to the referencing code.
func (s *Session) ActivateCell(r *Row, col Column) bool {
	if r == nil {
		return false
	}
	return s.jump(r.Cell(col).Addr)
}

func (s *Session) jump(addr uint64) bool {
	if addr == NoAddress || s.nav == nil {
		return false
	}
	log.Debug("jump", "addr", hexAddr(addr))
	s.nav.JumpTo(addr)
	return true
}

func (s *Session) refilter() {
	s.result = Apply(s.tree, s.query, s.opts)
	if s.result.Err != nil {
		log.Debug("filter", "error", s.result.Err)
	}
}
