package cluster

import (
	"fmt"
	"strings"

	"github.com/grafana/regexp"
)

// Option names one of the four filter toggles.
type Option int

const (
	HideNonMatching Option = iota
	UseRegex
	CollapseNoFunc
	LiveSearch
)

// AllOptions lists the toggles in the order the panel shows them.
var AllOptions = []Option{HideNonMatching, CollapseNoFunc, UseRegex, LiveSearch}

func (o Option) String() string {
	switch o {
	case HideNonMatching:
		return "Hide no match"
	case UseRegex:
		return "Regex"
	case CollapseNoFunc:
		return "Collapse " + NoFuncName
	case LiveSearch:
		return "Live search"
	default:
		return fmt.Sprintf("Option(%d)", int(o))
	}
}

// Options are the filter toggles of a session.
type Options struct {
	UseRegex        bool
	HideNonMatching bool
	CollapseNoFunc  bool
	LiveSearch      bool
}

// Get returns the state of o.
func (opts Options) Get(o Option) bool {
	switch o {
	case HideNonMatching:
		return opts.HideNonMatching
	case UseRegex:
		return opts.UseRegex
	case CollapseNoFunc:
		return opts.CollapseNoFunc
	case LiveSearch:
		return opts.LiveSearch
	}
	return false
}

// Set returns a copy of opts with o switched to on.
func (opts Options) Set(o Option, on bool) Options {
	switch o {
	case HideNonMatching:
		opts.HideNonMatching = on
	case UseRegex:
		opts.UseRegex = on
	case CollapseNoFunc:
		opts.CollapseNoFunc = on
	case LiveSearch:
		opts.LiveSearch = on
	}
	return opts
}

// Result summarises one filter pass.
type Result struct {
	// Matches counts string rows whose text cell passed the filter. With an
	// empty query nothing is filtered out, so every string row counts.
	Matches int
	// Err is set when the query is not a valid regular expression. The pass
	// still completes with every cell treated as non-matching.
	Err error
}

// Label renders the match counter.
func (r Result) Label() string {
	return fmt.Sprintf("%d strings", r.Matches)
}

type matchFunc func(text string) bool

func noMatch(string) bool { return false }

func compileQuery(query string, useRegex bool) (matchFunc, error) {
	if useRegex {
		re, err := regexp.Compile(query)
		if err != nil {
			return noMatch, fmt.Errorf("invalid filter expression %q: %w", query, err)
		}
		return re.MatchString, nil
	}
	q := strings.ToLower(query)
	return func(text string) bool {
		return strings.Contains(strings.ToLower(text), q)
	}, nil
}

// Apply runs one filter pass over t, updating every row's Hidden and
// Collapsed flags and every cell's highlight.
//
// A string row stays visible when any of its columns matches. Its first
// column is empty on screen, with the function label standing above it, so
// the label is tested in its place. A function row is only hidden when
// HideNonMatching is set and neither its label nor any of its strings
// matched. The NoFunc row is collapsed, never hidden, when CollapseNoFunc is
// set and its label does not match.
//
// Cells are matched on their displayed text, so escapes such as \n are
// searchable as typed. Highlight and visibility are tracked separately. A
// hidden row never carries a highlight, as a hit keeps its row visible, but a
// highlighted string may sit under a collapsed NoFunc row and stay off screen.
func Apply(t *Tree, query string, opts Options) Result {
	var res Result
	if query == "" {
		for _, fn := range t.Roots {
			fn.Hidden = false
			fn.Cells[FunctionColumn].Highlighted = false
			for _, s := range fn.Children {
				s.Hidden = false
				for i := range s.Cells {
					s.Cells[i].Highlighted = false
				}
				res.Matches++
			}
			if fn.IsNoFunc() {
				fn.Collapsed = opts.CollapseNoFunc
			}
		}
		return res
	}

	match, err := compileQuery(query, opts.UseRegex)
	res.Err = err

	for _, fn := range t.Roots {
		labelHit := match(fn.Cells[FunctionColumn].Text)
		fn.Cells[FunctionColumn].Highlighted = labelHit

		childHit := false
		for _, s := range fn.Children {
			xrefHit := match(s.Cells[XrefColumn].Text)
			strHit := match(s.Cells[StringColumn].Text)

			s.Cells[FunctionColumn].Highlighted = false
			s.Cells[XrefColumn].Highlighted = xrefHit
			s.Cells[StringColumn].Highlighted = strHit

			rowHit := labelHit || xrefHit || strHit
			s.Hidden = !rowHit
			if xrefHit || strHit {
				childHit = true
			}
			if strHit {
				res.Matches++
			}
		}

		fn.Hidden = opts.HideNonMatching && !labelHit && !childHit
		if fn.IsNoFunc() {
			fn.Collapsed = opts.CollapseNoFunc && !labelHit
		}
	}
	return res
}
