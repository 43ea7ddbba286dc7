// Package panel renders a string cluster session as an interactive
// three-column tree with a query field and filter toggles.
package panel

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/v2/textinput"
	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/charmbracelet/lipgloss/v2"
	"github.com/charmbracelet/x/ansi"

	"strcluster/internal/cluster"
	"strcluster/internal/strcluster/styles"
)

const prompt = "Filter: "

// DefaultFunctionPercent caps the function column at a fifth of the width.
const DefaultFunctionPercent = 20

// CloseMsg asks the host to close the panel.
type CloseMsg struct{}

type focus int

const (
	focusQuery focus = iota
	focusTree
)

// ToggleKeys maps the filter toggles to their key bindings.
var ToggleKeys = map[cluster.Option]string{
	cluster.HideNonMatching: "alt+h",
	cluster.CollapseNoFunc:  "alt+c",
	cluster.UseRegex:        "alt+r",
	cluster.LiveSearch:      "alt+l",
}

// Options configure New.
type Options struct {
	FunctionPercent int
	Styles          *styles.Panel
}

// Panel is a bubbletea component. The host owns it through a pointer and
// forwards messages to Update.
type Panel struct {
	session *cluster.Session
	input   textinput.Model
	focus   focus
	rows    []*cluster.Row
	cursor  int
	offset  int
	width   int
	height  int
	funcPct int
	sortCol cluster.Column
	desc    bool
	st      styles.Panel
}

// New returns a panel showing s. The query field has the focus.
func New(s *cluster.Session, opts Options) *Panel {
	ti := textinput.New()
	ti.Prompt = ""
	ti.Placeholder = "substring, or a regular expression with alt+r"
	ti.SetValue(s.Query())

	p := &Panel{
		session: s,
		input:   ti,
		width:   80,
		height:  24,
		funcPct: opts.FunctionPercent,
		sortCol: -1,
		st:      styles.DefaultPanel(),
	}
	if opts.Styles != nil {
		p.st = *opts.Styles
	}
	if p.funcPct <= 0 {
		p.funcPct = DefaultFunctionPercent
	}
	p.refresh()
	return p
}

// Title names the panel for the host's menu bar.
func (p *Panel) Title() string { return "StringCluster" }

// Session returns the session behind the panel.
func (p *Panel) Session() *cluster.Session { return p.session }

// Rows returns the rows currently displayed, in order.
func (p *Panel) Rows() []*cluster.Row { return p.rows }

// Selected returns the row under the cursor, or nil.
func (p *Panel) Selected() *cluster.Row {
	if p.cursor < 0 || p.cursor >= len(p.rows) {
		return nil
	}
	return p.rows[p.cursor]
}

// QueryFocused reports whether keys go to the query field.
func (p *Panel) QueryFocused() bool { return p.focus == focusQuery }

// Init focuses the query field.
func (p *Panel) Init() tea.Cmd {
	return p.setFocus(focusQuery)
}

// SetSize resizes the panel.
func (p *Panel) SetSize(width, height int) {
	p.width, p.height = width, height
	p.input.SetWidth(max(width-len(prompt)-1, 10))
	p.ensureVisible()
}

// SetQuery replaces the query text as if typed.
func (p *Panel) SetQuery(q string) {
	if p.input.Value() != q {
		p.input.SetValue(q)
	}
	if q == p.session.Query() {
		return
	}
	if p.session.SetQuery(q) {
		p.refresh()
	}
}

// Search sets the query and applies it, with or without live search.
func (p *Panel) Search(q string) {
	p.SetQuery(q)
	p.session.Submit()
	p.refresh()
}

// Update handles a message.
func (p *Panel) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		p.SetSize(msg.Width, msg.Height)
		return nil
	case tea.KeyMsg:
		return p.handleKey(msg.String(), msg)
	}
	if p.focus == focusQuery {
		var cmd tea.Cmd
		p.input, cmd = p.input.Update(msg)
		return cmd
	}
	return nil
}

// handleKey dispatches a key by name. msg is forwarded to the query field
// for keys the panel does not bind itself.
func (p *Panel) handleKey(k string, msg tea.Msg) tea.Cmd {
	for o, binding := range ToggleKeys {
		if k == binding {
			p.session.Toggle(o)
			p.refresh()
			return nil
		}
	}

	switch k {
	case "tab", "shift+tab":
		if p.focus == focusQuery {
			return p.setFocus(focusTree)
		}
		return p.setFocus(focusQuery)
	}

	if p.focus == focusQuery {
		return p.handleQueryKey(k, msg)
	}
	return p.handleTreeKey(k)
}

func (p *Panel) handleQueryKey(k string, msg tea.Msg) tea.Cmd {
	switch k {
	case "enter":
		p.session.Submit()
		p.refresh()
		return nil
	case "esc", "down":
		return p.setFocus(focusTree)
	}
	if msg == nil {
		return nil
	}
	var cmd tea.Cmd
	p.input, cmd = p.input.Update(msg)
	p.SetQuery(p.input.Value())
	return cmd
}

func (p *Panel) handleTreeKey(k string) tea.Cmd {
	switch k {
	case "up", "k":
		p.move(-1)
	case "down", "j":
		p.move(1)
	case "pgup":
		p.move(-p.bodyHeight())
	case "pgdown":
		p.move(p.bodyHeight())
	case "home", "g":
		p.move(-len(p.rows))
	case "end", "G":
		p.move(len(p.rows))
	case "enter":
		p.session.Activate(p.Selected())
	case "x":
		p.session.ActivateCell(p.Selected(), cluster.XrefColumn)
	case "space":
		if r := p.Selected(); r != nil && r.Kind == cluster.FunctionRow {
			p.setCollapsed(r, !r.Collapsed)
		}
	case "left":
		if r := p.Selected(); r != nil {
			if r.Kind == cluster.StringRow {
				r = r.Parent
			}
			p.setCollapsed(r, true)
		}
	case "right":
		if r := p.Selected(); r != nil && r.Kind == cluster.FunctionRow {
			p.setCollapsed(r, false)
		}
	case "1", "2", "3":
		p.sortBy(cluster.Column(k[0] - '1'))
	case "/":
		return p.setFocus(focusQuery)
	case "esc", "q":
		return func() tea.Msg { return CloseMsg{} }
	}
	return nil
}

func (p *Panel) setFocus(f focus) tea.Cmd {
	p.focus = f
	if f == focusQuery {
		return p.input.Focus()
	}
	p.input.Blur()
	return nil
}

func (p *Panel) setCollapsed(r *cluster.Row, collapsed bool) {
	r.Collapsed = collapsed
	p.refreshKeep(r)
}

// sortBy sorts by col; sorting the same column again reverses the order.
func (p *Panel) sortBy(col cluster.Column) {
	if p.sortCol == col {
		p.desc = !p.desc
	} else {
		p.sortCol, p.desc = col, false
	}
	p.session.Sort(col, p.desc)
	p.refresh()
}

func (p *Panel) move(delta int) {
	p.cursor += delta
	p.clamp()
	p.ensureVisible()
}

func (p *Panel) clamp() {
	if p.cursor >= len(p.rows) {
		p.cursor = len(p.rows) - 1
	}
	if p.cursor < 0 {
		p.cursor = 0
	}
}

// refresh re-reads the visible rows after a filter pass, keeping the
// selected row when it is still shown.
func (p *Panel) refresh() {
	p.refreshKeep(p.Selected())
}

func (p *Panel) refreshKeep(keep *cluster.Row) {
	p.rows = p.session.Tree().Flatten()
	for i, r := range p.rows {
		if r == keep {
			p.cursor = i
			p.ensureVisible()
			return
		}
	}
	if keep != nil && keep.Parent != nil {
		// the string row went away with its collapsed parent
		for i, r := range p.rows {
			if r == keep.Parent {
				p.cursor = i
				p.ensureVisible()
				return
			}
		}
	}
	p.clamp()
	p.ensureVisible()
}

// chrome is the title, query, toggle and header lines.
const chrome = 4

func (p *Panel) bodyHeight() int {
	return max(p.height-chrome, 1)
}

func (p *Panel) ensureVisible() {
	h := p.bodyHeight()
	if p.cursor < p.offset {
		p.offset = p.cursor
	}
	if p.cursor >= p.offset+h {
		p.offset = p.cursor - h + 1
	}
	if p.offset > max(len(p.rows)-h, 0) {
		p.offset = max(len(p.rows)-h, 0)
	}
	if p.offset < 0 {
		p.offset = 0
	}
}

// columnWidths sizes the three columns. The function column fits the
// widest label but never exceeds funcPct of the width.
func (p *Panel) columnWidths() (fn, xref, str int) {
	const prefix = 2
	for _, r := range p.session.Tree().Roots {
		fn = max(fn, ansi.StringWidth(r.Cells[cluster.FunctionColumn].Text)+prefix)
		for _, c := range r.Children {
			xref = max(xref, len(c.Cells[cluster.XrefColumn].Text))
		}
	}
	fn = min(fn, p.width*p.funcPct/100)
	fn = max(fn, len(cluster.ColumnTitles[cluster.FunctionColumn]))
	xref = max(xref, len(cluster.ColumnTitles[cluster.XrefColumn]))
	str = max(p.width-fn-xref-2, 10)
	return fn, xref, str
}

// View renders the panel.
func (p *Panel) View() string {
	var b strings.Builder

	status := p.st.Status.Render(p.session.Label())
	if err := p.session.Result().Err; err != nil {
		status += "  " + p.st.Error.Render(err.Error())
	}
	b.WriteString(p.st.Title.Render(p.Title()) + "  " + status + "\n")
	b.WriteString(p.st.Prompt.Render(prompt) + p.input.View() + "\n")
	b.WriteString(p.togglesView() + "\n")

	fnW, xrefW, strW := p.columnWidths()
	b.WriteString(p.st.Header.Render(fit(cluster.ColumnTitles[0], fnW)+" "+
		fit(cluster.ColumnTitles[1], xrefW)+" "+fit(cluster.ColumnTitles[2], strW)) + "\n")

	end := min(p.offset+p.bodyHeight(), len(p.rows))
	for i := p.offset; i < end; i++ {
		b.WriteString(p.rowView(p.rows[i], i == p.cursor, fnW, xrefW, strW))
		if i < end-1 {
			b.WriteByte('\n')
		}
	}
	if len(p.rows) == 0 {
		b.WriteString(p.st.Status.Render("  no strings"))
	}
	return b.String()
}

func (p *Panel) togglesView() string {
	opts := p.session.Options()
	parts := make([]string, 0, len(cluster.AllOptions))
	for _, o := range cluster.AllOptions {
		if opts.Get(o) {
			parts = append(parts, p.st.ToggleOn.Render(fmt.Sprintf("[x] %s (%s)", o, ToggleKeys[o])))
		} else {
			parts = append(parts, p.st.ToggleOff.Render(fmt.Sprintf("[ ] %s (%s)", o, ToggleKeys[o])))
		}
	}
	return strings.Join(parts, "  ")
}

func (p *Panel) rowView(r *cluster.Row, selected bool, fnW, xrefW, strW int) string {
	if r.Kind == cluster.FunctionRow {
		marker := "▾ "
		if r.Collapsed {
			marker = "▸ "
		}
		c := r.Cells[cluster.FunctionColumn]
		text := fit(marker+c.Text, fnW)
		base := p.st.Function
		if r.IsNoFunc() {
			base = p.st.NoFunc
		}
		return p.cell(text, c.Highlighted, selected, base)
	}

	xc, sc := r.Cells[cluster.XrefColumn], r.Cells[cluster.StringColumn]
	return p.cell(strings.Repeat(" ", fnW+1), false, selected, p.st.Function) +
		p.cell(fit(xc.Text, xrefW), xc.Highlighted, selected, p.st.Xref) +
		p.cell(" ", false, selected, p.st.String) +
		p.cell(fit(sc.Text, strW), sc.Highlighted, selected, p.st.String)
}

func (p *Panel) cell(text string, highlighted, selected bool, base lipgloss.Style) string {
	switch {
	case highlighted:
		return p.st.Highlight.Render(text)
	case selected:
		return p.st.Cursor.Render(text)
	default:
		return base.Render(text)
	}
}

// fit truncates s to w cells and pads it with spaces.
func fit(s string, w int) string {
	s = ansi.Truncate(s, w, "…")
	if n := ansi.StringWidth(s); n < w {
		s += strings.Repeat(" ", w-n)
	}
	return s
}
