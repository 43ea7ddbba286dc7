package cmd

import (
	"context"
	"debug/elf"
	"fmt"
	"io"
	"os"
	pathpkg "path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/v2/list"
	"github.com/charmbracelet/bubbles/v2/spinner"
	"github.com/charmbracelet/bubbles/v2/viewport"
	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/charmbracelet/lipgloss/v2"
	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"

	"strcluster/internal/cluster"
	"strcluster/internal/config"
	"strcluster/internal/engine"
	"strcluster/internal/plugin"
	"strcluster/internal/strcluster/styles"
	"strcluster/internal/ui/colorize"
	"strcluster/internal/ui/panel"
)

type viewMode int

const (
	viewOverview viewMode = iota
	viewFunctions
	viewListing
	viewPanel
)

// jumpQueue collects navigation requests of the active panel. The model
// drains it after every panel update.
type jumpQueue struct {
	addrs []uint64
}

func (q *jumpQueue) JumpTo(addr uint64) { q.addrs = append(q.addrs, addr) }

func (q *jumpQueue) drain() []uint64 {
	out := q.addrs
	q.addrs = nil
	return out
}

// host is what plugins see of the model. It is shared by pointer so a
// plugin initialised before the binary finished loading sees the engine.
type host struct {
	engine *engine.Engine
	jumps  *jumpQueue
	opts   cluster.Options
}

func (h *host) Source() cluster.Source {
	if h.engine == nil {
		return nil
	}
	return h.engine
}

func (h *host) Navigator() cluster.Navigator { return h.jumps }
func (h *host) Options() cluster.Options     { return h.opts }

type functionItem struct {
	start   uint64
	name    string
	strings int
}

func (i functionItem) Title() string       { return fmt.Sprintf("%x  %s", i.start, i.name) }
func (i functionItem) Description() string { return "" }
func (i functionItem) FilterValue() string { return fmt.Sprintf("%x %s", i.start, i.name) }

type functionDelegate struct{}

func (d functionDelegate) Height() int                               { return 1 }
func (d functionDelegate) Spacing() int                              { return 0 }
func (d functionDelegate) Update(msg tea.Msg, m *list.Model) tea.Cmd { return nil }

func (d functionDelegate) Render(w io.Writer, m list.Model, index int, listItem list.Item) {
	i, ok := listItem.(functionItem)
	if !ok {
		return
	}
	indicator := " "
	addrStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	if index == m.Index() {
		indicator = ">"
		addrStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("170"))
	}
	count := ""
	if i.strings > 0 {
		count = lipgloss.NewStyle().Foreground(lipgloss.Color(styles.String)).Render(fmt.Sprintf("  (%d)", i.strings))
	}
	fmt.Fprintf(w, " %s  %s  %s%s", indicator,
		addrStyle.Render(fmt.Sprintf("%x", i.start)),
		lipgloss.NewStyle().Foreground(lipgloss.Color(styles.Function)).Render(i.name),
		count)
}

type digestCalculatedMsg struct {
	digest string
}

type fileTypeMsg struct {
	fileType string
}

type engineLoadedMsg struct {
	engine *engine.Engine
	err    error
}

func calculateDigestCmd(path string) tea.Cmd {
	return func() tea.Msg {
		digest, err := fileDigest(path)
		if err != nil {
			return digestCalculatedMsg{digest: fmt.Sprintf("error: %v", err)}
		}
		return digestCalculatedMsg{digest: digest}
	}
}

func getFileTypeCmd(path string) tea.Cmd {
	return func() tea.Msg {
		return fileTypeMsg{fileType: fileType(path)}
	}
}

func loadEngineCmd(path string, opts engine.Options) tea.Cmd {
	return func() tea.Msg {
		e, err := engine.Load(path, opts)
		return engineLoadedMsg{engine: e, err: err}
	}
}

type model struct {
	viewport  viewport.Model
	listing   viewport.Model
	functions list.Model
	spinner   spinner.Model
	mode      viewMode
	back      viewMode

	filepath      string
	digest        string
	fileType      string
	fileKind      string
	loading       bool
	loadingDigest bool
	loadErr       error
	status        string

	cfg      config.Config
	host     *host
	registry *plugin.Registry
	panel    plugin.Panel
	open     bool // open the string cluster once loaded
	query    string

	ctx    context.Context
	width  int
	height int
}

// modelOptions are the command line settings of the interactive mode.
type modelOptions struct {
	Open  bool
	Query string
}

func NewModel(ctx context.Context, path string, cfg config.Config, opts modelOptions) model {
	vp := viewport.New()
	vp.SetWidth(80)
	vp.SetHeight(24)

	lst := viewport.New()
	lst.SetWidth(80)
	lst.SetHeight(24)

	functions := list.New([]list.Item{}, functionDelegate{}, 80, 24)
	functions.SetShowStatusBar(false)
	functions.SetFilteringEnabled(true)
	functions.Title = "Functions"
	functions.Styles.Title = lipgloss.NewStyle().
		Foreground(lipgloss.Color("99")).
		MarginLeft(2)

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("170"))

	h := &host{jumps: &jumpQueue{}, opts: cfg.Options()}
	registry := plugin.NewRegistry()
	if err := registry.Register(plugin.NewStringCluster(cfg.Hotkey, cfg.FunctionColumnPercent)); err != nil {
		log.Error("register plugin", "err", err)
	}
	if err := registry.InitAll(h); err != nil {
		log.Error("init plugins", "err", err)
	}

	if ctx == nil {
		ctx = context.Background()
	}
	m := model{
		viewport:      vp,
		listing:       lst,
		functions:     functions,
		spinner:       s,
		mode:          viewOverview,
		filepath:      path,
		fileKind:      detectFileKind(path),
		loading:       true,
		loadingDigest: true,
		cfg:           cfg,
		host:          h,
		registry:      registry,
		open:          opts.Open,
		query:         opts.Query,
		ctx:           ctx,
		width:         80,
		height:        24,
	}
	m.updateContent()
	return m
}

func detectFileKind(path string) string {
	switch ext := strings.ToLower(pathpkg.Ext(path)); {
	case ext == ".so" || strings.Contains(pathpkg.Base(path), ".so."):
		return "library"
	case ext == "":
		return "executable"
	default:
		return "unknown"
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		calculateDigestCmd(m.filepath),
		getFileTypeCmd(m.filepath),
		loadEngineCmd(m.filepath, m.cfg.EngineOptions()),
		m.spinner.Tick,
	)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case digestCalculatedMsg:
		m.digest = msg.digest
		m.loadingDigest = false
		m.updateContent()
		return m, nil

	case fileTypeMsg:
		m.fileType = msg.fileType
		m.updateContent()
		return m, nil

	case engineLoadedMsg:
		m.loading = false
		if msg.err != nil {
			m.loadErr = msg.err
			log.Error("load failed", "path", m.filepath, "err", msg.err)
			m.updateContent()
			return m, nil
		}
		m.host.engine = msg.engine
		if f := msg.engine.Image().File; f != nil && f.Type == elf.ET_DYN {
			m.fileKind = "library"
		}
		m.updateFunctions()
		m.updateContent()
		if m.open {
			m.open = false
			return m.activate(m.cfg.Hotkey)
		}
		return m, nil

	case spinner.TickMsg:
		if !m.loading && !m.loadingDigest {
			return m, nil
		}
		m.spinner, cmd = m.spinner.Update(msg)
		m.updateContent()
		return m, cmd

	case panel.CloseMsg:
		m.panel = nil
		m.mode = viewOverview
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.SetWidth(msg.Width)
		m.viewport.SetHeight(msg.Height - 2)
		m.listing.SetWidth(msg.Width)
		m.listing.SetHeight(msg.Height - 2)
		m.functions.SetWidth(msg.Width)
		m.functions.SetHeight(msg.Height - 2)
		if m.panel != nil {
			m.panel.SetSize(msg.Width, msg.Height-1)
		}
		m.updateContent()
		return m, nil

	case tea.KeyMsg:
		k := msg.String()
		if k == "ctrl+c" {
			return m.quit()
		}
		if m.mode == viewPanel && m.panel != nil {
			cmd = m.panel.Update(msg)
			m.drainJumps()
			return m, cmd
		}
		if m.mode == viewFunctions && m.functions.FilterState() == list.Filtering {
			break
		}
		if _, ok := m.registry.Lookup(k); ok {
			return m.activate(k)
		}
		switch k {
		case "q":
			return m.quit()
		case "esc":
			if m.mode == viewListing {
				m.mode = m.back
				return m, nil
			}
		case "o":
			m.mode = viewOverview
			return m, nil
		case "f":
			if m.host.engine != nil {
				m.mode = viewFunctions
			}
			return m, nil
		case "p":
			if m.panel != nil {
				m.mode = viewPanel
			}
			return m, nil
		case "tab":
			switch m.mode {
			case viewOverview:
				if m.host.engine != nil {
					m.mode = viewFunctions
				}
			case viewFunctions:
				m.mode = viewOverview
			}
			return m, nil
		case "enter":
			if m.mode == viewFunctions {
				if it, ok := m.functions.SelectedItem().(functionItem); ok {
					m.showListing(it.start, viewFunctions)
				}
				return m, nil
			}
		}
	}

	if m.mode == viewPanel && m.panel != nil {
		cmd = m.panel.Update(msg)
		m.drainJumps()
		return m, cmd
	}

	switch m.mode {
	case viewFunctions:
		m.functions, cmd = m.functions.Update(msg)
	case viewListing:
		m.listing, cmd = m.listing.Update(msg)
	default:
		m.viewport, cmd = m.viewport.Update(msg)
	}
	return m, cmd
}

func (m model) quit() (tea.Model, tea.Cmd) {
	if err := m.registry.ShutdownAll(); err != nil {
		log.Error("shutdown plugins", "err", err)
	}
	if m.host.engine != nil {
		m.host.engine.Close()
	}
	return m, tea.Quit
}

// activate opens the panel of the plugin bound to key. Every activation
// starts from a fresh session.
func (m model) activate(key string) (tea.Model, tea.Cmd) {
	p, ok := m.registry.Lookup(key)
	if !ok {
		return m, nil
	}
	pn, err := p.Activate(m.ctx)
	if err != nil {
		m.status = err.Error()
		m.updateContent()
		return m, nil
	}
	pn.SetSize(m.width, m.height-1)
	if q, ok := pn.(interface{ Search(string) }); ok && m.query != "" {
		q.Search(m.query)
	}
	m.panel = pn
	m.mode = viewPanel
	m.status = ""
	return m, pn.Init()
}

// drainJumps shows the last address the panel navigated to.
func (m *model) drainJumps() {
	addrs := m.host.jumps.drain()
	if len(addrs) == 0 {
		return
	}
	m.showListing(addrs[len(addrs)-1], viewPanel)
}

func (m *model) showListing(addr uint64, back viewMode) {
	m.back = back
	m.mode = viewListing
	if m.host.engine == nil {
		return
	}
	text, err := m.host.engine.Describe(addr)
	if err != nil {
		text = styles.DefaultPanel().Error.Render(err.Error())
	} else {
		text = colorize.Listing(text)
	}
	m.listing.SetContent(text)
	m.listing.GotoTop()
}

func (m *model) updateFunctions() {
	e := m.host.engine
	counts := make(map[uint64]int)
	for _, b := range cluster.AggregateSource(e).All() {
		counts[b.Addr] = b.Len()
	}
	fns := e.Functions()
	items := make([]list.Item, 0, len(fns))
	for _, f := range fns {
		items = append(items, functionItem{start: f.Start, name: f.Name, strings: counts[f.Start]})
	}
	m.functions.SetItems(items)
	m.functions.Title = fmt.Sprintf("Functions (%d total)", len(fns))
}

func (m *model) updateContent() {
	relPath := m.filepath
	if cwd, err := os.Getwd(); err == nil {
		if rel, err := pathpkg.Rel(cwd, m.filepath); err == nil {
			relPath = rel
		}
	}

	var lines []string
	if dir := pathpkg.Dir(relPath); dir != "." {
		lines = append(lines, fmt.Sprintf("; %s/", dir))
	}
	base := pathpkg.Base(relPath)
	if m.fileKind != "" && m.fileKind != "unknown" {
		lines = append(lines, fmt.Sprintf("; %s (%s)", base, m.fileKind))
	} else {
		lines = append(lines, fmt.Sprintf("; %s", base))
	}
	if m.digest != "" {
		lines = append(lines, fmt.Sprintf("; %s", m.digest))
	}
	lines = append(lines, "")
	if m.fileType != "" {
		lines = append(lines, fmt.Sprintf("; %s", m.fileType))
	}

	markdown := fmt.Sprintf("# StringCluster\n\n```\n%s\n```", strings.Join(lines, "\n"))

	switch {
	case m.loadErr != nil:
		markdown += fmt.Sprintf("\n\n**Error:** %s", m.loadErr)
	case m.host.engine != nil:
		st := m.host.engine.Stats()
		markdown += "\n\n## Strings\n\n| size | strings | referenced | xrefs | functions |\n|---|---|---|---|---|\n"
		markdown += fmt.Sprintf("| %s | %d | %d | %d | %d |\n", humanize.Bytes(st.Size), st.Strings, st.Referenced, st.Xrefs, st.Functions)
		markdown += fmt.Sprintf("\nLoaded in %s.\n", st.Elapsed.Round(time.Millisecond))
		markdown += fmt.Sprintf("\nPress `%s` to open the string cluster.", m.cfg.Hotkey)
	}
	if m.status != "" {
		markdown += fmt.Sprintf("\n\n> %s", m.status)
	}
	if m.loading {
		markdown += fmt.Sprintf("\n\n%s Loading strings...", m.spinner.View())
	}
	if m.loadingDigest && m.digest == "" {
		markdown += fmt.Sprintf("\n\n%s Calculating digest...", m.spinner.View())
	}

	width := m.width
	if width == 0 {
		width = 80
	}
	renderer, err := styles.MarkdownRenderer(width - 2)
	if err != nil {
		m.viewport.SetContent(markdown)
		return
	}
	rendered, err := renderer.Render(markdown)
	if err != nil {
		rendered = markdown
	}
	m.viewport.SetContent(strings.TrimSuffix(rendered, "\n"))
}

func (m model) View() string {
	var content string
	switch m.mode {
	case viewPanel:
		if m.panel != nil {
			content = m.panel.View()
		}
	case viewFunctions:
		content = m.functions.View()
	case viewListing:
		content = m.listing.View()
	default:
		content = m.viewport.View()
	}

	hk := m.cfg.Hotkey
	var menu string
	switch m.mode {
	case viewPanel:
		menu = " Enter: jump • X: xref • Space: fold • 1-3: sort • Alt+H/C/R/L: toggles • Esc: close "
	case viewFunctions:
		menu = fmt.Sprintf(" Enter: listing • %s: strings • O: overview • Tab: cycle • Q: quit ", hk)
	case viewListing:
		menu = " Esc: back • O: overview • Q: quit "
	default:
		if m.host.engine != nil {
			menu = fmt.Sprintf(" %s: strings • F: functions • Tab: cycle • Q: quit ", hk)
			if m.panel != nil {
				menu = fmt.Sprintf(" %s: strings • P: panel • F: functions • Tab: cycle • Q: quit ", hk)
			}
		} else {
			menu = " Q: quit "
		}
	}
	return content + "\n" + styles.MenuBar(m.width).Render(menu)
}
