package styles

import (
	"github.com/charmbracelet/lipgloss/v2"
	"github.com/charmbracelet/x/exp/charmtone"
)

// Dark palette shared by the overview, the panel and the jump view.
const (
	Foreground = "#D4D4D4"
	Comment    = "#6A9955"
	InlineCode = "#EACD53"
	Function   = "#DCDCAA"
	String     = "#CE9178"
	Number     = "#B5CEA8"
	Selection  = "#264F78"
	LineNumber = "#858585"
)

// Panel holds the lipgloss styles of the string cluster panel.
type Panel struct {
	Title     lipgloss.Style
	Header    lipgloss.Style
	Function  lipgloss.Style
	NoFunc    lipgloss.Style
	Xref      lipgloss.Style
	String    lipgloss.Style
	Highlight lipgloss.Style
	Cursor    lipgloss.Style
	ToggleOn  lipgloss.Style
	ToggleOff lipgloss.Style
	Status    lipgloss.Style
	Error     lipgloss.Style
	Prompt    lipgloss.Style
}

// DefaultPanel returns the panel styles.
func DefaultPanel() Panel {
	return Panel{
		Title:     lipgloss.NewStyle().Foreground(lipgloss.Color("99")).Bold(true),
		Header:    lipgloss.NewStyle().Foreground(lipgloss.Color("252")).Bold(true),
		Function:  lipgloss.NewStyle().Foreground(lipgloss.Color(Function)),
		NoFunc:    lipgloss.NewStyle().Foreground(lipgloss.Color(LineNumber)).Italic(true),
		Xref:      lipgloss.NewStyle().Foreground(lipgloss.Color(Number)),
		String:    lipgloss.NewStyle().Foreground(lipgloss.Color(String)),
		Highlight: lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color(charmtone.Zest.Hex())),
		Cursor:    lipgloss.NewStyle().Background(lipgloss.Color(Selection)),
		ToggleOn:  lipgloss.NewStyle().Foreground(lipgloss.Color(charmtone.Guac.Hex())),
		ToggleOff: lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		Status:    lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		Error:     lipgloss.NewStyle().Foreground(lipgloss.Color(charmtone.Cheeky.Hex())),
		Prompt:    lipgloss.NewStyle().Foreground(lipgloss.Color("170")),
	}
}

// MenuBar styles the bottom key help line.
func MenuBar(width int) lipgloss.Style {
	return lipgloss.NewStyle().
		Background(lipgloss.Color("235")).
		Foreground(lipgloss.Color("252")).
		Padding(0, 1).
		Width(width)
}
