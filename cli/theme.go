package cli

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
)

// Palette colors adapt to light and dark terminals.
var (
	colorRed    = lipgloss.AdaptiveColor{Light: "#C34043", Dark: "#FF5D62"}
	colorGreen  = lipgloss.AdaptiveColor{Light: "#4E7C5A", Dark: "#98BB6C"}
	colorOrange = lipgloss.AdaptiveColor{Light: "#CC6B4E", Dark: "#FFA066"}
	colorCyan   = lipgloss.AdaptiveColor{Light: "#5B8BBE", Dark: "#7E9CD8"}
	colorBlue   = lipgloss.AdaptiveColor{Light: "#4F7CAC", Dark: "#7FB4CA"}
	colorViolet = lipgloss.AdaptiveColor{Light: "#674D7A", Dark: "#957FB8"}
	colorMuted  = lipgloss.AdaptiveColor{Light: "#6C7086", Dark: "#727169"}
	colorBorder = lipgloss.AdaptiveColor{Light: "#C8C093", Dark: "#54546D"}
)

// Theme holds the styles used for terminal output, bound to one writer.
type Theme struct {
	renderer *lipgloss.Renderer

	Title   lipgloss.Style
	Section lipgloss.Style
	Command lipgloss.Style
	Sub     lipgloss.Style
	Flag    lipgloss.Style
	Italic  lipgloss.Style
	Muted   lipgloss.Style
	Error   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Header  lipgloss.Style
	Border  lipgloss.Style
	Cell    lipgloss.Style
}

// NewTheme builds a theme for w. Output that is not a terminal is rendered
// without color unless CLICOLOR_FORCE=1 or COLORTERM=truecolor is set.
func NewTheme(w io.Writer) *Theme {
	r := lipgloss.NewRenderer(w)
	switch {
	case os.Getenv("CLICOLOR_FORCE") == "1" || os.Getenv("COLORTERM") == "truecolor":
		r.SetColorProfile(termenv.TrueColor)
	case os.Getenv("NO_COLOR") != "" || !IsTerminal(w):
		r.SetColorProfile(termenv.Ascii)
	}

	return &Theme{
		renderer: r,
		Title:    r.NewStyle().Bold(true).Foreground(colorOrange),
		Section:  r.NewStyle().Italic(true).Foreground(colorOrange),
		Command:  r.NewStyle().Bold(true).Foreground(colorBlue),
		Sub:      r.NewStyle().Foreground(colorCyan),
		Flag:     r.NewStyle().Foreground(colorViolet),
		Italic:   r.NewStyle().Italic(true),
		Muted:    r.NewStyle().Foreground(colorMuted),
		Error:    r.NewStyle().Bold(true).Foreground(colorRed),
		Success:  r.NewStyle().Foreground(colorGreen),
		Warning:  r.NewStyle().Foreground(colorOrange),
		Header:   r.NewStyle().Bold(true).Foreground(colorCyan).Padding(0, 1),
		Border:   r.NewStyle().Foreground(colorBorder),
		Cell:     r.NewStyle().Padding(0, 1),
	}
}

// IsTerminal reports whether w is a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
