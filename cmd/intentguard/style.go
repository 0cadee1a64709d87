package main

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// styles renders verdict words, styled on a terminal and plain otherwise.
type styles struct {
	plain bool
	ok    lipgloss.Style
	warn  lipgloss.Style
	fail  lipgloss.Style
	muted lipgloss.Style
}

// newStyles picks styled output when w is a terminal.
func newStyles(w io.Writer) styles {
	return styles{
		plain: !isTerminal(w),
		ok:    lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true), // Green
		warn:  lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true), // Yellow
		fail:  lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),  // Red
		muted: lipgloss.NewStyle().Foreground(lipgloss.Color("240")),           // Gray
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (s styles) render(style lipgloss.Style, text string) string {
	if s.plain {
		return text
	}
	return style.Render(text)
}

func (s styles) OK(text string) string    { return s.render(s.ok, text) }
func (s styles) Warn(text string) string  { return s.render(s.warn, text) }
func (s styles) Fail(text string) string  { return s.render(s.fail, text) }
func (s styles) Muted(text string) string { return s.render(s.muted, text) }
