// Package ux renders what the operator sees: progress lines during a
// refresh and the tables printed by inspect and history. Log output goes
// through zap; nothing here is meant for machines.
package ux

import (
	"io"

	"github.com/charmbracelet/lipgloss"
)

// Semantic colors, shared by light and dark terminals.
var (
	Destructive = lipgloss.Color("#e53935")
	Success     = lipgloss.Color("#8BC34A")
	Warning     = lipgloss.Color("#FFC107")
	Info        = lipgloss.Color("#2196F3")
	Muted       = lipgloss.AdaptiveColor{Light: "#666666", Dark: "#888888"}
)

// Styles is the set of styles a Printer uses.
type Styles struct {
	Info    lipgloss.Style
	Success lipgloss.Style
	Warn    lipgloss.Style
	Error   lipgloss.Style
	Hint    lipgloss.Style
	Phase   lipgloss.Style
	Title   lipgloss.Style
	Bold    lipgloss.Style
	Body    lipgloss.Style
	Muted   lipgloss.Style
}

// NewStyles builds styles for the terminal behind w. Writers that are not
// terminals get plain text.
func NewStyles(w io.Writer) Styles {
	r := lipgloss.NewRenderer(w)
	return Styles{
		Info:    r.NewStyle().Foreground(Info),
		Success: r.NewStyle().Foreground(Success).Bold(true),
		Warn:    r.NewStyle().Foreground(Warning),
		Error:   r.NewStyle().Foreground(Destructive).Bold(true),
		Hint:    r.NewStyle().Foreground(Muted).Italic(true),
		Phase:   r.NewStyle().Foreground(Muted),
		Title:   r.NewStyle().Bold(true).Underline(true),
		Bold:    r.NewStyle().Bold(true),
		Body:    r.NewStyle(),
		Muted:   r.NewStyle().Foreground(Muted),
	}
}
