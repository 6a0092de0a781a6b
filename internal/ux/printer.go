package ux

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/jinzenshi/gongkao/internal/refresh"
)

// Printer writes styled progress lines. It implements refresh.Reporter.
type Printer struct {
	mu         sync.Mutex
	out        io.Writer
	styles     Styles
	showPhases bool
}

var _ refresh.Reporter = (*Printer)(nil)

// NewPrinter returns a Printer writing to out. Phase changes are only
// printed when showPhases is set.
func NewPrinter(out io.Writer, showPhases bool) *Printer {
	return &Printer{out: out, styles: NewStyles(out), showPhases: showPhases}
}

func (p *Printer) Phase(ph refresh.Phase) {
	if !p.showPhases {
		return
	}
	p.line(p.styles.Phase, "» "+ph.String())
}

func (p *Printer) Info(msg string)    { p.line(p.styles.Info, msg) }
func (p *Printer) Success(msg string) { p.line(p.styles.Success, msg) }
func (p *Printer) Warn(msg string)    { p.line(p.styles.Warn, msg) }
func (p *Printer) Error(msg string)   { p.line(p.styles.Error, msg) }
func (p *Printer) Hint(msg string)    { p.line(p.styles.Hint, "  "+msg) }

// Styles returns the printer's styles.
func (p *Printer) Styles() Styles { return p.styles }

// Writer returns the underlying output.
func (p *Printer) Writer() io.Writer { return p.out }

func (p *Printer) line(style lipgloss.Style, msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, style.Render(msg))
}
