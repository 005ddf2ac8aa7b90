package ui

import (
	"fmt"
	"io"
	"os"
)

var (
	reset = "\033[0m"
	bold  = "\033[1m"
	dim   = "\033[2m"

	fgGray   = "\033[90m"
	fgGreen  = "\033[32m"
	fgYellow = "\033[33m"
	fgBlue   = "\033[34m"
	fgRed    = "\033[31m"

	symCheck = "✔"
	symCross = "✖"
)

// Printer writes user-facing output with a theme. Colors are only emitted
// when enabled, which by default means Out is a terminal.
type Printer struct {
	Out   io.Writer
	Err   io.Writer
	Theme Theme

	color bool
}

func NewPrinter(out, errOut io.Writer, theme string) *Printer {
	t := ThemeNamed(theme)
	return &Printer{
		Out:   out,
		Err:   errOut,
		Theme: t,
		color: t.Color && os.Getenv("NO_COLOR") == "" && isTTY(out),
	}
}

// SetColor forces colors on or off.
func (p *Printer) SetColor(on bool) { p.color = on && p.Theme.Color }

func isTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

func (p *Printer) C(color, s string) string {
	if !p.color || color == "" {
		return s
	}
	return color + s + reset
}

func (p *Printer) Dim(s string) string { return p.C(dim, s) }

func (p *Printer) OK(msg string)   { fmt.Fprintln(p.Out, p.C(p.Theme.Success, symCheck+" "+msg)) }
func (p *Printer) Fail(msg string) { fmt.Fprintln(p.Err, p.C(p.Theme.Error, symCross+" "+msg)) }

// Hint prints a muted line on the error stream.
func (p *Printer) Hint(msg string) { fmt.Fprintln(p.Err, p.C(p.Theme.Muted, msg)) }

func (p *Printer) Println(a ...any) { fmt.Fprintln(p.Out, a...) }

func (p *Printer) Printf(format string, a ...any) { fmt.Fprintf(p.Out, format, a...) }
