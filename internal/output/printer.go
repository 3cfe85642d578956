// Package output formats gymctl's terminal output.
package output

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"

	"gym-session/internal/domain"
)

// ColorMode represents color output mode
type ColorMode int

const (
	ColorAuto ColorMode = iota
	ColorAlways
	ColorNever
)

// ParseColorMode parses a --color flag value.
func ParseColorMode(s string) (ColorMode, error) {
	switch s {
	case "", "auto":
		return ColorAuto, nil
	case "always":
		return ColorAlways, nil
	case "never":
		return ColorNever, nil
	default:
		return ColorAuto, fmt.Errorf("invalid color mode %q: must be auto, always, or never", s)
	}
}

// ResolveColors decides whether to color output. Auto honors NO_COLOR and
// TERM=dumb.
func ResolveColors(mode ColorMode) bool {
	switch mode {
	case ColorAlways:
		return true
	case ColorNever:
		return false
	default:
		if _, ok := os.LookupEnv("NO_COLOR"); ok {
			return false
		}
		return os.Getenv("TERM") != "dumb"
	}
}

// Printer writes messages to out and diagnostics to err.
type Printer struct {
	out       io.Writer
	err       io.Writer
	useColors bool
}

// NewPrinter creates a printer on stdout and stderr.
func NewPrinter(mode ColorMode) *Printer {
	return NewPrinterWithWriters(os.Stdout, os.Stderr, mode)
}

// NewPrinterWithWriters creates a printer on the given writers.
func NewPrinterWithWriters(out, err io.Writer, mode ColorMode) *Printer {
	return &Printer{out: out, err: err, useColors: ResolveColors(mode)}
}

// Out returns the writer for regular output.
func (p *Printer) Out() io.Writer {
	return p.out
}

func (p *Printer) line(w io.Writer, c *color.Color, prefix, plainPrefix, format string, args ...any) {
	if p.useColors && c != nil {
		_, _ = c.Fprintf(w, prefix+format+"\n", args...)
		return
	}
	_, _ = fmt.Fprintf(w, plainPrefix+format+"\n", args...)
}

// Info prints an informational message.
func (p *Printer) Info(format string, args ...any) {
	p.line(p.out, color.New(color.FgCyan), "", "", format, args...)
}

// Success prints a success message.
func (p *Printer) Success(format string, args ...any) {
	p.line(p.out, color.New(color.FgGreen), "✓ ", "[OK] ", format, args...)
}

// Warning prints a warning to the error stream.
func (p *Printer) Warning(format string, args ...any) {
	p.line(p.err, color.New(color.FgYellow), "⚠ ", "[WARN] ", format, args...)
}

// Error prints an error to the error stream.
func (p *Printer) Error(format string, args ...any) {
	p.line(p.err, color.New(color.FgRed), "✗ ", "[ERROR] ", format, args...)
}

// Print prints a plain line.
func (p *Printer) Print(format string, args ...any) {
	p.line(p.out, nil, "", "", format, args...)
}

// StatusBadge renders an auth status.
func (p *Printer) StatusBadge(s domain.AuthStatus) string {
	if !p.useColors {
		return fmt.Sprintf("[%s]", s)
	}
	switch s {
	case domain.StatusAuthenticated:
		return color.GreenString("● %s", s)
	case domain.StatusUnauthenticated:
		return color.RedString("● %s", s)
	default:
		return color.YellowString("○ %s", s)
	}
}

// Dim returns dimmed text.
func (p *Printer) Dim(text string) string {
	if p.useColors {
		return color.New(color.Faint).Sprint(text)
	}
	return text
}
