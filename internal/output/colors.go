// Package output provides console formatting helpers for the CLI.
package output

import (
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// ColorScheme defines the colors used for different elements in the output.
type ColorScheme struct {
	Success   *color.Color
	Error     *color.Color
	Warn      *color.Color
	Highlight *color.Color
	Label     *color.Color
	Value     *color.Color
}

// DefaultColorScheme returns the default color scheme.
func DefaultColorScheme() *ColorScheme {
	return &ColorScheme{
		Success:   color.New(color.FgGreen),
		Error:     color.New(color.FgRed, color.Bold),
		Warn:      color.New(color.FgYellow, color.Bold),
		Highlight: color.New(color.FgMagenta, color.Bold),
		Label:     color.New(color.FgCyan),
		Value:     color.New(color.FgWhite),
	}
}

// NoColorScheme returns a color scheme with all colors disabled.
func NoColorScheme() *ColorScheme {
	scheme := DefaultColorScheme()
	scheme.Success.DisableColor()
	scheme.Error.DisableColor()
	scheme.Warn.DisableColor()
	scheme.Highlight.DisableColor()
	scheme.Label.DisableColor()
	scheme.Value.DisableColor()
	return scheme
}

// SchemeFor picks a scheme based on whether w is a terminal.
func SchemeFor(w io.Writer) *ColorScheme {
	if IsTerminal(w) {
		return DefaultColorScheme()
	}
	return NoColorScheme()
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// SuccessIcon returns a checkmark symbol with appropriate color.
func SuccessIcon(noColor bool) string {
	if noColor {
		return "✓"
	}
	return color.New(color.FgGreen).Sprint("✓")
}

// ErrorIcon returns an X symbol with appropriate color.
func ErrorIcon(noColor bool) string {
	if noColor {
		return "✗"
	}
	return color.New(color.FgRed).Sprint("✗")
}
