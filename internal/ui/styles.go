// Package ui renders CLI output, coloured when the terminal allows it.
package ui

import "fmt"

// ANSI256 colour codes.
const (
	colorAccent = 74  // blue
	colorMuted  = 245 // gray
	colorOK     = 71  // green
	colorWarn   = 173 // orange
)

var noColor bool

func render(code int, s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", code, s)
}

// RenderAccent returns s in the accent colour, used for names and headings.
func RenderAccent(s string) string { return render(colorAccent, s) }

// RenderMuted returns s in gray, used for secondary detail.
func RenderMuted(s string) string { return render(colorMuted, s) }

// RenderOK returns s in green.
func RenderOK(s string) string { return render(colorOK, s) }

// RenderWarn returns s in orange.
func RenderWarn(s string) string { return render(colorWarn, s) }

// ForceNoColor disables colour output globally.
func ForceNoColor() {
	noColor = true
}
