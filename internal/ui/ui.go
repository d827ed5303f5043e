// Package ui renders terminal output for the kiplm CLI.
package ui

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/kiplm/kiplm/internal/catalog/builder"
)

var (
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#15803d", Dark: "#4ade80"}).Bold(true)
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#b91c1c", Dark: "#f87171"}).Bold(true)
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#a16207", Dark: "#facc15"})
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#1d4ed8", Dark: "#60a5fa"})
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#6b7280", Dark: "#9ca3af"})
)

func init() {
	if !IsTerminal(os.Stdout) {
		DisableColor()
	}
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// DisableColor turns styling off for all Render functions.
func DisableColor() {
	lipgloss.SetColorProfile(termenv.Ascii)
}

// Render helpers for status glyphs and labels.
func RenderPass(s string) string   { return passStyle.Render(s) }
func RenderFail(s string) string   { return failStyle.Render(s) }
func RenderWarn(s string) string   { return warnStyle.Render(s) }
func RenderAccent(s string) string { return accentStyle.Render(s) }
func RenderMuted(s string) string  { return mutedStyle.Render(s) }

// PrintReport writes one "<step>... OK|FAIL" line per build step, with the
// error under each failed step.
func PrintReport(w io.Writer, report *builder.Report) {
	if report == nil {
		return
	}
	for _, step := range report.Steps {
		if step.OK() {
			fmt.Fprintf(w, "%s... %s\n", step.Description(), RenderPass("OK"))
			continue
		}
		fmt.Fprintf(w, "%s... %s\n", step.Description(), RenderFail("FAIL"))
		fmt.Fprintf(w, "   %s\n", RenderMuted(step.Err.Error()))
	}
}

// PrintSummary writes a one-line summary of report.
func PrintSummary(w io.Writer, report *builder.Report) {
	if report == nil {
		return
	}
	failed := len(report.Failed())
	if failed == 0 {
		fmt.Fprintf(w, "%s Build complete in %v\n", RenderPass("✓"), report.Duration.Round(time.Millisecond))
		return
	}
	fmt.Fprintf(w, "%s Build finished with %d failed step(s)\n", RenderFail("✗"), failed)
}
