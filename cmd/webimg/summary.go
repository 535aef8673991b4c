package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/webimg/webimg/core"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Width(14)
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	skipStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	summaryFrame = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)
)

// renderSummary produces the boxed end-of-run summary printed to stdout.
func renderSummary(rep *core.ProcessingReport) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("optimization complete"))
	b.WriteString("\n")

	row := func(label, value string) {
		b.WriteString(labelStyle.Render(label))
		b.WriteString(value)
		b.WriteString("\n")
	}
	row("images", fmt.Sprintf("%d", rep.TotalImages))
	row("succeeded", okStyle.Render(fmt.Sprintf("%d", rep.SuccessfulConversions)))
	row("failed", failStyle.Render(fmt.Sprintf("%d", rep.FailedConversions)))
	row("skipped", skipStyle.Render(fmt.Sprintf("%d", rep.SkippedFiles)))
	row("bytes saved", formatBytes(rep.TotalBytesSaved))
	row("avg savings", fmt.Sprintf("%.1f%%", rep.AverageCompressionRatio))
	row("elapsed", rep.TotalTime.Round(time.Millisecond).String())

	return summaryFrame.Render(strings.TrimRight(b.String(), "\n"))
}

func formatBytes(n int64) string {
	abs := n
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case abs >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
