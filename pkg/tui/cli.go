// Package tui renders trackgen's terminal output.
// Simple, streaming, no complex TUI - just clean lines and a progress bar.
package tui

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/schollz/progressbar/v3"
)

// Colors (Swiss minimal)
var (
	accent  = lipgloss.Color("#FF0000")
	muted   = lipgloss.Color("#666666")
	success = lipgloss.Color("#00CC66")
	white   = lipgloss.Color("#FFFFFF")
)

// Styles
var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(white)
	accentStyle  = lipgloss.NewStyle().Foreground(accent).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)
	successStyle = lipgloss.NewStyle().Foreground(success).Bold(true)
)

// SampleReport summarises a sampling run.
type SampleReport struct {
	Calls     int
	Tracks    int64
	Hits      int64
	Rejected  int64
	Rollovers int

	Checkpoint string
	OutputDir  string
	Duration   time.Duration
}

// PrintSampleReport prints the summary of a sampling run.
func PrintSampleReport(w io.Writer, r SampleReport) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, successStyle.Render("  ✓ SAMPLING COMPLETE"))
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("Calls:    "), titleStyle.Render(formatNumber(int64(r.Calls))))
	fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("Tracks:   "), titleStyle.Render(formatNumber(r.Tracks)))
	fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("Hits:     "), titleStyle.Render(formatNumber(r.Hits)))
	fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("Rejected: "), formatNumber(r.Rejected))
	fmt.Fprintf(w, "  %s %d\n", mutedStyle.Render("Rollovers:"), r.Rollovers)
	if r.Checkpoint != "" {
		fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("Checkpoint:"), r.Checkpoint)
	}
	if r.OutputDir != "" {
		fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("Output:   "), r.OutputDir)
	}
	if r.Duration > 0 {
		fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("Time:     "), titleStyle.Render(formatDuration(r.Duration)))
	}
	fmt.Fprintln(w)
}

// SourceReport describes one scanned source.
type SourceReport struct {
	Source     string
	Particles  int
	Qualifying int
	Err        error
}

// PrintInspectReport prints one line per source followed by totals.
func PrintInspectReport(w io.Writer, reports []SourceReport) {
	fmt.Fprintln(w)
	var particles, qualifying int64
	for i, r := range reports {
		if r.Err != nil {
			fmt.Fprintf(w, "  %s %s %s\n", accentStyle.Render(fmt.Sprintf("%3d ✗", i)), r.Source, mutedStyle.Render(r.Err.Error()))
			continue
		}
		particles += int64(r.Particles)
		qualifying += int64(r.Qualifying)
		fmt.Fprintf(w, "  %s %s %s\n",
			successStyle.Render(fmt.Sprintf("%3d ✓", i)),
			r.Source,
			mutedStyle.Render(fmt.Sprintf("(%s particles, %s qualifying)", formatNumber(int64(r.Particles)), formatNumber(int64(r.Qualifying)))))
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %s %s particles, %s qualifying\n",
		mutedStyle.Render("Total:"),
		titleStyle.Render(formatNumber(particles)),
		titleStyle.Render(formatNumber(qualifying)))
	fmt.Fprintln(w)
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}

func formatNumber(n int64) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	}
	return fmt.Sprintf("%.1fM", float64(n)/1000000)
}

// ShowProgress creates a progress bar counting generator calls.
func ShowProgress(w io.Writer, total int64, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions64(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowBytes(false),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "",
			BarEnd:        "",
		}),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}
