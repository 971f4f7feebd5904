// Package observability provides formatted output utilities for verbose CLI mode.
package observability

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jonathan/job-harvester/internal/pipeline"
	"github.com/jonathan/job-harvester/internal/stats"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 10
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	lines := strings.Split(content, "\n")
	for _, line := range lines {
		// Truncate long lines
		if len(line) > boxWidth-4 {
			line = line[:boxWidth-7] + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintReport outputs the per-stage summary of one pipeline run.
func (p *Printer) PrintReport(report *pipeline.Report) {
	if report == nil || len(report.Stages) == 0 {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Source:   %s\n", report.Source))
	sb.WriteString(fmt.Sprintf("Duration: %s\n", report.FinishedAt.Sub(report.StartedAt).Round(10*time.Millisecond)))

	for _, stage := range report.Stages {
		sb.WriteString("\n")
		sb.WriteString(formatStage(stage))
	}

	title := "PIPELINE RUN COMPLETE"
	if report.Failed() {
		title = "PIPELINE RUN FAILED"
	}
	p.printBox(title, strings.TrimSuffix(sb.String(), "\n"))
}

func formatStage(stage *pipeline.StageReport) string {
	var sb strings.Builder

	switch stage.Status {
	case pipeline.StatusRan:
		sb.WriteString(fmt.Sprintf("✓ %s\n", stage.Stage))
		for _, line := range countLines(stage.Counts) {
			sb.WriteString(fmt.Sprintf("    %s\n", line))
		}
	case pipeline.StatusSkipped:
		sb.WriteString(fmt.Sprintf("- %s (skipped)\n", stage.Stage))
		sb.WriteString(fmt.Sprintf("    %s\n", stage.Reason))
	case pipeline.StatusFailed:
		sb.WriteString(fmt.Sprintf("⚠ %s (failed)\n", stage.Stage))
		msg := stage.Error()
		if len(msg) > 45 {
			msg = msg[:42] + "..."
		}
		sb.WriteString(fmt.Sprintf("    %s\n", msg))
	}
	return sb.String()
}

// countLines renders stage counts as stable "name: n" lines. Map iteration
// order is unstable, so the known keys come first in a fixed order.
func countLines(counts map[string]int) []string {
	var lines []string
	seen := make(map[string]struct{})
	for _, key := range []string{"fetched", "filtered_out", "created", "skipped", "reactivated", "closed", "failed_pages", "analyzed", "updated", "detections", "failed_records", "active", "top_skills"} {
		if v, ok := counts[key]; ok {
			lines = append(lines, fmt.Sprintf("%s: %d", key, v))
			seen[key] = struct{}{}
		}
	}
	for key, v := range counts {
		if _, ok := seen[key]; !ok {
			lines = append(lines, fmt.Sprintf("%s: %d", key, v))
		}
	}
	return lines
}

// PrintStats outputs the aggregate snapshot for a source.
func (p *Printer) PrintStats(snap *stats.Snapshot) {
	if snap == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Source:   %s\n", snap.Source))
	sb.WriteString(fmt.Sprintf("Period:   %s\n", snap.Period))
	sb.WriteString(fmt.Sprintf("Active:   %d of %d total\n", snap.Counts.Active, snap.Counts.Total))
	sb.WriteString(fmt.Sprintf("Tagged:   %d\n", snap.Counts.Tagged))
	sb.WriteString(fmt.Sprintf("Detections: %d\n", snap.Detections))

	if len(snap.TopSkills) > 0 {
		sb.WriteString("\nTop skills:\n")
		count := min(len(snap.TopSkills), maxItemsToShow)
		for i := 0; i < count; i++ {
			share := snap.TopSkills[i]
			sb.WriteString(fmt.Sprintf("  %2d. %-20s %4d (%.1f%%)\n", i+1, share.Skill, share.Count, share.Percent))
		}
		if len(snap.TopSkills) > maxItemsToShow {
			sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(snap.TopSkills)-maxItemsToShow))
		}
	}

	if len(snap.Monthly) > 0 {
		sb.WriteString("\nMonthly postings:\n")
		for _, m := range snap.Monthly {
			sb.WriteString(fmt.Sprintf("  %s  %d\n", m.Month, m.Count))
		}
	}

	p.printBox("SOURCE STATISTICS", strings.TrimSuffix(sb.String(), "\n"))
}
