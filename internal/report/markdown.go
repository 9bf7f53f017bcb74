package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/boyarskiy/flakeboard/internal/model"
)

// WriteMarkdown writes the report as Markdown to the specified output directory.
// The file is written to <outDir>/report.md
func WriteMarkdown(outDir string, report *model.Report) error {
	if report == nil {
		return fmt.Errorf("report is required")
	}

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", outDir, err)
	}

	path := filepath.Join(outDir, "report.md")
	if err := os.WriteFile(path, []byte(RenderMarkdown(report)), 0644); err != nil {
		return fmt.Errorf("failed to write report to %s: %w", path, err)
	}

	return nil
}

// RenderMarkdown renders the report as a Markdown string.
func RenderMarkdown(report *model.Report) string {
	if report == nil {
		return ""
	}

	var sb strings.Builder

	sb.WriteString("# Flakeboard Report\n\n")

	sb.WriteString("## Summary\n\n")
	summary := table.NewWriter()
	summary.AppendHeader(table.Row{"Metric", "Value"})
	summary.AppendRows([]table.Row{
		{"Runs", len(report.Runs)},
		{"Examples", len(report.Examples)},
		{"Flaky Examples", report.FlakyCount},
		{"Stable Examples", report.StableCount},
		{"Mobile Devices", len(report.MobileTags)},
	})
	sb.WriteString(summary.RenderMarkdown())
	sb.WriteString("\n\n")

	stats := collectStats(report)

	sb.WriteString("## Flaky Examples\n\n")
	flaky := table.NewWriter()
	flaky.AppendHeader(table.Row{"Example", "Failures", "Changed Screenshots", "Runs Seen"})
	for _, s := range stats {
		if !s.Example.Flaky {
			continue
		}
		flaky.AppendRow(table.Row{s.Example.ID(), s.Failures, s.Changed, s.Runs})
	}
	if flaky.Length() == 0 {
		sb.WriteString("No flaky examples detected.\n\n")
	} else {
		sb.WriteString(flaky.RenderMarkdown())
		sb.WriteString("\n\n")
	}

	if len(report.Runs) > 0 {
		sb.WriteString("## Runs\n\n")
		runs := table.NewWriter()
		runs.AppendHeader(table.Row{"Date", "Commit", "Failures", "Changed Screenshots"})
		for _, run := range report.Runs {
			failures, changed := runStats(run)
			runs.AppendRow(table.Row{run.Date, run.Commit, failures, changed})
		}
		sb.WriteString(runs.RenderMarkdown())
		sb.WriteString("\n")
	}

	return sb.String()
}
