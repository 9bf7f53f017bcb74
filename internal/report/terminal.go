// Package report renders the aggregated runs as a static site, JSON,
// Markdown and a terminal summary.
package report

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/boyarskiy/flakeboard/internal/model"
)

// TerminalConfig holds configuration for terminal output.
type TerminalConfig struct {
	Writer  io.Writer
	TopN    int  // Number of flaky examples to list (default: 10)
	NoColor bool // Disable ANSI colours regardless of the terminal
}

// DefaultTerminalConfig returns the default terminal configuration.
func DefaultTerminalConfig(w io.Writer) *TerminalConfig {
	return &TerminalConfig{
		Writer:  w,
		TopN:    10,
		NoColor: color.NoColor,
	}
}

type palette struct {
	bold  func(a ...interface{}) string
	red   func(a ...interface{}) string
	green func(a ...interface{}) string
}

func newPalette(noColor bool) palette {
	bold := color.New(color.Bold)
	red := color.New(color.FgRed, color.Bold)
	green := color.New(color.FgGreen)
	if noColor {
		for _, c := range []*color.Color{bold, red, green} {
			c.DisableColor()
		}
	} else {
		for _, c := range []*color.Color{bold, red, green} {
			c.EnableColor()
		}
	}
	return palette{bold: bold.SprintFunc(), red: red.SprintFunc(), green: green.SprintFunc()}
}

// RenderTerminal writes the terminal summary to the configured writer.
func RenderTerminal(cfg *TerminalConfig, report *model.Report, artifactPath string) error {
	if cfg.Writer == nil {
		return fmt.Errorf("writer is required")
	}
	if report == nil {
		return fmt.Errorf("report is required")
	}

	w := cfg.Writer
	topN := cfg.TopN
	if topN <= 0 {
		topN = 10
	}
	p := newPalette(cfg.NoColor)

	fmt.Fprintln(w)
	fmt.Fprintln(w, p.bold("=== Flakeboard Report ==="))
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Runs:     %d\n", len(report.Runs))
	if len(report.Runs) > 0 {
		newest, oldest := report.Runs[0], report.Runs[len(report.Runs)-1]
		fmt.Fprintf(w, "Window:   %s (%s) .. %s (%s)\n", oldest.Date, oldest.Commit, newest.Date, newest.Commit)
	}
	fmt.Fprintf(w, "Examples: %d\n", len(report.Examples))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Example Counts:")
	fmt.Fprintf(w, "  Flaky:  %s\n", p.red(report.FlakyCount))
	fmt.Fprintf(w, "  Stable: %s\n", p.green(report.StableCount))
	fmt.Fprintln(w)

	var flaky []exampleStats
	for _, s := range collectStats(report) {
		if s.Example.Flaky {
			flaky = append(flaky, s)
		}
	}

	if len(flaky) == 0 {
		fmt.Fprintln(w, "No flaky examples detected.")
		fmt.Fprintln(w)
	} else {
		fmt.Fprintln(w, "Top Flaky Examples:")
		t := table.NewWriter()
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"#", "Example", "Failures", "Changed", "Runs"})
		t.SetColumnConfigs([]table.ColumnConfig{
			{Number: 1, Align: text.AlignRight},
			{Number: 2, WidthMax: 60},
			{Number: 3, Align: text.AlignRight},
			{Number: 4, Align: text.AlignRight},
			{Number: 5, Align: text.AlignRight},
		})
		for i, s := range flaky {
			if i == topN {
				break
			}
			t.AppendRow(table.Row{i + 1, s.Example.ID(), s.Failures, s.Changed, s.Runs})
		}
		fmt.Fprintln(w, t.Render())
		if len(flaky) > topN {
			fmt.Fprintf(w, "... and %d more\n", len(flaky)-topN)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Artifacts: %s\n", artifactPath)
	fmt.Fprintln(w)

	return nil
}
