package report

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/boyarskiy/flakeboard/internal/model"
)

//go:embed templates/*.html
var templateFS embed.FS

var siteTemplates = template.Must(template.New("site").Funcs(template.FuncMap{
	"ratio": formatRatio,
}).ParseFS(templateFS, "templates/*.html"))

// desktopColumns is the column order of the desktop matrix.
var desktopColumns = []string{
	string(model.PlatformWindows),
	string(model.PlatformLinux),
	string(model.PlatformMacOS),
}

// SiteData is the data handed to the site templates.
type SiteData struct {
	Title       string
	Runs        []RunHeader
	Desktop     MatrixData
	Mobile      MatrixData
	FlakyCount  int
	StableCount int
	MobileTags  []string
}

// RunHeader labels one run column group.
type RunHeader struct {
	Date   string
	Commit string
}

// MatrixData is one example-by-run table. Every run contributes one cell per
// column.
type MatrixData struct {
	Runs    []RunHeader
	Columns []string
	Rows    []RowData
}

// RowData is one example row.
type RowData struct {
	Category string
	Name     string
	Flaky    bool
	Runs     [][]CellData // [run][column]
}

// CellData is the content of one (run, column) cell.
type CellData struct {
	Result     string
	Class      string
	Screenshot *model.Screenshot
	Log        string
}

var resultClass = map[model.Kind]string{
	model.KindSuccesses:     "success",
	model.KindFailures:      "failure",
	model.KindNoScreenshots: "no-screenshot",
}

// WriteSite renders index.html and about.html into outDir.
func WriteSite(outDir string, report *model.Report) error {
	if report == nil {
		return fmt.Errorf("report is required")
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", outDir, err)
	}

	data := BuildSiteData(report)
	for _, name := range []string{"index.html", "about.html"} {
		var buf bytes.Buffer
		if err := siteTemplates.ExecuteTemplate(&buf, name, data); err != nil {
			return fmt.Errorf("failed to render %s: %w", name, err)
		}
		path := filepath.Join(outDir, name)
		if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	return nil
}

// BuildSiteData lays the report out as two matrices: desktop examples by
// platform and mobile examples by device tag. Columns are the fixed ones
// followed by every other key the runs hold for the matrix's examples, so no
// stored cell is left out.
func BuildSiteData(report *model.Report) SiteData {
	headers := make([]RunHeader, 0, len(report.Runs))
	for _, run := range report.Runs {
		headers = append(headers, RunHeader{Date: run.Date, Commit: run.Commit})
	}

	var desktop, mobile []model.Example
	for _, ex := range report.Examples {
		if ex.Category == string(model.PlatformMobile) {
			mobile = append(mobile, ex)
		} else {
			desktop = append(desktop, ex)
		}
	}

	return SiteData{
		Title:       "Flakeboard",
		Runs:        headers,
		Desktop:     buildMatrix(headers, desktopColumns, desktop, report.Runs),
		Mobile:      buildMatrix(headers, report.MobileTags, mobile, report.Runs),
		FlakyCount:  report.FlakyCount,
		StableCount: report.StableCount,
		MobileTags:  report.MobileTags,
	}
}

func buildMatrix(headers []RunHeader, base []string, examples []model.Example, runs []*model.Run) MatrixData {
	m := MatrixData{Runs: headers, Columns: matrixColumns(base, examples, runs)}
	for _, ex := range examples {
		m.Rows = append(m.Rows, buildRow(ex, runs, m.Columns))
	}
	return m
}

// matrixColumns returns base, then the sorted keys outside base that any run
// stores a result, screenshot or log under for one of the examples.
func matrixColumns(base []string, examples []model.Example, runs []*model.Run) []string {
	seen := make(map[string]bool, len(base))
	columns := make([]string, 0, len(base))
	for _, col := range base {
		if !seen[col] {
			seen[col] = true
			columns = append(columns, col)
		}
	}

	var extra []string
	add := func(key string) {
		if !seen[key] {
			seen[key] = true
			extra = append(extra, key)
		}
	}
	for _, run := range runs {
		for _, ex := range examples {
			for key := range run.Results[ex.Name] {
				add(key)
			}
			for key := range run.Screenshots[ex.Name] {
				add(key)
			}
			for key := range run.Logs[ex.Name] {
				add(key)
			}
		}
	}
	sort.Strings(extra)
	return append(columns, extra...)
}

func buildRow(ex model.Example, runs []*model.Run, columns []string) RowData {
	row := RowData{
		Category: ex.Category,
		Name:     ex.Name,
		Flaky:    ex.Flaky,
		Runs:     make([][]CellData, len(runs)),
	}
	for i, run := range runs {
		cells := make([]CellData, len(columns))
		for j, col := range columns {
			cells[j] = buildCell(run, ex.Name, col)
		}
		row.Runs[i] = cells
	}
	return row
}

func buildCell(run *model.Run, name, column string) CellData {
	var cell CellData
	if kind, ok := run.ResultFor(name, column); ok {
		cell.Result = string(kind)
		cell.Class = resultClass[kind]
	}
	if shot, ok := run.ScreenshotFor(name, column); ok {
		cell.Screenshot = &shot
		if shot.State == model.StateChanged {
			cell.Class = strings.TrimSpace(cell.Class + " changed")
		}
	}
	cell.Log = run.Logs[name][column]
	return cell
}

// formatRatio prints a diff ratio, hiding the "unknown" sentinel.
func formatRatio(r float64) string {
	if r == model.DefaultDiffRatio {
		return "?"
	}
	return fmt.Sprintf("%.4f", r)
}
