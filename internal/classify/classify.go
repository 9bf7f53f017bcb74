// Package classify provides the cross-run flaky verdict and report summaries.
package classify

import (
	"sort"

	"github.com/boyarskiy/flakeboard/internal/model"
)

// Aggregate returns every registered example with its final flaky bit,
// sorted by "<category>/<name>".
//
// The registry marks an example flaky as soon as any run shows a failure or a
// changed screenshot. Reruns may later overwrite those failures, so the bit is
// downgraded here when no run in the window still has screenshots or a
// failure for the example. The registry itself is not modified, which makes
// Aggregate idempotent.
func Aggregate(runs []*model.Run, registry *model.Registry) []model.Example {
	examples := registry.Examples()

	for i, ex := range examples {
		if !ex.Flaky {
			continue
		}
		if !hasEvidence(runs, ex.Name) {
			examples[i].Flaky = false
		}
	}

	sortExamples(examples)
	return examples
}

// hasEvidence reports whether any run has a screenshot or a failure for name.
func hasEvidence(runs []*model.Run, name string) bool {
	for _, run := range runs {
		if run.HasScreenshot(name) || run.HasFailures(name) {
			return true
		}
	}
	return false
}

// sortExamples sorts by ID, breaking ties on category so that names
// containing "/" still order deterministically.
func sortExamples(examples []model.Example) {
	sort.Slice(examples, func(i, j int) bool {
		a, b := examples[i].ID(), examples[j].ID()
		if a != b {
			return a < b
		}
		return examples[i].Category < examples[j].Category
	})
}

// MobileTags returns the tags of set in sorted order.
func MobileTags(set map[string]struct{}) []string {
	tags := make([]string, 0, len(set))
	for tag := range set {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// Summary counts the final verdicts.
type Summary struct {
	Flaky  int
	Stable int
}

// Summarize counts flaky and stable examples.
func Summarize(examples []model.Example) Summary {
	var s Summary
	for _, ex := range examples {
		if ex.Flaky {
			s.Flaky++
		} else {
			s.Stable++
		}
	}
	return s
}

// BuildReport assembles the report handed to the writers.
func BuildReport(runs []*model.Run, registry *model.Registry, mobileTags []string) *model.Report {
	examples := Aggregate(runs, registry)
	summary := Summarize(examples)
	if mobileTags == nil {
		mobileTags = []string{}
	}
	return &model.Report{
		Runs:        runs,
		Examples:    examples,
		MobileTags:  mobileTags,
		FlakyCount:  summary.Flaky,
		StableCount: summary.Stable,
	}
}
