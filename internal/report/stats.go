package report

import (
	"sort"

	"github.com/boyarskiy/flakeboard/internal/model"
)

// exampleStats counts the evidence behind one example across the window.
type exampleStats struct {
	Example  model.Example
	Failures int // (run, platform) cells with a failure
	Changed  int // stored screenshots with state Changed
	Runs     int // runs in which the example appears at all
}

// collectStats returns stats for every example of the report, flaky first,
// then by failures and changed screenshots descending, then by ID.
func collectStats(report *model.Report) []exampleStats {
	stats := make([]exampleStats, 0, len(report.Examples))
	for _, ex := range report.Examples {
		s := exampleStats{Example: ex}
		for _, run := range report.Runs {
			seen := false
			for _, kind := range run.Results[ex.Name] {
				seen = true
				if kind == model.KindFailures {
					s.Failures++
				}
			}
			for _, shot := range run.Screenshots[ex.Name] {
				seen = true
				if shot.State == model.StateChanged {
					s.Changed++
				}
			}
			if seen {
				s.Runs++
			}
		}
		stats = append(stats, s)
	}

	sort.SliceStable(stats, func(i, j int) bool {
		a, b := stats[i], stats[j]
		if a.Example.Flaky != b.Example.Flaky {
			return a.Example.Flaky
		}
		if a.Failures != b.Failures {
			return a.Failures > b.Failures
		}
		if a.Changed != b.Changed {
			return a.Changed > b.Changed
		}
		return a.Example.ID() < b.Example.ID()
	})
	return stats
}

// runStats counts failures and changed screenshots in one run.
func runStats(run *model.Run) (failures, changed int) {
	for _, results := range run.Results {
		for _, kind := range results {
			if kind == model.KindFailures {
				failures++
			}
		}
	}
	for _, shots := range run.Screenshots {
		for _, shot := range shots {
			if shot.State == model.StateChanged {
				changed++
			}
		}
	}
	return failures, changed
}
