package classify

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boyarskiy/flakeboard/internal/model"
)

func key(category, name string) model.ExampleKey {
	return model.ExampleKey{Category: category, Name: name}
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name  string
		setup func(reg *model.Registry) []*model.Run
		want  []model.Example
	}{
		{
			name: "no runs",
			setup: func(reg *model.Registry) []*model.Run {
				return nil
			},
			want: []model.Example{},
		},
		{
			name: "failure with similar screenshot stays flaky",
			setup: func(reg *model.Registry) []*model.Run {
				run := model.NewRun("2024-03-01 12:00", "abc")
				run.SetResult("Gradient", "Linux", model.KindFailures)
				run.SetScreenshot("Gradient", "Linux", model.Screenshot{State: model.StateSimilar})
				reg.MarkFlaky(key("Rendering", "Gradient"))
				return []*model.Run{run}
			},
			want: []model.Example{{Category: "Rendering", Name: "Gradient", Flaky: true}},
		},
		{
			name: "no screenshots only is stable",
			setup: func(reg *model.Registry) []*model.Run {
				run := model.NewRun("", "")
				run.SetResult("Audio", "macOS", model.KindNoScreenshots)
				reg.Register(key("Sound", "Audio"))
				return []*model.Run{run}
			},
			want: []model.Example{{Category: "Sound", Name: "Audio", Flaky: false}},
		},
		{
			name: "rerun overwrite downgrades",
			setup: func(reg *model.Registry) []*model.Run {
				run := model.NewRun("", "")
				// The failure was seen first, then a rerun overwrote it.
				reg.MarkFlaky(key("UI", "Button"))
				run.SetResult("Button", "Windows", model.KindNoScreenshots)
				return []*model.Run{run}
			},
			want: []model.Example{{Category: "UI", Name: "Button", Flaky: false}},
		},
		{
			name: "evidence in an older run keeps the bit",
			setup: func(reg *model.Registry) []*model.Run {
				newer := model.NewRun("", "new")
				newer.SetResult("Button", "Windows", model.KindNoScreenshots)
				older := model.NewRun("", "old")
				older.SetResult("Button", "Linux", model.KindFailures)
				reg.MarkFlaky(key("UI", "Button"))
				return []*model.Run{newer, older}
			},
			want: []model.Example{{Category: "UI", Name: "Button", Flaky: true}},
		},
		{
			name: "stable is never upgraded",
			setup: func(reg *model.Registry) []*model.Run {
				run := model.NewRun("", "")
				run.SetScreenshot("Text", "Linux", model.Screenshot{State: model.StateSimilar})
				reg.Register(key("UI", "Text"))
				return []*model.Run{run}
			},
			want: []model.Example{{Category: "UI", Name: "Text", Flaky: false}},
		},
		{
			name: "sorted by id",
			setup: func(reg *model.Registry) []*model.Run {
				reg.Register(key("UI", "Text"))
				reg.Register(key("Games", "Breakout"))
				reg.Register(key("UI", "Button"))
				reg.Register(key("Mobile", "Breakout"))
				return nil
			},
			want: []model.Example{
				{Category: "Games", Name: "Breakout"},
				{Category: "Mobile", Name: "Breakout"},
				{Category: "UI", Name: "Button"},
				{Category: "UI", Name: "Text"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := model.NewRegistry()
			runs := tt.setup(reg)
			got := Aggregate(runs, reg)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Aggregate() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestAggregateIsIdempotent(t *testing.T) {
	reg := model.NewRegistry()
	run := model.NewRun("", "")
	run.SetResult("Button", "Windows", model.KindNoScreenshots)
	run.SetResult("Gradient", "Linux", model.KindFailures)
	reg.MarkFlaky(key("UI", "Button"))
	reg.MarkFlaky(key("Rendering", "Gradient"))
	runs := []*model.Run{run}

	first := Aggregate(runs, reg)
	second := Aggregate(runs, reg)
	assert.Equal(t, first, second)

	// The registry keeps the raw bit; only the output is downgraded.
	ex, ok := reg.Lookup(key("UI", "Button"))
	require.True(t, ok)
	assert.True(t, ex.Flaky)
}

func TestAggregateFlakyImpliesEvidence(t *testing.T) {
	reg := model.NewRegistry()
	a := model.NewRun("", "a")
	a.SetResult("One", "Linux", model.KindFailures)
	a.SetResult("Two", "Linux", model.KindSuccesses)
	a.SetScreenshot("Three", "macOS", model.Screenshot{State: model.StateChanged, DiffRatio: 0.2})
	b := model.NewRun("", "b")
	b.SetResult("Four", "Windows", model.KindNoScreenshots)
	for _, name := range []string{"One", "Two", "Three", "Four"} {
		reg.MarkFlaky(key("C", name))
	}
	runs := []*model.Run{a, b}

	for _, ex := range Aggregate(runs, reg) {
		if !ex.Flaky {
			continue
		}
		evidence := false
		for _, run := range runs {
			if run.HasScreenshot(ex.Name) || run.HasFailures(ex.Name) {
				evidence = true
			}
		}
		assert.True(t, evidence, "%s is flaky without evidence", ex.ID())
	}

	s := Summarize(Aggregate(runs, reg))
	assert.Equal(t, Summary{Flaky: 2, Stable: 2}, s)
}

func TestMobileTags(t *testing.T) {
	got := MobileTags(map[string]struct{}{
		"iOS 17 / iPhone 15":   {},
		"Android 14 / Pixel 8": {},
	})
	assert.Equal(t, []string{"Android 14 / Pixel 8", "iOS 17 / iPhone 15"}, got)
	assert.Empty(t, MobileTags(nil))
}

func TestBuildReport(t *testing.T) {
	reg := model.NewRegistry()
	run := model.NewRun("2024-03-01 12:00", "abc")
	run.SetResult("Gradient", "Linux", model.KindFailures)
	reg.MarkFlaky(key("Rendering", "Gradient"))
	reg.Register(key("UI", "Button"))

	rpt := BuildReport([]*model.Run{run}, reg, nil)
	assert.Equal(t, 1, rpt.FlakyCount)
	assert.Equal(t, 1, rpt.StableCount)
	assert.Len(t, rpt.Examples, 2)
	assert.NotNil(t, rpt.MobileTags)
	assert.Same(t, run, rpt.Runs[0])
}
