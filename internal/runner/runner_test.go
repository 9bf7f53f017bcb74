package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boyarskiy/flakeboard/internal/model"
	"github.com/boyarskiy/flakeboard/internal/resultline"
)

// fakeProvider returns the records registered for an artifact's contents.
type fakeProvider struct {
	records map[string][]model.ScreenshotData
	err     error
	calls   int
}

func (f *fakeProvider) Resolve(_ context.Context, artifact []byte) ([]model.ScreenshotData, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.records[string(artifact)], nil
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func newTestBuilder(percy, pixeleagle model.Provider) *Builder {
	return NewBuilder([]Source{
		{Kind: "percy", Provider: percy},
		{Kind: "pixeleagle", Provider: pixeleagle},
	}, 0, model.NewRegistry())
}

func lookup(t *testing.T, b *Builder, category, name string) model.Example {
	t.Helper()
	ex, ok := b.Registry().Lookup(model.ExampleKey{Category: category, Name: name})
	require.True(t, ok, "%s/%s not registered", category, name)
	return ex
}

func TestParseRunDir(t *testing.T) {
	tests := []struct {
		name       string
		wantDate   string
		wantCommit string
		wantErr    bool
	}{
		{name: "202403011230-abc1234", wantDate: "2024-03-01 12:30", wantCommit: "abc1234"},
		{name: "202312312359-deadbeef", wantDate: "2023-12-31 23:59", wantCommit: "deadbeef"},
		{name: "20240301-abc1234", wantErr: true},
		{name: "202403011230", wantErr: true},
		{name: "202403011230-", wantErr: true},
		{name: "notadate-abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			date, commit, err := ParseRunDir(tt.name)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrBadRunDir))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantDate, date)
			assert.Equal(t, tt.wantCommit, commit)
		})
	}
}

func TestParseArtifactName(t *testing.T) {
	tests := []struct {
		name         string
		wantPlatform model.Platform
		wantKind     string
		wantErr      error
	}{
		{name: "Linux-failures", wantPlatform: model.PlatformLinux, wantKind: "failures"},
		{name: "macOS-no_screenshots", wantPlatform: model.PlatformMacOS, wantKind: "no_screenshots"},
		{name: "mobile-percy", wantPlatform: model.PlatformMobile, wantKind: "percy"},
		{name: "Windows-pixeleagle", wantPlatform: model.PlatformWindows, wantKind: "pixeleagle"},
		{name: "Haiku-successes", wantErr: model.ErrUnknownPlatform},
		{name: "README", wantErr: ErrBadArtifactName},
		{name: "Linux-", wantErr: ErrBadArtifactName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			platform, kind, err := ParseArtifactName(tt.name)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantPlatform, platform)
			assert.Equal(t, tt.wantKind, kind)
		})
	}
}

func TestListRunDirs(t *testing.T) {
	root := t.TempDir()
	for _, d := range []string{"202401010000-a", "202403010000-c", "202402010000-b", ".cache"} {
		require.NoError(t, os.Mkdir(filepath.Join(root, d), 0755))
	}
	writeFile(t, filepath.Join(root, "index.html"), "")

	got, err := ListRunDirs(root, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"202403010000-c", "202402010000-b"}, got)

	got, err = ListRunDirs(root, 10)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestBuildRunFailureWithSimilarScreenshot(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "Linux-failures"), "Rendering/Gradient - timeout\n")
	writeFile(t, filepath.Join(dir, "Linux-percy"), "linux")

	percy := &fakeProvider{records: map[string][]model.ScreenshotData{
		"linux": {{Example: "Rendering/Gradient.png", State: model.StateSimilar, ImageURL: "https://img/g.png"}},
	}}
	b := newTestBuilder(percy, &fakeProvider{})

	run, err := b.BuildRun(context.Background(), dir, "2024-03-01 12:00", "abc1234")
	require.NoError(t, err)

	kind, _ := run.ResultFor("Gradient", "Linux")
	assert.Equal(t, model.KindFailures, kind)
	shot, ok := run.ScreenshotFor("Gradient", "Linux")
	require.True(t, ok)
	assert.Equal(t, model.StateSimilar, shot.State)
	assert.True(t, lookup(t, b, "Rendering", "Gradient").Flaky)
}

func TestBuildRunVendorPrecedence(t *testing.T) {
	dir := t.TempDir()
	// Listing order puts pixeleagle before percy; precedence must not depend on it.
	writeFile(t, filepath.Join(dir, "Linux-pixeleagle"), "pe")
	writeFile(t, filepath.Join(dir, "Linux-percy"), "percy")

	percy := &fakeProvider{records: map[string][]model.ScreenshotData{
		"percy": {{Example: "UI/Button.png", State: model.StateSimilar, DiffRatio: 0, ImageURL: "percy"}},
	}}
	pixeleagle := &fakeProvider{records: map[string][]model.ScreenshotData{
		"pe": {
			{Example: "UI/Button.png", State: model.StateChanged, DiffRatio: 0.4, ImageURL: "pe"},
			{Example: "UI/Text.png", State: model.StateSimilar, ImageURL: "pe-text"},
		},
	}}
	b := newTestBuilder(percy, pixeleagle)

	run, err := b.BuildRun(context.Background(), dir, "", "")
	require.NoError(t, err)

	shot, _ := run.ScreenshotFor("Button", "Linux")
	assert.Equal(t, "percy", shot.ImageURL)
	assert.Equal(t, model.StateSimilar, shot.State)
	assert.False(t, lookup(t, b, "UI", "Button").Flaky, "discarded record must not mark flaky")

	shot, ok := run.ScreenshotFor("Text", "Linux")
	require.True(t, ok, "pixeleagle fills keys percy did not report")
	assert.Equal(t, "pe-text", shot.ImageURL)

	kind, _ := run.ResultFor("Text", "Linux")
	assert.Equal(t, model.KindSuccesses, kind)
}

func TestBuildRunZeroRatioOverride(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "Windows-pixeleagle"), "pe")

	pixeleagle := &fakeProvider{records: map[string][]model.ScreenshotData{
		"pe": {
			{Example: "Games/Breakout.png", State: model.StateChanged, DiffRatio: 0.0},
			{Example: "Games/Alien.png", State: model.StateChanged, DiffRatio: 0.3},
		},
	}}
	b := newTestBuilder(&fakeProvider{}, pixeleagle)

	run, err := b.BuildRun(context.Background(), dir, "", "")
	require.NoError(t, err)

	shot, _ := run.ScreenshotFor("Breakout", "Windows")
	assert.Equal(t, model.StateSimilar, shot.State)
	assert.False(t, lookup(t, b, "Games", "Breakout").Flaky)

	shot, _ = run.ScreenshotFor("Alien", "Windows")
	assert.Equal(t, model.StateChanged, shot.State)
	assert.True(t, lookup(t, b, "Games", "Alien").Flaky)
}

func TestBuildRunMobileTags(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "mobile-percy"), "mobile")

	percy := &fakeProvider{records: map[string][]model.ScreenshotData{
		"mobile": {
			{Example: "Breakout", Tag: "iOS 17 / iPhone 15", State: model.StateSimilar, DiffRatio: 0.0},
			{Example: "Breakout", Tag: "Android 14 / Pixel 8", State: model.StateChanged, DiffRatio: 0.1},
		},
	}}
	b := newTestBuilder(percy, &fakeProvider{})

	run, err := b.BuildRun(context.Background(), dir, "", "")
	require.NoError(t, err)

	want := map[string]model.Screenshot{
		"iOS 17 / iPhone 15":   {State: model.StateSimilar, DiffRatio: 0.0},
		"Android 14 / Pixel 8": {State: model.StateChanged, DiffRatio: 0.1},
	}
	if diff := cmp.Diff(want, run.Screenshots["Breakout"]); diff != "" {
		t.Errorf("mobile screenshots mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, lookup(t, b, "Mobile", "Breakout").Flaky)
	assert.Equal(t, []string{"Android 14 / Pixel 8", "iOS 17 / iPhone 15"}, b.MobileTags())
}

func TestBuildRunProviderFailureDegrades(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "Linux-percy"), "x")
	writeFile(t, filepath.Join(dir, "Linux-successes"), "UI/Button - ok\n")

	percy := &fakeProvider{err: fmt.Errorf("percy is down")}
	b := newTestBuilder(percy, &fakeProvider{})

	run, err := b.BuildRun(context.Background(), dir, "", "")
	require.NoError(t, err)
	assert.Equal(t, 1, percy.calls)
	assert.Empty(t, run.Screenshots)
	kind, _ := run.ResultFor("Button", "Linux")
	assert.Equal(t, model.KindSuccesses, kind)
}

func TestBuildRunSkipsOddScreenshotNames(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "Linux-percy"), "x")

	percy := &fakeProvider{records: map[string][]model.ScreenshotData{
		"x": {{Example: "no-category.png", State: model.StateChanged, DiffRatio: 1}},
	}}
	b := newTestBuilder(percy, &fakeProvider{})

	run, err := b.BuildRun(context.Background(), dir, "", "")
	require.NoError(t, err)
	assert.Empty(t, run.Screenshots)
	assert.Equal(t, 0, b.Registry().Len())
}

func TestBuildRunFatalErrors(t *testing.T) {
	tests := []struct {
		name    string
		files   map[string]string
		wantErr error
	}{
		{
			name:    "malformed line",
			files:   map[string]string{"Linux-failures": "Gradient timeout\n"},
			wantErr: resultline.ErrMalformedLine,
		},
		{
			name:    "unknown platform",
			files:   map[string]string{"Plan9-successes": "UI/Button - ok\n"},
			wantErr: model.ErrUnknownPlatform,
		},
		{
			name:    "file without kind",
			files:   map[string]string{"notes": ""},
			wantErr: ErrBadArtifactName,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			for name, content := range tt.files {
				writeFile(t, filepath.Join(dir, name), content)
			}
			_, err := newTestBuilder(&fakeProvider{}, &fakeProvider{}).BuildRun(context.Background(), dir, "", "")
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestBuildRunIgnoresUnknownKindsAndSubdirs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "Linux-timings"), "whatever")
	writeFile(t, filepath.Join(dir, ".DS_Store"), "")
	writeFile(t, filepath.Join(dir, "status-rerun-Linux", "successes"), "UI/Button - ok\n")

	run, err := newTestBuilder(&fakeProvider{}, &fakeProvider{}).BuildRun(context.Background(), dir, "", "")
	require.NoError(t, err)
	assert.Empty(t, run.Results)
}

func TestRun(t *testing.T) {
	root := t.TempDir()

	older := filepath.Join(root, "202403010000-aaa")
	writeFile(t, filepath.Join(older, "Windows-failures"), "Rendering/Gradient - panic\n")

	newer := filepath.Join(root, "202403020000-bbb")
	writeFile(t, filepath.Join(newer, "Windows-successes"), "UI/Button - ok\n")
	writeFile(t, filepath.Join(newer, "Windows-failures"), "Rendering/Gradient - panic\n")
	writeFile(t, filepath.Join(newer, "status-rerun-Windows", "successes"), "Rendering/Gradient - ok\n")
	writeFile(t, filepath.Join(newer, "status-rerun-Windows", "Gradient.log"), "\x1b[31mboom\x1b[0m")

	outside := filepath.Join(root, "202402010000-zzz")
	writeFile(t, filepath.Join(outside, "Windows-failures"), "Old/Only - panic\n")

	res, err := Run(context.Background(), &Config{
		Root:   root,
		Window: 2,
		Sources: []Source{
			{Kind: "percy", Provider: &fakeProvider{}},
		},
	})
	require.NoError(t, err)

	require.Len(t, res.Runs, 2)
	assert.Equal(t, "bbb", res.Runs[0].Commit)
	assert.Equal(t, "2024-03-02 00:00", res.Runs[0].Date)
	assert.Equal(t, "aaa", res.Runs[1].Commit)

	kind, _ := res.Runs[0].ResultFor("Gradient", "Windows")
	assert.Equal(t, model.KindNoScreenshots, kind, "rerun success overwrites the failure")
	assert.Equal(t, "boom", res.Runs[0].Logs["Gradient"]["Windows"])

	kind, _ = res.Runs[1].ResultFor("Gradient", "Windows")
	assert.Equal(t, model.KindFailures, kind)

	_, ok := res.Registry.Lookup(model.ExampleKey{Category: "Old", Name: "Only"})
	assert.False(t, ok, "runs outside the window are never read")
	assert.Equal(t, 2, res.Registry.Len())
}

func TestRunBadRunDirIsFatal(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "latest"), 0755))

	_, err := Run(context.Background(), &Config{Root: root, Window: 5})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBadRunDir))
}

func TestRunValidatesConfig(t *testing.T) {
	_, err := Run(context.Background(), &Config{Root: t.TempDir()})
	assert.Error(t, err)

	_, err = Run(context.Background(), &Config{Window: 1})
	assert.Error(t, err)
}
