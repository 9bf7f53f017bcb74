package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/boyarskiy/flakeboard/internal/classify"
	"github.com/boyarskiy/flakeboard/internal/logging"
	"github.com/boyarskiy/flakeboard/internal/model"
	"github.com/boyarskiy/flakeboard/internal/resultline"
)

// ErrBadArtifactName is returned for files not named "<platform>-<kind>".
var ErrBadArtifactName = errors.New("malformed artifact file name")

// Source binds a screenshot artifact kind to the provider that resolves it.
type Source struct {
	Kind     string // artifact file kind, e.g. "percy"
	Provider model.Provider
}

// ParseArtifactName splits "<platform>-<kind>".
func ParseArtifactName(name string) (model.Platform, string, error) {
	prefix, kind, found := strings.Cut(name, "-")
	if !found || kind == "" {
		return "", "", fmt.Errorf("%w: %q", ErrBadArtifactName, name)
	}
	platform, err := model.ParsePlatform(prefix)
	if err != nil {
		return "", "", fmt.Errorf("artifact %q: %w", name, err)
	}
	return platform, kind, nil
}

// Builder turns run directories into normalized runs. It owns the example
// registry and the set of mobile tags for the whole invocation.
type Builder struct {
	sources     []Source
	vendorDelay time.Duration
	registry    *model.Registry
	mobileTags  map[string]struct{}
	log         *slog.Logger
}

// NewBuilder creates a builder. Sources are listed by precedence: when two
// sources report the same (example, platform-or-tag) in one run, the record
// of the earlier source is kept.
func NewBuilder(sources []Source, vendorDelay time.Duration, registry *model.Registry) *Builder {
	return &Builder{
		sources:     sources,
		vendorDelay: vendorDelay,
		registry:    registry,
		mobileTags:  make(map[string]struct{}),
		log:         logging.New("runner"),
	}
}

// Registry returns the example registry the builder writes to.
func (b *Builder) Registry() *model.Registry {
	return b.registry
}

// MobileTags returns every device/browser tag seen on mobile screenshots, sorted.
func (b *Builder) MobileTags() []string {
	return classify.MobileTags(b.mobileTags)
}

type artifact struct {
	path     string
	platform model.Platform
	kind     string
}

// BuildRun reads every regular file of dir. Textual artifacts are applied
// first, then screenshot artifacts source by source in precedence order.
func (b *Builder) BuildRun(ctx context.Context, dir, date, commit string) (*model.Run, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read run directory %s: %w", dir, err)
	}

	var textual []artifact
	bySource := make([][]artifact, len(b.sources))

	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") || !entry.Type().IsRegular() {
			continue
		}
		platform, kind, err := ParseArtifactName(name)
		if err != nil {
			return nil, err
		}
		a := artifact{path: filepath.Join(dir, name), platform: platform, kind: kind}

		if _, ok := model.ParseKind(kind); ok {
			textual = append(textual, a)
			continue
		}
		rank := b.sourceRank(kind)
		if rank < 0 {
			b.log.Debug("skipping unknown artifact", "file", a.path)
			continue
		}
		bySource[rank] = append(bySource[rank], a)
	}

	run := model.NewRun(date, commit)
	for _, a := range textual {
		if err := b.applyResults(run, a); err != nil {
			return nil, err
		}
	}

	origin := make(map[screenshotKey]int)
	for rank, artifacts := range bySource {
		for _, a := range artifacts {
			if err := b.applyScreenshots(ctx, run, origin, rank, a); err != nil {
				return nil, err
			}
		}
	}
	return run, nil
}

func (b *Builder) sourceRank(kind string) int {
	for i, s := range b.sources {
		if s.Kind == kind {
			return i
		}
	}
	return -1
}

func (b *Builder) applyResults(run *model.Run, a artifact) error {
	kind, _ := model.ParseKind(a.kind)
	keys, err := resultline.ParseFile(a.path)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if kind == model.KindFailures {
			b.registry.MarkFlaky(key)
		} else {
			b.registry.Register(key)
		}
		run.SetResult(key.Name, string(a.platform), kind)
	}
	return nil
}

type screenshotKey struct {
	name   string
	column string
}

// applyScreenshots resolves one screenshot artifact. Vendor failures are
// logged and leave the run without screenshots from this file.
func (b *Builder) applyScreenshots(ctx context.Context, run *model.Run, origin map[screenshotKey]int, rank int, a artifact) error {
	data, err := os.ReadFile(a.path)
	if err != nil {
		return fmt.Errorf("failed to read artifact %s: %w", a.path, err)
	}

	records, err := b.sources[rank].Provider.Resolve(ctx, data)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b.log.Warn("screenshot provider failed, continuing without screenshots",
			"file", a.path, "source", b.sources[rank].Kind, "error", err)
		records = nil
	}

	stored := 0
	for _, record := range records {
		record = record.Normalize()
		key, ok := exampleKey(a.platform, record.Example)
		if !ok {
			b.log.Warn("skipping screenshot with unexpected name", "file", a.path, "example", record.Example)
			continue
		}
		b.registry.Register(key)

		sk := screenshotKey{name: key.Name, column: record.Key(a.platform)}
		if prev, exists := origin[sk]; exists && prev != rank {
			continue
		}
		origin[sk] = rank
		run.SetScreenshot(sk.name, sk.column, model.Screenshot{
			ImageURL:    record.ImageURL,
			State:       record.State,
			DiffRatio:   record.DiffRatio,
			SnapshotURL: record.SnapshotURL,
		})
		stored++

		if record.State == model.StateChanged {
			b.registry.MarkFlaky(key)
		}
		if a.platform == model.PlatformMobile && record.Tag != "" {
			b.mobileTags[record.Tag] = struct{}{}
		}
	}
	b.log.Debug("applied screenshots", "file", a.path, "records", len(records), "stored", stored)

	return wait(ctx, b.vendorDelay)
}

// exampleKey derives the example identity of a screenshot. Mobile
// screenshots keep the raw vendor name; tags tell the devices apart.
func exampleKey(p model.Platform, raw string) (model.ExampleKey, bool) {
	if p == model.PlatformMobile {
		return model.ExampleKey{Category: string(model.PlatformMobile), Name: raw}, raw != ""
	}
	stem, _, _ := strings.Cut(raw, ".")
	parts := strings.Split(stem, "/")
	if len(parts) < 2 {
		return model.ExampleKey{}, false
	}
	return model.ExampleKey{Category: parts[0], Name: parts[1]}, true
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
