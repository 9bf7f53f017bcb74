// Package runner loads CI run directories and builds normalized runs from
// their artifacts.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/boyarskiy/flakeboard/internal/logging"
	"github.com/boyarskiy/flakeboard/internal/model"
	"github.com/boyarskiy/flakeboard/internal/rerun"
)

// ErrBadRunDir is returned for run directories not named "<YYYYMMDDHHMM>-<commit>".
var ErrBadRunDir = errors.New("malformed run directory name")

const (
	runDirDateLayout = "200601021504"
	displayLayout    = "2006-01-02 15:04"
)

// Config holds the configuration for the runner.
type Config struct {
	Root        string        // directory containing one subdirectory per run
	Window      int           // number of newest runs to read
	VendorDelay time.Duration // pause after each screenshot artifact
	Sources     []Source      // screenshot providers, by precedence
}

// Result holds every run built by Run, newest first.
type Result struct {
	Runs       []*model.Run
	Registry   *model.Registry
	MobileTags []string
}

// Run lists the run directories under cfg.Root, keeps the newest cfg.Window
// and builds them one at a time. Any local error aborts the whole invocation.
func Run(ctx context.Context, cfg *Config) (*Result, error) {
	if cfg.Window <= 0 {
		return nil, fmt.Errorf("window must be a positive integer, got %d", cfg.Window)
	}
	if cfg.Root == "" {
		return nil, fmt.Errorf("root directory is required")
	}

	dirs, err := ListRunDirs(cfg.Root, cfg.Window)
	if err != nil {
		return nil, err
	}

	log := logging.New("runner")
	builder := NewBuilder(cfg.Sources, cfg.VendorDelay, model.NewRegistry())
	runs := make([]*model.Run, 0, len(dirs))

	for i, name := range dirs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path := filepath.Join(cfg.Root, name)
		log.Info("processing run", "dir", path, "index", i)

		date, commit, err := ParseRunDir(name)
		if err != nil {
			return nil, err
		}
		run, err := builder.BuildRun(ctx, path, date, commit)
		if err != nil {
			return nil, fmt.Errorf("run %s: %w", name, err)
		}
		if err := rerun.Reconcile(run, builder.Registry(), path); err != nil {
			return nil, fmt.Errorf("run %s: %w", name, err)
		}
		runs = append(runs, run)
	}

	return &Result{
		Runs:       runs,
		Registry:   builder.Registry(),
		MobileTags: builder.MobileTags(),
	}, nil
}

// ListRunDirs returns up to window run directory names under root, newest
// first. Hidden entries and plain files are ignored.
func ListRunDirs(root string, window int) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read root directory %s: %w", root, err)
	}

	var dirs []string
	for _, entry := range entries {
		if entry.IsDir() && !strings.HasPrefix(entry.Name(), ".") {
			dirs = append(dirs, entry.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dirs)))

	if len(dirs) > window {
		dirs = dirs[:window]
	}
	return dirs, nil
}

// ParseRunDir extracts the display date and commit from a run directory name.
func ParseRunDir(name string) (date, commit string, err error) {
	stamp, commit, found := strings.Cut(name, "-")
	if !found || commit == "" {
		return "", "", fmt.Errorf("%w: %q", ErrBadRunDir, name)
	}
	t, err := time.Parse(runDirDateLayout, stamp)
	if err != nil {
		return "", "", fmt.Errorf("%w: %q: %v", ErrBadRunDir, name, err)
	}
	return t.Format(displayLayout), commit, nil
}
