// Package rerun overlays platform-scoped rerun data onto an already built run.
package rerun

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/boyarskiy/flakeboard/internal/logging"
	"github.com/boyarskiy/flakeboard/internal/model"
	"github.com/boyarskiy/flakeboard/internal/resultline"
)

// Platforms lists, in processing order, the platforms CI reruns on.
var Platforms = []model.Platform{model.PlatformWindows, model.PlatformLinux, model.PlatformMacOS}

const (
	dirPrefix    = "status-rerun-"
	successes    = "successes"
	logExtension = ".log"
)

// colorCodes are the terminal escape sequences the CI runner emits.
var colorCodes = strings.NewReplacer(
	"\x1b[0m", "",
	"\x1b[1m", "",
	"\x1b[2m", "",
	"\x1b[3m", "",
	"\x1b[4m", "",
	"\x1b[22m", "",
	"\x1b[30m", "",
	"\x1b[31m", "",
	"\x1b[32m", "",
	"\x1b[33m", "",
	"\x1b[34m", "",
	"\x1b[35m", "",
	"\x1b[36m", "",
	"\x1b[37m", "",
	"\x1b[39m", "",
	"\x1b[90m", "",
	"\x1b[1;31m", "",
	"\x1b[1;32m", "",
	"\x1b[1;33m", "",
	"\x1b[1;34m", "",
)

// StripColors removes the known terminal colour sequences from s.
func StripColors(s string) string {
	return colorCodes.Replace(s)
}

// Dir returns the rerun subdirectory of runDir for p.
func Dir(runDir string, p model.Platform) string {
	return filepath.Join(runDir, dirPrefix+string(p))
}

// Reconcile applies every rerun subdirectory of runDir to run. A rerun
// success overwrites the result with NoScreenshots; logs are stored per
// platform. Screenshots are never touched. Missing subdirectories are skipped.
func Reconcile(run *model.Run, registry *model.Registry, runDir string) error {
	log := logging.New("rerun")
	for _, p := range Platforms {
		dir := Dir(runDir, p)
		info, err := os.Stat(dir)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to stat %s: %w", dir, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("rerun path %s is not a directory", dir)
		}

		n, err := applySuccesses(run, registry, dir, p)
		if err != nil {
			return err
		}
		logs, err := applyLogs(run, dir, p)
		if err != nil {
			return err
		}
		log.Info("applied rerun", "platform", p, "successes", n, "logs", logs)
	}
	return nil
}

func applySuccesses(run *model.Run, registry *model.Registry, dir string, p model.Platform) (int, error) {
	path := filepath.Join(dir, successes)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	keys, err := resultline.ParseFile(path)
	if err != nil {
		return 0, err
	}
	for _, key := range keys {
		registry.Register(key)
		run.SetResult(key.Name, string(p), model.KindNoScreenshots)
	}
	return len(keys), nil
}

func applyLogs(run *model.Run, dir string, p model.Platform) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(e.Name(), logExtension) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return 0, fmt.Errorf("failed to read log %s: %w", name, err)
		}
		run.SetLog(strings.TrimSuffix(name, logExtension), p, StripColors(string(data)))
	}
	return len(names), nil
}
