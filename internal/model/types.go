// Package model defines shared data types for flakeboard.
package model

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a textual result line by the artifact it came from.
type Kind string

const (
	KindSuccesses     Kind = "successes"
	KindFailures      Kind = "failures"
	KindNoScreenshots Kind = "no_screenshots"
)

// ParseKind maps an artifact kind suffix to a textual Kind.
// The boolean is false for screenshot kinds and unknown suffixes.
func ParseKind(s string) (Kind, bool) {
	switch Kind(s) {
	case KindSuccesses, KindFailures, KindNoScreenshots:
		return Kind(s), true
	}
	return "", false
}

// ScreenshotState is the visual-diff verdict for one screenshot.
type ScreenshotState string

const (
	StateSimilar ScreenshotState = "Similar"
	StateChanged ScreenshotState = "Changed"
)

// Platform is the OS (or "Mobile") a run artifact was produced on.
type Platform string

const (
	PlatformLinux   Platform = "Linux"
	PlatformMacOS   Platform = "macOS"
	PlatformWindows Platform = "Windows"
	PlatformMobile  Platform = "Mobile"
)

// ErrUnknownPlatform is returned by ParsePlatform for unrecognized names.
var ErrUnknownPlatform = errors.New("unknown platform")

// ParsePlatform maps the platform prefix of an artifact file name.
func ParsePlatform(s string) (Platform, error) {
	switch strings.ToLower(s) {
	case "linux":
		return PlatformLinux, nil
	case "macos":
		return PlatformMacOS, nil
	case "windows":
		return PlatformWindows, nil
	case "mobile":
		return PlatformMobile, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPlatform, s)
}

// ExampleKey identifies an example. Two examples are the same record
// whenever their keys are equal, regardless of their flaky bit.
type ExampleKey struct {
	Category string
	Name     string
}

// ID returns "<category>/<name>".
func (k ExampleKey) ID() string {
	return k.Category + "/" + k.Name
}

// Example is one test or demo with its cross-run flaky verdict.
type Example struct {
	Category string `json:"category"`
	Name     string `json:"name"`
	Flaky    bool   `json:"flaky"`
}

// Key returns the identity of the example.
func (e Example) Key() ExampleKey {
	return ExampleKey{Category: e.Category, Name: e.Name}
}

// ID returns "<category>/<name>".
func (e Example) ID() string {
	return e.Key().ID()
}

// DefaultDiffRatio is used when a vendor does not report a ratio; it reads
// as "certainly different".
const DefaultDiffRatio = 9999.99

// ScreenshotData is one screenshot record as resolved by a Provider.
type ScreenshotData struct {
	// Example is the vendor's raw name, usually "<category>/<name>.<ext>".
	Example     string
	ImageURL    string
	State       ScreenshotState
	Tag         string // device/browser label; empty when the vendor has none
	DiffRatio   float64
	SnapshotURL string
}

// Normalize forces State to Similar when the vendor reports no difference.
// Vendors occasionally flag a comparison as changed with a zero ratio.
func (d ScreenshotData) Normalize() ScreenshotData {
	if d.DiffRatio == 0.0 {
		d.State = StateSimilar
	}
	return d
}

// Key returns the platform-or-tag column the record belongs to.
func (d ScreenshotData) Key(p Platform) string {
	if d.Tag != "" {
		return d.Tag
	}
	return string(p)
}

// Screenshot is the stored form of a screenshot inside a Run.
type Screenshot struct {
	ImageURL    string          `json:"imageUrl"`
	State       ScreenshotState `json:"state"`
	DiffRatio   float64         `json:"diffRatio"`
	SnapshotURL string          `json:"snapshotUrl"`
}

// Provider resolves a screenshot vendor artifact into flat records.
type Provider interface {
	// Resolve reads the vendor pointer artifact, fetches the vendor document
	// and returns one record per screenshot comparison.
	Resolve(ctx context.Context, artifact []byte) ([]ScreenshotData, error)
}

// Report is the data handed to the report writers.
type Report struct {
	Runs        []*Run    `json:"runs"`
	Examples    []Example `json:"examples"`
	MobileTags  []string  `json:"mobileTags"`
	FlakyCount  int       `json:"flakyCount"`
	StableCount int       `json:"stableCount"`
}
