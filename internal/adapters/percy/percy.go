// Package percy resolves Percy build artifacts into screenshot records.
//
// The CI job leaves a small JSON pointer naming the Percy build. The build's
// snapshot listing is a JSON:API graph: snapshots point to comparisons, which
// point to base/head screenshots, which point to images. A snapshot fans out
// to one record per comparison (for example one per mobile device).
package percy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/boyarskiy/flakeboard/internal/logging"
	"github.com/boyarskiy/flakeboard/internal/model"
)

// Kind is the artifact file kind handled by this adapter.
const Kind = "percy"

// ErrBadArtifact is returned when the pointer artifact cannot be read.
var ErrBadArtifact = errors.New("malformed percy artifact")

// Config holds Percy API settings.
type Config struct {
	BaseURL    string        // e.g. https://percy.io/api/v1
	RetryDelay time.Duration // wait before the single retry
	HTTPClient *http.Client  // nil uses http.DefaultClient
}

// Adapter implements model.Provider for Percy.
type Adapter struct {
	cfg Config
	log *slog.Logger
}

// New creates a Percy adapter.
func New(cfg Config) *Adapter {
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	return &Adapter{cfg: cfg, log: logging.New("percy")}
}

// pointer is the artifact written by the Percy CLI. Older jobs wrote
// snake_case keys.
type pointer struct {
	WebURL               string `json:"web-url"`
	WebURLLegacy         string `json:"web_url"`
	TotalComparisons     int    `json:"total-comparisons"`
	TotalComparisonsDiff int    `json:"total-comparisons-diff"`
}

func (p pointer) url() string {
	if p.WebURL != "" {
		return p.WebURL
	}
	return p.WebURLLegacy
}

// Resolve reads the pointer artifact, fetches the build snapshots and
// flattens them into screenshot records.
func (a *Adapter) Resolve(ctx context.Context, artifact []byte) ([]model.ScreenshotData, error) {
	var p pointer
	if err := json.Unmarshal(artifact, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadArtifact, err)
	}
	webURL := strings.TrimSuffix(p.url(), "/")
	buildID := webURL[strings.LastIndex(webURL, "/")+1:]
	if buildID == "" {
		return nil, fmt.Errorf("%w: missing web-url", ErrBadArtifact)
	}

	doc, err := a.fetchSnapshots(ctx, buildID)
	if err != nil {
		return nil, err
	}

	out := a.snapshotsToScreenshots(doc, webURL)
	a.log.Debug("resolved build", "build", buildID, "screenshots", len(out),
		"total_comparisons", p.TotalComparisons, "total_comparisons_diff", p.TotalComparisonsDiff)
	return out, nil
}

// fetchSnapshots GETs the build snapshot listing. A failed request is
// retried exactly once after RetryDelay.
func (a *Adapter) fetchSnapshots(ctx context.Context, buildID string) (*Document, error) {
	u := fmt.Sprintf("%s/builds/%s/snapshots", a.cfg.BaseURL, url.PathEscape(buildID))

	resp, err := a.get(ctx, u)
	if err != nil {
		a.log.Warn("percy request failed, retrying", "build", buildID, "delay", a.cfg.RetryDelay, "error", err)
		if err := wait(ctx, a.cfg.RetryDelay); err != nil {
			return nil, err
		}
		resp, err = a.get(ctx, u)
		if err != nil {
			return nil, fmt.Errorf("fetch build %s snapshots: %w", buildID, err)
		}
	}
	defer resp.Body.Close()

	var doc Document
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode build %s snapshots: %w", buildID, err)
	}
	return &doc, nil
}

func (a *Adapter) get(ctx context.Context, u string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.api+json")
	resp, err := a.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("snapshots %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return resp, nil
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

// snapshotsToScreenshots emits one record per (snapshot, comparison) edge.
// Missing nodes never drop a record: it is emitted with an empty image URL.
func (a *Adapter) snapshotsToScreenshots(doc *Document, buildURL string) []model.ScreenshotData {
	g := newGraph(doc)
	var out []model.ScreenshotData

	for i := range doc.Data {
		snapshot := &doc.Data[i]
		if snapshot.Type != typeSnapshots {
			continue
		}
		var attrs snapshotAttributes
		if err := snapshot.decodeAttributes(&attrs); err != nil {
			a.log.Warn("skipping snapshot", "error", err)
			continue
		}

		for _, edge := range snapshot.Relationships["comparisons"].many() {
			out = append(out, a.resolveComparison(g, snapshot, attrs, edge.ID, buildURL))
		}
	}
	return out
}

func (a *Adapter) resolveComparison(g *graph, snapshot *Node, attrs snapshotAttributes, comparisonID, buildURL string) model.ScreenshotData {
	reason := attrs.ReviewStateReason
	ratio := model.DefaultDiffRatio
	var tag, imageURL string

	comparison, ok := g.lookup(typeComparisons, comparisonID)
	if !ok {
		a.log.Warn("comparison not found", "snapshot", attrs.Name, "comparison", comparisonID)
	} else {
		var cattrs comparisonAttributes
		if err := comparison.decodeAttributes(&cattrs); err != nil {
			a.log.Warn("bad comparison attributes", "snapshot", attrs.Name, "error", err)
		}
		if cattrs.ReviewStateReason != "" {
			reason = cattrs.ReviewStateReason
		}
		if cattrs.DiffRatio != nil {
			ratio = *cattrs.DiffRatio
		}
		tag = resolveTag(g, comparison)
		imageURL = a.resolveImage(g, comparison, reason, attrs.Name)
	}

	state := model.StateChanged
	side := "changed"
	if reason == reasonNoDiffs {
		state = model.StateSimilar
		side = "unchanged"
	}

	return model.ScreenshotData{
		Example:     attrs.Name,
		ImageURL:    imageURL,
		State:       state,
		Tag:         tag,
		DiffRatio:   ratio,
		SnapshotURL: fmt.Sprintf("%s/%s/%s", buildURL, side, snapshot.ID),
	}
}

// resolveTag formats the comparison tag as "<os-name> <os-version> / <name>".
func resolveTag(g *graph, comparison *Node) string {
	id, ok := comparison.edge("comparison-tag")
	if !ok {
		return ""
	}
	node, ok := g.lookup(typeComparisonTags, id)
	if !ok {
		return ""
	}
	var attrs comparisonTagAttributes
	if err := node.decodeAttributes(&attrs); err != nil {
		return ""
	}
	return fmt.Sprintf("%s %s / %s", attrs.OSName, attrs.OSVersion, attrs.Name)
}

// resolveImage picks the base or head screenshot according to reason and
// follows it to its image URL. Unknown reasons yield an empty URL.
func (a *Adapter) resolveImage(g *graph, comparison *Node, reason, name string) string {
	var side string
	switch reason {
	case reasonNoDiffs:
		side = "base-screenshot"
	case reasonUnreviewedComparisons, reasonUserApproved:
		side = "head-screenshot"
	default:
		a.log.Debug("unresolved review state", "snapshot", name, "reason", reason)
		return ""
	}

	screenshotID, _ := comparison.edge(side)
	screenshot, ok := g.lookup(typeScreenshots, screenshotID)
	if !ok {
		a.log.Warn("screenshot not found", "snapshot", name, "side", side, "screenshot", screenshotID)
		return ""
	}
	imageID, _ := screenshot.edge("image")
	image, ok := g.lookup(typeImages, imageID)
	if !ok {
		a.log.Warn("image not found", "snapshot", name, "image", imageID)
		return ""
	}
	var attrs imageAttributes
	if err := image.decodeAttributes(&attrs); err != nil {
		a.log.Warn("bad image attributes", "snapshot", name, "error", err)
		return ""
	}
	return attrs.URL
}
