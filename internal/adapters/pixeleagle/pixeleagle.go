// Package pixeleagle resolves Pixel Eagle comparison artifacts into
// screenshot records.
package pixeleagle

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

	"github.com/boyarskiy/flakeboard/internal/logging"
	"github.com/boyarskiy/flakeboard/internal/model"
)

// Kind is the artifact file kind handled by this adapter.
const Kind = "pixeleagle"

// ErrBadArtifact is returned when the pointer artifact cannot be read.
var ErrBadArtifact = errors.New("malformed pixeleagle artifact")

// Config holds Pixel Eagle API settings.
type Config struct {
	BaseURL    string       // e.g. https://pixel-eagle.com
	HTTPClient *http.Client // nil uses http.DefaultClient
}

// Adapter implements model.Provider for Pixel Eagle.
type Adapter struct {
	cfg Config
	log *slog.Logger
}

// New creates a Pixel Eagle adapter.
func New(cfg Config) *Adapter {
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	return &Adapter{cfg: cfg, log: logging.New("pixeleagle")}
}

// target is the pointer artifact naming the two runs to compare.
type target struct {
	ProjectID string `json:"project_id"`
	From      uint32 `json:"from"`
	To        uint32 `json:"to"`
}

// Comparison is the document returned by the compare endpoint.
type Comparison struct {
	ProjectID string       `json:"project_id"`
	From      uint32       `json:"from"`
	To        uint32       `json:"to"`
	New       []Screenshot `json:"new"`
	Diff      []Screenshot `json:"diff"`
	Unchanged []Screenshot `json:"unchanged"`
}

// Screenshot is one entry of a comparison bucket.
type Screenshot struct {
	Name string      `json:"name"`
	Hash string      `json:"hash"`
	Diff *Difference `json:"diff"`
}

// Difference is the diff status of a screenshot: either the bare string
// "Unknown" / "Processing" or {"Done": ratio}.
type Difference struct {
	Done  bool
	Ratio float64
}

// UnmarshalJSON accepts both encodings of a Difference.
func (d *Difference) UnmarshalJSON(b []byte) error {
	var status string
	if err := json.Unmarshal(b, &status); err == nil {
		*d = Difference{}
		return nil
	}
	var done struct {
		Done *float64 `json:"Done"`
	}
	if err := json.Unmarshal(b, &done); err != nil {
		return fmt.Errorf("unexpected diff value %s: %w", string(b), err)
	}
	if done.Done == nil {
		*d = Difference{}
		return nil
	}
	*d = Difference{Done: true, Ratio: *done.Done}
	return nil
}

// ratio returns the computed ratio, or 1.0 while it is not known.
func (s Screenshot) ratio() float64 {
	if s.Diff == nil || !s.Diff.Done {
		return 1.0
	}
	return s.Diff.Ratio
}

// Resolve reads the pointer artifact, fetches the comparison and maps its
// buckets to screenshot records.
func (a *Adapter) Resolve(ctx context.Context, artifact []byte) ([]model.ScreenshotData, error) {
	var t target
	if err := json.Unmarshal(artifact, &t); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadArtifact, err)
	}
	if t.ProjectID == "" {
		return nil, fmt.Errorf("%w: missing project_id", ErrBadArtifact)
	}

	c, err := a.fetchComparison(ctx, t)
	if err != nil {
		return nil, err
	}
	out := a.comparisonToScreenshots(c)
	a.log.Debug("resolved comparison", "project", t.ProjectID, "from", t.From, "to", t.To, "screenshots", len(out))
	return out, nil
}

func (a *Adapter) fetchComparison(ctx context.Context, t target) (*Comparison, error) {
	u := fmt.Sprintf("%s/%s/runs/%d/compare/%d", a.cfg.BaseURL, url.PathEscape(t.ProjectID), t.From, t.To)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	resp, err := a.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("compare %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var c Comparison
	if err := json.NewDecoder(resp.Body).Decode(&c); err != nil {
		return nil, fmt.Errorf("decode comparison: %w", err)
	}
	return &c, nil
}

func (a *Adapter) comparisonToScreenshots(c *Comparison) []model.ScreenshotData {
	out := make([]model.ScreenshotData, 0, len(c.New)+len(c.Unchanged)+len(c.Diff))

	for _, s := range c.New {
		out = append(out, model.ScreenshotData{
			Example:     s.Name,
			ImageURL:    fmt.Sprintf("%s/files/%s/screenshot/%s", a.cfg.BaseURL, c.ProjectID, s.Hash),
			State:       model.StateChanged,
			DiffRatio:   0.0,
			SnapshotURL: a.viewerURL(c, s.Name),
		})
	}
	for _, s := range c.Unchanged {
		out = append(out, model.ScreenshotData{
			Example:     s.Name,
			ImageURL:    a.imageURL(c, s.Hash),
			State:       model.StateSimilar,
			DiffRatio:   0.0,
			SnapshotURL: a.viewerURL(c, s.Name),
		})
	}
	for _, s := range c.Diff {
		out = append(out, model.ScreenshotData{
			Example:     s.Name,
			ImageURL:    a.imageURL(c, s.Hash),
			State:       model.StateChanged,
			DiffRatio:   s.ratio(),
			SnapshotURL: a.viewerURL(c, s.Name),
		})
	}
	return out
}

func (a *Adapter) imageURL(c *Comparison, hash string) string {
	return fmt.Sprintf("%s/%s/screenshot/%s", a.cfg.BaseURL, c.ProjectID, hash)
}

func (a *Adapter) viewerURL(c *Comparison, name string) string {
	return fmt.Sprintf("%s/project/%s/run/%d/compare/%d?screenshot=%s",
		a.cfg.BaseURL, c.ProjectID, c.From, c.To, name)
}
