package model

// Run is one CI execution: per-example results, screenshots and rerun logs.
// Maps are keyed by example name, then by platform or tag.
type Run struct {
	Date        string                           `json:"date"`
	Commit      string                           `json:"commit"`
	Results     map[string]map[string]Kind       `json:"results"`
	Screenshots map[string]map[string]Screenshot `json:"screenshots"`
	Logs        map[string]map[string]string     `json:"logs"`
}

// NewRun returns a Run with empty maps.
func NewRun(date, commit string) *Run {
	return &Run{
		Date:        date,
		Commit:      commit,
		Results:     make(map[string]map[string]Kind),
		Screenshots: make(map[string]map[string]Screenshot),
		Logs:        make(map[string]map[string]string),
	}
}

// SetResult records (or overwrites) the result of name under key.
func (r *Run) SetResult(name, key string, kind Kind) {
	m, ok := r.Results[name]
	if !ok {
		m = make(map[string]Kind)
		r.Results[name] = m
	}
	m[key] = kind
}

// ResultFor returns the result of name under key.
func (r *Run) ResultFor(name, key string) (Kind, bool) {
	k, ok := r.Results[name][key]
	return k, ok
}

// SetScreenshot stores a screenshot. A screenshot without a prior textual
// result implies the example passed, so a Successes result is inserted.
func (r *Run) SetScreenshot(name, key string, s Screenshot) {
	m, ok := r.Screenshots[name]
	if !ok {
		m = make(map[string]Screenshot)
		r.Screenshots[name] = m
	}
	m[key] = s
	if _, ok := r.ResultFor(name, key); !ok {
		r.SetResult(name, key, KindSuccesses)
	}
}

// ScreenshotFor returns the stored screenshot of name under key.
func (r *Run) ScreenshotFor(name, key string) (Screenshot, bool) {
	s, ok := r.Screenshots[name][key]
	return s, ok
}

// HasScreenshot reports whether any screenshot is stored for name.
func (r *Run) HasScreenshot(name string) bool {
	_, ok := r.Screenshots[name]
	return ok
}

// HasFailures reports whether name failed on any platform in this run.
func (r *Run) HasFailures(name string) bool {
	for _, kind := range r.Results[name] {
		if kind == KindFailures {
			return true
		}
	}
	return false
}

// SetLog stores the log text of name for platform.
func (r *Run) SetLog(name string, p Platform, text string) {
	m, ok := r.Logs[name]
	if !ok {
		m = make(map[string]string)
		r.Logs[name] = m
	}
	m[string(p)] = text
}
